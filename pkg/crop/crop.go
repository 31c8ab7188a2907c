// Package crop detects leading and trailing artifact volumes in a scan by
// robust z-scoring a per-volume summary signal, producing the temporal
// window that should be treated as valid data.
package crop

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// madEps and stdEps gate the robust and fallback spread estimates: below
// these a spread is treated as zero.
const (
	madEps = 1e-6
	stdEps = 1e-6
)

// madScale converts a MAD into a normal-distribution sigma estimate.
const madScale = 0.6745

// Reason tags how a crop window was decided, replacing the broad
// exception fallbacks of older implementations with an auditable code.
type Reason string

const (
	// ReasonRobustZ means the median/MAD z-score path ran.
	ReasonRobustZ Reason = "robust_z"

	// ReasonStdFallback means MAD was degenerate and the standard
	// deviation was used for z-scoring instead.
	ReasonStdFallback Reason = "std_fallback"

	// ReasonNoVariation means both spread estimates were degenerate, so no
	// outliers could be declared and the full range was kept.
	ReasonNoVariation Reason = "no_variation"

	// ReasonDisabled means detection was switched off and the full range
	// was passed through.
	ReasonDisabled Reason = "disabled"

	// ReasonNoData means detection was enabled but no summary signal was
	// available (no volume data), so the full range was passed through.
	ReasonNoData Reason = "no_data"

	// ReasonError means the signal was not computable (for example it
	// contained non-finite values) and the detector degraded to the full
	// range.
	ReasonError Reason = "error"
)

// Window is the valid temporal sub-range [From, To) of a scan of NVols
// volumes, with 0 <= From <= To <= NVols.
type Window struct {
	From   int    `json:"from"`
	To     int    `json:"to"`
	NVols  int    `json:"nvols"`
	Reason Reason `json:"reason"`
}

// Options configures crop detection.
type Options struct {
	// Enable switches detection on; when false, Detect passes the full
	// range through with ReasonDisabled
	Enable bool

	// ZThresh is the absolute z-score above which a volume is an outlier
	ZThresh float64

	// MaxTrimStart and MaxTrimEnd bound how many volumes may be trimmed
	// from each end
	MaxTrimStart int
	MaxTrimEnd   int
}

// Detect computes the crop window for a per-volume summary signal.
//
// Z-scores come from the robust median/MAD estimate, scaled by 0.6745 to
// approximate sigma; if the MAD is degenerate the standard deviation is
// used, and if both are degenerate no outliers are declared. Each end is
// then trimmed monotonically: the forward scan extends From past every
// leading outlier up to MaxTrimStart volumes and stops at the first
// in-bounds volume, and the backward scan mirrors it for To. Interior
// outliers are never excluded here; they are censoring's concern.
func Detect(signal []float64, opts Options) Window {
	nVols := len(signal)

	if !opts.Enable {
		return Window{From: 0, To: nVols, NVols: nVols, Reason: ReasonDisabled}
	}

	for _, v := range signal {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Window{From: 0, To: nVols, NVols: nVols, Reason: ReasonError}
		}
	}
	if nVols == 0 {
		return Window{From: 0, To: 0, NVols: 0, Reason: ReasonNoVariation}
	}

	z, reason := zScores(signal)
	if reason == ReasonNoVariation {
		return Window{From: 0, To: nVols, NVols: nVols, Reason: reason}
	}

	// Leading outliers: stop at the first in-bounds volume.
	from := 0
	maxStart := opts.MaxTrimStart
	if maxStart > nVols {
		maxStart = nVols
	}
	for i := 0; i < maxStart; i++ {
		if math.Abs(z[i]) > opts.ZThresh {
			from = i + 1
		} else {
			break
		}
	}

	// Trailing outliers, scanned backward symmetrically.
	to := nVols
	maxEnd := opts.MaxTrimEnd
	if maxEnd > nVols {
		maxEnd = nVols
	}
	for i := 0; i < maxEnd; i++ {
		idx := nVols - 1 - i
		if math.Abs(z[idx]) > opts.ZThresh {
			to = idx
		} else {
			break
		}
	}

	if from > nVols {
		from = nVols
	}
	if to < from {
		to = from
	}
	if to > nVols {
		to = nVols
	}

	return Window{From: from, To: to, NVols: nVols, Reason: reason}
}

// zScores computes per-volume z-scores with the robust median/MAD
// estimate, falling back to the standard deviation when the MAD is
// degenerate.
func zScores(signal []float64) ([]float64, Reason) {
	med := median(signal)

	dev := make([]float64, len(signal))
	for i, v := range signal {
		dev[i] = math.Abs(v - med)
	}
	mad := median(dev)

	z := make([]float64, len(signal))
	if mad >= madEps {
		for i, v := range signal {
			z[i] = madScale * (v - med) / mad
		}
		return z, ReasonRobustZ
	}

	std := stat.PopStdDev(signal, nil)
	if std >= stdEps {
		for i, v := range signal {
			z[i] = (v - med) / std
		}
		return z, ReasonStdFallback
	}

	return nil, ReasonNoVariation
}

// median returns the midpoint median of values without modifying them.
func median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
