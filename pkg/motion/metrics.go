// Package motion computes per-timepoint motion quality metrics from
// rigid-body motion parameters and 4D functional data: framewise
// displacement (FD), DVARS, and threshold-based spike detection.
//
// The metrics follow Power JD et al. (2012), "Spurious but systematic
// correlations in functional connectivity MRI networks arise from subject
// motion", NeuroImage 59:2142-2154.
package motion

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/SpinePrep/SpinePrep/internal/models"
)

// DefaultRadiusMM is the head/cord radius used to convert rotational
// displacements to arc length, in millimeters.
const DefaultRadiusMM = 50.0

// ComputeFD computes framewise displacement with the Power method:
//
//	FD[t] = |Δtx| + |Δty| + |Δtz| + radius * (|Δrx| + |Δry| + |Δrz|)
//
// where Δ is the first difference against timepoint t-1. Translations are
// in mm, rotations in radians; rotations are converted to arc-length
// displacement by multiplying by radiusMM. The sum-of-absolute-differences
// form is deliberate: downstream censoring thresholds are calibrated to it.
//
// The returned series has length T with FD[0] = 0. Fewer than two
// timepoints yield an all-zero series.
func ComputeFD(params *models.MotionParams, radiusMM float64) []float64 {
	fd := make([]float64, params.T)
	if params.T < 2 {
		return fd
	}

	for t := 1; t < params.T; t++ {
		prev := params.Row(t - 1)
		cur := params.Row(t)

		var transSum, rotSum float64
		for c := 0; c < 3; c++ {
			transSum += math.Abs(cur[c] - prev[c])
			rotSum += math.Abs(cur[c+3] - prev[c+3])
		}

		fd[t] = transSum + radiusMM*rotSum
	}

	return fd
}

// ComputeDVARS computes the temporal-derivative RMS signal change:
// for each t >= 1, the root mean square of the voxelwise difference
// between volumes t and t-1, restricted to the mask. DVARS[0] = 0.
//
// If mask is nil, a default mask is derived from the data: voxels whose
// value in the first volume exceeds that volume's median. A mask whose
// spatial grid differs from the volume's is a shape-mismatch error. A
// mask that selects zero voxels yields an all-zero series rather than an
// error, since an empty default mask is a legitimate data condition here.
// NaN values inside the mask are excluded from the mean, not propagated.
func ComputeDVARS(vol *models.Volume4D, mask *models.Mask3D) ([]float64, error) {
	if mask != nil && !mask.Matches(vol) {
		return nil, fmt.Errorf("%w: mask grid %dx%dx%d vs volume %dx%dx%d",
			models.ErrShapeMismatch, mask.NX, mask.NY, mask.NZ, vol.NX, vol.NY, vol.NZ)
	}

	dvars := make([]float64, vol.NT)
	if vol.NT < 2 {
		return dvars, nil
	}

	var include []bool
	if mask != nil {
		include = mask.Data
	} else {
		include = defaultMask(vol)
	}

	anySelected := false
	for _, v := range include {
		if v {
			anySelected = true
			break
		}
	}
	if !anySelected {
		return dvars, nil
	}

	nVox := vol.VoxelsPerVolume()
	for t := 1; t < vol.NT; t++ {
		prev := vol.VolumeAt(t - 1)
		cur := vol.VolumeAt(t)

		var sumSq float64
		var n int
		for i := 0; i < nVox; i++ {
			if !include[i] {
				continue
			}
			d := cur[i] - prev[i]
			if math.IsNaN(d) {
				continue
			}
			sumSq += d * d
			n++
		}

		if n > 0 {
			dvars[t] = math.Sqrt(sumSq / float64(n))
		}
	}

	return dvars, nil
}

// defaultMask selects voxels whose value in the first volume exceeds the
// median of the first volume.
func defaultMask(vol *models.Volume4D) []bool {
	first := vol.VolumeAt(0)
	med := median(first)

	include := make([]bool, len(first))
	for i, v := range first {
		include[i] = v > med
	}
	return include
}

// DetectSpikes flags timepoints where FD meets or exceeds fdThr, or where
// the absolute z-score of DVARS meets or exceeds dvarsZ. The z-score uses
// the population standard deviation over timepoints 1..T-1 only,
// excluding the defined-zero first sample; if DVARS has zero variance
// over that range, the z-score branch contributes no spikes. spike[0] is
// always 0.
func DetectSpikes(fd, dvars []float64, fdThr, dvarsZ float64) []int {
	n := len(fd)
	spike := make([]int, n)
	if n == 0 {
		return spike
	}

	for t := 0; t < n; t++ {
		if fd[t] >= fdThr {
			spike[t] = 1
		}
	}

	if n > 1 && len(dvars) == n {
		tail := dvars[1:]
		mean := stat.Mean(tail, nil)
		sd := stat.PopStdDev(tail, nil)

		if sd > 0 {
			for t := 1; t < n; t++ {
				z := (dvars[t] - mean) / sd
				if math.Abs(z) >= dvarsZ {
					spike[t] = 1
				}
			}
		}
	}

	spike[0] = 0
	return spike
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
