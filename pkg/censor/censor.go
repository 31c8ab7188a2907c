// Package censor marks motion-corrupted timepoints for exclusion from
// downstream statistical analysis, based on FD and DVARS thresholds with
// padding and minimum-contiguous-segment rules.
package censor

import (
	"fmt"

	"github.com/SpinePrep/SpinePrep/internal/models"
)

// Thresholds configures the censoring passes.
type Thresholds struct {
	// FDThreshMM censors frames whose FD strictly exceeds it, in mm
	FDThreshMM float64

	// DVARSThresh censors frames whose DVARS strictly exceeds it
	DVARSThresh float64

	// MinContigVols is the minimum length of a kept run; shorter runs are
	// censored entirely. Values <= 1 disable the contiguity filter.
	MinContigVols int

	// PadVols extends censoring this many frames on both sides of every
	// originally censored frame
	PadVols int
}

// Build produces the censor vector in three ordered passes:
//
//  1. mark frames where fd > FDThreshMM or dvars > DVARSThresh
//     (strictly greater, matching the calibrated thresholds);
//  2. pad [t-PadVols, t+PadVols] around every frame marked in pass 1,
//     clamped to the series bounds; padding radiates from the original
//     outlier positions only, never from already-padded frames;
//  3. censor every maximal kept run shorter than MinContigVols.
//
// The surviving kept runs are returned as half-open segments in ascending
// order. Mismatched fd/dvars lengths are a shape-mismatch error.
func Build(fd, dvars []float64, cfg Thresholds) (*models.CensorResult, error) {
	if len(fd) != len(dvars) {
		return nil, fmt.Errorf("%w: FD length %d vs DVARS length %d",
			models.ErrShapeMismatch, len(fd), len(dvars))
	}

	nVols := len(fd)
	vec := make([]int, nVols)

	// Pass 1: threshold marking.
	for t := 0; t < nVols; t++ {
		if fd[t] > cfg.FDThreshMM || dvars[t] > cfg.DVARSThresh {
			vec[t] = 1
		}
	}

	// Pass 2: padding, computed from the pass-1 positions.
	if cfg.PadVols > 0 {
		padded := make([]int, nVols)
		copy(padded, vec)
		for t := 0; t < nVols; t++ {
			if vec[t] != 1 {
				continue
			}
			start := t - cfg.PadVols
			if start < 0 {
				start = 0
			}
			end := t + cfg.PadVols
			if end > nVols-1 {
				end = nVols - 1
			}
			for i := start; i <= end; i++ {
				padded[i] = 1
			}
		}
		vec = padded
	}

	// Pass 3: contiguity filter and segment collection.
	var segments []models.Segment
	runStart := -1
	flush := func(end int) {
		if runStart < 0 {
			return
		}
		if cfg.MinContigVols > 1 && end-runStart < cfg.MinContigVols {
			for i := runStart; i < end; i++ {
				vec[i] = 1
			}
		} else {
			segments = append(segments, models.Segment{Start: runStart, End: end})
		}
		runStart = -1
	}
	for t := 0; t < nVols; t++ {
		if vec[t] == 0 {
			if runStart < 0 {
				runStart = t
			}
		} else {
			flush(t)
		}
	}
	flush(nVols)

	res := &models.CensorResult{
		Censor:       vec,
		KeepMask:     make([]bool, nVols),
		KeptSegments: segments,
	}
	for t, c := range vec {
		if c == 0 {
			res.KeepMask[t] = true
			res.NKept++
		} else {
			res.NCensored++
		}
	}

	return res, nil
}

// Columns builds the per-criterion censor triple with OR semantics:
// censorFD marks fd > fdThresh, censorDVARS marks dvars > dvarsThresh,
// and censorAny marks frames flagged by either. No padding or contiguity
// rules are applied. Mismatched lengths are a shape-mismatch error.
func Columns(fd, dvars []float64, fdThresh, dvarsThresh float64) (censorFD, censorDVARS, censorAny []int, err error) {
	if len(fd) != len(dvars) {
		return nil, nil, nil, fmt.Errorf("%w: FD length %d vs DVARS length %d",
			models.ErrShapeMismatch, len(fd), len(dvars))
	}

	n := len(fd)
	censorFD = make([]int, n)
	censorDVARS = make([]int, n)
	censorAny = make([]int, n)

	for t := 0; t < n; t++ {
		if fd[t] > fdThresh {
			censorFD[t] = 1
		}
		if dvars[t] > dvarsThresh {
			censorDVARS[t] = 1
		}
		if censorFD[t] == 1 || censorDVARS[t] == 1 {
			censorAny[t] = 1
		}
	}

	return censorFD, censorDVARS, censorAny, nil
}
