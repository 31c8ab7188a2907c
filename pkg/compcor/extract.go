// Package compcor extracts principal-component noise regressors from
// masked voxel timeseries using a deterministic SVD-based PCA, following
// Behzadi Y et al. (2007), "A component based noise correction method
// (CompCor) for BOLD and perfusion based fMRI", NeuroImage 37:90-101.
//
// Anatomical CompCor (aCompCor) runs the PCA over a tissue mask supplied
// by the caller; temporal CompCor (tCompCor) first selects the
// highest-variance voxels within a search mask.
package compcor

import (
	"fmt"
	"math"

	"github.com/SpinePrep/SpinePrep/internal/models"
)

// ExtractTimeseries projects a 4D volume through a 3D mask into a dense
// T x V matrix, one column per masked voxel in ascending flat-index order.
//
// When standardize is true each voxel column is demeaned and divided by
// its standard deviation; a zero-variance column is left demeaned only
// rather than divided by zero.
//
// Returns a shape-mismatch error when the mask's spatial grid differs
// from the volume's, and an empty-selection error when the mask selects
// no voxels.
func ExtractTimeseries(vol *models.Volume4D, mask *models.Mask3D, standardize bool) (*models.Timeseries, error) {
	if !mask.Matches(vol) {
		return nil, fmt.Errorf("%w: mask grid %dx%dx%d vs volume %dx%dx%d",
			models.ErrShapeMismatch, mask.NX, mask.NY, mask.NZ, vol.NX, vol.NY, vol.NZ)
	}

	nVoxels := mask.Count()
	if nVoxels == 0 {
		return nil, fmt.Errorf("timeseries extraction: %w", models.ErrEmptySelection)
	}

	// Flat indices of masked voxels, ascending. This fixes the column
	// order of the output matrix.
	cols := make([]int, 0, nVoxels)
	for i, in := range mask.Data {
		if in {
			cols = append(cols, i)
		}
	}

	ts := &models.Timeseries{
		Data: make([]float64, vol.NT*nVoxels),
		T:    vol.NT,
		V:    nVoxels,
	}

	for t := 0; t < vol.NT; t++ {
		volume := vol.VolumeAt(t)
		row := ts.Data[t*nVoxels : (t+1)*nVoxels]
		for j, idx := range cols {
			row[j] = volume[idx]
		}
	}

	if standardize {
		standardizeColumns(ts)
	}

	return ts, nil
}

// standardizeColumns demeans every column in place, then divides by the
// column standard deviation, substituting 1 for zero-variance columns.
func standardizeColumns(ts *models.Timeseries) {
	if ts.T == 0 {
		return
	}

	means := columnMeans(ts)
	for t := 0; t < ts.T; t++ {
		row := ts.Data[t*ts.V : (t+1)*ts.V]
		for v := range row {
			row[v] -= means[v]
		}
	}

	// Std over the demeaned columns.
	stds := make([]float64, ts.V)
	for t := 0; t < ts.T; t++ {
		row := ts.Data[t*ts.V : (t+1)*ts.V]
		for v, val := range row {
			stds[v] += val * val
		}
	}
	for v := range stds {
		stds[v] = math.Sqrt(stds[v] / float64(ts.T))
		if stds[v] == 0 {
			stds[v] = 1.0
		}
	}

	for t := 0; t < ts.T; t++ {
		row := ts.Data[t*ts.V : (t+1)*ts.V]
		for v := range row {
			row[v] /= stds[v]
		}
	}
}

// columnMeans returns the per-column means of the matrix, accumulated in
// ascending timepoint order for deterministic floating-point results.
func columnMeans(ts *models.Timeseries) []float64 {
	means := make([]float64, ts.V)
	if ts.T == 0 {
		return means
	}
	for t := 0; t < ts.T; t++ {
		row := ts.Data[t*ts.V : (t+1)*ts.V]
		for v, val := range row {
			means[v] += val
		}
	}
	for v := range means {
		means[v] /= float64(ts.T)
	}
	return means
}
