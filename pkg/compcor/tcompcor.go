package compcor

import (
	"fmt"
	"math"
	"sort"

	"github.com/SpinePrep/SpinePrep/internal/models"
)

// SelectHighVarianceVoxels builds the tCompCor mask: within the search
// mask it ranks voxels by temporal variance and keeps the top
// ceil(count * topkPercent / 100) of them, at least 1. The cut is a
// threshold comparison against the k-th largest variance, so voxels tied
// exactly at the boundary value are all included and the result may hold
// slightly more voxels than the computed target.
//
// Returns a shape-mismatch error when mask and volume grids disagree, and
// an empty-selection error when the search mask selects no voxels.
func SelectHighVarianceVoxels(vol *models.Volume4D, mask *models.Mask3D, topkPercent float64) (*models.Mask3D, error) {
	if !mask.Matches(vol) {
		return nil, fmt.Errorf("%w: mask grid %dx%dx%d vs volume %dx%dx%d",
			models.ErrShapeMismatch, mask.NX, mask.NY, mask.NZ, vol.NX, vol.NY, vol.NZ)
	}

	nVoxels := mask.Count()
	if nVoxels == 0 {
		return nil, fmt.Errorf("tCompCor voxel selection: %w", models.ErrEmptySelection)
	}

	idxs := make([]int, 0, nVoxels)
	for i, in := range mask.Data {
		if in {
			idxs = append(idxs, i)
		}
	}

	variances := temporalVariances(vol, idxs)

	nSelect := int(math.Ceil(float64(nVoxels) * topkPercent / 100.0))
	if nSelect < 1 {
		nSelect = 1
	}
	if nSelect > nVoxels {
		nSelect = nVoxels
	}

	// Threshold at the nSelect-th largest variance, so exact ties at the
	// boundary are all kept.
	sorted := make([]float64, nVoxels)
	copy(sorted, variances)
	sort.Float64s(sorted)
	threshold := sorted[nVoxels-nSelect]

	out := &models.Mask3D{
		Data: make([]bool, len(mask.Data)),
		NX:   mask.NX,
		NY:   mask.NY,
		NZ:   mask.NZ,
	}
	for j, idx := range idxs {
		out.Data[idx] = variances[j] >= threshold
	}

	return out, nil
}

// temporalVariances computes each listed voxel's population variance over
// the time axis.
func temporalVariances(vol *models.Volume4D, idxs []int) []float64 {
	variances := make([]float64, len(idxs))
	if vol.NT == 0 {
		return variances
	}

	nVox := vol.VoxelsPerVolume()
	means := make([]float64, len(idxs))
	for t := 0; t < vol.NT; t++ {
		volume := vol.Data[t*nVox : (t+1)*nVox]
		for j, idx := range idxs {
			means[j] += volume[idx]
		}
	}
	for j := range means {
		means[j] /= float64(vol.NT)
	}

	for t := 0; t < vol.NT; t++ {
		volume := vol.Data[t*nVox : (t+1)*nVox]
		for j, idx := range idxs {
			d := volume[idx] - means[j]
			variances[j] += d * d
		}
	}
	for j := range variances {
		variances[j] /= float64(vol.NT)
	}

	return variances
}
