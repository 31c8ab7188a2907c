package compcor

import (
	"errors"
	"math"
	"testing"

	"github.com/SpinePrep/SpinePrep/internal/models"
)

// makeVolume builds a Volume4D from per-timepoint flat volumes.
func makeVolume(t *testing.T, nx, ny, nz int, vols [][]float64) *models.Volume4D {
	t.Helper()
	data := make([]float64, 0, nx*ny*nz*len(vols))
	for _, v := range vols {
		data = append(data, v...)
	}
	vol, err := models.NewVolume4D(data, nx, ny, nz, len(vols))
	if err != nil {
		t.Fatalf("failed to build volume: %v", err)
	}
	return vol
}

func fullMask(nx, ny, nz int) *models.Mask3D {
	data := make([]bool, nx*ny*nz)
	for i := range data {
		data[i] = true
	}
	return &models.Mask3D{Data: data, NX: nx, NY: ny, NZ: nz}
}

func TestExtractTimeseriesShape(t *testing.T) {
	vol := makeVolume(t, 2, 2, 1, [][]float64{
		{1, 2, 3, 4},
		{5, 6, 7, 8},
		{9, 10, 11, 12},
	})
	mask := &models.Mask3D{Data: []bool{true, false, true, false}, NX: 2, NY: 2, NZ: 1}

	ts, err := ExtractTimeseries(vol, mask, false)
	if err != nil {
		t.Fatalf("extraction failed: %v", err)
	}
	if ts.T != 3 || ts.V != 2 {
		t.Fatalf("got shape (%d, %d), want (3, 2)", ts.T, ts.V)
	}

	// Columns follow ascending flat voxel index: voxels 0 and 2.
	want := []float64{1, 3, 5, 7, 9, 11}
	for i, w := range want {
		if ts.Data[i] != w {
			t.Errorf("ts.Data[%d] = %v, want %v", i, ts.Data[i], w)
		}
	}
}

func TestExtractTimeseriesEmptyMask(t *testing.T) {
	vol := makeVolume(t, 2, 1, 1, [][]float64{{1, 2}})
	empty := &models.Mask3D{Data: make([]bool, 2), NX: 2, NY: 1, NZ: 1}

	_, err := ExtractTimeseries(vol, empty, false)
	if !errors.Is(err, models.ErrEmptySelection) {
		t.Fatalf("got error %v, want ErrEmptySelection", err)
	}
}

func TestExtractTimeseriesShapeMismatch(t *testing.T) {
	vol := makeVolume(t, 2, 1, 1, [][]float64{{1, 2}})
	mask := &models.Mask3D{Data: []bool{true, true, true}, NX: 3, NY: 1, NZ: 1}

	_, err := ExtractTimeseries(vol, mask, false)
	if !errors.Is(err, models.ErrShapeMismatch) {
		t.Fatalf("got error %v, want ErrShapeMismatch", err)
	}
}

func TestExtractTimeseriesStandardize(t *testing.T) {
	// Voxel 0 varies, voxel 1 is constant.
	vol := makeVolume(t, 2, 1, 1, [][]float64{
		{1, 7},
		{3, 7},
		{5, 7},
	})

	ts, err := ExtractTimeseries(vol, fullMask(2, 1, 1), true)
	if err != nil {
		t.Fatalf("extraction failed: %v", err)
	}

	// Varying column: demeaned and unit-std.
	var mean, sumSq float64
	for i := 0; i < ts.T; i++ {
		mean += ts.At(i, 0)
	}
	mean /= float64(ts.T)
	if math.Abs(mean) > 1e-12 {
		t.Errorf("standardized column mean = %v, want 0", mean)
	}
	for i := 0; i < ts.T; i++ {
		sumSq += ts.At(i, 0) * ts.At(i, 0)
	}
	std := math.Sqrt(sumSq / float64(ts.T))
	if math.Abs(std-1.0) > 1e-12 {
		t.Errorf("standardized column std = %v, want 1", std)
	}

	// Constant column: demeaned only, not divided by zero.
	for i := 0; i < ts.T; i++ {
		if v := ts.At(i, 1); v != 0 {
			t.Errorf("constant column value = %v, want 0", v)
		}
	}
}

// makeTimeseries builds a T x V matrix from rows.
func makeTimeseries(rows [][]float64) *models.Timeseries {
	v := len(rows[0])
	data := make([]float64, 0, len(rows)*v)
	for _, r := range rows {
		data = append(data, r...)
	}
	return &models.Timeseries{Data: data, T: len(rows), V: v}
}

func TestFitPCADeterminism(t *testing.T) {
	ts := makeTimeseries([][]float64{
		{1.0, 2.5, -0.5},
		{2.0, 1.0, 0.5},
		{0.5, 3.0, -1.0},
		{1.5, 2.0, 0.0},
		{3.0, 0.5, 1.5},
	})

	c1, v1, err := FitPCA(ts, 3)
	if err != nil {
		t.Fatalf("first fit failed: %v", err)
	}
	c2, v2, err := FitPCA(ts, 3)
	if err != nil {
		t.Fatalf("second fit failed: %v", err)
	}

	if len(c1.Data) != len(c2.Data) {
		t.Fatalf("component sizes differ: %d vs %d", len(c1.Data), len(c2.Data))
	}
	for i := range c1.Data {
		if c1.Data[i] != c2.Data[i] {
			t.Fatalf("components differ at %d: %v vs %v", i, c1.Data[i], c2.Data[i])
		}
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("variance explained differs at %d: %v vs %v", i, v1[i], v2[i])
		}
	}
}

func TestFitPCAVarianceNonIncreasing(t *testing.T) {
	ts := makeTimeseries([][]float64{
		{1, 5, 2, 0},
		{2, 3, 1, 1},
		{0, 4, 3, -1},
		{3, 2, 0, 2},
		{1, 6, 2, 0},
		{2, 1, 1, 3},
	})

	_, varExplained, err := FitPCA(ts, 4)
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	for k := 1; k < len(varExplained); k++ {
		if varExplained[k] > varExplained[k-1] {
			t.Errorf("variance explained increases at %d: %v > %v", k, varExplained[k], varExplained[k-1])
		}
	}
	for k, v := range varExplained {
		if v < 0 || v > 1 {
			t.Errorf("variance explained[%d] = %v, want within [0, 1]", k, v)
		}
	}
}

func TestFitPCASignConvention(t *testing.T) {
	ts := makeTimeseries([][]float64{
		{-3, -6},
		{1, 2},
		{2, 4},
	})

	comps, _, err := FitPCA(ts, 2)
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}

	for k := 0; k < comps.K; k++ {
		for i := 0; i < comps.T; i++ {
			v := comps.At(i, k)
			if math.Abs(v) <= 1e-10 {
				continue
			}
			if v < 0 {
				t.Errorf("component %d first significant element %v is negative", k, v)
			}
			break
		}
	}
}

func TestFitPCAComponentLimit(t *testing.T) {
	// T=4, V=2: K is bounded by min(V, T-1, requested) = 2.
	ts := makeTimeseries([][]float64{
		{1, 0},
		{0, 1},
		{1, 1},
		{2, 0},
	})

	comps, varExplained, err := FitPCA(ts, 10)
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	if comps.K != 2 {
		t.Errorf("K = %d, want 2", comps.K)
	}
	if len(varExplained) != 2 {
		t.Errorf("variance explained length = %d, want 2", len(varExplained))
	}
}

func TestFitPCARankOne(t *testing.T) {
	// Both columns are multiples of the same timecourse, so the first
	// component explains all variance.
	ts := makeTimeseries([][]float64{
		{1, 2},
		{2, 4},
		{3, 6},
		{4, 8},
	})

	_, varExplained, err := FitPCA(ts, 2)
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	if math.Abs(varExplained[0]-1.0) > 1e-9 {
		t.Errorf("variance explained[0] = %v, want 1.0 for rank-1 data", varExplained[0])
	}
}

func TestFitPCAZeroVariance(t *testing.T) {
	ts := makeTimeseries([][]float64{
		{5, 5},
		{5, 5},
		{5, 5},
	})

	_, varExplained, err := FitPCA(ts, 2)
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	for k, v := range varExplained {
		if v != 0 {
			t.Errorf("variance explained[%d] = %v, want 0 for constant data", k, v)
		}
	}
}

func TestFitPCANoComponents(t *testing.T) {
	ts := &models.Timeseries{Data: []float64{}, T: 5, V: 0}

	comps, varExplained, err := FitPCA(ts, 3)
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	if comps.T != 5 || comps.K != 0 {
		t.Errorf("got shape (%d, %d), want (5, 0)", comps.T, comps.K)
	}
	if len(varExplained) != 0 {
		t.Errorf("variance explained length = %d, want 0", len(varExplained))
	}
}

func TestSelectHighVarianceVoxelsTarget(t *testing.T) {
	// 100 voxels in a 10x10x1 grid with mostly flat timecourses.
	nx, ny, nz, nt := 10, 10, 1, 8
	vols := make([][]float64, nt)
	for tp := range vols {
		v := make([]float64, nx*ny*nz)
		for i := range v {
			v[i] = float64(i) * 0.001 * float64(tp%2)
		}
		vols[tp] = v
	}
	// Voxel 37 has far higher variance than anything else.
	for tp := range vols {
		vols[tp][37] = float64(tp*tp) * 100
	}
	vol := makeVolume(t, nx, ny, nz, vols)

	selected, err := SelectHighVarianceVoxels(vol, fullMask(nx, ny, nz), 5)
	if err != nil {
		t.Fatalf("selection failed: %v", err)
	}
	if n := selected.Count(); n < 5 {
		t.Errorf("selected %d voxels, want at least 5", n)
	}
	if !selected.Data[37] {
		t.Error("highest-variance voxel was not selected")
	}
}

func TestSelectHighVarianceVoxelsIncludesTies(t *testing.T) {
	// Four voxels: two share the identical top variance; topk of 25%
	// targets 1 voxel, but the tie means both must be kept.
	vol := makeVolume(t, 4, 1, 1, [][]float64{
		{0, 0, 0, 0},
		{10, 10, 1, 0},
	})

	selected, err := SelectHighVarianceVoxels(vol, fullMask(4, 1, 1), 25)
	if err != nil {
		t.Fatalf("selection failed: %v", err)
	}
	if !selected.Data[0] || !selected.Data[1] {
		t.Errorf("tied top-variance voxels should both be selected, got %v", selected.Data)
	}
	if selected.Data[2] || selected.Data[3] {
		t.Errorf("sub-threshold voxels should not be selected, got %v", selected.Data)
	}
}

func TestSelectHighVarianceVoxelsEmptyMask(t *testing.T) {
	vol := makeVolume(t, 2, 1, 1, [][]float64{{1, 2}})
	empty := &models.Mask3D{Data: make([]bool, 2), NX: 2, NY: 1, NZ: 1}

	_, err := SelectHighVarianceVoxels(vol, empty, 5)
	if !errors.Is(err, models.ErrEmptySelection) {
		t.Fatalf("got error %v, want ErrEmptySelection", err)
	}
}

func TestSelectHighVarianceVoxelsAtLeastOne(t *testing.T) {
	vol := makeVolume(t, 3, 1, 1, [][]float64{
		{1, 2, 3},
		{2, 4, 3},
	})

	selected, err := SelectHighVarianceVoxels(vol, fullMask(3, 1, 1), 0.1)
	if err != nil {
		t.Fatalf("selection failed: %v", err)
	}
	if selected.Count() < 1 {
		t.Error("selection must keep at least one voxel")
	}
}
