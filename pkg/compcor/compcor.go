package compcor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/SpinePrep/SpinePrep/internal/models"
)

// signEps is the magnitude below which a component element is treated as
// zero when resolving the SVD sign ambiguity.
const signEps = 1e-10

// FitPCA fits a deterministic PCA over the timeseries matrix: each voxel
// column is centered, the economy-size SVD ts = U*S*Vt is computed, and
// the first K columns of U are returned as temporal principal components,
// with K = min(V, T-1, nComponents).
//
// The variance-explained vector holds S[k]^2 divided by the sum of all
// squared singular values, so it is non-increasing in k and its order
// matches the component columns. If the total variance is zero the
// vector is all zeros. If K <= 0 (for example V = 0) the result is a
// (T, 0) component matrix and an empty vector, not an error.
//
// Singular vectors are sign-ambiguous across LAPACK backends; to make the
// output platform-deterministic, any component whose first element of
// magnitude above 1e-10 is negative has its whole timecourse negated.
func FitPCA(ts *models.Timeseries, nComponents int) (*models.Components, []float64, error) {
	k := nComponents
	if ts.V < k {
		k = ts.V
	}
	if ts.T-1 < k {
		k = ts.T - 1
	}

	if k <= 0 {
		return &models.Components{Data: []float64{}, T: ts.T, K: 0}, []float64{}, nil
	}

	// Center each voxel column. The extractor may already have demeaned
	// the matrix, but FitPCA does not assume it.
	centered := make([]float64, len(ts.Data))
	copy(centered, ts.Data)
	cts := &models.Timeseries{Data: centered, T: ts.T, V: ts.V}
	means := columnMeans(cts)
	for t := 0; t < cts.T; t++ {
		row := centered[t*cts.V : (t+1)*cts.V]
		for v := range row {
			row[v] -= means[v]
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(mat.NewDense(cts.T, cts.V, centered), mat.SVDThin); !ok {
		return nil, nil, fmt.Errorf("compcor: SVD factorization failed for %dx%d timeseries", cts.T, cts.V)
	}

	var u mat.Dense
	svd.UTo(&u)
	singular := svd.Values(nil)

	comps := &models.Components{
		Data: make([]float64, ts.T*k),
		T:    ts.T,
		K:    k,
	}
	for t := 0; t < ts.T; t++ {
		for j := 0; j < k; j++ {
			comps.Data[t*k+j] = u.At(t, j)
		}
	}

	// Variance ratio over ALL singular values, not just the retained K.
	var total float64
	for _, s := range singular {
		total += s * s
	}
	varExplained := make([]float64, k)
	if total > 0 {
		for j := 0; j < k; j++ {
			varExplained[j] = singular[j] * singular[j] / total
		}
	}

	enforceSignConvention(comps)

	return comps, varExplained, nil
}

// enforceSignConvention flips each component column whose first element
// with magnitude above signEps is negative, so repeated fits and
// different BLAS backends produce identical timecourses.
func enforceSignConvention(c *models.Components) {
	for j := 0; j < c.K; j++ {
		for t := 0; t < c.T; t++ {
			val := c.Data[t*c.K+j]
			if math.Abs(val) <= signEps {
				continue
			}
			if val < 0 {
				for i := 0; i < c.T; i++ {
					c.Data[i*c.K+j] = -c.Data[i*c.K+j]
				}
			}
			break
		}
	}
}
