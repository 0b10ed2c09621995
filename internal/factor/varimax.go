package factor

import (
	"gonum.org/v1/gonum/mat"
)

// varimax applies Kaiser's varimax rotation to a loadings matrix. The
// rotation maximizes the variance of squared loadings per factor, driving
// each indicator toward one dominant factor.
func varimax(loadings *mat.Dense, maxIter int, tol float64) *mat.Dense {
	p, k := loadings.Dims()

	rot := mat.NewDense(k, k, nil)
	for i := 0; i < k; i++ {
		rot.Set(i, i, 1)
	}

	prev := 0.0
	for iter := 0; iter < maxIter; iter++ {
		var lam mat.Dense
		lam.Mul(loadings, rot)

		// B = L' (Λ^3 − Λ diag(colsums(Λ^2))/p)
		target := mat.NewDense(p, k, nil)
		for j := 0; j < k; j++ {
			colSq := 0.0
			for i := 0; i < p; i++ {
				v := lam.At(i, j)
				colSq += v * v
			}
			mean := colSq / float64(p)
			for i := 0; i < p; i++ {
				v := lam.At(i, j)
				target.Set(i, j, v*v*v-v*mean)
			}
		}
		var b mat.Dense
		b.Mul(loadings.T(), target)

		var svd mat.SVD
		if !svd.Factorize(&b, mat.SVDThin) {
			break
		}
		var u, v mat.Dense
		svd.UTo(&u)
		svd.VTo(&v)
		rot.Mul(&u, v.T())

		sum := 0.0
		for _, s := range svd.Values(nil) {
			sum += s
		}
		if prev != 0 && sum/prev < 1+tol {
			break
		}
		prev = sum
	}

	var out mat.Dense
	out.Mul(loadings, rot)
	return &out
}
