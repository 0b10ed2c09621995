// Package factor ranks securities by composite factor score. The model is
// principal-factor extraction from the correlation matrix with varimax
// rotation; the factor count is the smallest set reaching the configured
// cumulative variance contribution. Factor scores come from least-squares
// regression of the standardized data on the rotated loadings, and the
// composite score weighs them by each factor's variance contribution.
package factor

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/quantfan/asharescan/internal/domain"
)

// ErrInsufficientData flags windows too small to factor; callers skip the
// quarter.
var ErrInsufficientData = errors.New("insufficient data for factor analysis")

// Options bound the extraction.
type Options struct {
	MinCumVar  float64 // cumulative variance contribution target, (0,1]
	MaxFactors int     // upper bound on extracted factors
}

// Result is one quarter's factor model and ranking.
type Result struct {
	Indicators []string
	Factors    int
	Loadings   *mat.Dense // indicators x factors, varimax-rotated
	Weights    []float64  // per-factor variance contribution, sums to 1
	Rankings   []domain.Ranking
}

// Analyze runs the factor model on a window and ranks its securities by
// composite score, descending.
func Analyze(w *Window, opts Options) (*Result, error) {
	n := len(w.Data)
	p := len(w.Indicators)
	if n < 2 || p < 2 {
		return nil, fmt.Errorf("%w: %d securities x %d indicators", ErrInsufficientData, n, p)
	}
	if opts.MinCumVar <= 0 || opts.MinCumVar > 1 {
		return nil, fmt.Errorf("min cumulative variance %.2f out of (0,1]", opts.MinCumVar)
	}
	kmax := opts.MaxFactors
	if kmax < 1 || kmax > p {
		kmax = p
	}

	z := standardize(w.Data)

	// First pass at the factor ceiling decides how many factors carry the
	// target share of variance.
	loadings, weights, err := extract(z, kmax)
	if err != nil {
		return nil, err
	}
	k := 1
	cum := 0.0
	for j, wgt := range weights {
		cum += wgt
		if cum >= opts.MinCumVar {
			k = j + 1
			break
		}
		k = j + 1
	}

	if k < kmax {
		loadings, weights, err = extract(z, k)
		if err != nil {
			return nil, err
		}
	}

	scores, err := regressionScores(z, loadings)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Indicators: append([]string(nil), w.Indicators...),
		Factors:    k,
		Loadings:   loadings,
		Weights:    weights,
	}
	for i, sec := range w.Securities {
		composite := 0.0
		for j, wgt := range weights {
			composite += scores.At(i, j) * wgt
		}
		res.Rankings = append(res.Rankings, domain.Ranking{Security: sec, Score: composite})
	}
	sort.SliceStable(res.Rankings, func(a, b int) bool {
		return res.Rankings[a].Score > res.Rankings[b].Score
	})
	return res, nil
}

// standardize z-scores each column. Zero-variance columns become all
// zeros rather than NaN.
func standardize(data [][]float64) *mat.Dense {
	n := len(data)
	p := len(data[0])
	z := mat.NewDense(n, p, nil)
	for j := 0; j < p; j++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += data[i][j]
		}
		mean := sum / float64(n)
		ss := 0.0
		for i := 0; i < n; i++ {
			d := data[i][j] - mean
			ss += d * d
		}
		std := math.Sqrt(ss / float64(n))
		for i := 0; i < n; i++ {
			if std == 0 {
				z.Set(i, j, 0)
				continue
			}
			z.Set(i, j, (data[i][j]-mean)/std)
		}
	}
	return z
}

// extract pulls k principal factors from the correlation matrix of z and
// varimax-rotates them. Returned weights are normalized variance
// contributions ordered by descending contribution.
func extract(z *mat.Dense, k int) (*mat.Dense, []float64, error) {
	n, p := z.Dims()

	// Correlation matrix of standardized data.
	corr := mat.NewSymDense(p, nil)
	for a := 0; a < p; a++ {
		for b := a; b < p; b++ {
			s := 0.0
			for i := 0; i < n; i++ {
				s += z.At(i, a) * z.At(i, b)
			}
			corr.SetSym(a, b, s/float64(n))
		}
	}

	var eig mat.EigenSym
	if !eig.Factorize(corr, true) {
		return nil, nil, errors.New("eigen decomposition failed")
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// gonum returns eigenvalues ascending; take the top k.
	loadings := mat.NewDense(p, k, nil)
	for j := 0; j < k; j++ {
		src := p - 1 - j
		ev := vals[src]
		if ev < 0 {
			ev = 0
		}
		scale := math.Sqrt(ev)
		for i := 0; i < p; i++ {
			loadings.Set(i, j, vecs.At(i, src)*scale)
		}
	}

	if k > 1 {
		loadings = varimax(loadings, 100, 1e-6)
	}

	// Variance contribution per rotated factor.
	ssl := make([]float64, k)
	total := 0.0
	for j := 0; j < k; j++ {
		for i := 0; i < p; i++ {
			l := loadings.At(i, j)
			ssl[j] += l * l
		}
		total += ssl[j]
	}
	if total == 0 {
		return nil, nil, fmt.Errorf("%w: degenerate loadings", ErrInsufficientData)
	}

	// Order factors by contribution so the cumulative cut is well defined.
	order := make([]int, k)
	for j := range order {
		order[j] = j
	}
	sort.SliceStable(order, func(a, b int) bool { return ssl[order[a]] > ssl[order[b]] })

	sorted := mat.NewDense(p, k, nil)
	weights := make([]float64, k)
	for pos, j := range order {
		weights[pos] = ssl[j] / total
		for i := 0; i < p; i++ {
			sorted.Set(i, pos, loadings.At(i, j))
		}
	}
	return sorted, weights, nil
}

// regressionScores computes F = Z L (L'L)^-1.
func regressionScores(z, loadings *mat.Dense) (*mat.Dense, error) {
	var ltl mat.Dense
	ltl.Mul(loadings.T(), loadings)
	var inv mat.Dense
	if err := inv.Inverse(&ltl); err != nil {
		return nil, fmt.Errorf("loadings are rank deficient: %w", err)
	}
	var proj mat.Dense
	proj.Mul(loadings, &inv)
	var scores mat.Dense
	scores.Mul(z, &proj)
	return &scores, nil
}
