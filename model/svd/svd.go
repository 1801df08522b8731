// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package svd

import (
	"math"
	"math/rand"
	"time"

	"github.com/gorse-io/newsrec/base/log"
	"github.com/gorse-io/newsrec/config"
	"github.com/gorse-io/newsrec/dataset"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/lapack/lapack64"
	"gonum.org/v1/gonum/mat"
)

// Epsilon is added to row norms before normalization.
const Epsilon = 1e-8

// exactLimit is the largest number of matrix cells decomposed by the exact solver in auto mode.
const exactLimit = 1 << 22

type Options struct {
	Solver          string
	Seed            int64
	Oversamples     int
	PowerIterations int
	Jobs            int
	// Diagnostics receives the cumulative explained variance ratio of a fresh decomposition. LogDiagnostics is
	// used when it is nil.
	Diagnostics func(rank int, cumulative []float64)
}

func NewOptions(cfg config.FactorizationConfig) Options {
	return Options{
		Solver:          cfg.Solver,
		Seed:            cfg.Seed,
		Oversamples:     cfg.Oversamples,
		PowerIterations: cfg.PowerIterations,
		Jobs:            cfg.Jobs,
	}
}

// Factors are row-normalized latent factors of users and items.
type Factors struct {
	Rank                   int
	UserFactors            [][]float32
	ItemFactors            [][]float32
	ExplainedVarianceRatio []float64
}

// Decompose computes a truncated singular value decomposition of the interaction matrix. User factors are left
// singular vectors scaled by singular values and item factors are right singular vectors. Both are normalized
// to unit length row by row. The largest-magnitude entry of every right singular vector is made positive, so
// the result does not depend on the sign convention of the solver.
func Decompose(m *dataset.Interactions, rank int, opts Options) (*Factors, error) {
	rows, cols := m.Shape()
	if rank < 1 || rank > min(rows, cols) {
		return nil, errors.NotValidf("rank %d for a %dx%d matrix", rank, rows, cols)
	}
	solver := opts.Solver
	if solver == "" || solver == config.SolverAuto {
		if rows*cols <= exactLimit {
			solver = config.SolverExact
		} else {
			solver = config.SolverRandomized
		}
	}
	start := time.Now()
	var (
		u, v  *mat.Dense
		sigma []float64
		err   error
	)
	switch solver {
	case config.SolverExact:
		u, sigma, v, err = exact(m, rank)
	case config.SolverRandomized:
		u, sigma, v, err = randomized(m, rank, opts)
	default:
		return nil, errors.NotSupportedf("solver %s", solver)
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	flipSigns(u, v)

	// user factors = U * S
	for j := 0; j < rank; j++ {
		for i := 0; i < rows; i++ {
			u.Set(i, j, u.At(i, j)*sigma[j])
		}
	}
	factors := &Factors{
		Rank:                   rank,
		ExplainedVarianceRatio: explainedVarianceRatio(m, u),
		UserFactors:            normalizeRows(u),
		ItemFactors:            normalizeRows(v),
	}
	log.Logger().Info("complete truncated svd",
		zap.String("solver", solver),
		zap.Int("rank", rank),
		zap.Int("n_users", rows),
		zap.Int("n_items", cols),
		zap.Int("nnz", m.NNZ()),
		zap.Duration("duration", time.Since(start)))
	diagnostics := opts.Diagnostics
	if diagnostics == nil {
		diagnostics = LogDiagnostics
	}
	diagnostics(rank, Cumulative(factors.ExplainedVarianceRatio))
	return factors, nil
}

// exact decomposes the dense matrix. It returns U (rows x rank), the singular values and V (cols x rank).
func exact(m *dataset.Interactions, rank int) (*mat.Dense, []float64, *mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(m.Dense(), mat.SVDThin); !ok {
		return nil, nil, nil, errors.New("svd factorization failed")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	sigma := svd.Values(nil)
	return columns(&u, rank), sigma[:rank], columns(&v, rank), nil
}

// randomized implements the randomized range finder of Halko, Martinsson and Tropp with power iterations.
func randomized(m *dataset.Interactions, rank int, opts Options) (*mat.Dense, []float64, *mat.Dense, error) {
	rows, cols := m.Shape()
	size := min(rank+opts.Oversamples, rows, cols)
	jobs := max(opts.Jobs, 1)
	t := m.Transpose()

	// Gaussian sketch
	rng := rand.New(rand.NewSource(opts.Seed))
	omega := mat.NewDense(cols, size, nil)
	for i := 0; i < cols; i++ {
		for j := 0; j < size; j++ {
			omega.Set(i, j, rng.NormFloat64())
		}
	}
	y, err := m.MulDense(omega, jobs)
	if err != nil {
		return nil, nil, nil, errors.Trace(err)
	}
	for i := 0; i < opts.PowerIterations; i++ {
		z, err := t.MulDense(orthonormalize(y), jobs)
		if err != nil {
			return nil, nil, nil, errors.Trace(err)
		}
		y, err = m.MulDense(orthonormalize(z), jobs)
		if err != nil {
			return nil, nil, nil, errors.Trace(err)
		}
	}
	q := orthonormalize(y)

	// A ≈ Q B with B = Qᵀ A. Decompose Bᵀ = Aᵀ Q = U_b S V_bᵀ, then A ≈ (Q V_b) S U_bᵀ.
	bt, err := t.MulDense(q, jobs)
	if err != nil {
		return nil, nil, nil, errors.Trace(err)
	}
	var svd mat.SVD
	if ok := svd.Factorize(bt, mat.SVDThin); !ok {
		return nil, nil, nil, errors.New("svd factorization of the projected matrix failed")
	}
	var ub, vb, u mat.Dense
	svd.UTo(&ub)
	svd.VTo(&vb)
	u.Mul(q, &vb)
	sigma := svd.Values(nil)
	return columns(&u, rank), sigma[:rank], columns(&ub, rank), nil
}

// orthonormalize returns an orthonormal basis of the column space of a tall matrix by Householder QR.
func orthonormalize(a *mat.Dense) *mat.Dense {
	q := mat.DenseCopyOf(a)
	raw := q.RawMatrix()
	tau := make([]float64, raw.Cols)
	work := make([]float64, 1)
	lapack64.Geqrf(raw, tau, work, -1)
	work = make([]float64, int(work[0]))
	lapack64.Geqrf(raw, tau, work, len(work))
	lapack64.Orgqr(raw, tau, work[:1], -1)
	if n := int(work[0]); n > len(work) {
		work = make([]float64, n)
	}
	lapack64.Orgqr(raw, tau, work, len(work))
	return q
}

// columns copies the first n columns of a matrix.
func columns(a *mat.Dense, n int) *mat.Dense {
	r, _ := a.Dims()
	return mat.DenseCopyOf(a.Slice(0, r, 0, n))
}

// flipSigns makes the largest-magnitude entry of every column of v positive and flips u accordingly.
func flipSigns(u, v *mat.Dense) {
	rowsU, _ := u.Dims()
	rowsV, n := v.Dims()
	for j := 0; j < n; j++ {
		largest := 0
		for i := 1; i < rowsV; i++ {
			if math.Abs(v.At(i, j)) > math.Abs(v.At(largest, j)) {
				largest = i
			}
		}
		if v.At(largest, j) >= 0 {
			continue
		}
		for i := 0; i < rowsV; i++ {
			v.Set(i, j, -v.At(i, j))
		}
		for i := 0; i < rowsU; i++ {
			u.Set(i, j, -u.At(i, j))
		}
	}
}

// explainedVarianceRatio divides the variance of every transformed column by the total variance of the matrix.
func explainedVarianceRatio(m *dataset.Interactions, transformed *mat.Dense) []float64 {
	var total float64
	for _, v := range m.ColumnVariance() {
		total += v
	}
	rows, n := transformed.Dims()
	ratios := make([]float64, n)
	if total == 0 {
		return ratios
	}
	for j := range ratios {
		var sum, sumSquare float64
		for i := 0; i < rows; i++ {
			x := transformed.At(i, j)
			sum += x
			sumSquare += x * x
		}
		mean := sum / float64(rows)
		ratios[j] = max(sumSquare/float64(rows)-mean*mean, 0) / total
	}
	return ratios
}

// normalizeRows converts a matrix to float32 rows of unit length.
func normalizeRows(a *mat.Dense) [][]float32 {
	r, c := a.Dims()
	result := make([][]float32, r)
	for i := range result {
		row := a.RawRowView(i)
		norm := floats.Norm(row, 2) + Epsilon
		result[i] = make([]float32, c)
		for j, x := range row {
			result[i][j] = float32(x / norm)
		}
	}
	return result
}

// Cumulative returns the running sum of explained variance ratios.
func Cumulative(ratios []float64) []float64 {
	cumulative := make([]float64, len(ratios))
	var sum float64
	for i, ratio := range ratios {
		sum += ratio
		cumulative[i] = sum
	}
	return cumulative
}

// ComponentsFor returns the number of components whose cumulative ratio reaches threshold, or -1.
func ComponentsFor(cumulative []float64, threshold float64) int {
	for i, c := range cumulative {
		if c >= threshold {
			return i + 1
		}
	}
	return -1
}

// LogDiagnostics logs the total explained variance and the number of components explaining 80% of it.
func LogDiagnostics(rank int, cumulative []float64) {
	var total float64
	if len(cumulative) > 0 {
		total = cumulative[len(cumulative)-1]
	}
	log.Logger().Info("explained variance of latent factors",
		zap.Int("rank", rank),
		zap.Float64("cumulative_explained_variance", total),
		zap.Int("n_components_80", ComponentsFor(cumulative, 0.8)))
}
