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
package dataset

import (
	"context"
	"slices"

	"github.com/gorse-io/newsrec/common/parallel"
	"github.com/juju/errors"
	"gonum.org/v1/gonum/mat"
)

// Interactions is a user-item click frequency matrix in compressed sparse row format. Rows and columns are
// addressed by raw user and item ids, so the shape is (max user id + 1, max item id + 1).
type Interactions struct {
	numRows int
	numCols int
	indptr  []int
	indices []int32
	values  []float32
}

// NewInteractions counts clicks for every (user, item) pair. Column indices are sorted inside each row.
func NewInteractions(clicks []Click) (*Interactions, error) {
	if len(clicks) == 0 {
		return nil, errors.NotValidf("empty clicks")
	}
	pairs := make([][2]int32, len(clicks))
	var maxUser, maxItem int32
	for i, click := range clicks {
		if click.UserId < 0 || click.ItemId < 0 {
			return nil, errors.NotValidf("click (user %d, item %d)", click.UserId, click.ItemId)
		}
		pairs[i] = [2]int32{click.UserId, click.ItemId}
		maxUser = max(maxUser, click.UserId)
		maxItem = max(maxItem, click.ItemId)
	}
	slices.SortFunc(pairs, func(a, b [2]int32) int {
		if a[0] != b[0] {
			return int(a[0] - b[0])
		}
		return int(a[1] - b[1])
	})
	m := &Interactions{
		numRows: int(maxUser) + 1,
		numCols: int(maxItem) + 1,
		indptr:  make([]int, int(maxUser)+2),
	}
	for i, pair := range pairs {
		if i > 0 && pair == pairs[i-1] {
			m.values[len(m.values)-1]++
			continue
		}
		m.indices = append(m.indices, pair[1])
		m.values = append(m.values, 1)
		m.indptr[pair[0]+1]++
	}
	for i := 1; i < len(m.indptr); i++ {
		m.indptr[i] += m.indptr[i-1]
	}
	return m, nil
}

// Shape returns the number of rows and columns.
func (m *Interactions) Shape() (int, int) {
	return m.numRows, m.numCols
}

// NNZ returns the number of stored entries.
func (m *Interactions) NNZ() int {
	return len(m.indices)
}

// Row returns the column indices and values of a row. Rows out of range are empty.
func (m *Interactions) Row(i int32) ([]int32, []float32) {
	if i < 0 || int(i) >= m.numRows {
		return nil, nil
	}
	begin, end := m.indptr[i], m.indptr[i+1]
	return m.indices[begin:end], m.values[begin:end]
}

// Transpose returns the item-user matrix.
func (m *Interactions) Transpose() *Interactions {
	t := &Interactions{
		numRows: m.numCols,
		numCols: m.numRows,
		indptr:  make([]int, m.numCols+1),
		indices: make([]int32, len(m.indices)),
		values:  make([]float32, len(m.values)),
	}
	for _, j := range m.indices {
		t.indptr[j+1]++
	}
	for i := 1; i < len(t.indptr); i++ {
		t.indptr[i] += t.indptr[i-1]
	}
	next := slices.Clone(t.indptr[:m.numCols])
	for i := 0; i < m.numRows; i++ {
		for k := m.indptr[i]; k < m.indptr[i+1]; k++ {
			j := m.indices[k]
			t.indices[next[j]] = int32(i)
			t.values[next[j]] = m.values[k]
			next[j]++
		}
	}
	return t
}

// MulDense computes m * x. Rows of the result are computed by up to jobs goroutines.
func (m *Interactions) MulDense(x *mat.Dense, jobs int) (*mat.Dense, error) {
	r, c := x.Dims()
	if r != m.numCols {
		return nil, errors.Errorf("dimension mismatch: (%d, %d) * (%d, %d)", m.numRows, m.numCols, r, c)
	}
	result := mat.NewDense(m.numRows, c, nil)
	ranges := parallel.Ranges(m.numRows, jobs)
	err := parallel.Parallel(context.Background(), len(ranges), jobs, func(_, jobId int) error {
		for i := ranges[jobId][0]; i < ranges[jobId][1]; i++ {
			dst := result.RawRowView(i)
			for k := m.indptr[i]; k < m.indptr[i+1]; k++ {
				value := float64(m.values[k])
				for l, v := range x.RawRowView(int(m.indices[k])) {
					dst[l] += value * v
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return result, nil
}

// Dense converts the matrix to a dense matrix.
func (m *Interactions) Dense() *mat.Dense {
	d := mat.NewDense(m.numRows, m.numCols, nil)
	for i := 0; i < m.numRows; i++ {
		for k := m.indptr[i]; k < m.indptr[i+1]; k++ {
			d.Set(i, int(m.indices[k]), float64(m.values[k]))
		}
	}
	return d
}

// ColumnVariance returns the population variance of every column, implicit zeros included.
func (m *Interactions) ColumnVariance() []float64 {
	sum := make([]float64, m.numCols)
	sumSquare := make([]float64, m.numCols)
	for k, j := range m.indices {
		v := float64(m.values[k])
		sum[j] += v
		sumSquare[j] += v * v
	}
	n := float64(m.numRows)
	variance := make([]float64, m.numCols)
	for j := range variance {
		mean := sum[j] / n
		variance[j] = max(sumSquare[j]/n-mean*mean, 0)
	}
	return variance
}
