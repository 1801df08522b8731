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
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func clicksOf(pairs ...[2]int32) []Click {
	clicks := make([]Click, len(pairs))
	for i, pair := range pairs {
		clicks[i] = Click{UserId: pair[0], ItemId: pair[1]}
	}
	return clicks
}

func TestNewInteractions(t *testing.T) {
	m, err := NewInteractions(clicksOf(
		[2]int32{0, 0}, [2]int32{0, 1}, [2]int32{0, 0},
		[2]int32{2, 3}, [2]int32{2, 1}, [2]int32{2, 3}, [2]int32{2, 3},
	))
	assert.NoError(t, err)
	rows, cols := m.Shape()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 4, cols)
	assert.Equal(t, 4, m.NNZ())

	indices, values := m.Row(0)
	assert.Equal(t, []int32{0, 1}, indices)
	assert.Equal(t, []float32{2, 1}, values)
	indices, values = m.Row(1)
	assert.Empty(t, indices)
	assert.Empty(t, values)
	indices, values = m.Row(2)
	assert.Equal(t, []int32{1, 3}, indices)
	assert.Equal(t, []float32{1, 3}, values)
	indices, _ = m.Row(3)
	assert.Empty(t, indices)
	indices, _ = m.Row(-1)
	assert.Empty(t, indices)

	assert.Equal(t, mat.NewDense(3, 4, []float64{
		2, 1, 0, 0,
		0, 0, 0, 0,
		0, 1, 0, 3,
	}), m.Dense())
}

func TestNewInteractionsInvalid(t *testing.T) {
	_, err := NewInteractions(nil)
	assert.Error(t, err)
	_, err = NewInteractions(clicksOf([2]int32{-1, 0}))
	assert.Error(t, err)
}

func TestTranspose(t *testing.T) {
	m, err := NewInteractions(clicksOf([2]int32{0, 2}, [2]int32{1, 0}, [2]int32{1, 2}, [2]int32{1, 2}))
	assert.NoError(t, err)
	tr := m.Transpose()
	rows, cols := tr.Shape()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 2, cols)
	assert.Equal(t, m.NNZ(), tr.NNZ())
	indices, values := tr.Row(2)
	assert.Equal(t, []int32{0, 1}, indices)
	assert.Equal(t, []float32{1, 2}, values)
	assert.True(t, mat.Equal(m.Dense().T(), tr.Dense()))
}

func TestMulDense(t *testing.T) {
	m, err := NewInteractions(clicksOf(
		[2]int32{0, 0}, [2]int32{0, 1}, [2]int32{0, 1},
		[2]int32{1, 2}, [2]int32{3, 0}, [2]int32{3, 2},
	))
	assert.NoError(t, err)
	x := mat.NewDense(3, 2, []float64{
		1, 2,
		3, 4,
		5, 6,
	})
	var expected mat.Dense
	expected.Mul(m.Dense(), x)
	for _, jobs := range []int{1, 3, 8} {
		product, err := m.MulDense(x, jobs)
		assert.NoError(t, err)
		assert.True(t, mat.Equal(&expected, product))
	}
	_, err = m.MulDense(mat.NewDense(2, 2, nil), 1)
	assert.Error(t, err)
}

func TestColumnVariance(t *testing.T) {
	m, err := NewInteractions(clicksOf([2]int32{0, 0}, [2]int32{1, 0}, [2]int32{1, 0}, [2]int32{1, 1}))
	assert.NoError(t, err)
	// column 0 = [1, 2], column 1 = [0, 1]
	assert.InDeltaSlice(t, []float64{0.25, 0.25}, m.ColumnVariance(), 1e-12)
}
