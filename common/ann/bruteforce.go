// Copyright 2024 gorse Project Authors
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

package ann

import (
	"context"

	"github.com/gorse-io/newsrec/common/floats"
	"github.com/gorse-io/newsrec/common/heap"
	"github.com/gorse-io/newsrec/common/parallel"
	"github.com/juju/errors"
)

// minChunkSize is the smallest number of vectors scanned by one worker.
const minChunkSize = 1024

// Bruteforce is an exact inner product index. Results are ordered by score descending, then by index ascending,
// and do not depend on the number of jobs.
type Bruteforce struct {
	dimension int
	vectors   [][]float32
	jobs      int
}

var _ Index = (*Bruteforce)(nil)

// NewBruteforce builds an index over vectors. The index keeps references to the vectors, which must not be
// modified afterwards.
func NewBruteforce(vectors [][]float32, jobs int) (*Bruteforce, error) {
	b := &Bruteforce{vectors: vectors, jobs: max(jobs, 1)}
	for i, v := range vectors {
		if i == 0 {
			b.dimension = len(v)
		} else if len(v) != b.dimension {
			return nil, errors.NotValidf("dimension of vector %d (%d != %d)", i, len(v), b.dimension)
		}
	}
	return b, nil
}

func (b *Bruteforce) Len() int {
	return len(b.vectors)
}

func (b *Bruteforce) Dimension() int {
	return b.dimension
}

// Search returns the n vectors with the largest inner product to q. The length of q must equal the dimension of
// the index.
func (b *Bruteforce) Search(q []float32, n int) ([]int32, []float32) {
	if n <= 0 || len(b.vectors) == 0 {
		return nil, nil
	}
	if len(q) != b.dimension {
		panic(errors.NotValidf("query dimension %d != %d", len(q), b.dimension))
	}
	ranges := parallel.Ranges(len(b.vectors), min(b.jobs, (len(b.vectors)+minChunkSize-1)/minChunkSize))
	partials := make([][]heap.Elem[int32, float32], len(ranges))
	_ = parallel.Parallel(context.Background(), len(ranges), len(ranges), func(_, jobId int) error {
		filter := heap.NewTopKFilter[int32, float32](n)
		for i := ranges[jobId][0]; i < ranges[jobId][1]; i++ {
			filter.Push(int32(i), floats.Dot(q, b.vectors[i]))
		}
		partials[jobId] = filter.PopAll()
		return nil
	})
	// Partials are merged in chunk order so that ties keep the lower index.
	filter := heap.NewTopKFilter[int32, float32](n)
	for _, partial := range partials {
		for _, elem := range partial {
			filter.Push(elem.Value, elem.Weight)
		}
	}
	elems := filter.PopAll()
	indices := make([]int32, len(elems))
	scores := make([]float32, len(elems))
	for i, elem := range elems {
		indices[i], scores[i] = elem.Value, elem.Weight
	}
	return indices, scores
}
