// Copyright 2020 gorse Project Authors
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

package parallel

import (
	"context"
	"sync"

	"github.com/juju/errors"
)

const chanSize = 1024

// Parallel runs nJobs jobs on nWorkers goroutines. The worker receives its own id and the id of the job.
// The first failed job (by job id) is returned. A panic inside a job is turned into an error of that job.
func Parallel(ctx context.Context, nJobs, nWorkers int, worker func(workerId, jobId int) error) error {
	if nWorkers <= 1 {
		for i := 0; i < nJobs; i++ {
			if err := ctx.Err(); err != nil {
				return errors.Trace(err)
			}
			if err := run(worker, 0, i); err != nil {
				return errors.Trace(err)
			}
		}
		return nil
	}
	c := make(chan int, chanSize)
	// producer
	go func() {
		defer close(c)
		for i := 0; i < nJobs; i++ {
			select {
			case <-ctx.Done():
				return
			case c <- i:
			}
		}
	}()
	// consumer
	var wg sync.WaitGroup
	errs := make([]error, nJobs)
	for j := 0; j < nWorkers; j++ {
		workerId := j
		wg.Go(func() {
			for jobId := range c {
				if err := ctx.Err(); err != nil {
					errs[jobId] = err
					continue
				}
				errs[jobId] = run(worker, workerId, jobId)
			}
		})
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(ctx.Err())
}

func run(worker func(workerId, jobId int) error, workerId, jobId int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("job %d panicked: %v", jobId, r)
		}
	}()
	return worker(workerId, jobId)
}

// Split a slice into n slices and keep the order of elements.
func Split[T any](a []T, n int) [][]T {
	if len(a) == 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}
	if n > len(a) {
		n = len(a)
	}
	minChunkSize := len(a) / n
	maxChunkNum := len(a) % n
	chunks := make([][]T, n)
	for i, j := 0, 0; i < n; i++ {
		chunkSize := minChunkSize
		if i < maxChunkNum {
			chunkSize++
		}
		chunks[i] = a[j : j+chunkSize]
		j += chunkSize
	}
	return chunks
}

// Ranges splits [0, n) into at most nChunks contiguous half-open ranges of nearly equal size.
func Ranges(n, nChunks int) [][2]int {
	if n <= 0 {
		return nil
	}
	if nChunks < 1 {
		nChunks = 1
	}
	if nChunks > n {
		nChunks = n
	}
	ranges := make([][2]int, nChunks)
	begin := 0
	for i := range ranges {
		size := n / nChunks
		if i < n%nChunks {
			size++
		}
		ranges[i] = [2]int{begin, begin + size}
		begin += size
	}
	return ranges
}
