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

// Index retrieves the vectors with the largest inner product to a query.
type Index interface {
	// Search returns the indices and scores of the top n vectors, scores descending.
	Search(q []float32, n int) ([]int32, []float32)
	// Len returns the number of indexed vectors.
	Len() int
}
