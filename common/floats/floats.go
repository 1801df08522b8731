// Copyright 2022 gorse Project Authors
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

package floats

import (
	"github.com/chewxy/math32"
)

// Zero fills zeros in a slice of 32-bit floats.
func Zero(a []float32) {
	for i := range a {
		a[i] = 0
	}
}

// MulConst multiplies a vector with a const: dst = dst * c
func MulConst(dst []float32, c float32) {
	for i := range dst {
		dst[i] *= c
	}
}

// MulConstAdd multiplies a vector and a const, then adds to dst: dst = dst + a * c
func MulConstAdd(a []float32, c float32, dst []float32) {
	if len(a) != len(dst) {
		panic("floats: slice lengths do not match")
	}
	for i := range a {
		dst[i] += a[i] * c
	}
}

// Dot two vectors.
func Dot(a, b []float32) (ret float32) {
	if len(a) != len(b) {
		panic("floats: slice lengths do not match")
	}
	for i := range a {
		ret += a[i] * b[i]
	}
	return
}

// Norm returns the L2 norm of a vector.
func Norm(a []float32) float32 {
	return math32.Sqrt(Dot(a, a))
}

// Normalize divides a vector by (its L2 norm + eps) in place. All-zero vectors stay zero.
func Normalize(a []float32, eps float32) {
	MulConst(a, 1/(Norm(a)+eps))
}

// MinMax returns the minimum and maximum of a non-empty vector.
func MinMax(a []float32) (minVal, maxVal float32) {
	if len(a) == 0 {
		panic("floats: empty slice")
	}
	minVal, maxVal = a[0], a[0]
	for _, v := range a[1:] {
		minVal = math32.Min(minVal, v)
		maxVal = math32.Max(maxVal, v)
	}
	return
}
