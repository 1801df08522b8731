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

package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter(t *testing.T) {
	unlimited := NewRateLimiter(0)
	assert.IsType(t, &Unlimited{}, unlimited)
	for i := 0; i < 100; i++ {
		assert.Equal(t, int64(1), unlimited.TakeAvailable(1))
	}

	limited := NewRateLimiter(2)
	assert.Equal(t, int64(1), limited.TakeAvailable(1))
	assert.Equal(t, int64(1), limited.TakeAvailable(1))
	assert.Zero(t, limited.TakeAvailable(1))
}
