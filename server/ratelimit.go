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
	"net/http"
	"time"

	"github.com/emicklei/go-restful/v3"
	"github.com/juju/ratelimit"
)

// RateLimiter takes tokens without waiting and returns the number of tokens taken.
type RateLimiter interface {
	TakeAvailable(count int64) int64
}

type Unlimited struct{}

func (n *Unlimited) TakeAvailable(count int64) int64 {
	return count
}

// NewRateLimiter creates a token bucket refilled with rps tokens every second. It is unlimited if rps <= 0.
func NewRateLimiter(rps int) RateLimiter {
	if rps <= 0 {
		return &Unlimited{}
	}
	return ratelimit.NewBucketWithQuantum(time.Second, int64(rps), int64(rps))
}

// RateLimitFilter rejects requests with 429 when the limiter runs out of tokens.
func RateLimitFilter(limiter RateLimiter) restful.FilterFunction {
	return func(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
		if limiter.TakeAvailable(1) == 0 {
			resp.Header().Set("Retry-After", "1")
			if err := resp.WriteErrorString(http.StatusTooManyRequests, "too many requests"); err != nil {
				ResponseError(resp, err)
			}
			return
		}
		chain.ProcessFilter(req, resp)
	}
}
