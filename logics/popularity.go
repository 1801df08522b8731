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
package logics

import (
	"sort"

	"github.com/gorse-io/newsrec/dataset"
)

// Recommendation is an item with its score.
type Recommendation struct {
	dataset.Item
	Score float64 `json:"score"`
}

// Popularity ranks items by the number of clicks. Items without clicks are ranked last with score 0, and ties
// keep the order of items.
type Popularity struct {
	items []Recommendation
}

func NewPopularity(items []dataset.Item, clicks []dataset.Click, ceiling float32) *Popularity {
	counts := make(map[int32]int, len(items))
	for _, click := range clicks {
		counts[click.ItemId]++
	}
	var maxCount int
	for _, item := range items {
		maxCount = max(maxCount, counts[item.ItemId])
	}
	ranked := make([]Recommendation, len(items))
	for i, item := range items {
		ranked[i].Item = item
		if maxCount > 0 {
			ranked[i].Score = float64(float32(counts[item.ItemId]) / float32(maxCount) * ceiling)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return counts[ranked[i].ItemId] > counts[ranked[j].ItemId]
	})
	return &Popularity{items: ranked}
}

// TopK returns the k most popular items. The result shares memory with the popularity table and must not be
// modified.
func (p *Popularity) TopK(k int) []Recommendation {
	n := min(max(k, 0), len(p.items))
	return p.items[:n:n]
}

func (p *Popularity) Len() int {
	return len(p.items)
}
