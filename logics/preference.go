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
	"github.com/bits-and-blooms/bitset"
	"github.com/gorse-io/newsrec/dataset"
)

// Attribute is a categorical item attribute users may prefer.
type Attribute int

const (
	PublisherAttribute Attribute = iota
	CategoryAttribute
)

func (a Attribute) String() string {
	switch a {
	case PublisherAttribute:
		return "publisher"
	case CategoryAttribute:
		return "category"
	default:
		return "unknown"
	}
}

// Of returns the attribute value of a click.
func (a Attribute) Of(click dataset.Click) int32 {
	if a == CategoryAttribute {
		return click.CategoryId
	}
	return click.PublisherId
}

// PreferenceIndex stores the attribute values seen in the clicks of every user.
type PreferenceIndex struct {
	attribute Attribute
	values    []*bitset.BitSet
}

func NewPreferenceIndex(clicks []dataset.Click, attribute Attribute) *PreferenceIndex {
	var numUsers int32
	for _, click := range clicks {
		numUsers = max(numUsers, click.UserId+1)
	}
	index := &PreferenceIndex{
		attribute: attribute,
		values:    make([]*bitset.BitSet, numUsers),
	}
	for _, click := range clicks {
		value := attribute.Of(click)
		if click.UserId < 0 || value < 0 {
			continue
		}
		if index.values[click.UserId] == nil {
			index.values[click.UserId] = bitset.New(0)
		}
		index.values[click.UserId].Set(uint(value))
	}
	return index
}

func (p *PreferenceIndex) Attribute() Attribute {
	return p.attribute
}

// Contains checks whether a user has clicked an item with the attribute value.
func (p *PreferenceIndex) Contains(userId, value int32) bool {
	if userId < 0 || int(userId) >= len(p.values) || value < 0 || p.values[userId] == nil {
		return false
	}
	return p.values[userId].Test(uint(value))
}

// Values returns attribute values of a user in ascending order.
func (p *PreferenceIndex) Values(userId int32) []int32 {
	if userId < 0 || int(userId) >= len(p.values) || p.values[userId] == nil {
		return nil
	}
	set := p.values[userId]
	values := make([]int32, 0, set.Count())
	for i, ok := set.NextSet(0); ok; i, ok = set.NextSet(i + 1) {
		values = append(values, int32(i))
	}
	return values
}
