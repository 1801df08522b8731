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
	"testing"

	"github.com/gorse-io/newsrec/dataset"
	"github.com/stretchr/testify/assert"
)

func TestPreferenceIndex(t *testing.T) {
	clicks := []dataset.Click{
		{UserId: 0, ItemId: 0, PublisherId: 3, CategoryId: 10},
		{UserId: 0, ItemId: 1, PublisherId: 1, CategoryId: 10},
		{UserId: 0, ItemId: 2, PublisherId: 3, CategoryId: 12},
		{UserId: 2, ItemId: 0, PublisherId: 3, CategoryId: 10},
	}
	publishers := NewPreferenceIndex(clicks, PublisherAttribute)
	assert.Equal(t, PublisherAttribute, publishers.Attribute())
	assert.Equal(t, []int32{1, 3}, publishers.Values(0))
	assert.True(t, publishers.Contains(0, 3))
	assert.False(t, publishers.Contains(0, 2))
	assert.Empty(t, publishers.Values(1))
	assert.False(t, publishers.Contains(1, 3))
	assert.Equal(t, []int32{3}, publishers.Values(2))

	categories := NewPreferenceIndex(clicks, CategoryAttribute)
	assert.Equal(t, "category", categories.Attribute().String())
	assert.Equal(t, []int32{10, 12}, categories.Values(0))
	assert.True(t, categories.Contains(2, 10))
	assert.False(t, categories.Contains(2, 12))
}

func TestPreferenceIndexOutOfRange(t *testing.T) {
	index := NewPreferenceIndex([]dataset.Click{{UserId: 1, PublisherId: 4}}, PublisherAttribute)
	assert.False(t, index.Contains(-1, 4))
	assert.False(t, index.Contains(2, 4))
	assert.False(t, index.Contains(1, -4))
	assert.Nil(t, index.Values(-1))
	assert.Nil(t, index.Values(100))

	empty := NewPreferenceIndex(nil, CategoryAttribute)
	assert.False(t, empty.Contains(0, 0))
	assert.Nil(t, empty.Values(0))
}
