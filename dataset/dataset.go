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

// Item is an article with its metadata and content embedding.
type Item struct {
	ItemId      int32     `json:"item_id"`
	CategoryId  int32     `json:"category_id"`
	PublisherId int32     `json:"publisher_id"`
	WordsCount  int32     `json:"words_count"`
	CreatedAt   int64     `json:"created_at_ts"`
	Embedding   []float32 `json:"-"`
}

// Click is a click event merged with the attributes of the clicked item.
type Click struct {
	UserId      int32
	ItemId      int32
	SessionId   int64
	Timestamp   int64
	CategoryId  int32
	PublisherId int32
}
