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

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorse-io/newsrec/config"
	"github.com/stretchr/testify/assert"
)

// writeNpy saves a float32 matrix in the layout written by numpy.save.
func writeNpy(t *testing.T, path string, matrix [][]float32) {
	cols := 0
	if len(matrix) > 0 {
		cols = len(matrix[0])
	}
	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d, %d), }", len(matrix), cols)
	// magic + version + header length + header + newline is aligned to 64 bytes
	padding := 64 - (10+len(header)+1)%64
	header += strings.Repeat(" ", padding) + "\n"
	buf := bytes.NewBufferString("\x93NUMPY\x01\x00")
	assert.NoError(t, binary.Write(buf, binary.LittleEndian, uint16(len(header))))
	buf.WriteString(header)
	for _, row := range matrix {
		assert.NoError(t, binary.Write(buf, binary.LittleEndian, row))
	}
	assert.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func writeFile(t *testing.T, path, content string) {
	assert.NoError(t, os.MkdirAll(filepath.Dir(path), os.ModePerm))
	assert.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DatasetConfig{
		MetadataPath:   filepath.Join(dir, "articles_metadata.csv"),
		EmbeddingsPath: filepath.Join(dir, "articles_embeddings.npy"),
		ClicksDir:      filepath.Join(dir, "clicks"),
	}
	writeFile(t, cfg.MetadataPath, `article_id,category_id,created_at_ts,publisher_id,words_count
0,0,1513144419000,0,168
1,1,1405341936000,0,189
2,1,1408667706000,1,250
`)
	writeNpy(t, cfg.EmbeddingsPath, [][]float32{{1, 0}, {0, 1}, {0.5, 0.5}})
	writeFile(t, filepath.Join(cfg.ClicksDir, "clicks_hour_001.csv"),
		`user_id,session_id,session_start,session_size,click_article_id,click_timestamp,click_environment
1,1506826800026,1506826800000,2,2,1506827017951,4
1,1506826800026,1506826800000,2,7,1506827047951,4
`)
	writeFile(t, filepath.Join(cfg.ClicksDir, "clicks_hour_000.csv"),
		`user_id,session_id,session_start,session_size,click_article_id,click_timestamp,click_environment
0,1506825423271737,1506825423000,2,0,1506826828020,4
0,1506825423271737,1506825423000,2,1,1506826858020,4
`)
	writeFile(t, filepath.Join(cfg.ClicksDir, "README.txt"), "not a click log")

	var progress bytes.Buffer
	items, clicks, err := Load(cfg, &progress)
	assert.NoError(t, err)
	assert.Equal(t, []Item{
		{ItemId: 0, CategoryId: 0, PublisherId: 0, WordsCount: 168, CreatedAt: 1513144419000, Embedding: []float32{1, 0}},
		{ItemId: 1, CategoryId: 1, PublisherId: 0, WordsCount: 189, CreatedAt: 1405341936000, Embedding: []float32{0, 1}},
		{ItemId: 2, CategoryId: 1, PublisherId: 1, WordsCount: 250, CreatedAt: 1408667706000, Embedding: []float32{0.5, 0.5}},
	}, items)
	// files are read in name order and the click on unknown item 7 is dropped
	assert.Equal(t, []Click{
		{UserId: 0, ItemId: 0, SessionId: 1506825423271737, Timestamp: 1506826828020, CategoryId: 0, PublisherId: 0},
		{UserId: 0, ItemId: 1, SessionId: 1506825423271737, Timestamp: 1506826858020, CategoryId: 1, PublisherId: 0},
		{UserId: 1, ItemId: 2, SessionId: 1506826800026, Timestamp: 1506827017951, CategoryId: 1, PublisherId: 1},
	}, clicks)
}

func TestLoadItemsMissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "articles_metadata.csv")
	writeFile(t, path, "article_id,category_id\n0,0\n")
	_, err := LoadItems(path)
	assert.Error(t, err)
}

func TestLoadItemsInvalidValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "articles_metadata.csv")
	writeFile(t, path, "article_id,category_id,created_at_ts,publisher_id,words_count\n0,x,0,0,0\n")
	_, err := LoadItems(path)
	assert.ErrorContains(t, err, "category_id")
}

func TestLoadItemsOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "articles_metadata.csv")
	writeFile(t, path, "article_id,category_id,created_at_ts,publisher_id,words_count\n3000000000,0,0,0,0\n")
	_, err := LoadItems(path)
	assert.ErrorContains(t, err, "article_id")

	// timestamps are 64-bit
	writeFile(t, path, "article_id,category_id,created_at_ts,publisher_id,words_count\n1,0,1506826800026,0,0\n")
	items, err := LoadItems(path)
	assert.NoError(t, err)
	assert.Equal(t, int64(1506826800026), items[0].CreatedAt)
}

func TestLoadClicksOutOfRange(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "clicks_hour_000.csv"),
		"user_id,session_id,session_start,session_size,click_article_id,click_timestamp\n"+
			"0,1506826800026,1506826800000,2,-2147483649,1506827017951\n")
	_, err := LoadClicks(dir, nil)
	assert.ErrorContains(t, err, "click_article_id")
}

func TestLoadClicksEmptyDir(t *testing.T) {
	_, err := LoadClicks(t.TempDir(), nil)
	assert.Error(t, err)
}

func TestAttachEmbeddingsMismatch(t *testing.T) {
	err := AttachEmbeddings(make([]Item, 2), [][]float32{{1}})
	assert.Error(t, err)
}
