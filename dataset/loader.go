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
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/gorse-io/newsrec/base/log"
	"github.com/gorse-io/newsrec/config"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// Load reads item metadata, item embeddings and click logs, then joins clicks with item attributes.
func Load(cfg config.DatasetConfig, progress io.Writer) ([]Item, []Click, error) {
	start := time.Now()
	items, err := LoadItems(cfg.MetadataPath)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	embeddings, err := LoadEmbeddings(cfg.EmbeddingsPath)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	if err = AttachEmbeddings(items, embeddings); err != nil {
		return nil, nil, errors.Trace(err)
	}
	clicks, err := LoadClicks(cfg.ClicksDir, progress)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	clicks = Join(items, clicks)
	log.Logger().Info("load dataset",
		zap.Int("n_items", len(items)),
		zap.Int("n_clicks", len(clicks)),
		zap.Duration("duration", time.Since(start)))
	return items, clicks, nil
}

// LoadItems reads item metadata from a CSV file with columns article_id, category_id, created_at_ts, publisher_id
// and words_count. Columns are addressed by header.
func LoadItems(path string) ([]Item, error) {
	var items []Item
	err := readCSV(path, []column{
		{"article_id", 32}, {"category_id", 32}, {"created_at_ts", 64}, {"publisher_id", 32}, {"words_count", 32},
	},
		func(fields []int64) {
			items = append(items, Item{
				ItemId:      int32(fields[0]),
				CategoryId:  int32(fields[1]),
				CreatedAt:   fields[2],
				PublisherId: int32(fields[3]),
				WordsCount:  int32(fields[4]),
			})
		})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return items, nil
}

// AttachEmbeddings assigns the i-th embedding to the i-th item.
func AttachEmbeddings(items []Item, embeddings [][]float32) error {
	if len(items) != len(embeddings) {
		return errors.NotValidf("%d embeddings for %d items", len(embeddings), len(items))
	}
	for i := range items {
		items[i].Embedding = embeddings[i]
	}
	return nil
}

// LoadClicks reads every CSV file in a directory in file name order. Each file has the columns user_id,
// session_id, click_article_id and click_timestamp. Progress is reported to progress when it is not nil.
func LoadClicks(dir string, progress io.Writer) ([]Click, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(files) == 0 {
		return nil, errors.NotFoundf("click files in %s", dir)
	}
	sort.Strings(files)
	if progress == nil {
		progress = io.Discard
	}
	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetDescription("loading clicks"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish())
	var clicks []Click
	for _, file := range files {
		err = readCSV(file, []column{
			{"user_id", 32}, {"session_id", 64}, {"click_article_id", 32}, {"click_timestamp", 64},
		},
			func(fields []int64) {
				clicks = append(clicks, Click{
					UserId:    int32(fields[0]),
					SessionId: fields[1],
					ItemId:    int32(fields[2]),
					Timestamp: fields[3],
				})
			})
		if err != nil {
			return nil, errors.Trace(err)
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	return clicks, nil
}

// Join keeps clicks on known items and copies category and publisher from the clicked item.
func Join(items []Item, clicks []Click) []Click {
	index := make(map[int32]int, len(items))
	for i, item := range items {
		index[item.ItemId] = i
	}
	joined := lo.FilterMap(clicks, func(click Click, _ int) (Click, bool) {
		i, ok := index[click.ItemId]
		if !ok {
			return click, false
		}
		click.CategoryId = items[i].CategoryId
		click.PublisherId = items[i].PublisherId
		return click, true
	})
	if dropped := len(clicks) - len(joined); dropped > 0 {
		log.Logger().Warn("drop clicks on unknown items", zap.Int("n_dropped", dropped))
	}
	return joined
}

// column is an integer CSV column. Values must fit in bitSize bits.
type column struct {
	name    string
	bitSize int
}

// readCSV parses integer columns selected by header names.
func readCSV(path string, columns []column, handler func(fields []int64)) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Trace(err)
	}
	defer file.Close()
	reader := csv.NewReader(file)
	reader.ReuseRecord = true
	header, err := reader.Read()
	if err != nil {
		return errors.Annotatef(err, "failed to read header of %s", path)
	}
	positions := make([]int, len(columns))
	for i, column := range columns {
		positions[i] = lo.IndexOf(header, column.name)
		if positions[i] < 0 {
			return errors.NotFoundf("column %s in %s", column.name, path)
		}
	}
	fields := make([]int64, len(columns))
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return errors.Annotatef(err, "failed to read %s", path)
		}
		for i, position := range positions {
			fields[i], err = strconv.ParseInt(record[position], 10, columns[i].bitSize)
			if err != nil {
				line, _ := reader.FieldPos(position)
				return errors.Annotatef(err, "invalid %s at %s:%d", columns[i].name, path, line)
			}
		}
		handler(fields)
	}
}
