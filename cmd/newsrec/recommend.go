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

package main

import (
	"context"
	"io"
	"os"
	"strconv"

	"github.com/gorse-io/newsrec/base/log"
	"github.com/gorse-io/newsrec/logics"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var recommendCommand = &cobra.Command{
	Use:   "recommend <user-id>",
	Short: "Print recommendations for a user.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		userId, err := parseUserId(args[0])
		if err != nil {
			log.Logger().Fatal("invalid user id", zap.Error(err))
		}
		conf, err := loadConfig(cmd)
		if err != nil {
			log.Logger().Fatal("failed to load config", zap.Error(err))
		}
		n, _ := cmd.Flags().GetInt("n")
		if n <= 0 {
			n = conf.Server.DefaultN
		}
		ctx := context.Background()
		recommender, err := buildRecommender(ctx, conf)
		if err != nil {
			log.Logger().Fatal("failed to build recommender", zap.Error(err))
		}
		recommendations, err := recommender.Recommend(ctx, userId, n)
		if err != nil {
			log.Logger().Fatal("failed to recommend", zap.Error(err))
		}
		if err = renderRecommendations(os.Stdout, recommendations); err != nil {
			log.Logger().Fatal("failed to render recommendations", zap.Error(err))
		}
	},
}

func init() {
	recommendCommand.Flags().IntP("n", "n", 0, "number of recommended items (default from config)")
}

func parseUserId(s string) (int32, error) {
	userId, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, errors.NotValidf("user id %q", s)
	}
	return int32(userId), nil
}

func renderRecommendations(w io.Writer, recommendations []logics.Recommendation) error {
	table := tablewriter.NewWriter(w)
	table.Header("#", "item", "category", "publisher", "words", "created_at", "score")
	for i, r := range recommendations {
		if err := table.Append([]string{
			strconv.Itoa(i + 1),
			strconv.Itoa(int(r.ItemId)),
			strconv.Itoa(int(r.CategoryId)),
			strconv.Itoa(int(r.PublisherId)),
			strconv.Itoa(int(r.WordsCount)),
			strconv.FormatInt(r.CreatedAt, 10),
			strconv.FormatFloat(r.Score, 'f', 4, 64),
		}); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(table.Render())
}
