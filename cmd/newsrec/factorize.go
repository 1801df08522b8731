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
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/gorse-io/newsrec/base/log"
	"github.com/gorse-io/newsrec/dataset"
	"github.com/gorse-io/newsrec/model/svd"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const varianceThreshold = 0.8

var factorizeCommand = &cobra.Command{
	Use:   "factorize",
	Short: "Load or compute latent factors and print explained variance.",
	Run: func(cmd *cobra.Command, args []string) {
		conf, err := loadConfig(cmd)
		if err != nil {
			log.Logger().Fatal("failed to load config", zap.Error(err))
		}
		if rank, _ := cmd.Flags().GetInt("rank"); rank > 0 {
			conf.Factorization.Rank = rank
		}
		step, _ := cmd.Flags().GetInt("step")

		items, clicks, err := dataset.Load(conf.Dataset, os.Stderr)
		if err != nil {
			log.Logger().Fatal("failed to load dataset", zap.Error(err))
		}
		interactions, err := dataset.NewInteractions(clicks)
		if err != nil {
			log.Logger().Fatal("failed to build interaction matrix", zap.Error(err))
		}
		store, err := openFactorStore(conf)
		if err != nil {
			log.Logger().Fatal("failed to open storage", zap.Error(err))
		}
		factors, err := store.Load(context.Background(), interactions)
		if err != nil {
			log.Logger().Fatal("failed to load factors", zap.Error(err))
		}
		numUsers, numItems := interactions.Shape()
		fmt.Printf("items: %d, clicks: %d, matrix: %dx%d, rank: %d\n",
			len(items), len(clicks), numUsers, numItems, factors.Rank)
		if err = renderVariance(os.Stdout, factors.ExplainedVarianceRatio, step); err != nil {
			log.Logger().Fatal("failed to render explained variance", zap.Error(err))
		}
	},
}

func init() {
	factorizeCommand.Flags().Int("rank", 0, "number of components (default from config)")
	factorizeCommand.Flags().Int("step", 10, "print every step-th component")
}

// renderVariance prints the cumulative explained variance of every step-th component, the last component and the
// first component reaching the threshold.
func renderVariance(w io.Writer, ratios []float64, step int) error {
	step = max(step, 1)
	cumulative := svd.Cumulative(ratios)
	reached := svd.ComponentsFor(cumulative, varianceThreshold)
	table := tablewriter.NewWriter(w)
	table.Header("components", "ratio", "cumulative")
	for i := range cumulative {
		n := i + 1
		if n%step != 0 && n != len(cumulative) && n != reached && n != 1 {
			continue
		}
		if err := table.Append([]string{
			strconv.Itoa(n),
			strconv.FormatFloat(ratios[i], 'f', 4, 64),
			strconv.FormatFloat(cumulative[i], 'f', 4, 64),
		}); err != nil {
			return errors.Trace(err)
		}
	}
	if err := table.Render(); err != nil {
		return errors.Trace(err)
	}
	if reached < 0 {
		_, err := fmt.Fprintf(w, "%.0f%% of variance is not reached by %d components\n",
			varianceThreshold*100, len(cumulative))
		return errors.Trace(err)
	}
	_, err := fmt.Fprintf(w, "%d components explain %.0f%% of variance\n", reached, varianceThreshold*100)
	return errors.Trace(err)
}
