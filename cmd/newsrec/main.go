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
	"os"

	"github.com/gorse-io/newsrec/base/log"
	"github.com/gorse-io/newsrec/cmd/version"
	"github.com/gorse-io/newsrec/config"
	"github.com/gorse-io/newsrec/dataset"
	"github.com/gorse-io/newsrec/logics"
	"github.com/gorse-io/newsrec/model/svd"
	"github.com/gorse-io/newsrec/storage/blob"
	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCommand = &cobra.Command{
	Use:   "newsrec",
	Short: "Hybrid article recommender.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)
	},
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Show the version of newsrec.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(version.BuildInfo())
	},
}

func init() {
	log.AddFlags(rootCommand.PersistentFlags())
	rootCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	rootCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	rootCommand.AddCommand(versionCommand)
	rootCommand.AddCommand(serveCommand)
	rootCommand.AddCommand(recommendCommand)
	rootCommand.AddCommand(factorizeCommand)
}

// loadConfig loads and validates the configuration given by the --config flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	log.Logger().Info("load config", zap.String("config", configPath))
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return conf, nil
}

// openFactorStore opens the blob store holding cached latent factors.
func openFactorStore(conf *config.Config) (*svd.Store, error) {
	store, err := blob.Open(conf.Storage)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return svd.NewStore(store, conf.Factorization.Rank, svd.NewOptions(conf.Factorization)), nil
}

// buildRecommender loads the dataset and constructs the recommender.
func buildRecommender(ctx context.Context, conf *config.Config) (*logics.Recommender, error) {
	items, clicks, err := dataset.Load(conf.Dataset, os.Stderr)
	if err != nil {
		return nil, errors.Trace(err)
	}
	factors, err := openFactorStore(conf)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return logics.NewRecommender(ctx, items, clicks, factors, conf.Recommend)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}
