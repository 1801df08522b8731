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
	"os"
	"os/signal"
	"syscall"

	"github.com/gorse-io/newsrec/base/log"
	"github.com/gorse-io/newsrec/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST server.",
	Run: func(cmd *cobra.Command, args []string) {
		conf, err := loadConfig(cmd)
		if err != nil {
			log.Logger().Fatal("failed to load config", zap.Error(err))
		}
		if host, _ := cmd.Flags().GetString("host"); host != "" {
			conf.Server.Host = host
		}
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			conf.Server.Port = port
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		recommender, err := buildRecommender(ctx, conf)
		if err != nil {
			log.Logger().Fatal("failed to build recommender", zap.Error(err))
		}
		if err = server.NewRestServer(conf.Server, recommender).StartHttpServer(ctx); err != nil {
			log.Logger().Fatal("failed to start http server", zap.Error(err))
		}
		log.Logger().Info("stop newsrec successfully")
	},
}

func init() {
	serveCommand.Flags().String("host", "", "host of the REST server (overrides config)")
	serveCommand.Flags().Int("port", 0, "port of the REST server (overrides config)")
}
