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
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorse-io/newsrec/dataset"
	"github.com/gorse-io/newsrec/logics"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestParseUserId(t *testing.T) {
	userId, err := parseUserId("42")
	assert.NoError(t, err)
	assert.Equal(t, int32(42), userId)
	_, err = parseUserId("abc")
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = parseUserId("99999999999")
	assert.Error(t, err)
}

func TestRenderRecommendations(t *testing.T) {
	var buf bytes.Buffer
	err := renderRecommendations(&buf, []logics.Recommendation{
		{Item: dataset.Item{ItemId: 7, CategoryId: 2, PublisherId: 3, WordsCount: 180, CreatedAt: 1000}, Score: 4.5},
		{Item: dataset.Item{ItemId: 9, CategoryId: 1, PublisherId: 3, WordsCount: 90, CreatedAt: 2000}, Score: 3.25},
	})
	assert.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "4.5000")
	assert.Contains(t, output, "3.2500")
	assert.Less(t, strings.Index(output, "4.5000"), strings.Index(output, "3.2500"))
}

func TestRenderVariance(t *testing.T) {
	var buf bytes.Buffer
	err := renderVariance(&buf, []float64{0.5, 0.25, 0.125, 0.0625, 0.0625}, 2)
	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "3 components explain 80% of variance")

	buf.Reset()
	err = renderVariance(&buf, []float64{0.3, 0.2}, 0)
	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "not reached by 2 components")
}

func TestCommands(t *testing.T) {
	names := make([]string, 0)
	for _, command := range rootCommand.Commands() {
		names = append(names, command.Name())
	}
	assert.ElementsMatch(t, []string{"version", "serve", "recommend", "factorize"}, names)
	assert.NotNil(t, rootCommand.PersistentFlags().Lookup("config"))
	assert.NotNil(t, rootCommand.PersistentFlags().Lookup("log-path"))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	assert.NoError(t, os.WriteFile(path, []byte("[server]\nport = 9000\n"), 0644))
	assert.NoError(t, rootCommand.PersistentFlags().Set("config", path))
	// merge persistent flags of the root command as Execute does
	assert.NotNil(t, recommendCommand.InheritedFlags().Lookup("config"))
	conf, err := loadConfig(recommendCommand)
	assert.NoError(t, err)
	assert.Equal(t, 9000, conf.Server.Port)

	// validated while loading
	assert.NoError(t, os.WriteFile(path, []byte("[server]\nport = 70000\n"), 0644))
	_, err = loadConfig(recommendCommand)
	assert.True(t, errors.Is(err, errors.NotValid))
	assert.NoError(t, rootCommand.PersistentFlags().Set("config", ""))
}
