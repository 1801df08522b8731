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

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gorse-io/newsrec/config"
	"github.com/gorse-io/newsrec/dataset"
	"github.com/gorse-io/newsrec/logics"
	"github.com/gorse-io/newsrec/model/svd"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/steinfletcher/apitest"
	"github.com/stretchr/testify/suite"
)

type ServerTestSuite struct {
	suite.Suite
	*RestServer
	handler http.Handler
}

func (suite *ServerTestSuite) SetupSuite() {
	items := []dataset.Item{
		{ItemId: 0, CategoryId: 1, PublisherId: 1, WordsCount: 120, CreatedAt: 1000, Embedding: []float32{1, 0, 0}},
		{ItemId: 1, CategoryId: 1, PublisherId: 2, WordsCount: 200, CreatedAt: 2000, Embedding: []float32{0.9, 0.1, 0}},
		{ItemId: 2, CategoryId: 2, PublisherId: 1, WordsCount: 180, CreatedAt: 3000, Embedding: []float32{0, 1, 0}},
		{ItemId: 3, CategoryId: 2, PublisherId: 3, WordsCount: 90, CreatedAt: 4000, Embedding: []float32{0, 0.8, 0.2}},
		{ItemId: 4, CategoryId: 3, PublisherId: 3, WordsCount: 300, CreatedAt: 5000, Embedding: []float32{0, 0, 1}},
		{ItemId: 5, CategoryId: 3, PublisherId: 2, WordsCount: 250, CreatedAt: 6000, Embedding: []float32{0.3, 0.3, 0.4}},
	}
	clicks := dataset.Join(items, []dataset.Click{
		{UserId: 0, ItemId: 0}, {UserId: 0, ItemId: 2},
		{UserId: 1, ItemId: 1}, {UserId: 1, ItemId: 3}, {UserId: 1, ItemId: 3},
		{UserId: 2, ItemId: 4}, {UserId: 2, ItemId: 0},
		// user 3 has no clicks
		{UserId: 4, ItemId: 5},
	})
	cfg := config.GetDefaultConfig()
	cfg.Recommend.Jobs = 2
	decomposer := svd.Decomposer{Rank: 2, Options: svd.Options{Seed: 42, Jobs: 2}}
	recommender, err := logics.NewRecommender(context.Background(), items, clicks, decomposer, cfg.Recommend)
	suite.NoError(err)
	suite.RestServer = NewRestServer(cfg.Server, recommender)
	suite.handler = suite.Handler()
}

func (suite *ServerTestSuite) marshal(v interface{}) string {
	s, err := json.Marshal(v)
	suite.NoError(err)
	return string(s)
}

func (suite *ServerTestSuite) TestRecommend() {
	t := suite.T()
	expected, err := suite.Recommender.Recommend(context.Background(), 1, 3)
	suite.NoError(err)
	apitest.New().
		Handler(suite.handler).
		Get("/api/recommend/1").
		Query("n", "3").
		Expect(t).
		Status(http.StatusOK).
		Body(suite.marshal(expected)).
		End()
	// default n
	expected, err = suite.Recommender.Recommend(context.Background(), 0, suite.Config.DefaultN)
	suite.NoError(err)
	apitest.New().
		Handler(suite.handler).
		Get("/api/recommend/0").
		Expect(t).
		Status(http.StatusOK).
		Body(suite.marshal(expected)).
		End()
}

func (suite *ServerTestSuite) TestRecommendColdStart() {
	apitest.New().
		Handler(suite.handler).
		Get("/api/recommend/999").
		Query("n", "3").
		Expect(suite.T()).
		Status(http.StatusOK).
		Body(suite.marshal(suite.Recommender.Popular(3))).
		End()
}

func (suite *ServerTestSuite) TestColdStartTotal() {
	t := suite.T()
	for _, c := range []struct {
		userId    string
		coldStart bool
	}{
		{"1", false},
		{"3", true},
		{"999", true},
		{"-1", true},
	} {
		before := testutil.ToFloat64(ColdStartTotal)
		apitest.New().
			Handler(suite.handler).
			Get("/api/recommend/" + c.userId).
			Expect(t).
			Status(http.StatusOK).
			End()
		if c.coldStart {
			suite.Equal(before+1, testutil.ToFloat64(ColdStartTotal), c.userId)
		} else {
			suite.Equal(before, testutil.ToFloat64(ColdStartTotal), c.userId)
		}
	}
}

func (suite *ServerTestSuite) TestBadRequest() {
	t := suite.T()
	apitest.New().
		Handler(suite.handler).
		Get("/api/recommend/abc").
		Expect(t).
		Status(http.StatusBadRequest).
		End()
	apitest.New().
		Handler(suite.handler).
		Get("/api/recommend/1").
		Query("n", "many").
		Expect(t).
		Status(http.StatusBadRequest).
		End()
	apitest.New().
		Handler(suite.handler).
		Get("/api/popular").
		Query("n", "-1").
		Expect(t).
		Status(http.StatusBadRequest).
		End()
}

func (suite *ServerTestSuite) TestPopular() {
	apitest.New().
		Handler(suite.handler).
		Get("/api/popular").
		Query("n", "2").
		Expect(suite.T()).
		Status(http.StatusOK).
		Body(suite.marshal(suite.Recommender.Popular(2))).
		End()
}

func (suite *ServerTestSuite) TestHealth() {
	apitest.New().
		Handler(suite.handler).
		Get("/api/health").
		Expect(suite.T()).
		Status(http.StatusOK).
		Body(suite.marshal(HealthStatus{
			Ready:    true,
			Version:  "unknown-version",
			NumUsers: 5,
			NumItems: 6,
		})).
		End()
}

func (suite *ServerTestSuite) TestRequestId() {
	t := suite.T()
	apitest.New().
		Handler(suite.handler).
		Get("/api/health").
		Header("X-Request-ID", "42").
		Expect(t).
		Status(http.StatusOK).
		Header("X-Request-ID", "42").
		End()
	apitest.New().
		Handler(suite.handler).
		Get("/api/health").
		Expect(t).
		Status(http.StatusOK).
		HeaderPresent("X-Request-ID").
		End()
}

func (suite *ServerTestSuite) TestDocsAndMetrics() {
	t := suite.T()
	apitest.New().
		Handler(suite.handler).
		Get("/apidocs.json").
		Expect(t).
		Status(http.StatusOK).
		End()
	apitest.New().
		Handler(suite.handler).
		Get("/apidocs/").
		Expect(t).
		Status(http.StatusOK).
		End()
	apitest.New().
		Handler(suite.handler).
		Get("/metrics").
		Expect(t).
		Status(http.StatusOK).
		End()
}

func (suite *ServerTestSuite) TestRateLimit() {
	t := suite.T()
	cfg := suite.Config
	cfg.RateLimit = 1
	handler := NewRestServer(cfg, suite.Recommender).Handler()
	apitest.New().
		Handler(handler).
		Get("/api/popular").
		Expect(t).
		Status(http.StatusOK).
		End()
	apitest.New().
		Handler(handler).
		Get("/api/popular").
		Expect(t).
		Status(http.StatusTooManyRequests).
		Header("Retry-After", "1").
		End()
}

func TestServer(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}
