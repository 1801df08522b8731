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
	"fmt"
	"net/http"
	"strconv"
	"time"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/go-openapi/spec"
	"github.com/google/uuid"
	"github.com/gorse-io/newsrec/base/log"
	"github.com/gorse-io/newsrec/cmd/version"
	"github.com/gorse-io/newsrec/config"
	"github.com/gorse-io/newsrec/logics"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swaggest/swgui/v5emb"
	"go.uber.org/zap"
)

const (
	apiDocsPath   = "/apidocs.json"
	swaggerUIPath = "/apidocs/"
)

// RestServer implements a REST-ful API server over a recommender.
type RestServer struct {
	Config      config.ServerConfig
	Recommender *logics.Recommender
	WebService  *restful.WebService
}

func NewRestServer(cfg config.ServerConfig, recommender *logics.Recommender) *RestServer {
	return &RestServer{
		Config:      cfg,
		Recommender: recommender,
		WebService:  new(restful.WebService),
	}
}

// Handler creates the web service and returns a container serving APIs, API docs and metrics.
func (s *RestServer) Handler() http.Handler {
	s.CreateWebService()
	container := restful.NewContainer()
	container.Add(s.WebService)
	specConfig := restfulspec.Config{
		WebServices:                   container.RegisteredWebServices(),
		APIPath:                       apiDocsPath,
		PostBuildSwaggerObjectHandler: enrichSwaggerObject,
	}
	container.Add(restfulspec.NewOpenAPIService(specConfig))
	container.Handle(swaggerUIPath, v5emb.New("newsrec", apiDocsPath, swaggerUIPath))
	container.Handle("/metrics", promhttp.Handler())
	return container
}

// StartHttpServer serves HTTP requests until the context is done.
func (s *RestServer) StartHttpServer(ctx context.Context) error {
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port),
		Handler: s.Handler(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Logger().Error("failed to shutdown http server", zap.Error(err))
		}
	}()
	log.Logger().Info("start http server",
		zap.String("url", fmt.Sprintf("http://%s:%d", s.Config.Host, s.Config.Port)))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Trace(err)
	}
	return nil
}

func enrichSwaggerObject(swo *spec.Swagger) {
	swo.Info = &spec.Info{
		InfoProps: spec.InfoProps{
			Title:       "newsrec",
			Description: "Hybrid article recommender",
			Version:     version.Version,
		},
	}
	swo.Tags = []spec.Tag{
		{TagProps: spec.TagProps{Name: "recommendation", Description: "Personalized and popular items"}},
		{TagProps: spec.TagProps{Name: "health", Description: "Server status"}},
	}
}

// RequestIdFilter assigns a request id to every response.
func RequestIdFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	requestId := req.HeaderParameter("X-Request-ID")
	if requestId == "" {
		requestId = uuid.New().String()
	}
	resp.Header().Set("X-Request-ID", requestId)
	chain.ProcessFilter(req, resp)
}

func LogFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	start := time.Now()
	chain.ProcessFilter(req, resp)
	RequestsTotal.WithLabelValues(req.Request.Method, strconv.Itoa(resp.StatusCode())).Inc()
	if req.Request.URL.Path != "/api/health" {
		log.ResponseLogger(resp).Info(fmt.Sprintf("%s %s", req.Request.Method, req.Request.URL),
			zap.Int("status_code", resp.StatusCode()),
			zap.Duration("duration", time.Since(start)))
	}
}

// CreateWebService creates web service.
func (s *RestServer) CreateWebService() {
	ws := s.WebService
	ws.Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON)
	ws.Path("/api/")
	ws.Filter(RequestIdFilter)
	ws.Filter(LogFilter)
	ws.Filter(RateLimitFilter(NewRateLimiter(s.Config.RateLimit)))

	ws.Route(ws.GET("/recommend/{user-id}").To(s.getRecommend).
		Doc("Get recommendation for user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("integer")).
		Param(ws.QueryParameter("n", "number of returned items").DataType("integer")).
		Returns(http.StatusOK, "OK", []logics.Recommendation{}).
		Returns(http.StatusBadRequest, "invalid user id or n", nil).
		Writes([]logics.Recommendation{}))
	ws.Route(ws.GET("/popular").To(s.getPopular).
		Doc("Get popular items.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.QueryParameter("n", "number of returned items").DataType("integer")).
		Returns(http.StatusOK, "OK", []logics.Recommendation{}).
		Writes([]logics.Recommendation{}))
	ws.Route(ws.GET("/health").To(s.getHealth).
		Doc("Get server status.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"health"}).
		Returns(http.StatusOK, "OK", HealthStatus{}).
		Writes(HealthStatus{}))
}

// ParseInt parses integers from the query parameter.
func ParseInt(request *restful.Request, name string, fallback int) (value int, err error) {
	valueString := request.QueryParameter(name)
	value, err = strconv.Atoi(valueString)
	if err != nil && valueString == "" {
		value = fallback
		err = nil
	}
	return
}

func (s *RestServer) parseN(request *restful.Request) (int, error) {
	n, err := ParseInt(request, "n", s.Config.DefaultN)
	if err != nil {
		return 0, errors.NotValidf("n %q", request.QueryParameter("n"))
	}
	if n < 0 {
		return 0, errors.NotValidf("negative n %d", n)
	}
	return n, nil
}

func (s *RestServer) getRecommend(request *restful.Request, response *restful.Response) {
	start := time.Now()
	userId, err := strconv.ParseInt(request.PathParameter("user-id"), 10, 32)
	if err != nil {
		BadRequest(response, errors.NotValidf("user id %q", request.PathParameter("user-id")))
		return
	}
	n, err := s.parseN(request)
	if err != nil {
		BadRequest(response, err)
		return
	}
	if s.Recommender.IsColdStart(int32(userId)) {
		ColdStartTotal.Inc()
	}
	recommendations, err := s.Recommender.Recommend(request.Request.Context(), int32(userId), n)
	if err != nil {
		InternalServerError(response, err)
		return
	}
	RecommendSeconds.Observe(time.Since(start).Seconds())
	Ok(response, recommendations)
}

func (s *RestServer) getPopular(request *restful.Request, response *restful.Response) {
	start := time.Now()
	n, err := s.parseN(request)
	if err != nil {
		BadRequest(response, err)
		return
	}
	popular := s.Recommender.Popular(n)
	PopularSeconds.Observe(time.Since(start).Seconds())
	Ok(response, popular)
}

type HealthStatus struct {
	Ready    bool   `json:"ready"`
	Version  string `json:"version"`
	NumUsers int    `json:"num_users"`
	NumItems int    `json:"num_items"`
}

func (s *RestServer) getHealth(_ *restful.Request, response *restful.Response) {
	status := HealthStatus{Version: version.Version}
	if s.Recommender != nil {
		status.Ready = true
		status.NumUsers = s.Recommender.NumUsers()
		status.NumItems = s.Recommender.NumItems()
	}
	Ok(response, status)
}

// BadRequest returns a bad request error.
func BadRequest(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	log.ResponseLogger(response).Error("bad request", zap.Error(err))
	if err = response.WriteError(http.StatusBadRequest, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// InternalServerError returns a internal server error.
func InternalServerError(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	log.ResponseLogger(response).Error("internal server error", zap.Error(err))
	if err = response.WriteError(http.StatusInternalServerError, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// ResponseError logs a failure to write a response.
func ResponseError(response *restful.Response, err error) {
	log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
}

// Ok sends the content as JSON to the client.
func Ok(response *restful.Response, content interface{}) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteAsJson(content); err != nil {
		log.ResponseLogger(response).Error("failed to write json", zap.Error(err))
	}
}
