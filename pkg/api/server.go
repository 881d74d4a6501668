// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api serves a read only view of the deployed instances over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/lca-core/pkg/lifecycle"
	"github.com/united-manufacturing-hub/lca-core/pkg/models"
)

// InstanceSource is what the API reads from. *agent.Agent implements it.
type InstanceSource interface {
	Instance(id models.ComponentInstanceID) (*lifecycle.Instance, bool)
	Instances() []*lifecycle.Instance
}

type Server struct {
	source InstanceSource
	router *gin.Engine
	server *http.Server
	logger *zap.SugaredLogger
	port   int
}

func NewServer(source InstanceSource, port int, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		source: source,
		router: gin.New(),
		logger: logger,
		port:   port,
	}

	// Access log and panic recovery both go to the component logger.
	s.router.Use(ginzap.Ginzap(logger.Desugar(), time.RFC3339, true))
	s.router.Use(ginzap.RecoveryWithZap(logger.Desugar(), true))

	s.router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "online")
	})

	v1 := s.router.Group("/v1")
	{
		v1.GET("/instances", s.listInstances)
		v1.GET("/instances/:id", s.getInstance)
		v1.GET("/instances/:id/ports", s.getPorts)
		v1.GET("/instances/:id/graph", s.getInstanceGraph)
		v1.GET("/lifecycle/graph", s.getLifecycleGraph)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Stop is called. It returns at once when Stop came first.
func (s *Server) Start() error {
	s.logger.Infof("Starting status API on port %d", s.port)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status api: %w", err)
	}

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping status API")

	return s.server.Shutdown(ctx)
}

type errorResponse struct {
	Error string `json:"error"`
}

// respond encodes with goccy/go-json instead of gin's default encoder.
func (s *Server) respond(c *gin.Context, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		s.logger.Errorf("Encoding response for %s failed: %v", c.Request.URL.Path, err)
		c.AbortWithStatus(http.StatusInternalServerError)

		return
	}

	c.Data(status, "application/json; charset=utf-8", data)
}

func (s *Server) fail(c *gin.Context, status int, err error) {
	s.respond(c, status, errorResponse{Error: err.Error()})
}

// lookup resolves the :id parameter and writes the error response itself
// when it returns false.
func (s *Server) lookup(c *gin.Context) (*lifecycle.Instance, bool) {
	id, err := models.ParseComponentInstanceID(c.Param("id"))
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)

		return nil, false
	}

	inst, ok := s.source.Instance(id)
	if !ok {
		s.fail(c, http.StatusNotFound, fmt.Errorf("instance %s not found", id))

		return nil, false
	}

	return inst, true
}

func (s *Server) listInstances(c *gin.Context) {
	instances := s.source.Instances()

	infos := make([]lifecycle.Info, 0, len(instances))
	for _, inst := range instances {
		infos = append(infos, inst.Info())
	}

	s.respond(c, http.StatusOK, infos)
}

func (s *Server) getInstance(c *gin.Context) {
	inst, ok := s.lookup(c)
	if !ok {
		return
	}

	s.respond(c, http.StatusOK, inst.Info())
}

func (s *Server) getPorts(c *gin.Context) {
	inst, ok := s.lookup(c)
	if !ok {
		return
	}

	ports := inst.Info().OutPorts
	if ports == nil {
		ports = []lifecycle.PortInfo{}
	}

	s.respond(c, http.StatusOK, ports)
}

func (s *Server) getInstanceGraph(c *gin.Context) {
	inst, ok := s.lookup(c)
	if !ok {
		return
	}

	graph, err := inst.Machine().Graph()
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)

		return
	}

	c.String(http.StatusOK, graph)
}

func (s *Server) getLifecycleGraph(c *gin.Context) {
	graph, err := lifecycle.Graph()
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)

		return
	}

	c.String(http.StatusOK, graph)
}
