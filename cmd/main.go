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

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/heptiolabs/healthcheck"

	"github.com/united-manufacturing-hub/lca-core/pkg/agent"
	"github.com/united-manufacturing-hub/lca-core/pkg/api"
	"github.com/united-manufacturing-hub/lca-core/pkg/config"
	"github.com/united-manufacturing-hub/lca-core/pkg/constants"
	"github.com/united-manufacturing-hub/lca-core/pkg/container"
	"github.com/united-manufacturing-hub/lca-core/pkg/env"
	"github.com/united-manufacturing-hub/lca-core/pkg/lifecycle"
	"github.com/united-manufacturing-hub/lca-core/pkg/logger"
	"github.com/united-manufacturing-hub/lca-core/pkg/metrics"
	"github.com/united-manufacturing-hub/lca-core/pkg/registry"
	"github.com/united-manufacturing-hub/lca-core/pkg/sentry"
	"github.com/united-manufacturing-hub/lca-core/pkg/workerpool"
)

func main() {
	logger.Initialize()
	defer func() { _ = logger.Sync() }()

	log := logger.For(logger.ComponentCore)
	log.Info("Starting lca-core...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfigWithEnvOverrides(config.ConfigPath(), logger.For(logger.ComponentConfig))
	if err != nil {
		log.Errorf("Failed to load config: %v", err)
		os.Exit(1)
	}

	appVersion, err := env.GetAsString("APP_VERSION", false, constants.DefaultAppVersion)
	if err != nil {
		log.Warnf("Ignoring APP_VERSION: %v", err)
	}

	sentry.InitSentry(appVersion, cfg.Agent.SentryDSN)

	metricsServer := metrics.SetupMetricsEndpoint(fmt.Sprintf(":%d", cfg.Agent.MetricsPort))

	reg, err := registry.New(cfg.Registry, logger.For(logger.ComponentRegistry))
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Failed to create registry: %v", err)
		os.Exit(1)
	}

	backendLogger := logger.For(logger.ComponentDocker)
	if cfg.Backend.Type == config.BackendTypeMemory {
		backendLogger = logger.For(logger.ComponentMemBackend)
	}

	backend, err := container.NewBackend(cfg.Backend, backendLogger)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Failed to create container backend: %v", err)
		os.Exit(1)
	}

	pool := workerpool.NewTaskPool("port-updates", cfg.Agent.PoolWorkers, cfg.Agent.PoolQueueSize, logger.For(logger.ComponentWorkerPool))
	if err := pool.Start(context.Background()); err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Failed to start worker pool: %v", err)
		os.Exit(1)
	}

	a := agent.New(lifecycle.Deps{
		Backend:    backend,
		Registry:   reg,
		Dispatcher: pool,
		Agent:      cfg.Agent,
		Logger:     logger.For(logger.ComponentLifecycle),
	}, cfg.Agent.PollInterval, logger.For(logger.ComponentAgent))

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))
	health.AddReadinessCheck("registry", func() error {
		pingCtx, cancel := context.WithTimeout(context.Background(), cfg.Registry.Timeout)
		defer cancel()

		return a.Ready(pingCtx)
	})

	healthServer := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", cfg.Agent.HealthPort),
		Handler:           health,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Health endpoint failed: %v", err)
		}
	}()

	statusAPI := api.NewServer(a, cfg.Agent.APIPort, logger.For(logger.ComponentAPI))

	go func() {
		if err := statusAPI.Start(); err != nil {
			sentry.ReportIssuef(sentry.IssueTypeError, log, "Status API failed: %v", err)
		}
	}()

	if err := a.DeployAll(ctx, cfg.Components); err != nil {
		sentry.ReportIssuef(sentry.IssueTypeError, log, "Not all components could be deployed: %v", err)
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	if err := a.Shutdown(shutdownCtx); err != nil {
		sentry.ReportIssuef(sentry.IssueTypeError, log, "Shutdown left instances behind: %v", err)
	}

	if err := pool.Stop(constants.PoolStopTimeout); err != nil {
		log.Warnf("Worker pool did not drain: %v", err)
	}

	for name, stopServer := range map[string]func(context.Context) error{
		"status api": statusAPI.Stop,
		"health":     healthServer.Shutdown,
		"metrics":    metricsServer.Shutdown,
	} {
		if err := stopServer(shutdownCtx); err != nil {
			log.Warnf("Stopping %s server failed: %v", name, err)
		}
	}

	if err := reg.Close(); err != nil {
		log.Warnf("Closing registry failed: %v", err)
	}

	log.Info("lca-core stopped")
}
