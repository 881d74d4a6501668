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

// Package agent deploys and undeploys component instances on this host.
package agent

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/EagleChen/mapmutex"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/united-manufacturing-hub/lca-core/pkg/config"
	"github.com/united-manufacturing-hub/lca-core/pkg/lifecycle"
	"github.com/united-manufacturing-hub/lca-core/pkg/metrics"
	"github.com/united-manufacturing-hub/lca-core/pkg/models"
	"github.com/united-manufacturing-hub/lca-core/pkg/sentry"
)

var (
	ErrUnknownInstance = errors.New("unknown instance")
	ErrBusy            = errors.New("another operation on this target is running")
	ErrShutdown        = errors.New("agent is shutting down")
)

// Agent owns the instances deployed on this host.
type Agent struct {
	deps         lifecycle.Deps
	pollInterval time.Duration
	logger       *zap.SugaredLogger

	// one deploy per component and one undeploy per instance at a time
	locks *mapmutex.Mutex

	// parent of all poller loops
	pollCtx    context.Context //nolint:containedctx // lives as long as the agent
	pollCancel context.CancelFunc

	mu        sync.RWMutex
	instances map[models.ComponentInstanceID]*lifecycle.Instance
	closed    bool
}

func New(deps lifecycle.Deps, pollInterval time.Duration, log *zap.SugaredLogger) *Agent {
	ctx, cancel := context.WithCancel(context.Background())

	return &Agent{
		deps:         deps,
		pollInterval: pollInterval,
		logger:       log,
		// up to ~50 retries, 10ns base delay growing by 1.5 to at most 100ms
		locks:      mapmutex.NewCustomizedMapMutex(50, 100000000, 10, 1.5, 0.2),
		pollCtx:    ctx,
		pollCancel: cancel,
		instances:  map[models.ComponentInstanceID]*lifecycle.Instance{},
	}
}

func componentKey(name string) string { return "component/" + name }

func instanceKey(id models.ComponentInstanceID) string { return "instance/" + id.String() }

// Deploy creates and initialises a new instance of component and starts
// polling its out ports. When a step fails the instance stays registered in
// the state it failed in, so it can be inspected and undeployed.
func (a *Agent) Deploy(ctx context.Context, component config.ComponentConfig) (models.ComponentInstanceID, error) {
	key := componentKey(component.Name)
	if !a.locks.TryLock(key) {
		return "", fmt.Errorf("%w: deploy of %s", ErrBusy, component.Name)
	}
	defer a.locks.Unlock(key)

	inst, err := lifecycle.NewInstance(component, a.deps)
	if err != nil {
		return "", err
	}

	if err := a.track(inst); err != nil {
		return "", err
	}

	// an undeploy arriving mid deploy waits until polling has started
	instKey := instanceKey(inst.ID())
	if !a.locks.TryLock(instKey) {
		return inst.ID(), fmt.Errorf("%w: deploy of %s", ErrBusy, inst.ID())
	}
	defer a.locks.Unlock(instKey)

	a.logger.Infof("Deploying %s as %s", component.Name, inst.ID())

	if err := inst.Create(ctx); err != nil {
		return inst.ID(), a.failed(inst, "create", err)
	}

	if err := inst.Init(ctx); err != nil {
		return inst.ID(), a.failed(inst, "init", err)
	}

	if err := inst.StartPolling(a.pollCtx, a.pollInterval); err != nil {
		return inst.ID(), a.failed(inst, "start polling", err)
	}

	a.logger.Infof("%s %s is ready", component.Name, inst.ID())

	return inst.ID(), nil
}

// DeployAll deploys every component once. Providers should be listed before
// their consumers, but order only affects how soon the first binding appears.
func (a *Agent) DeployAll(ctx context.Context, components []config.ComponentConfig) error {
	var errs []error

	for _, c := range components {
		if _, err := a.Deploy(ctx, c); err != nil {
			a.logger.Errorf("Deploying %s failed: %v", c.Name, err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (a *Agent) track(inst *lifecycle.Instance) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrShutdown
	}

	a.instances[inst.ID()] = inst

	return nil
}

func (a *Agent) failed(inst *lifecycle.Instance, operation string, err error) error {
	metrics.IncErrorCount(metrics.ComponentAgent, inst.ID().String())
	sentry.ReportInstanceError(a.logger, inst.ID().String(), lifecycle.MachineName, operation, err)

	return fmt.Errorf("%s %s: %w", operation, inst.ID(), err)
}

// Undeploy stops polling and destroys the instance. Destroyed instances are forgotten.
func (a *Agent) Undeploy(ctx context.Context, id models.ComponentInstanceID) error {
	inst, ok := a.Instance(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownInstance, id)
	}

	key := instanceKey(id)
	if !a.locks.TryLock(key) {
		return fmt.Errorf("%w: undeploy of %s", ErrBusy, id)
	}
	defer a.locks.Unlock(key)

	inst.StopPolling()

	if inst.State() != lifecycle.StateNew {
		if err := inst.Destroy(ctx); err != nil {
			return a.failed(inst, "destroy", err)
		}
	}

	a.mu.Lock()
	delete(a.instances, id)
	a.mu.Unlock()

	a.logger.Infof("Undeployed %s", id)

	return nil
}

func (a *Agent) Instance(id models.ComponentInstanceID) (*lifecycle.Instance, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	inst, ok := a.instances[id]

	return inst, ok
}

// Instances returns all tracked instances ordered by component name and id.
func (a *Agent) Instances() []*lifecycle.Instance {
	a.mu.RLock()
	out := make([]*lifecycle.Instance, 0, len(a.instances))
	for _, inst := range a.instances {
		out = append(out, inst)
	}
	a.mu.RUnlock()

	slices.SortFunc(out, func(x, y *lifecycle.Instance) int {
		if c := strings.Compare(x.Component().Name, y.Component().Name); c != 0 {
			return c
		}

		return strings.Compare(x.ID().String(), y.ID().String())
	})

	return out
}

// Ready reports whether the registry can be reached.
func (a *Agent) Ready(ctx context.Context) error {
	return a.deps.Registry.Ping(ctx)
}

// Shutdown refuses new deploys, undeploys every instance in parallel and stops all pollers.
// A failing undeploy does not stop the others; all failures are returned together.
func (a *Agent) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)

	for _, inst := range a.Instances() {
		id := inst.ID()
		g.Go(func() error {
			if err := a.Undeploy(ctx, id); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}

			return nil
		})
	}

	_ = g.Wait()
	a.pollCancel()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	a.logger.Info("All instances undeployed")

	return nil
}
