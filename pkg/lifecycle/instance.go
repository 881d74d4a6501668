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

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/lca-core/internal/fsm"
	"github.com/united-manufacturing-hub/lca-core/pkg/config"
	"github.com/united-manufacturing-hub/lca-core/pkg/container"
	"github.com/united-manufacturing-hub/lca-core/pkg/logger"
	"github.com/united-manufacturing-hub/lca-core/pkg/metrics"
	"github.com/united-manufacturing-hub/lca-core/pkg/models"
	"github.com/united-manufacturing-hub/lca-core/pkg/port"
	"github.com/united-manufacturing-hub/lca-core/pkg/registry"
)

// ErrNotReady is returned for operations that need a ready instance.
var ErrNotReady = errors.New("instance not ready")

// Deps are the collaborators shared by all instances of an agent.
type Deps struct {
	Backend  container.Backend
	Registry registry.Registry
	// Dispatcher runs asynchronous actions and port updates, usually a *workerpool.TaskPool.
	Dispatcher fsm.Dispatcher
	Agent      config.AgentConfig
	Logger     *zap.SugaredLogger
}

// Instance is one deployed component and its lifecycle machine.
type Instance struct {
	id        models.ComponentInstanceID
	component config.ComponentConfig
	deps      Deps
	logger    *zap.SugaredLogger
	created   time.Time

	machine  *fsm.StateMachine[State]
	outPorts []*port.OutPortState

	pollMu    sync.Mutex
	scheduler *port.Scheduler
	pollers   []*port.Poller

	// in port registrations published by initialise, kept alive while polling
	registrations []registration
	refresher     *refresher

	// serializes port update commands across out ports of this instance
	execMu sync.Mutex
}

// NewInstance mints an id and prepares an instance in state new.
func NewInstance(component config.ComponentConfig, deps Deps) (*Instance, error) {
	return NewInstanceWithID(models.NewComponentInstanceID(), component, deps)
}

func NewInstanceWithID(id models.ComponentInstanceID, component config.ComponentConfig, deps Deps) (*Instance, error) {
	if deps.Backend == nil || deps.Registry == nil || deps.Dispatcher == nil {
		return nil, errors.New("lifecycle needs a backend, a registry and a dispatcher")
	}

	if deps.Logger == nil {
		deps.Logger = logger.For(logger.ComponentLifecycle)
	}

	i := &Instance{
		id:        id,
		component: component.Clone(),
		deps:      deps,
		logger:    deps.Logger.With("instance", id.Short(), "component", component.Name),
		created:   time.Now(),
	}

	for _, out := range i.component.OutPorts {
		i.outPorts = append(i.outPorts, port.NewOutPortState(id, out.OutPort, i.logger))
	}

	machine, err := newBuilder(actions{
		create:  fsm.TransitionActionFunc(i.create),
		init:    fsm.TransitionActionFunc(i.initialise),
		destroy: fsm.TransitionActionFunc(i.destroy),
		abort:   fsm.TransitionActionFunc(i.abort),
	}).
		Named(MachineName, id.String()).
		WithLogger(i.logger).
		WithDispatcher(deps.Dispatcher).
		OnStateChange(func(_ string, from, to State) {
			if to.Terminal() {
				metrics.ForgetInstance(MachineName, id.String())
			}
		}).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build lifecycle of %s: %w", component.Name, err)
	}

	i.machine = machine

	return i, nil
}

func (i *Instance) ID() models.ComponentInstanceID { return i.id }

func (i *Instance) Component() config.ComponentConfig { return i.component.Clone() }

func (i *Instance) State() State { return i.machine.Current() }

func (i *Instance) Machine() *fsm.StateMachine[State] { return i.machine }

// OutPorts returns the sink states in declaration order.
func (i *Instance) OutPorts() []*port.OutPortState {
	out := make([]*port.OutPortState, len(i.outPorts))
	copy(out, i.outPorts)

	return out
}

func (i *Instance) outPortConfig(name string) (config.OutPortConfig, bool) {
	for _, out := range i.component.OutPorts {
		if out.Name == name {
			return out, true
		}
	}

	return config.OutPortConfig{}, false
}

// Create runs new -> created and waits for it.
func (i *Instance) Create(ctx context.Context) error {
	return i.machine.FireAndWait(ctx, StateCreated)
}

// Init runs created -> ready and waits for it.
func (i *Instance) Init(ctx context.Context) error {
	return i.machine.FireAndWait(ctx, StateReady)
}

// Destroy moves the instance to destroyed from wherever it is. Polling must be stopped first.
func (i *Instance) Destroy(ctx context.Context) error {
	switch i.State() {
	case StateDestroyed:
		return nil
	case StateNew:
		return fmt.Errorf("%w: %s was never created", fsm.ErrIllegalTransition, i.id)
	}

	return i.machine.FireAndWait(ctx, StateDestroyed)
}

// Environment returns the variables a port update command sees: the static
// variables, the component env and one variable per out port.
func (i *Instance) Environment() map[string]string {
	return container.MergeEnv(i.component.Env, i.staticEnv(), i.OutPortEnvironment())
}

func (i *Instance) staticEnv() map[string]string {
	return container.StaticEnvironment(i.deps.Agent.HostID, i.id)
}

// StartPolling starts one poller per out port and, when the registry expires
// entries, keeps the in port registrations alive. It does nothing when already polling.
func (i *Instance) StartPolling(ctx context.Context, interval time.Duration) error {
	i.pollMu.Lock()
	defer i.pollMu.Unlock()

	if i.scheduler != nil {
		return nil
	}

	if i.State() != StateReady {
		return fmt.Errorf("%w: %s is %s", ErrNotReady, i.id, i.State())
	}

	pollLog := logger.For(logger.ComponentPoller).With("instance", i.id.Short())

	i.pollers = i.pollers[:0]
	for _, state := range i.outPorts {
		i.pollers = append(i.pollers, port.NewPoller(state, i.deps.Registry, i, i.deps.Dispatcher, pollLog))
	}

	i.scheduler = port.NewScheduler(interval, pollLog, i.pollers...)
	i.scheduler.Start(ctx)

	if ttl := i.deps.Registry.TTL(); ttl > 0 && len(i.registrations) > 0 {
		i.refresher = i.startRefresher(ctx, ttl/3, i.registrations)
	}

	return nil
}

// StopPolling stops all pollers and the registration refresh and waits for their loops to end.
func (i *Instance) StopPolling() {
	i.pollMu.Lock()
	scheduler, refresher := i.scheduler, i.refresher
	i.scheduler, i.refresher = nil, nil
	i.pollMu.Unlock()

	if refresher != nil {
		refresher.stop()
	}

	if scheduler != nil {
		scheduler.Stop()
	}
}

// Pollers returns the active pollers, empty when not polling.
func (i *Instance) Pollers() []*port.Poller {
	i.pollMu.Lock()
	defer i.pollMu.Unlock()

	if i.scheduler == nil {
		return nil
	}

	return i.scheduler.Pollers()
}
