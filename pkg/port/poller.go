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

package port

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/lca-core/pkg/metrics"
	"github.com/united-manufacturing-hub/lca-core/pkg/models"
	"github.com/united-manufacturing-hub/lca-core/pkg/workerpool"
)

// SinkQuerier returns the sinks currently registered for a port name.
// Failures wrap ErrRegistryAccess.
type SinkQuerier interface {
	QuerySinks(ctx context.Context, portName string) (map[models.ComponentInstanceID]SinkState, error)
}

// PortUpdateCallback reacts to a changed sink set. A Poller never runs it
// twice at the same time.
type PortUpdateCallback interface {
	HandleUpdate(ctx context.Context, state *OutPortState, diff PortDiff[DownstreamAddress]) error
}

type PortUpdateCallbackFunc func(ctx context.Context, state *OutPortState, diff PortDiff[DownstreamAddress]) error

func (f PortUpdateCallbackFunc) HandleUpdate(ctx context.Context, state *OutPortState, diff PortDiff[DownstreamAddress]) error {
	return f(ctx, state, diff)
}

// Dispatcher runs update callbacks off the polling goroutine. *workerpool.TaskPool implements it.
type Dispatcher interface {
	Submit(task workerpool.Task) error
}

// CycleOutcome is the result of a single poll cycle.
type CycleOutcome string

const (
	OutcomeMissed     CycleOutcome = "missed"
	OutcomeUnchanged  CycleOutcome = "unchanged"
	OutcomeSkipped    CycleOutcome = "skipped"
	OutcomeDispatched CycleOutcome = "dispatched"
	OutcomeRefused    CycleOutcome = "refused"
	OutcomeCancelled  CycleOutcome = "cancelled"
)

// Poller keeps one OutPortState in line with the registry.
type Poller struct {
	state      *OutPortState
	querier    SinkQuerier
	callback   PortUpdateCallback
	dispatcher Dispatcher
	logger     *zap.SugaredLogger

	available atomic.Bool
	misses    atomic.Int64
}

func NewPoller(state *OutPortState, querier SinkQuerier, callback PortUpdateCallback, dispatcher Dispatcher, logger *zap.SugaredLogger) *Poller {
	p := &Poller{
		state:      state,
		querier:    querier,
		callback:   callback,
		dispatcher: dispatcher,
		logger:     logger,
	}
	p.available.Store(true)

	return p
}

func (p *Poller) State() *OutPortState { return p.state }

// Misses returns the number of consecutive failed registry queries.
func (p *Poller) Misses() int {
	return int(p.misses.Load())
}

// UpdateInFlight reports whether a dispatched callback has not completed yet.
func (p *Poller) UpdateInFlight() bool {
	return !p.available.Load()
}

// RunOnce performs one poll cycle.
//
// A change seen while a callback is still running is not applied to the
// state, so the next cycle after the callback finished picks it up again.
func (p *Poller) RunOnce(ctx context.Context) CycleOutcome {
	outcome := p.cycle(ctx)
	metrics.RecordPollCycle(p.state.Instance().String(), p.state.Port().Name, string(outcome))

	return outcome
}

func (p *Poller) cycle(ctx context.Context) CycleOutcome {
	portName := p.state.Port().Name
	instance := p.state.Instance().String()

	sinks, err := p.querier.QuerySinks(ctx, portName)
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeCancelled
		}

		misses := p.misses.Add(1)
		metrics.SetRegistryMisses(instance, portName, int(misses))

		if !errors.Is(err, ErrRegistryAccess) {
			err = fmt.Errorf("%w: %w", ErrRegistryAccess, err)
		}

		p.logger.Warnf("Registry query for port %s of %s failed (%d consecutive misses): %v", portName, instance, misses, err)

		return OutcomeMissed
	}

	if p.misses.Swap(0) != 0 {
		metrics.SetRegistryMisses(instance, portName, 0)
		p.logger.Infof("Registry reachable again for port %s of %s", portName, instance)
	}

	captured := p.state.Snapshot()
	if !ComputeDiff(captured, sinks).HasDiffs() {
		// same ids, values may still have moved; install them without a callback
		p.state.UpdateWithDiff(sinks)

		return OutcomeUnchanged
	}

	if !p.available.CompareAndSwap(true, false) {
		p.logger.Debugf("Update of port %s on %s still running, deferring change", portName, instance)

		return OutcomeSkipped
	}

	diff := p.state.UpdateWithDiff(sinks)
	if !diff.HasDiffs() {
		p.available.Store(true)

		return OutcomeUnchanged
	}

	p.logger.Infof("Sinks of port %s on %s changed: %s", portName, instance, diff)

	task := workerpool.Task{
		Name: fmt.Sprintf("port update %s/%s", instance, portName),
		Run: func(ctx context.Context) error {
			defer p.available.Store(true)

			return p.callback.HandleUpdate(ctx, p.state, diff)
		},
	}

	if err := p.dispatcher.Submit(task); err != nil {
		// put the old map back so the change is seen again next cycle
		p.state.UpdateWithDiff(captured)
		p.available.Store(true)
		p.logger.Warnf("Could not dispatch update of port %s on %s: %v", portName, instance, err)

		return OutcomeRefused
	}

	return OutcomeDispatched
}
