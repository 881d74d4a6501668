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

package fsm

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/united-manufacturing-hub/lca-core/pkg/metrics"
	"github.com/united-manufacturing-hub/lca-core/pkg/workerpool"
)

// StateMachine drives one entity through a fixed state graph.
//
// At most one transition is in flight at any time. Fire never queues: a call
// made while a transition is running fails with ErrTransitionInProgress.
// A failed asynchronous action leaves the machine in the intermediate state
// until Retry succeeds or another transition out of that state is fired.
type StateMachine[T ~string] struct {
	machine string
	entity  string
	initial T

	states      []T
	transitions []StateTransition[T]
	index       map[T]map[T]StateTransition[T]
	observers   []StateObserver[T]

	fsm        *fsm.FSM
	inflight   *semaphore.Weighted
	busy       atomic.Bool
	dispatcher Dispatcher
	logger     *zap.SugaredLogger

	mu      sync.Mutex
	parked  *StateTransition[T]
	lastErr error
}

// Entity returns the id of the tracked entity.
func (m *StateMachine[T]) Entity() string { return m.entity }

// Current returns the state the entity is in.
func (m *StateMachine[T]) Current() T {
	return T(m.fsm.Current())
}

// InFlight reports whether a transition is currently executing.
func (m *StateMachine[T]) InFlight() bool {
	return m.busy.Load()
}

func (m *StateMachine[T]) acquire() bool {
	if !m.inflight.TryAcquire(1) {
		return false
	}

	m.busy.Store(true)

	return true
}

func (m *StateMachine[T]) release() {
	m.busy.Store(false)
	m.inflight.Release(1)
}

// Parked returns the asynchronous transition whose action failed, if the
// entity is still waiting in its intermediate state.
func (m *StateMachine[T]) Parked() (StateTransition[T], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.parked == nil {
		return StateTransition[T]{}, false
	}

	return *m.parked, true
}

// LastError returns the error of the most recent failed transition, or nil
// once a later transition succeeded.
func (m *StateMachine[T]) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lastErr
}

// States returns the declared states in declaration order.
func (m *StateMachine[T]) States() []T {
	out := make([]T, len(m.states))
	copy(out, m.states)

	return out
}

// Transitions returns the declared transitions in declaration order.
func (m *StateMachine[T]) Transitions() []StateTransition[T] {
	out := make([]StateTransition[T], len(m.transitions))
	copy(out, m.transitions)

	return out
}

// Can reports whether a transition to the target exists from the current state.
func (m *StateMachine[T]) Can(to T) bool {
	_, ok := m.index[m.Current()][to]

	return ok
}

// Graph renders the state graph as a mermaid state diagram.
func (m *StateMachine[T]) Graph() (string, error) {
	return fsm.VisualizeWithType(m.fsm, fsm.MermaidStateDiagram)
}

// Fire starts the transition from the current state to the target state.
//
// The returned error reports why the transition could not be started or, for
// synchronous transitions, why its action failed. The channel yields the
// final result exactly once: immediately for synchronous transitions, after
// the action completed for asynchronous ones.
func (m *StateMachine[T]) Fire(ctx context.Context, to T) (<-chan error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !m.acquire() {
		return nil, fmt.Errorf("%w: %s %s towards %s", ErrTransitionInProgress, m.machine, m.entity, to)
	}

	from := m.Current()

	t, ok := m.index[from][to]
	if !ok {
		if parked, isParked := m.Parked(); isParked && from == parked.Intermediate && to == parked.To {
			m.logger.Infof("Retrying transition %s of %s", parked, m.entity)

			return m.dispatch(parked)
		}

		m.release()

		return nil, fmt.Errorf("%w from state %s to %s", ErrIllegalTransition, from, to)
	}

	if !t.IsAsynchronous() {
		err := m.fireSync(ctx, t)
		m.release()

		return resolved(err), err
	}

	if err := m.event(ctx, t.startEvent()); err != nil {
		m.release()

		return nil, err
	}

	return m.dispatch(t)
}

// FireAndWait fires the transition and blocks until it has completed or ctx is done.
// Returning on ctx does not abort an asynchronous action that is already running.
func (m *StateMachine[T]) FireAndWait(ctx context.Context, to T) error {
	done, err := m.Fire(ctx, to)
	if err != nil {
		return err
	}

	return wait(ctx, done)
}

// Retry runs the action of the parked asynchronous transition again.
func (m *StateMachine[T]) Retry(ctx context.Context) (<-chan error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !m.acquire() {
		return nil, fmt.Errorf("%w: %s %s retry", ErrTransitionInProgress, m.machine, m.entity)
	}

	t, ok := m.Parked()
	if !ok || m.Current() != t.Intermediate {
		m.release()

		return nil, fmt.Errorf("%w: %s %s is in state %s", ErrNotParked, m.machine, m.entity, m.Current())
	}

	m.logger.Infof("Retrying transition %s of %s", t, m.entity)

	return m.dispatch(t)
}

// RetryAndWait retries the parked transition and waits for its result.
func (m *StateMachine[T]) RetryAndWait(ctx context.Context) error {
	done, err := m.Retry(ctx)
	if err != nil {
		return err
	}

	return wait(ctx, done)
}

func (m *StateMachine[T]) fireSync(ctx context.Context, t StateTransition[T]) error {
	if err := m.execute(ctx, t); err != nil {
		return err
	}

	return m.event(ctx, t.startEvent())
}

// dispatch hands the action of t to the dispatcher. The caller holds the
// in-flight permit; it is released once the action and the final state
// change are done.
func (m *StateMachine[T]) dispatch(t StateTransition[T]) (<-chan error, error) {
	done := make(chan error, 1)

	task := workerpool.Task{
		Name: fmt.Sprintf("%s %s %s", m.machine, m.entity, t),
		Run: func(ctx context.Context) error {
			err := m.completeAsync(ctx, t)
			done <- err
			close(done)

			return err
		},
	}

	if err := m.dispatcher.Submit(task); err != nil {
		err = fmt.Errorf("%w: %s: dispatch: %w", ErrActionFailed, t, err)
		m.park(t, err)
		m.release()

		return nil, err
	}

	return done, nil
}

func (m *StateMachine[T]) completeAsync(ctx context.Context, t StateTransition[T]) error {
	defer m.release()

	if err := m.execute(ctx, t); err != nil {
		m.park(t, err)

		return err
	}

	if err := m.event(ctx, t.doneEvent()); err != nil {
		m.park(t, err)

		return err
	}

	return nil
}

func (m *StateMachine[T]) execute(ctx context.Context, t StateTransition[T]) error {
	start := time.Now()
	err := runAction(ctx, t.Action)
	metrics.RecordTransition(m.machine, string(t.To), time.Since(start), err)

	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrActionFailed, t, err)
		m.logger.Warnf("Transition %s of %s failed after %s: %v", t, m.entity, time.Since(start), err)

		m.mu.Lock()
		m.lastErr = err
		m.mu.Unlock()

		return err
	}

	return nil
}

// runAction turns a panicking action into a failure so the transition parks
// and its caller hears about it.
func runAction(ctx context.Context, action TransitionAction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &workerpool.PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	return action.Execute(ctx)
}

func (m *StateMachine[T]) park(t StateTransition[T], err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.parked = &t
	m.lastErr = err
}

func (m *StateMachine[T]) event(ctx context.Context, name string) error {
	err := m.fsm.Event(context.WithoutCancel(ctx), name)

	var noTransition fsm.NoTransitionError
	if err == nil || errors.As(err, &noTransition) {
		return nil
	}

	return fmt.Errorf("%s %s: event %s: %w", m.machine, m.entity, name, err)
}

// entered runs inside the looplab enter_state callback.
func (m *StateMachine[T]) entered(from, to T) {
	m.mu.Lock()
	if m.parked != nil && to != m.parked.Intermediate {
		m.parked = nil
	}
	if m.parked == nil {
		m.lastErr = nil
	}
	m.mu.Unlock()

	m.logger.Debugf("Entering %s state for %s %s (from %s)", to, m.machine, m.entity, from)
	metrics.UpdateInstanceState(m.machine, m.entity, string(from), string(to))

	for _, o := range m.observers {
		o(m.entity, from, to)
	}
}

func resolved(err error) <-chan error {
	ch := make(chan error, 1)
	ch <- err
	close(ch)

	return ch
}

func wait(ctx context.Context, done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
