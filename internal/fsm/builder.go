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
	"fmt"
	"slices"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/united-manufacturing-hub/lca-core/pkg/metrics"
)

// StateObserver is called after an entity entered a new state.
type StateObserver[T ~string] func(entity string, from, to T)

// Builder collects states and transitions and produces a validated StateMachine.
type Builder[T ~string] struct {
	initial     T
	machine     string
	entity      string
	states      []T
	transitions []StateTransition[T]
	observers   []StateObserver[T]
	dispatcher  Dispatcher
	logger      *zap.SugaredLogger
}

// NewBuilder starts a machine that will be seeded at initial.
func NewBuilder[T ~string](initial T) *Builder[T] {
	return &Builder[T]{
		initial: initial,
		machine: "fsm",
		states:  []T{initial},
	}
}

// Named sets the machine kind and the entity the machine tracks, used in logs and metrics.
func (b *Builder[T]) Named(machine, entity string) *Builder[T] {
	b.machine = machine
	b.entity = entity

	return b
}

// WithLogger sets the logger. Defaults to a no-op logger.
func (b *Builder[T]) WithLogger(logger *zap.SugaredLogger) *Builder[T] {
	b.logger = logger

	return b
}

// WithDispatcher sets where asynchronous actions run. Defaults to a new goroutine per action.
func (b *Builder[T]) WithDispatcher(d Dispatcher) *Builder[T] {
	b.dispatcher = d

	return b
}

// OnStateChange registers an observer for every entered state.
func (b *Builder[T]) OnStateChange(o StateObserver[T]) *Builder[T] {
	b.observers = append(b.observers, o)

	return b
}

func (b *Builder[T]) AddState(s T) *Builder[T] {
	if !slices.Contains(b.states, s) {
		b.states = append(b.states, s)
	}

	return b
}

func (b *Builder[T]) AddAllStates(states ...T) *Builder[T] {
	for _, s := range states {
		b.AddState(s)
	}

	return b
}

func (b *Builder[T]) AddSynchronousTransition(from, to T, action TransitionAction) *Builder[T] {
	b.transitions = append(b.transitions, SynchronousTransition(from, to, action))

	return b
}

func (b *Builder[T]) AddAsynchronousTransition(from, intermediate, to T, action TransitionAction) *Builder[T] {
	b.transitions = append(b.transitions, AsynchronousTransition(from, intermediate, to, action))

	return b
}

// Build validates the transition table and returns a machine at the initial state.
func (b *Builder[T]) Build() (*StateMachine[T], error) {
	declared := make(map[T]struct{}, len(b.states))
	for _, s := range b.states {
		declared[s] = struct{}{}
	}

	check := func(t StateTransition[T], s T) error {
		if _, ok := declared[s]; !ok {
			return fmt.Errorf("%w %q in transition %s", ErrUndeclaredState, s, t)
		}

		return nil
	}

	index := make(map[T]map[T]StateTransition[T])
	events := make(fsm.Events, 0, len(b.transitions)*2)

	for _, t := range b.transitions {
		refs := []T{t.From, t.To}
		if t.IsAsynchronous() {
			refs = append(refs, t.Intermediate)
		}

		for _, s := range refs {
			if err := check(t, s); err != nil {
				return nil, err
			}
		}

		if index[t.From] == nil {
			index[t.From] = make(map[T]StateTransition[T])
		}
		if prev, dup := index[t.From][t.To]; dup {
			return nil, fmt.Errorf("%w: %s and %s", ErrDuplicateTransition, prev, t)
		}
		index[t.From][t.To] = t

		if t.IsAsynchronous() {
			events = append(events,
				fsm.EventDesc{Name: t.startEvent(), Src: []string{string(t.From)}, Dst: string(t.Intermediate)},
				fsm.EventDesc{Name: t.doneEvent(), Src: []string{string(t.Intermediate)}, Dst: string(t.To)},
			)
		} else {
			events = append(events, fsm.EventDesc{Name: t.startEvent(), Src: []string{string(t.From)}, Dst: string(t.To)})
		}
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	dispatcher := b.dispatcher
	if dispatcher == nil {
		dispatcher = goroutineDispatcher{}
	}

	m := &StateMachine[T]{
		machine:     b.machine,
		entity:      b.entity,
		initial:     b.initial,
		states:      slices.Clone(b.states),
		transitions: slices.Clone(b.transitions),
		index:       index,
		observers:   slices.Clone(b.observers),
		dispatcher:  dispatcher,
		inflight:    semaphore.NewWeighted(1),
		logger:      logger,
	}

	m.fsm = fsm.NewFSM(string(b.initial), events, fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			m.entered(T(e.Src), T(e.Dst))
		},
	})

	if m.entity != "" {
		metrics.UpdateInstanceState(m.machine, m.entity, "", string(m.initial))
	}

	return m, nil
}
