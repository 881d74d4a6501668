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
)

// TransitionAction is the work attached to a transition.
type TransitionAction interface {
	Execute(ctx context.Context) error
}

// TransitionActionFunc adapts a function to TransitionAction.
type TransitionActionFunc func(ctx context.Context) error

func (f TransitionActionFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// NoAction is a TransitionAction that always succeeds.
var NoAction TransitionAction = TransitionActionFunc(func(context.Context) error { return nil })

// StateTransition is one edge of the state graph. A transition with an
// intermediate state is asynchronous: the machine enters Intermediate when
// fired and reaches To once Action has succeeded.
type StateTransition[T ~string] struct {
	From         T
	To           T
	Intermediate T
	Action       TransitionAction

	async bool
}

// SynchronousTransition describes an edge whose action runs before the state changes.
func SynchronousTransition[T ~string](from, to T, action TransitionAction) StateTransition[T] {
	if action == nil {
		action = NoAction
	}

	return StateTransition[T]{From: from, To: to, Action: action}
}

// AsynchronousTransition describes an edge that passes through intermediate while action runs.
func AsynchronousTransition[T ~string](from, intermediate, to T, action TransitionAction) StateTransition[T] {
	if action == nil {
		action = NoAction
	}

	return StateTransition[T]{From: from, To: to, Intermediate: intermediate, Action: action, async: true}
}

// IsAsynchronous reports whether the transition has an intermediate state.
func (t StateTransition[T]) IsAsynchronous() bool {
	return t.async
}

func (t StateTransition[T]) String() string {
	if t.async {
		return fmt.Sprintf("%s->(%s)->%s", t.From, t.Intermediate, t.To)
	}

	return fmt.Sprintf("%s->%s", t.From, t.To)
}

// event names of the underlying looplab machine
func (t StateTransition[T]) startEvent() string {
	return string(t.From) + "->" + string(t.To)
}

func (t StateTransition[T]) doneEvent() string {
	return t.startEvent() + "/done"
}
