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

// Package lifecycle drives a component instance from creation to teardown.
package lifecycle

import (
	"github.com/united-manufacturing-hub/lca-core/internal/fsm"
)

// MachineName labels lifecycle machines in logs and metrics.
const MachineName = "lifecycle"

// State is a lifecycle state of a component instance.
type State string

const (
	StateNew          State = "new"
	StateCreating     State = "creating"
	StateCreated      State = "created"
	StateInitialising State = "initialising"
	StateReady        State = "ready"
	StateDestroying   State = "destroying"
	StateDestroyed    State = "destroyed"
)

// AllStates in lifecycle order.
func AllStates() []State {
	return []State{StateNew, StateCreating, StateCreated, StateInitialising, StateReady, StateDestroying, StateDestroyed}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDestroyed
}

type actions struct {
	create  fsm.TransitionAction
	init    fsm.TransitionAction
	destroy fsm.TransitionAction
	abort   fsm.TransitionAction
}

// newBuilder declares the lifecycle graph.
//
//	new -(creating)-> created -(initialising)-> ready -(destroying)-> destroyed
//	created -> destroyed, creating -> destroyed, initialising -> destroyed
//
// The last three drop an instance that never became ready; creating and
// initialising are only left that way after their action failed.
func newBuilder(a actions) *fsm.Builder[State] {
	return fsm.NewBuilder(StateNew).
		AddAllStates(AllStates()...).
		AddAsynchronousTransition(StateNew, StateCreating, StateCreated, a.create).
		AddAsynchronousTransition(StateCreated, StateInitialising, StateReady, a.init).
		AddAsynchronousTransition(StateReady, StateDestroying, StateDestroyed, a.destroy).
		AddSynchronousTransition(StateCreated, StateDestroyed, a.abort).
		AddSynchronousTransition(StateCreating, StateDestroyed, a.abort).
		AddSynchronousTransition(StateInitialising, StateDestroyed, a.abort)
}

// Graph renders the lifecycle graph as a mermaid state diagram.
func Graph() (string, error) {
	m, err := newBuilder(actions{}).Named(MachineName, "").Build()
	if err != nil {
		return "", err
	}

	return m.Graph()
}
