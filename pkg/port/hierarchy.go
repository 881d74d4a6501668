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

// Package port tracks the sinks bound to the out ports of component instances.
//
// An OutPortState owns the sink map of one out port and only ever replaces it
// as a whole. A Poller refreshes that map from the registry and hands every
// change, as a PortDiff, to an update callback that never runs twice at the
// same time for the same port.
package port

import (
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// HierarchyLevel is one visibility scope of an endpoint. Lower levels are more specific.
type HierarchyLevel int

const (
	// LevelContainer is reachable from inside the container network.
	LevelContainer HierarchyLevel = iota
	// LevelHost is the port mapped on the host the container runs on.
	LevelHost
	// LevelPublic is reachable from other hosts.
	LevelPublic

	levelCount
)

// ErrIncompleteLevels is returned when a HierarchyLevelState is built without a value for every level.
var ErrIncompleteLevels = errors.New("hierarchy level state incomplete")

var levelNames = [levelCount]string{"container", "host", "public"}

// AllLevels returns every level in order, most specific first.
func AllLevels() []HierarchyLevel {
	return []HierarchyLevel{LevelContainer, LevelHost, LevelPublic}
}

func (l HierarchyLevel) Valid() bool {
	return l >= 0 && l < levelCount
}

func (l HierarchyLevel) String() string {
	if !l.Valid() {
		return fmt.Sprintf("level(%d)", int(l))
	}

	return levelNames[l]
}

// ParseHierarchyLevel accepts the level name or its number.
func ParseHierarchyLevel(s string) (HierarchyLevel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range levelNames {
		if s == name || s == fmt.Sprint(i) {
			return HierarchyLevel(i), nil
		}
	}

	return 0, fmt.Errorf("unknown hierarchy level %q", s)
}

func (l HierarchyLevel) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid hierarchy level %d", int(l))
	}

	return []byte(l.String()), nil
}

func (l *HierarchyLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseHierarchyLevel(string(text))
	if err != nil {
		return err
	}

	*l = parsed

	return nil
}

// HierarchyLevelState holds one value per hierarchy level for a single sink.
// It is a comparable value; a changed sink is represented by a new state.
type HierarchyLevelState[V comparable] struct {
	values [levelCount]V
}

// ValueAtLevel returns the value registered for level.
func (s HierarchyLevelState[V]) ValueAtLevel(level HierarchyLevel) (V, bool) {
	if !level.Valid() {
		var zero V

		return zero, false
	}

	return s.values[level], true
}

// Each calls fn for every level in order.
func (s HierarchyLevelState[V]) Each(fn func(level HierarchyLevel, value V)) {
	for _, l := range AllLevels() {
		fn(l, s.values[l])
	}
}

func (s HierarchyLevelState[V]) String() string {
	parts := make([]string, 0, levelCount)
	s.Each(func(l HierarchyLevel, v V) {
		parts = append(parts, fmt.Sprintf("%s=%v", l, v))
	})

	return "{" + strings.Join(parts, " ") + "}"
}

func (s HierarchyLevelState[V]) MarshalJSON() ([]byte, error) {
	out := make(map[string]V, levelCount)
	s.Each(func(l HierarchyLevel, v V) {
		out[l.String()] = v
	})

	return json.Marshal(out)
}

func (s *HierarchyLevelState[V]) UnmarshalJSON(data []byte) error {
	var in map[string]V
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	b := NewHierarchyLevelStateBuilder[V]()

	for name, v := range in {
		l, err := ParseHierarchyLevel(name)
		if err != nil {
			return err
		}

		b.RegisterValueAtLevel(l, v)
	}

	built, err := b.Build()
	if err != nil {
		return err
	}

	*s = built

	return nil
}

// HierarchyLevelStateBuilder collects the per level values of a sink.
type HierarchyLevelStateBuilder[V comparable] struct {
	values [levelCount]V
	set    [levelCount]bool
	err    error
}

func NewHierarchyLevelStateBuilder[V comparable]() *HierarchyLevelStateBuilder[V] {
	return &HierarchyLevelStateBuilder[V]{}
}

// RegisterValueAtLevel sets the value for level. Later registrations win.
func (b *HierarchyLevelStateBuilder[V]) RegisterValueAtLevel(level HierarchyLevel, value V) *HierarchyLevelStateBuilder[V] {
	if !level.Valid() {
		b.err = fmt.Errorf("invalid hierarchy level %d", int(level))

		return b
	}

	b.values[level] = value
	b.set[level] = true

	return b
}

// Build returns the state once every level has a value.
func (b *HierarchyLevelStateBuilder[V]) Build() (HierarchyLevelState[V], error) {
	if b.err != nil {
		return HierarchyLevelState[V]{}, b.err
	}

	for l, ok := range b.set {
		if !ok {
			return HierarchyLevelState[V]{}, fmt.Errorf("%w: no value for level %s", ErrIncompleteLevels, HierarchyLevel(l))
		}
	}

	return HierarchyLevelState[V]{values: b.values}, nil
}

// Uniform returns a state with the same value at every level.
func Uniform[V comparable](value V) HierarchyLevelState[V] {
	var s HierarchyLevelState[V]
	for l := range s.values {
		s.values[l] = value
	}

	return s
}
