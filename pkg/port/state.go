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
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/lca-core/pkg/metrics"
	"github.com/united-manufacturing-hub/lca-core/pkg/models"
)

// OutPortState owns the sinks bound to one out port of one instance.
//
// The sink map is never mutated in place. UpdateWithDiff and Clear replace it
// under mu; every reader receives a copy.
type OutPortState struct {
	instance models.ComponentInstanceID
	port     OutPort
	logger   *zap.SugaredLogger

	mu    sync.Mutex
	sinks map[models.ComponentInstanceID]SinkState

	// serializes UpdateWithDiff so the captured snapshot matches the swapped map
	updateMu sync.Mutex
}

func NewOutPortState(instance models.ComponentInstanceID, port OutPort, logger *zap.SugaredLogger) *OutPortState {
	return &OutPortState{
		instance: instance,
		port:     port,
		logger:   logger,
		sinks:    map[models.ComponentInstanceID]SinkState{},
	}
}

func (s *OutPortState) Instance() models.ComponentInstanceID { return s.instance }

func (s *OutPortState) Port() OutPort { return s.port }

// MatchesPort compares by name only; bounds are ignored.
func (s *OutPortState) MatchesPort(candidate OutPort) bool {
	return s.port.NamesMatch(candidate)
}

// Snapshot returns a copy of the current sink map.
func (s *OutPortState) Snapshot() map[models.ComponentInstanceID]SinkState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return maps.Clone(s.sinks)
}

func (s *OutPortState) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sinks)
}

// UpdateWithDiff replaces the sink map with a copy of next and returns what changed.
func (s *OutPortState) UpdateWithDiff(next map[models.ComponentInstanceID]SinkState) PortDiff[DownstreamAddress] {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	captured := s.Snapshot()
	fresh := maps.Clone(next)
	if fresh == nil {
		fresh = map[models.ComponentInstanceID]SinkState{}
	}

	s.mu.Lock()
	prev := s.sinks
	s.sinks = fresh
	s.mu.Unlock()

	if !maps.Equal(prev, captured) {
		s.logger.Warnf("Sink map of port %s on %s changed between snapshot and swap, keeping the newer value", s.port.Name, s.instance)
		metrics.IncSinkContention(s.port.Name)
	}

	metrics.SetSinkCount(s.instance.String(), s.port.Name, len(fresh))

	return ComputeDiff(prev, fresh)
}

// Clear drops all sinks, e.g. when the instance is torn down.
func (s *OutPortState) Clear() {
	s.mu.Lock()
	s.sinks = map[models.ComponentInstanceID]SinkState{}
	s.mu.Unlock()

	metrics.SetSinkCount(s.instance.String(), s.port.Name, 0)
}

// RequiredAndSet reports whether more than LowerBound sinks are bound.
func (s *OutPortState) RequiredAndSet() bool {
	return s.Size() > s.port.LowerBound
}

// SinksByHierarchyLevel groups the addresses of all sinks per level, ordered by sink id.
func (s *OutPortState) SinksByHierarchyLevel() map[HierarchyLevel][]DownstreamAddress {
	snapshot := s.Snapshot()
	ids := slices.Sorted(maps.Keys(snapshot))

	out := make(map[HierarchyLevel][]DownstreamAddress, levelCount)
	for _, l := range AllLevels() {
		out[l] = make([]DownstreamAddress, 0, len(ids))
	}

	for _, id := range ids {
		snapshot[id].Each(func(l HierarchyLevel, addr DownstreamAddress) {
			out[l] = append(out[l], addr)
		})
	}

	return out
}

// SinksAtLevel returns the addresses of all sinks at one level, ordered by sink id.
func (s *OutPortState) SinksAtLevel(level HierarchyLevel) []DownstreamAddress {
	return s.SinksByHierarchyLevel()[level]
}

// AdaptSinkListByBoundaries applies the port bounds to a candidate list.
// It fails when fewer than LowerBound candidates exist and otherwise keeps
// at most UpperBound of them in their given order.
func (s *OutPortState) AdaptSinkListByBoundaries(candidates []DownstreamAddress) ([]DownstreamAddress, bool) {
	return AdaptToBounds(s.port, candidates)
}

// AdaptToBounds is AdaptSinkListByBoundaries for a bare port declaration.
func AdaptToBounds[V any](p OutPort, candidates []V) ([]V, bool) {
	if len(candidates) < p.LowerBound {
		return nil, false
	}

	if p.Unbounded() || len(candidates) <= p.UpperBound {
		return slices.Clone(candidates), true
	}

	return slices.Clone(candidates[:p.UpperBound]), true
}
