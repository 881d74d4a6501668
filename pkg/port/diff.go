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
	"fmt"
	"maps"
	"slices"

	"github.com/united-manufacturing-hub/lca-core/pkg/models"
)

// PortDiff is the change between two sink maps of an out port.
//
// Only ids are compared: a sink whose addresses changed under the same id is
// neither added nor removed.
type PortDiff[V comparable] struct {
	added   []models.ComponentInstanceID
	removed []models.ComponentInstanceID
	current map[models.ComponentInstanceID]HierarchyLevelState[V]
}

// ComputeDiff returns keys(next)-keys(prev) as added and keys(prev)-keys(next) as removed.
func ComputeDiff[V comparable](prev, next map[models.ComponentInstanceID]HierarchyLevelState[V]) PortDiff[V] {
	d := PortDiff[V]{current: maps.Clone(next)}
	if d.current == nil {
		d.current = map[models.ComponentInstanceID]HierarchyLevelState[V]{}
	}

	for id := range next {
		if _, ok := prev[id]; !ok {
			d.added = append(d.added, id)
		}
	}

	for id := range prev {
		if _, ok := next[id]; !ok {
			d.removed = append(d.removed, id)
		}
	}

	slices.Sort(d.added)
	slices.Sort(d.removed)

	return d
}

// Added returns the ids present only in the newer map, sorted.
func (d PortDiff[V]) Added() []models.ComponentInstanceID {
	return slices.Clone(d.added)
}

// Removed returns the ids present only in the older map, sorted.
func (d PortDiff[V]) Removed() []models.ComponentInstanceID {
	return slices.Clone(d.removed)
}

func (d PortDiff[V]) HasDiffs() bool {
	return len(d.added) > 0 || len(d.removed) > 0
}

// Current returns a copy of the sink map the diff leads to.
func (d PortDiff[V]) Current() map[models.ComponentInstanceID]HierarchyLevelState[V] {
	return maps.Clone(d.current)
}

func (d PortDiff[V]) String() string {
	return fmt.Sprintf("+%v -%v", d.added, d.removed)
}
