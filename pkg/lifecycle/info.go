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
	"time"

	"github.com/united-manufacturing-hub/lca-core/pkg/container"
	"github.com/united-manufacturing-hub/lca-core/pkg/port"
)

// Info is a point in time view of an instance.
type Info struct {
	ID        string     `json:"id"`
	Component string     `json:"component"`
	Image     string     `json:"image"`
	State     State      `json:"state"`
	InFlight  bool       `json:"inFlight"`
	Parked    string     `json:"parked,omitempty"`
	LastError string     `json:"lastError,omitempty"`
	Command   string     `json:"command,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	OutPorts  []PortInfo `json:"outPorts"`
}

// PortInfo describes the binding state of one out port.
type PortInfo struct {
	Name           string                              `json:"name"`
	LowerBound     int                                 `json:"lowerBound"`
	UpperBound     int                                 `json:"upperBound"`
	Sinks          int                                 `json:"sinks"`
	Satisfied      bool                                `json:"satisfied"`
	UpdateInFlight bool                                `json:"updateInFlight"`
	Misses         int                                 `json:"registryMisses"`
	Addresses      map[string][]port.DownstreamAddress `json:"addresses"`
}

// Info collects the machine and out port state of the instance.
func (i *Instance) Info() Info {
	info := Info{
		ID:        i.id.String(),
		Component: i.component.Name,
		Image:     i.component.Image,
		State:     i.State(),
		InFlight:  i.machine.InFlight(),
		CreatedAt: i.created,
	}

	if cmd, err := container.RunCommandFor(container.ContainerName(i.id), i.spec()); err == nil {
		info.Command = cmd.String()
	}

	if t, ok := i.machine.Parked(); ok {
		info.Parked = t.String()
	}

	if err := i.machine.LastError(); err != nil {
		info.LastError = err.Error()
	}

	pollers := map[string]*port.Poller{}
	for _, p := range i.Pollers() {
		pollers[p.State().Port().Name] = p
	}

	for _, state := range i.outPorts {
		pi := PortInfo{
			Name:       state.Port().Name,
			LowerBound: state.Port().LowerBound,
			UpperBound: state.Port().UpperBound,
			Sinks:      state.Size(),
			Satisfied:  state.RequiredAndSet(),
			Addresses:  map[string][]port.DownstreamAddress{},
		}

		for level, addrs := range state.SinksByHierarchyLevel() {
			pi.Addresses[level.String()] = addrs
		}

		if p, ok := pollers[pi.Name]; ok {
			pi.UpdateInFlight = p.UpdateInFlight()
			pi.Misses = p.Misses()
		}

		info.OutPorts = append(info.OutPorts, pi)
	}

	return info
}
