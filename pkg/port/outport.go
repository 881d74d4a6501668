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
	"net"
	"strconv"
)

// InfiniteSinks as an upper bound means the number of sinks is not limited.
const InfiniteSinks = -1

// OutPort declares an outbound connection point of a component.
type OutPort struct {
	Name string `yaml:"name" json:"name"`
	// LowerBound is compared strictly: the port is satisfied with more than LowerBound sinks.
	LowerBound int `yaml:"lowerBound" json:"lowerBound"`
	UpperBound int `yaml:"upperBound" json:"upperBound"`
}

// Unbounded reports whether the upper bound is InfiniteSinks.
func (p OutPort) Unbounded() bool {
	return p.UpperBound == InfiniteSinks
}

// NamesMatch reports whether both declarations name the same port.
func (p OutPort) NamesMatch(other OutPort) bool {
	return p.Name == other.Name
}

// Validate checks the bounds of the declaration.
func (p OutPort) Validate() error {
	switch {
	case p.Name == "":
		return fmt.Errorf("out port without name")
	case p.LowerBound < 0:
		return fmt.Errorf("out port %s: negative lower bound %d", p.Name, p.LowerBound)
	case p.UpperBound != InfiniteSinks && p.UpperBound < 1:
		return fmt.Errorf("out port %s: upper bound %d must be positive or %d", p.Name, p.UpperBound, InfiniteSinks)
	case p.UpperBound != InfiniteSinks && p.UpperBound < p.LowerBound:
		return fmt.Errorf("out port %s: upper bound %d below lower bound %d", p.Name, p.UpperBound, p.LowerBound)
	}

	return nil
}

// InPort declares an inbound connection point: the port the component listens on inside its container.
type InPort struct {
	Name string `yaml:"name" json:"name"`
	Port int    `yaml:"port" json:"port"`
}

// DownstreamAddress is a sink endpoint as seen at one hierarchy level.
type DownstreamAddress struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (a DownstreamAddress) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// ParseDownstreamAddress parses "host:port".
func ParseDownstreamAddress(s string) (DownstreamAddress, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return DownstreamAddress{}, fmt.Errorf("parse downstream address %q: %w", s, err)
	}

	p, err := strconv.Atoi(portStr)
	if err != nil || p <= 0 || p > 65535 {
		return DownstreamAddress{}, fmt.Errorf("parse downstream address %q: invalid port", s)
	}

	return DownstreamAddress{Host: host, Port: p}, nil
}

// SinkState is the per level address set of one sink.
type SinkState = HierarchyLevelState[DownstreamAddress]
