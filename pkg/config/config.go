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

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/tiendc/go-deepcopy"

	"github.com/united-manufacturing-hub/lca-core/pkg/port"
)

const (
	RegistryTypeMemory = "memory"
	RegistryTypeRedis  = "redis"

	BackendTypeDocker = "docker"
	BackendTypeMemory = "memory"
)

// FullConfig is the complete agent configuration.
type FullConfig struct {
	Agent      AgentConfig       `yaml:"agent"`
	Registry   RegistryConfig    `yaml:"registry"`
	Backend    BackendConfig     `yaml:"backend"`
	Components []ComponentConfig `yaml:"components"`
}

type AgentConfig struct {
	HostID string `yaml:"hostId"`
	// HostAddress is how other containers on this host reach mapped ports.
	HostAddress string `yaml:"hostAddress"`
	// PublicAddress is how other hosts reach this host.
	PublicAddress string        `yaml:"publicAddress"`
	PollInterval  time.Duration `yaml:"pollInterval"`
	PoolWorkers   int           `yaml:"poolWorkers"`
	PoolQueueSize int           `yaml:"poolQueueSize"`
	MetricsPort   int           `yaml:"metricsPort"`
	APIPort       int           `yaml:"apiPort"`
	HealthPort    int           `yaml:"healthPort"`
	SentryDSN     string        `yaml:"sentryDsn,omitempty"`
}

type RegistryConfig struct {
	Type    string        `yaml:"type"`
	TTL     time.Duration `yaml:"ttl"`
	Timeout time.Duration `yaml:"timeout"`
	Redis   RedisConfig   `yaml:"redis,omitempty"`
}

// RedisConfig connects either to a single node or, with MasterName set, through sentinels.
type RedisConfig struct {
	Addrs      []string `yaml:"addrs"`
	MasterName string   `yaml:"masterName,omitempty"`
	Password   string   `yaml:"password,omitempty"`
	DB         int      `yaml:"db"`
}

type BackendConfig struct {
	Type        string `yaml:"type"`
	PullRetries uint64 `yaml:"pullRetries"`
	Network     string `yaml:"network,omitempty"`
}

// ComponentConfig describes one deployable component.
type ComponentConfig struct {
	Name     string            `yaml:"name"`
	Image    string            `yaml:"image"`
	InPorts  []port.InPort     `yaml:"inPorts,omitempty"`
	OutPorts []OutPortConfig   `yaml:"outPorts,omitempty"`
	Env      map[string]string `yaml:"env,omitempty"`
	Restart  string            `yaml:"restart,omitempty"`
	Commands LifecycleCommands `yaml:"commands,omitempty"`
}

// OutPortConfig adds how the bound sinks are handed to the component.
type OutPortConfig struct {
	port.OutPort `yaml:",inline"`
	// AddressLevel selects which address of every sink is exported.
	AddressLevel port.HierarchyLevel `yaml:"addressLevel"`
	// EnvVar receives the comma separated sink list. Defaults to the upper cased port name.
	EnvVar string `yaml:"envVar,omitempty"`
}

// EnvName is EnvVar or, when unset, the port name upper cased with dashes turned into underscores.
func (o OutPortConfig) EnvName() string {
	if o.EnvVar != "" {
		return o.EnvVar
	}

	return strings.ToUpper(strings.ReplaceAll(o.Name, "-", "_"))
}

// LifecycleCommands are run inside the container. Empty commands are skipped.
type LifecycleCommands struct {
	Install     []string `yaml:"install,omitempty"`
	PostInstall []string `yaml:"postInstall,omitempty"`
	Start       []string `yaml:"start,omitempty"`
	Stop        []string `yaml:"stop,omitempty"`
	PortUpdate  []string `yaml:"portUpdate,omitempty"`
}

// Clone returns a deep copy so callers can hand out config without sharing maps and slices.
func (c FullConfig) Clone() FullConfig {
	var clone FullConfig
	if err := deepcopy.Copy(&clone, &c); err != nil {
		// deepcopy only fails on type mismatches, which cannot happen between two FullConfig values
		panic(fmt.Sprintf("clone config: %v", err))
	}

	return clone
}

func (c ComponentConfig) Clone() ComponentConfig {
	var clone ComponentConfig
	if err := deepcopy.Copy(&clone, &c); err != nil {
		panic(fmt.Sprintf("clone component config: %v", err))
	}

	return clone
}

// Component returns the configuration of the named component.
func (c FullConfig) Component(name string) (ComponentConfig, bool) {
	for _, comp := range c.Components {
		if comp.Name == name {
			return comp.Clone(), true
		}
	}

	return ComponentConfig{}, false
}
