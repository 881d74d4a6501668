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
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidConfig = errors.New("invalid config")

// Validate checks the config after defaults were applied. All problems are reported at once.
func (c FullConfig) Validate() error {
	var errs []error

	switch c.Registry.Type {
	case RegistryTypeMemory:
	case RegistryTypeRedis:
		if len(c.Registry.Redis.Addrs) == 0 {
			errs = append(errs, errors.New("redis registry without addrs"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown registry type %q", c.Registry.Type))
	}

	switch c.Backend.Type {
	case BackendTypeDocker, BackendTypeMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown backend type %q", c.Backend.Type))
	}

	if c.Agent.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %s", c.Agent.PollInterval))
	}

	if c.Agent.PoolWorkers <= 0 || c.Agent.PoolQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("pool needs workers and queue, got %d/%d", c.Agent.PoolWorkers, c.Agent.PoolQueueSize))
	}

	names := make(map[string]struct{}, len(c.Components))
	for _, comp := range c.Components {
		if _, dup := names[comp.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate component %q", comp.Name))
		}

		names[comp.Name] = struct{}{}

		errs = append(errs, comp.validate()...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}

	return nil
}

func (c ComponentConfig) validate() []error {
	var errs []error

	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, errors.New("component without name"))
	}

	if c.Image == "" {
		errs = append(errs, fmt.Errorf("component %s: no image", c.Name))
	}

	inPorts := map[string]struct{}{}
	for _, in := range c.InPorts {
		if _, dup := inPorts[in.Name]; dup {
			errs = append(errs, fmt.Errorf("component %s: duplicate in port %q", c.Name, in.Name))
		}

		inPorts[in.Name] = struct{}{}

		if in.Port <= 0 || in.Port > 65535 {
			errs = append(errs, fmt.Errorf("component %s: in port %s has invalid port %d", c.Name, in.Name, in.Port))
		}
	}

	outPorts := map[string]struct{}{}
	for _, out := range c.OutPorts {
		if _, dup := outPorts[out.Name]; dup {
			errs = append(errs, fmt.Errorf("component %s: duplicate out port %q", c.Name, out.Name))
		}

		outPorts[out.Name] = struct{}{}

		if err := out.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("component %s: %w", c.Name, err))
		}

		if !out.AddressLevel.Valid() {
			errs = append(errs, fmt.Errorf("component %s: out port %s has invalid address level", c.Name, out.Name))
		}
	}

	return errs
}
