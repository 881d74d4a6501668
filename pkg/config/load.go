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
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/united-manufacturing-hub/lca-core/pkg/constants"
	"github.com/united-manufacturing-hub/lca-core/pkg/env"
)

// Parse decodes a YAML document. Unknown keys are rejected.
func Parse(data []byte) (FullConfig, error) {
	var cfg FullConfig

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return FullConfig{}, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides reads the config file, applies environment
// overrides and defaults, and validates the result.
//
// Precedence, highest first: environment variables, config file, defaults.
// A missing config file is not an error; the agent then starts without
// components.
func LoadConfigWithEnvOverrides(path string, log *zap.SugaredLogger) (FullConfig, error) {
	var cfg FullConfig

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Infof("Config file %s not found, starting from defaults", path)
	case err != nil:
		return FullConfig{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	default:
		if cfg, err = Parse(data); err != nil {
			return FullConfig{}, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return FullConfig{}, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return FullConfig{}, err
	}

	log.Infof("Loaded config with %d components, registry %s, backend %s", len(cfg.Components), cfg.Registry.Type, cfg.Backend.Type)

	return cfg, nil
}

// ConfigPath returns CONFIG_FILE or the default path.
func ConfigPath() string {
	path, _ := env.GetAsString("CONFIG_FILE", false, constants.DefaultConfigPath)

	return path
}

func (c *FullConfig) applyEnv() error {
	var errs []error

	str := func(key string, target *string) {
		v, err := env.GetAsString(key, false, *target)
		errs = append(errs, err)
		*target = v
	}
	integer := func(key string, target *int) {
		v, err := env.GetAsInt(key, false, *target)
		errs = append(errs, err)
		*target = v
	}

	str("REGISTRY_TYPE", &c.Registry.Type)
	str("REDIS_PASSWORD", &c.Registry.Redis.Password)
	str("CONTAINER_BACKEND", &c.Backend.Type)
	str("HOST_ID", &c.Agent.HostID)
	str("PUBLIC_ADDRESS", &c.Agent.PublicAddress)
	str("SENTRY_DSN", &c.Agent.SentryDSN)
	integer("METRICS_PORT", &c.Agent.MetricsPort)
	integer("API_PORT", &c.Agent.APIPort)

	addrs, err := env.GetAsList("REDIS_ADDR", false, c.Registry.Redis.Addrs)
	errs = append(errs, err)
	c.Registry.Redis.Addrs = addrs

	interval, err := env.GetAsDuration("POLL_INTERVAL", false, c.Agent.PollInterval)
	errs = append(errs, err)
	c.Agent.PollInterval = interval

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	return nil
}

func (c *FullConfig) applyDefaults() {
	setDefault(&c.Registry.Type, RegistryTypeMemory)
	setDefault(&c.Registry.TTL, constants.DefaultRegistryTTL)
	setDefault(&c.Registry.Timeout, constants.DefaultRegistryTimeout)
	setDefault(&c.Backend.Type, BackendTypeDocker)
	setDefault(&c.Backend.PullRetries, uint64(constants.DefaultPullRetries))
	setDefault(&c.Agent.PollInterval, constants.DefaultPollInterval)
	setDefault(&c.Agent.PoolWorkers, constants.DefaultPoolWorkers)
	setDefault(&c.Agent.PoolQueueSize, constants.DefaultPoolQueueSize)
	setDefault(&c.Agent.MetricsPort, constants.DefaultMetricsPort)
	setDefault(&c.Agent.APIPort, constants.DefaultAPIPort)
	setDefault(&c.Agent.HealthPort, constants.DefaultHealthPort)

	if c.Agent.HostID == "" {
		c.Agent.HostID, _ = os.Hostname()
	}

	setDefault(&c.Agent.HostAddress, "127.0.0.1")
	setDefault(&c.Agent.PublicAddress, c.Agent.HostAddress)

	for i := range c.Components {
		for j := range c.Components[i].OutPorts {
			out := &c.Components[i].OutPorts[j]
			out.EnvVar = out.EnvName()
		}
	}
}

func setDefault[T comparable](target *T, value T) {
	var zero T
	if *target == zero {
		*target = value
	}
}
