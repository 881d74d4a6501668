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

package constants

import "time"

const (
	// DefaultAppVersion is reported when the binary is built without version ldflags.
	DefaultAppVersion = "0.0.0-dev"

	DefaultDevelopmentEnvironment = "development"
	DefaultProductionEnvironment  = "production"

	// DefaultConfigPath is read when CONFIG_FILE is unset.
	DefaultConfigPath = "/data/config.yaml"
)

const (
	// DefaultPollInterval is the tick of every out port poller.
	DefaultPollInterval = 10 * time.Second

	// DefaultRegistryTTL bounds how long an in port registration stays
	// visible without being refreshed.
	DefaultRegistryTTL = 5 * time.Minute

	// DefaultRegistryTimeout bounds a single registry query inside a poll cycle.
	DefaultRegistryTimeout = 2 * time.Second
)

const (
	DefaultPoolWorkers   = 8
	DefaultPoolQueueSize = 256

	// PoolStopTimeout is how long Stop waits for in-flight tasks.
	PoolStopTimeout = 30 * time.Second
)

const (
	// DefaultPullRetries is how often an image pull is retried before create fails.
	DefaultPullRetries = 3

	// ContainerStopTimeoutSeconds is passed to the docker stop call.
	ContainerStopTimeoutSeconds = 10

	// ContainerNamePrefix is prepended to instance ids to form container names.
	ContainerNamePrefix = "lca-"
)

const (
	DefaultMetricsPort = 8080
	DefaultAPIPort     = 8090
	DefaultHealthPort  = 8086

	// ShutdownTimeout bounds undeploying every instance on exit.
	ShutdownTimeout = 2 * time.Minute
)
