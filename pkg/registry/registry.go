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

// Package registry stores which instance provides which in port at which
// addresses, and answers the sink queries of the out port pollers.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/lca-core/pkg/config"
	"github.com/united-manufacturing-hub/lca-core/pkg/models"
	"github.com/united-manufacturing-hub/lca-core/pkg/port"
)

// ErrUnsupportedRegistry is returned by New for unknown registry types.
var ErrUnsupportedRegistry = errors.New("unsupported registry type")

// Registry is shared by all agents that should see each other's instances.
type Registry interface {
	port.SinkQuerier

	// Register publishes id as a sink of portName. Registering again refreshes the entry.
	Register(ctx context.Context, portName string, id models.ComponentInstanceID, addrs port.SinkState) error
	Deregister(ctx context.Context, portName string, id models.ComponentInstanceID) error
	// TTL is how long a registration lives without being registered again, zero for forever.
	TTL() time.Duration
	Ping(ctx context.Context) error
	Close() error
}

// New creates the registry configured in cfg.
func New(cfg config.RegistryConfig, log *zap.SugaredLogger) (Registry, error) {
	switch cfg.Type {
	case config.RegistryTypeMemory:
		return NewMemoryRegistry(cfg.TTL, log), nil
	case config.RegistryTypeRedis:
		return NewRedisRegistry(cfg, log), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnsupportedRegistry, cfg.Type)
}

func accessError(op, portName string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", port.ErrRegistryAccess, op, portName, err)
}
