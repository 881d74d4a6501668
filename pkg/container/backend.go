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

// Package container runs component instances. Backends are addressed by
// component instance id; how an id maps to a container is their business.
package container

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/lca-core/pkg/config"
	"github.com/united-manufacturing-hub/lca-core/pkg/models"
	"github.com/united-manufacturing-hub/lca-core/pkg/port"
)

var (
	ErrUnsupportedBackend = errors.New("unsupported container backend")
	ErrUnknownContainer   = errors.New("unknown container")
	ErrPortNotMapped      = errors.New("port not mapped")
	ErrExecFailed         = errors.New("exec failed")
)

// Spec is what a backend needs to create the container of an instance.
type Spec struct {
	Component string
	Image     string
	InPorts   []port.InPort
	Env       map[string]string
	Restart   string
	Network   string
}

// Backend is the container runtime the lifecycle actions drive.
type Backend interface {
	Create(ctx context.Context, id models.ComponentInstanceID, spec Spec) error
	Start(ctx context.Context, id models.ComponentInstanceID) error
	// Stop and Remove succeed for containers that no longer exist.
	Stop(ctx context.Context, id models.ComponentInstanceID) error
	Remove(ctx context.Context, id models.ComponentInstanceID) error
	// LocalAddress is the address of the container inside its network.
	LocalAddress(ctx context.Context, id models.ComponentInstanceID) (string, bool)
	// PortMapping returns the host port a declared container port is published on.
	PortMapping(ctx context.Context, id models.ComponentInstanceID, declaredPort int) (int, error)
	// Exec runs cmd inside the container with env added to its environment
	// and returns stdout. A non-zero exit code is ErrExecFailed.
	Exec(ctx context.Context, id models.ComponentInstanceID, cmd []string, env map[string]string) (string, error)
}

// NewBackend creates the backend configured in cfg.
func NewBackend(cfg config.BackendConfig, log *zap.SugaredLogger) (Backend, error) {
	switch cfg.Type {
	case config.BackendTypeDocker:
		return NewDockerBackendFromEnv(cfg, log)
	case config.BackendTypeMemory:
		return NewMemoryBackend(log), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, cfg.Type)
}
