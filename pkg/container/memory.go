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

package container

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/lca-core/pkg/models"
)

const memoryFirstHostPort = 32000

// ExecRecord is one Exec call seen by the MemoryBackend.
type ExecRecord struct {
	Cmd []string
	Env map[string]string
}

type memoryContainer struct {
	spec    Spec
	address string
	ports   map[int]int
	running bool
	execs   []ExecRecord
}

// MemoryBackend keeps containers as records. It backs single process setups
// and tests; nothing is actually run.
type MemoryBackend struct {
	logger *zap.SugaredLogger

	mu         sync.Mutex
	containers map[models.ComponentInstanceID]*memoryContainer
	nextPort   int
	nextAddr   int

	// ExecHook, when set, decides the outcome of every Exec.
	ExecHook func(id models.ComponentInstanceID, cmd []string, env map[string]string) (string, error)
}

func NewMemoryBackend(log *zap.SugaredLogger) *MemoryBackend {
	return &MemoryBackend{
		logger:     log,
		containers: map[models.ComponentInstanceID]*memoryContainer{},
		nextPort:   memoryFirstHostPort,
		nextAddr:   2,
	}
}

func (b *MemoryBackend) get(id models.ComponentInstanceID) (*memoryContainer, error) {
	c, ok := b.containers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContainer, id)
	}

	return c, nil
}

func (b *MemoryBackend) Create(ctx context.Context, id models.ComponentInstanceID, spec Spec) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.containers[id]; exists {
		return fmt.Errorf("container for %s already exists", id)
	}

	c := &memoryContainer{
		spec:    spec,
		address: fmt.Sprintf("10.88.%d.%d", b.nextAddr/250, b.nextAddr%250+2),
		ports:   map[int]int{},
	}
	b.nextAddr++

	for _, in := range spec.InPorts {
		c.ports[in.Port] = b.nextPort
		b.nextPort++
	}

	b.containers[id] = c
	b.logger.Debugf("Created in-memory container for %s (%s)", id, spec.Image)

	return nil
}

func (b *MemoryBackend) Start(ctx context.Context, id models.ComponentInstanceID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	c, err := b.get(id)
	if err != nil {
		return err
	}

	c.running = true

	return nil
}

func (b *MemoryBackend) Stop(_ context.Context, id models.ComponentInstanceID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.containers[id]; ok {
		c.running = false
	}

	return nil
}

func (b *MemoryBackend) Remove(_ context.Context, id models.ComponentInstanceID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.containers, id)

	return nil
}

func (b *MemoryBackend) LocalAddress(_ context.Context, id models.ComponentInstanceID) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, err := b.get(id)
	if err != nil {
		return "", false
	}

	return c.address, true
}

func (b *MemoryBackend) PortMapping(_ context.Context, id models.ComponentInstanceID, declaredPort int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, err := b.get(id)
	if err != nil {
		return 0, err
	}

	mapped, ok := c.ports[declaredPort]
	if !ok {
		return 0, fmt.Errorf("%w: %d on %s", ErrPortNotMapped, declaredPort, id)
	}

	return mapped, nil
}

func (b *MemoryBackend) Exec(ctx context.Context, id models.ComponentInstanceID, cmd []string, env map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	b.mu.Lock()
	c, err := b.get(id)
	if err == nil && !c.running {
		err = fmt.Errorf("%w: %s is not running", ErrExecFailed, id)
	}
	if err == nil {
		c.execs = append(c.execs, ExecRecord{Cmd: slices.Clone(cmd), Env: maps.Clone(env)})
	}
	hook := b.ExecHook
	b.mu.Unlock()

	if err != nil {
		return "", err
	}

	if hook != nil {
		return hook(id, cmd, env)
	}

	return "", nil
}

// Running reports whether the container of id exists and is started.
func (b *MemoryBackend) Running(id models.ComponentInstanceID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.containers[id]

	return ok && c.running
}

// Exists reports whether a container was created for id and not removed.
func (b *MemoryBackend) Exists(id models.ComponentInstanceID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.containers[id]

	return ok
}

// Execs returns the Exec calls made against the container of id.
func (b *MemoryBackend) Execs(id models.ComponentInstanceID) []ExecRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.containers[id]
	if !ok {
		return nil
	}

	return slices.Clone(c.execs)
}

// SpecOf returns the spec the container of id was created with.
func (b *MemoryBackend) SpecOf(id models.ComponentInstanceID) (Spec, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.containers[id]
	if !ok {
		return Spec{}, false
	}

	return c.spec, true
}
