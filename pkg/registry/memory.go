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

package registry

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/lca-core/pkg/models"
	"github.com/united-manufacturing-hub/lca-core/pkg/port"
)

const keySeparator = "\x00"

// MemoryRegistry keeps registrations in process. Entries expire after the TTL
// unless they are registered again; a zero TTL keeps them forever.
type MemoryRegistry struct {
	cache  *gocache.Cache
	ttl    time.Duration
	logger *zap.SugaredLogger
}

func NewMemoryRegistry(ttl time.Duration, log *zap.SugaredLogger) *MemoryRegistry {
	if ttl <= 0 {
		return &MemoryRegistry{cache: gocache.New(gocache.NoExpiration, 0), logger: log}
	}

	return &MemoryRegistry{
		cache:  gocache.New(ttl, ttl*2),
		ttl:    ttl,
		logger: log,
	}
}

func (r *MemoryRegistry) TTL() time.Duration { return r.ttl }

func memoryKey(portName string, id models.ComponentInstanceID) string {
	return portName + keySeparator + id.String()
}

func (r *MemoryRegistry) Register(ctx context.Context, portName string, id models.ComponentInstanceID, addrs port.SinkState) error {
	if err := ctx.Err(); err != nil {
		return accessError("register", portName, err)
	}

	r.cache.SetDefault(memoryKey(portName, id), addrs)
	r.logger.Debugf("Registered %s as sink of %s: %s", id, portName, addrs)

	return nil
}

func (r *MemoryRegistry) Deregister(ctx context.Context, portName string, id models.ComponentInstanceID) error {
	if err := ctx.Err(); err != nil {
		return accessError("deregister", portName, err)
	}

	r.cache.Delete(memoryKey(portName, id))

	return nil
}

func (r *MemoryRegistry) QuerySinks(ctx context.Context, portName string) (map[models.ComponentInstanceID]port.SinkState, error) {
	if err := ctx.Err(); err != nil {
		return nil, accessError("query", portName, err)
	}

	prefix := portName + keySeparator
	out := map[models.ComponentInstanceID]port.SinkState{}

	// Items skips expired entries
	for key, item := range r.cache.Items() {
		id, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}

		if addrs, ok := item.Object.(port.SinkState); ok {
			out[models.ComponentInstanceID(id)] = addrs
		}
	}

	return out, nil
}

func (r *MemoryRegistry) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *MemoryRegistry) Close() error {
	r.cache.Flush()

	return nil
}
