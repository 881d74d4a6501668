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
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/lca-core/pkg/backoff"
	"github.com/united-manufacturing-hub/lca-core/pkg/config"
	"github.com/united-manufacturing-hub/lca-core/pkg/models"
	"github.com/united-manufacturing-hub/lca-core/pkg/port"
)

const redisKeyPrefix = "lca:port:"

// RedisRegistry keeps one hash per port name, field = instance id, value = JSON encoded addresses.
// The TTL applies to the whole hash and is refreshed by every Register.
type RedisRegistry struct {
	client  redis.UniversalClient
	ttl     time.Duration
	timeout time.Duration
	retry   backoff.Config
	logger  *zap.SugaredLogger
}

// NewRedisRegistry connects to a single node, a cluster, or through sentinels
// when a master name is set.
func NewRedisRegistry(cfg config.RegistryConfig, log *zap.SugaredLogger) *RedisRegistry {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:            cfg.Redis.Addrs,
		MasterName:       cfg.Redis.MasterName,
		Password:         cfg.Redis.Password,
		SentinelPassword: cfg.Redis.Password,
		DB:               cfg.Redis.DB,
	})

	return NewRedisRegistryWithClient(client, cfg.TTL, cfg.Timeout, log)
}

func NewRedisRegistryWithClient(client redis.UniversalClient, ttl, timeout time.Duration, log *zap.SugaredLogger) *RedisRegistry {
	retry := backoff.DefaultConfig()
	retry.MaxElapsed = 10 * time.Second

	return &RedisRegistry{
		client:  client,
		ttl:     ttl,
		timeout: timeout,
		retry:   retry,
		logger:  log,
	}
}

func (r *RedisRegistry) TTL() time.Duration { return r.ttl }

func redisKey(portName string) string {
	return redisKeyPrefix + portName
}

func (r *RedisRegistry) Register(ctx context.Context, portName string, id models.ComponentInstanceID, addrs port.SinkState) error {
	payload, err := json.Marshal(addrs)
	if err != nil {
		return fmt.Errorf("encode sink %s: %w", id, err)
	}

	err = backoff.Retry(ctx, r.retry, r.logger, "register "+portName, func() error {
		key := redisKey(portName)
		if err := r.client.HSet(ctx, key, id.String(), payload).Err(); err != nil {
			return err
		}

		if r.ttl > 0 {
			return r.client.Expire(ctx, key, r.ttl).Err()
		}

		return nil
	})
	if err != nil {
		return accessError("register", portName, err)
	}

	return nil
}

func (r *RedisRegistry) Deregister(ctx context.Context, portName string, id models.ComponentInstanceID) error {
	err := backoff.Retry(ctx, r.retry, r.logger, "deregister "+portName, func() error {
		return r.client.HDel(ctx, redisKey(portName), id.String()).Err()
	})
	if err != nil {
		return accessError("deregister", portName, err)
	}

	return nil
}

// QuerySinks makes a single attempt; the poller treats a failure as a miss.
// Entries that cannot be decoded are skipped and logged.
func (r *RedisRegistry) QuerySinks(ctx context.Context, portName string) (map[models.ComponentInstanceID]port.SinkState, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	fields, err := r.client.HGetAll(ctx, redisKey(portName)).Result()
	if err != nil {
		return nil, accessError("query", portName, err)
	}

	out := make(map[models.ComponentInstanceID]port.SinkState, len(fields))
	for field, value := range fields {
		var addrs port.SinkState
		if err := json.Unmarshal([]byte(value), &addrs); err != nil {
			r.logger.Warnf("Ignoring malformed registration %s of port %s: %v", field, portName, err)

			continue
		}

		out[models.ComponentInstanceID(field)] = addrs
	}

	return out, nil
}

func (r *RedisRegistry) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return accessError("ping", "", err)
	}

	return nil
}

func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
