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

package backoff

import (
	"context"
	"time"

	cbackoff "github.com/cenkalti/backoff"
	"go.uber.org/zap"
)

// Config bounds a retry loop.
type Config struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// MaxRetries of 0 retries until MaxElapsed is reached.
	MaxRetries uint64
	MaxElapsed time.Duration
}

// DefaultConfig retries a few times within roughly a minute.
func DefaultConfig() Config {
	return Config{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxRetries:      5,
		MaxElapsed:      time.Minute,
	}
}

func (c Config) policy(ctx context.Context) cbackoff.BackOff {
	exp := cbackoff.NewExponentialBackOff()
	if c.InitialInterval > 0 {
		exp.InitialInterval = c.InitialInterval
	}
	if c.MaxInterval > 0 {
		exp.MaxInterval = c.MaxInterval
	}
	exp.MaxElapsedTime = c.MaxElapsed

	var b cbackoff.BackOff = exp
	if c.MaxRetries > 0 {
		b = cbackoff.WithMaxRetries(b, c.MaxRetries)
	}

	return cbackoff.WithContext(b, ctx)
}

// Retry runs op until it succeeds, returns a permanent or ignored error, the
// policy gives up or ctx is done. Ignored errors end the loop with nil.
func Retry(ctx context.Context, cfg Config, log *zap.SugaredLogger, name string, op func() error) error {
	wrapped := func() error {
		if err := ctx.Err(); err != nil {
			return cbackoff.Permanent(err)
		}

		err := op()
		switch {
		case err == nil:
			return nil
		case IsIgnoredError(err):
			return nil
		case IsPermanentError(err):
			return cbackoff.Permanent(err)
		default:
			return err
		}
	}

	notify := func(err error, next time.Duration) {
		if log != nil {
			log.Debugf("%s failed, retrying in %s: %v", name, next, err)
		}
	}

	return cbackoff.RetryNotify(wrapped, cfg.policy(ctx), notify)
}
