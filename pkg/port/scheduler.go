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

package port

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler drives a set of pollers, each from its own ticker.
type Scheduler struct {
	interval time.Duration
	pollers  []*Poller
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func NewScheduler(interval time.Duration, logger *zap.SugaredLogger, pollers ...*Poller) *Scheduler {
	return &Scheduler{
		interval: interval,
		pollers:  pollers,
		logger:   logger,
	}
}

func (s *Scheduler) Pollers() []*Poller {
	out := make([]*Poller, len(s.pollers))
	copy(out, s.pollers)

	return out
}

// Start launches one polling loop per poller. Each loop polls once right
// away and then on every tick until ctx is done or Stop is called.
// Calling Start on a running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	for _, p := range s.pollers {
		s.wg.Add(1)

		go s.loop(ctx, p)
	}

	s.logger.Debugf("Started %d port pollers with interval %s", len(s.pollers), s.interval)
}

func (s *Scheduler) loop(ctx context.Context, p *Poller) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	p.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// Stop cancels all loops and waits for them to return. Callbacks already
// handed to the dispatcher keep running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	s.wg.Wait()
}
