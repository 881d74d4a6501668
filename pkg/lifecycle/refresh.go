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

package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/united-manufacturing-hub/lca-core/pkg/port"
)

type registration struct {
	port  string
	addrs port.SinkState
}

// refresher registers the in ports of a ready instance again before the
// registry lets them expire.
type refresher struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (i *Instance) startRefresher(ctx context.Context, every time.Duration, regs []registration) *refresher {
	ctx, cancel := context.WithCancel(ctx)
	r := &refresher{cancel: cancel}

	r.wg.Add(1)

	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				i.refreshRegistrations(ctx, regs)
			}
		}
	}()

	i.logger.Debugf("Refreshing %d in port registrations every %s", len(regs), every)

	return r
}

func (r *refresher) stop() {
	r.cancel()
	r.wg.Wait()
}

func (i *Instance) refreshRegistrations(ctx context.Context, regs []registration) {
	for _, reg := range regs {
		if err := i.deps.Registry.Register(ctx, reg.port, i.id, reg.addrs); err != nil {
			if ctx.Err() != nil {
				return
			}

			i.logger.Warnf("Refreshing registration of in port %s failed: %v", reg.port, err)
		}
	}
}
