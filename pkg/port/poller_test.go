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

package port_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap/zaptest"

	"github.com/united-manufacturing-hub/lca-core/pkg/models"
	"github.com/united-manufacturing-hub/lca-core/pkg/port"
	"github.com/united-manufacturing-hub/lca-core/pkg/workerpool"
)

type fakeRegistry struct {
	mu    sync.Mutex
	sinks map[models.ComponentInstanceID]port.SinkState
	fail  int
	calls int
}

func (r *fakeRegistry) set(m map[models.ComponentInstanceID]port.SinkState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = m
}

func (r *fakeRegistry) failNext(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = n
}

func (r *fakeRegistry) QuerySinks(_ context.Context, portName string) (map[models.ComponentInstanceID]port.SinkState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.fail > 0 {
		r.fail--

		return nil, fmt.Errorf("%w: connection refused", port.ErrRegistryAccess)
	}

	return r.sinks, nil
}

type refusingDispatcher struct{}

func (refusingDispatcher) Submit(workerpool.Task) error { return workerpool.ErrQueueFull }

var _ = Describe("Poller", func() {
	var (
		ctx      context.Context
		pool     *workerpool.TaskPool
		registry *fakeRegistry
		state    *port.OutPortState
		calls    atomic.Int32
		release  chan error
		diffs    chan port.PortDiff[port.DownstreamAddress]
		poller   *port.Poller
	)

	BeforeEach(func() {
		ctx = context.Background()
		log := zaptest.NewLogger(GinkgoT()).Sugar()
		pool = workerpool.NewTaskPool("poller-test", 2, 8, log)
		Expect(pool.Start(ctx)).To(Succeed())

		registry = &fakeRegistry{}
		state = port.NewOutPortState(models.ComponentInstanceID("self"), port.OutPort{Name: "db", UpperBound: port.InfiniteSinks}, log)
		calls.Store(0)
		release = make(chan error, 4)
		diffs = make(chan port.PortDiff[port.DownstreamAddress], 4)

		callback := port.PortUpdateCallbackFunc(func(ctx context.Context, _ *port.OutPortState, d port.PortDiff[port.DownstreamAddress]) error {
			calls.Add(1)
			diffs <- d

			return <-release
		})
		poller = port.NewPoller(state, registry, callback, pool, log)
	})

	AfterEach(func() {
		close(release)
		Expect(pool.Stop(time.Second)).To(Succeed())
	})

	It("ends the cycle when nothing changed", func() {
		Expect(poller.RunOnce(ctx)).To(Equal(port.OutcomeUnchanged))
		Expect(calls.Load()).To(BeZero())
	})

	It("dispatches a change to the callback on the pool", func() {
		registry.set(sinks("A", sink("a", 5)))
		Expect(poller.RunOnce(ctx)).To(Equal(port.OutcomeDispatched))

		var d port.PortDiff[port.DownstreamAddress]
		Eventually(diffs).Should(Receive(&d))
		Expect(d.Added()).To(Equal(ids("A")))
		release <- nil
		Eventually(poller.UpdateInFlight).Should(BeFalse())
		Expect(state.Size()).To(Equal(1))
	})

	It("skips overlapping updates and frees the flag only after the callback returned", func() {
		registry.set(sinks("A", sink("a", 5)))
		Expect(poller.RunOnce(ctx)).To(Equal(port.OutcomeDispatched))
		Eventually(diffs).Should(Receive())
		Expect(poller.UpdateInFlight()).To(BeTrue())

		registry.set(sinks("A", sink("a", 5), "B", sink("b", 7)))
		Expect(poller.RunOnce(ctx)).To(Equal(port.OutcomeSkipped))
		Expect(poller.UpdateInFlight()).To(BeTrue())
		Consistently(calls.Load, 100*time.Millisecond).Should(BeEquivalentTo(1))

		release <- errors.New("reconfigure failed")
		Eventually(poller.UpdateInFlight).Should(BeFalse())

		Expect(poller.RunOnce(ctx)).To(Equal(port.OutcomeDispatched))
		var d port.PortDiff[port.DownstreamAddress]
		Eventually(diffs).Should(Receive(&d))
		Expect(d.Added()).To(Equal(ids("B")))
		release <- nil
	})

	It("installs moved sinks without invoking the callback", func() {
		registry.set(sinks("A", sink("a", 5)))
		Expect(poller.RunOnce(ctx)).To(Equal(port.OutcomeDispatched))
		Eventually(diffs).Should(Receive())
		release <- nil
		Eventually(poller.UpdateInFlight).Should(BeFalse())

		registry.set(sinks("A", sink("a2", 6)))
		Expect(poller.RunOnce(ctx)).To(Equal(port.OutcomeUnchanged))
		Expect(state.Snapshot()).To(Equal(sinks("A", sink("a2", 6))))
		Expect(calls.Load()).To(BeEquivalentTo(1))
	})

	It("counts consecutive registry misses and resets them on success", func() {
		registry.failNext(3)
		for i := 1; i <= 3; i++ {
			Expect(poller.RunOnce(ctx)).To(Equal(port.OutcomeMissed))
			Expect(poller.Misses()).To(Equal(i))
		}

		Expect(poller.RunOnce(ctx)).To(Equal(port.OutcomeUnchanged))
		Expect(poller.Misses()).To(BeZero())
		Expect(calls.Load()).To(BeZero())
	})

	It("does not count a cancelled query as a miss", func() {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		registry.failNext(1)

		Expect(poller.RunOnce(cancelled)).To(Equal(port.OutcomeCancelled))
		Expect(poller.Misses()).To(BeZero())
	})

	It("keeps the change for the next cycle when the dispatcher refuses it", func() {
		refused := port.NewPoller(state, registry, port.PortUpdateCallbackFunc(func(context.Context, *port.OutPortState, port.PortDiff[port.DownstreamAddress]) error {
			return nil
		}), refusingDispatcher{}, zaptest.NewLogger(GinkgoT()).Sugar())

		registry.set(sinks("A", sink("a", 5)))
		Expect(refused.RunOnce(ctx)).To(Equal(port.OutcomeRefused))
		Expect(refused.UpdateInFlight()).To(BeFalse())
		Expect(state.Size()).To(BeZero())

		Expect(poller.RunOnce(ctx)).To(Equal(port.OutcomeDispatched))
		release <- nil
	})
})

var _ = Describe("Scheduler", func() {
	It("polls every out port on its own ticker until stopped", func() {
		log := zaptest.NewLogger(GinkgoT()).Sugar()
		registry := &fakeRegistry{}
		noop := port.PortUpdateCallbackFunc(func(context.Context, *port.OutPortState, port.PortDiff[port.DownstreamAddress]) error {
			return nil
		})

		var pollers []*port.Poller
		for _, name := range []string{"db", "cache"} {
			s := port.NewOutPortState(models.ComponentInstanceID("self"), port.OutPort{Name: name, UpperBound: 1}, log)
			pollers = append(pollers, port.NewPoller(s, registry, noop, refusingDispatcher{}, log))
		}

		scheduler := port.NewScheduler(10*time.Millisecond, log, pollers...)
		scheduler.Start(context.Background())

		Eventually(func() int {
			registry.mu.Lock()
			defer registry.mu.Unlock()

			return registry.calls
		}).Should(BeNumerically(">=", 6))

		scheduler.Stop()

		registry.mu.Lock()
		after := registry.calls
		registry.mu.Unlock()
		Consistently(func() int {
			registry.mu.Lock()
			defer registry.mu.Unlock()

			return registry.calls
		}, 50*time.Millisecond).Should(Equal(after))
	})
})
