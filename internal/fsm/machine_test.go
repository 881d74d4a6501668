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

package fsm_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap/zaptest"

	"github.com/united-manufacturing-hub/lca-core/internal/fsm"
	"github.com/united-manufacturing-hub/lca-core/pkg/workerpool"
)

type state string

const (
	stateNew      state = "new"
	stateStarting state = "starting"
	stateRunning  state = "running"
	stateStopped  state = "stopped"
)

// gate is an action that blocks until released and then returns err.
type gate struct {
	release chan error
	calls   atomic.Int32
}

func newGate() *gate { return &gate{release: make(chan error, 1)} }

func (g *gate) Execute(ctx context.Context) error {
	g.calls.Add(1)
	select {
	case err := <-g.release:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ = Describe("StateMachine", func() {
	var (
		ctx     context.Context
		builder *fsm.Builder[state]
	)

	BeforeEach(func() {
		ctx = context.Background()
		builder = fsm.NewBuilder(stateNew).
			Named("test", "entity-1").
			WithLogger(zaptest.NewLogger(GinkgoT()).Sugar()).
			AddAllStates(stateStarting, stateRunning, stateStopped)
	})

	Describe("Build", func() {
		It("rejects transitions to undeclared states", func() {
			_, err := fsm.NewBuilder(stateNew).
				AddSynchronousTransition(stateNew, stateRunning, nil).
				Build()
			Expect(errors.Is(err, fsm.ErrUndeclaredState)).To(BeTrue())
		})

		It("rejects undeclared intermediate states", func() {
			_, err := fsm.NewBuilder(stateNew).
				AddState(stateRunning).
				AddAsynchronousTransition(stateNew, stateStarting, stateRunning, nil).
				Build()
			Expect(errors.Is(err, fsm.ErrUndeclaredState)).To(BeTrue())
		})

		It("rejects two transitions between the same states", func() {
			_, err := builder.
				AddSynchronousTransition(stateNew, stateRunning, nil).
				AddAsynchronousTransition(stateNew, stateStarting, stateRunning, nil).
				Build()
			Expect(errors.Is(err, fsm.ErrDuplicateTransition)).To(BeTrue())
		})

		It("starts at the initial state with the declared graph", func() {
			m, err := builder.AddSynchronousTransition(stateNew, stateRunning, nil).Build()
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Current()).To(Equal(stateNew))
			Expect(m.States()).To(Equal([]state{stateNew, stateStarting, stateRunning, stateStopped}))
			Expect(m.Transitions()).To(HaveLen(1))
			Expect(m.Can(stateRunning)).To(BeTrue())
			Expect(m.Can(stateStopped)).To(BeFalse())
		})
	})

	Describe("synchronous transitions", func() {
		It("runs the action and moves to the target state", func() {
			ran := false
			m, err := builder.AddSynchronousTransition(stateNew, stateRunning, fsm.TransitionActionFunc(func(context.Context) error {
				ran = true
				return nil
			})).Build()
			Expect(err).NotTo(HaveOccurred())

			done, err := m.Fire(ctx, stateRunning)
			Expect(err).NotTo(HaveOccurred())
			Expect(<-done).To(Succeed())
			Expect(ran).To(BeTrue())
			Expect(m.Current()).To(Equal(stateRunning))
		})

		It("keeps the state when the action fails", func() {
			boom := errors.New("boom")
			m, err := builder.AddSynchronousTransition(stateNew, stateRunning, fsm.TransitionActionFunc(func(context.Context) error {
				return boom
			})).Build()
			Expect(err).NotTo(HaveOccurred())

			err = m.FireAndWait(ctx, stateRunning)
			Expect(errors.Is(err, fsm.ErrActionFailed)).To(BeTrue())
			Expect(errors.Is(err, boom)).To(BeTrue())
			Expect(m.Current()).To(Equal(stateNew))
			Expect(m.LastError()).To(MatchError(err))
			Expect(m.InFlight()).To(BeFalse())
		})

		It("follows a legal sequence of transitions", func() {
			m, err := builder.
				AddSynchronousTransition(stateNew, stateRunning, nil).
				AddSynchronousTransition(stateRunning, stateStopped, nil).
				Build()
			Expect(err).NotTo(HaveOccurred())

			Expect(m.FireAndWait(ctx, stateRunning)).To(Succeed())
			Expect(m.FireAndWait(ctx, stateStopped)).To(Succeed())
			Expect(m.Current()).To(Equal(stateStopped))
		})
	})

	Describe("illegal transitions", func() {
		It("reports an error and leaves the state unchanged", func() {
			m, err := builder.
				AddSynchronousTransition(stateNew, stateRunning, nil).
				AddSynchronousTransition(stateRunning, stateStopped, nil).
				Build()
			Expect(err).NotTo(HaveOccurred())

			for _, target := range []state{stateStopped, stateStarting, stateNew} {
				done, err := m.Fire(ctx, target)
				Expect(errors.Is(err, fsm.ErrIllegalTransition)).To(BeTrue(), "target %s", target)
				Expect(err.Error()).To(ContainSubstring("illegal transition from state new"))
				Expect(done).To(BeNil())
				Expect(m.Current()).To(Equal(stateNew))
			}
		})
	})

	Describe("asynchronous transitions", func() {
		var (
			action *gate
			m      *fsm.StateMachine[state]
		)

		BeforeEach(func() {
			action = newGate()
			var err error
			m, err = builder.
				AddAsynchronousTransition(stateNew, stateStarting, stateRunning, action).
				AddSynchronousTransition(stateStarting, stateStopped, nil).
				AddSynchronousTransition(stateRunning, stateStopped, nil).
				Build()
			Expect(err).NotTo(HaveOccurred())
		})

		It("passes through the intermediate state", func() {
			done, err := m.Fire(ctx, stateRunning)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Current()).To(Equal(stateStarting))
			Expect(m.InFlight()).To(BeTrue())

			action.release <- nil
			Eventually(done).Should(Receive(BeNil()))
			Expect(m.Current()).To(Equal(stateRunning))
			Expect(m.InFlight()).To(BeFalse())
		})

		It("rejects a second transition while the first is in flight", func() {
			_, err := m.Fire(ctx, stateRunning)
			Expect(err).NotTo(HaveOccurred())

			_, err = m.Fire(ctx, stateStopped)
			Expect(errors.Is(err, fsm.ErrTransitionInProgress)).To(BeTrue())
			_, err = m.Fire(ctx, stateRunning)
			Expect(errors.Is(err, fsm.ErrTransitionInProgress)).To(BeTrue())
			Expect(m.Current()).To(Equal(stateStarting))

			action.release <- nil
			Eventually(m.Current).Should(Equal(stateRunning))
		})

		It("parks in the intermediate state when the action fails", func() {
			boom := errors.New("pull failed")
			done, err := m.Fire(ctx, stateRunning)
			Expect(err).NotTo(HaveOccurred())

			action.release <- boom
			var result error
			Eventually(done).Should(Receive(&result))
			Expect(errors.Is(result, boom)).To(BeTrue())
			Expect(m.Current()).To(Equal(stateStarting))

			parked, ok := m.Parked()
			Expect(ok).To(BeTrue())
			Expect(parked.To).To(Equal(stateRunning))
			Expect(m.LastError()).To(HaveOccurred())
		})

		It("completes a parked transition on retry", func() {
			done, err := m.Fire(ctx, stateRunning)
			Expect(err).NotTo(HaveOccurred())
			action.release <- errors.New("transient")
			Eventually(done).Should(Receive(HaveOccurred()))

			action.release <- nil
			Expect(m.RetryAndWait(ctx)).To(Succeed())
			Expect(m.Current()).To(Equal(stateRunning))
			Expect(action.calls.Load()).To(BeEquivalentTo(2))

			_, ok := m.Parked()
			Expect(ok).To(BeFalse())
			Expect(m.LastError()).NotTo(HaveOccurred())
		})

		It("retries the parked action when its target is fired again", func() {
			done, err := m.Fire(ctx, stateRunning)
			Expect(err).NotTo(HaveOccurred())
			action.release <- errors.New("transient")
			Eventually(done).Should(Receive(HaveOccurred()))

			action.release <- nil
			Expect(m.FireAndWait(ctx, stateRunning)).To(Succeed())
			Expect(m.Current()).To(Equal(stateRunning))
			Expect(action.calls.Load()).To(BeEquivalentTo(2))
		})

		It("allows leaving a parked intermediate state through a declared transition", func() {
			done, err := m.Fire(ctx, stateRunning)
			Expect(err).NotTo(HaveOccurred())
			action.release <- errors.New("fail")
			Eventually(done).Should(Receive(HaveOccurred()))

			Expect(m.FireAndWait(ctx, stateStopped)).To(Succeed())
			Expect(m.Current()).To(Equal(stateStopped))
			_, ok := m.Parked()
			Expect(ok).To(BeFalse())
		})

		It("refuses Retry when nothing is parked", func() {
			_, err := m.Retry(ctx)
			Expect(errors.Is(err, fsm.ErrNotParked)).To(BeTrue())
		})

		It("notifies observers of every entered state", func() {
			var mu sync.Mutex
			var seen []string

			action = newGate()
			m, err := fsm.NewBuilder(stateNew).
				Named("test", "observed").
				AddAllStates(stateStarting, stateRunning).
				AddAsynchronousTransition(stateNew, stateStarting, stateRunning, action).
				OnStateChange(func(entity string, from, to state) {
					mu.Lock()
					defer mu.Unlock()
					seen = append(seen, entity+":"+string(from)+">"+string(to))
				}).
				Build()
			Expect(err).NotTo(HaveOccurred())

			action.release <- nil
			Expect(m.FireAndWait(ctx, stateRunning)).To(Succeed())

			mu.Lock()
			defer mu.Unlock()
			Expect(seen).To(Equal([]string{"observed:new>starting", "observed:starting>running"}))
		})

		It("renders the graph with both legs of the asynchronous transition", func() {
			graph, err := m.Graph()
			Expect(err).NotTo(HaveOccurred())
			Expect(graph).To(ContainSubstring("stateDiagram-v2"))
			Expect(graph).To(ContainSubstring("new --> starting"))
			Expect(graph).To(ContainSubstring("starting --> running"))
		})
	})

	Describe("worker pool dispatch", func() {
		var pool *workerpool.TaskPool

		BeforeEach(func() {
			pool = workerpool.NewTaskPool("fsm-test", 1, 1, zaptest.NewLogger(GinkgoT()).Sugar())
		})

		AfterEach(func() {
			Expect(pool.Stop(time.Second)).To(Succeed())
		})

		It("runs asynchronous actions on the pool", func() {
			Expect(pool.Start(ctx)).To(Succeed())
			m, err := builder.WithDispatcher(pool).
				AddAsynchronousTransition(stateNew, stateStarting, stateRunning, nil).
				Build()
			Expect(err).NotTo(HaveOccurred())

			Expect(m.FireAndWait(ctx, stateRunning)).To(Succeed())
			Expect(pool.Stats().Processed).To(BeEquivalentTo(1))
		})

		It("parks a panicking action and reports it to the caller", func() {
			Expect(pool.Start(ctx)).To(Succeed())
			var calls atomic.Int32
			m, err := builder.WithDispatcher(pool).
				AddAsynchronousTransition(stateNew, stateStarting, stateRunning, fsm.TransitionActionFunc(func(context.Context) error {
					if calls.Add(1) == 1 {
						panic("boom")
					}

					return nil
				})).
				Build()
			Expect(err).NotTo(HaveOccurred())

			waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			err = m.FireAndWait(waitCtx, stateRunning)
			Expect(errors.Is(err, fsm.ErrActionFailed)).To(BeTrue())

			var pe *workerpool.PanicError
			Expect(errors.As(err, &pe)).To(BeTrue())
			Expect(pe.Value).To(Equal("boom"))

			Expect(m.Current()).To(Equal(stateStarting))
			Expect(m.InFlight()).To(BeFalse())
			_, parked := m.Parked()
			Expect(parked).To(BeTrue())

			Expect(m.RetryAndWait(waitCtx)).To(Succeed())
			Expect(m.Current()).To(Equal(stateRunning))
		})

		It("parks the machine when the pool refuses the action", func() {
			m, err := builder.WithDispatcher(pool).
				AddAsynchronousTransition(stateNew, stateStarting, stateRunning, nil).
				Build()
			Expect(err).NotTo(HaveOccurred())

			_, err = m.Fire(ctx, stateRunning)
			Expect(errors.Is(err, workerpool.ErrPoolNotStarted)).To(BeTrue())
			Expect(m.Current()).To(Equal(stateStarting))
			Expect(m.InFlight()).To(BeFalse())

			Expect(pool.Start(ctx)).To(Succeed())
			Expect(m.RetryAndWait(ctx)).To(Succeed())
			Expect(m.Current()).To(Equal(stateRunning))
		})
	})

	Describe("concurrency", func() {
		It("lets exactly one of many concurrent callers fire", func() {
			release := make(chan struct{})
			m, err := builder.AddSynchronousTransition(stateNew, stateRunning, fsm.TransitionActionFunc(func(context.Context) error {
				<-release
				return nil
			})).Build()
			Expect(err).NotTo(HaveOccurred())

			var (
				wg         sync.WaitGroup
				succeeded  atomic.Int32
				inProgress atomic.Int32
				started    = make(chan struct{})
			)

			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				close(started)
				if m.FireAndWait(ctx, stateRunning) == nil {
					succeeded.Add(1)
				}
			}()
			<-started
			Eventually(m.InFlight).Should(BeTrue())

			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := m.Fire(ctx, stateRunning)
					if errors.Is(err, fsm.ErrTransitionInProgress) {
						inProgress.Add(1)
					}
				}()
			}

			Eventually(inProgress.Load).Should(BeEquivalentTo(8))
			close(release)
			wg.Wait()

			Expect(succeeded.Load()).To(BeEquivalentTo(1))
			Expect(m.Current()).To(Equal(stateRunning))
		})

		It("progresses independent machines concurrently", func() {
			a, b := newGate(), newGate()
			ma, err := fsm.NewBuilder(stateNew).Named("test", "a").AddAllStates(stateStarting, stateRunning).
				AddAsynchronousTransition(stateNew, stateStarting, stateRunning, a).Build()
			Expect(err).NotTo(HaveOccurred())
			mb, err := fsm.NewBuilder(stateNew).Named("test", "b").AddAllStates(stateStarting, stateRunning).
				AddAsynchronousTransition(stateNew, stateStarting, stateRunning, b).Build()
			Expect(err).NotTo(HaveOccurred())

			doneA, err := ma.Fire(ctx, stateRunning)
			Expect(err).NotTo(HaveOccurred())
			doneB, err := mb.Fire(ctx, stateRunning)
			Expect(err).NotTo(HaveOccurred())

			b.release <- nil
			Eventually(doneB).Should(Receive(BeNil()))
			Expect(mb.Current()).To(Equal(stateRunning))
			Expect(ma.Current()).To(Equal(stateStarting))

			a.release <- nil
			Eventually(doneA).Should(Receive(BeNil()))
			Expect(ma.Current()).To(Equal(stateRunning))
		})
	})

	It("refuses to fire with a cancelled context", func() {
		m, err := builder.AddSynchronousTransition(stateNew, stateRunning, nil).Build()
		Expect(err).NotTo(HaveOccurred())
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err = m.Fire(cctx, stateRunning)
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		Expect(m.Current()).To(Equal(stateNew))
	})
})
