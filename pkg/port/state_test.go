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
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap/zaptest"

	"github.com/united-manufacturing-hub/lca-core/pkg/models"
	"github.com/united-manufacturing-hub/lca-core/pkg/port"
)

var _ = Describe("OutPortState", func() {
	var state *port.OutPortState

	newState := func(lower, upper int) *port.OutPortState {
		return port.NewOutPortState(models.ComponentInstanceID("self"),
			port.OutPort{Name: "db", LowerBound: lower, UpperBound: upper},
			zaptest.NewLogger(GinkgoT()).Sugar())
	}

	BeforeEach(func() {
		state = newState(1, port.InfiniteSinks)
	})

	It("matches ports by name only", func() {
		Expect(state.MatchesPort(port.OutPort{Name: "db", LowerBound: 9, UpperBound: 10})).To(BeTrue())
		Expect(state.MatchesPort(port.OutPort{Name: "cache", LowerBound: 1, UpperBound: port.InfiniteSinks})).To(BeFalse())
	})

	It("reports a newly appearing sink as the only addition", func() {
		state.UpdateWithDiff(sinks("A", sink("a", 5)))

		d := state.UpdateWithDiff(sinks("A", sink("a", 5), "B", sink("b", 7)))
		Expect(d.Added()).To(Equal(ids("B")))
		Expect(d.Removed()).To(BeEmpty())
	})

	It("returns no diff when the same map is applied twice", func() {
		m := sinks("A", sink("a", 5), "B", sink("b", 7))
		Expect(state.UpdateWithDiff(m).HasDiffs()).To(BeTrue())
		Expect(state.UpdateWithDiff(m).HasDiffs()).To(BeFalse())
	})

	It("hands out copies of its map", func() {
		m := sinks("A", sink("a", 5))
		state.UpdateWithDiff(m)
		m["B"] = sink("b", 7)

		snap := state.Snapshot()
		Expect(snap).To(HaveLen(1))
		snap["C"] = sink("c", 9)
		Expect(state.Size()).To(Equal(1))
	})

	It("is satisfied only with strictly more sinks than the lower bound", func() {
		Expect(state.RequiredAndSet()).To(BeFalse())
		state.UpdateWithDiff(sinks("A", sink("a", 1)))
		Expect(state.RequiredAndSet()).To(BeFalse())
		state.UpdateWithDiff(sinks("A", sink("a", 1), "B", sink("b", 2)))
		Expect(state.RequiredAndSet()).To(BeTrue())
	})

	It("groups addresses per level ordered by sink id", func() {
		b, err := port.NewHierarchyLevelStateBuilder[port.DownstreamAddress]().
			RegisterValueAtLevel(port.LevelContainer, port.DownstreamAddress{Host: "172.17.0.3", Port: 32001}).
			RegisterValueAtLevel(port.LevelHost, port.DownstreamAddress{Host: "host-b", Port: 32001}).
			RegisterValueAtLevel(port.LevelPublic, port.DownstreamAddress{Host: "public-b", Port: 5432}).
			Build()
		Expect(err).NotTo(HaveOccurred())

		state.UpdateWithDiff(sinks("B", b, "A", sink("a", 1)))

		byLevel := state.SinksByHierarchyLevel()
		Expect(byLevel).To(HaveLen(3))
		Expect(byLevel[port.LevelPublic]).To(Equal([]port.DownstreamAddress{
			{Host: "a", Port: 1},
			{Host: "public-b", Port: 5432},
		}))
		Expect(state.SinksAtLevel(port.LevelHost)[1].Host).To(Equal("host-b"))
	})

	It("clears all sinks", func() {
		state.UpdateWithDiff(sinks("A", sink("a", 1)))
		state.Clear()
		Expect(state.Size()).To(BeZero())
	})

	DescribeTable("AdaptSinkListByBoundaries",
		func(lower, upper, candidates int, wantOK bool, wantLen int) {
			list := make([]port.DownstreamAddress, candidates)
			for i := range list {
				list[i] = port.DownstreamAddress{Host: "h", Port: i + 1}
			}

			adapted, ok := newState(lower, upper).AdaptSinkListByBoundaries(list)
			Expect(ok).To(Equal(wantOK))
			Expect(adapted).To(HaveLen(wantLen))
			for i, a := range adapted {
				Expect(a.Port).To(Equal(i + 1))
			}
		},
		Entry("below lower bound", 2, 3, 1, false, 0),
		Entry("at lower bound", 2, 3, 2, true, 2),
		Entry("above upper bound keeps the first entries", 0, 2, 5, true, 2),
		Entry("unbounded keeps everything", 0, port.InfiniteSinks, 5, true, 5),
		Entry("empty with zero lower bound", 0, 1, 0, true, 0),
	)
})
