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

	"github.com/united-manufacturing-hub/lca-core/pkg/port"
)

var _ = Describe("ComputeDiff", func() {
	a, b, c := sink("a", 1), sink("b", 2), sink("c", 3)

	It("reports added and removed ids", func() {
		d := port.ComputeDiff(sinks("A", a, "B", b), sinks("B", b, "C", c))
		Expect(d.Added()).To(Equal(ids("C")))
		Expect(d.Removed()).To(Equal(ids("A")))
		Expect(d.HasDiffs()).To(BeTrue())
	})

	It("is empty for identical maps", func() {
		m := sinks("A", a, "B", b)
		d := port.ComputeDiff(m, m)
		Expect(d.Added()).To(BeEmpty())
		Expect(d.Removed()).To(BeEmpty())
		Expect(d.HasDiffs()).To(BeFalse())
	})

	It("ignores value changes under the same id", func() {
		d := port.ComputeDiff(sinks("A", a), sinks("A", b))
		Expect(d.HasDiffs()).To(BeFalse())
	})

	It("treats nil maps as empty", func() {
		d := port.ComputeDiff(nil, sinks("A", a))
		Expect(d.Added()).To(Equal(ids("A")))
		Expect(port.ComputeDiff[port.DownstreamAddress](nil, nil).HasDiffs()).To(BeFalse())
	})

	It("satisfies the set laws", func() {
		prev := sinks("A", a, "B", b)
		next := sinks("B", b, "C", c, "D", a)
		d := port.ComputeDiff(prev, next)

		for _, id := range d.Added() {
			Expect(next).To(HaveKey(id))
			Expect(prev).NotTo(HaveKey(id))
		}
		for _, id := range d.Removed() {
			Expect(prev).To(HaveKey(id))
			Expect(next).NotTo(HaveKey(id))
		}
		Expect(d.Added()).To(HaveLen(2))
		Expect(d.Removed()).To(HaveLen(1))
		Expect(d.Current()).To(Equal(next))
	})

	It("is typed by the address carried at each level", func() {
		var d port.PortDiff[port.DownstreamAddress] = port.ComputeDiff(nil, sinks("A", a))

		addr, ok := d.Current()["A"].ValueAtLevel(port.LevelHost)
		Expect(ok).To(BeTrue())
		Expect(addr).To(Equal(port.DownstreamAddress{Host: "a", Port: 1}))
	})

	It("does not share its map with the caller", func() {
		next := sinks("A", a)
		d := port.ComputeDiff(nil, next)
		next["Z"] = c
		Expect(d.Current()).NotTo(HaveKey(BeEquivalentTo("Z")))
	})
})
