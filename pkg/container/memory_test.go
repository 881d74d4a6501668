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

package container_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap/zaptest"

	"github.com/united-manufacturing-hub/lca-core/pkg/config"
	"github.com/united-manufacturing-hub/lca-core/pkg/container"
	"github.com/united-manufacturing-hub/lca-core/pkg/models"
	"github.com/united-manufacturing-hub/lca-core/pkg/port"
)

var _ = Describe("MemoryBackend", func() {
	var (
		ctx     context.Context
		backend *container.MemoryBackend
		id      models.ComponentInstanceID
	)

	BeforeEach(func() {
		ctx = context.Background()
		backend = container.NewMemoryBackend(zaptest.NewLogger(GinkgoT()).Sugar())
		id = models.NewComponentInstanceID()
	})

	It("assigns distinct host ports per declared port", func() {
		Expect(backend.Create(ctx, id, container.Spec{Image: "x", InPorts: []port.InPort{{Name: "a", Port: 80}, {Name: "b", Port: 443}}})).To(Succeed())

		a, err := backend.PortMapping(ctx, id, 80)
		Expect(err).NotTo(HaveOccurred())
		b, err := backend.PortMapping(ctx, id, 443)
		Expect(err).NotTo(HaveOccurred())
		Expect(a).NotTo(Equal(b))

		_, err = backend.PortMapping(ctx, id, 22)
		Expect(err).To(MatchError(container.ErrPortNotMapped))
	})

	It("only execs in running containers", func() {
		Expect(backend.Create(ctx, id, container.Spec{Image: "x"})).To(Succeed())

		_, err := backend.Exec(ctx, id, []string{"true"}, nil)
		Expect(err).To(MatchError(container.ErrExecFailed))

		Expect(backend.Start(ctx, id)).To(Succeed())
		_, err = backend.Exec(ctx, id, []string{"true"}, map[string]string{"A": "1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(backend.Execs(id)).To(Equal([]container.ExecRecord{{Cmd: []string{"true"}, Env: map[string]string{"A": "1"}}}))
	})

	It("forgets removed containers", func() {
		Expect(backend.Create(ctx, id, container.Spec{Image: "x"})).To(Succeed())
		Expect(backend.Start(ctx, id)).To(Succeed())
		Expect(backend.Running(id)).To(BeTrue())

		Expect(backend.Stop(ctx, id)).To(Succeed())
		Expect(backend.Remove(ctx, id)).To(Succeed())
		Expect(backend.Exists(id)).To(BeFalse())
		Expect(backend.Start(ctx, id)).To(MatchError(container.ErrUnknownContainer))
	})
})

var _ = Describe("NewBackend", func() {
	It("builds the memory backend and rejects unknown types", func() {
		log := zaptest.NewLogger(GinkgoT()).Sugar()

		b, err := container.NewBackend(config.BackendConfig{Type: config.BackendTypeMemory}, log)
		Expect(err).NotTo(HaveOccurred())
		Expect(b).To(BeAssignableToTypeOf(&container.MemoryBackend{}))

		_, err = container.NewBackend(config.BackendConfig{Type: "lxc"}, log)
		Expect(err).To(MatchError(container.ErrUnsupportedBackend))
	})
})
