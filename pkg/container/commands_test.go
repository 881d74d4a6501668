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
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/lca-core/pkg/container"
	"github.com/united-manufacturing-hub/lca-core/pkg/models"
	"github.com/united-manufacturing-hub/lca-core/pkg/port"
)

var _ = Describe("Commands", func() {
	It("renders whitelisted options in order", func() {
		c := container.NewCommands("alpine:3.20")
		Expect(c.With(container.OptionName, "lca-x")).To(Succeed())
		Expect(c.With(container.OptionTTY, "")).To(Succeed())
		Expect(c.With("NETWORK", "umh")).To(Succeed())
		Expect(c.Run("BASH")).To(Succeed())

		Expect(c.String()).To(Equal("docker run --detach --name lca-x --tty --network umh alpine:3.20 bash"))
	})

	It("rejects options and commands outside the whitelist", func() {
		c := container.NewCommands("alpine")
		Expect(c.With("privileged", "")).To(MatchError(container.ErrUnknownOption))
		Expect(c.Run("sh")).To(MatchError(container.ErrUnknownOption))
	})

	It("renders a spec", func() {
		c, err := container.RunCommandFor("lca-1", container.Spec{
			Image:   "eclipse-mosquitto:2",
			InPorts: []port.InPort{{Name: "mqtt", Port: 1883}},
			Env:     map[string]string{"B": "2", "A": "1"},
			Restart: "always",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Args()).To(Equal([]string{
			"docker", "run", "--detach", "--name", "lca-1", "--publish", "1883/tcp",
			"--restart", "always", "--env", "A=1", "--env", "B=2", "eclipse-mosquitto:2",
		}))
	})
})

var _ = Describe("Environment", func() {
	It("sets the static variables of every container", func() {
		env := container.StaticEnvironment("vm-7", models.ComponentInstanceID("abc"))
		Expect(env).To(Equal(map[string]string{
			container.EnvTerm:       "DUMB",
			container.EnvVMID:       "vm-7",
			container.EnvInstanceID: "abc",
		}))
	})

	It("lets later layers win and renders sorted pairs", func() {
		env := container.MergeEnv(map[string]string{"A": "1", "B": "1"}, map[string]string{"B": "2"}, nil)
		Expect(container.EnvList(env)).To(Equal([]string{"A=1", "B=2"}))
	})
})
