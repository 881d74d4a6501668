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
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap/zaptest"

	"github.com/united-manufacturing-hub/lca-core/pkg/config"
	"github.com/united-manufacturing-hub/lca-core/pkg/container"
	"github.com/united-manufacturing-hub/lca-core/pkg/models"
	"github.com/united-manufacturing-hub/lca-core/pkg/port"
)

// fakeDocker records calls and returns configured responses.
type fakeDocker struct {
	client.APIClient

	imageMissing bool
	pullErr      error
	stopErr      error
	removeErr    error
	inspect      dockercontainer.InspectResponse
	inspectErr   error
	execExit     int

	calls     []string
	created   *dockercontainer.Config
	hostCfg   *dockercontainer.HostConfig
	execOpts  dockercontainer.ExecOptions
	createdAs string
}

func (f *fakeDocker) ContainerCreate(_ context.Context, cfg *dockercontainer.Config, hostCfg *dockercontainer.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, name string) (dockercontainer.CreateResponse, error) {
	f.calls = append(f.calls, "Create")
	if f.imageMissing {
		return dockercontainer.CreateResponse{}, fmt.Errorf("no such image %s: %w", cfg.Image, errdefs.ErrNotFound)
	}
	f.created, f.hostCfg, f.createdAs = cfg, hostCfg, name

	return dockercontainer.CreateResponse{ID: "c0ffee"}, nil
}

func (f *fakeDocker) ImagePull(_ context.Context, _ string, _ image.PullOptions) (io.ReadCloser, error) {
	f.calls = append(f.calls, "Pull")
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	f.imageMissing = false

	return io.NopCloser(strings.NewReader(`{"status":"done"}`)), nil
}

func (f *fakeDocker) ContainerStart(_ context.Context, _ string, _ dockercontainer.StartOptions) error {
	f.calls = append(f.calls, "Start")

	return nil
}

func (f *fakeDocker) ContainerStop(_ context.Context, _ string, _ dockercontainer.StopOptions) error {
	f.calls = append(f.calls, "Stop")

	return f.stopErr
}

func (f *fakeDocker) ContainerRemove(_ context.Context, _ string, _ dockercontainer.RemoveOptions) error {
	f.calls = append(f.calls, "Remove")

	return f.removeErr
}

func (f *fakeDocker) ContainerInspect(_ context.Context, _ string) (dockercontainer.InspectResponse, error) {
	f.calls = append(f.calls, "Inspect")

	return f.inspect, f.inspectErr
}

func (f *fakeDocker) ContainerExecCreate(_ context.Context, _ string, opts dockercontainer.ExecOptions) (dockercontainer.ExecCreateResponse, error) {
	f.calls = append(f.calls, "Exec")
	f.execOpts = opts

	return dockercontainer.ExecCreateResponse{ID: "exec-1"}, nil
}

func (f *fakeDocker) ContainerExecAttach(_ context.Context, _ string, _ dockercontainer.ExecAttachOptions) (types.HijackedResponse, error) {
	return types.HijackedResponse{
		Reader: bufio.NewReader(bytes.NewReader(nil)),
		Conn:   nopConn{},
	}, nil
}

func (f *fakeDocker) ContainerExecInspect(_ context.Context, _ string) (dockercontainer.ExecInspect, error) {
	return dockercontainer.ExecInspect{ExitCode: f.execExit}, nil
}

type nopConn struct{}

func (nopConn) Read([]byte) (int, error)         { return 0, io.EOF }
func (nopConn) Write(b []byte) (int, error)      { return len(b), nil }
func (nopConn) Close() error                     { return nil }
func (nopConn) LocalAddr() net.Addr              { return nil }
func (nopConn) RemoteAddr() net.Addr             { return nil }
func (nopConn) SetDeadline(time.Time) error      { return nil }
func (nopConn) SetReadDeadline(time.Time) error  { return nil }
func (nopConn) SetWriteDeadline(time.Time) error { return nil }

func inspectWithPorts(ip string, ports nat.PortMap) dockercontainer.InspectResponse {
	return dockercontainer.InspectResponse{
		NetworkSettings: &dockercontainer.NetworkSettings{
			NetworkSettingsBase: dockercontainer.NetworkSettingsBase{Ports: ports},
			Networks: map[string]*network.EndpointSettings{
				"bridge": {IPAddress: ip},
			},
		},
	}
}

var _ = Describe("DockerBackend", func() {
	var (
		ctx     context.Context
		fake    *fakeDocker
		backend *container.DockerBackend
		id      models.ComponentInstanceID
		spec    container.Spec
	)

	BeforeEach(func() {
		ctx = context.Background()
		fake = &fakeDocker{}
		backend = container.NewDockerBackend(fake, config.BackendConfig{PullRetries: 1}, zaptest.NewLogger(GinkgoT()).Sugar())
		id = models.ComponentInstanceID("0b4f6c1e-2d1a-4f4e-9a55-8c1f0d1e2a3b")
		spec = container.Spec{
			Component: "historian",
			Image:     "timescale/timescaledb:latest-pg16",
			InPorts:   []port.InPort{{Name: "sql", Port: 5432}},
			Env:       map[string]string{"TERM": "DUMB", "POSTGRES_DB": "umh"},
			Restart:   "unless-stopped",
		}
	})

	It("creates a container publishing every in port", func() {
		Expect(backend.Create(ctx, id, spec)).To(Succeed())

		Expect(fake.calls).To(Equal([]string{"Create"}))
		Expect(fake.createdAs).To(Equal(container.ContainerName(id)))
		Expect(fake.created.Env).To(Equal([]string{"POSTGRES_DB=umh", "TERM=DUMB"}))
		Expect(fake.created.ExposedPorts).To(HaveKey(nat.Port("5432/tcp")))
		Expect(fake.hostCfg.PortBindings).To(HaveKey(nat.Port("5432/tcp")))
		Expect(string(fake.hostCfg.RestartPolicy.Name)).To(Equal("unless-stopped"))
	})

	It("pulls a missing image and creates again", func() {
		fake.imageMissing = true

		Expect(backend.Create(ctx, id, spec)).To(Succeed())
		Expect(fake.calls).To(Equal([]string{"Create", "Pull", "Create"}))
	})

	It("gives up on images that do not exist in the registry", func() {
		fake.imageMissing = true
		fake.pullErr = fmt.Errorf("manifest unknown: %w", errdefs.ErrNotFound)

		err := backend.Create(ctx, id, spec)
		Expect(err).To(MatchError(ContainSubstring("pull image")))
		Expect(fake.calls).To(Equal([]string{"Create", "Pull"}))
	})

	It("treats stopping and removing a vanished container as done", func() {
		fake.stopErr = errdefs.ErrNotFound
		fake.removeErr = errdefs.ErrNotFound

		Expect(backend.Stop(ctx, id)).To(Succeed())
		Expect(backend.Remove(ctx, id)).To(Succeed())

		fake.stopErr = errors.New("daemon busy")
		Expect(backend.Stop(ctx, id)).NotTo(Succeed())
	})

	It("reads the local address and mapped host ports", func() {
		fake.inspect = inspectWithPorts("172.17.0.4", nat.PortMap{
			"5432/tcp": {{HostIP: "0.0.0.0", HostPort: "32768"}},
		})

		addr, ok := backend.LocalAddress(ctx, id)
		Expect(ok).To(BeTrue())
		Expect(addr).To(Equal("172.17.0.4"))

		mapped, err := backend.PortMapping(ctx, id, 5432)
		Expect(err).NotTo(HaveOccurred())
		Expect(mapped).To(Equal(32768))

		_, err = backend.PortMapping(ctx, id, 1883)
		Expect(err).To(MatchError(container.ErrPortNotMapped))
	})

	It("maps a missing container to ErrUnknownContainer", func() {
		fake.inspectErr = errdefs.ErrNotFound

		_, ok := backend.LocalAddress(ctx, id)
		Expect(ok).To(BeFalse())
		_, err := backend.PortMapping(ctx, id, 5432)
		Expect(err).To(MatchError(container.ErrUnknownContainer))
	})

	It("passes the environment to exec and reports exit codes", func() {
		_, err := backend.Exec(ctx, id, []string{"/reload.sh"}, map[string]string{"SQL": "10.0.0.1:5432"})
		Expect(err).NotTo(HaveOccurred())
		Expect(fake.execOpts.Cmd).To(Equal([]string{"/reload.sh"}))
		Expect(fake.execOpts.Env).To(Equal([]string{"SQL=10.0.0.1:5432"}))

		fake.execExit = 2
		_, err = backend.Exec(ctx, id, []string{"/reload.sh"}, nil)
		Expect(err).To(MatchError(container.ErrExecFailed))
	})
})
