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

package container

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/lca-core/pkg/backoff"
	"github.com/united-manufacturing-hub/lca-core/pkg/config"
	"github.com/united-manufacturing-hub/lca-core/pkg/constants"
	"github.com/united-manufacturing-hub/lca-core/pkg/metrics"
	"github.com/united-manufacturing-hub/lca-core/pkg/models"
)

const (
	labelInstance  = "lca.instance"
	labelComponent = "lca.component"
)

// DockerBackend runs every instance as one container named after its id.
type DockerBackend struct {
	docker  client.APIClient
	pull    backoff.Config
	network string
	logger  *zap.SugaredLogger
}

// NewDockerBackendFromEnv connects using DOCKER_HOST and friends.
func NewDockerBackendFromEnv(cfg config.BackendConfig, log *zap.SugaredLogger) (*DockerBackend, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	return NewDockerBackend(cli, cfg, log), nil
}

func NewDockerBackend(docker client.APIClient, cfg config.BackendConfig, log *zap.SugaredLogger) *DockerBackend {
	pull := backoff.DefaultConfig()
	pull.MaxRetries = cfg.PullRetries

	return &DockerBackend{
		docker:  docker,
		pull:    pull,
		network: cfg.Network,
		logger:  log,
	}
}

// ContainerName is the docker name of the container of an instance.
func ContainerName(id models.ComponentInstanceID) string {
	return constants.ContainerNamePrefix + id.String()
}

func containerPort(declared int) nat.Port {
	return nat.Port(strconv.Itoa(declared) + "/tcp")
}

// Create publishes every in port on a random host port. A missing image is
// pulled and the create retried once.
func (b *DockerBackend) Create(ctx context.Context, id models.ComponentInstanceID, spec Spec) error {
	name := ContainerName(id)

	if spec.Network == "" {
		spec.Network = b.network
	}

	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, in := range spec.InPorts {
		p := containerPort(in.Port)
		exposed[p] = struct{}{}
		bindings[p] = []nat.PortBinding{{HostIP: "", HostPort: ""}}
	}

	cfg := &container.Config{
		Image:        spec.Image,
		Env:          EnvList(spec.Env),
		ExposedPorts: exposed,
		Labels: map[string]string{
			labelInstance:  id.String(),
			labelComponent: spec.Component,
		},
	}
	hostCfg := &container.HostConfig{
		PortBindings:  bindings,
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyMode(spec.Restart)},
		NetworkMode:   container.NetworkMode(spec.Network),
	}

	if cmd, err := RunCommandFor(name, spec); err == nil {
		b.logger.Debugf("Creating container for %s: %s", id, cmd)
	}

	_, err := b.docker.ContainerCreate(ctx, cfg, hostCfg, nil, (*ocispec.Platform)(nil), name)
	if err != nil {
		if !errdefs.IsNotFound(err) {
			metrics.IncErrorCount(metrics.ComponentDocker, id.String())

			return fmt.Errorf("create container %s: %w", name, err)
		}

		if err := b.pullImage(ctx, spec.Image); err != nil {
			return err
		}

		if _, err := b.docker.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name); err != nil {
			metrics.IncErrorCount(metrics.ComponentDocker, id.String())

			return fmt.Errorf("create container %s after pull: %w", name, err)
		}
	}

	return nil
}

func (b *DockerBackend) pullImage(ctx context.Context, img string) error {
	b.logger.Infof("Pulling image %s", img)

	err := backoff.Retry(ctx, b.pull, b.logger, "pull "+img, func() error {
		resp, err := b.docker.ImagePull(ctx, img, image.PullOptions{})
		if err != nil {
			if errdefs.IsNotFound(err) || errdefs.IsUnauthorized(err) {
				return backoff.NewPermanentError(err)
			}

			return err
		}
		defer resp.Close()

		_, err = io.Copy(io.Discard, resp)

		return err
	})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", img, err)
	}

	return nil
}

func (b *DockerBackend) Start(ctx context.Context, id models.ComponentInstanceID) error {
	if err := b.docker.ContainerStart(ctx, ContainerName(id), container.StartOptions{}); err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrUnknownContainer, id)
		}

		return fmt.Errorf("start container %s: %w", ContainerName(id), err)
	}

	return nil
}

func (b *DockerBackend) Stop(ctx context.Context, id models.ComponentInstanceID) error {
	timeout := constants.ContainerStopTimeoutSeconds
	if err := b.docker.ContainerStop(ctx, ContainerName(id), container.StopOptions{Timeout: &timeout}); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("stop container %s: %w", ContainerName(id), err)
	}

	return nil
}

func (b *DockerBackend) Remove(ctx context.Context, id models.ComponentInstanceID) error {
	if err := b.docker.ContainerRemove(ctx, ContainerName(id), container.RemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("remove container %s: %w", ContainerName(id), err)
	}

	return nil
}

func (b *DockerBackend) inspect(ctx context.Context, id models.ComponentInstanceID) (container.InspectResponse, error) {
	info, err := b.docker.ContainerInspect(ctx, ContainerName(id))
	if err != nil {
		if errdefs.IsNotFound(err) {
			return info, fmt.Errorf("%w: %s", ErrUnknownContainer, id)
		}

		return info, fmt.Errorf("inspect container %s: %w", ContainerName(id), err)
	}

	if info.NetworkSettings == nil {
		return info, fmt.Errorf("inspect container %s: no network settings", ContainerName(id))
	}

	return info, nil
}

func (b *DockerBackend) LocalAddress(ctx context.Context, id models.ComponentInstanceID) (string, bool) {
	info, err := b.inspect(ctx, id)
	if err != nil {
		b.logger.Debugf("No local address for %s: %v", id, err)

		return "", false
	}

	if info.NetworkSettings.IPAddress != "" {
		return info.NetworkSettings.IPAddress, true
	}

	for _, ep := range info.NetworkSettings.Networks {
		if ep != nil && ep.IPAddress != "" {
			return ep.IPAddress, true
		}
	}

	return "", false
}

func (b *DockerBackend) PortMapping(ctx context.Context, id models.ComponentInstanceID, declaredPort int) (int, error) {
	info, err := b.inspect(ctx, id)
	if err != nil {
		return 0, err
	}

	for _, binding := range info.NetworkSettings.Ports[containerPort(declaredPort)] {
		if binding.HostPort == "" {
			continue
		}

		hostPort, err := strconv.Atoi(binding.HostPort)
		if err != nil {
			return 0, fmt.Errorf("container %s: host port %q: %w", ContainerName(id), binding.HostPort, err)
		}

		return hostPort, nil
	}

	return 0, fmt.Errorf("%w: %d on %s", ErrPortNotMapped, declaredPort, id)
}

func (b *DockerBackend) Exec(ctx context.Context, id models.ComponentInstanceID, cmd []string, env map[string]string) (string, error) {
	name := ContainerName(id)

	resp, err := b.docker.ContainerExecCreate(ctx, name, container.ExecOptions{
		Cmd:          cmd,
		Env:          EnvList(env),
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", fmt.Errorf("create exec %v in %s: %w", cmd, name, err)
	}

	attach, err := b.docker.ContainerExecAttach(ctx, resp.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", fmt.Errorf("attach exec %v in %s: %w", cmd, name, err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return "", fmt.Errorf("read exec output %v in %s: %w", cmd, name, err)
	}

	info, err := b.docker.ContainerExecInspect(ctx, resp.ID)
	if err != nil {
		return "", fmt.Errorf("inspect exec %v in %s: %w", cmd, name, err)
	}

	if info.ExitCode != 0 {
		return stdout.String(), fmt.Errorf("%w: %v in %s: exit code %d: %s", ErrExecFailed, cmd, name, info.ExitCode, stderr.String())
	}

	return stdout.String(), nil
}
