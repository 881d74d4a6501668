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
	"errors"
	"fmt"

	"github.com/united-manufacturing-hub/lca-core/pkg/container"
	"github.com/united-manufacturing-hub/lca-core/pkg/port"
)

func (i *Instance) spec() container.Spec {
	return container.Spec{
		Component: i.component.Name,
		Image:     i.component.Image,
		InPorts:   i.component.InPorts,
		Env:       container.MergeEnv(i.component.Env, i.staticEnv()),
		Restart:   i.component.Restart,
	}
}

func (i *Instance) create(ctx context.Context) error {
	i.logger.Infof("Creating container from %s", i.component.Image)

	if err := i.deps.Backend.Create(ctx, i.id, i.spec()); err != nil {
		return fmt.Errorf("create container: %w", err)
	}

	return nil
}

func (i *Instance) initialise(ctx context.Context) error {
	if err := i.deps.Backend.Start(ctx, i.id); err != nil {
		return fmt.Errorf("start container: %w", err)
	}

	regs := make([]registration, 0, len(i.component.InPorts))
	for _, in := range i.component.InPorts {
		addrs, err := i.inPortAddresses(ctx, in)
		if err != nil {
			return err
		}

		if err := i.deps.Registry.Register(ctx, in.Name, i.id, addrs); err != nil {
			return fmt.Errorf("register in port %s: %w", in.Name, err)
		}

		i.logger.Infof("Registered in port %s at %s", in.Name, addrs)
		regs = append(regs, registration{port: in.Name, addrs: addrs})
	}

	i.pollMu.Lock()
	i.registrations = regs
	i.pollMu.Unlock()

	env := i.Environment()
	for _, step := range []struct {
		name string
		cmd  []string
	}{
		{"install", i.component.Commands.Install},
		{"postInstall", i.component.Commands.PostInstall},
		{"start", i.component.Commands.Start},
	} {
		if err := i.run(ctx, step.name, step.cmd, env); err != nil {
			return err
		}
	}

	return nil
}

// inPortAddresses builds the per level addresses of an in port. The container
// and host levels use the published port, the public level the declared one.
func (i *Instance) inPortAddresses(ctx context.Context, in port.InPort) (port.SinkState, error) {
	mapped, err := i.deps.Backend.PortMapping(ctx, i.id, in.Port)
	if err != nil {
		return port.SinkState{}, fmt.Errorf("in port %s: %w", in.Name, err)
	}

	local, ok := i.deps.Backend.LocalAddress(ctx, i.id)
	if !ok {
		local = i.deps.Agent.HostAddress
	}

	return port.NewHierarchyLevelStateBuilder[port.DownstreamAddress]().
		RegisterValueAtLevel(port.LevelContainer, port.DownstreamAddress{Host: local, Port: mapped}).
		RegisterValueAtLevel(port.LevelHost, port.DownstreamAddress{Host: i.deps.Agent.HostAddress, Port: mapped}).
		RegisterValueAtLevel(port.LevelPublic, port.DownstreamAddress{Host: i.deps.Agent.PublicAddress, Port: in.Port}).
		Build()
}

func (i *Instance) destroy(ctx context.Context) error {
	if err := i.run(ctx, "stop", i.component.Commands.Stop, i.Environment()); err != nil {
		i.logger.Warnf("Stop command failed, removing the container anyway: %v", err)
	}

	return i.teardown(ctx)
}

// abort tears down an instance that never became ready. Every step tolerates
// resources that were never created.
func (i *Instance) abort(ctx context.Context) error {
	i.logger.Infof("Dropping instance in state %s", i.State())

	return i.teardown(ctx)
}

func (i *Instance) teardown(ctx context.Context) error {
	// a refresh racing the deregistration would publish the ports again
	i.StopPolling()

	i.pollMu.Lock()
	i.registrations = nil
	i.pollMu.Unlock()

	var errs []error

	for _, in := range i.component.InPorts {
		if err := i.deps.Registry.Deregister(ctx, in.Name, i.id); err != nil {
			errs = append(errs, fmt.Errorf("deregister in port %s: %w", in.Name, err))
		}
	}

	if err := i.deps.Backend.Stop(ctx, i.id); err != nil {
		errs = append(errs, fmt.Errorf("stop container: %w", err))
	}

	if err := i.deps.Backend.Remove(ctx, i.id); err != nil {
		errs = append(errs, fmt.Errorf("remove container: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	for _, state := range i.outPorts {
		state.Clear()
	}

	return nil
}

func (i *Instance) run(ctx context.Context, name string, cmd []string, env map[string]string) error {
	if len(cmd) == 0 {
		return nil
	}

	i.execMu.Lock()
	defer i.execMu.Unlock()

	out, err := i.deps.Backend.Exec(ctx, i.id, cmd, env)
	if err != nil {
		return fmt.Errorf("%s command: %w", name, err)
	}

	i.logger.Debugf("%s command %v done: %s", name, cmd, out)

	return nil
}
