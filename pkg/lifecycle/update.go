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
	"strings"

	"github.com/united-manufacturing-hub/lca-core/pkg/port"
)

// HandleUpdate reconfigures the running container after the sinks of one of
// its out ports changed. It implements port.PortUpdateCallback.
func (i *Instance) HandleUpdate(ctx context.Context, state *port.OutPortState, diff port.PortDiff[port.DownstreamAddress]) error {
	if i.State() != StateReady {
		i.logger.Debugf("Ignoring update of port %s while %s", state.Port().Name, i.State())

		return nil
	}

	i.logger.Infof("Port %s changed (%s), %d sinks bound", state.Port().Name, diff, state.Size())

	if !state.RequiredAndSet() {
		i.logger.Warnf("Port %s has %d sinks, needs more than %d", state.Port().Name, state.Size(), state.Port().LowerBound)
	}

	return i.run(ctx, "portUpdate", i.component.Commands.PortUpdate, i.Environment())
}

// OutPortEnvironment has one variable per out port holding its sinks at the
// configured address level, comma separated and cut to the port bounds.
// A port with too few sinks exports an empty value.
func (i *Instance) OutPortEnvironment() map[string]string {
	env := make(map[string]string, len(i.outPorts))

	for _, state := range i.outPorts {
		cfg, ok := i.outPortConfig(state.Port().Name)
		if !ok {
			continue
		}

		adapted, ok := state.AdaptSinkListByBoundaries(state.SinksAtLevel(cfg.AddressLevel))
		if !ok {
			env[cfg.EnvName()] = ""

			continue
		}

		addrs := make([]string, 0, len(adapted))
		for _, a := range adapted {
			addrs = append(addrs, a.String())
		}

		env[cfg.EnvName()] = strings.Join(addrs, ",")
	}

	return env
}
