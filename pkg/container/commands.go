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
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownOption is returned for options or commands outside the whitelist.
var ErrUnknownOption = errors.New("unknown docker option")

type Option string

const (
	OptionName        Option = "name"
	OptionPort        Option = "port"
	OptionRestart     Option = "restart"
	OptionInteractive Option = "interactive"
	OptionNetwork     Option = "network"
	OptionEnvironment Option = "environment"
	OptionTTY         Option = "tty"
)

var optionFlags = map[Option]string{
	OptionName:        "--name",
	OptionPort:        "--publish",
	OptionRestart:     "--restart",
	OptionInteractive: "--interactive",
	OptionNetwork:     "--network",
	OptionEnvironment: "--env",
	OptionTTY:         "--tty",
}

// flags that take no value
var switchOptions = map[Option]bool{
	OptionInteractive: true,
	OptionTTY:         true,
}

var commandNames = map[string]string{
	"bash": "bash",
}

type renderedOption struct {
	option Option
	value  string
}

// Commands builds a docker run invocation from whitelisted options only.
// The docker backend renders one per created container for its logs.
type Commands struct {
	image   string
	options []renderedOption
	command string
}

func NewCommands(image string) *Commands {
	return &Commands{image: image}
}

// With adds an option. Options may repeat, e.g. several ports.
func (c *Commands) With(option Option, value string) error {
	option = Option(strings.ToLower(string(option)))
	if _, ok := optionFlags[option]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOption, option)
	}

	c.options = append(c.options, renderedOption{option: option, value: value})

	return nil
}

// Run sets the command executed in the container.
func (c *Commands) Run(command string) error {
	name, ok := commandNames[strings.ToLower(command)]
	if !ok {
		return fmt.Errorf("%w: command %s", ErrUnknownOption, command)
	}

	c.command = name

	return nil
}

// Args returns the full argument vector starting with "docker".
func (c *Commands) Args() []string {
	args := []string{"docker", "run", "--detach"}
	for _, o := range c.options {
		args = append(args, optionFlags[o.option])
		if !switchOptions[o.option] {
			args = append(args, o.value)
		}
	}

	args = append(args, c.image)
	if c.command != "" {
		args = append(args, c.command)
	}

	return args
}

func (c *Commands) String() string {
	return strings.Join(c.Args(), " ")
}

// RunCommandFor renders the docker run call equivalent to creating spec under name.
func RunCommandFor(name string, spec Spec) (*Commands, error) {
	c := NewCommands(spec.Image)

	var errs []error
	errs = append(errs, c.With(OptionName, name))

	for _, in := range spec.InPorts {
		errs = append(errs, c.With(OptionPort, fmt.Sprintf("%d/tcp", in.Port)))
	}

	if spec.Restart != "" {
		errs = append(errs, c.With(OptionRestart, spec.Restart))
	}

	if spec.Network != "" {
		errs = append(errs, c.With(OptionNetwork, spec.Network))
	}

	for _, kv := range EnvList(spec.Env) {
		errs = append(errs, c.With(OptionEnvironment, kv))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return c, nil
}
