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
	"maps"
	"slices"

	"github.com/united-manufacturing-hub/lca-core/pkg/models"
)

const (
	EnvTerm       = "TERM"
	EnvVMID       = "VM_ID"
	EnvInstanceID = "INSTANCE_ID"
)

// propertyTranslations maps agent property names to the variables components read.
var propertyTranslations = map[string]string{
	"host.vm.id":  EnvVMID,
	"instance.id": EnvInstanceID,
}

// StaticEnvironment is set on every container at creation time.
func StaticEnvironment(hostID string, id models.ComponentInstanceID) map[string]string {
	return TranslateProperties(map[string]string{
		"host.vm.id":  hostID,
		"instance.id": id.String(),
		EnvTerm:       "DUMB",
	})
}

// TranslateProperties renames known properties to their variable names and keeps the rest as is.
func TranslateProperties(props map[string]string) map[string]string {
	out := make(map[string]string, len(props))
	for k, v := range props {
		if name, ok := propertyTranslations[k]; ok {
			k = name
		}

		out[k] = v
	}

	return out
}

// MergeEnv merges layers left to right; later layers win.
func MergeEnv(layers ...map[string]string) map[string]string {
	out := map[string]string{}
	for _, l := range layers {
		maps.Copy(out, l)
	}

	return out
}

// EnvList renders env as sorted KEY=VALUE pairs.
func EnvList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for _, k := range slices.Sorted(maps.Keys(env)) {
		out = append(out, k+"="+env[k])
	}

	return out
}
