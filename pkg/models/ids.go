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

package models

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ComponentInstanceID identifies one running instance of a deployable component.
type ComponentInstanceID string

// NewComponentInstanceID mints a fresh random instance id.
func NewComponentInstanceID() ComponentInstanceID {
	return ComponentInstanceID(uuid.NewString())
}

// ParseComponentInstanceID validates s as an instance id.
func ParseComponentInstanceID(s string) (ComponentInstanceID, error) {
	if s == "" {
		return "", errors.New("empty component instance id")
	}

	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid component instance id %q: %w", s, err)
	}

	return ComponentInstanceID(id.String()), nil
}

func (id ComponentInstanceID) String() string {
	return string(id)
}

// Short returns the first eight characters, enough for log lines and container names.
func (id ComponentInstanceID) Short() string {
	if len(id) <= 8 {
		return string(id)
	}

	return string(id[:8])
}
