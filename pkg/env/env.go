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

// Package env reads typed values from environment variables.
package env

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func lookup[T any](key string, required bool, defaultValue T, parse func(string) (T, error)) (T, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		if required {
			return defaultValue, fmt.Errorf("required environment variable %s is not set", key)
		}

		return defaultValue, nil
	}

	parsed, err := parse(value)
	if err != nil {
		return defaultValue, fmt.Errorf("environment variable %s: %w", key, err)
	}

	return parsed, nil
}

// GetAsString returns the variable, or defaultValue when it is unset and not required.
func GetAsString(key string, required bool, defaultValue string) (string, error) {
	return lookup(key, required, defaultValue, func(s string) (string, error) { return s, nil })
}

// GetAsInt parses the variable as an integer. A malformed value is an error
// even when the variable is optional.
func GetAsInt(key string, required bool, defaultValue int) (int, error) {
	return lookup(key, required, defaultValue, strconv.Atoi)
}

// GetAsBool accepts true/false, 1/0, yes/no, y/n and on/off.
func GetAsBool(key string, required bool, defaultValue bool) (bool, error) {
	return lookup(key, required, defaultValue, func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "true", "1", "yes", "y", "on":
			return true, nil
		case "false", "0", "no", "n", "off":
			return false, nil
		}

		return false, fmt.Errorf("%q is not a boolean", s)
	})
}

// GetAsDuration parses the variable with time.ParseDuration.
func GetAsDuration(key string, required bool, defaultValue time.Duration) (time.Duration, error) {
	return lookup(key, required, defaultValue, time.ParseDuration)
}

// GetAsList splits the variable on commas and drops empty entries.
func GetAsList(key string, required bool, defaultValue []string) ([]string, error) {
	return lookup(key, required, defaultValue, func(s string) ([]string, error) {
		var out []string
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}

		return out, nil
	})
}
