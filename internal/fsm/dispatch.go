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

package fsm

import (
	"context"

	"github.com/united-manufacturing-hub/lca-core/pkg/workerpool"
)

// Dispatcher runs asynchronous transition actions off the caller's goroutine.
// *workerpool.TaskPool satisfies it.
type Dispatcher interface {
	Submit(task workerpool.Task) error
}

type goroutineDispatcher struct{}

func (goroutineDispatcher) Submit(task workerpool.Task) error {
	go func() { _ = task.Run(context.Background()) }()

	return nil
}
