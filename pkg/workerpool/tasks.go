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

package workerpool

import (
	"context"

	"go.uber.org/zap"
)

// Task is a named unit of work for a TaskPool.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// TaskPool runs heterogeneous tasks, e.g. transition actions and port update callbacks.
type TaskPool = Pool[Task]

// NewTaskPool creates a pool that executes Task.Run.
func NewTaskPool(name string, workers, queueSize int, logger *zap.SugaredLogger) *TaskPool {
	return New(name, workers, queueSize,
		func(ctx context.Context, t Task) error { return t.Run(ctx) },
		logger,
		WithDescriber(func(t Task) string { return t.Name }),
	)
}
