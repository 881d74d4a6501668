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

import "errors"

var (
	// ErrIllegalTransition is returned when no transition leads from the current state to the requested one.
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrTransitionInProgress is returned when a transition is fired while another one has not completed.
	ErrTransitionInProgress = errors.New("transition already in progress")

	// ErrActionFailed wraps the error returned by a transition action.
	ErrActionFailed = errors.New("transition action failed")

	// ErrUndeclaredState is returned by Build for transitions referencing states that were never added.
	ErrUndeclaredState = errors.New("undeclared state")

	// ErrDuplicateTransition is returned by Build when two transitions connect the same pair of states.
	ErrDuplicateTransition = errors.New("duplicate transition")

	// ErrNotParked is returned by Retry when no asynchronous transition is waiting for a retry.
	ErrNotParked = errors.New("no failed asynchronous transition to retry")
)
