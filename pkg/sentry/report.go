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

package sentry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

type IssueType string

const (
	IssueTypeWarning IssueType = "warning"
	IssueTypeError   IssueType = "error"
	IssueTypeFatal   IssueType = "fatal"
)

// debounceWindow suppresses repeated reports with the same title.
const debounceWindow = 2 * time.Hour

var recent = gocache.New(debounceWindow, 10*time.Minute)

var debounce = true

// EnableTestMode disables debouncing.
func EnableTestMode() { debounce = false }

// DisableTestMode restores debouncing.
func DisableTestMode() { debounce = true }

// seen reports whether an issue with the same title and level was sent within the window.
func seen(issueType IssueType, err error) bool {
	if !debounce {
		return false
	}

	key := string(issueType) + "|" + errorTitle(err)

	return recent.Add(key, struct{}{}, gocache.DefaultExpiration) != nil
}

func ReportIssue(err error, issueType IssueType, log *zap.SugaredLogger) {
	ReportIssueWithContext(err, issueType, log, nil)
}

func ReportIssuef(issueType IssueType, log *zap.SugaredLogger, template string, args ...interface{}) {
	ReportIssue(fmt.Errorf(template, args...), issueType, log)
}

// ReportIssueWithContext logs err and forwards it to Sentry with the tags attached.
// Fatal issues panic after the event has been flushed.
func ReportIssueWithContext(err error, issueType IssueType, log *zap.SugaredLogger, tags map[string]string) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	switch issueType {
	case IssueTypeFatal:
		log.Errorw("Fatal error, terminating", "error", err, "tags", tags)
		send(newEvent(sentry.LevelFatal, err, tags))
		sentry.Flush(5 * time.Second)
		log.Panic("Fatal error")
	case IssueTypeError:
		log.Errorw(err.Error(), "tags", tags)

		if !seen(issueType, err) {
			send(newEvent(sentry.LevelError, err, tags))
		}
	case IssueTypeWarning:
		log.Warnw(err.Error(), "tags", tags)

		if !seen(issueType, err) {
			send(newEvent(sentry.LevelWarning, err, tags))
		}
	}
}

// ReportInstanceError reports a failure of a lifecycle operation on one instance.
func ReportInstanceError(log *zap.SugaredLogger, instanceID, machine, operation string, err error) {
	ReportIssueWithContext(err, IssueTypeError, log, map[string]string{
		"instance_id": instanceID,
		"machine":     machine,
		"operation":   operation,
	})
}
