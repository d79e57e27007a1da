// Package notify delivers FileLoader run outcomes to their configured recipients: file-level
// failures go to business stakeholders by email, internal failures go to on-call by
// webhook. Both transports share a per-sink rate limiter so a misconfigured source that
// fails every run cannot flood a mail relay or a webhook endpoint.
package notify

import (
	"context"
	"time"
)

// FailureKind mirrors pipeline.FailureKind's string values without importing the pipeline
// package — notify is a leaf dependency of pipeline, not the other way around. Callers
// convert with notify.FailureKind(k).
type FailureKind string

// Notification is the payload handed to a Notifier after a pipeline run reaches a
// terminal state worth reporting (Quarantined, or Published with DLQ rows).
type Notification struct {
	SourceName      string
	Filename        string
	FailureKind     FailureKind
	Detail          string
	RowsRead        int64
	RowsValid       int64
	RowsInvalid     int64
	RowsPublished   int64
	OccurredAt      time.Time
	Recipients      []string
	CC              []string

	// SampleReasons holds up to 50 DLQ rejection reasons for stakeholder emails; the full
	// DLQ itself stays in file_load_dlq for operator follow-up.
	SampleReasons   []string
}

// Notifier delivers a Notification over one transport. Implementations must not block
// past ctx's deadline.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Sink names a notification transport.
type Sink string

const (
	SinkEmail   Sink = "email"
	SinkWebhook Sink = "webhook"
)
