package notify

import "context"

// fileLevelKinds are the FailureKinds notified to business stakeholders by email; every
// other kind is routed to the webhook. Mirrors pipeline.FailureKind.IsFileLevel without
// importing the pipeline package.
var fileLevelKinds = map[FailureKind]bool{
	"MissingHeader":               true,
	"MissingColumns":              true,
	"NoDataInFile":                true,
	"GrainValidationError":        true,
	"AuditFailedError":            true,
	"ValidationThresholdExceeded": true,
	"DuplicateFile":               true,
}

// Router dispatches a Notification to email or webhook depending on whether its
// FailureKind is file-level (business stakeholders) or internal (on-call), per spec.md §7.
type Router struct {
	Email   Notifier
	Webhook Notifier
}

// Notify implements Notifier, routing to Email or Webhook. A nil destination is a silent
// no-op — the process can run with only one transport configured.
func (r *Router) Notify(ctx context.Context, n Notification) error {
	var dest Notifier

	if fileLevelKinds[n.FailureKind] {
		dest = r.Email
	} else {
		dest = r.Webhook
	}

	if dest == nil {
		return nil
	}

	return dest.Notify(ctx, n)
}
