// Package telemetry wires optional Sentry error tracking for the service.
//
// Usage in main:
//
//	telemetry.Init(cfg.Sentry.DSN, cfg.Sentry.Environment)
//	defer telemetry.Flush()
//
// When no DSN is configured, every function here is a no-op, so call sites
// never need to guard.
package telemetry

import (
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
)

// Init initializes the Sentry SDK. An empty dsn disables Sentry; this is not
// an error.
func Init(dsn, environment string) error {
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "[telemetry] SENTRY_DSN not set - Sentry disabled")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
		Tags: map[string]string{
			"service": "batch-jobs",
		},
		// Recipient emails and tenant credentials must never leave the
		// process; scrub events before transmission.
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			return scrub(event)
		},
	})
	if err != nil {
		return fmt.Errorf("sentry.Init: %w", err)
	}
	return nil
}

// CaptureJobFailure reports a batch-level job failure with its identifying tags.
// Safe to call when Sentry is disabled.
func CaptureJobFailure(err error, jobType, correlationID string, jobExecutionID int64) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("job_type", jobType)
		scope.SetTag("correlation_id", correlationID)
		scope.SetTag("job_execution_id", fmt.Sprintf("%d", jobExecutionID))
		sentry.CaptureException(err)
	})
}

// Flush waits for buffered events to be sent. Call with defer in main().
func Flush() {
	sentry.Flush(2 * time.Second)
}

func scrub(event *sentry.Event) *sentry.Event {
	if event == nil {
		return nil
	}
	if event.User.Email != "" {
		event.User.Email = "[redacted]"
	}
	event.User.IPAddress = ""
	if event.Request != nil {
		for k := range event.Request.Headers {
			switch k {
			case "Authorization", "Cookie", "X-Api-Key":
				event.Request.Headers[k] = "[redacted]"
			}
		}
	}
	return event
}
