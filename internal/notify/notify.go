// Package notify delivers staff notifications for the intake service.
//
// The follow-up worker uses it to alert the care team about patients who
// started a questionnaire and went quiet.
package notify

import "context"

// Notifier sends a short text notification to a recipient phone number.
type Notifier interface {
	Notify(ctx context.Context, to string, body string) error
}

// NopNotifier discards all notifications. Used when no Twilio credentials
// are configured.
type NopNotifier struct{}

// Notify discards the notification.
func (NopNotifier) Notify(ctx context.Context, to string, body string) error {
	return nil
}
