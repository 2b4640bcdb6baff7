// Package notify delivers out-of-band messages to the support admin,
// primarily OTP codes.
package notify

import "context"

// Notifier sends a text message to the configured admin channel. Delivery
// failure must be surfaced: an undelivered OTP code is unusable.
type Notifier interface {
	Send(ctx context.Context, text string) error
}
