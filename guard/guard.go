// Package guard implements request admission control: the message-size
// ceiling, the per-method rate limiter, and the idle-connection monitor.
// Admission failures are terminal for the offending call (or, for the idle
// monitor, the process); nothing here retries.
package guard

import "errors"

var (
	// ErrPayloadTooLarge rejects a message whose serialized size exceeds
	// MaxMessageBytes, before any parsing beyond envelope framing.
	ErrPayloadTooLarge = errors.New("message exceeds maximum size")

	// ErrRateLimitExceeded rejects a call whose method is over its window.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// MaxMessageBytes is the ceiling on an inbound message's serialized length.
const MaxMessageBytes = 1 << 20 // 1 MiB

// CheckMessageSize fails fast when a raw inbound message exceeds the ceiling.
func CheckMessageSize(raw []byte) error {
	if len(raw) > MaxMessageBytes {
		return ErrPayloadTooLarge
	}
	return nil
}
