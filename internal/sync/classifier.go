package sync

import "net/http"

// Class is the disposition of one failed mutation attempt.
type Class int

const (
	// Terminal failures will never succeed on retry; the entry is dropped.
	Terminal Class = iota
	// Retryable failures consume retry budget while connectivity is present.
	Retryable
	// DeferredOffline means the device itself is disconnected; the entry
	// waits without spending budget.
	DeferredOffline
)

func (c Class) String() string {
	switch c {
	case Terminal:
		return "terminal"
	case Retryable:
		return "retryable"
	case DeferredOffline:
		return "deferred_offline"
	default:
		return "unknown"
	}
}

// Classify maps a failed attempt outcome to its disposition. A transport
// error (no response received) defers; 408, 429, 401 and all 5xx retry; any
// other status is a genuine rejection that retrying cannot fix.
//
// 401 retries rather than dropping because the session token may rotate
// between attempts; the processor re-reads the current token before every
// execution, not at enqueue time.
func Classify(status int, err error) Class {
	if err != nil {
		return DeferredOffline
	}
	switch {
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status == http.StatusUnauthorized,
		status >= 500:
		return Retryable
	default:
		return Terminal
	}
}
