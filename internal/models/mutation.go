package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxAttempts is the retry budget a mutation receives at enqueue time.
const DefaultMaxAttempts = 10

// ErrInvalidMutation marks validation failures so callers can tell a bad
// request apart from a persistence failure.
var ErrInvalidMutation = errors.New("invalid mutation")

// AllowedMethods is the fixed verb set a queued mutation may carry.
var AllowedMethods = map[string]bool{
	"POST":   true,
	"PUT":    true,
	"PATCH":  true,
	"DELETE": true,
}

// QueuedMutation is one durable pending write against the remote API.
type QueuedMutation struct {
	ID          string            `json:"id"`
	TargetURL   string            `json:"target_url"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers"`
	Body        []byte            `json:"body"`
	CreatedAt   time.Time         `json:"created_at"`
	Attempts    int               `json:"attempts"`
	MaxAttempts int               `json:"max_attempts"`
}

// NewMutationID returns an identifier whose lexicographic order matches
// creation order: a zero-padded UnixNano prefix plus a UUID suffix for
// uniqueness under concurrent enqueue.
func NewMutationID(now time.Time) string {
	return fmt.Sprintf("%020d-%s", now.UnixNano(), uuid.NewString())
}

// Validate checks the fields required before a mutation may be persisted.
func (m *QueuedMutation) Validate() error {
	if m.TargetURL == "" {
		return fmt.Errorf("%w: target url is required", ErrInvalidMutation)
	}
	if !AllowedMethods[m.Method] {
		return fmt.Errorf("%w: method %q is not allowed", ErrInvalidMutation, m.Method)
	}
	return nil
}

// DeadLetter records a mutation that was permanently dropped, either because
// the server rejected it terminally or because its retry budget ran out.
type DeadLetter struct {
	MutationID string    `json:"mutation_id"`
	TargetURL  string    `json:"target_url"`
	Method     string    `json:"method"`
	Reason     string    `json:"reason"`
	Attempts   int       `json:"attempts"`
	FailedAt   time.Time `json:"failed_at"`
}
