// Package interfaces defines the core interfaces and types for the threshold
// access system. It provides the contract between different components
// without implementation details.
package interfaces

import (
	"errors"
	"fmt"
	"strings"
)

// ParticipantID identifies a participant within one access session. Identity
// is claimed, not authenticated; uniqueness within a session is assumed.
type ParticipantID string

// NewParticipantID creates a participant identifier with validation.
func NewParticipantID(id string) (ParticipantID, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return "", errors.New("participant id must not be empty")
	}
	return ParticipantID(trimmed), nil
}

// String returns the identifier as a string.
func (p ParticipantID) String() string {
	return string(p)
}

// Less orders participant identifiers lexicographically. The ordering is the
// deterministic tie-break for competing request epochs: the lower identifier
// wins.
func (p ParticipantID) Less(other ParticipantID) bool {
	return p < other
}

// Share is the opaque authorization token held by one participant. It is
// immutable once issued and is never carried in broadcast payloads; only its
// presence or absence matters to the protocol.
type Share string

// Redacted returns a loggable form of the share that does not leak the token.
func (s Share) Redacted() string {
	if len(s) <= 8 {
		return "share[...]"
	}
	return fmt.Sprintf("share[%s...]", string(s[:8]))
}

// Phase is the lifecycle position of an access session. Within one epoch the
// phase only ever moves forward.
type Phase int

const (
	// PhaseIdle means no request is active.
	PhaseIdle Phase = iota

	// PhaseRequested means a request is open and grants are accumulating.
	PhaseRequested

	// PhaseThresholdMet means enough grants have accumulated for the
	// requester to open the document.
	PhaseThresholdMet

	// PhaseOpened means the document is open; the epoch is terminal and
	// auto-resets after the display window.
	PhaseOpened
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRequested:
		return "requested"
	case PhaseThresholdMet:
		return "threshold_met"
	case PhaseOpened:
		return "opened"
	default:
		return "unknown"
	}
}

// Before reports whether p is strictly earlier in the lifecycle than other.
func (p Phase) Before(other Phase) bool {
	return p < other
}

// Epoch tags one distinct request lifecycle. Counters are incremented
// locally, so two participants racing to open a request can produce equal
// counters; the opener identifier breaks the tie deterministically.
type Epoch struct {
	Counter uint64        `json:"counter"`
	Opener  ParticipantID `json:"opener,omitempty"`
}

// Equal compares two epochs for identity.
func (e Epoch) Equal(other Epoch) bool {
	return e.Counter == other.Counter && e.Opener == other.Opener
}

// Supersedes reports whether e wins over other: a higher counter always
// wins, and a counter tie goes to the lower opener identifier. An epoch
// without an opener (the idle epoch minted by a reset) loses a counter tie
// to any opened epoch, so a fresh request always supersedes the idle state
// it was minted from.
func (e Epoch) Supersedes(other Epoch) bool {
	if e.Counter != other.Counter {
		return e.Counter > other.Counter
	}
	if e.Opener == other.Opener {
		return false
	}
	if other.Opener == "" {
		return true
	}
	if e.Opener == "" {
		return false
	}
	return e.Opener.Less(other.Opener)
}

// String returns a compact representation for logging.
func (e Epoch) String() string {
	if e.Opener == "" {
		return fmt.Sprintf("%d", e.Counter)
	}
	return fmt.Sprintf("%d/%s", e.Counter, e.Opener)
}
