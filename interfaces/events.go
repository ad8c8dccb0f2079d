package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// EventKind names a broadcast domain event. The wire names match the
// original socket event vocabulary.
type EventKind string

const (
	// KindRequested announces a new access request and opens an epoch.
	KindRequested EventKind = "request_permission"

	// KindGranted announces one participant granting access to the
	// current requester. Count fields are advisory; receivers recompute
	// the threshold comparison from their merged grantor set.
	KindGranted EventKind = "grant_permission"

	// KindThresholdMet announces that the grantor set reached the
	// threshold.
	KindThresholdMet EventKind = "threshold_met"

	// KindOpened announces that the requester opened the document.
	KindOpened EventKind = "document_opened"

	// KindReset closes the current epoch and returns the session to idle.
	KindReset EventKind = "session_reset"

	// KindUnauthorized reports an open attempt by a party that was never
	// granted access. It carries no session mutation; every receiver
	// increments its observability counter.
	KindUnauthorized EventKind = "unauthorized_attempt"
)

// Valid reports whether the kind is part of the protocol vocabulary.
func (k EventKind) Valid() bool {
	switch k {
	case KindRequested, KindGranted, KindThresholdMet, KindOpened, KindReset, KindUnauthorized:
		return true
	default:
		return false
	}
}

// Event is the broadcast envelope. Every event carries the epoch it was
// generated under; receivers discard events whose epoch is stale. Payload
// fields are populated per kind, unused fields are omitted on the wire.
type Event struct {
	Epoch Epoch     `json:"epoch"`
	Kind  EventKind `json:"kind"`

	// UserID is the acting participant for request_permission and
	// unauthorized_attempt events.
	UserID ParticipantID `json:"user_id,omitempty"`

	// GrantingUser and RequestingUser identify the parties of a
	// grant_permission event; RequestingUser is also set on
	// threshold_met and document_opened events.
	GrantingUser   ParticipantID `json:"granting_user,omitempty"`
	RequestingUser ParticipantID `json:"requesting_user,omitempty"`

	// CurrentCount and NeededCount are denormalized for display only and
	// are never treated as authoritative by the merge function.
	CurrentCount int `json:"current_count,omitempty"`
	NeededCount  int `json:"needed_count,omitempty"`

	// GrantedUsers is the sender's view of the grantor set. It is merged
	// by set union, which keeps late-arriving phase events consistent
	// with the threshold invariant.
	GrantedUsers []ParticipantID `json:"granted_users,omitempty"`

	// Message is the human-readable description of an
	// unauthorized_attempt event.
	Message string `json:"message,omitempty"`
}

// Validate checks the envelope for the fields its kind requires.
func (ev Event) Validate() error {
	if !ev.Kind.Valid() {
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	switch ev.Kind {
	case KindRequested, KindUnauthorized:
		if ev.UserID == "" {
			return fmt.Errorf("%s event missing user_id", ev.Kind)
		}
	case KindGranted:
		if ev.GrantingUser == "" || ev.RequestingUser == "" {
			return fmt.Errorf("%s event missing granting_user or requesting_user", ev.Kind)
		}
	case KindThresholdMet, KindOpened:
		if ev.RequestingUser == "" {
			return fmt.Errorf("%s event missing requesting_user", ev.Kind)
		}
	}
	return nil
}

// Marshal encodes the event for the broadcast channel.
func (ev Event) Marshal() ([]byte, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(ev)
}

// UnmarshalEvent decodes and validates a broadcast payload.
func UnmarshalEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("malformed event payload: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// ErrChannelClosed is returned by Broadcast after the channel is closed.
var ErrChannelClosed = errors.New("sync channel closed")

// SyncChannel broadcasts domain events to all other live participants and
// delivers their events in return. Delivery is at-least-once with no
// ordering guarantee across senders; duplicates are possible. Receivers must
// tolerate both, which the merge function does by construction.
type SyncChannel interface {
	// Broadcast sends the event to every other participant.
	Broadcast(ctx context.Context, ev Event) error

	// Events returns the stream of remotely-originated events. The
	// channel is closed when the underlying transport shuts down.
	Events() <-chan Event

	// Close shuts the channel down and releases transport resources.
	Close() error
}
