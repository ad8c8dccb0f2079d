package interfaces

import "context"

// ShareSource supplies the per-participant share tokens for the current
// session. An empty map or an error both mean the external store has nothing
// for this session; the resolver then falls back to local derivation.
type ShareSource interface {
	// Shares returns the participant-to-token mapping for the session.
	Shares(ctx context.Context) (map[ParticipantID]Share, error)
}

// ShareResolver obtains a participant's opaque share token, consulting the
// external source first and deriving a deterministic local fallback when the
// source has nothing. Resolution never participates in threshold
// arithmetic; it only supplies tokens.
type ShareResolver interface {
	// Resolve returns the share for the participant.
	Resolve(ctx context.Context, participant ParticipantID) (Share, error)

	// Resolved reports whether the participant currently holds a share,
	// without triggering fallback derivation or a source fetch.
	Resolved(participant ParticipantID) bool
}
