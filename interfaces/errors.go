package interfaces

import "errors"

var (
	// ErrAlreadyRequested is returned when a participant tries to open a
	// request while another lifecycle is active. Reported to the caller
	// only; never broadcast.
	ErrAlreadyRequested = errors.New("another access request is already active")

	// ErrNoActiveRequest is returned when a grant or open arrives with no
	// request lifecycle to attach to.
	ErrNoActiveRequest = errors.New("no access request is active")

	// ErrDuplicateGrant is returned when a participant grants twice in
	// the same epoch. The state is unchanged; the condition is benign.
	ErrDuplicateGrant = errors.New("participant already granted access")

	// ErrThresholdNotMet is returned when the requester tries to open the
	// document before enough grants have accumulated.
	ErrThresholdNotMet = errors.New("grant threshold not met")

	// ErrNotAuthorized is returned when a participant other than the
	// requester tries to open the document. Security-relevant: the
	// attempt is broadcast as an unauthorized_attempt event in addition
	// to being reported to the offender.
	ErrNotAuthorized = errors.New("participant is not authorized to open the document")

	// ErrShareUnavailable is returned when the acting participant has no
	// resolved share token. A later identical action may succeed once
	// shares are loaded; there is no automatic retry.
	ErrShareUnavailable = errors.New("no share available for participant")
)
