package coordinator

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/interfaces"
)

// PermissionCoordinator validates user actions against its AccessSession,
// turns accepted actions into broadcastable events, and merges both local
// and remote events through the single merge function.
//
// A coordinator is owned by exactly one ParticipantAgent. The agent
// serializes access, but the coordinator carries its own mutex so that
// status reads from other goroutines (HTTP handlers, tests) stay safe.
type PermissionCoordinator struct {
	mu       sync.Mutex
	session  *AccessSession
	resolver interfaces.ShareResolver
	log      *slog.Logger
}

// New creates a coordinator over a fresh idle session.
func New(cfg Config, resolver interfaces.ShareResolver, log *slog.Logger) (*PermissionCoordinator, error) {
	session, err := NewAccessSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}
	return &PermissionCoordinator{
		session:  session,
		resolver: resolver,
		log:      log,
	}, nil
}

// Snapshot returns the current session state.
func (c *PermissionCoordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Snapshot()
}

// RequestAccess opens a new request lifecycle for the participant. On
// success it returns the request_permission event to broadcast.
//
// Rejected with ErrAlreadyRequested while another lifecycle is active and
// with ErrShareUnavailable when the participant holds no resolved share;
// neither rejection mutates state or emits an event.
func (c *PermissionCoordinator) RequestAccess(participant interfaces.ParticipantID) (interfaces.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.Phase() != interfaces.PhaseIdle {
		return interfaces.Event{}, fmt.Errorf("%w (requester %s)", interfaces.ErrAlreadyRequested, c.session.Requester())
	}
	if !c.resolver.Resolved(participant) {
		return interfaces.Event{}, fmt.Errorf("%w: %s", interfaces.ErrShareUnavailable, participant)
	}

	ev := interfaces.Event{
		Epoch:  interfaces.Epoch{Counter: c.session.Epoch().Counter + 1, Opener: participant},
		Kind:   interfaces.KindRequested,
		UserID: participant,
	}
	c.applyOwn(ev)

	c.log.Info("access requested",
		slog.String("participant", participant.String()),
		slog.String("epoch", ev.Epoch.String()))
	return ev, nil
}

// GrantAccess adds the participant to the grantor set of the active
// request. On success it returns the grant_permission event and, if the
// grant pushed the set over the threshold, a threshold_met event after it.
//
// Rejections: ErrNoActiveRequest when the session is idle or already
// opened, ErrDuplicateGrant when the participant already granted (benign,
// no state change), ErrShareUnavailable when no share is resolved.
func (c *PermissionCoordinator) GrantAccess(participant interfaces.ParticipantID) ([]interfaces.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	phase := c.session.Phase()
	if phase == interfaces.PhaseIdle || phase == interfaces.PhaseOpened {
		return nil, interfaces.ErrNoActiveRequest
	}
	if c.session.HasGranted(participant) {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrDuplicateGrant, participant)
	}
	if !c.resolver.Resolved(participant) {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrShareUnavailable, participant)
	}

	snap := c.session.Snapshot()
	grant := interfaces.Event{
		Epoch:          c.session.Epoch(),
		Kind:           interfaces.KindGranted,
		GrantingUser:   participant,
		RequestingUser: c.session.Requester(),
		CurrentCount:   c.session.GrantCount() + 1,
		NeededCount:    snap.Threshold,
		GrantedUsers:   append(snap.GrantOrder, participant),
	}
	c.applyOwn(grant)

	events := []interfaces.Event{grant}
	if c.session.Phase() == interfaces.PhaseThresholdMet && phase == interfaces.PhaseRequested {
		met := interfaces.Event{
			Epoch:          c.session.Epoch(),
			Kind:           interfaces.KindThresholdMet,
			RequestingUser: c.session.Requester(),
			GrantedUsers:   c.session.Snapshot().GrantOrder,
		}
		c.applyOwn(met)
		events = append(events, met)
	}

	c.log.Info("access granted",
		slog.String("participant", participant.String()),
		slog.String("requester", grant.RequestingUser.String()),
		slog.Int("grants", c.session.GrantCount()),
		slog.Bool("thresholdMet", c.session.Phase() == interfaces.PhaseThresholdMet))
	return events, nil
}

// OpenDocument transitions the session to Opened. It succeeds only when the
// threshold has been met and the caller is the requester.
//
// Any open attempt by a non-requester, including while the session is idle,
// is a security-relevant violation: the returned error is ErrNotAuthorized
// and the returned event is the unauthorized_attempt broadcast every
// participant must observe. The requester opening too early gets
// ErrThresholdNotMet with no event; opening an already-opened session gets
// ErrNoActiveRequest with no event.
func (c *PermissionCoordinator) OpenDocument(participant interfaces.ParticipantID) (interfaces.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	phase := c.session.Phase()
	requester := c.session.Requester()

	if phase == interfaces.PhaseIdle || participant != requester {
		ev := interfaces.Event{
			Epoch:   c.session.Epoch(),
			Kind:    interfaces.KindUnauthorized,
			UserID:  participant,
			Message: unauthorizedMessage(participant, phase),
		}
		c.log.Warn("unauthorized open attempt",
			slog.String("participant", participant.String()),
			slog.String("phase", phase.String()),
			slog.String("requester", requester.String()))
		return ev, interfaces.ErrNotAuthorized
	}

	switch phase {
	case interfaces.PhaseRequested:
		return interfaces.Event{}, fmt.Errorf("%w: %d of %d grants",
			interfaces.ErrThresholdNotMet, c.session.GrantCount(), c.session.Snapshot().Threshold)
	case interfaces.PhaseOpened:
		// The lifecycle is terminal for its epoch; there is nothing
		// left to open.
		return interfaces.Event{}, interfaces.ErrNoActiveRequest
	}

	ev := interfaces.Event{
		Epoch:          c.session.Epoch(),
		Kind:           interfaces.KindOpened,
		RequestingUser: participant,
		GrantedUsers:   c.session.Snapshot().GrantOrder,
	}
	c.applyOwn(ev)

	c.log.Info("document opened",
		slog.String("participant", participant.String()),
		slog.String("epoch", ev.Epoch.String()))
	return ev, nil
}

// Reset forces the session back to idle under a fresh epoch, independent of
// the current phase. It always succeeds and returns the session_reset event
// for optional broadcast.
func (c *PermissionCoordinator) Reset() interfaces.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	ev := interfaces.Event{
		Epoch: c.session.Epoch(),
		Kind:  interfaces.KindReset,
	}
	c.applyOwn(ev)

	c.log.Info("session reset", slog.String("epoch", ev.Epoch.String()))
	return ev
}

// Merge applies a remotely received event through the merge function and
// reports what happened to it. Stale and duplicate events are absorbed
// silently; callers surface nothing to the user for them.
func (c *PermissionCoordinator) Merge(ev interfaces.Event) ApplyOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	outcome := c.session.apply(ev)
	c.log.Debug("merged remote event",
		slog.String("kind", string(ev.Kind)),
		slog.String("epoch", ev.Epoch.String()),
		slog.String("outcome", outcome.String()),
		slog.String("phase", c.session.Phase().String()))
	return outcome
}

// applyOwn runs a locally generated event through the same merge function
// remote events take. A locally generated event must never be rejected;
// anything else is a bug in the operation that built it.
func (c *PermissionCoordinator) applyOwn(ev interfaces.Event) {
	outcome := c.session.apply(ev)
	if outcome == OutcomeStale || outcome == OutcomeDiscarded {
		c.log.Error("locally generated event rejected by merge",
			slog.String("kind", string(ev.Kind)),
			slog.String("epoch", ev.Epoch.String()),
			slog.String("outcome", outcome.String()))
	}
}

func unauthorizedMessage(participant interfaces.ParticipantID, phase interfaces.Phase) string {
	if phase == interfaces.PhaseIdle {
		return fmt.Sprintf("participant %s attempted to open the document without requesting permission", participant)
	}
	return fmt.Sprintf("participant %s attempted to open a document requested by another party", participant)
}
