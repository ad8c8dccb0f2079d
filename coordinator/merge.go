package coordinator

import "github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/interfaces"

// ApplyOutcome classifies what the merge function did with an event.
type ApplyOutcome int

const (
	// OutcomeApplied means the event mutated the session.
	OutcomeApplied ApplyOutcome = iota

	// OutcomeDuplicate means the event's effect was already present; the
	// session is unchanged. Expected under at-least-once delivery.
	OutcomeDuplicate

	// OutcomeStale means the event belongs to an epoch the session has
	// already moved past.
	OutcomeStale

	// OutcomeDiscarded means the event could not be interpreted: it is
	// malformed, or belongs to a future lifecycle whose opening request
	// this replica has not seen and cannot safely interpolate.
	OutcomeDiscarded
)

// String returns the outcome name, used as a metrics label.
func (o ApplyOutcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeStale:
		return "stale"
	case OutcomeDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// apply is the merge function. It is applied identically to locally
// generated and remotely received events, which is what guarantees
// convergence across replicas despite unordered, duplicated delivery.
//
// The rules, in order:
//
//   - unauthorized_attempt events never touch session state.
//   - session_reset closes the epoch it names; duplicates compare stale
//     because the close advances the counter.
//   - request_permission for a superseding epoch adopts the new lifecycle;
//     for the current epoch it is a duplicate.
//   - all other kinds apply only within the current epoch. Their grantor
//     payloads merge by set union and phase moves forward only, so the
//     result is independent of arrival order.
func (s *AccessSession) apply(ev interfaces.Event) ApplyOutcome {
	if err := ev.Validate(); err != nil {
		return OutcomeDiscarded
	}

	switch ev.Kind {
	case interfaces.KindUnauthorized:
		// Observability only; counted by the agent, not merged here.
		return OutcomeApplied

	case interfaces.KindReset:
		return s.applyReset(ev)

	case interfaces.KindRequested:
		return s.applyRequested(ev)

	case interfaces.KindGranted, interfaces.KindThresholdMet, interfaces.KindOpened:
		return s.applyLifecycle(ev)

	default:
		return OutcomeDiscarded
	}
}

func (s *AccessSession) applyReset(ev interfaces.Event) ApplyOutcome {
	if !ev.Epoch.Equal(s.epoch) && !ev.Epoch.Supersedes(s.epoch) {
		return OutcomeStale
	}
	s.closeEpoch(ev.Epoch)
	return OutcomeApplied
}

func (s *AccessSession) applyRequested(ev interfaces.Event) ApplyOutcome {
	switch {
	case ev.Epoch.Supersedes(s.epoch):
		s.openEpoch(ev.Epoch, ev.UserID)
		return OutcomeApplied

	case ev.Epoch.Equal(s.epoch):
		// Same compound epoch implies the same opener; nothing new.
		return OutcomeDuplicate

	default:
		return OutcomeStale
	}
}

func (s *AccessSession) applyLifecycle(ev interfaces.Event) ApplyOutcome {
	if !ev.Epoch.Equal(s.epoch) {
		if ev.Epoch.Supersedes(s.epoch) {
			// This replica missed the opening request of a newer
			// lifecycle. Only a request_permission event carries
			// enough to adopt it; anything else cannot be safely
			// interpolated.
			return OutcomeDiscarded
		}
		return OutcomeStale
	}

	if s.phase == interfaces.PhaseIdle {
		// The epoch matched but no lifecycle is open locally; nothing
		// to attach the event to.
		return OutcomeStale
	}

	changed := false
	switch ev.Kind {
	case interfaces.KindGranted:
		changed = s.addGrantor(ev.GrantingUser)
		if s.refreshThreshold() {
			changed = true
		}

	case interfaces.KindThresholdMet:
		for _, id := range ev.GrantedUsers {
			if s.addGrantor(id) {
				changed = true
			}
		}
		if s.refreshThreshold() {
			changed = true
		}

	case interfaces.KindOpened:
		// An opened event whose union with the local grantor set
		// cannot satisfy the threshold is not interpretable; reject
		// before mutating anything.
		if s.unionSize(ev.GrantedUsers) < s.cfg.Threshold {
			return OutcomeDiscarded
		}
		for _, id := range ev.GrantedUsers {
			if s.addGrantor(id) {
				changed = true
			}
		}
		s.refreshThreshold()
		if s.phase.Before(interfaces.PhaseOpened) {
			s.phase = interfaces.PhaseOpened
			changed = true
		}
	}

	if !changed {
		return OutcomeDuplicate
	}
	return OutcomeApplied
}
