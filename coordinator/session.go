package coordinator

import (
	"fmt"
	"sort"

	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/interfaces"
)

// Config carries the fixed t-of-n parameters of one access session.
type Config struct {
	// Threshold is the minimum count of distinct grantors, requester
	// included, required before the requester may open the document.
	Threshold int

	// TotalParticipants is the number of registered parties.
	TotalParticipants int
}

// Validate checks 1 <= t <= n.
func (c Config) Validate() error {
	if c.Threshold < 1 {
		return fmt.Errorf("threshold must be at least 1, got %d", c.Threshold)
	}
	if c.TotalParticipants < c.Threshold {
		return fmt.Errorf("threshold %d exceeds total participants %d", c.Threshold, c.TotalParticipants)
	}
	return nil
}

// AccessSession holds the state of one in-flight or idle access-request
// lifecycle. It is mutated exclusively through the merge function; direct
// field access stays inside this package.
type AccessSession struct {
	epoch     interfaces.Epoch
	phase     interfaces.Phase
	requester interfaces.ParticipantID
	grantors  map[interfaces.ParticipantID]struct{}

	// grantOrder preserves grant arrival order for display. It carries no
	// protocol meaning; converged replicas may order it differently.
	grantOrder []interfaces.ParticipantID

	cfg Config
}

// NewAccessSession creates an idle session at epoch zero.
func NewAccessSession(cfg Config) (*AccessSession, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &AccessSession{
		phase:    interfaces.PhaseIdle,
		grantors: make(map[interfaces.ParticipantID]struct{}),
		cfg:      cfg,
	}, nil
}

// Snapshot is an immutable copy of session state for display and tests.
// Grantors are sorted so that converged replicas produce identical
// snapshots; GrantOrder carries the replica-local arrival order.
type Snapshot struct {
	Epoch             interfaces.Epoch           `json:"epoch"`
	Phase             interfaces.Phase           `json:"-"`
	PhaseName         string                     `json:"phase"`
	Requester         interfaces.ParticipantID   `json:"requester,omitempty"`
	Grantors          []interfaces.ParticipantID `json:"grantors"`
	GrantOrder        []interfaces.ParticipantID `json:"grant_order"`
	Threshold         int                        `json:"threshold"`
	TotalParticipants int                        `json:"total_participants"`
}

// Snapshot returns a copy of the current state.
func (s *AccessSession) Snapshot() Snapshot {
	grantors := make([]interfaces.ParticipantID, 0, len(s.grantors))
	for id := range s.grantors {
		grantors = append(grantors, id)
	}
	sort.Slice(grantors, func(i, j int) bool { return grantors[i].Less(grantors[j]) })

	order := make([]interfaces.ParticipantID, len(s.grantOrder))
	copy(order, s.grantOrder)

	return Snapshot{
		Epoch:             s.epoch,
		Phase:             s.phase,
		PhaseName:         s.phase.String(),
		Requester:         s.requester,
		Grantors:          grantors,
		GrantOrder:        order,
		Threshold:         s.cfg.Threshold,
		TotalParticipants: s.cfg.TotalParticipants,
	}
}

// Epoch returns the session's current epoch.
func (s *AccessSession) Epoch() interfaces.Epoch {
	return s.epoch
}

// Phase returns the session's current phase.
func (s *AccessSession) Phase() interfaces.Phase {
	return s.phase
}

// Requester returns the participant who opened the current request, empty
// when idle.
func (s *AccessSession) Requester() interfaces.ParticipantID {
	return s.requester
}

// GrantCount returns the size of the grantor set.
func (s *AccessSession) GrantCount() int {
	return len(s.grantors)
}

// HasGranted reports whether the participant is in the grantor set.
func (s *AccessSession) HasGranted(id interfaces.ParticipantID) bool {
	_, ok := s.grantors[id]
	return ok
}

// addGrantor inserts into the grantor set, preserving arrival order for
// display. Reports whether the set changed.
func (s *AccessSession) addGrantor(id interfaces.ParticipantID) bool {
	if id == "" {
		return false
	}
	if _, ok := s.grantors[id]; ok {
		return false
	}
	s.grantors[id] = struct{}{}
	s.grantOrder = append(s.grantOrder, id)
	return true
}

// openEpoch replaces the session state with a fresh Requested lifecycle.
func (s *AccessSession) openEpoch(epoch interfaces.Epoch, requester interfaces.ParticipantID) {
	s.epoch = epoch
	s.phase = interfaces.PhaseRequested
	s.requester = requester
	s.grantors = make(map[interfaces.ParticipantID]struct{})
	s.grantOrder = nil
	s.addGrantor(requester)
}

// closeEpoch returns the session to idle under a fresh openerless epoch, so
// late events from the closed lifecycle compare stale.
func (s *AccessSession) closeEpoch(closed interfaces.Epoch) {
	s.epoch = interfaces.Epoch{Counter: closed.Counter + 1}
	s.phase = interfaces.PhaseIdle
	s.requester = ""
	s.grantors = make(map[interfaces.ParticipantID]struct{})
	s.grantOrder = nil
}

// unionSize returns the size the grantor set would have after merging the
// given participants, without mutating it.
func (s *AccessSession) unionSize(ids []interfaces.ParticipantID) int {
	n := len(s.grantors)
	seen := make(map[interfaces.ParticipantID]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := s.grantors[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		n++
	}
	return n
}

// refreshThreshold derives the ThresholdMet transition from the merged
// grantor set. Counts carried in event payloads are never consulted.
func (s *AccessSession) refreshThreshold() bool {
	if s.phase == interfaces.PhaseRequested && len(s.grantors) >= s.cfg.Threshold {
		s.phase = interfaces.PhaseThresholdMet
		return true
	}
	return false
}
