package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticResolver holds a fixed participant-to-share mapping for tests.
type staticResolver map[interfaces.ParticipantID]interfaces.Share

func (r staticResolver) Resolve(_ context.Context, p interfaces.ParticipantID) (interfaces.Share, error) {
	share, ok := r[p]
	if !ok {
		return "", interfaces.ErrShareUnavailable
	}
	return share, nil
}

func (r staticResolver) Resolved(p interfaces.ParticipantID) bool {
	_, ok := r[p]
	return ok
}

func testResolver(n int) staticResolver {
	r := make(staticResolver, n)
	for i := 1; i <= n; i++ {
		id := interfaces.ParticipantID(fmt.Sprintf("user-%d", i))
		r[id] = interfaces.Share(fmt.Sprintf("token-%d", i))
	}
	return r
}

func newTestCoordinator(t *testing.T, threshold, total int) *PermissionCoordinator {
	t.Helper()
	c, err := New(Config{Threshold: threshold, TotalParticipants: total}, testResolver(total), slog.Default())
	require.NoError(t, err, "coordinator creation should succeed")
	return c
}

// checkInvariants asserts the session invariants that must hold after every
// operation and every merge.
func checkInvariants(t *testing.T, snap Snapshot) {
	t.Helper()
	assert.LessOrEqual(t, len(snap.Grantors), snap.TotalParticipants, "grantor set must not exceed total participants")

	switch snap.Phase {
	case interfaces.PhaseIdle:
		assert.Empty(t, snap.Requester, "idle session must have no requester")
		assert.Empty(t, snap.Grantors, "idle session must have no grantors")
	case interfaces.PhaseRequested, interfaces.PhaseThresholdMet, interfaces.PhaseOpened:
		require.NotEmpty(t, snap.Requester, "active session must have a requester")
		assert.Contains(t, snap.Grantors, snap.Requester, "requester must be in the grantor set")
	}

	if snap.Phase == interfaces.PhaseThresholdMet || snap.Phase == interfaces.PhaseOpened {
		assert.GreaterOrEqual(t, len(snap.Grantors), snap.Threshold, "threshold phases require enough grantors")
	}
}

func TestLifecycleScenario(t *testing.T) {
	// threshold=2, n=3: request(1), grant(2), open(1), open(3) fails.
	c := newTestCoordinator(t, 2, 3)

	ev, err := c.RequestAccess("user-1")
	require.NoError(t, err, "request from idle should succeed")
	assert.Equal(t, interfaces.KindRequested, ev.Kind)
	assert.Equal(t, interfaces.ParticipantID("user-1"), ev.Epoch.Opener)

	snap := c.Snapshot()
	assert.Equal(t, interfaces.PhaseRequested, snap.Phase)
	assert.Equal(t, []interfaces.ParticipantID{"user-1"}, snap.Grantors, "requester implicitly grants to themselves")
	checkInvariants(t, snap)

	events, err := c.GrantAccess("user-2")
	require.NoError(t, err, "grant during requested phase should succeed")
	require.Len(t, events, 2, "grant meeting the threshold should also emit threshold_met")
	assert.Equal(t, interfaces.KindGranted, events[0].Kind)
	assert.Equal(t, interfaces.KindThresholdMet, events[1].Kind)

	snap = c.Snapshot()
	assert.Equal(t, interfaces.PhaseThresholdMet, snap.Phase)
	assert.Equal(t, []interfaces.ParticipantID{"user-1", "user-2"}, snap.Grantors)
	checkInvariants(t, snap)

	ev, err = c.OpenDocument("user-1")
	require.NoError(t, err, "requester should open once threshold is met")
	assert.Equal(t, interfaces.KindOpened, ev.Kind)
	assert.Equal(t, interfaces.PhaseOpened, c.Snapshot().Phase)
	checkInvariants(t, c.Snapshot())

	before := c.Snapshot()
	ev, err = c.OpenDocument("user-3")
	assert.ErrorIs(t, err, interfaces.ErrNotAuthorized, "non-requester must not open the document")
	assert.Equal(t, interfaces.KindUnauthorized, ev.Kind, "violation must produce a broadcastable security event")
	assert.Equal(t, interfaces.ParticipantID("user-3"), ev.UserID)
	assert.Equal(t, before, c.Snapshot(), "failed open must not mutate state")
}

func TestGrantWithoutRequest(t *testing.T) {
	c := newTestCoordinator(t, 2, 3)

	before := c.Snapshot()
	_, err := c.GrantAccess("user-2")
	assert.ErrorIs(t, err, interfaces.ErrNoActiveRequest, "grant while idle must be rejected")
	assert.Equal(t, before, c.Snapshot(), "rejected grant must not mutate state")
}

func TestRequestWhileActive(t *testing.T) {
	c := newTestCoordinator(t, 2, 3)

	_, err := c.RequestAccess("user-1")
	require.NoError(t, err)

	before := c.Snapshot()
	_, err = c.RequestAccess("user-2")
	assert.ErrorIs(t, err, interfaces.ErrAlreadyRequested, "second request during an active lifecycle must be rejected")
	assert.Equal(t, before, c.Snapshot())
}

func TestDuplicateGrant(t *testing.T) {
	c := newTestCoordinator(t, 3, 4)

	_, err := c.RequestAccess("user-1")
	require.NoError(t, err)
	_, err = c.GrantAccess("user-2")
	require.NoError(t, err)

	before := c.Snapshot()
	_, err = c.GrantAccess("user-2")
	assert.ErrorIs(t, err, interfaces.ErrDuplicateGrant, "granting twice must report the duplicate")
	assert.Equal(t, before, c.Snapshot(), "duplicate grant is a no-op")

	// Requester granting again is the same duplicate condition.
	_, err = c.GrantAccess("user-1")
	assert.ErrorIs(t, err, interfaces.ErrDuplicateGrant)
}

func TestShareUnavailable(t *testing.T) {
	resolver := staticResolver{"user-1": "token-1"}
	c, err := New(Config{Threshold: 2, TotalParticipants: 3}, resolver, slog.Default())
	require.NoError(t, err)

	_, err = c.RequestAccess("user-9")
	assert.ErrorIs(t, err, interfaces.ErrShareUnavailable, "request without a resolved share must be rejected")

	_, err = c.RequestAccess("user-1")
	require.NoError(t, err)

	_, err = c.GrantAccess("user-9")
	assert.ErrorIs(t, err, interfaces.ErrShareUnavailable, "grant without a resolved share must be rejected")
}

func TestOpenBeforeThreshold(t *testing.T) {
	c := newTestCoordinator(t, 2, 3)

	_, err := c.RequestAccess("user-1")
	require.NoError(t, err)

	before := c.Snapshot()
	_, err = c.OpenDocument("user-1")
	assert.ErrorIs(t, err, interfaces.ErrThresholdNotMet, "requester opening early must be told grants are pending")
	assert.Equal(t, before, c.Snapshot())
}

func TestOpenWhileIdleIsUnauthorized(t *testing.T) {
	c := newTestCoordinator(t, 2, 3)

	ev, err := c.OpenDocument("user-2")
	assert.ErrorIs(t, err, interfaces.ErrNotAuthorized, "open without any request is a security violation")
	assert.Equal(t, interfaces.KindUnauthorized, ev.Kind)
	assert.NotEmpty(t, ev.Message)
	assert.Equal(t, interfaces.PhaseIdle, c.Snapshot().Phase)
}

func TestOpenTwice(t *testing.T) {
	c := newTestCoordinator(t, 2, 2)

	_, err := c.RequestAccess("user-1")
	require.NoError(t, err)
	_, err = c.GrantAccess("user-2")
	require.NoError(t, err)
	_, err = c.OpenDocument("user-1")
	require.NoError(t, err)

	_, err = c.OpenDocument("user-1")
	assert.ErrorIs(t, err, interfaces.ErrNoActiveRequest, "the lifecycle is terminal once opened")
}

func TestResetRestartsLifecycle(t *testing.T) {
	c := newTestCoordinator(t, 2, 3)

	_, err := c.RequestAccess("user-1")
	require.NoError(t, err)
	_, err = c.GrantAccess("user-2")
	require.NoError(t, err)
	_, err = c.OpenDocument("user-1")
	require.NoError(t, err)

	opened := c.Snapshot().Epoch

	ev := c.Reset()
	assert.Equal(t, interfaces.KindReset, ev.Kind)
	assert.Equal(t, opened, ev.Epoch, "reset names the epoch it closes")

	snap := c.Snapshot()
	assert.Equal(t, interfaces.PhaseIdle, snap.Phase)
	assert.Empty(t, snap.Requester)
	assert.Empty(t, snap.Grantors)
	assert.Greater(t, snap.Epoch.Counter, opened.Counter, "reset must advance the epoch counter")
	checkInvariants(t, snap)

	// A fresh request is accepted after the reset.
	_, err = c.RequestAccess("user-3")
	require.NoError(t, err, "fresh request after reset should succeed")
	assert.Equal(t, interfaces.PhaseRequested, c.Snapshot().Phase)
}

func TestPhaseMonotonicWithinEpoch(t *testing.T) {
	c := newTestCoordinator(t, 2, 4)

	phases := []interfaces.Phase{c.Snapshot().Phase}
	record := func() {
		phases = append(phases, c.Snapshot().Phase)
		checkInvariants(t, c.Snapshot())
	}

	_, err := c.RequestAccess("user-1")
	require.NoError(t, err)
	record()
	_, err = c.GrantAccess("user-2")
	require.NoError(t, err)
	record()
	_, err = c.GrantAccess("user-3")
	require.NoError(t, err)
	record()
	_, err = c.OpenDocument("user-1")
	require.NoError(t, err)
	record()

	for i := 1; i < len(phases); i++ {
		assert.False(t, phases[i].Before(phases[i-1]), "phase must be non-decreasing within an epoch")
	}
}
