package agent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/broadcast"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/coordinator"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/interfaces"
)

type staticResolver struct {
	shares map[interfaces.ParticipantID]interfaces.Share
}

func (r *staticResolver) Resolve(_ context.Context, p interfaces.ParticipantID) (interfaces.Share, error) {
	share, ok := r.shares[p]
	if !ok {
		return "", interfaces.ErrShareUnavailable
	}
	return share, nil
}

func (r *staticResolver) Resolved(p interfaces.ParticipantID) bool {
	_, ok := r.shares[p]
	return ok
}

func testResolver(n int) *staticResolver {
	shares := make(map[interfaces.ParticipantID]interfaces.Share, n)
	for i := 1; i <= n; i++ {
		id := interfaces.ParticipantID(fmt.Sprintf("user-%d", i))
		shares[id] = interfaces.Share(fmt.Sprintf("token-%d", i))
	}
	return &staticResolver{shares: shares}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startAgents spins up count replicas joined by the bus and returns them.
func startAgents(t *testing.T, bus *broadcast.LocalBus, count int, cfg Config) []*Agent {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	t.Cleanup(bus.Close)

	resolver := testResolver(cfg.Session.TotalParticipants)
	agents := make([]*Agent, count)
	for i := range agents {
		a, err := New(cfg, resolver, bus.Endpoint(), testLogger())
		require.NoError(t, err)
		agents[i] = a
		go a.Run(ctx) //nolint:errcheck // loop exits on test cleanup
	}
	return agents
}

func converged(agents []*Agent, phase interfaces.Phase) func() bool {
	return func() bool {
		want := agents[0].Status()
		if want.Phase != phase {
			return false
		}
		for _, a := range agents[1:] {
			got := a.Status()
			if !got.Epoch.Equal(want.Epoch) || got.Phase != want.Phase ||
				got.Requester != want.Requester || len(got.Grantors) != len(want.Grantors) {
				return false
			}
		}
		return true
	}
}

func TestAgentsConvergeThroughLifecycle(t *testing.T) {
	cfg := Config{Session: coordinator.Config{Threshold: 2, TotalParticipants: 3}}
	agents := startAgents(t, broadcast.NewLocalBus(), 3, cfg)
	ctx := context.Background()

	snap, err := agents[0].RequestAccess(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, interfaces.PhaseRequested, snap.Phase)
	require.Eventually(t, converged(agents, interfaces.PhaseRequested), 2*time.Second, 10*time.Millisecond)

	snap, err = agents[1].GrantAccess(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, interfaces.PhaseThresholdMet, snap.Phase)
	require.Eventually(t, converged(agents, interfaces.PhaseThresholdMet), 2*time.Second, 10*time.Millisecond)

	snap, err = agents[0].OpenDocument(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, interfaces.PhaseOpened, snap.Phase)
	require.Eventually(t, converged(agents, interfaces.PhaseOpened), 2*time.Second, 10*time.Millisecond)
}

func TestAgentsConvergeUnderDuplicateDelivery(t *testing.T) {
	cfg := Config{Session: coordinator.Config{Threshold: 2, TotalParticipants: 3}}
	agents := startAgents(t, broadcast.NewDuplicatingLocalBus(2), 3, cfg)
	ctx := context.Background()

	_, err := agents[0].RequestAccess(ctx, "user-1")
	require.NoError(t, err)
	_, err = agents[1].GrantAccess(ctx, "user-2")
	require.NoError(t, err)
	_, err = agents[0].OpenDocument(ctx, "user-1")
	require.NoError(t, err)

	require.Eventually(t, converged(agents, interfaces.PhaseOpened), 2*time.Second, 10*time.Millisecond)
}

func TestAgentUnauthorizedAttemptObservedEverywhere(t *testing.T) {
	cfg := Config{Session: coordinator.Config{Threshold: 2, TotalParticipants: 3}}
	agents := startAgents(t, broadcast.NewLocalBus(), 3, cfg)
	ctx := context.Background()

	_, err := agents[0].RequestAccess(ctx, "user-1")
	require.NoError(t, err)
	_, err = agents[1].GrantAccess(ctx, "user-2")
	require.NoError(t, err)
	require.Eventually(t, converged(agents, interfaces.PhaseThresholdMet), 2*time.Second, 10*time.Millisecond)

	// user-3 never requested; the open attempt is a violation
	_, err = agents[2].OpenDocument(ctx, "user-3")
	assert.ErrorIs(t, err, interfaces.ErrNotAuthorized)

	require.Eventually(t, func() bool {
		for _, a := range agents {
			if a.UnauthorizedCount() != 1 {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	// The violation does not disturb the session
	assert.True(t, converged(agents, interfaces.PhaseThresholdMet)())
}

func TestAgentOpenWindowAutoReset(t *testing.T) {
	cfg := Config{
		Session:    coordinator.Config{Threshold: 2, TotalParticipants: 3},
		OpenWindow: 100 * time.Millisecond,
	}
	agents := startAgents(t, broadcast.NewLocalBus(), 3, cfg)
	ctx := context.Background()

	_, err := agents[0].RequestAccess(ctx, "user-1")
	require.NoError(t, err)
	_, err = agents[1].GrantAccess(ctx, "user-2")
	require.NoError(t, err)
	_, err = agents[0].OpenDocument(ctx, "user-1")
	require.NoError(t, err)

	require.Eventually(t, converged(agents, interfaces.PhaseIdle), 3*time.Second, 10*time.Millisecond)

	// A fresh request succeeds after the auto-reset
	snap, err := agents[1].RequestAccess(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, interfaces.PhaseRequested, snap.Phase)
}

func TestAgentRequestTimeoutAutoReset(t *testing.T) {
	cfg := Config{
		Session:    coordinator.Config{Threshold: 2, TotalParticipants: 3},
		RequestTTL: 100 * time.Millisecond,
	}
	agents := startAgents(t, broadcast.NewLocalBus(), 2, cfg)
	ctx := context.Background()

	_, err := agents[0].RequestAccess(ctx, "user-1")
	require.NoError(t, err)

	require.Eventually(t, converged(agents, interfaces.PhaseIdle), 3*time.Second, 10*time.Millisecond)
}

func TestAgentManualReset(t *testing.T) {
	cfg := Config{Session: coordinator.Config{Threshold: 2, TotalParticipants: 3}}
	agents := startAgents(t, broadcast.NewLocalBus(), 2, cfg)
	ctx := context.Background()

	_, err := agents[0].RequestAccess(ctx, "user-1")
	require.NoError(t, err)
	require.Eventually(t, converged(agents, interfaces.PhaseRequested), 2*time.Second, 10*time.Millisecond)

	snap, err := agents[1].Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, interfaces.PhaseIdle, snap.Phase)
	require.Eventually(t, converged(agents, interfaces.PhaseIdle), 2*time.Second, 10*time.Millisecond)
}
