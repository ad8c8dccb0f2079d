package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/atomic"

	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/coordinator"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/interfaces"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/metrics"
)

const (
	// DefaultOpenWindow is how long an opened document stays open before
	// the agent resets the session.
	DefaultOpenWindow = 10 * time.Second

	// DefaultRequestTTL is how long a request may sit unopened before the
	// agent resets the session.
	DefaultRequestTTL = 15 * time.Second

	actionBuffer = 16
)

// Config configures an Agent.
type Config struct {
	Session coordinator.Config

	// OpenWindow and RequestTTL override the session timers when positive.
	OpenWindow time.Duration
	RequestTTL time.Duration

	// Metrics is optional; when nil no counters are recorded.
	Metrics *metrics.MetricsServer
}

// Agent is one replica of the access session.
type Agent struct {
	coord    *coordinator.PermissionCoordinator
	resolver interfaces.ShareResolver
	channel  interfaces.SyncChannel
	log      *slog.Logger

	openWindow time.Duration
	requestTTL time.Duration
	metrics    *metrics.MetricsServer

	actions      chan action
	unauthorized atomic.Uint64

	// timer state, owned by the run loop
	timer      *time.Timer
	timerC     <-chan time.Time
	armedEpoch interfaces.Epoch
	armedPhase interfaces.Phase
}

type action struct {
	kind        actionKind
	participant interfaces.ParticipantID
	reply       chan actionResult
}

type actionKind int

const (
	actRequest actionKind = iota
	actGrant
	actOpen
	actReset
)

type actionResult struct {
	snapshot coordinator.Snapshot
	err      error
}

// New creates an agent over the given coordinator and sync channel.
func New(cfg Config, resolver interfaces.ShareResolver, channel interfaces.SyncChannel, log *slog.Logger) (*Agent, error) {
	coord, err := coordinator.New(cfg.Session, resolver, log)
	if err != nil {
		return nil, err
	}

	openWindow := cfg.OpenWindow
	if openWindow <= 0 {
		openWindow = DefaultOpenWindow
	}
	requestTTL := cfg.RequestTTL
	if requestTTL <= 0 {
		requestTTL = DefaultRequestTTL
	}

	return &Agent{
		coord:      coord,
		resolver:   resolver,
		channel:    channel,
		log:        log,
		openWindow: openWindow,
		requestTTL: requestTTL,
		metrics:    cfg.Metrics,
		actions:    make(chan action, actionBuffer),
	}, nil
}

// Run processes actions, remote events and timers until ctx is cancelled or
// the sync channel closes.
func (a *Agent) Run(ctx context.Context) error {
	a.timer = time.NewTimer(time.Hour)
	if !a.timer.Stop() {
		<-a.timer.C
	}
	defer a.timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-a.channel.Events():
			if !ok {
				return interfaces.ErrChannelClosed
			}
			a.handleRemote(ev)

		case act := <-a.actions:
			act.reply <- a.handleAction(ctx, act)

		case <-a.timerC:
			a.timerC = nil
			a.handleTimer(ctx)
		}
	}
}

// RequestAccess opens a new access request for the participant and
// broadcasts it.
func (a *Agent) RequestAccess(ctx context.Context, participant interfaces.ParticipantID) (coordinator.Snapshot, error) {
	return a.submit(ctx, action{kind: actRequest, participant: participant})
}

// GrantAccess records the participant's grant for the active request and
// broadcasts it, along with a threshold_met event if the grant completed the
// threshold.
func (a *Agent) GrantAccess(ctx context.Context, participant interfaces.ParticipantID) (coordinator.Snapshot, error) {
	return a.submit(ctx, action{kind: actGrant, participant: participant})
}

// OpenDocument attempts to open the document as the participant. An attempt
// by anyone but the requester of a threshold-met session fails with
// ErrNotAuthorized and broadcasts an unauthorized_attempt event.
func (a *Agent) OpenDocument(ctx context.Context, participant interfaces.ParticipantID) (coordinator.Snapshot, error) {
	return a.submit(ctx, action{kind: actOpen, participant: participant})
}

// Reset forces the session back to idle and broadcasts the reset.
func (a *Agent) Reset(ctx context.Context) (coordinator.Snapshot, error) {
	return a.submit(ctx, action{kind: actReset})
}

// Status returns the current session state. Safe from any goroutine.
func (a *Agent) Status() coordinator.Snapshot {
	return a.coord.Snapshot()
}

// UnauthorizedCount returns how many unauthorized open attempts this replica
// has observed, local and remote combined.
func (a *Agent) UnauthorizedCount() uint64 {
	return a.unauthorized.Load()
}

func (a *Agent) submit(ctx context.Context, act action) (coordinator.Snapshot, error) {
	act.reply = make(chan actionResult, 1)
	select {
	case a.actions <- act:
	case <-ctx.Done():
		return coordinator.Snapshot{}, ctx.Err()
	}
	select {
	case res := <-act.reply:
		return res.snapshot, res.err
	case <-ctx.Done():
		return coordinator.Snapshot{}, ctx.Err()
	}
}

func (a *Agent) handleAction(ctx context.Context, act action) actionResult {
	var (
		events []interfaces.Event
		err    error
	)

	switch act.kind {
	case actRequest:
		a.resolveShare(ctx, act.participant)
		var ev interfaces.Event
		ev, err = a.coord.RequestAccess(act.participant)
		if err == nil {
			events = append(events, ev)
		}

	case actGrant:
		a.resolveShare(ctx, act.participant)
		events, err = a.coord.GrantAccess(act.participant)

	case actOpen:
		var ev interfaces.Event
		ev, err = a.coord.OpenDocument(act.participant)
		if err == nil {
			events = append(events, ev)
			a.countOpened()
		} else if errors.Is(err, interfaces.ErrNotAuthorized) {
			// The violation itself is broadcast so every replica
			// observes it.
			events = append(events, ev)
			a.countUnauthorized()
		}

	case actReset:
		events = append(events, a.coord.Reset())
		a.countReset("manual")

	default:
		err = fmt.Errorf("unknown action kind %d", act.kind)
	}

	a.broadcast(ctx, events)
	a.rearmTimer()
	return actionResult{snapshot: a.coord.Snapshot(), err: err}
}

func (a *Agent) handleRemote(ev interfaces.Event) {
	before := a.coord.Snapshot()
	outcome := a.coord.Merge(ev)
	after := a.coord.Snapshot()

	if a.metrics != nil {
		a.metrics.EventsMerged.WithLabelValues(outcome.String()).Inc()
	}
	if outcome != coordinator.OutcomeApplied {
		return
	}

	if ev.Kind == interfaces.KindUnauthorized {
		a.countUnauthorized()
	}
	if after.Phase == interfaces.PhaseOpened && before.Phase != interfaces.PhaseOpened {
		a.countOpened()
	}
	if ev.Kind == interfaces.KindGranted && a.metrics != nil {
		a.metrics.GrantsReceived.Inc()
	}

	a.rearmTimer()
}

// handleTimer fires the auto-reset when the armed epoch is still live.
func (a *Agent) handleTimer(ctx context.Context) {
	snap := a.coord.Snapshot()
	if !snap.Epoch.Equal(a.armedEpoch) || snap.Phase == interfaces.PhaseIdle {
		a.rearmTimer()
		return
	}

	trigger := "request_timeout"
	if snap.Phase == interfaces.PhaseOpened {
		trigger = "open_window"
	}
	a.log.Info("session timer expired, resetting",
		slog.String("trigger", trigger),
		slog.String("epoch", snap.Epoch.String()),
		slog.String("phase", snap.Phase.String()))

	ev := a.coord.Reset()
	a.countReset(trigger)
	a.broadcast(ctx, []interfaces.Event{ev})
	a.rearmTimer()
}

// rearmTimer keeps one timer armed for the current epoch and phase. Requested
// and ThresholdMet share the request deadline; Opened gets the display
// window; Idle needs no timer.
func (a *Agent) rearmTimer() {
	snap := a.coord.Snapshot()
	if snap.Epoch.Equal(a.armedEpoch) && snap.Phase == a.armedPhase {
		return
	}
	a.armedEpoch = snap.Epoch
	a.armedPhase = snap.Phase

	if a.timerC != nil {
		if !a.timer.Stop() {
			<-a.timer.C
		}
		a.timerC = nil
	}

	switch snap.Phase {
	case interfaces.PhaseRequested, interfaces.PhaseThresholdMet:
		a.timer.Reset(a.requestTTL)
		a.timerC = a.timer.C
	case interfaces.PhaseOpened:
		a.timer.Reset(a.openWindow)
		a.timerC = a.timer.C
	}
}

func (a *Agent) broadcast(ctx context.Context, events []interfaces.Event) {
	for _, ev := range events {
		if err := a.channel.Broadcast(ctx, ev); err != nil {
			a.log.Error("failed to broadcast event",
				slog.String("kind", string(ev.Kind)), "err", err)
			continue
		}
		if a.metrics != nil {
			a.metrics.EventsBroadcast.WithLabelValues(string(ev.Kind)).Inc()
		}
	}
}

// resolveShare warms the resolver cache so the coordinator's share check
// sees the participant's token. Failures are left for the coordinator to
// report as ErrShareUnavailable.
func (a *Agent) resolveShare(ctx context.Context, participant interfaces.ParticipantID) {
	if _, err := a.resolver.Resolve(ctx, participant); err != nil {
		a.log.Warn("share resolution failed",
			slog.String("participant", participant.String()), "err", err)
	}
}

func (a *Agent) countUnauthorized() {
	a.unauthorized.Inc()
	if a.metrics != nil {
		a.metrics.UnauthorizedAttempts.Inc()
	}
}

func (a *Agent) countOpened() {
	if a.metrics != nil {
		a.metrics.SessionsOpened.Inc()
	}
}

func (a *Agent) countReset(trigger string) {
	if a.metrics != nil {
		a.metrics.SessionResets.WithLabelValues(trigger).Inc()
	}
}
