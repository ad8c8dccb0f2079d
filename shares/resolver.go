// Package shares supplies participants with their opaque share tokens: a
// Shamir-split issuer for sessions with a sealed document, a storage-backed
// source for previously issued bundles, and a resolver with a deterministic
// local fallback so the protocol can run even when no store is reachable.
package shares

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/interfaces"
	"github.com/google/uuid"
)

// Resolver obtains per-participant share tokens. It consults the external
// source once per participant and caches the result; when the source is
// absent, fails, or has nothing for the participant, it derives a fallback
// token locally. Fallback tokens are reproducible within one process
// lifetime and cannot collide between participants.
type Resolver struct {
	mu     sync.RWMutex
	source interfaces.ShareSource
	cache  map[interfaces.ParticipantID]interfaces.Share

	// freshness salts fallback derivation so tokens from a previous
	// process lifetime are never accidentally honored.
	freshness string

	log *slog.Logger
}

// NewResolver creates a resolver over the given source. A nil source means
// every resolution uses local fallback derivation.
func NewResolver(source interfaces.ShareSource, log *slog.Logger) *Resolver {
	return &Resolver{
		source:    source,
		cache:     make(map[interfaces.ParticipantID]interfaces.Share),
		freshness: uuid.NewString(),
		log:       log,
	}
}

// Resolve returns the participant's share token, fetching from the external
// source on first use and falling back to local derivation when the source
// has nothing. The result is cached; shares are immutable once issued.
func (r *Resolver) Resolve(ctx context.Context, participant interfaces.ParticipantID) (interfaces.Share, error) {
	if participant == "" {
		return "", fmt.Errorf("%w: empty participant id", interfaces.ErrShareUnavailable)
	}

	r.mu.RLock()
	share, ok := r.cache[participant]
	r.mu.RUnlock()
	if ok {
		return share, nil
	}

	share = r.fetchOrDerive(ctx, participant)

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.cache[participant]; ok {
		// Another caller resolved concurrently; first issuance wins.
		return cached, nil
	}
	r.cache[participant] = share
	return share, nil
}

// Resolved reports whether the participant already holds a share, without
// triggering a source fetch or fallback derivation.
func (r *Resolver) Resolved(participant interfaces.ParticipantID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.cache[participant]
	return ok
}

// Invalidate drops all cached shares, forcing re-resolution. Used when a
// new bundle is issued for the session.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[interfaces.ParticipantID]interfaces.Share)
}

func (r *Resolver) fetchOrDerive(ctx context.Context, participant interfaces.ParticipantID) interfaces.Share {
	if r.source != nil {
		shares, err := r.source.Shares(ctx)
		if err != nil {
			r.log.Warn("share source unavailable, deriving fallback share",
				slog.String("participant", participant.String()),
				"err", err)
		} else if share, ok := shares[participant]; ok {
			r.log.Debug("share resolved from source",
				slog.String("participant", participant.String()),
				slog.String("share", share.Redacted()))
			return share
		} else {
			r.log.Debug("share source has no entry for participant, deriving fallback",
				slog.String("participant", participant.String()))
		}
	}
	return r.deriveFallback(participant)
}

// deriveFallback produces the local stand-in token: a function of the
// participant identity and the process freshness token, so it is stable for
// the participant within this process but distinct across participants.
func (r *Resolver) deriveFallback(participant interfaces.ParticipantID) interfaces.Share {
	sum := sha256.Sum256([]byte(fmt.Sprintf("fallback-share:%s:%s", participant, r.freshness)))
	return interfaces.Share(fmt.Sprintf("%s-%s", participant, hex.EncodeToString(sum[:16])))
}
