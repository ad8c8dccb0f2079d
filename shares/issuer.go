package shares

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/interfaces"
	"github.com/hashicorp/vault/shamir"
)

// Bundle is one session's issued share tokens, stored as a unit in a
// storage backend. Tokens are opaque to the protocol; only the issuer can
// recombine them into the sealed document key.
type Bundle struct {
	Threshold int                                           `json:"threshold"`
	Total     int                                           `json:"total"`
	Shares    map[interfaces.ParticipantID]interfaces.Share `json:"shares"`
}

// Marshal encodes the bundle for storage.
func (b Bundle) Marshal() ([]byte, error) {
	return json.Marshal(b)
}

// UnmarshalBundle decodes a stored bundle.
func UnmarshalBundle(data []byte) (Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return Bundle{}, fmt.Errorf("malformed share bundle: %w", err)
	}
	if b.Threshold < 1 || b.Total < b.Threshold {
		return Bundle{}, fmt.Errorf("share bundle has invalid t=%d n=%d", b.Threshold, b.Total)
	}
	return b, nil
}

// Issue splits the sealed document key into one opaque token per
// participant using Shamir's scheme. Any threshold-sized subset of the
// returned tokens recombines into the key; fewer reveal nothing.
func Issue(key []byte, participants []interfaces.ParticipantID, threshold int) (Bundle, error) {
	if len(key) == 0 {
		return Bundle{}, errors.New("cannot issue shares for an empty key")
	}
	if threshold < 2 {
		return Bundle{}, errors.New("shamir split requires threshold of at least 2")
	}
	if len(participants) < threshold {
		return Bundle{}, fmt.Errorf("threshold %d exceeds participant count %d", threshold, len(participants))
	}

	ordered := make([]interfaces.ParticipantID, len(participants))
	copy(ordered, participants)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Less(ordered[j]) })

	parts, err := shamir.Split(key, len(ordered), threshold)
	if err != nil {
		return Bundle{}, fmt.Errorf("failed to split key: %w", err)
	}

	bundle := Bundle{
		Threshold: threshold,
		Total:     len(ordered),
		Shares:    make(map[interfaces.ParticipantID]interfaces.Share, len(ordered)),
	}
	for i, id := range ordered {
		bundle.Shares[id] = interfaces.Share(hex.EncodeToString(parts[i]))
	}
	return bundle, nil
}

// Recombine reconstructs the sealed document key from threshold-many
// tokens. Tokens that did not come out of Issue fail hex decoding or the
// Shamir combine.
func Recombine(tokens []interfaces.Share) ([]byte, error) {
	if len(tokens) == 0 {
		return nil, errors.New("no shares provided")
	}

	parts := make([][]byte, 0, len(tokens))
	for _, token := range tokens {
		raw, err := hex.DecodeString(string(token))
		if err != nil {
			return nil, fmt.Errorf("share token is not hex encoded: %w", err)
		}
		parts = append(parts, raw)
	}

	key, err := shamir.Combine(parts)
	if err != nil {
		return nil, fmt.Errorf("failed to recombine shares: %w", err)
	}
	return key, nil
}

// StorageSource serves a bundle out of a content-addressed storage backend.
// The bundle's content ID is set after sealing and may be swapped when a new
// document is sealed for the session.
type StorageSource struct {
	mu      sync.RWMutex
	backend interfaces.StorageBackend
	id      interfaces.ContentID
	set     bool
}

// NewStorageSource creates a source over the backend with no bundle yet.
func NewStorageSource(backend interfaces.StorageBackend) *StorageSource {
	return &StorageSource{backend: backend}
}

// SetBundleID points the source at a stored bundle.
func (s *StorageSource) SetBundleID(id interfaces.ContentID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	s.set = true
}

// Shares fetches the current bundle and returns its token mapping. Before a
// bundle is issued the mapping is empty, which resolvers treat as "derive a
// fallback".
func (s *StorageSource) Shares(ctx context.Context) (map[interfaces.ParticipantID]interfaces.Share, error) {
	s.mu.RLock()
	backend, id, set := s.backend, s.id, s.set
	s.mu.RUnlock()

	if !set {
		return map[interfaces.ParticipantID]interfaces.Share{}, nil
	}

	data, err := backend.Fetch(ctx, id, interfaces.ShareBundleType)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch share bundle: %w", err)
	}
	bundle, err := UnmarshalBundle(data)
	if err != nil {
		return nil, err
	}
	return bundle.Shares, nil
}
