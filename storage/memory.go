package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/interfaces"
)

// MemoryBackend implements a storage backend in process memory. It backs
// tests and single-process demo sessions where persistence beyond the
// process lifetime is explicitly not wanted.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[interfaces.ContentType]map[interfaces.ContentID][]byte
	log  *slog.Logger
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend(log *slog.Logger) *MemoryBackend {
	return &MemoryBackend{
		data: map[interfaces.ContentType]map[interfaces.ContentID][]byte{
			interfaces.ShareBundleType: {},
			interfaces.DocumentType:    {},
		},
		log: log,
	}
}

// Fetch retrieves data by its content identifier and type.
// Returns ErrContentNotFound if nothing was stored under the identifier.
func (b *MemoryBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	byType, ok := b.data[contentType]
	if !ok {
		return nil, fmt.Errorf("unsupported content type: %v", contentType)
	}
	stored, ok := byType[id]
	if !ok {
		return nil, interfaces.ErrContentNotFound
	}

	data := make([]byte, len(stored))
	copy(data, stored)
	return data, nil
}

// Store saves data and returns its content identifier.
func (b *MemoryBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)

	b.mu.Lock()
	defer b.mu.Unlock()

	byType, ok := b.data[contentType]
	if !ok {
		return id, fmt.Errorf("unsupported content type: %v", contentType)
	}

	stored := make([]byte, len(data))
	copy(stored, data)
	byType[id] = stored

	b.log.Debug("Stored content in memory",
		slog.String("contentID", id.String()),
		slog.String("contentType", contentType.String()),
		slog.Int("size", len(data)))

	return id, nil
}

// Available always reports true; process memory cannot be down.
func (b *MemoryBackend) Available(ctx context.Context) bool {
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *MemoryBackend) Name() string {
	return "memory"
}

// LocationURI returns the URI that identifies this storage backend.
func (b *MemoryBackend) LocationURI() string {
	return "mem://"
}
