package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/interfaces"
)

// MultiBackend replicates content across several storage backends. Reads are
// served by the first available backend that has the content, writes go to
// every backend.
type MultiBackend struct {
	backends []interfaces.StorageBackend
	log      *slog.Logger
}

// NewMultiBackend creates a replicating backend over the given backends.
// At least one backend is required.
func NewMultiBackend(log *slog.Logger, backends ...interfaces.StorageBackend) (*MultiBackend, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("at least one storage backend is required")
	}
	return &MultiBackend{backends: backends, log: log}, nil
}

// Fetch retrieves data from the first backend that has it. Backends that are
// unavailable or miss the content are skipped.
func (m *MultiBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			continue
		}
		data, err := backend.Fetch(ctx, id, contentType)
		if err == nil {
			return data, nil
		}
		m.log.Debug("Backend could not serve content",
			slog.String("backend", backend.Name()),
			slog.String("contentID", id.String()),
			"err", err)
	}
	return nil, interfaces.ErrContentNotFound
}

// Store saves data to all backends. It succeeds if at least one backend
// accepted the write; failures on the rest are logged.
func (m *MultiBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)

	stored := 0
	for _, backend := range m.backends {
		if _, err := backend.Store(ctx, data, contentType); err != nil {
			m.log.Warn("Failed to store content on backend",
				slog.String("backend", backend.Name()),
				slog.String("contentID", id.String()),
				"err", err)
			continue
		}
		stored++
	}
	if stored == 0 {
		return interfaces.ContentID{}, fmt.Errorf("no backend accepted the content")
	}
	return id, nil
}

// Available reports whether at least one backend is reachable.
func (m *MultiBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns a unique identifier for this storage backend.
func (m *MultiBackend) Name() string {
	names := make([]string, len(m.backends))
	for i, backend := range m.backends {
		names[i] = backend.Name()
	}
	return fmt.Sprintf("multi[%s]", strings.Join(names, ","))
}

// LocationURI returns the URI that identifies this storage backend.
func (m *MultiBackend) LocationURI() string {
	uris := make([]string, len(m.backends))
	for i, backend := range m.backends {
		uris[i] = backend.LocationURI()
	}
	return fmt.Sprintf("multi:[%s]", strings.Join(uris, ","))
}
