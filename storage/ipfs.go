package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/interfaces"
	shell "github.com/ipfs/go-ipfs-api"
)

// IPFSBackend stores content on an IPFS node. IPFS addresses content by its
// own hash, so the backend keeps a mapping from our sha256 content IDs to
// the CIDs the node returns.
type IPFSBackend struct {
	shell   *shell.Shell
	nodeURL string
	cids    map[interfaces.ContentType]map[interfaces.ContentID]string
	log     *slog.Logger
}

// NewIPFSBackend creates an IPFS storage backend talking to the node's HTTP
// API at nodeURL (for example "localhost:5001").
func NewIPFSBackend(nodeURL string, log *slog.Logger) *IPFSBackend {
	return &IPFSBackend{
		shell:   shell.NewShell(nodeURL),
		nodeURL: nodeURL,
		cids: map[interfaces.ContentType]map[interfaces.ContentID]string{
			interfaces.ShareBundleType: {},
			interfaces.DocumentType:    {},
		},
		log: log,
	}
}

// Fetch retrieves data by its content identifier and type.
// Returns ErrContentNotFound if no CID is known for the identifier.
func (b *IPFSBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	byType, ok := b.cids[contentType]
	if !ok {
		return nil, fmt.Errorf("unsupported content type: %v", contentType)
	}
	cid, ok := byType[id]
	if !ok {
		return nil, interfaces.ErrContentNotFound
	}

	reader, err := b.shell.Cat("/ipfs/" + cid)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s from IPFS: %w", cid, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read IPFS content %s: %w", cid, err)
	}
	return data, nil
}

// Store saves data and returns its content identifier.
func (b *IPFSBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)

	byType, ok := b.cids[contentType]
	if !ok {
		return id, fmt.Errorf("unsupported content type: %v", contentType)
	}

	cid, err := b.shell.Add(bytes.NewReader(data))
	if err != nil {
		return interfaces.ContentID{}, fmt.Errorf("failed to add content to IPFS: %w", err)
	}
	byType[id] = cid

	b.log.Debug("Stored content on IPFS",
		slog.String("contentID", id.String()),
		slog.String("contentType", contentType.String()),
		slog.String("cid", cid))

	return id, nil
}

// Available checks whether the IPFS node is up.
func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

// Name returns a unique identifier for this storage backend.
func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s", b.nodeURL)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *IPFSBackend) LocationURI() string {
	return fmt.Sprintf("ipfs://%s", b.nodeURL)
}
