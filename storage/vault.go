package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/interfaces"
	vaultapi "github.com/hashicorp/vault/api"
)

// VaultBackend stores content in a HashiCorp Vault KV v2 secrets engine,
// authenticated with a client token.
type VaultBackend struct {
	client    *vaultapi.Client
	address   string
	mountPath string
	dataPath  string
	log       *slog.Logger
}

// NewVaultBackend creates a Vault storage backend. mountPath is the KV v2
// mount (for example "secret") and dataPath the directory under it where
// content lives.
func NewVaultBackend(address, token, mountPath, dataPath string, log *slog.Logger) (*VaultBackend, error) {
	cfg := vaultapi.DefaultConfig()
	cfg.Address = address

	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(token)

	return &VaultBackend{
		client:    client,
		address:   address,
		mountPath: mountPath,
		dataPath:  dataPath,
		log:       log,
	}, nil
}

func (b *VaultBackend) secretPath(id interfaces.ContentID, contentType interfaces.ContentType) string {
	return fmt.Sprintf("%s/data/%s/%s/%s", b.mountPath, b.dataPath, contentType.String(), id.String())
}

// Fetch retrieves data by its content identifier and type.
// Returns ErrContentNotFound if no secret exists at the derived path.
func (b *VaultBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	path := b.secretPath(id, contentType)

	secret, err := b.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, interfaces.ErrContentNotFound
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, interfaces.ErrContentNotFound
	}
	encoded, ok := data["content"].(string)
	if !ok {
		return nil, fmt.Errorf("secret %s has no content field", path)
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode secret %s: %w", path, err)
	}
	return decoded, nil
}

// Store saves data and returns its content identifier.
func (b *VaultBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)
	path := b.secretPath(id, contentType)

	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"content": base64.StdEncoding.EncodeToString(data),
		},
	}
	if _, err := b.client.Logical().WriteWithContext(ctx, path, payload); err != nil {
		return interfaces.ContentID{}, fmt.Errorf("failed to write secret %s: %w", path, err)
	}

	b.log.Debug("Stored content in Vault",
		slog.String("contentID", id.String()),
		slog.String("contentType", contentType.String()),
		slog.String("path", path))

	return id, nil
}

// Available checks whether the Vault server is reachable and unsealed.
func (b *VaultBackend) Available(ctx context.Context) bool {
	health, err := b.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return false
	}
	return health.Initialized && !health.Sealed
}

// Name returns a unique identifier for this storage backend.
func (b *VaultBackend) Name() string {
	return fmt.Sprintf("vault-%s", b.address)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *VaultBackend) LocationURI() string {
	return fmt.Sprintf("vault://%s/%s/%s", b.address, b.mountPath, b.dataPath)
}
