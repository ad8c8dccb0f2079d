package storage

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/interfaces"
)

// Factory creates storage backends from location URIs.
type Factory struct {
	log *slog.Logger
}

// NewStorageBackendFactory creates a factory for the supported backend
// schemes: file://, s3://, ipfs://, vault:// and mem://.
func NewStorageBackendFactory(log *slog.Logger) *Factory {
	return &Factory{log: log}
}

// StorageBackendFor creates a backend for the given location.
//
// URI formats:
//
//	file:///var/lib/blink/storage
//	s3://bucket/prefix?region=us-east-1&endpoint=http://minio:9000&access_key=K&secret_key=S
//	ipfs://localhost:5001
//	vault://TOKEN@vault.example.com:8200/secret/blink
//	mem://
func (f *Factory) StorageBackendFor(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	switch {
	case location.IsFile():
		return NewFileBackend(location.Path, f.log)

	case location.IsS3():
		bucket := location.Host
		if bucket == "" {
			return nil, fmt.Errorf("%w: s3 URI requires a bucket host", interfaces.ErrInvalidLocationURI)
		}
		prefix := strings.TrimPrefix(location.Path, "/")
		return NewS3Backend(
			bucket,
			prefix,
			location.GetParam("region"),
			location.GetParam("endpoint"),
			location.GetParam("access_key"),
			location.GetParam("secret_key"),
			f.log,
		)

	case location.IsIPFS():
		if location.Host == "" {
			return nil, fmt.Errorf("%w: ipfs URI requires a node address", interfaces.ErrInvalidLocationURI)
		}
		return NewIPFSBackend(location.Host, f.log), nil

	case location.IsVault():
		if location.Auth == "" {
			return nil, fmt.Errorf("%w: vault URI requires a token in the userinfo part", interfaces.ErrInvalidLocationURI)
		}
		mountPath, dataPath, err := splitVaultPath(location.Path)
		if err != nil {
			return nil, err
		}
		scheme := "https"
		if location.GetParamBool("insecure") {
			scheme = "http"
		}
		return NewVaultBackend(
			fmt.Sprintf("%s://%s", scheme, location.Host),
			location.Auth,
			mountPath,
			dataPath,
			f.log,
		)

	case location.IsMemory():
		return NewMemoryBackend(f.log), nil

	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", interfaces.ErrInvalidLocationURI, location.Scheme)
	}
}

// CreateMultiBackend creates a replicating backend across all locations.
func (f *Factory) CreateMultiBackend(locations []interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	backends := make([]interfaces.StorageBackend, 0, len(locations))
	for _, location := range locations {
		backend, err := f.StorageBackendFor(location)
		if err != nil {
			return nil, fmt.Errorf("failed to create backend for %s: %w", location, err)
		}
		backends = append(backends, backend)
	}
	return NewMultiBackend(f.log, backends...)
}

func splitVaultPath(p string) (mountPath, dataPath string, err error) {
	trimmed := strings.Trim(p, "/")
	mountPath, dataPath, found := strings.Cut(trimmed, "/")
	if !found || mountPath == "" || dataPath == "" {
		return "", "", fmt.Errorf("%w: vault URI path must be /<mount>/<data-path>", interfaces.ErrInvalidLocationURI)
	}
	return mountPath, dataPath, nil
}
