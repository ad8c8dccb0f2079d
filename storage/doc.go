// Package storage implements content-addressed storage backends for the
// two artifact kinds the system persists: share bundles and sealed
// documents. Content identifiers are SHA-256 hashes of the stored bytes.
//
// Backends are created from URI strings by StorageBackendFactory:
//
//   - file:///var/lib/access/ - local filesystem
//   - s3://KEY:SECRET@bucket/prefix/?region=us-east-1 - Amazon S3 or compatible
//   - ipfs://127.0.0.1:5001/?timeout=30s - IPFS node
//   - vault://TOKEN@vault.example.com:8200/secret/access - HashiCorp Vault KV v2
//   - mem:// - in-process map, for tests and single-process demos
//
// CreateMultiBackend aggregates several backends for redundancy: stores go
// to every available backend, fetches return from the first that has the
// content.
package storage
