// Package interfaces defines core interfaces and types for the threshold
// access system, separating interface definitions from implementations.
//
// # Protocol Types
//
// ParticipantID, Share, Phase, and Epoch are the vocabulary of the access
// protocol. Epoch is a compound key (counter, opener): counters are local
// monotonic values, so two participants racing to open a request can mint
// equal counters, and the lower opener identifier wins the tie.
//
// # Events
//
// Event is the broadcast envelope applied through the coordinator's merge
// function. Count fields inside events are denormalized for display and are
// never treated as authoritative; receivers recompute threshold arithmetic
// from their own merged grantor set.
//
// # Component Interfaces
//
//   - SyncChannel: at-least-once, unordered event broadcast between
//     participants
//   - ShareSource / ShareResolver: external share supply with deterministic
//     local fallback
//   - StorageBackend / StorageBackendFactory: content-addressed storage for
//     share bundles and sealed documents (file, S3, IPFS, Vault, memory)
//
// # Errors
//
// Protocol violations (ErrAlreadyRequested, ErrNoActiveRequest,
// ErrDuplicateGrant, ErrThresholdNotMet) are reported to the initiating
// caller only. ErrNotAuthorized is security-relevant and additionally
// broadcast. ErrShareUnavailable is a resource condition that may clear once
// the external share source loads.
package interfaces
