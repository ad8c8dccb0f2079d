// Package httpserver provides the HTTP surface of the access coordinator.
//
// The API groups into three areas:
//
//   - Access lifecycle: /api/access/{status,request,grant,open,reset}
//     forward user actions to the replica agent and return the resulting
//     session snapshot. Lifecycle conflicts map to 409, authorization
//     violations to 403.
//
//   - Documents: /api/blinks/process derives a key from a blink pattern,
//     /api/document/seal and /api/document/unseal move sealed blobs through
//     the configured storage backend. Unsealing requires an opened session
//     and the requester's identity.
//
//   - Operations: /livez, /readyz, /drain and /undrain for orchestration,
//     optional pprof under /debug, and a Prometheus endpoint on a separate
//     listener. The /ws route, when mounted, is the WebSocket event relay
//     participant processes connect to.
package httpserver
