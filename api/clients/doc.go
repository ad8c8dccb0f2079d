// Package clients provides Go clients for the coordinator's HTTP API.
//
// AccessClient wraps the access lifecycle and document endpoints for
// participant tooling: request, grant, open and reset actions, session
// status, blink key derivation and document seal/unseal round trips.
package clients
