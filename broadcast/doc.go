// Package broadcast provides the event distribution channels that connect
// access-session replicas.
//
// The channel contract is deliberately weak: events may arrive in any order,
// may be duplicated, and carry no delivery receipts. Replicas tolerate this
// because session state converges through an idempotent merge, so the
// implementations here only need to get every event to every peer at least
// once eventually.
//
// Two implementations are provided. LocalBus wires replicas together inside
// a single process and can inject duplicate deliveries on demand, which makes
// it the workhorse for convergence tests. Hub and Client speak WebSocket for
// multi-process deployments: the hub runs inside the coordinator server and
// fans every received event out to all connected participants.
package broadcast
