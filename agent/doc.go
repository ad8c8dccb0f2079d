// Package agent runs one access-session replica. An Agent owns a
// coordinator, a sync channel attachment and the session timers, and
// serializes everything that can mutate the session onto a single goroutine:
// user actions arrive as messages, remote events arrive from the channel,
// and timer expiries are handled in between.
//
// The single-goroutine discipline is what lets the coordinator's merge
// function see a consistent interleaving of local and remote events. Callers
// interact through the action methods (RequestAccess, GrantAccess,
// OpenDocument, Reset), which block until the agent's loop has processed the
// action and broadcast its events.
package agent
