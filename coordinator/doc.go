// Package coordinator implements the replicated access-request state
// machine at the heart of the threshold access system.
//
// # Lifecycle
//
// An AccessSession moves linearly through Idle, Requested, ThresholdMet and
// Opened; no other transition is legal. Requested and ThresholdMet belong to
// an active epoch; Opened is terminal for its epoch and is followed by a
// reset back to Idle under a fresh epoch.
//
// # Merge Function
//
// Every mutation, whether triggered by a local user action or by a remote
// broadcast, flows through the single merge function. The merge is
// idempotent (re-applying an event is a no-op), monotonic (phase only moves
// forward within an epoch) and commutative over the grantor set (payload
// sets merge by union), so replicas that eventually observe the same event
// multiset converge to identical state regardless of delivery order or
// duplication.
//
// # Epoch Arithmetic
//
// Epochs are compound keys (counter, opener). A request mints counter+1
// tagged with the opener; a reset mints counter+1 with no opener. Counter
// ties between competing requests resolve to the lower opener identifier at
// every replica, which settles the race where two participants request
// simultaneously from Idle.
package coordinator
