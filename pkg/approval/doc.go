// Package approval gates tool calls behind user confirmation.
//
// Invariants:
// - Read-only tools never require approval.
// - Mutating and destructive tools require approval unless the session
//   allowlist already covers them.
// - Approve-always decisions update the session allowlist; nothing is ever
//   persisted beyond the session.
// - A deferred prompt re-issues the same question after the review hook
//   returns; deferral never resolves a call by itself.
//
// Usage:
//
//	gate := approval.NewGate(approval.NewSession(), approval.AutoApprove{})
//	if gate.RequiresApproval(desc) {
//		decision, err := gate.RequestApproval(ctx, call, desc)
//		...
//	}
package approval
