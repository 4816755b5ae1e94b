// Package runs implements the run ledger: creation, the status trail,
// provenance links and metrics, all scoped to the owning user.
//
// States:
//   - pending -> submitted -> running -> succeeded | failed | canceled
//
// Terminal states are final. Every accepted transition appends exactly one
// status event and updates the run's current status in the same transaction,
// so the run row always reflects its most recent event.
//
// Owner-scoped operations consult the access gate first; a run owned by
// someone else is reported exactly like a missing one.
package runs
