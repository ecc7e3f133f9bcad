// Package jobs persists the processing queue: jobs, their pages and regions,
// and the append-only audit log. All state transitions are guarded by
// conditional updates so concurrent workers and reviewers cannot double-apply
// a transition.
package jobs
