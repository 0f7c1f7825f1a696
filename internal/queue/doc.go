// Package queue schedules training sessions.
//
// The queue is the single authority on whether a (bot, language) pair is
// training, queued or needs training. At most one session per pair is
// non-terminal at any time, and at most one runner executes per pair even
// after a running session was canceled and a new one queued.
//
// Files:
//   - queue.go: Queue type, lifecycle (Initialize, Teardown)
//   - ops.go: NeedsTraining, QueueTraining, CancelTraining and snapshots
//   - worker.go: worker loop, session completion
//   - schedule.go: cron sweep promoting needs-training sessions
//   - metrics.go: Prometheus collectors
//   - errors.go: error values
package queue
