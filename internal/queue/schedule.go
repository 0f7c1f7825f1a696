package queue

import (
	"time"

	"nlud/internal/events"
	"nlud/pkg/types"
)

// promoteStale queues every needs-training session.
func (q *Queue) promoteStale() {
	q.mu.Lock()
	if !q.initialized {
		q.mu.Unlock()
		return
	}
	var stale []Key
	for k, j := range q.sessions {
		if j.session.Status == types.StatusNeedsTraining {
			stale = append(stale, k)
		}
	}
	sortKeys(stale)
	now := time.Now().UTC()
	queued := make([]types.TrainingSession, 0, len(stale))
	for _, k := range stale {
		s, _ := q.queueLocked(k, now)
		q.publish(events.TrainingQueued, s, map[string]any{"auto": true})
		queued = append(queued, s)
	}
	q.mu.Unlock()

	if len(queued) > 0 {
		q.log.Info().Str("event", "auto_train").Int("count", len(queued)).Msg("queue")
	}
}

// PromoteStale queues every needs-training session immediately, as the
// auto-train schedule does on each tick.
func (q *Queue) PromoteStale() { q.promoteStale() }
