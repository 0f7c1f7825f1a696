package queue

import (
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"nlud/internal/events"
	"nlud/pkg/types"
)

func newSession(k Key, status types.TrainingStatus) types.TrainingSession {
	return types.TrainingSession{
		ID:       ulid.Make().String(),
		BotID:    k.BotID,
		Language: k.Language,
		Status:   status,
	}
}

// NeedsTraining marks k as stale without scheduling work. It is a no-op when
// k already has a non-terminal session.
func (q *Queue) NeedsTraining(k Key) error {
	q.mu.Lock()
	if !q.initialized {
		q.mu.Unlock()
		return ErrNotInitialized
	}
	if j := q.sessions[k]; j != nil && !j.session.Status.IsTerminal() {
		q.mu.Unlock()
		return nil
	}
	j := &job{session: newSession(k, types.StatusNeedsTraining)}
	q.sessions[k] = j
	sessionsTotal.WithLabelValues(string(types.StatusNeedsTraining)).Inc()
	s := j.session
	q.mu.Unlock()

	q.log.Debug().Str("event", "needs_training").Str("bot", k.BotID).Str("lang", k.Language).Str("session", s.ID).Msg("queue")
	return nil
}

// QueueTraining schedules k. An active session for k is returned unchanged;
// a needs-training session is promoted; otherwise a new session is created.
func (q *Queue) QueueTraining(k Key) (types.TrainingSession, error) {
	s, _, err := q.Enqueue(k)
	return s, err
}

// Enqueue is QueueTraining that also reports whether this call scheduled the
// session, as opposed to returning one that was already queued or training.
func (q *Queue) Enqueue(k Key) (types.TrainingSession, bool, error) {
	q.mu.Lock()
	if !q.initialized {
		q.mu.Unlock()
		return types.TrainingSession{}, false, ErrNotInitialized
	}
	s, created := q.queueLocked(k, time.Now().UTC())
	if created {
		// published under the lock so it precedes training_started
		q.publish(events.TrainingQueued, s, nil)
	}
	q.mu.Unlock()

	if created {
		q.log.Info().Str("event", "training_queued").Str("bot", k.BotID).Str("lang", k.Language).Str("session", s.ID).Msg("queue")
	}
	return s, created, nil
}

func (q *Queue) queueLocked(k Key, now time.Time) (types.TrainingSession, bool) {
	j := q.sessions[k]
	switch {
	case j != nil && j.session.Status.IsActive():
		return j.session, false
	case j != nil && j.session.Status == types.StatusNeedsTraining:
		j.session.Status = types.StatusQueued
	default:
		j = &job{session: newSession(k, types.StatusQueued)}
		q.sessions[k] = j
	}
	j.session.QueuedAt = now
	q.pending = append(q.pending, k)
	queueDepth.Set(float64(len(q.pending)))
	sessionsTotal.WithLabelValues(string(types.StatusQueued)).Inc()
	q.cond.Signal()
	return j.session, true
}

// CancelTraining moves the non-terminal session of k to canceled and stops
// its runner. Unknown keys and terminal sessions are left untouched.
func (q *Queue) CancelTraining(k Key) error {
	q.mu.Lock()
	if !q.initialized {
		q.mu.Unlock()
		return ErrNotInitialized
	}
	j := q.sessions[k]
	if j == nil || j.session.Status.IsTerminal() {
		q.mu.Unlock()
		return nil
	}
	wasTraining := j.session.Status == types.StatusTraining
	if j.session.Status == types.StatusQueued {
		q.removePendingLocked(k)
	}
	q.finishLocked(j, types.StatusCanceled, "", time.Now().UTC())
	if wasTraining && j.cancel != nil {
		j.cancel()
	}
	s := j.session
	q.mu.Unlock()

	if wasTraining {
		q.runner.Cancel(s)
	}
	q.log.Info().Str("event", "training_canceled").Str("bot", k.BotID).Str("lang", k.Language).Str("session", s.ID).Msg("queue")
	q.publish(events.TrainingCanceled, s, nil)
	return nil
}

// GetTraining returns the latest session of k, or a session with status
// none when k never had one.
func (q *Queue) GetTraining(k Key) types.TrainingSession {
	q.mu.Lock()
	defer q.mu.Unlock()
	if j := q.sessions[k]; j != nil {
		return j.session
	}
	return types.TrainingSession{BotID: k.BotID, Language: k.Language, Status: types.StatusNone}
}

// GetAllTrainings returns the latest session of every known key ordered by
// bot and language.
func (q *Queue) GetAllTrainings() []types.TrainingSession {
	q.mu.Lock()
	out := make([]types.TrainingSession, 0, len(q.sessions))
	for _, j := range q.sessions {
		out = append(out, j.session)
	}
	q.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].BotID != out[j].BotID {
			return out[i].BotID < out[j].BotID
		}
		return out[i].Language < out[j].Language
	})
	return out
}

func (q *Queue) removePendingLocked(k Key) {
	for i, p := range q.pending {
		if p == k {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
	queueDepth.Set(float64(len(q.pending)))
}

func (q *Queue) finishLocked(j *job, status types.TrainingStatus, errMsg string, now time.Time) {
	j.session.Status = status
	j.session.Error = errMsg
	j.session.FinishedAt = now
	if status == types.StatusDone {
		j.session.Progress = 1
	}
	sessionsTotal.WithLabelValues(string(status)).Inc()
}

func sortKeys(ks []Key) {
	sort.Slice(ks, func(i, j int) bool {
		if ks[i].BotID != ks[j].BotID {
			return ks[i].BotID < ks[j].BotID
		}
		return ks[i].Language < ks[j].Language
	})
}
