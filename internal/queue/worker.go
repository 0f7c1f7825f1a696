package queue

import (
	"context"
	"fmt"
	"time"

	"nlud/internal/events"
	"nlud/pkg/types"
)

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		j, ctx, ok := q.next()
		if !ok {
			return
		}
		q.run(ctx, j)
	}
}

// next blocks until a pending key whose previous runner has exited is
// available, or the queue is torn down.
func (q *Queue) next() (*job, context.Context, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if !q.initialized {
			return nil, nil, false
		}
		if j := q.takeLocked(); j != nil {
			ctx, cancel := context.WithCancel(q.baseCtx)
			j.cancel = cancel
			j.session.Status = types.StatusTraining
			j.session.StartedAt = time.Now().UTC()
			q.running[key(j.session)] = true
			inflight.Set(float64(len(q.running)))
			sessionsTotal.WithLabelValues(string(types.StatusTraining)).Inc()
			return j, ctx, true
		}
		q.cond.Wait()
	}
}

// takeLocked pops the oldest runnable pending key.
func (q *Queue) takeLocked() *job {
	for i := 0; i < len(q.pending); i++ {
		k := q.pending[i]
		if q.running[k] {
			continue
		}
		q.pending = append(q.pending[:i], q.pending[i+1:]...)
		queueDepth.Set(float64(len(q.pending)))
		j := q.sessions[k]
		if j == nil || j.session.Status != types.StatusQueued {
			i--
			continue
		}
		return j
	}
	return nil
}

func key(s types.TrainingSession) Key { return Key{BotID: s.BotID, Language: s.Language} }

func (q *Queue) run(ctx context.Context, j *job) {
	q.mu.Lock()
	s := j.session
	q.mu.Unlock()
	k := key(s)
	log := q.log.With().Str("bot", k.BotID).Str("lang", k.Language).Str("session", s.ID).Logger()
	log.Info().Str("event", "training_started").Msg("queue")
	q.publish(events.TrainingStarted, s, nil)

	start := time.Now()
	err := q.train(ctx, j, s)
	dur := time.Since(start)
	trainingDuration.Observe(dur.Seconds())

	q.mu.Lock()
	j.cancel()
	delete(q.running, k)
	inflight.Set(float64(len(q.running)))
	// canceled by CancelTraining or Teardown while running
	alreadyFinal := j.session.Status != types.StatusTraining
	if !alreadyFinal {
		switch {
		case ctx.Err() != nil:
			q.finishLocked(j, types.StatusCanceled, "", time.Now().UTC())
		case err != nil:
			q.finishLocked(j, types.StatusErrored, err.Error(), time.Now().UTC())
		default:
			q.finishLocked(j, types.StatusDone, "", time.Now().UTC())
		}
	}
	final := j.session
	q.cond.Broadcast()
	q.mu.Unlock()

	if alreadyFinal {
		log.Debug().Str("event", "training_exit").Dur("took", dur).Msg("queue")
		return
	}
	fields := map[string]any{"duration_ms": dur.Milliseconds()}
	switch final.Status {
	case types.StatusDone:
		log.Info().Str("event", "training_done").Dur("took", dur).Msg("queue")
		q.publish(events.TrainingDone, final, fields)
	case types.StatusErrored:
		log.Error().Str("event", "training_errored").Err(err).Dur("took", dur).Msg("queue")
		fields["error"] = final.Error
		q.publish(events.TrainingErrored, final, fields)
	default:
		log.Info().Str("event", "training_canceled").Dur("took", dur).Msg("queue")
		q.publish(events.TrainingCanceled, final, fields)
	}
}

// train invokes the runner, converting a panic into an error.
func (q *Queue) train(ctx context.Context, j *job, s types.TrainingSession) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("training panic: %v", r)
		}
	}()
	return q.runner.Train(ctx, s, func(p float64) {
		q.mu.Lock()
		if j.session.Status == types.StatusTraining && p >= j.session.Progress {
			j.session.Progress = p
		}
		q.mu.Unlock()
	})
}
