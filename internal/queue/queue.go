package queue

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"nlud/internal/events"
	"nlud/pkg/types"
)

const defaultWorkers = 2

// Key identifies the training slot of one bot language.
type Key struct {
	BotID    string
	Language string
}

func (k Key) String() string { return k.BotID + "/" + k.Language }

// ProgressFunc records training progress in [0,1].
type ProgressFunc func(float64)

// Runner executes training sessions on behalf of the queue.
type Runner interface {
	// Train runs s to completion. ctx is canceled when the session is
	// canceled or the queue is torn down.
	Train(ctx context.Context, s types.TrainingSession, progress ProgressFunc) error
	// Cancel asks the trainable unit behind s to stop. It may be called
	// concurrently with Train and for sessions that already finished.
	Cancel(s types.TrainingSession)
}

// Options configures a Queue. Zero values mean defaults.
type Options struct {
	// Workers bounds the number of sessions executing concurrently.
	Workers int
	// AutoTrainSchedule is a standard cron spec. When set, needs-training
	// sessions are promoted to queued on every tick.
	AutoTrainSchedule string
	Logger            zerolog.Logger
	Publisher         events.Publisher
}

type job struct {
	session types.TrainingSession
	cancel  context.CancelFunc
}

// Queue is a FIFO training scheduler backed by a bounded worker pool.
type Queue struct {
	runner  Runner
	workers int
	spec    string
	log     zerolog.Logger
	pub     events.Publisher

	mu          sync.Mutex
	cond        *sync.Cond
	initialized bool
	sessions    map[Key]*job
	pending     []Key
	running     map[Key]bool

	baseCtx context.Context
	stop    context.CancelFunc
	cron    *cron.Cron
	wg      sync.WaitGroup
}

// New returns an uninitialized queue.
func New(runner Runner, opts Options) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	q := &Queue{
		runner:   runner,
		workers:  opts.Workers,
		spec:     opts.AutoTrainSchedule,
		log:      opts.Logger.With().Str("component", "queue").Logger(),
		pub:      events.OrNoop(opts.Publisher),
		sessions: make(map[Key]*job),
		running:  make(map[Key]bool),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// SetRunner replaces the runner. It must be called before Initialize.
func (q *Queue) SetRunner(r Runner) {
	q.mu.Lock()
	q.runner = r
	q.mu.Unlock()
}

// Initialize starts the workers and, when configured, the auto-train
// schedule. Calling it on an initialized queue is a no-op.
func (q *Queue) Initialize(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.initialized {
		return nil
	}
	if q.spec != "" {
		c := cron.New(cron.WithLocation(time.UTC))
		if _, err := c.AddFunc(q.spec, q.promoteStale); err != nil {
			return err
		}
		q.cron = c
		c.Start()
	}
	q.baseCtx, q.stop = context.WithCancel(context.WithoutCancel(ctx))
	q.initialized = true
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.log.Info().Str("event", "queue_start").Int("workers", q.workers).Str("schedule", q.spec).Msg("queue")
	return nil
}

// Teardown cancels queued and executing sessions, stops the schedule and
// waits for every worker to exit or ctx to expire.
func (q *Queue) Teardown(ctx context.Context) error {
	q.mu.Lock()
	if !q.initialized {
		q.mu.Unlock()
		return nil
	}
	q.initialized = false
	var published []types.TrainingSession
	var toCancel []types.TrainingSession
	now := time.Now().UTC()
	for _, j := range q.sessions {
		switch j.session.Status {
		case types.StatusQueued:
			q.finishLocked(j, types.StatusCanceled, "", now)
			published = append(published, j.session)
		case types.StatusTraining:
			q.finishLocked(j, types.StatusCanceled, "", now)
			published = append(published, j.session)
			toCancel = append(toCancel, j.session)
			if j.cancel != nil {
				j.cancel()
			}
		}
	}
	q.pending = nil
	queueDepth.Set(0)
	c := q.cron
	q.cron = nil
	q.stop()
	q.cond.Broadcast()
	q.mu.Unlock()

	for _, s := range toCancel {
		q.runner.Cancel(s)
	}
	for _, s := range published {
		q.publish(events.TrainingCanceled, s, nil)
	}
	if c != nil {
		<-c.Stop().Done()
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.log.Info().Str("event", "queue_stop").Msg("queue")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) publish(name string, s types.TrainingSession, fields map[string]any) {
	q.pub.Publish(events.Event{
		Name:     name,
		BotID:    s.BotID,
		Language: s.Language,
		Fields:   withSession(fields, s),
		Time:     time.Now().UTC(),
	})
}

func withSession(fields map[string]any, s types.TrainingSession) map[string]any {
	if fields == nil {
		fields = make(map[string]any, 1)
	}
	fields["session"] = s.ID
	return fields
}
