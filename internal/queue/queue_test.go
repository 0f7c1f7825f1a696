package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlud/internal/events"
	"nlud/pkg/types"
)

type fakeRunner struct {
	started   chan types.TrainingSession
	release   chan error
	ignoreCtx bool

	mu       sync.Mutex
	canceled []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		started: make(chan types.TrainingSession, 32),
		release: make(chan error, 32),
	}
}

func (f *fakeRunner) Train(ctx context.Context, s types.TrainingSession, progress ProgressFunc) error {
	f.started <- s
	progress(0.5)
	if f.ignoreCtx {
		return <-f.release
	}
	select {
	case err := <-f.release:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeRunner) Cancel(s types.TrainingSession) {
	f.mu.Lock()
	f.canceled = append(f.canceled, s.ID)
	f.mu.Unlock()
}

func (f *fakeRunner) canceledIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.canceled...)
}

func newQueue(t *testing.T, r Runner, opts Options) *Queue {
	t.Helper()
	q := New(r, opts)
	require.NoError(t, q.Initialize(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = q.Teardown(ctx)
	})
	return q
}

func waitStarted(t *testing.T, r *fakeRunner) types.TrainingSession {
	t.Helper()
	select {
	case s := <-r.started:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("runner was not started")
		return types.TrainingSession{}
	}
}

func waitStatus(t *testing.T, q *Queue, k Key, want types.TrainingStatus) types.TrainingSession {
	t.Helper()
	require.Eventually(t, func() bool { return q.GetTraining(k).Status == want },
		2*time.Second, 5*time.Millisecond, "status of %s never became %s", k, want)
	return q.GetTraining(k)
}

var en = Key{BotID: "b1", Language: "en"}

func TestNotInitialized(t *testing.T) {
	q := New(newFakeRunner(), Options{})
	_, err := q.QueueTraining(en)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, q.NeedsTraining(en), ErrNotInitialized)
	assert.ErrorIs(t, q.CancelTraining(en), ErrNotInitialized)
	assert.NoError(t, q.Teardown(context.Background()))
}

func TestGetTrainingUnknownKey(t *testing.T) {
	q := newQueue(t, newFakeRunner(), Options{})
	s := q.GetTraining(en)
	assert.Equal(t, types.StatusNone, s.Status)
	assert.Equal(t, "b1", s.BotID)
	assert.Empty(t, s.ID)
}

func TestConcurrentQueueTrainingCollapses(t *testing.T) {
	r := newFakeRunner()
	q := newQueue(t, r, Options{Workers: 4})

	const n = 16
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := q.QueueTraining(en)
			assert.NoError(t, err)
			ids[i] = s.ID
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	waitStarted(t, r)
	active := 0
	for _, s := range q.GetAllTrainings() {
		if !s.Status.IsTerminal() {
			active++
		}
	}
	assert.Equal(t, 1, active)
	select {
	case s := <-r.started:
		t.Fatalf("second run started: %+v", s)
	case <-time.After(30 * time.Millisecond):
	}
	r.release <- nil
	waitStatus(t, q, en, types.StatusDone)
}

func TestStateMachine(t *testing.T) {
	r := newFakeRunner()
	pub := events.NewMemoryPublisher()
	q := newQueue(t, r, Options{Publisher: pub})

	require.NoError(t, q.NeedsTraining(en))
	stale := q.GetTraining(en)
	assert.Equal(t, types.StatusNeedsTraining, stale.Status)
	require.NoError(t, q.NeedsTraining(en))
	assert.Equal(t, stale.ID, q.GetTraining(en).ID, "needs-training is idempotent")

	s, err := q.QueueTraining(en)
	require.NoError(t, err)
	assert.Equal(t, stale.ID, s.ID, "needs-training is promoted in place")
	assert.Equal(t, types.StatusQueued, s.Status)

	started := waitStarted(t, r)
	assert.Equal(t, types.StatusTraining, started.Status)
	require.Eventually(t, func() bool { return q.GetTraining(en).Progress == 0.5 }, time.Second, 5*time.Millisecond)

	r.release <- nil
	done := waitStatus(t, q, en, types.StatusDone)
	assert.Equal(t, 1.0, done.Progress)
	assert.False(t, done.FinishedAt.IsZero())

	// terminal states are not resurrected
	require.NoError(t, q.CancelTraining(en))
	assert.Equal(t, types.StatusDone, q.GetTraining(en).Status)
	require.NoError(t, q.NeedsTraining(en))
	fresh := q.GetTraining(en)
	assert.Equal(t, types.StatusNeedsTraining, fresh.Status)
	assert.NotEqual(t, s.ID, fresh.ID)

	require.Eventually(t, func() bool {
		names := pub.Names()
		return len(names) >= 3 && names[len(names)-1] == events.TrainingDone
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{events.TrainingQueued, events.TrainingStarted, events.TrainingDone}, pub.Names())
}

func TestRequeueAfterTerminalCreatesFreshSession(t *testing.T) {
	r := newFakeRunner()
	q := newQueue(t, r, Options{})
	first, err := q.QueueTraining(en)
	require.NoError(t, err)
	waitStarted(t, r)
	r.release <- nil
	waitStatus(t, q, en, types.StatusDone)

	second, err := q.QueueTraining(en)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	waitStarted(t, r)
	r.release <- nil
	waitStatus(t, q, en, types.StatusDone)
}

func TestEnqueueReportsCreation(t *testing.T) {
	r := newFakeRunner()
	q := newQueue(t, r, Options{})
	first, created, err := q.Enqueue(en)
	require.NoError(t, err)
	assert.True(t, created)
	waitStarted(t, r)

	again, created, err := q.Enqueue(en)
	require.NoError(t, err)
	assert.False(t, created, "an active session is reused")
	assert.Equal(t, first.ID, again.ID)

	r.release <- nil
	waitStatus(t, q, en, types.StatusDone)
}

func TestErroredAndPanickingRuns(t *testing.T) {
	r := newFakeRunner()
	q := newQueue(t, r, Options{})
	_, err := q.QueueTraining(en)
	require.NoError(t, err)
	waitStarted(t, r)
	r.release <- errors.New("boom")
	s := waitStatus(t, q, en, types.StatusErrored)
	assert.Equal(t, "boom", s.Error)

	pq := newQueue(t, panicRunner{}, Options{})
	_, err = pq.QueueTraining(en)
	require.NoError(t, err)
	s = waitStatus(t, pq, en, types.StatusErrored)
	assert.Contains(t, s.Error, "panic")
}

type panicRunner struct{}

func (panicRunner) Train(context.Context, types.TrainingSession, ProgressFunc) error {
	panic("unit exploded")
}
func (panicRunner) Cancel(types.TrainingSession) {}

func TestCancelQueuedSession(t *testing.T) {
	r := newFakeRunner()
	q := newQueue(t, r, Options{Workers: 1})
	other := Key{BotID: "b0", Language: "en"}
	_, err := q.QueueTraining(other)
	require.NoError(t, err)
	waitStarted(t, r)

	_, err = q.QueueTraining(en)
	require.NoError(t, err)
	require.NoError(t, q.CancelTraining(en))
	assert.Equal(t, types.StatusCanceled, q.GetTraining(en).Status)
	assert.Empty(t, r.canceledIDs(), "queued sessions have no unit to cancel")

	r.release <- nil
	waitStatus(t, q, other, types.StatusDone)
	select {
	case s := <-r.started:
		t.Fatalf("canceled session ran: %+v", s)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestCancelRunningSessionBlocksRequeueUntilExit(t *testing.T) {
	r := newFakeRunner()
	r.ignoreCtx = true
	q := newQueue(t, r, Options{Workers: 2})

	first, err := q.QueueTraining(en)
	require.NoError(t, err)
	waitStarted(t, r)
	require.NoError(t, q.CancelTraining(en))
	assert.Equal(t, types.StatusCanceled, q.GetTraining(en).Status)
	assert.Equal(t, []string{first.ID}, r.canceledIDs())

	second, err := q.QueueTraining(en)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	select {
	case s := <-r.started:
		t.Fatalf("second run overlapped the first: %+v", s)
	case <-time.After(50 * time.Millisecond):
	}

	r.release <- nil
	next := waitStarted(t, r)
	assert.Equal(t, second.ID, next.ID)
	r.release <- nil
	waitStatus(t, q, en, types.StatusDone)
}

func TestFIFOOrder(t *testing.T) {
	r := newFakeRunner()
	q := newQueue(t, r, Options{Workers: 1})
	keys := []Key{{"a", "en"}, {"b", "en"}, {"c", "en"}}
	for _, k := range keys {
		_, err := q.QueueTraining(k)
		require.NoError(t, err)
	}
	for _, k := range keys {
		s := waitStarted(t, r)
		assert.Equal(t, k.BotID, s.BotID)
		r.release <- nil
	}
}

func TestTeardownCancelsEverything(t *testing.T) {
	r := newFakeRunner()
	q := New(r, Options{Workers: 1})
	require.NoError(t, q.Initialize(context.Background()))
	running := Key{BotID: "b1", Language: "en"}
	queued := Key{BotID: "b1", Language: "fr"}
	_, err := q.QueueTraining(running)
	require.NoError(t, err)
	waitStarted(t, r)
	_, err = q.QueueTraining(queued)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Teardown(ctx))

	assert.Equal(t, types.StatusCanceled, q.GetTraining(running).Status)
	assert.Equal(t, types.StatusCanceled, q.GetTraining(queued).Status)
	_, err = q.QueueTraining(running)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestPromoteStale(t *testing.T) {
	r := newFakeRunner()
	q := newQueue(t, r, Options{})
	fr := Key{BotID: "b1", Language: "fr"}
	require.NoError(t, q.NeedsTraining(en))
	require.NoError(t, q.NeedsTraining(fr))

	q.PromoteStale()
	waitStarted(t, r)
	waitStarted(t, r)
	r.release <- nil
	r.release <- nil
	waitStatus(t, q, en, types.StatusDone)
	waitStatus(t, q, fr, types.StatusDone)
}

func TestInvalidSchedule(t *testing.T) {
	q := New(newFakeRunner(), Options{AutoTrainSchedule: "not a cron"})
	assert.Error(t, q.Initialize(context.Background()))
}
