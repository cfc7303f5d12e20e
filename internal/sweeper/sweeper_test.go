package sweeper

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrischaps/TaskMan-sub000/internal/domain"
	"github.com/chrischaps/TaskMan-sub000/internal/events"
	"github.com/chrischaps/TaskMan-sub000/internal/lifecycle"
	"github.com/chrischaps/TaskMan-sub000/internal/postgres"
	"github.com/chrischaps/TaskMan-sub000/internal/validate"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type sweepStore struct {
	tasks        map[string]*domain.Task
	listErr      error
	expiredCalls atomic.Int32
}

func newSweepStore(tasks ...*domain.Task) *sweepStore {
	s := &sweepStore{tasks: make(map[string]*domain.Task)}
	for _, t := range tasks {
		s.tasks[t.ID] = t
	}
	return s
}

func (s *sweepStore) Create(_ context.Context, task *domain.Task) error {
	s.tasks[task.ID] = task
	return nil
}

func (s *sweepStore) GetByID(_ context.Context, id string) (*domain.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return nil, &domain.TaskNotFoundError{TaskID: id}
	}
	copied := *t
	return &copied, nil
}

func (s *sweepStore) ListAvailable(_ context.Context, _ int) ([]*domain.Task, error) {
	return nil, nil
}

func (s *sweepStore) Claim(_ context.Context, id, _ string, _, _ time.Time) (*domain.Task, error) {
	return nil, &domain.TaskNotFoundError{TaskID: id}
}

func (s *sweepStore) CompleteAndAward(_ context.Context, id, _ string, _ int, _ string, _ time.Time) (int, error) {
	return 0, &domain.TaskNotFoundError{TaskID: id}
}

func (s *sweepStore) Release(_ context.Context, id string, _ time.Time) (bool, error) {
	t, ok := s.tasks[id]
	if !ok || t.Status != domain.StatusInProgress {
		return false, nil
	}
	t.Status = domain.StatusAvailable
	t.AcceptedByID = nil
	t.AcceptedAt = nil
	t.ExpiresAt = nil
	return true, nil
}

func (s *sweepStore) ListExpired(_ context.Context, now time.Time, _ int) ([]*domain.Task, error) {
	s.expiredCalls.Add(1)
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*domain.Task
	for _, t := range s.tasks {
		if t.ClaimLapsed(now) {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

var _ postgres.TaskStore = (*sweepStore)(nil)

func lapsedTask(id, userID string, expiredAgo time.Duration) *domain.Task {
	acceptedAt := testNow.Add(-expiredAgo - 5*time.Minute)
	expiresAt := testNow.Add(-expiredAgo)
	return &domain.Task{
		ID:           id,
		Type:         domain.TypeSortList,
		Status:       domain.StatusInProgress,
		AcceptedByID: &userID,
		AcceptedAt:   &acceptedAt,
		ExpiresAt:    &expiresAt,
		CreatorID:    "creator-1",
		CreatedAt:    testNow.Add(-time.Hour),
	}
}

type capturingPublisher struct {
	events []events.Event
}

func (p *capturingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.events = append(p.events, ev)
	return nil
}
func (p *capturingPublisher) Close() error { return nil }

func newTestSweeper(store *sweepStore, elector LeaderElector, pub events.Publisher) *Sweeper {
	if pub == nil {
		pub = events.Nop{}
	}
	manager := lifecycle.NewManager(store, validate.NewRegistry(), pub, slog.Default(),
		lifecycle.WithClock(func() time.Time { return testNow }))
	s := New(store, manager, elector, slog.Default())
	s.now = func() time.Time { return testNow }
	return s
}

type fixedElector struct{ leader bool }

func (e fixedElector) AmLeader(context.Context) bool { return e.leader }

func TestTick_ReleasesLapsedClaims(t *testing.T) {
	store := newSweepStore(
		lapsedTask("t-1", "user-a", time.Minute),
		lapsedTask("t-2", "user-b", time.Second),
	)
	pub := &capturingPublisher{}
	s := newTestSweeper(store, AlwaysLeader{}, pub)

	s.Tick(context.Background())

	for _, id := range []string{"t-1", "t-2"} {
		task := store.tasks[id]
		assert.Equal(t, domain.StatusAvailable, task.Status, id)
		assert.Nil(t, task.AcceptedByID, id)
		assert.Nil(t, task.ExpiresAt, id)
	}

	require.Len(t, pub.events, 2)
	for _, ev := range pub.events {
		assert.Equal(t, events.KindReleased, ev.Kind)
		assert.Equal(t, lifecycle.CauseExpired, ev.Cause)
	}
}

func TestTick_LeavesLiveClaimsAlone(t *testing.T) {
	live := lapsedTask("t-live", "user-a", -time.Minute) // expires a minute from now
	store := newSweepStore(live)
	s := newTestSweeper(store, AlwaysLeader{}, nil)

	s.Tick(context.Background())

	task := store.tasks["t-live"]
	assert.Equal(t, domain.StatusInProgress, task.Status)
	require.NotNil(t, task.AcceptedByID)
	assert.Equal(t, "user-a", *task.AcceptedByID)
}

func TestTick_NonLeaderSkipsSweep(t *testing.T) {
	store := newSweepStore(lapsedTask("t-1", "user-a", time.Minute))
	s := newTestSweeper(store, fixedElector{leader: false}, nil)

	s.Tick(context.Background())

	assert.Zero(t, store.expiredCalls.Load())
	assert.Equal(t, domain.StatusInProgress, store.tasks["t-1"].Status)
}

func TestTick_ListErrorAbortsCycle(t *testing.T) {
	store := newSweepStore(lapsedTask("t-1", "user-a", time.Minute))
	store.listErr = context.DeadlineExceeded
	s := newTestSweeper(store, AlwaysLeader{}, nil)

	s.Tick(context.Background())

	assert.Equal(t, domain.StatusInProgress, store.tasks["t-1"].Status)
}

func TestRun_RejectsBadSchedule(t *testing.T) {
	s := newTestSweeper(newSweepStore(), AlwaysLeader{}, nil)

	err := s.Run(context.Background(), "not a schedule")
	var schedErr *ScheduleError
	require.ErrorAs(t, err, &schedErr)
	assert.Equal(t, "not a schedule", schedErr.Expr)
}

func TestRun_SweepsImmediatelyThenStopsOnCancel(t *testing.T) {
	store := newSweepStore(lapsedTask("t-1", "user-a", time.Minute))
	s := newTestSweeper(store, AlwaysLeader{}, nil)
	s.now = func() time.Time { return time.Now().UTC() }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "@every 1h") }()

	require.Eventually(t, func() bool {
		return store.expiredCalls.Load() > 0
	}, time.Second, 10*time.Millisecond, "first sweep should fire before the first tick")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
