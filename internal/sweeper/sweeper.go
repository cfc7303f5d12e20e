// Package sweeper reclaims lapsed claims in the background. Every tick it
// lists in_progress tasks whose deadline has passed and releases each one
// back to available. Only the current leader sweeps, so a fleet of
// instances never double-processes; tasks a failed sweep misses are picked
// up on the next tick, and submit-time expiry checks cover the window in
// between.
package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"

	"github.com/chrischaps/TaskMan-sub000/internal/domain"
	"github.com/chrischaps/TaskMan-sub000/internal/lifecycle"
	"github.com/chrischaps/TaskMan-sub000/internal/postgres"
	"github.com/chrischaps/TaskMan-sub000/pkg/telemetry"
)

const (
	leaderKey = "sweeper:leader"
	leaderTTL = 30 * time.Second

	// Bounded batch per tick; a backlog larger than this drains over
	// subsequent ticks.
	sweepBatchSize = 500
)

// LeaderElector decides whether this instance may sweep right now.
type LeaderElector interface {
	AmLeader(ctx context.Context) bool
}

// RedisElector elects a leader with SETNX and an owner-checked renewal.
type RedisElector struct {
	client     *redis.Client
	instanceID string
	logger     *slog.Logger
}

func NewRedisElector(client *redis.Client, instanceID string, logger *slog.Logger) *RedisElector {
	return &RedisElector{client: client, instanceID: instanceID, logger: logger}
}

func (e *RedisElector) AmLeader(ctx context.Context) bool {
	ok, err := e.client.SetNX(ctx, leaderKey, e.instanceID, leaderTTL).Result()
	if err != nil {
		e.logger.Error("leader election SetNX", slog.String("error", err.Error()))
		return false
	}
	if ok {
		e.logger.Info("acquired sweeper leadership", slog.String("instance_id", e.instanceID))
		return true
	}

	// Key exists. Renew only if we own it; the Lua script makes the
	// owner check and the expiry bump atomic.
	renewScript := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		end
		return 0
	`)
	result, err := renewScript.Run(
		ctx, e.client,
		[]string{leaderKey},
		e.instanceID,
		leaderTTL.Milliseconds(),
	).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		e.logger.Error("leader renewal", slog.String("error", err.Error()))
		return false
	}
	return result == 1
}

// AlwaysLeader is the single-instance elector used when no Redis address is
// configured.
type AlwaysLeader struct{}

func (AlwaysLeader) AmLeader(context.Context) bool { return true }

// Sweeper runs the periodic expiration sweep.
type Sweeper struct {
	tasks   postgres.TaskStore
	manager *lifecycle.Manager
	elector LeaderElector
	logger  *slog.Logger
	now     func() time.Time

	sweeping atomic.Bool
}

func New(
	tasks postgres.TaskStore,
	manager *lifecycle.Manager,
	elector LeaderElector,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		tasks:   tasks,
		manager: manager,
		elector: elector,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks until ctx is cancelled, sweeping on the given cron schedule
// (standard five-field syntax or a descriptor like "@every 60s").
func (s *Sweeper) Run(ctx context.Context, schedule string) error {
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return &ScheduleError{Expr: schedule, Err: err}
	}

	// Sweep once immediately before waiting for the first tick.
	s.Tick(ctx)

	for {
		next := sched.Next(s.now())
		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one sweep cycle if this instance is the leader. Overlapping
// ticks are skipped rather than queued.
func (s *Sweeper) Tick(ctx context.Context) {
	if !s.elector.AmLeader(ctx) {
		telemetry.SweeperLeader.Set(0)
		return
	}
	telemetry.SweeperLeader.Set(1)

	if !s.sweeping.CompareAndSwap(false, true) {
		s.logger.Warn("previous sweep still running, skipping tick")
		return
	}
	defer s.sweeping.Store(false)

	s.sweep(ctx)
}

func (s *Sweeper) sweep(ctx context.Context) {
	ctx, span := otel.Tracer("sweeper").Start(ctx, "sweeper.sweep")
	defer span.End()

	started := s.now()
	telemetry.SweepsTotal.Inc()

	lapsed, err := s.tasks.ListExpired(ctx, started, sweepBatchSize)
	if err != nil {
		telemetry.SweepFailures.Inc()
		s.logger.Error("listing lapsed claims", slog.String("error", err.Error()))
		return
	}

	released := 0
	for _, task := range lapsed {
		if err := s.manager.Release(ctx, task.ID, lifecycle.CauseExpired); err != nil {
			// One stuck task must not block the rest of the batch.
			telemetry.SweepFailures.Inc()
			s.logger.Error("sweep release failed",
				slog.String("task_id", task.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		released++
		telemetry.SweepReleases.Inc()
		s.logExpired(task)
	}

	telemetry.SweepDuration.Observe(s.now().Sub(started).Seconds())
	if len(lapsed) > 0 {
		s.logger.Info("sweep finished",
			slog.Int("lapsed", len(lapsed)),
			slog.Int("released", released),
			slog.Duration("took", s.now().Sub(started)),
		)
	}
}

func (s *Sweeper) logExpired(task *domain.Task) {
	attrs := []any{
		slog.String("task_id", task.ID),
		slog.String("type", string(task.Type)),
	}
	if task.AcceptedByID != nil {
		attrs = append(attrs, slog.String("user_id", *task.AcceptedByID))
	}
	if task.ExpiresAt != nil {
		attrs = append(attrs, slog.Time("expired_at", *task.ExpiresAt))
	}
	s.logger.Info("released lapsed claim", attrs...)
}

// ScheduleError reports an unparseable sweep schedule.
type ScheduleError struct {
	Expr string
	Err  error
}

func (e *ScheduleError) Error() string {
	return "invalid sweep schedule " + e.Expr + ": " + e.Err.Error()
}

func (e *ScheduleError) Unwrap() error { return e.Err }
