// Package lifecycle drives the task state machine: accept, submit and
// release. All mutual exclusion is pushed down to the storage layer's
// conditional updates; the manager holds no in-process task state.
package lifecycle

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/chrischaps/TaskMan-sub000/internal/domain"
	"github.com/chrischaps/TaskMan-sub000/internal/events"
	"github.com/chrischaps/TaskMan-sub000/internal/postgres"
	"github.com/chrischaps/TaskMan-sub000/internal/validate"
	"github.com/chrischaps/TaskMan-sub000/pkg/retry"
	"github.com/chrischaps/TaskMan-sub000/pkg/telemetry"
)

// Release causes, for events and metrics.
const (
	CauseAbandon = "abandon"
	CauseExpired = "expired"
)

const (
	releaseAttempts  = 3
	releaseBaseDelay = 100 * time.Millisecond
)

// SubmitResult is the outcome of one submission attempt. An incorrect
// answer is not an error: the claim and its deadline stay untouched.
type SubmitResult struct {
	Success       bool   `json:"success"`
	Details       string `json:"details,omitempty"`
	TokensAwarded int    `json:"tokens_awarded,omitempty"`
	NewBalance    int    `json:"new_balance,omitempty"`
}

// Manager orchestrates task state transitions.
type Manager struct {
	tasks      postgres.TaskStore
	validators *validate.Registry
	publisher  events.Publisher
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the manager's time source.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// NewManager constructs a Manager with the given dependencies.
func NewManager(
	tasks postgres.TaskStore,
	validators *validate.Registry,
	publisher events.Publisher,
	logger *slog.Logger,
	opts ...Option,
) *Manager {
	m := &Manager{
		tasks:      tasks,
		validators: validators,
		publisher:  publisher,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Accept claims an available task for userID and stamps its deadline.
// Exactly one of two racing accepts succeeds; the loser gets
// TaskNotAvailableError.
func (m *Manager) Accept(ctx context.Context, taskID, userID string) (*domain.Task, error) {
	ctx, span := otel.Tracer("lifecycle").Start(ctx, "lifecycle.accept")
	defer span.End()
	span.SetAttributes(
		attribute.String("task.id", taskID),
		attribute.String("user.id", userID),
	)

	task, err := m.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != domain.StatusAvailable {
		return nil, &domain.TaskNotAvailableError{TaskID: taskID, Status: task.Status}
	}

	now := m.now()
	expiresAt := domain.ComputeExpiration(now, task.EstimatedTime, task.Difficulty, task.Type)

	// The conditional update is the real gate; the read above only
	// supplied the immutable fields the deadline math needs.
	claimed, err := m.tasks.Claim(ctx, taskID, userID, now, expiresAt)
	if err != nil {
		return nil, err
	}

	telemetry.TasksAccepted.WithLabelValues(string(claimed.Type)).Inc()
	m.publish(ctx, events.Event{
		Kind:       events.KindAccepted,
		TaskID:     claimed.ID,
		TaskType:   string(claimed.Type),
		UserID:     userID,
		OccurredAt: now,
	})
	m.logger.Info("task accepted",
		slog.String("task_id", claimed.ID),
		slog.String("task_type", string(claimed.Type)),
		slog.String("user_id", userID),
		slog.Time("expires_at", expiresAt),
	)
	return claimed, nil
}

// Submit checks a solution for a claimed task. A correct answer
// completes the task and pays the reward in one unit of work; an
// expired claim is released and reported as TaskExpiredError.
func (m *Manager) Submit(ctx context.Context, taskID, userID string, solution json.RawMessage) (*SubmitResult, error) {
	ctx, span := otel.Tracer("lifecycle").Start(ctx, "lifecycle.submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("task.id", taskID),
		attribute.String("user.id", userID),
	)

	task, err := m.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != domain.StatusInProgress {
		return nil, &domain.TaskNotAvailableError{TaskID: taskID, Status: task.Status}
	}
	if task.AcceptedByID == nil || *task.AcceptedByID != userID {
		return nil, &domain.NotYourTaskError{TaskID: taskID, UserID: userID}
	}

	now := m.now()
	if task.ClaimLapsed(now) {
		// Lazy expiration: converge to the same end state the sweeper
		// would produce, then tell the caller why.
		m.releaseLapsed(ctx, task)
		telemetry.TaskSubmissions.WithLabelValues(string(task.Type), "expired").Inc()
		return nil, &domain.TaskExpiredError{TaskID: taskID, ExpiredAt: *task.ExpiresAt}
	}

	result := m.validators.Validate(task.Type, solution, task.Solution, task.Data)
	if !result.Correct {
		telemetry.TaskSubmissions.WithLabelValues(string(task.Type), "incorrect").Inc()
		m.logger.Info("incorrect submission",
			slog.String("task_id", taskID),
			slog.String("user_id", userID),
			slog.String("details", result.Details),
		)
		return &SubmitResult{Success: false, Details: result.Details}, nil
	}

	// Completion and payout are one transaction; no retry here, a
	// second attempt could double-credit.
	newBalance, err := m.tasks.CompleteAndAward(ctx, taskID, userID, task.TokenReward, domain.ReasonTaskCompletion, now)
	if err != nil {
		return nil, err
	}

	telemetry.TaskSubmissions.WithLabelValues(string(task.Type), "correct").Inc()
	telemetry.TokensAwarded.Add(float64(task.TokenReward))
	m.publish(ctx, events.Event{
		Kind:          events.KindCompleted,
		TaskID:        taskID,
		TaskType:      string(task.Type),
		UserID:        userID,
		TokensAwarded: task.TokenReward,
		OccurredAt:    now,
	})
	m.logger.Info("task completed",
		slog.String("task_id", taskID),
		slog.String("user_id", userID),
		slog.Int("tokens_awarded", task.TokenReward),
		slog.Int("new_balance", newBalance),
	)
	return &SubmitResult{
		Success:       true,
		TokensAwarded: task.TokenReward,
		NewBalance:    newBalance,
	}, nil
}

// Release reverts a claim to available. Idempotent: releasing a task
// that is already available or completed is a no-op, which makes it
// safe for the sweeper to race user-driven submits and abandons. The
// underlying conditional update is retried a few times on storage
// errors.
func (m *Manager) Release(ctx context.Context, taskID, cause string) error {
	ctx, span := otel.Tracer("lifecycle").Start(ctx, "lifecycle.release")
	defer span.End()
	span.SetAttributes(attribute.String("task.id", taskID))

	var released bool
	err := retry.Do(ctx, retry.Config{
		MaxAttempts: releaseAttempts,
		BaseDelay:   releaseBaseDelay,
		OnRetry: func(attempt int, retryErr error) {
			m.logger.Warn("release attempt failed, retrying",
				slog.String("task_id", taskID),
				slog.Int("attempt", attempt),
				slog.String("error", retryErr.Error()),
			)
		},
	}, func() error {
		var relErr error
		released, relErr = m.tasks.Release(ctx, taskID, m.now())
		return relErr
	})
	if err != nil {
		return err
	}
	if !released {
		return nil
	}

	telemetry.TasksReleased.WithLabelValues(cause).Inc()
	m.publish(ctx, events.Event{
		Kind:       events.KindReleased,
		TaskID:     taskID,
		Cause:      cause,
		OccurredAt: m.now(),
	})
	m.logger.Info("task released",
		slog.String("task_id", taskID),
		slog.String("cause", cause),
	)
	return nil
}

// releaseLapsed is the submit-side half of expiration. A failure here
// is logged, not surfaced: the sweeper converges the row on its next
// pass.
func (m *Manager) releaseLapsed(ctx context.Context, task *domain.Task) {
	if err := m.Release(ctx, task.ID, CauseExpired); err != nil {
		m.logger.Error("failed to release lapsed claim",
			slog.String("task_id", task.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (m *Manager) publish(ctx context.Context, ev events.Event) {
	if err := m.publisher.Publish(ctx, ev); err != nil {
		m.logger.Error("event publish failed",
			slog.String("kind", ev.Kind),
			slog.String("task_id", ev.TaskID),
			slog.String("error", err.Error()),
		)
	}
}
