package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chrischaps/TaskMan-sub000/internal/domain"
)

const taskColumns = `id, type, data, solution, token_reward, difficulty, estimated_time,
	status, accepted_by_id, accepted_at, expires_at, completed_at, creator_id,
	is_tutorial, is_composite, organization_id, project_id, initiative_id,
	created_at, updated_at`

// TaskStore abstracts all database access for tasks. Every mutation of
// claim state is an atomic conditional update; callers never hold
// in-process locks.
type TaskStore interface {
	Create(ctx context.Context, task *domain.Task) error
	GetByID(ctx context.Context, id string) (*domain.Task, error)
	ListAvailable(ctx context.Context, limit int) ([]*domain.Task, error)
	// Claim atomically moves an available task to in_progress for one
	// user. Exactly one of two racing claims succeeds; the loser gets
	// TaskNotAvailableError.
	Claim(ctx context.Context, id, userID string, acceptedAt, expiresAt time.Time) (*domain.Task, error)
	// CompleteAndAward moves an in_progress task held by userID to
	// completed and pays the reward, all in one transaction: if the
	// award cannot be applied the completion is rolled back.
	CompleteAndAward(ctx context.Context, id, userID string, reward int, reason string, now time.Time) (newBalance int, err error)
	// Release reverts an in_progress task to available, clearing the
	// claim fields. Returns false without error when the task was not
	// in progress (idempotent no-op).
	Release(ctx context.Context, id string, now time.Time) (bool, error)
	// ListExpired returns in_progress tasks whose deadline has passed.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Task, error)
}

type taskStore struct {
	pool *pgxpool.Pool
}

// NewTaskStore wraps a pgxpool with the TaskStore interface.
func NewTaskStore(pool *pgxpool.Pool) TaskStore {
	return &taskStore{pool: pool}
}

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

func (s *taskStore) Create(ctx context.Context, task *domain.Task) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tasks
			(id, type, data, solution, token_reward, difficulty, estimated_time,
			 status, creator_id, is_tutorial, is_composite,
			 organization_id, project_id, initiative_id, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		task.ID, string(task.Type), task.Data, task.Solution,
		task.TokenReward, task.Difficulty, task.EstimatedTime,
		string(task.Status), task.CreatorID, task.IsTutorial, task.IsComposite,
		task.OrganizationID, task.ProjectID, task.InitiativeID,
		task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create task %s: %w", task.ID, err)
	}
	return nil
}

func (s *taskStore) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.TaskNotFoundError{TaskID: id}
		}
		return nil, err
	}
	return task, nil
}

func (s *taskStore) ListAvailable(ctx context.Context, limit int) ([]*domain.Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, string(domain.StatusAvailable), limit)
	if err != nil {
		return nil, fmt.Errorf("list available tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (s *taskStore) Claim(ctx context.Context, id, userID string, acceptedAt, expiresAt time.Time) (*domain.Task, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE tasks
		SET status = $2, accepted_by_id = $3, accepted_at = $4, expires_at = $5, updated_at = $4
		WHERE id = $1 AND status = $6
		RETURNING `+taskColumns+`
	`, id, string(domain.StatusInProgress), userID, acceptedAt, expiresAt, string(domain.StatusAvailable))

	task, err := scanTask(row)
	if err == nil {
		return task, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("claim task %s: %w", id, err)
	}

	// Lost the conditional update. Look at the row to say why.
	var status string
	checkErr := s.pool.QueryRow(ctx, `SELECT status FROM tasks WHERE id = $1`, id).Scan(&status)
	if errors.Is(checkErr, pgx.ErrNoRows) {
		return nil, &domain.TaskNotFoundError{TaskID: id}
	}
	if checkErr != nil {
		return nil, fmt.Errorf("claim task %s: %w", id, checkErr)
	}
	return nil, &domain.TaskNotAvailableError{TaskID: id, Status: domain.Status(status)}
}

func (s *taskStore) CompleteAndAward(ctx context.Context, id, userID string, reward int, reason string, now time.Time) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("complete task %s: begin: %w", id, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	err = tx.QueryRow(ctx, `
		UPDATE tasks
		SET status = $2, completed_at = $3, updated_at = $3
		WHERE id = $1 AND status = $4 AND accepted_by_id = $5
		RETURNING id
	`, id, string(domain.StatusCompleted), now, string(domain.StatusInProgress), userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, s.diagnoseCompleteFailure(ctx, id, userID)
	}
	if err != nil {
		return 0, fmt.Errorf("complete task %s: %w", id, err)
	}

	newBalance, err := applyAward(ctx, tx, userID, reward, reason, now)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("complete task %s: commit: %w", id, err)
	}
	return newBalance, nil
}

func (s *taskStore) diagnoseCompleteFailure(ctx context.Context, id, userID string) error {
	var status string
	var acceptedBy *string
	err := s.pool.QueryRow(ctx, `SELECT status, accepted_by_id FROM tasks WHERE id = $1`, id).
		Scan(&status, &acceptedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return &domain.TaskNotFoundError{TaskID: id}
	}
	if err != nil {
		return fmt.Errorf("complete task %s: %w", id, err)
	}
	if domain.Status(status) == domain.StatusInProgress && (acceptedBy == nil || *acceptedBy != userID) {
		return &domain.NotYourTaskError{TaskID: id, UserID: userID}
	}
	return &domain.TaskNotAvailableError{TaskID: id, Status: domain.Status(status)}
}

func (s *taskStore) Release(ctx context.Context, id string, now time.Time) (bool, error) {
	cmd, err := s.pool.Exec(ctx, `
		UPDATE tasks
		SET status = $2, accepted_by_id = NULL, accepted_at = NULL, expires_at = NULL, updated_at = $3
		WHERE id = $1 AND status = $4
	`, id, string(domain.StatusAvailable), now, string(domain.StatusInProgress))
	if err != nil {
		return false, fmt.Errorf("release task %s: %w", id, err)
	}
	return cmd.RowsAffected() > 0, nil
}

func (s *taskStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE status = $1 AND expires_at IS NOT NULL AND expires_at < $2
		ORDER BY expires_at ASC
		LIMIT $3
	`, string(domain.StatusInProgress), now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// scanTask reads a task row from any pgx row type.
func scanTask(row interface {
	Scan(...any) error
}) (*domain.Task, error) {
	var task domain.Task
	var taskType, status string
	err := row.Scan(
		&task.ID, &taskType, &task.Data, &task.Solution,
		&task.TokenReward, &task.Difficulty, &task.EstimatedTime,
		&status, &task.AcceptedByID, &task.AcceptedAt, &task.ExpiresAt, &task.CompletedAt,
		&task.CreatorID, &task.IsTutorial, &task.IsComposite,
		&task.OrganizationID, &task.ProjectID, &task.InitiativeID,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	task.Type = domain.TaskType(taskType)
	task.Status = domain.Status(status)
	return &task, nil
}

func collectTasks(rows pgx.Rows) ([]*domain.Task, error) {
	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}
