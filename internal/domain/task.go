package domain

import (
	"encoding/json"
	"time"
)

// TaskType identifies which micro-task variant a task carries and
// therefore which solution validator applies.
type TaskType string

const (
	TypeSortList        TaskType = "sort_list"
	TypeColorMatch      TaskType = "color_match"
	TypeArithmetic      TaskType = "arithmetic"
	TypeGroupSeparation TaskType = "group_separation"
	TypeDefragmentation TaskType = "defragmentation"
)

// Status represents the persisted states a task can be in.
// Expiration is not a stored status: an in-progress task past its
// deadline collapses back to available via the release path.
type Status string

const (
	StatusAvailable  Status = "available"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// IsTerminal returns true if no further state transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted
}

// Task is the core entity: one unit of claimable, rewarded work.
// Data and Solution are opaque JSON blobs interpreted only by the
// per-type validator (and the UI, for Data). Solution is never
// serialized in API responses while the task is unsolved.
type Task struct {
	ID             string          `json:"id"`
	Type           TaskType        `json:"type"`
	Data           json.RawMessage `json:"data"`
	Solution       json.RawMessage `json:"-"`
	TokenReward    int             `json:"token_reward"`
	Difficulty     int             `json:"difficulty"`
	EstimatedTime  int             `json:"estimated_time"`
	Status         Status          `json:"status"`
	AcceptedByID   *string         `json:"accepted_by_id,omitempty"`
	AcceptedAt     *time.Time      `json:"accepted_at,omitempty"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CreatorID      string          `json:"creator_id"`
	IsTutorial     bool            `json:"is_tutorial"`
	IsComposite    bool            `json:"is_composite"`
	OrganizationID *string         `json:"organization_id,omitempty"`
	ProjectID      *string         `json:"project_id,omitempty"`
	InitiativeID   *string         `json:"initiative_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ClaimLapsed reports whether an in-progress task's deadline has passed.
// Always false for tasks that are not in progress.
func (t *Task) ClaimLapsed(now time.Time) bool {
	return t.Status == StatusInProgress && t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}
