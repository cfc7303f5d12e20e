package domain

import (
	"fmt"
	"time"
)

// TaskNotFoundError is returned when a task ID does not exist.
type TaskNotFoundError struct {
	TaskID string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task not found: %s", e.TaskID)
}

// TaskNotAvailableError is returned when an accept races and loses, or
// when the task is already completed.
type TaskNotAvailableError struct {
	TaskID string
	Status Status
}

func (e *TaskNotAvailableError) Error() string {
	return fmt.Sprintf("task %s is not available (status %s)", e.TaskID, e.Status)
}

// NotYourTaskError is returned on submit when the caller does not hold
// the task's claim.
type NotYourTaskError struct {
	TaskID string
	UserID string
}

func (e *NotYourTaskError) Error() string {
	return fmt.Sprintf("task %s is not claimed by user %s", e.TaskID, e.UserID)
}

// TaskExpiredError is returned on submit when the claim deadline has
// passed. The task has already been released back to available.
type TaskExpiredError struct {
	TaskID    string
	ExpiredAt time.Time
}

func (e *TaskExpiredError) Error() string {
	return fmt.Sprintf("task %s claim expired at %s", e.TaskID, e.ExpiredAt.Format(time.RFC3339))
}

// UnknownTaskTypeError is returned when no validator exists for a task type.
type UnknownTaskTypeError struct {
	TaskType TaskType
}

func (e *UnknownTaskTypeError) Error() string {
	return fmt.Sprintf("no validator registered for task type %q", e.TaskType)
}

// InvalidAmountError is returned by ledger operations given a
// non-positive amount.
type InvalidAmountError struct {
	Amount int
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("ledger amount must be positive, got %d", e.Amount)
}

// InsufficientBalanceError is returned when a debit would take a user's
// balance below zero. The balance is left untouched.
type InsufficientBalanceError struct {
	UserID  string
	Balance int
	Amount  int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("user %s balance %d is insufficient for debit of %d", e.UserID, e.Balance, e.Amount)
}

// UserNotFoundError is returned when a user ID does not exist.
type UserNotFoundError struct {
	UserID string
}

func (e *UserNotFoundError) Error() string {
	return fmt.Sprintf("user not found: %s", e.UserID)
}
