// Package validate checks submitted solutions against stored ones, one
// strategy per task type. Payloads are opaque JSON at the boundary;
// only the type's validator downcasts them to a concrete shape.
// Validators never mutate their inputs and never return errors to the
// caller: anything unrecognized or malformed fails closed.
package validate

import (
	"encoding/json"
	"fmt"

	"github.com/chrischaps/TaskMan-sub000/internal/domain"
)

// Result is the outcome of checking one submission.
type Result struct {
	Correct bool   `json:"correct"`
	Details string `json:"details,omitempty"`
}

func incorrect(format string, args ...any) Result {
	return Result{Correct: false, Details: fmt.Sprintf(format, args...)}
}

// Validator checks a submission for a single task type.
type Validator interface {
	TaskType() domain.TaskType
	Check(submitted, stored, data json.RawMessage) Result
}

// Registry holds the closed set of validators, keyed by task type.
// The set is fixed at construction; adding a task type means adding a
// Validator implementation and registering it in NewRegistry.
type Registry struct {
	validators map[domain.TaskType]Validator
}

// NewRegistry builds the registry with every supported task type.
func NewRegistry() *Registry {
	r := &Registry{validators: make(map[domain.TaskType]Validator)}
	for _, v := range []Validator{
		&sortListValidator{},
		&arithmeticValidator{},
		&colorMatchValidator{},
		&groupSeparationValidator{},
		&defragmentationValidator{},
	} {
		r.validators[v.TaskType()] = v
	}
	return r
}

// Known reports whether a validator exists for the given task type.
func (r *Registry) Known(taskType domain.TaskType) bool {
	_, ok := r.validators[taskType]
	return ok
}

// Validate dispatches to the task type's validator. Unknown types fail
// closed with a diagnostic rather than an error.
func (r *Registry) Validate(taskType domain.TaskType, submitted, stored, data json.RawMessage) Result {
	v, ok := r.validators[taskType]
	if !ok {
		return incorrect("unrecognized task type %q", taskType)
	}
	return v.Check(submitted, stored, data)
}

// canonical renders a decoded JSON value into a stable comparison key.
// encoding/json sorts map keys on marshal, so equal values always
// produce equal strings regardless of input formatting.
func canonical(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("!unencodable:%v", v)
	}
	return string(b)
}

func equalValues(a, b any) bool {
	return canonical(a) == canonical(b)
}
