package validate

import (
	"encoding/json"

	"github.com/chrischaps/TaskMan-sub000/internal/domain"
)

// sortListValidator expects `{"sorted": [...]}` in both the stored
// solution and the submission, and requires an exact ordered match.
type sortListValidator struct{}

type sortListSolution struct {
	Sorted []any `json:"sorted"`
}

func (*sortListValidator) TaskType() domain.TaskType { return domain.TypeSortList }

func (*sortListValidator) Check(submitted, stored, _ json.RawMessage) Result {
	var sub, sol sortListSolution
	if err := json.Unmarshal(submitted, &sub); err != nil {
		return incorrect("submission is not a sorted-list solution: %v", err)
	}
	if err := json.Unmarshal(stored, &sol); err != nil {
		return incorrect("stored solution is malformed: %v", err)
	}
	if len(sub.Sorted) != len(sol.Sorted) {
		return incorrect("expected %d elements, got %d", len(sol.Sorted), len(sub.Sorted))
	}
	for i := range sol.Sorted {
		if !equalValues(sub.Sorted[i], sol.Sorted[i]) {
			return incorrect("element %d is out of place", i)
		}
	}
	return Result{Correct: true}
}
