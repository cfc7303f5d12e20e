package validate

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/chrischaps/TaskMan-sub000/internal/domain"
)

// groupSeparationValidator expects `{"groups": [[...], ...]}` in both
// the stored solution and the submission. Neither the order of groups
// nor the order of elements within a group matters; each group is
// compared as a multiset.
type groupSeparationValidator struct{}

type groupSolution struct {
	Groups [][]any `json:"groups"`
}

func (*groupSeparationValidator) TaskType() domain.TaskType { return domain.TypeGroupSeparation }

func (*groupSeparationValidator) Check(submitted, stored, _ json.RawMessage) Result {
	var sub, sol groupSolution
	if err := json.Unmarshal(submitted, &sub); err != nil {
		return incorrect("submission is not a group-separation solution: %v", err)
	}
	if err := json.Unmarshal(stored, &sol); err != nil {
		return incorrect("stored solution is malformed: %v", err)
	}
	if len(sub.Groups) != len(sol.Groups) {
		return incorrect("expected %d groups, got %d", len(sol.Groups), len(sub.Groups))
	}
	subKeys := groupFingerprints(sub.Groups)
	solKeys := groupFingerprints(sol.Groups)
	for i := range solKeys {
		if subKeys[i] != solKeys[i] {
			return incorrect("group contents do not match")
		}
	}
	return Result{Correct: true}
}

// groupFingerprints reduces each group to an order-independent key and
// sorts the keys, making the whole structure order-independent.
func groupFingerprints(groups [][]any) []string {
	keys := make([]string, 0, len(groups))
	for _, group := range groups {
		members := make([]string, 0, len(group))
		for _, v := range group {
			members = append(members, canonical(v))
		}
		sort.Strings(members)
		keys = append(keys, strings.Join(members, "\x1f"))
	}
	sort.Strings(keys)
	return keys
}
