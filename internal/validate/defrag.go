package validate

import (
	"encoding/json"

	"github.com/chrischaps/TaskMan-sub000/internal/domain"
)

// defragmentationValidator expects `{"grid": [[...]]}` in the stored
// solution and the submission, and the starting layout under the same
// key in the task data. Zero cells are free space. The submission must
// conserve the occupied cells of the starting grid (nothing invented,
// nothing dropped) and then match the stored solution cell by cell.
type defragmentationValidator struct{}

type gridSolution struct {
	Grid [][]int `json:"grid"`
}

func (*defragmentationValidator) TaskType() domain.TaskType { return domain.TypeDefragmentation }

func (*defragmentationValidator) Check(submitted, stored, data json.RawMessage) Result {
	var sub, sol gridSolution
	if err := json.Unmarshal(submitted, &sub); err != nil || len(sub.Grid) == 0 {
		return incorrect("submission must carry a non-empty grid")
	}
	if err := json.Unmarshal(stored, &sol); err != nil || len(sol.Grid) == 0 {
		return incorrect("stored solution is malformed")
	}

	if !sameDimensions(sub.Grid, sol.Grid) {
		return incorrect("grid dimensions do not match")
	}

	// Conservation check against the starting layout, when available.
	var start gridSolution
	if err := json.Unmarshal(data, &start); err == nil && len(start.Grid) > 0 {
		if !sameCellMultiset(sub.Grid, start.Grid) {
			return incorrect("grid does not conserve the original blocks")
		}
	}

	for y := range sol.Grid {
		for x := range sol.Grid[y] {
			if sub.Grid[y][x] != sol.Grid[y][x] {
				return incorrect("cell (%d,%d) is misplaced", x, y)
			}
		}
	}
	return Result{Correct: true}
}

func sameDimensions(a, b [][]int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
	}
	return true
}

func sameCellMultiset(a, b [][]int) bool {
	counts := make(map[int]int)
	for _, row := range a {
		for _, cell := range row {
			counts[cell]++
		}
	}
	for _, row := range b {
		for _, cell := range row {
			counts[cell]--
		}
	}
	for _, n := range counts {
		if n != 0 {
			return false
		}
	}
	return true
}
