package validate

import (
	"encoding/json"
	"math"

	"github.com/chrischaps/TaskMan-sub000/internal/domain"
)

// defaultColorThreshold is the maximum Euclidean RGB distance accepted
// when the task data does not carry its own threshold.
const defaultColorThreshold = 30.0

// colorMatchValidator expects `{"r": n, "g": n, "b": n}` in both the
// stored solution and the submission. The task data may override the
// match threshold with `{"threshold": n}`.
type colorMatchValidator struct{}

type rgb struct {
	R *float64 `json:"r"`
	G *float64 `json:"g"`
	B *float64 `json:"b"`
}

func (c rgb) complete() bool { return c.R != nil && c.G != nil && c.B != nil }

func (*colorMatchValidator) TaskType() domain.TaskType { return domain.TypeColorMatch }

func (*colorMatchValidator) Check(submitted, stored, data json.RawMessage) Result {
	var sub, sol rgb
	if err := json.Unmarshal(submitted, &sub); err != nil || !sub.complete() {
		return incorrect("submission must carry r, g and b channels")
	}
	if err := json.Unmarshal(stored, &sol); err != nil || !sol.complete() {
		return incorrect("stored solution is malformed")
	}

	threshold := defaultColorThreshold
	if len(data) > 0 {
		var d struct {
			Threshold *float64 `json:"threshold"`
		}
		if err := json.Unmarshal(data, &d); err == nil && d.Threshold != nil && *d.Threshold > 0 {
			threshold = *d.Threshold
		}
	}

	distance := math.Sqrt(
		math.Pow(*sub.R-*sol.R, 2) +
			math.Pow(*sub.G-*sol.G, 2) +
			math.Pow(*sub.B-*sol.B, 2),
	)
	if distance > threshold {
		return incorrect("color is too far from the target")
	}
	return Result{Correct: true}
}
