package validate

import (
	"encoding/json"
	"math"

	"github.com/chrischaps/TaskMan-sub000/internal/domain"
)

// answerTolerance absorbs float noise from clients that evaluate
// expressions in floating point.
const answerTolerance = 1e-6

// arithmeticValidator expects `{"answer": <number>}` in both the
// stored solution and the submission.
type arithmeticValidator struct{}

type arithmeticSolution struct {
	Answer *float64 `json:"answer"`
}

func (*arithmeticValidator) TaskType() domain.TaskType { return domain.TypeArithmetic }

func (*arithmeticValidator) Check(submitted, stored, _ json.RawMessage) Result {
	var sub, sol arithmeticSolution
	if err := json.Unmarshal(submitted, &sub); err != nil || sub.Answer == nil {
		return incorrect("submission must carry a numeric \"answer\"")
	}
	if err := json.Unmarshal(stored, &sol); err != nil || sol.Answer == nil {
		return incorrect("stored solution is malformed")
	}
	if math.Abs(*sub.Answer-*sol.Answer) > answerTolerance {
		return incorrect("answer is not correct")
	}
	return Result{Correct: true}
}
