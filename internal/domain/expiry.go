package domain

import "time"

// Claim window bounds: a claim never lasts less than 2 minutes or more
// than an hour, regardless of the author's time estimate.
const (
	MinClaimWindow = 2 * time.Minute
	MaxClaimWindow = time.Hour
)

// typeMultipliers scales the claim window per task type. Types absent
// from the table (including future extensions) use 1.0.
var typeMultipliers = map[TaskType]float64{
	TypeSortList:        1.0,
	TypeArithmetic:      1.0,
	TypeColorMatch:      1.2,
	TypeGroupSeparation: 1.3,
	TypeDefragmentation: 1.5,
}

// ComputeExpiration returns the instant at which a claim accepted at
// now lapses. Pure: no I/O, deterministic given its inputs.
//
// The window is three times the author's estimate, scaled by a
// difficulty multiplier (1.0 at difficulty 1 up to 1.8 at difficulty 5)
// and the per-type multiplier, then clamped to [MinClaimWindow,
// MaxClaimWindow].
func ComputeExpiration(now time.Time, estimatedTimeSeconds, difficulty int, taskType TaskType) time.Time {
	base := float64(estimatedTimeSeconds) * 3

	difficultyMultiplier := 1.0 + float64(difficulty-1)*0.2

	typeMultiplier, ok := typeMultipliers[taskType]
	if !ok {
		typeMultiplier = 1.0
	}

	raw := time.Duration(base * difficultyMultiplier * typeMultiplier * float64(time.Second))
	if raw < MinClaimWindow {
		raw = MinClaimWindow
	}
	if raw > MaxClaimWindow {
		raw = MaxClaimWindow
	}
	return now.Add(raw)
}
