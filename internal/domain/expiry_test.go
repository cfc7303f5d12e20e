package domain_test

import (
	"testing"
	"time"

	"github.com/chrischaps/TaskMan-sub000/internal/domain"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestComputeExpiration_Formula(t *testing.T) {
	tests := []struct {
		name       string
		estSeconds int
		difficulty int
		taskType   domain.TaskType
		want       time.Duration
	}{
		{"baseline sort at difficulty 1", 100, 1, domain.TypeSortList, 300 * time.Second},
		{"difficulty scales linearly", 100, 3, domain.TypeSortList, 420 * time.Second},
		{"difficulty 5 hits 1.8x", 100, 5, domain.TypeSortList, 540 * time.Second},
		{"color match gets 1.2x", 100, 1, domain.TypeColorMatch, 360 * time.Second},
		{"group separation gets 1.3x", 100, 1, domain.TypeGroupSeparation, 390 * time.Second},
		{"defragmentation gets 1.5x", 100, 1, domain.TypeDefragmentation, 450 * time.Second},
		{"unknown type defaults to 1.0", 100, 1, domain.TaskType("mystery"), 300 * time.Second},
		{"tiny estimate clamps to 2m", 5, 1, domain.TypeArithmetic, 2 * time.Minute},
		{"huge estimate clamps to 1h", 10000, 5, domain.TypeDefragmentation, time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := domain.ComputeExpiration(epoch, tt.estSeconds, tt.difficulty, tt.taskType)
			if got.Sub(epoch) != tt.want {
				t.Errorf("window = %s, want %s", got.Sub(epoch), tt.want)
			}
		})
	}
}

func TestComputeExpiration_Bounds(t *testing.T) {
	types := []domain.TaskType{
		domain.TypeSortList, domain.TypeColorMatch, domain.TypeArithmetic,
		domain.TypeGroupSeparation, domain.TypeDefragmentation,
	}
	for _, typ := range types {
		for _, est := range []int{1, 30, 120, 600, 7200} {
			for diff := 1; diff <= 5; diff++ {
				window := domain.ComputeExpiration(epoch, est, diff, typ).Sub(epoch)
				if window < domain.MinClaimWindow || window > domain.MaxClaimWindow {
					t.Errorf("ComputeExpiration(%s, est=%d, diff=%d) window %s outside [%s, %s]",
						typ, est, diff, window, domain.MinClaimWindow, domain.MaxClaimWindow)
				}
			}
		}
	}
}

func TestComputeExpiration_MonotonicInDifficulty(t *testing.T) {
	for _, est := range []int{60, 300, 900} {
		prev := domain.ComputeExpiration(epoch, est, 1, domain.TypeSortList)
		for diff := 2; diff <= 5; diff++ {
			next := domain.ComputeExpiration(epoch, est, diff, domain.TypeSortList)
			if next.Before(prev) {
				t.Errorf("est=%d: expiration decreased from difficulty %d to %d", est, diff-1, diff)
			}
			prev = next
		}
	}
}

func TestComputeExpiration_Deterministic(t *testing.T) {
	a := domain.ComputeExpiration(epoch, 240, 3, domain.TypeDefragmentation)
	b := domain.ComputeExpiration(epoch, 240, 3, domain.TypeDefragmentation)
	if !a.Equal(b) {
		t.Errorf("same inputs produced %s and %s", a, b)
	}
}
