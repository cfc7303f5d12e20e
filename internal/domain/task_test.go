package domain_test

import (
	"testing"
	"time"

	"github.com/chrischaps/TaskMan-sub000/internal/domain"
)

func TestStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status domain.Status
		want   bool
	}{
		{domain.StatusAvailable, false},
		{domain.StatusInProgress, false},
		{domain.StatusCompleted, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.want {
				t.Errorf("IsTerminal(%q) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestClaimLapsed(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	deadline := now.Add(-time.Second)
	future := now.Add(time.Minute)
	userID := "user-1"

	tests := []struct {
		name string
		task domain.Task
		want bool
	}{
		{"in progress past deadline", domain.Task{Status: domain.StatusInProgress, AcceptedByID: &userID, ExpiresAt: &deadline}, true},
		{"in progress exactly at deadline", domain.Task{Status: domain.StatusInProgress, AcceptedByID: &userID, ExpiresAt: &now}, true},
		{"in progress before deadline", domain.Task{Status: domain.StatusInProgress, AcceptedByID: &userID, ExpiresAt: &future}, false},
		{"available never lapses", domain.Task{Status: domain.StatusAvailable}, false},
		{"completed never lapses", domain.Task{Status: domain.StatusCompleted, ExpiresAt: &deadline}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.task.ClaimLapsed(now); got != tt.want {
				t.Errorf("ClaimLapsed = %v, want %v", got, tt.want)
			}
		})
	}
}
