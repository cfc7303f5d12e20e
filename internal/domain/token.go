package domain

import "time"

// Ledger reasons used by the core and its callers.
const (
	ReasonTaskCompletion = "task_completion"
	ReasonListingFee     = "listing_fee"
	ReasonSignupGrant    = "signup_grant"
)

// TokenTransaction is one append-only ledger entry. Balance is the
// user's balance after this entry was applied; the ledger is the
// source of truth for audit, the user's live balance is a cached
// projection of the latest entry.
type TokenTransaction struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Amount    int       `json:"amount"`
	Balance   int       `json:"balance"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// CompositePremium prices a composite task from its component costs:
// floor(sum × 1.15). Integer arithmetic avoids float truncation on
// exact multiples.
func CompositePremium(costs []int) int {
	sum := 0
	for _, c := range costs {
		sum += c
	}
	return sum * 115 / 100
}
