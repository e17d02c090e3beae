// Package plans is the pricing table and the limits derived from it.
package plans

import (
	"errors"
	"strings"
)

type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
	TierTeam Tier = "team"
)

const (
	mb = int64(1 << 20)
	gb = int64(1 << 30)
)

var (
	ErrStorageLimit = errors.New("storage limit reached")
	ErrBoardLimit   = errors.New("board limit reached")
)

// Plan limits. Zero means unlimited.
type Plan struct {
	Tier         Tier   `json:"tier"`
	Name         string `json:"name"`
	StorageLimit int64  `json:"storageLimit"`
	BoardLimit   int    `json:"boardLimit"`
	TeamBoards   bool   `json:"teamBoards"`
}

var table = map[Tier]Plan{
	TierFree: {Tier: TierFree, Name: "Free", StorageLimit: 100 * mb, BoardLimit: 3},
	TierPro:  {Tier: TierPro, Name: "Pro", StorageLimit: 5 * gb},
	TierTeam: {Tier: TierTeam, Name: "Team", StorageLimit: 20 * gb, TeamBoards: true},
}

// Account is what the limits are checked against.
type Account struct {
	Admin              bool
	Tier               Tier
	SubscriptionActive bool
	StorageUsed        int64
}

// For returns the plan for tier, falling back to free.
func For(tier Tier) Plan {
	if p, ok := table[Tier(strings.ToLower(string(tier)))]; ok {
		return p
	}
	return table[TierFree]
}

// Effective is the plan an account is entitled to right now. A lapsed
// subscription drops back to free.
func Effective(a Account) Plan {
	if !a.SubscriptionActive {
		return table[TierFree]
	}
	return For(a.Tier)
}

// ActiveStatus reports whether a billing status grants the paid plan.
func ActiveStatus(status string) bool {
	switch status {
	case "active", "trialing", "past_due":
		return true
	}
	return false
}

func CanStore(a Account, additional int64) error {
	if a.Admin {
		return nil
	}
	limit := Effective(a).StorageLimit
	if limit > 0 && a.StorageUsed+additional > limit {
		return ErrStorageLimit
	}
	return nil
}

// CanCreateBoard checks whether one more board fits next to count existing.
func CanCreateBoard(a Account, count int) error {
	if a.Admin {
		return nil
	}
	limit := Effective(a).BoardLimit
	if limit > 0 && count >= limit {
		return ErrBoardLimit
	}
	return nil
}
