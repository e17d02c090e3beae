package store

import (
	"time"

	"lifeblocks/api/internal/plans"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type Subscription struct {
	Status     string `json:"status"`
	Plan       string `json:"plan"`
	CustomerID string `json:"customerId,omitempty"`
}

type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Role         string
	Subscription Subscription
	StorageUsed  int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BoardSummary is a board row without its blocks.
type BoardSummary struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"ownerId"`
	Title      string    `json:"title"`
	Role       string    `json:"role"`
	BlockCount int       `json:"blockCount"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type Member struct {
	BoardID     string    `json:"boardId"`
	UserID      string    `json:"userId"`
	Role        string    `json:"role"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Account is the view of the user the plan limits are checked against.
func (u User) Account() plans.Account {
	return plans.Account{
		Admin:              u.Role == RoleAdmin,
		Tier:               plans.Tier(u.Subscription.Plan),
		SubscriptionActive: plans.ActiveStatus(u.Subscription.Status),
		StorageUsed:        u.StorageUsed,
	}
}
