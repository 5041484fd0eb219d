package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type MissionType string

const (
	MissionDaily MissionType = "daily"
	MissionEvent MissionType = "event"
)

func (t MissionType) Valid() bool {
	return t == MissionDaily || t == MissionEvent
}

type MissionTemplate struct {
	ID               int64           `json:"id"`
	OwnerUserID      int64           `json:"owner_user_id"`
	AssigneeUserID   *int64          `json:"assignee_user_id"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	RewardAmount     decimal.Decimal `json:"reward_amount"`
	Category         string          `json:"category"`
	MissionType      MissionType     `json:"mission_type"`
	RecurringPattern string          `json:"recurring_pattern"`
	IsActive         bool            `json:"is_active"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// MissionInstance is one dated occurrence of a chore. Date is the KST
// calendar day in ISO form. IsTransferred implies IsCompleted.
type MissionInstance struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	TemplateID    *int64          `json:"template_id"`
	Date          string          `json:"date"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	RewardAmount  decimal.Decimal `json:"reward_amount"`
	Category      string          `json:"category"`
	MissionType   MissionType     `json:"mission_type"`
	IsCompleted   bool            `json:"is_completed"`
	CompletedAt   *time.Time      `json:"completed_at"`
	IsTransferred bool            `json:"is_transferred"`
	TransferredAt *time.Time      `json:"transferred_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Pending reports whether the mission is completed but not yet paid.
func (m *MissionInstance) Pending() bool {
	return m.IsCompleted && !m.IsTransferred
}
