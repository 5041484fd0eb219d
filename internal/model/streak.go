package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type StreakSettings struct {
	UserID            int64           `json:"user_id"`
	StreakTargetDays  int             `json:"streak_target_days"`
	StreakBonusAmount decimal.Decimal `json:"streak_bonus_amount"`
	StreakRepeat      bool            `json:"streak_repeat"`
	StreakEnabled     bool            `json:"streak_enabled"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// DefaultStreakSettings applies when a parent has not configured a child yet.
func DefaultStreakSettings(userID int64) StreakSettings {
	return StreakSettings{
		UserID:            userID,
		StreakTargetDays:  7,
		StreakBonusAmount: decimal.Zero,
		StreakRepeat:      true,
		StreakEnabled:     true,
	}
}

type UserStreakProgress struct {
	UserID                 int64           `json:"user_id"`
	StreakCount            int             `json:"streak_count"`
	StreakStartedOn        string          `json:"streak_started_on,omitempty"`
	LastCompletionDate     string          `json:"last_completion_date,omitempty"`
	BestStreak             int             `json:"best_streak"`
	TotalMissionsCompleted int             `json:"total_missions_completed"`
	TotalStreakBonusEarned decimal.Decimal `json:"total_streak_bonus_earned"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

type RewardStatus string

const (
	RewardPending RewardStatus = "pending"
	RewardClaimed RewardStatus = "claimed"
)

const RewardKindStreakBonus = "streak_bonus"

// RewardHistory is the audit record written alongside every streak bonus.
// ClaimKey identifies the milestone so it can be paid at most once.
type RewardHistory struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	Kind          string          `json:"kind"`
	ClaimKey      string          `json:"claim_key"`
	StreakCount   int             `json:"streak_count"`
	Amount        decimal.Decimal `json:"amount"`
	Status        RewardStatus    `json:"status"`
	TransactionID *int64          `json:"transaction_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	ClaimedAt     *time.Time      `json:"claimed_at,omitempty"`
}
