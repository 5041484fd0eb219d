package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionIncome  TransactionType = "income"
	TransactionExpense TransactionType = "expense"
)

// Ledger categories written by the settlement and streak paths.
const (
	CategoryMissionReward = "mission reward"
	CategoryStreakBonus   = "streak bonus"
)

// AllowanceTransaction is an append-only ledger row. Amount is always
// positive; Type carries the sign.
type AllowanceTransaction struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Type        TransactionType `json:"type"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
	SourceRef   string          `json:"source_ref,omitempty"`
	BatchID     string          `json:"batch_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Signed returns the amount with the sign implied by the transaction type.
func (t *AllowanceTransaction) Signed() decimal.Decimal {
	if t.Type == TransactionExpense {
		return t.Amount.Neg()
	}
	return t.Amount
}

type SettlementBatch struct {
	ID             string          `json:"id"`
	ParentID       int64           `json:"parent_id"`
	Note           string          `json:"note"`
	RequestedCount int             `json:"requested_count"`
	ProcessedCount int             `json:"processed_count"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	CreatedAt      time.Time       `json:"created_at"`
}

type Balance struct {
	UserID       int64           `json:"user_id"`
	TotalIncome  decimal.Decimal `json:"total_income"`
	TotalExpense decimal.Decimal `json:"total_expense"`
	Balance      decimal.Decimal `json:"balance"`
}
