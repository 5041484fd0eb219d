// Package allowance exposes a child's ledger: balance, history, expenses
// and monthly statements.
package allowance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/moneyseed/moneyseed/internal/errs"
	"github.com/moneyseed/moneyseed/internal/kst"
	"github.com/moneyseed/moneyseed/internal/model"
	"github.com/moneyseed/moneyseed/internal/realtime"
	"github.com/moneyseed/moneyseed/internal/store"
	"github.com/shopspring/decimal"
)

const DefaultExpenseCategory = "other"

type Service struct {
	profiles *store.ProfileStore
	txns     *store.TransactionStore
	feed     *realtime.Feed
	clock    kst.Clock
	logger   *slog.Logger
}

func NewService(profiles *store.ProfileStore, txns *store.TransactionStore, feed *realtime.Feed, clock kst.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = kst.SystemClock
	}
	return &Service{profiles: profiles, txns: txns, feed: feed, clock: clock, logger: logger}
}

func (s *Service) Balance(ctx context.Context, userID int64) (*model.Balance, error) {
	b, err := s.txns.Balance(ctx, userID)
	if err != nil {
		return nil, errs.Unavailable("compute balance", err)
	}
	return b, nil
}

// ListTransactions returns ledger rows dated within [from, to], newest first.
// Either bound may be empty.
func (s *Service) ListTransactions(ctx context.Context, userID int64, from, to string) ([]model.AllowanceTransaction, error) {
	if from != "" && !kst.ValidDate(from) {
		return nil, errs.Invalid("from", "must be YYYY-MM-DD")
	}
	if to != "" && !kst.ValidDate(to) {
		return nil, errs.Invalid("to", "must be YYYY-MM-DD")
	}
	txns, err := s.txns.ListByUser(ctx, userID, from, to)
	if err != nil {
		return nil, errs.Unavailable("list transactions", err)
	}
	return txns, nil
}

type Expense struct {
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
}

func (e *Expense) validate() error {
	e.Category = strings.TrimSpace(e.Category)
	e.Description = strings.TrimSpace(e.Description)
	if !e.Amount.IsPositive() {
		return errs.Invalid("amount", "must be greater than zero")
	}
	if e.Date != "" && !kst.ValidDate(e.Date) {
		return errs.Invalid("date", "must be YYYY-MM-DD")
	}
	if e.Category == "" {
		e.Category = Categorize(e.Description)
	}
	return nil
}

// AddExpense records spending by a child. The date defaults to today.
func (s *Service) AddExpense(ctx context.Context, userID int64, e Expense) (*model.AllowanceTransaction, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	p, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		return nil, errs.Unavailable("get profile", err)
	}
	if p == nil {
		return nil, errs.NotFound("profile", userID)
	}
	if p.Role != model.RoleChild {
		return nil, fmt.Errorf("only children record expenses: %w", errs.ErrForbidden)
	}
	if e.Date == "" {
		e.Date = kst.Today(s.clock)
	}

	t, err := s.txns.Create(ctx, &model.AllowanceTransaction{
		UserID:      userID,
		Amount:      e.Amount,
		Type:        model.TransactionExpense,
		Category:    e.Category,
		Description: e.Description,
		Date:        e.Date,
	})
	if err != nil {
		return nil, errs.Unavailable("create expense", err)
	}
	s.feed.Publish(realtime.Change{Table: realtime.TableTransactions, Op: realtime.OpInsert, UserID: userID, ID: t.ID, Row: t})
	s.logger.Info("expense recorded", "user_id", userID, "amount", t.Amount.String(), "category", t.Category)
	return t, nil
}

// CategoryTotal is the income or spending of one category within a month.
type CategoryTotal struct {
	Category string                `json:"category"`
	Type     model.TransactionType `json:"type"`
	Amount   decimal.Decimal       `json:"amount"`
	Count    int                   `json:"count"`
}

type MonthSummary struct {
	Month      string          `json:"month"`
	From       string          `json:"from"`
	To         string          `json:"to"`
	Income     decimal.Decimal `json:"income"`
	Expense    decimal.Decimal `json:"expense"`
	Net        decimal.Decimal `json:"net"`
	Count      int             `json:"count"`
	Categories []CategoryTotal `json:"categories"`
}

// MonthlySummary totals the ledger for a month given as YYYY-MM. An empty
// month means the current one.
func (s *Service) MonthlySummary(ctx context.Context, userID int64, month string) (*MonthSummary, error) {
	if month == "" {
		month = kst.Today(s.clock)[:7]
	}
	from, to, err := kst.MonthRange(month + "-01")
	if err != nil {
		return nil, errs.Invalid("month", "must be YYYY-MM")
	}
	txns, err := s.txns.ListByUser(ctx, userID, from, to)
	if err != nil {
		return nil, errs.Unavailable("list transactions", err)
	}
	return summarize(month, from, to, txns), nil
}

func summarize(month, from, to string, txns []model.AllowanceTransaction) *MonthSummary {
	sum := &MonthSummary{
		Month:   month,
		From:    from,
		To:      to,
		Income:  decimal.Zero,
		Expense: decimal.Zero,
	}
	type key struct {
		category string
		typ      model.TransactionType
	}
	totals := make(map[key]*CategoryTotal)
	for _, t := range txns {
		sum.Count++
		if t.Type == model.TransactionExpense {
			sum.Expense = sum.Expense.Add(t.Amount)
		} else {
			sum.Income = sum.Income.Add(t.Amount)
		}
		k := key{t.Category, t.Type}
		ct, ok := totals[k]
		if !ok {
			ct = &CategoryTotal{Category: t.Category, Type: t.Type, Amount: decimal.Zero}
			totals[k] = ct
		}
		ct.Amount = ct.Amount.Add(t.Amount)
		ct.Count++
	}
	sum.Net = sum.Income.Sub(sum.Expense)

	sum.Categories = make([]CategoryTotal, 0, len(totals))
	for _, ct := range totals {
		sum.Categories = append(sum.Categories, *ct)
	}
	sort.Slice(sum.Categories, func(i, j int) bool {
		a, b := sum.Categories[i], sum.Categories[j]
		if a.Type != b.Type {
			return a.Type == model.TransactionIncome
		}
		if !a.Amount.Equal(b.Amount) {
			return a.Amount.GreaterThan(b.Amount)
		}
		return a.Category < b.Category
	})
	return sum
}
