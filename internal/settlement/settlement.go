// Package settlement turns completed, unpaid missions into ledger income.
//
// Each mission is paid by writing its ledger row and then flipping it to
// transferred. The ledger row is keyed by the mission, so a mission settled
// concurrently from two sessions is paid once and the losing session skips it.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/moneyseed/moneyseed/internal/errs"
	"github.com/moneyseed/moneyseed/internal/family"
	"github.com/moneyseed/moneyseed/internal/kst"
	"github.com/moneyseed/moneyseed/internal/model"
	"github.com/moneyseed/moneyseed/internal/realtime"
	"github.com/shopspring/decimal"
)

const (
	DefaultWindowDays       = 30
	DefaultHighPriorityDays = 3
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
)

// Skip reasons.
const (
	SkipNotFound           = "not_found"
	SkipNotInFamily        = "not_in_family"
	SkipNotCompleted       = "not_completed"
	SkipAlreadyTransferred = "already_transferred"
)

// MissionReader is the read side of the mission store.
type MissionReader interface {
	GetByID(ctx context.Context, id int64) (*model.MissionInstance, error)
	ListPending(ctx context.Context, userIDs []int64, from, to string) ([]model.MissionInstance, error)
}

// Ledger records payouts.
type Ledger interface {
	PayMission(ctx context.Context, m *model.MissionInstance, t *model.AllowanceTransaction, at time.Time) (bool, error)
	CreateBatch(ctx context.Context, b *model.SettlementBatch) error
	FinishBatch(ctx context.Context, id string, processed int, total decimal.Decimal) error
}

// FamilyResolver resolves the children a parent may settle for.
type FamilyResolver interface {
	ParentOf(ctx context.Context, parentID int64) (*family.Context, error)
}

type Options struct {
	Clock            kst.Clock
	WindowDays       int
	HighPriorityDays int
}

type Engine struct {
	missions     MissionReader
	ledger       Ledger
	families     FamilyResolver
	feed         *realtime.Feed
	clock        kst.Clock
	windowDays   int
	highPriority int
	logger       *slog.Logger
}

func NewEngine(missions MissionReader, ledger Ledger, families FamilyResolver, feed *realtime.Feed, logger *slog.Logger, opts Options) *Engine {
	e := &Engine{
		missions:     missions,
		ledger:       ledger,
		families:     families,
		feed:         feed,
		clock:        opts.Clock,
		windowDays:   opts.WindowDays,
		highPriority: opts.HighPriorityDays,
		logger:       logger,
	}
	if e.clock == nil {
		e.clock = kst.SystemClock
	}
	if e.windowDays <= 0 {
		e.windowDays = DefaultWindowDays
	}
	if e.highPriority <= 0 {
		e.highPriority = DefaultHighPriorityDays
	}
	return e
}

// PendingMission is a completed, unpaid mission annotated for review.
type PendingMission struct {
	model.MissionInstance
	ChildName           string   `json:"child_name"`
	DaysSinceCompletion int      `json:"days_since_completion"`
	Priority            Priority `json:"priority"`
}

// GetPendingRewardMissions lists the pending missions of every child of the
// parent dated within the review window, oldest first.
func (e *Engine) GetPendingRewardMissions(ctx context.Context, parentID int64) ([]PendingMission, error) {
	fc, err := e.families.ParentOf(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if len(fc.ChildIDs) == 0 {
		return nil, nil
	}

	today := kst.Today(e.clock)
	from, err := kst.AddDays(today, -e.windowDays)
	if err != nil {
		return nil, err
	}
	rows, err := e.missions.ListPending(ctx, fc.ChildIDs, from, today)
	if err != nil {
		return nil, errs.Unavailable("list pending missions", err)
	}

	pending := make([]PendingMission, 0, len(rows))
	for _, m := range rows {
		days, err := kst.DaysBetween(m.Date, today)
		if err != nil {
			return nil, fmt.Errorf("mission %d: %w", m.ID, err)
		}
		p := PendingMission{
			MissionInstance:     m,
			ChildName:           fc.Names[m.UserID],
			DaysSinceCompletion: days,
			Priority:            PriorityNormal,
		}
		if days >= e.highPriority {
			p.Priority = PriorityHigh
		}
		pending = append(pending, p)
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Date != pending[j].Date {
			return pending[i].Date < pending[j].Date
		}
		return pending[i].ID < pending[j].ID
	})
	return pending, nil
}

// DateGroup collects the pending missions of one date.
type DateGroup struct {
	Date        string                      `json:"date"`
	Missions    []PendingMission            `json:"missions"`
	TotalAmount decimal.Decimal             `json:"total_amount"`
	ByChild     map[string][]PendingMission `json:"by_child"`
}

// GroupMissionsByDate groups missions by date and, within a date, by child name.
func GroupMissionsByDate(missions []PendingMission) map[string]*DateGroup {
	groups := make(map[string]*DateGroup)
	for _, m := range missions {
		g, ok := groups[m.Date]
		if !ok {
			g = &DateGroup{Date: m.Date, TotalAmount: decimal.Zero, ByChild: make(map[string][]PendingMission)}
			groups[m.Date] = g
		}
		g.Missions = append(g.Missions, m)
		g.TotalAmount = g.TotalAmount.Add(m.RewardAmount)
		g.ByChild[m.ChildName] = append(g.ByChild[m.ChildName], m)
	}
	return groups
}

// GetSmartSelection returns the ids of the high-priority missions.
func GetSmartSelection(missions []PendingMission) []int64 {
	var ids []int64
	for _, m := range missions {
		if m.Priority == PriorityHigh {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// Skipped records a requested mission that was not paid and why.
type Skipped struct {
	MissionID int64  `json:"mission_id"`
	Reason    string `json:"reason"`
}

type Result struct {
	BatchID        string          `json:"batch_id"`
	RequestedCount int             `json:"requested_count"`
	ProcessedCount int             `json:"processed_count"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Skipped        []Skipped       `json:"skipped,omitempty"`
}

// ProcessBatchReward pays the requested missions. Missions that are no longer
// payable are skipped and the rest still settle. A storage failure stops the
// batch; the partial result is returned together with the error, and missions
// paid before the failure stay paid.
func (e *Engine) ProcessBatchReward(ctx context.Context, parentID int64, missionIDs []int64, note string) (*Result, error) {
	ids := dedupe(missionIDs)
	if len(ids) == 0 {
		return nil, errs.Invalid("mission_ids", "at least one mission is required")
	}
	fc, err := e.families.ParentOf(ctx, parentID)
	if err != nil {
		return nil, err
	}

	res := &Result{
		BatchID:        uuid.NewString(),
		RequestedCount: len(ids),
		TotalAmount:    decimal.Zero,
	}
	err = e.ledger.CreateBatch(ctx, &model.SettlementBatch{
		ID:             res.BatchID,
		ParentID:       parentID,
		Note:           note,
		RequestedCount: len(ids),
		TotalAmount:    decimal.Zero,
	})
	if err != nil {
		return nil, errs.Unavailable("create settlement batch", err)
	}

	applyErr := e.apply(ctx, fc, ids, note, res)

	if err := e.ledger.FinishBatch(ctx, res.BatchID, res.ProcessedCount, res.TotalAmount); err != nil && applyErr == nil {
		applyErr = errs.Unavailable("finish settlement batch", err)
	}

	e.logger.Info("settlement applied",
		"batch_id", res.BatchID,
		"parent_id", parentID,
		"requested", res.RequestedCount,
		"processed", res.ProcessedCount,
		"amount", res.TotalAmount.String(),
		"skipped", len(res.Skipped),
	)
	if applyErr != nil {
		return res, applyErr
	}
	return res, nil
}

func (e *Engine) apply(ctx context.Context, fc *family.Context, ids []int64, note string, res *Result) error {
	for _, id := range ids {
		m, err := e.missions.GetByID(ctx, id)
		if err != nil {
			return errs.Unavailable("get mission", err)
		}
		switch {
		case m == nil:
			res.skip(id, SkipNotFound)
			continue
		case !fc.HasChild(m.UserID):
			res.skip(id, SkipNotInFamily)
			continue
		case m.IsTransferred:
			res.skip(id, SkipAlreadyTransferred)
			continue
		case !m.IsCompleted:
			res.skip(id, SkipNotCompleted)
			continue
		}

		now := e.clock()
		txn := &model.AllowanceTransaction{
			UserID:      m.UserID,
			Amount:      m.RewardAmount,
			Type:        model.TransactionIncome,
			Category:    model.CategoryMissionReward,
			Description: describe(m, note),
			Date:        kst.FormatDate(now),
			SourceRef:   fmt.Sprintf("mission:%d", m.ID),
			BatchID:     res.BatchID,
		}
		paid, err := e.ledger.PayMission(ctx, m, txn, now)
		if err != nil {
			return errs.Unavailable("pay mission", err)
		}
		if !paid {
			res.skip(id, SkipAlreadyTransferred)
			continue
		}

		res.ProcessedCount++
		res.TotalAmount = res.TotalAmount.Add(m.RewardAmount)

		m.IsTransferred = true
		m.TransferredAt = &now
		e.feed.Publish(realtime.Change{Table: realtime.TableMissions, Op: realtime.OpUpdate, UserID: m.UserID, ID: m.ID, Row: m})
		e.feed.Publish(realtime.Change{Table: realtime.TableTransactions, Op: realtime.OpInsert, UserID: m.UserID, Row: txn})
	}
	return nil
}

// ProcessSingleReward settles one mission as a batch of one.
func (e *Engine) ProcessSingleReward(ctx context.Context, parentID, missionID int64, note string) (*Result, error) {
	return e.ProcessBatchReward(ctx, parentID, []int64{missionID}, note)
}

// ChildSummary totals the pending rewards of one child.
type ChildSummary struct {
	ChildID           int64           `json:"child_id"`
	Name              string          `json:"name"`
	PendingCount      int             `json:"pending_count"`
	PendingAmount     decimal.Decimal `json:"pending_amount"`
	HighPriorityCount int             `json:"high_priority_count"`
}

type Summary struct {
	PendingCount      int             `json:"pending_count"`
	PendingAmount     decimal.Decimal `json:"pending_amount"`
	HighPriorityCount int             `json:"high_priority_count"`
	Children          []ChildSummary  `json:"children"`
}

// Summarize totals pending missions overall and per child, in child order.
func Summarize(missions []PendingMission, childIDs []int64, names map[int64]string) *Summary {
	s := &Summary{PendingAmount: decimal.Zero}
	byChild := make(map[int64]*ChildSummary, len(childIDs))
	for _, id := range childIDs {
		s.Children = append(s.Children, ChildSummary{ChildID: id, Name: names[id], PendingAmount: decimal.Zero})
	}
	for i := range s.Children {
		byChild[s.Children[i].ChildID] = &s.Children[i]
	}

	for _, m := range missions {
		s.PendingCount++
		s.PendingAmount = s.PendingAmount.Add(m.RewardAmount)
		high := m.Priority == PriorityHigh
		if high {
			s.HighPriorityCount++
		}
		if c, ok := byChild[m.UserID]; ok {
			c.PendingCount++
			c.PendingAmount = c.PendingAmount.Add(m.RewardAmount)
			if high {
				c.HighPriorityCount++
			}
		}
	}
	return s
}

// Summary reports the parent's pending totals.
func (e *Engine) Summary(ctx context.Context, parentID int64) (*Summary, error) {
	fc, err := e.families.ParentOf(ctx, parentID)
	if err != nil {
		return nil, err
	}
	missions, err := e.GetPendingRewardMissions(ctx, parentID)
	if err != nil {
		return nil, err
	}
	return Summarize(missions, fc.ChildIDs, fc.Names), nil
}

func (r *Result) skip(id int64, reason string) {
	r.Skipped = append(r.Skipped, Skipped{MissionID: id, Reason: reason})
}

func describe(m *model.MissionInstance, note string) string {
	if note == "" {
		return m.Title
	}
	return m.Title + " - " + note
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
