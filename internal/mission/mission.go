// Package mission manages dated mission instances and the templates that
// spawn them. A mission becomes immutable once its reward is transferred.
package mission

import (
	"context"
	"log/slog"
	"strings"

	"github.com/moneyseed/moneyseed/internal/errs"
	"github.com/moneyseed/moneyseed/internal/kst"
	"github.com/moneyseed/moneyseed/internal/model"
	"github.com/moneyseed/moneyseed/internal/realtime"
	"github.com/moneyseed/moneyseed/internal/store"
	"github.com/moneyseed/moneyseed/internal/streak"
	"github.com/shopspring/decimal"
)

type Service struct {
	missions *store.MissionStore
	streaks  *streak.Service
	feed     *realtime.Feed
	clock    kst.Clock
	logger   *slog.Logger
}

func NewService(missions *store.MissionStore, streaks *streak.Service, feed *realtime.Feed, clock kst.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = kst.SystemClock
	}
	return &Service{
		missions: missions,
		streaks:  streaks,
		feed:     feed,
		clock:    clock,
		logger:   logger,
	}
}

// NewInstance carries the fields of a mission to create.
type NewInstance struct {
	UserID       int64             `json:"user_id"`
	TemplateID   *int64            `json:"template_id"`
	Date         string            `json:"date"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	RewardAmount decimal.Decimal   `json:"reward_amount"`
	Category     string            `json:"category"`
	MissionType  model.MissionType `json:"mission_type"`
}

func (n *NewInstance) validate() error {
	n.Title = strings.TrimSpace(n.Title)
	if n.UserID <= 0 {
		return errs.Invalid("user_id", "is required")
	}
	if n.Title == "" {
		return errs.Invalid("title", "is required")
	}
	if !n.RewardAmount.IsPositive() {
		return errs.Invalid("reward_amount", "must be greater than zero")
	}
	if !kst.ValidDate(n.Date) {
		return errs.Invalid("date", "must be YYYY-MM-DD")
	}
	if !n.MissionType.Valid() {
		return errs.Invalid("mission_type", "must be daily or event")
	}
	return nil
}

// Patch lists the editable fields of a mission; nil fields are left alone.
type Patch struct {
	Date         *string            `json:"date"`
	Title        *string            `json:"title"`
	Description  *string            `json:"description"`
	RewardAmount *decimal.Decimal   `json:"reward_amount"`
	Category     *string            `json:"category"`
	MissionType  *model.MissionType `json:"mission_type"`
}

// CompletionResult reports the completed mission and, when completing it
// finished the user's daily missions for today, the streak outcome.
type CompletionResult struct {
	Mission *model.MissionInstance `json:"mission"`
	Streak  *streak.Result         `json:"streak,omitempty"`
}

func (s *Service) publish(op realtime.Op, m *model.MissionInstance) {
	s.feed.Publish(realtime.Change{Table: realtime.TableMissions, Op: op, UserID: m.UserID, ID: m.ID, Row: m})
}

// Get returns a mission or ErrNotFound.
func (s *Service) Get(ctx context.Context, id int64) (*model.MissionInstance, error) {
	m, err := s.missions.GetByID(ctx, id)
	if err != nil {
		return nil, errs.Unavailable("get mission", err)
	}
	if m == nil {
		return nil, errs.NotFound("mission", id)
	}
	return m, nil
}

func (s *Service) ListForDay(ctx context.Context, userID int64, date string) ([]model.MissionInstance, error) {
	if !kst.ValidDate(date) {
		return nil, errs.Invalid("date", "must be YYYY-MM-DD")
	}
	missions, err := s.missions.ListByUserAndDate(ctx, userID, date)
	if err != nil {
		return nil, errs.Unavailable("list missions", err)
	}
	return missions, nil
}

// CreateInstance validates and stores a new mission. Duplicates are allowed.
func (s *Service) CreateInstance(ctx context.Context, n NewInstance) (*model.MissionInstance, error) {
	if err := n.validate(); err != nil {
		return nil, err
	}
	m, err := s.missions.Create(ctx, &model.MissionInstance{
		UserID:       n.UserID,
		TemplateID:   n.TemplateID,
		Date:         n.Date,
		Title:        n.Title,
		Description:  n.Description,
		RewardAmount: n.RewardAmount,
		Category:     n.Category,
		MissionType:  n.MissionType,
	})
	if err != nil {
		return nil, errs.Unavailable("create mission", err)
	}
	s.publish(realtime.OpInsert, m)
	return m, nil
}

// Complete marks a mission done. Completing a completed mission is a no-op;
// completing a transferred one fails with ErrAlreadyTransferred. When the
// user's daily missions for today are all done, the streak advances.
func (s *Service) Complete(ctx context.Context, id int64) (*CompletionResult, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.IsTransferred {
		return nil, errs.ErrAlreadyTransferred
	}

	if !m.IsCompleted {
		ok, err := s.missions.SetCompleted(ctx, id, s.clock())
		if err != nil {
			return nil, errs.Unavailable("complete mission", err)
		}
		if m, err = s.Get(ctx, id); err != nil {
			return nil, err
		}
		if !ok && m.IsTransferred {
			return nil, errs.ErrAlreadyTransferred
		}
		if ok {
			if err := s.streaks.RecordCompletion(ctx, m.UserID); err != nil {
				return nil, err
			}
			s.publish(realtime.OpUpdate, m)
			s.logger.Info("mission completed", "mission_id", id, "user_id", m.UserID)
		}
	}

	res := &CompletionResult{Mission: m}
	if m.MissionType != model.MissionDaily || m.Date != kst.Today(s.clock) {
		return res, nil
	}
	total, completed, err := s.missions.CountDaily(ctx, m.UserID, m.Date)
	if err != nil {
		return res, errs.Unavailable("count daily missions", err)
	}
	if total > 0 && completed == total {
		st, err := s.streaks.UpdateStreak(ctx, m.UserID)
		if err != nil {
			return res, err
		}
		res.Streak = st
	}
	return res, nil
}

// Uncomplete clears completion unless the mission has been paid.
func (s *Service) Uncomplete(ctx context.Context, id int64) (*model.MissionInstance, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.IsTransferred {
		return nil, errs.ErrImmutableAfterTransfer
	}
	if !m.IsCompleted {
		return m, nil
	}

	ok, err := s.missions.SetUncompleted(ctx, id)
	if err != nil {
		return nil, errs.Unavailable("uncomplete mission", err)
	}
	if !ok {
		return nil, s.guardFailure(ctx, id)
	}
	if err := s.streaks.RecordUncompletion(ctx, m.UserID); err != nil {
		return nil, err
	}
	if m, err = s.Get(ctx, id); err != nil {
		return nil, err
	}
	s.publish(realtime.OpUpdate, m)
	return m, nil
}

// Update applies a patch unless the mission has been paid.
func (s *Service) Update(ctx context.Context, id int64, p Patch) (*model.MissionInstance, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.IsTransferred {
		return nil, errs.ErrImmutableAfterTransfer
	}

	if p.Date != nil {
		if !kst.ValidDate(*p.Date) {
			return nil, errs.Invalid("date", "must be YYYY-MM-DD")
		}
		m.Date = *p.Date
	}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return nil, errs.Invalid("title", "is required")
		}
		m.Title = title
	}
	if p.Description != nil {
		m.Description = *p.Description
	}
	if p.RewardAmount != nil {
		if !p.RewardAmount.IsPositive() {
			return nil, errs.Invalid("reward_amount", "must be greater than zero")
		}
		m.RewardAmount = *p.RewardAmount
	}
	if p.Category != nil {
		m.Category = *p.Category
	}
	if p.MissionType != nil {
		if !p.MissionType.Valid() {
			return nil, errs.Invalid("mission_type", "must be daily or event")
		}
		m.MissionType = *p.MissionType
	}

	ok, err := s.missions.Update(ctx, m)
	if err != nil {
		return nil, errs.Unavailable("update mission", err)
	}
	if !ok {
		return nil, s.guardFailure(ctx, id)
	}
	if m, err = s.Get(ctx, id); err != nil {
		return nil, err
	}
	s.publish(realtime.OpUpdate, m)
	return m, nil
}

// Delete removes a mission unless it has been paid.
func (s *Service) Delete(ctx context.Context, id int64) error {
	m, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if m.IsTransferred {
		return errs.ErrImmutableAfterTransfer
	}
	ok, err := s.missions.Delete(ctx, id)
	if err != nil {
		return errs.Unavailable("delete mission", err)
	}
	if !ok {
		return s.guardFailure(ctx, id)
	}
	s.publish(realtime.OpDelete, m)
	return nil
}

// guardFailure explains why a guarded write touched no row: the mission was
// either paid or deleted by another session in the meantime.
func (s *Service) guardFailure(ctx context.Context, id int64) error {
	m, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if m.IsTransferred {
		return errs.ErrImmutableAfterTransfer
	}
	return errs.NotFound("mission", id)
}
