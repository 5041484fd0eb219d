// Package streak maintains each child's consecutive-day completion counter
// and the bonuses earned at multiples of the configured target.
//
// The counter advances as soon as the day qualifies. A bonus is recorded as a
// pending reward and paid into the ledger by an explicit claim, unless the
// service runs with auto-claim.
package streak

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/moneyseed/moneyseed/internal/errs"
	"github.com/moneyseed/moneyseed/internal/kst"
	"github.com/moneyseed/moneyseed/internal/model"
	"github.com/moneyseed/moneyseed/internal/realtime"
	"github.com/moneyseed/moneyseed/internal/store"
	"github.com/shopspring/decimal"
)

// Notifier is told about milestones so it can reach the child's devices.
type Notifier interface {
	StreakMilestone(ctx context.Context, userID int64, streak int, bonus decimal.Decimal)
}

type Options struct {
	Clock     kst.Clock
	AutoClaim bool
	Notifier  Notifier
}

type Service struct {
	streaks   *store.StreakStore
	feed      *realtime.Feed
	clock     kst.Clock
	autoClaim bool
	notifier  Notifier
	logger    *slog.Logger
}

func NewService(streaks *store.StreakStore, feed *realtime.Feed, logger *slog.Logger, opts Options) *Service {
	clock := opts.Clock
	if clock == nil {
		clock = kst.SystemClock
	}
	return &Service{
		streaks:   streaks,
		feed:      feed,
		clock:     clock,
		autoClaim: opts.AutoClaim,
		notifier:  opts.Notifier,
		logger:    logger,
	}
}

// Result is what UpdateStreak reports back to the caller.
type Result struct {
	NewStreak       int             `json:"new_streak"`
	BonusEarned     decimal.Decimal `json:"bonus_earned"`
	ShouldCelebrate bool            `json:"should_celebrate"`
	IsNewRecord     bool            `json:"is_new_record"`
	PendingClaimID  *int64          `json:"pending_claim_id,omitempty"`
}

// IsMilestone reports whether count earns a bonus. With repeat off only the
// first multiple of a run pays.
func IsMilestone(count, target int, repeat bool) bool {
	if count <= 0 || target <= 0 || count%target != 0 {
		return false
	}
	return repeat || count == target
}

// ClaimKey identifies one milestone of one run of one user.
func ClaimKey(userID int64, runStart string, count int) string {
	return fmt.Sprintf("%d:%s:%d", userID, runStart, count)
}

// GetSettings returns the user's settings, or the defaults when none are stored.
func (s *Service) GetSettings(ctx context.Context, userID int64) (*model.StreakSettings, error) {
	st, err := s.streaks.GetSettings(ctx, userID)
	if err != nil {
		return nil, errs.Unavailable("get streak settings", err)
	}
	if st == nil {
		def := model.DefaultStreakSettings(userID)
		return &def, nil
	}
	return st, nil
}

func (s *Service) UpdateSettings(ctx context.Context, st *model.StreakSettings) (*model.StreakSettings, error) {
	if st.StreakTargetDays < 1 {
		return nil, errs.Invalid("streak_target_days", "must be at least 1")
	}
	if st.StreakBonusAmount.IsNegative() {
		return nil, errs.Invalid("streak_bonus_amount", "must not be negative")
	}
	saved, err := s.streaks.UpsertSettings(ctx, st)
	if err != nil {
		return nil, errs.Unavailable("update streak settings", err)
	}
	return saved, nil
}

// GetProgress returns the user's progress, zero-valued when none is stored.
func (s *Service) GetProgress(ctx context.Context, userID int64) (*model.UserStreakProgress, error) {
	p, err := s.streaks.GetProgress(ctx, userID)
	if err != nil {
		return nil, errs.Unavailable("get streak progress", err)
	}
	if p == nil {
		return &model.UserStreakProgress{UserID: userID, TotalStreakBonusEarned: decimal.Zero}, nil
	}
	return p, nil
}

// RecordCompletion bumps the lifetime mission counter.
func (s *Service) RecordCompletion(ctx context.Context, userID int64) error {
	return errs.Unavailable("record completion", s.streaks.IncrementMissionsCompleted(ctx, userID))
}

// RecordUncompletion takes back a RecordCompletion. The streak itself is
// left as it is.
func (s *Service) RecordUncompletion(ctx context.Context, userID int64) error {
	return errs.Unavailable("record uncompletion", s.streaks.DecrementMissionsCompleted(ctx, userID))
}

// UpdateStreak advances the user's streak for today (KST). Calling it again
// on the same day changes nothing.
func (s *Service) UpdateStreak(ctx context.Context, userID int64) (*Result, error) {
	today := kst.Today(s.clock)
	yesterday, err := kst.AddDays(today, -1)
	if err != nil {
		return nil, err
	}

	p, err := s.GetProgress(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p.LastCompletionDate == today {
		return &Result{NewStreak: p.StreakCount, BonusEarned: decimal.Zero}, nil
	}

	if p.LastCompletionDate == yesterday && p.StreakCount > 0 {
		p.StreakCount++
		if p.StreakStartedOn == "" {
			p.StreakStartedOn, _ = kst.AddDays(today, -(p.StreakCount - 1))
		}
	} else {
		p.StreakCount = 1
		p.StreakStartedOn = today
	}

	res := &Result{NewStreak: p.StreakCount, BonusEarned: decimal.Zero}
	if p.StreakCount > p.BestStreak {
		res.IsNewRecord = true
		p.BestStreak = p.StreakCount
	}
	p.LastCompletionDate = today

	if err := s.streaks.SaveProgress(ctx, p); err != nil {
		return nil, errs.Unavailable("save streak progress", err)
	}
	s.feed.Publish(realtime.Change{Table: realtime.TableProgress, Op: realtime.OpUpdate, UserID: userID, ID: userID, Row: p})

	s.logger.Info("streak advanced", "user_id", userID, "streak", p.StreakCount, "best", p.BestStreak)

	settings, err := s.GetSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !settings.StreakEnabled || !IsMilestone(p.StreakCount, settings.StreakTargetDays, settings.StreakRepeat) {
		return res, nil
	}
	res.ShouldCelebrate = true

	if settings.StreakBonusAmount.IsPositive() {
		reward, created, err := s.streaks.CreateReward(ctx, &model.RewardHistory{
			UserID:      userID,
			Kind:        model.RewardKindStreakBonus,
			ClaimKey:    ClaimKey(userID, p.StreakStartedOn, p.StreakCount),
			StreakCount: p.StreakCount,
			Amount:      settings.StreakBonusAmount,
		})
		if err != nil {
			return nil, errs.Unavailable("create streak reward", err)
		}
		if created {
			s.feed.Publish(realtime.Change{Table: realtime.TableRewards, Op: realtime.OpInsert, UserID: userID, ID: reward.ID, Row: reward})
			s.logger.Info("streak bonus earned", "user_id", userID, "streak", p.StreakCount, "amount", reward.Amount.String())
		}
		res.BonusEarned = reward.Amount
		if reward.Status == model.RewardPending {
			id := reward.ID
			res.PendingClaimID = &id
		}

		if s.autoClaim && reward.Status == model.RewardPending {
			if _, err := s.ClaimBonus(ctx, userID, reward.ID); err != nil {
				return res, err
			}
			res.PendingClaimID = nil
		}
	}

	if s.notifier != nil {
		go s.notifier.StreakMilestone(context.WithoutCancel(ctx), userID, p.StreakCount, res.BonusEarned)
	}
	return res, nil
}

// ClaimBonus pays a pending streak reward into the ledger. A reward can be
// claimed once; later claims fail with ErrAlreadyClaimed.
func (s *Service) ClaimBonus(ctx context.Context, userID, claimID int64) (*model.RewardHistory, error) {
	r, err := s.streaks.GetReward(ctx, claimID)
	if err != nil {
		return nil, errs.Unavailable("get reward", err)
	}
	if r == nil || r.UserID != userID {
		return nil, errs.NotFound("streak claim", claimID)
	}
	if r.Status == model.RewardClaimed {
		return nil, errs.ErrAlreadyClaimed
	}

	now := s.clock()
	txn := &model.AllowanceTransaction{
		UserID:      userID,
		Amount:      r.Amount,
		Type:        model.TransactionIncome,
		Category:    model.CategoryStreakBonus,
		Description: fmt.Sprintf("%d-day streak bonus", r.StreakCount),
		Date:        kst.FormatDate(now),
		SourceRef:   "streak:" + r.ClaimKey,
	}
	claimed, err := s.streaks.ClaimReward(ctx, r, txn, now)
	if err != nil {
		return nil, errs.Unavailable("claim reward", err)
	}
	if !claimed {
		return nil, errs.ErrAlreadyClaimed
	}

	r, err = s.streaks.GetReward(ctx, claimID)
	if err != nil {
		return nil, errs.Unavailable("get reward", err)
	}
	s.feed.Publish(realtime.Change{Table: realtime.TableRewards, Op: realtime.OpUpdate, UserID: userID, ID: r.ID, Row: r})
	if r.TransactionID != nil {
		s.feed.Publish(realtime.Change{Table: realtime.TableTransactions, Op: realtime.OpInsert, UserID: userID, ID: *r.TransactionID})
	}
	s.logger.Info("streak bonus claimed", "user_id", userID, "claim_id", claimID, "amount", r.Amount.String())
	return r, nil
}

// ResetStreak clears the running streak. Best streak and totals are kept.
func (s *Service) ResetStreak(ctx context.Context, userID int64) error {
	if err := s.streaks.ResetStreak(ctx, userID); err != nil {
		return errs.Unavailable("reset streak", err)
	}
	s.feed.Publish(realtime.Change{Table: realtime.TableProgress, Op: realtime.OpUpdate, UserID: userID, ID: userID})
	s.logger.Info("streak reset", "user_id", userID)
	return nil
}

// ListClaims returns the user's streak rewards; an empty status lists all.
func (s *Service) ListClaims(ctx context.Context, userID int64, status model.RewardStatus) ([]model.RewardHistory, error) {
	rewards, err := s.streaks.ListRewards(ctx, userID, status)
	if err != nil {
		return nil, errs.Unavailable("list rewards", err)
	}
	return rewards, nil
}
