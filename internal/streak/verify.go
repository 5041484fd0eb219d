package streak

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/moneyseed/moneyseed/internal/errs"
	"github.com/moneyseed/moneyseed/internal/model"
	"github.com/moneyseed/moneyseed/internal/store"
	"github.com/shopspring/decimal"
)

// Warning kinds reported by the Verifier.
const (
	WarnLedgerMismatch   = "ledger_history_mismatch"
	WarnMissingMilestone = "missing_milestone_reward"
	WarnProgressTotal    = "progress_total_mismatch"
)

// Report is the outcome of a consistency check. Warnings are informational
// and never corrected automatically.
type Report struct {
	UserID        int64                     `json:"user_id"`
	LedgerTotal   decimal.Decimal           `json:"ledger_total"`
	HistoryTotal  decimal.Decimal           `json:"history_total"`
	ProgressTotal decimal.Decimal           `json:"progress_total"`
	PendingClaims int                       `json:"pending_claims"`
	Warnings      []errs.ConsistencyWarning `json:"warnings"`
}

// OK reports whether the check found nothing to remediate.
func (r *Report) OK() bool {
	return len(r.Warnings) == 0
}

// Verifier audits streak bonuses against the ledger. It only reads.
type Verifier struct {
	streaks *store.StreakStore
	txns    *store.TransactionStore
	logger  *slog.Logger
}

func NewVerifier(streaks *store.StreakStore, txns *store.TransactionStore, logger *slog.Logger) *Verifier {
	return &Verifier{streaks: streaks, txns: txns, logger: logger}
}

func (v *Verifier) Verify(ctx context.Context, userID int64) (*Report, error) {
	ledger, err := v.txns.ListByUserAndCategory(ctx, userID, model.CategoryStreakBonus)
	if err != nil {
		return nil, errs.Unavailable("list streak bonus transactions", err)
	}
	rewards, err := v.streaks.ListRewards(ctx, userID, "")
	if err != nil {
		return nil, errs.Unavailable("list rewards", err)
	}
	progress, err := v.streaks.GetProgress(ctx, userID)
	if err != nil {
		return nil, errs.Unavailable("get streak progress", err)
	}
	settings, err := v.streaks.GetSettings(ctx, userID)
	if err != nil {
		return nil, errs.Unavailable("get streak settings", err)
	}
	if settings == nil {
		def := model.DefaultStreakSettings(userID)
		settings = &def
	}

	rep := &Report{
		UserID:        userID,
		LedgerTotal:   decimal.Zero,
		HistoryTotal:  decimal.Zero,
		ProgressTotal: decimal.Zero,
	}
	for _, t := range ledger {
		rep.LedgerTotal = rep.LedgerTotal.Add(t.Signed())
	}
	keys := make(map[string]bool, len(rewards))
	for _, r := range rewards {
		keys[r.ClaimKey] = true
		if r.Status == model.RewardClaimed {
			rep.HistoryTotal = rep.HistoryTotal.Add(r.Amount)
		} else {
			rep.PendingClaims++
		}
	}
	if progress != nil {
		rep.ProgressTotal = progress.TotalStreakBonusEarned
	}

	if !rep.LedgerTotal.Equal(rep.HistoryTotal) {
		rep.Warnings = append(rep.Warnings, errs.ConsistencyWarning{
			Kind:   WarnLedgerMismatch,
			Detail: fmt.Sprintf("ledger streak bonuses total %s, claimed rewards total %s", rep.LedgerTotal, rep.HistoryTotal),
		})
	}
	if !rep.ProgressTotal.Equal(rep.HistoryTotal) {
		rep.Warnings = append(rep.Warnings, errs.ConsistencyWarning{
			Kind:   WarnProgressTotal,
			Detail: fmt.Sprintf("progress records %s earned, claimed rewards total %s", rep.ProgressTotal, rep.HistoryTotal),
		})
	}

	if progress != nil && settings.StreakEnabled && settings.StreakBonusAmount.IsPositive() && settings.StreakTargetDays > 0 {
		last := progress.StreakCount / settings.StreakTargetDays * settings.StreakTargetDays
		if !settings.StreakRepeat && last > settings.StreakTargetDays {
			last = settings.StreakTargetDays
		}
		if IsMilestone(last, settings.StreakTargetDays, settings.StreakRepeat) {
			key := ClaimKey(userID, progress.StreakStartedOn, last)
			if !keys[key] {
				rep.Warnings = append(rep.Warnings, errs.ConsistencyWarning{
					Kind:   WarnMissingMilestone,
					Detail: fmt.Sprintf("streak %d crossed milestone %d but no reward %q exists", progress.StreakCount, last, key),
				})
			}
		}
	}

	for _, w := range rep.Warnings {
		v.logger.Warn("streak consistency warning", "user_id", userID, "kind", w.Kind, "detail", w.Detail)
	}
	return rep, nil
}
