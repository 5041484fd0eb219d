package streak

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/moneyseed/moneyseed/internal/database"
	"github.com/moneyseed/moneyseed/internal/errs"
	"github.com/moneyseed/moneyseed/internal/kst"
	"github.com/moneyseed/moneyseed/internal/model"
	"github.com/moneyseed/moneyseed/internal/realtime"
	"github.com/moneyseed/moneyseed/internal/store"
	"github.com/shopspring/decimal"
)

type fixture struct {
	svc      *Service
	verifier *Verifier
	streaks  *store.StreakStore
	txns     *store.TransactionStore
	childID  int64
	now      time.Time
}

// advance moves the fixture clock by n days.
func (f *fixture) advance(n int) {
	f.now = f.now.AddDate(0, 0, n)
}

func setupStreak(t *testing.T, autoClaim bool) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	child, err := store.NewProfileStore(db).Create(context.Background(), "Jisoo", model.RoleChild, "")
	if err != nil {
		t.Fatalf("create child: %v", err)
	}

	f := &fixture{
		streaks: store.NewStreakStore(db),
		txns:    store.NewTransactionStore(db),
		childID: child.ID,
		now:     time.Date(2025, 3, 1, 20, 0, 0, 0, kst.Location),
	}
	logger := slog.Default()
	f.svc = NewService(f.streaks, realtime.NewFeed(logger), logger, Options{
		Clock:     func() time.Time { return f.now },
		AutoClaim: autoClaim,
	})
	f.verifier = NewVerifier(f.streaks, f.txns, logger)
	return f
}

func (f *fixture) configure(t *testing.T, target int, bonus int64, repeat bool) {
	t.Helper()
	_, err := f.svc.UpdateSettings(context.Background(), &model.StreakSettings{
		UserID:            f.childID,
		StreakTargetDays:  target,
		StreakBonusAmount: decimal.NewFromInt(bonus),
		StreakRepeat:      repeat,
		StreakEnabled:     true,
	})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
}

func TestIsMilestone(t *testing.T) {
	var hits []int
	for c := 1; c <= 14; c++ {
		if IsMilestone(c, 7, true) {
			hits = append(hits, c)
		}
	}
	if len(hits) != 2 || hits[0] != 7 || hits[1] != 14 {
		t.Errorf("repeat milestones = %v, want [7 14]", hits)
	}

	hits = nil
	for c := 1; c <= 14; c++ {
		if IsMilestone(c, 7, false) {
			hits = append(hits, c)
		}
	}
	if len(hits) != 1 || hits[0] != 7 {
		t.Errorf("non-repeat milestones = %v, want [7]", hits)
	}

	if IsMilestone(0, 7, true) || IsMilestone(5, 0, true) {
		t.Error("zero count or target must never be a milestone")
	}
}

func TestUpdateStreakConsecutiveDays(t *testing.T) {
	f := setupStreak(t, true)
	f.configure(t, 7, 1000, true)
	ctx := context.Background()

	var bonusDays []int
	for day := 1; day <= 14; day++ {
		res, err := f.svc.UpdateStreak(ctx, f.childID)
		if err != nil {
			t.Fatalf("day %d: %v", day, err)
		}
		if res.NewStreak != day {
			t.Fatalf("day %d: streak = %d", day, res.NewStreak)
		}
		if res.BonusEarned.IsPositive() {
			bonusDays = append(bonusDays, day)
		}
		f.advance(1)
	}
	if len(bonusDays) != 2 || bonusDays[0] != 7 || bonusDays[1] != 14 {
		t.Errorf("bonus days = %v, want [7 14]", bonusDays)
	}

	b, _ := f.txns.Balance(ctx, f.childID)
	if !b.Balance.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("balance = %s, want 2000", b.Balance)
	}
}

func TestUpdateStreakIdempotentSameDay(t *testing.T) {
	f := setupStreak(t, false)
	ctx := context.Background()

	first, err := f.svc.UpdateStreak(ctx, f.childID)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	before, _ := f.svc.GetProgress(ctx, f.childID)

	f.now = f.now.Add(2 * time.Hour) // still the same KST day
	second, err := f.svc.UpdateStreak(ctx, f.childID)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	after, _ := f.svc.GetProgress(ctx, f.childID)

	if second.NewStreak != first.NewStreak || second.IsNewRecord || second.ShouldCelebrate {
		t.Errorf("second call result = %+v", second)
	}
	if after.StreakCount != before.StreakCount || after.BestStreak != before.BestStreak || after.LastCompletionDate != before.LastCompletionDate {
		t.Errorf("progress changed: before %+v after %+v", before, after)
	}
}

func TestUpdateStreakUsesKSTDay(t *testing.T) {
	f := setupStreak(t, false)
	ctx := context.Background()

	// 23:30 KST on Mar 1 and 00:30 KST on Mar 2 are the same UTC date but
	// different KST days.
	f.now = time.Date(2025, 3, 1, 14, 30, 0, 0, time.UTC)
	f.svc.UpdateStreak(ctx, f.childID)
	f.now = time.Date(2025, 3, 1, 15, 30, 0, 0, time.UTC)
	res, err := f.svc.UpdateStreak(ctx, f.childID)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.NewStreak != 2 {
		t.Errorf("streak = %d, want 2", res.NewStreak)
	}
}

// Scenario B: target 3, bonus 500, no repeat.
func TestNonRepeatingBonusFiresOnce(t *testing.T) {
	f := setupStreak(t, false)
	f.configure(t, 3, 500, false)
	ctx := context.Background()

	var claims []int64
	for day := 1; day <= 6; day++ {
		res, err := f.svc.UpdateStreak(ctx, f.childID)
		if err != nil {
			t.Fatalf("day %d: %v", day, err)
		}
		if res.PendingClaimID != nil {
			if day != 3 {
				t.Errorf("bonus on day %d", day)
			}
			claims = append(claims, *res.PendingClaimID)
		}
		if (day == 3) != res.ShouldCelebrate {
			t.Errorf("day %d: celebrate = %v", day, res.ShouldCelebrate)
		}
		f.advance(1)
	}
	if len(claims) != 1 {
		t.Fatalf("claims = %v, want exactly one", claims)
	}

	r, err := f.svc.ClaimBonus(ctx, f.childID, claims[0])
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if r.Status != model.RewardClaimed || !r.Amount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("reward = %+v", r)
	}
	bonuses, _ := f.txns.ListByUserAndCategory(ctx, f.childID, model.CategoryStreakBonus)
	if len(bonuses) != 1 {
		t.Errorf("bonus transactions = %d, want 1", len(bonuses))
	}
}

// Scenario C: a skipped day restarts the count.
func TestGapResetsStreak(t *testing.T) {
	f := setupStreak(t, false)
	ctx := context.Background()

	f.svc.UpdateStreak(ctx, f.childID)
	f.advance(2)
	res, err := f.svc.UpdateStreak(ctx, f.childID)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.NewStreak != 1 {
		t.Errorf("streak = %d, want 1", res.NewStreak)
	}
}

func TestBestStreakSurvivesReset(t *testing.T) {
	f := setupStreak(t, false)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		f.svc.UpdateStreak(ctx, f.childID)
		f.advance(1)
	}
	if err := f.svc.ResetStreak(ctx, f.childID); err != nil {
		t.Fatalf("reset: %v", err)
	}
	p, _ := f.svc.GetProgress(ctx, f.childID)
	if p.StreakCount != 0 || p.LastCompletionDate != "" || p.BestStreak != 4 {
		t.Errorf("after reset = %+v", p)
	}

	res, _ := f.svc.UpdateStreak(ctx, f.childID)
	if res.NewStreak != 1 || res.IsNewRecord {
		t.Errorf("after reset update = %+v", res)
	}
	p, _ = f.svc.GetProgress(ctx, f.childID)
	if p.BestStreak != 4 {
		t.Errorf("best = %d, want 4", p.BestStreak)
	}
}

func TestClaimBonusTwice(t *testing.T) {
	f := setupStreak(t, false)
	f.configure(t, 1, 300, true)
	ctx := context.Background()

	res, err := f.svc.UpdateStreak(ctx, f.childID)
	if err != nil || res.PendingClaimID == nil {
		t.Fatalf("update: %+v %v", res, err)
	}
	if _, err := f.svc.ClaimBonus(ctx, f.childID, *res.PendingClaimID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	_, err = f.svc.ClaimBonus(ctx, f.childID, *res.PendingClaimID)
	if !errors.Is(err, errs.ErrAlreadyClaimed) {
		t.Errorf("second claim err = %v, want ErrAlreadyClaimed", err)
	}

	_, err = f.svc.ClaimBonus(ctx, f.childID+1, *res.PendingClaimID)
	if !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("foreign claim err = %v, want ErrNotFound", err)
	}

	p, _ := f.svc.GetProgress(ctx, f.childID)
	if !p.TotalStreakBonusEarned.Equal(decimal.NewFromInt(300)) {
		t.Errorf("bonus earned = %s, want 300", p.TotalStreakBonusEarned)
	}
}

func TestUpdateSettingsValidation(t *testing.T) {
	f := setupStreak(t, false)
	ctx := context.Background()

	_, err := f.svc.UpdateSettings(ctx, &model.StreakSettings{UserID: f.childID, StreakTargetDays: 0})
	if !errs.IsValidation(err) {
		t.Errorf("target 0 err = %v, want validation", err)
	}
	_, err = f.svc.UpdateSettings(ctx, &model.StreakSettings{UserID: f.childID, StreakTargetDays: 3, StreakBonusAmount: decimal.NewFromInt(-1)})
	if !errs.IsValidation(err) {
		t.Errorf("negative bonus err = %v, want validation", err)
	}

	st, _ := f.svc.GetSettings(ctx, f.childID)
	if st.StreakTargetDays != 7 || !st.StreakRepeat {
		t.Errorf("defaults = %+v", st)
	}
}

func TestVerifyConsistent(t *testing.T) {
	f := setupStreak(t, true)
	f.configure(t, 2, 100, true)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.svc.UpdateStreak(ctx, f.childID)
		f.advance(1)
	}

	rep, err := f.verifier.Verify(ctx, f.childID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !rep.OK() {
		t.Errorf("warnings = %+v", rep.Warnings)
	}
	if !rep.LedgerTotal.Equal(decimal.NewFromInt(200)) {
		t.Errorf("ledger total = %s, want 200", rep.LedgerTotal)
	}
}

func TestVerifyDetectsDrift(t *testing.T) {
	f := setupStreak(t, false)
	f.configure(t, 2, 100, true)
	ctx := context.Background()

	// A stray streak bonus in the ledger with no matching reward.
	f.txns.Create(ctx, &model.AllowanceTransaction{
		UserID: f.childID, Amount: decimal.NewFromInt(100), Type: model.TransactionIncome,
		Category: model.CategoryStreakBonus, Date: "2025-03-01",
	})
	// Progress crossing a milestone without a reward row.
	f.streaks.SaveProgress(ctx, &model.UserStreakProgress{
		UserID: f.childID, StreakCount: 2, StreakStartedOn: "2025-02-28", LastCompletionDate: "2025-03-01", BestStreak: 2,
	})

	rep, err := f.verifier.Verify(ctx, f.childID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	kinds := map[string]bool{}
	for _, w := range rep.Warnings {
		kinds[w.Kind] = true
	}
	if !kinds[WarnLedgerMismatch] {
		t.Error("missing ledger mismatch warning")
	}
	if !kinds[WarnMissingMilestone] {
		t.Error("missing milestone warning")
	}
	if kinds[WarnProgressTotal] {
		t.Error("unexpected progress total warning")
	}
}

func TestVerifyNonRepeatingLaterMultiple(t *testing.T) {
	f := setupStreak(t, false)
	f.configure(t, 3, 500, false)
	ctx := context.Background()

	f.streaks.SaveProgress(ctx, &model.UserStreakProgress{
		UserID: f.childID, StreakCount: 6, StreakStartedOn: "2025-02-24", LastCompletionDate: "2025-03-01", BestStreak: 6,
	})

	rep, err := f.verifier.Verify(ctx, f.childID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(rep.Warnings) != 1 || rep.Warnings[0].Kind != WarnMissingMilestone {
		t.Fatalf("warnings = %+v, want one missing milestone", rep.Warnings)
	}
}

func TestVerifyNonRepeatingAfterClaim(t *testing.T) {
	f := setupStreak(t, true)
	f.configure(t, 3, 500, false)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		f.svc.UpdateStreak(ctx, f.childID)
		f.advance(1)
	}

	rep, err := f.verifier.Verify(ctx, f.childID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !rep.OK() {
		t.Errorf("warnings = %+v", rep.Warnings)
	}
}
