package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/moneyseed/moneyseed/internal/model"
	"github.com/shopspring/decimal"
)

// StreakStore persists per-child streak settings, streak progress and the
// reward history of streak bonuses.
type StreakStore struct {
	db *sql.DB
}

func NewStreakStore(db *sql.DB) *StreakStore {
	return &StreakStore{db: db}
}

// --- Settings ---

func (s *StreakStore) GetSettings(ctx context.Context, userID int64) (*model.StreakSettings, error) {
	var st model.StreakSettings
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, streak_target_days, streak_bonus_amount, streak_repeat, streak_enabled, updated_at
		 FROM streak_settings WHERE user_id = ?`, userID,
	).Scan(&st.UserID, &st.StreakTargetDays, &st.StreakBonusAmount, &st.StreakRepeat, &st.StreakEnabled, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get streak settings: %w", err)
	}
	return &st, nil
}

func (s *StreakStore) UpsertSettings(ctx context.Context, st *model.StreakSettings) (*model.StreakSettings, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO streak_settings (user_id, streak_target_days, streak_bonus_amount, streak_repeat, streak_enabled)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   streak_target_days = excluded.streak_target_days,
		   streak_bonus_amount = excluded.streak_bonus_amount,
		   streak_repeat = excluded.streak_repeat,
		   streak_enabled = excluded.streak_enabled,
		   updated_at = CURRENT_TIMESTAMP`,
		st.UserID, st.StreakTargetDays, st.StreakBonusAmount, st.StreakRepeat, st.StreakEnabled,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert streak settings: %w", err)
	}
	return s.GetSettings(ctx, st.UserID)
}

// --- Progress ---

const progressCols = `user_id, streak_count, streak_started_on, last_completion_date, best_streak, total_missions_completed, total_streak_bonus_earned, updated_at`

func scanProgress(scanner interface{ Scan(...any) error }) (*model.UserStreakProgress, error) {
	var p model.UserStreakProgress
	var startedOn, lastDate sql.NullString
	err := scanner.Scan(
		&p.UserID, &p.StreakCount, &startedOn, &lastDate, &p.BestStreak,
		&p.TotalMissionsCompleted, &p.TotalStreakBonusEarned, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.StreakStartedOn = startedOn.String
	p.LastCompletionDate = lastDate.String
	return &p, nil
}

func (s *StreakStore) GetProgress(ctx context.Context, userID int64) (*model.UserStreakProgress, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+progressCols+` FROM user_streak_progress WHERE user_id = ?`, userID)
	p, err := scanProgress(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get streak progress: %w", err)
	}
	return p, nil
}

// SaveProgress writes the streak counters. The bonus total is owned by
// ClaimReward and is not touched here.
func (s *StreakStore) SaveProgress(ctx context.Context, p *model.UserStreakProgress) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_streak_progress (user_id, streak_count, streak_started_on, last_completion_date, best_streak, total_missions_completed)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   streak_count = excluded.streak_count,
		   streak_started_on = excluded.streak_started_on,
		   last_completion_date = excluded.last_completion_date,
		   best_streak = excluded.best_streak,
		   total_missions_completed = excluded.total_missions_completed,
		   updated_at = CURRENT_TIMESTAMP`,
		p.UserID, p.StreakCount, nullString(p.StreakStartedOn), nullString(p.LastCompletionDate),
		p.BestStreak, p.TotalMissionsCompleted,
	)
	if err != nil {
		return fmt.Errorf("save streak progress: %w", err)
	}
	return nil
}

func (s *StreakStore) IncrementMissionsCompleted(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_streak_progress (user_id, total_missions_completed) VALUES (?, 1)
		 ON CONFLICT(user_id) DO UPDATE SET
		   total_missions_completed = total_missions_completed + 1,
		   updated_at = CURRENT_TIMESTAMP`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("increment missions completed: %w", err)
	}
	return nil
}

// DecrementMissionsCompleted undoes one IncrementMissionsCompleted, never
// going below zero.
func (s *StreakStore) DecrementMissionsCompleted(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE user_streak_progress
		 SET total_missions_completed = MAX(total_missions_completed - 1, 0), updated_at = CURRENT_TIMESTAMP
		 WHERE user_id = ?`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("decrement missions completed: %w", err)
	}
	return nil
}

// --- Reward history ---

const rewardCols = `id, user_id, kind, claim_key, streak_count, amount, status, transaction_id, created_at, claimed_at`

func scanReward(scanner interface{ Scan(...any) error }) (*model.RewardHistory, error) {
	var r model.RewardHistory
	var txnID sql.NullInt64
	var claimedAt sql.NullTime
	err := scanner.Scan(
		&r.ID, &r.UserID, &r.Kind, &r.ClaimKey, &r.StreakCount, &r.Amount,
		&r.Status, &txnID, &r.CreatedAt, &claimedAt,
	)
	if err != nil {
		return nil, err
	}
	r.TransactionID = int64Ptr(txnID)
	r.ClaimedAt = timePtr(claimedAt)
	return &r, nil
}

// CreateReward records a pending reward for a milestone. When the claim key
// already exists the existing row is returned with created == false.
func (s *StreakStore) CreateReward(ctx context.Context, r *model.RewardHistory) (reward *model.RewardHistory, created bool, err error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO reward_history (user_id, kind, claim_key, streak_count, amount, status)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(claim_key) DO NOTHING`,
		r.UserID, r.Kind, r.ClaimKey, r.StreakCount, r.Amount, model.RewardPending,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert reward: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}
	reward, err = s.GetRewardByClaimKey(ctx, r.ClaimKey)
	if err != nil {
		return nil, false, err
	}
	return reward, n > 0, nil
}

func (s *StreakStore) GetReward(ctx context.Context, id int64) (*model.RewardHistory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+rewardCols+` FROM reward_history WHERE id = ?`, id)
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward: %w", err)
	}
	return r, nil
}

func (s *StreakStore) GetRewardByClaimKey(ctx context.Context, key string) (*model.RewardHistory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+rewardCols+` FROM reward_history WHERE claim_key = ?`, key)
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward by claim key: %w", err)
	}
	return r, nil
}

// ListRewards returns a user's rewards, newest first. An empty status lists all.
func (s *StreakStore) ListRewards(ctx context.Context, userID int64, status model.RewardStatus) ([]model.RewardHistory, error) {
	query := `SELECT ` + rewardCols + ` FROM reward_history WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	defer rows.Close()

	var rewards []model.RewardHistory
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}

// SumClaimedRewards totals the claimed rewards of a user.
func (s *StreakStore) SumClaimedRewards(ctx context.Context, userID int64) (decimal.Decimal, error) {
	rewards, err := s.ListRewards(ctx, userID, model.RewardClaimed)
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, r := range rewards {
		sum = sum.Add(r.Amount)
	}
	return sum, nil
}

// ClaimReward pays a pending reward: it writes the ledger row, marks the
// reward claimed and adds the amount to the user's bonus total, all in one
// database transaction. claimed is false when the reward was not pending.
func (s *StreakStore) ClaimReward(ctx context.Context, r *model.RewardHistory, t *model.AllowanceTransaction, at time.Time) (claimed bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	txnID, inserted, err := insertTransaction(ctx, tx, t)
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE reward_history SET status = ?, transaction_id = ?, claimed_at = ?
		 WHERE id = ? AND status = ?`,
		model.RewardClaimed, txnID, at.UTC(), r.ID, model.RewardPending,
	)
	if err != nil {
		return false, fmt.Errorf("mark reward claimed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	total := decimal.Zero
	err = tx.QueryRowContext(ctx,
		`SELECT total_streak_bonus_earned FROM user_streak_progress WHERE user_id = ?`, r.UserID,
	).Scan(&total)
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("get bonus total: %w", err)
	}
	total = total.Add(r.Amount)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO user_streak_progress (user_id, total_streak_bonus_earned) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   total_streak_bonus_earned = excluded.total_streak_bonus_earned,
		   updated_at = CURRENT_TIMESTAMP`,
		r.UserID, total,
	)
	if err != nil {
		return false, fmt.Errorf("update bonus total: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// ResetStreak zeroes the running streak but keeps best streak and totals.
func (s *StreakStore) ResetStreak(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE user_streak_progress SET streak_count = 0, streak_started_on = NULL, last_completion_date = NULL,
		 updated_at = CURRENT_TIMESTAMP
		 WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("reset streak: %w", err)
	}
	return nil
}
