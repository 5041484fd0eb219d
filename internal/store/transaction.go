package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/moneyseed/moneyseed/internal/model"
	"github.com/shopspring/decimal"
)

// TransactionStore persists the allowance ledger and settlement batches.
type TransactionStore struct {
	db *sql.DB
}

func NewTransactionStore(db *sql.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanTransaction(scanner interface{ Scan(...any) error }) (*model.AllowanceTransaction, error) {
	var t model.AllowanceTransaction
	var sourceRef, batchID sql.NullString
	err := scanner.Scan(
		&t.ID, &t.UserID, &t.Amount, &t.Type, &t.Category, &t.Description,
		&t.Date, &sourceRef, &batchID, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.SourceRef = sourceRef.String
	t.BatchID = batchID.String
	return &t, nil
}

const transactionCols = `id, user_id, amount, type, category, description, date, source_ref, batch_id, created_at`

// insertTransaction writes a ledger row. A row whose source_ref already exists
// is left untouched and reported with inserted == false.
func insertTransaction(ctx context.Context, q queryer, t *model.AllowanceTransaction) (id int64, inserted bool, err error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO allowance_transactions (user_id, amount, type, category, description, date, source_ref, batch_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source_ref) DO NOTHING`,
		t.UserID, t.Amount, t.Type, t.Category, t.Description, t.Date,
		nullString(t.SourceRef), nullString(t.BatchID),
	)
	if err != nil {
		return 0, false, fmt.Errorf("insert transaction: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return 0, false, nil
	}
	id, err = result.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("last insert id: %w", err)
	}
	return id, true, nil
}

// Create appends a ledger row. It returns (nil, nil) when a row with the same
// source reference already exists.
func (s *TransactionStore) Create(ctx context.Context, t *model.AllowanceTransaction) (*model.AllowanceTransaction, error) {
	id, inserted, err := insertTransaction(ctx, s.db, t)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, nil
	}
	return s.GetByID(ctx, id)
}

// PayMission records the reward for a completed mission and flips it to
// transferred in one database transaction. paid is false when the mission
// was no longer payable or its reward already exists in the ledger; in that
// case nothing is written.
func (s *TransactionStore) PayMission(ctx context.Context, m *model.MissionInstance, t *model.AllowanceTransaction, at time.Time) (paid bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, inserted, err := insertTransaction(ctx, tx, t)
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE mission_instances SET is_transferred = 1, transferred_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND is_completed = 1 AND is_transferred = 0`,
		at.UTC(), m.ID,
	)
	if err != nil {
		return false, fmt.Errorf("mark mission transferred: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

func (s *TransactionStore) GetByID(ctx context.Context, id int64) (*model.AllowanceTransaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+transactionCols+` FROM allowance_transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (s *TransactionStore) GetBySourceRef(ctx context.Context, ref string) (*model.AllowanceTransaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+transactionCols+` FROM allowance_transactions WHERE source_ref = ?`, ref)
	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction by source: %w", err)
	}
	return t, nil
}

// ListByUser returns ledger rows dated within [from, to], newest first.
// Empty bounds are open.
func (s *TransactionStore) ListByUser(ctx context.Context, userID int64, from, to string) ([]model.AllowanceTransaction, error) {
	query := `SELECT ` + transactionCols + ` FROM allowance_transactions WHERE user_id = ?`
	args := []any{userID}
	if from != "" {
		query += ` AND date >= ?`
		args = append(args, from)
	}
	if to != "" {
		query += ` AND date <= ?`
		args = append(args, to)
	}
	query += ` ORDER BY date DESC, id DESC`
	return s.list(ctx, query, args...)
}

func (s *TransactionStore) ListByUserAndCategory(ctx context.Context, userID int64, category string) ([]model.AllowanceTransaction, error) {
	return s.list(ctx,
		`SELECT `+transactionCols+` FROM allowance_transactions WHERE user_id = ? AND category = ? ORDER BY date ASC, id ASC`,
		userID, category,
	)
}

func (s *TransactionStore) list(ctx context.Context, query string, args ...any) ([]model.AllowanceTransaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []model.AllowanceTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txns = append(txns, *t)
	}
	return txns, rows.Err()
}

// Balance sums a user's ledger. Amounts are stored as decimal text, so the
// arithmetic happens here rather than in SQL.
func (s *TransactionStore) Balance(ctx context.Context, userID int64) (*model.Balance, error) {
	txns, err := s.ListByUser(ctx, userID, "", "")
	if err != nil {
		return nil, err
	}
	b := &model.Balance{UserID: userID, TotalIncome: decimal.Zero, TotalExpense: decimal.Zero}
	for _, t := range txns {
		if t.Type == model.TransactionExpense {
			b.TotalExpense = b.TotalExpense.Add(t.Amount)
		} else {
			b.TotalIncome = b.TotalIncome.Add(t.Amount)
		}
	}
	b.Balance = b.TotalIncome.Sub(b.TotalExpense)
	return b, nil
}

// --- Settlement batches ---

func (s *TransactionStore) CreateBatch(ctx context.Context, b *model.SettlementBatch) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settlement_batches (id, parent_id, note, requested_count, processed_count, total_amount)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.ParentID, b.Note, b.RequestedCount, b.ProcessedCount, b.TotalAmount,
	)
	if err != nil {
		return fmt.Errorf("insert settlement batch: %w", err)
	}
	return nil
}

// FinishBatch records the outcome of a batch once its missions are processed.
func (s *TransactionStore) FinishBatch(ctx context.Context, id string, processed int, total decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE settlement_batches SET processed_count = ?, total_amount = ? WHERE id = ?`,
		processed, total, id,
	)
	if err != nil {
		return fmt.Errorf("finish settlement batch: %w", err)
	}
	return nil
}

func (s *TransactionStore) GetBatch(ctx context.Context, id string) (*model.SettlementBatch, error) {
	var b model.SettlementBatch
	err := s.db.QueryRowContext(ctx,
		`SELECT id, parent_id, note, requested_count, processed_count, total_amount, created_at
		 FROM settlement_batches WHERE id = ?`, id,
	).Scan(&b.ID, &b.ParentID, &b.Note, &b.RequestedCount, &b.ProcessedCount, &b.TotalAmount, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get settlement batch: %w", err)
	}
	return &b, nil
}
