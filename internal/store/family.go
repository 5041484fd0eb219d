package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/moneyseed/moneyseed/internal/model"
)

// FamilyStore manages the relational family model (families + family_members).
type FamilyStore struct {
	db *sql.DB
}

func NewFamilyStore(db *sql.DB) *FamilyStore {
	return &FamilyStore{db: db}
}

func scanFamilyMember(scanner interface{ Scan(...any) error }) (*model.FamilyMember, error) {
	var m model.FamilyMember
	if err := scanner.Scan(&m.ID, &m.FamilyID, &m.UserID, &m.Role, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

const familyMemberCols = `id, family_id, user_id, role, created_at`

func (s *FamilyStore) Create(ctx context.Context, name string) (*model.Family, error) {
	result, err := s.db.ExecContext(ctx, `INSERT INTO families (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("insert family: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	var f model.Family
	err = s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM families WHERE id = ?`, id).
		Scan(&f.ID, &f.Name, &f.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get family: %w", err)
	}
	return &f, nil
}

func (s *FamilyStore) AddMember(ctx context.Context, familyID, userID int64, role model.Role) (*model.FamilyMember, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO family_members (family_id, user_id, role) VALUES (?, ?, ?)`,
		familyID, userID, role,
	)
	if err != nil {
		return nil, fmt.Errorf("insert family member: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+familyMemberCols+` FROM family_members WHERE id = ?`, id)
	return scanFamilyMember(row)
}

// GetMemberByUser returns the membership row for a user, or nil when the user
// is not linked through the relational model.
func (s *FamilyStore) GetMemberByUser(ctx context.Context, userID int64) (*model.FamilyMember, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+familyMemberCols+` FROM family_members WHERE user_id = ?`, userID)
	m, err := scanFamilyMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family member: %w", err)
	}
	return m, nil
}

func (s *FamilyStore) ListMembers(ctx context.Context, familyID int64) ([]model.FamilyMember, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+familyMemberCols+` FROM family_members WHERE family_id = ? ORDER BY id`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list family members: %w", err)
	}
	defer rows.Close()

	var members []model.FamilyMember
	for rows.Next() {
		m, err := scanFamilyMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan family member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}
