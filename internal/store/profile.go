package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/moneyseed/moneyseed/internal/model"
)

type ProfileStore struct {
	db *sql.DB
}

func NewProfileStore(db *sql.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

func scanProfile(scanner interface{ Scan(...any) error }) (*model.Profile, error) {
	var p model.Profile
	var familyCode, birthday sql.NullString
	err := scanner.Scan(&p.ID, &p.Name, &p.Role, &familyCode, &p.HasPIN, &birthday, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.FamilyCode = familyCode.String
	p.Birthday = birthday.String
	return &p, nil
}

const profileCols = `id, name, role, family_code, pin_hash IS NOT NULL, birthday, created_at, updated_at`

func (s *ProfileStore) Create(ctx context.Context, name string, role model.Role, familyCode string) (*model.Profile, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (name, role, family_code) VALUES (?, ?, ?)`,
		name, role, nullString(familyCode),
	)
	if err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *ProfileStore) GetByID(ctx context.Context, id int64) (*model.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileCols+` FROM profiles WHERE id = ?`, id)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// ListByFamilyCode returns every profile sharing a legacy family code.
func (s *ProfileStore) ListByFamilyCode(ctx context.Context, code string) ([]model.Profile, error) {
	return s.list(ctx, `SELECT `+profileCols+` FROM profiles WHERE family_code = ? ORDER BY id`, code)
}

func (s *ProfileStore) ListByIDs(ctx context.Context, ids []int64) ([]model.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.list(ctx,
		`SELECT `+profileCols+` FROM profiles WHERE id IN (`+placeholders(len(ids))+`) ORDER BY id`,
		int64Args(ids)...,
	)
}

func (s *ProfileStore) ListParents(ctx context.Context) ([]model.Profile, error) {
	return s.list(ctx, `SELECT `+profileCols+` FROM profiles WHERE role = 'parent' ORDER BY id`)
}

func (s *ProfileStore) list(ctx context.Context, query string, args ...any) ([]model.Profile, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

func (s *ProfileStore) SetPIN(ctx context.Context, id int64, hashedPIN string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE profiles SET pin_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		hashedPIN, id,
	)
	if err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	return nil
}

func (s *ProfileStore) ClearPIN(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE profiles SET pin_hash = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("clear pin: %w", err)
	}
	return nil
}

// GetPINHash returns "" when the profile has no PIN.
func (s *ProfileStore) GetPINHash(ctx context.Context, id int64) (string, error) {
	var pin sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT pin_hash FROM profiles WHERE id = ?`, id).Scan(&pin)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("profile %d not found", id)
	}
	if err != nil {
		return "", fmt.Errorf("query pin: %w", err)
	}
	return pin.String, nil
}

func (s *ProfileStore) SetBirthday(ctx context.Context, id int64, birthday string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE profiles SET birthday = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		nullString(birthday), id,
	)
	if err != nil {
		return fmt.Errorf("set birthday: %w", err)
	}
	return nil
}
