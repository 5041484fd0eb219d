package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/moneyseed/moneyseed/internal/model"
)

// MissionStore persists mission templates and mission instances.
//
// Mutations of an instance are single guarded UPDATE statements: the WHERE
// clause carries the state precondition and the returned bool reports whether
// the row actually changed, so concurrent sessions cannot race a paid mission
// back into an editable state.
type MissionStore struct {
	db *sql.DB
}

func NewMissionStore(db *sql.DB) *MissionStore {
	return &MissionStore{db: db}
}

// --- Template methods ---

func scanTemplate(scanner interface{ Scan(...any) error }) (*model.MissionTemplate, error) {
	var t model.MissionTemplate
	var assignee sql.NullInt64
	err := scanner.Scan(
		&t.ID, &t.OwnerUserID, &assignee, &t.Title, &t.Description, &t.RewardAmount,
		&t.Category, &t.MissionType, &t.RecurringPattern, &t.IsActive,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.AssigneeUserID = int64Ptr(assignee)
	return &t, nil
}

const templateCols = `id, owner_user_id, assignee_user_id, title, description, reward_amount, category, mission_type, recurring_pattern, is_active, created_at, updated_at`

func (s *MissionStore) CreateTemplate(ctx context.Context, t *model.MissionTemplate) (*model.MissionTemplate, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO mission_templates (owner_user_id, assignee_user_id, title, description, reward_amount, category, mission_type, recurring_pattern, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.OwnerUserID, nullInt64(t.AssigneeUserID), t.Title, t.Description, t.RewardAmount,
		t.Category, t.MissionType, t.RecurringPattern, t.IsActive,
	)
	if err != nil {
		return nil, fmt.Errorf("insert template: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetTemplate(ctx, id)
}

func (s *MissionStore) GetTemplate(ctx context.Context, id int64) (*model.MissionTemplate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateCols+` FROM mission_templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

// ListTemplatesByOwner returns a parent's templates, active first.
func (s *MissionStore) ListTemplatesByOwner(ctx context.Context, ownerID int64) ([]model.MissionTemplate, error) {
	return s.listTemplates(ctx,
		`SELECT `+templateCols+` FROM mission_templates WHERE owner_user_id = ? ORDER BY is_active DESC, title ASC`,
		ownerID,
	)
}

// ListActiveAssignedTemplates returns every active template that has an assignee.
func (s *MissionStore) ListActiveAssignedTemplates(ctx context.Context) ([]model.MissionTemplate, error) {
	return s.listTemplates(ctx,
		`SELECT `+templateCols+` FROM mission_templates WHERE is_active = 1 AND assignee_user_id IS NOT NULL ORDER BY id`,
	)
}

func (s *MissionStore) listTemplates(ctx context.Context, query string, args ...any) ([]model.MissionTemplate, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []model.MissionTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

func (s *MissionStore) UpdateTemplate(ctx context.Context, t *model.MissionTemplate) (*model.MissionTemplate, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE mission_templates SET assignee_user_id = ?, title = ?, description = ?, reward_amount = ?, category = ?,
		 mission_type = ?, recurring_pattern = ?, is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		nullInt64(t.AssigneeUserID), t.Title, t.Description, t.RewardAmount, t.Category,
		t.MissionType, t.RecurringPattern, t.IsActive, t.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	return s.GetTemplate(ctx, t.ID)
}

func (s *MissionStore) SetTemplateActive(ctx context.Context, id int64, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE mission_templates SET is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("set template active: %w", err)
	}
	return nil
}

func (s *MissionStore) DeleteTemplate(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM mission_templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return nil
}

func (s *MissionStore) CountInstancesForTemplate(ctx context.Context, templateID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM mission_instances WHERE template_id = ?`, templateID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count template instances: %w", err)
	}
	return n, nil
}

// --- Instance methods ---

func scanMission(scanner interface{ Scan(...any) error }) (*model.MissionInstance, error) {
	var m model.MissionInstance
	var templateID sql.NullInt64
	var completedAt, transferredAt sql.NullTime

	err := scanner.Scan(
		&m.ID, &m.UserID, &templateID, &m.Date, &m.Title, &m.Description, &m.RewardAmount,
		&m.Category, &m.MissionType, &m.IsCompleted, &completedAt, &m.IsTransferred, &transferredAt,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.TemplateID = int64Ptr(templateID)
	m.CompletedAt = timePtr(completedAt)
	m.TransferredAt = timePtr(transferredAt)
	return &m, nil
}

const missionCols = `id, user_id, template_id, date, title, description, reward_amount, category, mission_type, is_completed, completed_at, is_transferred, transferred_at, created_at, updated_at`

func (s *MissionStore) Create(ctx context.Context, m *model.MissionInstance) (*model.MissionInstance, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO mission_instances (user_id, template_id, date, title, description, reward_amount, category, mission_type)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.UserID, nullInt64(m.TemplateID), m.Date, m.Title, m.Description, m.RewardAmount, m.Category, m.MissionType,
	)
	if err != nil {
		return nil, fmt.Errorf("insert mission: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *MissionStore) GetByID(ctx context.Context, id int64) (*model.MissionInstance, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+missionCols+` FROM mission_instances WHERE id = ?`, id)
	m, err := scanMission(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get mission: %w", err)
	}
	return m, nil
}

func (s *MissionStore) ListByUserAndDate(ctx context.Context, userID int64, date string) ([]model.MissionInstance, error) {
	return s.list(ctx,
		`SELECT `+missionCols+` FROM mission_instances WHERE user_id = ? AND date = ? ORDER BY mission_type ASC, id ASC`,
		userID, date,
	)
}

// ListPending returns completed, unpaid missions of the given users dated
// within [from, to], oldest first.
func (s *MissionStore) ListPending(ctx context.Context, userIDs []int64, from, to string) ([]model.MissionInstance, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	args := append(int64Args(userIDs), from, to)
	return s.list(ctx,
		`SELECT `+missionCols+` FROM mission_instances
		 WHERE user_id IN (`+placeholders(len(userIDs))+`) AND is_completed = 1 AND is_transferred = 0
		 AND date >= ? AND date <= ?
		 ORDER BY date ASC, id ASC`,
		args...,
	)
}

func (s *MissionStore) list(ctx context.Context, query string, args ...any) ([]model.MissionInstance, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}
	defer rows.Close()

	var missions []model.MissionInstance
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mission: %w", err)
		}
		missions = append(missions, *m)
	}
	return missions, rows.Err()
}

// SetCompleted marks an incomplete, unpaid mission completed.
func (s *MissionStore) SetCompleted(ctx context.Context, id int64, at time.Time) (bool, error) {
	return s.exec(ctx, "complete mission",
		`UPDATE mission_instances SET is_completed = 1, completed_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND is_completed = 0 AND is_transferred = 0`,
		at.UTC(), id,
	)
}

// SetUncompleted clears completion unless the mission has been paid.
func (s *MissionStore) SetUncompleted(ctx context.Context, id int64) (bool, error) {
	return s.exec(ctx, "uncomplete mission",
		`UPDATE mission_instances SET is_completed = 0, completed_at = NULL, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND is_transferred = 0`,
		id,
	)
}

// Update rewrites the editable fields unless the mission has been paid.
func (s *MissionStore) Update(ctx context.Context, m *model.MissionInstance) (bool, error) {
	return s.exec(ctx, "update mission",
		`UPDATE mission_instances SET date = ?, title = ?, description = ?, reward_amount = ?, category = ?,
		 mission_type = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND is_transferred = 0`,
		m.Date, m.Title, m.Description, m.RewardAmount, m.Category, m.MissionType, m.ID,
	)
}

// Delete removes the mission unless it has been paid.
func (s *MissionStore) Delete(ctx context.Context, id int64) (bool, error) {
	return s.exec(ctx, "delete mission",
		`DELETE FROM mission_instances WHERE id = ? AND is_transferred = 0`, id)
}

// MarkTransferred flips a completed, unpaid mission to transferred.
func (s *MissionStore) MarkTransferred(ctx context.Context, id int64, at time.Time) (bool, error) {
	return s.exec(ctx, "mark mission transferred",
		`UPDATE mission_instances SET is_transferred = 1, transferred_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND is_completed = 1 AND is_transferred = 0`,
		at.UTC(), id,
	)
}

// CountDaily returns how many daily missions a user has on date and how many
// of those are completed.
func (s *MissionStore) CountDaily(ctx context.Context, userID int64, date string) (total, completed int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(is_completed), 0) FROM mission_instances
		 WHERE user_id = ? AND date = ? AND mission_type = 'daily'`,
		userID, date,
	).Scan(&total, &completed)
	if err != nil {
		return 0, 0, fmt.Errorf("count daily missions: %w", err)
	}
	return total, completed, nil
}

func (s *MissionStore) exec(ctx context.Context, op, query string, args ...any) (bool, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	return n > 0, nil
}
