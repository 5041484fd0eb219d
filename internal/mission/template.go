package mission

import (
	"context"
	"strings"

	"github.com/moneyseed/moneyseed/internal/errs"
	"github.com/moneyseed/moneyseed/internal/kst"
	"github.com/moneyseed/moneyseed/internal/model"
	"github.com/moneyseed/moneyseed/internal/realtime"
	"github.com/moneyseed/moneyseed/internal/recurrence"
	"github.com/shopspring/decimal"
)

// TemplateInput carries the editable fields of a template.
type TemplateInput struct {
	AssigneeUserID   *int64            `json:"assignee_user_id"`
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	RewardAmount     decimal.Decimal   `json:"reward_amount"`
	Category         string            `json:"category"`
	MissionType      model.MissionType `json:"mission_type"`
	RecurringPattern string            `json:"recurring_pattern"`
	IsActive         *bool             `json:"is_active"`
}

func (in *TemplateInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.RecurringPattern = strings.TrimSpace(in.RecurringPattern)
	if in.Title == "" {
		return errs.Invalid("title", "is required")
	}
	if !in.RewardAmount.IsPositive() {
		return errs.Invalid("reward_amount", "must be greater than zero")
	}
	if !in.MissionType.Valid() {
		return errs.Invalid("mission_type", "must be daily or event")
	}
	if in.RecurringPattern != "" {
		if _, err := recurrence.Parse(in.RecurringPattern); err != nil {
			return errs.Invalid("recurring_pattern", err.Error())
		}
	}
	return nil
}

// effectiveRule returns the rule a template fires on. Daily templates without
// a pattern repeat every day; event templates without one never fire.
func effectiveRule(t *model.MissionTemplate) (recurrence.Rule, bool) {
	pattern := t.RecurringPattern
	if pattern == "" {
		if t.MissionType != model.MissionDaily {
			return recurrence.Rule{}, false
		}
		pattern = "FREQ=DAILY"
	}
	rule, err := recurrence.Parse(pattern)
	if err != nil {
		return recurrence.Rule{}, false
	}
	return rule, true
}

func (s *Service) GetTemplate(ctx context.Context, id int64) (*model.MissionTemplate, error) {
	t, err := s.missions.GetTemplate(ctx, id)
	if err != nil {
		return nil, errs.Unavailable("get template", err)
	}
	if t == nil {
		return nil, errs.NotFound("template", id)
	}
	return t, nil
}

func (s *Service) ListTemplates(ctx context.Context, ownerID int64) ([]model.MissionTemplate, error) {
	templates, err := s.missions.ListTemplatesByOwner(ctx, ownerID)
	if err != nil {
		return nil, errs.Unavailable("list templates", err)
	}
	return templates, nil
}

func (s *Service) CreateTemplate(ctx context.Context, ownerID int64, in TemplateInput) (*model.MissionTemplate, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	t, err := s.missions.CreateTemplate(ctx, &model.MissionTemplate{
		OwnerUserID:      ownerID,
		AssigneeUserID:   in.AssigneeUserID,
		Title:            in.Title,
		Description:      in.Description,
		RewardAmount:     in.RewardAmount,
		Category:         in.Category,
		MissionType:      in.MissionType,
		RecurringPattern: in.RecurringPattern,
		IsActive:         active,
	})
	if err != nil {
		return nil, errs.Unavailable("create template", err)
	}
	s.feed.Publish(realtime.Change{Table: realtime.TableTemplates, Op: realtime.OpInsert, UserID: ownerID, ID: t.ID, Row: t})
	return t, nil
}

func (s *Service) UpdateTemplate(ctx context.Context, id int64, in TemplateInput) (*model.MissionTemplate, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	t, err := s.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	t.AssigneeUserID = in.AssigneeUserID
	t.Title = in.Title
	t.Description = in.Description
	t.RewardAmount = in.RewardAmount
	t.Category = in.Category
	t.MissionType = in.MissionType
	t.RecurringPattern = in.RecurringPattern
	if in.IsActive != nil {
		t.IsActive = *in.IsActive
	}

	t, err = s.missions.UpdateTemplate(ctx, t)
	if err != nil {
		return nil, errs.Unavailable("update template", err)
	}
	s.feed.Publish(realtime.Change{Table: realtime.TableTemplates, Op: realtime.OpUpdate, UserID: t.OwnerUserID, ID: t.ID, Row: t})
	return t, nil
}

// DisableTemplate stops a template from firing without touching its history.
func (s *Service) DisableTemplate(ctx context.Context, id int64) error {
	t, err := s.GetTemplate(ctx, id)
	if err != nil {
		return err
	}
	if err := s.missions.SetTemplateActive(ctx, id, false); err != nil {
		return errs.Unavailable("disable template", err)
	}
	s.feed.Publish(realtime.Change{Table: realtime.TableTemplates, Op: realtime.OpUpdate, UserID: t.OwnerUserID, ID: id})
	return nil
}

// DeleteTemplate removes a template that never spawned a mission. A template
// with instances is disabled instead; hard reports which happened.
func (s *Service) DeleteTemplate(ctx context.Context, id int64) (hard bool, err error) {
	t, err := s.GetTemplate(ctx, id)
	if err != nil {
		return false, err
	}
	n, err := s.missions.CountInstancesForTemplate(ctx, id)
	if err != nil {
		return false, errs.Unavailable("count template instances", err)
	}
	if n > 0 {
		return false, s.DisableTemplate(ctx, id)
	}
	if err := s.missions.DeleteTemplate(ctx, id); err != nil {
		return false, errs.Unavailable("delete template", err)
	}
	s.feed.Publish(realtime.Change{Table: realtime.TableTemplates, Op: realtime.OpDelete, UserID: t.OwnerUserID, ID: id})
	return true, nil
}

// FireTemplates creates a mission for every active, assigned template whose
// pattern is due on date. It does not check for missions created by an
// earlier run on the same date.
func (s *Service) FireTemplates(ctx context.Context, date string) ([]model.MissionInstance, error) {
	if !kst.ValidDate(date) {
		return nil, errs.Invalid("date", "must be YYYY-MM-DD")
	}
	templates, err := s.missions.ListActiveAssignedTemplates(ctx)
	if err != nil {
		return nil, errs.Unavailable("list active templates", err)
	}

	var created []model.MissionInstance
	for _, t := range templates {
		rule, ok := effectiveRule(&t)
		if !ok || !rule.OccursOn(kst.FormatDate(t.CreatedAt), date) {
			continue
		}
		templateID := t.ID
		m, err := s.CreateInstance(ctx, NewInstance{
			UserID:       *t.AssigneeUserID,
			TemplateID:   &templateID,
			Date:         date,
			Title:        t.Title,
			Description:  t.Description,
			RewardAmount: t.RewardAmount,
			Category:     t.Category,
			MissionType:  t.MissionType,
		})
		if err != nil {
			return created, err
		}
		created = append(created, *m)
	}
	s.logger.Info("templates fired", "date", date, "created", len(created))
	return created, nil
}
