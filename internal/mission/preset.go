package mission

import (
	"context"
	"fmt"
	"io"

	"github.com/moneyseed/moneyseed/internal/errs"
	"github.com/moneyseed/moneyseed/internal/model"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Preset is one entry of a YAML template catalog:
//
//	presets:
//	  - title: Make the bed
//	    reward: 500
//	    type: daily
//	    repeat: FREQ=DAILY
type Preset struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Reward      string `yaml:"reward"`
	Category    string `yaml:"category"`
	Type        string `yaml:"type"`
	Repeat      string `yaml:"repeat"`
}

type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

// ParsePresets decodes a YAML preset catalog.
func ParsePresets(r io.Reader) ([]Preset, error) {
	var f presetFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if err == io.EOF {
			return nil, errs.Invalid("presets", "document is empty")
		}
		return nil, errs.Invalid("presets", err.Error())
	}
	if len(f.Presets) == 0 {
		return nil, errs.Invalid("presets", "no presets defined")
	}
	return f.Presets, nil
}

func (p Preset) input(assigneeID *int64) (TemplateInput, error) {
	reward, err := decimal.NewFromString(p.Reward)
	if err != nil {
		return TemplateInput{}, errs.Invalid("reward", fmt.Sprintf("preset %q: %q is not an amount", p.Title, p.Reward))
	}
	typ := model.MissionType(p.Type)
	if typ == "" {
		typ = model.MissionDaily
	}
	return TemplateInput{
		AssigneeUserID:   assigneeID,
		Title:            p.Title,
		Description:      p.Description,
		RewardAmount:     reward,
		Category:         p.Category,
		MissionType:      typ,
		RecurringPattern: p.Repeat,
	}, nil
}

// ImportPresets validates every preset, then creates one template per preset.
func (s *Service) ImportPresets(ctx context.Context, ownerID int64, assigneeID *int64, presets []Preset) ([]model.MissionTemplate, error) {
	inputs := make([]TemplateInput, len(presets))
	for i, p := range presets {
		in, err := p.input(assigneeID)
		if err != nil {
			return nil, err
		}
		if err := in.validate(); err != nil {
			return nil, fmt.Errorf("preset %d: %w", i+1, err)
		}
		inputs[i] = in
	}

	templates := make([]model.MissionTemplate, 0, len(inputs))
	for _, in := range inputs {
		t, err := s.CreateTemplate(ctx, ownerID, in)
		if err != nil {
			return templates, err
		}
		templates = append(templates, *t)
	}
	return templates, nil
}
