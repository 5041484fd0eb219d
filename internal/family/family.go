// Package family resolves which users a parent may see and act on. Two link
// models coexist: the legacy shared family code on a profile and the
// relational families/family_members tables. Both normalize to a Context.
package family

import (
	"context"
	"fmt"
	"slices"

	"github.com/moneyseed/moneyseed/internal/errs"
	"github.com/moneyseed/moneyseed/internal/model"
	"github.com/moneyseed/moneyseed/internal/store"
)

// Link identifies how a user is attached to a family.
type Link interface {
	isLink()
}

// LegacyCode links every profile sharing the same family code.
type LegacyCode struct {
	Code string
}

// Relational links users through a family_members row.
type Relational struct {
	FamilyID int64
	MemberID int64
}

// Solo is a user that belongs to no family yet.
type Solo struct{}

func (LegacyCode) isLink() {}
func (Relational) isLink() {}
func (Solo) isLink()       {}

// Context is the resolved view of a user's family.
type Context struct {
	UserID    int64            `json:"user_id"`
	Role      model.Role       `json:"role"`
	ParentID  int64            `json:"parent_id"`
	ParentIDs []int64          `json:"parent_ids"`
	ChildIDs  []int64          `json:"child_ids"`
	Names     map[int64]string `json:"names"`
	Link      Link             `json:"-"`
}

// HasChild reports whether id is a child in this family.
func (c *Context) HasChild(id int64) bool {
	return slices.Contains(c.ChildIDs, id)
}

// Includes reports whether id is any member of this family.
func (c *Context) Includes(id int64) bool {
	return id == c.UserID || c.HasChild(id) || slices.Contains(c.ParentIDs, id)
}

type Resolver struct {
	profiles *store.ProfileStore
	families *store.FamilyStore
}

func NewResolver(profiles *store.ProfileStore, families *store.FamilyStore) *Resolver {
	return &Resolver{profiles: profiles, families: families}
}

// LinkFor returns the link model of a user. Relational membership wins over a
// legacy code when both are present.
func (r *Resolver) LinkFor(ctx context.Context, p *model.Profile) (Link, error) {
	m, err := r.families.GetMemberByUser(ctx, p.ID)
	if err != nil {
		return nil, errs.Unavailable("get family member", err)
	}
	if m != nil {
		return Relational{FamilyID: m.FamilyID, MemberID: m.ID}, nil
	}
	if p.FamilyCode != "" {
		return LegacyCode{Code: p.FamilyCode}, nil
	}
	return Solo{}, nil
}

// Resolve builds the family context of userID.
func (r *Resolver) Resolve(ctx context.Context, userID int64) (*Context, error) {
	p, err := r.profiles.GetByID(ctx, userID)
	if err != nil {
		return nil, errs.Unavailable("get profile", err)
	}
	if p == nil {
		return nil, errs.NotFound("profile", userID)
	}

	link, err := r.LinkFor(ctx, p)
	if err != nil {
		return nil, err
	}

	var members []model.Profile
	switch l := link.(type) {
	case Relational:
		rows, err := r.families.ListMembers(ctx, l.FamilyID)
		if err != nil {
			return nil, errs.Unavailable("list family members", err)
		}
		ids := make([]int64, len(rows))
		for i, m := range rows {
			ids[i] = m.UserID
		}
		members, err = r.profiles.ListByIDs(ctx, ids)
		if err != nil {
			return nil, errs.Unavailable("list profiles", err)
		}
	case LegacyCode:
		members, err = r.profiles.ListByFamilyCode(ctx, l.Code)
		if err != nil {
			return nil, errs.Unavailable("list profiles by code", err)
		}
	default:
		members = []model.Profile{*p}
	}

	fc := &Context{
		UserID: p.ID,
		Role:   p.Role,
		Names:  make(map[int64]string, len(members)),
		Link:   link,
	}
	for _, m := range members {
		fc.Names[m.ID] = m.Name
		if m.Role == model.RoleParent {
			fc.ParentIDs = append(fc.ParentIDs, m.ID)
		} else {
			fc.ChildIDs = append(fc.ChildIDs, m.ID)
		}
	}
	if p.Role == model.RoleParent {
		fc.ParentID = p.ID
	} else if len(fc.ParentIDs) > 0 {
		fc.ParentID = fc.ParentIDs[0]
	}
	return fc, nil
}

// ParentOf resolves parentID and fails with ErrForbidden unless the user is
// a parent.
func (r *Resolver) ParentOf(ctx context.Context, parentID int64) (*Context, error) {
	fc, err := r.Resolve(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if fc.Role != model.RoleParent {
		return nil, fmt.Errorf("user %d is not a parent: %w", parentID, errs.ErrForbidden)
	}
	return fc, nil
}

// AddChild creates a child profile attached to the parent's family. A parent
// without a family gets a relational family created on the fly.
func (r *Resolver) AddChild(ctx context.Context, parentID int64, name string) (*model.Profile, error) {
	if name == "" {
		return nil, errs.Invalid("name", "is required")
	}
	fc, err := r.ParentOf(ctx, parentID)
	if err != nil {
		return nil, err
	}

	switch l := fc.Link.(type) {
	case LegacyCode:
		child, err := r.profiles.Create(ctx, name, model.RoleChild, l.Code)
		if err != nil {
			return nil, errs.Unavailable("create child", err)
		}
		return child, nil
	case Relational:
		return r.addRelationalChild(ctx, l.FamilyID, name)
	default:
		fam, err := r.families.Create(ctx, fc.Names[parentID])
		if err != nil {
			return nil, errs.Unavailable("create family", err)
		}
		if _, err := r.families.AddMember(ctx, fam.ID, parentID, model.RoleParent); err != nil {
			return nil, errs.Unavailable("add parent to family", err)
		}
		return r.addRelationalChild(ctx, fam.ID, name)
	}
}

func (r *Resolver) addRelationalChild(ctx context.Context, familyID int64, name string) (*model.Profile, error) {
	child, err := r.profiles.Create(ctx, name, model.RoleChild, "")
	if err != nil {
		return nil, errs.Unavailable("create child", err)
	}
	if _, err := r.families.AddMember(ctx, familyID, child.ID, model.RoleChild); err != nil {
		return nil, errs.Unavailable("add child to family", err)
	}
	return child, nil
}
