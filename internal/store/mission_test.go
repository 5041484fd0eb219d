package store

import (
	"context"
	"testing"
	"time"

	"github.com/moneyseed/moneyseed/internal/model"
	"github.com/shopspring/decimal"
)

func TestMissionCompleteUncomplete(t *testing.T) {
	db := setupTestDB(t)
	ms := NewMissionStore(db)
	ctx := context.Background()
	child := createProfile(t, db, "Jisoo", model.RoleChild)
	m := createMission(t, ms, child.ID, "2025-03-01", model.MissionDaily, "500")

	ok, err := ms.SetCompleted(ctx, m.ID, time.Now())
	if err != nil || !ok {
		t.Fatalf("complete: ok=%v err=%v", ok, err)
	}
	// Completing twice is a no-op.
	ok, _ = ms.SetCompleted(ctx, m.ID, time.Now())
	if ok {
		t.Error("second complete should not change the row")
	}

	got, _ := ms.GetByID(ctx, m.ID)
	if !got.IsCompleted || got.CompletedAt == nil {
		t.Errorf("got %+v, want completed", got)
	}
	if !got.RewardAmount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("reward = %s, want 500", got.RewardAmount)
	}

	ok, err = ms.SetUncompleted(ctx, m.ID)
	if err != nil || !ok {
		t.Fatalf("uncomplete: ok=%v err=%v", ok, err)
	}
	got, _ = ms.GetByID(ctx, m.ID)
	if got.IsCompleted || got.CompletedAt != nil {
		t.Errorf("got %+v, want not completed", got)
	}
}

func TestMissionTransferredIsImmutable(t *testing.T) {
	db := setupTestDB(t)
	ms := NewMissionStore(db)
	ctx := context.Background()
	child := createProfile(t, db, "Jisoo", model.RoleChild)
	m := createMission(t, ms, child.ID, "2025-03-01", model.MissionDaily, "500")

	// Not completed yet: cannot be transferred.
	if ok, _ := ms.MarkTransferred(ctx, m.ID, time.Now()); ok {
		t.Fatal("transferred an incomplete mission")
	}

	ms.SetCompleted(ctx, m.ID, time.Now())
	if ok, err := ms.MarkTransferred(ctx, m.ID, time.Now()); err != nil || !ok {
		t.Fatalf("mark transferred: ok=%v err=%v", ok, err)
	}

	if ok, _ := ms.SetUncompleted(ctx, m.ID); ok {
		t.Error("uncompleted a transferred mission")
	}
	m.Title = "changed"
	if ok, _ := ms.Update(ctx, m); ok {
		t.Error("updated a transferred mission")
	}
	if ok, _ := ms.Delete(ctx, m.ID); ok {
		t.Error("deleted a transferred mission")
	}
	if ok, _ := ms.MarkTransferred(ctx, m.ID, time.Now()); ok {
		t.Error("transferred twice")
	}

	got, _ := ms.GetByID(ctx, m.ID)
	if !got.IsTransferred || !got.IsCompleted || got.Title != "Make bed" {
		t.Errorf("got %+v", got)
	}
}

func TestMissionListPending(t *testing.T) {
	db := setupTestDB(t)
	ms := NewMissionStore(db)
	ctx := context.Background()
	a := createProfile(t, db, "A", model.RoleChild)
	b := createProfile(t, db, "B", model.RoleChild)

	m1 := createMission(t, ms, a.ID, "2025-03-02", model.MissionDaily, "100")
	m2 := createMission(t, ms, b.ID, "2025-03-01", model.MissionEvent, "200")
	m3 := createMission(t, ms, a.ID, "2025-01-01", model.MissionDaily, "300") // out of window
	createMission(t, ms, a.ID, "2025-03-02", model.MissionDaily, "400")      // not completed
	for _, m := range []*model.MissionInstance{m1, m2, m3} {
		ms.SetCompleted(ctx, m.ID, time.Now())
	}

	pending, err := ms.ListPending(ctx, []int64{a.ID, b.ID}, "2025-02-01", "2025-03-02")
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("len = %d, want 2", len(pending))
	}
	if pending[0].ID != m2.ID || pending[1].ID != m1.ID {
		t.Errorf("order = [%d %d], want [%d %d]", pending[0].ID, pending[1].ID, m2.ID, m1.ID)
	}

	none, err := ms.ListPending(ctx, nil, "2025-02-01", "2025-03-02")
	if err != nil || none != nil {
		t.Errorf("empty users: %v %v", none, err)
	}
}

func TestMissionCountDaily(t *testing.T) {
	db := setupTestDB(t)
	ms := NewMissionStore(db)
	ctx := context.Background()
	child := createProfile(t, db, "Jisoo", model.RoleChild)

	m1 := createMission(t, ms, child.ID, "2025-03-01", model.MissionDaily, "100")
	createMission(t, ms, child.ID, "2025-03-01", model.MissionDaily, "100")
	ev := createMission(t, ms, child.ID, "2025-03-01", model.MissionEvent, "100")
	ms.SetCompleted(ctx, m1.ID, time.Now())
	ms.SetCompleted(ctx, ev.ID, time.Now())

	total, completed, err := ms.CountDaily(ctx, child.ID, "2025-03-01")
	if err != nil {
		t.Fatalf("count daily: %v", err)
	}
	if total != 2 || completed != 1 {
		t.Errorf("total=%d completed=%d, want 2 1", total, completed)
	}
}

func TestTemplateCRUD(t *testing.T) {
	db := setupTestDB(t)
	ms := NewMissionStore(db)
	ctx := context.Background()
	parent := createProfile(t, db, "Mom", model.RoleParent)
	child := createProfile(t, db, "Jisoo", model.RoleChild)

	tmpl, err := ms.CreateTemplate(ctx, &model.MissionTemplate{
		OwnerUserID:      parent.ID,
		AssigneeUserID:   &child.ID,
		Title:            "Feed the cat",
		RewardAmount:     decimal.NewFromInt(300),
		MissionType:      model.MissionDaily,
		RecurringPattern: "FREQ=DAILY",
		IsActive:         true,
	})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	if tmpl.AssigneeUserID == nil || *tmpl.AssigneeUserID != child.ID {
		t.Errorf("assignee = %v, want %d", tmpl.AssigneeUserID, child.ID)
	}

	active, err := ms.ListActiveAssignedTemplates(ctx)
	if err != nil || len(active) != 1 {
		t.Fatalf("active templates = %d, err %v", len(active), err)
	}

	if err := ms.SetTemplateActive(ctx, tmpl.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	active, _ = ms.ListActiveAssignedTemplates(ctx)
	if len(active) != 0 {
		t.Errorf("active templates = %d, want 0", len(active))
	}

	owned, _ := ms.ListTemplatesByOwner(ctx, parent.ID)
	if len(owned) != 1 {
		t.Errorf("owned = %d, want 1", len(owned))
	}

	if err := ms.DeleteTemplate(ctx, tmpl.ID); err != nil {
		t.Fatalf("delete template: %v", err)
	}
	got, _ := ms.GetTemplate(ctx, tmpl.ID)
	if got != nil {
		t.Error("template still present after delete")
	}
}
