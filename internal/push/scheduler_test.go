package push

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/moneyseed/moneyseed/internal/database"
	"github.com/moneyseed/moneyseed/internal/kst"
	"github.com/moneyseed/moneyseed/internal/model"
	"github.com/moneyseed/moneyseed/internal/settlement"
	"github.com/moneyseed/moneyseed/internal/store"
)

type fakeNotifier struct {
	sent map[int64][]Payload
}

func (f *fakeNotifier) NotifyUser(ctx context.Context, userID int64, p Payload) (int, error) {
	f.sent[userID] = append(f.sent[userID], p)
	return 1, nil
}

type fakePending map[int64][]settlement.PendingMission

func (f fakePending) GetPendingRewardMissions(ctx context.Context, parentID int64) ([]settlement.PendingMission, error) {
	return f[parentID], nil
}

func pendingMission(id int64, priority settlement.Priority) settlement.PendingMission {
	return settlement.PendingMission{MissionInstance: model.MissionInstance{ID: id}, Priority: priority}
}

func TestSchedulerRewardsWaiting(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	profiles := store.NewProfileStore(db)
	subs := store.NewPushStore(db)
	mom, _ := profiles.Create(ctx, "Mom", model.RoleParent, "KIM")
	dad, _ := profiles.Create(ctx, "Dad", model.RoleParent, "LEE")
	kid, _ := profiles.Create(ctx, "Alice", model.RoleChild, "KIM")
	for i, id := range []int64{mom.ID, dad.ID, kid.ID} {
		subs.CreateSubscription(ctx, id, "https://push.example.com/"+string(rune('a'+i)), "k", "a", "")
	}

	pending := fakePending{
		mom.ID: {pendingMission(1, settlement.PriorityHigh), pendingMission(2, settlement.PriorityNormal)},
		dad.ID: {pendingMission(3, settlement.PriorityNormal)},
	}
	now := time.Date(2025, 3, 10, 23, 30, 0, 0, kst.Location)
	notifier := &fakeNotifier{sent: map[int64][]Payload{}}
	sched := NewScheduler(notifier, subs, profiles, pending, func() time.Time { return now }, time.Minute, slog.Default())

	sched.Tick(ctx)
	sched.Tick(ctx)

	if got := len(notifier.sent[mom.ID]); got != 1 {
		t.Errorf("mom notifications = %d, want 1", got)
	}
	if got := len(notifier.sent[dad.ID]); got != 0 {
		t.Errorf("dad notifications = %d, want 0 (nothing high priority)", got)
	}
	if got := len(notifier.sent[kid.ID]); got != 0 {
		t.Errorf("child notifications = %d, want 0", got)
	}
	if body := notifier.sent[mom.ID][0].Body; body != "A mission has been waiting for its reward" {
		t.Errorf("body = %q", body)
	}

	// Next KST day sends again.
	now = now.Add(time.Hour)
	sched.Tick(ctx)
	if got := len(notifier.sent[mom.ID]); got != 2 {
		t.Errorf("mom notifications after midnight = %d, want 2", got)
	}
}

func TestSchedulerStartStop(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sched := NewScheduler(&fakeNotifier{sent: map[int64][]Payload{}}, store.NewPushStore(db), store.NewProfileStore(db), fakePending{}, nil, 10*time.Millisecond, slog.Default())
	sched.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	sched.Stop()
}
