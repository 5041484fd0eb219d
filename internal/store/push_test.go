package store

import (
	"context"
	"testing"
	"time"

	"github.com/moneyseed/moneyseed/internal/model"
)

func TestCreateSubscriptionUpsert(t *testing.T) {
	db := setupTestDB(t)
	ps := NewPushStore(db)
	ctx := context.Background()
	u := createProfile(t, db, "Mom", model.RoleParent)

	sub1, err := ps.CreateSubscription(ctx, u.ID, "https://push.example.com/sub1", "key1", "auth1", "Device A")
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	sub2, err := ps.CreateSubscription(ctx, u.ID, "https://push.example.com/sub1", "key2", "auth2", "Device B")
	if err != nil {
		t.Fatalf("upsert subscription: %v", err)
	}
	if sub2.ID != sub1.ID {
		t.Errorf("expected same ID on upsert, got %d != %d", sub2.ID, sub1.ID)
	}
	if sub2.P256dhKey != "key2" {
		t.Errorf("p256dh = %q, want %q", sub2.P256dhKey, "key2")
	}

	ids, _ := ps.ListUserIDs(ctx)
	if len(ids) != 1 || ids[0] != u.ID {
		t.Errorf("user ids = %v", ids)
	}

	if err := ps.DeleteByEndpoint(ctx, "https://push.example.com/sub1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	subs, _ := ps.ListByUser(ctx, u.ID)
	if len(subs) != 0 {
		t.Errorf("subs = %d, want 0", len(subs))
	}
}

func TestDeleteSubscriptionScopedToUser(t *testing.T) {
	db := setupTestDB(t)
	ps := NewPushStore(db)
	ctx := context.Background()
	mom := createProfile(t, db, "Mom", model.RoleParent)
	kid := createProfile(t, db, "Alice", model.RoleChild)

	sub, _ := ps.CreateSubscription(ctx, mom.ID, "https://push.example.com/mom", "k", "a", "Phone")

	deleted, err := ps.DeleteSubscription(ctx, sub.ID, kid.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted {
		t.Error("another user's subscription should not be deleted")
	}
	deleted, _ = ps.DeleteSubscription(ctx, sub.ID, mom.ID)
	if !deleted {
		t.Error("expected own subscription to be deleted")
	}
}

func TestSentNotificationDedup(t *testing.T) {
	db := setupTestDB(t)
	ps := NewPushStore(db)
	ctx := context.Background()

	sent, _ := ps.WasSent(ctx, 1, model.NotifTypeRewardsWaiting, "2025-03-01")
	if sent {
		t.Fatal("unexpected sent record")
	}
	ps.RecordSent(ctx, 1, model.NotifTypeRewardsWaiting, "2025-03-01")
	ps.RecordSent(ctx, 1, model.NotifTypeRewardsWaiting, "2025-03-01")
	sent, _ = ps.WasSent(ctx, 1, model.NotifTypeRewardsWaiting, "2025-03-01")
	if !sent {
		t.Error("expected sent record")
	}

	if err := ps.CleanupSent(ctx, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	sent, _ = ps.WasSent(ctx, 1, model.NotifTypeRewardsWaiting, "2025-03-01")
	if sent {
		t.Error("record survived cleanup")
	}
}
