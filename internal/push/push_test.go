package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/moneyseed/moneyseed/internal/database"
	"github.com/moneyseed/moneyseed/internal/model"
	"github.com/moneyseed/moneyseed/internal/store"
	"github.com/shopspring/decimal"
)

// browserKeys returns a p256dh/auth pair like a browser subscription carries.
func browserKeys(t *testing.T) (p256dh, auth string) {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	secret := make([]byte, 16)
	rand.Read(secret)
	return base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()), base64.RawURLEncoding.EncodeToString(secret)
}

func setupService(t *testing.T, status int) (*Service, *store.PushStore, *model.Profile, *atomic.Int32) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Authorization") == "" {
			t.Error("missing VAPID authorization header")
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}

	ctx := context.Background()
	kid, _ := store.NewProfileStore(db).Create(ctx, "Alice", model.RoleChild, "")
	subs := store.NewPushStore(db)
	p256dh, auth := browserKeys(t)
	if _, err := subs.CreateSubscription(ctx, kid.ID, srv.URL+"/sub/1", p256dh, auth, "Tablet"); err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	svc := NewService(Config{VAPIDPublicKey: pub, VAPIDPrivateKey: priv, Subject: "mailto:test@example.com"}, subs, slog.Default())
	svc.client = srv.Client()
	return svc, subs, kid, &hits
}

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}

	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(pubBytes) != 65 {
		t.Errorf("public key length = %d, want 65", len(pubBytes))
	}

	privBytes, err := base64.RawURLEncoding.DecodeString(priv)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}
	if len(privBytes) != 32 {
		t.Errorf("private key length = %d, want 32", len(privBytes))
	}

	pub2, _, _ := GenerateVAPIDKeys()
	if pub == pub2 {
		t.Error("expected different keys on second generation")
	}
}

func TestNotifyUserDelivers(t *testing.T) {
	svc, subs, kid, hits := setupService(t, http.StatusCreated)

	n, err := svc.NotifyUser(context.Background(), kid.ID, Payload{Title: "Hi", Body: "there"})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if n != 1 || hits.Load() != 1 {
		t.Errorf("delivered = %d hits = %d, want 1 1", n, hits.Load())
	}
	if list, _ := subs.ListByUser(context.Background(), kid.ID); len(list) != 1 {
		t.Errorf("subscriptions = %d, want 1", len(list))
	}
}

func TestNotifyUserRemovesExpired(t *testing.T) {
	svc, subs, kid, _ := setupService(t, http.StatusGone)

	svc.StreakMilestone(context.Background(), kid.ID, 7, decimal.NewFromInt(500))

	if list, _ := subs.ListByUser(context.Background(), kid.ID); len(list) != 0 {
		t.Errorf("subscriptions = %d, want expired one removed", len(list))
	}
}

func TestNotifyUserKeepsOnServerError(t *testing.T) {
	svc, subs, kid, _ := setupService(t, http.StatusInternalServerError)

	n, err := svc.NotifyUser(context.Background(), kid.ID, Payload{Title: "Hi"})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if n != 0 {
		t.Errorf("delivered = %d, want 0", n)
	}
	if list, _ := subs.ListByUser(context.Background(), kid.ID); len(list) != 1 {
		t.Errorf("subscriptions = %d, want 1", len(list))
	}
}
