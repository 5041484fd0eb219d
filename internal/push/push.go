// Package push sends web push notifications to parents and children.
package push

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/moneyseed/moneyseed/internal/model"
	"github.com/moneyseed/moneyseed/internal/store"
	"github.com/shopspring/decimal"
)

// ErrExpired is returned when a push subscription is no longer valid (410 Gone).
var ErrExpired = errors.New("push subscription expired")

// Payload is the JSON delivered to the service worker.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subject         string
}

// Service sends notifications to every device a user subscribed.
type Service struct {
	cfg    Config
	subs   *store.PushStore
	client webpush.HTTPClient
	logger *slog.Logger
}

func NewService(cfg Config, subs *store.PushStore, logger *slog.Logger) *Service {
	return &Service{cfg: cfg, subs: subs, client: http.DefaultClient, logger: logger}
}

// VAPIDPublicKey returns the VAPID public key for client-side subscription.
func (s *Service) VAPIDPublicKey() string {
	return s.cfg.VAPIDPublicKey
}

// Send delivers payload to one subscription.
func (s *Service) Send(ctx context.Context, sub *model.PushSubscription, payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := webpush.SendNotificationWithContext(ctx, data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		HTTPClient:      s.client,
		VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
		Subscriber:      s.cfg.Subject,
		TTL:             86400,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		return ErrExpired
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}
	return nil
}

// NotifyUser sends payload to all of the user's devices and returns how many
// accepted it. Expired subscriptions are removed.
func (s *Service) NotifyUser(ctx context.Context, userID int64, payload Payload) (int, error) {
	subs, err := s.subs.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for i := range subs {
		sub := &subs[i]
		err := s.Send(ctx, sub, payload)
		switch {
		case errors.Is(err, ErrExpired):
			s.logger.Info("removing expired subscription", "user_id", userID, "device", sub.DeviceName)
			if err := s.subs.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
				s.logger.Error("delete expired subscription", "error", err)
			}
		case err != nil:
			s.logger.Warn("push failed", "user_id", userID, "device", sub.DeviceName, "error", err)
		default:
			delivered++
		}
	}
	return delivered, nil
}

// StreakMilestone congratulates a child who reached a streak milestone.
func (s *Service) StreakMilestone(ctx context.Context, userID int64, streak int, bonus decimal.Decimal) {
	body := fmt.Sprintf("%d days in a row!", streak)
	if bonus.IsPositive() {
		body = fmt.Sprintf("%d days in a row! You earned a %s bonus.", streak, bonus.String())
	}
	_, err := s.NotifyUser(ctx, userID, Payload{
		Title: "Streak milestone",
		Body:  body,
		URL:   "/streak",
		Tag:   fmt.Sprintf("streak-%d", streak),
	})
	if err != nil {
		s.logger.Error("streak milestone notification", "user_id", userID, "error", err)
	}
}

// GenerateVAPIDKeys generates a new ECDSA P-256 key pair for VAPID.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ECDSA key: %w", err)
	}

	pubBytes := elliptic.Marshal(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y)
	publicKey = base64.RawURLEncoding.EncodeToString(pubBytes)
	privateKey = base64.RawURLEncoding.EncodeToString(key.D.FillBytes(make([]byte, 32)))

	return publicKey, privateKey, nil
}
