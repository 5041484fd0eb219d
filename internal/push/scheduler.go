package push

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/moneyseed/moneyseed/internal/kst"
	"github.com/moneyseed/moneyseed/internal/model"
	"github.com/moneyseed/moneyseed/internal/settlement"
	"github.com/moneyseed/moneyseed/internal/store"
)

const sentRetention = 30 * 24 * time.Hour

// PendingSource lists a parent's unpaid missions.
type PendingSource interface {
	GetPendingRewardMissions(ctx context.Context, parentID int64) ([]settlement.PendingMission, error)
}

// Notifier delivers a payload to a user's devices.
type Notifier interface {
	NotifyUser(ctx context.Context, userID int64, payload Payload) (int, error)
}

// Scheduler reminds parents once per KST day when missions have been
// waiting for payment long enough to be high priority.
type Scheduler struct {
	mu       sync.RWMutex
	notifier Notifier
	push     *store.PushStore
	profiles *store.ProfileStore
	pending  PendingSource
	clock    kst.Clock
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewScheduler(notifier Notifier, pushStore *store.PushStore, profiles *store.ProfileStore, pending PendingSource, clock kst.Clock, interval time.Duration, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = kst.SystemClock
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		notifier: notifier,
		push:     pushStore,
		profiles: profiles,
		pending:  pending,
		clock:    clock,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Tick runs one pass over every subscribed user.
func (s *Scheduler) Tick(ctx context.Context) {
	userIDs, err := s.push.ListUserIDs(ctx)
	if err != nil {
		s.logger.Error("list subscribed users", "error", err)
		return
	}

	today := kst.Today(s.clock)
	for _, id := range userIDs {
		s.checkRewardsWaiting(ctx, id, today)
	}

	if err := s.push.CleanupSent(ctx, s.clock().Add(-sentRetention)); err != nil {
		s.logger.Error("cleanup sent notifications", "error", err)
	}
}

func (s *Scheduler) checkRewardsWaiting(ctx context.Context, userID int64, today string) {
	p, err := s.profiles.GetByID(ctx, userID)
	if err != nil || p == nil || p.Role != model.RoleParent {
		return
	}

	sent, err := s.push.WasSent(ctx, userID, model.NotifTypeRewardsWaiting, today)
	if err != nil {
		s.logger.Error("check sent", "user_id", userID, "error", err)
		return
	}
	if sent {
		return
	}

	missions, err := s.pending.GetPendingRewardMissions(ctx, userID)
	if err != nil {
		s.logger.Error("list pending rewards", "user_id", userID, "error", err)
		return
	}
	high := settlement.GetSmartSelection(missions)
	if len(high) == 0 {
		return
	}

	body := fmt.Sprintf("%d missions have been waiting for their reward", len(high))
	if len(high) == 1 {
		body = "A mission has been waiting for its reward"
	}
	delivered, err := s.notifier.NotifyUser(ctx, userID, Payload{
		Title: "Rewards waiting",
		Body:  body,
		URL:   "/settlement",
		Tag:   "rewards-waiting",
	})
	if err != nil {
		s.logger.Error("send rewards reminder", "user_id", userID, "error", err)
		return
	}
	if delivered == 0 {
		return
	}
	if err := s.push.RecordSent(ctx, userID, model.NotifTypeRewardsWaiting, today); err != nil {
		s.logger.Error("record sent", "user_id", userID, "error", err)
	}
}
