package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/moneyseed/moneyseed/internal/allowance"
	"github.com/moneyseed/moneyseed/internal/auth"
	"github.com/moneyseed/moneyseed/internal/backup"
	"github.com/moneyseed/moneyseed/internal/config"
	"github.com/moneyseed/moneyseed/internal/family"
	"github.com/moneyseed/moneyseed/internal/handler"
	"github.com/moneyseed/moneyseed/internal/kst"
	"github.com/moneyseed/moneyseed/internal/middleware"
	"github.com/moneyseed/moneyseed/internal/mission"
	"github.com/moneyseed/moneyseed/internal/push"
	"github.com/moneyseed/moneyseed/internal/realtime"
	"github.com/moneyseed/moneyseed/internal/settlement"
	"github.com/moneyseed/moneyseed/internal/store"
	"github.com/moneyseed/moneyseed/internal/streak"
	ws "github.com/moneyseed/moneyseed/internal/websocket"
)

// devSecret signs tokens in dev mode when no secret is configured.
const devSecret = "moneyseed-dev-secret"

type Server struct {
	db          *sql.DB
	feed        *realtime.Feed
	hub         *ws.Hub
	detachHub   func()
	families    *family.Resolver
	profiles    *store.ProfileStore
	tokens      *auth.TokenVerifier
	rateLimiter *middleware.RateLimiter

	authH       *handler.AuthHandler
	familyH     *handler.FamilyHandler
	missionH    *handler.MissionHandler
	templateH   *handler.TemplateHandler
	settlementH *handler.SettlementHandler
	streakH     *handler.StreakHandler
	allowanceH  *handler.AllowanceHandler
	pushH       *handler.PushHandler
	backupH     *handler.BackupHandler

	pushStore     *store.PushStore
	pushScheduler *push.Scheduler
	backupManager *backup.Manager
	logger        *slog.Logger
}

// New wires stores, services and handlers. A nil clock uses the system clock.
func New(db *sql.DB, cfg *config.Config, clock kst.Clock, logger *slog.Logger) *Server {
	if clock == nil {
		clock = kst.SystemClock
	}

	feed := realtime.NewFeed(logger.With("component", "realtime"))
	hub := ws.NewHub(logger.With("component", "websocket"))
	detach := hub.Attach(feed)

	profileStore := store.NewProfileStore(db)
	familyStore := store.NewFamilyStore(db)
	missionStore := store.NewMissionStore(db)
	txnStore := store.NewTransactionStore(db)
	streakStore := store.NewStreakStore(db)
	pushSt := store.NewPushStore(db)
	backupStore := store.NewBackupStore(db)

	resolver := family.NewResolver(profileStore, familyStore)
	access := handler.NewAccess(resolver)

	// Push notification service + scheduler
	pushLogger := logger.With("component", "push")
	var pushSvc *push.Service
	var pushSched *push.Scheduler
	var pushH *handler.PushHandler
	streakOpts := streak.Options{Clock: clock, AutoClaim: cfg.AutoClaimStreakBonus}
	if cfg.PushEnabled() {
		pushSvc = push.NewService(push.Config{
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
			Subject:         cfg.VAPIDSubject,
		}, pushSt, pushLogger)
		streakOpts.Notifier = pushSvc
		pushH = handler.NewPushHandler(pushSt, pushSvc, logger.With("component", "push_handler"))
	}

	streakSvc := streak.NewService(streakStore, feed, logger.With("component", "streak"), streakOpts)
	verifier := streak.NewVerifier(streakStore, txnStore, logger.With("component", "streak_verify"))
	missionSvc := mission.NewService(missionStore, streakSvc, feed, clock, logger.With("component", "mission"))
	engine := settlement.NewEngine(missionStore, txnStore, resolver, feed, logger.With("component", "settlement"), settlement.Options{
		Clock:            clock,
		WindowDays:       cfg.PendingWindowDays,
		HighPriorityDays: cfg.HighPriorityDays,
	})
	allowanceSvc := allowance.NewService(profileStore, txnStore, feed, clock, logger.With("component", "allowance"))

	if pushSvc != nil {
		pushSched = push.NewScheduler(pushSvc, pushSt, profileStore, engine, clock, cfg.PushInterval, pushLogger)
	}

	backupMgr := backup.NewManager(backup.Config{
		S3: backup.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		},
		Passphrase:    cfg.BackupPassphrase,
		Hour:          cfg.BackupHour,
		RetentionDays: cfg.BackupRetentionDays,
	}, db, backupStore, func(s backup.Status) {
		hub.Send(ws.Message{Type: "backup_status", Row: s})
	}, logger.With("component", "backup"))

	secret := cfg.JWTSecret
	if secret == "" {
		logger.Warn("no JWT secret configured, using the dev mode secret")
		secret = devSecret
	}
	tokens := auth.NewTokenVerifier(secret, auth.TokenDuration)

	return &Server{
		db:          db,
		feed:        feed,
		hub:         hub,
		detachHub:   detach,
		families:    resolver,
		profiles:    profileStore,
		tokens:      tokens,
		rateLimiter: middleware.NewRateLimiter(),

		authH:       handler.NewAuthHandler(profileStore, tokens, access, logger.With("component", "auth")),
		familyH:     handler.NewFamilyHandler(resolver, profileStore, logger.With("component", "family")),
		missionH:    handler.NewMissionHandler(missionSvc, access, clock, logger.With("component", "mission_handler")),
		templateH:   handler.NewTemplateHandler(missionSvc, access, clock, logger.With("component", "template_handler")),
		settlementH: handler.NewSettlementHandler(engine, resolver, logger.With("component", "settlement_handler")),
		streakH:     handler.NewStreakHandler(streakSvc, verifier, access, logger.With("component", "streak_handler")),
		allowanceH:  handler.NewAllowanceHandler(allowanceSvc, profileStore, access, logger.With("component", "allowance_handler")),
		pushH:       pushH,
		backupH:     handler.NewBackupHandler(backupMgr, logger.With("component", "backup_handler")),

		pushStore:     pushSt,
		pushScheduler: pushSched,
		backupManager: backupMgr,
		logger:        logger,
	}
}

// Tokens returns the token verifier.
func (s *Server) Tokens() *auth.TokenVerifier {
	return s.tokens
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// BackupManager returns the backup manager.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

// PushScheduler returns the push notification scheduler, nil when push is
// disabled.
func (s *Server) PushScheduler() *push.Scheduler {
	return s.pushScheduler
}

// Start runs the background jobs: the reward reminder, daily backups and
// rate limiter cleanup.
func (s *Server) Start(ctx context.Context) {
	if s.pushScheduler != nil {
		s.pushScheduler.Start(ctx)
	}
	s.backupManager.Start(ctx)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.rateLimiter.Cleanup()
			}
		}
	}()
}

// Stop halts the background jobs and detaches the websocket hub from the
// change feed.
func (s *Server) Stop() {
	if s.pushScheduler != nil {
		s.pushScheduler.Stop()
	}
	s.backupManager.Stop()
	s.detachHub()
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger(s.logger.With("component", "http")))
	r.Use(chimw.Recoverer)

	r.Get("/health", s.healthHandler)

	// Public auth routes, rate limited per client address.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(s.rateLimiter, middleware.RealIP, 10, time.Minute))
		r.Post("/api/auth/signup", s.authH.Signup)
		r.Post("/api/auth/login", s.authH.Login)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(s.tokens, s.profiles))
		r.Get("/ws", ws.HandleWebSocket(s.hub, s.families, s.logger.With("component", "websocket")))
		r.Route("/api", s.registerAPIRoutes)
	})

	return r
}

func (s *Server) registerAPIRoutes(r chi.Router) {
	parent := middleware.RequireParent(s.profiles, s.rateLimiter)

	r.Post("/auth/refresh", s.authH.Refresh)

	r.Get("/family", s.familyH.Get)
	r.With(parent).Post("/family/children", s.familyH.AddChild)
	r.With(parent).Put("/family/members/{id}/pin", s.familyH.SetPIN)
	r.With(parent).Post("/family/members/{id}/token", s.authH.ChildToken)

	r.Route("/missions", func(r chi.Router) {
		r.Get("/", s.missionH.List)
		r.With(parent).Post("/", s.missionH.Create)
		r.With(parent).Patch("/{id}", s.missionH.Update)
		r.With(parent).Delete("/{id}", s.missionH.Delete)
		r.Post("/{id}/complete", s.missionH.Complete)
		r.Post("/{id}/uncomplete", s.missionH.Uncomplete)
	})

	r.Route("/templates", func(r chi.Router) {
		r.Use(parent)
		r.Get("/", s.templateH.List)
		r.Post("/", s.templateH.Create)
		r.Post("/import", s.templateH.Import)
		r.Post("/fire", s.templateH.Fire)
		r.Put("/{id}", s.templateH.Update)
		r.Delete("/{id}", s.templateH.Delete)
	})

	r.Route("/settlement", func(r chi.Router) {
		r.Use(parent)
		r.Get("/pending", s.settlementH.Pending)
		r.Post("/batch", s.settlementH.Batch)
		r.Post("/missions/{id}", s.settlementH.Single)
	})

	r.Route("/streak", func(r chi.Router) {
		r.Post("/claims/{id}/claim", s.streakH.Claim)
		r.Get("/{userID}", s.streakH.Get)
		r.Get("/{userID}/claims", s.streakH.Claims)
		r.With(parent).Put("/{userID}/settings", s.streakH.UpdateSettings)
		r.With(parent).Post("/{userID}/reset", s.streakH.Reset)
		r.With(parent).Get("/{userID}/verify", s.streakH.Verify)
	})

	r.Route("/allowance", func(r chi.Router) {
		r.Post("/expenses", s.allowanceH.AddExpense)
		r.Get("/{userID}/balance", s.allowanceH.Balance)
		r.Get("/{userID}/transactions", s.allowanceH.Transactions)
		r.Get("/{userID}/summary", s.allowanceH.Summary)
		r.Get("/{userID}/statement.xlsx", s.allowanceH.Statement)
	})

	// Push notification API routes
	if s.pushH != nil {
		r.Post("/push/subscribe", s.pushH.Subscribe)
		r.Get("/push/subscriptions", s.pushH.ListSubscriptions)
		r.Delete("/push/subscriptions/{id}", s.pushH.Unsubscribe)
		r.Get("/push/vapid-key", s.pushH.VAPIDKey)
	}

	r.With(parent).Post("/admin/backup", s.backupH.RunNow)
	r.With(parent).Get("/admin/backups", s.backupH.List)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status":  status,
		"clients": s.hub.ClientCount(),
	})
}
