package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/frinder/internal/config"
	"github.com/frinder/internal/handler"
	"github.com/frinder/internal/logger"
	"github.com/frinder/internal/middleware"
	"github.com/frinder/internal/push"
	"github.com/frinder/internal/repository"
	"github.com/frinder/internal/service"
	"github.com/frinder/internal/startup"
	"github.com/frinder/internal/storage"
	"github.com/frinder/internal/storage/memory"
	"github.com/frinder/internal/ws"
	"github.com/frinder/migrations"
)

func main() {
	logger.SetPrefix("api")
	defer logger.Sync()
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL and in-memory storage (no external services)")
	flag.Parse()

	logger.Info("starting API service")
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *dev {
		db, err := startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := db.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	pool, err := startup.ConnectDB(ctx, cfg.DatabaseURL(), cfg.DBMaxConnections(), 60*time.Second)
	if err != nil {
		logger.Errorf("database: %v", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := runMigrations(ctx, pool); err != nil {
		logger.Errorf("migrations: %v", err)
		os.Exit(1)
	}
	if *migrate && !*dev {
		return
	}
	logger.Info("database connected, migrations applied")

	var store storage.Store
	if cfg.Redis.URL == "" {
		logger.Info("REDIS_URL не задан: typing и дедупликация уведомлений в памяти процесса")
		store = memory.New()
	} else {
		rdb, err := startup.ConnectRedis(ctx, cfg.Redis.URL, 60*time.Second)
		if err != nil {
			logger.Errorf("redis: %v", err)
			os.Exit(1)
		}
		store = rdb
	}
	defer store.Close()

	matchRepo := repository.NewMatchRepository(pool)
	msgRepo := repository.NewMessageRepository(pool)
	profileRepo := repository.NewProfileRepository(pool)
	dateRepo := repository.NewDateRequestRepository(pool)
	callRepo := repository.NewCallRepository(pool)
	groupRepo := repository.NewGroupRepository(pool)
	checkoutRepo := repository.NewCheckoutRepository(pool)

	pushClient := push.NewClient(cfg.PushServiceURL, cfg.InternalSecret)
	hub := ws.NewHub(cfg.MaxWSConnections)

	convSvc := service.NewConversationService(matchRepo, msgRepo, profileRepo, store, hub, pushClient, cfg.TypingTTL)
	dateSvc := service.NewDateService(matchRepo, dateRepo, store, hub, pushClient)
	callSvc := service.NewCallService(matchRepo, callRepo, hub, pushClient)
	groupSvc := service.NewGroupService(groupRepo, hub, pushClient)
	profileSvc := service.NewProfileService(profileRepo)
	checkoutSvc := service.NewCheckoutService(checkoutRepo)
	hub.SetDispatcher(convSvc)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	matchH := handler.NewMatchHandler(convSvc)
	msgH := handler.NewMessageHandler(convSvc)
	dateH := handler.NewDateHandler(dateSvc)
	callH := handler.NewCallHandler(callSvc)
	groupH := handler.NewGroupHandler(groupSvc)
	profileH := handler.NewProfileHandler(profileSvc)
	checkoutH := handler.NewCheckoutHandler(checkoutSvc)
	configH := handler.NewConfigHandler(cfg)
	pushH := handler.NewPushHandler(pushClient)
	wsH := handler.NewWSHandler(hubCtx, hub, cfg.CORSAllowedOrigins)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLog)
	r.Use(middleware.RecoverJSON)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSAllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RateLimit(store))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Get("/api/config/push", configH.GetPushConfig)
	r.Get("/api/config/call", configH.GetCallConfig)
	// без авторизации: вызывается до открытия оплаты
	r.Post("/api/save-pending-checkout", checkoutH.SavePending)
	if *dev {
		r.Post("/api/dev/token", devTokenHandler(cfg))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.TokenAuth(cfg.Auth.JWTSecret, cfg.Auth.Issuer))
		r.Use(middleware.RateLimitUser(store))

		r.Get("/api/profile", profileH.Get)
		r.Put("/api/profile", profileH.Update)
		r.Get("/api/subscription", checkoutH.Subscription)

		r.Get("/api/matches", matchH.List)
		r.Get("/api/matches/unmatched", matchH.ListUnmatched)
		r.Post("/api/matches", matchH.Create)
		r.Get("/api/matches/{id}", matchH.Get)
		r.Post("/api/matches/{id}/unmatch", matchH.Unmatch)
		r.Post("/api/matches/{id}/read", matchH.MarkRead)
		r.Get("/api/matches/{id}/typing", matchH.Typing)
		r.Post("/api/matches/{id}/typing", matchH.SetTyping)
		r.Get("/api/matches/{id}/messages", msgH.List)
		r.Post("/api/matches/{id}/messages", msgH.Send)
		r.Put("/api/messages/{messageId}", msgH.Edit)
		r.Delete("/api/messages/{messageId}", msgH.Delete)

		r.Get("/api/matches/{id}/dates", dateH.List)
		r.Post("/api/matches/{id}/dates", dateH.Create)
		r.Post("/api/dates/{dateId}/respond", dateH.Respond)
		r.Post("/api/dates/{dateId}/cancel", dateH.Cancel)

		r.Post("/api/calls", callH.Create)
		r.Get("/api/calls/incoming", callH.Incoming)
		r.Get("/api/calls/{id}", callH.Get)
		r.Post("/api/calls/{id}/answer", callH.Answer)
		r.Post("/api/calls/{id}/status", callH.SetStatus)
		r.Post("/api/calls/{id}/end", callH.End)
		r.Post("/api/calls/{id}/candidates", callH.AddCandidate)
		r.Get("/api/calls/{id}/candidates", callH.Candidates)

		r.Get("/api/groups", groupH.ListMine)
		r.Post("/api/groups", groupH.Create)
		r.Get("/api/groups/search", groupH.Search)
		r.Get("/api/groups/{id}", groupH.Get)
		r.Delete("/api/groups/{id}", groupH.Delete)
		r.Post("/api/groups/{id}/join", groupH.Join)
		r.Post("/api/groups/{id}/leave", groupH.Leave)
		r.Post("/api/groups/{id}/members/{memberId}/approve", groupH.Approve)
		r.Post("/api/groups/{id}/members/{memberId}/reject", groupH.Reject)
		r.Get("/api/groups/{id}/messages", groupH.Messages)
		r.Post("/api/groups/{id}/messages", groupH.Send)

		r.Post("/api/push/subscribe", pushH.Subscribe)
		r.Delete("/api/push/subscribe", pushH.Unsubscribe)
		r.Get("/ws", wsH.ServeWS)
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server error: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
}

// devTokenHandler выдаёт токен для user_id (только -dev: провайдер идентификации не нужен).
func devTokenHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
		if userID == "" {
			http.Error(w, `{"error":"user_id required"}`, http.StatusBadRequest)
			return
		}
		token, err := middleware.IssueToken(cfg.Auth.JWTSecret, cfg.Auth.Issuer, userID, 24*time.Hour)
		if err != nil {
			http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = fmt.Fprintf(w, `{"token":%q}`, token)
	}
}

// runMigrations применяет встроенные миграции по порядку имён. Файлы идемпотентны (IF NOT EXISTS).
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	names, err := fs.Glob(migrations.Files, "*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := migrations.Files.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("run %s: %w", name, err)
		}
	}
	logger.Infof("migrations applied: %d", len(names))
	return nil
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5433
		user     = "frinder"
		password = "frinder_secret"
		database = "frinder"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "frinder-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf("postgres://%s:%s@localhost:%d/%s?sslmode=disable", user, password, port, database)
	cfg.Redis.URL = ""
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
