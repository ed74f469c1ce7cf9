// Микросервис пуш-уведомлений (Web Push): подписки в Redis, отправка через VAPID.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/frinder/internal/logger"
	"github.com/frinder/internal/middleware"
	"github.com/frinder/internal/push"
	"github.com/frinder/internal/startup"
)

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	logger.SetPrefix("push")
	defer logger.Sync()

	if len(os.Args) > 1 && (os.Args[1] == "-gen-vapid" || os.Args[1] == "--gen-vapid") {
		keys, err := push.GenerateVAPIDKeys()
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
		logger.Infof("VAPID_PUBLIC_KEY=%s", keys.PublicKey)
		logger.Infof("VAPID_PRIVATE_KEY=%s", keys.PrivateKey)
		return
	}

	addr := getEnv("SERVER_ADDR", ":8082")
	redisURL := getEnv("REDIS_URL", "redis://localhost:6379")
	subscriber := getEnv("VAPID_SUBSCRIBER", "mailto:support@frinder.app")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := startup.ConnectRedis(ctx, redisURL, 2*time.Minute)
	if err != nil {
		logger.Errorf("redis: %v", err)
		os.Exit(1)
	}
	defer rdb.Close()

	var sender push.Sender
	publicKey := ""
	if keys, err := push.LoadVAPIDKeys(); err != nil {
		logger.Errorf("VAPID: %v; подписки сохраняются, отправка отключена", err)
	} else {
		sender = push.NewVAPIDSender(keys, subscriber)
		publicKey = keys.PublicKey
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLog)
	r.Use(middleware.RecoverJSON)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	push.NewServer(push.NewRedisStore(rdb.Redis()), sender, publicKey).
		Routes(r, middleware.InternalOnly(os.Getenv("INTERNAL_SECRET")))

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Infof("push server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("push server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	logger.Info("push server stopped")
}
