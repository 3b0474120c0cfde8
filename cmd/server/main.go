package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"whatsapp-bot/internal/api"
	"whatsapp-bot/internal/config"
	"whatsapp-bot/internal/database"
	"whatsapp-bot/internal/logging"
	"whatsapp-bot/internal/plugin"
	"whatsapp-bot/internal/plugins"
	"whatsapp-bot/internal/session"
	"whatsapp-bot/internal/store"
	"whatsapp-bot/internal/supervisor"
	"whatsapp-bot/internal/whatsapp"
	"whatsapp-bot/internal/ws"
)

func main() {
	cfg := config.LoadConfig()

	logger, err := logging.Init(cfg)
	if err != nil {
		log.Fatalf("Failed to initialise logging: %v", err)
	}
	defer logger.Sync()

	db, err := database.InitGorm(cfg)
	if err != nil {
		zap.L().Fatal("failed to open database", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	creds := store.NewCredentialStore(db, cfg.AuthFolder)
	settings := store.NewSettingsStore(db)

	sess := session.New(cfg.Prefix, settings)
	if err := sess.LoadPrefix(ctx); err != nil {
		zap.L().Warn("using default prefix, stored prefix unavailable", zap.Error(err))
	}

	hub := ws.NewHub()
	go hub.Run()
	defer hub.Close()
	sess.Subscribe(hub.NotifySession)

	registry := plugin.NewRegistry()
	loaded := registry.Register(plugins.Builtin(plugins.Deps{
		Session:  sess,
		Registry: registry,
		Owners:   cfg.Owners,
	}, cfg.PluginsDisabled)...)
	zap.L().Info("plugins loaded", zap.Int("count", loaded))
	dispatcher := plugin.NewDispatcher(registry, sess)

	pool, err := newDispatchPool(cfg.DispatchWorkers)
	if err != nil {
		zap.L().Fatal("failed to create dispatch pool", zap.Error(err))
	}
	defer pool.Release()

	dial := func(ctx context.Context) (supervisor.Connection, error) {
		client, err := whatsapp.Open(ctx, whatsapp.Options{
			AuthFolder:     cfg.AuthFolder,
			PairClientName: cfg.PairClientName,
			Logger:         logging.WALogger("whatsmeow"),
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	sup := supervisor.New(sess, creds, dial, dispatcher, supervisor.Options{
		ReconnectDelay:       cfg.ReconnectDelay,
		LogoutDelay:          cfg.LogoutDelay,
		PresenceInterval:     cfg.PresenceInterval,
		HousekeepingInterval: cfg.HousekeepingInterval,
		NotifyOnConnect:      cfg.NotifyOnConnect,
		Submit:               pool.Submit,
	})
	if err := sup.Start(ctx); err != nil {
		zap.L().Error("initial connection failed, retrying", zap.Error(err))
	}

	gin.SetMode(gin.ReleaseMode)
	gateway := api.NewGatewayHandler(sess, sup, cfg.PublicDir)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewRouter(gateway, hub),
	}

	go func() {
		zap.L().Info("server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("failed to run server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zap.L().Info("shutting down")
	sup.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("server shutdown failed", zap.Error(err))
	}
}

// newDispatchPool runs message handling. It never blocks the caller: when
// every worker is busy Submit fails and the message is dropped with a log.
func newDispatchPool(size int) (*ants.Pool, error) {
	return ants.NewPool(size,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p interface{}) {
			zap.L().Error("dispatch worker panicked", zap.Any("panic", p))
		}),
	)
}
