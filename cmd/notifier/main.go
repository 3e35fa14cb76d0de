// cmd/notifier/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"league-notifications/internal/api"
	"league-notifications/internal/common/aws"
	"league-notifications/internal/common/camunda"
	"league-notifications/internal/common/config"
	"league-notifications/internal/common/database"
	"league-notifications/internal/common/logger"
	"league-notifications/internal/common/observability"
	"league-notifications/internal/notifications/decision"
	"league-notifications/internal/notifications/delivery"
	"league-notifications/internal/notifications/events"
	"league-notifications/internal/notifications/inbox"
	"league-notifications/internal/notifications/leagues"
	"league-notifications/internal/notifications/localstore"
	"league-notifications/internal/notifications/preferences"
	"league-notifications/internal/notifications/realtime"
	"league-notifications/internal/notifications/repository"
	"league-notifications/internal/notifications/session"
	"league-notifications/internal/notifications/sound"
	broadcastnews "league-notifications/internal/workers/notifications/broadcast-news"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting notifier...", zap.String("environment", cfg.App.Environment))

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Change feed ---
	transport := realtime.NewPostgresTransport(
		func(cb pq.EventCallbackType) realtime.NotificationSource {
			return pg.NewListener(
				config.GetDuration(cfg.Realtime.MinReconnectInterval),
				config.GetDuration(cfg.Realtime.MaxReconnectInterval),
				cb,
			)
		},
		realtime.PostgresOptions{
			NotifyChannel:    cfg.Realtime.NotifyChannel,
			SubscribeTimeout: config.GetDuration(cfg.Realtime.SubscribeTimeout),
		},
		log,
	)
	transport.Start(ctx)

	translator, err := events.NewTranslator()
	if err != nil {
		zapLog.Fatal("failed to compile change schemas", zap.Error(err))
	}

	// --- Stores ---
	repo := repository.New(pg.GetDB(), cfg.Notifications.ListLimit, log)
	prefs := preferences.NewStore(pg.GetDB(), rdb.GetClient(), preferences.Config{
		Location: cfg.Notifications.Location(),
		CacheTTL: config.GetDuration(cfg.Notifications.PreferenceCacheTTL),
	}, log)
	local := localstore.New(rdb.GetClient(), log)
	directory := leagues.NewDirectory(pg.GetDB())

	engine := decision.NewEngine(repo, prefs, local, directory, obs, decision.Config{
		TableCheckEvery: cfg.Notifications.TableCheckEvery,
	}, log)

	// --- Delivery ---
	hub := api.NewHub(log)
	player := sound.NewPlayer(local, hub, log)

	var push delivery.PushForwarder
	switch cfg.Push.Provider {
	case "websocket":
		push = hub
	case "sns":
		snsClient, err := aws.NewSNSClient(ctx, cfg.Push.SNS.Region)
		if err != nil {
			zapLog.Fatal("failed to create SNS client", zap.Error(err))
		}
		push = delivery.NewSNSForwarder(snsClient, local, cfg.Push.SNS.EndpointAttribute)
	case "none":
	default:
		zapLog.Warn("unknown push provider, push disabled", zap.String("provider", cfg.Push.Provider))
	}

	var email *delivery.EmailForwarder
	if cfg.Email.Enabled {
		sesClient, err := aws.NewSESClient(ctx, cfg.Email.Region, cfg.Email.FromEmail)
		if err != nil {
			zapLog.Fatal("failed to create SES client", zap.Error(err))
		}
		email = delivery.NewEmailForwarder(sesClient, directory)
	}

	toastDuration := config.GetDuration(cfg.Notifications.ToastDuration)
	fanout := delivery.NewFanout(prefs, local, player, push, email, delivery.Config{
		Icon:          cfg.Push.Icon,
		ToastDuration: toastDuration,
	}, log)

	// --- Sessions ---
	inboxCfg := inbox.Config{
		ListLimit:      cfg.Notifications.ListLimit,
		PreviewSize:    cfg.Notifications.PreviewSize,
		GroupThreshold: cfg.Notifications.GroupThreshold,
	}
	sessions := session.NewManager(session.Deps{
		Transport:            transport,
		Translator:           translator,
		Engine:               engine,
		Fanout:               fanout,
		Store:                repo,
		Rows:                 repo,
		Presenter:            hub,
		Inbox:                inboxCfg,
		ToastDuration:        toastDuration,
		PollInterval:         config.GetDuration(cfg.Notifications.PollInterval),
		ResubscribeOnVisible: cfg.Realtime.ResubscribeOnVisible,
	}, log)

	// --- Broadcast worker ---
	var (
		zeebe  *camunda.Client
		worker *camunda.CamundaWorker
	)
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClient(cfg.Camunda)
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}

		wcfg := broadcastnews.LoadConfig(cfg)
		if wcfg.Enabled {
			handler, err := broadcastnews.NewHandler(wcfg, engine, log)
			if err != nil {
				zapLog.Fatal("failed to create broadcast-news handler", zap.Error(err))
			}
			worker = camunda.NewWorker(zeebe.GetClient(), broadcastnews.TaskType, wcfg.MaxJobsActive, handler, log)
			worker.Start()
		}
	}

	// --- HTTP ---
	server := api.NewServer(api.Config{
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		PreviewSize:     cfg.Notifications.PreviewSize,
		GroupThreshold:  cfg.Notifications.GroupThreshold,
		PushEndpointKey: cfg.Push.SNS.EndpointAttribute,
	}, api.Deps{
		Notifications: repo,
		Preferences:   prefs,
		Broadcaster:   engine,
		Sessions:      sessions,
		Hub:           hub,
		Player:        player,
		Local:         local,
		Ready: func(ctx context.Context) error {
			if err := pg.Ping(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			if err := rdb.Ping(ctx); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			return nil
		},
	}, log)

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping notifier...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}
	if worker != nil {
		worker.Stop(shutdownCtx)
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}

	sessions.Close(shutdownCtx)
	if err := transport.Stop(); err != nil {
		zapLog.Error("Error stopping change feed", zap.Error(err))
	}

	zapLog.Info("Notifier stopped gracefully")
}
