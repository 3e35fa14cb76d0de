// cmd/tools/notification-diagnostics/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"league-notifications/internal/common/config"
	"league-notifications/internal/common/database"
	"league-notifications/internal/common/logger"
	"league-notifications/internal/common/observability"
	"league-notifications/internal/notifications/decision"
	"league-notifications/internal/notifications/diagnostics"
	"league-notifications/internal/notifications/leagues"
	"league-notifications/internal/notifications/localstore"
	"league-notifications/internal/notifications/preferences"
	"league-notifications/internal/notifications/realtime"
	"league-notifications/internal/notifications/repository"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

func main() {
	userID := flag.String("user", "", "User ID to run the checks for (required)")
	realtimeWait := flag.Duration("realtime-wait", 5*time.Second, "How long to wait for the test notification to arrive on the change feed")
	matchesWait := flag.Duration("matches-wait", 3*time.Second, "How long to watch the matches table")
	asJSON := flag.Bool("json", false, "Print the report as JSON")
	flag.Parse()

	if *userID == "" {
		fmt.Println("Error: -user is required.")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	ctx := context.Background()

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		zapLog.Fatal("postgres connection failed", zap.Error(err))
	}
	defer pg.Close()

	rdb, err := database.NewRedis(cfg.Database.Redis)
	if err != nil {
		zapLog.Fatal("redis connection failed", zap.Error(err))
	}
	defer rdb.Close()

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
	defer transport.Stop()

	repo := repository.New(pg.GetDB(), cfg.Notifications.ListLimit, log)
	prefs := preferences.NewStore(pg.GetDB(), rdb.GetClient(), preferences.Config{
		Location: cfg.Notifications.Location(),
		CacheTTL: config.GetDuration(cfg.Notifications.PreferenceCacheTTL),
	}, log)
	local := localstore.New(rdb.GetClient(), log)

	engine := decision.NewEngine(repo, prefs, local, leagues.NewDirectory(pg.GetDB()), observability.New(cfg.App.Name), decision.Config{
		TableCheckEvery: cfg.Notifications.TableCheckEvery,
	}, log)

	runner := diagnostics.NewRunner(diagnostics.Deps{
		Tables:      pg,
		Transport:   transport,
		Preferences: prefs,
		Storage:     repo,
		Sender:      engine,
	}, diagnostics.Config{
		RealtimeWait: *realtimeWait,
		MatchesWait:  *matchesWait,
	}, log)

	report := runner.Run(ctx, *userID)

	if *asJSON {
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))
	} else {
		printReport(report)
	}

	if !report.Passed() {
		os.Exit(1)
	}
}

func printReport(report *diagnostics.Report) {
	fmt.Printf("Notification diagnostics for user %s\n", report.UserID)
	for _, c := range report.Checks {
		status := "PASS"
		if !c.OK {
			status = "FAIL"
		}
		fmt.Printf("  %-24s %s  %s (%s)\n", c.Name, status, c.Detail, c.Duration.Round(time.Millisecond))
	}
	if report.Passed() {
		fmt.Println("All checks passed. If notifications still do not show, check browser permission and trigger a match result.")
		return
	}
	fmt.Printf("%d check(s) failed.\n", len(report.Failed()))
}
