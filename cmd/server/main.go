package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"recruit_exec/internal/api"
	"recruit_exec/internal/app/hub"
	"recruit_exec/internal/app/runner"
	"recruit_exec/internal/app/service"
	"recruit_exec/internal/app/worker"
	"recruit_exec/internal/common/security"
	"recruit_exec/internal/domain/repository"
	"recruit_exec/internal/platform/config"
	"recruit_exec/internal/platform/database"
	"recruit_exec/internal/platform/logger"
	"recruit_exec/internal/platform/queue"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cmd := &cli.Command{
		Name:  "recruit-exec",
		Usage: "interview coding-challenge execution pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Usage: "dotenv file to load before reading the environment"},
		},
		DefaultCommand: "serve",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API, live relay and retention worker",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "migrate", Usage: "apply the schema before serving"},
				},
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply the database schema and exit",
				Action: migrate,
			},
			{
				Name:  "token",
				Usage: "issue a candidate token for an interview (local testing)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "interview", Usage: "interview id", Required: true},
				},
				Action: issueToken,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatalf("ERROR: %v", err)
	}
}

func bootstrap(cmd *cli.Command) (*config.Config, *zap.Logger, error) {
	if envFile := cmd.String("env-file"); envFile != "" {
		config.Load(envFile)
	} else {
		config.Load()
	}
	cfg := config.AppConfig

	lg, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return nil, nil, err
	}
	security.InitJWT(cfg.JWTKey, cfg.JWTExp)
	return cfg, lg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, lg, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer lg.Sync()

	db, err := database.Connect(ctx, cfg.DBConnStr)
	if err != nil {
		return err
	}
	defer db.Close()
	lg.Info("database connected")

	if cmd.Bool("migrate") {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
		lg.Info("schema applied")
	}

	rdb, err := queue.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()
	lg.Info("redis connected")

	submissionRepo := repository.NewPgSubmissionRepository(db)
	correlationRepo := repository.NewPgTaskCorrelationRepository(db)
	testCaseRepo := repository.NewPgTestCaseRepository(db)
	interviewRepo := repository.NewPgInterviewRepository(db)

	liveHub := hub.New(lg.Named("hub"))
	var notifier service.Notifier = liveHub
	var relay *hub.RedisRelay
	if cfg.HubFanout == config.FanoutRedis {
		relay = hub.NewRedisRelay(rdb, cfg.HubChannel, liveHub, lg.Named("relay"))
		notifier = relay
	}

	runnerClient := runner.NewClient(cfg.RunnerBaseURL, cfg.RunnerAPIKey, cfg.RunnerTimeout)
	svcs := api.Services{
		Dispatch: service.NewDispatchService(submissionRepo, correlationRepo, testCaseRepo, interviewRepo,
			runnerClient, notifier, cfg.CallbackBaseURL, lg.Named("dispatch")),
		Webhook: service.NewWebhookService(submissionRepo, correlationRepo, testCaseRepo, notifier, lg.Named("webhook")),
		Ledger:  service.NewLedgerService(submissionRepo, correlationRepo, testCaseRepo),
		Hub:     liveHub,
	}

	retention := worker.NewRetentionWorker(correlationRepo,
		queue.NewLock(rdb, cfg.SweepLockKey, cfg.SweepLockTTL),
		cfg.CorrelationRetention, cfg.SweepInterval, lg.Named("retention"))

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      api.NewRouter(svcs, cfg.HubSendBuffer, lg.Named("http")),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("server starting", zap.String("addr", server.Addr), zap.String("fanout", cfg.HubFanout))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("could not listen on %s: %w", server.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		lg.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return retention.Start(gctx) })
	if relay != nil {
		g.Go(func() error { return relay.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	lg.Info("server and workers stopped gracefully")
	return nil
}

func migrate(ctx context.Context, cmd *cli.Command) error {
	cfg, lg, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer lg.Sync()

	db, err := database.Connect(ctx, cfg.DBConnStr)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		return err
	}
	lg.Info("schema applied")
	return nil
}

func issueToken(_ context.Context, cmd *cli.Command) error {
	if _, _, err := bootstrap(cmd); err != nil {
		return err
	}
	token, err := security.GenerateCandidateToken(cmd.String("interview"))
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}
	fmt.Println(token)
	return nil
}
