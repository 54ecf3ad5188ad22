package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobwatch/internal/app"
	"github.com/ternarybob/jobwatch/internal/common"
	"github.com/ternarybob/jobwatch/internal/digest"
	"github.com/ternarybob/jobwatch/internal/scheduler"
	"github.com/ternarybob/jobwatch/internal/snapshot"
	"github.com/ternarybob/jobwatch/internal/targets"
)

var (
	configPath  = flag.String("config", "", "Configuration file path (TOML)")
	dbPath      = flag.String("db", "", "Path to SQLite state database (overrides config)")
	showVersion = flag.Bool("version", false, "Print version information")
)

// jobwatchd runs the whole watcher as one resident process: snapshot batches
// and digests on cron schedules, with the inference worker draining queues
// continuously in between.
func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("jobwatchd version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}

	if err := common.LoadEnvFile(cfg.SecretEnv); err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Failed to load secrets file")
		os.Exit(1)
	}
	cfg.ApplyEnvOverrides()

	logger := common.InitLogger(cfg)
	common.PrintBanner("jobwatchd")

	if cfg.Snapshot.CSVPath == "" {
		logger.Fatal().Msg("no targets CSV configured (snapshot.csv_path)")
		os.Exit(1)
	}
	if err := cfg.RequireSMTP(); err != nil {
		logger.Fatal().Err(err).Msg("Mail credentials incomplete")
		os.Exit(1)
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage")
		os.Exit(1)
	}
	defer a.Close()

	worker, err := a.InferenceWorker(0)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build inference worker")
		os.Exit(1)
	}

	runner := snapshot.NewRunner(a.LinkFetcher(), a.Snapshots, a.Diffs,
		cfg.Snapshot.MaxWorkers, cfg.Snapshot.StopOnError, logger)

	mailer := digest.NewSMTPMailer(
		cfg.Digest.SMTPHost, cfg.Digest.SMTPPort,
		cfg.Digest.SMTPUser, cfg.Digest.SMTPPass,
		cfg.Digest.EmailFrom, cfg.Digest.EmailTo, logger)
	digestSvc := digest.NewService(a.Details, mailer, digest.Options{
		ThresholdYears: cfg.Extract.ThresholdYears,
		Limit:          cfg.Digest.Limit,
		AuditCSV:       cfg.Digest.AuditCSV,
		DisplayZone:    cfg.Digest.DisplayZone,
	}, logger)

	sched := scheduler.New(logger)
	err = sched.Add("snapshot", cfg.Schedule.Snapshot, func(ctx context.Context) {
		targetList, err := targets.Load(cfg.Snapshot.CSVPath)
		if err != nil {
			logger.Error().Err(err).Str("csv", cfg.Snapshot.CSVPath).Msg("failed to load targets")
			return
		}
		runner.RunBatch(ctx, targetList)
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to schedule snapshot job")
		os.Exit(1)
	}
	err = sched.Add("digest", cfg.Schedule.Digest, func(ctx context.Context) {
		if _, err := digestSvc.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("digest run failed")
		}
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to schedule digest job")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched.Start()
	logger.Info().
		Str("snapshot_schedule", cfg.Schedule.Snapshot).
		Str("digest_schedule", cfg.Schedule.Digest).
		Msg("scheduler started")

	workerDone := make(chan error, 1)
	go func() {
		workerDone <- worker.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		sched.Stop()
		<-workerDone
	case err := <-workerDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("worker exited unexpectedly")
		}
		sched.Stop()
	}
}
