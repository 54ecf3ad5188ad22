package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobwatch/internal/app"
	"github.com/ternarybob/jobwatch/internal/common"
	"github.com/ternarybob/jobwatch/internal/digest"
)

var (
	configPath  = flag.String("config", "", "Configuration file path (TOML)")
	dbPath      = flag.String("db", "", "Path to SQLite state database (overrides config)")
	limit       = flag.Int("limit", 0, "Max jobs per digest (overrides config)")
	showVersion = flag.Bool("version", false, "Print version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("jobwatch-digest version %s\n", common.GetFullVersion())
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
	if *limit > 0 {
		cfg.Digest.Limit = *limit
	}

	if err := common.LoadEnvFile(cfg.SecretEnv); err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Failed to load secrets file")
		os.Exit(1)
	}
	cfg.ApplyEnvOverrides()

	logger := common.InitLogger(cfg)
	common.PrintBanner("jobwatch-digest")

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

	mailer := digest.NewSMTPMailer(
		cfg.Digest.SMTPHost, cfg.Digest.SMTPPort,
		cfg.Digest.SMTPUser, cfg.Digest.SMTPPass,
		cfg.Digest.EmailFrom, cfg.Digest.EmailTo, logger)

	svc := digest.NewService(a.Details, mailer, digest.Options{
		ThresholdYears: cfg.Extract.ThresholdYears,
		Limit:          cfg.Digest.Limit,
		AuditCSV:       cfg.Digest.AuditCSV,
		DisplayZone:    cfg.Digest.DisplayZone,
	}, logger)

	result, err := svc.Run(context.Background())
	if err != nil {
		logger.Fatal().Err(err).Msg("Digest run failed")
		os.Exit(1)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to encode result")
		os.Exit(1)
	}
	fmt.Println(string(out))
}
