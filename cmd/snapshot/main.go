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
	"github.com/ternarybob/jobwatch/internal/snapshot"
	"github.com/ternarybob/jobwatch/internal/targets"
)

var (
	configPath  = flag.String("config", "", "Configuration file path (TOML)")
	csvPath     = flag.String("csv", "", "CSV with company,url columns (overrides config)")
	dbPath      = flag.String("db", "", "Path to SQLite state database (overrides config)")
	nodeWorkdir = flag.String("node-workdir", "", "Folder containing the Node link extractor (overrides config)")
	nodeBin     = flag.String("node-bin", "", "Node binary (overrides config)")
	nodeTimeout = flag.Int("node-timeout-seconds", 0, "Per-company fetch timeout (overrides config)")
	maxWorkers  = flag.Int("max-workers", 0, "Parallel fetch workers (overrides config)")
	serial      = flag.Bool("serial", false, "Fetch targets one at a time (same as -max-workers 1)")
	stopOnError = flag.Bool("stop-on-error", false, "Cancel pending targets after the first failure")
	showVersion = flag.Bool("version", false, "Print version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("jobwatch-snapshot version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}
	applyFlags(cfg)

	if err := common.LoadEnvFile(cfg.SecretEnv); err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Failed to load secrets file")
		os.Exit(1)
	}

	logger := common.InitLogger(cfg)
	common.PrintBanner("jobwatch-snapshot")

	if cfg.Snapshot.CSVPath == "" {
		logger.Fatal().Msg("no targets CSV configured (use -csv or snapshot.csv_path)")
		os.Exit(1)
	}

	targetList, err := targets.Load(cfg.Snapshot.CSVPath)
	if err != nil {
		logger.Fatal().Err(err).Str("csv", cfg.Snapshot.CSVPath).Msg("Failed to load targets")
		os.Exit(1)
	}
	logger.Info().Int("count", len(targetList)).Msg("targets loaded")

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage")
		os.Exit(1)
	}
	defer a.Close()

	runner := snapshot.NewRunner(a.LinkFetcher(), a.Snapshots, a.Diffs,
		cfg.Snapshot.MaxWorkers, cfg.Snapshot.StopOnError, logger)
	report := runner.RunBatch(context.Background(), targetList)

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to encode report")
		os.Exit(1)
	}
	fmt.Println(string(out))

	if report.CompanyOKCount == 0 && report.CompanyCountTotal > 0 {
		os.Exit(1)
	}
}

func applyFlags(cfg *common.Config) {
	if *csvPath != "" {
		cfg.Snapshot.CSVPath = *csvPath
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}
	if *nodeWorkdir != "" {
		cfg.Snapshot.NodeWorkdir = *nodeWorkdir
	}
	if *nodeBin != "" {
		cfg.Snapshot.NodeBin = *nodeBin
	}
	if *nodeTimeout > 0 {
		cfg.Snapshot.NodeTimeoutSeconds = *nodeTimeout
	}
	if *maxWorkers > 0 {
		cfg.Snapshot.MaxWorkers = *maxWorkers
	}
	if *serial {
		cfg.Snapshot.MaxWorkers = 1
	}
	if *stopOnError {
		cfg.Snapshot.StopOnError = true
	}
}
