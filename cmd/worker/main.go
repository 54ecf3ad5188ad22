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
)

var (
	configPath  = flag.String("config", "", "Configuration file path (TOML)")
	dbPath      = flag.String("db", "", "Path to SQLite state database (overrides config)")
	engine      = flag.String("engine", "", "Extraction engine: exec or native (overrides config)")
	nodeBin     = flag.String("node-bin", "", "Node binary for the exec engine (overrides config)")
	pptrScript  = flag.String("puppeteer-script", "", "Puppeteer page-fetch script (overrides config)")
	pythonBin   = flag.String("python-bin", "", "Python binary for the exec engine (overrides config)")
	extractPy   = flag.String("extract-experience-py", "", "Experience extractor script (overrides config)")
	timeoutSec  = flag.Int("timeout-seconds", 0, "Per-task extraction timeout (overrides config)")
	pollSec     = flag.Int("poll-sleep-seconds", 0, "Idle poll interval (overrides config)")
	maxJobs     = flag.Int("max-jobs-per-run", 0, "Stop after this many successful extractions (0 runs forever)")
	showVersion = flag.Bool("version", false, "Print version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("jobwatch-worker version %s\n", common.GetFullVersion())
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
	cfg.ApplyEnvOverrides()

	logger := common.InitLogger(cfg)
	common.PrintBanner("jobwatch-worker")

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage")
		os.Exit(1)
	}
	defer a.Close()

	worker, err := a.InferenceWorker(*maxJobs)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build inference worker")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("Worker exited with error")
		os.Exit(1)
	}
	logger.Info().Msg("worker stopped")
}

func applyFlags(cfg *common.Config) {
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}
	if *engine != "" {
		cfg.Extract.Engine = *engine
	}
	if *nodeBin != "" {
		cfg.Extract.NodeBin = *nodeBin
	}
	if *pptrScript != "" {
		cfg.Extract.PuppeteerScript = *pptrScript
	}
	if *pythonBin != "" {
		cfg.Extract.PythonBin = *pythonBin
	}
	if *extractPy != "" {
		cfg.Extract.ExtractExperiencePy = *extractPy
	}
	if *timeoutSec > 0 {
		cfg.Worker.TimeoutSeconds = *timeoutSec
	}
	if *pollSec > 0 {
		cfg.Worker.PollSleepSeconds = *pollSec
	}
}
