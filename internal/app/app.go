package app

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobwatch/internal/common"
	"github.com/ternarybob/jobwatch/internal/expand"
	"github.com/ternarybob/jobwatch/internal/extract"
	"github.com/ternarybob/jobwatch/internal/infer"
	"github.com/ternarybob/jobwatch/internal/linkfetch"
	"github.com/ternarybob/jobwatch/internal/storage/sqlite"
)

// App wires configuration, storage and the stage services together. Each
// binary builds one App and picks the pieces it needs.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	DB        *sqlite.SQLiteDB
	Snapshots *sqlite.SnapshotStorage
	Diffs     *sqlite.DiffQueue
	Tasks     *sqlite.TaskQueue
	Details   *sqlite.DetailStorage
}

// New opens the state database and constructs the storage layers. The secrets
// file is loaded into the environment first so env overrides in the config
// already see SMTP and API credentials.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	db, err := sqlite.NewSQLiteDB(logger, &cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Snapshots: sqlite.NewSnapshotStorage(db, logger),
		Diffs:     sqlite.NewDiffQueue(db, logger),
		Tasks:     sqlite.NewTaskQueue(db, logger),
		Details:   sqlite.NewDetailStorage(db, logger),
	}, nil
}

// Close releases the database.
func (a *App) Close() error {
	return a.DB.Close()
}

// LinkFetcher returns the configured careers-page fetcher: the Node extractor
// subprocess when a workdir is configured, otherwise the in-process headless
// Chrome fetcher.
func (a *App) LinkFetcher() linkfetch.Fetcher {
	timeout := time.Duration(a.Config.Snapshot.NodeTimeoutSeconds) * time.Second
	if a.Config.Snapshot.NodeWorkdir != "" {
		return linkfetch.NewNodeClient(a.Config.Snapshot.NodeBin, a.Config.Snapshot.NodeWorkdir, timeout, a.Logger)
	}
	return linkfetch.NewChromedpFetcher(timeout, a.Config.Extract.RatePerSecond, a.Logger)
}

// ExtractionEngine returns the configured experience extraction engine.
func (a *App) ExtractionEngine() (extract.Engine, error) {
	timeout := time.Duration(a.Config.Worker.TimeoutSeconds) * time.Second

	switch a.Config.Extract.Engine {
	case "exec":
		if a.Config.Extract.PuppeteerScript == "" || a.Config.Extract.ExtractExperiencePy == "" {
			return nil, fmt.Errorf("exec engine requires extract.puppeteer_script and extract.extract_experience_py")
		}
		return extract.NewExecEngine(
			a.Config.Extract.NodeBin,
			a.Config.Extract.PuppeteerScript,
			a.Config.Extract.PythonBin,
			a.Config.Extract.ExtractExperiencePy,
			timeout,
			a.Logger,
		), nil
	case "native":
		apiKey := common.AnthropicAPIKey()
		if apiKey == "" {
			return nil, fmt.Errorf("native engine requires ANTHROPIC_API_KEY")
		}
		renderer := linkfetch.NewChromedpFetcher(timeout, a.Config.Extract.RatePerSecond, a.Logger)
		return extract.NewClaudeEngine(renderer, apiKey, a.Config.Extract.AnthropicModel, timeout, a.Logger), nil
	default:
		return nil, fmt.Errorf("unknown extraction engine %q", a.Config.Extract.Engine)
	}
}

// InferenceWorker builds the worker loop around the configured engine.
func (a *App) InferenceWorker(maxJobs int) (*infer.Worker, error) {
	engine, err := a.ExtractionEngine()
	if err != nil {
		return nil, err
	}

	expander := expand.NewExpander(a.Diffs, a.Tasks, a.Config.Worker.BackoffMS, a.Logger)
	return infer.NewWorker(a.Diffs, a.Tasks, a.Details, expander, engine, infer.Options{
		Owner:          common.Owner(),
		PollSleep:      time.Duration(a.Config.Worker.PollSleepSeconds) * time.Second,
		StaleAfter:     a.Config.StaleAfterDuration(),
		BackoffMs:      a.Config.Worker.BackoffMS,
		ThresholdYears: a.Config.Extract.ThresholdYears,
		MaxJobs:        maxJobs,
	}, a.Logger), nil
}
