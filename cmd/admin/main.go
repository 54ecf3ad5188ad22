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
	"github.com/ternarybob/jobwatch/internal/models"
)

var (
	configPath  = flag.String("config", "", "Configuration file path (TOML)")
	dbPath      = flag.String("db", "", "Path to SQLite state database (overrides config)")
	showVersion = flag.Bool("version", false, "Print version information")
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: jobwatch-admin [flags] <command>

Commands:
  status         Print queue and snapshot counts as JSON
  clear-diffs    Delete every diff queue row
  clear-current  Delete every current snapshot row (history is kept)

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("jobwatch-admin version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	command := flag.Arg(0)

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}

	logger := common.InitLogger(cfg)

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage")
		os.Exit(1)
	}
	defer a.Close()

	ctx := context.Background()
	switch command {
	case "status":
		if err := printStatus(ctx, a); err != nil {
			logger.Fatal().Err(err).Msg("Failed to read status")
			os.Exit(1)
		}
	case "clear-diffs":
		deleted, err := a.Diffs.Clear(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to clear diff queue")
			os.Exit(1)
		}
		logger.Info().Int64("deleted", deleted).Msg("diff queue cleared")
	case "clear-current":
		deleted, err := a.Snapshots.ClearCurrent(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to clear current snapshots")
			os.Exit(1)
		}
		logger.Info().Int64("deleted", deleted).Msg("current snapshots cleared")
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		usage()
		os.Exit(2)
	}
}

type statusReport struct {
	SnapshotHistory int            `json:"snapshot_history"`
	DiffQueue       int            `json:"diff_queue"`
	Tasks           map[string]int `json:"tasks"`
}

func printStatus(ctx context.Context, a *app.App) error {
	history, err := a.Snapshots.HistoryCount(ctx, "")
	if err != nil {
		return err
	}
	diffCount, err := a.Diffs.Count(ctx)
	if err != nil {
		return err
	}

	report := statusReport{
		SnapshotHistory: history,
		DiffQueue:       diffCount,
		Tasks:           make(map[string]int),
	}
	for _, status := range []string{models.StatusPending, models.StatusInProgress, models.StatusFailed, models.StatusDone} {
		n, err := a.Tasks.CountByStatus(ctx, status)
		if err != nil {
			return err
		}
		report.Tasks[status] = n
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
