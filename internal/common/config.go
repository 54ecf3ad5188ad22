package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration. Values are resolved in
// order: defaults, optional TOML file, environment variables. Command-line
// flags override on top in each binary.
type Config struct {
	Store     StoreConfig     `toml:"store"`
	Snapshot  SnapshotConfig  `toml:"snapshot"`
	Worker    WorkerConfig    `toml:"worker"`
	Extract   ExtractConfig   `toml:"extract"`
	Digest    DigestConfig    `toml:"digest"`
	Schedule  ScheduleConfig  `toml:"schedule"`
	Logging   LoggingConfig   `toml:"logging"`
	SecretEnv string          `toml:"secret_env"` // KEY=value file loaded into the environment at startup
}

type StoreConfig struct {
	Path          string `toml:"path" validate:"required"`
	BusyTimeoutMS int    `toml:"busy_timeout_ms" validate:"gte=30000"`
	WALMode       bool   `toml:"wal_mode"`
}

type SnapshotConfig struct {
	CSVPath            string `toml:"csv_path"`
	NodeWorkdir        string `toml:"node_workdir"`
	NodeBin            string `toml:"node_bin"`
	NodeTimeoutSeconds int    `toml:"node_timeout_seconds" validate:"gt=0"`
	MaxWorkers         int    `toml:"max_workers" validate:"gte=1"`
	StopOnError        bool   `toml:"stop_on_error"`
}

type WorkerConfig struct {
	PollSleepSeconds int    `toml:"poll_sleep_seconds" validate:"gt=0"`
	TimeoutSeconds   int    `toml:"timeout_seconds" validate:"gt=0"`
	StaleAfter       string `toml:"stale_after"` // reap threshold for IN_PROGRESS rows, e.g. "10m"
	BackoffMS        int64  `toml:"backoff_ms" validate:"gt=0"`
	MaxJobsPerRun    int    `toml:"max_jobs_per_run" validate:"gte=0"`
}

// ExtractConfig selects and configures the experience extraction engine.
// Engine "exec" drives the external node|python subprocess pipeline; engine
// "native" renders the page with headless Chrome and calls the Anthropic API
// in-process.
type ExtractConfig struct {
	Engine              string  `toml:"engine" validate:"oneof=exec native"`
	NodeBin             string  `toml:"node_bin"`
	PuppeteerScript     string  `toml:"puppeteer_script"`
	PythonBin           string  `toml:"python_bin"`
	ExtractExperiencePy string  `toml:"extract_experience_py"`
	AnthropicModel      string  `toml:"anthropic_model"`
	RatePerSecond       float64 `toml:"rate_per_second" validate:"gt=0"`
	ThresholdYears      int     `toml:"threshold_years" validate:"gt=0"`
}

type DigestConfig struct {
	Limit       int    `toml:"limit" validate:"gt=0"`
	AuditCSV    string `toml:"audit_csv"`
	DisplayZone string `toml:"display_zone"`
	SMTPHost    string `toml:"smtp_host"`
	SMTPPort    int    `toml:"smtp_port"`
	SMTPUser    string `toml:"smtp_user"`
	SMTPPass    string `toml:"smtp_pass"`
	EmailFrom   string `toml:"email_from"`
	EmailTo     string `toml:"email_to"`
}

// ScheduleConfig holds cron expressions for the jobwatchd daemon.
type ScheduleConfig struct {
	Snapshot string `toml:"snapshot"`
	Digest   string `toml:"digest"`
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=debug info warn error"`
	Output []string `toml:"output"`
}

// DefaultConfig returns the configuration defaults matching the reference
// deployment.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path:          "./state/snapshots.sqlite3",
			BusyTimeoutMS: 30000,
			WALMode:       true,
		},
		Snapshot: SnapshotConfig{
			NodeBin:            "node",
			NodeTimeoutSeconds: 180,
			MaxWorkers:         4,
		},
		Worker: WorkerConfig{
			PollSleepSeconds: 2,
			TimeoutSeconds:   120,
			StaleAfter:       "10m",
			BackoffMS:        30000,
		},
		Extract: ExtractConfig{
			Engine:         "exec",
			NodeBin:        "node",
			PythonBin:      "python",
			AnthropicModel: "claude-3-5-haiku-latest",
			RatePerSecond:  1,
			ThresholdYears: 4,
		},
		Digest: DigestConfig{
			Limit:       200,
			AuditCSV:    "./state/emailed_jobs.csv",
			DisplayZone: "America/Denver",
			SMTPPort:    465,
		},
		Schedule: ScheduleConfig{
			Snapshot: "0 */6 * * *",
			Digest:   "30 */6 * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		SecretEnv: "./state/secrets.env",
	}
}

// LoadConfig loads configuration from an optional TOML file and the
// environment, then validates the result. An empty path loads defaults plus
// environment only.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps the reference deployment's environment variables
// onto the config. Environment wins over file values. Binaries call this a
// second time after loading the secrets file so values sourced there take
// effect.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("SMTP_HOST"); v != "" {
		c.Digest.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Digest.SMTPPort = port
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		c.Digest.SMTPUser = v
	}
	if v := os.Getenv("SMTP_PASS"); v != "" {
		c.Digest.SMTPPass = v
	}
	if v := os.Getenv("EMAIL_FROM"); v != "" {
		c.Digest.EmailFrom = v
	}
	if v := os.Getenv("EMAIL_TO"); v != "" {
		c.Digest.EmailTo = v
	}
	if v := os.Getenv("EMAILED_JOBS_CSV"); v != "" {
		c.Digest.AuditCSV = v
	}
	if v := os.Getenv("ANTHROPIC_MODEL"); v != "" {
		c.Extract.AnthropicModel = v
	}
}

// Validate checks the configuration against struct constraints.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := time.ParseDuration(c.Worker.StaleAfter); err != nil {
		return fmt.Errorf("invalid worker.stale_after %q: %w", c.Worker.StaleAfter, err)
	}
	return nil
}

// StaleAfterDuration returns the parsed reap threshold.
func (c *Config) StaleAfterDuration() time.Duration {
	d, err := time.ParseDuration(c.Worker.StaleAfter)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

// RequireSMTP returns an error naming every missing mail credential. Fatal at
// startup for the digest emitter, ignored by the other stages.
func (c *Config) RequireSMTP() error {
	var missing []string
	for _, kv := range []struct{ name, val string }{
		{"SMTP_HOST", c.Digest.SMTPHost},
		{"SMTP_USER", c.Digest.SMTPUser},
		{"SMTP_PASS", c.Digest.SMTPPass},
		{"EMAIL_FROM", c.Digest.EmailFrom},
		{"EMAIL_TO", c.Digest.EmailTo},
	} {
		if kv.val == "" {
			missing = append(missing, kv.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing env vars: %v", missing)
	}
	return nil
}
