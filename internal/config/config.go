package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Upstream    UpstreamConfig    `yaml:"upstream"`
	LLM         LLMConfig         `yaml:"llm"`
	Leaderboard LeaderboardConfig `yaml:"leaderboard"`
	RabbitMQ    RabbitMQConfig    `yaml:"rabbitmq"`
	Supervisor  SupervisorConfig  `yaml:"supervisor"`
	Backup      BackupConfig      `yaml:"backup"`
	LogLevel    string            `yaml:"log_level"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	RequestDelay    time.Duration `yaml:"request_delay"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	PlanRateLimit   int           `yaml:"plan_rate_limit"`
	PlanRateWindow  time.Duration `yaml:"plan_rate_window"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// LoopbackURL is the base URL of this server on the local interface.
func (s ServerConfig) LoopbackURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", s.Port)
}

type DatabaseConfig struct {
	Driver      string          `yaml:"driver"`
	Path        string          `yaml:"path"`
	DSN         string          `yaml:"dsn"`
	BusyTimeout time.Duration   `yaml:"busy_timeout"`
	WriteGate   WriteGateConfig `yaml:"write_gate"`
}

// WriteGateConfig bounds how long a write waits for a busy store.
type WriteGateConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Delay       time.Duration `yaml:"delay"`
}

type UpstreamConfig struct {
	BaseURL            string        `yaml:"base_url"`
	Timeout            time.Duration `yaml:"timeout"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	SyncTimeout        time.Duration `yaml:"sync_timeout"`
	BreakerFailures    uint32        `yaml:"breaker_failures"`
	BreakerOpenTimeout time.Duration `yaml:"breaker_open_timeout"`
}

type LLMConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Temperature float32       `yaml:"temperature"`
	TopP        float32       `yaml:"top_p"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

func (l LLMConfig) Enabled() bool {
	return l.APIKey != ""
}

type LeaderboardConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type RabbitMQConfig struct {
	URL            string `yaml:"url"`
	Exchange       string `yaml:"exchange"`
	ItemRoutingKey string `yaml:"item_routing_key"`
	AreaRoutingKey string `yaml:"area_routing_key"`
	QueueName      string `yaml:"queue_name"`
}

func (r RabbitMQConfig) Enabled() bool {
	return r.URL != ""
}

type SupervisorConfig struct {
	// Workers is the requested worker count; 0 means ask or use all CPUs.
	Workers          int           `yaml:"workers"`
	Stagger          time.Duration `yaml:"stagger"`
	ReadyTimeout     time.Duration `yaml:"ready_timeout"`
	ProvisionTimeout time.Duration `yaml:"provision_timeout"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
	// FailureThreshold of 0 restarts crashed workers unconditionally.
	FailureThreshold *float64      `yaml:"failure_threshold"`
	FailureDecay     float64       `yaml:"failure_decay"`
	FailureBackoff   time.Duration `yaml:"failure_backoff"`
}

type BackupConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Location string        `yaml:"location"`
	Interval time.Duration `yaml:"interval"`
}

// Load reads the optional YAML file at path, expands environment references
// in it, then applies the flat environment keys on top and fills defaults.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	cfg.setDefaults()

	return &cfg, nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	var errs []error

	intVar := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	durationVar := func(key string, dst *time.Duration, unit time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil || n < 0 {
				errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, v))
				return
			}
			*dst = time.Duration(n) * unit
		}
	}
	stringVar := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	intVar("PORT", &c.Server.Port)
	durationVar("DELAY", &c.Upstream.PollInterval, time.Millisecond)
	intVar("NUM_CORES", &c.Supervisor.Workers)
	durationVar("REQUEST_DELAY", &c.Server.RequestDelay, time.Millisecond)
	stringVar("NVIDIA_API_KEY", &c.LLM.APIKey)
	stringVar("BACKUP_LOCATION", &c.Backup.Location)
	durationVar("BACKUP_INTERVAL", &c.Backup.Interval, time.Minute)
	stringVar("DATABASE_PATH", &c.Database.Path)
	stringVar("DATABASE_DRIVER", &c.Database.Driver)
	stringVar("DATABASE_DSN", &c.Database.DSN)
	stringVar("RABBITMQ_URL", &c.RabbitMQ.URL)
	stringVar("LOG_LEVEL", &c.LogLevel)

	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		c.Server.AllowedOrigins = SplitOrigins(v)
	}
	if v, ok := lookup("ENABLE_BACKUPS"); ok && v != "" {
		enabled, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("ENABLE_BACKUPS: %w", err))
		} else {
			c.Backup.Enabled = enabled
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %w", errors.Join(errs...))
	}
	return nil
}

// SplitOrigins splits a comma separated origin list, dropping empty entries.
func SplitOrigins(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 3001
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 120 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.PlanRateLimit == 0 {
		c.Server.PlanRateLimit = 10
	}
	if c.Server.PlanRateWindow == 0 {
		c.Server.PlanRateWindow = time.Minute
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "jotihunt.db"
	}
	if c.Database.BusyTimeout == 0 {
		c.Database.BusyTimeout = 5 * time.Second
	}
	if c.Database.WriteGate.MaxAttempts == 0 {
		c.Database.WriteGate.MaxAttempts = 25
	}
	if c.Database.WriteGate.Delay == 0 {
		c.Database.WriteGate.Delay = time.Second
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = "https://jotihunt.nl/api/2.0"
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = 30 * time.Second
	}
	if c.Upstream.PollInterval == 0 {
		c.Upstream.PollInterval = time.Minute
	}
	if c.Upstream.SyncTimeout == 0 {
		c.Upstream.SyncTimeout = 5 * time.Minute
	}
	if c.Upstream.BreakerFailures == 0 {
		c.Upstream.BreakerFailures = 5
	}
	if c.Upstream.BreakerOpenTimeout == 0 {
		c.Upstream.BreakerOpenTimeout = 30 * time.Second
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://integrate.api.nvidia.com/v1"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "meta/llama-3.1-405b-instruct"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.2
	}
	if c.LLM.TopP == 0 {
		c.LLM.TopP = 0.7
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 1024
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 90 * time.Second
	}
	if c.Leaderboard.URL == "" {
		c.Leaderboard.URL = "https://web.archive.org/web/20230327175840/https://jotihunt.nl/scorelijst"
	}
	if c.Leaderboard.Timeout == 0 {
		c.Leaderboard.Timeout = 20 * time.Second
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "jotihunt"
	}
	if c.RabbitMQ.ItemRoutingKey == "" {
		c.RabbitMQ.ItemRoutingKey = "items"
	}
	if c.RabbitMQ.AreaRoutingKey == "" {
		c.RabbitMQ.AreaRoutingKey = "areas"
	}
	if c.RabbitMQ.QueueName == "" {
		c.RabbitMQ.QueueName = "jotihunt_events"
	}
	if c.Supervisor.Stagger == 0 {
		c.Supervisor.Stagger = 500 * time.Millisecond
	}
	if c.Supervisor.ReadyTimeout == 0 {
		c.Supervisor.ReadyTimeout = 30 * time.Second
	}
	if c.Supervisor.ProvisionTimeout == 0 {
		c.Supervisor.ProvisionTimeout = time.Minute
	}
	if c.Supervisor.ShutdownTimeout == 0 {
		c.Supervisor.ShutdownTimeout = 15 * time.Second
	}
	if c.Supervisor.FailureThreshold == nil {
		threshold := 5.0
		c.Supervisor.FailureThreshold = &threshold
	}
	if c.Supervisor.FailureDecay == 0 {
		c.Supervisor.FailureDecay = 30
	}
	if c.Supervisor.FailureBackoff == 0 {
		c.Supervisor.FailureBackoff = 15 * time.Second
	}
	if c.Backup.Location == "" {
		c.Backup.Location = "./backups"
	}
	if c.Backup.Interval == 0 {
		c.Backup.Interval = time.Hour
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
