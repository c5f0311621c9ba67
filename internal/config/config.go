package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Serper     SerperConfig     `yaml:"serper" mapstructure:"serper"`
	Resend     ResendConfig     `yaml:"resend" mapstructure:"resend"`
	Email      EmailConfig      `yaml:"email" mapstructure:"email"`
	Checker    CheckerConfig    `yaml:"checker" mapstructure:"checker"`
	Detect     DetectConfig     `yaml:"detect" mapstructure:"detect"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SerperConfig holds Serper search API settings.
type SerperConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	NumResults  int     `yaml:"num_results" mapstructure:"num_results"`
	ResultLimit int     `yaml:"result_limit" mapstructure:"result_limit"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ResendConfig holds Resend email API settings.
type ResendConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// EmailConfig configures change alert emails.
type EmailConfig struct {
	From       string   `yaml:"from" mapstructure:"from"`
	Recipients []string `yaml:"recipients" mapstructure:"recipients"`
}

// CheckerConfig configures the scheduled job check run.
type CheckerConfig struct {
	Schedule   string `yaml:"schedule" mapstructure:"schedule"`
	Timezone   string `yaml:"timezone" mapstructure:"timezone"`
	DelayMS    int    `yaml:"delay_ms" mapstructure:"delay_ms"`
	LockFile   string `yaml:"lock_file" mapstructure:"lock_file"`
	EvidenceN  int    `yaml:"evidence_n" mapstructure:"evidence_n"`
	NoSchedule bool   `yaml:"no_schedule" mapstructure:"no_schedule"`
}

// DetectConfig holds the change-confidence scoring policy.
type DetectConfig struct {
	Threshold           int `yaml:"threshold" mapstructure:"threshold"`
	KeywordWeight       int `yaml:"keyword_weight" mapstructure:"keyword_weight"`
	KeywordCap          int `yaml:"keyword_cap" mapstructure:"keyword_cap"`
	DateWeight          int `yaml:"date_weight" mapstructure:"date_weight"`
	CorroborationWeight int `yaml:"corroboration_weight" mapstructure:"corroboration_weight"`
	RoleWeight          int `yaml:"role_weight" mapstructure:"role_weight"`
}

// MonitoringConfig configures run health alerts.
type MonitoringConfig struct {
	WebhookURL         string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	ErrorRateThreshold float64 `yaml:"error_rate_threshold" mapstructure:"error_rate_threshold"`
	MinChecked         int     `yaml:"min_checked" mapstructure:"min_checked"`
}

// NotionConfig holds Notion credentials for roster import.
type NotionConfig struct {
	Token     string  `yaml:"token" mapstructure:"token"`
	RosterDB  string  `yaml:"roster_db" mapstructure:"roster_db"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ResilienceConfig tunes retries and circuit breakers around the search
// and email providers.
type ResilienceConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Jitter           float64 `yaml:"jitter" mapstructure:"jitter"`
	CircuitThreshold int     `yaml:"circuit_threshold" mapstructure:"circuit_threshold"`
	CircuitResetSecs int     `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Format     string `yaml:"format" mapstructure:"format"`
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
}

// legacyEnv maps config keys to the environment variable names used by the
// legacy deployment so existing .env files keep working.
var legacyEnv = map[string]string{
	"serper.key":         "SERPER_API_KEY",
	"resend.key":         "RESEND_API_KEY",
	"email.from":         "EMAIL_FROM",
	"email.recipients":   "EMAIL_RECIPIENTS",
	"store.database_url": "DATABASE_URL",
	"server.port":        "PORT",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("JOBCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envKey := "JOBCHECK_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", legacy)
		}
	}

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("serper.base_url", "https://google.serper.dev")
	v.SetDefault("serper.num_results", 10)
	v.SetDefault("serper.result_limit", 5)
	v.SetDefault("serper.rate_limit", 1.0)
	v.SetDefault("serper.timeout_secs", 15)
	v.SetDefault("resend.base_url", "https://api.resend.com")
	v.SetDefault("email.from", "JobCheck <onboarding@resend.dev>")
	v.SetDefault("checker.schedule", "0 2 * * 0")
	v.SetDefault("checker.timezone", "Local")
	v.SetDefault("checker.delay_ms", 2000)
	v.SetDefault("checker.lock_file", filepath.Join(os.TempDir(), "jobcheck.lock"))
	v.SetDefault("checker.evidence_n", 3)
	v.SetDefault("detect.threshold", 50)
	v.SetDefault("detect.keyword_weight", 20)
	v.SetDefault("detect.keyword_cap", 2)
	v.SetDefault("detect.date_weight", 30)
	v.SetDefault("detect.corroboration_weight", 20)
	v.SetDefault("detect.role_weight", 10)
	v.SetDefault("monitoring.error_rate_threshold", 0.5)
	v.SetDefault("monitoring.min_checked", 3)
	v.SetDefault("notion.rate_limit", 3.0)
	v.SetDefault("resilience.max_attempts", 3)
	v.SetDefault("resilience.initial_backoff_ms", 500)
	v.SetDefault("resilience.max_backoff_ms", 10000)
	v.SetDefault("resilience.jitter", 0.25)
	v.SetDefault("resilience.circuit_threshold", 5)
	v.SetDefault("resilience.circuit_reset_secs", 60)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.Email.Recipients = splitRecipients(cfg.Email.Recipients)

	return &cfg, nil
}

// splitRecipients flattens comma-separated entries and drops blanks.
func splitRecipients(in []string) []string {
	var out []string
	for _, entry := range in {
		for _, addr := range strings.Split(entry, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				out = append(out, addr)
			}
		}
	}
	return out
}

// Validate checks that the settings required by the given command mode are present.
// Errors are accumulated so the caller sees every missing field at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	needStore := func() {
		if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}

	switch mode {
	case "serve":
		needStore()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Serper.Key == "" {
			problems = append(problems, "serper.key is required")
		}
		if c.Checker.Schedule == "" && !c.Checker.NoSchedule {
			problems = append(problems, "checker.schedule is required")
		}
	case "check":
		needStore()
		if c.Serper.Key == "" {
			problems = append(problems, "serper.key is required")
		}
	case "import":
		needStore()
	case "store":
		needStore()
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if c.Detect.Threshold < 0 || c.Detect.Threshold > 100 {
		problems = append(problems, "detect.threshold must be between 0 and 100")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}
