package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	DB           DBConfig           `mapstructure:"db"`
	Journal      JournalConfig      `mapstructure:"journal"`
	Ledger       LedgerConfig       `mapstructure:"ledger"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Receipt      ReceiptConfig      `mapstructure:"receipt"`
	Cron         CronConfig         `mapstructure:"cron"`
	PaaS         PaaSConfig         `mapstructure:"paas"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

// JournalConfig controls the local transition journal. With Enabled=false the
// service runs without a database.
type JournalConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Retention drops journal rows older than this; zero keeps everything.
	Retention time.Duration `mapstructure:"retention"`
	// Buffer is how many events may wait for the journal writer.
	Buffer int `mapstructure:"buffer"`
}

type LedgerConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	ProofTimeout time.Duration `mapstructure:"proof_timeout"`
	RatePerSec   float64       `mapstructure:"rate_per_sec"`
	Burst        int           `mapstructure:"burst"`
}

type OrchestratorConfig struct {
	CreationSyncAttempts    int           `mapstructure:"creation_sync_attempts"`
	CreationSyncInterval    time.Duration `mapstructure:"creation_sync_interval"`
	SettlementAttempts      int           `mapstructure:"settlement_attempts"`
	SettlementInterval      time.Duration `mapstructure:"settlement_interval"`
	SettlementGrace         time.Duration `mapstructure:"settlement_grace"`
	SessionTTL              time.Duration `mapstructure:"session_ttl"`
	EnforceDeadlineOnSubmit bool          `mapstructure:"enforce_deadline_on_submit"`
}

type ReceiptConfig struct {
	MaxBytes     int64    `mapstructure:"max_bytes"`
	AllowedTypes []string `mapstructure:"allowed_types"`
}

type CronConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Tick          string `mapstructure:"tick"`
	LedgerRefresh string `mapstructure:"ledger_refresh"`
	SessionSweep  string `mapstructure:"session_sweep"`
}

type PaaSConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Agent          string `mapstructure:"agent"`
	AuthDisabled   bool   `mapstructure:"auth_disabled"`
	RequireGateway bool   `mapstructure:"require_gateway"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ZKP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 2)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.retention", "0s")
	v.SetDefault("journal.buffer", 1024)

	v.SetDefault("ledger.base_url", "http://localhost:3001")
	v.SetDefault("ledger.timeout", "15s")
	// Proof generation runs for minutes on the prover side.
	v.SetDefault("ledger.proof_timeout", "10m")
	v.SetDefault("ledger.rate_per_sec", 20)
	v.SetDefault("ledger.burst", 10)

	v.SetDefault("orchestrator.creation_sync_attempts", 20)
	v.SetDefault("orchestrator.creation_sync_interval", "3s")
	v.SetDefault("orchestrator.settlement_attempts", 20)
	v.SetDefault("orchestrator.settlement_interval", "3s")
	v.SetDefault("orchestrator.settlement_grace", "2s")
	v.SetDefault("orchestrator.session_ttl", "30m")
	v.SetDefault("orchestrator.enforce_deadline_on_submit", false)

	v.SetDefault("receipt.max_bytes", 10<<20)
	v.SetDefault("receipt.allowed_types", []string{"application/pdf"})

	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.tick", "@every 1s")
	v.SetDefault("cron.ledger_refresh", "@every 15s")
	v.SetDefault("cron.session_sweep", "@every 5m")

	v.SetDefault("paas.base_url", "")
	v.SetDefault("paas.api_key", "")
	v.SetDefault("paas.agent", "zkpay-orchestrator")
	v.SetDefault("paas.auth_disabled", true)
	v.SetDefault("paas.require_gateway", false)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
