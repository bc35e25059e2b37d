package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config aggregates every runtime setting for the integrity engine.
// Values come from config/config.yaml; secrets may be overridden from .env.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
}

// ServerConfig governs the HTTP surface.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"` // gin mode: debug/release/test
	AllowedOrigins string        `mapstructure:"allowed_origins"`
	OperatorToken  string        `mapstructure:"operator_token"` // bearer token for alert review
	RatePerMinute  int           `mapstructure:"rate_per_minute"`
	RateBurst      int           `mapstructure:"rate_burst"`
	RateIdleTTL    time.Duration `mapstructure:"rate_idle_ttl"` // evict per-IP buckets idle this long
}

// DatabaseConfig is the PostgreSQL connection pool configuration.
type DatabaseConfig struct {
	URL         string `mapstructure:"url"`
	MaxConns    int    `mapstructure:"max_conns"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// RedisConfig is the TruthScore cache configuration.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	ScoreTTL time.Duration `mapstructure:"score_ttl"`
}

// LoggingConfig controls zerolog output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console|json
}

// ThresholdsConfig is the tunable surface of the integrity engine. Every
// detector cutoff and scoring constant lives here so operations can retune
// without a code change.
type ThresholdsConfig struct {
	// Wash trading
	WashEpochThreshold int `mapstructure:"wash_epoch_threshold"` // default 3

	// Sybil clustering
	SybilMinWallets  int           `mapstructure:"sybil_min_wallets"`  // default 3
	SybilTimeBucket  time.Duration `mapstructure:"sybil_time_bucket"`  // default 5s
	EvidenceEpochCap int           `mapstructure:"evidence_epoch_cap"` // evidence truncation cap, default 10

	// Statistical anomaly
	AnomalyZThreshold float64 `mapstructure:"anomaly_z_threshold"` // default 3.29 (one-sided 99.9%)
	AnomalyMinSample  int64   `mapstructure:"anomaly_min_sample"`  // default 50
	AnomalyTwoSided   bool    `mapstructure:"anomaly_two_sided"`   // default false, known gap

	// Collusion
	CollusionMinShared int     `mapstructure:"collusion_min_shared"` // default 20
	CollusionOverlap   float64 `mapstructure:"collusion_overlap"`    // default 0.8
	CollusionAllPairs  bool    `mapstructure:"collusion_all_pairs"`  // default false

	// Scoring
	WilsonZ            float64       `mapstructure:"wilson_z"`             // default 1.96
	LeaderboardMinBets int64         `mapstructure:"leaderboard_min_bets"` // default 10
	FullWeightBets     int64         `mapstructure:"full_weight_bets"`     // default 50
	YoungAccountAge    time.Duration `mapstructure:"young_account_age"`    // display cap window
}

// Load reads config/config.yaml and applies .env overrides for secrets.
func Load() (*Config, error) {
	// .env is optional; values present there beat the yaml.
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// Missing config file is fine: defaults cover every threshold and
		// secrets come from the environment.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 5340)
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("server.rate_per_minute", 60)
	viper.SetDefault("server.rate_burst", 20)
	viper.SetDefault("server.rate_idle_ttl", 10*time.Minute)

	viper.SetDefault("database.max_conns", 10)
	viper.SetDefault("database.auto_migrate", true)

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.score_ttl", "5m")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")

	viper.SetDefault("thresholds.wash_epoch_threshold", 3)
	viper.SetDefault("thresholds.sybil_min_wallets", 3)
	viper.SetDefault("thresholds.sybil_time_bucket", "5s")
	viper.SetDefault("thresholds.evidence_epoch_cap", 10)
	viper.SetDefault("thresholds.anomaly_z_threshold", 3.29)
	viper.SetDefault("thresholds.anomaly_min_sample", 50)
	viper.SetDefault("thresholds.anomaly_two_sided", false)
	viper.SetDefault("thresholds.collusion_min_shared", 20)
	viper.SetDefault("thresholds.collusion_overlap", 0.8)
	viper.SetDefault("thresholds.collusion_all_pairs", false)
	viper.SetDefault("thresholds.wilson_z", 1.96)
	viper.SetDefault("thresholds.leaderboard_min_bets", 10)
	viper.SetDefault("thresholds.full_weight_bets", 50)
	viper.SetDefault("thresholds.young_account_age", "720h")
}

// overrideFromEnv lets deployment secrets beat the yaml file.
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("OPERATOR_TOKEN"); v != "" {
		cfg.Server.OperatorToken = v
	}
}
