package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ConnectBest/failover-orchestrator/internal/validation"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Failover  FailoverConfig  `yaml:"failover"`
	History   HistoryConfig   `yaml:"history"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// AuthConfig holds operator authentication configuration
type AuthConfig struct {
	Mode      string `yaml:"mode"` // "none" or "jwt"
	JWTSecret string `yaml:"jwt_secret"`
}

// RateLimitConfig holds API rate limiting configuration
type RateLimitConfig struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// RelationalEndpoint names one Postgres node
type RelationalEndpoint struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// Addr returns the host:port form published in routing records
func (e RelationalEndpoint) Addr() string {
	return e.Host + ":" + e.Port
}

// DSN returns the connection string for the endpoint
func (e RelationalEndpoint) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		e.Host, e.Port, e.User, e.Password, e.Database)
}

// RegionConfig names one region's data-plane endpoints
type RegionConfig struct {
	Relational RelationalEndpoint `yaml:"relational"`
	Cache      string             `yaml:"cache"`
}

// FailoverConfig holds the orchestration parameters
type FailoverConfig struct {
	Regions           map[string]RegionConfig `yaml:"regions"`
	ActiveRegion      string                  `yaml:"active_region"`
	SentinelEndpoints []string                `yaml:"sentinel_endpoints"`
	CacheServiceName  string                  `yaml:"cache_service_name"`
	OverallBudget     time.Duration           `yaml:"overall_budget"`
	MaxLagTolerated   time.Duration           `yaml:"max_lag_tolerated"`
	StepBudgets       StepBudgetsConfig       `yaml:"step_budgets"`
}

// StepBudgetsConfig holds optional per-step budget overrides. Zero values
// fall back to the coordinator defaults.
type StepBudgetsConfig struct {
	HealthCheck       time.Duration `yaml:"health_check"`
	PromoteRelational time.Duration `yaml:"promote_relational"`
	FailoverCache     time.Duration `yaml:"failover_cache"`
	UpdateRouting     time.Duration `yaml:"update_routing"`
	Validate          time.Duration `yaml:"validate"`
}

// HistoryConfig holds history store configuration
type HistoryConfig struct {
	Capacity    int    `yaml:"capacity"`
	JournalPath string `yaml:"journal_path"`
}

// Load builds configuration from environment variables, then overlays the
// YAML file named by CONFIG_FILE when set. The environment defaults describe
// the standard two-region deployment.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8003"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
		Auth: AuthConfig{
			Mode:      getEnv("AUTH_MODE", "none"),
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		RateLimit: RateLimitConfig{
			Limit:  getEnvInt("RATE_LIMIT", 600),
			Window: getEnvDuration("RATE_LIMIT_WINDOW", 1*time.Minute),
		},
		Failover: FailoverConfig{
			Regions:           defaultRegions(),
			ActiveRegion:      getEnv("ACTIVE_REGION", "region1"),
			SentinelEndpoints: getEnvSlice("SENTINEL_ENDPOINTS", []string{"redis-sentinel:26379"}),
			CacheServiceName:  getEnv("CACHE_SERVICE_NAME", "mymaster"),
			OverallBudget:     getEnvDurationMs("OVERALL_BUDGET_MS", 5000),
			MaxLagTolerated:   getEnvDurationMs("MAX_LAG_TOLERATED_MS", 1000),
		},
		History: HistoryConfig{
			Capacity:    getEnvInt("HISTORY_CAPACITY", 1000),
			JournalPath: getEnv("HISTORY_JOURNAL_PATH", ""),
		},
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultRegions builds the two-region layout from the classic deployment
// environment variables
func defaultRegions() map[string]RegionConfig {
	user := getEnv("POSTGRES_USER", "tier0user")
	password := getEnv("POSTGRES_PASSWORD", "tier0pass")
	database := getEnv("POSTGRES_DB", "tier0_db")

	return map[string]RegionConfig{
		"region1": {
			Relational: RelationalEndpoint{
				Host:     getEnv("POSTGRES_PRIMARY_HOST", "postgres"),
				Port:     getEnv("POSTGRES_PRIMARY_PORT", "5432"),
				User:     user,
				Password: password,
				Database: database,
			},
			Cache: getEnv("REDIS_PRIMARY_ADDR", "redis:6379"),
		},
		"region2": {
			Relational: RelationalEndpoint{
				Host:     getEnv("POSTGRES_REPLICA_HOST", "postgres-replica"),
				Port:     getEnv("POSTGRES_REPLICA_PORT", "5432"),
				User:     user,
				Password: password,
				Database: database,
			},
			Cache: getEnv("REDIS_REPLICA_ADDR", "redis-replica:6379"),
		},
	}
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	// A regions map in the file replaces the environment layout instead of
	// being merged into it; without one the environment layout is kept.
	envRegions := cfg.Failover.Regions
	cfg.Failover.Regions = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if cfg.Failover.Regions == nil {
		cfg.Failover.Regions = envRegions
	}
	return nil
}

// Validate checks the configuration describes a usable deployment
func (c *Config) Validate() error {
	if len(c.Failover.Regions) < 2 {
		return fmt.Errorf("at least two regions required, got %d", len(c.Failover.Regions))
	}
	if _, ok := c.Failover.Regions[c.Failover.ActiveRegion]; !ok {
		return fmt.Errorf("active region %q is not a configured region", c.Failover.ActiveRegion)
	}
	for name, region := range c.Failover.Regions {
		if region.Relational.Host == "" || region.Relational.Port == "" {
			return fmt.Errorf("region %s: relational endpoint requires host and port", name)
		}
		if result := validation.ValidateHostPort(region.Cache); !result.Valid {
			return fmt.Errorf("region %s: cache endpoint: %s", name, result.Error)
		}
	}
	if len(c.Failover.SentinelEndpoints) == 0 {
		return fmt.Errorf("at least one sentinel endpoint required")
	}
	for _, addr := range c.Failover.SentinelEndpoints {
		if result := validation.ValidateHostPort(addr); !result.Valid {
			return fmt.Errorf("sentinel endpoint: %s", result.Error)
		}
	}
	if c.Failover.OverallBudget <= 0 {
		return fmt.Errorf("overall budget must be positive")
	}
	if c.Auth.Mode == "jwt" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when AUTH_MODE=jwt")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvDurationMs(key string, defaultMs int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return time.Duration(defaultMs) * time.Millisecond
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := []string{}
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}
