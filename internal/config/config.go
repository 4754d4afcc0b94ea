package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Oracles  []OracleConfig `json:"oracles"`
	Database DatabaseConfig `json:"database"`
	Crew     CrewConfig     `json:"crew"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

// OracleConfig describes one reasoning-oracle endpoint. The first entry
// is the primary, the rest form the failover chain.
type OracleConfig struct {
	ID        string `json:"id"`
	Endpoint  string `json:"endpoint"`
	APIKey    string `json:"api_key"`
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens,omitempty"`
	TimeoutS  int    `json:"timeout_seconds,omitempty"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Neo4j    Neo4jConfig    `json:"neo4j"`
	Redis    RedisConfig    `json:"redis"`
}

type PostgresConfig struct {
	DSN           string `json:"dsn"`
	MigrationsDir string `json:"migrations_dir"`
}

type Neo4jConfig struct {
	URI      string `json:"uri"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

// CrewConfig tunes the lifecycle manager and execution engine.
type CrewConfig struct {
	DefaultWorker     string `json:"default_worker"`
	PoolSize          int    `json:"pool_size"`
	HistorySize       int    `json:"history_size"`
	NegotiationRounds int    `json:"negotiation_rounds"`
	MonitorIntervalS  int    `json:"monitor_interval_seconds"`
	IdleThresholdS    int    `json:"idle_threshold_seconds"`
	BestEffort        bool   `json:"best_effort"`
}

// MonitorInterval returns the configured interval or zero for default.
func (c CrewConfig) MonitorInterval() time.Duration {
	return time.Duration(c.MonitorIntervalS) * time.Second
}

// IdleThreshold returns the configured threshold or zero for default.
func (c CrewConfig) IdleThreshold() time.Duration {
	return time.Duration(c.IdleThresholdS) * time.Second
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Crew.DefaultWorker == "" {
		cfg.Crew.DefaultWorker = "helper-bot"
	}
	return &cfg, nil
}
