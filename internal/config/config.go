// Package config loads homewatch settings from a YAML file, HOMEWATCH_*
// environment variables and built-in defaults, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"homewatch/internal/anomaly"
	"homewatch/internal/collector"
	"homewatch/internal/database"
	"homewatch/internal/database/graph"
	"homewatch/internal/database/rag"
	"homewatch/internal/database/relational"
	"homewatch/internal/engine"
	"homewatch/internal/logstore"
	"homewatch/internal/narrator"
)

const (
	EnvPrefix       = "HOMEWATCH"
	DefaultFileName = "homewatch.yaml"
)

// Config is the root of the configuration tree.
type Config struct {
	Log       LogConfig                 `mapstructure:"log"`
	Store     StoreConfig               `mapstructure:"store"`
	Collector collector.CollectorConfig `mapstructure:"collector"`
	Detector  anomaly.Config            `mapstructure:"detector"`
	Narrator  narrator.Config           `mapstructure:"narrator"`
	Health    engine.Config             `mapstructure:"health"`
	Scheduler database.WorkerConfig     `mapstructure:"scheduler"`
	DuckDB    relational.DatabaseConfig `mapstructure:"duckdb"`
	Neo4j     graph.Config              `mapstructure:"neo4j"`
	Gemini    rag.Config                `mapstructure:"gemini"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console, json
}

type StoreConfig struct {
	Path           string `mapstructure:"path"`            // explicit JSONL path
	ExternalVolume string `mapstructure:"external_volume"` // used when mounted
	RetentionDays  int    `mapstructure:"retention_days"`  // default: 7
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Log:       LogConfig{Level: "info", Format: "console"},
		Store:     StoreConfig{RetentionDays: logstore.DefaultRetentionDays},
		Collector: collector.DefaultCollectorConfig(),
		Detector:  anomaly.DefaultConfig(),
		Narrator:  narrator.DefaultConfig(),
		Health:    engine.DefaultConfig(),
		Scheduler: database.DefaultWorkerConfig(),
		Gemini:    rag.DefaultConfig(),
	}
}

// DefaultPath is $HOME/.homelab/homewatch.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, logstore.DefaultDirName, DefaultFileName)
}

// Load reads path, or the default location when path is empty. A missing
// default file is not an error; a missing explicit file is.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else if def := DefaultPath(); def != "" {
		v.AddConfigPath(filepath.Dir(def))
		v.SetConfigName(strings.TrimSuffix(DefaultFileName, filepath.Ext(DefaultFileName)))
	}

	// HOMEWATCH_STORE_PATH overrides store.path
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, Default())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	cfg.Scheduler.RetentionDays = cfg.Store.RetentionDays

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section that has rules.
func (c *Config) Validate() error {
	if c.Store.RetentionDays < 0 {
		return errors.New("store.retention_days: must not be negative")
	}
	if err := c.Collector.Validate(); err != nil {
		return fmt.Errorf("collector: %w", err)
	}
	if err := c.Detector.Validate(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	if err := c.Health.Validate(); err != nil {
		return err
	}
	return c.Scheduler.Validate()
}

// setDefaults registers every scalar key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.external_volume", d.Store.ExternalVolume)
	v.SetDefault("store.retention_days", d.Store.RetentionDays)

	v.SetDefault("collector.probe_timeout", d.Collector.ProbeTimeout)
	v.SetDefault("collector.speedtest_timeout", d.Collector.SpeedtestTimeout)
	v.SetDefault("collector.network_range", d.Collector.NetworkRange)
	v.SetDefault("collector.quick_scan", d.Collector.QuickScan)
	v.SetDefault("collector.security_event_log", d.Collector.SecurityEventLog)
	v.SetDefault("collector.breaker_failures", d.Collector.BreakerFailures)
	v.SetDefault("collector.breaker_cooldown", d.Collector.BreakerCooldown)
	v.SetDefault("collector.enable_docker", d.Collector.EnableDocker)
	v.SetDefault("collector.enable_tailscale", d.Collector.EnableTailscale)
	v.SetDefault("collector.enable_network", d.Collector.EnableNetwork)
	v.SetDefault("collector.enable_power", d.Collector.EnablePower)
	v.SetDefault("collector.enable_speedtest", d.Collector.EnableSpeedtest)

	v.SetDefault("detector.gone_window", d.Detector.GoneWindow)
	v.SetDefault("detector.gone_min_seen", d.Detector.GoneMinSeen)
	v.SetDefault("detector.traffic_window", d.Detector.TrafficWindow)
	v.SetDefault("detector.spike_multiplier", d.Detector.SpikeMultiplier)
	v.SetDefault("detector.count_window", d.Detector.CountWindow)
	v.SetDefault("detector.count_min_samples", d.Detector.CountMinSamples)
	v.SetDefault("detector.count_deviation", d.Detector.CountDeviation)

	v.SetDefault("narrator.gap_threshold", d.Narrator.GapThreshold)
	v.SetDefault("narrator.power_event_limit", d.Narrator.PowerEventLimit)
	v.SetDefault("narrator.bullet_limit", d.Narrator.BulletLimit)
	v.SetDefault("narrator.top_alerts", d.Narrator.TopAlerts)

	v.SetDefault("health.cpu.warning", d.Health.CPU.Warning)
	v.SetDefault("health.cpu.critical", d.Health.CPU.Critical)
	v.SetDefault("health.memory.warning", d.Health.Memory.Warning)
	v.SetDefault("health.memory.critical", d.Health.Memory.Critical)
	v.SetDefault("health.disk.warning", d.Health.Disk.Warning)
	v.SetDefault("health.disk.critical", d.Health.Disk.Critical)

	v.SetDefault("scheduler.interval", d.Scheduler.Interval)
	v.SetDefault("scheduler.cleanup_every", d.Scheduler.CleanupEvery)
	v.SetDefault("scheduler.speedtest_every", d.Scheduler.SpeedtestEvery)
	v.SetDefault("scheduler.append_attempts", d.Scheduler.AppendAttempts)
	v.SetDefault("scheduler.detect_window", d.Scheduler.DetectWindow)
	v.SetDefault("scheduler.metrics_textfile", d.Scheduler.MetricsTextfile)

	v.SetDefault("duckdb.path", d.DuckDB.Path)
	v.SetDefault("duckdb.threads", d.DuckDB.Threads)
	v.SetDefault("duckdb.memory_limit_gb", d.DuckDB.MemoryLimitGB)
	v.SetDefault("duckdb.timeout", d.DuckDB.Timeout)

	v.SetDefault("neo4j.uri", d.Neo4j.URI)
	v.SetDefault("neo4j.user", d.Neo4j.User)
	v.SetDefault("neo4j.password", d.Neo4j.Password)
	v.SetDefault("neo4j.database", d.Neo4j.Database)

	v.SetDefault("gemini.api_key", d.Gemini.APIKey)
	v.SetDefault("gemini.model", d.Gemini.Model)
	v.SetDefault("gemini.rps", d.Gemini.RPS)
}
