package collector

import (
	"time"

	"homewatch/internal/collector/services"
)

// CollectorConfig contains configurable parameters for snapshot collection.
// Use DefaultCollectorConfig() to get sensible defaults, then override as needed.
type CollectorConfig struct {
	// Timeout settings
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`     // Per-probe deadline (default: 5s)
	SpeedtestTimeout time.Duration `mapstructure:"speedtest_timeout"` // Deadline for the speedtest probe (default: 2m)

	// Network discovery
	NetworkRange     string `mapstructure:"network_range"`      // CIDR to keep devices from; empty keeps all
	QuickScan        bool   `mapstructure:"quick_scan"`         // Skip reverse DNS (default: false)
	SecurityEventLog string `mapstructure:"security_event_log"` // Suricata eve.json path; empty disables alerts

	// Health checks
	ServiceChecks []services.ServiceCheck `mapstructure:"service_checks"`

	// Circuit breaker
	BreakerFailures uint32        `mapstructure:"breaker_failures"` // Consecutive failures before a probe is skipped (default: 3)
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"` // How long a tripped probe stays skipped (default: 15m)

	// Feature flags
	EnableDocker    bool `mapstructure:"enable_docker"`    // default: true
	EnableTailscale bool `mapstructure:"enable_tailscale"` // default: true
	EnableNetwork   bool `mapstructure:"enable_network"`   // default: true
	EnablePower     bool `mapstructure:"enable_power"`     // default: true
	EnableSpeedtest bool `mapstructure:"enable_speedtest"` // Run on every collection (default: false)
}

// DefaultCollectorConfig returns a CollectorConfig with sensible defaults.
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		ProbeTimeout:     5 * time.Second,
		SpeedtestTimeout: 2 * time.Minute,

		BreakerFailures: 3,
		BreakerCooldown: 15 * time.Minute,

		EnableDocker:    true,
		EnableTailscale: true,
		EnableNetwork:   true,
		EnablePower:     true,
		EnableSpeedtest: false,
	}
}

// WithProbeTimeout returns a copy of the config with modified probe timeout.
func (c CollectorConfig) WithProbeTimeout(d time.Duration) CollectorConfig {
	c.ProbeTimeout = d
	return c
}

// WithNetworkRange returns a copy of the config scanning only cidr.
func (c CollectorConfig) WithNetworkRange(cidr string, quick bool) CollectorConfig {
	c.NetworkRange = cidr
	c.QuickScan = quick
	return c
}

// WithServiceChecks returns a copy of the config with the given health checks.
func (c CollectorConfig) WithServiceChecks(checks ...services.ServiceCheck) CollectorConfig {
	c.ServiceChecks = append([]services.ServiceCheck(nil), checks...)
	return c
}

// WithDocker returns a copy of the config with Docker collection enabled/disabled.
func (c CollectorConfig) WithDocker(enabled bool) CollectorConfig {
	c.EnableDocker = enabled
	return c
}

// WithSpeedtest returns a copy of the config with speedtests on every collection.
func (c CollectorConfig) WithSpeedtest(enabled bool) CollectorConfig {
	c.EnableSpeedtest = enabled
	return c
}

// Validate checks if the configuration is valid and returns an error if not.
func (c CollectorConfig) Validate() error {
	if c.ProbeTimeout <= 0 {
		return &ConfigError{Field: "ProbeTimeout", Message: "must be positive"}
	}
	if c.SpeedtestTimeout <= 0 {
		return &ConfigError{Field: "SpeedtestTimeout", Message: "must be positive"}
	}
	if c.BreakerFailures == 0 {
		return &ConfigError{Field: "BreakerFailures", Message: "must be positive"}
	}
	if c.BreakerCooldown <= 0 {
		return &ConfigError{Field: "BreakerCooldown", Message: "must be positive"}
	}
	for _, sc := range c.ServiceChecks {
		if sc.Name == "" || sc.Target == "" {
			return &ConfigError{Field: "ServiceChecks", Message: "entries need a name and a target"}
		}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + " " + e.Message
}
