// Package collector assembles one Snapshot per call by fanning out to the
// subsystem probes in services.
package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"homewatch/internal/collector/services"
	"homewatch/internal/logging"
	"homewatch/internal/metrics"
	"homewatch/internal/snapshot"
)

// ============================================================================
// DATA STRUCTURES
// ============================================================================

// ProbeResult is the outcome of one probe call within a collection.
type ProbeResult struct {
	Name     string
	Err      error
	Duration time.Duration
}

// OK reports whether the probe's data made it into the snapshot.
func (r ProbeResult) OK() bool { return r.Err == nil }

type registeredProbe struct {
	probe   services.Probe
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
}

// ============================================================================
// INTERFACE DEFINITION
// ============================================================================

// SnapshotProvider is what the scheduler, CLI and MCP server depend on.
type SnapshotProvider interface {
	CollectSnapshot(ctx context.Context, opts ...CollectOption) *snapshot.Snapshot
}

// ============================================================================
// CONCRETE IMPLEMENTATION
// ============================================================================

// Collector runs every registered probe concurrently. It never fails: probe
// errors, panics and timeouts end up in Snapshot.Errors.
type Collector struct {
	cfg       CollectorConfig
	probes    []*registeredProbe
	speedtest *registeredProbe

	host    string
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Collector.
type Option func(*Collector)

func WithLogger(l *zap.Logger) Option {
	return func(c *Collector) { c.logger = logging.OrNop(l).With(zap.String("mod", "collector")) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Collector) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithProbes replaces the probe set derived from the config.
func WithProbes(probes ...services.Probe) Option {
	return func(c *Collector) {
		c.probes = nil
		for _, p := range probes {
			c.probes = append(c.probes, c.register(p, c.cfg.ProbeTimeout))
		}
	}
}

// WithSpeedtestProbe replaces the probe used when a speedtest is requested.
func WithSpeedtestProbe(p services.Probe) Option {
	return func(c *Collector) { c.speedtest = c.register(p, c.cfg.SpeedtestTimeout) }
}

func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		if now != nil {
			c.now = now
		}
	}
}

// WithHost overrides the host name recorded in snapshots.
func WithHost(host string) Option {
	return func(c *Collector) { c.host = host }
}

// New validates cfg and builds the probe set it enables.
func New(cfg CollectorConfig, opts ...Option) (*Collector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	host, _ := os.Hostname()
	c := &Collector{
		cfg:     cfg,
		host:    host,
		logger:  zap.NewNop(),
		metrics: metrics.New(nil),
		now:     time.Now,
	}
	for _, p := range DefaultProbes(cfg) {
		c.probes = append(c.probes, c.register(p, cfg.ProbeTimeout))
	}
	c.speedtest = c.register(services.NewSpeedtestProbe(), cfg.SpeedtestTimeout)

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// DefaultProbes returns the probes enabled by cfg, in merge order.
func DefaultProbes(cfg CollectorConfig) []services.Probe {
	probes := []services.Probe{services.NewSystemProbe()}
	if cfg.EnableDocker {
		probes = append(probes, services.NewDockerProbe())
	}
	if cfg.EnableTailscale {
		probes = append(probes, services.NewTailscaleProbe())
	}
	if cfg.EnableNetwork {
		var alerts *services.AlertReader
		if cfg.SecurityEventLog != "" {
			alerts = services.NewAlertReader(cfg.SecurityEventLog)
		}
		probes = append(probes, services.NewNetworkProbe(cfg.NetworkRange, cfg.QuickScan, alerts))
	}
	if cfg.EnablePower {
		probes = append(probes, services.NewPowerProbe())
	}
	if len(cfg.ServiceChecks) > 0 {
		probes = append(probes, services.NewServicesProbe(cfg.ServiceChecks))
	}
	return probes
}

func (c *Collector) register(p services.Probe, timeout time.Duration) *registeredProbe {
	failures := c.cfg.BreakerFailures
	return &registeredProbe{
		probe:   p,
		timeout: timeout,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        p.Name(),
			MaxRequests: 1,
			Timeout:     c.cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Info("probe breaker state changed",
					zap.String("probe", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}),
	}
}

// CollectOption adjusts a single collection.
type CollectOption func(*collectOptions)

type collectOptions struct {
	speedtest bool
}

// IncludeSpeedtest runs the speedtest probe alongside the others.
func IncludeSpeedtest() CollectOption {
	return func(o *collectOptions) { o.speedtest = true }
}

// CollectSnapshot always returns a snapshot stamped with the current UTC time.
func (c *Collector) CollectSnapshot(ctx context.Context, opts ...CollectOption) *snapshot.Snapshot {
	snap, _ := c.Collect(ctx, opts...)
	return snap
}

// Collect is CollectSnapshot plus the per-probe outcomes, in merge order.
func (c *Collector) Collect(ctx context.Context, opts ...CollectOption) (*snapshot.Snapshot, []ProbeResult) {
	var o collectOptions
	for _, opt := range opts {
		opt(&o)
	}
	probes := c.probes
	if (o.speedtest || c.cfg.EnableSpeedtest) && c.speedtest != nil {
		probes = append(append([]*registeredProbe(nil), probes...), c.speedtest)
	}

	snap := &snapshot.Snapshot{
		ID:        uuid.NewString(),
		Timestamp: c.now().UTC(),
		Host:      c.host,
	}

	scratches := make([]*snapshot.Snapshot, len(probes))
	results := make([]ProbeResult, len(probes))

	var g errgroup.Group
	for i, rp := range probes {
		g.Go(func() error {
			start := time.Now()
			scratch, err := c.runBreaker(ctx, rp)
			results[i] = ProbeResult{Name: rp.probe.Name(), Err: err, Duration: time.Since(start)}
			scratches[i] = scratch
			return nil
		})
	}
	_ = g.Wait()

	for i, rp := range probes {
		res := results[i]
		c.metrics.ProbeDuration.WithLabelValues(res.Name).Observe(res.Duration.Seconds())
		if res.Err != nil {
			c.metrics.ProbeFailures.WithLabelValues(res.Name).Inc()
			c.logger.Warn("probe failed", zap.String("probe", res.Name), zap.Duration("took", res.Duration), zap.Error(res.Err))
			snap.Errors = append(snap.Errors, fmt.Sprintf("%s: %v", res.Name, res.Err))
			if m, ok := rp.probe.(services.UnavailableMarker); ok {
				m.MarkUnavailable(snap)
			}
			continue
		}
		c.logger.Debug("probe ok", zap.String("probe", res.Name), zap.Duration("took", res.Duration))
		merge(snap, scratches[i])
	}

	c.metrics.Collections.Inc()
	return snap, results
}

func (c *Collector) runBreaker(ctx context.Context, rp *registeredProbe) (*snapshot.Snapshot, error) {
	out, err := rp.breaker.Execute(func() (interface{}, error) {
		return runProbe(ctx, rp.probe, rp.timeout)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("skipped after repeated failures: %w", err)
	}
	if err != nil {
		return nil, err
	}
	return out.(*snapshot.Snapshot), nil
}

// runProbe gives the probe a private scratch snapshot and its own deadline. A
// probe that ignores its context is abandoned when the deadline passes; its
// scratch is never read.
func runProbe(ctx context.Context, p services.Probe, timeout time.Duration) (*snapshot.Snapshot, error) {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	scratch := &snapshot.Snapshot{}
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- p.Probe(pctx, scratch)
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
		return scratch, nil
	case <-pctx.Done():
		return nil, pctx.Err()
	}
}

// merge copies the sub-records a successful probe filled in.
func merge(dst, src *snapshot.Snapshot) {
	if src == nil {
		return
	}
	if dst.Host == "" {
		dst.Host = src.Host
	}
	if src.System != nil {
		dst.System = src.System
	}
	if src.Docker != nil {
		dst.Docker = src.Docker
	}
	if src.Tailscale != nil {
		dst.Tailscale = src.Tailscale
	}
	if src.Network != nil {
		dst.Network = src.Network
	}
	if src.Power != nil {
		dst.Power = src.Power
	}
	if src.Speedtest != nil {
		dst.Speedtest = src.Speedtest
	}
	if src.Services != nil {
		dst.Services = src.Services
	}
	dst.Errors = append(dst.Errors, src.Errors...)
}
