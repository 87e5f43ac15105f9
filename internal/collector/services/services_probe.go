package services

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"homewatch/internal/snapshot"
)

// ServiceCheck describes one health check. Target is "host:port" for tcp and a
// URL for http.
type ServiceCheck struct {
	Name   string `mapstructure:"name" yaml:"name"`
	Kind   string `mapstructure:"kind" yaml:"kind"`
	Target string `mapstructure:"target" yaml:"target"`
}

// ServicesProbe runs the configured TCP and HTTP checks in parallel.
type ServicesProbe struct {
	Checks       []ServiceCheck
	CheckTimeout time.Duration
	Client       *http.Client
}

func NewServicesProbe(checks []ServiceCheck) *ServicesProbe {
	return &ServicesProbe{
		Checks:       checks,
		CheckTimeout: 3 * time.Second,
		Client:       &http.Client{},
	}
}

func (p *ServicesProbe) Name() string {
	return "Services"
}

func (p *ServicesProbe) Probe(ctx context.Context, snap *snapshot.Snapshot) error {
	if len(p.Checks) == 0 {
		return nil
	}
	snap.Services = p.CheckAllServices(ctx)
	return nil
}

// CheckAllServices returns one status per check, in check order. A check that
// cannot complete counts as unhealthy.
func (p *ServicesProbe) CheckAllServices(ctx context.Context) []snapshot.ServiceStatus {
	out := make([]snapshot.ServiceStatus, len(p.Checks))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range p.Checks {
		g.Go(func() error {
			out[i] = snapshot.ServiceStatus{Name: c.Name, Healthy: p.check(gctx, c) == nil}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (p *ServicesProbe) check(ctx context.Context, c ServiceCheck) error {
	timeout := p.CheckTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch strings.ToLower(c.Kind) {
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Target, nil)
		if err != nil {
			return err
		}
		client := p.Client
		if client == nil {
			client = http.DefaultClient
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		return nil
	case "tcp", "":
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", c.Target)
		if err != nil {
			return err
		}
		return conn.Close()
	default:
		return fmt.Errorf("unknown check kind %q", c.Kind)
	}
}
