package services

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"homewatch/internal/snapshot"
)

const (
	PowerSleep = "sleep"
	PowerWake  = "wake"

	maxPowerEvents = 50
)

// PowerProbe reports sleep and wake events newer than the previous call. The
// first call looks back Lookback.
type PowerProbe struct {
	Lookback time.Duration
	GOOS     string
	Run      CommandRunner
	Now      func() time.Time

	mu   sync.Mutex
	last time.Time
}

func NewPowerProbe() *PowerProbe {
	return &PowerProbe{Lookback: 24 * time.Hour, GOOS: runtime.GOOS, Run: ExecRunner, Now: time.Now}
}

func (p *PowerProbe) Name() string {
	return "Power"
}

func (p *PowerProbe) Probe(ctx context.Context, snap *snapshot.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.Now().UTC()
	since := p.last
	if since.IsZero() {
		since = now.Add(-p.Lookback)
	}

	var (
		events []snapshot.PowerEvent
		err    error
	)
	switch p.GOOS {
	case "darwin":
		var raw []byte
		raw, err = p.Run(ctx, "pmset", "-g", "log")
		events = parsePmsetLog(raw)
	case "linux":
		var raw []byte
		raw, err = p.Run(ctx, "journalctl", "-k", "-o", "short-iso", "--no-pager",
			"--since", since.Local().Format("2006-01-02 15:04:05"), "-g", "PM: suspend (entry|exit)")
		if noMatches(err) {
			err = nil
		}
		events = parseJournal(raw)
	default:
		return fmt.Errorf("power events not supported on %s", p.GOOS)
	}
	if err != nil {
		return fmt.Errorf("read power log: %w", err)
	}

	kept := events[:0]
	for _, e := range events {
		if e.Timestamp.After(since) && !e.Timestamp.After(now) {
			kept = append(kept, e)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Timestamp.Before(kept[j].Timestamp) })
	if len(kept) > maxPowerEvents {
		kept = kept[len(kept)-maxPowerEvents:]
	}

	p.last = now
	snap.Power = &snapshot.PowerInfo{RecentEvents: kept}
	return nil
}

// noMatches reports journalctl's exit status 1 for an empty grep result.
func noMatches(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) && exitErr.ExitCode() == 1
}

// parsePmsetLog reads lines like
// "2026-03-14 02:13:45 +0100 Sleep  \tEntering Sleep state due to 'Idle Sleep'".
func parsePmsetLog(raw []byte) []snapshot.PowerEvent {
	var out []snapshot.PowerEvent
	for _, line := range strings.Split(string(raw), "\n") {
		f := strings.Fields(line)
		if len(f) < 4 {
			continue
		}
		var kind string
		switch f[3] {
		case "Sleep":
			kind = PowerSleep
		case "Wake", "DarkWake":
			kind = PowerWake
		default:
			continue
		}
		ts, err := time.Parse("2006-01-02 15:04:05 -0700", strings.Join(f[:3], " "))
		if err != nil {
			continue
		}
		out = append(out, snapshot.PowerEvent{Timestamp: ts.UTC(), Type: kind})
	}
	return out
}

// parseJournal reads short-iso kernel lines like
// "2026-03-14T02:13:45+0100 nas kernel: PM: suspend entry (deep)".
func parseJournal(raw []byte) []snapshot.PowerEvent {
	var out []snapshot.PowerEvent
	for _, line := range strings.Split(string(raw), "\n") {
		f := strings.Fields(line)
		if len(f) < 2 {
			continue
		}
		var kind string
		switch {
		case strings.Contains(line, "PM: suspend entry"):
			kind = PowerSleep
		case strings.Contains(line, "PM: suspend exit"):
			kind = PowerWake
		default:
			continue
		}
		ts, err := time.Parse("2006-01-02T15:04:05-0700", f[0])
		if err != nil {
			continue
		}
		out = append(out, snapshot.PowerEvent{Timestamp: ts.UTC(), Type: kind})
	}
	return out
}
