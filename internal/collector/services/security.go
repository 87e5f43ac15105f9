package services

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"homewatch/internal/snapshot"
)

const (
	maxRecentAlerts = 10
	// initialTail bounds how much history the first read looks at.
	initialTail = 1 << 20
)

// AlertReader tails a Suricata eve.json log and summarises alerts written since
// the previous read.
type AlertReader struct {
	Path string

	mu     sync.Mutex
	offset int64
	primed bool
}

func NewAlertReader(path string) *AlertReader {
	return &AlertReader{Path: path}
}

type eveEvent struct {
	EventType string `json:"event_type"`
	SrcIP     string `json:"src_ip"`
	DestIP    string `json:"dest_ip"`
	Alert     *struct {
		Signature string `json:"signature"`
		Category  string `json:"category"`
		Severity  int    `json:"severity"`
	} `json:"alert"`
}

// ReadSecurity returns nil, nil when the log does not exist.
func (r *AlertReader) ReadSecurity() (*snapshot.SecurityInfo, error) {
	if r == nil || r.Path == "" {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.Open(r.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open alert log: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat alert log: %w", err)
	}
	start := r.offset
	switch {
	case !r.primed:
		start = max(0, fi.Size()-initialTail)
	case fi.Size() < r.offset:
		// Rotated or truncated.
		start = 0
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek alert log: %w", err)
	}

	info, n, err := summariseAlerts(f, start > 0 && !r.primed)
	if err != nil {
		return nil, err
	}
	r.offset = start + n
	r.primed = true
	return info, nil
}

// summariseAlerts consumes complete lines only and returns how many bytes it used,
// so a line still being written is picked up next time.
func summariseAlerts(rd io.Reader, skipFirst bool) (*snapshot.SecurityInfo, int64, error) {
	info := &snapshot.SecurityInfo{}
	br := bufio.NewReader(rd)
	var used int64
	for first := true; ; first = false {
		line, err := br.ReadBytes('\n')
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read alert log: %w", err)
		}
		used += int64(len(line))
		if first && skipFirst {
			continue
		}

		var ev eveEvent
		if json.Unmarshal(line, &ev) != nil || ev.EventType != "alert" || ev.Alert == nil {
			continue
		}
		sev := AlertSeverity(ev.Alert.Severity)
		info.TotalAlerts++
		switch sev {
		case snapshot.AlertCritical:
			info.CriticalCount++
		case snapshot.AlertHigh:
			info.HighCount++
		}
		info.RecentAlerts = append(info.RecentAlerts, snapshot.SecurityAlert{
			Severity:  sev,
			Signature: ev.Alert.Signature,
			SourceIP:  ev.SrcIP,
			DestIP:    ev.DestIP,
			Category:  ev.Alert.Category,
		})
	}
	if n := len(info.RecentAlerts); n > maxRecentAlerts {
		info.RecentAlerts = info.RecentAlerts[n-maxRecentAlerts:]
	}
	return info, used, nil
}

// AlertSeverity maps Suricata priorities: 1 critical, 2 high, 3 medium, else low.
func AlertSeverity(priority int) string {
	switch priority {
	case 1:
		return snapshot.AlertCritical
	case 2:
		return snapshot.AlertHigh
	case 3:
		return snapshot.AlertMedium
	default:
		return snapshot.AlertLow
	}
}
