package services

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"net/netip"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"

	gnet "github.com/shirou/gopsutil/v4/net"

	"homewatch/internal/snapshot"
)

const incompleteMAC = "00:00:00:00:00:00"

// NetworkProbe discovers LAN devices from the OS neighbour table, measures
// traffic since the previous call and attaches recent IDS alerts.
type NetworkProbe struct {
	// Range limits discovered devices to one CIDR. Empty keeps everything.
	Range string
	// Quick skips reverse DNS lookups.
	Quick bool
	// Alerts is optional; when set its result becomes Network.Security.
	Alerts *AlertReader

	Run      CommandRunner
	ReadFile func(string) ([]byte, error)
	Lookup   func(ctx context.Context, addr string) ([]string, error)
	Counters func(ctx context.Context) (uint64, error)

	mu       sync.Mutex
	lastSeen uint64
	primed   bool
}

func NewNetworkProbe(cidr string, quick bool, alerts *AlertReader) *NetworkProbe {
	return &NetworkProbe{
		Range:    cidr,
		Quick:    quick,
		Alerts:   alerts,
		Run:      ExecRunner,
		ReadFile: os.ReadFile,
		Lookup:   net.DefaultResolver.LookupAddr,
		Counters: totalInterfaceBytes,
	}
}

func (p *NetworkProbe) Name() string {
	return "Network"
}

func (p *NetworkProbe) Probe(ctx context.Context, snap *snapshot.Snapshot) error {
	devices, err := p.ScanNetwork(ctx, p.Range, p.Quick)
	if err != nil {
		return err
	}
	info := &snapshot.NetworkInfo{DeviceCount: len(devices), Devices: devices}

	if traffic, ok := p.trafficDelta(ctx); ok {
		info.Traffic = traffic
	}

	if p.Alerts != nil {
		sec, err := p.Alerts.ReadSecurity()
		if err != nil {
			// Device data is still good; report the alert failure on its own.
			snap.Errors = append(snap.Errors, "Security: "+err.Error())
		} else {
			info.Security = sec
		}
	}

	snap.Network = info
	return nil
}

// ============================================================================
// DEVICE DISCOVERY
// ============================================================================

// ScanNetwork lists neighbours within cidr, sorted by IP. Names come from
// reverse DNS unless quick is set.
func (p *NetworkProbe) ScanNetwork(ctx context.Context, cidr string, quick bool) ([]snapshot.Device, error) {
	var prefix netip.Prefix
	if cidr != "" {
		var err error
		prefix, err = netip.ParsePrefix(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid network range %q: %w", cidr, err)
		}
	}

	devices, err := p.neighbours(ctx)
	if err != nil {
		return nil, err
	}

	var out []snapshot.Device
	for _, d := range devices {
		addr, err := netip.ParseAddr(d.IP)
		if err != nil {
			continue
		}
		if prefix.IsValid() && !prefix.Contains(addr) {
			continue
		}
		if !quick && p.Lookup != nil {
			if names, err := p.Lookup(ctx, d.IP); err == nil && len(names) > 0 {
				d.Hostname = strings.TrimSuffix(names[0], ".")
			}
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := netip.ParseAddr(out[i].IP)
		b, _ := netip.ParseAddr(out[j].IP)
		return a.Less(b)
	})
	return out, nil
}

func (p *NetworkProbe) neighbours(ctx context.Context) ([]snapshot.Device, error) {
	if runtime.GOOS == "linux" && p.ReadFile != nil {
		if raw, err := p.ReadFile("/proc/net/arp"); err == nil {
			return parseProcARP(raw), nil
		}
	}
	if p.Run == nil {
		return nil, fmt.Errorf("no neighbour table source")
	}
	if raw, err := p.Run(ctx, "ip", "neigh", "show"); err == nil {
		return parseIPNeigh(raw), nil
	}
	raw, err := p.Run(ctx, "arp", "-an")
	if err != nil {
		return nil, fmt.Errorf("read neighbour table: %w", err)
	}
	return parseARPAn(raw), nil
}

// parseProcARP reads the Linux /proc/net/arp table, skipping incomplete entries.
func parseProcARP(raw []byte) []snapshot.Device {
	var out []snapshot.Device
	seen := map[string]bool{}
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for first := true; sc.Scan(); first = false {
		if first {
			continue
		}
		f := strings.Fields(sc.Text())
		if len(f) < 4 || f[2] == "0x0" || f[3] == incompleteMAC || seen[f[0]] {
			continue
		}
		seen[f[0]] = true
		out = append(out, snapshot.Device{IP: f[0], MAC: strings.ToLower(f[3])})
	}
	return out
}

// parseIPNeigh reads `ip neigh show` lines such as
// "192.168.1.1 dev eth0 lladdr aa:bb:cc:dd:ee:ff REACHABLE".
func parseIPNeigh(raw []byte) []snapshot.Device {
	var out []snapshot.Device
	seen := map[string]bool{}
	for _, line := range strings.Split(string(raw), "\n") {
		f := strings.Fields(line)
		if len(f) == 0 || seen[f[0]] {
			continue
		}
		state := f[len(f)-1]
		if state == "FAILED" || state == "INCOMPLETE" {
			continue
		}
		mac := ""
		for i := 0; i+1 < len(f); i++ {
			if f[i] == "lladdr" {
				mac = strings.ToLower(f[i+1])
			}
		}
		if mac == "" {
			continue
		}
		seen[f[0]] = true
		out = append(out, snapshot.Device{IP: f[0], MAC: mac})
	}
	return out
}

// parseARPAn reads BSD `arp -an` lines such as
// "? (192.168.1.1) at aa:bb:cc:dd:ee:ff on en0 ifscope [ethernet]".
func parseARPAn(raw []byte) []snapshot.Device {
	var out []snapshot.Device
	seen := map[string]bool{}
	for _, line := range strings.Split(string(raw), "\n") {
		open, shut := strings.Index(line, "("), strings.Index(line, ")")
		if open < 0 || shut <= open {
			continue
		}
		ip := line[open+1 : shut]
		f := strings.Fields(line[shut+1:])
		if len(f) < 2 || f[0] != "at" || strings.Contains(f[1], "incomplete") || seen[ip] {
			continue
		}
		seen[ip] = true
		out = append(out, snapshot.Device{IP: ip, MAC: strings.ToLower(f[1])})
	}
	return out
}

// ============================================================================
// TRAFFIC
// ============================================================================

// trafficDelta reports bytes moved since the previous call. The first call only
// primes the baseline; a counter reset also yields no sample.
func (p *NetworkProbe) trafficDelta(ctx context.Context) (*snapshot.TrafficInfo, bool) {
	if p.Counters == nil {
		return nil, false
	}
	total, err := p.Counters(ctx)
	if err != nil {
		return nil, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	prev, primed := p.lastSeen, p.primed
	p.lastSeen, p.primed = total, true
	if !primed || total < prev {
		return nil, false
	}
	return &snapshot.TrafficInfo{TotalBytes: total - prev}, true
}

func totalInterfaceBytes(ctx context.Context) (uint64, error) {
	counters, err := gnet.IOCountersWithContext(ctx, false)
	if err != nil {
		return 0, fmt.Errorf("failed to get net io counters: %w", err)
	}
	if len(counters) == 0 {
		return 0, fmt.Errorf("no net io counters")
	}
	return counters[0].BytesSent + counters[0].BytesRecv, nil
}
