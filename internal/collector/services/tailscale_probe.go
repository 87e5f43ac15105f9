package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"

	"homewatch/internal/snapshot"
)

// BackendUnavailable is the backend state recorded when tailscale cannot be
// queried at all.
const BackendUnavailable = "Unavailable"

// TailscaleProbe reads `tailscale status --json`.
type TailscaleProbe struct {
	Run CommandRunner
}

func NewTailscaleProbe() *TailscaleProbe {
	return &TailscaleProbe{Run: ExecRunner}
}

func (p *TailscaleProbe) Name() string {
	return "Tailscale"
}

func (p *TailscaleProbe) MarkUnavailable(snap *snapshot.Snapshot) {
	snap.Tailscale = &snapshot.TailscaleInfo{Connected: false, BackendState: BackendUnavailable}
}

type tailscaleStatus struct {
	BackendState string `json:"BackendState"`
	Self         *struct {
		TailscaleIPs []string `json:"TailscaleIPs"`
	} `json:"Self"`
	Peer map[string]struct {
		Online bool `json:"Online"`
	} `json:"Peer"`
}

func (p *TailscaleProbe) Probe(ctx context.Context, snap *snapshot.Snapshot) error {
	raw, err := p.Run(ctx, "tailscale", "status", "--json")
	if errors.Is(err, exec.ErrNotFound) {
		p.MarkUnavailable(snap)
		return nil
	}
	if err != nil {
		return fmt.Errorf("tailscale status: %w", err)
	}
	info, err := parseTailscaleStatus(raw)
	if err != nil {
		return err
	}
	snap.Tailscale = info
	return nil
}

func parseTailscaleStatus(raw []byte) (*snapshot.TailscaleInfo, error) {
	var st tailscaleStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode tailscale status: %w", err)
	}
	info := &snapshot.TailscaleInfo{
		Connected:    st.BackendState == "Running",
		BackendState: st.BackendState,
		PeerCount:    len(st.Peer),
	}
	if st.Self != nil && len(st.Self.TailscaleIPs) > 0 {
		info.SelfIP = st.Self.TailscaleIPs[0]
	}
	for _, peer := range st.Peer {
		if peer.Online {
			info.OnlinePeers++
		}
	}
	return info, nil
}
