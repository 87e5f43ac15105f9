package services

import (
	"context"
	"encoding/json"
	"fmt"

	"homewatch/internal/snapshot"
)

// SpeedtestProbe runs the Ookla CLI. It is slow and uses bandwidth, so the
// collector only includes it on request.
type SpeedtestProbe struct {
	Run CommandRunner
}

func NewSpeedtestProbe() *SpeedtestProbe {
	return &SpeedtestProbe{Run: ExecRunner}
}

func (p *SpeedtestProbe) Name() string {
	return "Speedtest"
}

type ooklaResult struct {
	Ping struct {
		Latency float64 `json:"latency"`
	} `json:"ping"`
	Download struct {
		Bandwidth float64 `json:"bandwidth"` // bytes per second
	} `json:"download"`
	Upload struct {
		Bandwidth float64 `json:"bandwidth"`
	} `json:"upload"`
	ISP       string `json:"isp"`
	Interface struct {
		ExternalIP string `json:"externalIp"`
	} `json:"interface"`
	Server struct {
		Name     string `json:"name"`
		Location string `json:"location"`
	} `json:"server"`
}

func (p *SpeedtestProbe) Probe(ctx context.Context, snap *snapshot.Snapshot) error {
	raw, err := p.Run(ctx, "speedtest", "--format=json", "--accept-license", "--accept-gdpr")
	if err != nil {
		return fmt.Errorf("speedtest: %w", err)
	}
	info, err := parseSpeedtest(raw)
	if err != nil {
		return err
	}
	snap.Speedtest = info
	return nil
}

func parseSpeedtest(raw []byte) (*snapshot.SpeedtestInfo, error) {
	var r ooklaResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode speedtest result: %w", err)
	}
	down := r.Download.Bandwidth * 8 / 1e6
	up := r.Upload.Bandwidth * 8 / 1e6
	ping := r.Ping.Latency
	server := r.Server.Name
	if r.Server.Location != "" {
		server += " (" + r.Server.Location + ")"
	}
	return &snapshot.SpeedtestInfo{
		DownloadMbps: &down,
		UploadMbps:   &up,
		PingMs:       &ping,
		Server:       server,
		ISP:          r.ISP,
		IP:           r.Interface.ExternalIP,
	}, nil
}
