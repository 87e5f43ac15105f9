package services

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v4/docker"

	"homewatch/internal/snapshot"
)

// DockerProbe lists containers and their run state. gopsutil reads cgroups on
// Linux; the docker CLI is the fallback and the only path on macOS.
type DockerProbe struct {
	Run CommandRunner

	// stats is swapped out in tests.
	stats func(ctx context.Context) ([]docker.CgroupDockerStat, error)
}

func NewDockerProbe() *DockerProbe {
	return &DockerProbe{Run: ExecRunner, stats: docker.GetDockerStatWithContext}
}

func (p *DockerProbe) Name() string {
	return "Docker"
}

func (p *DockerProbe) MarkUnavailable(snap *snapshot.Snapshot) {
	snap.Docker = &snapshot.DockerInfo{Available: false}
}

func (p *DockerProbe) Probe(ctx context.Context, snap *snapshot.Snapshot) error {
	if !p.IsDockerAvailable(ctx) {
		p.MarkUnavailable(snap)
		return nil
	}
	containers, err := p.ListContainers(ctx)
	if err != nil {
		return err
	}

	info := &snapshot.DockerInfo{Available: true, Total: len(containers), Containers: containers}
	for _, c := range containers {
		if c.Running {
			info.Running++
		}
	}
	snap.Docker = info
	return nil
}

// IsDockerAvailable reports whether a daemon answers.
func (p *DockerProbe) IsDockerAvailable(ctx context.Context) bool {
	if runtime.GOOS != "darwin" && p.stats != nil {
		if _, err := p.stats(ctx); err == nil {
			return true
		}
	}
	if p.Run == nil {
		return false
	}
	_, err := p.Run(ctx, "docker", "info", "--format", "{{.ServerVersion}}")
	return err == nil
}

// ListContainers returns all containers, running or not, sorted by name.
func (p *DockerProbe) ListContainers(ctx context.Context) ([]snapshot.ContainerInfo, error) {
	var out []snapshot.ContainerInfo

	if runtime.GOOS != "darwin" && p.stats != nil {
		if stats, err := p.stats(ctx); err == nil {
			for _, c := range stats {
				out = append(out, snapshot.ContainerInfo{Name: strings.TrimPrefix(c.Name, "/"), Running: c.Running})
			}
			sortContainers(out)
			return out, nil
		}
	}

	raw, err := p.Run(ctx, "docker", "ps", "-a", "--format", "{{json .}}")
	if err != nil {
		return nil, fmt.Errorf("docker ps: %w", err)
	}
	out = parseDockerPS(raw)
	sortContainers(out)
	return out, nil
}

func parseDockerPS(raw []byte) []snapshot.ContainerInfo {
	var out []snapshot.ContainerInfo
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		if line == "" {
			continue
		}
		var c struct {
			Names string `json:"Names"`
			State string `json:"State"`
		}
		if err := json.Unmarshal([]byte(line), &c); err != nil || c.Names == "" {
			continue
		}
		out = append(out, snapshot.ContainerInfo{Name: c.Names, Running: c.State == "running"})
	}
	return out
}

func sortContainers(cs []snapshot.ContainerInfo) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].Name < cs[j].Name })
}
