package logstore

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the user-local data directory under $HOME.
	DefaultDirName  = ".homelab"
	DefaultFileName = "snapshots.jsonl"
)

// ResolvePath picks the log location once, at startup: an explicit path wins,
// then a mounted external volume (when the directory exists), then
// $HOME/.homelab/snapshots.jsonl.
func ResolvePath(explicit, externalVolume string) (string, error) {
	if explicit != "" {
		return expandHome(explicit)
	}
	if externalVolume != "" {
		vol, err := expandHome(externalVolume)
		if err != nil {
			return "", err
		}
		if fi, err := os.Stat(vol); err == nil && fi.IsDir() {
			return filepath.Join(vol, DefaultDirName, DefaultFileName), nil
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, DefaultDirName, DefaultFileName), nil
}

func expandHome(p string) (string, error) {
	if len(p) < 2 || p[:2] != "~/" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, p[2:]), nil
}
