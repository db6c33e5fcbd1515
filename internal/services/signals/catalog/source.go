package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/signals.agent/internal/platform/config"
	"github.com/louisbranch/signals.agent/internal/services/signals/domain"
)

// Snapshot is everything a catalog source provides: the signals and the
// principal table with account mappings and pricing overrides.
type Snapshot struct {
	Signals    []domain.Signal    `yaml:"signals"`
	Principals []domain.Principal `yaml:"principals"`
}

// Source loads a catalog snapshot. Sources are read once per process.
type Source interface {
	Load(ctx context.Context) (Snapshot, error)
}

// StaticSource serves a fixed snapshot.
type StaticSource struct {
	Snapshot Snapshot
}

// Load returns the configured snapshot.
func (s StaticSource) Load(context.Context) (Snapshot, error) {
	return s.Snapshot, nil
}

// FileSource reads a YAML catalog file.
type FileSource struct {
	Path string
}

// Load decodes the file at Path.
func (s FileSource) Load(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	path := strings.TrimSpace(s.Path)
	if path == "" {
		return Snapshot{}, fmt.Errorf("catalog file path is required")
	}
	var snapshot Snapshot
	if err := config.LoadYAMLFile(path, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("load catalog: %w", err)
	}
	return snapshot, nil
}

// SourceFor returns a file source for path, or the sample catalog when path
// is empty.
func SourceFor(path string) Source {
	if strings.TrimSpace(path) == "" {
		return StaticSource{Snapshot: Sample()}
	}
	return FileSource{Path: path}
}
