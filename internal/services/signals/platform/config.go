package platform

import (
	"fmt"
	"os"
	"strings"

	"github.com/louisbranch/signals.agent/internal/platform/config"
	"github.com/louisbranch/signals.agent/internal/platform/logging"
	"github.com/louisbranch/signals.agent/internal/services/signals/domain"
)

// Adapter kinds accepted in a platforms file.
const (
	KindSandbox       = "sandbox"
	KindIndexExchange = "index-exchange"
	KindLiveRamp      = "liveramp"
)

// DefaultSandboxPlatforms are served when no platforms file is configured.
var DefaultSandboxPlatforms = []string{"the-trade-desk", "index-exchange", "openx", "pubmatic"}

// AdapterConfig describes one platform in a platforms file. String values
// may reference environment variables as ${NAME}.
type AdapterConfig struct {
	Name        string    `yaml:"name"`
	Kind        string    `yaml:"kind"`
	BaseURL     string    `yaml:"base_url"`
	TokenURL    string    `yaml:"token_url"`
	ClientID    string    `yaml:"client_id"`
	Username    string    `yaml:"username"`
	Password    string    `yaml:"password"`
	Account     string    `yaml:"account"`
	OwnerOrg    string    `yaml:"owner_org"`
	MaxRetries  int       `yaml:"max_retries"`
	Segments    []Segment `yaml:"segments"`
	FailSignals []string  `yaml:"fail_signals"`
}

// File is the platforms file layout.
type File struct {
	Platforms []AdapterConfig `yaml:"platforms"`
}

// LoadFile reads a platforms file, expanding environment references.
func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read %s: %w", path, err)
	}
	var file File
	if err := config.DecodeYAML([]byte(os.ExpandEnv(string(data))), &file); err != nil {
		return File{}, fmt.Errorf("platforms file %s: %w", path, err)
	}
	return file, nil
}

// DefaultFile lists the sandbox platforms.
func DefaultFile() File {
	file := File{Platforms: make([]AdapterConfig, 0, len(DefaultSandboxPlatforms))}
	for _, name := range DefaultSandboxPlatforms {
		file.Platforms = append(file.Platforms, AdapterConfig{Name: name, Kind: KindSandbox})
	}
	return file
}

// Build constructs adapters for every configured platform. catalog feeds
// sandbox listings.
func (f File) Build(catalog func() []domain.Signal, logger logging.Logger) ([]Adapter, error) {
	adapters := make([]Adapter, 0, len(f.Platforms))
	for _, cfg := range f.Platforms {
		name := strings.TrimSpace(cfg.Name)
		if name == "" {
			return nil, fmt.Errorf("platform without name")
		}
		executor := NewExecutor(ExecutorConfig{Name: name, MaxRetries: cfg.MaxRetries, Logger: logger})
		switch strings.TrimSpace(cfg.Kind) {
		case "", KindSandbox:
			adapters = append(adapters, NewSandbox(SandboxConfig{
				Name:        name,
				Catalog:     catalog,
				Segments:    cfg.Segments,
				FailSignals: cfg.FailSignals,
			}))
		case KindIndexExchange:
			adapters = append(adapters, NewIndexExchange(IndexExchangeConfig{
				Name:     name,
				BaseURL:  cfg.BaseURL,
				Username: cfg.Username,
				Password: cfg.Password,
				Account:  cfg.Account,
				Executor: executor,
			}))
		case KindLiveRamp:
			adapters = append(adapters, NewLiveRamp(LiveRampConfig{
				Name:     name,
				BaseURL:  cfg.BaseURL,
				TokenURL: cfg.TokenURL,
				ClientID: cfg.ClientID,
				Username: cfg.Username,
				Password: cfg.Password,
				OwnerOrg: cfg.OwnerOrg,
				Executor: executor,
			}))
		default:
			return nil, fmt.Errorf("platform %q: unknown kind %q", name, cfg.Kind)
		}
	}
	return adapters, nil
}
