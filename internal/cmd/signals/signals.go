// Package signals parses the agent's configuration and runs it on the
// selected transport.
package signals

import (
	"context"
	"flag"
	"log"
	"time"

	entrypoint "github.com/louisbranch/signals.agent/internal/platform/cmd"
	"github.com/louisbranch/signals.agent/internal/platform/logging"
	"github.com/louisbranch/signals.agent/internal/platform/otel"
	"github.com/louisbranch/signals.agent/internal/services/signals/app"
)

// Config holds the agent command configuration.
type Config struct {
	Transport     string        `env:"SIGNALS_AGENT_TRANSPORT"      envDefault:"stdio"`
	HTTPAddr      string        `env:"SIGNALS_AGENT_HTTP_ADDR"      envDefault:"localhost:8090"`
	PublicURL     string        `env:"SIGNALS_AGENT_PUBLIC_URL"`
	CatalogFile   string        `env:"SIGNALS_AGENT_CATALOG_FILE"`
	PlatformsFile string        `env:"SIGNALS_AGENT_PLATFORMS_FILE"`
	DBPath        string        `env:"SIGNALS_AGENT_DB_PATH"`
	RedisAddr     string        `env:"SIGNALS_AGENT_REDIS_ADDR"`
	AIURL         string        `env:"SIGNALS_AGENT_AI_URL"`
	AIAPIKey      string        `env:"SIGNALS_AGENT_AI_API_KEY"`
	AITimeout     time.Duration `env:"SIGNALS_AGENT_AI_TIMEOUT"     envDefault:"5s"`
	JWTSecret     string        `env:"SIGNALS_AGENT_JWT_SECRET"`
	LogLevel      string        `env:"SIGNALS_AGENT_LOG_LEVEL"      envDefault:"info"`
	SweepInterval time.Duration `env:"SIGNALS_AGENT_SWEEP_INTERVAL" envDefault:"10m"`

	Telemetry otel.Config
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "Transport type: stdio or http")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP server address (for HTTP transport)")
	fs.StringVar(&cfg.PublicURL, "public-url", cfg.PublicURL, "URL advertised in the agent card")
	fs.StringVar(&cfg.CatalogFile, "catalog", cfg.CatalogFile, "Catalog YAML file (empty uses the sample catalog)")
	fs.StringVar(&cfg.PlatformsFile, "platforms", cfg.PlatformsFile, "Platforms YAML file (empty uses sandbox platforms)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path (empty keeps state in memory)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address for the segment cache")
	fs.StringVar(&cfg.AIURL, "ai-url", cfg.AIURL, "AI ranking endpoint")
	fs.DurationVar(&cfg.AITimeout, "ai-timeout", cfg.AITimeout, "AI ranking timeout")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the agent and blocks until ctx is done.
func Run(ctx context.Context, cfg Config) error {
	transport, err := app.ParseTransport(cfg.Transport)
	if err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSignals, entrypoint.RunOptions{Telemetry: cfg.Telemetry}, func(ctx context.Context) error {
		logger := logging.New(entrypoint.ServiceSignals, cfg.LogLevel)
		agent, err := app.New(ctx, app.Config{
			CatalogFile:   cfg.CatalogFile,
			PlatformsFile: cfg.PlatformsFile,
			DBPath:        cfg.DBPath,
			RedisAddr:     cfg.RedisAddr,
			AIURL:         cfg.AIURL,
			AIAPIKey:      cfg.AIAPIKey,
			AITimeout:     cfg.AITimeout,
			JWTSecret:     cfg.JWTSecret,
			PublicURL:     cfg.PublicURL,
			SweepInterval: cfg.SweepInterval,
			Logger:        logger,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := agent.Close(); err != nil {
				log.Printf("close: %v", err)
			}
		}()
		log.Printf("serving %s (version %s)", transport, entrypoint.Version)
		return agent.Run(ctx, transport, cfg.HTTPAddr)
	})
}
