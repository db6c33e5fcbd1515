package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	signalscmd "github.com/louisbranch/signals.agent/internal/cmd/signals"
	"github.com/louisbranch/signals.agent/internal/platform/config"
)

// main starts the signals agent on stdio or HTTP.
func main() {
	log.SetPrefix("[SIGNALS] ")
	if _, err := config.LoadDotEnv(".env"); err != nil {
		config.Exitf("load .env: %v", err)
	}
	cfg, err := signalscmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := signalscmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve signals agent: %v", err)
	}
}
