package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aminofox/adproxy"
	"github.com/aminofox/adproxy/pkg/config"
	"github.com/aminofox/adproxy/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("adproxy %s (commit: %s, built: %s)\n", version, commit, date)
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	p, err := adproxy.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create proxy: %v\n", err)
		os.Exit(1)
	}
	log := p.Logger()

	go func() {
		if err := p.Start(); err != nil {
			log.Error("Proxy server error", logger.Err(err))
			os.Exit(1)
		}
	}()

	log.Info("Ad insertion proxy started",
		logger.String("addr", fmt.Sprintf("%s:%d", cfg.Server.ListenAddr, cfg.Server.ListenPort)),
		logger.String("origin", cfg.Origin.MasterPlaylistURL),
		logger.String("mode", string(cfg.Insertion.Mode)))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutdown signal received, starting graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := p.Stop(shutdownCtx); err != nil {
		log.Error("Shutdown error", logger.Err(err))
	}

	log.Info("Ad insertion proxy stopped")
}
