// Package adproxy is a transparent HLS proxy that schedules interstitial ad
// breaks into media playlists and resolves them against a VAST ad server.
package adproxy

import (
	"context"
	"fmt"
	"sync"

	"github.com/aminofox/adproxy/pkg/config"
	"github.com/aminofox/adproxy/pkg/logger"
	"github.com/aminofox/adproxy/pkg/proxy"
)

// Proxy is the assembled ad insertion proxy.
type Proxy struct {
	config *config.Config
	logger logger.Logger
	server *proxy.Server

	mu        sync.Mutex
	isRunning bool
}

// New creates a proxy instance from the given configuration.
func New(cfg *config.Config) (*Proxy, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	logLevel := logger.ParseLevel(cfg.Logging.Level)
	log := logger.NewDefaultLogger(logLevel, cfg.Logging.Format)

	server, err := proxy.NewServer(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy server: %w", err)
	}

	return &Proxy{
		config: cfg,
		logger: log,
		server: server,
	}, nil
}

// Start runs the proxy HTTP server. It blocks until the server stops.
func (p *Proxy) Start() error {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return fmt.Errorf("proxy already running")
	}
	p.isRunning = true
	p.mu.Unlock()

	return p.server.Start()
}

// Stop shuts the proxy down gracefully.
func (p *Proxy) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return fmt.Errorf("proxy not running")
	}
	p.isRunning = false
	p.mu.Unlock()

	return p.server.Stop(ctx)
}

// Logger exposes the proxy's logger.
func (p *Proxy) Logger() logger.Logger {
	return p.logger
}

// Config exposes the proxy's configuration.
func (p *Proxy) Config() *config.Config {
	return p.config
}
