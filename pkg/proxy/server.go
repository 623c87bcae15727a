// Package proxy implements the HTTP front door of the ad insertion proxy.
package proxy

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aminofox/adproxy/pkg/ads"
	"github.com/aminofox/adproxy/pkg/adserver"
	"github.com/aminofox/adproxy/pkg/assetlist"
	"github.com/aminofox/adproxy/pkg/config"
	"github.com/aminofox/adproxy/pkg/errors"
	"github.com/aminofox/adproxy/pkg/logger"
	"github.com/aminofox/adproxy/pkg/planner"
	"github.com/aminofox/adproxy/pkg/session"
	"github.com/aminofox/adproxy/pkg/slots"
)

const (
	commandPath       = "/command"
	statusPath        = "/status"
	interstitialsFile = "interstitials.m3u8"

	// hlsContentType is used for every HLS payload the proxy emits
	hlsContentType = "application/vnd.apple.mpegurl"

	// jsonContentType is used for asset lists, command and status replies
	jsonContentType = "application/json"
)

// segmentTokens identify media segment requests by path shape.
var segmentTokens = []string{".ts", ".cmf", ".mp", ".m4s"}

// Server is the proxy's HTTP server and request dispatcher.
type Server struct {
	cfg        *config.Config
	forwardURL *url.URL
	masterPath string

	httpServer *http.Server
	upstream   *http.Client

	slots    *slots.Registry
	ads      *ads.Registry
	sessions *session.Store
	planner  *planner.Planner
	resolver *assetlist.Resolver

	// startTime is captured once before the dispatcher accepts traffic
	startTime time.Time

	logger logger.Logger
}

// NewServer wires the proxy components from configuration.
func NewServer(cfg *config.Config, log logger.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, "invalid configuration", err)
	}

	masterURL, err := url.Parse(cfg.Origin.MasterPlaylistURL)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeURLParseFailed, "invalid master playlist URL", err)
	}
	forwardURL := &url.URL{Scheme: masterURL.Scheme, Host: masterURL.Host}

	adClient, err := adserver.NewClient(cfg.AdServer.Endpoint, log)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()

	slotRegistry := slots.NewRegistry(log)
	adRegistry := ads.NewRegistry()
	sessions := session.NewStore()

	s := &Server{
		cfg:        cfg,
		forwardURL: forwardURL,
		masterPath: masterURL.Path,
		upstream: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		slots:     slotRegistry,
		ads:       adRegistry,
		sessions:  sessions,
		planner:   planner.New(slotRegistry, cfg, startTime, log),
		resolver:  assetlist.NewResolver(slotRegistry, sessions, adRegistry, adClient, cfg.AdServer.ReturnTestAssets, log),
		startTime: startTime,
		logger:    log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.dispatch)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.ListenAddr, cfg.Server.ListenPort),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	return s, nil
}

// Start starts the proxy HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting ad insertion proxy",
		logger.String("addr", s.httpServer.Addr),
		logger.String("forward", s.forwardURL.String()),
		logger.String("mode", string(s.cfg.Insertion.Mode)),
		logger.Time("started", s.startTime))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop shuts the proxy down gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping ad insertion proxy")
	return s.httpServer.Shutdown(ctx)
}

// dispatch classifies the request by path shape and routes it. Parsing
// failures never wedge a stream: handlers fall back to the origin's bytes.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.logger.Debug("Request",
		logger.String("path", r.URL.Path),
		logger.String("remote", r.RemoteAddr))

	path := r.URL.Path
	switch {
	case path == commandPath:
		s.handleCommand(w, r)
	case path == statusPath:
		s.handleStatus(w, r)
	case strings.HasSuffix(path, interstitialsFile):
		s.handleInterstitials(w, r)
	case s.masterPath != "" && strings.Contains(path, s.masterPath):
		s.handleMasterPlaylist(w, r)
	case containsSegmentToken(path):
		s.handleSegment(w, r)
	case strings.Contains(path, ".m3u8"):
		s.handleMediaPlaylist(w, r)
	default:
		http.NotFound(w, r)
	}
}

func containsSegmentToken(path string) bool {
	for _, token := range segmentTokens {
		if strings.Contains(path, token) {
			return true
		}
	}
	return false
}

// writeError maps a proxy error to its HTTP status
func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.logger.Error("Request failed", logger.Err(err))
	http.Error(w, err.Error(), errors.HTTPStatus(err))
}

// writeJSON writes a pretty-printed JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "encoding response failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", jsonContentType)
	w.WriteHeader(status)
	w.Write(data)
}
