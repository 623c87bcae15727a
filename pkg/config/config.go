// Package config loads the proxy configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// InsertionMode selects how ad slots are scheduled
type InsertionMode string

const (
	// InsertionStatic inserts an interstitial on a fixed repeating cycle
	InsertionStatic InsertionMode = "static"

	// InsertionDynamic inserts interstitials on demand via the command endpoint
	InsertionDynamic InsertionMode = "dynamic"
)

// Config represents the main configuration for the ad proxy
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server" yaml:"server"`

	// Origin configuration
	Origin OriginConfig `json:"origin" yaml:"origin"`

	// AdServer configuration
	AdServer AdServerConfig `json:"ad_server" yaml:"ad_server"`

	// Insertion configuration
	Insertion InsertionConfig `json:"insertion" yaml:"insertion"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	// ListenAddr is the proxy bind address
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`

	// ListenPort is the proxy bind port
	ListenPort int `json:"listen_port" yaml:"listen_port"`

	// InterstitialsAddress is the public base URL injected into cue
	// X-ASSET-LIST references so the player can reach this proxy.
	// Defaults to http://localhost:<listen_port> when empty.
	InterstitialsAddress string `json:"interstitials_address" yaml:"interstitials_address"`
}

// OriginConfig holds upstream HLS origin configuration
type OriginConfig struct {
	// MasterPlaylistURL is the full URL of the origin master playlist
	// (protocol://host:port/path/master.m3u8). Its base becomes the forward
	// URL and its path identifies master-playlist requests.
	MasterPlaylistURL string `json:"master_playlist_url" yaml:"master_playlist_url"`
}

// AdServerConfig holds VAST ad server configuration
type AdServerConfig struct {
	// Endpoint is the VAST 4.x compatible ad server URL. Query parameter
	// values may carry the [template.sessionId], [template.duration] and
	// [template.pod] sentinels.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// ReturnTestAssets short-circuits VAST resolution and serves a canned
	// asset list, for player integration without a live ad server.
	ReturnTestAssets bool `json:"return_test_assets" yaml:"return_test_assets"`
}

// InsertionConfig holds ad insertion scheduling configuration
type InsertionConfig struct {
	// Mode is the ad insertion mode (static or dynamic)
	Mode InsertionMode `json:"mode" yaml:"mode"`

	// DefaultAdDuration is the nominal ad break duration in seconds
	DefaultAdDuration float64 `json:"default_ad_duration" yaml:"default_ad_duration"`

	// DefaultRepeatingCycle is the static-mode slot spacing in seconds
	DefaultRepeatingCycle float64 `json:"default_repeating_cycle" yaml:"default_repeating_cycle"`

	// DefaultAdNumber is the number of slots generated in static mode
	DefaultAdNumber int `json:"default_ad_number" yaml:"default_ad_number"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	// Level is the logging level (debug, info, warn, error)
	Level string `json:"level" yaml:"level"`

	// Format is the log format (json, text)
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: "0.0.0.0",
			ListenPort: 8080,
		},
		AdServer: AdServerConfig{
			ReturnTestAssets: false,
		},
		Insertion: InsertionConfig{
			Mode:                  InsertionStatic,
			DefaultAdDuration:     13,
			DefaultRepeatingCycle: 30,
			DefaultAdNumber:       1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override from environment variables
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for completeness
func (c *Config) Validate() error {
	if c.Origin.MasterPlaylistURL == "" {
		return fmt.Errorf("origin.master_playlist_url is required")
	}
	if _, err := url.Parse(c.Origin.MasterPlaylistURL); err != nil {
		return fmt.Errorf("invalid master playlist URL: %w", err)
	}
	if c.AdServer.Endpoint == "" && !c.AdServer.ReturnTestAssets {
		return fmt.Errorf("ad_server.endpoint is required unless return_test_assets is set")
	}
	if c.AdServer.Endpoint != "" {
		if _, err := url.Parse(c.AdServer.Endpoint); err != nil {
			return fmt.Errorf("invalid ad server endpoint: %w", err)
		}
	}
	switch c.Insertion.Mode {
	case InsertionStatic, InsertionDynamic:
	default:
		return fmt.Errorf("insertion.mode must be static or dynamic, got %q", c.Insertion.Mode)
	}
	return nil
}

// InterstitialsBaseURL returns the public base URL for asset-list references
func (c *Config) InterstitialsBaseURL() string {
	if c.Server.InterstitialsAddress != "" {
		return c.Server.InterstitialsAddress
	}
	return fmt.Sprintf("http://localhost:%d", c.Server.ListenPort)
}

// loadFromEnv overrides config from environment variables
func (c *Config) loadFromEnv() {
	if addr := os.Getenv("ADPROXY_LISTEN_ADDR"); addr != "" {
		c.Server.ListenAddr = addr
	}
	if port := os.Getenv("ADPROXY_LISTEN_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.ListenPort = p
		}
	}
	if master := os.Getenv("ADPROXY_MASTER_PLAYLIST_URL"); master != "" {
		c.Origin.MasterPlaylistURL = master
	}
	if endpoint := os.Getenv("ADPROXY_AD_SERVER_ENDPOINT"); endpoint != "" {
		c.AdServer.Endpoint = endpoint
	}
	if mode := os.Getenv("ADPROXY_AD_INSERTION_MODE"); mode != "" {
		c.Insertion.Mode = InsertionMode(mode)
	}
}
