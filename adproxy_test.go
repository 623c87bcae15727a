package adproxy

import (
	"testing"

	"github.com/aminofox/adproxy/pkg/config"
)

// TestNewRejectsInvalidConfig tests that assembly validates configuration
func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig() // no origin configured

	if _, err := New(cfg); err == nil {
		t.Error("Expected assembly to fail without an origin")
	}
}

// TestNewAssemblesProxy tests the happy assembly path
func TestNewAssemblesProxy(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Origin.MasterPlaylistURL = "http://origin.example.com/test/master.m3u8"
	cfg.AdServer.Endpoint = "https://ads.example.com/vast?dur=[template.duration]"

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if p.Config() != cfg {
		t.Error("Expected the proxy to keep the given configuration")
	}
	if p.Logger() == nil {
		t.Error("Expected an assembled logger")
	}
}
