package ads

import (
	"testing"
	"time"
)

// TestInsertMintsFreshIdentifiers tests per-resolution identifier minting
func TestInsertMintsFreshIdentifiers(t *testing.T) {
	reg := NewRegistry()
	ad := Ad{Duration: 8.0, MediaURL: "https://cdn.example.com/a.mp4", RequestedAt: time.Now()}

	first := reg.Insert(ad)
	second := reg.Insert(ad)

	if first == second {
		t.Error("Expected fresh identifiers for repeated resolutions of the same creative")
	}
	if reg.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", reg.Len())
	}
}

// TestLookup tests hit and miss paths
func TestLookup(t *testing.T) {
	reg := NewRegistry()
	id := reg.Insert(Ad{Duration: 8.0, MediaURL: "https://cdn.example.com/a.mp4"})

	ad, ok := reg.Lookup(id.String())
	if !ok {
		t.Fatal("Expected lookup to succeed")
	}
	if ad.MediaURL != "https://cdn.example.com/a.mp4" {
		t.Errorf("Unexpected media URL: %s", ad.MediaURL)
	}

	if _, ok := reg.Lookup("15b6fc6f-7a4c-49e1-a9b1-2c7b2a39e1a0"); ok {
		t.Error("Expected lookup of unknown identifier to miss")
	}
	if _, ok := reg.Lookup("not-a-uuid"); ok {
		t.Error("Expected lookup of malformed identifier to miss")
	}
}
