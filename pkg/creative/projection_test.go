package creative

import (
	"testing"
	"time"

	"github.com/jeffwalter-rum/vast"
)

func linearCreative(adID string, dur time.Duration, mediaURL string) vast.Creative {
	files := []vast.MediaFile{{URI: mediaURL, Delivery: "progressive", Type: "video/mp4"}}
	return vast.Creative{
		AdID: adID,
		Linear: &vast.Linear{
			Duration:   vast.Duration(dur),
			MediaFiles: &files,
		},
	}
}

func inlineDoc(creatives ...vast.Creative) *vast.VAST {
	return &vast.VAST{
		Version: "4.1",
		Ads: []vast.Ad{
			{
				ID:     "pod",
				InLine: &vast.InLine{Creatives: creatives},
			},
		},
	}
}

// TestProjectClassifiesMediaShapes tests the raw/transcoded/discard filter
func TestProjectClassifiesMediaShapes(t *testing.T) {
	doc := inlineDoc(
		linearCreative("ad-1", 8*time.Second, "https://cdn.example.com/spots/one.mp4"),
		linearCreative("ad-2", 10*time.Second, "https://cdn.example.com/spots/two/index.m3u8"),
		linearCreative("ad-3", 6*time.Second, "https://cdn.example.com/spots/three.m4s"),
		linearCreative("ad-4", 5*time.Second, "https://cdn.example.com/spots/bumper.webm"),
	)

	raw, transcoded := Project(doc)
	if len(raw) != 2 {
		t.Fatalf("Expected 2 raw creatives, got %d", len(raw))
	}
	if len(transcoded) != 1 {
		t.Fatalf("Expected 1 transcoded creative, got %d", len(transcoded))
	}

	if raw[0].AdID != "ad-1" || raw[1].AdID != "ad-3" {
		t.Errorf("Unexpected raw order: %s, %s", raw[0].AdID, raw[1].AdID)
	}
	if transcoded[0].MediaURL() != "https://cdn.example.com/spots/two/index.m3u8" {
		t.Errorf("Unexpected transcoded URL: %s", transcoded[0].MediaURL())
	}
	if raw[0].Duration != 8.0 {
		t.Errorf("Expected duration 8.0, got %v", raw[0].Duration)
	}
}

// TestProjectRequiresAdIDAndMedia tests the validity filter
func TestProjectRequiresAdIDAndMedia(t *testing.T) {
	noID := linearCreative("", 8*time.Second, "https://cdn.example.com/a.mp4")
	noLinear := vast.Creative{AdID: "ad-9"}
	files := []vast.MediaFile{}
	noMedia := vast.Creative{
		AdID:   "ad-8",
		Linear: &vast.Linear{Duration: vast.Duration(4 * time.Second), MediaFiles: &files},
	}

	raw, transcoded := Project(inlineDoc(noID, noLinear, noMedia))
	if len(raw) != 0 || len(transcoded) != 0 {
		t.Errorf("Expected all creatives filtered, got %d raw %d transcoded",
			len(raw), len(transcoded))
	}
}

// TestProjectAdIDFallsBackToUniversalAdID tests the ad id fallback chain
func TestProjectAdIDFallsBackToUniversalAdID(t *testing.T) {
	cr := linearCreative("", 8*time.Second, "https://cdn.example.com/a.mp4")
	cr.UniversalAdID = []vast.UniversalAdID{{ID: "8465", IDRegistry: "Ad-ID"}}

	raw, _ := Project(inlineDoc(cr))
	if len(raw) != 1 {
		t.Fatalf("Expected 1 raw creative, got %d", len(raw))
	}
	if raw[0].AdID != "8465" {
		t.Errorf("Expected UniversalAdId fallback, got %q", raw[0].AdID)
	}
	if len(raw[0].Identifiers) != 1 || raw[0].Identifiers[0].Scheme != "Ad-ID" {
		t.Errorf("Expected identifier scheme Ad-ID, got %+v", raw[0].Identifiers)
	}
}

// TestProjectGroupsTrackingByEvent tests beacon grouping order
func TestProjectGroupsTrackingByEvent(t *testing.T) {
	cr := linearCreative("ad-1", 8*time.Second, "https://cdn.example.com/a.mp4")
	events := []vast.Tracking{
		{Event: "start", URI: "https://track.example.com/s1"},
		{Event: "complete", URI: "https://track.example.com/c1"},
		{Event: "start", URI: "https://track.example.com/s2"},
	}
	cr.Linear.TrackingEvents = &events

	raw, _ := Project(inlineDoc(cr))
	if len(raw) != 1 {
		t.Fatalf("Expected 1 raw creative, got %d", len(raw))
	}

	tracking := raw[0].Tracking
	if len(tracking) != 2 {
		t.Fatalf("Expected 2 tracking records, got %d", len(tracking))
	}
	if tracking[0].Event != "start" || len(tracking[0].URLs) != 2 {
		t.Errorf("Expected grouped start beacons, got %+v", tracking[0])
	}
	if tracking[1].Event != "complete" || len(tracking[1].URLs) != 1 {
		t.Errorf("Expected single complete beacon, got %+v", tracking[1])
	}
}

// TestProjectSkipsWrapperAds tests that wrapper ads contribute nothing
func TestProjectSkipsWrapperAds(t *testing.T) {
	doc := &vast.VAST{
		Version: "4.1",
		Ads:     []vast.Ad{{ID: "wrapped", Wrapper: &vast.Wrapper{}}},
	}

	raw, transcoded := Project(doc)
	if len(raw) != 0 || len(transcoded) != 0 {
		t.Error("Expected no creatives from wrapper-only VAST")
	}
}
