package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aminofox/adproxy/pkg/assetlist"
	"github.com/aminofox/adproxy/pkg/config"
	"github.com/aminofox/adproxy/pkg/logger"
)

const masterManifest = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=1280000
https://origin.example.com/test/low/index.m3u8?token=1
#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=2560000
/test/high/index.m3u8
`

const rawOnlyVAST = `<?xml version="1.0" encoding="UTF-8"?>
<VAST version="4.1">
  <Ad id="one">
    <InLine>
      <AdSystem>test</AdSystem>
      <AdTitle>spot</AdTitle>
      <Creatives>
        <Creative adId="ad-1">
          <Linear>
            <Duration>00:00:08</Duration>
            <MediaFiles>
              <MediaFile delivery="progressive" type="video/mp4" width="1280" height="720"><![CDATA[https://cdn.example.com/spots/one.mp4]]></MediaFile>
            </MediaFiles>
          </Linear>
        </Creative>
      </Creatives>
    </InLine>
  </Ad>
</VAST>`

func vodManifest(segments int) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-PLAYLIST-TYPE:VOD\n")
	b.WriteString("#EXT-X-TARGETDURATION:6\n#EXT-X-MEDIA-SEQUENCE:0\n")
	b.WriteString("#EXT-X-PROGRAM-DATE-TIME:2024-01-01T00:00:00.000Z\n")
	for i := 0; i < segments; i++ {
		fmt.Fprintf(&b, "#EXTINF:6.000,\nseg%d.ts\n", i)
	}
	b.WriteString("#EXT-X-ENDLIST\n")
	return b.String()
}

func liveManifest(anchor time.Time, segments int) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:6\n")
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:100\n")
	fmt.Fprintf(&b, "#EXT-X-PROGRAM-DATE-TIME:%s\n", anchor.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	for i := 0; i < segments; i++ {
		fmt.Fprintf(&b, "#EXTINF:6.000,\nseg%d.ts\n", 100+i)
	}
	return b.String()
}

// testEnv wires a proxy server against fake origin and ad servers.
type testEnv struct {
	server *Server
	front  *httptest.Server
	origin *httptest.Server
	adsrv  *httptest.Server
}

func newTestEnv(t *testing.T, mode config.InsertionMode, originBody func(path string) (string, string)) *testEnv {
	t.Helper()

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, contentType := originBody(r.URL.Path)
		w.Header().Set("Content-Type", contentType)
		w.Write([]byte(body))
	}))

	adsrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(rawOnlyVAST))
	}))

	cfg := config.DefaultConfig()
	cfg.Origin.MasterPlaylistURL = origin.URL + "/test/master.m3u8"
	cfg.AdServer.Endpoint = adsrv.URL + "/vast?dur=[template.duration]&sid=[template.sessionId]"
	cfg.Insertion.Mode = mode
	cfg.Insertion.DefaultAdDuration = 10
	cfg.Insertion.DefaultRepeatingCycle = 30
	cfg.Insertion.DefaultAdNumber = 10
	cfg.Server.InterstitialsAddress = "http://127.0.0.1:9090"

	log := logger.NewDefaultLogger(logger.ErrorLevel, "text")
	server, err := NewServer(cfg, log)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	front := httptest.NewServer(http.HandlerFunc(server.dispatch))

	env := &testEnv{server: server, front: front, origin: origin, adsrv: adsrv}
	t.Cleanup(func() {
		front.Close()
		origin.Close()
		adsrv.Close()
	})
	return env
}

func (e *testEnv) get(t *testing.T, path string, headers map[string]string) (*http.Response, string) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, e.front.URL+path, nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("Reading body failed: %v", err)
	}
	return res, string(body)
}

// TestMasterPlaylistRewritesAbsoluteVariants tests variant URI rewriting
func TestMasterPlaylistRewritesAbsoluteVariants(t *testing.T) {
	env := newTestEnv(t, config.InsertionStatic, func(path string) (string, string) {
		return masterManifest, "application/vnd.apple.mpegurl"
	})

	sessionID := "8f8a2af1-4ef7-40c9-a9f5-6d2ba2f874b1"
	res, body := env.get(t, "/test/master.m3u8?token=abc",
		map[string]string{"X-Playback-Session-ID": sessionID})

	if res.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", res.StatusCode)
	}
	if got := res.Header.Get("Content-Type"); got != "application/vnd.apple.mpegurl" {
		t.Errorf("Unexpected content type %q", got)
	}
	if strings.Contains(body, "https://origin.example.com") {
		t.Errorf("Expected absolute variant URI rewritten:\n%s", body)
	}
	if !strings.Contains(body, "/test/low/index.m3u8?token=1") {
		t.Errorf("Expected path and query preserved:\n%s", body)
	}
	if !strings.Contains(body, "/test/high/index.m3u8") {
		t.Errorf("Expected relative variant untouched:\n%s", body)
	}

	// The master query landed in the session sidecar.
	if query, ok := env.server.sessions.Lookup(sessionID); !ok || query != "token=abc" {
		t.Errorf("Expected sidecar save, got %q (%v)", query, ok)
	}
}

// TestMediaPlaylistGetsInterstitialCues tests the planner wiring
func TestMediaPlaylistGetsInterstitialCues(t *testing.T) {
	env := newTestEnv(t, config.InsertionStatic, func(path string) (string, string) {
		return vodManifest(10), "application/vnd.apple.mpegurl"
	})

	res, body := env.get(t, "/test/low/index.m3u8", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", res.StatusCode)
	}
	if !strings.Contains(body, `#EXT-X-DATERANGE:ID="ad_slot1"`) {
		t.Errorf("Expected interstitial cue in rewritten playlist:\n%s", body)
	}
	if !strings.Contains(body, "X-RESUME-OFFSET=0.0") {
		t.Error("Expected VOD resume offset on the cue")
	}
}

// TestUnparsablePlaylistPassesThrough tests the parser fallback
func TestUnparsablePlaylistPassesThrough(t *testing.T) {
	const garbled = "not a playlist at all"
	env := newTestEnv(t, config.InsertionStatic, func(path string) (string, string) {
		return garbled, "text/plain"
	})

	res, body := env.get(t, "/test/low/index.m3u8", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", res.StatusCode)
	}
	if body != garbled {
		t.Errorf("Expected origin bytes passed through, got %q", body)
	}
	if got := res.Header.Get("Content-Type"); got != "application/vnd.apple.mpegurl" {
		t.Errorf("Expected HLS content type on fallback, got %q", got)
	}
}

// TestSegmentPassthrough tests header copying on the streaming path
func TestSegmentPassthrough(t *testing.T) {
	env := newTestEnv(t, config.InsertionStatic, func(path string) (string, string) {
		return "segment-bytes", "video/mp2t"
	})

	res, body := env.get(t, "/test/low/seg42.ts", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", res.StatusCode)
	}
	if body != "segment-bytes" {
		t.Errorf("Expected segment bytes, got %q", body)
	}
	if got := res.Header.Get("Content-Type"); got != "video/mp2t" {
		t.Errorf("Expected upstream content type, got %q", got)
	}
}

// TestCommandRejectedInStaticMode tests the static-mode guard
func TestCommandRejectedInStaticMode(t *testing.T) {
	env := newTestEnv(t, config.InsertionStatic, func(path string) (string, string) {
		return "", "text/plain"
	})

	res, body := env.get(t, "/command?in=20&dur=15&pod=3", nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", res.StatusCode)
	}
	if !strings.Contains(body, `"status": "error"`) {
		t.Errorf("Expected error envelope, got %s", body)
	}
}

// TestCommandInjectsDynamicSlot tests injection and the follow-on rewrite
func TestCommandInjectsDynamicSlot(t *testing.T) {
	anchor := time.Now()
	env := newTestEnv(t, config.InsertionDynamic, func(path string) (string, string) {
		return liveManifest(anchor, 10), "application/vnd.apple.mpegurl"
	})

	res, body := env.get(t, "/command?in=20&dur=15&pod=3", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", res.StatusCode, body)
	}

	var reply struct {
		Status  string `json:"status"`
		Command struct {
			Index    uint64 `json:"index"`
			InSec    int    `json:"in_sec"`
			Duration int    `json:"duration"`
			PodNum   int    `json:"pod_num"`
		} `json:"command"`
	}
	if err := json.Unmarshal([]byte(body), &reply); err != nil {
		t.Fatalf("Failed to decode command reply: %v", err)
	}
	if reply.Status != "success" || reply.Command.Index != 0 ||
		reply.Command.InSec != 20 || reply.Command.Duration != 15 || reply.Command.PodNum != 3 {
		t.Errorf("Unexpected command echo: %+v", reply)
	}

	// The injected slot lands in the live playlist on the next rewrite.
	_, playlist := env.get(t, "/test/low/index.m3u8", nil)
	if got := strings.Count(playlist, "#EXT-X-DATERANGE:"); got != 1 {
		t.Fatalf("Expected exactly 1 cue, got %d:\n%s", got, playlist)
	}
	if !strings.Contains(playlist, "DURATION=15") {
		t.Errorf("Expected injected duration on the cue:\n%s", playlist)
	}
	if strings.Contains(playlist, "X-RESUME-OFFSET") {
		t.Error("Expected live cue to omit the resume offset")
	}
}

// TestCommandMissingParameters tests the 400 path
func TestCommandMissingParameters(t *testing.T) {
	env := newTestEnv(t, config.InsertionDynamic, func(path string) (string, string) {
		return "", "text/plain"
	})

	res, body := env.get(t, "/command?in=20", nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", res.StatusCode)
	}
	if !strings.Contains(body, "Missing required query parameters") {
		t.Errorf("Expected missing-parameter message, got %s", body)
	}
}

// TestInterstitialAndFollowUpFlow tests asset resolution end to end
func TestInterstitialAndFollowUpFlow(t *testing.T) {
	env := newTestEnv(t, config.InsertionDynamic, func(path string) (string, string) {
		return "", "text/plain"
	})

	// Inject the slot the player will resolve.
	if res, _ := env.get(t, "/command?in=20&dur=15&pod=3", nil); res.StatusCode != http.StatusOK {
		t.Fatalf("Command failed with %d", res.StatusCode)
	}

	res, body := env.get(t,
		"/interstitials.m3u8?_HLS_interstitial_id=ad_slot0&_HLS_primary_id=8f8a2af1-4ef7-40c9-a9f5-6d2ba2f874b1", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", res.StatusCode, body)
	}
	if got := res.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Expected JSON content type, got %q", got)
	}

	var list assetlist.AssetList
	if err := json.Unmarshal([]byte(body), &list); err != nil {
		t.Fatalf("Failed to decode asset list: %v", err)
	}
	if len(list.Assets) != 1 {
		t.Fatalf("Expected 1 asset, got %d", len(list.Assets))
	}

	assetURL, err := url.Parse(list.Assets[0].URI)
	if err != nil {
		t.Fatalf("Bad asset URI: %v", err)
	}

	// The follow-up URI resolves to the wrapper playlist.
	res, playlist := env.get(t, assetURL.Path+"?"+assetURL.RawQuery, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 on follow-up, got %d", res.StatusCode)
	}
	if got := res.Header.Get("Content-Type"); got != "application/vnd.apple.mpegurl" {
		t.Errorf("Expected HLS content type, got %q", got)
	}
	if !strings.Contains(playlist, "https://cdn.example.com/spots/one.mp4") {
		t.Errorf("Expected MP4 segment URI in follow-up playlist:\n%s", playlist)
	}
	if !strings.Contains(playlist, "#EXTINF:8.000,") {
		t.Errorf("Expected creative duration in follow-up playlist:\n%s", playlist)
	}

	// Unknown follow-up identifiers are a 404.
	res, _ = env.get(t,
		"/interstitials.m3u8?_HLS_interstitial_id=ad_slot0&_HLS_primary_id=u&_ad_id=15b6fc6f-7a4c-49e1-a9b1-2c7b2a39e1a0", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown ad, got %d", res.StatusCode)
	}
}

// TestInterstitialUnknownSlot tests the missing slot path
func TestInterstitialUnknownSlot(t *testing.T) {
	env := newTestEnv(t, config.InsertionDynamic, func(path string) (string, string) {
		return "", "text/plain"
	})

	res, body := env.get(t, "/interstitials.m3u8?_HLS_interstitial_id=ad_slot7&_HLS_primary_id=u", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", res.StatusCode)
	}
	if !strings.Contains(body, "Ad slot missing") {
		t.Errorf("Expected missing entity name in body, got %q", body)
	}
}

// TestStatusDump tests the introspection endpoint
func TestStatusDump(t *testing.T) {
	env := newTestEnv(t, config.InsertionDynamic, func(path string) (string, string) {
		return "", "text/plain"
	})
	env.get(t, "/command?in=20&dur=15&pod=3", nil)

	res, body := env.get(t, "/status", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", res.StatusCode)
	}

	var status map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &status); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	for _, key := range []string{"config", "ad_server_url", "user_defined_query_params",
		"available_ads", "available_slots"} {
		if _, ok := status[key]; !ok {
			t.Errorf("Expected %q in status dump", key)
		}
	}
	if !strings.Contains(body, `"insertion_mode": "dynamic"`) {
		t.Errorf("Expected insertion mode in config dump:\n%s", body)
	}
	if !strings.Contains(body, `"count": 1`) {
		t.Errorf("Expected one slot in dump:\n%s", body)
	}
}

// TestUnroutablePathIs404 tests the default route
func TestUnroutablePathIs404(t *testing.T) {
	env := newTestEnv(t, config.InsertionStatic, func(path string) (string, string) {
		return "", "text/plain"
	})

	res, _ := env.get(t, "/favicon.ico", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", res.StatusCode)
	}
}

// TestNonGETRejected tests the method guard
func TestNonGETRejected(t *testing.T) {
	env := newTestEnv(t, config.InsertionStatic, func(path string) (string, string) {
		return "", "text/plain"
	})

	res, err := http.Post(env.front.URL+"/status", "application/json", nil)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", res.StatusCode)
	}
}
