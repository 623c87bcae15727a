package proxy

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/mogiioin/hls-m3u8/m3u8"

	"github.com/aminofox/adproxy/pkg/adserver"
	"github.com/aminofox/adproxy/pkg/assetlist"
	"github.com/aminofox/adproxy/pkg/errors"
	"github.com/aminofox/adproxy/pkg/logger"
)

// playbackSessionHeader carries the player's session UUID on every request of
// one playback session.
const playbackSessionHeader = "X-Playback-Session-ID"

// fetchOrigin forwards the request path and query to the upstream origin.
func (s *Server) fetchOrigin(r *http.Request) (*http.Response, error) {
	target := *s.forwardURL
	target.Path = r.URL.Path
	target.RawQuery = r.URL.RawQuery

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeURLParseFailed, "building origin request failed", err)
	}
	req.Header.Set("User-Agent", adserver.UserAgent)
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		req.Header.Set("X-Forwarded-For", host)
	}

	res, err := s.upstream.Do(req)
	if err != nil {
		return nil, errors.NewUpstreamError("origin request failed", err)
	}
	return res, nil
}

// handleMasterPlaylist proxies the master manifest, rewriting absolute
// variant URIs onto this proxy and capturing the session sidecar.
func (s *Server) handleMasterPlaylist(w http.ResponseWriter, r *http.Request) {
	res, err := s.fetchOrigin(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		s.writeError(w, errors.NewUpstreamError("reading origin response failed", err))
		return
	}

	// Remember the player's own query parameters for later ad server calls.
	if sessionID := r.Header.Get(playbackSessionHeader); sessionID != "" {
		if s.sessions.Save(sessionID, r.URL.RawQuery) {
			s.logger.Info("Saved session query parameters",
				logger.String("session", sessionID),
				logger.String("query", r.URL.RawQuery))
		}
	}

	w.Header().Set("Content-Type", hlsContentType)

	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), false)
	if err != nil || listType != m3u8.MASTER {
		// Never wedge a stream over a parser disagreement.
		s.logger.Warn("Master playlist parse failed; passing origin bytes through",
			logger.Err(err))
		w.Write(body)
		return
	}

	master := playlist.(*m3u8.MasterPlaylist)
	rewriteVariantURIs(master)
	master.ResetCache()
	w.Write(master.Encode().Bytes())
}

// rewriteVariantURIs strips absolute variant URLs down to path and query so
// the player fetches them through this proxy.
func rewriteVariantURIs(master *m3u8.MasterPlaylist) {
	for _, variant := range master.Variants {
		if variant == nil {
			continue
		}
		if u, err := url.Parse(variant.URI); err == nil && u.IsAbs() {
			variant.URI = u.RequestURI()
		}
	}
}

// handleMediaPlaylist proxies a media playlist through the break planner.
func (s *Server) handleMediaPlaylist(w http.ResponseWriter, r *http.Request) {
	res, err := s.fetchOrigin(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		s.writeError(w, errors.NewUpstreamError("reading origin response failed", err))
		return
	}

	w.Header().Set("Content-Type", hlsContentType)

	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), false)
	if err != nil || listType != m3u8.MEDIA {
		s.logger.Warn("Media playlist parse failed; passing origin bytes through",
			logger.Err(err))
		w.Write(body)
		return
	}

	media := playlist.(*m3u8.MediaPlaylist)
	// Emit the full segment list rather than the decoder's live window.
	if err := media.SetWinSize(0); err != nil {
		w.Write(body)
		return
	}

	s.planner.Rewrite(media)
	w.Write(media.Encode().Bytes())
}

// handleSegment streams a media segment through unchanged.
func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	res, err := s.fetchOrigin(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer res.Body.Close()

	copyHeaders(w.Header(), res.Header)
	w.WriteHeader(res.StatusCode)
	io.Copy(w, res.Body)
}

// copyHeaders copies upstream response headers modulo Connection.
func copyHeaders(dst, src http.Header) {
	for name, values := range src {
		if http.CanonicalHeaderKey(name) == "Connection" {
			continue
		}
		for _, value := range values {
			dst.Add(name, value)
		}
	}
}

// handleInterstitials serves the asset list for a slot, or the follow-up
// wrapper playlist when an ad identifier is present.
func (s *Server) handleInterstitials(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	interstitialID := query.Get(assetlist.ParamInterstitialID)
	if interstitialID == "" {
		interstitialID = "default_ad"
	}
	sessionID := query.Get(assetlist.ParamPrimaryID)
	if sessionID == "" {
		sessionID = "default_user"
	}

	if adID := query.Get(assetlist.ParamAdID); adID != "" {
		s.handleFollowUp(w, interstitialID, adID, sessionID)
		return
	}

	s.logger.Info("Received interstitial request",
		logger.String("session", sessionID),
		logger.String("slot", interstitialID))

	requestURL := &url.URL{Scheme: "http", Host: r.Host, Path: r.URL.Path}
	list, err := s.resolver.Resolve(r.Context(), requestURL, interstitialID, sessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, list)
}

// handleFollowUp wraps a registered raw creative in a one-segment playlist.
func (s *Server) handleFollowUp(w http.ResponseWriter, interstitialID, adID, sessionID string) {
	s.logger.Info("Received follow-up interstitial request",
		logger.String("slot", interstitialID),
		logger.String("ad", adID),
		logger.String("session", sessionID))

	playlist, err := assetlist.BuildFollowUpPlaylist(s.ads, adID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", hlsContentType)
	w.Write([]byte(playlist))
}
