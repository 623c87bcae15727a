package proxy

import (
	"net/http"

	"github.com/aminofox/adproxy/pkg/ads"
	"github.com/aminofox/adproxy/pkg/session"
	"github.com/aminofox/adproxy/pkg/slots"
)

// statusResponse is the introspection dump of the proxy's runtime state.
type statusResponse struct {
	Config       statusConfig `json:"config"`
	AdServerURL  string       `json:"ad_server_url"`
	QueryParams  statusParams `json:"user_defined_query_params"`
	AvailableAds statusAds    `json:"available_ads"`
	Slots        statusSlots  `json:"available_slots"`
}

type statusConfig struct {
	ForwardURL           string `json:"forward_url"`
	InterstitialsAddress string `json:"interstitials_address"`
	MasterPlaylistPath   string `json:"master_playlist_path"`
	InsertionMode        string `json:"insertion_mode"`
}

type statusParams struct {
	Params []session.Entry `json:"params"`
}

type statusAds struct {
	Count   int         `json:"count"`
	Linears []ads.Entry `json:"linears"`
}

type statusSlots struct {
	Count int          `json:"count"`
	Slots []slots.Slot `json:"slots"`
}

// handleStatus dumps configuration and registry state as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	adEntries := s.ads.Entries()
	slotEntries := s.slots.Snapshot()

	s.writeJSON(w, http.StatusOK, statusResponse{
		Config: statusConfig{
			ForwardURL:           s.forwardURL.String(),
			InterstitialsAddress: s.cfg.InterstitialsBaseURL(),
			MasterPlaylistPath:   s.masterPath,
			InsertionMode:        string(s.cfg.Insertion.Mode),
		},
		AdServerURL: s.cfg.AdServer.Endpoint,
		QueryParams: statusParams{Params: s.sessions.Entries()},
		AvailableAds: statusAds{
			Count:   len(adEntries),
			Linears: adEntries,
		},
		Slots: statusSlots{
			Count: len(slotEntries),
			Slots: slotEntries,
		},
	})
}
