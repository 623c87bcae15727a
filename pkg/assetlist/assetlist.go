// Package assetlist resolves interstitial ad breaks into asset manifests.
package assetlist

import (
	"context"
	"net/url"
	"time"

	"github.com/aminofox/adproxy/pkg/ads"
	"github.com/aminofox/adproxy/pkg/adserver"
	"github.com/aminofox/adproxy/pkg/creative"
	"github.com/aminofox/adproxy/pkg/errors"
	"github.com/aminofox/adproxy/pkg/logger"
	"github.com/aminofox/adproxy/pkg/session"
	"github.com/aminofox/adproxy/pkg/slots"
)

// Query parameters of the interstitial endpoint.
const (
	// ParamInterstitialID carries the slot name the player is resolving
	ParamInterstitialID = "_HLS_interstitial_id"

	// ParamPrimaryID carries the playback session UUID
	ParamPrimaryID = "_HLS_primary_id"

	// ParamAdID marks a follow-up request for one registered creative
	ParamAdID = "_ad_id"
)

// AssetList is the JSON manifest of one resolved interstitial.
type AssetList struct {
	Assets    []Asset       `json:"ASSETS"`
	Signaling *PodSignaling `json:"X-AD-CREATIVE-SIGNALING"`
}

// Asset is one creative of the break.
type Asset struct {
	URI       string         `json:"URI"`
	Duration  float64        `json:"DURATION"`
	Signaling *SlotSignaling `json:"X-AD-CREATIVE-SIGNALING"`
}

// SlotSignaling is the per-asset creative signaling envelope.
type SlotSignaling struct {
	Version int         `json:"version"`
	Type    string      `json:"type"`
	Payload SlotPayload `json:"payload"`
}

// SlotPayload describes one linear creative inside the break.
type SlotPayload struct {
	Type        string                    `json:"type"`
	Start       float64                   `json:"start"`
	Duration    float64                   `json:"duration"`
	Identifiers []creative.Identifier     `json:"identifiers,omitempty"`
	Tracking    []creative.TrackingRecord `json:"tracking,omitempty"`
}

// PodSignaling is the top-level creative signaling envelope.
type PodSignaling struct {
	Version int        `json:"version"`
	Type    string     `json:"type"`
	Payload PodPayload `json:"payload"`
}

// PodPayload carries the total break duration.
type PodPayload struct {
	Duration float64 `json:"duration"`
}

// Resolver turns an interstitial request into an asset list, registering
// follow-up identifiers for raw creatives on the way.
type Resolver struct {
	slots            *slots.Registry
	sessions         *session.Store
	ads              *ads.Registry
	client           *adserver.Client
	returnTestAssets bool
	logger           logger.Logger
}

// NewResolver creates an asset-list resolver.
func NewResolver(
	slotRegistry *slots.Registry,
	sessions *session.Store,
	adRegistry *ads.Registry,
	client *adserver.Client,
	returnTestAssets bool,
	log logger.Logger,
) *Resolver {
	return &Resolver{
		slots:            slotRegistry,
		sessions:         sessions,
		ads:              adRegistry,
		client:           client,
		returnTestAssets: returnTestAssets,
		logger:           log,
	}
}

// Resolve builds the asset list for one slot and session. requestURL is the
// URL the player used to reach this endpoint; synthesized follow-up asset
// URIs are rebuilt from it.
func (r *Resolver) Resolve(
	ctx context.Context,
	requestURL *url.URL,
	interstitialID string,
	sessionID string,
) (*AssetList, error) {
	slot, ok := r.slots.ByName(interstitialID)
	if !ok {
		return nil, errors.NewSlotNotFoundError(interstitialID)
	}

	if r.returnTestAssets {
		return r.build(requestURL, interstitialID, sessionID, testCreatives())
	}

	sidecarQuery, _ := r.sessions.Lookup(sessionID)
	adURL := r.client.ResolveURL(slot, sessionID, sidecarQuery)
	r.logger.Info("Requesting ad pod",
		logger.String("slot", interstitialID),
		logger.String("url", adURL.String()))

	doc, err := r.client.FetchVAST(ctx, adURL)
	if err != nil {
		return nil, err
	}

	raw, transcoded := creative.Project(doc)
	return r.build(requestURL, interstitialID, sessionID, append(raw, transcoded...))
}

// build materializes the asset list. Raw creatives are interned in the ad
// registry and pointed back at this proxy; transcoded creatives are
// referenced directly.
func (r *Resolver) build(
	requestURL *url.URL,
	interstitialID string,
	sessionID string,
	creatives []creative.Creative,
) (*AssetList, error) {
	assets := make([]Asset, 0, len(creatives))

	var accumulated float64
	for _, cr := range creatives {
		uri := cr.MediaURL()
		if cr.Kind == creative.KindRaw {
			adID := r.ads.Insert(ads.Ad{
				Identifiers: cr.Identifiers,
				Duration:    cr.Duration,
				MediaURL:    cr.MediaURL(),
				RequestedAt: time.Now(),
				Tracking:    cr.Tracking,
			})
			uri = followUpURI(requestURL, interstitialID, sessionID, adID.String())
		}

		assets = append(assets, Asset{
			URI:      uri,
			Duration: cr.Duration,
			Signaling: &SlotSignaling{
				Version: 2,
				Type:    "slot",
				Payload: SlotPayload{
					Type:        "linear",
					Start:       accumulated,
					Duration:    cr.Duration,
					Identifiers: cr.Identifiers,
					Tracking:    cr.Tracking,
				},
			},
		})
		accumulated += cr.Duration
	}

	return &AssetList{
		Assets: assets,
		Signaling: &PodSignaling{
			Version: 2,
			Type:    "pod",
			Payload: PodPayload{Duration: accumulated},
		},
	}, nil
}

// followUpURI rebuilds the request URL with only the resolution parameters.
func followUpURI(requestURL *url.URL, interstitialID, sessionID, adID string) string {
	followUp := *requestURL
	query := url.Values{}
	query.Set(ParamInterstitialID, interstitialID)
	query.Set(ParamPrimaryID, sessionID)
	query.Set(ParamAdID, adID)
	followUp.RawQuery = query.Encode()
	return followUp.String()
}

// testCreatives is the canned pod served when VAST resolution is disabled.
func testCreatives() []creative.Creative {
	return []creative.Creative{
		{
			AdID:      "test-raw",
			Kind:      creative.KindRaw,
			Duration:  10,
			MediaURLs: []string{"https://test-streams.example.com/ads/test-ad-10s.mp4"},
		},
		{
			AdID:      "test-transcoded",
			Kind:      creative.KindTranscoded,
			Duration:  6,
			MediaURLs: []string{"https://test-streams.example.com/ads/test-ad-6s/index.m3u8"},
		},
	}
}
