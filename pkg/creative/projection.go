// Package creative projects parsed VAST documents into playable creatives.
package creative

import (
	"net/url"
	"strings"
	"time"

	"github.com/jeffwalter-rum/vast"
)

// rawPathTokens mark media URLs delivered as raw segments or MP4 files that
// must be wrapped in a synthesized playlist before the player can use them.
var rawPathTokens = []string{".ts", ".cmf", ".mp", ".m4s"}

// transcodedPathToken marks media URLs already packaged as HLS sub-playlists.
const transcodedPathToken = ".m3u8"

// Kind classifies how a creative's media is packaged
type Kind int

const (
	// KindRaw is a single media file needing a synthesized wrapper playlist
	KindRaw Kind = iota

	// KindTranscoded is an HLS sub-playlist playable inline
	KindTranscoded
)

// Identifier is a VAST UniversalAdId scheme and value pair
type Identifier struct {
	Scheme string `json:"scheme"`
	Value  string `json:"value"`
}

// TrackingRecord groups the beacon URLs of one tracking event
type TrackingRecord struct {
	Event  string   `json:"type"`
	Offset string   `json:"offset,omitempty"`
	URLs   []string `json:"urls"`
}

// Creative is one playable linear extracted from a VAST document
type Creative struct {
	// AdID is the ad server identifier of the creative
	AdID string

	// Kind reports raw or transcoded packaging
	Kind Kind

	// Duration is the linear duration in seconds
	Duration float64

	// MediaURLs holds the linear's media file URLs in document order
	MediaURLs []string

	// Identifiers holds the creative's UniversalAdIds
	Identifiers []Identifier

	// Tracking holds the linear's tracking events
	Tracking []TrackingRecord
}

// MediaURL returns the creative's first media URL.
func (c Creative) MediaURL() string {
	return c.MediaURLs[0]
}

// Project extracts the playable creatives of a VAST document, classified as
// raw or transcoded. A creative qualifies when it carries an ad id and a
// linear with at least one media file URL; media shapes matching neither the
// raw nor the transcoded filter are discarded.
func Project(doc *vast.VAST) (raw, transcoded []Creative) {
	if doc == nil {
		return nil, nil
	}

	for _, ad := range doc.Ads {
		if ad.InLine == nil {
			continue
		}
		for _, cr := range ad.InLine.Creatives {
			projected, ok := project(cr)
			if !ok {
				continue
			}
			switch projected.Kind {
			case KindRaw:
				raw = append(raw, projected)
			case KindTranscoded:
				transcoded = append(transcoded, projected)
			}
		}
	}

	return raw, transcoded
}

func project(cr vast.Creative) (Creative, bool) {
	adID := creativeAdID(cr)
	if adID == "" || cr.Linear == nil {
		return Creative{}, false
	}

	urls := mediaURLs(cr.Linear)
	if len(urls) == 0 {
		return Creative{}, false
	}

	kind, ok := classify(urls[0])
	if !ok {
		return Creative{}, false
	}

	return Creative{
		AdID:        adID,
		Kind:        kind,
		Duration:    time.Duration(cr.Linear.Duration).Seconds(),
		MediaURLs:   urls,
		Identifiers: identifiers(cr),
		Tracking:    trackingRecords(cr.Linear),
	}, true
}

// creativeAdID picks the creative's ad id: the adId attribute, the creative
// id, or the first UniversalAdId value.
func creativeAdID(cr vast.Creative) string {
	if cr.AdID != "" {
		return cr.AdID
	}
	if cr.ID != "" {
		return cr.ID
	}
	for _, uid := range cr.UniversalAdID {
		if uid.ID != "" {
			return uid.ID
		}
	}
	return ""
}

func mediaURLs(linear *vast.Linear) []string {
	if linear.MediaFiles == nil {
		return nil
	}

	urls := make([]string, 0, len(*linear.MediaFiles))
	for _, mf := range *linear.MediaFiles {
		uri := strings.TrimSpace(mf.URI)
		if uri != "" {
			urls = append(urls, uri)
		}
	}
	return urls
}

// classify inspects the URL path for the media shape tokens. Anything that is
// neither an HLS sub-playlist nor a raw media file is a bumper shape the proxy
// cannot play inline.
func classify(mediaURL string) (Kind, bool) {
	path := mediaURL
	if u, err := url.Parse(mediaURL); err == nil && u.Path != "" {
		path = u.Path
	}

	if strings.Contains(path, transcodedPathToken) {
		return KindTranscoded, true
	}
	for _, token := range rawPathTokens {
		if strings.Contains(path, token) {
			return KindRaw, true
		}
	}
	return 0, false
}

func identifiers(cr vast.Creative) []Identifier {
	if len(cr.UniversalAdID) == 0 {
		return nil
	}

	ids := make([]Identifier, 0, len(cr.UniversalAdID))
	for _, uid := range cr.UniversalAdID {
		ids = append(ids, Identifier{
			Scheme: uid.IDRegistry,
			Value:  uid.ID,
		})
	}
	return ids
}

// trackingRecords groups the linear's tracking events by event name and
// offset, preserving first-appearance order.
func trackingRecords(linear *vast.Linear) []TrackingRecord {
	if linear.TrackingEvents == nil {
		return nil
	}

	type key struct {
		event  string
		offset string
	}

	var records []TrackingRecord
	index := make(map[key]int)
	for _, tr := range *linear.TrackingEvents {
		uri := strings.TrimSpace(tr.URI)
		if tr.Event == "" || uri == "" {
			continue
		}

		var offset string
		if tr.Offset != nil {
			if text, err := tr.Offset.MarshalText(); err == nil {
				offset = string(text)
			}
		}

		k := key{event: tr.Event, offset: offset}
		if i, ok := index[k]; ok {
			records[i].URLs = append(records[i].URLs, uri)
			continue
		}
		index[k] = len(records)
		records = append(records, TrackingRecord{
			Event:  tr.Event,
			Offset: offset,
			URLs:   []string{uri},
		})
	}
	return records
}
