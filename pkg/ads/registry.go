// Package ads tracks resolved creatives for follow-up playback requests.
package ads

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aminofox/adproxy/pkg/creative"
)

// Ad is a resolved creative awaiting a follow-up playlist fetch.
type Ad struct {
	// Identifiers holds the creative's UniversalAdIds
	Identifiers []creative.Identifier `json:"identifiers,omitempty"`

	// Duration is the creative duration in seconds
	Duration float64 `json:"duration"`

	// MediaURL is the creative's media file (MP4 or HLS sub-playlist)
	MediaURL string `json:"url"`

	// RequestedAt is the resolution timestamp
	RequestedAt time.Time `json:"requested_at"`

	// Tracking holds the creative's tracking beacons
	Tracking []creative.TrackingRecord `json:"tracking,omitempty"`
}

// Registry maps ephemeral per-resolution ad identifiers to resolved ads.
// Every resolution mints fresh identifiers even for the same creative; entries
// are never evicted within the process lifetime.
type Registry struct {
	mu  sync.RWMutex
	ads map[uuid.UUID]Ad
}

// NewRegistry creates an empty ad registry
func NewRegistry() *Registry {
	return &Registry{
		ads: make(map[uuid.UUID]Ad),
	}
}

// Insert registers a resolved ad under a freshly minted identifier and
// returns the identifier.
func (r *Registry) Insert(ad Ad) uuid.UUID {
	id := uuid.New()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.ads[id] = ad

	return id
}

// Lookup resolves a follow-up identifier.
func (r *Registry) Lookup(id string) (Ad, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Ad{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	ad, ok := r.ads[parsed]
	return ad, ok
}

// Entry is one registered ad used by the status endpoint.
type Entry struct {
	ID          string  `json:"id"`
	Duration    float64 `json:"duration"`
	URL         string  `json:"url"`
	RequestedAt string  `json:"requested_at"`
}

// Entries returns all registered ads.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.ads))
	for id, ad := range r.ads {
		entries = append(entries, Entry{
			ID:          id.String(),
			Duration:    ad.Duration,
			URL:         ad.MediaURL,
			RequestedAt: ad.RequestedAt.Format(time.RFC3339),
		})
	}
	return entries
}

// Len returns the number of registered ads.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ads)
}
