// Package slots maintains the schedule of pending ad breaks.
package slots

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// staticPodCount is the pod hint attached to generated static slots.
const staticPodCount = 2

// Slot is a scheduled, addressable ad break.
type Slot struct {
	// ID is the slot's identity token
	ID uuid.UUID `json:"id"`

	// Index names the slot; the player echoes the name back on resolution
	Index uint64 `json:"index"`

	// Start is the wall-clock instant of the break
	Start time.Time `json:"start_time"`

	// Duration is the nominal break duration in seconds
	Duration float64 `json:"duration"`

	// Pod hints how many individual ads the ad server should pack
	Pod int `json:"pod_num"`
}

// Name derives the slot's addressable name from its index.
func (s Slot) Name() string {
	return fmt.Sprintf("ad_slot%d", s.Index)
}

// key identifies a slot by value. The identity UUID is deliberately excluded
// so that concurrent regeneration of the same schedule deduplicates.
type key struct {
	index      uint64
	startMilli int64
	durMilli   int64
	pod        int
}

func (s Slot) key() key {
	return key{
		index:      s.Index,
		startMilli: s.Start.UnixMilli(),
		durMilli:   int64(s.Duration * 1000),
		pod:        s.Pod,
	}
}
