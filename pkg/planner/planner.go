// Package planner rewrites media playlists to carry interstitial cue tags.
package planner

import (
	"time"

	"github.com/mogiioin/hls-m3u8/m3u8"

	"github.com/aminofox/adproxy/pkg/config"
	"github.com/aminofox/adproxy/pkg/logger"
	"github.com/aminofox/adproxy/pkg/slots"
	"github.com/aminofox/adproxy/pkg/timeline"
)

// Planner matches pending ad slots against a media playlist's wall-clock
// timeline and attaches interstitial date-range cues to the covering
// segments.
type Planner struct {
	registry          *slots.Registry
	mode              config.InsertionMode
	schedule          slots.StaticSchedule
	interstitialsBase string
	serverStart       time.Time
	logger            logger.Logger
}

// New creates a break planner. serverStart is the process-wide start instant
// used to anchor live schedules and to synthesize missing VOD date times.
func New(
	registry *slots.Registry,
	cfg *config.Config,
	serverStart time.Time,
	log logger.Logger,
) *Planner {
	return &Planner{
		registry: registry,
		mode:     cfg.Insertion.Mode,
		schedule: slots.StaticSchedule{
			AdDuration:     cfg.Insertion.DefaultAdDuration,
			RepeatingCycle: cfg.Insertion.DefaultRepeatingCycle,
			SlotCount:      cfg.Insertion.DefaultAdNumber,
		},
		interstitialsBase: cfg.InterstitialsBaseURL(),
		serverStart:       serverStart,
		logger:            log,
	}
}

// Rewrite annotates the playlist's segments with interstitial cues for every
// pending slot whose start instant falls inside a segment. The playlist is
// mutated in place; on unsupported or unanchorable input it is left
// untouched.
func (p *Planner) Rewrite(pl *m3u8.MediaPlaylist) {
	segments := pl.GetAllSegments()
	if len(segments) == 0 {
		return
	}

	vod := pl.MediaType == m3u8.VOD
	dynamic := p.mode == config.InsertionDynamic

	if vod && dynamic {
		p.logger.Error("Dynamic ad insertion is not supported for VOD streams")
		return
	}

	anchor, ok := firstProgramDateTime(segments)
	if !ok {
		if !vod {
			p.logger.Warn("No program date time found in the manifest; skipping interstitials")
			return
		}
		// A VOD stream without date times is anchored at the server start.
		segments[0].ProgramDateTime = p.serverStart
		anchor = p.serverStart
	}

	slotSet := p.pendingSlots(vod, anchor)
	if len(slotSet) == 0 {
		return
	}

	timings := timeline.Infer(segments, anchor)

	// Discontinuous segments need an explicit date time so the player can
	// re-anchor playback across the discontinuity.
	for i, seg := range segments {
		if seg.Discontinuity && seg.ProgramDateTime.IsZero() {
			seg.ProgramDateTime = timings[i].Start
		}
	}

	attached := make(map[uint64]bool, len(slotSet))
	for i, timing := range timings {
		for _, slot := range slotSet {
			if attached[slot.Index] || !timing.Contains(slot.Start) {
				continue
			}
			attached[slot.Index] = true

			cue := newCueTag(slot, p.interstitialsBase, vod)
			if segments[i].Custom == nil {
				segments[i].Custom = make(m3u8.CustomMap)
			}
			segments[i].Custom[cue.TagName()] = cue

			p.logger.Debug("Attached interstitial cue",
				logger.String("slot", slot.Name()),
				logger.Time("start", slot.Start),
				logger.Int("segment", i))
			break
		}
	}

	pl.ResetCache()
}

// pendingSlots resolves the slot set for this rewrite: a one-time generated
// schedule in static mode, the current registry snapshot in dynamic mode.
func (p *Planner) pendingSlots(vod bool, firstDateTime time.Time) []slots.Slot {
	if p.mode == config.InsertionStatic && !p.registry.Populated() {
		// VOD schedules anchor at the stream's first date time, live
		// schedules at the server start.
		anchor := p.serverStart
		if vod {
			anchor = firstDateTime
		}
		schedule := p.schedule
		schedule.Live = !vod
		p.registry.PopulateStatic(anchor, schedule)
	}

	return p.registry.Snapshot()
}

func firstProgramDateTime(segments []*m3u8.MediaSegment) (time.Time, bool) {
	for _, seg := range segments {
		if !seg.ProgramDateTime.IsZero() {
			return seg.ProgramDateTime, true
		}
	}
	return time.Time{}, false
}
