package planner

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/aminofox/adproxy/pkg/slots"
)

const (
	// interstitialClass is Apple's date-range class for HLS interstitials
	interstitialClass = "com.apple.hls.interstitial"

	// interstitialPlaylist is the asset-list endpoint file name
	interstitialPlaylist = "interstitials.m3u8"

	// cueTagName keys the cue within a segment's custom tag map
	cueTagName = "#EXT-X-DATERANGE:"

	// startDateLayout renders cue start dates with millisecond precision
	startDateLayout = "2006-01-02T15:04:05.000Z07:00"
)

// cueTag is an EXT-X-DATERANGE interstitial cue attached to one segment.
// It implements the playlist serializer's custom tag interface so the cue is
// written immediately before its segment.
type cueTag struct {
	line string
}

// newCueTag renders the interstitial cue for an ad slot. The resume offset is
// attached for VOD only; live streams omit it so the player resumes at the
// live edge.
func newCueTag(slot slots.Slot, interstitialsBase string, vod bool) *cueTag {
	var b strings.Builder

	assetList := fmt.Sprintf("%s/%s?_HLS_interstitial_id=%s",
		strings.TrimSuffix(interstitialsBase, "/"), interstitialPlaylist, slot.Name())

	fmt.Fprintf(&b, `#EXT-X-DATERANGE:ID=%q`, slot.Name())
	fmt.Fprintf(&b, `,CLASS=%q`, interstitialClass)
	fmt.Fprintf(&b, `,START-DATE=%q`, slot.Start.UTC().Format(startDateLayout))
	fmt.Fprintf(&b, `,DURATION=%s`, strconv.FormatFloat(slot.Duration, 'f', -1, 64))
	fmt.Fprintf(&b, `,X-ASSET-LIST=%q`, assetList)
	b.WriteString(`,X-SNAP="IN,OUT"`)
	b.WriteString(`,X-RESTRICT="SKIP,JUMP"`)
	if vod {
		b.WriteString(`,X-RESUME-OFFSET=0.0`)
	}

	return &cueTag{line: b.String()}
}

// TagName returns the tag identifier used as the segment custom map key
func (t *cueTag) TagName() string {
	return cueTagName
}

// Encode returns the complete tag line
func (t *cueTag) Encode() *bytes.Buffer {
	return bytes.NewBufferString(t.line)
}

// String returns the encoded tag
func (t *cueTag) String() string {
	return t.line
}
