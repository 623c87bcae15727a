package assetlist

import (
	"github.com/mogiioin/hls-m3u8/m3u8"

	"github.com/aminofox/adproxy/pkg/ads"
	"github.com/aminofox/adproxy/pkg/errors"
)

// BuildFollowUpPlaylist synthesizes the one-segment media playlist wrapping a
// registered raw creative.
func BuildFollowUpPlaylist(registry *ads.Registry, adID string) (string, error) {
	ad, ok := registry.Lookup(adID)
	if !ok {
		return "", errors.NewAdNotFoundError(adID)
	}

	pl, err := m3u8.NewMediaPlaylist(0, 1)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodePlaylistParseFailed,
			"creating follow-up playlist failed", err)
	}
	if err := pl.Append(ad.MediaURL, ad.Duration, ""); err != nil {
		return "", errors.Wrap(errors.ErrCodePlaylistParseFailed,
			"appending follow-up segment failed", err)
	}
	pl.Closed = true

	return pl.Encode().String(), nil
}
