// Package merge reconciles the two listing-screen fragment halves into
// light records.
package merge

import (
	"time"

	"github.com/trendlens/tiktok-crawler/internal/crawl"
	"github.com/trendlens/tiktok-crawler/internal/normalize"
)

// Light joins front fragments (profile grid) with back fragments (creator
// feed) on the thumbnail URL. Every front fragment yields exactly one
// record, with the play count left null when no back fragment shares its
// key. Back fragments without a front counterpart have no stable key to
// attach to and are dropped. Front insertion order is preserved; ordering
// within either input does not change the result set.
func Light(fronts []crawl.FrontFragment, backs []crawl.BackFragment, capturedAt time.Time) []crawl.LightRecord {
	backByThumb := make(map[string]crawl.BackFragment, len(backs))
	for _, b := range backs {
		if b.ThumbnailURL == "" {
			continue
		}
		if _, ok := backByThumb[b.ThumbnailURL]; !ok {
			backByThumb[b.ThumbnailURL] = b
		}
	}

	seen := make(map[string]struct{}, len(fronts))
	out := make([]crawl.LightRecord, 0, len(fronts))
	for _, f := range fronts {
		if f.ThumbnailURL == "" {
			continue
		}
		if _, dup := seen[f.ThumbnailURL]; dup {
			continue
		}
		seen[f.ThumbnailURL] = struct{}{}

		rec := crawl.LightRecord{
			VideoURL:     f.VideoURL,
			ThumbnailURL: f.ThumbnailURL,
			AltText:      f.AltText,
			LikeCount:    normalize.Count(f.LikeCountText),
			CrawledAt:    capturedAt,
			Method:       crawl.ProvenanceListingMerge,
		}
		if b, ok := backByThumb[f.ThumbnailURL]; ok {
			rec.PlayCount = normalize.Count(b.PlayCountText)
		}
		out = append(out, rec)
	}
	return out
}
