package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/trendlens/tiktok-crawler/internal/crawl"
	"github.com/trendlens/tiktok-crawler/internal/normalize"
)

// FrontFragments parses profile-grid item HTML into front-half fragments.
// Items missing a thumbnail carry no join key and are skipped; everything
// else is tolerated field by field.
func FrontFragments(items []string) []crawl.FrontFragment {
	out := make([]crawl.FrontFragment, 0, len(items))
	for _, html := range items {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			continue
		}
		img := doc.Find("img").First()
		thumb, _ := img.Attr("src")
		if thumb == "" {
			continue
		}
		alt, _ := img.Attr("alt")
		href, _ := doc.Find("a").First().Attr("href")
		out = append(out, crawl.FrontFragment{
			VideoURL:      href,
			ThumbnailURL:  thumb,
			AltText:       alt,
			LikeCountText: strings.TrimSpace(doc.Find(SelListingLike).First().Text()),
		})
	}
	return out
}

// BackFragments parses creator-feed item HTML into back-half fragments.
func BackFragments(items []string) []crawl.BackFragment {
	out := make([]crawl.BackFragment, 0, len(items))
	for _, html := range items {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			continue
		}
		thumb, _ := doc.Find("img").First().Attr("src")
		if thumb == "" {
			continue
		}
		out = append(out, crawl.BackFragment{
			ThumbnailURL:  thumb,
			PlayCountText: strings.TrimSpace(doc.Find(SelFeedViews).First().Text()),
		})
	}
	return out
}

// Heavy parses a video detail page into a full-detail record. It fails only
// when the page carries none of the expected elements at all; individual
// missing fields stay zero-valued and unparseable counts degrade to null.
func Heavy(pageHTML, videoURL string, capturedAt time.Time) (crawl.HeavyRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return crawl.HeavyRecord{}, fmt.Errorf("parse video page: %w", err)
	}
	if doc.Find(SelVideoTitle).Length() == 0 && doc.Find(SelAuthorUser).Length() == 0 {
		return crawl.HeavyRecord{}, fmt.Errorf("video page has no extractable detail")
	}

	rec := crawl.HeavyRecord{
		VideoID:        VideoID(videoURL),
		URL:            videoURL,
		AuthorUsername: text(doc, SelAuthorUser),
		AuthorNickname: text(doc, SelAuthorNick),
		Title:          text(doc, SelVideoTitle),
		PostedAt:       normalize.Timestamp(text(doc, SelVideoDesc), capturedAt),
		PlayCount:      normalize.Count(text(doc, SelVideoViews)),
		LikeCount:      normalize.Count(text(doc, SelLikeCount)),
		CommentCount:   normalize.Count(text(doc, SelCommentCount)),
		CollectCount:   normalize.Count(text(doc, SelCollectCount)),
		ShareCount:     normalize.Count(text(doc, SelShareCount)),
		CrawledAt:      capturedAt,
		Method:         crawl.ProvenanceVideoPage,
	}
	if thumb, ok := doc.Find("video").First().Attr("poster"); ok {
		rec.ThumbnailURL = thumb
	}
	rec.AudioTitle, rec.AudioAuthor = splitAudio(text(doc, SelAudioLink))
	return rec, nil
}

// VideoID returns the trailing path segment of a video URL.
func VideoID(videoURL string) string {
	trimmed := strings.TrimRight(videoURL, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	if j := strings.IndexAny(trimmed, "?#"); j >= 0 {
		trimmed = trimmed[:j]
	}
	return trimmed
}

func text(doc *goquery.Document, sel string) string {
	return strings.TrimSpace(doc.Find(sel).First().Text())
}

// splitAudio splits the audio link text ("song title - artist") into its
// halves; text without the separator is all title.
func splitAudio(s string) (title, author string) {
	if s == "" {
		return "", ""
	}
	if i := strings.LastIndex(s, " - "); i >= 0 {
		return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+3:])
	}
	return s, ""
}
