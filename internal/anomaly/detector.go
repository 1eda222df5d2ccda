// Package anomaly classifies freshly loaded screens before any extraction
// runs against them.
package anomaly

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/trendlens/tiktok-crawler/internal/extract"
	"github.com/trendlens/tiktok-crawler/internal/metrics"
)

// Classification is the detector's verdict on a loaded screen.
type Classification string

// Possible verdicts. Only AccountRemoved ever changes persisted liveness.
const (
	Normal         Classification = "normal"
	AccountRemoved Classification = "account_removed"
	Challenge      Classification = "challenge_screen"
	EmptyContent   Classification = "empty_content"
)

var defaultChallengeKeywords = []string{
	"verify to continue",
	"security check",
	"captcha",
}

var defaultRemovedKeywords = []string{
	"couldn't find this account",
	"this account cannot be found",
}

// Detector inspects page HTML for known failure signatures using selector
// presence and keyword scans.
type Detector struct {
	challengeKeywords [][]byte
	removedKeywords   [][]byte
}

// New builds a Detector; empty keyword lists fall back to the defaults.
func New(challengeKeywords, removedKeywords []string) *Detector {
	if len(challengeKeywords) == 0 {
		challengeKeywords = defaultChallengeKeywords
	}
	if len(removedKeywords) == 0 {
		removedKeywords = defaultRemovedKeywords
	}
	return &Detector{
		challengeKeywords: lowerAll(challengeKeywords),
		removedKeywords:   lowerAll(removedKeywords),
	}
}

// Classify inspects a loaded screen. The challenge check runs first: a
// verification interstitial can replace any screen, while a removed-account
// page only replaces a profile.
func (d *Detector) Classify(html string) Classification {
	body := []byte(strings.ToLower(html))

	if d.isChallenge(html, body) {
		metrics.ObserveAnomaly(string(Challenge))
		return Challenge
	}
	if d.isRemoved(body) {
		metrics.ObserveAnomaly(string(AccountRemoved))
		return AccountRemoved
	}
	return Normal
}

// ListingEmpty reports whether a profile listing holds zero items. The
// session calls this after its bounded scroll attempts; a true result is
// what turns a Normal classification into EmptyContent.
func (d *Detector) ListingEmpty(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return true
	}
	empty := doc.Find(extract.SelListingItem).Length() == 0
	if empty {
		metrics.ObserveAnomaly(string(EmptyContent))
	}
	return empty
}

func (d *Detector) isChallenge(html string, lowerBody []byte) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err == nil && doc.Find(extract.SelChallenge).Length() > 0 {
		return true
	}
	return containsAny(lowerBody, d.challengeKeywords)
}

func (d *Detector) isRemoved(lowerBody []byte) bool {
	return containsAny(lowerBody, d.removedKeywords)
}

func containsAny(body []byte, keywords [][]byte) bool {
	for _, kw := range keywords {
		if len(kw) > 0 && bytes.Contains(body, kw) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) [][]byte {
	out := make([][]byte, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, bytes.ToLower([]byte(s)))
	}
	return out
}
