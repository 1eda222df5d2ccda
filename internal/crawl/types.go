// Package crawl defines the core types and ports shared across the crawl engine.
package crawl

import (
	"time"
)

// CrawlerIdentity is a browsing account used to drive one browser session.
// Identities are never deleted, only marked dead when the platform locks
// them out.
type CrawlerIdentity struct {
	ID         int64
	Username   string
	Password   string
	Proxy      string // optional egress route, empty when direct
	Alive      bool
	LastUsedAt *time.Time
}

// TargetAccount is a publisher account whose videos are tracked over time.
type TargetAccount struct {
	ID                 int64
	Username           string
	AssignedIdentityID *int64
	Alive              bool
	Priority           int
	LastCrawledAt      *time.Time
}

// Provenance names the extraction method that produced a record.
type Provenance string

// Provenance values persisted with every record.
const (
	ProvenanceVideoPage    Provenance = "video_page"
	ProvenanceListingMerge Provenance = "listing_merge"
)

// Count pairs a displayed count with its parsed value. Value is nil when the
// text did not parse; the text is always kept verbatim.
type Count struct {
	Text  string
	Value *int64
}

// Timestamp pairs a displayed date with its parsed value, same null policy
// as Count.
type Timestamp struct {
	Text  string
	Value *time.Time
}

// HeavyRecord is one full-detail snapshot of a single video, captured from
// its dedicated page. Append-only: one row per observation.
type HeavyRecord struct {
	VideoID        string
	URL            string
	AuthorUsername string
	AuthorNickname string
	Title          string
	ThumbnailURL   string
	PostedAt       Timestamp
	PlayCount      Count
	LikeCount      Count
	CommentCount   Count
	CollectCount   Count
	ShareCount     Count
	AudioTitle     string
	AudioAuthor    string
	CrawledAt      time.Time
	Method         Provenance
}

// LightRecord is a reduced-detail snapshot assembled from two listing-screen
// fragments joined on the thumbnail URL. PlayCount stays null when the back
// half never surfaced.
type LightRecord struct {
	VideoURL     string
	ThumbnailURL string
	AltText      string
	LikeCount    Count
	PlayCount    Count
	CrawledAt    time.Time
	Method       Provenance
}

// FrontFragment is the listing-grid half of a light record: discovered on
// the publisher's profile page, it carries the only stable join key.
type FrontFragment struct {
	VideoURL      string
	ThumbnailURL  string
	AltText       string
	LikeCountText string
}

// BackFragment is the creator-feed half of a light record, keyed only by
// thumbnail URL. A back fragment with no matching front fragment cannot be
// attached to anything and is dropped.
type BackFragment struct {
	ThumbnailURL  string
	PlayCountText string
}

// SessionSummary is published after each finished session.
type SessionSummary struct {
	IdentityID   int64     `json:"identity_id"`
	TargetID     int64     `json:"target_id"`
	Target       string    `json:"target"`
	Outcome      string    `json:"outcome"`
	HeavySaved   int       `json:"heavy_saved"`
	LightSaved   int       `json:"light_saved"`
	FinishedAt   time.Time `json:"finished_at"`
	SessionRunID string    `json:"session_run_id"`
}
