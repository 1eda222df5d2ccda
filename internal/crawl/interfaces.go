package crawl

import (
	"context"
	"errors"
	"time"
)

// ErrNoIdentity is returned by Repository.NextIdentity when no alive
// identity matches the request.
var ErrNoIdentity = errors.New("no available crawler identity")

// ErrIdentityRejected is returned by Browser.Login when the platform
// refuses the credentials outright, as opposed to a slow or stuck login.
var ErrIdentityRejected = errors.New("identity rejected at login")

// ErrTargetClaimed is returned by Repository.AssignTarget when another
// identity already holds the target.
var ErrTargetClaimed = errors.New("target claimed by another identity")

// Repository is the storage port the engine depends on. Implementations
// must serialize writes to a given row; the engine never takes a global
// lock.
type Repository interface {
	// NextIdentity returns the requested identity, or the least recently
	// used alive one when requestedID is nil.
	NextIdentity(ctx context.Context, requestedID *int64) (CrawlerIdentity, error)
	// NextTargets returns up to max targets for the identity: targets
	// already assigned to it first, then unassigned alive targets by
	// descending priority and least recently crawled. recrawl admits
	// already-crawled targets.
	NextTargets(ctx context.Context, identityID int64, max int, recrawl bool) ([]TargetAccount, error)

	SaveHeavy(ctx context.Context, rec HeavyRecord) error
	SaveLight(ctx context.Context, rec LightRecord) error

	MarkTargetDead(ctx context.Context, targetID int64) error
	// TouchTarget advances last_crawled_at; it must never move it backwards.
	TouchTarget(ctx context.Context, targetID int64, ts time.Time) error
	// AssignTarget claims the target exclusively; a claim already held by
	// another identity fails with ErrTargetClaimed.
	AssignTarget(ctx context.Context, targetID, identityID int64) error

	MarkIdentityDead(ctx context.Context, identityID int64) error
	TouchIdentity(ctx context.Context, identityID int64, ts time.Time) error
}

// Browser is the low-level driver port. Locators are CSS selectors.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, locator string) error
	// Scroll moves the viewport down by roughly one screen.
	Scroll(ctx context.Context) error
	// WaitFor blocks until the locator is present or the timeout elapses;
	// a timeout is reported as (false, nil), not an error.
	WaitFor(ctx context.Context, locator string, timeout time.Duration) (bool, error)
	// Extract returns the outer HTML of every node matching the locator.
	Extract(ctx context.Context, locator string) ([]string, error)
	// Login performs the platform's email/password login ritual.
	Login(ctx context.Context, username, password string) error
}

// Publisher pushes session summaries to an event bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore archives raw DOM snapshots of anomalous screens and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Clock returns the current time (injectable for tests).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces session run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
