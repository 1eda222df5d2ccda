// Package nav models the platform's reachable screens as a finite state
// machine with a closed transition table. Every transition is one browser
// action plus a post-condition wait; nothing else is ever attempted, so a
// session cannot drift into erratic navigation the platform would flag.
package nav

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/trendlens/tiktok-crawler/internal/crawl"
	"github.com/trendlens/tiktok-crawler/internal/extract"
	"github.com/trendlens/tiktok-crawler/internal/metrics"
)

// Screen identifies one of the reachable UI screens.
type Screen string

// The four screens a session can be on. ScreenAny is the unknown entry
// state; the only way out of it is direct navigation to a profile.
const (
	ScreenAny       Screen = "any_page"
	ScreenProfile   Screen = "profile"
	ScreenVideo     Screen = "video"
	ScreenVideoFeed Screen = "video_with_feed"
)

// StuckError reports a transition whose destination screen never became
// observable within the timeout.
type StuckError struct {
	From    Screen
	To      Screen
	Locator string
}

func (e *StuckError) Error() string {
	return fmt.Sprintf("navigation stuck: %s -> %s (waiting for %q)", e.From, e.To, e.Locator)
}

// IllegalTransitionError reports an attempt outside the transition table.
type IllegalTransitionError struct {
	From Screen
	To   Screen
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition: %s -> %s", e.From, e.To)
}

// Machine drives a Browser through the closed transition table while
// tracking which screen the session is on. Not safe for concurrent use;
// one machine belongs to exactly one identity's session.
type Machine struct {
	driver  crawl.Browser
	baseURL string
	timeout time.Duration
	logger  *zap.Logger
	current Screen
}

// New returns a Machine starting on ScreenAny.
func New(driver crawl.Browser, baseURL string, timeout time.Duration, logger *zap.Logger) *Machine {
	return &Machine{
		driver:  driver,
		baseURL: baseURL,
		timeout: timeout,
		logger:  logger,
		current: ScreenAny,
	}
}

// Current returns the screen the machine believes it is on.
func (m *Machine) Current() Screen {
	return m.current
}

// Driver exposes the underlying browser for extraction and scrolling;
// navigation itself must go through the transition methods.
func (m *Machine) Driver() crawl.Browser {
	return m.driver
}

// Reset forgets the current screen. Used when a session hands the browser
// back in an unknown state; the next entry goes through ToProfile.
func (m *Machine) Reset() {
	m.current = ScreenAny
}

// ToProfile navigates directly to a publisher's profile page. Legal from
// every screen: it is the idempotent re-entry point.
func (m *Machine) ToProfile(ctx context.Context, username string) error {
	from := m.current
	url := fmt.Sprintf("%s/@%s", m.baseURL, username)
	return m.step(ctx, from, ScreenProfile, "body", func(ctx context.Context) error {
		return m.driver.Navigate(ctx, url)
	})
}

// ToVideo opens the newest video from the profile grid.
func (m *Machine) ToVideo(ctx context.Context) error {
	if m.current != ScreenProfile {
		return &IllegalTransitionError{From: m.current, To: ScreenVideo}
	}
	return m.step(ctx, m.current, ScreenVideo, extract.SelVideoTitle, func(ctx context.Context) error {
		return m.driver.Click(ctx, extract.SelNewestVideo)
	})
}

// ToCreatorFeed opens the creator-videos rail on the video page.
func (m *Machine) ToCreatorFeed(ctx context.Context) error {
	if m.current != ScreenVideo {
		return &IllegalTransitionError{From: m.current, To: ScreenVideoFeed}
	}
	return m.step(ctx, m.current, ScreenVideoFeed, extract.SelFeedItem, func(ctx context.Context) error {
		return m.driver.Click(ctx, extract.SelCreatorTab)
	})
}

// CloseVideo returns from the video page (with or without the creator
// feed) to the profile page.
func (m *Machine) CloseVideo(ctx context.Context) error {
	if m.current != ScreenVideo && m.current != ScreenVideoFeed {
		return &IllegalTransitionError{From: m.current, To: ScreenProfile}
	}
	return m.step(ctx, m.current, ScreenProfile, extract.SelListingItem, func(ctx context.Context) error {
		return m.driver.Click(ctx, extract.SelVideoClose)
	})
}

// step runs one transition: action, then wait for the destination's
// defining element. On timeout the machine falls back to ScreenAny so the
// caller re-enters by direct navigation.
func (m *Machine) step(ctx context.Context, from, to Screen, confirm string, act func(context.Context) error) error {
	if err := act(ctx); err != nil {
		m.current = ScreenAny
		metrics.ObserveTransition(string(from), string(to), "error")
		return fmt.Errorf("transition %s -> %s: %w", from, to, err)
	}
	ok, err := m.driver.WaitFor(ctx, confirm, m.timeout)
	if err != nil {
		m.current = ScreenAny
		metrics.ObserveTransition(string(from), string(to), "error")
		return fmt.Errorf("transition %s -> %s: %w", from, to, err)
	}
	if !ok {
		m.current = ScreenAny
		metrics.ObserveTransition(string(from), string(to), "stuck")
		m.logger.Warn("navigation stuck",
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.String("locator", confirm),
		)
		return &StuckError{From: from, To: to, Locator: confirm}
	}
	m.current = to
	metrics.ObserveTransition(string(from), string(to), "ok")
	return nil
}
