// Package session drives one (identity, target) pair through the full
// navigation ritual and yields records or a typed failure.
package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/trendlens/tiktok-crawler/internal/anomaly"
	"github.com/trendlens/tiktok-crawler/internal/crawl"
	"github.com/trendlens/tiktok-crawler/internal/extract"
	"github.com/trendlens/tiktok-crawler/internal/merge"
	"github.com/trendlens/tiktok-crawler/internal/metrics"
	"github.com/trendlens/tiktok-crawler/internal/nav"
)

// Mode selects which record kinds a session collects.
type Mode string

// Collection modes.
const (
	ModeLight Mode = "light"
	ModeHeavy Mode = "heavy"
	ModeBoth  Mode = "both"
)

// State is the session's position in its ritual.
type State string

// Session states. Aborted is reachable from every other state.
const (
	StateStart            State = "start"
	StateListingCollected State = "listing_collected"
	StateLightMerged      State = "light_merged"
	StateHeavyLoop        State = "heavy_collection_loop"
	StateDone             State = "done"
	StateAborted          State = "aborted"
)

// AbortReason is the typed cause of an aborted session.
type AbortReason string

// Abort reasons. Only AccountRemoved changes persisted liveness; Challenge
// and NavigationStuck leave the target eligible for a future attempt.
const (
	AbortAccountRemoved  AbortReason = "account_removed"
	AbortChallenge       AbortReason = "challenge_screen"
	AbortEmptyContent    AbortReason = "empty_content"
	AbortNavigationStuck AbortReason = "navigation_stuck"
	abortPersist         AbortReason = "persist_failed"
)

// Result reports how a session ended.
type Result struct {
	RunID      string
	State      State
	Reason     AbortReason
	HeavySaved int
	LightSaved int
	Err        error
}

// Outcome is the label used for events and metrics.
func (r Result) Outcome() string {
	if r.State == StateDone {
		return string(StateDone)
	}
	return string(r.Reason)
}

// Terminal reports whether the outcome should advance the target's
// last_crawled_at. Challenge, stuck and persistence outcomes are
// retryable and must leave it untouched.
func (r Result) Terminal() bool {
	switch r.Reason {
	case AbortChallenge, AbortNavigationStuck, abortPersist:
		return false
	default:
		return true
	}
}

// Config bounds one session.
type Config struct {
	Mode       Mode
	MaxVideos  int
	MaxScrolls int
}

// Session executes the ritual for one target at a time on one machine.
// Sessions own no shared state; everything mutable is local to the
// identity's browser.
type Session struct {
	machine  *nav.Machine
	detector *anomaly.Detector
	repo     crawl.Repository
	blobs    crawl.BlobStore
	clock    crawl.Clock
	ids      crawl.IDGenerator
	logger   *zap.Logger
	cfg      Config
}

// New builds a Session. blobs may be nil when anomaly snapshots are
// disabled.
func New(
	machine *nav.Machine,
	detector *anomaly.Detector,
	repo crawl.Repository,
	blobs crawl.BlobStore,
	clock crawl.Clock,
	ids crawl.IDGenerator,
	logger *zap.Logger,
	cfg Config,
) *Session {
	if cfg.Mode == "" {
		cfg.Mode = ModeBoth
	}
	if cfg.MaxVideos <= 0 {
		cfg.MaxVideos = 10
	}
	if cfg.MaxScrolls <= 0 {
		cfg.MaxScrolls = 3
	}
	return &Session{
		machine:  machine,
		detector: detector,
		repo:     repo,
		blobs:    blobs,
		clock:    clock,
		ids:      ids,
		logger:   logger,
		cfg:      cfg,
	}
}

// Run executes the full ritual against one target. Whatever happens, the
// browser is brought back to a known screen before Run returns, so one
// target's failure cannot cascade into the next target's navigation.
func (s *Session) Run(ctx context.Context, identity crawl.CrawlerIdentity, target crawl.TargetAccount) Result {
	runID := s.newRunID()
	log := s.logger.With(
		zap.String("run_id", runID),
		zap.Int64("identity_id", identity.ID),
		zap.String("target", target.Username),
	)

	res := s.run(ctx, log, runID, target)
	res.RunID = runID
	s.cleanup(ctx, log, target)

	metrics.ObserveSession(res.Outcome())
	log.Info("session finished",
		zap.String("state", string(res.State)),
		zap.String("outcome", res.Outcome()),
		zap.Int("heavy_saved", res.HeavySaved),
		zap.Int("light_saved", res.LightSaved),
	)
	return res
}

func (s *Session) run(ctx context.Context, log *zap.Logger, runID string, target crawl.TargetAccount) Result {
	// Entry is idempotent: direct navigation to the profile, legal from
	// any screen the previous session left behind.
	if err := s.machine.ToProfile(ctx, target.Username); err != nil {
		return abortOnNavError(err)
	}
	html, res, ok := s.gate(ctx, log, runID, target)
	if !ok {
		return res
	}

	fronts, res, ok := s.collectListing(ctx, log, html, runID, target)
	if !ok {
		return res
	}
	log.Debug("session state", zap.String("state", string(StateListingCollected)), zap.Int("fronts", len(fronts)))

	// The newest video's page is on the path to the creator feed, so both
	// modes walk through it; only heavy modes extract there.
	if err := s.machine.ToVideo(ctx); err != nil {
		return abortOnNavError(err)
	}
	videoHTML, res, ok := s.gate(ctx, log, runID, target)
	if !ok {
		return res
	}

	var heavy *crawl.HeavyRecord
	if s.cfg.Mode != ModeLight {
		rec, err := extract.Heavy(videoHTML, fronts[0].VideoURL, s.clock.Now())
		if err != nil {
			// No usable data on the video page: soft failure, after the
			// guaranteed return to the profile screen.
			log.Warn("video page yielded no usable data", zap.Error(err))
			return Result{State: StateAborted, Reason: AbortEmptyContent, Err: err}
		}
		heavy = &rec
	}

	var backs []crawl.BackFragment
	if s.cfg.Mode != ModeHeavy {
		if err := s.machine.ToCreatorFeed(ctx); err != nil {
			return abortOnNavError(err)
		}
		if _, res, ok = s.gate(ctx, log, runID, target); !ok {
			return res
		}
		backs = s.collectFeed(ctx, log, len(fronts))
	}

	// End the ritual back on the profile screen before persisting.
	if err := s.machine.CloseVideo(ctx); err != nil {
		return abortOnNavError(err)
	}

	var lights []crawl.LightRecord
	if s.cfg.Mode != ModeHeavy {
		lights = merge.Light(fronts, backs, s.clock.Now())
		log.Debug("session state", zap.String("state", string(StateLightMerged)), zap.Int("lights", len(lights)))
	}
	return s.persist(ctx, heavy, lights)
}

// persist writes the collected records. The browser work is already over,
// so a storage failure aborts without touching liveness or timestamps and
// the whole target is retried later.
func (s *Session) persist(ctx context.Context, heavy *crawl.HeavyRecord, lights []crawl.LightRecord) Result {
	res := Result{State: StateHeavyLoop}
	if heavy != nil {
		if err := s.repo.SaveHeavy(ctx, *heavy); err != nil {
			res.State = StateAborted
			res.Reason = abortPersist
			res.Err = fmt.Errorf("save heavy record: %w", err)
			return res
		}
		res.HeavySaved++
		metrics.ObserveRecords("heavy", 1)
	}
	for _, rec := range lights {
		if err := s.repo.SaveLight(ctx, rec); err != nil {
			res.State = StateAborted
			res.Reason = abortPersist
			res.Err = fmt.Errorf("save light record: %w", err)
			return res
		}
		res.LightSaved++
	}
	metrics.ObserveRecords("light", res.LightSaved)

	res.State = StateDone
	return res
}

// collectListing scrolls the profile grid up to the configured bound and
// returns the newest MaxVideos front fragments.
func (s *Session) collectListing(
	ctx context.Context,
	log *zap.Logger,
	firstHTML string,
	runID string,
	target crawl.TargetAccount,
) ([]crawl.FrontFragment, Result, bool) {
	items := s.extractAll(ctx, log, extract.SelListingItem)
	for i := 0; i < s.cfg.MaxScrolls && len(items) < s.cfg.MaxVideos; i++ {
		if err := s.machine.Driver().Scroll(ctx); err != nil {
			break
		}
		items = s.extractAll(ctx, log, extract.SelListingItem)
	}

	fronts := extract.FrontFragments(items)
	if len(fronts) == 0 {
		html := s.pageHTML(ctx)
		if html == "" {
			html = firstHTML
		}
		if s.detector.ListingEmpty(html) {
			log.Info("listing produced zero items after bounded scrolls")
			s.snapshot(ctx, log, runID, target, string(anomaly.EmptyContent), html)
		}
		return nil, Result{State: StateAborted, Reason: AbortEmptyContent}, false
	}
	if len(fronts) > s.cfg.MaxVideos {
		fronts = fronts[:s.cfg.MaxVideos]
	}
	return fronts, Result{}, true
}

// collectFeed scrolls the creator feed until enough back halves surfaced
// or the scroll budget runs out. Not every reference has to appear.
func (s *Session) collectFeed(ctx context.Context, log *zap.Logger, want int) []crawl.BackFragment {
	items := s.extractAll(ctx, log, extract.SelFeedItem)
	for i := 0; i < s.cfg.MaxScrolls && len(items) < want; i++ {
		if err := s.machine.Driver().Scroll(ctx); err != nil {
			break
		}
		items = s.extractAll(ctx, log, extract.SelFeedItem)
	}
	return extract.BackFragments(items)
}

// gate classifies the freshly loaded screen before any extraction touches
// it, applying the anomaly's prescribed side effects.
func (s *Session) gate(
	ctx context.Context,
	log *zap.Logger,
	runID string,
	target crawl.TargetAccount,
) (string, Result, bool) {
	html := s.pageHTML(ctx)

	switch class := s.detector.Classify(html); class {
	case anomaly.Challenge:
		log.Warn("challenge screen detected")
		s.snapshot(ctx, log, runID, target, string(class), html)
		return "", Result{State: StateAborted, Reason: AbortChallenge}, false
	case anomaly.AccountRemoved:
		log.Info("target account removed")
		s.snapshot(ctx, log, runID, target, string(class), html)
		if err := s.repo.MarkTargetDead(ctx, target.ID); err != nil {
			log.Error("mark target dead", zap.Error(err))
		}
		return "", Result{State: StateAborted, Reason: AbortAccountRemoved}, false
	default:
		return html, Result{}, true
	}
}

// cleanup restores the browser to the profile screen, falling back to a
// forgotten state so the next session re-enters by direct navigation.
func (s *Session) cleanup(ctx context.Context, log *zap.Logger, target crawl.TargetAccount) {
	switch s.machine.Current() {
	case nav.ScreenProfile:
		return
	case nav.ScreenVideo, nav.ScreenVideoFeed:
		if err := s.machine.CloseVideo(ctx); err == nil {
			return
		}
	}
	if err := s.machine.ToProfile(ctx, target.Username); err != nil {
		log.Warn("cleanup navigation failed; browser state forgotten", zap.Error(err))
		s.machine.Reset()
	}
}

func (s *Session) pageHTML(ctx context.Context) string {
	fragments, err := s.machine.Driver().Extract(ctx, "html")
	if err != nil || len(fragments) == 0 {
		return ""
	}
	return fragments[0]
}

func (s *Session) extractAll(ctx context.Context, log *zap.Logger, locator string) []string {
	fragments, err := s.machine.Driver().Extract(ctx, locator)
	if err != nil {
		log.Warn("extract failed", zap.String("locator", locator), zap.Error(err))
		return nil
	}
	return fragments
}

func (s *Session) snapshot(ctx context.Context, log *zap.Logger, runID string, target crawl.TargetAccount, class, html string) {
	if s.blobs == nil || html == "" {
		return
	}
	path := fmt.Sprintf("%s/%s/%s.html", target.Username, runID, class)
	uri, err := s.blobs.PutObject(ctx, path, "text/html; charset=utf-8", []byte(html))
	if err != nil {
		log.Warn("snapshot write failed", zap.Error(err))
		return
	}
	log.Debug("anomaly snapshot stored", zap.String("uri", uri))
}

func (s *Session) newRunID() string {
	if s.ids != nil {
		if id, err := s.ids.NewID(); err == nil {
			return id
		}
	}
	return fmt.Sprintf("run-%d", s.clock.Now().UnixNano())
}

// abortOnNavError maps navigation failures to the retryable stuck outcome.
// A crashed driver gets the same treatment as a stuck wait: nothing about
// the identity or target is known to be wrong.
func abortOnNavError(err error) Result {
	return Result{State: StateAborted, Reason: AbortNavigationStuck, Err: err}
}
