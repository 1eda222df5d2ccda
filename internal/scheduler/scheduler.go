// Package scheduler allocates crawler identities, assigns target batches
// and dispatches crawl sessions under a global budget.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/trendlens/tiktok-crawler/internal/crawl"
	"github.com/trendlens/tiktok-crawler/internal/metrics"
	"github.com/trendlens/tiktok-crawler/internal/session"
)

// Runner executes one crawl session for a target.
type Runner interface {
	Run(ctx context.Context, identity crawl.CrawlerIdentity, target crawl.TargetAccount) session.Result
}

// RunnerFactory builds the per-identity session runner: browser launch,
// login, machine wiring. The returned func tears the browser down.
type RunnerFactory func(ctx context.Context, identity crawl.CrawlerIdentity) (Runner, func(), error)

// Options bound one crawl run.
type Options struct {
	IdentityID *int64 // pin the run to one identity
	Identities int    // parallel identities, 1 when zero
	MaxTargets int    // per-identity batch size
	Budget     int    // process-wide target budget, 0 = unlimited
	Recrawl    bool
}

// Report summarizes a finished run.
type Report struct {
	IdentitiesUsed   int
	TargetsProcessed int
	Done             int
	Retryable        int
	Removed          int
	Empty            int
	HeavySaved       int
	LightSaved       int
}

// Scheduler owns identity allocation and dispatch. Each identity runs its
// batch strictly sequentially; distinct identities run in parallel. The
// repository is the only state shared between them.
type Scheduler struct {
	repo      crawl.Repository
	factory   RunnerFactory
	publisher crawl.Publisher
	topic     string
	clock     crawl.Clock
	logger    *zap.Logger
}

// New builds a Scheduler. publisher may be nil when events are disabled.
func New(
	repo crawl.Repository,
	factory RunnerFactory,
	publisher crawl.Publisher,
	topic string,
	clock crawl.Clock,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		repo:      repo,
		factory:   factory,
		publisher: publisher,
		topic:     topic,
		clock:     clock,
		logger:    logger,
	}
}

// Run allocates identities and drives their batches to completion. It
// returns an error only when the run aborted before processing a single
// target; partial failure is reported, not fatal.
func (s *Scheduler) Run(ctx context.Context, opts Options) (Report, error) {
	if opts.Identities <= 0 {
		opts.Identities = 1
	}
	if opts.IdentityID != nil {
		opts.Identities = 1
	}

	identities, err := s.allocateIdentities(ctx, opts)
	if err != nil {
		return Report{}, err
	}

	var (
		mu        sync.Mutex
		report    Report
		wg        sync.WaitGroup
		remaining atomic.Int64
	)
	report.IdentitiesUsed = len(identities)
	if opts.Budget > 0 {
		remaining.Store(int64(opts.Budget))
	} else {
		remaining.Store(int64(^uint64(0) >> 2))
	}

	for _, identity := range identities {
		wg.Add(1)
		go func(identity crawl.CrawlerIdentity) {
			defer wg.Done()
			batch := s.runIdentity(ctx, identity, opts, &remaining)
			mu.Lock()
			report.TargetsProcessed += batch.TargetsProcessed
			report.Done += batch.Done
			report.Retryable += batch.Retryable
			report.Removed += batch.Removed
			report.Empty += batch.Empty
			report.HeavySaved += batch.HeavySaved
			report.LightSaved += batch.LightSaved
			mu.Unlock()
		}(identity)
	}
	wg.Wait()

	return report, nil
}

// allocateIdentities claims up to opts.Identities distinct alive
// identities. Touching last_used_at on allocation moves the LRU cursor so
// parallel slots get distinct identities.
func (s *Scheduler) allocateIdentities(ctx context.Context, opts Options) ([]crawl.CrawlerIdentity, error) {
	seen := make(map[int64]struct{})
	var out []crawl.CrawlerIdentity
	for len(out) < opts.Identities {
		identity, err := s.repo.NextIdentity(ctx, opts.IdentityID)
		if err != nil {
			if errors.Is(err, crawl.ErrNoIdentity) && len(out) > 0 {
				break
			}
			return nil, fmt.Errorf("allocate identity: %w", err)
		}
		if _, dup := seen[identity.ID]; dup {
			break
		}
		seen[identity.ID] = struct{}{}
		if err := s.repo.TouchIdentity(ctx, identity.ID, s.clock.Now()); err != nil {
			return nil, fmt.Errorf("touch identity %d: %w", identity.ID, err)
		}
		out = append(out, identity)
	}
	return out, nil
}

// runIdentity processes one identity's batch sequentially: the
// human-behavior constraint forbids one identity acting in two places at
// once.
func (s *Scheduler) runIdentity(ctx context.Context, identity crawl.CrawlerIdentity, opts Options, remaining *atomic.Int64) Report {
	log := s.logger.With(zap.Int64("identity_id", identity.ID), zap.String("identity", identity.Username))

	metrics.IdentityStarted()
	defer metrics.IdentityFinished()

	runner, closeRunner, err := s.factory(ctx, identity)
	if err != nil {
		if errors.Is(err, crawl.ErrIdentityRejected) {
			log.Warn("identity rejected at login; marking dead", zap.Error(err))
			if markErr := s.repo.MarkIdentityDead(ctx, identity.ID); markErr != nil {
				log.Error("mark identity dead", zap.Error(markErr))
			}
		} else {
			log.Error("session runner init failed", zap.Error(err))
		}
		return Report{}
	}
	defer closeRunner()

	targets, err := s.repo.NextTargets(ctx, identity.ID, opts.MaxTargets, opts.Recrawl)
	if err != nil {
		log.Error("load target batch", zap.Error(err))
		return Report{}
	}
	log.Info("target batch loaded", zap.Int("targets", len(targets)))

	var batch Report
	for _, target := range targets {
		if ctx.Err() != nil {
			break
		}
		if remaining.Add(-1) < 0 {
			log.Info("crawl budget exhausted")
			break
		}
		if err := s.repo.AssignTarget(ctx, target.ID, identity.ID); err != nil {
			if errors.Is(err, crawl.ErrTargetClaimed) {
				log.Debug("target claimed by another identity", zap.Int64("target_id", target.ID))
				remaining.Add(1)
				continue
			}
			log.Error("assign target", zap.Int64("target_id", target.ID), zap.Error(err))
			continue
		}

		res := runner.Run(ctx, identity, target)
		batch.TargetsProcessed++
		s.recordOutcome(&batch, res)
		s.settleTarget(ctx, log, target, res)
		s.publish(ctx, log, identity, target, res)

		if res.Reason == session.AbortChallenge {
			// The platform is suspicious of this identity right now;
			// pushing more targets through it would only dig the hole
			// deeper. The untouched targets stay due for a later run.
			log.Warn("challenge encountered; ending this identity's batch")
			break
		}
	}

	if err := s.repo.TouchIdentity(ctx, identity.ID, s.clock.Now()); err != nil {
		log.Error("touch identity", zap.Error(err))
	}
	return batch
}

// settleTarget advances last_crawled_at on terminal outcomes only, so
// retryable failures leave the target due for a future run.
func (s *Scheduler) settleTarget(ctx context.Context, log *zap.Logger, target crawl.TargetAccount, res session.Result) {
	if !res.Terminal() {
		return
	}
	if err := s.repo.TouchTarget(ctx, target.ID, s.clock.Now()); err != nil {
		log.Error("touch target", zap.Int64("target_id", target.ID), zap.Error(err))
	}
}

func (s *Scheduler) recordOutcome(batch *Report, res session.Result) {
	batch.HeavySaved += res.HeavySaved
	batch.LightSaved += res.LightSaved
	switch {
	case res.State == session.StateDone:
		batch.Done++
	case res.Reason == session.AbortAccountRemoved:
		batch.Removed++
	case res.Reason == session.AbortEmptyContent:
		batch.Empty++
	default:
		batch.Retryable++
	}
}

func (s *Scheduler) publish(ctx context.Context, log *zap.Logger, identity crawl.CrawlerIdentity, target crawl.TargetAccount, res session.Result) {
	if s.publisher == nil {
		return
	}
	summary := crawl.SessionSummary{
		IdentityID:   identity.ID,
		TargetID:     target.ID,
		Target:       target.Username,
		Outcome:      res.Outcome(),
		HeavySaved:   res.HeavySaved,
		LightSaved:   res.LightSaved,
		FinishedAt:   s.clock.Now(),
		SessionRunID: res.RunID,
	}
	if _, err := s.publisher.Publish(ctx, s.topic, summary); err != nil {
		log.Warn("publish session summary", zap.Error(err))
	}
}
