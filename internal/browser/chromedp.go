// Package browser implements the Browser port with chromedp. One Driver
// owns one headless Chrome and one tab, because navigation state must
// persist across calls: the session ritual depends on staying on the
// screen the last action produced.
package browser

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/trendlens/tiktok-crawler/internal/crawl"
	"github.com/trendlens/tiktok-crawler/internal/extract"
)

// Config controls a Driver instance.
type Config struct {
	Headless      bool
	UserAgent     string
	Proxy         string // per-identity egress, empty for direct
	LoginURL      string
	ActionTimeout time.Duration
	LoginTimeout  time.Duration
	NavQPS        float64
	ThinkMin      time.Duration
	ThinkMax      time.Duration
}

// Driver drives one Chrome instance for one crawler identity.
type Driver struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	logger        *zap.Logger
	limiter       *rate.Limiter
	cfg           Config
}

// New launches Chrome with the identity's proxy and the stealth-leaning
// flags the platform tolerates, then warms up the tab.
func New(cfg Config, logger *zap.Logger) (*Driver, error) {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 15 * time.Second
	}
	if cfg.LoginTimeout <= 0 {
		cfg.LoginTimeout = 60 * time.Second
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("start-maximized", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(cfg.Proxy))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	warmup := chromedp.Tasks{
		chromedp.ActionFunc(func(ctx context.Context) error {
			// Mask the webdriver flag before any page script runs.
			_, err := page.AddScriptToEvaluateOnNewDocument(
				`Object.defineProperty(navigator, 'webdriver', {get: () => undefined})`,
			).Do(ctx)
			return err
		}),
	}
	if cfg.UserAgent != "" {
		warmup = append(warmup, emulation.SetUserAgentOverride(cfg.UserAgent))
	}
	if err := chromedp.Run(browserCtx, warmup); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.NavQPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.NavQPS), 1)
	}
	return &Driver{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		logger:        logger,
		limiter:       limiter,
		cfg:           cfg,
	}, nil
}

// Close tears down the tab and the Chrome process.
func (d *Driver) Close() {
	if d == nil {
		return
	}
	d.browserCancel()
	d.allocCancel()
}

// Navigate loads a URL directly.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := d.pace(ctx); err != nil {
		return err
	}
	if err := d.run(ctx, d.cfg.ActionTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Click clicks the first visible node matching the locator.
func (d *Driver) Click(ctx context.Context, locator string) error {
	if err := d.think(ctx); err != nil {
		return err
	}
	if err := d.run(ctx, d.cfg.ActionTimeout, chromedp.Click(locator, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %q: %w", locator, err)
	}
	return nil
}

// Scroll moves the viewport to the bottom of the document.
func (d *Driver) Scroll(ctx context.Context) error {
	if err := d.think(ctx); err != nil {
		return err
	}
	err := d.run(ctx, d.cfg.ActionTimeout,
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil))
	if err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

// WaitFor blocks until the locator is present or the timeout elapses. A
// timeout is a normal answer (false, nil); only driver failures error.
func (d *Driver) WaitFor(ctx context.Context, locator string, timeout time.Duration) (bool, error) {
	err := d.run(ctx, timeout, chromedp.WaitReady(locator, chromedp.ByQuery))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return false, nil
	default:
		return false, fmt.Errorf("wait for %q: %w", locator, err)
	}
}

// Extract returns the outer HTML of every node matching the locator.
func (d *Driver) Extract(ctx context.Context, locator string) ([]string, error) {
	var fragments []string
	js := fmt.Sprintf(
		`Array.from(document.querySelectorAll(%q)).map(el => el.outerHTML)`, locator)
	if err := d.run(ctx, d.cfg.ActionTimeout, chromedp.Evaluate(js, &fragments)); err != nil {
		return nil, fmt.Errorf("extract %q: %w", locator, err)
	}
	return fragments, nil
}

// Login performs the email/password ritual and waits for the profile icon
// that marks a signed-in session.
func (d *Driver) Login(ctx context.Context, username, password string) error {
	if d.cfg.LoginURL == "" {
		return fmt.Errorf("login url is not configured")
	}
	if err := d.Navigate(ctx, d.cfg.LoginURL); err != nil {
		return err
	}

	steps := []struct {
		name string
		act  chromedp.Action
	}{
		{"wait username field", chromedp.WaitVisible(extract.SelLoginUser, chromedp.ByQuery)},
		{"enter username", chromedp.SendKeys(extract.SelLoginUser, username, chromedp.ByQuery)},
		{"enter password", chromedp.SendKeys(extract.SelLoginPass, password, chromedp.ByQuery)},
		{"submit", chromedp.Click(extract.SelLoginSubmit, chromedp.ByQuery)},
	}
	for _, step := range steps {
		if err := d.think(ctx); err != nil {
			return err
		}
		if err := d.run(ctx, d.cfg.ActionTimeout, step.act); err != nil {
			return fmt.Errorf("login %s: %w", step.name, err)
		}
	}

	ok, err := d.WaitFor(ctx, extract.SelProfileIcon, d.cfg.LoginTimeout)
	if err != nil {
		return err
	}
	if !ok {
		// Distinguish an outright refusal from a login that is merely slow
		// or stuck; only the former should retire the identity.
		if msgs, exErr := d.Extract(ctx, extract.SelLoginError); exErr == nil && len(msgs) > 0 {
			return fmt.Errorf("login refused: %w", crawl.ErrIdentityRejected)
		}
		return fmt.Errorf("login: signed-in marker never appeared")
	}
	d.logger.Info("identity signed in", zap.String("username", username))
	return nil
}

// run executes one chromedp action against the persistent tab, bounded by
// a timeout and canceled if the caller's context dies first.
func (d *Driver) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	taskCtx, cancel := context.WithTimeout(d.browserCtx, timeout)
	defer cancel()

	stop := forwardCancel(ctx, cancel)
	defer stop()

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// pace applies the per-identity QPS budget, then a think pause.
func (d *Driver) pace(ctx context.Context) error {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("navigation rate limit: %w", err)
		}
	}
	return d.think(ctx)
}

// think sleeps a uniformly random human-like interval between actions.
func (d *Driver) think(ctx context.Context) error {
	if d.cfg.ThinkMax <= 0 || d.cfg.ThinkMax < d.cfg.ThinkMin {
		return nil
	}
	delay := d.cfg.ThinkMin
	if span := d.cfg.ThinkMax - d.cfg.ThinkMin; span > 0 {
		delay += time.Duration(rand.Int64N(int64(span)))
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
