package nav

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trendlens/tiktok-crawler/internal/extract"
)

// fakeBrowser records actions and answers WaitFor from a script.
type fakeBrowser struct {
	actions   []string
	navigated []string
	clicked   []string
	missing   map[string]bool // locators that never appear
	waitErr   error
	actionErr error
}

func (f *fakeBrowser) Navigate(_ context.Context, url string) error {
	f.actions = append(f.actions, "navigate")
	f.navigated = append(f.navigated, url)
	return f.actionErr
}

func (f *fakeBrowser) Click(_ context.Context, locator string) error {
	f.actions = append(f.actions, "click")
	f.clicked = append(f.clicked, locator)
	return f.actionErr
}

func (f *fakeBrowser) Scroll(context.Context) error {
	f.actions = append(f.actions, "scroll")
	return nil
}

func (f *fakeBrowser) WaitFor(_ context.Context, locator string, _ time.Duration) (bool, error) {
	if f.waitErr != nil {
		return false, f.waitErr
	}
	return !f.missing[locator], nil
}

func (f *fakeBrowser) Extract(context.Context, string) ([]string, error) { return nil, nil }

func (f *fakeBrowser) Login(context.Context, string, string) error { return nil }

func newMachine(b *fakeBrowser) *Machine {
	return New(b, "https://www.tiktok.com", 50*time.Millisecond, zap.NewNop())
}

func TestFullRitualTransitions(t *testing.T) {
	t.Parallel()

	b := &fakeBrowser{}
	m := newMachine(b)
	ctx := context.Background()

	require.Equal(t, ScreenAny, m.Current())

	require.NoError(t, m.ToProfile(ctx, "dancer"))
	require.Equal(t, ScreenProfile, m.Current())
	require.Equal(t, []string{"https://www.tiktok.com/@dancer"}, b.navigated)

	require.NoError(t, m.ToVideo(ctx))
	require.Equal(t, ScreenVideo, m.Current())
	require.Equal(t, extract.SelNewestVideo, b.clicked[0])

	require.NoError(t, m.ToCreatorFeed(ctx))
	require.Equal(t, ScreenVideoFeed, m.Current())

	require.NoError(t, m.CloseVideo(ctx))
	require.Equal(t, ScreenProfile, m.Current())
	require.Equal(t, extract.SelVideoClose, b.clicked[2])
}

func TestCloseFromVideoWithoutFeed(t *testing.T) {
	t.Parallel()

	b := &fakeBrowser{}
	m := newMachine(b)
	ctx := context.Background()

	require.NoError(t, m.ToProfile(ctx, "dancer"))
	require.NoError(t, m.ToVideo(ctx))
	require.NoError(t, m.CloseVideo(ctx))
	require.Equal(t, ScreenProfile, m.Current())
}

func TestIllegalTransitionsRejected(t *testing.T) {
	t.Parallel()

	b := &fakeBrowser{}
	m := newMachine(b)
	ctx := context.Background()

	var illegal *IllegalTransitionError
	require.ErrorAs(t, m.ToVideo(ctx), &illegal)
	require.ErrorAs(t, m.ToCreatorFeed(ctx), &illegal)
	require.ErrorAs(t, m.CloseVideo(ctx), &illegal)
	require.Empty(t, b.actions, "illegal transitions must not touch the browser")
}

func TestStuckTransitionFallsBackToAny(t *testing.T) {
	t.Parallel()

	b := &fakeBrowser{missing: map[string]bool{extract.SelVideoTitle: true}}
	m := newMachine(b)
	ctx := context.Background()

	require.NoError(t, m.ToProfile(ctx, "dancer"))

	err := m.ToVideo(ctx)
	var stuck *StuckError
	require.ErrorAs(t, err, &stuck)
	require.Equal(t, ScreenProfile, stuck.From)
	require.Equal(t, ScreenVideo, stuck.To)
	require.Equal(t, ScreenAny, m.Current())

	// Re-entry by direct navigation is always legal.
	require.NoError(t, m.ToProfile(ctx, "dancer"))
	require.Equal(t, ScreenProfile, m.Current())
}

func TestDriverErrorResetsState(t *testing.T) {
	t.Parallel()

	b := &fakeBrowser{}
	m := newMachine(b)
	ctx := context.Background()
	require.NoError(t, m.ToProfile(ctx, "dancer"))

	b.actionErr = errors.New("tab crashed")
	err := m.ToVideo(ctx)
	require.Error(t, err)
	var stuck *StuckError
	require.False(t, errors.As(err, &stuck), "driver failures are not stuck conditions")
	require.Equal(t, ScreenAny, m.Current())
}
