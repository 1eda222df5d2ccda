package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestThinkBounds(t *testing.T) {
	t.Parallel()

	d := &Driver{
		logger: zap.NewNop(),
		cfg: Config{
			ThinkMin: time.Millisecond,
			ThinkMax: 5 * time.Millisecond,
		},
	}
	start := time.Now()
	require.NoError(t, d.think(context.Background()))
	require.GreaterOrEqual(t, time.Since(start), time.Millisecond)
}

func TestThinkDisabled(t *testing.T) {
	t.Parallel()

	d := &Driver{logger: zap.NewNop()}
	start := time.Now()
	require.NoError(t, d.think(context.Background()))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestThinkHonorsCancel(t *testing.T) {
	t.Parallel()

	d := &Driver{
		logger: zap.NewNop(),
		cfg: Config{
			ThinkMin: time.Minute,
			ThinkMax: 2 * time.Minute,
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, d.think(ctx), context.Canceled)
}

func TestForwardCancelStops(t *testing.T) {
	t.Parallel()

	parent, parentCancel := context.WithCancel(context.Background())
	defer parentCancel()

	child, childCancel := context.WithCancel(context.Background())
	defer childCancel()

	stop := forwardCancel(parent, childCancel)
	stop()
	parentCancel()

	select {
	case <-child.Done():
		t.Fatal("child canceled after stop was called")
	case <-time.After(20 * time.Millisecond):
	}
}
