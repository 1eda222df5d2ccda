package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublish_RecordsInOrder(t *testing.T) {
	t.Parallel()

	p := New()
	id1, err := p.Publish(context.Background(), "crawl-sessions", "first")
	require.NoError(t, err)
	id2, err := p.Publish(context.Background(), "crawl-sessions", "second")
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	msgs := p.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "first", msgs[0].Payload)
	require.Equal(t, "second", msgs[1].Payload)
}
