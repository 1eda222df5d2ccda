package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutObject_RoundTrip(t *testing.T) {
	t.Parallel()

	store := New()
	uri, err := store.PutObject(context.Background(), "pub/run-1/empty_content.html", "text/html", []byte("<html/>"))
	require.NoError(t, err)
	require.Equal(t, "memory://pub/run-1/empty_content.html", uri)

	got, ok := store.Object("pub/run-1/empty_content.html")
	require.True(t, ok)
	require.Equal(t, []byte("<html/>"), got)

	_, ok = store.Object("missing")
	require.False(t, ok)
}
