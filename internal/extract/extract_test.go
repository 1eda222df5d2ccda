package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var capturedAt = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

const listingItemHTML = `
<div data-e2e="user-post-item">
  <a href="https://www.tiktok.com/@dancer/video/7301">
    <img src="https://cdn.example/7301.jpg" alt="rooftop dance">
  </a>
  <strong data-e2e="like-count">10.2K</strong>
</div>`

const feedItemHTML = `
<div data-e2e="creator-feed-item">
  <img src="https://cdn.example/7301.jpg">
  <span data-e2e="video-views">1.5M</span>
</div>`

const videoPageHTML = `
<html><body>
  <div data-e2e="browse-container">
    <video poster="https://cdn.example/7301.jpg"></video>
    <h1 data-e2e="video-title">sunset routine #dance</h1>
    <span data-e2e="browser-nickname">dancer</span><span>3-24</span>
    <span data-e2e="user-title">Dancer Official</span>
    <strong data-e2e="like-count">887K</strong>
    <strong data-e2e="comment-count">2,431</strong>
    <strong data-e2e="collect-count">12.1K</strong>
    <strong data-e2e="share-count">??</strong>
    <a data-e2e="browse-music">city nights - DJ Sora</a>
  </div>
</body></html>`

func TestFrontFragments(t *testing.T) {
	t.Parallel()

	got := FrontFragments([]string{listingItemHTML, `<div data-e2e="user-post-item"></div>`})
	require.Len(t, got, 1, "items without a thumbnail have no join key")
	require.Equal(t, "https://www.tiktok.com/@dancer/video/7301", got[0].VideoURL)
	require.Equal(t, "https://cdn.example/7301.jpg", got[0].ThumbnailURL)
	require.Equal(t, "rooftop dance", got[0].AltText)
	require.Equal(t, "10.2K", got[0].LikeCountText)
}

func TestBackFragments(t *testing.T) {
	t.Parallel()

	got := BackFragments([]string{feedItemHTML})
	require.Len(t, got, 1)
	require.Equal(t, "https://cdn.example/7301.jpg", got[0].ThumbnailURL)
	require.Equal(t, "1.5M", got[0].PlayCountText)
}

func TestHeavy(t *testing.T) {
	t.Parallel()

	rec, err := Heavy(videoPageHTML, "https://www.tiktok.com/@dancer/video/7301", capturedAt)
	require.NoError(t, err)

	require.Equal(t, "7301", rec.VideoID)
	require.Equal(t, "dancer", rec.AuthorUsername)
	require.Equal(t, "Dancer Official", rec.AuthorNickname)
	require.Equal(t, "sunset routine #dance", rec.Title)
	require.Equal(t, "https://cdn.example/7301.jpg", rec.ThumbnailURL)

	require.Equal(t, "3-24", rec.PostedAt.Text)
	require.NotNil(t, rec.PostedAt.Value)
	require.Equal(t, time.Date(2025, 3, 24, 0, 0, 0, 0, time.UTC), *rec.PostedAt.Value)

	require.Equal(t, int64(887000), *rec.LikeCount.Value)
	require.Equal(t, int64(2431), *rec.CommentCount.Value)
	require.Equal(t, int64(12100), *rec.CollectCount.Value)

	// Raw text survives a parse failure.
	require.Nil(t, rec.ShareCount.Value)
	require.Equal(t, "??", rec.ShareCount.Text)

	// Play count is absent on this navigation path.
	require.Nil(t, rec.PlayCount.Value)
	require.Empty(t, rec.PlayCount.Text)

	require.Equal(t, "city nights", rec.AudioTitle)
	require.Equal(t, "DJ Sora", rec.AudioAuthor)
}

func TestHeavy_NoDetail(t *testing.T) {
	t.Parallel()

	_, err := Heavy("<html><body><div>loading</div></body></html>", "https://x/video/1", capturedAt)
	require.Error(t, err)
}

func TestVideoID(t *testing.T) {
	t.Parallel()

	require.Equal(t, "7301", VideoID("https://www.tiktok.com/@dancer/video/7301"))
	require.Equal(t, "7301", VideoID("https://www.tiktok.com/@dancer/video/7301?lang=en"))
	require.Equal(t, "7301", VideoID("https://www.tiktok.com/@dancer/video/7301/"))
}
