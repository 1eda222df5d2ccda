// Package extract parses DOM fragments pulled from the platform's screens
// into record fields.
package extract

// CSS selectors for the platform UI. The platform tags elements with
// data-e2e attributes which are far more stable than its generated class
// names; everything here keys off those.
const (
	// Profile (publisher) page.
	SelProfilePage  = `[data-e2e="user-page"]`
	SelListingItem  = `[data-e2e="user-post-item"]`
	SelListingLike  = `[data-e2e="like-count"]`
	SelNewestVideo  = `[data-e2e="user-post-item"] a`
	SelProfileError = `[data-e2e="user-page-error"]`

	// Video detail page.
	SelVideoTitle   = `[data-e2e="video-title"]`
	SelVideoDesc    = `[data-e2e="browser-nickname"] + span`
	SelAuthorUser   = `[data-e2e="browser-nickname"]`
	SelAuthorNick   = `[data-e2e="user-title"]`
	SelLikeCount    = `[data-e2e="like-count"]`
	SelCommentCount = `[data-e2e="comment-count"]`
	SelCollectCount = `[data-e2e="collect-count"]`
	SelShareCount   = `[data-e2e="share-count"]`
	SelVideoViews   = `[data-e2e="video-views"]`
	SelAudioLink    = `[data-e2e="browse-music"]`
	SelVideoClose   = `[data-e2e="browse-close"]`

	// Creator feed rail on the video page.
	SelCreatorTab  = `[data-e2e="creator-videos"]`
	SelFeedItem    = `[data-e2e="creator-feed-item"]`
	SelFeedViews   = `[data-e2e="video-views"]`
	SelProfileIcon = `[data-e2e="profile-icon"]`

	// Login form.
	SelLoginUser   = `input[name="username"]`
	SelLoginPass   = `input[type="password"]`
	SelLoginSubmit = `button[type="submit"]`
	SelLoginError  = `[data-e2e="login-error"]`

	// Challenge interstitial.
	SelChallenge = `#captcha_container, [data-e2e="challenge-page"]`
)
