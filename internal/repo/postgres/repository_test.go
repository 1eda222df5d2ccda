package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/trendlens/tiktok-crawler/internal/crawl"
)

func newMockRepo(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	repo, err := NewWithPool(mock)
	require.NoError(t, err)
	return repo, mock
}

func TestNextIdentity_Requested(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	lastUsed := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("FROM crawler_accounts").
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "password", "proxy", "alive", "last_used_at"}).
			AddRow(int64(5), "crawler-a", "secret", "", true, &lastUsed))

	got, err := repo.NextIdentity(context.Background(), ptr(int64(5)))
	require.NoError(t, err)
	require.Equal(t, int64(5), got.ID)
	require.Equal(t, "crawler-a", got.Username)
	require.NotNil(t, got.LastUsedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNextIdentity_NoneAvailable(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)

	mock.ExpectQuery("FROM crawler_accounts").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.NextIdentity(context.Background(), nil)
	require.ErrorIs(t, err, crawl.ErrNoIdentity)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNextTargets_ScansBatch(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	identityID := int64(1)

	mock.ExpectQuery("FROM target_accounts").
		WithArgs(identityID, true, 10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "assigned_identity_id", "alive", "priority", "last_crawled_at"}).
			AddRow(int64(2), "t1", &identityID, true, 9, (*time.Time)(nil)).
			AddRow(int64(3), "t2", (*int64)(nil), true, 1, (*time.Time)(nil)))

	got, err := repo.NextTargets(context.Background(), identityID, 10, true)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "t1", got[0].Username)
	require.Equal(t, identityID, *got[0].AssignedIdentityID)
	require.Nil(t, got[1].AssignedIdentityID)
	require.Nil(t, got[1].LastCrawledAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveLight_InsertsRow(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	now := time.Unix(1700000000, 0).UTC()
	likes := int64(1200)

	rec := crawl.LightRecord{
		VideoURL:     "https://www.tiktok.com/@pub/video/111",
		ThumbnailURL: "https://cdn/t1.jpg",
		AltText:      "first clip",
		LikeCount:    crawl.Count{Text: "1.2K", Value: &likes},
		PlayCount:    crawl.Count{Text: "??"},
		CrawledAt:    now,
		Method:       crawl.ProvenanceListingMerge,
	}

	mock.ExpectExec("INSERT INTO listing_snapshots").
		WithArgs(
			rec.VideoURL, rec.ThumbnailURL, rec.AltText,
			rec.LikeCount.Text, rec.LikeCount.Value,
			rec.PlayCount.Text, rec.PlayCount.Value,
			rec.CrawledAt, string(rec.Method),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.SaveLight(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveHeavy_InsertsRow(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	now := time.Unix(1700000000, 0).UTC()
	plays := int64(52300)

	rec := crawl.HeavyRecord{
		VideoID:        "111",
		URL:            "https://www.tiktok.com/@pub/video/111",
		AuthorUsername: "pub",
		Title:          "first clip",
		PostedAt:       crawl.Timestamp{Text: "3-24"},
		PlayCount:      crawl.Count{Text: "52.3K", Value: &plays},
		CrawledAt:      now,
		Method:         crawl.ProvenanceVideoPage,
	}

	anyArgs := make([]interface{}, 22)
	for i := range anyArgs {
		anyArgs[i] = pgxmock.AnyArg()
	}
	mock.ExpectExec("INSERT INTO video_snapshots").
		WithArgs(anyArgs...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.SaveHeavy(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTouchTarget_StaleTimestampIsQuiet(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	ts := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("UPDATE target_accounts").
		WithArgs(int64(1), ts).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, repo.TouchTarget(context.Background(), 1, ts),
		"a stale timestamp matches zero rows and is not an error")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignTarget_LostClaim(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE target_accounts").
		WithArgs(int64(1), int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.AssignTarget(context.Background(), 1, 7)
	require.ErrorIs(t, err, crawl.ErrTargetClaimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkIdentityDead(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE crawler_accounts").
		WithArgs(int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.MarkIdentityDead(context.Background(), 3))
	require.NoError(t, mock.ExpectationsWereMet())
}

func ptr[T any](v T) *T { return &v }
