// Package postgres implements the Repository port on a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trendlens/tiktok-crawler/internal/crawl"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Repository stores identities, targets and snapshot records in Postgres.
// Schema: crawler_accounts, target_accounts, video_snapshots (full-detail,
// append-only), listing_snapshots (reduced-detail, append-only).
type Repository struct {
	pool pgxPool
}

// New connects a pool from the config.
func New(ctx context.Context, cfg Config) (*Repository, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Repository{pool: pool}, nil
}

// NewWithPool constructs a Repository from an existing pool (primarily for
// testing).
func NewWithPool(pool pgxPool) (*Repository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Repository{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (r *Repository) Close() {
	if r == nil || r.pool == nil {
		return
	}
	r.pool.Close()
}

const identityColumns = `id, username, password, proxy, alive, last_used_at`

// NextIdentity returns the requested identity when alive, otherwise the
// least recently used alive one.
func (r *Repository) NextIdentity(ctx context.Context, requestedID *int64) (crawl.CrawlerIdentity, error) {
	var row pgx.Row
	if requestedID != nil {
		row = r.pool.QueryRow(ctx, `
SELECT `+identityColumns+`
FROM crawler_accounts
WHERE id = $1 AND alive`, *requestedID)
	} else {
		row = r.pool.QueryRow(ctx, `
SELECT `+identityColumns+`
FROM crawler_accounts
WHERE alive
ORDER BY last_used_at ASC NULLS FIRST, id
LIMIT 1`)
	}

	var id crawl.CrawlerIdentity
	err := row.Scan(&id.ID, &id.Username, &id.Password, &id.Proxy, &id.Alive, &id.LastUsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawl.CrawlerIdentity{}, crawl.ErrNoIdentity
	}
	if err != nil {
		return crawl.CrawlerIdentity{}, fmt.Errorf("select identity: %w", err)
	}
	return id, nil
}

// NextTargets returns the identity's due batch: its own assigned targets
// first, then unassigned ones, never-crawled before crawled, by descending
// priority and least recently crawled.
func (r *Repository) NextTargets(ctx context.Context, identityID int64, max int, recrawl bool) ([]crawl.TargetAccount, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, username, assigned_identity_id, alive, priority, last_crawled_at
FROM target_accounts
WHERE alive
  AND (assigned_identity_id IS NULL OR assigned_identity_id = $1)
  AND ($2 OR last_crawled_at IS NULL)
ORDER BY
  COALESCE(assigned_identity_id = $1, false) DESC,
  (last_crawled_at IS NULL) DESC,
  priority DESC,
  last_crawled_at ASC NULLS FIRST,
  id
LIMIT $3`, identityID, recrawl, max)
	if err != nil {
		return nil, fmt.Errorf("select targets: %w", err)
	}
	defer rows.Close()

	var out []crawl.TargetAccount
	for rows.Next() {
		var t crawl.TargetAccount
		if err := rows.Scan(&t.ID, &t.Username, &t.AssignedIdentityID, &t.Alive, &t.Priority, &t.LastCrawledAt); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate targets: %w", err)
	}
	return out, nil
}

// SaveHeavy appends one full-detail snapshot. Raw display text is stored
// beside each parsed value; a null value with non-empty text records a
// parse the normalizer could not make.
func (r *Repository) SaveHeavy(ctx context.Context, rec crawl.HeavyRecord) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO video_snapshots (
	video_id, url, author_username, author_nickname, title, thumbnail_url,
	posted_at_text, posted_at,
	play_count_text, play_count,
	like_count_text, like_count,
	comment_count_text, comment_count,
	collect_count_text, collect_count,
	share_count_text, share_count,
	audio_title, audio_author, crawled_at, method
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22
)`,
		rec.VideoID, rec.URL, rec.AuthorUsername, rec.AuthorNickname, rec.Title, rec.ThumbnailURL,
		rec.PostedAt.Text, rec.PostedAt.Value,
		rec.PlayCount.Text, rec.PlayCount.Value,
		rec.LikeCount.Text, rec.LikeCount.Value,
		rec.CommentCount.Text, rec.CommentCount.Value,
		rec.CollectCount.Text, rec.CollectCount.Value,
		rec.ShareCount.Text, rec.ShareCount.Value,
		rec.AudioTitle, rec.AudioAuthor, rec.CrawledAt, string(rec.Method),
	)
	if err != nil {
		return fmt.Errorf("insert video snapshot: %w", err)
	}
	return nil
}

// SaveLight appends one reduced-detail snapshot.
func (r *Repository) SaveLight(ctx context.Context, rec crawl.LightRecord) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO listing_snapshots (
	video_url, thumbnail_url, alt_text,
	like_count_text, like_count,
	play_count_text, play_count,
	crawled_at, method
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		rec.VideoURL, rec.ThumbnailURL, rec.AltText,
		rec.LikeCount.Text, rec.LikeCount.Value,
		rec.PlayCount.Text, rec.PlayCount.Value,
		rec.CrawledAt, string(rec.Method),
	)
	if err != nil {
		return fmt.Errorf("insert listing snapshot: %w", err)
	}
	return nil
}

// MarkTargetDead clears the target's liveness flag; the row itself stays.
func (r *Repository) MarkTargetDead(ctx context.Context, targetID int64) error {
	if _, err := r.pool.Exec(ctx, `
UPDATE target_accounts SET alive = false WHERE id = $1`, targetID); err != nil {
		return fmt.Errorf("mark target dead: %w", err)
	}
	return nil
}

// TouchTarget advances last_crawled_at. The WHERE guard makes it
// monotonic; a stale timestamp simply matches zero rows.
func (r *Repository) TouchTarget(ctx context.Context, targetID int64, ts time.Time) error {
	if _, err := r.pool.Exec(ctx, `
UPDATE target_accounts
SET last_crawled_at = $2
WHERE id = $1 AND (last_crawled_at IS NULL OR last_crawled_at < $2)`, targetID, ts); err != nil {
		return fmt.Errorf("touch target: %w", err)
	}
	return nil
}

// AssignTarget claims the target atomically: the WHERE guard loses against
// a concurrent claim by another identity.
func (r *Repository) AssignTarget(ctx context.Context, targetID, identityID int64) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE target_accounts
SET assigned_identity_id = $2
WHERE id = $1 AND (assigned_identity_id IS NULL OR assigned_identity_id = $2)`, targetID, identityID)
	if err != nil {
		return fmt.Errorf("assign target: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crawl.ErrTargetClaimed
	}
	return nil
}

// MarkIdentityDead clears the identity's liveness flag; the row itself stays.
func (r *Repository) MarkIdentityDead(ctx context.Context, identityID int64) error {
	if _, err := r.pool.Exec(ctx, `
UPDATE crawler_accounts SET alive = false WHERE id = $1`, identityID); err != nil {
		return fmt.Errorf("mark identity dead: %w", err)
	}
	return nil
}

// TouchIdentity advances the identity's last-used timestamp, monotonic
// like TouchTarget.
func (r *Repository) TouchIdentity(ctx context.Context, identityID int64, ts time.Time) error {
	if _, err := r.pool.Exec(ctx, `
UPDATE crawler_accounts
SET last_used_at = $2
WHERE id = $1 AND (last_used_at IS NULL OR last_used_at < $2)`, identityID, ts); err != nil {
		return fmt.Errorf("touch identity: %w", err)
	}
	return nil
}
