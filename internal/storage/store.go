package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type Band struct {
	ID           string
	Name         string
	School       string
	ChannelID    string
	Featured     bool
	LastSyncedAt *time.Time
}

type StagedVideo struct {
	ID          string
	YouTubeID   string
	BandID      string // empty until matched
	Title       string
	Description string
	PublishedAt time.Time
	ViewCount   int64
	Promoted    bool
}

type PublicVideo struct {
	YouTubeID   string
	BandID      string
	Title       string
	Description string
	Category    string
	PublishedAt time.Time
	ViewCount   int64
}

type BandStats struct {
	ViewsToday    int64
	ViewsWeek     int64
	ViewsMonth    int64
	RecentUploads int64
	Likes         int64
	Comments      int64
}

type BandMetrics struct {
	BandID        string
	Stats         BandStats
	TrendingScore float64
	Trend         string
	Rank          int
}

type Store struct{ db *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{db} }

func (s *Store) FeaturedBandIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `select id from bands where featured and active`)
	if err != nil {
		return nil, errors.Wrap(err, "featured bands")
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) ActiveBands(ctx context.Context) ([]Band, error) {
	rows, err := s.db.Query(ctx, `
select id, name, school, channel_id, featured, last_synced_at
  from bands where active order by name`)
	if err != nil {
		return nil, errors.Wrap(err, "active bands")
	}
	defer rows.Close()
	var out []Band
	for rows.Next() {
		var b Band
		if err := rows.Scan(&b.ID, &b.Name, &b.School, &b.ChannelID, &b.Featured, &b.LastSyncedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) BandByID(ctx context.Context, id string) (Band, error) {
	var b Band
	err := s.db.QueryRow(ctx, `
select id, name, school, channel_id, featured, last_synced_at
  from bands where id = $1`, id).
		Scan(&b.ID, &b.Name, &b.School, &b.ChannelID, &b.Featured, &b.LastSyncedAt)
	if err == pgx.ErrNoRows {
		return b, errors.Errorf("band %s not found", id)
	}
	return b, errors.Wrap(err, "band by id")
}

// StageVideos inserts newly discovered videos into the staging table.
// Re-discovered videos (same youtube_id) are ignored, which is what makes
// repeated syncs of the same channel idempotent.
func (s *Store) StageVideos(ctx context.Context, bandID string, vids []StagedVideo) (int, error) {
	staged := 0
	for _, v := range vids {
		tag, err := s.db.Exec(ctx, `
insert into staged_videos (youtube_id, band_id, title, description, published_at, view_count)
values ($1, nullif($2,''), $3, $4, $5, $6)
on conflict (youtube_id) do nothing`,
			v.YouTubeID, bandID, v.Title, v.Description, v.PublishedAt, v.ViewCount)
		if err != nil {
			return staged, errors.Wrap(err, "stage video")
		}
		staged += int(tag.RowsAffected())
	}
	return staged, nil
}

func (s *Store) MarkBandSynced(ctx context.Context, bandID string, at time.Time) error {
	_, err := s.db.Exec(ctx, `update bands set last_synced_at = $2 where id = $1`, bandID, at)
	return errors.Wrap(err, "mark band synced")
}

func (s *Store) RecordSyncRun(ctx context.Context, bandID, mode string, staged int) error {
	_, err := s.db.Exec(ctx, `
insert into sync_runs (band_id, mode, videos_staged) values ($1, $2, $3)`, bandID, mode, staged)
	return errors.Wrap(err, "record sync run")
}

func (s *Store) StagedUnpromoted(ctx context.Context, limit int) ([]StagedVideo, error) {
	rows, err := s.db.Query(ctx, `
select id, youtube_id, coalesce(band_id, ''), title, coalesce(description, ''), published_at, view_count, promoted
  from staged_videos
 where not promoted and band_id is not null
 order by published_at
 limit $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "staged unpromoted")
	}
	defer rows.Close()
	return scanStaged(rows)
}

func (s *Store) UnmatchedStaged(ctx context.Context, limit int) ([]StagedVideo, error) {
	rows, err := s.db.Query(ctx, `
select id, youtube_id, coalesce(band_id, ''), title, coalesce(description, ''), published_at, view_count, promoted
  from staged_videos
 where band_id is null
 order by published_at
 limit $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "unmatched staged")
	}
	defer rows.Close()
	return scanStaged(rows)
}

func scanStaged(rows pgx.Rows) ([]StagedVideo, error) {
	var out []StagedVideo
	for rows.Next() {
		var v StagedVideo
		if err := rows.Scan(&v.ID, &v.YouTubeID, &v.BandID, &v.Title, &v.Description, &v.PublishedAt, &v.ViewCount, &v.Promoted); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) StagedByYouTubeID(ctx context.Context, youtubeID string) (StagedVideo, bool, error) {
	var v StagedVideo
	err := s.db.QueryRow(ctx, `
select id, youtube_id, coalesce(band_id, ''), title, coalesce(description, ''), published_at, view_count, promoted
  from staged_videos where youtube_id = $1`, youtubeID).
		Scan(&v.ID, &v.YouTubeID, &v.BandID, &v.Title, &v.Description, &v.PublishedAt, &v.ViewCount, &v.Promoted)
	if err == pgx.ErrNoRows {
		return v, false, nil
	}
	return v, err == nil, errors.Wrap(err, "staged by youtube id")
}

func (s *Store) AssignStagedBand(ctx context.Context, stagedID, bandID string) error {
	_, err := s.db.Exec(ctx, `update staged_videos set band_id = $2 where id = $1`, stagedID, bandID)
	return errors.Wrap(err, "assign staged band")
}

func (s *Store) PublicVideoExists(ctx context.Context, youtubeID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `select exists(select 1 from videos where youtube_id = $1)`, youtubeID).Scan(&exists)
	return exists, errors.Wrap(err, "public video exists")
}

func (s *Store) InsertPublicVideo(ctx context.Context, v PublicVideo) error {
	_, err := s.db.Exec(ctx, `
insert into videos (youtube_id, band_id, title, description, category, published_at, view_count)
values ($1, $2, $3, $4, $5, $6, $7)`,
		v.YouTubeID, v.BandID, v.Title, v.Description, v.Category, v.PublishedAt, v.ViewCount)
	return errors.Wrap(err, "insert public video")
}

func (s *Store) MarkPromoted(ctx context.Context, stagedID string) error {
	_, err := s.db.Exec(ctx, `update staged_videos set promoted = true where id = $1`, stagedID)
	return errors.Wrap(err, "mark promoted")
}

// BandStatsWindow recomputes the windowed aggregates for one band from
// source rows. Each stats run re-queries the source of truth instead of
// trusting a previous stage's in-memory result.
func (s *Store) BandStatsWindow(ctx context.Context, bandID string) (BandStats, error) {
	var st BandStats
	err := s.db.QueryRow(ctx, `
select
  coalesce(sum(view_count) filter (where published_at > now() - interval '1 day'), 0),
  coalesce(sum(view_count) filter (where published_at > now() - interval '7 days'), 0),
  coalesce(sum(view_count) filter (where published_at > now() - interval '30 days'), 0),
  count(*) filter (where published_at > now() - interval '7 days'),
  coalesce(sum(like_count), 0),
  coalesce(sum(comment_count), 0)
  from videos where band_id = $1`, bandID).
		Scan(&st.ViewsToday, &st.ViewsWeek, &st.ViewsMonth, &st.RecentUploads, &st.Likes, &st.Comments)
	return st, errors.Wrap(err, "band stats window")
}

// PreviousTrendingScore returns (score, true) when a metrics row exists.
func (s *Store) PreviousTrendingScore(ctx context.Context, bandID string) (float64, bool, error) {
	var score float64
	err := s.db.QueryRow(ctx, `select trending_score from band_metrics where band_id = $1`, bandID).Scan(&score)
	if err == pgx.ErrNoRows {
		return 0, false, nil
	}
	return score, err == nil, errors.Wrap(err, "previous trending score")
}

func (s *Store) UpsertBandMetrics(ctx context.Context, m BandMetrics) error {
	_, err := s.db.Exec(ctx, `
insert into band_metrics (band_id, views_today, views_week, views_month, recent_uploads, likes, comments, trending_score, trend, updated_at)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
on conflict (band_id) do update set
  views_today = excluded.views_today,
  views_week = excluded.views_week,
  views_month = excluded.views_month,
  recent_uploads = excluded.recent_uploads,
  likes = excluded.likes,
  comments = excluded.comments,
  trending_score = excluded.trending_score,
  trend = excluded.trend,
  updated_at = now()`,
		m.BandID, m.Stats.ViewsToday, m.Stats.ViewsWeek, m.Stats.ViewsMonth,
		m.Stats.RecentUploads, m.Stats.Likes, m.Stats.Comments, m.TrendingScore, m.Trend)
	return errors.Wrap(err, "upsert band metrics")
}

// RerankBands assigns dense ranks by descending trending score in a
// single pass after all scores are upserted.
func (s *Store) RerankBands(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
update band_metrics m
   set rank = r.rank
  from (select band_id, dense_rank() over (order by trending_score desc) as rank
          from band_metrics) r
 where m.band_id = r.band_id`)
	return errors.Wrap(err, "rerank bands")
}

func (s *Store) DeletePromotedStagedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `delete from staged_videos where promoted and published_at < $1`, cutoff)
	return tag.RowsAffected(), errors.Wrap(err, "delete promoted staged")
}

func (s *Store) DeleteOrphanedStaged(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `
delete from staged_videos sv
 where sv.band_id is not null
   and not exists (select 1 from bands b where b.id = sv.band_id)`)
	return tag.RowsAffected(), errors.Wrap(err, "delete orphaned staged")
}
