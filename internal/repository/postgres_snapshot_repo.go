package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/cardfeed/internal/model"
)

// PostgresSnapshotRepo はPostgreSQLを使用したスナップショットリポジトリ。
type PostgresSnapshotRepo struct {
	db *sql.DB
}

// NewPostgresSnapshotRepo はPostgresSnapshotRepoを生成する。
func NewPostgresSnapshotRepo(db *sql.DB) *PostgresSnapshotRepo {
	return &PostgresSnapshotRepo{db: db}
}

// Save はスナップショットを保存する。
func (r *PostgresSnapshotRepo) Save(ctx context.Context, s *model.Snapshot) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.FetchedAt.IsZero() {
		s.FetchedAt = time.Now()
	}

	// jsonb列へ[]byteを渡すとbyteaとして送信されるため文字列で渡す
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO feed_snapshots (id, slug, payload, etag, last_modified, group_count, card_count, rss_group_count, fetched_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.Slug, string(s.Payload), nullString(s.ETag), nullString(s.LastModified),
		s.GroupCount, s.CardCount, s.RSSGroupCount, s.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("スナップショットの保存に失敗しました: %w", err)
	}
	return nil
}

// Latest は最新のスナップショットを取得する。
func (r *PostgresSnapshotRepo) Latest(ctx context.Context) (*model.Snapshot, error) {
	s := &model.Snapshot{}
	var etag, lastModified sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, slug, payload, etag, last_modified, group_count, card_count, rss_group_count, fetched_at
		 FROM feed_snapshots ORDER BY fetched_at DESC, id DESC LIMIT 1`,
	).Scan(
		&s.ID, &s.Slug, &s.Payload, &etag, &lastModified,
		&s.GroupCount, &s.CardCount, &s.RSSGroupCount, &s.FetchedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("最新スナップショットの取得に失敗しました: %w", err)
	}

	s.ETag = nullStringValue(etag)
	s.LastModified = nullStringValue(lastModified)
	return s, nil
}

// LatestID は最新スナップショットのIDを取得する。
func (r *PostgresSnapshotRepo) LatestID(ctx context.Context) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM feed_snapshots ORDER BY fetched_at DESC, id DESC LIMIT 1`,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("最新スナップショットIDの取得に失敗しました: %w", err)
	}
	return id, nil
}

// DeleteOlderThan は古いスナップショットを削除する。最新の1件は常に残す。
func (r *PostgresSnapshotRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM feed_snapshots
		 WHERE fetched_at < $1
		   AND id <> (SELECT id FROM feed_snapshots ORDER BY fetched_at DESC, id DESC LIMIT 1)`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("古いスナップショットの削除に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return affected, nil
}
