package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/cardfeed/internal/model"
)

// PostgresImageDimensionRepo はPostgreSQLを使用した画像寸法キャッシュリポジトリ。
type PostgresImageDimensionRepo struct {
	db *sql.DB
}

// NewPostgresImageDimensionRepo はPostgresImageDimensionRepoを生成する。
func NewPostgresImageDimensionRepo(db *sql.DB) *PostgresImageDimensionRepo {
	return &PostgresImageDimensionRepo{db: db}
}

// Find は指定URLのキャッシュを取得する。
func (r *PostgresImageDimensionRepo) Find(ctx context.Context, url string) (*model.ImageDimension, error) {
	d := &model.ImageDimension{}
	err := r.db.QueryRowContext(ctx,
		`SELECT url, width, height, available, fetched_at FROM image_dimensions WHERE url = $1`,
		url,
	).Scan(&d.URL, &d.Width, &d.Height, &d.Available, &d.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("画像寸法キャッシュの取得に失敗しました: %w", err)
	}
	return d, nil
}

// FindMany は複数URLのキャッシュをまとめて取得する。
func (r *PostgresImageDimensionRepo) FindMany(ctx context.Context, urls []string) (map[string]*model.ImageDimension, error) {
	result := make(map[string]*model.ImageDimension, len(urls))
	if len(urls) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT url, width, height, available, fetched_at FROM image_dimensions WHERE url = ANY($1)`,
		pq.Array(urls),
	)
	if err != nil {
		return nil, fmt.Errorf("画像寸法キャッシュの一括取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		d := &model.ImageDimension{}
		if err := rows.Scan(&d.URL, &d.Width, &d.Height, &d.Available, &d.FetchedAt); err != nil {
			return nil, fmt.Errorf("画像寸法キャッシュのスキャンに失敗しました: %w", err)
		}
		result[d.URL] = d
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("画像寸法キャッシュの一括取得に失敗しました: %w", err)
	}
	return result, nil
}

// Upsert はキャッシュを作成または更新する。
func (r *PostgresImageDimensionRepo) Upsert(ctx context.Context, d *model.ImageDimension) error {
	if d.FetchedAt.IsZero() {
		d.FetchedAt = time.Now()
	}
	if !d.Available {
		d.Width, d.Height = 0, 0
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO image_dimensions (url, width, height, available, fetched_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (url) DO UPDATE
		 SET width = EXCLUDED.width,
		     height = EXCLUDED.height,
		     available = EXCLUDED.available,
		     fetched_at = EXCLUDED.fetched_at`,
		d.URL, d.Width, d.Height, d.Available, d.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("画像寸法キャッシュの保存に失敗しました: %w", err)
	}
	return nil
}

// DeleteStale は古いキャッシュを削除する。
func (r *PostgresImageDimensionRepo) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM image_dimensions WHERE fetched_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("古い画像寸法キャッシュの削除に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return affected, nil
}
