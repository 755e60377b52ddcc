// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/cardfeed/internal/model"
)

// SnapshotRepository はフィードスナップショットの永続化インターフェース。
type SnapshotRepository interface {
	// Save はスナップショットを保存する。IDが空の場合は採番する。
	Save(ctx context.Context, snapshot *model.Snapshot) error

	// Latest は最新のスナップショットを取得する。存在しない場合はnilを返す。
	Latest(ctx context.Context) (*model.Snapshot, error)

	// LatestID は最新スナップショットのIDのみを取得する。存在しない場合は空文字列を返す。
	// APIサーバーのポーリングでペイロードを読まずに変更を検知するために使用する。
	LatestID(ctx context.Context) (string, error)

	// DeleteOlderThan はbeforeより前に取得されたスナップショットを削除する。
	// 最新のスナップショットは取得日時に関わらず削除しない。
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// ImageDimensionRepository は画像寸法キャッシュの永続化インターフェース。
type ImageDimensionRepository interface {
	// Find は指定URLのキャッシュを取得する。見つからない場合はnilを返す。
	Find(ctx context.Context, url string) (*model.ImageDimension, error)

	// FindMany は複数URLのキャッシュをまとめて取得する。見つからないURLはマップに含まれない。
	FindMany(ctx context.Context, urls []string) (map[string]*model.ImageDimension, error)

	// Upsert はキャッシュを作成または更新する。
	Upsert(ctx context.Context, dim *model.ImageDimension) error

	// DeleteStale はbeforeより前に取得されたキャッシュを削除する。
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
