// Package cleanup は古いスナップショットと画像寸法キャッシュの自動削除ジョブを提供する。
// 保持期間を超過した行を日次バッチで削除する。最新のスナップショットは期間に関わらず残す。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/cardfeed/internal/repository"
)

// CleanupJob は保持期間を超過したデータの自動削除ジョブ。
// 冪等な削除処理を保証する。
type CleanupJob struct {
	snapshots repository.SnapshotRepository
	images    repository.ImageDimensionRepository
	logger    *slog.Logger
	now       func() time.Time

	SnapshotRetentionDays   int // スナップショットの保持日数（デフォルト: 7）
	ImageCacheRetentionDays int // 画像寸法キャッシュの保持日数（デフォルト: 30）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(snapshots repository.SnapshotRepository, images repository.ImageDimensionRepository, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		snapshots:               snapshots,
		images:                  images,
		logger:                  logger,
		now:                     time.Now,
		SnapshotRetentionDays:   7,
		ImageCacheRetentionDays: 30,
	}
}

// Run は保持期間を超過したスナップショットと画像寸法キャッシュを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()

	snapshotCutoff := start.AddDate(0, 0, -j.SnapshotRetentionDays)
	deletedSnapshots, err := j.snapshots.DeleteOlderThan(ctx, snapshotCutoff)
	if err != nil {
		j.logger.Error("スナップショットのクリーンアップに失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.SnapshotRetentionDays),
		)
		return fmt.Errorf("スナップショットのクリーンアップに失敗: %w", err)
	}

	imageCutoff := start.AddDate(0, 0, -j.ImageCacheRetentionDays)
	deletedImages, err := j.images.DeleteStale(ctx, imageCutoff)
	if err != nil {
		j.logger.Error("画像寸法キャッシュのクリーンアップに失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.ImageCacheRetentionDays),
		)
		return fmt.Errorf("画像寸法キャッシュのクリーンアップに失敗: %w", err)
	}

	duration := j.now().Sub(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_snapshots", deletedSnapshots),
		slog.Int64("deleted_images", deletedImages),
		slog.Int("snapshot_retention_days", j.SnapshotRetentionDays),
		slog.Int("image_cache_retention_days", j.ImageCacheRetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start はRunを起動直後に1回実行し、以降interval間隔で実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}
