package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/cardfeed/internal/repository"
)

// Watcher はリポジトリの最新スナップショットを監視し、変化があればStoreを差し替える。
type Watcher struct {
	repo   repository.SnapshotRepository
	store  *Store
	logger *slog.Logger

	mu     sync.Mutex
	lastID string
}

// NewWatcher はWatcherを生成する。
func NewWatcher(repo repository.SnapshotRepository, store *Store, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{repo: repo, store: store, logger: logger}
}

// Refresh は最新スナップショットを確認し、前回と異なる場合にStoreを差し替える。
// 差し替えた場合はtrueを返す。
func (w *Watcher) Refresh(ctx context.Context) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id, err := w.repo.LatestID(ctx)
	if err != nil {
		return false, err
	}
	if id == "" || id == w.lastID {
		return false, nil
	}

	snapshot, err := w.repo.Latest(ctx)
	if err != nil {
		return false, err
	}
	if snapshot == nil {
		return false, nil
	}

	groups, err := DecodeGroups(snapshot.Payload)
	if err != nil {
		// デコードできないスナップショットは次回以降読み飛ばす
		w.lastID = snapshot.ID
		return false, fmt.Errorf("スナップショット %s のデコードに失敗: %w", snapshot.ID, err)
	}

	cur := w.store.Swap(snapshot.ID, groups, snapshot.FetchedAt)
	w.lastID = snapshot.ID

	w.logger.Info("フィードを差し替えました",
		slog.String("snapshot_id", snapshot.ID),
		slog.Uint64("generation", cur.Generation),
		slog.Int("group_count", len(groups)),
		slog.Int("card_count", CountCards(groups)),
	)
	return true, nil
}

// Start は指定間隔でRefreshを実行する。起動直後に1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (w *Watcher) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("スナップショット監視を開始しました", slog.Duration("interval", interval))

	w.refreshAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("スナップショット監視を停止しました")
			return
		case <-ticker.C:
			w.refreshAndLog(ctx)
		}
	}
}

func (w *Watcher) refreshAndLog(ctx context.Context) {
	if _, err := w.Refresh(ctx); err != nil {
		w.logger.Error("スナップショットの読み込みに失敗しました", slog.String("error", err.Error()))
	}
}
