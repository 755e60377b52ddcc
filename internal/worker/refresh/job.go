// Package refresh はフィードペイロードの定期取得ジョブを提供する。
//
// 1サイクルでフィードAPIを条件付きGETで取得し、RSSグループを末尾に追加して
// 内容が変わった場合のみスナップショットを保存する。その後、背景・アイコン画像の
// 寸法キャッシュを並列数を制限して温める。
// 429/5xxなどの失敗時は指数バックオフを適用し、待機中のサイクルはスキップする。
package refresh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/cardfeed/internal/feed"
	"github.com/hitoshi/cardfeed/internal/metrics"
	"github.com/hitoshi/cardfeed/internal/model"
	"github.com/hitoshi/cardfeed/internal/repository"
)

// RSSGroupIDBase はRSS由来グループに割り当てるIDの開始値。
// どのグループがRSS由来かはIDではなくスナップショットのRSSGroupCountで判断する。
const RSSGroupIDBase = 900000

// FeedFetcher はフィードAPIの取得インターフェース。
type FeedFetcher interface {
	Fetch(ctx context.Context, url string, cond feed.Conditional) (*feed.Result, error)
}

// GroupSource はRSSなど追加グループの取得インターフェース。
type GroupSource interface {
	Group(ctx context.Context, url string, groupID int) (model.CardGroup, error)
}

// DimensionWarmer は画像寸法キャッシュを事前に温めるインターフェース。
type DimensionWarmer interface {
	Warm(ctx context.Context, urls []string, concurrency int) int
}

// Options はJobの設定。
type Options struct {
	FeedURL         string
	RSSURLs         []string
	WarmConcurrency int
}

// Job はフィード取得ジョブ。
type Job struct {
	fetcher   FeedFetcher
	rss       GroupSource
	snapshots repository.SnapshotRepository
	warmer    DimensionWarmer
	recorder  metrics.Recorder
	logger    *slog.Logger
	opts      Options
	now       func() time.Time

	mu      sync.Mutex
	backoff backoffState
}

// NewJob はJobを生成する。rssとwarmerはnilでもよい。
// WarmConcurrencyが0以下の場合はデフォルト値8を使用する。
func NewJob(
	fetcher FeedFetcher,
	rss GroupSource,
	snapshots repository.SnapshotRepository,
	warmer DimensionWarmer,
	recorder metrics.Recorder,
	logger *slog.Logger,
	opts Options,
) *Job {
	if opts.WarmConcurrency <= 0 {
		opts.WarmConcurrency = 8
	}
	if recorder == nil {
		recorder = metrics.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		fetcher:   fetcher,
		rss:       rss,
		snapshots: snapshots,
		warmer:    warmer,
		recorder:  recorder,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

// Start は指定間隔のティッカーでジョブを起動する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで実行を継続する。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("フィード取得ジョブを開始しました",
		slog.Duration("interval", interval),
		slog.String("feed_url", j.opts.FeedURL),
		slog.Int("rss_count", len(j.opts.RSSURLs)),
	)

	j.runAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("フィード取得ジョブを停止しました")
			return
		case <-ticker.C:
			j.runAndLog(ctx)
		}
	}
}

func (j *Job) runAndLog(ctx context.Context) {
	if err := j.RunOnce(ctx); err != nil {
		j.logger.Error("フィード取得サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce はフィード取得サイクルを1回実行する。
// バックオフ期間中は何もせずnilを返す。
func (j *Job) RunOnce(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	start := j.now()
	if j.backoff.waiting(start) {
		j.logger.Info("バックオフ中のためフィード取得をスキップします",
			slog.Time("next_attempt_at", j.backoff.nextAttemptAt),
			slog.Int("consecutive_errors", j.backoff.consecutiveErrors),
		)
		return nil
	}

	latest, err := j.snapshots.Latest(ctx)
	if err != nil {
		return fmt.Errorf("最新スナップショットの取得に失敗: %w", err)
	}

	var cond feed.Conditional
	var previous []model.CardGroup
	if latest != nil {
		cond = feed.Conditional{ETag: latest.ETag, LastModified: latest.LastModified}
		previous, err = feed.DecodeGroups(latest.Payload)
		if err != nil {
			// 壊れたスナップショットは無視して無条件に取り直す
			j.logger.Warn("最新スナップショットのデコードに失敗しました",
				slog.String("snapshot_id", latest.ID),
				slog.String("error", err.Error()),
			)
			cond = feed.Conditional{}
			previous = nil
			latest = nil
		}
	}

	res, err := j.fetcher.Fetch(ctx, j.opts.FeedURL, cond)
	if err != nil {
		j.applyFailure(err)
		return fmt.Errorf("フィード取得に失敗: %w", err)
	}

	var base []model.CardGroup
	slug := ""
	if res.NotModified {
		if latest != nil {
			base = trimRSSGroups(previous, latest.RSSGroupCount)
			slug = latest.Slug
		}
	} else {
		base = res.Groups
		slug = res.Slug
	}

	rss := j.rssGroups(ctx)
	groups := append(append([]model.CardGroup{}, base...), rss...)

	payload, err := feed.EncodeGroups(groups)
	if err != nil {
		return fmt.Errorf("ペイロードのエンコードに失敗: %w", err)
	}

	changed := true
	if previous != nil {
		prevPayload, err := feed.EncodeGroups(previous)
		if err == nil && bytes.Equal(prevPayload, payload) && latest.RSSGroupCount == len(rss) {
			changed = false
		}
	}

	cardCount := feed.CountCards(groups)
	if changed {
		snapshot := &model.Snapshot{
			Slug:          slug,
			Payload:       payload,
			ETag:          res.ETag,
			LastModified:  res.LastModified,
			GroupCount:    len(groups),
			CardCount:     cardCount,
			RSSGroupCount: len(rss),
			FetchedAt:     j.now(),
		}
		if err := j.snapshots.Save(ctx, snapshot); err != nil {
			return fmt.Errorf("スナップショットの保存に失敗: %w", err)
		}
		j.recorder.RecordSnapshotSaved(len(groups), cardCount)
		j.logger.Info("スナップショットを保存しました",
			slog.String("snapshot_id", snapshot.ID),
			slog.String("slug", slug),
			slog.Int("group_count", len(groups)),
			slog.Int("card_count", cardCount),
		)
	} else {
		j.logger.Info("フィードは未変更です",
			slog.Bool("not_modified", res.NotModified),
			slog.Int("group_count", len(groups)),
		)
	}

	j.backoff.succeed()

	warmed := 0
	urls := feed.ImageURLs(groups)
	if j.warmer != nil && len(urls) > 0 {
		warmed = j.warmer.Warm(ctx, urls, j.opts.WarmConcurrency)
	}

	j.logger.Info("フィード取得サイクルが完了しました",
		slog.Bool("changed", changed),
		slog.Int("image_count", len(urls)),
		slog.Int("warmed_count", warmed),
		slog.Float64("duration_ms", float64(j.now().Sub(start).Milliseconds())),
	)
	return nil
}

// rssGroups は設定されたRSSフィードをグループに変換する。
// 取得に失敗したフィードは警告を記録して読み飛ばす。
func (j *Job) rssGroups(ctx context.Context) []model.CardGroup {
	if j.rss == nil || len(j.opts.RSSURLs) == 0 {
		return nil
	}

	groups := make([]model.CardGroup, 0, len(j.opts.RSSURLs))
	for i, url := range j.opts.RSSURLs {
		g, err := j.rss.Group(ctx, url, RSSGroupIDBase+i)
		if err != nil {
			j.logger.Warn("RSSフィードの取得に失敗しました",
				slog.String("rss_url", url),
				slog.String("error", err.Error()),
			)
			continue
		}
		groups = append(groups, g)
	}
	return groups
}

// applyFailure は失敗内容をログに記録し、バックオフを適用する。
func (j *Job) applyFailure(err error) {
	reason := err.Error()
	attrs := []any{slog.String("error", reason)}

	var statusErr *feed.StatusError
	switch {
	case errors.As(err, &statusErr):
		attrs = append(attrs,
			slog.Int("http_status", statusErr.StatusCode),
			slog.String("outcome", statusErr.Outcome.String()),
		)
	case errors.Is(err, feed.ErrDecode):
		attrs = append(attrs, slog.String("outcome", "decode_failed"))
	}

	delay := j.backoff.fail(j.now(), reason)
	attrs = append(attrs,
		slog.Int("consecutive_errors", j.backoff.consecutiveErrors),
		slog.Duration("backoff", delay),
	)
	j.logger.Warn("フィード取得にバックオフを適用します", attrs...)
}

// trimRSSGroups は前回スナップショット末尾のRSS由来グループを取り除く。
// フィード本体のグループはIDに関係なくそのまま残る。
func trimRSSGroups(groups []model.CardGroup, rssCount int) []model.CardGroup {
	if rssCount <= 0 {
		return groups
	}
	if rssCount >= len(groups) {
		return []model.CardGroup{}
	}
	return groups[:len(groups)-rssCount]
}
