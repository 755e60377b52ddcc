package imagemeta

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/cardfeed/internal/background"
	"github.com/hitoshi/cardfeed/internal/metrics"
	"github.com/hitoshi/cardfeed/internal/model"
	"github.com/hitoshi/cardfeed/internal/repository"
)

// デフォルトのキャッシュ有効期間
const (
	DefaultTTL         = 24 * time.Hour
	DefaultNegativeTTL = time.Hour
)

// CacheOptions はCachedLookupの設定。
type CacheOptions struct {
	// TTL は寸法が取得できたエントリの有効期間。
	TTL time.Duration
	// NegativeTTL は取得できなかったエントリの有効期間。
	NegativeTTL time.Duration
	// Limiter は外部へのプローブ頻度を制限する。nilの場合は制限しない。
	Limiter *rate.Limiter
}

// CachedLookup はリポジトリに保存された寸法を優先し、期限切れまたは未登録の場合のみプローブする。
// proberがnilの場合はキャッシュのみを参照し、期限切れの寸法もそのまま返す。
type CachedLookup struct {
	repo     repository.ImageDimensionRepository
	prober   background.DimensionLookup
	opts     CacheOptions
	recorder metrics.Recorder
	now      func() time.Time
}

// NewCachedLookup はCachedLookupを生成する。
func NewCachedLookup(repo repository.ImageDimensionRepository, prober background.DimensionLookup, opts CacheOptions, recorder metrics.Recorder) *CachedLookup {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.NegativeTTL <= 0 {
		opts.NegativeTTL = DefaultNegativeTTL
	}
	if recorder == nil {
		recorder = metrics.Discard
	}
	return &CachedLookup{
		repo:     repo,
		prober:   prober,
		opts:     opts,
		recorder: recorder,
		now:      time.Now,
	}
}

// NewRepositoryLookup はキャッシュのみを参照するルックアップを生成する。
// 外部への通信を行わないAPIサーバーで使用する。
func NewRepositoryLookup(repo repository.ImageDimensionRepository, recorder metrics.Recorder) *CachedLookup {
	return NewCachedLookup(repo, nil, CacheOptions{}, recorder)
}

// Lookup はbackground.DimensionLookupを実装する。
func (c *CachedLookup) Lookup(ctx context.Context, url string) (background.Dimensions, bool) {
	if url == "" {
		return background.Dimensions{}, false
	}

	cached, err := c.repo.Find(ctx, url)
	if err != nil {
		slog.Warn("画像寸法キャッシュの参照に失敗", slog.String("url", url), slog.String("error", err.Error()))
	}

	if cached != nil && (c.fresh(cached) || c.prober == nil) {
		return c.fromCache(cached)
	}
	if c.prober == nil {
		c.recorder.RecordImageLookup(metrics.SourceCache, metrics.ResultMiss)
		return background.Dimensions{}, false
	}

	// プローブ失敗時は期限切れでも既知の寸法を使い、キャッシュも上書きしない
	keepStale := cached != nil && cached.Available
	dims, ok := c.probe(ctx, url, keepStale)
	if !ok && keepStale {
		return dimensionsOf(cached), true
	}
	return dims, ok
}

// Warm は複数URLの寸法をまとめて取得し、キャッシュを更新する。
// 有効なキャッシュがあるURLはプローブしない。プローブしたURL数を返す。
func (c *CachedLookup) Warm(ctx context.Context, urls []string, concurrency int) int {
	if c.prober == nil || len(urls) == 0 {
		return 0
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	cached, err := c.repo.FindMany(ctx, urls)
	if err != nil {
		slog.Warn("画像寸法キャッシュの一括参照に失敗", slog.String("error", err.Error()))
		cached = nil
	}

	var targets []string
	for _, u := range urls {
		if d, ok := cached[u]; ok && c.fresh(d) {
			continue
		}
		targets = append(targets, u)
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, u := range targets {
		select {
		case <-ctx.Done():
			wg.Wait()
			return len(targets)
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			defer func() { <-sem }()
			d, found := cached[url]
			c.probe(ctx, url, found && d.Available)
		}(u)
	}

	wg.Wait()
	return len(targets)
}

// probe はプローブを実行し、結果を正負どちらもキャッシュに保存する。
// keepStaleがtrueの場合、失敗結果で既存の寸法を上書きしない。
func (c *CachedLookup) probe(ctx context.Context, url string, keepStale bool) (background.Dimensions, bool) {
	if c.opts.Limiter != nil {
		if err := c.opts.Limiter.Wait(ctx); err != nil {
			return background.Dimensions{}, false
		}
	}

	dims, ok := c.prober.Lookup(ctx, url)
	if ok {
		c.recorder.RecordImageLookup(metrics.SourceProbe, metrics.ResultHit)
	} else {
		c.recorder.RecordImageLookup(metrics.SourceProbe, metrics.ResultFailure)
	}

	// キャンセル時と既知の寸法がある場合の失敗はネガティブキャッシュしない
	if !ok && (keepStale || ctx.Err() != nil) {
		return dims, ok
	}

	record := &model.ImageDimension{
		URL:       url,
		Width:     dims.Width,
		Height:    dims.Height,
		Available: ok,
		FetchedAt: c.now(),
	}
	if err := c.repo.Upsert(ctx, record); err != nil {
		slog.Warn("画像寸法キャッシュの保存に失敗", slog.String("url", url), slog.String("error", err.Error()))
	}
	return dims, ok
}

func (c *CachedLookup) fromCache(d *model.ImageDimension) (background.Dimensions, bool) {
	if !d.Available {
		c.recorder.RecordImageLookup(metrics.SourceCache, metrics.ResultFailure)
		return background.Dimensions{}, false
	}
	c.recorder.RecordImageLookup(metrics.SourceCache, metrics.ResultHit)
	return dimensionsOf(d), true
}

func (c *CachedLookup) fresh(d *model.ImageDimension) bool {
	ttl := c.opts.TTL
	if !d.Available {
		ttl = c.opts.NegativeTTL
	}
	return c.now().Sub(d.FetchedAt) < ttl
}

func dimensionsOf(d *model.ImageDimension) background.Dimensions {
	return background.Dimensions{Width: d.Width, Height: d.Height}
}

var _ background.DimensionLookup = (*CachedLookup)(nil)
