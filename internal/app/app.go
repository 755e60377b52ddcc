// Package app はサブコマンドごとの依存関係のワイヤリングと起動を行う。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/hitoshi/cardfeed/internal/background"
	"github.com/hitoshi/cardfeed/internal/config"
	"github.com/hitoshi/cardfeed/internal/database"
	"github.com/hitoshi/cardfeed/internal/feed"
	"github.com/hitoshi/cardfeed/internal/handler"
	"github.com/hitoshi/cardfeed/internal/imagemeta"
	"github.com/hitoshi/cardfeed/internal/interaction"
	"github.com/hitoshi/cardfeed/internal/logger"
	"github.com/hitoshi/cardfeed/internal/metrics"
	"github.com/hitoshi/cardfeed/internal/middleware"
	"github.com/hitoshi/cardfeed/internal/preview"
	"github.com/hitoshi/cardfeed/internal/render"
	"github.com/hitoshi/cardfeed/internal/repository"
	"github.com/hitoshi/cardfeed/internal/security"
	"github.com/hitoshi/cardfeed/internal/worker/cleanup"
	"github.com/hitoshi/cardfeed/internal/worker/refresh"
)

const (
	dbPingTimeout   = 5 * time.Second
	shutdownTimeout = 30 * time.Second
	cleanupInterval = 24 * time.Hour
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer, cmd Command) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo, string(cmd))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再初期化する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel), string(cmd))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	switch cmd {
	case CommandHealthcheck:
		// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	case CommandPreview:
		// preview はDBを使わないため、必須の環境変数を要求しない
		logger.SetupDefault(os.Stderr, logger.ParseLevel(os.Getenv("LOG_LEVEL")), string(cmd))
		return runPreview(w, subcommandArgs(args))
	}

	cfg, err := Init(w, cmd)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("feed_url", cfg.FeedURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.Ping(context.Background(), db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newMetrics はプロセスごとのPrometheusレジストリとCollectorを生成する。
func newMetrics() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// newProbeLookup は外部へプローブする画像寸法ルックアップを構築する。
func newProbeLookup(cfg *config.Config, repo repository.ImageDimensionRepository, recorder metrics.Recorder) *imagemeta.CachedLookup {
	guard := security.NewGuard()
	client := guard.NewSafeClient(cfg.ImageProbeTimeout, cfg.ImageProbeMaxBytes)

	var limiter *rate.Limiter
	if cfg.ImageProbeRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.ImageProbeRate), cfg.ImageProbeRate)
	}

	return imagemeta.NewCachedLookup(
		repo,
		imagemeta.NewProber(client, guard, cfg.ImageProbeMaxBytes),
		imagemeta.CacheOptions{
			TTL:         cfg.ImageCacheTTL,
			NegativeTTL: cfg.ImageCacheNegativeTTL,
			Limiter:     limiter,
		},
		recorder,
	)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリとメトリクスの初期化
	snapshotRepo := repository.NewPostgresSnapshotRepo(db)
	imageRepo := repository.NewPostgresImageDimensionRepo(db)
	reg, collector := newMetrics()

	// 3. 画像寸法ルックアップ
	// 通常はワーカーが温めたキャッシュのみを参照し、APIサーバーは外部へ通信しない
	var lookup background.DimensionLookup = imagemeta.NewRepositoryLookup(imageRepo, collector)
	if cfg.ImageProbeOnMiss {
		lookup = newProbeLookup(cfg, imageRepo, collector)
	}

	// 4. 現在のフィードと閲覧者ごとの状態
	store := feed.NewStore()
	registry := interaction.NewRegistry()
	store.OnSwap(func(cur feed.Current) {
		registry.Reset(cur.Generation)
	})
	watcher := feed.NewWatcher(snapshotRepo, store, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go watcher.Start(ctx, cfg.FeedPollInterval)
	go sweepViewers(ctx, registry, cfg.ViewerIdleTTL)

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Viewer: middleware.ViewerConfig{
			CookieSecure: cfg.ViewerCookieSecure,
			MaxAge:       int(cfg.ViewerIdleTTL.Seconds()),
		},
		RateLimiter: rateLimiter,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),
		Recorder:       collector,

		Feed:      store,
		Refresher: watcher,
		Boards:    registry,
		Screens: render.NewRenderer(lookup, render.Options{
			Concurrency:   cfg.RenderConcurrency,
			LookupTimeout: cfg.RenderLookupTimeout,
		}, collector),
		Pages:  render.NewHTMLRenderer(security.NewCardSanitizer(), render.DefaultViewport),
		Opener: render.NewLinkRecorder(collector, slog.Default()),
	})

	return serveHTTP(cfg.ServerPort, router, "API server")
}

// sweepViewers は一定時間アクセスの無い閲覧者の状態を定期的に破棄する。
func sweepViewers(ctx context.Context, registry *interaction.Registry, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := registry.Sweep(ttl); removed > 0 {
				slog.Debug("idle viewers swept",
					slog.Int("removed", removed),
					slog.Int("remaining", registry.Len()),
				)
			}
		}
	}
}

// serveHTTP はHTTPサーバーを起動し、SIGINTまたはSIGTERMでグレースフルシャットダウンする。
func serveHTTP(port string, h http.Handler, name string) error {
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	slog.Info("shutting down " + name + "...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// フィードAPIとRSSを定期取得してスナップショットを保存し、画像寸法キャッシュを温める。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. リポジトリとメトリクスの初期化
	snapshotRepo := repository.NewPostgresSnapshotRepo(db)
	imageRepo := repository.NewPostgresImageDimensionRepo(db)
	reg, collector := newMetrics()

	// 3. 外部通信はすべてSSRF対策済みクライアントで行う
	guard := security.NewGuard()
	fetchClient := guard.NewSafeClient(cfg.FetchTimeout, cfg.FetchMaxSize)

	job := refresh.NewJob(
		feed.NewClient(fetchClient, guard, collector, slog.Default()),
		feed.NewRSSSource(fetchClient, guard, feed.DefaultRSSItems),
		snapshotRepo,
		newProbeLookup(cfg, imageRepo, collector),
		collector,
		slog.Default(),
		refresh.Options{
			FeedURL:         cfg.FeedURL,
			RSSURLs:         cfg.RSSGroupURLs,
			WarmConcurrency: cfg.ImageProbeConcurrency,
		},
	)

	// 4. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(snapshotRepo, imageRepo, slog.Default())
	cleanupJob.SnapshotRetentionDays = cfg.SnapshotRetentionDays
	cleanupJob.ImageCacheRetentionDays = cfg.ImageCacheRetentionDays

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("worker starting",
		slog.Duration("refresh_interval", cfg.FeedRefreshInterval),
		slog.Int("rss_groups", len(cfg.RSSGroupURLs)),
	)

	go cleanupJob.Start(ctx, cleanupInterval)
	go job.Start(ctx, cfg.FeedRefreshInterval)

	// 死活監視とメトリクスのみを公開し、シグナル受信までブロックする
	return serveHTTP(cfg.ServerPort, handler.NewWorkerRouter(db, metrics.Handler(reg), slog.Default()), "worker")
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runPreview はフィードをターミナルに描画する。
func runPreview(w io.Writer, args []string) error {
	opts, err := preview.ParseFlags(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return preview.Run(ctx, w, opts, slog.Default())
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
