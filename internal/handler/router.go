package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/cardfeed/internal/interaction"
	"github.com/hitoshi/cardfeed/internal/metrics"
	"github.com/hitoshi/cardfeed/internal/middleware"
	"github.com/hitoshi/cardfeed/internal/render"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	Viewer            middleware.ViewerConfig
	RateLimiter       *middleware.RateLimiter

	// 死活監視・メトリクス
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
	Recorder       metrics.Recorder

	// フィード
	Feed      FeedSource
	Refresher FeedRefresher
	Boards    BoardProvider
	Screens   ScreenRenderer
	Pages     PageRenderer

	// タップで開かれた遷移先の記録先。nilの場合はRecorderとLoggerに記録する。
	Opener interaction.LinkOpener
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → CORS → Viewer → RateLimit
//
// /health と /metrics は閲覧者ミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	healthHandler := NewHealthHandler(deps.HealthChecker)
	feedHandler := NewFeedHandler(deps.Feed, deps.Refresher, deps.Boards, deps.Screens, deps.Pages)
	opener := deps.Opener
	if opener == nil {
		opener = render.NewLinkRecorder(deps.Recorder, logger)
	}
	gestureHandler := NewGestureHandler(deps.Feed, deps.Boards, opener, deps.Recorder)

	// --- 閲覧者を持たないルート ---
	r.Get("/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 閲覧者ごとの状態を持つルート ---
	// ミドルウェアスタック: Viewer → RateLimit
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewViewerMiddleware(deps.Viewer))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Route("/api/feed", func(r chi.Router) {
			r.Get("/", feedHandler.GetScreen)
			r.Get("/raw", feedHandler.GetRaw)
			r.Post("/refresh", feedHandler.Refresh)
		})

		r.Post("/api/cards/{key}/gestures", gestureHandler.PostGesture)

		r.With(middleware.NewSecurityHeadersMiddleware()).Get("/feed", feedHandler.GetPage)
	})

	return r
}

// NewWorkerRouter はワーカープロセスの死活監視とメトリクス公開用のルーターを返す。
// ワーカーはフィードの描画を行わないため、/health と /metrics のみを提供する。
func NewWorkerRouter(checker HealthChecker, metricsHandler http.Handler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))

	r.Get("/health", NewHealthHandler(checker).Health)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}
	return r
}
