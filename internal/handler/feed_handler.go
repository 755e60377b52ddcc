package handler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/cardfeed/internal/feed"
	"github.com/hitoshi/cardfeed/internal/interaction"
	"github.com/hitoshi/cardfeed/internal/middleware"
	"github.com/hitoshi/cardfeed/internal/model"
	"github.com/hitoshi/cardfeed/internal/render"
)

// FeedSource は現在のフィードを提供するインターフェース。feed.Storeが満たす。
type FeedSource interface {
	Current() (feed.Current, bool)
}

// FeedRefresher はスナップショットの再読み込みを行うインターフェース。feed.Watcherが満たす。
type FeedRefresher interface {
	Refresh(ctx context.Context) (bool, error)
}

// BoardProvider は閲覧者ごとのBoardをフィード世代単位で提供するインターフェース。interaction.Registryが満たす。
type BoardProvider interface {
	Board(viewerID string, generation uint64) *interaction.Board
}

// ScreenRenderer はカードグループ列を画面記述に変換するインターフェース。
type ScreenRenderer interface {
	Render(ctx context.Context, groups []model.CardGroup, board *interaction.Board) render.Screen
}

// PageRenderer は画面記述をHTMLとして書き出すインターフェース。
type PageRenderer interface {
	Render(w io.Writer, screen render.Screen) error
}

// FeedHandler はフィード表示のHTTPハンドラー。
type FeedHandler struct {
	source    FeedSource
	refresher FeedRefresher
	boards    BoardProvider
	screens   ScreenRenderer
	pages     PageRenderer
}

// NewFeedHandler はFeedHandlerを生成する。
func NewFeedHandler(source FeedSource, refresher FeedRefresher, boards BoardProvider, screens ScreenRenderer, pages PageRenderer) *FeedHandler {
	return &FeedHandler{
		source:    source,
		refresher: refresher,
		boards:    boards,
		screens:   screens,
		pages:     pages,
	}
}

// rawFeedResponse は描画前のフィードのAPIレスポンス。
type rawFeedResponse struct {
	Generation uint64            `json:"generation"`
	SnapshotID string            `json:"snapshot_id"`
	FetchedAt  time.Time         `json:"fetched_at"`
	HCGroups   []model.CardGroup `json:"hc_groups"`
}

// refreshResponse は再読み込み結果のAPIレスポンス。
type refreshResponse struct {
	Swapped    bool   `json:"swapped"`
	Generation uint64 `json:"generation"`
}

// GetScreen は閲覧者ごとの状態を反映した画面記述を返す。
// GET /api/feed
func (h *FeedHandler) GetScreen(w http.ResponseWriter, r *http.Request) {
	screen, ok := h.screen(r)
	if !ok {
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewFeedNotReadyError())
		return
	}
	writeJSON(w, http.StatusOK, screen)
}

// GetRaw は現在のフィードをデコード済みのカードグループ列として返す。
// GET /api/feed/raw
func (h *FeedHandler) GetRaw(w http.ResponseWriter, r *http.Request) {
	cur, ok := h.source.Current()
	if !ok {
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewFeedNotReadyError())
		return
	}
	writeJSON(w, http.StatusOK, rawFeedResponse{
		Generation: cur.Generation,
		SnapshotID: cur.SnapshotID,
		FetchedAt:  cur.FetchedAt,
		HCGroups:   cur.Groups,
	})
}

// Refresh は最新スナップショットを即座に読み込む。
// POST /api/feed/refresh
func (h *FeedHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	swapped, err := h.refresher.Refresh(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	cur, ok := h.source.Current()
	if !ok {
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewFeedNotReadyError())
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{Swapped: swapped, Generation: cur.Generation})
}

// GetPage は画面記述をHTMLページとして返す。
// GET /feed
func (h *FeedHandler) GetPage(w http.ResponseWriter, r *http.Request) {
	screen, ok := h.screen(r)
	if !ok {
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewFeedNotReadyError())
		return
	}

	var buf bytes.Buffer
	if err := h.pages.Render(&buf, screen); err != nil {
		slog.Error("failed to render page", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// screen は現在のフィードをリクエスト元の閲覧者のBoardで描画する。
// フィードが未読み込みの場合はfalseを返す。
func (h *FeedHandler) screen(r *http.Request) (render.Screen, bool) {
	cur, ok := h.source.Current()
	if !ok {
		return render.Screen{}, false
	}

	var board *interaction.Board
	if viewerID, err := middleware.ViewerIDFromContext(r.Context()); err == nil {
		board = h.boards.Board(viewerID, cur.Generation)
	}

	screen := h.screens.Render(r.Context(), cur.Groups, board)
	screen.Generation = cur.Generation
	return screen, true
}
