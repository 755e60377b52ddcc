package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/cardfeed/internal/interaction"
	"github.com/hitoshi/cardfeed/internal/metrics"
	"github.com/hitoshi/cardfeed/internal/middleware"
	"github.com/hitoshi/cardfeed/internal/model"
	"github.com/hitoshi/cardfeed/internal/render"
)

// GestureHandler はカードへのジェスチャーを処理するHTTPハンドラー。
// 実際の遷移はクライアントが担うため、サーバーはopen_urlを返し、openerで遷移を記録する。
type GestureHandler struct {
	source   FeedSource
	boards   BoardProvider
	opener   interaction.LinkOpener
	recorder metrics.Recorder
}

// NewGestureHandler はGestureHandlerを生成する。openerがnilの場合は遷移を記録しない。
func NewGestureHandler(source FeedSource, boards BoardProvider, opener interaction.LinkOpener, recorder metrics.Recorder) *GestureHandler {
	if recorder == nil {
		recorder = metrics.Discard
	}
	return &GestureHandler{source: source, boards: boards, opener: opener, recorder: recorder}
}

// gestureRequest はジェスチャーリクエストのボディ。
type gestureRequest struct {
	Type   string `json:"type"`
	HeldMs int64  `json:"held_ms"`
}

// gestureResponse はジェスチャー処理結果のAPIレスポンス。
type gestureResponse struct {
	Key string `json:"key"`
	interaction.Outcome
}

// PostGesture はカードキーで指定されたカードにジェスチャーを適用する。
// POST /api/cards/{key}/gestures
func (h *GestureHandler) PostGesture(w http.ResponseWriter, r *http.Request) {
	cur, ok := h.source.Current()
	if !ok {
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewFeedNotReadyError())
		return
	}

	viewerID, err := middleware.ViewerIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("閲覧者IDがありません"))
		return
	}

	var req gestureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	eventType, err := interaction.ParseEventType(req.Type)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidGestureError(req.Type))
		return
	}
	if req.HeldMs < 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("held_msは0以上で指定してください"))
		return
	}

	key := chi.URLParam(r, "key")
	ev := interaction.Event{Type: eventType, Held: time.Duration(req.HeldMs) * time.Millisecond}

	presenter := render.NewPresenter(h.boards.Board(viewerID, cur.Generation), h.opener, h.recorder)
	outcome, err := presenter.Gesture(r.Context(), key, ev)
	if errors.Is(err, render.ErrUnknownCard) {
		handleServiceError(w, model.NewCardNotFoundError(key))
		return
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, gestureResponse{Key: key, Outcome: outcome})
}
