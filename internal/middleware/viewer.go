// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

const viewerCookieName = "viewer_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// viewerIDContextKey はリクエストコンテキストに閲覧者IDを格納するためのキー。
var viewerIDContextKey = contextKey("viewer_id")

// ViewerConfig は閲覧者セッションCookieの設定。
type ViewerConfig struct {
	CookieSecure bool
	MaxAge       int // 秒。0の場合はブラウザセッション限り
}

// NewViewerMiddleware はCookieから閲覧者IDを読み取り、リクエストコンテキストに注入するミドルウェアを返す。
// Cookieが無いかUUIDとして不正な場合は新しいIDを発行してCookieを設定する。
// 閲覧者IDはカードの状態機械を閲覧者ごとに分けるためだけに使い、認証には使わない。
func NewViewerMiddleware(cfg ViewerConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			viewerID := ""
			if cookie, err := r.Cookie(viewerCookieName); err == nil {
				if id, err := uuid.Parse(cookie.Value); err == nil {
					viewerID = id.String()
				}
			}

			if viewerID == "" {
				viewerID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     viewerCookieName,
					Value:    viewerID,
					Path:     "/",
					MaxAge:   cfg.MaxAge,
					HttpOnly: true,
					Secure:   cfg.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			if holder, ok := r.Context().Value(viewerHolderKey).(*viewerHolder); ok {
				holder.id = viewerID
			}

			ctx := context.WithValue(r.Context(), viewerIDContextKey, viewerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ViewerIDFromContext はリクエストコンテキストから閲覧者IDを取得する。
// 閲覧者ミドルウェアを通過したリクエストでのみ有効。
func ViewerIDFromContext(ctx context.Context) (string, error) {
	viewerID, ok := ctx.Value(viewerIDContextKey).(string)
	if !ok || viewerID == "" {
		return "", fmt.Errorf("viewer ID not found in context")
	}
	return viewerID, nil
}

// ContextWithViewerID はコンテキストに閲覧者IDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithViewerID(ctx context.Context, viewerID string) context.Context {
	return context.WithValue(ctx, viewerIDContextKey, viewerID)
}
