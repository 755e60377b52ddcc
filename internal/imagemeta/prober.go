// Package imagemeta は画像のピクセル寸法を取得・キャッシュする。
package imagemeta

import (
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/hitoshi/cardfeed/internal/background"
	"github.com/hitoshi/cardfeed/internal/security"
)

// DefaultMaxBytes はプローブで読み込むボディの上限。
// DecodeConfigはヘッダーのみを読むため通常はこれより遥かに少ない。
const DefaultMaxBytes = 1 << 20

const userAgent = "cardfeed/1.0 image-probe"

// Prober は画像URLへGETし、ヘッダーをデコードして寸法を得る。
// 失敗はすべて「結果無し」として扱い、エラーは返さない。
type Prober struct {
	client    *http.Client
	validator security.URLValidator
	maxBytes  int64
}

// NewProber はProberを生成する。validatorがnilの場合はURLの事前検証を行わない。
func NewProber(client *http.Client, validator security.URLValidator, maxBytes int64) *Prober {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Prober{client: client, validator: validator, maxBytes: maxBytes}
}

// Lookup はbackground.DimensionLookupを実装する。
func (p *Prober) Lookup(ctx context.Context, url string) (background.Dimensions, bool) {
	return p.Probe(ctx, url)
}

// Probe は画像の寸法を取得する。
func (p *Prober) Probe(ctx context.Context, url string) (background.Dimensions, bool) {
	if url == "" {
		return background.Dimensions{}, false
	}

	if p.validator != nil {
		if err := p.validator.ValidateURL(url); err != nil {
			slog.Warn("画像プローブ: URL検証エラー", slog.String("url", url), slog.String("error", err.Error()))
			return background.Dimensions{}, false
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		slog.Warn("画像プローブ: リクエスト作成失敗", slog.String("url", url), slog.String("error", err.Error()))
		return background.Dimensions{}, false
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Warn("画像プローブ: HTTPリクエスト失敗", slog.String("url", url), slog.String("error", err.Error()))
		return background.Dimensions{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("画像プローブ: HTTPステータス異常", slog.String("url", url), slog.Int("status", resp.StatusCode))
		return background.Dimensions{}, false
	}

	contentType := extractMimeType(resp.Header.Get("Content-Type"))
	if contentType != "" && !strings.HasPrefix(contentType, "image/") && contentType != "application/octet-stream" {
		slog.Warn("画像プローブ: 画像以外のContent-Type", slog.String("url", url), slog.String("content_type", contentType))
		return background.Dimensions{}, false
	}

	cfg, format, err := image.DecodeConfig(io.LimitReader(resp.Body, p.maxBytes))
	if err != nil {
		slog.Warn("画像プローブ: デコード失敗", slog.String("url", url), slog.String("error", err.Error()))
		return background.Dimensions{}, false
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		slog.Warn("画像プローブ: 寸法が不正", slog.String("url", url), slog.String("format", format))
		return background.Dimensions{}, false
	}

	return background.Dimensions{Width: cfg.Width, Height: cfg.Height}, true
}

// extractMimeType はContent-Typeヘッダーからメディアタイプを抽出する。
func extractMimeType(contentType string) string {
	if contentType == "" {
		return ""
	}
	parts := strings.SplitN(contentType, ";", 2)
	return strings.TrimSpace(strings.ToLower(parts[0]))
}

var _ background.DimensionLookup = (*Prober)(nil)
