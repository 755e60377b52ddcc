package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/cardfeed/internal/metrics"
	"github.com/hitoshi/cardfeed/internal/model"
	"github.com/hitoshi/cardfeed/internal/security"
)

const clientUserAgent = "cardfeed/1.0"

// Conditional は条件付きGETに使用する前回の検証子。
type Conditional struct {
	ETag         string
	LastModified string
}

// Result はフィードペイロードの取得結果。
type Result struct {
	StatusCode   int
	NotModified  bool
	Slug         string
	Groups       []model.CardGroup
	ETag         string
	LastModified string
	Duration     time.Duration
}

// Client はフィードAPIからホームセクションを取得する。
type Client struct {
	http      *http.Client
	validator security.URLValidator
	recorder  metrics.Recorder
	logger    *slog.Logger
}

// NewClient はClientを生成する。validatorがnilの場合はURLの事前検証を行わない。
func NewClient(httpClient *http.Client, validator security.URLValidator, recorder metrics.Recorder, logger *slog.Logger) *Client {
	if recorder == nil {
		recorder = metrics.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{http: httpClient, validator: validator, recorder: recorder, logger: logger}
}

// Fetch はフィードAPIを呼び出し、先頭要素のhc_groupsを返す。
// 304の場合はNotModifiedをtrueにしたResultを返す。
// 200/304以外のステータスは*StatusError、デコード失敗はErrDecodeをラップしたエラーを返す。
func (c *Client) Fetch(ctx context.Context, url string, cond Conditional) (*Result, error) {
	start := time.Now()

	if c.validator != nil {
		if err := c.validator.ValidateURL(url); err != nil {
			c.recorder.RecordFetchFailure("ssrf_blocked")
			return nil, fmt.Errorf("URL検証に失敗: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", clientUserAgent)
	req.Header.Set("Accept", "application/json")
	if cond.ETag != "" {
		req.Header.Set("If-None-Match", cond.ETag)
	}
	if cond.LastModified != "" {
		req.Header.Set("If-Modified-Since", cond.LastModified)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.recorder.RecordFetchFailure("request")
		return nil, fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start)
	c.recorder.RecordHTTPStatus(resp.StatusCode)
	c.recorder.RecordFetchLatency(duration)

	result := &Result{
		StatusCode:   resp.StatusCode,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		Duration:     duration,
	}

	switch outcome := ClassifyHTTPStatus(resp.StatusCode); outcome {
	case OutcomeOK:
	case OutcomeNotModified:
		result.NotModified = true
		if result.ETag == "" {
			result.ETag = cond.ETag
		}
		if result.LastModified == "" {
			result.LastModified = cond.LastModified
		}
		c.recorder.RecordFetchSuccess()
		return result, nil
	default:
		c.recorder.RecordFetchFailure(outcome.String())
		return nil, &StatusError{StatusCode: resp.StatusCode, Outcome: outcome}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		reason := "read"
		if errors.Is(err, security.ErrResponseTooLarge) {
			reason = "too_large"
		}
		c.recorder.RecordFetchFailure(reason)
		return nil, fmt.Errorf("レスポンス読み取り失敗: %w", err)
	}

	roots, err := DecodeRoots(body)
	if err != nil {
		c.recorder.RecordParseFailure()
		return nil, err
	}

	result.Groups = []model.CardGroup{}
	if len(roots) > 0 {
		if roots[0].Slug != nil {
			result.Slug = *roots[0].Slug
		}
		if roots[0].HCGroups != nil {
			result.Groups = roots[0].HCGroups
		}
	}

	c.recorder.RecordFetchSuccess()
	c.logger.Info("フィードペイロードを取得しました",
		slog.String("url", url),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("group_count", len(result.Groups)),
		slog.Int("card_count", CountCards(result.Groups)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return result, nil
}
