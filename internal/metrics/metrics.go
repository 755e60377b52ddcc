// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はメトリクス記録のインターフェース。
// ワーカー、画像寸法ルックアップ、レンダラー、ハンドラーから利用する。
type Recorder interface {
	RecordFetchSuccess()
	RecordFetchFailure(reason string)
	RecordParseFailure()
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordSnapshotSaved(groups, cards int)
	RecordImageLookup(source, result string)
	RecordBackground(kind string)
	RecordGesture(event, state string)
	RecordLinkOpen(host string)
	RecordRenderLatency(duration time.Duration)
}

// 画像寸法ルックアップのsource/resultラベル値
const (
	SourceCache = "cache"
	SourceProbe = "probe"

	ResultHit     = "hit"
	ResultMiss    = "miss"
	ResultFailure = "failure"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	fetchSuccess   prometheus.Counter
	fetchFail      *prometheus.CounterVec
	parseFail      prometheus.Counter
	httpStatus     *prometheus.CounterVec
	fetchLatency   prometheus.Histogram
	snapshotGroups prometheus.Gauge
	snapshotCards  prometheus.Gauge
	imageLookups   *prometheus.CounterVec
	backgrounds    *prometheus.CounterVec
	gestures       *prometheus.CounterVec
	linkOpens      *prometheus.CounterVec
	renderLatency  prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cardfeed_fetch_success_total",
			Help: "フィードペイロード取得成功の合計数",
		}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardfeed_fetch_fail_total",
			Help: "フィードペイロード取得失敗の合計数",
		}, []string{"reason"}),
		parseFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cardfeed_parse_fail_total",
			Help: "フィードペイロードのデコード失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardfeed_http_status_total",
			Help: "フィードAPIのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cardfeed_fetch_latency_seconds",
			Help:    "フィードペイロード取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		snapshotGroups: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cardfeed_snapshot_groups",
			Help: "最新スナップショットのカードグループ数",
		}),
		snapshotCards: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cardfeed_snapshot_cards",
			Help: "最新スナップショットのカード数",
		}),
		imageLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardfeed_image_lookup_total",
			Help: "画像寸法ルックアップの結果別件数",
		}, []string{"source", "result"}),
		backgrounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardfeed_background_resolved_total",
			Help: "解決された背景の種類別件数",
		}, []string{"kind"}),
		gestures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardfeed_gesture_total",
			Help: "ジェスチャーと遷移後状態別の件数",
		}, []string{"event", "state"}),
		linkOpens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardfeed_link_open_total",
			Help: "カードのタップで開かれた遷移先のホスト別件数",
		}, []string{"host"}),
		renderLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cardfeed_render_latency_seconds",
			Help:    "画面レンダリングのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.fetchSuccess,
		c.fetchFail,
		c.parseFail,
		c.httpStatus,
		c.fetchLatency,
		c.snapshotGroups,
		c.snapshotCards,
		c.imageLookups,
		c.backgrounds,
		c.gestures,
		c.linkOpens,
		c.renderLatency,
	)

	return c
}

// RecordFetchSuccess はフェッチ成功を記録する。
func (c *Collector) RecordFetchSuccess() {
	c.fetchSuccess.Inc()
}

// RecordFetchFailure はフェッチ失敗を理由別に記録する。
func (c *Collector) RecordFetchFailure(reason string) {
	c.fetchFail.WithLabelValues(reason).Inc()
}

// RecordParseFailure はデコード失敗を記録する。
func (c *Collector) RecordParseFailure() {
	c.parseFail.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はフェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordSnapshotSaved は保存したスナップショットの規模を記録する。
func (c *Collector) RecordSnapshotSaved(groups, cards int) {
	c.snapshotGroups.Set(float64(groups))
	c.snapshotCards.Set(float64(cards))
}

// RecordImageLookup は画像寸法ルックアップの結果を記録する。
func (c *Collector) RecordImageLookup(source, result string) {
	c.imageLookups.WithLabelValues(source, result).Inc()
}

// RecordBackground は解決された背景の種類を記録する。
func (c *Collector) RecordBackground(kind string) {
	c.backgrounds.WithLabelValues(kind).Inc()
}

// RecordGesture はジェスチャーと遷移後の状態を記録する。
func (c *Collector) RecordGesture(event, state string) {
	c.gestures.WithLabelValues(event, state).Inc()
}

// RecordLinkOpen はカードの遷移先を開いたことをホスト別に記録する。
func (c *Collector) RecordLinkOpen(host string) {
	c.linkOpens.WithLabelValues(host).Inc()
}

// RecordRenderLatency は画面レンダリングのレイテンシを記録する。
func (c *Collector) RecordRenderLatency(duration time.Duration) {
	c.renderLatency.Observe(duration.Seconds())
}

// Discard は何も記録しないRecorder。プレビューとテストで使用する。
var Discard Recorder = discard{}

type discard struct{}

func (discard) RecordFetchSuccess()               {}
func (discard) RecordFetchFailure(string)         {}
func (discard) RecordParseFailure()               {}
func (discard) RecordHTTPStatus(int)              {}
func (discard) RecordFetchLatency(time.Duration)  {}
func (discard) RecordSnapshotSaved(int, int)      {}
func (discard) RecordImageLookup(string, string)  {}
func (discard) RecordBackground(string)           {}
func (discard) RecordGesture(string, string)      {}
func (discard) RecordLinkOpen(string)             {}
func (discard) RecordRenderLatency(time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
