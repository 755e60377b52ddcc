package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は指定名のメトリクスファミリーを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

// labelValue はメトリクスの指定ラベル値を返す。
func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func TestRecordFetchSuccess_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFetchSuccess()
	c.RecordFetchSuccess()

	mf := findMetric(t, reg, "cardfeed_fetch_success_total")
	if val := mf.GetMetric()[0].GetCounter().GetValue(); val != 2 {
		t.Errorf("fetch_success_total = %v, want 2", val)
	}
}

func TestRecordFetchFailure_LabelsByReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFetchFailure("timeout")
	c.RecordFetchFailure("timeout")
	c.RecordFetchFailure("http_error")

	mf := findMetric(t, reg, "cardfeed_fetch_fail_total")
	got := map[string]float64{}
	for _, m := range mf.GetMetric() {
		got[labelValue(m, "reason")] = m.GetCounter().GetValue()
	}
	if got["timeout"] != 2 || got["http_error"] != 1 {
		t.Errorf("fetch_fail_total by reason = %v", got)
	}
}

func TestRecordHTTPStatus_LabelsByCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(304)
	c.RecordHTTPStatus(304)

	mf := findMetric(t, reg, "cardfeed_http_status_total")
	got := map[string]float64{}
	for _, m := range mf.GetMetric() {
		got[labelValue(m, "status_code")] = m.GetCounter().GetValue()
	}
	if got["200"] != 1 || got["304"] != 2 {
		t.Errorf("http_status_total = %v", got)
	}
}

func TestRecordSnapshotSaved_SetsGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSnapshotSaved(3, 12)
	c.RecordSnapshotSaved(2, 5)

	if v := findMetric(t, reg, "cardfeed_snapshot_groups").GetMetric()[0].GetGauge().GetValue(); v != 2 {
		t.Errorf("snapshot_groups = %v, want 2", v)
	}
	if v := findMetric(t, reg, "cardfeed_snapshot_cards").GetMetric()[0].GetGauge().GetValue(); v != 5 {
		t.Errorf("snapshot_cards = %v, want 5", v)
	}
}

func TestRecordImageLookup_LabelsBySourceAndResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordImageLookup(SourceCache, ResultHit)
	c.RecordImageLookup(SourceProbe, ResultFailure)

	mf := findMetric(t, reg, "cardfeed_image_lookup_total")
	if len(mf.GetMetric()) != 2 {
		t.Fatalf("expected 2 series, got %d", len(mf.GetMetric()))
	}
}

func TestRecordLatencies_ObserveHistograms(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFetchLatency(150 * time.Millisecond)
	c.RecordRenderLatency(2 * time.Millisecond)

	if n := findMetric(t, reg, "cardfeed_fetch_latency_seconds").GetMetric()[0].GetHistogram().GetSampleCount(); n != 1 {
		t.Errorf("fetch latency sample count = %d, want 1", n)
	}
	if n := findMetric(t, reg, "cardfeed_render_latency_seconds").GetMetric()[0].GetHistogram().GetSampleCount(); n != 1 {
		t.Errorf("render latency sample count = %d, want 1", n)
	}
}

func TestRecordGestureAndBackground(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordGesture("long_press", "revealing")
	c.RecordBackground("placeholder")

	mf := findMetric(t, reg, "cardfeed_gesture_total")
	m := mf.GetMetric()[0]
	if labelValue(m, "event") != "long_press" || labelValue(m, "state") != "revealing" {
		t.Errorf("unexpected labels: %v", m.GetLabel())
	}
	if v := findMetric(t, reg, "cardfeed_background_resolved_total").GetMetric()[0].GetCounter().GetValue(); v != 1 {
		t.Errorf("background_resolved_total = %v, want 1", v)
	}
}

func TestRecordLinkOpen_LabelsByHost(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLinkOpen("example.com")
	c.RecordLinkOpen("example.com")

	m := findMetric(t, reg, "cardfeed_link_open_total").GetMetric()[0]
	if labelValue(m, "host") != "example.com" || m.GetCounter().GetValue() != 2 {
		t.Errorf("link_open_total = %v %v, want host=example.com value=2", m.GetLabel(), m.GetCounter().GetValue())
	}
}

func TestCollectorImplementsRecorder(t *testing.T) {
	var _ Recorder = NewCollector(prometheus.NewRegistry())
	var _ Recorder = Discard
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordFetchSuccess()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "cardfeed_fetch_success_total") {
		t.Error("response should contain cardfeed_fetch_success_total metric")
	}
}
