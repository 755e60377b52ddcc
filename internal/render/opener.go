package render

import (
	"log/slog"
	"net/url"

	"github.com/hitoshi/cardfeed/internal/interaction"
	"github.com/hitoshi/cardfeed/internal/metrics"
)

// unknownHost は遷移先URLからホストを取り出せなかった場合のラベル値。
const unknownHost = "unknown"

// LinkRecorder はサーバー側のLinkOpener。
// ブラウザを開く代わりに、遷移先をホスト別のメトリクスとログに記録する。
// 実際の遷移はレスポンスのopen_urlを受け取ったクライアントが行う。
type LinkRecorder struct {
	recorder metrics.Recorder
	logger   *slog.Logger
}

// NewLinkRecorder はLinkRecorderを生成する。
func NewLinkRecorder(recorder metrics.Recorder, logger *slog.Logger) *LinkRecorder {
	if recorder == nil {
		recorder = metrics.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LinkRecorder{recorder: recorder, logger: logger}
}

// Open は遷移を記録する。
func (l *LinkRecorder) Open(rawURL string) {
	host := unknownHost
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	l.recorder.RecordLinkOpen(host)
	l.logger.Info("card link opened",
		slog.String("host", host),
		slog.String("url", rawURL),
	)
}

var _ interaction.LinkOpener = (*LinkRecorder)(nil)
