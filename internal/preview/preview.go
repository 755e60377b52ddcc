// Package preview はフィードをターミナル上に描画するプレビューコマンドを提供する。
//
// APIサーバーやデータベースを介さず、フィードAPIまたはローカルファイルから
// ペイロードを読み込み、画像寸法をその場で取得して描画する。
package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/muesli/termenv"
	"github.com/spf13/pflag"

	"github.com/hitoshi/cardfeed/internal/background"
	"github.com/hitoshi/cardfeed/internal/feed"
	"github.com/hitoshi/cardfeed/internal/imagemeta"
	"github.com/hitoshi/cardfeed/internal/metrics"
	"github.com/hitoshi/cardfeed/internal/model"
	"github.com/hitoshi/cardfeed/internal/render"
	"github.com/hitoshi/cardfeed/internal/security"
)

const (
	// DefaultWidth はデフォルトの描画幅（列数）。
	DefaultWidth = 60
	// MinWidth は受け付ける最小の描画幅。
	MinWidth = 20

	maxPayloadSize = 5 << 20
)

// Options はプレビューの設定。
type Options struct {
	URL     string
	File    string
	Width   int
	NoColor bool
	Offline bool
	Timeout time.Duration
}

// ParseFlags はpreviewサブコマンドの引数を解析する。
// --url の既定値は環境変数FEED_URL。
func ParseFlags(args []string) (Options, error) {
	var opts Options

	fs := pflag.NewFlagSet("preview", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.URL, "url", os.Getenv("FEED_URL"), "フィードAPIのURL")
	fs.StringVar(&opts.File, "file", "", "フィードペイロードのJSONファイル（--urlより優先）")
	fs.IntVar(&opts.Width, "width", DefaultWidth, "描画幅（列数）")
	fs.BoolVar(&opts.NoColor, "no-color", false, "色を出力しない")
	fs.BoolVar(&opts.Offline, "offline", false, "画像寸法を取得せずプレースホルダで描画する")
	fs.DurationVar(&opts.Timeout, "timeout", 10*time.Second, "取得タイムアウト")

	if err := fs.Parse(args); err != nil {
		return Options{}, fmt.Errorf("parse preview flags: %w", err)
	}
	if opts.URL == "" && opts.File == "" {
		return Options{}, errors.New("--url または --file を指定してください")
	}
	if opts.Width < MinWidth {
		return Options{}, fmt.Errorf("--width は %d 以上で指定してください: %d", MinWidth, opts.Width)
	}
	return opts, nil
}

// Run はフィードを読み込み、ターミナル向けに描画してwへ書き出す。
func Run(ctx context.Context, w io.Writer, opts Options, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	guard := security.NewGuard()
	client := guard.NewSafeClient(opts.Timeout, maxPayloadSize)

	groups, err := load(ctx, opts, feed.NewClient(client, guard, metrics.Discard, logger))
	if err != nil {
		return err
	}

	var lookup background.DimensionLookup
	if !opts.Offline {
		lookup = imagemeta.NewMemoryLookup(imagemeta.NewProber(client, guard, imagemeta.DefaultMaxBytes))
	}

	screen := render.NewRenderer(lookup, render.Options{LookupTimeout: opts.Timeout}, nil).Render(ctx, groups, nil)

	profile := termenv.Ascii
	if !opts.NoColor {
		profile = termenv.NewOutput(w).EnvColorProfile()
	}

	logger.Debug("プレビューを描画します",
		slog.Int("group_count", len(groups)),
		slog.Int("card_count", feed.CountCards(groups)),
	)

	if _, err := io.WriteString(w, NewTerminal(w, opts.Width, profile).Render(screen)+"\n"); err != nil {
		return fmt.Errorf("write preview: %w", err)
	}
	return nil
}

// load はファイルまたはフィードAPIからカードグループ列を読み込む。
func load(ctx context.Context, opts Options, client *feed.Client) ([]model.CardGroup, error) {
	if opts.File != "" {
		payload, err := os.ReadFile(opts.File)
		if err != nil {
			return nil, fmt.Errorf("read feed file: %w", err)
		}
		return feed.Decode(payload)
	}

	result, err := client.Fetch(ctx, opts.URL, feed.Conditional{})
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	return result.Groups, nil
}
