// Package render はカードグループ列を描画用の画面記述に変換する。
//
// マークアップ展開、背景解決、レイアウト方針、インタラクション状態を合成し、
// クライアント（JSON）、ブラウザ（HTML）、ターミナル（プレビュー）で共通に使う。
package render

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/cardfeed/internal/background"
	"github.com/hitoshi/cardfeed/internal/interaction"
	"github.com/hitoshi/cardfeed/internal/layout"
	"github.com/hitoshi/cardfeed/internal/markup"
	"github.com/hitoshi/cardfeed/internal/metrics"
	"github.com/hitoshi/cardfeed/internal/model"
)

// 副次アクションの識別子
const (
	ActionRemindLater = "remind_later"
	ActionDismissNow  = "dismiss_now"
)

// Screen は1回の描画結果。
type Screen struct {
	Generation uint64      `json:"generation"`
	Groups     []GroupView `json:"groups"`
}

// GroupView はカードグループの描画記述。
type GroupView struct {
	Index          int              `json:"index"`
	ID             *int             `json:"id,omitempty"`
	Name           *string          `json:"name,omitempty"`
	DesignType     model.DesignType `json:"design_type"`
	Axis           layout.Axis      `json:"axis"`
	Spacing        float64          `json:"spacing"`
	AdvisoryHeight *float64         `json:"advisory_height,omitempty"`
	Cards          []CardView       `json:"cards"`
}

// CardView はカード1枚の描画記述。
type CardView struct {
	Key         string                `json:"key"`
	ID          *int                  `json:"id,omitempty"`
	Name        *string               `json:"name,omitempty"`
	Title       []markup.StyledRun    `json:"title"`
	Description []markup.StyledRun    `json:"description"`
	Icon        string                `json:"icon,omitempty"`
	Background  background.Background `json:"background"`
	Size        layout.Size           `json:"size"`
	CTAs        []CTAView             `json:"ctas,omitempty"`
	URL         string                `json:"url,omitempty"`
	interaction.View
	Actions []string `json:"actions,omitempty"`
}

// CTAView はカード上のボタンの描画記述。
type CTAView struct {
	Text      string `json:"text"`
	URL       string `json:"url,omitempty"`
	BgColor   string `json:"bg_color,omitempty"`
	TextColor string `json:"text_color,omitempty"`
}

// Options はRendererの設定。
type Options struct {
	// Concurrency は背景画像の寸法ルックアップの最大並列数。
	Concurrency int
	// LookupTimeout はルックアップ1件あたりの上限時間。0の場合は制限しない。
	LookupTimeout time.Duration
}

// Renderer はカードグループ列を画面記述に変換する。
type Renderer struct {
	lookup   background.DimensionLookup
	opts     Options
	recorder metrics.Recorder
}

// NewRenderer はRendererを生成する。lookupがnilの場合、画像背景はすべてプレースホルダになる。
func NewRenderer(lookup background.DimensionLookup, opts Options, recorder metrics.Recorder) *Renderer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if recorder == nil {
		recorder = metrics.Discard
	}
	return &Renderer{lookup: lookup, opts: opts, recorder: recorder}
}

// cardRef は描画対象カードの位置と解決結果の格納先。
type cardRef struct {
	key  string
	card model.Card
	dt   model.DesignType
	view interaction.View
	bg   background.Background
}

// Render はグループ列を描画する。
// boardの状態機械はカードごとに初回描画時に生成され、消えたカードの状態機械は破棄される。
// Dismissedのカードは出力から除外されるが、グループのデータは変更しない。
// boardがnilの場合は全カードを初期状態として描画する。
func (r *Renderer) Render(ctx context.Context, groups []model.CardGroup, board *interaction.Board) Screen {
	start := time.Now()
	defer func() { r.recorder.RecordRenderLatency(time.Since(start)) }()

	if board == nil {
		board = interaction.NewBoard()
	}

	refs := make([][]cardRef, len(groups))
	present := make(map[string]struct{})
	for gi, g := range groups {
		dt := g.DesignTypeOrDefault()
		refs[gi] = make([]cardRef, len(g.Cards))
		for ci, c := range g.Cards {
			key := model.CardKey(gi, g, ci, c)
			// IDが重複するカードも状態機械はカードごとに持つ
			if _, dup := present[key]; dup {
				key = model.DisambiguateCardKey(key, gi, ci)
			}
			present[key] = struct{}{}
			refs[gi][ci] = cardRef{key: key, card: c, dt: dt, view: board.Ensure(key, c, dt)}
		}
	}
	board.Retain(present)

	r.resolveBackgrounds(ctx, refs)

	screen := Screen{Groups: make([]GroupView, 0, len(groups))}
	for gi, g := range groups {
		dt := g.DesignTypeOrDefault()
		gv := GroupView{
			Index:          gi,
			ID:             g.ID,
			Name:           g.Name,
			DesignType:     dt,
			Axis:           layout.GroupAxis(g),
			Spacing:        layout.Spacing,
			AdvisoryHeight: g.Height,
			Cards:          make([]CardView, 0, len(g.Cards)),
		}
		for _, ref := range refs[gi] {
			if ref.view.State == interaction.StateDismissed {
				continue
			}
			gv.Cards = append(gv.Cards, cardView(ref))
		}
		screen.Groups = append(screen.Groups, gv)
	}
	return screen
}

// resolveBackgrounds は全カードの背景を解決する。
// 画像ルックアップが必要なカードのみsemaphoreで並列数を制御して並行に解決し、
// 1件の遅いルックアップが他のカードの解決を待たせないようにする。
func (r *Renderer) resolveBackgrounds(ctx context.Context, refs [][]cardRef) {
	sem := make(chan struct{}, r.opts.Concurrency)
	var wg sync.WaitGroup

	for gi := range refs {
		for ci := range refs[gi] {
			ref := &refs[gi][ci]
			if ref.view.State == interaction.StateDismissed {
				continue
			}
			if _, needsLookup := background.ImageURL(ref.card, ref.dt); !needsLookup || r.lookup == nil {
				ref.bg = background.Resolve(ctx, ref.card, ref.dt, r.lookup)
				r.recorder.RecordBackground(string(ref.bg.Kind))
				continue
			}

			wg.Add(1)
			sem <- struct{}{}
			go func(ref *cardRef) {
				defer wg.Done()
				defer func() { <-sem }()

				lookupCtx := ctx
				if r.opts.LookupTimeout > 0 {
					var cancel context.CancelFunc
					lookupCtx, cancel = context.WithTimeout(ctx, r.opts.LookupTimeout)
					defer cancel()
				}
				ref.bg = background.Resolve(lookupCtx, ref.card, ref.dt, r.lookup)
				r.recorder.RecordBackground(string(ref.bg.Kind))
			}(ref)
		}
	}
	wg.Wait()
}

func cardView(ref cardRef) CardView {
	c := ref.card
	v := CardView{
		Key:         ref.key,
		ID:          c.ID,
		Name:        c.Name,
		Title:       markup.Expand(c.TitleMarkup()),
		Description: markup.Expand(c.DescriptionMarkup()),
		Icon:        c.Icon.URLOrEmpty(),
		Background:  ref.bg,
		Size:        layout.CardSize(ref.dt, ref.bg),
		URL:         c.URLOrEmpty(),
		View:        ref.view,
	}
	if ref.view.ShowActions {
		v.Actions = []string{ActionRemindLater, ActionDismissNow}
	}
	for _, cta := range c.CTA {
		v.CTAs = append(v.CTAs, CTAView{
			Text:      deref(cta.Text),
			URL:       deref(cta.URL),
			BgColor:   deref(cta.BgColor),
			TextColor: deref(cta.TextColor),
		})
	}
	return v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
