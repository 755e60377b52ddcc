package preview

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/termenv"

	"github.com/hitoshi/cardfeed/internal/background"
	"github.com/hitoshi/cardfeed/internal/layout"
	"github.com/hitoshi/cardfeed/internal/markup"
	"github.com/hitoshi/cardfeed/internal/render"
	"github.com/hitoshi/cardfeed/internal/security"
)

const (
	// pixelsPerRow はカードの公称高さ（pt）を行数に換算する係数。
	pixelsPerRow = 20.0
	minCardRows  = 3
	minCardCols  = 12
	cardGap      = 1
)

// Terminal は画面記述をlipglossで装飾したテキストに変換する。
type Terminal struct {
	renderer *lipgloss.Renderer
	width    int
}

// NewTerminal はTerminalを生成する。profileにtermenv.Asciiを渡すと色を出力しない。
func NewTerminal(w io.Writer, width int, profile termenv.Profile) *Terminal {
	if width < MinWidth {
		width = MinWidth
	}
	// 明示的に設定しないとlipglossは環境から色プロファイルを再検出する
	r := lipgloss.NewRenderer(w, termenv.WithProfile(profile))
	r.SetColorProfile(profile)
	return &Terminal{renderer: r, width: width}
}

// Render は画面全体を描画する。
func (t *Terminal) Render(screen render.Screen) string {
	sections := make([]string, 0, len(screen.Groups))
	for _, g := range screen.Groups {
		sections = append(sections, t.group(g))
	}
	return strings.Join(sections, "\n\n")
}

func (t *Terminal) group(g render.GroupView) string {
	name := fmt.Sprintf("#%d", g.Index)
	if g.Name != nil && *g.Name != "" {
		name = *g.Name
	}
	header := t.renderer.NewStyle().Bold(true).
		Render(fmt.Sprintf("%s  %s  %s", name, g.DesignType.Code(), g.Axis))

	boxes := make([]string, 0, len(g.Cards))
	for _, c := range g.Cards {
		boxes = append(boxes, t.card(c))
	}
	if len(boxes) == 0 {
		return header
	}

	var body string
	if g.Axis == layout.Horizontal {
		spaced := make([]string, 0, len(boxes)*2)
		for i, b := range boxes {
			if i > 0 {
				spaced = append(spaced, strings.Repeat(" ", cardGap))
			}
			spaced = append(spaced, b)
		}
		body = lipgloss.JoinHorizontal(lipgloss.Top, spaced...)
	} else {
		body = lipgloss.JoinVertical(lipgloss.Left, boxes...)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body)
}

func (t *Terminal) card(c render.CardView) string {
	lines := make([]string, 0, 6)

	if bar := t.gradientBar(c.Background, t.columns(c.Size)-4); bar != "" {
		lines = append(lines, bar)
	}
	switch c.Background.Kind {
	case background.KindImage:
		lines = append(lines, t.muted(fmt.Sprintf("▧ %dx%d %s", c.Background.Width, int(c.Background.Height), c.Background.URL)))
	case background.KindPlaceholder:
		lines = append(lines, t.muted("▧ image"))
	}

	if title := t.runs(c.Title); title != "" {
		lines = append(lines, t.renderer.NewStyle().Bold(true).Render(title))
	}
	if desc := t.runs(c.Description); desc != "" {
		lines = append(lines, desc)
	}
	if ctas := t.ctas(c.CTAs); ctas != "" {
		lines = append(lines, ctas)
	}
	if len(c.Actions) > 0 {
		lines = append(lines, t.muted("⟵ "+strings.Join(c.Actions, " | ")))
	}

	style := t.renderer.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1).
		Width(t.columns(c.Size) - 2).
		Height(t.rows(c.Size) - 2)
	if c.Background.Kind == background.KindColor {
		if hex, ok := termColor(c.Background.Color); ok {
			style = style.Background(lipgloss.Color(hex))
		}
	}
	return style.Render(strings.Join(lines, "\n"))
}

// runs はスタイル付きランを連結して描画する。リンクは "text <url>" として表示する。
func (t *Terminal) runs(runs []markup.StyledRun) string {
	var b strings.Builder
	for _, r := range runs {
		text := r.Text
		if r.Link != nil {
			if link, ok := security.SafeLink(*r.Link); ok {
				text = fmt.Sprintf("%s <%s>", text, link)
			}
		}
		if text == "" {
			continue
		}

		style := t.renderer.NewStyle().Underline(r.Underline).Strikethrough(r.Strikethrough)
		if r.Color != nil {
			if hex, ok := termColor(*r.Color); ok {
				style = style.Foreground(lipgloss.Color(hex))
			}
		}
		b.WriteString(style.Render(text))
	}
	return b.String()
}

func (t *Terminal) ctas(ctas []render.CTAView) string {
	parts := make([]string, 0, len(ctas))
	for _, cta := range ctas {
		style := t.renderer.NewStyle().Padding(0, 1)
		if hex, ok := termColor(cta.BgColor); ok {
			style = style.Background(lipgloss.Color(hex))
		}
		if hex, ok := termColor(cta.TextColor); ok {
			style = style.Foreground(lipgloss.Color(hex))
		}
		parts = append(parts, style.Render("["+cta.Text+"]"))
	}
	return strings.Join(parts, " ")
}

func (t *Terminal) muted(s string) string {
	return t.renderer.NewStyle().Faint(true).Render(s)
}

// gradientBar はグラデーション背景を先頭から末尾へ補間した帯として描画する。
func (t *Terminal) gradientBar(bg background.Background, width int) string {
	if bg.Kind != background.KindGradient || width <= 0 {
		return ""
	}
	stops := GradientStops(bg.Colors, width)
	if len(stops) == 0 {
		return ""
	}

	var b strings.Builder
	for _, hex := range stops {
		b.WriteString(t.renderer.NewStyle().Foreground(lipgloss.Color(hex)).Render("█"))
	}
	return b.String()
}

// columns はカードの幅をビューポート比で列数に換算する。
func (t *Terminal) columns(size layout.Size) int {
	px := size.Resolve(render.DefaultViewport)
	cols := int(math.Round(px / render.DefaultViewport * float64(t.width)))
	if cols < minCardCols {
		cols = minCardCols
	}
	if cols > t.width {
		cols = t.width
	}
	return cols
}

func (t *Terminal) rows(size layout.Size) int {
	rows := int(math.Round(size.Height / pixelsPerRow))
	if rows < minCardRows {
		rows = minCardRows
	}
	return rows
}

// GradientStops は色リストをn個のセルに水平方向に補間した16進色を返す。
// 解析できない色は無視する。有効な色が無い場合はnilを返す。
func GradientStops(colors []string, n int) []string {
	parsed := make([]colorful.Color, 0, len(colors))
	for _, raw := range colors {
		hex, ok := termColor(raw)
		if !ok {
			continue
		}
		c, err := colorful.Hex(hex)
		if err != nil {
			continue
		}
		parsed = append(parsed, c)
	}
	if len(parsed) == 0 || n <= 0 {
		return nil
	}

	stops := make([]string, n)
	for i := range stops {
		pos := 0.0
		if n > 1 {
			pos = float64(i) / float64(n-1)
		}
		stops[i] = blend(parsed, pos).Hex()
	}
	return stops
}

// blend は0〜1の位置posにおける色を隣接する2色のLab補間で求める。
func blend(colors []colorful.Color, pos float64) colorful.Color {
	if len(colors) == 1 {
		return colors[0]
	}
	seg := pos * float64(len(colors)-1)
	i := int(math.Floor(seg))
	if i >= len(colors)-1 {
		return colors[len(colors)-1]
	}
	frac := seg - float64(i)
	if frac == 0 {
		return colors[i]
	}
	return colors[i].BlendLab(colors[i+1], frac)
}

// termColor はペイロード由来の色をターミナルで扱える #rrggbb 形式に正規化する。
// アルファ値は捨てる。
func termColor(raw string) (string, bool) {
	hex, ok := security.SafeColor(raw)
	if !ok {
		return "", false
	}
	if len(hex) == 9 {
		hex = hex[:7]
	}
	c, err := colorful.Hex(strings.ToLower(hex))
	if err != nil {
		return "", false
	}
	return c.Hex(), true
}
