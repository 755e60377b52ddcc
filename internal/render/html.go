package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/hitoshi/cardfeed/internal/background"
	"github.com/hitoshi/cardfeed/internal/markup"
	"github.com/hitoshi/cardfeed/internal/security"
)

// DefaultViewport はHTML描画で使用するビューポート幅。
const DefaultViewport = 390.0

var screenTemplate = template.Must(template.New("screen").Funcs(template.FuncMap{
	"cardStyle": cardStyle,
	"runStyle":  runStyle,
	"ctaStyle":  ctaStyle,
	"actionLabel": func(a string) string {
		switch a {
		case ActionRemindLater:
			return "Remind me later"
		case ActionDismissNow:
			return "Dismiss now"
		}
		return a
	},
}).Parse(`<main class="screen" data-generation="{{.Screen.Generation}}">
{{- range .Screen.Groups}}
<section class="group group-{{.Axis}} design-{{.DesignType}}" data-group-index="{{.Index}}">
{{- with .Name}}<h2>{{.}}</h2>{{end}}
<div class="cards">
{{- range .Cards}}
<div class="card state-{{.State}}{{if .SlideOffset}} slid{{end}}" data-card-key="{{.Key}}" style="{{cardStyle . $.Viewport}}">
{{- if eq .Background.Kind "image"}}<img class="bg" src="{{.Background.URL}}" alt="">{{end}}
{{- if eq .Background.Kind "placeholder"}}<div class="bg placeholder"></div>{{end}}
{{- if .Icon}}<img class="icon" src="{{.Icon}}" alt="">{{end}}
<p class="title">{{range .Title}}{{if .Link}}<a href="{{.Link}}" style="{{runStyle .}}">{{.Text}}</a>{{else}}<span style="{{runStyle .}}">{{.Text}}</span>{{end}}{{end}}</p>
<p class="description">{{range .Description}}{{if .Link}}<a href="{{.Link}}" style="{{runStyle .}}">{{.Text}}</a>{{else}}<span style="{{runStyle .}}">{{.Text}}</span>{{end}}{{end}}</p>
{{- range .CTAs}}{{if .URL}}<a class="cta" href="{{.URL}}" style="{{ctaStyle .}}">{{.Text}}</a>{{else}}<span class="cta" style="{{ctaStyle .}}">{{.Text}}</span>{{end}}{{end}}
{{- if .Actions}}<ul class="actions">{{range .Actions}}<li data-action="{{.}}">{{actionLabel .}}</li>{{end}}</ul>{{end}}
</div>
{{- end}}
</div>
</section>
{{- end}}
</main>
`))

// HTMLRenderer は画面記述をサニタイズ済みHTMLとして書き出す。
type HTMLRenderer struct {
	sanitizer *security.CardSanitizer
	viewport  float64
}

// NewHTMLRenderer はHTMLRendererを生成する。viewportが0以下の場合はDefaultViewportを使う。
func NewHTMLRenderer(sanitizer *security.CardSanitizer, viewport float64) *HTMLRenderer {
	if viewport <= 0 {
		viewport = DefaultViewport
	}
	return &HTMLRenderer{sanitizer: sanitizer, viewport: viewport}
}

// Render はscreenをHTMLとしてwへ書き出す。
func (h *HTMLRenderer) Render(w io.Writer, screen Screen) error {
	var buf bytes.Buffer
	data := struct {
		Screen   Screen
		Viewport float64
	}{screen, h.viewport}

	if err := screenTemplate.Execute(&buf, data); err != nil {
		return fmt.Errorf("render html: %w", err)
	}

	out := buf.String()
	if h.sanitizer != nil {
		out = h.sanitizer.Sanitize(out)
	}
	_, err := io.WriteString(w, out)
	return err
}

// cardStyle はカードのサイズと単色・グラデーション背景のスタイルを返す。
// ペイロード由来の色は検証を通過したものだけを使う。
func cardStyle(v CardView, viewport float64) template.CSS {
	var decls []string

	width := v.Size.Resolve(viewport)
	decls = append(decls, fmt.Sprintf("width: %gpx", width), fmt.Sprintf("height: %gpx", v.Size.Height))

	switch v.Background.Kind {
	case background.KindColor:
		if c, ok := security.SafeColor(v.Background.Color); ok {
			decls = append(decls, "background-color: "+c)
		}
	case background.KindGradient:
		var colors []string
		for _, raw := range v.Background.Colors {
			if c, ok := security.SafeColor(raw); ok {
				colors = append(colors, c)
			}
		}
		if len(colors) == 1 {
			decls = append(decls, "background-color: "+colors[0])
		} else if len(colors) > 1 {
			decls = append(decls, "background-image: linear-gradient(to right, "+strings.Join(colors, ", ")+")")
		}
	}
	return template.CSS(strings.Join(decls, "; "))
}

// runStyle はスタイル付きランの色と装飾を返す。
func runStyle(r markup.StyledRun) template.CSS {
	var decls []string
	if r.Color != nil {
		if c, ok := security.SafeColor(*r.Color); ok {
			decls = append(decls, "color: "+c)
		}
	}
	switch {
	case r.Underline && r.Strikethrough:
		decls = append(decls, "text-decoration: underline line-through")
	case r.Underline:
		decls = append(decls, "text-decoration: underline")
	case r.Strikethrough:
		decls = append(decls, "text-decoration: line-through")
	}
	return template.CSS(strings.Join(decls, "; "))
}

func ctaStyle(c CTAView) template.CSS {
	var decls []string
	if col, ok := security.SafeColor(c.TextColor); ok {
		decls = append(decls, "color: "+col)
	}
	if col, ok := security.SafeColor(c.BgColor); ok {
		decls = append(decls, "background-color: "+col)
	}
	return template.CSS(strings.Join(decls, "; "))
}
