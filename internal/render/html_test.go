package render

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/hitoshi/cardfeed/internal/background"
	"github.com/hitoshi/cardfeed/internal/interaction"
	"github.com/hitoshi/cardfeed/internal/layout"
	"github.com/hitoshi/cardfeed/internal/markup"
	"github.com/hitoshi/cardfeed/internal/model"
	"github.com/hitoshi/cardfeed/internal/security"
)

func renderHTML(t *testing.T, screen Screen) string {
	t.Helper()
	var buf bytes.Buffer
	h := NewHTMLRenderer(security.NewCardSanitizer(), 0)
	if err := h.Render(&buf, screen); err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	return buf.String()
}

func TestHTMLRenderer_RendersCards(t *testing.T) {
	groups := []model.CardGroup{{
		ID:         intPtr(1),
		Name:       strPtr("promos"),
		DesignType: dtPtr(model.DesignTypeSmallDisplay),
		Cards: []model.Card{{
			ID:      intPtr(7),
			BgColor: strPtr("#ff0000"),
			URL:     strPtr("https://example.com/7"),
			FormattedTitle: &model.FormattedText{
				Text:     strPtr("Hi {}"),
				Entities: []model.Entity{{Text: strPtr("there"), URL: strPtr("https://example.com/there")}},
			},
			CTA: []model.CallToAction{{Text: strPtr("Go"), URL: strPtr("https://example.com/go")}},
		}},
	}}
	screen := NewRenderer(nil, Options{}, nil).Render(context.Background(), groups, nil)

	out := renderHTML(t, screen)

	for _, want := range []string{
		`data-card-key="g1.c7"`,
		"promos",
		"Hi ",
		"there",
		`href="https://example.com/there"`,
		`href="https://example.com/go"`,
		"#ff0000",
		"350px",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output does not contain %q:\n%s", want, out)
		}
	}
}

func TestHTMLRenderer_DropsUnsafeValues(t *testing.T) {
	screen := Screen{Groups: []GroupView{{
		DesignType: model.DesignTypeSmallDisplay,
		Axis:       layout.Vertical,
		Cards: []CardView{{
			Key:        "gp0.cp0",
			Background: background.Color("red;background:url(evil)"),
			Size:       layout.Size{Width: layout.WidthFill, Height: 60},
			Title: []markup.StyledRun{{
				Text: "<script>alert(1)</script>",
				Link: strPtr("javascript:alert(1)"),
			}},
			View: interaction.View{State: interaction.StateIdle},
		}},
	}}}

	out := renderHTML(t, screen)

	if strings.Contains(out, "<script>") {
		t.Errorf("script tag must be escaped:\n%s", out)
	}
	if strings.Contains(out, "javascript:") {
		t.Errorf("javascript link must be dropped:\n%s", out)
	}
	if strings.Contains(out, "evil") {
		t.Errorf("unsafe color must be dropped:\n%s", out)
	}
}

func TestHTMLRenderer_RevealingCardShowsActions(t *testing.T) {
	screen := Screen{Groups: []GroupView{{
		DesignType: model.DesignTypeBigDisplay,
		Axis:       layout.Horizontal,
		Cards: []CardView{{
			Key:        "g1.c1",
			Background: background.Placeholder(250),
			Size:       layout.Size{Width: layout.WidthFill, Height: 250},
			View: interaction.View{
				State:       interaction.StateRevealing,
				Actionable:  true,
				SlideOffset: true,
				ShowActions: true,
			},
			Actions: []string{ActionRemindLater, ActionDismissNow},
		}},
	}}}

	out := renderHTML(t, screen)

	for _, want := range []string{"state-revealing", "slid", "placeholder", `data-action="remind_later"`, `data-action="dismiss_now"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output does not contain %q:\n%s", want, out)
		}
	}
}

func TestCardStyle(t *testing.T) {
	tests := []struct {
		name string
		bg   background.Background
		size layout.Size
		want string
	}{
		{
			name: "color",
			bg:   background.Color("#abcdef"),
			size: layout.Size{Width: layout.WidthFill, Height: 60},
			want: "width: 390px; height: 60px; background-color: #abcdef",
		},
		{
			name: "gradient",
			bg:   background.Gradient([]string{"#000000", "#ffffff"}, nil),
			size: layout.Size{Width: layout.WidthViewportInset, Inset: 40, Height: 60},
			want: "width: 350px; height: 60px; background-image: linear-gradient(to right, #000000, #ffffff)",
		},
		{
			name: "single color gradient",
			bg:   background.Gradient([]string{"#000000"}, nil),
			size: layout.Size{Width: layout.WidthFill, Height: 60},
			want: "width: 390px; height: 60px; background-color: #000000",
		},
		{
			name: "fixed width image",
			bg:   background.Image("https://cdn.example.com/a.png", 400, 200),
			size: layout.Size{Width: layout.WidthFixed, FixedWidth: 400, Height: 200},
			want: "width: 400px; height: 200px",
		},
		{
			name: "invalid color",
			bg:   background.Color("blue"),
			size: layout.Size{Width: layout.WidthFill, Height: 60},
			want: "width: 390px; height: 60px",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cardStyle(CardView{Background: tt.bg, Size: tt.size}, DefaultViewport)
			if string(got) != tt.want {
				t.Errorf("cardStyle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunStyle(t *testing.T) {
	got := runStyle(markup.StyledRun{Color: strPtr("#112233"), Underline: true, Strikethrough: true})
	want := "color: #112233; text-decoration: underline line-through"
	if string(got) != want {
		t.Errorf("runStyle() = %q, want %q", got, want)
	}
}
