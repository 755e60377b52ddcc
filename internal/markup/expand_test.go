package markup

import (
	"strings"
	"testing"

	"github.com/hitoshi/cardfeed/internal/model"
)

func strPtr(s string) *string { return &s }

func text(s string) model.FormattedText {
	return model.FormattedText{Text: strPtr(s)}
}

func TestExpand_EmptyOrNilText_ReturnsSingleEmptyRun(t *testing.T) {
	tests := []struct {
		name string
		ft   model.FormattedText
	}{
		{"textがnil", model.FormattedText{}},
		{"textが空文字列", model.FormattedText{
			Text:     strPtr(""),
			Entities: []model.Entity{{Text: strPtr("ignored")}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs := Expand(tt.ft)
			if len(runs) != 1 {
				t.Fatalf("len(runs) = %d, want 1", len(runs))
			}
			if runs[0].Text != "" || runs[0].IsStyled() {
				t.Errorf("runs[0] = %+v, want empty unstyled run", runs[0])
			}
		})
	}
}

func TestExpand_NoPlaceholder_ReturnsLiteral(t *testing.T) {
	runs := Expand(text("Hello world"))
	if len(runs) != 1 || runs[0].Text != "Hello world" {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestExpand_InterleavesLiteralAndEntityRuns(t *testing.T) {
	ft := model.FormattedText{
		Text: strPtr("Pay {} and get {} back"),
		Entities: []model.Entity{
			{Text: strPtr("₹100"), Color: strPtr("#FF0000"), FontStyle: strPtr("underline")},
			{Text: strPtr("5%"), URL: strPtr("https://example.com/offer"), FontStyle: strPtr("strike-through")},
		},
	}

	runs := Expand(ft)

	wantTexts := []string{"Pay ", "₹100", " and get ", "5%", " back"}
	if len(runs) != len(wantTexts) {
		t.Fatalf("len(runs) = %d, want %d: %+v", len(runs), len(wantTexts), runs)
	}
	for i, want := range wantTexts {
		if runs[i].Text != want {
			t.Errorf("runs[%d].Text = %q, want %q", i, runs[i].Text, want)
		}
	}

	if runs[0].IsStyled() || runs[2].IsStyled() || runs[4].IsStyled() {
		t.Error("リテラルランはスタイルを持たないべき")
	}
	if runs[1].Color == nil || *runs[1].Color != "#FF0000" {
		t.Errorf("runs[1].Color = %v, want #FF0000", runs[1].Color)
	}
	if !runs[1].Underline || runs[1].Strikethrough {
		t.Errorf("runs[1] flags = underline:%v strike:%v", runs[1].Underline, runs[1].Strikethrough)
	}
	if runs[3].Link == nil || *runs[3].Link != "https://example.com/offer" {
		t.Errorf("runs[3].Link = %v", runs[3].Link)
	}
	if !runs[3].Strikethrough || runs[3].Underline {
		t.Errorf("runs[3] flags = underline:%v strike:%v", runs[3].Underline, runs[3].Strikethrough)
	}
}

func TestExpand_UnknownFontStyle_SetsNoFlag(t *testing.T) {
	ft := model.FormattedText{
		Text:     strPtr("{}"),
		Entities: []model.Entity{{Text: strPtr("x"), FontStyle: strPtr("bold")}},
	}

	runs := Expand(ft)
	if len(runs) != 3 {
		t.Fatalf("len(runs) = %d, want 3", len(runs))
	}
	if runs[1].Underline || runs[1].Strikethrough {
		t.Errorf("未知のfont_styleはフラグを立てないべき: %+v", runs[1])
	}
}

func TestExpand_EntityWithoutText_EmitsEmptyStyledRun(t *testing.T) {
	ft := model.FormattedText{
		Text:     strPtr("a{}b"),
		Entities: []model.Entity{{Color: strPtr("#000")}},
	}

	runs := Expand(ft)
	if len(runs) != 3 {
		t.Fatalf("len(runs) = %d, want 3", len(runs))
	}
	if runs[1].Text != "" || runs[1].Color == nil {
		t.Errorf("runs[1] = %+v", runs[1])
	}
}

func TestExpand_MissingEntities_DropsPlaceholder(t *testing.T) {
	ft := model.FormattedText{
		Text:     strPtr("A{}B{}C{}D"),
		Entities: []model.Entity{{Text: strPtr("x")}},
	}

	runs := Expand(ft)

	// リテラル4つ + 束縛されたエンティティ1つ
	if len(runs) != 5 {
		t.Fatalf("len(runs) = %d, want 5: %+v", len(runs), runs)
	}
	if got := PlainText(runs); got != "AxBCD" {
		t.Errorf("PlainText = %q, want %q", got, "AxBCD")
	}
}

// k個のプレースホルダとm>=k個のエンティティに対して、k個のスタイル付きランと
// k+1個のリテラルランが生成され、リテラルの連結が元テキストからプレースホルダを除いたものになる。
func TestExpand_Property_LiteralCountAndConcatenation(t *testing.T) {
	templates := []string{
		"{}",
		"{}{}",
		"start {} middle {} end",
		"{}leading",
		"trailing{}",
		"no placeholders",
		"{{}}",
		"日本語{}テキスト{}",
	}

	for _, tmpl := range templates {
		for _, extra := range []int{0, 2} {
			k := Count(tmpl)
			entities := make([]model.Entity, k+extra)
			for i := range entities {
				entities[i] = model.Entity{Text: strPtr("E"), Color: strPtr("#123456")}
			}

			runs := Expand(model.FormattedText{Text: strPtr(tmpl), Entities: entities})

			var styled, literal int
			var literalText strings.Builder
			for _, r := range runs {
				if r.IsStyled() {
					styled++
				} else {
					literal++
					literalText.WriteString(r.Text)
				}
			}

			if styled != k {
				t.Errorf("%q: styled = %d, want %d", tmpl, styled, k)
			}
			if literal != k+1 {
				t.Errorf("%q: literal = %d, want %d", tmpl, literal, k+1)
			}
			if want := strings.ReplaceAll(tmpl, Placeholder, ""); literalText.String() != want {
				t.Errorf("%q: literal text = %q, want %q", tmpl, literalText.String(), want)
			}
		}
	}
}

// m<k の場合でもリテラルテキストは全プレースホルダを除いた元テキストになる。
func TestExpand_Property_FewerEntitiesStillStripsAllPlaceholders(t *testing.T) {
	tmpl := "{}a{}b{}c{}"
	for m := 0; m <= 4; m++ {
		entities := make([]model.Entity, m)
		for i := range entities {
			entities[i] = model.Entity{Text: strPtr("E"), URL: strPtr("https://e.example")}
		}

		runs := Expand(model.FormattedText{Text: strPtr(tmpl), Entities: entities})

		var styled int
		var literalText strings.Builder
		for _, r := range runs {
			if r.IsStyled() {
				styled++
				continue
			}
			literalText.WriteString(r.Text)
		}
		if styled != m {
			t.Errorf("m=%d: styled = %d, want %d", m, styled, m)
		}
		if literalText.String() != "abc" {
			t.Errorf("m=%d: literal text = %q, want %q", m, literalText.String(), "abc")
		}
	}
}

func TestExpand_Deterministic(t *testing.T) {
	ft := model.FormattedText{
		Text:     strPtr("x{}y{}z"),
		Entities: []model.Entity{{Text: strPtr("1")}, {Text: strPtr("2")}},
	}

	first := Expand(ft)
	for i := 0; i < 10; i++ {
		again := Expand(ft)
		if PlainText(again) != PlainText(first) || len(again) != len(first) {
			t.Fatalf("Expand should be deterministic: %+v vs %+v", again, first)
		}
	}
}
