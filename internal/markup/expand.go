// Package markup はFormattedTextのテンプレート展開を提供する。
//
// テンプレート中のリテラル "{}" がプレースホルダであり、N番目（0始まり）の
// プレースホルダはentities[N]に束縛される。エスケープ機構は存在しない。
package markup

import (
	"strings"

	"github.com/hitoshi/cardfeed/internal/model"
)

// Placeholder はテンプレート中の唯一のプレースホルダ構文。
const Placeholder = "{}"

// フォントスタイルの既知の値。これ以外の値はフラグを立てない。
const (
	FontStyleUnderline     = "underline"
	FontStyleStrikeThrough = "strike-through"
)

// StyledRun は描画単位となるスタイル付きテキスト片。
// リテラル部分はスタイル無しのランとして出力される。
type StyledRun struct {
	Text          string  `json:"text"`
	Color         *string `json:"color,omitempty"`
	Underline     bool    `json:"underline,omitempty"`
	Strikethrough bool    `json:"strikethrough,omitempty"`
	Link          *string `json:"link,omitempty"`
}

// IsStyled はエンティティ由来のランかどうかを返す。
func (r StyledRun) IsStyled() bool {
	return r.Color != nil || r.Link != nil || r.Underline || r.Strikethrough
}

// Expand はテンプレートを左から走査し、リテラルとエンティティのランを出現順に返す。
//
// textが未設定または空の場合は空のランを1つだけ返す。
// k個のプレースホルダに対してリテラルランは常にk+1個（空を含む）出力される。
// 対応するエンティティが無いプレースホルダは何も出力しない。
func Expand(ft model.FormattedText) []StyledRun {
	if ft.Text == nil || *ft.Text == "" {
		return []StyledRun{{Text: ""}}
	}

	literals := strings.Split(*ft.Text, Placeholder)
	runs := make([]StyledRun, 0, len(literals)*2-1)

	for i, literal := range literals {
		runs = append(runs, StyledRun{Text: literal})

		// 最後のリテラルの後にはプレースホルダが無い
		if i == len(literals)-1 {
			break
		}
		if i < len(ft.Entities) {
			runs = append(runs, entityRun(ft.Entities[i]))
		}
	}

	return runs
}

// entityRun はエンティティをスタイル付きランに変換する。
func entityRun(e model.Entity) StyledRun {
	run := StyledRun{
		Color: e.Color,
		Link:  e.URL,
	}
	if e.Text != nil {
		run.Text = *e.Text
	}
	if e.FontStyle != nil {
		switch *e.FontStyle {
		case FontStyleUnderline:
			run.Underline = true
		case FontStyleStrikeThrough:
			run.Strikethrough = true
		}
	}
	return run
}

// Count はテンプレート中のプレースホルダ数を返す。
func Count(template string) int {
	return strings.Count(template, Placeholder)
}

// PlainText はランのテキストを連結した文字列を返す。
func PlainText(runs []StyledRun) string {
	var b strings.Builder
	for _, r := range runs {
		b.WriteString(r.Text)
	}
	return b.String()
}
