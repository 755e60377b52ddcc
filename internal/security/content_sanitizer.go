// Package security はアプリケーションのセキュリティ機能を提供する。
//
// CardSanitizer はカード画面のHTMLレンダリング結果をサニタイズする。
// フィードペイロード由来の色やURLがHTMLに埋め込まれるため、
// 許可リストに含まれる要素・クラス・スタイルのみを通過させる。
package security

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// colorValue は #RGB / #RRGGBB / #RRGGBBAA 形式の色。
	colorValue = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
	// gradientValue は水平方向のlinear-gradient。
	gradientValue = regexp.MustCompile(`^linear-gradient\(to right(?:\s*,\s*#[0-9a-fA-F]{3,8})+\)$`)
	// lengthValue はpx単位の長さ。
	lengthValue = regexp.MustCompile(`^\d+(?:\.\d+)?px$`)
	// classValue はレンダラーが出力するクラス名。
	classValue = regexp.MustCompile(`^[a-z0-9_\- ]+$`)
)

// CardSanitizer はカードHTMLのサニタイザ。
type CardSanitizer struct {
	policy *bluemonday.Policy
}

// NewCardSanitizer はカードHTML用のbluemondayポリシーを構築する。
// ポリシーの内容:
//   - 構造要素: main, section, h2, div, p, span, ul, li, a, img
//   - class属性とdata-*属性
//   - style属性: color, background-color, background-image(linear-gradient), width, height, text-decoration
//   - aタグ: http/httpsの絶対URLのみ、target="_blank" と rel="noopener noreferrer" を付与
//   - imgタグ: http/httpsのsrc
func NewCardSanitizer() *CardSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements("main", "section", "h2", "div", "p", "span", "ul", "li")
	p.AllowAttrs("class").Matching(classValue).Globally()
	p.AllowDataAttributes()

	p.AllowStyles("color", "background-color").Matching(colorValue).OnElements("div", "span", "a")
	p.AllowStyles("background-image").Matching(gradientValue).OnElements("div")
	p.AllowStyles("width", "height").Matching(lengthValue).OnElements("div", "img")
	p.AllowStyles("text-decoration").MatchingEnum("underline", "line-through", "underline line-through").OnElements("span", "a")

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AllowURLSchemes("http", "https")
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt", "width", "height").OnElements("img")

	return &CardSanitizer{policy: p}
}

// Sanitize はHTMLをサニタイズする。同一入力に対して常に同一出力を返す。
func (s *CardSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}

// SafeLink はペイロード由来のリンクURLを検証する。
// http/httpsの絶対URLのみを受け付ける。
func SafeLink(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	if !isAllowedScheme(strings.ToLower(u.Scheme)) {
		return "", false
	}
	return u.String(), true
}

// SafeColor はペイロード由来の色文字列を検証する。
func SafeColor(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if !colorValue.MatchString(raw) {
		return "", false
	}
	return raw, true
}
