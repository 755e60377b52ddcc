// Package model はドメインモデルを定義する。
//
// カードフィードのペイロードはオプショナルなフィールドが多く、
// 「フィールドが存在しない」と「空文字列」を区別する必要がある。
// そのためオプショナルなフィールドはすべてポインタで保持し、
// omitemptyでエンコード時に欠落を再現する。
package model

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Entity はテンプレート中のプレースホルダに束縛されるスタイル付きインラインスパン。
type Entity struct {
	Text      *string `json:"text,omitempty"`
	Color     *string `json:"color,omitempty"`
	URL       *string `json:"url,omitempty"`
	FontStyle *string `json:"font_style,omitempty"`
	Type      *string `json:"type,omitempty"`
}

// FormattedText は "{}" プレースホルダを含むテンプレートとエンティティ列の組。
// Entitiesがnilの場合は "entities" キー自体が無かったことを表す。
type FormattedText struct {
	Text     *string  `json:"text,omitempty"`
	Entities []Entity `json:"entities"`
}

// MarshalJSON はnilのEntitiesを省略し、空のEntitiesは [] として出力する。
func (ft FormattedText) MarshalJSON() ([]byte, error) {
	type plain FormattedText
	return json.Marshal(struct {
		plain
		Entities *[]Entity `json:"entities,omitempty"`
	}{plain: plain(ft), Entities: presentSlice(ft.Entities)})
}

// CallToAction はカード上のボタン記述子。
type CallToAction struct {
	Text      *string `json:"text,omitempty"`
	BgColor   *string `json:"bg_color,omitempty"`
	URL       *string `json:"url,omitempty"`
	TextColor *string `json:"text_color,omitempty"`
}

// GradientModel はグラデーション背景の定義。
// Angleはスキーム互換のために保持するが、描画方向の決定には使用しない。
type GradientModel struct {
	Colors []string `json:"colors"`
	Angle  *int     `json:"angle,omitempty"`
}

// CardImage はリモート画像の参照。
type CardImage struct {
	ImageType *string `json:"image_type,omitempty"`
	AssetType *string `json:"asset_type,omitempty"`
	ImageURL  *string `json:"image_url,omitempty"`
}

// URLOrEmpty は画像URLを返す。未設定の場合は空文字列を返す。
func (i *CardImage) URLOrEmpty() string {
	if i == nil || i.ImageURL == nil {
		return ""
	}
	return *i.ImageURL
}

// Card はフィード上の1枚のカードを表す。
type Card struct {
	ID                   *int           `json:"id,omitempty"`
	Name                 *string        `json:"name,omitempty"`
	FormattedTitle       *FormattedText `json:"formatted_title,omitempty"`
	Title                *string        `json:"title,omitempty"`
	FormattedDescription *FormattedText `json:"formatted_description,omitempty"`
	Description          *string        `json:"description,omitempty"`
	Icon                 *CardImage     `json:"icon,omitempty"`
	URL                  *string        `json:"url,omitempty"`
	BgImage              *CardImage     `json:"bg_image,omitempty"`
	BgColor              *string        `json:"bg_color,omitempty"`
	BgGradient           *GradientModel `json:"bg_gradient,omitempty"`
	CTA                  []CallToAction `json:"cta,omitempty"`
}

// MarshalJSON はnilのCTAを省略し、空のCTAは [] として出力する。
// デコード時は "cta":[] が空スライス、キー無しがnilになるため往復で区別が保たれる。
func (c Card) MarshalJSON() ([]byte, error) {
	type plain Card
	return json.Marshal(struct {
		plain
		CTA *[]CallToAction `json:"cta,omitempty"`
	}{plain: plain(c), CTA: presentSlice(c.CTA)})
}

// presentSlice はnilでないスライスへのポインタを返す。
// omitemptyはポインタがnilの場合のみ省略するため、空スライスも出力される。
func presentSlice[T any](s []T) *[]T {
	if s == nil {
		return nil
	}
	return &s
}

// TitleText はタイトル文字列を返す。
// formatted_title.text、title、空文字列の順で優先する。
func (c Card) TitleText() string {
	return pickText(c.FormattedTitle, c.Title)
}

// DescriptionText は説明文字列を返す。優先順位はTitleTextと同じ。
func (c Card) DescriptionText() string {
	return pickText(c.FormattedDescription, c.Description)
}

// TitleMarkup は展開対象となるタイトルのFormattedTextを返す。
// formatted_titleが無い場合はプレーンなtitleをエンティティ無しで包む。
func (c Card) TitleMarkup() FormattedText {
	return pickMarkup(c.FormattedTitle, c.Title)
}

// DescriptionMarkup は展開対象となる説明のFormattedTextを返す。
func (c Card) DescriptionMarkup() FormattedText {
	return pickMarkup(c.FormattedDescription, c.Description)
}

// URLOrEmpty はカードの遷移先URLを返す。
func (c Card) URLOrEmpty() string {
	if c.URL == nil {
		return ""
	}
	return *c.URL
}

func pickText(formatted *FormattedText, plain *string) string {
	if formatted != nil && formatted.Text != nil {
		return *formatted.Text
	}
	if plain != nil {
		return *plain
	}
	return ""
}

func pickMarkup(formatted *FormattedText, plain *string) FormattedText {
	if formatted != nil && formatted.Text != nil {
		return *formatted
	}
	return FormattedText{Text: plain}
}

// CardGroup はデザインタイプとレイアウト方針を共有するカードの順序付き集合。
type CardGroup struct {
	ID           *int        `json:"id,omitempty"`
	Name         *string     `json:"name,omitempty"`
	DesignType   *DesignType `json:"design_type,omitempty"`
	CardType     *int        `json:"card_type,omitempty"`
	Cards        []Card      `json:"cards"`
	Height       *float64    `json:"height,omitempty"`
	IsScrollable *bool       `json:"is_scrollable,omitempty"`
}

// DesignTypeOrDefault はグループのデザインタイプを返す。
// 未設定の場合はSmallDisplayとして扱う。
func (g CardGroup) DesignTypeOrDefault() DesignType {
	if g.DesignType == nil {
		return DesignTypeSmallDisplay
	}
	return *g.DesignType
}

// FeedRoot はフィードAPIが返す配列の要素。
// コアが消費するのはHCGroupsのみ。
type FeedRoot struct {
	ID                   int         `json:"id"`
	Slug                 *string     `json:"slug,omitempty"`
	Title                *string     `json:"title,omitempty"`
	FormattedTitle       *string     `json:"formatted_title,omitempty"`
	Description          *string     `json:"description,omitempty"`
	FormattedDescription *string     `json:"formatted_description,omitempty"`
	Assets               *string     `json:"assets,omitempty"`
	HCGroups             []CardGroup `json:"hc_groups"`
}

// CardKey はフィード世代内でカードを一意に識別するキーを返す。
// IDが無い場合はリスト内の位置（p接頭辞）で代替する。
// キーはURLパスにそのまま埋め込めるよう "/" を含まない。
func CardKey(groupIndex int, group CardGroup, cardIndex int, card Card) string {
	g := "p" + strconv.Itoa(groupIndex)
	if group.ID != nil {
		g = strconv.Itoa(*group.ID)
	}
	c := "p" + strconv.Itoa(cardIndex)
	if card.ID != nil {
		c = strconv.Itoa(*card.ID)
	}
	return fmt.Sprintf("g%s.c%s", g, c)
}

// DisambiguateCardKey は同じCardKeyを持つ2枚目以降のカードに位置を付加したキーを返す。
// CardKeyは "@" を含まないため、付加後のキーが他のカードのキーと衝突することはない。
func DisambiguateCardKey(key string, groupIndex, cardIndex int) string {
	return fmt.Sprintf("%s@%d.%d", key, groupIndex, cardIndex)
}
