// Package background はカード背景の解決を提供する。
//
// デザインタイプごとの優先順位:
//   - Image / BigDisplay: 単色とグラデーションは常に抑制され、画像のみが有効。
//   - それ以外: bg_color > bg_gradient > bg_image の順で最初に存在するものが有効。
//
// 以前のクライアントは全デザインタイプで無条件に color > gradient > image を
// 適用していた。Image / BigDisplay の抑制は後の改訂で導入された規則であり、
// こちらを正とする。
package background

import (
	"context"

	"github.com/hitoshi/cardfeed/internal/model"
)

// Kind は解決済み背景の種類。
type Kind string

const (
	KindNone        Kind = "none"
	KindColor       Kind = "color"
	KindGradient    Kind = "gradient"
	KindImage       Kind = "image"
	KindPlaceholder Kind = "placeholder"
)

// Direction はグラデーションの描画方向。
type Direction string

// DirectionLeadingToTrailing は唯一サポートする描画方向（水平）。
const DirectionLeadingToTrailing Direction = "leading_to_trailing"

// Dimensions は画像のピクセル寸法。
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DimensionLookup は画像寸法取得コラボレーターのインターフェース。
// ネットワーク障害でもエラーを返してはならず、結果が無いこと（false）が唯一の失敗シグナル。
type DimensionLookup interface {
	Lookup(ctx context.Context, url string) (Dimensions, bool)
}

// LookupFunc は関数をDimensionLookupとして扱うアダプタ。
type LookupFunc func(ctx context.Context, url string) (Dimensions, bool)

// Lookup はDimensionLookupを実装する。
func (f LookupFunc) Lookup(ctx context.Context, url string) (Dimensions, bool) {
	return f(ctx, url)
}

// Background は解決済みの背景記述子。Kindにより有効なフィールドが決まる。
type Background struct {
	Kind Kind `json:"kind"`

	// KindColor
	Color string `json:"color,omitempty"`

	// KindGradient
	Colors    []string  `json:"colors,omitempty"`
	Angle     *int      `json:"angle,omitempty"`
	Direction Direction `json:"direction,omitempty"`

	// KindImage
	URL string `json:"url,omitempty"`

	// KindImage はピクセル寸法、KindPlaceholder はHeightに公称高さを持つ。
	Width  int     `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

// None は背景無しを返す。
func None() Background {
	return Background{Kind: KindNone}
}

// Color は単色背景を返す。
func Color(hex string) Background {
	return Background{Kind: KindColor, Color: hex}
}

// Gradient はグラデーション背景を返す。
// angleは保持するのみで描画方向には反映しない（常に水平方向）。
func Gradient(colors []string, angle *int) Background {
	return Background{
		Kind:      KindGradient,
		Colors:    colors,
		Angle:     angle,
		Direction: DirectionLeadingToTrailing,
	}
}

// Image は寸法付き画像背景を返す。
func Image(url string, width, height int) Background {
	return Background{Kind: KindImage, URL: url, Width: width, Height: float64(height)}
}

// Placeholder は公称高さで描画するプレースホルダ画像背景を返す。
func Placeholder(height float64) Background {
	return Background{Kind: KindPlaceholder, Height: height}
}

// SuppressesFlatBackgrounds はデザインタイプが単色・グラデーション背景を抑制するかを返す。
func SuppressesFlatBackgrounds(dt model.DesignType) bool {
	return dt == model.DesignTypeImage || dt == model.DesignTypeBigDisplay
}

// Resolve はカードの有効な背景を1つ決定する。
// 画像が有効な場合のみlookupを呼び出し、結果が無ければ公称高さのプレースホルダを返す。
// エラーを返すことはない。lookupがnilの場合は常に寸法不明として扱う。
func Resolve(ctx context.Context, card model.Card, dt model.DesignType, lookup DimensionLookup) Background {
	if bg, ok := flatBackground(card, dt); ok {
		return bg
	}

	url := card.BgImage.URLOrEmpty()
	if url == "" {
		return None()
	}

	if lookup != nil {
		if dims, ok := lookup.Lookup(ctx, url); ok && dims.Width > 0 && dims.Height > 0 {
			return Image(url, dims.Width, dims.Height)
		}
	}
	return Placeholder(dt.NominalHeight())
}

// ImageURL はResolveが画像を有効とする場合にそのURLを返す。
// ワーカーが寸法キャッシュを事前に温める対象の抽出に使う。
func ImageURL(card model.Card, dt model.DesignType) (string, bool) {
	if _, ok := flatBackground(card, dt); ok {
		return "", false
	}
	url := card.BgImage.URLOrEmpty()
	return url, url != ""
}

// flatBackground は単色またはグラデーションが有効な場合にそれを返す。
// 色リストが空のグラデーションは有効なグラデーションとみなさない。
func flatBackground(card model.Card, dt model.DesignType) (Background, bool) {
	if SuppressesFlatBackgrounds(dt) {
		return Background{}, false
	}
	if card.BgColor != nil {
		return Color(*card.BgColor), true
	}
	if card.BgGradient != nil && len(card.BgGradient.Colors) > 0 {
		return Gradient(card.BgGradient.Colors, card.BgGradient.Angle), true
	}
	return Background{}, false
}
