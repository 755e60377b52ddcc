// Package layout はカードグループのスクロール軸とカードサイズの決定規則を提供する。
package layout

import (
	"math"

	"github.com/hitoshi/cardfeed/internal/background"
	"github.com/hitoshi/cardfeed/internal/model"
)

// Axis はグループ内カードの並び方向。
type Axis string

const (
	// Horizontal は横スクロール。
	Horizontal Axis = "horizontal"
	// Vertical はスクロールしない縦積み。
	Vertical Axis = "vertical"
)

const (
	// Spacing はグループ内カード間の間隔。
	Spacing = 20.0
	// ViewportInset はSmallDisplayカードの幅をビューポート幅から差し引く量。
	ViewportInset = 40.0
)

// GroupAxis はグループのスクロール軸を決定する。
// is_scrollableがtrueかつDynamicWidthでない場合のみ横スクロールになる。
// DynamicWidthはis_scrollableに関わらず常に縦積み。
func GroupAxis(group model.CardGroup) Axis {
	scrollable := group.IsScrollable != nil && *group.IsScrollable
	if scrollable && group.DesignTypeOrDefault() != model.DesignTypeDynamicWidth {
		return Horizontal
	}
	return Vertical
}

// WidthRule はカード幅の決め方。
type WidthRule string

const (
	// WidthFill は利用可能な幅いっぱいに広げる。
	WidthFill WidthRule = "fill"
	// WidthViewportInset はビューポート幅からViewportInsetを引いた幅。
	WidthViewportInset WidthRule = "viewport_inset"
	// WidthIntrinsic は内容に合わせた幅。
	WidthIntrinsic WidthRule = "intrinsic"
	// WidthFixed はFixedWidthの固定幅。
	WidthFixed WidthRule = "fixed"
)

// Size はカード1枚のサイズ指定。
type Size struct {
	Width      WidthRule `json:"width"`
	FixedWidth float64   `json:"fixed_width,omitempty"`
	Inset      float64   `json:"inset,omitempty"`
	Height     float64   `json:"height"`
}

// CardSize はデザインタイプと解決済み背景からカードサイズを決定する。
// 高さは常にデザインタイプの公称高さで、グループのheightは参照しない。
func CardSize(dt model.DesignType, bg background.Background) Size {
	height := dt.NominalHeight()

	switch dt {
	case model.DesignTypeSmallDisplay:
		return Size{Width: WidthViewportInset, Inset: ViewportInset, Height: height}
	case model.DesignTypeSmallWithArrow:
		return Size{Width: WidthIntrinsic, Height: height}
	case model.DesignTypeDynamicWidth:
		// 画像寸法が分かっている場合は固定高さに対する縦横比から幅を決める
		if bg.Kind == background.KindImage && bg.Width > 0 && bg.Height > 0 {
			w := math.Round(height * float64(bg.Width) / bg.Height)
			return Size{Width: WidthFixed, FixedWidth: w, Height: height}
		}
		return Size{Width: WidthFill, Height: height}
	default:
		return Size{Width: WidthFill, Height: height}
	}
}

// Resolve はビューポート幅を与えて実際の幅を計算する。
// WidthFillとWidthIntrinsicはビューポート幅を上限として返す。
func (s Size) Resolve(viewport float64) float64 {
	switch s.Width {
	case WidthFixed:
		return s.FixedWidth
	case WidthViewportInset:
		return math.Max(0, viewport-s.Inset)
	default:
		return viewport
	}
}
