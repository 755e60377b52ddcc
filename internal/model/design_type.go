package model

import (
	"encoding/json"
	"fmt"
)

// DesignType はカードのレイアウト・高さ・インタラクションを決める閉じた列挙型。
type DesignType int

const (
	// DesignTypeSmallDisplay は小型表示カード（HC1）。
	DesignTypeSmallDisplay DesignType = iota + 1
	// DesignTypeBigDisplay は大型表示カード（HC3）。長押しでアクションを表示する。
	DesignTypeBigDisplay
	// DesignTypeImage は画像カード（HC5）。
	DesignTypeImage
	// DesignTypeSmallWithArrow は矢印付き小型カード（HC6）。
	DesignTypeSmallWithArrow
	// DesignTypeDynamicWidth は画像比率で幅が決まるカード（HC9）。
	DesignTypeDynamicWidth
)

// designTypeCodes はワイヤー上のコードとの対応表。
var designTypeCodes = map[DesignType]string{
	DesignTypeSmallDisplay:   "HC1",
	DesignTypeBigDisplay:     "HC3",
	DesignTypeImage:          "HC5",
	DesignTypeSmallWithArrow: "HC6",
	DesignTypeDynamicWidth:   "HC9",
}

// AllDesignTypes は定義済みのデザインタイプを宣言順に返す。
func AllDesignTypes() []DesignType {
	return []DesignType{
		DesignTypeSmallDisplay,
		DesignTypeBigDisplay,
		DesignTypeImage,
		DesignTypeSmallWithArrow,
		DesignTypeDynamicWidth,
	}
}

// ParseDesignType はワイヤーコード（HC1など）をDesignTypeに変換する。
func ParseDesignType(code string) (DesignType, error) {
	for dt, c := range designTypeCodes {
		if c == code {
			return dt, nil
		}
	}
	return 0, fmt.Errorf("unknown design type: %q", code)
}

// Code はワイヤーコードを返す。
func (d DesignType) Code() string {
	return designTypeCodes[d]
}

// String はログ出力用の名前を返す。
func (d DesignType) String() string {
	switch d {
	case DesignTypeSmallDisplay:
		return "small_display"
	case DesignTypeBigDisplay:
		return "big_display"
	case DesignTypeImage:
		return "image"
	case DesignTypeSmallWithArrow:
		return "small_with_arrow"
	case DesignTypeDynamicWidth:
		return "dynamic_width"
	default:
		return fmt.Sprintf("design_type(%d)", int(d))
	}
}

// NominalHeight はデザインタイプ固有の背景の公称高さを返す。
func (d DesignType) NominalHeight() float64 {
	switch d {
	case DesignTypeSmallDisplay, DesignTypeSmallWithArrow:
		return 60
	case DesignTypeBigDisplay:
		return 250
	case DesignTypeImage:
		return 195
	case DesignTypeDynamicWidth:
		return 200
	default:
		return 0
	}
}

// MarshalJSON はワイヤーコードとしてエンコードする。
func (d DesignType) MarshalJSON() ([]byte, error) {
	code, ok := designTypeCodes[d]
	if !ok {
		return nil, fmt.Errorf("unknown design type: %d", int(d))
	}
	return json.Marshal(code)
}

// UnmarshalJSON はワイヤーコードからデコードする。未知のコードはエラーとする。
func (d *DesignType) UnmarshalJSON(b []byte) error {
	var code string
	if err := json.Unmarshal(b, &code); err != nil {
		return fmt.Errorf("design type must be a string: %w", err)
	}
	parsed, err := ParseDesignType(code)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
