package model

import "time"

// Snapshot はワーカーが取得したフィードペイロードの永続化単位。
// APIサーバーは最新のスナップショットを読み込んで描画する。
type Snapshot struct {
	ID           string
	Slug         string
	Payload      []byte // デコード済みCardGroup列のJSON
	ETag         string
	LastModified string
	GroupCount   int
	CardCount    int

	// RSSGroupCount はPayload末尾に追加されたRSS由来グループの数。
	// 304のサイクルではこの数だけ末尾を取り除いてからRSSグループを作り直す。
	RSSGroupCount int
	FetchedAt     time.Time
}

// ImageDimension は画像のピクセル寸法キャッシュ。
// Availableがfalseの行は「取得できなかった」ことを記録するネガティブキャッシュ。
type ImageDimension struct {
	URL       string
	Width     int
	Height    int
	Available bool
	FetchedAt time.Time
}
