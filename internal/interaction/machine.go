// Package interaction はカードごとのインタラクション状態機械を提供する。
//
// 状態遷移（BigDisplayのみ）:
//
//	Idle --長押し(1秒以上)--> Revealing
//	Revealing --後でリマインド--> Idle
//	Revealing --今すぐ閉じる--> Dismissed（終端）
//	Idle --タップ--> Idle（card.urlを開く）
//
// それ以外のデザインタイプはタップのみで、状態を持たずにリンクを開く。
package interaction

import (
	"fmt"
	"time"

	"github.com/hitoshi/cardfeed/internal/model"
)

// LongPressThreshold は長押しと判定する最小保持時間。
const LongPressThreshold = time.Second

// State はカードのインタラクション状態。
type State string

const (
	// StateIdle は初期状態。
	StateIdle State = "idle"
	// StateRevealing は副次アクションを表示し、カードを横にずらしている状態。
	StateRevealing State = "revealing"
	// StateDismissed は終端状態。次のリフレッシュまでグループには残るが描画からは除外される。
	StateDismissed State = "dismissed"
)

// EventType はジェスチャーイベントの種別。
type EventType string

const (
	EventLongPress   EventType = "long_press"
	EventTap         EventType = "tap"
	EventRemindLater EventType = "remind_later"
	EventDismissNow  EventType = "dismiss_now"
)

// ParseEventType は文字列をEventTypeに変換する。
func ParseEventType(s string) (EventType, error) {
	switch EventType(s) {
	case EventLongPress, EventTap, EventRemindLater, EventDismissNow:
		return EventType(s), nil
	default:
		return "", fmt.Errorf("unknown event type: %q", s)
	}
}

// Event はカードに対するジェスチャーイベント。
// Heldは長押しの保持時間で、EventLongPressの場合のみ意味を持つ。
type Event struct {
	Type EventType
	Held time.Duration
}

// LongPress は保持時間付きの長押しイベントを返す。
func LongPress(held time.Duration) Event {
	return Event{Type: EventLongPress, Held: held}
}

// Tap はタップイベントを返す。
func Tap() Event { return Event{Type: EventTap} }

// RemindLater は「後でリマインド」選択イベントを返す。
func RemindLater() Event { return Event{Type: EventRemindLater} }

// DismissNow は「今すぐ閉じる」選択イベントを返す。
func DismissNow() Event { return Event{Type: EventDismissNow} }

// Outcome はイベント処理の結果。
// OpenURLが空でない場合、呼び出し元は外部リンクを開く副作用を起こす。
type Outcome struct {
	State       State  `json:"state"`
	Changed     bool   `json:"changed"`
	OpenURL     string `json:"open_url,omitempty"`
	SlideOffset bool   `json:"slide_offset"`
	ShowActions bool   `json:"show_actions"`
}

// Machine は1枚のカードの状態機械。
// 1つのカードインスタンスのジェスチャーでのみ変更されるため内部で同期は行わない。
type Machine struct {
	state      State
	url        string
	actionable bool
}

// IsActionable はデザインタイプが長押しアクションを持つかを返す。
func IsActionable(dt model.DesignType) bool {
	return dt == model.DesignTypeBigDisplay
}

// New はカードの初期状態（Idle）の状態機械を生成する。
func New(card model.Card, dt model.DesignType) *Machine {
	return &Machine{
		state:      StateIdle,
		url:        card.URLOrEmpty(),
		actionable: IsActionable(dt),
	}
}

// State は現在の状態を返す。
func (m *Machine) State() State {
	return m.state
}

// Actionable は長押しアクションを受け付けるかを返す。
func (m *Machine) Actionable() bool {
	return m.actionable
}

// SlideOffset はカードを横にずらして描画すべきかを返す。
func (m *Machine) SlideOffset() bool {
	return m.state == StateRevealing
}

// ShowActions は副次アクションを表示すべきかを返す。
func (m *Machine) ShowActions() bool {
	return m.state == StateRevealing
}

// Handle はイベントを適用し、結果を返す。
// 遷移が定義されていないイベントは無視され、状態は変わらない。
func (m *Machine) Handle(ev Event) Outcome {
	before := m.state

	var openURL string
	switch ev.Type {
	case EventTap:
		// Revealing中のタップは遷移しない。先にリマインド／閉じるで解決する必要がある。
		if m.state == StateIdle && m.url != "" {
			openURL = m.url
		}
	case EventLongPress:
		if m.actionable && m.state == StateIdle && ev.Held >= LongPressThreshold {
			m.state = StateRevealing
		}
	case EventRemindLater:
		if m.actionable && m.state == StateRevealing {
			m.state = StateIdle
		}
	case EventDismissNow:
		if m.actionable && m.state == StateRevealing {
			m.state = StateDismissed
		}
	}

	return Outcome{
		State:       m.state,
		Changed:     m.state != before,
		OpenURL:     openURL,
		SlideOffset: m.SlideOffset(),
		ShowActions: m.ShowActions(),
	}
}
