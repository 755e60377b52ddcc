package interaction

import (
	"sync"
	"time"

	"github.com/hitoshi/cardfeed/internal/model"
)

// View は描画に必要な状態機械のスナップショット。
type View struct {
	State       State `json:"state"`
	Actionable  bool  `json:"actionable"`
	SlideOffset bool  `json:"slide_offset"`
	ShowActions bool  `json:"show_actions"`
}

// Board は1人の閲覧者が見ている全カードの状態機械をカードキーで保持する。
// 状態機械はカードの初回描画時に生成され、カードがフィードから消えた時に破棄される。
type Board struct {
	mu       sync.Mutex
	machines map[string]*Machine
}

// NewBoard は空のBoardを生成する。
func NewBoard() *Board {
	return &Board{machines: make(map[string]*Machine)}
}

// Ensure はカードの状態機械を取得し、無ければIdleで生成する。
func (b *Board) Ensure(key string, card model.Card, dt model.DesignType) View {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.machines[key]
	if !ok {
		m = New(card, dt)
		b.machines[key] = m
	}
	return viewOf(m)
}

// Peek は状態機械が存在すればそのViewを返す。生成は行わない。
func (b *Board) Peek(key string) (View, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.machines[key]
	if !ok {
		return View{}, false
	}
	return viewOf(m), true
}

// Handle はカードの状態機械にイベントを適用する。
// 状態機械が未生成（未描画のカード）の場合はfalseを返す。
func (b *Board) Handle(key string, ev Event) (Outcome, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.machines[key]
	if !ok {
		return Outcome{}, false
	}
	return m.Handle(ev), true
}

// Retain はkeepに含まれないカードの状態機械を破棄する。
// 破棄した件数を返す。
func (b *Board) Retain(keep map[string]struct{}) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for key := range b.machines {
		if _, ok := keep[key]; !ok {
			delete(b.machines, key)
			removed++
		}
	}
	return removed
}

// Len は保持している状態機械の数を返す。
func (b *Board) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.machines)
}

func viewOf(m *Machine) View {
	return View{
		State:       m.State(),
		Actionable:  m.Actionable(),
		SlideOffset: m.SlideOffset(),
		ShowActions: m.ShowActions(),
	}
}

// boardEntry は閲覧者ごとのBoardと最終アクセス時刻。
type boardEntry struct {
	board      *Board
	lastAccess time.Time
}

// Registry は閲覧者IDごとのBoardを管理する。
// フィードが丸ごと置き換わるとReset で全Boardを破棄する。
type Registry struct {
	mu         sync.Mutex
	generation uint64
	boards     map[string]*boardEntry
	now        func() time.Time
}

// NewRegistry は新しいRegistryを生成する。
func NewRegistry() *Registry {
	return &Registry{
		boards: make(map[string]*boardEntry),
		now:    time.Now,
	}
}

// Board は描画しようとしているフィード世代における閲覧者のBoardを取得し、無ければ生成する。
// generationが現在の世代より新しい場合は、差し替え通知より先に全Boardを破棄する。
// 古い世代に対しては共有しない空のBoardを返し、現在の世代の状態機械には触れさせない。
func (r *Registry) Board(viewerID string, generation uint64) *Board {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case generation > r.generation:
		r.resetLocked(generation)
	case generation < r.generation:
		return NewBoard()
	}

	e, ok := r.boards[viewerID]
	if !ok {
		e = &boardEntry{board: NewBoard()}
		r.boards[viewerID] = e
	}
	e.lastAccess = r.now()
	return e.board
}

// Reset はフィード世代を更新し、全閲覧者の状態機械を破棄する。
// 現在以前の世代でのResetは何もしない。
func (r *Registry) Reset(generation uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if generation <= r.generation {
		return
	}
	r.resetLocked(generation)
}

func (r *Registry) resetLocked(generation uint64) {
	r.generation = generation
	r.boards = make(map[string]*boardEntry)
}

// Generation は現在のフィード世代を返す。
func (r *Registry) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

// Sweep はttl以上アクセスの無いBoardを破棄し、破棄した件数を返す。
func (r *Registry) Sweep(ttl time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, e := range r.boards {
		if now.Sub(e.lastAccess) > ttl {
			delete(r.boards, id)
			removed++
		}
	}
	return removed
}

// Len は管理している閲覧者数を返す。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.boards)
}
