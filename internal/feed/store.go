package feed

import (
	"sync"
	"time"

	"github.com/hitoshi/cardfeed/internal/model"
)

// Current はAPIサーバーが描画に使用している現在のフィード。
// Generationは差し替えのたびに1ずつ増える。
type Current struct {
	Generation uint64
	SnapshotID string
	Groups     []model.CardGroup
	FetchedAt  time.Time
}

// Store は現在のフィードを保持し、差し替えをリスナーへ通知する。
type Store struct {
	mu        sync.RWMutex
	current   Current
	loaded    bool
	listeners []func(Current)
}

// NewStore は空のStoreを生成する。
func NewStore() *Store {
	return &Store{}
}

// Current は現在のフィードを返す。まだ読み込まれていない場合はfalseを返す。
func (s *Store) Current() (Current, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.loaded
}

// Swap はフィードを差し替え、登録済みのリスナーを呼び出す。
// リスナーはロック外で、登録順に同期的に呼び出される。
func (s *Store) Swap(snapshotID string, groups []model.CardGroup, fetchedAt time.Time) Current {
	if groups == nil {
		groups = []model.CardGroup{}
	}

	s.mu.Lock()
	s.current = Current{
		Generation: s.current.Generation + 1,
		SnapshotID: snapshotID,
		Groups:     groups,
		FetchedAt:  fetchedAt,
	}
	s.loaded = true
	cur := s.current
	listeners := append([]func(Current){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(cur)
	}
	return cur
}

// OnSwap は差し替え時に呼び出されるリスナーを登録する。
func (s *Store) OnSwap(fn func(Current)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}
