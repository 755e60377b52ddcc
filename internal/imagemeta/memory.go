package imagemeta

import (
	"context"
	"sync"

	"github.com/hitoshi/cardfeed/internal/background"
)

type memoryEntry struct {
	dims background.Dimensions
	ok   bool
}

// MemoryLookup はプロセス内のマップで寸法を保持するルックアップ。
// innerが設定されている場合は未登録URLをinnerで解決し、結果（失敗を含む）を記憶する。
type MemoryLookup struct {
	inner background.DimensionLookup

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryLookup はMemoryLookupを生成する。innerはnilでもよい。
func NewMemoryLookup(inner background.DimensionLookup) *MemoryLookup {
	return &MemoryLookup{
		inner:   inner,
		entries: make(map[string]memoryEntry),
	}
}

// Set は寸法を登録する。
func (m *MemoryLookup) Set(url string, width, height int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[url] = memoryEntry{
		dims: background.Dimensions{Width: width, Height: height},
		ok:   width > 0 && height > 0,
	}
}

// Lookup はbackground.DimensionLookupを実装する。
func (m *MemoryLookup) Lookup(ctx context.Context, url string) (background.Dimensions, bool) {
	m.mu.RLock()
	e, found := m.entries[url]
	m.mu.RUnlock()
	if found {
		return e.dims, e.ok
	}
	if m.inner == nil {
		return background.Dimensions{}, false
	}

	dims, ok := m.inner.Lookup(ctx, url)
	if !ok && ctx.Err() != nil {
		return dims, ok
	}

	m.mu.Lock()
	m.entries[url] = memoryEntry{dims: dims, ok: ok}
	m.mu.Unlock()
	return dims, ok
}

var _ background.DimensionLookup = (*MemoryLookup)(nil)
