package interaction

import (
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/cardfeed/internal/model"
)

func TestBoard_EnsureCreatesIdleMachineOnce(t *testing.T) {
	b := NewBoard()
	card, dt := bigCard()

	v := b.Ensure("g1.c1", card, dt)
	if v.State != StateIdle || !v.Actionable {
		t.Fatalf("Ensure() = %+v", v)
	}

	if _, ok := b.Handle("g1.c1", LongPress(time.Second)); !ok {
		t.Fatal("Handle should find the machine")
	}

	// 2回目のEnsureは既存の状態を返す
	if v := b.Ensure("g1.c1", card, dt); v.State != StateRevealing {
		t.Errorf("State = %v, want revealing", v.State)
	}
	if b.Len() != 1 {
		t.Errorf("Len() = %d, want 1", b.Len())
	}
}

func TestBoard_HandleUnknownKey(t *testing.T) {
	b := NewBoard()
	if _, ok := b.Handle("missing", Tap()); ok {
		t.Error("未描画のカードへのイベントはfalseを返すべき")
	}
	if _, ok := b.Peek("missing"); ok {
		t.Error("Peek should return false for unknown keys")
	}
}

func TestBoard_RetainRemovesVanishedCards(t *testing.T) {
	b := NewBoard()
	card, dt := bigCard()
	b.Ensure("a", card, dt)
	b.Ensure("b", card, dt)
	b.Ensure("c", card, dt)

	removed := b.Retain(map[string]struct{}{"b": {}})
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if _, ok := b.Peek("b"); !ok {
		t.Error("b should be retained")
	}
	if _, ok := b.Peek("a"); ok {
		t.Error("a should be removed")
	}
}

func TestBoard_ConcurrentCardsAreIsolated(t *testing.T) {
	b := NewBoard()
	card, dt := bigCard()
	keys := []string{"k0", "k1", "k2", "k3", "k4", "k5", "k6", "k7"}
	for _, k := range keys {
		b.Ensure(k, card, dt)
	}

	var wg sync.WaitGroup
	for i, k := range keys {
		wg.Add(1)
		go func(i int, k string) {
			defer wg.Done()
			b.Handle(k, LongPress(time.Second))
			if i%2 == 0 {
				b.Handle(k, DismissNow())
			}
		}(i, k)
	}
	wg.Wait()

	for i, k := range keys {
		v, _ := b.Peek(k)
		want := StateRevealing
		if i%2 == 0 {
			want = StateDismissed
		}
		if v.State != want {
			t.Errorf("%s: State = %v, want %v", k, v.State, want)
		}
	}
}

func TestRegistry_BoardPerViewer(t *testing.T) {
	r := NewRegistry()
	a := r.Board("viewer-a", 0)
	if r.Board("viewer-a", 0) != a {
		t.Error("同じ閲覧者には同じBoardを返すべき")
	}
	if r.Board("viewer-b", 0) == a {
		t.Error("閲覧者ごとにBoardは独立するべき")
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}

func TestRegistry_ResetDropsAllBoardsOnNewGeneration(t *testing.T) {
	r := NewRegistry()
	card := model.Card{}
	r.Board("v", 0).Ensure("k", card, model.DesignTypeBigDisplay)

	r.Reset(1)
	if r.Generation() != 1 {
		t.Errorf("Generation() = %d, want 1", r.Generation())
	}
	if r.Board("v", 1).Len() != 0 {
		t.Error("Reset後のBoardは空であるべき")
	}

	// 同じ世代や古い世代でのResetは状態を保持する
	r.Board("v", 1).Ensure("k", card, model.DesignTypeBigDisplay)
	r.Reset(1)
	r.Reset(0)
	if r.Board("v", 1).Len() != 1 {
		t.Error("現在以前の世代のResetは状態を破棄しないべき")
	}
	if r.Generation() != 1 {
		t.Errorf("Generation() = %d, want 1", r.Generation())
	}
}

func TestRegistry_BoardForNewerGenerationResetsFirst(t *testing.T) {
	r := NewRegistry()
	card := model.Card{}
	r.Reset(1)
	r.Board("v", 1).Ensure("k", card, model.DesignTypeBigDisplay)

	// 差し替え通知より先に新しい世代の描画が来た場合
	if r.Board("v", 2).Len() != 0 {
		t.Error("新しい世代のBoardは前の世代の状態機械を持たないべき")
	}
	if r.Generation() != 2 {
		t.Errorf("Generation() = %d, want 2", r.Generation())
	}

	// 遅れて届いた通知は何もしない
	r.Board("v", 2).Ensure("k", card, model.DesignTypeBigDisplay)
	r.Reset(2)
	if r.Board("v", 2).Len() != 1 {
		t.Error("同じ世代の通知で状態を破棄してはならない")
	}
}

func TestRegistry_BoardForStaleGenerationIsDetached(t *testing.T) {
	r := NewRegistry()
	card := model.Card{}
	r.Reset(2)
	current := r.Board("v", 2)
	current.Ensure("k", card, model.DesignTypeBigDisplay)

	stale := r.Board("v", 1)
	if stale == current {
		t.Fatal("古い世代には現在のBoardを返してはならない")
	}
	stale.Retain(map[string]struct{}{})
	if current.Len() != 1 {
		t.Error("古い世代の描画が現在の状態機械を破棄してはならない")
	}
	if r.Generation() != 2 {
		t.Errorf("Generation() = %d, want 2", r.Generation())
	}
}

func TestRegistry_SweepRemovesIdleViewers(t *testing.T) {
	r := NewRegistry()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	r.Board("old", 0)
	now = now.Add(time.Hour)
	r.Board("fresh", 0)

	if removed := r.Sweep(30 * time.Minute); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

