package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/cardfeed/internal/model"
)

// mockSnapshotRepo はDeleteOlderThanの呼び出しを記録する。
type mockSnapshotRepo struct {
	called  bool
	before  time.Time
	deleted int64
	err     error
}

func (m *mockSnapshotRepo) Save(context.Context, *model.Snapshot) error { return nil }
func (m *mockSnapshotRepo) Latest(context.Context) (*model.Snapshot, error) { return nil, nil }
func (m *mockSnapshotRepo) LatestID(context.Context) (string, error) { return "", nil }
func (m *mockSnapshotRepo) DeleteOlderThan(_ context.Context, before time.Time) (int64, error) {
	m.called = true
	m.before = before
	return m.deleted, m.err
}

// mockImageRepo はDeleteStaleの呼び出しを記録する。
type mockImageRepo struct {
	called  bool
	before  time.Time
	deleted int64
	err     error
}

func (m *mockImageRepo) Find(context.Context, string) (*model.ImageDimension, error) { return nil, nil }
func (m *mockImageRepo) FindMany(context.Context, []string) (map[string]*model.ImageDimension, error) {
	return nil, nil
}
func (m *mockImageRepo) Upsert(context.Context, *model.ImageDimension) error { return nil }
func (m *mockImageRepo) DeleteStale(_ context.Context, before time.Time) (int64, error) {
	m.called = true
	m.before = before
	return m.deleted, m.err
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

var fixedNow = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

func newJob(snaps *mockSnapshotRepo, images *mockImageRepo, buf *bytes.Buffer) *CleanupJob {
	job := NewCleanupJob(snaps, images, newTestLogger(buf))
	job.now = func() time.Time { return fixedNow }
	return job
}

func TestNewCleanupJob_Defaults(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockSnapshotRepo{}, &mockImageRepo{}, newTestLogger(&buf))

	if job.SnapshotRetentionDays != 7 {
		t.Errorf("SnapshotRetentionDays = %d, want 7", job.SnapshotRetentionDays)
	}
	if job.ImageCacheRetentionDays != 30 {
		t.Errorf("ImageCacheRetentionDays = %d, want 30", job.ImageCacheRetentionDays)
	}
}

func TestCleanupJob_Run_UsesRetentionCutoffs(t *testing.T) {
	var buf bytes.Buffer
	snaps := &mockSnapshotRepo{}
	images := &mockImageRepo{}
	job := newJob(snaps, images, &buf)
	job.SnapshotRetentionDays = 3
	job.ImageCacheRetentionDays = 10

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	if !snaps.called || !images.called {
		t.Fatal("両方のリポジトリが呼び出されること")
	}
	if want := fixedNow.AddDate(0, 0, -3); !snaps.before.Equal(want) {
		t.Errorf("snapshot cutoff = %v, want %v", snaps.before, want)
	}
	if want := fixedNow.AddDate(0, 0, -10); !images.before.Equal(want) {
		t.Errorf("image cutoff = %v, want %v", images.before, want)
	}
}

func TestCleanupJob_Run_LogsDeletedCounts(t *testing.T) {
	var buf bytes.Buffer
	job := newJob(&mockSnapshotRepo{deleted: 4}, &mockImageRepo{deleted: 42}, &buf)

	_ = job.Run(context.Background())

	found := false
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if entry["deleted_snapshots"] == float64(4) && entry["deleted_images"] == float64(42) {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("ログに削除件数が記録されていない。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Run_ReturnsErrorOnSnapshotFailure(t *testing.T) {
	var buf bytes.Buffer
	images := &mockImageRepo{}
	job := newJob(&mockSnapshotRepo{err: sql.ErrConnDone}, images, &buf)

	err := job.Run(context.Background())
	if !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("err = %v, want sql.ErrConnDone", err)
	}
	if images.called {
		t.Error("スナップショット削除失敗時は画像キャッシュ削除を行わない")
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラーログが出力されていない: %s", buf.String())
	}
}

func TestCleanupJob_Run_ReturnsErrorOnImageFailure(t *testing.T) {
	var buf bytes.Buffer
	job := newJob(&mockSnapshotRepo{}, &mockImageRepo{err: sql.ErrConnDone}, &buf)

	if err := job.Run(context.Background()); !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("err = %v, want sql.ErrConnDone", err)
	}
}

func TestCleanupJob_Run_Idempotent(t *testing.T) {
	var buf bytes.Buffer
	job := newJob(&mockSnapshotRepo{}, &mockImageRepo{}, &buf)

	for i := 0; i < 3; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("Run() %d回目がエラーを返した: %v", i+1, err)
		}
	}
}

func TestCleanupJob_Start_StopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	snaps := &mockSnapshotRepo{}
	job := newJob(snaps, &mockImageRepo{}, &buf)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	if !snaps.called {
		t.Error("Start should run once immediately")
	}
}
