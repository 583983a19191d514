package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/matbridge/matbridge/pkg/engine"
)

func newTestStore(t *testing.T) *HistoryStore {
	t.Helper()

	store, err := NewHistoryStore(Config{
		Path: filepath.Join(t.TempDir(), "history.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleRecord(id string, startedAt time.Time) *engine.ExecutionRecord {
	finished := startedAt.Add(250 * time.Millisecond)
	return &engine.ExecutionRecord{
		ID:             id,
		Code:           "x = magic(3)",
		Status:         engine.StatusOk,
		Classification: engine.ClassificationDirect,
		StartedAt:      startedAt,
		FinishedAt:     finished,
		Duration:       finished.Sub(startedAt),
	}
}

func TestRecordAndGetExecution(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("exec-1", time.Now().Add(-time.Minute))
	rec.Status = engine.StatusOk
	rec.Classification = engine.ClassificationReclassifiedAfterDebug
	rec.ErrorDetail = "Operation terminated by user"
	rec.SawDebugPause = true
	rec.DesktopAutoShown = true
	rec.ProbeFailures = 2

	if err := store.RecordExecution(ctx, rec); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	got, err := store.GetExecution(ctx, "exec-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Code != rec.Code {
		t.Errorf("code lost: %q", got.Code)
	}
	if got.Status != engine.StatusOk || got.Classification != engine.ClassificationReclassifiedAfterDebug {
		t.Errorf("status lost: %s/%s", got.Status, got.Classification)
	}
	if !got.SawDebugPause || !got.DesktopAutoShown {
		t.Errorf("debug flags lost: %+v", got)
	}
	if got.ErrorDetail != rec.ErrorDetail {
		t.Errorf("error detail lost: %q", got.ErrorDetail)
	}
	if got.ProbeFailures != 2 {
		t.Errorf("probe failures lost: %d", got.ProbeFailures)
	}
	if got.Duration != 250*time.Millisecond {
		t.Errorf("duration lost: %v", got.Duration)
	}
}

func TestGetExecutionNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetExecution(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListExecutionsOrderingAndFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	older := sampleRecord("exec-old", base)
	newer := sampleRecord("exec-new", base.Add(10*time.Minute))
	failed := sampleRecord("exec-failed", base.Add(20*time.Minute))
	failed.Status = engine.StatusError
	failed.ErrorClass = "execution"
	failed.ErrorDetail = "Undefined function 'frob'."

	for _, rec := range []*engine.ExecutionRecord{older, newer, failed} {
		if err := store.RecordExecution(ctx, rec); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}

	all, err := store.ListExecutions(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 executions, got %d", len(all))
	}
	if all[0].ID != "exec-failed" || all[2].ID != "exec-old" {
		t.Errorf("expected newest first, got %s..%s", all[0].ID, all[2].ID)
	}

	failures, err := store.ListExecutions(ctx, ListOptions{Status: engine.StatusError})
	if err != nil {
		t.Fatalf("filtered list failed: %v", err)
	}
	if len(failures) != 1 || failures[0].ID != "exec-failed" {
		t.Errorf("status filter broken: %+v", failures)
	}

	page, err := store.ListExecutions(ctx, ListOptions{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("paged list failed: %v", err)
	}
	if len(page) != 1 || page[0].ID != "exec-new" {
		t.Errorf("pagination broken: %+v", page)
	}
}

func TestPrune(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now()

	old := sampleRecord("exec-ancient", base.Add(-48*time.Hour))
	recent := sampleRecord("exec-recent", base.Add(-time.Minute))
	for _, rec := range []*engine.ExecutionRecord{old, recent} {
		if err := store.RecordExecution(ctx, rec); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}

	pruned, err := store.Prune(ctx, base.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("expected 1 pruned row, got %d", pruned)
	}

	if _, err := store.GetExecution(ctx, "exec-ancient"); !errors.Is(err, ErrNotFound) {
		t.Error("ancient execution should be gone")
	}
	if _, err := store.GetExecution(ctx, "exec-recent"); err != nil {
		t.Errorf("recent execution should remain: %v", err)
	}
}

func TestGetStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	ok := sampleRecord("exec-ok", base)
	reclassified := sampleRecord("exec-reclassified", base.Add(time.Minute))
	reclassified.Classification = engine.ClassificationReclassifiedAfterDebug
	reclassified.SawDebugPause = true
	reclassified.DesktopAutoShown = true
	failed := sampleRecord("exec-failed", base.Add(2*time.Minute))
	failed.Status = engine.StatusError

	for _, rec := range []*engine.ExecutionRecord{ok, reclassified, failed} {
		if err := store.RecordExecution(ctx, rec); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}

	stats, err := store.GetStats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Total != 3 || stats.Succeeded != 2 || stats.Failed != 1 {
		t.Errorf("counts wrong: %+v", stats)
	}
	if stats.Reclassified != 1 || stats.DebugPausesSeen != 1 || stats.DesktopAutoShown != 1 {
		t.Errorf("debug counts wrong: %+v", stats)
	}
}

func TestRecorderInterface(t *testing.T) {
	var _ engine.HistoryRecorder = newTestStore(t)
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	if err := store.Migrate(context.Background()); err != nil {
		t.Errorf("second migrate should be a no-op: %v", err)
	}
}
