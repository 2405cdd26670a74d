//go:build cgo

package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// ---------------------------------------------------------------------------
// Schema / construction
// ---------------------------------------------------------------------------

func TestNew(t *testing.T) {
	s := newTestStore(t)
	if s.DB() == nil {
		t.Fatal("expected non-nil *sql.DB")
	}
}

func TestNewCreatesParentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub", "dir")
	s, err := New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("creating store in nested dir: %v", err)
	}
	s.Close()
}

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	v, err := s.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("schema version: %v", err)
	}
	if want := migrations[len(migrations)-1].version; v != want {
		t.Errorf("schema version = %d, want %d", v, want)
	}
}

func TestReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	if err := s.SaveAnalysis(ctx, sampleAnalysis("a1", 100, 0)); err != nil {
		t.Fatalf("saving analysis: %v", err)
	}
	s.Close()

	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("reopening store: %v", err)
	}
	defer s.Close()
	if _, err := s.GetAnalysis(ctx, "a1"); err != nil {
		t.Fatalf("getting analysis after reopen: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Analysis CRUD
// ---------------------------------------------------------------------------

func sampleAnalysis(id string, words, images int) Analysis {
	return Analysis{
		ID:               id,
		FileName:         id + ".pdf",
		FileSize:         int64(words * 10),
		Format:           "pdf",
		ContentHash:      "hash-" + id,
		CharCount:        words * 6,
		CharCountNoSpace: words * 5,
		WordCount:        words,
		SpaceCount:       words,
		ImageCount:       images,
		ElapsedMs:        12,
	}
}

func TestSaveAndGetAnalysis(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	want := sampleAnalysis("a1", 42, 3)
	want.CreatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := s.SaveAnalysis(ctx, want); err != nil {
		t.Fatalf("saving analysis: %v", err)
	}

	got, err := s.GetAnalysis(ctx, "a1")
	if err != nil {
		t.Fatalf("getting analysis: %v", err)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
	got.CreatedAt = want.CreatedAt
	if *got != want {
		t.Errorf("GetAnalysis = %+v, want %+v", *got, want)
	}
}

func TestSaveAnalysisRequiresID(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveAnalysis(context.Background(), Analysis{}); err == nil {
		t.Fatal("expected error for empty ID")
	}
}

func TestSaveAnalysisDuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveAnalysis(ctx, sampleAnalysis("dup", 1, 0)); err != nil {
		t.Fatalf("saving analysis: %v", err)
	}
	if err := s.SaveAnalysis(ctx, sampleAnalysis("dup", 2, 0)); err == nil {
		t.Fatal("expected error for duplicate ID")
	}

	// The failed insert must not leave a stray vector behind.
	var n int
	if err := s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM vec_analyses").Scan(&n); err != nil {
		t.Fatalf("counting vectors: %v", err)
	}
	if n != 1 {
		t.Errorf("vectors = %d, want 1", n)
	}
}

func TestGetAnalysisNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetAnalysis(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListAnalyses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		a := sampleAnalysis(fmt.Sprintf("a%d", i), 10+i, 0)
		a.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if err := s.SaveAnalysis(ctx, a); err != nil {
			t.Fatalf("saving analysis %d: %v", i, err)
		}
	}

	all, err := s.ListAnalyses(ctx, 0)
	if err != nil {
		t.Fatalf("listing analyses: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 analyses, got %d", len(all))
	}
	if all[0].ID != "a4" || all[4].ID != "a0" {
		t.Errorf("expected newest first, got %s ... %s", all[0].ID, all[4].ID)
	}

	limited, err := s.ListAnalyses(ctx, 2)
	if err != nil {
		t.Fatalf("listing with limit: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 analyses with limit, got %d", len(limited))
	}
}

func TestFindByHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := sampleAnalysis("a1", 5, 0)
	a.ContentHash = "same"
	if err := s.SaveAnalysis(ctx, a); err != nil {
		t.Fatalf("saving analysis: %v", err)
	}

	got, err := s.FindByHash(ctx, "pdf", "same")
	if err != nil {
		t.Fatalf("finding by hash: %v", err)
	}
	if got.ID != "a1" {
		t.Errorf("FindByHash ID = %q, want a1", got.ID)
	}

	if _, err := s.FindByHash(ctx, "docx", "same"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for other format, got %v", err)
	}
}

func TestDeleteAnalysis(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveAnalysis(ctx, sampleAnalysis("a1", 5, 1)); err != nil {
		t.Fatalf("saving analysis: %v", err)
	}
	if err := s.DeleteAnalysis(ctx, "a1"); err != nil {
		t.Fatalf("deleting analysis: %v", err)
	}
	if _, err := s.GetAnalysis(ctx, "a1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	var n int
	if err := s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM vec_analyses").Scan(&n); err != nil {
		t.Fatalf("counting vectors: %v", err)
	}
	if n != 0 {
		t.Errorf("expected vector removed, %d remain", n)
	}

	if err := s.DeleteAnalysis(ctx, "a1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Vector search
// ---------------------------------------------------------------------------

func TestSimilarAnalyses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, a := range []Analysis{
		sampleAnalysis("small", 10, 0),
		sampleAnalysis("small-2", 12, 0),
		sampleAnalysis("medium", 1000, 2),
		sampleAnalysis("large", 100000, 40),
	} {
		if err := s.SaveAnalysis(ctx, a); err != nil {
			t.Fatalf("saving %s: %v", a.ID, err)
		}
	}

	got, err := s.SimilarAnalyses(ctx, "small", 2)
	if err != nil {
		t.Fatalf("similar analyses: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].ID != "small-2" {
		t.Errorf("nearest = %q, want small-2", got[0].ID)
	}
	if got[1].ID != "medium" {
		t.Errorf("second = %q, want medium", got[1].ID)
	}
	if got[0].Distance > got[1].Distance {
		t.Errorf("results not ordered by distance: %v > %v", got[0].Distance, got[1].Distance)
	}
	for _, r := range got {
		if r.ID == "small" {
			t.Error("query analysis must not be returned")
		}
	}

	if _, err := s.SimilarAnalyses(ctx, "missing", 2); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	none, err := s.SimilarAnalyses(ctx, "small", 0)
	if err != nil || len(none) != 0 {
		t.Errorf("k=0: got %v, %v; want empty", none, err)
	}
}

func TestSummarize(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docx := sampleAnalysis("d1", 7, 3)
	docx.Format = "docx"
	for _, a := range []Analysis{sampleAnalysis("p1", 10, 1), sampleAnalysis("p2", 20, 0), docx} {
		if err := s.SaveAnalysis(ctx, a); err != nil {
			t.Fatalf("saving %s: %v", a.ID, err)
		}
	}

	sum, err := s.Summarize(ctx)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.Analyses != 3 {
		t.Errorf("Analyses = %d, want 3", sum.Analyses)
	}
	if sum.Words != 37 {
		t.Errorf("Words = %d, want 37", sum.Words)
	}
	if sum.Images != 4 {
		t.Errorf("Images = %d, want 4", sum.Images)
	}
	if sum.ByFormat["pdf"] != 2 || sum.ByFormat["docx"] != 1 {
		t.Errorf("ByFormat = %v", sum.ByFormat)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := newTestStore(t)
	sum, err := s.Summarize(context.Background())
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.Analyses != 0 || sum.Words != 0 || len(sum.ByFormat) != 0 {
		t.Errorf("expected empty summary, got %+v", sum)
	}
}

func TestStatsVector(t *testing.T) {
	v := statsVector(Analysis{CharCount: 0, WordCount: -3, ImageCount: 1})
	if len(v) != vectorDim {
		t.Fatalf("len = %d, want %d", len(v), vectorDim)
	}
	if v[0] != 0 || v[2] != 0 {
		t.Errorf("zero and negative counts should map to 0, got %v", v)
	}
	if v[4] <= 0 {
		t.Errorf("positive count should map above 0, got %v", v[4])
	}
	if b := serializeFloat32(v); len(b) != 4*vectorDim {
		t.Errorf("serialized length = %d, want %d", len(b), 4*vectorDim)
	}
}
