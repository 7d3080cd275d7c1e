package transcript

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "transcripts.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// exerciseStore runs the behaviour shared by every backend.
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	prefix := fmt.Sprintf("test-%d-", time.Now().UnixNano())

	for i := 0; i < 4; i++ {
		tr := &Transcript{
			ID:        fmt.Sprintf("%s%d", prefix, i),
			Filename:  fmt.Sprintf("meeting-%d.txt", i),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			Content:   fmt.Sprintf("filtered %d", i),
			Raw:       fmt.Sprintf("raw %d", i),
		}
		if err := s.Save(ctx, tr); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	got, err := s.Get(ctx, prefix+"2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Filename != "meeting-2.txt" || got.Content != "filtered 2" || got.Raw != "raw 2" {
		t.Errorf("got %+v", got)
	}
	if !got.CreatedAt.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("created_at = %v", got.CreatedAt)
	}

	if _, err := s.Get(ctx, prefix+"missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing get err = %v, want ErrNotFound", err)
	}

	// Upsert keeps the id.
	got.Content = "refiltered"
	if err := s.Save(ctx, got); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	again, _ := s.Get(ctx, prefix+"2")
	if again.Content != "refiltered" {
		t.Errorf("content after upsert = %q", again.Content)
	}
}

func TestSQLiteStore(t *testing.T) {
	exerciseStore(t, newTestStore(t))
}

func TestSQLiteRecentOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	for _, h := range []int{2, 0, 3, 1} {
		s.Save(ctx, &Transcript{Filename: fmt.Sprintf("h%d", h), CreatedAt: base.Add(time.Duration(h) * time.Hour)})
	}

	recent, err := s.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 transcripts, got %d", len(recent))
	}
	for i, want := range []string{"h3", "h2", "h1"} {
		if recent[i].Filename != want {
			t.Errorf("recent[%d] = %s, want %s", i, recent[i].Filename, want)
		}
	}
	if recent[0].ID == "" {
		t.Error("save should assign an id")
	}
}

func TestText(t *testing.T) {
	if got := (&Transcript{Raw: "r"}).Text(); got != "r" {
		t.Errorf("Text() = %q, want raw fallback", got)
	}
	if got := (&Transcript{Raw: "r", Content: "c"}).Text(); got != "c" {
		t.Errorf("Text() = %q", got)
	}
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("ALPHABOT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("ALPHABOT_TEST_DATABASE_URL not set")
	}
	s, err := NewPostgresStore(context.Background(), url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}
