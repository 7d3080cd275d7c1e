package state

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newSessions(t *testing.T) (*Sessions, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
	mem := NewMemoryStore()
	mem.SetClock(clock.Now)
	s := NewSessions(mem, 0)
	s.SetClock(clock.Now)
	return s, clock
}

func TestSelectionConsumedOnce(t *testing.T) {
	s, _ := newSessions(t)
	ctx := context.Background()

	if err := s.PutSelection(ctx, "U2", []string{"t1", "t2"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	peek, _ := s.PeekSelection(ctx, "U2")
	if peek == nil || !reflect.DeepEqual(peek.TranscriptIDs, []string{"t1", "t2"}) {
		t.Fatalf("peek = %+v", peek)
	}

	got, err := s.TakeSelection(ctx, "U2")
	if err != nil || got == nil {
		t.Fatalf("take = %+v, %v", got, err)
	}
	if !reflect.DeepEqual(got.TranscriptIDs, []string{"t1", "t2"}) {
		t.Errorf("ids = %v", got.TranscriptIDs)
	}

	again, _ := s.TakeSelection(ctx, "U2")
	if again != nil {
		t.Errorf("second take = %+v, want nil", again)
	}
}

func TestSelectionExpiresAfterTimeout(t *testing.T) {
	s, clock := newSessions(t)
	ctx := context.Background()

	s.PutSelection(ctx, "U2", []string{"t1", "t2"})
	clock.Advance(11 * time.Minute)

	if got, _ := s.PeekSelection(ctx, "U2"); got != nil {
		t.Errorf("peek after 11m = %+v, want nil", got)
	}
	if got, _ := s.TakeSelection(ctx, "U2"); got != nil {
		t.Errorf("take after 11m = %+v, want nil", got)
	}
}

func TestSelectionOverwrite(t *testing.T) {
	s, _ := newSessions(t)
	ctx := context.Background()

	s.PutSelection(ctx, "U1", []string{"a"})
	s.PutSelection(ctx, "U1", []string{"b", "c"})
	s.PutSelection(ctx, "U9", []string{"z"})

	got, _ := s.TakeSelection(ctx, "U1")
	if got == nil || !reflect.DeepEqual(got.TranscriptIDs, []string{"b", "c"}) {
		t.Errorf("got %+v, want latest selection", got)
	}
	other, _ := s.PeekSelection(ctx, "U9")
	if other == nil {
		t.Error("selections must be per user")
	}

	s.ClearSelection(ctx, "U9")
	if other, _ := s.PeekSelection(ctx, "U9"); other != nil {
		t.Error("clear should remove the selection")
	}
}

func TestConfirmationLifecycle(t *testing.T) {
	s, clock := newSessions(t)
	ctx := context.Background()

	c := &Confirmation{Nonce: "n1", UserID: "U1", OriginalRequest: "req", Analysis: "analysis"}
	if err := s.PutConfirmation(ctx, c); err != nil {
		t.Fatalf("put: %v", err)
	}
	if !c.CreatedAt.Equal(clock.Now()) {
		t.Errorf("created_at = %v", c.CreatedAt)
	}

	got, err := s.TakeConfirmation(ctx, "U1")
	if err != nil || got == nil || got.Analysis != "analysis" {
		t.Fatalf("take = %+v, %v", got, err)
	}
	if again, _ := s.TakeConfirmation(ctx, "U1"); again != nil {
		t.Error("confirmation must be consumed exactly once")
	}
	if fresh, _ := s.ConsumeNonce(ctx, "n1"); fresh {
		t.Error("nonce of a taken confirmation must read as used")
	}
}

func TestConfirmationExpires(t *testing.T) {
	s, clock := newSessions(t)
	ctx := context.Background()

	s.PutConfirmation(ctx, &Confirmation{Nonce: "n1", UserID: "U1"})
	clock.Advance(10*time.Minute + time.Second)

	if got, _ := s.TakeConfirmation(ctx, "U1"); got != nil {
		t.Errorf("expired confirmation returned: %+v", got)
	}
}

func TestReplacedConfirmationNonceIsSpent(t *testing.T) {
	s, _ := newSessions(t)
	ctx := context.Background()

	s.PutConfirmation(ctx, &Confirmation{Nonce: "n1", UserID: "U1", Analysis: "first"})
	if err := s.PutConfirmation(ctx, &Confirmation{Nonce: "n2", UserID: "U1", Analysis: "second"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if fresh, _ := s.ConsumeNonce(ctx, "n1"); fresh {
		t.Error("replaced confirmation's nonce must read as used")
	}
	got, _ := s.TakeConfirmation(ctx, "U1")
	if got == nil || got.Analysis != "second" {
		t.Errorf("take = %+v", got)
	}
}

// stickyStore keeps entries past the sessions TTL and cannot delete.
type stickyStore struct {
	Store
}

func (s stickyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.Store.Set(ctx, key, value, time.Hour)
}

func (stickyStore) Delete(context.Context, string) error { return errors.New("read-only replica") }

func TestExpiredSelectionDeleteFailureLogged(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
	mem := NewMemoryStore()
	mem.SetClock(clock.Now)
	s := NewSessions(stickyStore{mem}, 0)
	s.SetClock(clock.Now)
	var buf bytes.Buffer
	s.SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	ctx := context.Background()

	s.PutSelection(ctx, "U2", []string{"t1"})
	clock.Advance(11 * time.Minute)

	if got, err := s.PeekSelection(ctx, "U2"); got != nil || err != nil {
		t.Fatalf("peek = %+v, %v", got, err)
	}
	if !strings.Contains(buf.String(), "clearing expired selection failed") ||
		!strings.Contains(buf.String(), "read-only replica") {
		t.Errorf("log = %q", buf.String())
	}
}

func TestConsumeNonce(t *testing.T) {
	s, _ := newSessions(t)
	ctx := context.Background()

	if fresh, _ := s.ConsumeNonce(ctx, ""); fresh {
		t.Error("empty nonce must not be accepted")
	}
	if fresh, _ := s.ConsumeNonce(ctx, "abc"); !fresh {
		t.Error("first use should be fresh")
	}
	if fresh, _ := s.ConsumeNonce(ctx, "abc"); fresh {
		t.Error("second use should be rejected")
	}
}

func TestStoreBackends(t *testing.T) {
	backends := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			return s
		},
		"redis": func(t *testing.T) Store {
			addr := os.Getenv("ALPHABOT_TEST_REDIS_ADDR")
			if addr == "" {
				t.Skip("ALPHABOT_TEST_REDIS_ADDR not set")
			}
			s, err := NewRedisStore(context.Background(), addr, "", 0)
			if err != nil {
				t.Fatalf("connect: %v", err)
			}
			return s
		},
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			ctx := context.Background()
			key := "test:" + name + ":" + time.Now().Format(time.RFC3339Nano)

			if _, ok, _ := s.Get(ctx, key); ok {
				t.Fatal("fresh key should be absent")
			}
			if err := s.Set(ctx, key, []byte("v1"), time.Minute); err != nil {
				t.Fatalf("set: %v", err)
			}
			if v, ok, _ := s.Get(ctx, key); !ok || string(v) != "v1" {
				t.Errorf("get = %q, %v", v, ok)
			}
			if v, ok, _ := s.Take(ctx, key); !ok || string(v) != "v1" {
				t.Errorf("take = %q, %v", v, ok)
			}
			if _, ok, _ := s.Take(ctx, key); ok {
				t.Error("take should remove the entry")
			}
			s.Set(ctx, key, []byte("v2"), time.Minute)
			if err := s.Delete(ctx, key); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, ok, _ := s.Get(ctx, key); ok {
				t.Error("delete should remove the entry")
			}
		})
	}
}

func TestMemoryStoreTTL(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := NewMemoryStore()
	m.SetClock(clock.Now)
	ctx := context.Background()

	m.Set(ctx, "k", []byte("v"), time.Minute)
	m.Set(ctx, "forever", []byte("v"), 0)
	clock.Advance(time.Minute)

	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Error("entry should expire at its deadline")
	}
	if _, ok, _ := m.Get(ctx, "forever"); !ok {
		t.Error("zero ttl should never expire")
	}
}
