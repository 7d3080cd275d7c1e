package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alpha-machine/alphabot/internal/logbuf"
)

type fakeIngress struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeIngress) record(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	f.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (f *fakeIngress) Commands(w http.ResponseWriter, r *http.Request)    { f.record(w, r) }
func (f *fakeIngress) Interactive(w http.ResponseWriter, r *http.Request) { f.record(w, r) }
func (f *fakeIngress) Events(w http.ResponseWriter, r *http.Request)      { f.record(w, r) }

func newTestServer(key string, mounts Mounts) *Server {
	return NewServer(Config{Host: "127.0.0.1", Port: 0, Key: key}, mounts, nil)
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	srv := newTestServer("secret-key", Mounts{})
	for _, path := range []string{"/health", "/api/health"} {
		w := serve(srv, httptest.NewRequest("GET", path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d", path, w.Code)
		}
		var body map[string]string
		json.NewDecoder(w.Body).Decode(&body)
		if body["status"] != "ok" {
			t.Errorf("%s: body = %v", path, body)
		}
	}
}

func TestSlackRoutes(t *testing.T) {
	ingress := &fakeIngress{}
	srv := newTestServer("", Mounts{Slack: ingress})

	for _, path := range []string{"/slack/commands", "/slack/interactive", "/slack/events"} {
		w := serve(srv, httptest.NewRequest("POST", path, strings.NewReader("x=1")))
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d", path, w.Code)
		}
	}
	if len(ingress.paths) != 3 {
		t.Fatalf("ingress saw %v", ingress.paths)
	}

	w := serve(srv, httptest.NewRequest("GET", "/slack/commands", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET commands status = %d, want 405", w.Code)
	}
}

func TestSlackRoutesAbsentWithoutIngress(t *testing.T) {
	srv := newTestServer("", Mounts{})
	w := serve(srv, httptest.NewRequest("POST", "/slack/commands", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestWebhookMount(t *testing.T) {
	var got string
	hook := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Path
		w.WriteHeader(http.StatusCreated)
	})
	srv := newTestServer("secret-key", Mounts{Webhook: hook})

	// The webhook authenticates itself; the API key does not apply.
	w := serve(srv, httptest.NewRequest("POST", "/api/webhook/transcripts", strings.NewReader("{}")))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
	if got != "/api/webhook/transcripts" {
		t.Errorf("path = %q", got)
	}
}

func TestLogsAuth(t *testing.T) {
	srv := newTestServer("secret-key", Mounts{Logs: logbuf.New(10)})

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong key", "Bearer wrong-key", http.StatusUnauthorized},
		{"correct key", "Bearer secret-key", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/logs", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if w := serve(srv, req); w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}

func TestLogsFilters(t *testing.T) {
	buf := logbuf.New(20)
	base := time.UnixMilli(1_700_000_000_000)
	buf.Write(logbuf.Entry{Time: base, Level: "INFO", Message: "boot", Component: "daemon"})
	buf.Write(logbuf.Entry{Time: base.Add(time.Second), Level: "DEBUG", Message: "routing", Component: "dispatch", Invocation: "inv-1"})
	buf.Write(logbuf.Entry{Time: base.Add(2 * time.Second), Level: "ERROR", Message: "handler failed", Component: "dispatch", Invocation: "inv-1"})
	buf.Write(logbuf.Entry{Time: base.Add(3 * time.Second), Level: "INFO", Message: "delivered", Component: "responder", Invocation: "inv-2"})

	srv := newTestServer("", Mounts{Logs: buf})

	cases := []struct {
		query string
		want  []string
	}{
		{"", []string{"boot", "routing", "handler failed", "delivered"}},
		{"?component=dispatch", []string{"routing", "handler failed"}},
		{"?invocation=inv-2", []string{"delivered"}},
		{"?level=error", []string{"handler failed"}},
		{"?level=info&limit=2", []string{"handler failed", "delivered"}},
		{"?since=1700000002000", []string{"handler failed", "delivered"}},
		{"?component=nobody", []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			w := serve(srv, httptest.NewRequest("GET", "/api/logs"+tc.query, nil))
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			var entries []logbuf.Entry
			if err := json.NewDecoder(w.Body).Decode(&entries); err != nil {
				t.Fatal(err)
			}
			if len(entries) != len(tc.want) {
				t.Fatalf("got %d entries, want %v", len(entries), tc.want)
			}
			for i, e := range entries {
				if e.Message != tc.want[i] {
					t.Errorf("entry %d = %q, want %q", i, e.Message, tc.want[i])
				}
			}
		})
	}
}

func TestLogsWithoutBuffer(t *testing.T) {
	srv := newTestServer("", Mounts{})
	w := serve(srv, httptest.NewRequest("GET", "/api/logs", nil))
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("status = %d body = %q", w.Code, w.Body.String())
	}
}

func TestCORS(t *testing.T) {
	srv := newTestServer("", Mounts{})
	w := serve(srv, httptest.NewRequest("OPTIONS", "/api/logs", nil))

	if w.Code != http.StatusNoContent {
		t.Errorf("OPTIONS status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("CORS origin = %q", got)
	}
}
