// Package webhook accepts transcripts pushed by recording tools and
// automations over signed HTTP requests.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alpha-machine/alphabot/internal/ingest"
	"github.com/alpha-machine/alphabot/internal/transcript"
)

// Config holds webhook configuration.
type Config struct {
	// Endpoints maps source names to their auth settings.
	// e.g., {"transcripts": {"secret": "whsec_abc123"}, "zapier": {"bearer_token": "xyz"}}
	Endpoints map[string]EndpointConfig `json:"endpoints"`
}

// EndpointConfig holds per-endpoint webhook configuration.
type EndpointConfig struct {
	// Secret for HMAC-SHA256 signature verification (X-Signature-256 header).
	// If empty, Bearer auth is used instead.
	Secret string `json:"secret,omitempty"`
	// BearerToken for Authorization header auth. Used if Secret is empty.
	BearerToken string `json:"bearer_token,omitempty"`
}

// Ingester stores an incoming transcript.
type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (*transcript.Transcript, error)
}

// Handler serves POST /api/webhook/{source}.
type Handler struct {
	config   Config
	ingester Ingester
	logger   *slog.Logger
}

// New creates a webhook handler.
func New(cfg Config, ingester Ingester, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		config:   cfg,
		ingester: ingester,
		logger:   logger.With("component", "webhook"),
	}
}

// ServeHTTP accepts {filename, transcript} or {filename, url}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := extractName(r.URL.Path)
	if name == "" {
		http.Error(w, "missing source name in path", http.StatusBadRequest)
		return
	}
	endpoint, ok := h.config.Endpoints[name]
	if !ok {
		http.Error(w, fmt.Sprintf("unknown webhook endpoint: %s", name), http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if !authenticate(r, endpoint, body) {
		h.logger.Warn("webhook rejected", "endpoint", name)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req ingest.Request
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if req.Source == "" {
		req.Source = name
	}

	t, err := h.ingester.Ingest(r.Context(), req)
	if errors.Is(err, ingest.ErrEmpty) {
		http.Error(w, "transcript or url is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.logger.Error("webhook ingest failed", "endpoint", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"id":       t.ID,
		"filename": t.Filename,
		"filtered": t.Content != "",
	})
}

func authenticate(r *http.Request, endpoint EndpointConfig, body []byte) bool {
	if endpoint.Secret != "" {
		sig := r.Header.Get("X-Signature-256")
		if sig == "" {
			sig = r.Header.Get("X-Hub-Signature-256")
		}
		return verifyHMAC(body, endpoint.Secret, sig)
	}
	if endpoint.BearerToken != "" {
		return r.Header.Get("Authorization") == "Bearer "+endpoint.BearerToken
	}
	// No auth configured: allow (for development)
	return true
}

// verifyHMAC checks a "sha256=<hex>" signature.
func verifyHMAC(body []byte, secret, signature string) bool {
	if signature == "" {
		return false
	}
	expected, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// extractName gets the last path segment from /api/webhook/{name}.
func extractName(path string) string {
	path = strings.TrimSuffix(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	return path
}

// ComputeSignature generates the signature header value for body.
func ComputeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
