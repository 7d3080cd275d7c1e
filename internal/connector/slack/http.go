package slackconn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

const maxBody = 1 << 20

// HTTPHandler receives Slack traffic as signed HTTP requests: slash
// commands, interactive payloads and Events API callbacks.
type HTTPHandler struct {
	secret string
	bridge *bridge
	logger *slog.Logger

	mu   sync.Mutex
	base context.Context
}

// NewHTTPHandler creates the HTTP ingress.
func NewHTTPHandler(ctx context.Context, api *slack.Client, cfg Config, d Dispatcher, deliver Deliverer, logger *slog.Logger) (*HTTPHandler, error) {
	if cfg.SigningSecret == "" {
		return nil, fmt.Errorf("slack: signing_secret is required (HTTP mode)")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "slack", "mode", "http")
	if err := resolveBotID(ctx, api, &cfg, logger); err != nil {
		return nil, err
	}
	return &HTTPHandler{
		secret: cfg.SigningSecret,
		bridge: newBridge(api, cfg, d, deliver, logger),
		logger: logger,
		base:   context.Background(),
	}, nil
}

func (h *HTTPHandler) Name() string { return "http" }

// Start scopes background work to ctx and blocks until it is cancelled.
// The handlers themselves are served by the API server.
func (h *HTTPHandler) Start(ctx context.Context) error {
	h.mu.Lock()
	h.base = ctx
	h.mu.Unlock()
	<-ctx.Done()
	return nil
}

// Stop waits up to DrainTimeout for in-flight commands.
func (h *HTTPHandler) Stop() error {
	h.bridge.drain(DrainTimeout)
	return nil
}

func (h *HTTPHandler) ctx() context.Context {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.base
}

// verify checks the request signature and timestamp and restores the body
// for form parsing.
func (h *HTTPHandler) verify(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return nil, false
	}
	sv, err := slack.NewSecretsVerifier(r.Header, h.secret)
	if err != nil {
		h.logger.Warn("rejected slack request", "path", r.URL.Path, "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	sv.Write(body)
	if err := sv.Ensure(); err != nil {
		h.logger.Warn("rejected slack request", "path", r.URL.Path, "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, true
}

// Commands handles POST /slack/commands. The reply is an immediate
// acknowledgement; the real answer goes to the response_url.
func (h *HTTPHandler) Commands(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.verify(w, r); !ok {
		return
	}
	cmd, err := slack.SlashCommandParse(r)
	if err != nil {
		http.Error(w, "invalid slash command", http.StatusBadRequest)
		return
	}
	writeJSON(w, slack.Msg{ResponseType: slack.ResponseTypeEphemeral, Text: ackText(cmd.Command)})
	h.bridge.command(h.ctx(), cmd)
}

// Interactive handles POST /slack/interactive.
func (h *HTTPHandler) Interactive(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.verify(w, r); !ok {
		return
	}
	var cb slack.InteractionCallback
	if err := json.Unmarshal([]byte(r.PostFormValue("payload")), &cb); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
	h.bridge.interaction(h.ctx(), cb)
}

// Events handles POST /slack/events, including the url_verification
// handshake. Slack retries are acknowledged and dropped.
func (h *HTTPHandler) Events(w http.ResponseWriter, r *http.Request) {
	body, ok := h.verify(w, r)
	if !ok {
		return
	}
	if r.Header.Get("X-Slack-Retry-Num") != "" {
		w.WriteHeader(http.StatusOK)
		return
	}
	ev, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		http.Error(w, "invalid event", http.StatusBadRequest)
		return
	}
	switch ev.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			http.Error(w, "invalid challenge", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(challenge.Challenge))
	case slackevents.CallbackEvent:
		w.WriteHeader(http.StatusOK)
		h.bridge.event(h.ctx(), ev)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
