package state

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// DefaultTTL is how long a selection or confirmation stays valid.
const DefaultTTL = 10 * time.Minute

// Selection restricts the next chat from a user to specific transcripts.
type Selection struct {
	UserID        string    `json:"user_id"`
	TranscriptIDs []string  `json:"transcript_ids"`
	CreatedAt     time.Time `json:"created_at"`
}

// Confirmation is a ticket analysis waiting for a yes/no answer.
type Confirmation struct {
	Nonce           string    `json:"nonce"`
	UserID          string    `json:"user_id"`
	OriginalRequest string    `json:"original_request"`
	Analysis        string    `json:"analysis"`
	CreatedAt       time.Time `json:"created_at"`
}

// Sessions stores at most one Selection and one Confirmation per user.
// Records older than the TTL read as absent even if the backing store has
// not expired them yet.
type Sessions struct {
	store  Store
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewSessions wraps store. A non-positive ttl means DefaultTTL.
func NewSessions(store Store, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Sessions{store: store, ttl: ttl, now: time.Now, logger: slog.Default()}
}

// SetLogger replaces the logger used for best-effort cleanup failures.
func (s *Sessions) SetLogger(l *slog.Logger) { s.logger = l }

// SetClock replaces the clock used for timestamps and expiry.
func (s *Sessions) SetClock(now func() time.Time) { s.now = now }

// Now returns the current time on the sessions clock.
func (s *Sessions) Now() time.Time { return s.now() }

// Expired reports whether a record created at t is past the TTL.
func (s *Sessions) Expired(t time.Time) bool {
	return s.now().Sub(t) > s.ttl
}

func selectionKey(userID string) string    { return "selection:" + userID }
func confirmationKey(userID string) string { return "confirm:" + userID }
func consumedKey(nonce string) string      { return "confirm-used:" + nonce }

// PutSelection replaces the user's selection.
func (s *Sessions) PutSelection(ctx context.Context, userID string, ids []string) error {
	sel := Selection{UserID: userID, TranscriptIDs: ids, CreatedAt: s.now()}
	return s.put(ctx, selectionKey(userID), sel)
}

// PeekSelection returns the user's live selection without consuming it.
func (s *Sessions) PeekSelection(ctx context.Context, userID string) (*Selection, error) {
	raw, ok, err := s.store.Get(ctx, selectionKey(userID))
	if err != nil || !ok {
		return nil, err
	}
	return s.decodeSelection(ctx, userID, raw)
}

// TakeSelection returns and removes the user's live selection.
func (s *Sessions) TakeSelection(ctx context.Context, userID string) (*Selection, error) {
	raw, ok, err := s.store.Take(ctx, selectionKey(userID))
	if err != nil || !ok {
		return nil, err
	}
	return s.decodeSelection(ctx, userID, raw)
}

// ClearSelection removes the user's selection.
func (s *Sessions) ClearSelection(ctx context.Context, userID string) error {
	return s.store.Delete(ctx, selectionKey(userID))
}

func (s *Sessions) decodeSelection(ctx context.Context, userID string, raw []byte) (*Selection, error) {
	var sel Selection
	if err := json.Unmarshal(raw, &sel); err != nil {
		return nil, fmt.Errorf("state: decode selection: %w", err)
	}
	if s.Expired(sel.CreatedAt) {
		if err := s.store.Delete(ctx, selectionKey(userID)); err != nil {
			s.logger.Warn("clearing expired selection failed", "user", userID, "error", err)
		}
		return nil, nil
	}
	return &sel, nil
}

// PutConfirmation replaces the user's pending confirmation. CreatedAt is
// stamped if unset. The nonce of a replaced confirmation is marked consumed
// so its buttons stop working.
func (s *Sessions) PutConfirmation(ctx context.Context, c *Confirmation) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	raw, ok, err := s.store.Get(ctx, confirmationKey(c.UserID))
	if err != nil {
		return err
	}
	if ok {
		var prev Confirmation
		if json.Unmarshal(raw, &prev) == nil && prev.Nonce != "" && prev.Nonce != c.Nonce {
			if _, err := s.ConsumeNonce(ctx, prev.Nonce); err != nil {
				return err
			}
		}
	}
	return s.put(ctx, confirmationKey(c.UserID), c)
}

// TakeConfirmation returns and removes the user's live confirmation and
// marks its nonce consumed.
func (s *Sessions) TakeConfirmation(ctx context.Context, userID string) (*Confirmation, error) {
	raw, ok, err := s.store.Take(ctx, confirmationKey(userID))
	if err != nil || !ok {
		return nil, err
	}
	var c Confirmation
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("state: decode confirmation: %w", err)
	}
	if c.Nonce != "" {
		if err := s.store.Set(ctx, consumedKey(c.Nonce), []byte("1"), s.ttl); err != nil {
			return nil, err
		}
	}
	if s.Expired(c.CreatedAt) {
		return nil, nil
	}
	return &c, nil
}

// ConsumeNonce marks nonce used. It reports false if the nonce was already
// used, which is how a replayed button payload is rejected after the
// stored record is gone.
func (s *Sessions) ConsumeNonce(ctx context.Context, nonce string) (bool, error) {
	if nonce == "" {
		return false, nil
	}
	_, used, err := s.store.Get(ctx, consumedKey(nonce))
	if err != nil {
		return false, err
	}
	if used {
		return false, nil
	}
	if err := s.store.Set(ctx, consumedKey(nonce), []byte("1"), s.ttl); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Sessions) put(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	return s.store.Set(ctx, key, raw, s.ttl)
}
