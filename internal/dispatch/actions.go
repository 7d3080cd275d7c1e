package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alpha-machine/alphabot/pkg/protocol"
)

// HandleAction runs one interactive element click. An Empty response means
// nothing should be posted back.
func (d *Dispatcher) HandleAction(ctx context.Context, act protocol.Action) (resp Response) {
	if act.ID == "" {
		act.ID = uuid.NewString()
	}
	log := d.logger.With("invocation", act.ID, "action", act.ActionID, "user", act.UserID)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("action panicked", "panic", r)
			resp = failure(fmt.Errorf("internal error: %v", r))
		}
		if resp.Kind == Failure && resp.Text == "" {
			resp.Text = fmt.Sprintf("❌ Error processing action: %v", resp.Err)
		}
		log.Info("action handled", "kind", resp.Kind.String(), "elapsed", time.Since(start))
	}()

	switch act.ActionID {
	case ActionSelectTranscripts, ActionInlineTranscripts:
		// Multi-select changes are remembered so a later button or /chat
		// sees them.
		if err := d.Sessions.PutSelection(ctx, act.UserID, act.SelectedIDs); err != nil {
			log.Warn("storing selection failed", "error", err)
		}
		return Response{}

	case ActionSetSelection:
		if len(act.SelectedIDs) == 0 {
			return ephemeral("⚠️ Please select at least one transcript first.")
		}
		if err := d.Sessions.PutSelection(ctx, act.UserID, act.SelectedIDs); err != nil {
			return failure(err)
		}
		return ephemeral(fmt.Sprintf("✅ *Selection saved.* Your next `/chat` will use only these %d transcript(s).", len(act.SelectedIDs)))

	case ActionAnswerSelected:
		ids := act.SelectedIDs
		if len(ids) == 0 {
			sel, err := d.Sessions.TakeSelection(ctx, act.UserID)
			if err != nil {
				log.Warn("selection lookup failed", "error", err)
			}
			if sel != nil {
				ids = sel.TranscriptIDs
			}
		}
		d.clearSelection(ctx, act.UserID)
		if len(ids) == 0 {
			return ephemeral("⚠️ Please select at least one transcript first.")
		}
		return d.answerWithSelection(ctx, act.Value, ids)

	case ActionAnswerAll:
		d.clearSelection(ctx, act.UserID)
		return d.answerWithAll(ctx, act.Value, act.ChannelID)

	case ActionCreateYes:
		return d.confirm(ctx, act, true)

	case ActionCreateNo:
		return d.confirm(ctx, act, false)
	}

	log.Warn("unknown action")
	return Response{}
}

func (d *Dispatcher) clearSelection(ctx context.Context, userID string) {
	if err := d.Sessions.ClearSelection(ctx, userID); err != nil {
		d.logger.Warn("clearing selection failed", "user", userID, "error", err)
	}
}
