package dispatch

import (
	"context"
	"errors"
	"strings"

	"github.com/alpha-machine/alphabot/pkg/protocol"
)

func (d *Dispatcher) teammember(ctx context.Context, inv protocol.Invocation) Response {
	name := strings.TrimSpace(inv.Text)
	if name == "" {
		return ephemeral("Please specify a team member name or @username.")
	}
	system, user, missing := d.render("slack_bot_teammember", "Team member", map[string]string{
		"member_name": name,
		"context":     d.Context.Comprehensive(ctx),
	})
	if missing != nil {
		return *missing
	}
	info, err := d.LLM.Text(ctx, system, user)
	if err != nil {
		return failure(err)
	}
	if info == "" {
		info = "No information found for this team member."
	}
	return ephemeral("👤 *Team Member Info:*\n\n" + info)
}

func (d *Dispatcher) weeklySummary(ctx context.Context, _ protocol.Invocation) Response {
	summary, err := d.WeeklySummary(ctx)
	var pm promptMissingError
	if errors.As(err, &pm) {
		return ephemeral("❌ " + pm.Error())
	}
	if err != nil {
		return failure(err)
	}
	return inChannel(summary)
}
