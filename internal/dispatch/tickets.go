package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/alpha-machine/alphabot/internal/events"
	"github.com/alpha-machine/alphabot/internal/linear"
	"github.com/alpha-machine/alphabot/internal/provider"
	"github.com/alpha-machine/alphabot/internal/state"
	"github.com/alpha-machine/alphabot/pkg/protocol"
)

const (
	createContextLimit  = 8000
	analysisDisplay     = 2800
	analysisStructured  = 4000
	payloadRequestLimit = 300
	payloadAnalysis     = 1400
)

func (d *Dispatcher) create(ctx context.Context, inv protocol.Invocation) Response {
	text := strings.TrimSpace(inv.Text)
	if text == "" {
		return ephemeral("Please describe what you want to create in Linear.")
	}

	system, user, missing := d.render("slack_bot_create_tickets", "Ticket creation", map[string]string{
		"context":            clipEllipsis(d.Context.Comprehensive(ctx), createContextLimit),
		"ticket_description": text,
	})
	if missing != nil {
		return *missing
	}
	analysis, err := d.LLM.Text(ctx, system, user)
	if err != nil {
		return failure(err)
	}

	c := &state.Confirmation{
		Nonce:           uuid.NewString(),
		UserID:          inv.UserID,
		OriginalRequest: text,
		Analysis:        analysis,
	}
	if err := d.Sessions.PutConfirmation(ctx, c); err != nil {
		// The button payload still carries enough to confirm.
		d.logger.Warn("storing confirmation failed", "user", inv.UserID, "error", err)
	}

	display := clipEllipsis(analysis, analysisDisplay)
	display = strings.NewReplacer("*", "•", "`", "'").Replace(display)
	mode := ""
	if d.Tracker.TestMode() {
		mode = " [TEST MODE]"
	}
	msg := fmt.Sprintf("📋 *Linear Ticket Analysis%s:*\n\n%s\n\n⚡ *Would you like me to create these tickets in Linear?*", mode, display)
	return pending(msg, confirmBlocks(msg, encodePayload(c)))
}

// confirmPayload is the button value. It lets a confirmation survive a
// lost session record; the nonce keeps it single-use.
type confirmPayload struct {
	UserID          string `json:"user_id"`
	OriginalRequest string `json:"original_request"`
	Analysis        string `json:"analysis"`
	Nonce           string `json:"nonce"`
	CreatedAt       int64  `json:"created_at"`
}

func encodePayload(c *state.Confirmation) string {
	raw, _ := json.Marshal(confirmPayload{
		UserID:          c.UserID,
		OriginalRequest: clip(c.OriginalRequest, payloadRequestLimit),
		Analysis:        clipEllipsis(c.Analysis, payloadAnalysis),
		Nonce:           c.Nonce,
		CreatedAt:       c.CreatedAt.Unix(),
	})
	return string(raw)
}

// fromPayload recovers a confirmation from a button value. It returns nil
// for payloads from another user, expired ones and replays.
func (d *Dispatcher) fromPayload(ctx context.Context, userID, value string) *state.Confirmation {
	if value == "" {
		return nil
	}
	var p confirmPayload
	if err := json.Unmarshal([]byte(value), &p); err != nil {
		d.logger.Debug("undecodable confirmation payload", "error", err)
		return nil
	}
	created := time.Unix(p.CreatedAt, 0)
	if p.UserID != userID || p.Nonce == "" || d.Sessions.Expired(created) {
		return nil
	}
	fresh, err := d.Sessions.ConsumeNonce(ctx, p.Nonce)
	if err != nil || !fresh {
		return nil
	}
	return &state.Confirmation{
		Nonce:           p.Nonce,
		UserID:          p.UserID,
		OriginalRequest: p.OriginalRequest,
		Analysis:        p.Analysis,
		CreatedAt:       created,
	}
}

func payloadNonce(value string) string {
	var p confirmPayload
	if value == "" || json.Unmarshal([]byte(value), &p) != nil {
		return ""
	}
	return p.Nonce
}

func (d *Dispatcher) confirm(ctx context.Context, act protocol.Action, yes bool) Response {
	c, err := d.Sessions.TakeConfirmation(ctx, act.UserID)
	if err != nil {
		d.logger.Warn("confirmation lookup failed", "user", act.UserID, "error", err)
	}
	if c == nil {
		c = d.fromPayload(ctx, act.UserID, act.Value)
	} else if n := payloadNonce(act.Value); n != "" && n != c.Nonce {
		// An older button answered the newer record; retire it too.
		if _, err := d.Sessions.ConsumeNonce(ctx, n); err != nil {
			d.logger.Warn("retiring confirmation nonce failed", "user", act.UserID, "error", err)
		}
	}
	if c == nil {
		return ephemeral("❌ *No pending ticket creation found.* Please use `/create` again to generate new tickets.")
	}
	if !yes {
		return ephemeral("✅ *Ticket creation cancelled.* No tickets were created in Linear.")
	}
	return d.createTickets(ctx, c)
}

func (d *Dispatcher) createTickets(ctx context.Context, c *state.Confirmation) Response {
	system, user, missing := d.render("slack_bot_create_tickets_structured", "Structured ticket", map[string]string{
		"context":            "",
		"ticket_description": c.OriginalRequest,
		"analysis":           clip(c.Analysis, analysisStructured),
	})
	if missing != nil {
		return *missing
	}

	var batch ticketBatch
	if _, err := d.LLM.JSON(ctx, system, user, ticketSchema, &batch); err != nil {
		var malformed *provider.MalformedOutputError
		if errors.As(err, &malformed) {
			return failureText("❌ *Error:* Failed to parse ticket data. "+err.Error(), err)
		}
		return failure(err)
	}

	test := d.Tracker.TestMode()
	var created []*linear.IssueRef
	for _, t := range batch.Issues {
		in := d.issueInput(t, test)
		ref, err := d.Tracker.CreateIssue(ctx, in)
		if errors.Is(err, linear.ErrTestModeDisabled) {
			return failureText("❌ Error creating tickets: "+err.Error(), err)
		}
		if err != nil {
			d.logger.Warn("ticket creation failed", "title", in.Title, "error", err)
			continue
		}
		created = append(created, ref)
	}

	if len(created) == 0 {
		return ephemeral("❌ *Failed to create Linear tickets.* The analysis was:\n\n" + c.Analysis)
	}

	mode := ""
	if test {
		mode = " (TEST MODE)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "✅ *%d Ticket(s) Created in Linear%s:*\n", len(created), mode)
	ids := make([]string, 0, len(created))
	for _, ref := range created {
		id := ref.Identifier
		if id == "" {
			id = ref.ID
		}
		ids = append(ids, id)
		fmt.Fprintf(&b, "\n• *%s* (ID: %s)", ref.Title, id)
	}
	d.publish(ctx, events.SubjectTicketsCreated, events.TicketsCreated{
		UserID:  c.UserID,
		Request: c.OriginalRequest,
		Issues:  ids,
		Test:    test,
	})
	return inChannel(b.String())
}

func (d *Dispatcher) issueInput(t structuredTicket, test bool) linear.IssueInput {
	title := strings.TrimSpace(string(t.Title))
	if title == "" {
		title = "Untitled"
	}
	if test && !strings.HasPrefix(title, linear.TestPrefix) {
		title = linear.TestPrefix + title
	}
	in := linear.IssueInput{
		Title:         title,
		Description:   string(t.Description),
		Team:          string(t.Team),
		Project:       string(t.Project),
		Milestone:     string(t.Milestone),
		AssigneeEmail: string(t.Assignee),
		DueDate:       string(t.Deadline),
	}
	if in.AssigneeEmail == "" {
		in.AssigneeEmail = d.DefaultAssignee
	}
	if p, err := strconv.Atoi(string(t.Priority)); err == nil && p >= 0 && p <= 4 {
		in.Priority = &p
	}
	if e, err := strconv.ParseFloat(string(t.Estimate), 64); err == nil && e > 0 {
		in.Estimate = &e
	}
	return in
}

// structuredTicket is one issue from the structured ticket prompt.
type structuredTicket struct {
	Team        looseString `json:"team"`
	Project     looseString `json:"project"`
	Milestone   looseString `json:"milestone"`
	Title       looseString `json:"issue_title"`
	Description looseString `json:"issue_description"`
	Assignee    looseString `json:"assign_team_member"`
	Estimate    looseString `json:"time_estimate"`
	Priority    looseString `json:"priority"`
	Deadline    looseString `json:"deadline"`
	Status      looseString `json:"status"`
}

// ticketBatch accepts {"issues": [...]} or a bare array.
type ticketBatch struct {
	Issues []structuredTicket `json:"issues"`
}

func (b *ticketBatch) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &b.Issues)
	}
	type plainBatch ticketBatch
	return json.Unmarshal(data, (*plainBatch)(b))
}

// looseString decodes a JSON string, number, bool or null into a string.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	default:
		*s = looseString(data)
		return nil
	}
}

var ticketSchema = func() *protocol.ResponseSchema {
	str := func(desc string) jsonschema.Definition {
		return jsonschema.Definition{Type: jsonschema.String, Description: desc}
	}
	issue := jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"team":               str("Linear team name"),
			"project":            str("Project name"),
			"milestone":          str("Milestone name within the project"),
			"issue_title":        str("Short actionable title"),
			"issue_description":  str("Markdown description with acceptance criteria"),
			"assign_team_member": str("Email of the assignee, empty if unassigned"),
			"time_estimate": {
				Type: jsonschema.String,
				Enum: []string{"0.5", "1", "2", "4", "8"},
			},
			"priority": {
				Type: jsonschema.String,
				Enum: []string{"0", "1", "2", "3", "4"},
			},
			"deadline": str("Due date as YYYY-MM-DD, empty if none"),
			"status":   str("Initial workflow state"),
		},
		Required: []string{
			"team", "project", "milestone", "issue_title", "issue_description",
			"assign_team_member", "time_estimate", "priority", "deadline", "status",
		},
		AdditionalProperties: false,
	}
	root := jsonschema.Definition{
		Type:                 jsonschema.Object,
		Properties:           map[string]jsonschema.Definition{"issues": {Type: jsonschema.Array, Items: &issue}},
		Required:             []string{"issues"},
		AdditionalProperties: false,
	}
	raw, err := json.Marshal(root)
	if err != nil {
		panic(err)
	}
	return &protocol.ResponseSchema{Name: "linear_tickets", Schema: raw}
}()

// ticketUpdate is the update prompt's reply.
type ticketUpdate struct {
	TicketID looseString    `json:"ticket_id"`
	Updates  map[string]any `json:"updates"`
	Summary  looseString    `json:"summary"`
}

const updateUsage = "Please describe what you want to update in Linear.\n\nExamples:\n" +
	"• `/update ticket ABC-123 to in progress`\n" +
	"• `/update ABC-123: change title to 'New Task Name'`\n" +
	"• `/update mark ticket XYZ-456 as completed`"

func (d *Dispatcher) update(ctx context.Context, inv protocol.Invocation) Response {
	text := strings.TrimSpace(inv.Text)
	if text == "" {
		return ephemeral(updateUsage)
	}

	system, user, missing := d.render("slack_bot_update_tickets", "Ticket update", map[string]string{
		"context":        d.Context.Comprehensive(ctx),
		"update_request": text,
	})
	if missing != nil {
		return *missing
	}

	var upd ticketUpdate
	raw, err := d.LLM.JSON(ctx, system, user, nil, &upd)
	if err != nil {
		var malformed *provider.MalformedOutputError
		if errors.As(err, &malformed) {
			return ephemeral("❌ *Error:* The AI returned an invalid format. Analysis:\n\n" + malformed.Raw)
		}
		return failure(err)
	}

	if !d.Tracker.TestMode() {
		return ephemeral("📝 *Linear Ticket Update Analysis (Test Mode Disabled):*\n\n" + raw)
	}
	id := strings.TrimSpace(string(upd.TicketID))
	if id == "" || len(upd.Updates) == 0 {
		return ephemeral("❌ *Unable to parse update request.* Please include a ticket ID and what to change, for example `/update ABC-123 to in progress`.")
	}

	ref, err := d.Tracker.UpdateIssue(ctx, id, upd.Updates)
	if errors.Is(err, linear.ErrTestModeDisabled) {
		return failureText("❌ Error updating ticket: "+err.Error(), err)
	}
	if err != nil {
		d.logger.Warn("ticket update failed", "ticket", id, "error", err)
		return ephemeral("❌ *Failed to update Linear ticket.* The AI analysis was:\n\n" + raw)
	}

	url := ref.URL
	if url == "" {
		url = "N/A"
	}
	d.publish(ctx, events.SubjectTicketUpdated, events.TicketUpdated{
		UserID:  inv.UserID,
		Ticket:  id,
		Summary: string(upd.Summary),
	})
	return inChannel(fmt.Sprintf("✅ *Ticket Updated in Linear:*\n\n*Ticket:* %s\n*Summary:* %s\n*URL:* %s", id, upd.Summary, url))
}
