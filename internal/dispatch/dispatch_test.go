package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/slack-go/slack"

	"github.com/alpha-machine/alphabot/internal/linear"
	"github.com/alpha-machine/alphabot/internal/prompts"
	"github.com/alpha-machine/alphabot/internal/provider"
	"github.com/alpha-machine/alphabot/internal/state"
	"github.com/alpha-machine/alphabot/internal/transcript"
	"github.com/alpha-machine/alphabot/pkg/protocol"
)

type llmCall struct{ system, user string }

type fakeLLM struct {
	mu       sync.Mutex
	text     string
	json     string
	err      error
	panicMsg string
	calls    []llmCall
}

func (f *fakeLLM) Text(_ context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.calls = append(f.calls, llmCall{system, user})
	return f.text, f.err
}

func (f *fakeLLM) JSON(_ context.Context, system, user string, _ *protocol.ResponseSchema, out any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, llmCall{system, user})
	if f.err != nil {
		return "", f.err
	}
	if err := json.Unmarshal([]byte(f.json), out); err != nil {
		return f.json, &provider.MalformedOutputError{Raw: f.json, Err: err}
	}
	return f.json, nil
}

func (f *fakeLLM) lastUser() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[len(f.calls)-1].user
}

type fakeTracker struct {
	mu      sync.Mutex
	test    bool
	created []linear.IssueInput
	updates map[string]map[string]any
	failOn  string
}

func (f *fakeTracker) CreateIssue(_ context.Context, in linear.IssueInput) (*linear.IssueRef, error) {
	if !f.test {
		return nil, linear.ErrTestModeDisabled
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != "" && strings.Contains(in.Title, f.failOn) {
		return nil, errors.New("linear: graphql: boom")
	}
	f.created = append(f.created, in)
	n := len(f.created)
	return &linear.IssueRef{ID: fmt.Sprintf("id-%d", n), Identifier: fmt.Sprintf("ALP-%d", n), Title: in.Title}, nil
}

func (f *fakeTracker) UpdateIssue(_ context.Context, id string, updates map[string]any) (*linear.IssueRef, error) {
	if !f.test {
		return nil, linear.ErrTestModeDisabled
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updates == nil {
		f.updates = map[string]map[string]any{}
	}
	f.updates[id] = updates
	return &linear.IssueRef{ID: "uuid-" + id, Identifier: id, URL: "https://linear.app/alp/issue/" + id}, nil
}

func (f *fakeTracker) TestMode() bool { return f.test }

type fakeContext struct {
	transcripts map[string]*transcript.Transcript
	selected    [][]string
}

func (f *fakeContext) Comprehensive(context.Context) string { return "ALL CONTEXT" }

func (f *fakeContext) Weekly(context.Context) string { return "WEEK CONTEXT" }

func (f *fakeContext) Selected(_ context.Context, ids []string) (string, []*transcript.Transcript) {
	f.selected = append(f.selected, ids)
	var found []*transcript.Transcript
	for _, id := range ids {
		if t, ok := f.transcripts[id]; ok {
			found = append(found, t)
		}
	}
	if len(found) == 0 {
		return "", nil
	}
	return "SELECTED " + filenames(found), found
}

type fakeTranscripts struct{ list []*transcript.Transcript }

func (f *fakeTranscripts) Recent(_ context.Context, limit int) ([]*transcript.Transcript, error) {
	if limit < len(f.list) {
		return f.list[:limit], nil
	}
	return f.list, nil
}

type fakeHistory struct {
	msgs []string
	err  error
}

func (f *fakeHistory) RecentMessages(context.Context, string, int) ([]string, error) {
	return f.msgs, f.err
}

type published struct {
	subject string
	payload any
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
}

func (f *fakePublisher) Publish(_ context.Context, subject string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, published{subject, payload})
	return nil
}

func (f *fakePublisher) Close() {}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type harness struct {
	d        *Dispatcher
	llm      *fakeLLM
	tracker  *fakeTracker
	ctx      *fakeContext
	events   *fakePublisher
	sessions *state.Sessions
	clock    *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	set, err := prompts.Default()
	if err != nil {
		t.Fatalf("prompts.Default: %v", err)
	}
	ts := []*transcript.Transcript{
		{ID: "t1", Filename: "acme-kickoff.txt", CreatedAt: time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC), Content: "We agreed on the portal."},
		{ID: "t2", Filename: "globex-sync.txt", CreatedAt: time.Date(2024, 3, 3, 9, 0, 0, 0, time.UTC), Content: "Globex wants SSO."},
	}
	clock := &fakeClock{t: time.Now()}
	store := state.NewMemoryStore()
	store.SetClock(clock.now)
	sessions := state.NewSessions(store, state.DefaultTTL)
	sessions.SetClock(clock.now)

	h := &harness{
		llm:      &fakeLLM{text: "an answer"},
		tracker:  &fakeTracker{test: true},
		ctx:      &fakeContext{transcripts: map[string]*transcript.Transcript{"t1": ts[0], "t2": ts[1]}},
		events:   &fakePublisher{},
		sessions: sessions,
		clock:    clock,
	}
	h.d = New(Deps{
		LLM:             h.llm,
		Tracker:         h.tracker,
		Context:         h.ctx,
		Transcripts:     &fakeTranscripts{list: ts},
		Prompts:         set,
		Sessions:        sessions,
		History:         &fakeHistory{msgs: []string{"U1: hello"}},
		Events:          h.events,
		DefaultAssignee: "lead@example.com",
	}, nil)
	return h
}

func (h *harness) run(command, text string) Response {
	return h.d.Dispatch(context.Background(), protocol.Invocation{
		Command: command, Text: text, UserID: "U1", ChannelID: "C1", ResponseURL: "https://hooks.example/r",
	})
}

func (h *harness) act(actionID, value string, selected ...string) Response {
	return h.d.HandleAction(context.Background(), protocol.Action{
		ActionID: actionID, Value: value, UserID: "U1", ChannelID: "C1", SelectedIDs: selected,
	})
}

func TestDispatchRoutesEveryCommand(t *testing.T) {
	h := newHarness(t)
	for _, cmd := range []string{"/chat", "/summarize", "/create", "/create-ticket", "/update", "/teammember", "/weekly-summary"} {
		resp := h.run(cmd, "")
		if resp.Empty() {
			t.Errorf("%s: empty response", cmd)
		}
		if strings.HasPrefix(resp.Text, "Unknown command") {
			t.Errorf("%s: not routed", cmd)
		}
	}
	if got := len(h.d.Commands()); got != 7 {
		t.Errorf("Commands() = %d, want 7", got)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	h := newHarness(t)
	resp := h.run("/dance", "now")
	if resp.Text != "Unknown command: /dance" {
		t.Errorf("text = %q", resp.Text)
	}
}

func TestDispatchFailureText(t *testing.T) {
	h := newHarness(t)
	h.llm.err = errors.New("boom")
	resp := h.run("/teammember", "alice")
	if resp.Kind != Failure {
		t.Fatalf("kind = %v", resp.Kind)
	}
	if resp.Text != "❌ Error processing /teammember: boom" {
		t.Errorf("text = %q", resp.Text)
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	h := newHarness(t)
	h.llm.panicMsg = "nil map"
	resp := h.run("/teammember", "alice")
	if resp.Kind != Failure || !strings.Contains(resp.Text, "internal error: nil map") {
		t.Errorf("resp = %+v", resp)
	}
}

func TestMissingPrompt(t *testing.T) {
	h := newHarness(t)
	h.d.Prompts = emptyPrompts{}
	resp := h.run("/teammember", "alice")
	if resp.Text != "❌ Team member prompt configuration not found." {
		t.Errorf("text = %q", resp.Text)
	}
}

type emptyPrompts struct{}

func (emptyPrompts) Render(string, map[string]string) (string, string, bool) { return "", "", false }

func TestChatDefaultIncludesHistory(t *testing.T) {
	h := newHarness(t)
	resp := h.run("/chat", "what did acme decide?")
	if resp.Text != "🤖 *AI Response:*\nan answer" {
		t.Errorf("text = %q", resp.Text)
	}
	user := h.llm.lastUser()
	if !strings.Contains(user, "ALL CONTEXT") || !strings.Contains(user, "Recent Slack History:\nU1: hello") {
		t.Errorf("prompt missing context or history: %q", user)
	}
}

func TestChatHistoryError(t *testing.T) {
	h := newHarness(t)
	h.d.History = &fakeHistory{err: errors.New("not_in_channel")}
	h.run("/chat", "hi")
	if !strings.Contains(h.llm.lastUser(), "Could not retrieve Slack history: not_in_channel") {
		t.Errorf("prompt = %q", h.llm.lastUser())
	}
}

func TestChatEmptyShowsTips(t *testing.T) {
	h := newHarness(t)
	if resp := h.run("/chat", "  "); resp.Text != chatTips {
		t.Errorf("text = %q", resp.Text)
	}
}

func TestChatSelectionUsedOnce(t *testing.T) {
	h := newHarness(t)
	resp := h.act(ActionSetSelection, "set", "t2")
	if !strings.Contains(resp.Text, "only these 1 transcript(s)") {
		t.Fatalf("set selection: %q", resp.Text)
	}

	resp = h.run("/chat", "what does globex want?")
	if !strings.HasPrefix(resp.Text, "🎯 *AI Response* (using ONLY 1 selected transcript(s): globex-sync.txt)") {
		t.Errorf("first chat: %q", resp.Text)
	}

	resp = h.run("/chat", "and now?")
	if !strings.HasPrefix(resp.Text, "🤖 *AI Response:*") {
		t.Errorf("second chat should use all context: %q", resp.Text)
	}
}

func TestChatSelectionExpires(t *testing.T) {
	h := newHarness(t)
	h.act(ActionSetSelection, "set", "t1")
	h.clock.advance(11 * time.Minute)
	resp := h.run("/chat", "anything?")
	if !strings.HasPrefix(resp.Text, "🤖 *AI Response:*") {
		t.Errorf("expired selection still used: %q", resp.Text)
	}
	if len(h.ctx.selected) != 0 {
		t.Errorf("Selected called %d times", len(h.ctx.selected))
	}
}

func TestChatSelectionMissingTranscripts(t *testing.T) {
	h := newHarness(t)
	h.act(ActionSetSelection, "set", "gone")
	resp := h.run("/chat", "hello")
	if resp.Text != "❌ Could not retrieve selected transcripts." {
		t.Errorf("text = %q", resp.Text)
	}
}

func TestSetSelectionRequiresChoice(t *testing.T) {
	h := newHarness(t)
	if resp := h.act(ActionSetSelection, "set"); resp.Text != "⚠️ Please select at least one transcript first." {
		t.Errorf("text = %q", resp.Text)
	}
}

func TestSelectionPicker(t *testing.T) {
	h := newHarness(t)
	h.act(ActionSelectTranscripts, "", "t1")

	resp := h.run("/chat", "select")
	if len(resp.Blocks) != 3 {
		t.Fatalf("blocks = %d", len(resp.Blocks))
	}
	sec := resp.Blocks[0].(*slack.SectionBlock)
	sel := sec.Accessory.MultiSelectElement
	if sel == nil || sel.ActionID != ActionSelectTranscripts {
		t.Fatalf("accessory = %+v", sec.Accessory)
	}
	if len(sel.Options) != 2 {
		t.Errorf("options = %d", len(sel.Options))
	}
	if len(sel.InitialOptions) != 1 || sel.InitialOptions[0].Value != "t1" {
		t.Errorf("initial options = %+v", sel.InitialOptions)
	}
	if got := sel.Options[0].Text.Text; got != "acme-kickoff.txt (03/04 10:00)" {
		t.Errorf("option label = %q", got)
	}
}

func TestInlinePicker(t *testing.T) {
	h := newHarness(t)
	resp := h.run("/chat", "with what is blocked?")
	if len(resp.Blocks) != 4 {
		t.Fatalf("blocks = %d", len(resp.Blocks))
	}
	actions := resp.Blocks[2].(*slack.ActionBlock)
	btn := actions.Elements.ElementSet[0].(*slack.ButtonBlockElement)
	if btn.ActionID != ActionAnswerSelected || btn.Value != "what is blocked?" {
		t.Errorf("button = %s %q", btn.ActionID, btn.Value)
	}

	resp = h.act(ActionAnswerSelected, btn.Value, "t1")
	if !strings.Contains(resp.Text, "acme-kickoff.txt") {
		t.Errorf("answer = %q", resp.Text)
	}
	resp = h.act(ActionAnswerAll, btn.Value)
	if !strings.HasPrefix(resp.Text, "🤖 *AI Response:*") {
		t.Errorf("answer all = %q", resp.Text)
	}
}

func TestPickerWithoutTranscripts(t *testing.T) {
	h := newHarness(t)
	h.d.Transcripts = &fakeTranscripts{}
	if resp := h.run("/chat", "pick"); resp.Text != "📭 No transcripts available for selection." {
		t.Errorf("text = %q", resp.Text)
	}
}

const twoTickets = `{"issues": [
	{"team": "Alpha", "project": "Portal", "milestone": "MVP", "issue_title": "Build login", "issue_description": "d1",
	 "assign_team_member": "", "time_estimate": "2", "priority": "1", "deadline": "2024-04-01", "status": "Todo"},
	{"team": "Alpha", "project": "Portal", "milestone": "MVP", "issue_title": "[TEST] Add SSO", "issue_description": "d2",
	 "assign_team_member": "dev@example.com", "time_estimate": 0.5, "priority": 3, "deadline": "", "status": "Todo"}
]}`

func confirmValue(t *testing.T, resp Response) string {
	t.Helper()
	if len(resp.Blocks) != 2 {
		t.Fatalf("blocks = %d", len(resp.Blocks))
	}
	actions := resp.Blocks[1].(*slack.ActionBlock)
	return actions.Elements.ElementSet[0].(*slack.ButtonBlockElement).Value
}

func TestCreateConfirmYes(t *testing.T) {
	h := newHarness(t)
	h.llm.text = "1. *Build login*\n2. `Add SSO`"
	h.llm.json = twoTickets

	resp := h.run("/create", "login and SSO for the Acme portal")
	if resp.Kind != Pending {
		t.Fatalf("kind = %v", resp.Kind)
	}
	if !strings.HasPrefix(resp.Text, "📋 *Linear Ticket Analysis [TEST MODE]:*") {
		t.Errorf("text = %q", resp.Text)
	}
	if !strings.Contains(resp.Text, "•Build login•") || strings.Contains(resp.Text, "`") {
		t.Errorf("analysis not sanitized: %q", resp.Text)
	}
	value := confirmValue(t, resp)

	resp = h.act(ActionCreateYes, value)
	if resp.ResponseType != slack.ResponseTypeInChannel {
		t.Errorf("response type = %q", resp.ResponseType)
	}
	if !strings.HasPrefix(resp.Text, "✅ *2 Ticket(s) Created in Linear (TEST MODE):*") {
		t.Errorf("text = %q", resp.Text)
	}
	if len(h.tracker.created) != 2 {
		t.Fatalf("created = %d", len(h.tracker.created))
	}
	first, second := h.tracker.created[0], h.tracker.created[1]
	if first.Title != "[TEST] Build login" || second.Title != "[TEST] Add SSO" {
		t.Errorf("titles = %q, %q", first.Title, second.Title)
	}
	if first.AssigneeEmail != "lead@example.com" || second.AssigneeEmail != "dev@example.com" {
		t.Errorf("assignees = %q, %q", first.AssigneeEmail, second.AssigneeEmail)
	}
	if *first.Priority != 1 || *second.Estimate != 0.5 {
		t.Errorf("priority/estimate = %d, %v", *first.Priority, *second.Estimate)
	}
	if len(h.events.sent) != 1 || h.events.sent[0].subject != "tickets.created" {
		t.Errorf("events = %+v", h.events.sent)
	}

	// The stored record and the payload nonce are both spent.
	resp = h.act(ActionCreateYes, value)
	if !strings.HasPrefix(resp.Text, "❌ *No pending ticket creation found.*") {
		t.Errorf("repeat = %q", resp.Text)
	}
	if len(h.tracker.created) != 2 {
		t.Errorf("repeat created more issues: %d", len(h.tracker.created))
	}
}

func TestSupersededConfirmationCannotCreate(t *testing.T) {
	h := newHarness(t)
	h.llm.json = twoTickets

	older := confirmValue(t, h.run("/create", "first request"))
	newer := confirmValue(t, h.run("/create", "second request"))

	if resp := h.act(ActionCreateYes, newer); !strings.HasPrefix(resp.Text, "✅ *2 Ticket(s) Created") {
		t.Fatalf("yes on newer = %q", resp.Text)
	}
	for name, value := range map[string]string{"repeat newer": newer, "older": older} {
		resp := h.act(ActionCreateYes, value)
		if !strings.HasPrefix(resp.Text, "❌ *No pending ticket creation found.*") {
			t.Errorf("%s: text = %q", name, resp.Text)
		}
	}
	if len(h.tracker.created) != 2 {
		t.Errorf("created = %d, want 2", len(h.tracker.created))
	}
}

func TestOlderButtonAnswersNewestConfirmationOnce(t *testing.T) {
	h := newHarness(t)
	h.llm.json = twoTickets

	older := confirmValue(t, h.run("/create", "first request"))
	newer := confirmValue(t, h.run("/create", "second request"))

	if resp := h.act(ActionCreateYes, older); !strings.HasPrefix(resp.Text, "✅ *2 Ticket(s) Created") {
		t.Fatalf("yes on older = %q", resp.Text)
	}
	for _, value := range []string{newer, older} {
		if resp := h.act(ActionCreateYes, value); !strings.HasPrefix(resp.Text, "❌ *No pending") {
			t.Errorf("replay = %q", resp.Text)
		}
	}
	if len(h.tracker.created) != 2 {
		t.Errorf("created = %d, want 2", len(h.tracker.created))
	}
}

func TestCreateConfirmNo(t *testing.T) {
	h := newHarness(t)
	h.llm.json = twoTickets
	value := confirmValue(t, h.run("/create", "two things"))

	resp := h.act(ActionCreateNo, value)
	if resp.Text != "✅ *Ticket creation cancelled.* No tickets were created in Linear." {
		t.Errorf("text = %q", resp.Text)
	}
	if len(h.tracker.created) != 0 {
		t.Errorf("created = %d", len(h.tracker.created))
	}
	if resp := h.act(ActionCreateYes, value); !strings.Contains(resp.Text, "No pending ticket creation") {
		t.Errorf("yes after no = %q", resp.Text)
	}
}

func TestConfirmFromPayload(t *testing.T) {
	h := newHarness(t)
	h.llm.json = twoTickets
	value := confirmValue(t, h.run("/create", "two things"))

	// Lose the stored record, as after a restart with an in-memory store.
	if _, err := h.sessions.TakeConfirmation(context.Background(), "U1"); err != nil {
		t.Fatal(err)
	}
	// TakeConfirmation spent the nonce, so the payload is a replay now.
	if resp := h.act(ActionCreateYes, value); !strings.Contains(resp.Text, "No pending ticket creation") {
		t.Errorf("replayed payload accepted: %q", resp.Text)
	}

	var p confirmPayload
	if err := json.Unmarshal([]byte(value), &p); err != nil {
		t.Fatal(err)
	}
	p.Nonce = "fresh-nonce"
	raw, _ := json.Marshal(p)
	resp := h.act(ActionCreateYes, string(raw))
	if !strings.HasPrefix(resp.Text, "✅ *2 Ticket(s) Created") {
		t.Errorf("payload fallback = %q", resp.Text)
	}

	other := h.d.HandleAction(context.Background(), protocol.Action{ActionID: ActionCreateYes, Value: string(raw), UserID: "U2"})
	if !strings.Contains(other.Text, "No pending ticket creation") {
		t.Errorf("other user = %q", other.Text)
	}
}

func TestConfirmPayloadExpired(t *testing.T) {
	h := newHarness(t)
	h.llm.json = twoTickets
	value := confirmValue(t, h.run("/create", "two things"))
	h.clock.advance(11 * time.Minute)
	if resp := h.act(ActionCreateYes, value); !strings.Contains(resp.Text, "No pending ticket creation") {
		t.Errorf("expired = %q", resp.Text)
	}
	if len(h.tracker.created) != 0 {
		t.Errorf("created = %d", len(h.tracker.created))
	}
}

func TestCreateRefusedOutsideTestMode(t *testing.T) {
	h := newHarness(t)
	h.tracker.test = false
	h.llm.json = twoTickets
	resp := h.run("/create", "two things")
	if strings.Contains(resp.Text, "TEST MODE") {
		t.Errorf("text = %q", resp.Text)
	}
	resp = h.act(ActionCreateYes, confirmValue(t, resp))
	if resp.Kind != Failure || !strings.HasPrefix(resp.Text, "❌ Error creating tickets: ") {
		t.Errorf("resp = %v %q", resp.Kind, resp.Text)
	}
	if !errors.Is(resp.Err, linear.ErrTestModeDisabled) {
		t.Errorf("err = %v", resp.Err)
	}
}

func TestCreatePartialFailure(t *testing.T) {
	h := newHarness(t)
	h.llm.json = twoTickets
	h.tracker.failOn = "SSO"
	resp := h.act(ActionCreateYes, confirmValue(t, h.run("/create", "two things")))
	if !strings.HasPrefix(resp.Text, "✅ *1 Ticket(s) Created") {
		t.Errorf("text = %q", resp.Text)
	}
}

func TestCreateMalformedTickets(t *testing.T) {
	h := newHarness(t)
	h.llm.json = "not json"
	resp := h.act(ActionCreateYes, confirmValue(t, h.run("/create", "x")))
	if !strings.HasPrefix(resp.Text, "❌ *Error:* Failed to parse ticket data.") {
		t.Errorf("text = %q", resp.Text)
	}
}

func TestTicketBatchAcceptsArray(t *testing.T) {
	var b ticketBatch
	if err := json.Unmarshal([]byte(`[{"issue_title": "A", "priority": 2}]`), &b); err != nil {
		t.Fatal(err)
	}
	if len(b.Issues) != 1 || b.Issues[0].Title != "A" || b.Issues[0].Priority != "2" {
		t.Errorf("batch = %+v", b)
	}
}

func TestCreateRequiresText(t *testing.T) {
	h := newHarness(t)
	if resp := h.run("/create-ticket", ""); resp.Text != "Please describe what you want to create in Linear." {
		t.Errorf("text = %q", resp.Text)
	}
}

func TestUpdate(t *testing.T) {
	h := newHarness(t)
	h.llm.json = `{"ticket_id": "ALP-7", "updates": {"status": "In Progress"}, "summary": "Moved to in progress"}`
	resp := h.run("/update", "ALP-7 to in progress")
	want := "✅ *Ticket Updated in Linear:*\n\n*Ticket:* ALP-7\n*Summary:* Moved to in progress\n*URL:* https://linear.app/alp/issue/ALP-7"
	if resp.Text != want {
		t.Errorf("text = %q", resp.Text)
	}
	if h.tracker.updates["ALP-7"]["status"] != "In Progress" {
		t.Errorf("updates = %+v", h.tracker.updates)
	}
	if len(h.events.sent) != 1 || h.events.sent[0].subject != "tickets.updated" {
		t.Errorf("events = %+v", h.events.sent)
	}
}

func TestUpdateBranches(t *testing.T) {
	tests := []struct {
		name   string
		test   bool
		json   string
		prefix string
	}{
		{"test mode off", false, `{"ticket_id": "ALP-1", "updates": {"title": "x"}}`, "📝 *Linear Ticket Update Analysis (Test Mode Disabled):*"},
		{"missing id", true, `{"updates": {"title": "x"}}`, "❌ *Unable to parse update request.*"},
		{"no updates", true, `{"ticket_id": "ALP-1", "updates": {}}`, "❌ *Unable to parse update request.*"},
		{"malformed", true, `Sure! Here you go`, "❌ *Error:* The AI returned an invalid format. Analysis:\n\nSure! Here you go"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.tracker.test = tt.test
			h.llm.json = tt.json
			resp := h.run("/update", "something")
			if !strings.HasPrefix(resp.Text, tt.prefix) {
				t.Errorf("text = %q", resp.Text)
			}
			if len(h.tracker.updates) != 0 {
				t.Errorf("tracker updated: %+v", h.tracker.updates)
			}
		})
	}
}

func TestUpdateUsage(t *testing.T) {
	h := newHarness(t)
	if resp := h.run("/update", ""); resp.Text != updateUsage {
		t.Errorf("text = %q", resp.Text)
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"", "📅 *Meeting Summary - acme-kickoff.txt*\n_2024-03-04 10:00_\n\nan answer"},
		{"latest meeting", "📅 *Meeting Summary - acme-kickoff.txt*"},
		{"CLIENT acme corp", "📊 *Client Status: Acme Corp*\n\nan answer"},
		{"client", "Please specify a client name: `/summarize client [client_name]`"},
		{"yesterday", "📅 *Meeting Summary - acme-kickoff.txt*"},
	}
	for _, tt := range tests {
		h := newHarness(t)
		resp := h.run("/summarize", tt.text)
		if !strings.HasPrefix(resp.Text, tt.want) {
			t.Errorf("summarize %q = %q", tt.text, resp.Text)
		}
	}
}

func TestSummarizeNoMeetings(t *testing.T) {
	h := newHarness(t)
	h.d.Transcripts = &fakeTranscripts{}
	if resp := h.run("/summarize", ""); resp.Text != "📭 No recent meetings found." {
		t.Errorf("text = %q", resp.Text)
	}
	h.d.Transcripts = &fakeTranscripts{list: []*transcript.Transcript{{ID: "e", Filename: "empty.txt"}}}
	if resp := h.run("/summarize", ""); resp.Text != "📭 No transcript content found for recent meeting." {
		t.Errorf("text = %q", resp.Text)
	}
}

func TestTeammemberAndWeekly(t *testing.T) {
	h := newHarness(t)
	if resp := h.run("/teammember", ""); resp.Text != "Please specify a team member name or @username." {
		t.Errorf("empty = %q", resp.Text)
	}
	if resp := h.run("/teammember", "@dana"); resp.Text != "👤 *Team Member Info:*\n\nan answer" {
		t.Errorf("member = %q", resp.Text)
	}
	h.llm.text = ""
	resp := h.run("/weekly-summary", "")
	if resp.ResponseType != slack.ResponseTypeInChannel || resp.Text != "Unable to generate weekly summary." {
		t.Errorf("weekly = %q %q", resp.ResponseType, resp.Text)
	}
	if !strings.Contains(h.llm.lastUser(), "WEEK CONTEXT") {
		t.Errorf("weekly prompt = %q", h.llm.lastUser())
	}
}

func TestConverse(t *testing.T) {
	h := newHarness(t)
	reply, err := h.d.Converse(context.Background(), "")
	if err != nil || reply != "an answer" {
		t.Errorf("Converse = %q, %v", reply, err)
	}
	if !strings.Contains(h.llm.lastUser(), "Hello! How can I help you?") {
		t.Errorf("prompt = %q", h.llm.lastUser())
	}
}

func TestClip(t *testing.T) {
	if got := clip("héllo", 2); got != "h" {
		t.Errorf("clip = %q", got)
	}
	if got := clipEllipsis("abcdef", 3); got != "abc..." {
		t.Errorf("clipEllipsis = %q", got)
	}
	if got := titleCase("acme CORP"); got != "Acme Corp" {
		t.Errorf("titleCase = %q", got)
	}
}
