package protocol

import "strings"

// Invocation is one slash command received from Slack. It lives only for the
// duration of the request.
type Invocation struct {
	ID          string `json:"id,omitempty"`
	Command     string `json:"command"`
	Text        string `json:"text"`
	UserID      string `json:"user_id"`
	ChannelID   string `json:"channel_id"`
	ResponseURL string `json:"response_url"`
}

// Name returns the command without its leading slash, lowercased.
func (i Invocation) Name() string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(i.Command), "/"))
}

// Action is one interactive element click (button or multi-select).
// SelectedIDs holds the transcript ids chosen in the message's
// multi-select, whether the action is the select itself or a button
// next to it.
type Action struct {
	ID          string   `json:"id,omitempty"`
	ActionID    string   `json:"action_id"`
	Value       string   `json:"value"`
	UserID      string   `json:"user_id"`
	ChannelID   string   `json:"channel_id"`
	ResponseURL string   `json:"response_url"`
	SelectedIDs []string `json:"selected_ids,omitempty"`
}
