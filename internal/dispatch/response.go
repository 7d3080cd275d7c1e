package dispatch

import (
	"github.com/slack-go/slack"
)

// Kind tags how a handler finished.
type Kind int

const (
	// Success is a final answer.
	Success Kind = iota
	// Failure carries an error; Text is filled at the dispatcher boundary
	// when the handler left it empty.
	Failure
	// Pending asks the user to confirm before anything is written.
	Pending
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Pending:
		return "pending"
	default:
		return "unknown"
	}
}

// Response is what a command or action produces for Slack.
type Response struct {
	Kind         Kind
	ResponseType string // slack.ResponseTypeEphemeral or slack.ResponseTypeInChannel
	Text         string
	Blocks       []slack.Block
	// KeepOriginal posts a new message instead of replacing the one the
	// response_url belongs to.
	KeepOriginal bool
	Err          error
}

// Empty reports whether there is nothing to send.
func (r Response) Empty() bool { return r.Text == "" && len(r.Blocks) == 0 }

// Msg converts the response to the response_url wire format.
func (r Response) Msg() slack.Msg {
	msg := slack.Msg{
		ResponseType:    r.ResponseType,
		Text:            r.Text,
		ReplaceOriginal: !r.KeepOriginal,
	}
	if len(r.Blocks) > 0 {
		msg.Blocks = slack.Blocks{BlockSet: r.Blocks}
	}
	return msg
}

// Webhook converts the response for posting to a response_url.
func (r Response) Webhook() *slack.WebhookMessage {
	msg := &slack.WebhookMessage{
		ResponseType:    r.ResponseType,
		Text:            r.Text,
		ReplaceOriginal: !r.KeepOriginal,
	}
	if len(r.Blocks) > 0 {
		msg.Blocks = &slack.Blocks{BlockSet: r.Blocks}
	}
	return msg
}

func ephemeral(text string) Response {
	return Response{Kind: Success, ResponseType: slack.ResponseTypeEphemeral, Text: text}
}

func inChannel(text string) Response {
	return Response{Kind: Success, ResponseType: slack.ResponseTypeInChannel, Text: text}
}

func pending(text string, blocks []slack.Block) Response {
	return Response{Kind: Pending, ResponseType: slack.ResponseTypeEphemeral, Text: text, Blocks: blocks}
}

func failure(err error) Response {
	return Response{Kind: Failure, ResponseType: slack.ResponseTypeEphemeral, Err: err}
}

// failureText is a failure with its own user-facing message.
func failureText(text string, err error) Response {
	r := failure(err)
	r.Text = text
	return r
}

func picker(text string, blocks []slack.Block) Response {
	return Response{Kind: Success, ResponseType: slack.ResponseTypeEphemeral, Text: text, Blocks: blocks}
}
