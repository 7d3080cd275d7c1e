// Package connector defines the transports that feed Slack traffic into the
// dispatcher.
package connector

import "context"

// Inbound is a long-running source of commands, interactions and events.
type Inbound interface {
	// Name returns the transport name (e.g., "socket", "http").
	Name() string
	// Start begins receiving. Blocks until ctx is cancelled.
	Start(ctx context.Context) error
	// Stop shuts the transport down and waits for in-flight work.
	Stop() error
}
