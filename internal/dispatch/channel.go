// Package dispatch delivers ActionCommands through a primary transport guarded by a circuit
// breaker, falling back to an ordered chain of local channels, with idempotent replay.
package dispatch

import (
	"context"

	"github.com/mrcode/glucocopilot/internal/models"
)

// Payload is what a Channel actually transmits — the dispatcher has already resolved an
// ActionCommand into its wire-shape parameters by the time a Channel sees it.
type Payload struct {
	Action  string
	Package string
	Extras  map[string]string
}

// Channel is a local delivery path modeled after an Android broadcast receiver without any
// Android dependency (SPEC_FULL.md §9): Send returns (delivered, error); delivered is false
// with a nil error when there was simply no receiver listening.
type Channel interface {
	Name() string
	Send(ctx context.Context, p Payload) (bool, error)
}

// PrimaryChannel is the remote (Nightscout) transport the breaker guards.
type PrimaryChannel interface {
	PostTempTarget(ctx context.Context, cmd models.ActionCommand) error
	PostCarbs(ctx context.Context, cmd models.ActionCommand) error
}
