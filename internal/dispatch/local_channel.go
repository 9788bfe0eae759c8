package dispatch

import (
	"context"

	"github.com/rs/zerolog"
)

// LocalChannel models a single local fallback receiver (e.g. "ns_emulator_treatments",
// "local_treatments", "custom_fallback"). HasReceiver simulates whether anything is currently
// listening — in the teacher's Android world this was a registered BroadcastReceiver; here it
// is a caller-supplied predicate so tests can exercise both outcomes deterministically.
type LocalChannel struct {
	NameValue   string
	HasReceiver func() bool
	Logger      zerolog.Logger
}

// Name implements Channel.
func (c LocalChannel) Name() string { return c.NameValue }

// Send implements Channel: delivers iff a receiver is currently present.
func (c LocalChannel) Send(_ context.Context, p Payload) (bool, error) {
	if c.HasReceiver == nil || !c.HasReceiver() {
		return false, nil
	}
	c.Logger.Info().
		Str("channel", c.NameValue).
		Str("action", p.Action).
		Msg("local_fallback_delivered")
	return true, nil
}
