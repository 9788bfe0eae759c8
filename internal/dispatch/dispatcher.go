package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/mrcode/glucocopilot/internal/models"
)

// ActionStore is the persistence surface the dispatcher needs: idempotency lookup plus
// command lifecycle writes. Satisfied by store.Repository.
type ActionStore interface {
	FindActionByIdempotencyKey(ctx context.Context, key string) (models.ActionCommand, bool, error)
	SaveAction(ctx context.Context, cmd models.ActionCommand) error
}

// Dispatcher is the action dispatcher (C12): idempotency index, primary channel guarded by a
// circuit breaker, ordered local fallback chain.
type Dispatcher struct {
	Store          ActionStore
	Primary        PrimaryChannel
	Breaker        *gobreaker.CircuitBreaker
	FallbackChain  []Channel
	FallbackEnabled bool
	PrimaryLimiter *rate.Limiter
}

// NewDispatcher builds a dispatcher with a breaker tuned to trip after 5 consecutive failures
// within a 2-minute rolling window, consistent with the pack's cryptorun-style breaker config,
// and a token-bucket limiter on the primary channel so a burst of triggered rules never floods
// the Nightscout server with near-simultaneous POSTs.
func NewDispatcher(store ActionStore, primary PrimaryChannel, fallback []Channel, fallbackEnabled bool) *Dispatcher {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "nightscout-primary",
		MaxRequests: 1,
		Interval:    2 * time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Dispatcher{
		Store:           store,
		Primary:         primary,
		Breaker:         breaker,
		FallbackChain:   fallback,
		FallbackEnabled: fallbackEnabled,
		PrimaryLimiter:  rate.NewLimiter(rate.Every(2*time.Second), 3),
	}
}

// SubmitResult reports enough about a Submit call for the caller to audit it: whether it was
// an idempotent replay, which channel (if any) delivered it, and why delivery failed.
type SubmitResult struct {
	Delivered     bool
	Deduped       bool
	Channel       string
	FailureReason string
}

// Submit delivers cmd, honoring idempotency: a prior command with the same IdempotencyKey
// short-circuits to its recorded outcome without any new side effect (property #7).
func (d *Dispatcher) Submit(ctx context.Context, cmd models.ActionCommand) (SubmitResult, error) {
	if existing, found, err := d.Store.FindActionByIdempotencyKey(ctx, cmd.IdempotencyKey); err != nil {
		return SubmitResult{}, fmt.Errorf("idempotency lookup: %w", err)
	} else if found {
		return SubmitResult{Deduped: true, Delivered: existing.Status == models.ActionSent, Channel: existing.Channel}, nil
	}

	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	cmd.Status = models.ActionPending
	if err := d.Store.SaveAction(ctx, cmd); err != nil {
		return SubmitResult{}, fmt.Errorf("persist pending action: %w", err)
	}

	delivered, channel, failureCodes := d.attemptDelivery(ctx, cmd)

	result := SubmitResult{Delivered: delivered, Channel: channel}
	if delivered {
		cmd.Status = models.ActionSent
		cmd.Channel = channel
	} else {
		cmd.Status = models.ActionFailed
		cmd.FailureReason = strings.Join(failureCodes, ";")
		result.FailureReason = cmd.FailureReason
	}
	if err := d.Store.SaveAction(ctx, cmd); err != nil {
		return result, fmt.Errorf("persist final action: %w", err)
	}
	return result, nil
}

func (d *Dispatcher) attemptDelivery(ctx context.Context, cmd models.ActionCommand) (bool, string, []string) {
	var failureCodes []string

	if d.Primary != nil {
		limiterErr := error(nil)
		if d.PrimaryLimiter != nil {
			limiterErr = d.PrimaryLimiter.Wait(ctx)
		}
		if limiterErr != nil {
			failureCodes = append(failureCodes, "primary:rate_limit_wait:"+limiterErr.Error())
		} else if _, err := d.Breaker.Execute(func() (interface{}, error) {
			return nil, d.primaryPost(ctx, cmd)
		}); err == nil {
			return true, "nightscout_primary", nil
		} else {
			failureCodes = append(failureCodes, "primary:"+err.Error())
		}
	}

	if !d.FallbackEnabled {
		return false, "", failureCodes
	}

	payload := Payload{
		Action:  string(cmd.Type),
		Package: "local_treatments",
		Extras:  cmd.Params,
	}
	seen := map[string]bool{}
	for _, ch := range d.FallbackChain {
		dedupKey := string(cmd.Type) + ":" + ch.Name()
		if seen[dedupKey] {
			continue
		}
		seen[dedupKey] = true

		delivered, err := ch.Send(ctx, payload)
		if err != nil {
			failureCodes = append(failureCodes, ch.Name()+":"+err.Error())
			continue
		}
		if delivered {
			return true, ch.Name(), nil
		}
		failureCodes = append(failureCodes, ch.Name()+":no_receiver")
	}
	return false, "", failureCodes
}

func (d *Dispatcher) primaryPost(ctx context.Context, cmd models.ActionCommand) error {
	switch cmd.Type {
	case models.ActionTempTarget:
		return d.Primary.PostTempTarget(ctx, cmd)
	case models.ActionCarbs:
		return d.Primary.PostCarbs(ctx, cmd)
	default:
		return fmt.Errorf("unsupported action type: %s", cmd.Type)
	}
}
