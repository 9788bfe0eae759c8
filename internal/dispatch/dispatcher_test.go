package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/mrcode/glucocopilot/internal/models"
)

type memStore struct {
	byKey map[string]models.ActionCommand
}

func newMemStore() *memStore {
	return &memStore{byKey: make(map[string]models.ActionCommand)}
}

func (s *memStore) FindActionByIdempotencyKey(_ context.Context, key string) (models.ActionCommand, bool, error) {
	cmd, ok := s.byKey[key]
	return cmd, ok, nil
}

func (s *memStore) SaveAction(_ context.Context, cmd models.ActionCommand) error {
	s.byKey[cmd.IdempotencyKey] = cmd
	return nil
}

type fakePrimary struct {
	err error
}

func (f *fakePrimary) PostTempTarget(_ context.Context, _ models.ActionCommand) error { return f.err }
func (f *fakePrimary) PostCarbs(_ context.Context, _ models.ActionCommand) error      { return f.err }

type fakeChannel struct {
	name      string
	delivered bool
	err       error
}

func (c fakeChannel) Name() string { return c.name }
func (c fakeChannel) Send(_ context.Context, _ Payload) (bool, error) {
	return c.delivered, c.err
}

func tempTargetCmd(key string) models.ActionCommand {
	return models.ActionCommand{
		IdempotencyKey: key,
		Type:           models.ActionTempTarget,
		Params:         map[string]string{"targetMmol": "6.00", "durationMinutes": "30"},
	}
}

func TestDispatcher_Submit_PrimarySucceeds(t *testing.T) {
	d := NewDispatcher(newMemStore(), &fakePrimary{}, nil, false)
	result, err := d.Submit(context.Background(), tempTargetCmd("k1"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !result.Delivered {
		t.Error("expected delivery via primary channel")
	}
	if result.Channel != "nightscout_primary" {
		t.Errorf("channel = %q, want nightscout_primary", result.Channel)
	}
	if result.Deduped {
		t.Error("first submission should not be reported as deduped")
	}
}

func TestDispatcher_Submit_IdempotentReplay(t *testing.T) {
	store := newMemStore()
	d := NewDispatcher(store, &fakePrimary{}, nil, false)
	cmd := tempTargetCmd("dup-key")

	first, err := d.Submit(context.Background(), cmd)
	if err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}

	d.Primary = &fakePrimary{err: errors.New("should never be called again")}
	second, err := d.Submit(context.Background(), cmd)
	if err != nil {
		t.Fatalf("second Submit() error = %v", err)
	}
	if !second.Deduped {
		t.Error("expected second submission to be reported as an idempotent replay")
	}
	if first.Delivered != second.Delivered {
		t.Errorf("replay outcome = %v, want %v (idempotent)", second.Delivered, first.Delivered)
	}
}

func TestDispatcher_Submit_FallsBackWhenPrimaryFails(t *testing.T) {
	primary := &fakePrimary{err: errors.New("connection refused")}
	fallback := []Channel{
		fakeChannel{name: "ns_emulator_treatments", delivered: false},
		fakeChannel{name: "local_treatments", delivered: true},
	}
	d := NewDispatcher(newMemStore(), primary, fallback, true)

	result, err := d.Submit(context.Background(), tempTargetCmd("k2"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !result.Delivered {
		t.Error("expected fallback delivery to succeed")
	}
	if result.Channel != "local_treatments" {
		t.Errorf("channel = %q, want local_treatments", result.Channel)
	}
}

func TestDispatcher_Submit_AllChannelsFail(t *testing.T) {
	primary := &fakePrimary{err: errors.New("timeout")}
	fallback := []Channel{fakeChannel{name: "local_treatments", delivered: false}}
	d := NewDispatcher(newMemStore(), primary, fallback, true)

	result, err := d.Submit(context.Background(), tempTargetCmd("k3"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if result.Delivered {
		t.Error("expected delivery to fail when every channel fails")
	}
	if result.FailureReason == "" {
		t.Error("expected a non-empty failure reason")
	}
}

func TestDispatcher_Submit_FallbackDisabledSkipsChain(t *testing.T) {
	primary := &fakePrimary{err: errors.New("timeout")}
	fallback := []Channel{fakeChannel{name: "local_treatments", delivered: true}}
	d := NewDispatcher(newMemStore(), primary, fallback, false)

	result, err := d.Submit(context.Background(), tempTargetCmd("k4"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if result.Delivered {
		t.Error("expected no delivery: fallback disabled")
	}
}
