package engine

import (
	"context"
	"errors"
	"testing"
)

type fakeEngine struct {
	id string
}

func (f *fakeEngine) Metadata() Metadata {
	return Metadata{ID: f.id, Kind: KindCLI}
}
func (f *fakeEngine) CheckAvailability(ctx context.Context) error { return nil }
func (f *fakeEngine) Plan(ctx context.Context, req Request) (Result, error) {
	return Result{Success: true}, nil
}
func (f *fakeEngine) Execute(ctx context.Context, req Request) (Result, error) {
	return Result{Success: true}, nil
}
func (f *fakeEngine) QA(ctx context.Context, req Request) (Result, error) {
	return Result{Success: true}, nil
}

func TestRegistryFirstRegisteredBecomesDefault(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeEngine{id: "claude-cli"}, false)
	r.Register(&fakeEngine{id: "codex-api"}, false)

	def, err := r.Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if def.Metadata().ID != "claude-cli" {
		t.Fatalf("expected first-registered to be default, got %q", def.Metadata().ID)
	}
}

func TestRegistryExplicitDefaultWins(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeEngine{id: "claude-cli"}, false)
	r.Register(&fakeEngine{id: "codex-api"}, true)

	def, err := r.Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if def.Metadata().ID != "codex-api" {
		t.Fatalf("expected explicit default, got %q", def.Metadata().ID)
	}
}

func TestRegistryGetUnknownEngine(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("nope")
	if !errors.Is(err, ErrUnknownEngine) {
		t.Fatalf("expected ErrUnknownEngine, got %v", err)
	}
}

func TestRegistryDefaultWithNoEnginesFails(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Default(); !errors.Is(err, ErrUnknownEngine) {
		t.Fatalf("expected ErrUnknownEngine, got %v", err)
	}
}

func TestRegistryListMetadataSortedByID(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeEngine{id: "zzz"}, false)
	r.Register(&fakeEngine{id: "aaa"}, false)

	meta := r.ListMetadata()
	if len(meta) != 2 || meta[0].ID != "aaa" || meta[1].ID != "zzz" {
		t.Fatalf("expected sorted metadata, got %+v", meta)
	}
}
