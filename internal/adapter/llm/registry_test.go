package llm

import (
	"context"
	"errors"
	"testing"

	"tutorgate/internal/domain"
)

type namedProvider struct{ name string }

func (p *namedProvider) Chat(context.Context, domain.ChatCall) (*domain.ProviderResult, error) {
	return &domain.ProviderResult{}, nil
}

func (p *namedProvider) Name() string { return p.name }

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(&namedProvider{name: "openai"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(&namedProvider{name: "anthropic"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	p, err := r.Get("openai")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("name = %q", p.Name())
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("nope")
	if !errors.Is(err, domain.ErrProviderNotFound) {
		t.Errorf("err = %v, want ErrProviderNotFound", err)
	}
}

func TestRegistryDuplicateName(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&namedProvider{name: "openai"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(&namedProvider{name: "openai"}); err == nil {
		t.Error("expected error on duplicate name")
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register(&namedProvider{name: "b"})
	r.Register(&namedProvider{name: "a"})

	names := r.List()
	if len(names) != 2 {
		t.Fatalf("list = %v", names)
	}
	if names[0] != "a" || names[1] != "b" {
		t.Errorf("list not sorted: %v", names)
	}
}
