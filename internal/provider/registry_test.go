package provider

import (
	"errors"
	"testing"
)

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry[func() string]("LLM")
	reg.Register("openai", func() string { return "openai" })
	reg.Register("HF", func() string { return "hf" })

	factory, err := reg.Lookup(" OpenAI ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := factory(); got != "openai" {
		t.Fatalf("unexpected factory result: %s", got)
	}
	if names := reg.Names(); len(names) != 2 || names[0] != "hf" || names[1] != "openai" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestRegistryUnknown(t *testing.T) {
	reg := NewRegistry[int]("LLM")
	_, err := reg.Lookup("mystery")
	var unknown *UnknownError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownError, got %v", err)
	}
	if err.Error() != "unknown LLM provider 'mystery'" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}
