package openai

import "testing"

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("Name() = %q", p.Name())
	}
	if p.temperature != 0.1 || p.maxTokens != 500 {
		t.Errorf("defaults = temp %v, maxTokens %d", p.temperature, p.maxTokens)
	}
}

func TestNew_Options(t *testing.T) {
	p, err := New("sk-test", "gpt-4o-mini", WithTemperature(0.7), WithMaxTokens(1000))
	if err != nil {
		t.Fatal(err)
	}
	if p.temperature != 0.7 || p.maxTokens != 1000 {
		t.Errorf("options not applied: temp %v, maxTokens %d", p.temperature, p.maxTokens)
	}
}
