package genai

import (
	"testing"

	"github.com/openai/openai-go"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := NewClient(); err == nil {
		t.Error("expected error when no API key is available")
	}
}

func TestNewClientWithOptions(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	client, err := NewClient(WithAPIKey("test-key"), WithModel(openai.ChatModelGPT4o))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.model != openai.ChatModelGPT4o {
		t.Errorf("model = %q, expected override", client.model)
	}
}

func TestNewClientFallsBackToEnvKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")

	if _, err := NewClient(); err != nil {
		t.Fatalf("NewClient failed with env key: %v", err)
	}
}

func TestAllowedCategories(t *testing.T) {
	for _, c := range []string{"hardware", "software", "rede", "acesso", "email", "impressora", "outros"} {
		if !allowedCategories[c] {
			t.Errorf("category %q should be allowed", c)
		}
	}
	if allowedCategories["financeiro"] {
		t.Error("unknown category should not be allowed")
	}
}
