package config

import "testing"

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.WhatsApp.CountryCode != "62" {
		t.Errorf("country code = %q, want 62", cfg.WhatsApp.CountryCode)
	}
	if cfg.Broadcast.DelayMs != 500 {
		t.Errorf("broadcast delay = %d, want 500", cfg.Broadcast.DelayMs)
	}
	if cfg.AI.Provider != "openai" {
		t.Errorf("provider = %q, want openai", cfg.AI.Provider)
	}
	if cfg.WhatsApp.SyncSchedule == "" {
		t.Error("sync schedule should have a default")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("AI_PROVIDER", "ollama")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("API_KEY", "hunter2")

	cfg := Default()
	cfg.applyEnv()

	if cfg.AI.Provider != "ollama" {
		t.Errorf("provider = %q, want ollama", cfg.AI.Provider)
	}
	if cfg.AI.OpenAIAPIKey != "sk-test" {
		t.Errorf("api key not applied")
	}
	if cfg.API.APIKey != "hunter2" {
		t.Errorf("api key override not applied")
	}
}
