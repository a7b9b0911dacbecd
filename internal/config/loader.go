package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq"},
	"stt": {"deepgram"},
	"tts": {"elevenlabs"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// ${VAR} references in the raw YAML are expanded from the environment before
// decoding so secrets can stay out of the file. Useful in tests where configs
// are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.Expand(string(raw), func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		// Leave unknown references intact so validation can point at them.
		return "${" + key + "}"
	})

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// The HIS backend is mandatory: without it no workflow can act.
	if cfg.HIS.BaseURL == "" {
		errs = append(errs, errors.New("his.base_url is required"))
	}
	if cfg.HIS.Username == "" || cfg.HIS.Password == "" {
		errs = append(errs, errors.New("his.username and his.password are required"))
	}
	if strings.Contains(cfg.HIS.Password, "${") {
		errs = append(errs, errors.New("his.password references an environment variable that is not set"))
	}
	if cfg.HIS.Timeout < 0 {
		errs = append(errs, fmt.Errorf("his.timeout %v must not be negative", cfg.HIS.Timeout))
	}
	for i, pat := range cfg.HIS.AllowedEndpoints {
		if err := validateEndpointPattern(pat); err != nil {
			errs = append(errs, fmt.Errorf("his.allowed_endpoints[%d]: %w", i, err))
		}
	}
	for i, pat := range cfg.HIS.DeniedEndpoints {
		if err := validateEndpointPattern(pat); err != nil {
			errs = append(errs, fmt.Errorf("his.denied_endpoints[%d]: %w", i, err))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; intent classification will use keyword rules only")
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("no STT provider configured; the audio endpoint will reject requests")
	}

	// Session
	if cfg.Session.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("session.idle_timeout %v must not be negative", cfg.Session.IdleTimeout))
	}
	if cfg.Session.MaxTurns < 0 {
		errs = append(errs, fmt.Errorf("session.max_turns %d must not be negative", cfg.Session.MaxTurns))
	}

	// Safety bands must stay ordered when set.
	s := cfg.Safety
	if s.HighConfidence != 0 || s.MediumConfidence != 0 || s.LowConfidence != 0 {
		if s.HighConfidence < s.MediumConfidence || s.MediumConfidence < s.LowConfidence {
			errs = append(errs, fmt.Errorf("safety thresholds must satisfy high >= medium >= low (got %.2f/%.2f/%.2f)",
				s.HighConfidence, s.MediumConfidence, s.LowConfidence))
		}
	}
	for intent, min := range s.IntentOverrides {
		if min < 0 || min > 1 {
			errs = append(errs, fmt.Errorf("safety.intent_overrides[%s] %.2f is out of range [0, 1]", intent, min))
		}
	}

	// Audit
	if cfg.Audit.EncryptionKey != "" && !strings.Contains(cfg.Audit.EncryptionKey, "${") {
		if len(cfg.Audit.EncryptionKey) != 64 {
			errs = append(errs, fmt.Errorf("audit.encryption_key must be 64 hex characters (32 bytes), got %d", len(cfg.Audit.EncryptionKey)))
		}
	}
	if cfg.Audit.PostgresDSN == "" {
		slog.Warn("audit.postgres_dsn is empty; audit events are held in memory only")
	}

	return errors.Join(errs...)
}

// validateEndpointPattern checks the "METHOD /path" shape of an RBAC pattern.
func validateEndpointPattern(pat string) error {
	method, path, ok := strings.Cut(pat, " ")
	if !ok || method == "" || !strings.HasPrefix(path, "/") {
		return fmt.Errorf("pattern %q must look like \"GET /patients/*\"", pat)
	}
	switch method {
	case "GET", "POST", "PUT", "PATCH", "DELETE", "*":
		return nil
	}
	return fmt.Errorf("pattern %q has unknown method %q", pat, method)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
