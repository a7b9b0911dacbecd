// Package config provides the configuration schema, loader, and file watcher
// for the Vaani voice receptionist service.
package config

import "time"

// LogLevel controls log verbosity for the Vaani server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Vaani.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	HIS       HISConfig       `yaml:"his"`
	Providers ProvidersConfig `yaml:"providers"`
	Session   SessionConfig   `yaml:"session"`
	Safety    SafetyConfig    `yaml:"safety"`
	Hospital  HospitalConfig  `yaml:"hospital"`
	Audit     AuditConfig     `yaml:"audit"`
}

// ServerConfig holds network and logging settings for the Vaani server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// CORSOrigins lists allowed CORS origins for the HTTP API.
	// Empty means same-origin only.
	CORSOrigins []string `yaml:"cors_origins"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// HISConfig holds connection settings for the hospital information system
// REST API that Vaani executes actions against.
type HISConfig struct {
	// BaseURL is the root of the HIS REST API (e.g., "https://his.example.org/api").
	BaseURL string `yaml:"base_url"`

	// Username and Password are the service-account credentials used for the
	// login endpoint. Both support ${ENV_VAR} expansion.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Timeout bounds each HIS request. Zero means 10 seconds.
	Timeout time.Duration `yaml:"timeout"`

	// TokenTTL is how long a login token is trusted before a proactive
	// refresh. Zero means 23 hours.
	TokenTTL time.Duration `yaml:"token_ttl"`

	// AllowedEndpoints and DeniedEndpoints override the built-in RBAC
	// pattern lists. Entries are "METHOD /path" with * wildcards.
	// Leave empty to use the defaults.
	AllowedEndpoints []string `yaml:"allowed_endpoints"`
	DeniedEndpoints  []string `yaml:"denied_endpoints"`
}

// ProvidersConfig declares which provider implementation to use for each
// collaborator. Each field selects a named provider built in the app layer.
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider types.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g., "openai", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// Supports ${ENV_VAR} expansion.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini", "nova-2").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// SessionConfig tunes the in-memory caller session store.
type SessionConfig struct {
	// IdleTimeout is how long a session may sit without a turn before the
	// sweeper evicts it. Zero means 5 minutes.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// MaxTurns caps the turns a session may accrue; the turn that reaches
	// the cap deactivates the session and later turns are rejected.
	// Zero means 20.
	MaxTurns int `yaml:"max_turns"`

	// SweepInterval is how often the sweeper scans for expired sessions.
	// Zero means 30 seconds.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// SafetyConfig tunes the confidence guardrails applied before any workflow
// action runs. Zero values fall back to the built-in policy.
type SafetyConfig struct {
	// HighConfidence, MediumConfidence, and LowConfidence are the band
	// boundaries: at or above high the intent is acted on directly, at or
	// above medium it is acted on with confirmation, at or above low the
	// caller is re-prompted, and below low the call is handed to staff.
	HighConfidence   float64 `yaml:"high_confidence"`
	MediumConfidence float64 `yaml:"medium_confidence"`
	LowConfidence    float64 `yaml:"low_confidence"`

	// IntentOverrides sets a per-intent minimum confidence that replaces
	// the global bands for that intent (e.g. CANCEL_APPOINTMENT: 0.85).
	IntentOverrides map[string]float64 `yaml:"intent_overrides"`

	// ExtraEmergencyKeywords and ExtraHandoffKeywords extend the built-in
	// keyword lists that short-circuit classification.
	ExtraEmergencyKeywords []string `yaml:"extra_emergency_keywords"`
	ExtraHandoffKeywords   []string `yaml:"extra_handoff_keywords"`
}

// HospitalConfig carries facility-specific data used in replies and
// department resolution.
type HospitalConfig struct {
	// Name is the facility name spoken in greetings.
	Name string `yaml:"name"`

	// EmergencyNumber is the local ambulance number quoted on escalation.
	// Zero value means "108".
	EmergencyNumber string `yaml:"emergency_number"`

	// DepartmentAliases extends the built-in alias map used to resolve
	// colloquial department names ("heart" -> "Cardiology").
	DepartmentAliases map[string]string `yaml:"department_aliases"`
}

// AuditConfig configures the audit event store and transcript encryption.
type AuditConfig struct {
	// PostgresDSN is the PostgreSQL connection string for the audit store.
	// Empty means audit events are kept in an in-memory ring buffer.
	PostgresDSN string `yaml:"postgres_dsn"`

	// EncryptionKey is the hex-encoded 32-byte AES-256 key used to seal
	// stored transcripts. Supports ${ENV_VAR} expansion. Empty disables
	// transcript storage entirely (events are still recorded).
	EncryptionKey string `yaml:"encryption_key"`

	// RingSize caps the in-memory store when no DSN is set. Zero means 1024.
	RingSize int `yaml:"ring_size"`
}
