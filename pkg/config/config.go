package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultConfigPath is read when ASKDB_CONFIG is not set.
const DefaultConfigPath = "config.yaml"

// Config holds all configuration for ekaya-askdb.
// Configuration can come from a YAML file or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (database password, model API key) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	// TrustedProxies are CIDRs whose X-Forwarded-For header is believed
	// when recording the client IP in audit logs.
	TrustedProxies []string `yaml:"trusted_proxies" env:"TRUSTED_PROXIES" env-separator:","`

	// RequestTimeout bounds one chat request end to end.
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT" env-default:"90s"`

	// Database is the PostgreSQL datasource questions are answered from.
	Database DatabaseConfig `yaml:"database"`

	// LLM selects the model provider that writes the SQL.
	LLM LLMConfig `yaml:"llm"`

	// Schema controls introspection caching and table shortlisting.
	Schema SchemaConfig `yaml:"schema"`

	// Guard tunes the SQL safety guard.
	Guard GuardConfig `yaml:"guard"`

	// MCP exposes the pipeline as MCP tools at /mcp.
	MCP MCPConfig `yaml:"mcp"`
}

// DatabaseConfig holds PostgreSQL datasource configuration.
type DatabaseConfig struct {
	Host     string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User     string `yaml:"user" env:"PGUSER" env-default:"askdb_readonly"`
	Password string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"PGDATABASE" env-default:"postgres"`
	SSLMode  string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`

	// URL overrides the fields above when set. It may embed credentials,
	// so it is environment-only.
	URL string `yaml:"-" env:"DATABASE_URL"`

	// Schema is the PostgreSQL schema that is introspected and queried.
	Schema string `yaml:"schema" env:"PGSCHEMA" env-default:"public"`

	MaxConnections   int32         `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	StatementTimeout time.Duration `yaml:"statement_timeout" env:"PG_STATEMENT_TIMEOUT" env-default:"15s"`
	MaxRows          int           `yaml:"max_rows" env:"PG_MAX_ROWS" env-default:"1000"`
}

// LLMConfig holds the model gateway settings.
type LLMConfig struct {
	// Provider is "openai" for any OpenAI-compatible API (Groq, OpenAI, vLLM) or "anthropic".
	Provider    string        `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	BaseURL     string        `yaml:"base_url" env:"LLM_BASE_URL" env-default:"https://api.groq.com/openai/v1"`
	Model       string        `yaml:"model" env:"LLM_MODEL" env-default:"llama-3.1-8b-instant"`
	APIKey      string        `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	Temperature float64       `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0"`
	MaxTokens   int           `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"1400"`
	Timeout     time.Duration `yaml:"timeout" env:"LLM_TIMEOUT" env-default:"60s"`
	JSONMode    bool          `yaml:"json_mode" env:"LLM_JSON_MODE"`

	// Circuit breaker around the gateway.
	BreakerThreshold  int           `yaml:"breaker_threshold" env:"LLM_BREAKER_THRESHOLD" env-default:"5"`
	BreakerResetAfter time.Duration `yaml:"breaker_reset_after" env:"LLM_BREAKER_RESET_AFTER" env-default:"30s"`
}

// SchemaConfig holds schema cache and shortlist settings.
type SchemaConfig struct {
	CacheTTL      time.Duration `yaml:"cache_ttl" env:"SCHEMA_CACHE_TTL" env-default:"10m"`
	MaxTables     int           `yaml:"max_tables" env:"SCHEMA_MAX_TABLES" env-default:"8"`
	MatchSingular bool          `yaml:"match_singular" env:"SCHEMA_MATCH_SINGULAR"`
}

// GuardConfig holds SQL guard settings.
type GuardConfig struct {
	DefaultLimit       int  `yaml:"default_limit" env:"GUARD_DEFAULT_LIMIT" env-default:"200"`
	MaxLimit           int  `yaml:"max_limit" env:"GUARD_MAX_LIMIT" env-default:"500"`
	DisallowSelectStar bool `yaml:"disallow_select_star" env:"GUARD_DISALLOW_SELECT_STAR"`
	BlockPIIColumns    bool `yaml:"block_pii_columns" env:"GUARD_BLOCK_PII_COLUMNS"`

	// ExtraBlockedKeywords are added to the built-in blocklist.
	// "into" is blocked by default because SELECT ... INTO creates a table.
	ExtraBlockedKeywords []string `yaml:"extra_blocked_keywords" env:"GUARD_EXTRA_BLOCKED_KEYWORDS" env-separator:","`

	CheckLiteralInjection bool `yaml:"check_literal_injection" env:"GUARD_CHECK_LITERAL_INJECTION" env-default:"false"`
}

// MCPConfig holds MCP server settings.
type MCPConfig struct {
	Enabled bool `yaml:"enabled" env:"MCP_ENABLED"`
}

// Load reads configuration from the YAML file named by ASKDB_CONFIG
// (default config.yaml) with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// When ASKDB_CONFIG is unset and config.yaml does not exist, configuration
// comes from the environment alone.
func Load(version string) (*Config, error) {
	cfg := defaults()
	cfg.Version = version

	path, explicit := os.LookupEnv("ASKDB_CONFIG")
	if !explicit || path == "" {
		path = DefaultConfigPath
		explicit = false
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && !explicit {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read config from environment: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// defaults presets the fields whose default is not the zero value. An
// env-default tag would overwrite an explicit false or empty list from YAML.
func defaults() *Config {
	return &Config{
		LLM:    LLMConfig{JSONMode: true},
		Guard: GuardConfig{
			DisallowSelectStar:   true,
			BlockPIIColumns:      true,
			ExtraBlockedKeywords: []string{"into"},
		},
		MCP: MCPConfig{Enabled: true},
	}
}

func (c *Config) normalize() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))

	proxies := c.TrustedProxies[:0]
	for _, cidr := range c.TrustedProxies {
		if cidr = strings.TrimSpace(cidr); cidr != "" {
			proxies = append(proxies, cidr)
		}
	}
	c.TrustedProxies = proxies

	keywords := c.Guard.ExtraBlockedKeywords[:0]
	for _, kw := range c.Guard.ExtraBlockedKeywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	c.Guard.ExtraBlockedKeywords = keywords
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c *Config) Validate() error {
	if err := c.validateTLS(); err != nil {
		return fmt.Errorf("invalid TLS configuration: %w", err)
	}

	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("llm.provider must be openai or anthropic, got %q", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.LLM.MaxTokens < 1 {
		return fmt.Errorf("llm.max_tokens must be positive")
	}

	if c.Guard.DefaultLimit < 1 || c.Guard.MaxLimit < 1 {
		return fmt.Errorf("guard limits must be positive (default_limit=%d, max_limit=%d)", c.Guard.DefaultLimit, c.Guard.MaxLimit)
	}
	if c.Guard.DefaultLimit > c.Guard.MaxLimit {
		return fmt.Errorf("guard.default_limit (%d) must not exceed guard.max_limit (%d)", c.Guard.DefaultLimit, c.Guard.MaxLimit)
	}

	if c.Schema.MaxTables < 1 {
		return fmt.Errorf("schema.max_tables must be positive")
	}
	if c.Schema.CacheTTL <= 0 {
		return fmt.Errorf("schema.cache_ttl must be positive")
	}

	if c.Database.MaxRows < 1 {
		return fmt.Errorf("database.max_rows must be positive")
	}
	if c.Database.StatementTimeout < 0 {
		return fmt.Errorf("database.statement_timeout must not be negative")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("trusted_proxies entry %q is not a CIDR: %w", cidr, err)
		}
	}

	if c.Database.Schema == "" {
		return fmt.Errorf("database.schema is required")
	}

	return nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

// ConnectionURL returns a PostgreSQL URL. DATABASE_URL wins when set;
// otherwise the URL is built from the individual fields with every
// user-provided part escaped.
func (c *DatabaseConfig) ConnectionURL() string {
	if c.URL != "" {
		return c.URL
	}

	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", ResolveHostForDocker(c.Host), c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	return u.String()
}
