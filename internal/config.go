package internal

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/herald/internal/publisher"
	"github.com/starford/herald/internal/substack"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Vault    VaultConfig       `yaml:"vault"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Auth     AuthConfig        `yaml:"auth"`
	Substack SubstackConfig    `yaml:"substack"`
	Images   ImagesConfig      `yaml:"images"`
	Autosync AutosyncConfig    `yaml:"autosync"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Substack.Validate(); err != nil {
		return fmt.Errorf("substack: %w", err)
	}
	if err := c.Images.Validate(); err != nil {
		return fmt.Errorf("images: %w", err)
	}
	if err := c.Autosync.Validate(); err != nil {
		return fmt.Errorf("autosync: %w", err)
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the path to the Markdown vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds the path of the publish ledger database.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// SubstackConfig holds the remote platform session and publish defaults.
//
// Cookie may be a bare substack.sid value or a full Cookie header. BaseURL
// must contain the {publication} placeholder.
type SubstackConfig struct {
	Cookie          string        `yaml:"cookie"`
	BaseURL         string        `yaml:"base_url"`
	Publication     string        `yaml:"publication"`
	Audience        string        `yaml:"audience"`
	Tags            []string      `yaml:"tags"`
	Section         string        `yaml:"section"`
	Timeout         time.Duration `yaml:"timeout"`
	SectionCacheTTL time.Duration `yaml:"section_cache_ttl"`
}

// Validate validates the substack configuration.
func (c *SubstackConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, validation.By(hasPublicationPlaceholder)),
		validation.Field(&c.Publication, validation.Match(publisher.PublicationPattern)),
		validation.Field(&c.Audience, validation.In(audienceValues()...)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.SectionCacheTTL, validation.Min(time.Duration(0))),
	)
}

// Defaults returns the publish defaults carried by the configuration.
func (c *SubstackConfig) Defaults() publisher.Defaults {
	return publisher.Defaults{
		Publication: c.Publication,
		Audience:    c.Audience,
		Tags:        c.Tags,
		Section:     c.Section,
	}
}

// ClientOptions returns the client options for this configuration.
func (c *SubstackConfig) ClientOptions(logger *slog.Logger) []substack.Option {
	return []substack.Option{
		substack.WithBaseURL(c.BaseURL),
		substack.WithTimeout(c.Timeout),
		substack.WithSectionCache(16, c.SectionCacheTTL),
		substack.WithLogger(logger),
	}
}

func hasPublicationPlaceholder(value interface{}) error {
	s, _ := value.(string)
	if s != "" && !strings.Contains(s, substack.PublicationPlaceholder) {
		return fmt.Errorf("must contain %s", substack.PublicationPlaceholder)
	}
	return nil
}

func audienceValues() []interface{} {
	out := make([]interface{}, len(substack.Audiences))
	for i, a := range substack.Audiences {
		out[i] = a
	}
	return out
}

// ImagesConfig holds image upload limits.
type ImagesConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

// Validate validates the images configuration.
func (c *ImagesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxBytes, validation.Required, validation.Min(int64(1))),
	)
}

// AutosyncConfig controls the watcher that re-saves changed notes.
type AutosyncConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the autosync configuration.
func (c *AutosyncConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(100*time.Millisecond)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path: "./vault",
		},
		SQLite: SQLiteConfig{
			Path: "./herald.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Substack: SubstackConfig{
			BaseURL:         substack.DefaultBaseURL,
			Audience:        substack.AudienceEveryone,
			Timeout:         30 * time.Second,
			SectionCacheTTL: 5 * time.Minute,
		},
		Images: ImagesConfig{
			MaxBytes: publisher.DefaultMaxImageBytes,
		},
		Autosync: AutosyncConfig{
			Enabled:  false,
			Debounce: 2 * time.Second,
		},
	}
}
