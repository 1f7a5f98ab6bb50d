package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/elena-cabrera/markdown-os/internal/docservice"
	"github.com/elena-cabrera/markdown-os/internal/storage"
	"github.com/elena-cabrera/markdown-os/internal/watch"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Duration decodes human-readable durations ("200ms", "1.5s") from YAML.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for YAML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Workspace WorkspaceConfig   `yaml:"workspace"`
	Watch     WatchConfig       `yaml:"watch"`
	Search    SearchConfig      `yaml:"search"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Workspace.Validate(); err != nil {
		return err
	}
	if err := c.Watch.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
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
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns the HTTP server bind address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Host, validation.Required),
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// WorkspaceConfig selects what is being edited: a single markdown file
// or a directory of them.
type WorkspaceConfig struct {
	Mode       string   `yaml:"mode"` // "file" or "folder"
	Path       string   `yaml:"path"`
	Extensions []string `yaml:"extensions"` // defaults to .md/.markdown when empty
}

// Validate validates the workspace configuration.
func (c *WorkspaceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required,
			validation.In(string(docservice.ModeFile), string(docservice.ModeFolder))),
		validation.Field(&c.Path, validation.Required),
	)
}

// ExtensionsOrDefault returns the configured markdown extensions,
// falling back to the storage defaults.
func (c *WorkspaceConfig) ExtensionsOrDefault() []string {
	if len(c.Extensions) == 0 {
		return storage.DefaultExtensions
	}
	return c.Extensions
}

// WatchConfig holds the change-watcher filter windows.
type WatchConfig struct {
	Debounce    Duration `yaml:"debounce"`    // minimum interval between notifications
	Suppression Duration `yaml:"suppression"` // echo window after our own writes
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	if c.Debounce < 0 || c.Suppression < 0 {
		return fmt.Errorf("watch: debounce and suppression must not be negative")
	}
	return nil
}

// SearchConfig holds the SQLite search index configuration. An empty
// path selects an in-memory index that lives as long as the process.
type SearchConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
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

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Host: "127.0.0.1",
				Port: 8000,
			},
		},
		Workspace: WorkspaceConfig{
			Mode: string(docservice.ModeFolder),
			Path: ".",
		},
		Watch: WatchConfig{
			Debounce:    Duration(watch.DefaultDebounce),
			Suppression: Duration(watch.DefaultSuppression),
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
