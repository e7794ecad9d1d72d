package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Sync        SyncConfig        `toml:"sync"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Tidal   OAuthConfig `toml:"tidal"`
	Spotify OAuthConfig `toml:"spotify"`
}

// OAuthConfig contains OAuth2 client credentials for one service.
type OAuthConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// Configured reports whether client credentials have been filled in.
func (c OAuthConfig) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && !strings.HasPrefix(c.ClientID, "your_")
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains the OAuth callback server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// SyncConfig controls how playlists are mirrored.
type SyncConfig struct {
	CountryCode              string  `toml:"country_code"`
	NameFormat               string  `toml:"name_format"`
	Description              string  `toml:"description"`
	Public                   bool    `toml:"public"`
	TrackBatchSize           int     `toml:"track_batch_size"`
	WaitStepSeconds          int     `toml:"wait_step_seconds"`
	DefaultRetryAfterSeconds int     `toml:"default_retry_after_seconds"`
	RequestsPerSecond        float64 `toml:"requests_per_second"`
	VerifyAfterSync          bool    `toml:"verify_after_sync"`
}

// WaitStep is the suspension increment used while the source rate budget is exhausted.
func (s SyncConfig) WaitStep() time.Duration {
	if s.WaitStepSeconds <= 0 {
		return 3 * time.Second
	}
	return time.Duration(s.WaitStepSeconds) * time.Second
}

// DefaultRetryAfter is the wait applied to a 429 response without a Retry-After header.
func (s SyncConfig) DefaultRetryAfter() time.Duration {
	if s.DefaultRetryAfterSeconds <= 0 {
		return time.Second
	}
	return time.Duration(s.DefaultRetryAfterSeconds) * time.Second
}

// PlaylistName renders the destination playlist name for a source playlist.
//
// A format without %s is appended to the source name as a suffix.
func (s SyncConfig) PlaylistName(source string) string {
	if !strings.Contains(strings.ReplaceAll(s.NameFormat, "%%", ""), "%s") {
		return strings.TrimSpace(source + " " + strings.ReplaceAll(s.NameFormat, "%%", "%"))
	}
	return fmt.Sprintf(s.NameFormat, source)
}

// checkNameFormat accepts at most one %s verb; %% is the only other escape allowed.
func checkNameFormat(format string) error {
	verbs := 0
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			continue
		}
		if i+1 == len(format) {
			return fmt.Errorf("trailing %% in %q", format)
		}
		i++
		switch format[i] {
		case '%':
		case 's':
			verbs++
		default:
			return fmt.Errorf("unsupported verb %%%c in %q (use %%s for the playlist name, %%%% for a literal %%)", format[i], format)
		}
	}
	if verbs > 1 {
		return fmt.Errorf("%q has %d %%s verbs, expected at most one", format, verbs)
	}
	return nil
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Validate checks the settings the sync engine cannot run without.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	}
	if c.Sync.CountryCode == "" {
		return fmt.Errorf("%w: sync.country_code is required", ErrInvalidConfig)
	}
	if c.Sync.TrackBatchSize < 1 || c.Sync.TrackBatchSize > 20 {
		return fmt.Errorf("%w: sync.track_batch_size must be between 1 and 20", ErrInvalidConfig)
	}
	if err := checkNameFormat(c.Sync.NameFormat); err != nil {
		return fmt.Errorf("%w: sync.name_format: %w", ErrInvalidConfig, err)
	}
	if c.Sync.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: sync.requests_per_second cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
