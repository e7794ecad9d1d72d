package shared

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./tidex.db" {
			t.Errorf("expected database path ./tidex.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 3000 {
			t.Errorf("expected server port 3000, got %d", config.Server.Port)
		}

		if config.Sync.NameFormat != "%s [TIDAL]" {
			t.Errorf("expected name format %%s [TIDAL], got %s", config.Sync.NameFormat)
		}

		if !config.Sync.Public {
			t.Error("expected destination playlists to be public by default")
		}

		if config.Credentials.Spotify.Configured() {
			t.Error("placeholder spotify credentials should not count as configured")
		}

		if err := config.Validate(); err != nil {
			t.Errorf("default config should validate: %v", err)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		if config.Database.Path != DefaultConfig().Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[database]
path = "/custom/path.db"

[credentials.tidal]
client_id = "tidal_id"
client_secret = "tidal_secret"
redirect_uri = "http://localhost:3000/callback"

[sync]
name_format = "%s (mirror)"
public = false
wait_step_seconds = 5
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}

		if !config.Credentials.Tidal.Configured() {
			t.Error("expected tidal credentials to be configured")
		}

		if config.Sync.Public {
			t.Error("expected public to be overridden to false")
		}

		if got := config.Sync.WaitStep(); got != 5*time.Second {
			t.Errorf("expected wait step 5s, got %v", got)
		}

		if config.Sync.CountryCode != "US" {
			t.Errorf("expected missing keys to keep defaults, got country code %q", config.Sync.CountryCode)
		}

		if got := config.Sync.PlaylistName("Road Trip"); got != "Road Trip (mirror)" {
			t.Errorf("expected rendered name 'Road Trip (mirror)', got %q", got)
		}
	})

	t.Run("LoadConfig Missing File", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
			t.Error("expected error for missing config file")
		}
	})

	t.Run("Validate", func(t *testing.T) {
		config := DefaultConfig()
		config.Sync.TrackBatchSize = 50

		if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}

		config = DefaultConfig()
		config.Database.Path = ""
		if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig for empty database path, got %v", err)
		}

		config = DefaultConfig()
		config.Sync.TrackBatchSize = 0
		if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig for zero track batch size, got %v", err)
		}
	})

	t.Run("Validate Name Format", func(t *testing.T) {
		tests := []struct {
			format  string
			wantErr bool
		}{
			{format: "%s [TIDAL]"},
			{format: "[TIDAL]"},
			{format: "%s (100%% TIDAL)"},
			{format: "100%% mirrored"},
			{format: "%s [%d]", wantErr: true},
			{format: "%s and %s", wantErr: true},
			{format: "50% off %s", wantErr: true},
			{format: "%s %", wantErr: true},
		}

		for _, tt := range tests {
			t.Run(tt.format, func(t *testing.T) {
				config := DefaultConfig()
				config.Sync.NameFormat = tt.format

				err := config.Validate()
				if tt.wantErr && !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
				if !tt.wantErr && err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				if !tt.wantErr && strings.Contains(config.Sync.PlaylistName("Chill"), "%!") {
					t.Errorf("rendered name has a formatting error: %q", config.Sync.PlaylistName("Chill"))
				}
			})
		}

		s := SyncConfig{NameFormat: "%s (100%% TIDAL)"}
		if got := s.PlaylistName("Chill"); got != "Chill (100% TIDAL)" {
			t.Errorf("expected escaped percent, got %q", got)
		}
		s.NameFormat = "100%% mirrored"
		if got := s.PlaylistName("Chill"); got != "Chill 100% mirrored" {
			t.Errorf("expected unescaped suffix, got %q", got)
		}
	})

	t.Run("SyncConfig Defaults", func(t *testing.T) {
		var s SyncConfig

		if s.WaitStep() != 3*time.Second {
			t.Errorf("expected default wait step 3s, got %v", s.WaitStep())
		}
		if s.DefaultRetryAfter() != time.Second {
			t.Errorf("expected default retry-after 1s, got %v", s.DefaultRetryAfter())
		}

		s.NameFormat = "[TIDAL]"
		if got := s.PlaylistName("Chill"); got != "Chill [TIDAL]" {
			t.Errorf("expected suffix to be appended, got %q", got)
		}
	})
}
