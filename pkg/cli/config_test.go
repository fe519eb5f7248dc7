package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserConfig_ActiveProfile(t *testing.T) {
	cfg := &UserConfig{
		CurrentProfile: "default",
		Profiles: map[string]Profile{
			"default": {
				Locator: "grpc://localhost:1881",
				Output:  "table",
			},
			"staging": {
				Locator: "grpc://staging.example.com:1881?schema=sales",
				Output:  "json",
			},
		},
	}

	tests := []struct {
		name        string
		override    string
		wantLocator string
		wantErr     string
	}{
		{
			name:        "uses current profile",
			override:    "",
			wantLocator: "grpc://localhost:1881",
		},
		{
			name:        "override to staging",
			override:    "staging",
			wantLocator: "grpc://staging.example.com:1881?schema=sales",
		},
		{
			name:     "nonexistent profile returns error",
			override: "nonexistent",
			wantErr:  `profile "nonexistent" not found`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := cfg.ActiveProfile(tt.override)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLocator, p.Locator)
		})
	}
}

func TestUserConfig_MissingCurrentProfile(t *testing.T) {
	cfg := &UserConfig{CurrentProfile: "gone", Profiles: map[string]Profile{}}
	p, err := cfg.ActiveProfile("")
	require.NoError(t, err)
	assert.Equal(t, Profile{}, p)
}

func TestLoadSaveUserConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	cfg := &UserConfig{
		CurrentProfile: "test",
		Profiles: map[string]Profile{
			"test": {Locator: "grpc://test:1881", Output: "json"},
		},
	}
	require.NoError(t, SaveUserConfig(cfg))

	_, err := os.Stat(filepath.Join(dir, ".ruddy", "config.yaml"))
	require.NoError(t, err)

	loaded, err := LoadUserConfig()
	require.NoError(t, err)
	assert.Equal(t, "test", loaded.CurrentProfile)
	require.Contains(t, loaded.Profiles, "test")
	assert.Equal(t, "grpc://test:1881", loaded.Profiles["test"].Locator)
	assert.Equal(t, "json", loaded.Profiles["test"].Output)
}

func TestLoadUserConfig_NotFound(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := LoadUserConfig()
	require.Error(t, err)
}
