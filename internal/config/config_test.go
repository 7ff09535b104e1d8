package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "todo.toml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultBackend, cfg.Backend)
	assert.Equal(t, "todo-list", cfg.Collection)
	assert.Equal(t, DefaultListen, cfg.Listen)
	assert.NoError(t, cfg.Validate())
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("", Overrides{})
	require.NoError(t, err)
	assert.Empty(t, cfg.Source)
	assert.Equal(t, DefaultCollection, cfg.Collection)
}

func TestLoadFile(t *testing.T) {
	p := writeConfig(t, `
backend = "nats"
collection = "groceries"
nats_url = "nats://example:4222"
log_format = "json"
`)
	cfg, err := Load(p, Overrides{})
	require.NoError(t, err)
	assert.Equal(t, p, cfg.Source)
	assert.Equal(t, BackendNATS, cfg.Backend)
	assert.Equal(t, "groceries", cfg.Collection)
	assert.Equal(t, "nats://example:4222", cfg.NATSURL)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, DefaultDataDir, cfg.DataDir)
}

func TestPrecedence(t *testing.T) {
	p := writeConfig(t, `collection = "from-file"
backend = "memory"`)
	t.Setenv("TODO_COLLECTION", "from-env")
	t.Setenv("TODO_LOG_LEVEL", "debug")

	flagColl := "from-flag"
	cfg, err := Load(p, Overrides{Collection: &flagColl})
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.Collection)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, BackendMemory, cfg.Backend)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		is   error
	}{
		{"unknown backend", `backend = "firestore"`, ErrUnknownBackend},
		{"empty collection", `collection = " "`, ErrInvalidValue},
		{"bad level", `log_level = "loud"`, ErrInvalidValue},
		{"bad format", `log_format = "xml"`, ErrInvalidValue},
		{"bad theme", `theme = "pink"`, ErrInvalidValue},
		{"unknown key", `colour = "red"`, ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body), Overrides{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.is)
		})
	}
}

func TestMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"), Overrides{})
	assert.Error(t, err)
}

func TestBackendIsNormalized(t *testing.T) {
	b := " NATS "
	cfg, err := Load("", Overrides{Backend: &b})
	require.NoError(t, err)
	assert.Equal(t, BackendNATS, cfg.Backend)
}

func TestExampleParses(t *testing.T) {
	cfg, err := Load(writeConfig(t, Example()), Overrides{})
	require.NoError(t, err)
	assert.Equal(t, Default().Collection, cfg.Collection)
	assert.Equal(t, Default().NATSURL, cfg.NATSURL)
}
