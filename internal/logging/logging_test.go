package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idilsaglam/livetodo/internal/config"
)

func TestJSONToFallback(t *testing.T) {
	cfg := config.Default()
	cfg.LogFormat = "json"

	var buf bytes.Buffer
	logger, closer, err := New(cfg, &buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("snapshot applied", "items", 2)
	logger.Debug("hidden at info level")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "snapshot applied", rec["msg"])
	assert.EqualValues(t, 2, rec["items"])
}

func TestLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.LogFile = filepath.Join(t.TempDir(), "nested", "todo.log")
	cfg.LogLevel = "debug"

	logger, closer, err := New(cfg, nil)
	require.NoError(t, err)
	logger.Debug("write dispatched", "op", "add")
	require.NoError(t, closer.Close())

	b, err := os.ReadFile(cfg.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(b), "write dispatched")
	assert.Contains(t, string(b), "op=add")
}

func TestBadLevel(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "loud"
	_, _, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestDiscard(t *testing.T) {
	Discard().Error("nothing happens")
}
