package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idilsaglam/livetodo/internal/config"
	"github.com/idilsaglam/livetodo/internal/store/jsonstore"
	"github.com/idilsaglam/livetodo/internal/store/memstore"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func fileArgs(dir string, args ...string) []string {
	return append(args, "--backend", "file", "--data-dir", dir, "--log-level", "error")
}

func onlyID(t *testing.T, dir string) string {
	t.Helper()
	st, err := jsonstore.New(dir)
	require.NoError(t, err)
	defer st.Close()
	docs, err := st.FetchAll(context.Background(), config.DefaultCollection)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	return docs[0].ID
}

func TestAddListDoneRm(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, fileArgs(dir, "add", "Buy", "milk")...)
	require.NoError(t, err)
	id := onlyID(t, dir)

	out, err := run(t, fileArgs(dir, "ls", "--theme", "mono")...)
	require.NoError(t, err)
	assert.Contains(t, out, "[ ] Buy milk  "+id)

	_, err = run(t, fileArgs(dir, "done", id)...)
	require.NoError(t, err)
	out, err = run(t, fileArgs(dir, "ls", "--theme", "mono")...)
	require.NoError(t, err)
	assert.Contains(t, out, "[x] Buy milk")

	// done flips back
	_, err = run(t, fileArgs(dir, "done", id)...)
	require.NoError(t, err)
	out, err = run(t, fileArgs(dir, "ls", "--theme", "mono")...)
	require.NoError(t, err)
	assert.Contains(t, out, "[ ] Buy milk")

	_, err = run(t, fileArgs(dir, "rm", id)...)
	require.NoError(t, err)
	out, err = run(t, fileArgs(dir, "ls", "--theme", "mono")...)
	require.NoError(t, err)
	assert.Contains(t, out, "(empty)")
}

func TestDoneUnknownIDFails(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, fileArgs(dir, "done", "ghost")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")

}

func TestRmUnknownIDIsANoOp(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, fileArgs(dir, "add", "keep")...)
	require.NoError(t, err)
	id := onlyID(t, dir)

	_, err = run(t, fileArgs(dir, "rm", "ghost")...)
	require.NoError(t, err)
	assert.Equal(t, id, onlyID(t, dir))
}

func TestAddRequiresContent(t *testing.T) {
	_, err := run(t, fileArgs(t.TempDir(), "add")...)
	assert.Error(t, err)
}

func TestCollectionFlag(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, fileArgs(dir, "add", "x", "--collection", "groceries")...)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "groceries.json"))
	assert.NoError(t, err)
}

func TestConfigFileSelectsBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "todo.toml")
	data := "backend = \"file\"\ndata_dir = " + strconv.Quote(dir) + "\nlog_level = \"error\"\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	_, err := run(t, "add", "from config", "--config", path)
	require.NoError(t, err)
	assert.NotEmpty(t, onlyID(t, dir))
}

func TestUnknownBackendFails(t *testing.T) {
	_, err := run(t, "ls", "--backend", "redis")
	assert.ErrorIs(t, err, config.ErrUnknownBackend)
}

func TestVersionAndConfig(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "todo version "+Version))

	out, err = run(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "backend = ")
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	cfg := config.Default()
	cfg.Backend = config.BackendMemory
	st, err := openStore(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &memstore.Store{}, st)
	require.NoError(t, st.Close())

	cfg.Backend = config.BackendFile
	cfg.DataDir = t.TempDir()
	st, err = openStore(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &jsonstore.Store{}, st)
	require.NoError(t, st.Close())

	cfg.Backend = "redis"
	_, err = openStore(ctx, cfg)
	assert.ErrorIs(t, err, config.ErrUnknownBackend)
}
