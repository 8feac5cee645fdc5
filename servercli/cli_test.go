package servercli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/hdt3213/tabledis/config"
	"github.com/hdt3213/tabledis/store"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rootCmd := NewRootCmd()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestLoadProperties(t *testing.T) {
	dir := t.TempDir()
	confFile := filepath.Join(dir, "redis.conf")
	require.NoError(t, os.WriteFile(confFile, []byte("engine pebble\nport 6500\nmaxclients 10\n"), 0o644))
	t.Setenv("TABLEDIS_PORT", "7000")

	out, err := execute(t, "install", "--config", confFile, "--dir", dir, "--maxclients", "20")
	require.NoError(t, err, out)
	require.Equal(t, config.EnginePebble, config.Properties.Engine)
	require.Equal(t, 7000, config.Properties.Port, "environment overrides file")
	require.Equal(t, 20, config.Properties.MaxClients, "flag overrides file")
	require.Equal(t, dir, config.Properties.Dir)
	require.Contains(t, out, "tables installed")
	require.DirExists(t, config.Properties.DataPath())
}

func TestIllegalProperties(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "install", "--dir", dir, "--port", "abc")
	require.Error(t, err)
	_, err = execute(t, "install", "--dir", dir, "--engine", "innodb")
	require.Error(t, err)
	_, err = execute(t, "install", "--config", filepath.Join(dir, "missing.conf"))
	require.Error(t, err)
}

func TestExportImport(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "install", "--dir", dir)
	require.NoError(t, err)

	s, err := store.Open(config.Properties)
	require.NoError(t, err)
	require.NoError(t, s.Set("k", []byte("v")))
	_, err = s.ZAdd("z", 1.5, []byte("m"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	dump := filepath.Join(dir, "backup.rdb")
	_, err = execute(t, "export", dump, "--dir", dir)
	require.NoError(t, err)
	require.FileExists(t, dump)

	_, err = execute(t, "flushall", "--dir", dir)
	require.NoError(t, err)
	out, err := execute(t, "import", dump, "--dir", dir)
	require.NoError(t, err)
	require.Contains(t, out, "2 keys imported")

	s, err = store.Open(config.Properties)
	require.NoError(t, err)
	defer s.Close()
	val, ok, err := s.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), val)
	score, found, err := s.ZScore("z", []byte("m"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 1.5, score)
}

func TestExportStdout(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "export", "-", "--dir", dir)
	require.NoError(t, err)
	require.True(t, len(out) > 5 && out[:5] == "REDIS")
}
