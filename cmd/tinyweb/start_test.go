package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marmos91/tinyweb/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyStartFlags(t *testing.T) {
	require.NoError(t, startCmd.ParseFlags([]string{"-p", "9006", "-m", "1", "-o", "1", "-t", "8", "-l", "1"}))

	cfg := config.GetDefaultConfig()
	require.NoError(t, applyStartFlags(startCmd, cfg))

	assert.Equal(t, 9006, cfg.Adapters.HTTP.Port)
	assert.Equal(t, 1, cfg.Adapters.HTTP.TriggerMode)
	assert.True(t, cfg.Adapters.HTTP.Linger)
	assert.Equal(t, 8, cfg.Adapters.HTTP.Workers)
	assert.True(t, cfg.Logging.Async)
	assert.False(t, cfg.Logging.Disabled)
	assert.Equal(t, config.DefaultReadPoolSize, cfg.Credentials.ReadPoolSize)
}

func TestApplyStartFlagsRejectsBadPort(t *testing.T) {
	require.NoError(t, startCmd.ParseFlags([]string{"-p", "80"}))

	cfg := config.GetDefaultConfig()
	assert.Error(t, applyStartFlags(startCmd, cfg))
}

func TestInitAndSchemaCommands(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	schemaPath := filepath.Join(dir, "schema.json")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"init", "--config", cfgPath})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), cfgPath)

	rootCmd.SetArgs([]string{"schema", schemaPath})
	require.NoError(t, rootCmd.Execute())

	data, err := os.ReadFile(schemaPath)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "trigger_mode"))
}

func TestUserAddBadger(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	yaml := "credentials:\n  type: badger\n  badger:\n    db_path: " + filepath.Join(dir, "users") + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader("s3cret\n"))
	rootCmd.SetArgs([]string{"user", "add", "alice", "--config", cfgPath})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Created user alice")

	rootCmd.SetIn(strings.NewReader("other\n"))
	rootCmd.SetArgs([]string{"user", "add", "alice", "--config", cfgPath})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}
