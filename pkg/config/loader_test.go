package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	viper.Reset()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	require.NoError(t, Load(""))
	assert.Equal(t, "memory", viper.GetString("staging.backend"))
	assert.Equal(t, "", viper.GetString("container.compression"))
	assert.Equal(t, ":8080", viper.GetString("server.addr"))
	assert.Equal(t, "info", viper.GetString("log.level"))
	assert.Positive(t, viper.GetInt("verify.workers"))
	assert.Empty(t, Used())
}

func TestLoad_FileAndEnv(t *testing.T) {
	viper.Reset()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("container:\n  compression: zstd\nstaging:\n  backend: temp\n"), 0o644))
	t.Setenv("ZV_SERVER_ADDR", "127.0.0.1:9999")

	require.NoError(t, Load(cfg))
	assert.Equal(t, "zstd", viper.GetString("container.compression"))
	assert.Equal(t, "temp", viper.GetString("staging.backend"))
	assert.Equal(t, "127.0.0.1:9999", viper.GetString("server.addr"), "环境变量覆盖默认值")
	assert.Equal(t, cfg, Used())
}

func TestLoad_SearchPath(t *testing.T) {
	viper.Reset()
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.MkdirAll(".zv", 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(".zv", "config.yaml"), []byte("log:\n  level: debug\n"), 0o644))

	require.NoError(t, Load(""))
	assert.Equal(t, "debug", viper.GetString("log.level"))
}

func TestLoad_BrokenFile(t *testing.T) {
	viper.Reset()
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("container: [unclosed\n"), 0o644))
	assert.Error(t, Load(cfg))
}
