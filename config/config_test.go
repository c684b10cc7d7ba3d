package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meysamhadeli/unitcache/task_scheduler"
)

func resetState(t *testing.T) {
	t.Helper()
	viper.Reset()
	ClearConfigCache()
	cfgFile = ""
	t.Cleanup(func() {
		viper.Reset()
		ClearConfigCache()
		cfgFile = ""
	})
}

func newRoot() *cobra.Command {
	cmd := &cobra.Command{Use: "unitcache"}
	InitFlags(cmd)
	return cmd
}

func TestLoadConfigs_Defaults(t *testing.T) {
	resetState(t)
	dir := t.TempDir()

	cfg, err := LoadConfigs(newRoot(), dir)
	require.NoError(t, err)

	abs, _ := filepath.Abs(dir)
	assert.Equal(t, abs, cfg.ProjectRoot)
	assert.Equal(t, abs, cfg.BuildDir)
	assert.Equal(t, filepath.Base(dir), cfg.ProjectName)
	assert.Equal(t, "unitcache", cfg.ProgramName)
	assert.Equal(t, DefaultConfig.BuildWorkers, cfg.BuildWorkers)
}

func TestLoadConfigs_ReadsYamlFile(t *testing.T) {
	resetState(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unitcache-config.yaml"), []byte(
		"build_dir: out\nproject_name: demo\nmake_command: gmake\ncompiler_workers: 3\n"), 0o644))

	cfg, err := LoadConfigs(newRoot(), dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.ProjectRoot, "out"), cfg.BuildDir)
	assert.Equal(t, "demo", cfg.ProjectName)
	assert.Equal(t, "gmake", cfg.MakeCommand)
	assert.Equal(t, 3, cfg.SchedulerLimits()[task_scheduler.CategoryCompiler])
}

func TestLoadConfigs_FlagsOverrideFile(t *testing.T) {
	resetState(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unitcache-config.json"), []byte(`{"log_level": "warn"}`), 0o644))

	root := newRoot()
	require.NoError(t, root.PersistentFlags().Set("log_level", "debug"))

	cfg, err := LoadConfigs(root, dir)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigs_ExplicitMissingFileFails(t *testing.T) {
	resetState(t)
	cfgFile = filepath.Join(t.TempDir(), "nope.yaml")

	_, err := LoadConfigs(newRoot(), t.TempDir())
	assert.Error(t, err)
}

func TestLoadConfigWithCache_ReusesUntilModified(t *testing.T) {
	resetState(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "unitcache-config.toml")
	require.NoError(t, os.WriteFile(path, []byte("project_name = \"first\"\n"), 0o644))

	first, err := LoadConfigWithCache(newRoot(), dir)
	require.NoError(t, err)
	second, err := LoadConfigWithCache(newRoot(), dir)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, GetConfigCacheStats()["cached_files"])

	ClearConfigCache()
	assert.Equal(t, 0, GetConfigCacheStats()["cached_files"])
}

func TestResolvedDirs(t *testing.T) {
	cfg := &Config{ProjectName: "demo", ProgramName: "unitcache", CacheDir: "/tmp/uc"}
	cacheDir, err := cfg.ResolvedCacheDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/uc", cacheDir)

	drafts, err := cfg.ResolvedDraftsDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/uc", "drafts", "demo"), drafts)

	cfg.DraftsDir = "/elsewhere"
	drafts, err = cfg.ResolvedDraftsDir()
	require.NoError(t, err)
	assert.Equal(t, "/elsewhere", drafts)
}

func TestGetConfigFileType(t *testing.T) {
	assert.Equal(t, "json", GetConfigFileType("a.json"))
	assert.Equal(t, "yaml", GetConfigFileType("a.yml"))
	assert.Equal(t, "toml", GetConfigFileType("a.toml"))
	assert.Equal(t, "", GetConfigFileType("a.ini"))
}
