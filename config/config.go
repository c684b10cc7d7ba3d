package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meysamhadeli/unitcache/constants/lipgloss"
	"github.com/meysamhadeli/unitcache/task_scheduler"
)

// ConfigFileName is the base name searched for in the project root.
const ConfigFileName = "unitcache-config"

// configCacheEntry holds cached configuration with metadata
type configCacheEntry struct {
	config  *Config
	modTime time.Time
}

// Global cache for configuration files
var (
	configCache = make(map[string]*configCacheEntry)
	cacheMutex  sync.RWMutex
)

// Config represents the structure of the configuration file
type Config struct {
	ProjectRoot     string `mapstructure:"project_root"`
	BuildDir        string `mapstructure:"build_dir"`
	ProjectName     string `mapstructure:"project_name"`
	ProgramName     string `mapstructure:"program_name"`
	CacheDir        string `mapstructure:"cache_dir"`
	MakeCommand     string `mapstructure:"make_command"`
	CCCommand       string `mapstructure:"cc_command"`
	CompilerWorkers int    `mapstructure:"compiler_workers"`
	BuildWorkers    int    `mapstructure:"build_workers"`
	IOWorkers       int    `mapstructure:"io_workers"`
	DraftsDir       string `mapstructure:"drafts_dir"`
	LogLevel        string `mapstructure:"log_level"`
}

// DefaultConfig values
var DefaultConfig = Config{
	ProgramName:     "unitcache",
	MakeCommand:     "make",
	CCCommand:       "cc",
	CompilerWorkers: runtime.NumCPU(),
	BuildWorkers:    2,
	IOWorkers:       1,
	LogLevel:        "info",
}

// cfgFile holds the path to the configuration file (set via CLI)
var cfgFile string

// LoadConfigs initializes the configuration from file, flags, and environment variables, and returns the final config.
func LoadConfigs(rootCmd *cobra.Command, cwd string) (*Config, error) {
	var config *Config

	setDefaults(cwd)

	viper.SetEnvPrefix("UNITCACHE")
	viper.AutomaticEnv()
	bindEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		viper.SetConfigName(ConfigFileName)
		viper.AddConfigPath(cwd)
		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
			fmt.Fprintln(os.Stderr, lipgloss.Yellow.Render("No configuration file found, using defaults"))
		}
	}

	// Bind CLI flags to override config values
	bindFlags(rootCmd)

	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	config.normalize(cwd)
	return config, nil
}

func (c *Config) normalize(cwd string) {
	if c.ProjectRoot == "" {
		c.ProjectRoot = cwd
	}
	if abs, err := filepath.Abs(c.ProjectRoot); err == nil {
		c.ProjectRoot = abs
	}
	if c.BuildDir == "" {
		c.BuildDir = c.ProjectRoot
	} else if !filepath.IsAbs(c.BuildDir) {
		c.BuildDir = filepath.Join(c.ProjectRoot, c.BuildDir)
	}
	if c.ProjectName == "" {
		c.ProjectName = filepath.Base(c.ProjectRoot)
	}
	if c.ProgramName == "" {
		c.ProgramName = DefaultConfig.ProgramName
	}
}

// ResolvedCacheDir is <user-cache-dir>/<program-name> unless cache_dir is set.
func (c *Config) ResolvedCacheDir() (string, error) {
	if c.CacheDir != "" {
		return c.CacheDir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user cache directory: %w", err)
	}
	return filepath.Join(base, c.ProgramName), nil
}

// ResolvedDraftsDir is the per-project drafts directory.
func (c *Config) ResolvedDraftsDir() (string, error) {
	if c.DraftsDir != "" {
		return c.DraftsDir, nil
	}
	cacheDir, err := c.ResolvedCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "drafts", c.ProjectName), nil
}

// SchedulerLimits maps the worker settings onto scheduler categories.
func (c *Config) SchedulerLimits() map[task_scheduler.Category]int {
	return map[task_scheduler.Category]int{
		task_scheduler.CategoryCompiler:    c.CompilerWorkers,
		task_scheduler.CategoryBuildSystem: c.BuildWorkers,
		task_scheduler.CategoryIO:          c.IOWorkers,
	}
}

// setDefaults sets all default configuration values
func setDefaults(cwd string) {
	viper.SetDefault("project_root", cwd)
	viper.SetDefault("build_dir", "")
	viper.SetDefault("project_name", "")
	viper.SetDefault("program_name", DefaultConfig.ProgramName)
	viper.SetDefault("cache_dir", "")
	viper.SetDefault("make_command", DefaultConfig.MakeCommand)
	viper.SetDefault("cc_command", DefaultConfig.CCCommand)
	viper.SetDefault("compiler_workers", DefaultConfig.CompilerWorkers)
	viper.SetDefault("build_workers", DefaultConfig.BuildWorkers)
	viper.SetDefault("io_workers", DefaultConfig.IOWorkers)
	viper.SetDefault("drafts_dir", "")
	viper.SetDefault("log_level", DefaultConfig.LogLevel)
}

// bindEnv explicitly binds environment variables to configuration keys
func bindEnv() {
	_ = viper.BindEnv("project_root", "UNITCACHE_PROJECT_ROOT")
	_ = viper.BindEnv("build_dir", "UNITCACHE_BUILD_DIR")
	_ = viper.BindEnv("project_name", "UNITCACHE_PROJECT_NAME")
	_ = viper.BindEnv("cache_dir", "UNITCACHE_CACHE_DIR")
	_ = viper.BindEnv("make_command", "UNITCACHE_MAKE_COMMAND")
	_ = viper.BindEnv("cc_command", "UNITCACHE_CC_COMMAND")
	_ = viper.BindEnv("compiler_workers", "UNITCACHE_COMPILER_WORKERS")
	_ = viper.BindEnv("build_workers", "UNITCACHE_BUILD_WORKERS")
	_ = viper.BindEnv("io_workers", "UNITCACHE_IO_WORKERS")
	_ = viper.BindEnv("drafts_dir", "UNITCACHE_DRAFTS_DIR")
	_ = viper.BindEnv("log_level", "UNITCACHE_LOG_LEVEL")
}

// bindFlags binds the CLI flags to configuration values.
func bindFlags(rootCmd *cobra.Command) {
	if rootCmd == nil {
		return
	}
	flags := rootCmd.PersistentFlags()
	for _, key := range []string{
		"project_root", "build_dir", "project_name", "cache_dir",
		"make_command", "cc_command", "compiler_workers", "build_workers",
		"io_workers", "drafts_dir", "log_level",
	} {
		if f := flags.Lookup(key); f != nil {
			_ = viper.BindPFlag(key, f)
		}
	}
}

// InitFlags initializes the flags for the root command.
func InitFlags(rootCmd *cobra.Command) {
	// Use PersistentFlags so that these flags are available in all subcommands
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Specifies the path to a configuration file (JSON, YAML or TOML) that contains all the settings for the application.")

	rootCmd.PersistentFlags().String("project_root", "", "Root directory of the C/C++ project (defaults to the working directory).")
	rootCmd.PersistentFlags().String("build_dir", "", "Directory make runs in, absolute or relative to the project root.")
	rootCmd.PersistentFlags().String("project_name", "", "Name used for the make database and drafts (defaults to the project directory name).")
	rootCmd.PersistentFlags().String("cache_dir", "", "Cache directory (defaults to <user-cache-dir>/unitcache).")
	rootCmd.PersistentFlags().String("make_command", DefaultConfig.MakeCommand, "Build tool used to produce the make database and extract flags.")
	rootCmd.PersistentFlags().String("cc_command", DefaultConfig.CCCommand, "C compiler queried for its default include directory.")
	rootCmd.PersistentFlags().Int("compiler_workers", DefaultConfig.CompilerWorkers, "Maximum concurrent parses.")
	rootCmd.PersistentFlags().Int("build_workers", DefaultConfig.BuildWorkers, "Maximum concurrent build-tool subprocesses.")
	rootCmd.PersistentFlags().Int("io_workers", DefaultConfig.IOWorkers, "Maximum concurrent draft save/restore tasks.")
	rootCmd.PersistentFlags().String("drafts_dir", "", "Directory for persisted unsaved drafts.")
	rootCmd.PersistentFlags().String("log_level", DefaultConfig.LogLevel, "Log level: trace, debug, info, warn, error or off.")

	// Version flag
	rootCmd.Flags().BoolP("version", "v", false, "Specifies the version of the application.")
}

// GetConfigFileType returns the type of the configuration file based on its extension
func GetConfigFileType(filename string) string {
	switch {
	case strings.HasSuffix(filename, ".json"):
		return "json"
	case strings.HasSuffix(filename, ".yaml"), strings.HasSuffix(filename, ".yml"):
		return "yaml"
	case strings.HasSuffix(filename, ".toml"):
		return "toml"
	}
	return ""
}

// findConfigFile returns the explicit --config path or the first
// unitcache-config.* present in cwd.
func findConfigFile(cwd string) string {
	if cfgFile != "" {
		return cfgFile
	}
	for _, ext := range []string{".yaml", ".yml", ".json", ".toml"} {
		path := filepath.Join(cwd, ConfigFileName+ext)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// LoadConfigWithCache loads configuration with caching support
func LoadConfigWithCache(rootCmd *cobra.Command, cwd string) (*Config, error) {
	configFilePath := findConfigFile(cwd)
	if configFilePath == "" {
		return LoadConfigs(rootCmd, cwd)
	}

	fileInfo, err := os.Stat(configFilePath)
	if err != nil {
		return LoadConfigs(rootCmd, cwd)
	}

	cacheMutex.RLock()
	if cached, exists := configCache[configFilePath]; exists {
		if fileInfo.ModTime().Equal(cached.modTime) {
			cacheMutex.RUnlock()
			return cached.config, nil
		}
	}
	cacheMutex.RUnlock()

	config, err := LoadConfigs(rootCmd, cwd)
	if err != nil {
		return nil, err
	}

	cacheMutex.Lock()
	configCache[configFilePath] = &configCacheEntry{
		config:  config,
		modTime: fileInfo.ModTime(),
	}
	cacheMutex.Unlock()

	return config, nil
}

// ClearConfigCache clears all cached configuration files
func ClearConfigCache() {
	cacheMutex.Lock()
	defer cacheMutex.Unlock()
	configCache = make(map[string]*configCacheEntry)
}

// GetConfigCacheStats returns statistics about the configuration cache
func GetConfigCacheStats() map[string]interface{} {
	cacheMutex.RLock()
	defer cacheMutex.RUnlock()

	entries := make([]string, 0, len(configCache))
	for path := range configCache {
		entries = append(entries, path)
	}
	return map[string]interface{}{
		"cached_files":  len(configCache),
		"cache_entries": entries,
	}
}
