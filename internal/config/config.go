// Package config resolves the kv command configuration from defaults, config
// files, the environment and command line overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	iofs "io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/tailscale/hujson"
)

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	Dir      string `json:"dir"`
	Key      string `json:"key"`
	LogLevel string `json:"log_level,omitempty"`

	// Resolved values (computed, not serialized)
	EffectiveCwd string `json:"-"` // Absolute working directory (from -C flag or os.Getwd)
	DirAbs       string `json:"-"` // Absolute path to the store directory

	// Sources tracks which files were loaded (for diagnostics)
	Sources Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project config if loaded, empty otherwise
	DotEnv  string // Path to .env if loaded, empty otherwise
}

// Environment variables consulted by [Load].
const (
	EnvDir      = "KV_DIR"
	EnvKey      = "KV_KEY"
	EnvLogLevel = "KV_LOG_LEVEL"
)

// FileName is the default project config file name.
const FileName = ".kv.json"

// DotEnvFileName is read from the working directory when present.
const DotEnvFileName = ".env"

// Default returns the default configuration.
func Default() Config {
	return Config{
		Dir:      ".",
		Key:      "kv.json",
		LogLevel: "warn",
	}
}

// Level parses LogLevel into a slog level.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(c.LogLevel))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrLogLevelInvalid, c.LogLevel)
	}

	return level, nil
}

// globalPath returns $XDG_CONFIG_HOME/kv/config.json if set, otherwise
// ~/.config/kv/config.json. Empty if neither can be determined.
func globalPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "kv", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "kv", "config.json")
	}

	return ""
}

// LoadInput holds the inputs for Load.
type LoadInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config flag value
	Overrides       Config            // CLI flag values; empty fields mean no override
	Env             map[string]string // process environment
}

// Load resolves configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config ($XDG_CONFIG_HOME/kv/config.json or ~/.config/kv/config.json)
// 3. Project config file (.kv.json) or the explicit config file
// 4. Environment (KV_DIR, KV_KEY, KV_LOG_LEVEL), where the process environment
// wins over a .env file in the working directory
// 5. CLI overrides.
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	workDir, err := filepath.Abs(workDir)
	if err != nil {
		return Config{}, fmt.Errorf("cannot resolve working directory: %w", err)
	}

	cfg := Default()

	globalCfg, globalFile, err := loadGlobal(input.Env)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Global = globalFile
	cfg = merge(cfg, globalCfg)

	projectCfg, projectFile, err := loadProject(workDir, input.ConfigPath)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Project = projectFile
	cfg = merge(cfg, projectCfg)

	env, dotEnvFile, err := loadEnv(workDir, input.Env)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.DotEnv = dotEnvFile
	cfg = merge(cfg, Config{Dir: env[EnvDir], Key: env[EnvKey], LogLevel: env[EnvLogLevel]})

	cfg = merge(cfg, input.Overrides)

	validateErr := validate(cfg)
	if validateErr != nil {
		return Config{}, validateErr
	}

	cfg.EffectiveCwd = workDir

	if filepath.IsAbs(cfg.Dir) {
		cfg.DirAbs = filepath.Clean(cfg.Dir)
	} else {
		cfg.DirAbs = filepath.Join(workDir, cfg.Dir)
	}

	return cfg, nil
}

func loadGlobal(env map[string]string) (Config, string, error) {
	path := globalPath(env)
	if path == "" {
		return Config{}, "", nil
	}

	cfg, loaded, err := loadFile(path, false)
	if err != nil || !loaded {
		return Config{}, "", err
	}

	return cfg, path, nil
}

// loadProject loads .kv.json from workDir, or configPath when given.
func loadProject(workDir, configPath string) (Config, string, error) {
	if configPath == "" {
		path := filepath.Join(workDir, FileName)

		cfg, loaded, err := loadFile(path, false)
		if err != nil || !loaded {
			return Config{}, "", err
		}

		return cfg, path, nil
	}

	path := configPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}

	_, statErr := os.Stat(path)
	if statErr != nil {
		return Config{}, "", fmt.Errorf("%w: %s", ErrConfigFileNotFound, configPath)
	}

	cfg, _, err := loadFile(path, true)
	if err != nil {
		return Config{}, "", err
	}

	return cfg, path, nil
}

// loadEnv overlays the process environment on top of the .env file.
func loadEnv(workDir string, process map[string]string) (map[string]string, string, error) {
	path := filepath.Join(workDir, DotEnvFileName)

	env, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return process, "", nil
		}

		return nil, "", fmt.Errorf("%w %s: %w", ErrEnvFileInvalid, path, err)
	}

	for k, v := range process {
		env[k] = v
	}

	return env, path, nil
}

// loadFile loads a config file. If mustExist is false, a missing file returns
// a zero config and loaded=false.
func loadFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if mustExist {
			return Config{}, false, fmt.Errorf("%w: %s", ErrConfigFileRead, path)
		}

		return Config{}, false, nil
	}

	cfg, parseErr := parse(data)
	if parseErr != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, parseErr)
	}

	return cfg, true, nil
}

func parse(data []byte) (Config, error) {
	// Standardize JSONC to JSON
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var raw map[string]json.RawMessage

	err = json.Unmarshal(standardized, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	var cfg Config

	fields := []struct {
		name  string
		dst   *string
		empty error
	}{
		{name: "dir", dst: &cfg.Dir, empty: ErrDirEmpty},
		{name: "key", dst: &cfg.Key, empty: ErrKeyEmpty},
		{name: "log_level", dst: &cfg.LogLevel},
	}

	for _, f := range fields {
		value, ok := raw[f.name]
		if !ok || string(value) == "null" {
			continue
		}

		err = json.Unmarshal(value, f.dst)
		if err != nil {
			return Config{}, fmt.Errorf("%q must be a string: %w", f.name, err)
		}

		// An explicit empty value is a mistake, not "use the default".
		if *f.dst == "" && f.empty != nil {
			return Config{}, f.empty
		}
	}

	return cfg, nil
}

func merge(base, overlay Config) Config {
	if overlay.Dir != "" {
		base.Dir = overlay.Dir
	}

	if overlay.Key != "" {
		base.Key = overlay.Key
	}

	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}

	return base
}

func validate(cfg Config) error {
	if cfg.Dir == "" {
		return ErrDirEmpty
	}

	if cfg.Key == "" {
		return ErrKeyEmpty
	}

	_, err := cfg.Level()

	return err
}

// Format returns the serializable part of cfg as indented JSON.
func Format(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("format config: %w", err)
	}

	return string(data), nil
}
