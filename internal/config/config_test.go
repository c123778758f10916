package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/jsonkv/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	err := os.MkdirAll(filepath.Dir(path), 0o750)
	if err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	err = os.WriteFile(path, []byte(content), 0o600)
	if err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func load(t *testing.T, input config.LoadInput) config.Config {
	t.Helper()

	if input.Env == nil {
		input.Env = map[string]string{}
	}

	cfg, err := config.Load(input)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	return cfg
}

func Test_Load_Uses_Defaults_When_Nothing_Configured(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := load(t, config.LoadInput{WorkDirOverride: dir})

	if got, want := cfg.DirAbs, dir; got != want {
		t.Fatalf("dir_abs=%q, want=%q", got, want)
	}

	if got, want := cfg.Key, "kv.json"; got != want {
		t.Fatalf("key=%q, want=%q", got, want)
	}

	if diff := cmp.Diff(config.Sources{}, cfg.Sources); diff != "" {
		t.Fatalf("sources (-want +got):\n%s", diff)
	}
}

func Test_Load_Project_File_Accepts_Comments_And_Trailing_Commas(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.FileName), `{
		// where stores live
		"dir": "state",
		"key": "prefs.json",
	}`)

	cfg := load(t, config.LoadInput{WorkDirOverride: dir})

	if got, want := cfg.DirAbs, filepath.Join(dir, "state"); got != want {
		t.Fatalf("dir_abs=%q, want=%q", got, want)
	}

	if got, want := cfg.Key, "prefs.json"; got != want {
		t.Fatalf("key=%q, want=%q", got, want)
	}

	if got, want := cfg.Sources.Project, filepath.Join(dir, config.FileName); got != want {
		t.Fatalf("project=%q, want=%q", got, want)
	}
}

func Test_Load_Precedence_Is_Global_Project_Env_Flags(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	xdg := t.TempDir()

	writeFile(t, filepath.Join(xdg, "kv", "config.json"), `{"dir": "global", "key": "global.json", "log_level": "debug"}`)
	writeFile(t, filepath.Join(dir, config.FileName), `{"dir": "project", "key": "project.json"}`)

	env := map[string]string{"XDG_CONFIG_HOME": xdg, config.EnvKey: "env.json"}

	cfg := load(t, config.LoadInput{WorkDirOverride: dir, Env: env})

	if got, want := cfg.Dir, "project"; got != want {
		t.Fatalf("dir=%q, want=%q", got, want)
	}

	if got, want := cfg.Key, "env.json"; got != want {
		t.Fatalf("key=%q, want=%q", got, want)
	}

	if got, want := cfg.LogLevel, "debug"; got != want {
		t.Fatalf("log_level=%q, want=%q", got, want)
	}

	cfg = load(t, config.LoadInput{
		WorkDirOverride: dir,
		Env:             env,
		Overrides:       config.Config{Key: "flag.json"},
	})

	if got, want := cfg.Key, "flag.json"; got != want {
		t.Fatalf("key=%q, want=%q", got, want)
	}
}

func Test_Load_Process_Env_Wins_Over_DotEnv(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.DotEnvFileName), "KV_DIR=from-dotenv\nKV_KEY=dotenv.json\n")

	cfg := load(t, config.LoadInput{
		WorkDirOverride: dir,
		Env:             map[string]string{config.EnvKey: "process.json"},
	})

	if got, want := cfg.Dir, "from-dotenv"; got != want {
		t.Fatalf("dir=%q, want=%q", got, want)
	}

	if got, want := cfg.Key, "process.json"; got != want {
		t.Fatalf("key=%q, want=%q", got, want)
	}

	if got, want := cfg.Sources.DotEnv, filepath.Join(dir, config.DotEnvFileName); got != want {
		t.Fatalf("dotenv=%q, want=%q", got, want)
	}
}

func Test_Load_Explicit_Config_Must_Exist(t *testing.T) {
	t.Parallel()

	_, err := config.Load(config.LoadInput{
		WorkDirOverride: t.TempDir(),
		ConfigPath:      "missing.json",
		Env:             map[string]string{},
	})

	if !errors.Is(err, config.ErrConfigFileNotFound) {
		t.Fatalf("err=%v, want ErrConfigFileNotFound", err)
	}
}

func Test_Load_Rejects_Invalid_Files_And_Values(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    error
	}{
		{name: "broken json", content: `{"dir": `, want: config.ErrConfigInvalid},
		{name: "explicit empty key", content: `{"key": ""}`, want: config.ErrKeyEmpty},
		{name: "explicit empty dir", content: `{"dir": ""}`, want: config.ErrDirEmpty},
		{name: "bad log level", content: `{"log_level": "loud"}`, want: config.ErrLogLevelInvalid},
		{name: "non-string dir", content: `{"dir": 5}`, want: config.ErrConfigInvalid},
		{name: "non-string log level", content: `{"log_level": true}`, want: config.ErrConfigInvalid},
		{name: "top-level array", content: `["dir", "key"]`, want: config.ErrConfigInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, config.FileName), tt.content)

			_, err := config.Load(config.LoadInput{WorkDirOverride: dir, Env: map[string]string{}})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err=%v, want %v", err, tt.want)
			}
		})
	}
}

func Test_Load_Null_Fields_Keep_Defaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.FileName), `{"dir": null, "key": "prefs.json", "extra": [1, 2]}`)

	cfg, err := config.Load(config.LoadInput{WorkDirOverride: dir, Env: map[string]string{}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got, want := cfg.Dir, config.Default().Dir; got != want {
		t.Fatalf("dir=%q, want=%q", got, want)
	}

	if got, want := cfg.Key, "prefs.json"; got != want {
		t.Fatalf("key=%q, want=%q", got, want)
	}
}

func Test_Config_Level_Parses_Names(t *testing.T) {
	t.Parallel()

	level, err := config.Config{LogLevel: "debug"}.Level()
	if err != nil {
		t.Fatalf("Level: %v", err)
	}

	if got, want := level, slog.LevelDebug; got != want {
		t.Fatalf("level=%v, want=%v", got, want)
	}
}
