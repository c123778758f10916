package cli

import (
	"context"
	"path/filepath"

	"github.com/calvinalkan/jsonkv/internal/config"

	flag "github.com/spf13/pflag"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(cfg *config.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage:  "print-config",
		NoArgs: true,
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration and which files it was loaded from.",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			return execPrintConfig(o, cfg)
		},
	}
}

func execPrintConfig(o *IO, cfg *config.Config) error {
	o.Println("effective_cwd=" + cfg.EffectiveCwd)
	o.Println("dir=" + cfg.DirAbs)
	o.Println("key=" + cfg.Key)
	o.Println("path=" + filepath.Join(cfg.DirAbs, cfg.Key))
	o.Println("log_level=" + cfg.LogLevel)

	o.Println("")
	o.Println("# sources")

	if cfg.Sources == (config.Sources{}) {
		o.Println("(defaults only)")

		return nil
	}

	if cfg.Sources.Global != "" {
		o.Println("global_config=" + cfg.Sources.Global)
	}

	if cfg.Sources.Project != "" {
		o.Println("project_config=" + cfg.Sources.Project)
	}

	if cfg.Sources.DotEnv != "" {
		o.Println("dotenv=" + cfg.Sources.DotEnv)
	}

	return nil
}
