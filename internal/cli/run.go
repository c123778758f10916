package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/calvinalkan/jsonkv/internal/config"
	"github.com/calvinalkan/jsonkv/pkg/jsonkv"

	flag "github.com/spf13/pflag"
)

// closeTimeout bounds how long Run waits for pending writes on exit.
const closeTimeout = 10 * time.Second

// Run is the main entry point. Returns exit code.
//
// sigCh may be nil. When it delivers, the running command's context is
// canceled and pending writes are still awaited before returning.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	globals := newGlobalFlags()

	var rest []string
	if len(args) > 1 {
		err := globals.set.Parse(args[1:])
		if err != nil {
			fprintln(errOut, "error:", err)
			printUsage(errOut, globals.set, nil)

			return 1
		}

		rest = globals.set.Args()
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride: globals.workDir,
		ConfigPath:      globals.configPath,
		Overrides:       globals.overrides(),
		Env:             env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	level, _ := cfg.Level() // validated by config.Load

	logger := newLogger(errOut, level)
	reg := jsonkv.NewRegistry(jsonkv.WithDir(cfg.DirAbs), jsonkv.WithLogger(logger))

	a := &app{cfg: &cfg, reg: reg, log: logger, in: in, env: env}
	commands := a.commands()

	if len(rest) == 0 || globals.help {
		printUsage(out, globals.set, commands)

		return 0
	}

	cmd := findCommand(commands, rest[0])
	if cmd == nil {
		fprintln(errOut, "error:", fmt.Errorf("%w: %s", ErrUnknownCommand, rest[0]))
		printUsage(errOut, globals.set, commands)

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	o := NewIO(out, errOut)
	code := cmd.Run(ctx, o, rest[1:])

	closeCtx, closeCancel := context.WithTimeout(context.Background(), closeTimeout)
	defer closeCancel()

	closeErr := reg.Close(closeCtx)
	if closeErr != nil {
		o.ErrPrintln("error:", closeErr)

		return 1
	}

	if code != 0 {
		return code
	}

	return o.Finish()
}

type globalFlags struct {
	set *flag.FlagSet

	workDir    string
	configPath string
	dir        string
	key        string
	logLevel   string
	verbose    bool
	help       bool
}

func newGlobalFlags() *globalFlags {
	g := &globalFlags{set: flag.NewFlagSet(programName, flag.ContinueOnError)}

	// Everything after the command name belongs to the command.
	g.set.SetInterspersed(false)
	g.set.SetOutput(&strings.Builder{})

	g.set.StringVarP(&g.workDir, "cwd", "C", "", "run as if started in `dir`")
	g.set.StringVarP(&g.configPath, "config", "c", "", "use the specified config `file`")
	g.set.StringVarP(&g.dir, "dir", "d", "", "directory holding the store `path`")
	g.set.StringVarP(&g.key, "key", "k", "", "store `key` (the file name)")
	g.set.StringVar(&g.logLevel, "log-level", "", "log `level` (debug, info, warn, error)")
	g.set.BoolVarP(&g.verbose, "verbose", "v", false, "log at debug level")
	g.set.BoolVarP(&g.help, "help", "h", false, "show help")

	return g
}

func (g *globalFlags) overrides() config.Config {
	cfg := config.Config{Dir: g.dir, Key: g.key, LogLevel: g.logLevel}
	if g.verbose {
		cfg.LogLevel = "debug"
	}

	return cfg
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, globals *flag.FlagSet, commands []*Command) {
	fprintln(w, programName+` - JSON file backed key-value store

Usage: `+programName+` [options] <command> [args]

Options:`)

	var buf strings.Builder
	globals.SetOutput(&buf)
	globals.PrintDefaults()
	globals.SetOutput(&strings.Builder{})
	_, _ = fmt.Fprint(w, buf.String())

	if len(commands) == 0 {
		return
	}

	fprintln(w)
	fprintln(w, "Commands:")

	for _, c := range commands {
		fprintln(w, c.HelpLine())
	}
}
