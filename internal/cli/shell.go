package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/jsonkv/pkg/jsonkv"
)

// ShellCmd returns the shell command.
func ShellCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("shell", flag.ContinueOnError),
		Usage:  "shell",
		NoArgs: true,
		Short: "Interactive shell on the store",
		Long: `Open an interactive shell on the store with history and tab completion.

Mutations are written in the background; "sync" waits for them. Type
"help" inside the shell for the command list.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execShell(ctx, o, a)
		},
	}
}

var shellCommands = []string{
	"get", "set", "del", "delete", "rm", "clear",
	"keys", "ls", "len", "size", "dump",
	"sync", "stats", "help", "exit", "quit", "q",
}

// shell executes one line at a time against an open store.
type shell struct {
	store *jsonkv.Store
	o     *IO
}

func execShell(ctx context.Context, o *IO, a *app) error {
	s, err := a.open(ctx)
	if err != nil {
		return err
	}

	sh := &shell{store: s, o: o}

	line := liner.NewLiner()
	defer func() { _ = line.Close() }()

	line.SetCtrlCAborts(true)
	line.SetCompleter(sh.complete)

	history := historyFile(a.env)
	if history != "" {
		if f, err := os.Open(history); err == nil {
			_, _ = line.ReadHistory(f)
			_ = f.Close()
		}

		defer saveHistory(line, history)
	}

	o.Printf("kv shell on %s (type 'help' for commands)\n", s.Path())

	for ctx.Err() == nil {
		input, err := line.Prompt("kv> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("reading input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		line.AppendHistory(input)

		quit, err := sh.exec(ctx, input)
		if err != nil {
			o.ErrPrintln("error:", err)
		}

		if quit {
			return nil
		}
	}

	return nil
}

// historyFile returns ~/.kv_history, or empty when HOME is unknown.
func historyFile(env map[string]string) string {
	home := env["HOME"]
	if home == "" {
		return ""
	}

	return filepath.Join(home, ".kv_history")
}

func saveHistory(line *liner.State, path string) {
	f, err := os.Create(path)
	if err != nil {
		return
	}

	_, _ = line.WriteHistory(f)
	_ = f.Close()
}

// exec runs one shell line. It reports whether the shell should exit.
func (sh *shell) exec(ctx context.Context, input string) (bool, error) {
	name, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(name) {
	case "exit", "quit", "q":
		return true, nil

	case "help", "?":
		sh.printHelp()

	case "get":
		if rest == "" {
			return false, ErrFieldRequired
		}

		v, ok := sh.store.Get(rest)
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrFieldNotFound, rest)
		}

		out, err := formatValue(v, false)
		if err != nil {
			return false, err
		}

		sh.o.Println(out)

	case "set":
		field, arg, ok := strings.Cut(rest, " ")
		if field == "" {
			return false, ErrFieldRequired
		}

		if !ok || strings.TrimSpace(arg) == "" {
			return false, ErrValueRequired
		}

		value, err := parseValue(strings.TrimSpace(arg), false)
		if err != nil {
			return false, err
		}

		return false, sh.store.Set(field, value)

	case "del", "delete", "rm":
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return false, ErrFieldRequired
		}

		return false, sh.store.DeleteMany(fields)

	case "clear":
		return false, sh.store.Clear()

	case "keys", "ls":
		for _, k := range sh.store.Keys() {
			sh.o.Println(k)
		}

	case "len":
		sh.o.Println(sh.store.Len())

	case "size":
		size, err := sh.store.Size()
		if err != nil {
			return false, err
		}

		sh.o.Println(size)

	case "dump":
		return false, writeDocument(sh.o, sh.store.Snapshot(), rest == "yaml" || rest == "--yaml")

	case "sync":
		return false, sh.store.Sync(ctx)

	case "stats":
		st := sh.store.Stats()
		sh.o.Printf("writes=%d write_errors=%d writing=%v\n", st.Writes, st.WriteErrors, st.Writing)

	default:
		return false, fmt.Errorf("%w: %s (type 'help' for commands)", ErrUnknownCommand, name)
	}

	return false, nil
}

// complete offers command names for the first word and field names after
// get, set and del.
func (sh *shell) complete(line string) []string {
	var completions []string

	name, prefix, hasArg := strings.Cut(line, " ")
	if !hasArg {
		lower := strings.ToLower(line)
		for _, c := range shellCommands {
			if strings.HasPrefix(c, lower) {
				completions = append(completions, c)
			}
		}

		return completions
	}

	switch strings.ToLower(name) {
	case "get", "set", "del", "delete", "rm":
	default:
		return nil
	}

	if strings.Contains(prefix, " ") {
		return nil
	}

	for _, k := range sh.store.Keys() {
		if strings.HasPrefix(k, prefix) {
			completions = append(completions, name+" "+k)
		}
	}

	return completions
}

func (sh *shell) printHelp() {
	sh.o.Println("Commands:")
	sh.o.Println("  get <field>            Print a field as JSON")
	sh.o.Println("  set <field> <json>     Set a field")
	sh.o.Println("  del <field>...         Delete fields")
	sh.o.Println("  clear                  Delete all fields")
	sh.o.Println("  keys                   List field names")
	sh.o.Println("  len                    Count fields")
	sh.o.Println("  size                   Backing file size in bytes")
	sh.o.Println("  dump [yaml]            Print the document")
	sh.o.Println("  sync                   Wait until pending writes finish")
	sh.o.Println("  stats                  Show write counters")
	sh.o.Println("  help                   Show this help")
	sh.o.Println("  exit / quit / q        Exit")
}
