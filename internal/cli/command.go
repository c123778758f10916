package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	flag "github.com/spf13/pflag"
)

const (
	// programName prefixes every usage line.
	programName = "kv"

	// helpColumn is the width of the usage column in command listings.
	helpColumn = 26
)

// Command defines a kv subcommand with unified help generation.
type Command struct {
	// Flags defines command-specific flags.
	// The FlagSet name is not used - command identity comes from Usage.
	Flags *flag.FlagSet

	// Usage is the freeform usage string shown after "kv" in help.
	// Includes the command name and arguments/flags.
	// Examples: "get <field> [--raw]", "del <field>...", "dump [--yaml]"
	Usage string

	// Aliases are alternative names accepted on the command line.
	Aliases []string

	// NoArgs rejects positional arguments before Exec runs.
	NoArgs bool

	// Short is a one-line description for the global help listing.
	Short string

	// Long is the full description shown in command help.
	// If empty, Short is used instead.
	Long string

	// Exec runs the command after flags are parsed.
	Exec func(ctx context.Context, o *IO, args []string) error
}

// Name returns the command name (first word of Usage).
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

// Matches reports whether name selects c, by name or alias.
func (c *Command) Matches(name string) bool {
	return c.Name() == name || slices.Contains(c.Aliases, name)
}

// HelpLine returns the short help line for the main usage display.
func (c *Command) HelpLine() string {
	line := fmt.Sprintf("  %-*s %s", helpColumn, c.Usage, c.Short)
	if len(c.Aliases) > 0 {
		line += " (alias: " + strings.Join(c.Aliases, ", ") + ")"
	}

	return line
}

// PrintHelp prints the full help output for "kv <cmd> --help".
func (c *Command) PrintHelp(o *IO) {
	o.Println("Usage:", programName, c.Usage)
	o.Println()

	desc := c.Long
	if desc == "" {
		desc = c.Short
	}

	o.Println(desc)

	if c.Flags != nil && c.Flags.HasFlags() {
		o.Println()
		o.Println("Flags:")

		var buf strings.Builder
		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()
		o.Printf("%s", buf.String())
	}
}

// Run parses flags and executes the command. Returns exit code.
// Handles error printing internally for consistent output ordering.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	c.Flags.SetOutput(&strings.Builder{}) // discard pflag output

	err := c.Flags.Parse(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.PrintHelp(o)
			return 0
		}
		o.ErrPrintln("error:", err)
		o.ErrPrintln()
		c.PrintHelp(o)
		return 1
	}

	rest := c.Flags.Args()
	if c.NoArgs && len(rest) > 0 {
		o.ErrPrintln("error:", fmt.Errorf("%w: %s takes none, got %v", ErrTooManyArgs, c.Name(), rest))
		return 1
	}

	if err := c.Exec(ctx, o, rest); err != nil {
		o.ErrPrintln("error:", err)
		return 1
	}

	return 0
}

// findCommand returns the command selected by name, or nil.
func findCommand(commands []*Command, name string) *Command {
	for _, c := range commands {
		if c.Matches(name) {
			return c
		}
	}

	return nil
}
