package cli

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"
)

// SetCmd returns the set command.
func SetCmd(a *app) *Command {
	fs := flag.NewFlagSet("set", flag.ContinueOnError)
	raw := fs.BoolP("raw", "r", false, "store the value as a string instead of decoding JSON")

	return &Command{
		Flags: fs,
		Usage: "set <field> <value> [--raw]",
		Short: "Set a field",
		Long: `Set a field and wait until it is written.

The value is decoded as JSON unless --raw is given. A value of "-" reads
the value from stdin.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execSet(ctx, a, args, *raw)
		},
	}
}

func execSet(ctx context.Context, a *app, args []string, raw bool) error {
	switch {
	case len(args) == 0:
		return ErrFieldRequired
	case len(args) == 1:
		return ErrValueRequired
	case len(args) > 2:
		return fmt.Errorf("%w: %v", ErrTooManyArgs, args[2:])
	}

	arg, err := readValueArg(a.in, args[1])
	if err != nil {
		return err
	}

	value, err := parseValue(arg, raw)
	if err != nil {
		return err
	}

	s, err := a.open(ctx)
	if err != nil {
		return err
	}

	err = s.Set(args[0], value)
	if err != nil {
		return err
	}

	return s.Sync(ctx)
}
