package cli

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"
)

// GetCmd returns the get command.
func GetCmd(a *app) *Command {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	raw := fs.BoolP("raw", "r", false, "print string values without quotes")

	return &Command{
		Flags: fs,
		Usage: "get <field> [--raw]",
		Short: "Print the value of a field",
		Long:  "Print the value of a field as JSON. Fails if the field is absent.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execGet(ctx, o, a, args, *raw)
		},
	}
}

func execGet(ctx context.Context, o *IO, a *app, args []string, raw bool) error {
	if len(args) == 0 {
		return ErrFieldRequired
	}

	if len(args) > 1 {
		return fmt.Errorf("%w: %v", ErrTooManyArgs, args[1:])
	}

	s, err := a.open(ctx)
	if err != nil {
		return err
	}

	v, ok := s.Get(args[0])
	if !ok {
		return fmt.Errorf("%w: %s", ErrFieldNotFound, args[0])
	}

	out, err := formatValue(v, raw)
	if err != nil {
		return err
	}

	o.Println(out)

	return nil
}
