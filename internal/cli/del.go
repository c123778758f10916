package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

// DelCmd returns the del command.
func DelCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("del", flag.ContinueOnError),
		Usage:   "del <field>...",
		Aliases: []string{"rm"},
		Short: "Delete fields",
		Long:  "Delete one or more fields with a single write. Absent fields are ignored.",
		Exec: func(ctx context.Context, _ *IO, args []string) error {
			if len(args) == 0 {
				return ErrFieldRequired
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}

			err = s.DeleteMany(args)
			if err != nil {
				return err
			}

			return s.Sync(ctx)
		},
	}
}

// ClearCmd returns the clear command.
func ClearCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("clear", flag.ContinueOnError),
		Usage:  "clear",
		NoArgs: true,
		Short: "Delete all fields",
		Exec: func(ctx context.Context, _ *IO, args []string) error {
			s, err := a.open(ctx)
			if err != nil {
				return err
			}

			err = s.Clear()
			if err != nil {
				return err
			}

			return s.Sync(ctx)
		},
	}
}
