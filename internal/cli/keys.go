package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

// KeysCmd returns the keys command.
func KeysCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("keys", flag.ContinueOnError),
		Usage:   "keys",
		Aliases: []string{"ls"},
		NoArgs:  true,
		Short: "List field names in stored order",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			s, err := a.open(ctx)
			if err != nil {
				return err
			}

			for _, k := range s.Keys() {
				o.Println(k)
			}

			return nil
		},
	}
}

// SizeCmd returns the size command.
func SizeCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("size", flag.ContinueOnError),
		Usage:  "size",
		NoArgs: true,
		Short: "Print the backing file size in bytes",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			s, err := a.open(ctx)
			if err != nil {
				return err
			}

			size, err := s.Size()
			if err != nil {
				return err
			}

			o.Println(size)

			return nil
		},
	}
}
