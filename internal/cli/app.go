package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/calvinalkan/jsonkv/internal/config"
	"github.com/calvinalkan/jsonkv/pkg/jsonkv"
)

// app carries what every command needs for one invocation.
type app struct {
	cfg *config.Config
	reg *jsonkv.Registry
	log *slog.Logger
	in  io.Reader
	env map[string]string
}

func (a *app) commands() []*Command {
	return []*Command{
		GetCmd(a),
		SetCmd(a),
		DelCmd(a),
		ClearCmd(a),
		KeysCmd(a),
		SizeCmd(a),
		DumpCmd(a),
		WatchCmd(a),
		ShellCmd(a),
		PrintConfigCmd(a.cfg),
	}
}

// open returns the configured store once it is loaded. A store that failed
// to load is disposed so nothing writes over the unreadable file.
func (a *app) open(ctx context.Context) (*jsonkv.Store, error) {
	s, err := a.reg.Open(a.cfg.Key)
	if err != nil {
		return nil, err
	}

	err = s.WaitReady(ctx)
	if err != nil {
		return nil, err
	}

	initErr := s.InitError()
	if initErr == nil {
		return s, nil
	}

	a.reg.Dispose(s)

	if errors.Is(initErr, jsonkv.ErrCorrupt) {
		return nil, fmt.Errorf("%w; a copy was saved to %s", initErr, jsonkv.BackupPath(s.Path()))
	}

	return nil, initErr
}

// newLogger builds a tint logger. Colors are used only when w is a terminal.
func newLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	noColor := true

	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
		w = colorable.NewColorable(f)
	}

	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
	}))
}

// parseValue decodes arg as JSON unless raw is set, in which case arg is
// stored as a string.
func parseValue(arg string, raw bool) (any, error) {
	if raw {
		return arg, nil
	}

	var v any

	err := json.Unmarshal([]byte(arg), &v)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidValue, arg)
	}

	return v, nil
}

// formatValue renders v as indented JSON. With raw, strings are returned
// without quotes.
func formatValue(v any, raw bool) (string, error) {
	if s, ok := v.(string); ok && raw {
		return s, nil
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("format value: %w", err)
	}

	return string(data), nil
}

// readValueArg returns arg, or all of in when arg is "-".
func readValueArg(in io.Reader, arg string) (string, error) {
	if arg != "-" {
		return arg, nil
	}

	if in == nil {
		return "", ErrValueRequired
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}

	return strings.TrimRight(string(data), "\r\n"), nil
}
