package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/jsonkv/pkg/jsonkv"
)

// watchDebounce collapses the burst of events a single save produces.
const watchDebounce = 50 * time.Millisecond

// WatchCmd returns the watch command.
func WatchCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("watch", flag.ContinueOnError),
		Usage:  "watch",
		NoArgs: true,
		Short: "Print the document whenever the file changes",
		Long: `Print the document, then print it again each time the backing file is
changed by another process. Runs until interrupted.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execWatch(ctx, o, a)
		},
	}
}

// watcher follows one backing file, reopening the store after external edits.
type watcher struct {
	a    *app
	o    *IO
	path string

	store   *jsonkv.Store
	changes <-chan *jsonkv.Document
	cancel  func()
}

func execWatch(ctx context.Context, o *IO, a *app) error {
	s, err := a.open(ctx)
	if err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer func() { _ = fw.Close() }()

	// The directory is watched because atomic saves replace the file.
	err = fw.Add(filepath.Dir(s.Path()))
	if err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.Path()), err)
	}

	w := &watcher{a: a, o: o, path: s.Path()}
	w.attach(s)
	defer w.detach()

	var (
		timer  *time.Timer
		reload <-chan time.Time
	)

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case doc, ok := <-w.changes:
			if !ok {
				w.changes = nil

				continue
			}

			err := writeDocument(o, doc, false)
			if err != nil {
				return err
			}
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}

			if event.Name != w.path || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}

			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}

			reload = timer.C
		case <-reload:
			reload = nil

			w.reload(ctx)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}

			a.log.Warn("watch error", "path", w.path, "err", err)
		}
	}
}

func (w *watcher) attach(s *jsonkv.Store) {
	w.store = s
	w.changes, w.cancel = s.Subscribe()
}

func (w *watcher) detach() {
	if w.store == nil {
		return
	}

	w.cancel()
	w.a.reg.Dispose(w.store)
	w.store, w.changes, w.cancel = nil, nil, nil
}

// reload drops the cached store so the next open reads the file again.
func (w *watcher) reload(ctx context.Context) {
	w.detach()

	s, err := w.a.open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}

		w.a.log.Warn("reload failed", "path", w.path, "err", err)
		w.o.Warn("reload of "+w.path+" failed", "fix the file; watching continues")

		return
	}

	w.a.log.Debug("reloaded", "path", w.path, "fields", s.Len())
	w.attach(s)
}
