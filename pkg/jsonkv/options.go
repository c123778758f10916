package jsonkv

import (
	"log/slog"

	"github.com/calvinalkan/jsonkv/pkg/fs"
)

// Options configures how a [Store] finds and persists its backing file.
type Options struct {
	// Dir is the directory holding the backing file. Empty means the
	// current directory.
	Dir string

	// Seed is written to the backing file when it does not exist yet, and
	// is the in-memory state until the load finishes. Nil means an empty
	// document.
	Seed *Document

	// FS is the filesystem. Nil means [fs.NewReal].
	FS fs.FS

	// Logger receives write and load failures. Nil means [slog.Default].
	Logger *slog.Logger

	// OnInitError is called once when loading the backing file fails.
	// Readiness still resolves.
	OnInitError func(key string, err error)

	// OnWriteError is called for every failed physical write.
	OnWriteError func(key string, err error)
}

// Option mutates [Options].
type Option func(*Options)

// WithDir sets [Options.Dir].
func WithDir(dir string) Option {
	return func(o *Options) { o.Dir = dir }
}

// WithSeed sets [Options.Seed] from a plain map.
func WithSeed(seed map[string]any) Option {
	return func(o *Options) { o.Seed = DocumentFrom(seed) }
}

// WithSeedDocument sets [Options.Seed].
func WithSeedDocument(seed *Document) Option {
	return func(o *Options) { o.Seed = seed }
}

// WithFS sets [Options.FS].
func WithFS(fsys fs.FS) Option {
	return func(o *Options) { o.FS = fsys }
}

// WithLogger sets [Options.Logger].
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithInitErrorHandler sets [Options.OnInitError].
func WithInitErrorHandler(fn func(key string, err error)) Option {
	return func(o *Options) { o.OnInitError = fn }
}

// WithWriteErrorHandler sets [Options.OnWriteError].
func WithWriteErrorHandler(fn func(key string, err error)) Option {
	return func(o *Options) { o.OnWriteError = fn }
}

func buildOptions(base Options, opts []Option) Options {
	o := base
	for _, opt := range opts {
		opt(&o)
	}

	if o.FS == nil {
		o.FS = fs.NewReal()
	}

	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	return o
}

// WriteOption adjusts a single mutation.
type WriteOption func(*writeOptions)

type writeOptions struct {
	noWrite bool
	convert Converter
}

// WithoutWrite applies the mutation in memory only. A later mutation,
// [Store.WriteData] or [Store.Sync] persists it.
func WithoutWrite() WriteOption {
	return func(o *writeOptions) { o.noWrite = true }
}

// WithConverter makes [Store.Set] store convert(value) instead of value.
// Other mutations ignore it.
func WithConverter(convert Converter) WriteOption {
	return func(o *writeOptions) { o.convert = convert }
}

func buildWriteOptions(opts []WriteOption) writeOptions {
	var o writeOptions
	for _, opt := range opts {
		opt(&o)
	}

	return o
}
