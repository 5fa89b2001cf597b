package driver

import (
	"log/slog"

	"borrowck/internal/borrow"
)

// DefaultExtension is the file extension of operation logs.
const DefaultExtension = ".own"

// Options configures a driver run.
type Options struct {
	Check borrow.Options
	// MaxDiagnostics caps each file's Bag; 0 means unbounded.
	MaxDiagnostics int
	// Jobs bounds the worker pool; <= 0 means GOMAXPROCS.
	Jobs int
	// Extensions selects files when a directory is given.
	Extensions []string
	// Cache stores diagnostics across runs; nil disables it.
	Cache         *DiskCache
	EnableTimings bool
	Logger        *slog.Logger
	Progress      ProgressSink
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

func (o Options) extensions() []string {
	if len(o.Extensions) == 0 {
		return []string{DefaultExtension}
	}
	return o.Extensions
}

// cacheable reports whether results of this run may come from the disk
// cache. Event logs are never cached.
func (o Options) cacheable() bool {
	return o.Cache != nil && !o.Check.Events
}
