package driver

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"borrowck/internal/diag"
	"borrowck/internal/source"
	"borrowck/internal/trace"
)

// runMetrics tracks counters for one CheckPaths call.
type runMetrics struct {
	filesChecked atomic.Int64
	filesFailed  atomic.Int64
	loadErrors   atomic.Int64
	cacheHits    atomic.Int64
	cacheMisses  atomic.Int64
	violations   atomic.Int64
}

func (m *runMetrics) summary() string {
	hits, misses := m.cacheHits.Load(), m.cacheMisses.Load()
	rate := 0.0
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total) * 100
	}
	return fmt.Sprintf("files: %d checked, %d failed, %d unreadable | violations: %d | cache: %d/%d (%.1f%%)",
		m.filesChecked.Load(), m.filesFailed.Load(), m.loadErrors.Load(),
		m.violations.Load(), hits, hits+misses, rate)
}

// ExpandPaths turns files and directories into a sorted, de-duplicated list
// of files. Directories are walked recursively for files with one of exts;
// explicitly named files are kept whatever their extension.
func ExpandPaths(paths []string, exts []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		p = filepath.Clean(p)
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			add(p)
			continue
		}
		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != p && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if slices.Contains(exts, filepath.Ext(path)) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
		slices.Sort(found)
		for _, f := range found {
			add(f)
		}
	}
	return out, nil
}

// CheckPaths checks every file named by paths with a bounded worker pool.
// Results follow the order of ExpandPaths. Files that cannot be read get an
// IO diagnostic instead of aborting the run.
func CheckPaths(ctx context.Context, paths []string, opts Options) (*source.FileSet, []FileResult, error) {
	files, err := ExpandPaths(paths, opts.extensions())
	if err != nil {
		return nil, nil, err
	}
	log := opts.logger()
	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeStage, "check_paths", trace.CurrentSpan(ctx).SpanID)
	defer span.WithExtra("files", fmt.Sprint(len(files))).End("")

	// FileSet не потокобезопасен на запись: грузим всё заранее.
	fileSet := source.NewFileSet()
	fileIDs := make([]source.FileID, len(files))
	loadErrors := make([]error, len(files))
	loadSpan := trace.Begin(tracer, trace.ScopeStage, "load", span.ID())
	for i, p := range files {
		fileIDs[i], loadErrors[i] = fileSet.Load(p)
		if loadErrors[i] != nil {
			log.Warn("failed to load file", slog.String("file", p), slog.Any("err", loadErrors[i]))
			// пустая запись, чтобы диагностика указывала на путь
			fileIDs[i] = fileSet.Add(p, nil, source.FileVirtual)
		}
	}
	loadSpan.End("")

	results := make([]FileResult, len(files))
	if len(files) == 0 {
		return fileSet, results, nil
	}
	for _, p := range files {
		emit(opts.Progress, Event{File: p, Stage: StageLoad, Status: StatusQueued})
	}

	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	var metrics runMetrics

	g, gctx := errgroup.WithContext(trace.WithSpanContext(ctx, trace.SpanContext{SpanID: span.ID()}))
	g.SetLimit(min(jobs, len(files)))
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			started := time.Now()

			if loadErr := loadErrors[i]; loadErr != nil {
				metrics.loadErrors.Add(1)
				bag := diag.NewBag(opts.MaxDiagnostics)
				bag.Add(diag.New(diag.SevError, diag.IOLoadFileError, source.Span{File: fileIDs[i]},
					"failed to load file: "+loadErr.Error()))
				results[i] = FileResult{Path: path, FileID: fileIDs[i], Bag: bag}
				emit(opts.Progress, Event{File: path, Stage: StageLoad, Status: StatusError, Err: loadErr, Elapsed: time.Since(started)})
				return nil
			}

			res, err := CheckSource(gctx, fileSet, fileIDs[i], opts)
			if err != nil {
				emit(opts.Progress, Event{File: path, Stage: StageCheck, Status: StatusError, Err: err, Elapsed: time.Since(started)})
				return err
			}
			results[i] = res

			metrics.filesChecked.Add(1)
			metrics.violations.Add(int64(res.Violations))
			if res.Failed() {
				metrics.filesFailed.Add(1)
			}
			if opts.cacheable() {
				if res.Cached {
					metrics.cacheHits.Add(1)
				} else {
					metrics.cacheMisses.Add(1)
				}
			}
			emit(opts.Progress, Event{
				File:       path,
				Stage:      StageCheck,
				Status:     StatusDone,
				Elapsed:    time.Since(started),
				Violations: res.Violations,
				Cached:     res.Cached,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fileSet, nil, err
	}
	log.Debug("check finished", slog.String("summary", metrics.summary()))
	return fileSet, results, nil
}
