package driver

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"borrowck/internal/borrow"
	"borrowck/internal/diag"
	"borrowck/internal/observ"
	"borrowck/internal/oplog"
	"borrowck/internal/source"
	"borrowck/internal/trace"
)

// LogResult is the outcome of one log of a file.
type LogResult struct {
	Log oplog.Log
	// Result is nil when the log had syntax errors and was not checked.
	Result *borrow.Result
}

// FileResult is the outcome of checking one file.
type FileResult struct {
	Path   string
	FileID source.FileID
	Bag    *diag.Bag
	// Logs is empty when the result came from the disk cache.
	Logs   []LogResult
	Timing *observ.Report
	Cached bool
	// Violations counts ownership violations across all logs.
	Violations int
}

// Failed reports whether the file has syntax errors or violations.
func (r *FileResult) Failed() bool {
	return r.Bag != nil && r.Bag.HasErrors()
}

// CheckSource parses and checks every log of an already loaded file.
// The only error is the context's.
func CheckSource(ctx context.Context, fs *source.FileSet, fileID source.FileID, opts Options) (res FileResult, err error) {
	file := fs.Get(fileID)
	if file == nil {
		return res, fmt.Errorf("file %d not found in FileSet", fileID)
	}
	log := opts.logger().With(slog.String("file", file.Path))
	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeFile, "file:"+file.Path, trace.CurrentSpan(ctx).SpanID)

	var timer *observ.Timer
	if opts.EnableTimings {
		timer = observ.NewTimer()
	}
	res = FileResult{Path: file.Path, FileID: fileID}
	defer func() {
		if timer != nil {
			report := timer.Report()
			res.Timing = &report
		}
		span.WithExtra("violations", strconv.Itoa(res.Violations)).
			WithExtra("cached", strconv.FormatBool(res.Cached)).
			End("")
	}()

	var key Digest
	if opts.cacheable() {
		idx := timer.Begin("cache_lookup")
		key = cacheKey(file, fingerprint(opts))
		var payload DiskPayload
		hit, getErr := opts.Cache.Get(key, &payload)
		switch {
		case getErr != nil:
			log.Warn("cache read failed", slog.Any("err", getErr))
			timer.End(idx, "error")
		case hit:
			timer.End(idx, "hit")
			log.Debug("cache hit", slog.String("key", key.String()))
			res.Bag = payloadToBag(&payload, fileID, opts.MaxDiagnostics)
			res.Cached = true
			res.Violations = payload.Violations
			return res, nil
		default:
			timer.End(idx, "miss")
		}
	}

	res.Bag = diag.NewBag(opts.MaxDiagnostics)

	emit(opts.Progress, Event{File: file.Path, Stage: StageParse, Status: StatusWorking})
	idx := timer.Begin("parse")
	logs := oplog.Parse(file, diag.BagReporter{Bag: res.Bag})
	timer.End(idx, fmt.Sprintf("logs=%d", len(logs)))

	emit(opts.Progress, Event{File: file.Path, Stage: StageCheck, Status: StatusWorking})
	idx = timer.Begin("check")
	checkOpts := opts.Check
	if tracer.Level().ShouldEmit(trace.ScopeOp) {
		checkOpts.Events = true
	}
	res.Logs = make([]LogResult, len(logs))
	for i := range logs {
		if err = ctx.Err(); err != nil {
			timer.End(idx, "canceled")
			return res, err
		}
		lg := &logs[i]
		res.Logs[i].Log = *lg
		if lg.Broken {
			log.Debug("log has syntax errors, not checked", slog.String("log", lg.Name))
			continue
		}
		checked := checkLog(lg, checkOpts, tracer, span.ID())
		res.Logs[i].Result = checked
		res.Violations += len(checked.Violations)
		for _, v := range checked.Violations {
			res.Bag.Add(violationDiagnostic(v, lg))
		}
		if d, ok := skippedDiagnostic(checked, lg); ok {
			res.Bag.Add(d)
		}
	}
	timer.End(idx, fmt.Sprintf("violations=%d", res.Violations))
	res.Bag.Sort()

	if opts.cacheable() {
		names := make([]string, len(logs))
		for i := range logs {
			names[i] = logs[i].Name
		}
		if putErr := opts.Cache.Put(key, bagToPayload(file.Path, names, res.Violations, res.Bag)); putErr != nil {
			log.Warn("cache write failed", slog.Any("err", putErr))
		}
	}
	return res, nil
}

func checkLog(lg *oplog.Log, opts borrow.Options, tracer trace.Tracer, parent uint64) *borrow.Result {
	span := trace.Begin(tracer, trace.ScopeFile, "log:"+lg.Name, parent)
	res := borrow.Check(lg.Ops, opts)
	for _, ev := range res.Events {
		trace.Point(tracer, trace.ScopeOp, ev.Kind.String(), ev.String(), span.ID())
	}
	span.WithExtra("ops", strconv.Itoa(len(lg.Ops))).End(validity(res))
	return res
}

func validity(res *borrow.Result) string {
	if v, ok := res.First(); ok {
		return v.String()
	}
	return "Valid"
}

func fingerprint(opts Options) string {
	return fmt.Sprintf("%s;max=%d", opts.Check.Fingerprint(), opts.MaxDiagnostics)
}
