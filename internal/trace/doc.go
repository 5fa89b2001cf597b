// Package trace records what a borrowck run is doing.
//
// Spans mark the run, its stages (load, parse, check, render) and each file
// checked. With LevelDebug the tracker's per-operation events are forwarded
// as points.
//
// # Usage
//
//	borrowck check --trace=- --trace-level=detail logs/
//
// # Tracers
//
//   - Nop: used when tracing is off
//   - StreamTracer: writes each event immediately (text or NDJSON)
//   - RingTracer: keeps the last N events for a dump on failure
//   - MultiTracer: fans out to several tracers
//
// # Context Propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopeStage, "parse", 0)
//	defer span.End("")
package trace
