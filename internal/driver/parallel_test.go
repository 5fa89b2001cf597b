package driver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"borrowck/internal/diag"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func sampleTree(t *testing.T) string {
	return writeTree(t, map[string]string{
		"a.own":         "let x\nuse x\n",
		"b.own":         "let s\nmove s t\nuse s\n",
		"sub/c.own":     "let mut v\nborrow mut v as r\nborrow v as q\n",
		".hidden/d.own": "use nothing\n",
		"notes.txt":     "not a log\n",
	})
}

func TestExpandPaths(t *testing.T) {
	root := sampleTree(t)
	got, err := ExpandPaths([]string{root, filepath.Join(root, "notes.txt"), filepath.Join(root, "a.own")}, []string{DefaultExtension})
	if err != nil {
		t.Fatalf("ExpandPaths: %v", err)
	}
	want := []string{
		filepath.Join(root, "a.own"),
		filepath.Join(root, "b.own"),
		filepath.Join(root, "sub", "c.own"),
		filepath.Join(root, "notes.txt"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("paths mismatch (-want +got):\n%s", diff)
	}

	if _, err := ExpandPaths([]string{filepath.Join(root, "missing.own")}, nil); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestCheckPaths(t *testing.T) {
	root := sampleTree(t)
	events := make(chan Event, 64)
	opts := Options{Jobs: 2, Progress: ChannelSink{Ch: events}}

	fs, results, err := CheckPaths(context.Background(), []string{root}, opts)
	close(events)
	if err != nil {
		t.Fatalf("CheckPaths: %v", err)
	}
	if fs.Len() != 3 {
		t.Fatalf("FileSet has %d files, want 3", fs.Len())
	}

	type outcome struct {
		Base       string
		Violations int
		Codes      []diag.Code
	}
	var got []outcome
	for _, r := range results {
		o := outcome{Base: filepath.Base(r.Path), Violations: r.Violations}
		for _, d := range r.Bag.Items() {
			o.Codes = append(o.Codes, d.Code)
		}
		got = append(got, o)
	}
	want := []outcome{
		{Base: "a.own"},
		{Base: "b.own", Violations: 1, Codes: []diag.Code{diag.BorUseAfterMove}},
		{Base: "c.own", Violations: 1, Codes: []diag.Code{diag.BorExclusiveConflict}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("results mismatch (-want +got):\n%s", diff)
	}

	done := 0
	for ev := range events {
		if ev.Status == StatusDone {
			done++
		}
	}
	if done != 3 {
		t.Fatalf("got %d done events, want 3", done)
	}
}

func TestCheckPathsUsesCache(t *testing.T) {
	root := sampleTree(t)
	cache, err := OpenDiskCacheAt(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	opts := Options{Cache: cache, MaxDiagnostics: 10}

	_, first, err := CheckPaths(context.Background(), []string{root}, opts)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	_, second, err := CheckPaths(context.Background(), []string{root}, opts)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	for i := range first {
		if first[i].Cached {
			t.Errorf("%s: first run came from cache", first[i].Path)
		}
		if !second[i].Cached {
			t.Errorf("%s: second run missed the cache", second[i].Path)
		}
		if diff := cmp.Diff(first[i].Bag.Items(), second[i].Bag.Items()); diff != "" {
			t.Errorf("%s: cached diagnostics differ (-fresh +cached):\n%s", first[i].Path, diff)
		}
		if first[i].Violations != second[i].Violations {
			t.Errorf("%s: violations %d != %d", first[i].Path, first[i].Violations, second[i].Violations)
		}
	}

	// другой режим проверки не должен попадать в тот же ключ
	opts.Check.StrictMutability = true
	_, third, err := CheckPaths(context.Background(), []string{root}, opts)
	if err != nil {
		t.Fatalf("third run: %v", err)
	}
	for _, r := range third {
		if r.Cached {
			t.Errorf("%s: cache hit across different options", r.Path)
		}
	}
}

func TestCheckPathsUnreadableFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read any file")
	}
	root := writeTree(t, map[string]string{"locked.own": "let x\n"})
	p := filepath.Join(root, "locked.own")
	if err := os.Chmod(p, 0o000); err != nil {
		t.Fatal(err)
	}
	_, results, err := CheckPaths(context.Background(), []string{p}, Options{})
	if err != nil {
		t.Fatalf("CheckPaths: %v", err)
	}
	items := results[0].Bag.Items()
	if len(items) != 1 || items[0].Code != diag.IOLoadFileError {
		t.Fatalf("got %v, want one %s", items, diag.IOLoadFileError)
	}
	if !results[0].Failed() {
		t.Fatal("unreadable file should fail")
	}
}

func TestCheckPathsCanceled(t *testing.T) {
	root := sampleTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := CheckPaths(ctx, []string{root}, Options{Jobs: 1}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
