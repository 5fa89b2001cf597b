package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"borrowck/internal/borrow"
	"borrowck/internal/diagfmt"
)

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	p := filepath.Join(dir, FileName)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestTemplateMatchesDefault(t *testing.T) {
	path, err := Write(t.TempDir())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(Default(), got); diff != "" {
		t.Fatalf("template differs from Default (-want +got):\n%s", diff)
	}
}

func TestWriteRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[check]\nmode = \"batch\"\n")
	if _, err := Write(dir); !errors.Is(err, ErrExists) {
		t.Fatalf("err = %v, want ErrExists", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "batch") {
		t.Fatal("existing manifest was overwritten")
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	p := writeManifest(t, t.TempDir(), "[check]\nmode = \"batch\"\nstrict_mutability = true\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	want.Check.Mode = "batch"
	want.Check.StrictMutability = true
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	if got := cfg.CheckOptions(); got != (borrow.Options{Mode: borrow.ModeBatch, StrictMutability: true}) {
		t.Fatalf("CheckOptions() = %+v", got)
	}
	if cfg.Format() != diagfmt.FormatPretty {
		t.Fatalf("Format() = %v", cfg.Format())
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"syntax", "[check\n", "failed to parse TOML"},
		{"unknown key", "[check]\nmdoe = \"batch\"\n", "unknown keys: check.mdoe"},
		{"bad mode", "[check]\nmode = \"lazy\"\n", "[check].mode"},
		{"negative jobs", "[check]\njobs = -1\n", "[check].jobs"},
		{"bad extension", "[check]\nextensions = [\"own\"]\n", "[check].extensions"},
		{"bad format", "[output]\nformat = \"xml\"\n", "[output].format"},
		{"bad color", "[output]\ncolor = \"sometimes\"\n", "[output].color"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := writeManifest(t, t.TempDir(), tt.content)
			_, err := Load(p)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tt.wantErr)
			}
			if !strings.Contains(err.Error(), p) {
				t.Fatalf("error %q does not name the manifest", err)
			}
		})
	}
}

func TestFindWalksUp(t *testing.T) {
	root := t.TempDir()
	want := writeManifest(t, root, "")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	got, ok, err := Find(nested)
	if err != nil || !ok {
		t.Fatalf("Find: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Fatalf("Find = %q, want %q", got, want)
	}
}

func TestResolve(t *testing.T) {
	root := t.TempDir()
	p := writeManifest(t, root, "[output]\nformat = \"json\"\n")

	cfg, m, err := Resolve(p, "")
	if err != nil {
		t.Fatalf("Resolve explicit: %v", err)
	}
	if m == nil || m.Root != root || cfg.Output.Format != "json" {
		t.Fatalf("Resolve explicit: manifest=%+v cfg=%+v", m, cfg)
	}

	cfg, m, err = Resolve("", root)
	if err != nil || m == nil || m.Path != p {
		t.Fatalf("Resolve search: manifest=%+v err=%v", m, err)
	}
	if cfg.Format() != diagfmt.FormatJSON {
		t.Fatalf("Format() = %v", cfg.Format())
	}

	if _, _, err := Resolve(filepath.Join(root, "missing.toml"), ""); err == nil {
		t.Fatal("expected error for missing explicit manifest")
	}
}
