package driver

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// readExpect returns the codes listed on the "# expect:" line of a log file;
// "ok" means no diagnostics.
func readExpect(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line, ok := strings.CutPrefix(strings.TrimSpace(sc.Text()), "# expect:")
		if !ok {
			continue
		}
		line = strings.TrimSpace(line)
		if line == "ok" {
			return nil
		}
		var codes []string
		for _, c := range strings.Split(line, ",") {
			codes = append(codes, strings.TrimSpace(c))
		}
		return codes
	}
	t.Fatalf("%s has no '# expect:' line", path)
	return nil
}

func TestTestdataExpectations(t *testing.T) {
	root := filepath.Join("..", "..", "testdata")
	_, results, err := CheckPaths(context.Background(), []string{root}, Options{Jobs: 4})
	if err != nil {
		t.Fatalf("CheckPaths: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("no testdata files found")
	}
	for _, r := range results {
		t.Run(filepath.Base(r.Path), func(t *testing.T) {
			want := readExpect(t, r.Path)
			var got []string
			for _, d := range r.Bag.Items() {
				got = append(got, d.Code.ID())
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("codes mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
