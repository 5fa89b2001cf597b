package testkit

import (
	"strings"
	"testing"

	"borrowck/internal/diag"
	"borrowck/internal/oplog"
	"borrowck/internal/source"
)

func TestCheckSpanInvariantsOnParsedLogs(t *testing.T) {
	inputs := []string{
		"let mut s\nborrow s as r\nuse r\n",
		"log a\nlet x\n{ use x }\nlog b\nlet y # comment\nmove y -> z\n",
		"",
	}
	for _, in := range inputs {
		logs, fs := oplog.ParseString("t.own", in, diag.NopReporter{})
		if err := CheckSpanInvariants(logs, fs.Get(0)); err != nil {
			t.Errorf("%q: %v", in, err)
		}
	}
}

func TestCheckSpanInvariantsDetectsBrokenSpans(t *testing.T) {
	fs := source.NewFileSet()
	file := fs.Get(fs.AddVirtual("t.own", []byte("use a\nuse b\n")))
	tests := []struct {
		name string
		ops  []oplog.Op
		want string
	}{
		{"empty", []oplog.Op{{Kind: oplog.KindUse, Name: "a"}}, "empty span"},
		{"beyond", []oplog.Op{{Kind: oplog.KindUse, Name: "a", Span: source.Span{Start: 6, End: 40}}}, "beyond content"},
		{"order", []oplog.Op{
			{Kind: oplog.KindUse, Name: "b", Span: source.Span{Start: 6, End: 11}},
			{Kind: oplog.KindUse, Name: "a", Span: source.Span{Start: 0, End: 5}},
		}, "before previous end"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSpanInvariants([]oplog.Log{{Name: "main", Ops: tt.ops}}, file)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
