package oplog

import (
	"bufio"
	"io"
	"strings"
)

// Format writes logs in canonical syntax: one operation per line, two-space
// indentation per open scope, a "log" header whenever the log is named
// explicitly or there is more than one.
func Format(w io.Writer, logs []Log) error {
	bw := bufio.NewWriter(w)
	for i, lg := range logs {
		if i > 0 {
			if err := bw.WriteByte('\n'); err != nil {
				return err
			}
		}
		if len(logs) > 1 || lg.Name != DefaultLogName {
			if _, err := bw.WriteString("log " + lg.Name + "\n"); err != nil {
				return err
			}
		}
		depth := 0
		for _, op := range lg.Ops {
			if op.Kind == KindExitScope && depth > 0 {
				depth--
			}
			line := strings.Repeat("  ", depth) + op.String() + "\n"
			if _, err := bw.WriteString(line); err != nil {
				return err
			}
			if op.Kind == KindEnterScope {
				depth++
			}
		}
	}
	return bw.Flush()
}

// FormatString is Format into a string.
func FormatString(logs []Log) string {
	var sb strings.Builder
	_ = Format(&sb, logs)
	return sb.String()
}
