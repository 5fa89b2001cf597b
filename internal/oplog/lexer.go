package oplog

import (
	"fmt"

	"fortio.org/safecast"
)

// token is a whitespace-delimited word with absolute byte offsets.
type token struct {
	text  string
	start uint32
	end   uint32
}

// splitLine tokenizes one line starting at byte offset base. "->", "{" and "}"
// are split off even when glued to neighbours; '#' starts a comment.
func splitLine(line []byte, base uint32) []token {
	var out []token
	i := 0
	emit := func(from, to int) {
		start, err := safecast.Conv[uint32](from)
		if err != nil {
			panic(fmt.Errorf("line offset overflow: %w", err))
		}
		end, err := safecast.Conv[uint32](to)
		if err != nil {
			panic(fmt.Errorf("line offset overflow: %w", err))
		}
		out = append(out, token{text: string(line[from:to]), start: base + start, end: base + end})
	}
	for i < len(line) {
		c := line[i]
		switch {
		case c == '#':
			return out
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '{' || c == '}':
			emit(i, i+1)
			i++
		case c == '-' && i+1 < len(line) && line[i+1] == '>':
			emit(i, i+2)
			i += 2
		default:
			j := i
			for j < len(line) {
				d := line[j]
				if d == ' ' || d == '\t' || d == '\r' || d == '#' || d == '{' || d == '}' {
					break
				}
				if d == '-' && j+1 < len(line) && line[j+1] == '>' {
					break
				}
				j++
			}
			emit(i, j)
			i = j
		}
	}
	return out
}
