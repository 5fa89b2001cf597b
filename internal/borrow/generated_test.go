package borrow

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"borrowck/internal/oplog"
)

// sharedLogGen builds random logs out of declarations, shared borrows, uses
// and balanced scopes. Every name is fresh and every borrow gets a fresh
// holder in the innermost scope, so no operation can conflict.
type sharedLogGen struct {
	rng    *rand.Rand
	ops    []oplog.Op
	frames [][]string // plain bindings visible per scope
	next   int
}

func newSharedLogGen(seed uint64) *sharedLogGen {
	return &sharedLogGen{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), frames: [][]string{nil}}
}

func (g *sharedLogGen) fresh(prefix string) string {
	g.next++
	return fmt.Sprintf("%s%d", prefix, g.next)
}

func (g *sharedLogGen) visible() []string {
	var out []string
	for _, fr := range g.frames {
		out = append(out, fr...)
	}
	return out
}

// steps appends n random operations and closes the scopes it opened, so the
// depth after the call equals the depth before it.
func (g *sharedLogGen) steps(n int) {
	base := len(g.frames)
	for range n {
		names := g.visible()
		switch k := g.rng.IntN(5); {
		case k == 0 || len(names) == 0:
			name := g.fresh("v")
			g.ops = append(g.ops, oplog.Declare(name, g.rng.IntN(2) == 0))
			top := len(g.frames) - 1
			g.frames[top] = append(g.frames[top], name)
		case k == 1:
			target := names[g.rng.IntN(len(names))]
			holder := g.fresh("r")
			g.ops = append(g.ops, oplog.BorrowAs(target, oplog.Shared, holder), oplog.Use(holder))
		case k == 2:
			g.ops = append(g.ops, oplog.Use(names[g.rng.IntN(len(names))]))
		case k == 3:
			g.ops = append(g.ops, oplog.EnterScope())
			g.frames = append(g.frames, nil)
		default:
			if len(g.frames) > base {
				g.ops = append(g.ops, oplog.ExitScope())
				g.frames = g.frames[:len(g.frames)-1]
			}
		}
	}
	for len(g.frames) > base {
		g.ops = append(g.ops, oplog.ExitScope())
		g.frames = g.frames[:len(g.frames)-1]
	}
}

func TestGeneratedSharedOnlyLogsAreValid(t *testing.T) {
	for seed := range uint64(200) {
		g := newSharedLogGen(seed)
		g.steps(40)
		for _, mode := range []Mode{ModeFirst, ModeBatch} {
			res := Check(g.ops, Options{Mode: mode})
			if !res.Valid() {
				t.Fatalf("seed %d, mode %s: %v\nops: %v", seed, mode, violationsOf(res), g.ops)
			}
		}
	}
}

func TestGeneratedMoveThenUse(t *testing.T) {
	for seed := range uint64(200) {
		g := newSharedLogGen(seed)
		g.steps(g.rng.IntN(20))
		// "a" is declared outside the generator's pool, so nothing borrows,
		// assigns or redeclares it.
		a := g.fresh("a")
		g.ops = append(g.ops, oplog.Declare(a, g.rng.IntN(2) == 0))
		g.steps(g.rng.IntN(20))
		g.ops = append(g.ops, oplog.Move(a, g.fresh("b")))
		g.steps(g.rng.IntN(20))
		useAt := len(g.ops)
		g.ops = append(g.ops, oplog.Use(a))

		v, ok := Check(g.ops, Options{}).First()
		if !ok || v.Kind != UseAfterMove || v.Index != useAt {
			t.Fatalf("seed %d: got %v (ok=%v), want Violation(UseAfterMove, %d)\nops: %v", seed, v, ok, useAt, g.ops)
		}
	}
}
