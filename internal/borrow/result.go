package borrow

// Result is the outcome of checking one log.
type Result struct {
	// Violations in detection order. ModeFirst yields at most one.
	Violations []Violation
	// Skipped lists the indices of operations skipped in batch mode.
	Skipped []int
	// Events is populated when Options.Events is set.
	Events []Event
	// Bindings holds a snapshot of every binding in declaration order.
	Bindings []Binding
	Borrows  []BorrowInfo
	// Checked is the number of operations consumed.
	Checked int
}

// Valid reports whether the log satisfied every ownership rule.
func (r *Result) Valid() bool {
	return r == nil || len(r.Violations) == 0
}

// First returns the earliest violation.
func (r *Result) First() (Violation, bool) {
	if r == nil || len(r.Violations) == 0 {
		return Violation{}, false
	}
	return r.Violations[0], true
}

// Binding returns the last snapshot of a binding named name.
func (r *Result) Binding(name string) (Binding, bool) {
	if r == nil {
		return Binding{}, false
	}
	for i := len(r.Bindings) - 1; i >= 0; i-- {
		if r.Bindings[i].Name == name {
			return r.Bindings[i], true
		}
	}
	return Binding{}, false
}

func (t *Tracker) result() *Result {
	res := &Result{
		Violations: t.violations,
		Skipped:    t.skipped,
		Events:     t.events,
		Borrows:    t.borrows.Infos(),
		Checked:    len(t.spans),
	}
	if len(t.bindings) > 1 {
		res.Bindings = make([]Binding, 0, len(t.bindings)-1)
		for _, b := range t.bindings[1:] {
			snap := *b
			snap.State = t.stateOf(b)
			res.Bindings = append(res.Bindings, snap)
		}
	}
	return res
}
