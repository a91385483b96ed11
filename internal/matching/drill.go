package matching

import (
	"slices"
	"unicode/utf8"
)

// Drill tracks an isolated-word attempt: the focused word, live character
// progress and the success of the current attempt. Use NewDrill; the zero
// value has word 0 focused.
type Drill struct {
	focus   int
	target  string
	chars   int
	success int
	finals  []string
	best    float64
}

// NewDrill returns a drill with nothing focused
func NewDrill() Drill {
	return Drill{focus: -1, success: -1}
}

// Focus starts a new attempt on word idx, discarding any previous progress
func (d Drill) Focus(idx int, word string) Drill {
	return Drill{focus: idx, target: word, success: -1}
}

// Focused returns the focused word index
func (d Drill) Focused() (int, bool) {
	return d.focus, d.focus >= 0
}

// CharCount returns how many leading characters of the target were heard
func (d Drill) CharCount() int {
	return d.chars
}

// Success returns the index of the word whose attempt succeeded
func (d Drill) Success() (int, bool) {
	return d.success, d.success >= 0
}

// NearMiss returns the best similarity any final token of the attempt reached
func (d Drill) NearMiss() float64 {
	return d.best
}

// Observe applies a transcript event to the focused word. Character progress
// follows the most recent token, final or interim, and may go down when an
// interim hypothesis is revised. Success requires a final token of the turn
// to match the target. It reports whether this event declared success.
func (d Drill) Observe(ev TokenBatch) (Drill, bool) {
	if d.focus < 0 {
		return d, false
	}

	if latest, ok := ev.latest(); ok {
		d.chars = commonPrefix(latest, d.target)
	}

	if len(ev.Final) > 0 {
		d.finals = append(slices.Clip(d.finals), ev.Final...)
	}
	for _, tok := range d.finals {
		if Matches(tok, d.target) {
			d.chars = utf8.RuneCountInString(d.target)
			d.success = d.focus
			d.focus = -1
			return d, true
		}
		if s := Similarity(tok, d.target); s > d.best {
			d.best = s
		}
	}
	return d, false
}

// Fail ends the attempt without success, clearing focus and progress. The
// near-miss score survives until the next Focus.
func (d Drill) Fail() Drill {
	d.focus = -1
	d.chars = 0
	d.finals = nil
	return d
}

// ClearSuccess drops the success marker once it has been shown
func (d Drill) ClearSuccess() Drill {
	if d.success < 0 {
		return d
	}
	d.success = -1
	if d.focus < 0 {
		d.chars = 0
	}
	return d
}

// TokenBatch is one transcript event reduced to normalized tokens
type TokenBatch struct {
	Final   []string
	Interim []string
}

func (b TokenBatch) latest() (string, bool) {
	if n := len(b.Interim); n > 0 {
		return b.Interim[n-1], true
	}
	if n := len(b.Final); n > 0 {
		return b.Final[n-1], true
	}
	return "", false
}
