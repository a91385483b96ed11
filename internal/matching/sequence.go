package matching

// Sequence tracks which target words have been spoken in order. The zero
// value is a fresh sequence with the cursor on the first word.
//
// Words are only ever matched at the cursor, so the matched set is always the
// prefix [0, cursor).
type Sequence struct {
	cursor int
}

// Advance feeds spoken tokens, in order, against the target words. A token
// that does not match the cursor word is skipped without blocking later
// tokens. It returns the updated sequence and the indices matched by this call.
// The sequence keeps no token history: a batch fed twice may match again when
// the sentence repeats a word, so callers drop redelivered batches by their
// event sequence number.
func (s Sequence) Advance(spoken, targets []string) (Sequence, []int) {
	var matched []int
	for _, tok := range spoken {
		if s.cursor >= len(targets) {
			break
		}
		if Matches(tok, targets[s.cursor]) {
			matched = append(matched, s.cursor)
			s.cursor++
		}
	}
	return s, matched
}

// Cursor returns the index of the next unmatched word
func (s Sequence) Cursor() int {
	return s.cursor
}

// Count returns the number of matched words
func (s Sequence) Count() int {
	return s.cursor
}

// Has reports whether word idx has been matched
func (s Sequence) Has(idx int) bool {
	return idx >= 0 && idx < s.cursor
}

// Matched returns the matched indices in ascending order
func (s Sequence) Matched() []int {
	out := make([]int, s.cursor)
	for i := range out {
		out[i] = i
	}
	return out
}

// Complete reports whether all n words are matched. An empty sentence is
// never complete.
func (s Sequence) Complete(n int) bool {
	return n > 0 && s.cursor == n
}
