package predicate

// MatchResult is the three-valued outcome of evaluating a Query against a
// value. Rejected degrades AND/OR combinators differently than a plain
// NoMatch would — see the combinator tables below.
type MatchResult int

const (
	NoMatch MatchResult = iota
	Match
	Rejected
)

func (r MatchResult) String() string {
	switch r {
	case Match:
		return "Match"
	case Rejected:
		return "Rejected"
	default:
		return "NoMatch"
	}
}

// IsMatch reports truth only for Match; Rejected and NoMatch are both
// non-selecting for dispatch purposes.
func (r MatchResult) IsMatch() bool { return r == Match }

func negate(r MatchResult) MatchResult {
	switch r {
	case Match:
		return Rejected
	case Rejected:
		return Match
	default: // NoMatch
		return Match
	}
}

// andCombine implements the AND table: any Rejected operand wins; else any
// NoMatch wins; else Match. Equivalent to the spec's left-to-right folding
// since the rule is a strict priority order, not order-dependent.
func andCombine(results []MatchResult) MatchResult {
	sawNoMatch := false
	for _, r := range results {
		switch r {
		case Rejected:
			return Rejected
		case NoMatch:
			sawNoMatch = true
		}
	}
	if sawNoMatch {
		return NoMatch
	}
	return Match
}

// combine2 implements the pairwise OR rule: Match∨_=Match, NoMatch∨x=x,
// Rejected∨Match=Match, Rejected∨_=Rejected.
func combine2(a, b MatchResult) MatchResult {
	switch a {
	case Match:
		return Match
	case NoMatch:
		return b
	default: // Rejected
		if b == Match {
			return Match
		}
		return Rejected
	}
}

// orCombine folds combine2 left-to-right over the operand list.
func orCombine(results []MatchResult) MatchResult {
	if len(results) == 0 {
		return NoMatch
	}
	acc := results[0]
	for _, r := range results[1:] {
		acc = combine2(acc, r)
	}
	return acc
}

// Matches evaluates query against this Tag, dispatching on its kind.
func (t Tag) Matches(q *Query) MatchResult {
	switch t.Kind {
	case TagList:
		return matchList(t.List, q)
	case TagMap:
		return matchMap(t.Map, q)
	default:
		return matchScalar(t.Scalar, q)
	}
}

func matchScalar(value string, q *Query) MatchResult {
	switch q.Kind {
	case KindPattern:
		if q.Pattern == value {
			return Match
		}
		return NoMatch
	case KindWildcard:
		return Match
	case KindFieldPattern:
		return NoMatch
	case KindAnd:
		return andCombine(matchesEach(Tag{Kind: TagScalar, Scalar: value}, q.Clauses))
	case KindOr:
		return orCombine(matchesEach(Tag{Kind: TagScalar, Scalar: value}, q.Clauses))
	case KindNot:
		return negate(matchScalar(value, q.Sub))
	default:
		return NoMatch
	}
}

func matchMap(m map[string]Tag, q *Query) MatchResult {
	self := Tag{Kind: TagMap, Map: m}
	switch q.Kind {
	case KindWildcard:
		return Match
	case KindPattern:
		return NoMatch
	case KindFieldPattern:
		child, ok := m[q.Field]
		if !ok {
			return NoMatch
		}
		return child.Matches(q.Sub)
	case KindAnd:
		return andCombine(matchesEach(self, q.Clauses))
	case KindOr:
		return orCombine(matchesEach(self, q.Clauses))
	case KindNot:
		return negate(matchMap(m, q.Sub))
	default:
		return NoMatch
	}
}

// matchList implements the List matching rules. And/Or/Not recurse at the
// list level (so that, e.g., Not(foo) against a list containing foo
// evaluates to Rejected rather than independently negating each element and
// OR-folding the result back to Match — see §9's "Not(foo) and bar" example).
// Pattern and FieldPattern are leaves: they delegate to each element's own
// Matches and OR-aggregate across elements.
func matchList(items []Tag, q *Query) MatchResult {
	switch q.Kind {
	case KindWildcard:
		return Match
	case KindNot:
		return negate(matchList(items, q.Sub))
	case KindAnd:
		results := make([]MatchResult, len(q.Clauses))
		for i, c := range q.Clauses {
			results[i] = matchList(items, c)
		}
		return andCombine(results)
	case KindOr:
		results := make([]MatchResult, len(q.Clauses))
		for i, c := range q.Clauses {
			results[i] = matchList(items, c)
		}
		return orCombine(results)
	default: // KindPattern, KindFieldPattern
		return elementwiseOr(items, q)
	}
}

// elementwiseOr aggregates item.Matches(q) across items using the OR
// combinator, preserving rejection unless some element plainly matches.
func elementwiseOr(items []Tag, q *Query) MatchResult {
	if len(items) == 0 {
		return NoMatch
	}
	results := make([]MatchResult, len(items))
	for i, item := range items {
		results[i] = item.Matches(q)
	}
	return orCombine(results)
}

func matchesEach(self Tag, clauses []*Query) []MatchResult {
	results := make([]MatchResult, len(clauses))
	for i, c := range clauses {
		results[i] = self.Matches(c)
	}
	return results
}

// ExecutorMeta is the per-executor record: client_id, version, and a
// string-keyed tag map.
type ExecutorMeta struct {
	ClientID string
	Version  string
	Tags     map[string]Tag
}

// Matches evaluates query against this executor's metadata, treating the
// executor as the two-element collection {Scalar(client_id), Map(tags)}.
func (m ExecutorMeta) Matches(q *Query) MatchResult {
	return matchList([]Tag{NewScalarTag(m.ClientID), NewMapTag(m.Tags)}, q)
}
