// Package predicate implements the tag-based selection-expression grammar
// used to pick executors for a dispatch (env:prod and role:web and !canary).
package predicate

import (
	"fmt"
	"strings"
)

// Kind discriminates the variants of a Query AST node.
type Kind int

const (
	KindPattern Kind = iota
	KindFieldPattern
	KindWildcard
	KindAnd
	KindOr
	KindNot
)

// Query is an immutable selection-expression AST node. It is a tagged union:
// only the fields relevant to Kind are populated.
type Query struct {
	Kind    Kind
	Pattern string   // KindPattern
	Field   string   // KindFieldPattern
	Sub     *Query   // KindFieldPattern, KindNot
	Clauses []*Query // KindAnd, KindOr
}

func newPattern(p string) *Query       { return &Query{Kind: KindPattern, Pattern: p} }
func newWildcard() *Query              { return &Query{Kind: KindWildcard} }
func newFieldPattern(f string, q *Query) *Query {
	return &Query{Kind: KindFieldPattern, Field: f, Sub: q}
}
func newNot(q *Query) *Query { return &Query{Kind: KindNot, Sub: q} }

// newAnd flattens a singleton sequence to its child, per the grammar's
// "a singleton sequence collapses to its child" rule.
func newAnd(clauses []*Query) *Query {
	if len(clauses) == 1 {
		return clauses[0]
	}
	return &Query{Kind: KindAnd, Clauses: clauses}
}

func newOr(clauses []*Query) *Query {
	if len(clauses) == 1 {
		return clauses[0]
	}
	return &Query{Kind: KindOr, Clauses: clauses}
}

// String renders the canonical pretty-printed form of a Query. Parsing this
// output must reproduce an equivalent AST (§8 parser idempotence).
func (q *Query) String() string {
	if q == nil {
		return ""
	}
	switch q.Kind {
	case KindWildcard:
		return "*"
	case KindPattern:
		if needsQuoting(q.Pattern) {
			return `"` + q.Pattern + `"`
		}
		return q.Pattern
	case KindFieldPattern:
		return q.Field + ":" + wrapFactor(q.Sub)
	case KindNot:
		return "!" + wrapFactor(q.Sub)
	case KindAnd:
		return joinClauses(q.Clauses, " and ", precedenceAnd)
	case KindOr:
		return joinClauses(q.Clauses, " or ", precedenceOr)
	default:
		return ""
	}
}

const (
	precedenceOr = iota
	precedenceAnd
	precedenceNot
	precedenceAtom
)

func precedenceOf(q *Query) int {
	switch q.Kind {
	case KindAnd:
		return precedenceAnd
	case KindOr:
		return precedenceOr
	case KindNot:
		return precedenceNot
	default:
		return precedenceAtom
	}
}

// wrapFactor renders q as a "factor": parenthesized if its top-level
// precedence is looser than what a factor position allows. A factor is a
// query or a parenthesized expression, so a Not is parenthesized too.
func wrapFactor(q *Query) string {
	if precedenceOf(q) < precedenceAtom {
		return "(" + q.String() + ")"
	}
	return q.String()
}

func joinClauses(clauses []*Query, sep string, minPrecedence int) string {
	parts := make([]string, len(clauses))
	for i, c := range clauses {
		// A nested group of the same operator keeps its parentheses, since the
		// parser does not flatten a parenthesized group into its parent.
		if precedenceOf(c) <= minPrecedence {
			parts[i] = "(" + c.String() + ")"
		} else {
			parts[i] = c.String()
		}
	}
	return strings.Join(parts, sep)
}

func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	switch strings.ToLower(s) {
	case "and", "or", "not":
		return true
	}
	for _, r := range s {
		if !isWordRune(r) {
			return true
		}
	}
	return false
}

// Equal reports whether two Query ASTs are structurally equivalent.
func (q *Query) Equal(other *Query) bool {
	if q == nil || other == nil {
		return q == other
	}
	if q.Kind != other.Kind {
		return false
	}
	switch q.Kind {
	case KindPattern:
		return q.Pattern == other.Pattern
	case KindWildcard:
		return true
	case KindFieldPattern:
		return q.Field == other.Field && q.Sub.Equal(other.Sub)
	case KindNot:
		return q.Sub.Equal(other.Sub)
	case KindAnd, KindOr:
		if len(q.Clauses) != len(other.Clauses) {
			return false
		}
		for i := range q.Clauses {
			if !q.Clauses[i].Equal(other.Clauses[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (q *Query) GoString() string {
	return fmt.Sprintf("predicate.Query(%s)", q.String())
}
