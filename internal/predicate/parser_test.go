package predicate_test

import (
	"testing"

	"github.com/funtonic/taskserver/internal/predicate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWildcard(t *testing.T) {
	q, err := predicate.Parse("*")
	require.NoError(t, err)
	assert.Equal(t, "*", q.String())
}

func TestParseBareWord(t *testing.T) {
	q, err := predicate.Parse("siderant")
	require.NoError(t, err)
	assert.Equal(t, predicate.KindPattern, q.Kind)
	assert.Equal(t, "siderant", q.Pattern)
}

func TestParseFieldPattern(t *testing.T) {
	q, err := predicate.Parse("env:prod")
	require.NoError(t, err)
	assert.Equal(t, predicate.KindFieldPattern, q.Kind)
	assert.Equal(t, "env", q.Field)
	assert.Equal(t, "prod", q.Sub.Pattern)
}

func TestParseNestedFieldPattern(t *testing.T) {
	q, err := predicate.Parse("os:type:Linux")
	require.NoError(t, err)
	assert.Equal(t, "os", q.Field)
	assert.Equal(t, "type", q.Sub.Field)
	assert.Equal(t, "Linux", q.Sub.Sub.Pattern)
}

// "and" binds tighter than "or": "a or b and c" parses as "a or (b and c)".
func TestAndBindsTighterThanOr(t *testing.T) {
	q, err := predicate.Parse("a or b and c")
	require.NoError(t, err)
	require.Equal(t, predicate.KindOr, q.Kind)
	require.Len(t, q.Clauses, 2)
	assert.Equal(t, predicate.KindPattern, q.Clauses[0].Kind)
	assert.Equal(t, predicate.KindAnd, q.Clauses[1].Kind)
}

func TestParenthesesOverridePrecedence(t *testing.T) {
	q, err := predicate.Parse("(a or b) and c")
	require.NoError(t, err)
	require.Equal(t, predicate.KindAnd, q.Kind)
	require.Len(t, q.Clauses, 2)
	assert.Equal(t, predicate.KindOr, q.Clauses[0].Kind)
}

func TestNotBindsToSingleFactor(t *testing.T) {
	q, err := predicate.Parse("!a and b")
	require.NoError(t, err)
	require.Equal(t, predicate.KindAnd, q.Kind)
	assert.Equal(t, predicate.KindNot, q.Clauses[0].Kind)
	assert.Equal(t, "a", q.Clauses[0].Sub.Pattern)
}

func TestSingletonAndOrCollapseToChild(t *testing.T) {
	q, err := predicate.Parse("(siderant)")
	require.NoError(t, err)
	assert.Equal(t, predicate.KindPattern, q.Kind)
}

func TestCommaIsOrSynonym(t *testing.T) {
	comma, err := predicate.Parse("a, b")
	require.NoError(t, err)
	or, err := predicate.Parse("a or b")
	require.NoError(t, err)
	assert.True(t, comma.Equal(or))
}

func TestQuotedPatternAllowsArbitraryText(t *testing.T) {
	q, err := predicate.Parse(`"has space"`)
	require.NoError(t, err)
	assert.Equal(t, predicate.KindPattern, q.Kind)
	assert.Equal(t, "has space", q.Pattern)
}

func TestUnclosedParenIsParseError(t *testing.T) {
	_, err := predicate.Parse("(a or b")
	require.Error(t, err)
	var parseErr *predicate.ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestTrailingGarbageIsUnrecognizedInput(t *testing.T) {
	_, err := predicate.Parse("a)")
	require.Error(t, err)
	var unrecognized *predicate.UnrecognizedInputError
	assert.ErrorAs(t, err, &unrecognized)
}

// Pretty-printing and re-parsing a Query must yield a structurally
// equivalent AST (§8 parser idempotence).
func TestParseStringIdempotence(t *testing.T) {
	exprs := []string{
		"*",
		"siderant",
		"env:prod",
		"os:type:Linux",
		"env:prod and siderant",
		"env:prod and !siderant",
		"a or b and c",
		"!(a or b)",
		`"quoted value"`,
	}

	for _, expr := range exprs {
		t.Run(expr, func(t *testing.T) {
			q1, err := predicate.Parse(expr)
			require.NoError(t, err)

			rendered := q1.String()
			q2, err := predicate.Parse(rendered)
			require.NoError(t, err)

			assert.True(t, q1.Equal(q2), "Parse(%q).String() = %q did not reparse equivalently", expr, rendered)
		})
	}
}
