package predicate_test

import (
	"testing"

	"github.com/funtonic/taskserver/internal/predicate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// siderantMeta is the concrete executor used by every table-driven case
// below: client_id "siderant", tags env:prod, roles:[foo,bar],
// os:{type:Linux, version:18.04}.
func siderantMeta() predicate.ExecutorMeta {
	return predicate.ExecutorMeta{
		ClientID: "siderant",
		Tags: map[string]predicate.Tag{
			"env":   predicate.NewScalarTag("prod"),
			"roles": predicate.StringListTag("foo", "bar"),
			"os": predicate.NewMapTag(map[string]predicate.Tag{
				"type":    predicate.NewScalarTag("Linux"),
				"version": predicate.NewScalarTag("18.04"),
			}),
		},
	}
}

func TestMatchesSiderantTable(t *testing.T) {
	cases := []struct {
		query    string
		expected predicate.MatchResult
	}{
		{"*", predicate.Match},
		{"siderant", predicate.Match},
		{"prod", predicate.NoMatch},
		{"env:prod", predicate.Match},
		{"env:dev", predicate.NoMatch},
		{"roles:foo", predicate.Match},
		{"os:type:Linux", predicate.Match},
		{"os:type:Windows", predicate.NoMatch},
		{"env:prod and siderant", predicate.Match},
		{"env:prod and !siderant", predicate.Rejected},
	}

	meta := siderantMeta()
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			q, err := predicate.Parse(tc.query)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, meta.Matches(q))
		})
	}
}

// Rejected must win over a Match sibling inside AND, else Not(foo) and bar
// over a list containing both foo and bar would wrongly collapse to Match.
func TestRejectedDominatesAnd(t *testing.T) {
	meta := siderantMeta()

	q, err := predicate.Parse("!siderant and env:prod")
	require.NoError(t, err)
	assert.Equal(t, predicate.Rejected, meta.Matches(q))
}

// A NoMatch operand must not mask a Rejected sibling produced by negation.
func TestAndCombineRejectedBeatsNoMatch(t *testing.T) {
	meta := siderantMeta()
	query, err := predicate.Parse("env:dev and !siderant and env:prod")
	require.NoError(t, err)
	assert.Equal(t, predicate.Rejected, meta.Matches(query))
}

func TestOrCombineTable(t *testing.T) {
	meta := siderantMeta()

	q, err := predicate.Parse("env:dev or env:prod")
	require.NoError(t, err)
	assert.Equal(t, predicate.Match, meta.Matches(q))

	q, err = predicate.Parse("env:dev or other")
	require.NoError(t, err)
	assert.Equal(t, predicate.NoMatch, meta.Matches(q))
}

func TestMatchResultIsMatch(t *testing.T) {
	assert.True(t, predicate.Match.IsMatch())
	assert.False(t, predicate.NoMatch.IsMatch())
	assert.False(t, predicate.Rejected.IsMatch())
}

func TestMatchResultString(t *testing.T) {
	assert.Equal(t, "Match", predicate.Match.String())
	assert.Equal(t, "NoMatch", predicate.NoMatch.String())
	assert.Equal(t, "Rejected", predicate.Rejected.String())
}

// roles is a list; FieldPattern against it must OR across elements rather
// than requiring every element to match.
func TestListFieldMatchesAnyElement(t *testing.T) {
	meta := siderantMeta()

	q, err := predicate.Parse("roles:bar")
	require.NoError(t, err)
	assert.Equal(t, predicate.Match, meta.Matches(q))

	q, err = predicate.Parse("roles:baz")
	require.NoError(t, err)
	assert.Equal(t, predicate.NoMatch, meta.Matches(q))
}

func TestWildcardAlwaysMatchesRegardlessOfShape(t *testing.T) {
	q, err := predicate.Parse("*")
	require.NoError(t, err)

	assert.Equal(t, predicate.Match, predicate.NewScalarTag("anything").Matches(q))
	assert.Equal(t, predicate.Match, predicate.StringListTag().Matches(q))
	assert.Equal(t, predicate.Match, predicate.NewMapTag(nil).Matches(q))
}
