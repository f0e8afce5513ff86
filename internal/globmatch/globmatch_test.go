package globmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchWildcardMiddle(t *testing.T) {
	p, err := Compile("*docs*")
	require.NoError(t, err)

	assert.True(t, p.Match("/guide/docs/x"))
	assert.False(t, p.Match("/guide/foo"))
}

func TestMatchIsCaseInsensitive(t *testing.T) {
	p, err := Compile("*DOCS*")
	require.NoError(t, err)

	assert.True(t, p.Match("/Guide/Docs/x"))
}

func TestMatchAnchoredWithoutWildcard(t *testing.T) {
	p, err := Compile("/guide/docs")
	require.NoError(t, err)

	assert.True(t, p.Match("/guide/docs"))
	assert.False(t, p.Match("/guide/docs/x"))
}

func TestMatchPrefixWildcard(t *testing.T) {
	p, err := Compile("/guide/*")
	require.NoError(t, err)

	assert.True(t, p.Match("/guide/docs"))
	assert.False(t, p.Match("/other/docs"))
}

func TestMatchSuffixWildcard(t *testing.T) {
	p, err := Compile("*.md")
	require.NoError(t, err)

	assert.True(t, p.Match("/guide/intro.md"))
	assert.False(t, p.Match("/guide/intro.rst"))
}

func TestMatchAnyEmptyPatternsAlwaysMatches(t *testing.T) {
	assert.True(t, MatchAny(nil, "/anything"))
}

func TestMatchAnyRequiresOneMatch(t *testing.T) {
	patterns, err := CompileAll([]string{"*api*", "*internal*"})
	require.NoError(t, err)

	assert.True(t, MatchAny(patterns, "/v1/api/users"))
	assert.True(t, MatchAny(patterns, "/internal/debug"))
	assert.False(t, MatchAny(patterns, "/public/docs"))
}

func TestCompileAllCompilesEveryPattern(t *testing.T) {
	patterns, err := CompileAll([]string{"*a*", "*b*", "*c*"})
	require.NoError(t, err)
	assert.Len(t, patterns, 3)
}
