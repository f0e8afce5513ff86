package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFiltersCompilesPatterns(t *testing.T) {
	f, err := NewFilters("example.com", []string{"*docs*"}, []string{"*private*"}, false, "codedox")
	require.NoError(t, err)
	assert.False(t, f.includeAny)
	assert.Len(t, f.include, 1)
	assert.Len(t, f.exclude, 1)
}

func TestNewFiltersRejectsBadPattern(t *testing.T) {
	_, err := NewFilters("example.com", []string{"["}, nil, false, "")
	assert.Error(t, err)
}

func TestAdmitRejectsOffDomain(t *testing.T) {
	f, err := NewFilters("", nil, nil, false, "")
	require.NoError(t, err)
	assert.True(t, f.Admit("example.com", "https://example.com/docs/page"))
	assert.False(t, f.Admit("example.com", "https://other.com/docs/page"))
}

func TestAdmitAllowsSubdomain(t *testing.T) {
	f, err := NewFilters("", nil, nil, false, "")
	require.NoError(t, err)
	assert.True(t, f.Admit("example.com", "https://docs.example.com/guide"))
}

func TestAdmitHonorsDomainFilterOverSeedHost(t *testing.T) {
	f, err := NewFilters("other.com", nil, nil, false, "")
	require.NoError(t, err)
	assert.False(t, f.Admit("example.com", "https://example.com/docs/page"))
	assert.True(t, f.Admit("example.com", "https://other.com/docs/page"))
}

func TestAdmitRequiresIncludeMatch(t *testing.T) {
	f, err := NewFilters("", []string{"*docs*"}, nil, false, "")
	require.NoError(t, err)
	assert.True(t, f.Admit("example.com", "https://example.com/docs/page"))
	assert.False(t, f.Admit("example.com", "https://example.com/blog/page"))
}

func TestAdmitAppliesExcludeEvenIfIncluded(t *testing.T) {
	f, err := NewFilters("", []string{"*docs*"}, []string{"*docs/internal*"}, false, "")
	require.NoError(t, err)
	assert.True(t, f.Admit("example.com", "https://example.com/docs/page"))
	assert.False(t, f.Admit("example.com", "https://example.com/docs/internal/page"))
}

func TestAdmitRejectsInvalidURL(t *testing.T) {
	f, err := NewFilters("", nil, nil, false, "")
	require.NoError(t, err)
	assert.False(t, f.Admit("example.com", "://not-a-url"))
}

func TestAdmitSkipsRobotsWhenNotRespected(t *testing.T) {
	f, err := NewFilters("", nil, nil, false, "")
	require.NoError(t, err)
	// robotsData is never populated since respectRobots is false, so
	// Admit must not attempt to consult it.
	assert.True(t, f.Admit("example.com", "https://example.com/anything"))
}

func TestNormalizeURLStripsFragmentAndTrailingSlash(t *testing.T) {
	assert.Equal(t, "https://example.com/docs", normalizeURL("https://example.com/docs/#section"))
	assert.Equal(t, "https://example.com/docs", normalizeURL("https://example.com/docs/"))
}

func TestNormalizeURLReturnsRawOnParseFailure(t *testing.T) {
	assert.Equal(t, "://bad", normalizeURL("://bad"))
}
