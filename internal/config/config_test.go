package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesDocumentedDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 5, cfg.Crawl.MaxConcurrentCrawls)
	assert.Equal(t, 20, cfg.Crawl.MaxConcurrentSessions)
	assert.Equal(t, 5, cfg.Annotator.NumParallel)
	assert.Equal(t, 5, cfg.Annotator.BatchSize)
	assert.Equal(t, 120, cfg.RateLimit.DefaultPerMinute)
	assert.True(t, cfg.Upload.Enabled)
	assert.False(t, cfg.Annotator.Enabled)
}

func TestLoadWithoutPathAppliesDefaults(t *testing.T) {
	cfg := Load("")
	assert.Equal(t, "codedox", cfg.Database.Name)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("CRAWL_MAX_CONCURRENT_CRAWLS", "10")
	t.Setenv("CODE_LLM_API_KEY", "sk-test")
	t.Setenv("MCP_AUTH_TOKENS", "tok-a, tok-b ,")

	cfg := Load("")

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, 10, cfg.Crawl.MaxConcurrentCrawls)
	assert.True(t, cfg.Annotator.Enabled, "setting CODE_LLM_API_KEY should implicitly enable the annotator")
	assert.Equal(t, []string{"tok-a", "tok-b"}, cfg.Auth.Tokens)
}

func TestAllTokensFoldsSingleTokenAndList(t *testing.T) {
	a := AuthConfig{Token: "solo", Tokens: []string{"a", "b"}}
	assert.Equal(t, []string{"solo", "a", "b"}, a.AllTokens())
}

func TestAllTokensIgnoresBlankSingleToken(t *testing.T) {
	a := AuthConfig{Token: "  ", Tokens: []string{"a"}}
	assert.Equal(t, []string{"a"}, a.AllTokens())
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{Host: "localhost", Port: 5432, Name: "codedox", User: "codedox", Password: "secret"}
	assert.Equal(t, "host=localhost port=5432 dbname=codedox user=codedox password=secret sslmode=disable", d.DSN())
}

func TestValidateRejectsAnnotatorEnabledWithoutAPIKey(t *testing.T) {
	cfg := Default()
	cfg.Annotator.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apiKey")
}

func TestValidateRejectsAnnotatorEnabledWithoutModel(t *testing.T) {
	cfg := Default()
	cfg.Annotator.Enabled = true
	cfg.Annotator.APIKey = "sk-test"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extractionModel")
}

func TestValidateRejectsAuthEnabledWithoutTokens(t *testing.T) {
	cfg := Default()
	cfg.Auth.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MCP_AUTH_TOKEN")
}

func TestValidateRejectsMaxConcurrentCrawlsOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.Crawl.MaxConcurrentCrawls = 0
	require.Error(t, cfg.Validate())

	cfg.Crawl.MaxConcurrentCrawls = 101
	require.Error(t, cfg.Validate())
}

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidateNilConfig(t *testing.T) {
	var cfg *Config
	require.Error(t, cfg.Validate())
}

func TestSplitAndTrimDropsEmptySegments(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a ,, b ,"))
}

