package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	CORSOrigins     []string `yaml:"corsOrigins"`
	MaxRequestBytes int      `yaml:"maxRequestBytes"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		d.Host, d.Port, d.Name, d.User, d.Password)
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

// CrawlConfig controls the Crawl Pipeline's concurrency, limits and fetch
// behavior. Defaults follow the Open Question decision recorded in
// DESIGN.md: max_concurrent_crawls=5 (cap 100), max_concurrent_sessions=20.
type CrawlConfig struct {
	MaxConcurrentPages      int    `yaml:"maxConcurrentPages"`
	MaxConcurrentSessions   int    `yaml:"maxConcurrentSessions"`
	MaxConcurrentCrawls     int    `yaml:"maxConcurrentCrawls"`
	ContentSizeLimit        int    `yaml:"contentSizeLimit"`
	RespectRobotsTxt        bool   `yaml:"respectRobotsTxt"`
	UserAgent               string `yaml:"userAgent"`
	TaskCancellationTimeout int    `yaml:"taskCancellationTimeoutSeconds"`
	HeartbeatStallThreshold int    `yaml:"heartbeatStallThresholdSeconds"`
	MaxDepthDefault         int    `yaml:"maxDepthDefault"`
	MaxPagesDefault         int    `yaml:"maxPagesDefault"`
	FetchTimeoutSeconds     int    `yaml:"fetchTimeoutSeconds"`
	PollIntervalMs          int    `yaml:"pollIntervalMs"`
	UseHeadlessBrowser      bool   `yaml:"useHeadlessBrowser"`
}

// AnnotatorConfig configures the external OpenAI-compatible chat endpoint
// used to enrich extracted code blocks.
type AnnotatorConfig struct {
	Enabled         bool   `yaml:"enabled"`
	APIKey          string `yaml:"apiKey"`
	BaseURL         string `yaml:"baseURL"`
	ExtractionModel string `yaml:"extractionModel"`
	NumParallel     int    `yaml:"numParallel"`
	BatchSize       int    `yaml:"batchSize"`
	TimeoutSeconds  int    `yaml:"timeoutSeconds"`
	MaxRetries      int    `yaml:"maxRetries"`
}

// AuthConfig configures bearer-token authentication shared by the MCP and
// HTTP surfaces. There is no per-user/tenant model; tokens are a flat list.
type AuthConfig struct {
	Enabled bool     `yaml:"enabled"`
	Token   string   `yaml:"token"`
	Tokens  []string `yaml:"tokens"`
}

// AllTokens returns the configured token set, folding the single Token
// field and the Tokens list together.
func (a AuthConfig) AllTokens() []string {
	out := make([]string, 0, len(a.Tokens)+1)
	if strings.TrimSpace(a.Token) != "" {
		out = append(out, a.Token)
	}
	out = append(out, a.Tokens...)
	return out
}

type RateLimitConfig struct {
	DefaultPerMinute int `yaml:"defaultPerMinute"`
}

type CodeConfig struct {
	MaxCodeBlockSize int `yaml:"maxCodeBlockSize"`
	MinCodeLines     int `yaml:"minCodeLines"`
	MaxContextLength int `yaml:"maxContextLength"`
}

type SearchConfig struct {
	MaxResults           int     `yaml:"maxResults"`
	DefaultMaxResults    int     `yaml:"defaultMaxResults"`
	MinScore             float64 `yaml:"minScore"`
	SnippetPreviewLength int     `yaml:"snippetPreviewLength"`
	BoostRecentDays      int     `yaml:"boostRecentDays"`
	CharsPerToken        float64 `yaml:"charsPerToken"`
	ChunkOverlapFraction  float64 `yaml:"chunkOverlapFraction"`
}

type UploadConfig struct {
	Enabled bool `yaml:"enabled"`
}

type RetentionConfig struct {
	Enabled                bool `yaml:"enabled"`
	CleanupIntervalMinutes int  `yaml:"cleanupIntervalMinutes"`
	JobDays                int  `yaml:"jobDays"`
	DocumentDays           int  `yaml:"documentDays"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Crawl     CrawlConfig     `yaml:"crawl"`
	Annotator AnnotatorConfig `yaml:"annotator"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Code      CodeConfig      `yaml:"code"`
	Search    SearchConfig    `yaml:"search"`
	Upload    UploadConfig    `yaml:"upload"`
	Retention RetentionConfig `yaml:"retention"`
	LogLevel  string          `yaml:"logLevel"`
	LogFile   string          `yaml:"logFile"`
}

// Load reads the YAML config at path, applies defaults, then lets
// environment variables named in the external-interfaces contract
// override individual fields.
func Load(path string) *Config {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			log.Fatalf("failed to open config file: %v", err)
		}
		defer f.Close()

		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			log.Fatalf("failed to decode config: %v", err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080, MaxRequestBytes: 10 << 20},
		Database: DatabaseConfig{
			Host: "localhost", Port: 5432, Name: "codedox", User: "codedox",
		},
		Crawl: CrawlConfig{
			MaxConcurrentPages:      5,
			MaxConcurrentSessions:   20,
			MaxConcurrentCrawls:     5,
			ContentSizeLimit:        5 << 20,
			RespectRobotsTxt:        true,
			UserAgent:               "CodeDox/1.0 (+https://codedox.dev)",
			TaskCancellationTimeout: 5,
			HeartbeatStallThreshold: 60,
			MaxDepthDefault:         2,
			MaxPagesDefault:         200,
			FetchTimeoutSeconds:     30,
			PollIntervalMs:          2000,
			UseHeadlessBrowser:      true,
		},
		Annotator: AnnotatorConfig{
			Enabled:        false,
			NumParallel:    5,
			BatchSize:      5,
			TimeoutSeconds: 30,
			MaxRetries:     3,
		},
		RateLimit: RateLimitConfig{DefaultPerMinute: 120},
		Code: CodeConfig{
			MaxCodeBlockSize: 64 * 1024,
			MinCodeLines:     1,
			MaxContextLength: 2000,
		},
		Search: SearchConfig{
			MaxResults:           100,
			DefaultMaxResults:    10,
			MinScore:             0,
			SnippetPreviewLength: 200,
			BoostRecentDays:      30,
			CharsPerToken:        4.0,
			ChunkOverlapFraction: 0.10,
		},
		Upload:    UploadConfig{Enabled: true},
		Retention: RetentionConfig{Enabled: false, CleanupIntervalMinutes: 60, JobDays: 30, DocumentDays: 0},
		LogLevel:  "info",
	}
}

func applyEnvOverrides(cfg *Config) {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	in := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	fl := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = n
			}
		}
	}
	bl := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("DB_HOST", &cfg.Database.Host)
	in("DB_PORT", &cfg.Database.Port)
	str("DB_NAME", &cfg.Database.Name)
	str("DB_USER", &cfg.Database.User)
	str("DB_PASSWORD", &cfg.Database.Password)

	str("CODE_LLM_API_KEY", &cfg.Annotator.APIKey)
	str("CODE_LLM_BASE_URL", &cfg.Annotator.BaseURL)
	str("CODE_LLM_EXTRACTION_MODEL", &cfg.Annotator.ExtractionModel)
	in("CODE_LLM_NUM_PARALLEL", &cfg.Annotator.NumParallel)
	if cfg.Annotator.APIKey != "" {
		cfg.Annotator.Enabled = true
	}

	in("CRAWL_MAX_CONCURRENT_PAGES", &cfg.Crawl.MaxConcurrentPages)
	in("CRAWL_MAX_CONCURRENT_SESSIONS", &cfg.Crawl.MaxConcurrentSessions)
	in("CRAWL_MAX_CONCURRENT_CRAWLS", &cfg.Crawl.MaxConcurrentCrawls)
	in("CRAWL_CONTENT_SIZE_LIMIT", &cfg.Crawl.ContentSizeLimit)
	bl("CRAWL_RESPECT_ROBOTS_TXT", &cfg.Crawl.RespectRobotsTxt)
	str("CRAWL_USER_AGENT", &cfg.Crawl.UserAgent)
	in("CRAWL_TASK_CANCELLATION_TIMEOUT", &cfg.Crawl.TaskCancellationTimeout)
	in("CRAWL_HEARTBEAT_STALL_THRESHOLD", &cfg.Crawl.HeartbeatStallThreshold)

	bl("MCP_AUTH_ENABLED", &cfg.Auth.Enabled)
	str("MCP_AUTH_TOKEN", &cfg.Auth.Token)
	if v, ok := os.LookupEnv("MCP_AUTH_TOKENS"); ok && v != "" {
		cfg.Auth.Tokens = splitAndTrim(v)
	}

	str("API_HOST", &cfg.Server.Host)
	in("API_PORT", &cfg.Server.Port)
	if v, ok := os.LookupEnv("API_CORS_ORIGINS"); ok && v != "" {
		cfg.Server.CORSOrigins = splitAndTrim(v)
	}
	in("API_MAX_REQUEST_SIZE", &cfg.Server.MaxRequestBytes)

	in("CODE_MAX_CODE_BLOCK_SIZE", &cfg.Code.MaxCodeBlockSize)
	in("CODE_MIN_CODE_LINES", &cfg.Code.MinCodeLines)
	in("CODE_MAX_CONTEXT_LENGTH", &cfg.Code.MaxContextLength)

	in("SEARCH_MAX_RESULTS", &cfg.Search.MaxResults)
	in("SEARCH_DEFAULT_MAX_RESULTS", &cfg.Search.DefaultMaxResults)
	fl("SEARCH_MIN_SCORE", &cfg.Search.MinScore)
	in("SEARCH_SNIPPET_PREVIEW_LENGTH", &cfg.Search.SnippetPreviewLength)
	in("SEARCH_BOOST_RECENT_DAYS", &cfg.Search.BoostRecentDays)
	fl("CODE_CHARS_PER_TOKEN", &cfg.Search.CharsPerToken)

	bl("UPLOAD_ENABLED", &cfg.Upload.Enabled)

	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FILE", &cfg.LogFile)

	str("REDIS_URL", &cfg.Redis.URL)
}

func splitAndTrim(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate performs fail-fast sanity checks so that obviously
// misconfigured deployments fail at startup rather than mid-crawl.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if cfg.Annotator.Enabled {
		if strings.TrimSpace(cfg.Annotator.APIKey) == "" {
			return errors.New("annotator is enabled but CODE_LLM_API_KEY / annotator.apiKey is not set")
		}
		if strings.TrimSpace(cfg.Annotator.ExtractionModel) == "" {
			return errors.New("annotator is enabled but extractionModel is not set")
		}
	}

	if cfg.Auth.Enabled && len(cfg.Auth.AllTokens()) == 0 {
		return errors.New("auth is enabled but no MCP_AUTH_TOKEN(S) configured")
	}

	if cfg.Crawl.MaxConcurrentCrawls < 1 || cfg.Crawl.MaxConcurrentCrawls > 100 {
		return fmt.Errorf("crawl.maxConcurrentCrawls must be within [1,100], got %d", cfg.Crawl.MaxConcurrentCrawls)
	}

	return nil
}
