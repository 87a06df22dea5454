package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"corpora"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"corpora"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"redis:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`

	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`
	OllamaHost   string `envconfig:"OLLAMA_HOST" default:"http://ollama:11434"`

	// ParserURL points at the document conversion service used for binary
	// formats (pdf, docx). Plain text and markdown are handled inline.
	ParserURL string `envconfig:"PARSER_URL" default:"http://docparser:8000"`

	// DocsAPIBase is the root of the paginated document provider API.
	DocsAPIBase string `envconfig:"DOCS_API_BASE" default:"https://api.docs.example.com"`

	StagingDir    string `envconfig:"STAGING_DIR" default:"./staging"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// TokenCipherKey is a 64-char hex string (32 bytes) used to seal stored
	// provider credentials.
	TokenCipherKey string `envconfig:"TOKEN_CIPHER_KEY"`

	CrawlUserAgent   string `envconfig:"CRAWL_USER_AGENT" default:"corpora-ingest/1.0"`
	RateLimitCeiling int    `envconfig:"RATE_LIMIT_CEILING" default:"5"`
	RateLimitWindow  int    `envconfig:"RATE_LIMIT_WINDOW_SECONDS" default:"10"`

	// ForceLocalEmbeddings routes every document to the local tier regardless
	// of volume or priority.
	ForceLocalEmbeddings bool `envconfig:"FORCE_LOCAL_EMBEDDINGS" default:"false"`

	ServerPort      int   `envconfig:"SERVER_PORT" default:"8081"`
	MaxUploadSizeMB int64 `envconfig:"MAX_UPLOAD_SIZE_MB" default:"50"`

	RefreshScanSpec string `envconfig:"REFRESH_SCAN_SPEC" default:"@every 10m"`
}

func Load() (*Config, error) {
	// Env vars may be set in the shell; a missing .env is not an error.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("%w: REDIS_ADDR", ErrMissingRequired)
	}
	return nil
}
