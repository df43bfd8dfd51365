package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/LukasIV/github-commit-collector/internal/models"
	"github.com/LukasIV/github-commit-collector/pkg/utils"
)

// Config holds the full configuration surface of the collector
type Config struct {
	GitHubToken  string
	Repositories []models.RepoRef

	MaxCommitsPerRepo int
	BatchConcurrency  int
	FetchFileContent  bool

	// Output location: a local directory, or a MinIO/S3 endpoint when
	// S3Endpoint is set.
	OutputDir   string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool

	InlineContentMaxBytes    int
	MaxRetries               int
	RateLimitWaitCeiling     time.Duration
	AuthorMergeLowConfidence bool

	Port string
}

// Load reads configuration from environment variables with defaults
func Load() (*Config, error) {
	maxCommits, err := strconv.Atoi(getEnv("MAX_COMMITS_PER_REPO", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_COMMITS_PER_REPO: %w", err)
	}

	concurrency, err := strconv.Atoi(getEnv("BATCH_CONCURRENCY", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid BATCH_CONCURRENCY: %w", err)
	}

	inlineMax, err := strconv.Atoi(getEnv("INLINE_CONTENT_MAX_BYTES", "65536"))
	if err != nil {
		return nil, fmt.Errorf("invalid INLINE_CONTENT_MAX_BYTES: %w", err)
	}

	maxRetries, err := strconv.Atoi(getEnv("MAX_RETRIES", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_RETRIES: %w", err)
	}

	waitCeiling, err := time.ParseDuration(getEnv("RATE_LIMIT_WAIT_CEILING", "15m"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_WAIT_CEILING: %w", err)
	}

	repos, err := parseRepositories(getEnv("TARGET_REPOSITORIES", ""))
	if err != nil {
		return nil, err
	}

	return &Config{
		GitHubToken:              getEnv("GITHUB_TOKEN", ""),
		Repositories:             repos,
		MaxCommitsPerRepo:        maxCommits,
		BatchConcurrency:         concurrency,
		FetchFileContent:         getEnvBool("FETCH_FILE_CONTENT", true),
		OutputDir:                getEnv("OUTPUT_DIR", "./output"),
		S3Endpoint:               getEnv("S3_ENDPOINT", ""),
		S3AccessKey:              getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:              getEnv("S3_SECRET_KEY", ""),
		S3Bucket:                 getEnv("S3_BUCKET", "commit-data"),
		S3UseSSL:                 getEnvBool("S3_USE_SSL", false),
		InlineContentMaxBytes:    inlineMax,
		MaxRetries:               maxRetries,
		RateLimitWaitCeiling:     waitCeiling,
		AuthorMergeLowConfidence: getEnvBool("AUTHOR_MERGE_LOW_CONFIDENCE", false),
		Port:                     getEnv("PORT", "8080"),
	}, nil
}

// Validate checks the minimum configuration required to collect
func (c *Config) Validate() error {
	if c.GitHubToken == "" {
		return fmt.Errorf("GITHUB_TOKEN is required")
	}
	if len(c.Repositories) == 0 {
		return fmt.Errorf("TARGET_REPOSITORIES must contain at least one owner/name entry")
	}
	if c.S3Endpoint == "" && c.OutputDir == "" {
		return fmt.Errorf("either OUTPUT_DIR or S3_ENDPOINT must be set")
	}
	if c.S3Endpoint != "" && (c.S3AccessKey == "" || c.S3SecretKey == "") {
		return fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY are required when S3_ENDPOINT is set")
	}
	return nil
}

// UseObjectStore reports whether output goes to MinIO rather than a local dir
func (c *Config) UseObjectStore() bool {
	return c.S3Endpoint != ""
}

func parseRepositories(raw string) ([]models.RepoRef, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var refs []models.RepoRef
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		owner, name, err := utils.ParseRepoRef(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid TARGET_REPOSITORIES entry %q: %w", entry, err)
		}
		refs = append(refs, models.RepoRef{Owner: owner, Name: name})
	}
	return refs, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
