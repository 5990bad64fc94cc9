// Package config resolves runtime settings from flags, a .env file and
// the process environment, in that order of increasing precedence for
// the env vars.
package config

import (
	"flag"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string
	Env  string

	// DatabaseURL selects the summary store backend: a postgres:// DSN
	// uses Postgres, any other non-empty value is treated as a SQLite
	// file path, empty keeps everything in memory.
	DatabaseURL string

	Model    string
	Pipeline PipelineConfig
	Docs     DocsConfig
}

type PipelineConfig struct {
	MaxTokensPerSegment int
	RespectBoundaries   bool
}

// DocsConfig points document text at an S3-compatible bucket. When
// disabled, documents live in process memory.
type DocsConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8080", "server port")
	flag.Parse()

	if envPort := os.Getenv("PORT"); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	return &Config{
		Port:        *port,
		Env:         env,
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Model:       firstNonEmpty(strings.TrimSpace(os.Getenv("LLM_MODEL")), "gemini-2.0-flash"),
		Pipeline: PipelineConfig{
			MaxTokensPerSegment: intEnv("SEGMENT_MAX_TOKENS", 15000),
			RespectBoundaries:   boolEnv("SEGMENT_RESPECT_BOUNDARIES", true),
		},
		Docs: loadDocsConfig(env),
	}, nil
}

func loadDocsConfig(env string) DocsConfig {
	endpoint := resolveDocsEndpoint(env)
	return DocsConfig{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("DOCS_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("DOCS_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("DOCS_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("DOCS_S3_BUCKET")), "condense-documents"),
		UseSSL:    resolveDocsUseSSL(env),
	}
}

func resolveDocsEndpoint(env string) string {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return strings.TrimSpace(os.Getenv("DOCS_MINIO_ENDPOINT"))
	}
	return strings.TrimSpace(os.Getenv("DOCS_S3_ENDPOINT"))
}

func resolveDocsUseSSL(env string) bool {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return false
	}
	raw := strings.TrimSpace(os.Getenv("DOCS_S3_USE_SSL"))
	if raw == "" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return v
}

func intEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func boolEnv(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
