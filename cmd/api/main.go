package main

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"condense/internal/config"
	"condense/internal/docstore"
	"condense/internal/llm"
	"condense/internal/segment"
	"condense/internal/service"
	"condense/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if cfg.Env == "local" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx := context.Background()

	var st store.Store
	if cfg.DatabaseURL != "" {
		sqlStore, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("open database")
		}
		st = sqlStore
	} else {
		logger.Warn().Msg("DATABASE_URL not set, summaries are kept in memory")
		st = store.NewMemoryStore()
	}
	defer st.Close()

	var docs docstore.Store
	if cfg.Docs.Enabled {
		s3, err := docstore.NewS3Store(docstore.S3Config{
			Endpoint:  cfg.Docs.Endpoint,
			Region:    cfg.Docs.Region,
			AccessKey: cfg.Docs.AccessKey,
			SecretKey: cfg.Docs.SecretKey,
			Bucket:    cfg.Docs.Bucket,
			UseSSL:    cfg.Docs.UseSSL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("init document store")
		}
		docs = s3
	} else {
		docs = docstore.NewMemoryStore()
	}

	var client llm.TextClient
	if os.Getenv("GEMINI_API_KEY") != "" {
		gemini, err := llm.NewGeminiClient(ctx, cfg.Model)
		if err != nil {
			logger.Fatal().Err(err).Msg("init gemini client")
		}
		defer gemini.Close()
		client = gemini
	} else {
		logger.Warn().Msg("GEMINI_API_KEY not set, using fake LLM client")
		client = llm.NewFakeClient()
	}

	opts := segment.Options{
		MaxTokensPerSegment: cfg.Pipeline.MaxTokensPerSegment,
		RespectBoundaries:   cfg.Pipeline.RespectBoundaries,
	}
	svc := service.New(docs, st, client, opts, logger)

	router := buildRouter(newAPIServer(svc, logger))
	handler := corsMiddleware(router)

	logger.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("starting API server")
	if err := http.ListenAndServe(cfg.Port, h2c.NewHandler(handler, &http2.Server{})); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Vary", "Origin")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, PATCH, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")
		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}
