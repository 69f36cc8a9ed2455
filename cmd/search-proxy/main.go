// Command search-proxy serves Flickr keyword search over HTTP for browser
// and mobile shells that should not hold the API key themselves.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/flickr-search/internal/config"
	"github.com/Sternrassler/flickr-search/pkg/cache"
	"github.com/Sternrassler/flickr-search/pkg/flickr"
	"github.com/Sternrassler/flickr-search/pkg/logging"
	"github.com/Sternrassler/flickr-search/pkg/metrics"
	"github.com/Sternrassler/flickr-search/pkg/photo"
	"github.com/Sternrassler/flickr-search/pkg/ratelimit"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: error loading .env file: %v\n", err)
	}

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: os.Stderr,
	})
	logger := logging.NewLogger("search-proxy")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

// run wires the client from cfg and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	var redisClient *redis.Client
	if cfg.Cache.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", cfg.Cache.RedisAddr, err)
		}
		logger.Info().Str("addr", cfg.Cache.RedisAddr).Msg("Connected to Redis")
	}

	client, err := newClient(cfg, redisClient, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	handler := cors.New(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(newRouter(client, redisClient, cfg.Search.PerPage, logger))

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("Starting search proxy")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down search proxy")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newClient builds the Flickr client with its cache and quota tracker.
func newClient(cfg *config.Config, redisClient *redis.Client, logger zerolog.Logger) (*flickr.Client, error) {
	cacheManager, err := cache.NewManager(redisClient, cache.Config{
		MemorySize: cfg.Cache.MemorySize,
		TTL:        cfg.Cache.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	quota := ratelimit.NewTracker(redisClient, ratelimit.Config{
		HourlyQuota:       cfg.Flickr.HourlyQuota,
		RequestsPerSecond: cfg.Flickr.RequestsPerSecond,
		Burst:             int(cfg.Flickr.RequestsPerSecond) + 1,
	}, logging.NewLogger("quota"))

	clientCfg := flickr.DefaultConfig(cfg.Flickr.APIKey)
	clientCfg.Endpoint = cfg.Flickr.Endpoint
	clientCfg.Timeout = cfg.Flickr.Timeout
	clientCfg.Retry.MaxRetries = cfg.Flickr.MaxRetries
	clientCfg.Retry.InitialBackoff = cfg.Flickr.InitialBackoff
	clientCfg.Cache = cacheManager
	clientCfg.Quota = quota
	clientCfg.Logger = &logger

	client, err := flickr.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create flickr client: %w", err)
	}
	return client, nil
}

func newRouter(client *flickr.Client, redisClient *redis.Client, perPage int, logger zerolog.Logger) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/ready", readyHandler(redisClient)).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/v1/photos/search", searchHandler(client, perPage, logger)).Methods(http.MethodGet)
	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports 503 while a configured Redis is unreachable.
func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

type searchResponse struct {
	Items    []photo.Item `json:"items"`
	Page     int          `json:"page"`
	Pages    int          `json:"pages"`
	Total    int          `json:"total"`
	HasMore  bool         `json:"has_more"`
	NextPage int          `json:"next_page"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func searchHandler(client *flickr.Client, perPage int, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		text := strings.TrimSpace(q.Get("text"))
		if text == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "text is required"})
			return
		}

		page := 1
		if raw := q.Get("page"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "page must be a positive integer"})
				return
			}
			page = n
		}

		result, err := client.Search(r.Context(), flickr.Request{Text: text, PerPage: perPage, Page: page})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Warn().Err(err).Str("text", text).Int("page", page).Msg("Search failed")
			status := http.StatusBadGateway
			if errors.Is(err, flickr.ErrQuotaExceeded) || errors.Is(err, flickr.ErrCircuitOpen) {
				status = http.StatusServiceUnavailable
			}
			writeJSON(w, status, errorResponse{Error: flickr.UserMessage(err)})
			return
		}

		writeJSON(w, http.StatusOK, searchResponse{
			Items:    photo.AdaptAll(result.Photos, nil),
			Page:     result.Page,
			Pages:    result.Pages,
			Total:    result.Total,
			HasMore:  result.HasMore(),
			NextPage: result.Page + 1,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
