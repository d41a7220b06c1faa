package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketgateway/internal/cache"
	"marketgateway/internal/config"
	"marketgateway/internal/httpx"
	"marketgateway/internal/logging"
	"marketgateway/internal/market"
	"marketgateway/internal/market/alphavantage"
	"marketgateway/internal/market/coingecko"
	"marketgateway/internal/market/polygon"
	"marketgateway/internal/news"
	"marketgateway/internal/news/newsapi"
	"marketgateway/internal/news/store"

	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_FILE")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(logging.ParseLevel(cfg.Server.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	timeout := time.Duration(cfg.Server.RequestTimeoutSec) * time.Second
	httpClient := httpx.New(timeout)

	// Cache store
	var cacheStore cache.Store
	switch cfg.Cache.Backend {
	case "redis":
		rc, err := cache.NewRedis(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			log.Fatalf("redis cache: %v", err)
		}
		defer rc.Close()
		cacheStore = rc
		logger.Info("using redis cache", "addr", cfg.Cache.RedisAddr)
	default:
		mem := cache.NewMemory()
		mem.MaxItems = cfg.Cache.MaxItems
		defer mem.Close()
		cacheStore = mem
	}

	// Article store
	var articleStore store.Store
	if cfg.Database.DSN != "" {
		pg, err := store.NewPostgres(ctx, cfg.Database.DSN)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatalf("postgres: %v", err)
		}
		articleStore = pg
	} else {
		logger.Warn("POSTGRES_DSN not set; articles are kept in memory and lost on restart")
		articleStore = store.NewMemory()
	}

	// Upstream clients
	polygonClient, err := polygon.NewClient(
		cfg.Polygon.APIKey,
		polygon.WithBaseURL(cfg.Polygon.Endpoint),
		polygon.WithHTTPClient(httpClient.HTTP),
		polygon.WithHeader(http.Header{"User-Agent": []string{httpClient.UserAgent}}),
	)
	if err != nil {
		log.Fatalf("polygon client: %v", err)
	}
	geckoClient := coingecko.New(coingecko.Config{
		URL:                  cfg.CoinGecko.Endpoint,
		MaxRequestsPerMinute: cfg.CoinGecko.MaxRequestsPerMinute,
		Burst:                cfg.CoinGecko.Burst,
	}, httpClient)
	avClient := alphavantage.New(alphavantage.Config{
		URL:    cfg.AlphaVantage.Endpoint,
		APIKey: cfg.AlphaVantage.APIKey,
	}, httpClient)
	feedClient := newsapi.New(newsapi.Config{
		URL:      cfg.NewsAPI.Endpoint,
		APIKey:   cfg.NewsAPI.APIKey,
		Country:  cfg.NewsAPI.Country,
		Category: cfg.NewsAPI.Category,
	}, httpClient)

	srvHandlers := &server{
		market: market.NewService(cacheStore, polygonClient, geckoClient, avClient, logger),
		news:   news.NewService(feedClient, articleStore, logger),
		log:    logger,
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           withJSONHeaders(withGzip(recoverPanic(limitBody(srvHandlers.routes())))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
