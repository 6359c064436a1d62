package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/castmod/castmod/automod/actions"
	"github.com/castmod/castmod/automod/authz"
	"github.com/castmod/castmod/automod/cachestore"
	"github.com/castmod/castmod/automod/chain"
	"github.com/castmod/castmod/automod/countstore"
	"github.com/castmod/castmod/automod/engine"
	"github.com/castmod/castmod/automod/flagstore"
	"github.com/castmod/castmod/automod/modstore"
	"github.com/castmod/castmod/automod/rules"
	"github.com/castmod/castmod/automod/setstore"
	"github.com/castmod/castmod/automod/social"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	slogecho "github.com/samber/slog-echo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"gorm.io/gorm"
)

// store-wide default (and ceiling) for cache entry TTLs; cast decisions are the longest-lived entries
var cacheTTL = engine.CastDedupeTTL

func newMemStores() (countstore.CountStore, cachestore.CacheStore, flagstore.FlagStore) {
	return countstore.NewMemCountStore(), cachestore.NewMemCacheStore(5_000, cacheTTL), flagstore.NewMemFlagStore()
}

type Server struct {
	echo          *echo.Echo
	httpd         *http.Server
	logger        *slog.Logger
	engine        *engine.Engine
	store         *modstore.Store
	authz         authz.Authorizer
	rdb           *redis.Client
	sweepInterval time.Duration

	apiKey    string
	jwtSecret []byte
}

type Config struct {
	Logger          *slog.Logger
	Bind            string
	RedisURL        string
	SetsFileJSON    string
	SocialHost      string
	SocialAPIKey    string
	SocialRateLimit int
	// "chain=url" pairs
	RPCURLs       []string
	WebhookSecret string
	CheckTimeout  time.Duration
	APIKey        string
	JWTSecret     string
	SweepInterval time.Duration
}

func NewServer(db *gorm.DB, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	if config.APIKey == "" || config.JWTSecret == "" {
		return nil, fmt.Errorf("API key and JWT secret are both required")
	}

	store := modstore.New(db)
	if err := store.Migrate(); err != nil {
		return nil, fmt.Errorf("migrating moderation store: %w", err)
	}

	sets := setstore.NewMemSetStore()
	if config.SetsFileJSON != "" {
		if err := sets.LoadFromFileJSON(config.SetsFileJSON); err != nil {
			return nil, fmt.Errorf("initializing in-process setstore: %v", err)
		} else {
			logger.Info("loaded set config from JSON", "path", config.SetsFileJSON)
		}
	}

	var counters countstore.CountStore
	var cache cachestore.CacheStore
	var flags flagstore.FlagStore
	var rdb *redis.Client
	if config.RedisURL != "" {
		// generic client, for health checks
		opt, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis URL: %v", err)
		}
		rdb = redis.NewClient(opt)
		// check redis connection
		_, err = rdb.Ping(context.TODO()).Result()
		if err != nil {
			return nil, fmt.Errorf("redis ping failed: %v", err)
		}

		cnt, err := countstore.NewRedisCountStore(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis countstore: %v", err)
		}
		counters = cnt

		csh, err := cachestore.NewRedisCacheStore(config.RedisURL, cacheTTL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis cachestore: %v", err)
		}
		cache = csh

		flg, err := flagstore.NewRedisFlagStore(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis flagstore: %v", err)
		}
		flags = flg
	} else {
		counters, cache, flags = newMemStores()
	}

	socialClient := social.NewClient(config.SocialHost, config.SocialAPIKey, float64(config.SocialRateLimit))
	socialClient.Logger = logger.With("system", "social")

	deps := rules.Deps{
		Social:        socialClient,
		WebhookSecret: config.WebhookSecret,
	}
	if len(config.RPCURLs) > 0 {
		endpoints, err := chain.ParseEndpoints(config.RPCURLs)
		if err != nil {
			return nil, err
		}
		cc := chain.NewClient(endpoints)
		deps.Tokens = cc
		deps.Chains = cc.Chains()
		logger.Info("configured EVM RPC endpoints", "chains", deps.Chains)
	} else {
		logger.Warn("no EVM RPC endpoints configured; token rules will fail by their failure mode")
	}

	ruleset, err := engine.NewRuleSet(rules.DefaultRules(deps)...)
	if err != nil {
		return nil, err
	}

	az := authz.NewStoreAuthorizer(store)
	machine := actions.Machine{
		Store:     store,
		Moderator: socialClient,
		Authz:     az,
		Cache:     cache,
		Flags:     flags,
		Logger:    logger.With("system", "actions"),
	}

	eng := engine.Engine{
		Logger:       logger,
		Rules:        ruleset,
		Channels:     store,
		Actions:      &machine,
		Counters:     counters,
		Sets:         sets,
		Cache:        cache,
		CheckTimeout: config.CheckTimeout,
	}

	srv := newServer(&eng, store, az, config, logger)
	srv.rdb = rdb
	return srv, nil
}

// Wires the HTTP API around an already-constructed engine
func newServer(eng *engine.Engine, store *modstore.Store, az authz.Authorizer, config Config, logger *slog.Logger) *Server {
	e := echo.New()

	// httpd
	var (
		httpTimeout        = 1 * time.Minute
		httpMaxHeaderBytes = 1 * (1024 * 1024)
	)

	srv := &Server{
		echo:          e,
		logger:        logger,
		engine:        eng,
		store:         store,
		authz:         az,
		sweepInterval: config.SweepInterval,
		apiKey:        config.APIKey,
		jwtSecret:     []byte(config.JWTSecret),
	}
	srv.httpd = &http.Server{
		Handler:        srv,
		Addr:           config.Bind,
		WriteTimeout:   httpTimeout,
		ReadTimeout:    httpTimeout,
		MaxHeaderBytes: httpMaxHeaderBytes,
	}

	e.HideBanner = true
	e.Use(slogecho.New(logger))
	e.Use(otelecho.Middleware("castmod"))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("4M"))
	e.HTTPErrorHandler = srv.errorHandler
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
		HSTSMaxAge:         31536000, // 365 days
	}))

	e.GET("/_health", srv.HandleHealthCheck)

	api := e.Group("/api/v1")
	api.GET("/rules", srv.HandleListRules)

	events := api.Group("/channels/:channel", srv.apiKeyAuth())
	events.POST("/members/evaluate", srv.HandleEvaluateMember)
	events.POST("/casts/evaluate", srv.HandleEvaluateCast)

	mods := api.Group("/channels/:channel", srv.actorAuth)
	mods.POST("/actions", srv.HandleAction)
	mods.GET("/logs", srv.HandleListLogs)
	mods.PUT("/rules", srv.HandlePutRules)
	mods.GET("/stats", srv.HandleChannelStats)
	mods.DELETE("", srv.HandleDeleteChannel)

	return srv
}

func (srv *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	srv.echo.ServeHTTP(rw, req)
}

func (srv *Server) RunAPI() error {
	slog.Info("starting server", "bind", srv.httpd.Addr)
	go func() {
		if err := srv.httpd.ListenAndServe(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				slog.Error("HTTP server shutting down unexpectedly", "err", err)
			}
		}
	}()

	// Wait for a signal to exit.
	slog.Info("registering OS exit signal handler")
	quit := make(chan struct{})
	exitSignals := make(chan os.Signal, 1)
	signal.Notify(exitSignals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-exitSignals
		slog.Info("received OS exit signal", "signal", sig)

		// Shut down the HTTP server
		if err := srv.Shutdown(); err != nil {
			slog.Error("HTTP server shutdown error", "err", err)
		}

		// Trigger the return that causes an exit.
		close(quit)
	}()
	<-quit
	slog.Info("graceful shutdown complete")
	return nil
}

func (srv *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

func (srv *Server) Shutdown() error {
	slog.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.httpd.Shutdown(ctx)
}
