package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/emanueledeamicis/OpenShort/gee"
	"github.com/emanueledeamicis/OpenShort/gee/middleware"
	"github.com/emanueledeamicis/OpenShort/internal/app/shortener"
	"github.com/emanueledeamicis/OpenShort/internal/app/shortener/account"
	"github.com/emanueledeamicis/OpenShort/internal/app/shortener/bootstrap"
	"github.com/emanueledeamicis/OpenShort/internal/app/shortener/cache"
	"github.com/emanueledeamicis/OpenShort/internal/app/shortener/httpapi"
	"github.com/emanueledeamicis/OpenShort/internal/platform/auth"
	platformcache "github.com/emanueledeamicis/OpenShort/internal/platform/cache"
	"github.com/emanueledeamicis/OpenShort/internal/platform/config"
	"github.com/emanueledeamicis/OpenShort/internal/platform/httpmiddleware"
	"github.com/emanueledeamicis/OpenShort/internal/platform/httpserver"
	"github.com/emanueledeamicis/OpenShort/internal/platform/metrics"
	"github.com/emanueledeamicis/OpenShort/internal/platform/ratelimit"
	"github.com/emanueledeamicis/OpenShort/internal/platform/trace"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cfg := config.Load()

	var h slog.Handler
	if cfg.LogFormat == "text" {
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})
	} else {
		h = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})
	}
	slog.SetDefault(slog.New(h).With("service", cfg.ServiceName))

	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	// DB
	store, err := openBackend(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer store.close()

	// Redis: L2 缓存、限流、点击流共用；连不上时降级
	var redisClient *redis.Client
	if cfg.CacheEnabled || cfg.RateLimitEnabled || cfg.ClickSink == "redis" {
		rdb, err := platformcache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			if cfg.ClickSink == "redis" {
				log.Fatal(err)
			}
			slog.Warn("redis unavailable, running without it", "err", err)
		} else {
			redisClient = rdb
			defer redisClient.Close()
		}
	}

	// 限流器：Redis 滑动窗口，Redis 不可用时退回进程内限流
	var limiter ratelimit.Allower
	switch {
	case !cfg.RateLimitEnabled:
		slog.Warn("RateLimit disabled by config", "RATELIMIT_ENABLED", false)
	case redisClient != nil:
		limiter = ratelimit.NewLimiter(redisClient)
	default:
		slog.Warn("using in-process rate limiter", "global_rps", cfg.RateLimitFallbackRPS)
		limiter = ratelimit.NewLocalLimiter(cfg.RateLimitFallbackRPS)
	}

	// 短链缓存
	var (
		lookup shortener.LinkLookup = store.links
		inv    shortener.Invalidator
	)
	if cfg.CacheEnabled {
		local, err := cache.NewLocalCache(100_000, cfg.CacheL1TTL) // 10万条目
		if err != nil {
			log.Fatal(err)
		}
		linkCache := cache.NewLinkCache(store.links, redisClient, local, cfg.CacheL2TTL)
		defer linkCache.Close()
		lookup, inv = linkCache, linkCache
	}

	// 布隆过滤器：预期 100 万短码，1% 误判率
	slugFilter := cache.NewSlugFilter(1_000_000, 0.01)
	warmCtx, warmCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := slugFilter.Warm(warmCtx, store.slugs); err != nil {
		slog.Warn("slug filter warm-up failed", "err", err)
	}
	warmCancel()

	alphabet := shortener.AlphabetLower
	if cfg.SlugAlphabet == "mixed" {
		alphabet = shortener.AlphabetMixed
	}
	alloc, err := shortener.NewSlugAllocator(cfg.SlugLength, shortener.WithAlphabet(alphabet))
	if err != nil {
		log.Fatal(err)
	}

	domains := shortener.NewDomainAuthority(store.domains, shortener.WithDomainInvalidator(inv))
	registry := shortener.NewRegistry(store.links, domains, alloc,
		shortener.WithMaxRetries(cfg.SlugMaxRetries),
		shortener.WithSlugFilter(slugFilter),
		shortener.WithInvalidator(inv),
	)

	clicks, err := newClickPipeline(cfg, store.visits, redisClient)
	if err != nil {
		log.Fatal(err)
	}
	resolverOpts := []shortener.ResolverOption{shortener.WithResolveTimeout(cfg.ResolveTimeout)}
	if cfg.ResolveRequireActiveDomain {
		resolverOpts = append(resolverOpts, shortener.WithActiveDomainCheck(domains))
	}
	resolver := shortener.NewResolver(lookup, clicks.tracker, resolverOpts...)

	// JWT
	ts, jwtErr := auth.NewHS256Service(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if jwtErr != nil {
		log.Fatal(jwtErr)
	}
	if cfg.JWTSecret == "change-me" {
		slog.Warn("JWT_SECRET is the default; set it before exposing the service")
	}
	accounts := account.NewService(store.users, store.keys, ts, cfg.APIKeySecret)

	seedCtx, seedCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := bootstrap.Seed(seedCtx, domains, accounts, bootstrap.Options{
		Domain:        cfg.SeedDomain,
		AdminEmail:    cfg.AdminEmail,
		AdminPassword: cfg.AdminPassword,
	}); err != nil {
		seedCancel()
		log.Fatal(err)
	}
	seedCancel()

	metrics.Init()

	if cfg.TracingEnabled {
		shutdown, err := trace.InitTrace(cfg.OtlpGrpcEndpoint, cfg.OtlpServiceName)
		if err != nil {
			slog.Error("Trace init failed", "err", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					slog.Error(err.Error())
				}
			}()
		}
	} else {
		slog.Warn("Tracing disabled by config", "TRACING_ENABLED", false)
	}

	// 对外业务
	r := gee.New()
	r.Use(gee.Recovery(), middleware.ReqID(), middleware.AccessLog(), httpmiddleware.Metrics(), httpmiddleware.TraceName())

	r.GET("/healthz", func(ctx *gee.Context) {
		ctx.String(http.StatusOK, "ok")
	})
	httpapi.RegisterAPIRoutes(r.Group("/api"), httpapi.Deps{
		Links:             registry,
		Domains:           domains,
		Visits:            store.visits,
		Accounts:          accounts,
		Tokens:            ts,
		Limiter:           limiter,
		AllowRegistration: cfg.AllowRegistration,
	})
	httpapi.RegisterPublicRoutes(r, resolver, limiter)
	slog.Info("routes registered", "count", len(r.Routes()))

	publicHandler := http.Handler(r)
	if len(cfg.CORSAllowedOrigins) > 0 {
		publicHandler = handlers.CORS(
			handlers.AllowedOrigins(cfg.CORSAllowedOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Authorization", "Content-Type", httpmiddleware.APIKeyHeader, "X-Request-ID"}),
			handlers.ExposedHeaders([]string{"X-Request-ID", "Retry-After"}),
		)(publicHandler)
	}
	if cfg.TracingEnabled {
		publicHandler = otelhttp.NewHandler(publicHandler, "http")
	}
	publicSrv := httpserver.New(cfg, publicHandler)

	// 仅本机/内网
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	// 数据库连接状态检测
	adminMux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		dbCtx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := store.ping(dbCtx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("DB Ping Err"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("DB ready"))
	})

	adminMux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"service_name": cfg.ServiceName,
			"version":      version,
			"commit":       commit,
			"build_time":   buildTime,
			"go_version":   runtime.Version(),
			"db_driver":    cfg.DBDriver,
			"click_sink":   cfg.ClickSink,
		})
	})

	if cfg.PprofEnabled {
		adminMux.HandleFunc("/debug/pprof/", pprof.Index)
		adminMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		adminMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		adminMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		adminMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	// 推荐：127.0.0.1:6060
	adminSrv := httpserver.NewAdmin(cfg, adminMux)

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 后台 consumer 在 HTTP 停止之后才退出，保证最后一批点击能落库
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	clicks.start(workerCtx, &workers)
	defer func() {
		clicks.close()
		stopWorkers()
		workers.Wait()
		slog.Info("click pipeline stopped")
	}()

	if err := httpserver.Serve(stopCtx, cfg.ShutdownTimeout, publicSrv, adminSrv); err != nil {
		slog.Error("server exited", "err", err)
	}
}
