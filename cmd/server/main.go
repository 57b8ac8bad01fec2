package main

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"privylocker/internal/accesssync"
	"privylocker/internal/blob"
	"privylocker/internal/confidential"
	"privylocker/internal/confidential/devengine"
	jwttoken "privylocker/internal/jwt_token"
	"privylocker/internal/locker/cache"
	lockerhandler "privylocker/internal/locker/handler"
	lockermetrics "privylocker/internal/locker/metrics"
	"privylocker/internal/locker/ports"
	"privylocker/internal/locker/service"
	"privylocker/internal/locker/store"
	"privylocker/internal/platform/config"
	"privylocker/internal/platform/httpserver"
	"privylocker/internal/platform/logger"
	httpmetrics "privylocker/internal/platform/metrics"
	"privylocker/internal/platform/postgres"
	redisplatform "privylocker/internal/platform/redis"
	"privylocker/internal/ratelimit"
	"privylocker/pkg/platform/httputil"
	"privylocker/pkg/platform/middleware/auth"
	"privylocker/pkg/platform/middleware/metadata"
	"privylocker/pkg/platform/middleware/request"
	"privylocker/pkg/platform/middleware/requesttime"
)

// main wires dependencies and owns the process lifecycle. Business logic lives
// in the internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

type infra struct {
	db     *sql.DB
	redis  *redisplatform.Client
	kafka  *accesssync.KafkaPublisher
	syncer *accesssync.Syncer
}

func (i *infra) close() {
	if i.kafka != nil {
		i.kafka.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.db != nil {
		_ = i.db.Close()
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	engine, err := buildEngine(cfg.Engine)
	if err != nil {
		return err
	}
	values := confidential.NewTraced(engine)

	deps := &infra{}
	defer deps.close()

	tx, reads, err := buildStores(ctx, cfg, deps, log)
	if err != nil {
		return err
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(lockermetrics.New(reg)),
		service.WithMaxShareTTL(cfg.MaxShareTTL),
	}

	deps.redis, err = redisplatform.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if deps.redis != nil {
		opts = append(opts, service.WithStatusCache(cache.NewRedis(deps.redis.Client), cfg.Redis.StatusTTL))
		log.Info("share status cache enabled", "backend", "redis")
	}

	publisher, err := buildPublisher(ctx, cfg, deps, values, log)
	if err != nil {
		return err
	}
	opts = append(opts, service.WithAccessPublisher(publisher))

	locker, err := service.New(tx, reads, values, opts...)
	if err != nil {
		return err
	}

	var blobs *blob.Handler
	if cfg.Blob.Bucket != "" {
		presigner, err := blob.NewS3Presigner(ctx, cfg.Blob)
		if err != nil {
			return err
		}
		blobSvc, err := blob.NewService(presigner, cfg.Blob.Bucket, cfg.Blob.PresignExpires)
		if err != nil {
			return err
		}
		blobs = blob.NewHandler(blobSvc, log)
	}

	publicLimiter := ratelimit.NewLimiter(cfg.RateLimit.PublicPerSecond, cfg.RateLimit.PublicBurst)
	signerLimiter := ratelimit.NewLimiter(cfg.RateLimit.SignerPerSecond, cfg.RateLimit.SignerBurst)
	limits := routeLimits{
		public: ratelimit.NewMiddleware(publicLimiter, log, ratelimit.WithDisabled(cfg.RateLimit.Disabled)),
		signer: ratelimit.NewMiddleware(signerLimiter, log, ratelimit.WithDisabled(cfg.RateLimit.Disabled)),
	}

	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	router := newRouter(log, reg, deps, limits, lockerhandler.New(locker, log), blobs, jwttoken.NewJWTServiceAdapter(jwtService))
	srv := httpserver.New(cfg.Addr, router, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting privylocker", "addr", cfg.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return publicLimiter.RunSweeper(gctx) })
	g.Go(func() error { return signerLimiter.RunSweeper(gctx) })
	if deps.syncer != nil {
		g.Go(func() error {
			return deps.syncer.Run(gctx)
		})
	}
	return g.Wait()
}

func buildEngine(cfg config.EngineConfig) (*devengine.Engine, error) {
	if cfg.KeyHex == "" {
		return devengine.NewRandom()
	}
	key, err := hex.DecodeString(cfg.KeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode dev engine key: %w", err)
	}
	return devengine.New(key)
}

func buildStores(ctx context.Context, cfg config.Server, deps *infra, log *slog.Logger) (ports.StoreTx, ports.Stores, error) {
	if cfg.Database.URL == "" {
		mem := store.NewInMemory()
		log.Info("using in-memory stores")
		return store.NewShardedTx(mem).WithTimeout(cfg.TxTimeout), mem, nil
	}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	deps.db = db
	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, nil, err
		}
	}
	log.Info("using postgres stores")
	return store.NewPostgresTxRunner(db).WithTimeout(cfg.TxTimeout), store.NewPostgres(db), nil
}

// buildPublisher emits access changes to Kafka when brokers are configured and
// otherwise applies them straight to the in-process engine.
func buildPublisher(ctx context.Context, cfg config.Server, deps *infra, values confidential.Service, log *slog.Logger) (ports.AccessPublisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return accesssync.NewDirectPublisher(values), nil
	}

	pub, err := accesssync.NewKafkaPublisher(cfg.Kafka)
	if err != nil {
		return nil, err
	}
	deps.kafka = pub
	if cfg.Kafka.EnsureTopic {
		if err := pub.EnsureTopic(ctx, 3, 1); err != nil {
			return nil, err
		}
	}
	if cfg.Kafka.RunSyncer {
		deps.syncer, err = accesssync.NewSyncer(cfg.Kafka, values, log)
		if err != nil {
			return nil, err
		}
	}
	log.Info("publishing access changes to kafka", "topic", cfg.Kafka.Topic, "syncer", cfg.Kafka.RunSyncer)
	return pub, nil
}

type routeLimits struct {
	public *ratelimit.Middleware
	signer *ratelimit.Middleware
}

func newRouter(
	log *slog.Logger,
	reg *prometheus.Registry,
	deps *infra,
	limits routeLimits,
	locker *lockerhandler.Handler,
	blobs *blob.Handler,
	validator auth.TokenValidator,
) http.Handler {
	r := chi.NewRouter()
	r.Use(request.Recovery(log))
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(log))
	r.Use(httpmetrics.New(reg).Middleware)

	r.Get("/healthz", healthHandler(deps))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(limits.public.Limit(ratelimit.ByClientIP))
		locker.RegisterPublic(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(validator, log))
		r.Use(limits.signer.Limit(ratelimit.ByPrincipal))
		locker.Register(r)
		if blobs != nil {
			blobs.Register(r)
		}
	})
	return r
}

func healthHandler(deps *infra) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		checks := map[string]string{}
		healthy := true
		if deps.db != nil {
			checks["postgres"] = "ok"
			if err := deps.db.PingContext(ctx); err != nil {
				checks["postgres"] = err.Error()
				healthy = false
			}
		}
		if deps.redis != nil {
			checks["redis"] = "ok"
			if err := deps.redis.Health(ctx); err != nil {
				checks["redis"] = err.Error()
				healthy = false
			}
		}
		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, map[string]any{"healthy": healthy, "checks": checks})
	}
}
