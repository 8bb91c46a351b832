// Command avamon-server starts the Avamon game economy gRPC and HTTP servers.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/and161185/avamon/internal/api"
	"github.com/and161185/avamon/internal/catalog"
	"github.com/and161185/avamon/internal/config"
	"github.com/and161185/avamon/internal/engine"
	"github.com/and161185/avamon/internal/ledger"
	"github.com/and161185/avamon/internal/limiter"
	"github.com/and161185/avamon/internal/migrate"
	"github.com/and161185/avamon/internal/repository"
	"github.com/and161185/avamon/internal/repository/memory"
	"github.com/and161185/avamon/internal/repository/postgres"
	"github.com/and161185/avamon/internal/rng"
	"github.com/and161185/avamon/internal/schedule"
	grpcserver "github.com/and161185/avamon/internal/server/grpc"
	"github.com/and161185/avamon/internal/server/httpapi"
	"github.com/and161185/avamon/internal/service"
	"github.com/and161185/avamon/internal/telemetry"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func newLogger(dev bool) *zap.Logger {
	var (
		log *zap.Logger
		err error
	)
	if dev {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// main parses configuration, wires storage and services, and serves until SIGINT/SIGTERM.
func main() {
	cfg, err := config.Load(os.Args[1:])
	logger := newLogger(cfg.Dev)
	defer func() { _ = logger.Sync() }()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.GRPCAddr),
		zap.String("httpAddr", cfg.HTTPAddr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// storage bundles the selected backend.
type storage struct {
	ledger  repository.LedgerStore
	catalog repository.CatalogStore
	events  repository.EventReader
	limiter limiter.Limiter
	ready   httpapi.ReadyFunc
	close   func()
}

func openStorage(ctx context.Context, cfg config.Config, log *zap.Logger) (*storage, error) {
	if cfg.DSN == "" {
		log.Warn("no DSN configured, using in-memory storage")
		st := memory.New()
		return &storage{
			ledger: st, catalog: st, events: st,
			limiter: limiter.NewMemory(cfg.LoginPolicy()),
			close:   func() {},
		}, nil
	}

	if err := migrate.Up(ctx, cfg.DSN, log); err != nil {
		return nil, err
	}
	db, err := postgres.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	led := postgres.NewLedgerRepo(db)
	return &storage{
		ledger:  led,
		catalog: postgres.NewCatalogRepo(db),
		events:  led,
		limiter: limiter.NewPG(db.Pool, cfg.LoginPolicy()),
		ready:   db.Ping,
		close:   db.Close,
	}, nil
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, "avamon", version, cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	// Catalog
	cat := catalog.New(st.catalog, log)
	if err := cat.Load(ctx); err != nil {
		return err
	}
	seed, err := catalog.LoadSeed(cfg.SeedFile)
	if err != nil {
		return err
	}
	if err := cat.Seed(ctx, seed); err != nil {
		return err
	}

	// Ledger and engine
	anchor, err := cfg.Anchor()
	if err != nil {
		return err
	}
	led := ledger.New(st.ledger, schedule.SystemClock{}, anchor, log)
	if err := led.Load(ctx); err != nil {
		return err
	}
	provider := rng.NewLocal(log, cfg.RNGDelay)
	defer provider.Close()
	eng := engine.New(cat, led, provider, log)
	provider.Bind(eng)
	if n, err := eng.Recover(ctx); err != nil {
		log.Error("recover pending randomness", zap.Error(err))
	} else if n > 0 {
		log.Info("recovered pending randomness", zap.Int("count", n))
	}

	// Services
	authSvc := service.NewAuthService([]byte(cfg.JWTKey), cfg.AccessTTL, cfg.ChallengeTTL, st.limiter, cfg.AdminAddresses())
	gameSvc := service.NewGameService(eng, st.events)
	adminSvc := service.NewAdminService(eng, log)

	// gRPC server with interceptors
	idem, err := grpcserver.NewIdempotency(cfg.IdempotencyCache)
	if err != nil {
		return err
	}
	opts := []grpc.ServerOption{
		grpcserver.Interceptors(log, authSvc, idem),
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	}
	if cfg.TLS() {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return err
		}
		opts = append(opts, grpc.Creds(creds))
	} else {
		log.Warn("TLS disabled, serving plaintext gRPC")
	}
	gs := grpc.NewServer(opts...)
	api.RegisterGameServer(gs, grpcserver.New(authSvc, gameSvc, adminSvc))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	var httpSrv *http.Server
	if cfg.HTTPAddr != "" {
		httpSrv = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           httpapi.NewRouter(gameSvc, st.ready, log),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("grpc listening", zap.String("addr", cfg.GRPCAddr), zap.Bool("tls", cfg.TLS()))
		return gs.Serve(lis)
	})
	if httpSrv != nil {
		g.Go(func() error {
			log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
			if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		resubmitLoop(gctx, eng, cfg.ResubmitEvery, cfg.StaleAfter, log)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		hs.Shutdown()
		if httpSrv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(sctx)
		}
		// graceful shutdown
		done := make(chan struct{})
		go func() {
			gs.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			gs.Stop()
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// resubmitLoop periodically re-requests randomness that has been pending longer than staleAfter.
func resubmitLoop(ctx context.Context, eng *engine.Engine, every, staleAfter time.Duration, log *zap.Logger) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := eng.ResubmitStale(ctx, staleAfter); err != nil {
				log.Warn("resubmit stale randomness", zap.Error(err))
			}
		}
	}
}
