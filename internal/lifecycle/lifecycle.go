// Package lifecycle wires configuration into a running application:
// storage, the short-code generator, the membership filter pair, the
// auth and URL services, and the HTTP listener, run and shut down
// together as an oklog/run group.
package lifecycle

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	gosundheit "github.com/AppsFlyer/go-sundheit"
	"github.com/AppsFlyer/go-sundheit/checks"
	gosundheithttp "github.com/AppsFlyer/go-sundheit/http"
	"github.com/google/uuid"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/shortlyhq/shortly/internal/authsvc"
	"github.com/shortlyhq/shortly/internal/bloomfilter"
	"github.com/shortlyhq/shortly/internal/config"
	"github.com/shortlyhq/shortly/internal/httpapi"
	"github.com/shortlyhq/shortly/internal/log"
	"github.com/shortlyhq/shortly/internal/mailer"
	"github.com/shortlyhq/shortly/internal/ratelimit"
	"github.com/shortlyhq/shortly/internal/shortcode"
	"github.com/shortlyhq/shortly/internal/storage"
	"github.com/shortlyhq/shortly/internal/storage/sqlstore"
	"github.com/shortlyhq/shortly/internal/urlsvc"
)

const (
	rebuildPageSize  = 50_000
	shortToLongName  = "short_to_long"
	longToShortName  = "long_to_short"
	rateLimitEvictTTL = 10 * time.Minute
)

// App is the fully wired application, ready to Run.
type App struct {
	cfg     *config.Config
	log     log.Logger
	store   *sqlstore.Store
	url     *urlsvc.Service
	auth    *authsvc.Service
	limiter *ratelimit.Limiter
	s2l     *bloomfilter.Filter
	l2s     *bloomfilter.Filter
}

// Build opens storage, rebuilds or loads the membership filters, and
// constructs every service. It does not start listening.
func Build(cfg *config.Config, logrusLog logrus.FieldLogger) (*App, error) {
	logger := log.NewLogrus(logrusLog)

	store, err := sqlstore.Open(sqlstore.Config{
		Driver:          cfg.Database.Type,
		DSN:             dsn(cfg),
		MaxOpenConns:    cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MinConnections,
		ConnMaxLifetime: time.Hour,
	}, logrusLog)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	gen, err := buildGenerator(cfg.Shortener)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("building short code generator: %w", err)
	}

	s2l, l2s, err := loadOrRebuildFilters(context.Background(), store, cfg.BloomSnapshot, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("initializing membership filters: %w", err)
	}

	urlSvc := urlsvc.New(store, gen, s2l, l2s, cfg.Shortener.Alphabet, cfg.Application.BaseURL, cfg.Shortener.Length, logger)

	mail := mailer.NewResend(os.Getenv("RESEND_API_KEY"), os.Getenv("RESEND_FROM_ADDRESS"))
	authSvc := authsvc.New(store, store, mail, authsvc.Config{
		JWTSecret:            cfg.Auth.JWTSecret,
		Pepper:               cfg.Auth.Pepper,
		AccessTokenTTL:       cfg.Auth.AccessTokenTTL,
		RefreshTokenTTL:      cfg.Auth.RefreshTokenTTL,
		RefreshGraceWindow:   cfg.Auth.RefreshGraceWindow,
		ChallengeCooldown:    cfg.Auth.ChallengeCooldown,
		ChallengeTTL:         cfg.Auth.ChallengeTTL,
		ChallengeMaxAttempts: cfg.Auth.ChallengeMaxAttempts,
		MaxFailedPerIP:       cfg.Auth.Lockout.MaxFailedPerIP,
		MaxFailedPerUser:     cfg.Auth.Lockout.MaxFailedPerUser,
		LockoutWindow:        cfg.Auth.Lockout.Window,
	}, logger)

	limiter := ratelimit.New(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize, rateLimitEvictTTL)

	return &App{
		cfg:     cfg,
		log:     logger,
		store:   store,
		url:     urlSvc,
		auth:    authSvc,
		limiter: limiter,
		s2l:     s2l,
		l2s:     l2s,
	}, nil
}

func apiKeyUUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, fmt.Errorf("empty")
	}
	return uuid.Parse(raw)
}

func dsn(cfg *config.Config) string {
	if cfg.Database.Type == "postgres" {
		return cfg.Database.URL
	}
	return cfg.Database.DatabasePath
}

func buildGenerator(s config.Shortener) (shortcode.Generator, error) {
	if s.Engine.Kind == "sequence" {
		return shortcode.NewSequence(s.Alphabet, s.Length, s.Engine.Sequence.BlockSize, s.Engine.Sequence.PersistInterval, s.Engine.Sequence.StatePath)
	}
	return shortcode.NewRandom(s.Alphabet, s.Length), nil
}

// loadOrRebuildFilters loads both snapshots from storage if persistence
// is enabled and a snapshot exists; otherwise it pages through every
// stored code (§4.2) to rebuild both filters from scratch.
func loadOrRebuildFilters(ctx context.Context, store *sqlstore.Store, cfg config.BloomSnapshot, logger log.Logger) (*bloomfilter.Filter, *bloomfilter.Filter, error) {
	if cfg.EnablePersistence {
		s2lData, errS2L := store.LoadBloomSnapshot(ctx, shortToLongName)
		l2sData, errL2S := store.LoadBloomSnapshot(ctx, longToShortName)
		if errS2L == nil && errL2S == nil {
			s2l, err := bloomfilter.Load(s2lData)
			if err != nil {
				return nil, nil, err
			}
			l2s, err := bloomfilter.Load(l2sData)
			if err != nil {
				return nil, nil, err
			}
			logger.Info("loaded bloom filter pair from snapshot")
			return s2l, l2s, nil
		}
	}

	s2l := bloomfilter.NewForCapacity(cfg.ExpectedItems, cfg.FalsePositiveRate)
	l2s := bloomfilter.NewForCapacity(cfg.ExpectedItems, cfg.FalsePositiveRate)

	offset := 0
	total := 0
	for {
		codes, err := store.ListShortCodes(ctx, offset, rebuildPageSize)
		if err != nil {
			return nil, nil, fmt.Errorf("listing codes for filter rebuild: %w", err)
		}
		if len(codes) == 0 {
			break
		}
		for _, code := range codes {
			s2l.Insert([]byte(code))
			rec, err := store.GetURL(ctx, code)
			if err != nil {
				continue
			}
			l2s.Insert([]byte(rec.URL))
		}
		total += len(codes)
		offset += rebuildPageSize
		if len(codes) < rebuildPageSize {
			break
		}
	}
	logger.Infof("rebuilt bloom filter pair from %d stored codes", total)
	return s2l, l2s, nil
}

// snapshotBoth writes both filters to their named blobs; errors are
// logged, not fatal, since a missed snapshot only costs a wider rebuild
// scan on next startup.
func (a *App) snapshotBoth(ctx context.Context) {
	if !a.cfg.BloomSnapshot.EnablePersistence {
		return
	}
	if err := a.store.SaveBloomSnapshot(ctx, shortToLongName, a.s2l.Snapshot()); err != nil {
		a.log.Errorf("saving short_to_long snapshot: %v", err)
	}
	if err := a.store.SaveBloomSnapshot(ctx, longToShortName, a.l2s.Snapshot()); err != nil {
		a.log.Errorf("saving long_to_short snapshot: %v", err)
	}
}

// buildTelemetryServer exposes /metrics and /healthz on the optional
// telemetry listener, mirroring the health-checker + Prometheus registry
// split dex keeps separate from its public OIDC listener.
func (a *App) buildTelemetryServer() *http.Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	healthChecker := gosundheit.New()
	healthChecker.RegisterCheck(&gosundheit.Config{
		Check: &checks.CustomCheck{
			CheckName: "storage",
			CheckFunc: func(ctx context.Context) (interface{}, error) {
				return nil, a.store.Ping(ctx)
			},
		},
		ExecutionPeriod:  15 * time.Second,
		InitiallyPassing: true,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", gosundheithttp.HandleHealthJSON(healthChecker))
	mux.HandleFunc("/healthz/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})

	return &http.Server{Addr: a.cfg.Application.TelemetryAddr, Handler: mux}
}

// Run starts the HTTP listener, the periodic snapshot task, and the
// rate-limit bucket evictor, blocking until shutdown. SIGINT/SIGTERM or
// any actor's failure triggers a graceful stop of every actor.
func (a *App) Run() error {
	defer a.store.Close()

	addr := fmt.Sprintf("%s:%d", a.cfg.Application.Host, a.cfg.Application.Port)
	apiKey, err := apiKeyUUID(a.cfg.Application.APIKey)
	if err != nil {
		return fmt.Errorf("invalid application.api_key: %w", err)
	}

	handler := httpapi.NewRouter(httpapi.Config{
		APIKey:        apiKey,
		SecureCookies: a.cfg.Auth.SecureCookies,
	}, a.url, a.auth, a.limiter, os.Stdout)

	srv := &http.Server{Addr: addr, Handler: handler}

	var gr run.Group

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	gr.Add(func() error {
		a.log.Infof("listening on %s", addr)
		return srv.Serve(listener)
	}, func(error) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		a.snapshotBoth(ctx)
		if err := srv.Shutdown(ctx); err != nil {
			a.log.Errorf("graceful shutdown: %v", err)
		}
	})

	snapshotStop := make(chan struct{})
	gr.Add(func() error {
		ticker := time.NewTicker(a.cfg.BloomSnapshot.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.snapshotBoth(context.Background())
			case <-snapshotStop:
				return nil
			}
		}
	}, func(error) { close(snapshotStop) })

	evictStop := make(chan struct{})
	gr.Add(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.limiter.EvictIdle()
			case <-evictStop:
				return nil
			}
		}
	}, func(error) { close(evictStop) })

	if a.cfg.Application.TelemetryAddr != "" {
		telemetrySrv := a.buildTelemetryServer()
		telemetryListener, err := net.Listen("tcp", a.cfg.Application.TelemetryAddr)
		if err != nil {
			return fmt.Errorf("listening on telemetry addr %s: %w", a.cfg.Application.TelemetryAddr, err)
		}
		gr.Add(func() error {
			a.log.Infof("telemetry listening on %s", a.cfg.Application.TelemetryAddr)
			return telemetrySrv.Serve(telemetryListener)
		}, func(error) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			telemetrySrv.Shutdown(ctx)
		})
	}

	gr.Add(run.SignalHandler(context.Background(), os.Interrupt, syscall.SIGTERM))

	return gr.Run()
}
