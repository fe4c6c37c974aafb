package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	goredis "github.com/redis/go-redis/v9"

	api "github.com/mind-engage/mindengage-lessons/internal/api/http"
	auth "github.com/mind-engage/mindengage-lessons/internal/auth/middleware"
	"github.com/mind-engage/mindengage-lessons/internal/config"
	"github.com/mind-engage/mindengage-lessons/internal/db"
	"github.com/mind-engage/mindengage-lessons/internal/engine"
	"github.com/mind-engage/mindengage-lessons/internal/logger"
	"github.com/mind-engage/mindengage-lessons/internal/metrics"
	"github.com/mind-engage/mindengage-lessons/internal/progress"
	"github.com/mind-engage/mindengage-lessons/internal/store"
	"github.com/mind-engage/mindengage-lessons/internal/submission"
	syncx "github.com/mind-engage/mindengage-lessons/internal/sync"
	"github.com/mind-engage/mindengage-lessons/internal/tracing"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "directory holding config.yaml")
	tokenFor := flag.String("issue-token", "", "print a dev bearer token for sub:role and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	authSvc := auth.NewAuthService(cfg.AuthHMACSecret)
	if *tokenFor != "" {
		if err := printToken(authSvc, *tokenFor); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	log := logger.New(cfg.LogMode, cfg.LogFile)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, log, tracing.Config{
		Enabled:     cfg.OTelEnabled,
		ServiceName: cfg.ServiceName,
		SampleRatio: cfg.OTelSampleRatio,
	})
	if err != nil {
		log.Fatal("tracing init failed", "error", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	stores, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal("store init failed", "error", err)
	}
	defer stores.close()

	m := metrics.New()
	ctl := submission.New(stores.lessons, stores.enrollments, stores.results,
		submission.WithLogger(log),
		submission.WithMetrics(m),
		submission.WithPassPercent(cfg.PassPercent),
		submission.WithParallelGrading(cfg.GradeParallel),
	)
	eng := engine.New(ctl, progress.NewService(stores.lessons, stores.enrollments, stores.results), stores.lessons, stores.enrollments)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(m.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	api.Mount(r, api.Deps{
		Engine:      eng,
		Lessons:     stores.lessons,
		Enrollments: stores.enrollments,
		Events:      stores.events,
		Auth:        authSvc,
		Log:         log,
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := stores.ping(r.Context()); err != nil {
			log.Warn("not ready", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	log.Info("listening", "addr", cfg.HTTPAddr, "mode", cfg.Mode, "db", cfg.DBDriver, "results", cfg.ResultStore)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("http server failed", "error", err)
	}
}

type storeSet struct {
	lessons     store.LessonStore
	enrollments store.EnrollmentStore
	results     store.ResultStore
	events      *syncx.EventRepo
	dbh         *sql.DB
	rdb         *goredis.Client
}

// openStores picks the backends: sql keeps everything in one database,
// redis moves only results out of it, memory needs no infrastructure.
func openStores(ctx context.Context, cfg config.Config, log *logger.Logger) (*storeSet, error) {
	if cfg.ResultStore == config.ResultsMemory {
		log.Warn("using in-memory stores; results are lost on restart")
		mem := store.NewMemoryStore()
		return &storeSet{lessons: mem, enrollments: mem, results: mem}, nil
	}

	octx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	dbh, err := db.Open(octx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	events := syncx.NewEventRepo(dbh, cfg.SiteID)
	sqlStore := store.NewSQLStore(dbh, db.Driver(cfg.DBDriver), events)
	set := &storeSet{lessons: sqlStore, enrollments: sqlStore, results: sqlStore, events: events, dbh: dbh}

	if cfg.ResultStore == config.ResultsRedis {
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := rdb.Ping(octx).Err(); err != nil {
			_ = rdb.Close()
			_ = dbh.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		set.rdb = rdb
		set.results = store.NewRedisResultStore(rdb, cfg.RedisPrefix)
		set.events = nil
	}
	return set, nil
}

func (s *storeSet) ping(ctx context.Context) error {
	if s.dbh != nil {
		if err := s.dbh.PingContext(ctx); err != nil {
			return fmt.Errorf("db: %w", err)
		}
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (s *storeSet) close() {
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
	if s.dbh != nil {
		_ = s.dbh.Close()
	}
}

func printToken(a *auth.AuthService, arg string) error {
	sub, role, ok := strings.Cut(arg, ":")
	if !ok || sub == "" || role == "" {
		return fmt.Errorf("issue-token wants sub:role, got %q", arg)
	}
	tok, err := a.IssueJWT(sub, role)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
