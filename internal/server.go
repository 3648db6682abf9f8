package internal

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/coocood/freecache"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis_rate/v9"
	"github.com/go-redis/redis/v8"
	"github.com/IBM/pgxpoolprometheus"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"github.com/gorilla/mux"

	"github.com/heracles-fit/heracles/internal/auth"
	"github.com/heracles-fit/heracles/internal/config"
	"github.com/heracles-fit/heracles/internal/db"
	"github.com/heracles-fit/heracles/internal/exercises"
	"github.com/heracles-fit/heracles/internal/middleware"
	"github.com/heracles-fit/heracles/internal/telemetry/metrics"
	"github.com/heracles-fit/heracles/internal/telemetry/tracing"
	"github.com/heracles-fit/heracles/internal/templates"
	"github.com/heracles-fit/heracles/internal/users"
	"github.com/heracles-fit/heracles/internal/workouts"
)

type Server struct {
	config *config.Config

	httpServer        *http.Server
	metricsHttpServer *http.Server

	dbPool      *pgxpool.Pool
	redisClient *redis.Client

	authService    *auth.Service
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry

	otelShutdown func()
}

type NewServerParams struct {
	Config     *config.Config
	SigningKey []byte

	RedisPassword string

	// seed admin, created on first boot when missing
	AdminEmail    string
	AdminName     string
	AdminPassword string

	HoneycombTracingEnabled bool
}

func NewServer(ctx context.Context, params NewServerParams) (*Server, error) {
	cfg := params.Config

	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost:         cfg.PostgresHost,
		DBPort:         cfg.PostgresPort,
		DBName:         cfg.PostgresDBName,
		TracingEnabled: params.HoneycombTracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("new db pool: %w", err)
	}
	log.Debugln("db pool created")

	if err := dbPool.Ping(ctx); err != nil {
		log.Warnf("ping db: %s", err)
	}

	if err := db.Migrate(ctx, dbPool); err != nil {
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	dbPoolCollector := pgxpoolprometheus.NewCollector(dbPool, map[string]string{
		"db_name": cfg.PostgresDBName,
	})
	promRegistry := metrics.SetupPrometheus(dbPoolCollector)
	metricsManager := metrics.NewManager("backend", "main", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
		Password: params.RedisPassword,
	})
	if rdbStatus := redisClient.Ping(ctx); rdbStatus.Err() != nil {
		log.Errorf("ping redis: %s", rdbStatus.Err())
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}

	authService := auth.NewService(params.SigningKey, auth.DefaultTTL)

	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, "heracles-backend")
	if err != nil {
		return nil, fmt.Errorf("honeycomb setup: %w", err)
	}

	if params.AdminEmail != "" {
		if err := users.NewRepo(dbPool).EnsureAdmin(
			ctx, params.AdminEmail, params.AdminName, params.AdminPassword,
		); err != nil {
			return nil, fmt.Errorf("ensure admin user: %w", err)
		}
	} else {
		log.Warnln("admin email not set, skipping admin seed")
	}

	return &Server{
		config:         cfg,
		dbPool:         dbPool,
		redisClient:    redisClient,
		authService:    authService,
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}, nil
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("main-router"))

	usersRepo := users.NewRepo(s.dbPool)
	exercisesRepo := exercises.NewRepo(s.dbPool)
	workoutsRepo := workouts.NewRepo(s.dbPool)
	templatesRepo := templates.NewRepo(s.dbPool)

	usersHandler := users.NewHandler(usersRepo, s.authService)
	exercisesHandler := exercises.NewHandler(
		exercisesRepo,
		freecache.NewCache(exercises.CatalogCacheSizeBytes),
	)
	workoutsHandler := workouts.NewHandler(workoutsRepo, exercisesRepo, s.metricsManager)
	templatesHandler := templates.NewHandler(templatesRepo)

	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("I'm OK, thanks ;)"))
	})

	loginRateLimit := middleware.RateLimit(
		redis_rate.NewLimiter(s.redisClient),
		"login",
		s.config.LoginRateLimitAllowedPerMin,
		s.metricsManager,
	)
	r.Handle(
		"/api/auth/login",
		loginRateLimit(http.HandlerFunc(usersHandler.HandleLogin)),
	).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/auth/register", usersHandler.HandleRegister).Methods("POST", "OPTIONS")

	r.HandleFunc("/api/exercises", exercisesHandler.HandleList).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/exercises", exercisesHandler.HandleAdd).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/exercises/{id}", exercisesHandler.HandleUpdate).Methods("PUT", "OPTIONS")
	r.HandleFunc("/api/exercises/{id}", exercisesHandler.HandleDelete).Methods("DELETE", "OPTIONS")

	// stats routes before the {id} routes, mux matches in order
	r.HandleFunc("/api/workouts/stats", workoutsHandler.HandleStats).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/workouts/stats/progression", workoutsHandler.HandleProgression).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/workouts", workoutsHandler.HandleList).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/workouts", workoutsHandler.HandleCreate).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/workouts/{id}", workoutsHandler.HandleGet).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/workouts/{id}", workoutsHandler.HandleReplace).Methods("PUT", "OPTIONS")
	r.HandleFunc("/api/workouts/{id}", workoutsHandler.HandleDelete).Methods("DELETE", "OPTIONS")

	r.HandleFunc("/api/templates", templatesHandler.HandleList).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/templates", templatesHandler.HandleCreate).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/templates/{id}", templatesHandler.HandleGet).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/templates/{id}", templatesHandler.HandleUpdate).Methods("PUT", "OPTIONS")
	r.HandleFunc("/api/templates/{id}", templatesHandler.HandleDelete).Methods("DELETE", "OPTIONS")

	r.HandleFunc("/api/admin/users", usersHandler.HandleListUsers).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/admin/users/{id}", usersHandler.HandleUpdateUser).Methods("PUT", "OPTIONS")
	r.HandleFunc("/api/admin/users/{id}", usersHandler.HandleDeleteUser).Methods("DELETE", "OPTIONS")
	r.HandleFunc("/api/admin/users/{id}/promote", usersHandler.HandlePromote).Methods("POST", "OPTIONS")

	authMiddleware := middleware.NewAuthMiddlewareHandler(s.authService)

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors())
	r.Use(middleware.RequestID())
	r.Use(authMiddleware.AuthCheck())
	r.Use(middleware.DrainAndCloseRequest())

	return r
}

func (s *Server) Serve() {
	router := s.routerSetup()

	ipAndPort := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(
		s.promRegistry,
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Handler:      metricsRouter,
		Addr:         metricsAddr,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	go func() {
		log.Infof("metrics server listening on: %s", metricsAddr)
		if err := s.metricsHttpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server: %s", err)
		}
	}()

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Inc()
	case http.StateClosed, http.StateHijacked:
		s.metricsManager.GaugeRequests.Dec()
	}
}

func (s *Server) GracefulShutdown() {
	log.Debugln("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	if s.otelShutdown != nil {
		s.otelShutdown()
		log.Debugln("otel sdk shutdown done")
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("close redis client: %s", err)
		} else {
			log.Debugln("redis client closed")
		}
	}

	if s.dbPool != nil {
		s.dbPool.Close()
		log.Debugln("db pool closed")
	}

	if sentry.Flush(5 * time.Second) {
		log.Debugln("sentry flushed")
	} else {
		log.Errorln("sentry failed to flush in time")
	}

	maxWaitDuration := 15 * time.Second
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if s.metricsHttpServer != nil {
		if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
			log.Errorf("metrics server shutdown: %s", err)
		}
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Errorf("server shutdown: %s", err)
		}
	}

	log.Warnln("server shut down")
}
