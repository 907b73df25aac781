package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/gymsheets/internal/auth"
	"github.com/2beens/gymsheets/internal/cache"
	"github.com/2beens/gymsheets/internal/config"
	"github.com/2beens/gymsheets/internal/middleware"
	"github.com/2beens/gymsheets/internal/sheets"
	"github.com/2beens/gymsheets/internal/store"
	"github.com/2beens/gymsheets/internal/telemetry/metrics"
	"github.com/2beens/gymsheets/internal/telemetry/tracing"
	"github.com/2beens/gymsheets/internal/tracker"
	"github.com/2beens/gymsheets/pkg"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	goauth2 "google.golang.org/api/oauth2/v2"
	gsheets "google.golang.org/api/sheets/v4"
)

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config         *config.Config
	kvStore        *store.SQLiteStore
	cacheManager   *cache.Manager
	authManager    *auth.Manager
	workoutTracker *tracker.Tracker
	trackerHandler *tracker.Handler

	redisClient *redis.Client

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	GoogleClientID          string
	GoogleClientSecret      string
	RedisPassword           string
	VersionInfo             string
	HoneycombTracingEnabled bool
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	kvStore, err := store.OpenSQLiteStore(params.Config.DataDir, params.Config.StoreQuotaBytes)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	promRegistry := metrics.SetupPrometheus()
	metricsManager := metrics.NewManager("gymsheets", "main", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(params.Config.RedisHost, params.Config.RedisPort),
		Password: params.RedisPassword,
		DB:       0, // use default DB
	})

	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, "gymsheets-backend")
	if err != nil {
		return nil, err
	}

	tracedHttpClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	oauthCfg := &oauth2.Config{
		ClientID:     params.GoogleClientID,
		ClientSecret: params.GoogleClientSecret,
		RedirectURL:  params.Config.OAuthRedirectURL,
		Endpoint:     google.Endpoint,
		Scopes: []string{
			gsheets.SpreadsheetsScope,
			goauth2.UserinfoEmailScope,
			goauth2.UserinfoProfileScope,
		},
	}

	tokenStore := auth.NewTokenStore(kvStore)
	authManager := auth.NewManager(tokenStore, nil, oauthCfg, tracedHttpClient, metricsManager)

	sheetRepo, err := sheets.NewRepo(ctx, authManager.TokenSource(ctx), metricsManager)
	if err != nil {
		return nil, fmt.Errorf("new sheets repo: %w", err)
	}

	cacheManager := cache.NewManager(kvStore, metricsManager)
	workoutTracker := tracker.New(
		kvStore,
		cacheManager,
		sheetRepo,
		metricsManager,
		params.Config.SpreadsheetTitle,
	)

	// the tracker is both the auth consumer and the cache syncer, and the
	// auth manager is the tracker's auth checker, hence the setters
	authManager.SetConsumer(workoutTracker)
	workoutTracker.SetAuthChecker(authManager)
	cacheManager.SetSyncer(workoutTracker)

	if authManager.IsAuthenticated(ctx) {
		workoutTracker.SetSignedIn(true)
	}

	fetchUserInfo := func(ctx context.Context) (*auth.UserInfo, error) {
		token, err := tokenStore.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("get token: %w", err)
		}
		return auth.GetUserInfo(ctx, token.AccessToken)
	}

	return &Server{
		config:         params.Config,
		versionInfo:    params.VersionInfo,
		kvStore:        kvStore,
		cacheManager:   cacheManager,
		authManager:    authManager,
		workoutTracker: workoutTracker,
		trackerHandler: tracker.NewHandler(workoutTracker, authManager, fetchUserInfo),
		redisClient:    rdb,

		// telemetry
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}, nil
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("main-router"))

	h := s.trackerHandler
	r.HandleFunc("/sessions", h.HandleListSessions).Methods("GET", "OPTIONS").Name("list-sessions")
	r.HandleFunc("/sessions/entry", h.HandleLogExercise).Methods("POST", "OPTIONS").Name("log-exercise")
	r.HandleFunc("/sessions/{date}", h.HandleSessionByDate).Methods("GET", "OPTIONS").Name("get-session")
	r.HandleFunc("/exercises", h.HandleExercises).Methods("GET", "OPTIONS").Name("list-exercises")
	r.HandleFunc("/exercises", h.HandleAddExercise).Methods("POST", "OPTIONS").Name("add-exercise")
	r.HandleFunc("/plans", h.HandleListPlans).Methods("GET", "OPTIONS").Name("list-plans")
	r.HandleFunc("/plans", h.HandleCreatePlan).Methods("POST", "OPTIONS").Name("new-plan")
	r.HandleFunc("/plans/{id}", h.HandleUpdatePlan).Methods("PUT", "OPTIONS").Name("update-plan")
	r.HandleFunc("/plans/{id}", h.HandleDeletePlan).Methods("DELETE", "OPTIONS").Name("remove-plan")
	r.HandleFunc("/recommendations", h.HandleRecommendations).Methods("GET", "OPTIONS").Name("recommendations")
	r.HandleFunc("/export", h.HandleExport).Methods("GET", "OPTIONS").Name("export")
	r.HandleFunc("/import", h.HandleImport).Methods("POST", "OPTIONS").Name("import")
	r.HandleFunc("/sync", h.HandleSyncNow).Methods("POST", "OPTIONS").Name("sync-now")
	r.HandleFunc("/sync/status", h.HandleSyncStatus).Methods("GET", "OPTIONS").Name("sync-status")
	r.HandleFunc("/sync/online", h.HandleSetOnline).Methods("POST", "OPTIONS").Name("sync-online")

	// the interactive sign-in endpoints get their own rate limit
	reqRateLimiter := redis_rate.NewLimiter(s.redisClient)
	authRouter := r.PathPrefix("/auth").Subrouter()
	authRouter.Use(middleware.RateLimit(reqRateLimiter, "auth", s.config.AuthRateLimitAllowedPerMin))
	authRouter.HandleFunc("/url", h.HandleAuthURL).Methods("GET", "OPTIONS").Name("auth-url")
	authRouter.HandleFunc("/callback", h.HandleAuthCallback).Methods("GET", "OPTIONS").Name("auth-callback")
	authRouter.HandleFunc("/signout", h.HandleSignOut).Methods("POST", "OPTIONS").Name("auth-signout")

	r.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		pkg.WriteResponse(w, pkg.ContentType.Text, s.versionInfo, http.StatusOK)
	}).Methods("GET").Name("version")

	// all the rest - unhandled paths
	r.HandleFunc("/{unknown}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods("GET", "POST", "PUT", "OPTIONS").Name("unknown")

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors())
	r.Use(middleware.DrainAndCloseRequest())

	return r
}

func (s *Server) Serve(ctx context.Context, host string, port int) {
	router := s.routerSetup()

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(
		s.promRegistry,
		promhttp.HandlerOpts{},
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go s.authManager.StartLivenessLoop(ctx)
	go s.cacheManager.StartRefreshLoop(ctx)

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	if s.kvStore != nil {
		if err := s.kvStore.Close(); err != nil {
			log.Errorf("failed to close local store: %s", err)
		}
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown http server")
	}
	log.Warnln("server shut down")

	if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown metrics http server")
	}
	log.Warnln("metrics server shut down")
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
