package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/2beens/gymsheets/internal/config"
	"github.com/2beens/gymsheets/internal/creds"
	"github.com/2beens/gymsheets/internal/logging"
	"github.com/2beens/gymsheets/internal/middleware"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	log "github.com/sirupsen/logrus"
)

// A tiny standalone service serving the public Google client configuration
// to the web client. Kept separate from the main service so the client can
// bootstrap even when the tracker backend is down.
func main() {
	fmt.Println("starting credentials service ...")

	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	host := flag.String("host", "localhost", "host for the credentials service")
	port := flag.Int("port", 1991, "port for the credentials service")
	flag.Parse()

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		panic(err)
	}

	sentryDSN := os.Getenv("SENTRY_DSN")
	logging.Setup(logging.LoggerSetupParams{
		LogFileName:      cfg.LogsPath,
		LogToStdout:      cfg.LogToStdout,
		LogLevel:         cfg.LogLevel,
		LogFormatJSON:    false,
		Environment:      cfg.Environment,
		SentryEnabled:    cfg.SentryEnabled,
		SentryDSN:        sentryDSN,
		SentryServerName: "gymsheets-credentials",
	})

	credentials := creds.Credentials{
		ClientID: os.Getenv("GYMSHEETS_GOOGLE_CLIENT_ID"),
		APIKey:   os.Getenv("GYMSHEETS_GOOGLE_API_KEY"),
	}
	if credentials.ClientID == "" {
		log.Fatalln("google client id not set, use GYMSHEETS_GOOGLE_CLIENT_ID env var to set it")
	}
	if credentials.APIKey == "" {
		log.Fatalln("google api key not set, use GYMSHEETS_GOOGLE_API_KEY env var to set it")
	}

	redisPassword := os.Getenv("GYMSHEETS_REDIS_PASS")
	if redisPassword == "<skip>" {
		log.Warnln("skipping redis password")
		redisPassword = ""
	}

	ctx, cancel := context.WithCancel(context.Background())
	chOsInterrupt := make(chan os.Signal, 1)
	signal.Notify(chOsInterrupt, os.Interrupt, syscall.SIGTERM)

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
		Password: redisPassword,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	}

	log.Debugf("allowed requests per minute: %d", cfg.CredsRateLimitAllowedPerMin)
	rateLimited := middleware.RateLimit(
		redis_rate.NewLimiter(rdb),
		"credentials",
		cfg.CredsRateLimitAllowedPerMin,
	)(creds.NewHandler(credentials))

	serverMux := http.NewServeMux()
	serverMux.Handle("/credentials", rateLimited)

	ipAndPort := net.JoinHostPort(*host, strconv.Itoa(*port))
	httpServer := &http.Server{
		Handler:      serverMux,
		Addr:         ipAndPort,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	go func() {
		log.Infof(" > credentials service listening on: [%s]", ipAndPort)
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("credentials service, listen and serve: %s", err)
		}
	}()

	receivedSig := <-chOsInterrupt
	log.Warnf("signal [%s] received ...", receivedSig)
	cancel()

	shutdownCtx, timeoutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer timeoutCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("failed to gracefully shutdown credentials service: %s", err)
	}

	if err := rdb.Close(); err != nil {
		log.Errorf("failed to close redis client conn: %s", err)
	}

	log.Warnln("credentials service shut down")
}
