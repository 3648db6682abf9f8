package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/heracles-fit/heracles/internal"
	"github.com/heracles-fit/heracles/internal/config"
	"github.com/heracles-fit/heracles/internal/logging"
	"github.com/heracles-fit/heracles/pkg"

	log "github.com/sirupsen/logrus"
)

func main() {
	fmt.Println("starting ...")

	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	flag.Parse()

	log.Warnf("---->> running in [%s] environment", *env)

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
		SentryServerName: "heracles-service",
	})

	log.Debugf("using port: %d", cfg.Port)
	log.Debugf("using server logs path: [%s]", cfg.LogsPath)

	jwtSecret := os.Getenv("HERACLES_JWT_SECRET")
	if jwtSecret == "" {
		log.Errorf("jwt secret not set, use HERACLES_JWT_SECRET env var to set it")
		// issued tokens die with the process, fine for local runs
		jwtSecret, err = pkg.GenerateRandomString(32)
		if err != nil {
			log.Fatalf("generate fallback jwt secret: %s", err)
		}
	}

	adminEmail := os.Getenv("HERACLES_ADMIN_EMAIL")
	adminName := os.Getenv("HERACLES_ADMIN_NAME")
	adminPassword := os.Getenv("HERACLES_ADMIN_PASSWORD")
	if adminEmail == "" || adminPassword == "" {
		log.Warnf("admin seed not set, use HERACLES_ADMIN_EMAIL and HERACLES_ADMIN_PASSWORD")
	}
	if adminName == "" {
		adminName = "admin"
	}

	redisPassword := os.Getenv("HERACLES_REDIS_PASS")
	if redisPassword == "" {
		log.Errorf("redis password not set. use HERACLES_REDIS_PASS")
	}

	honeycombEnabled := os.Getenv("HONEYCOMB_ENABLED") == "true"
	if honeycombEnabled {
		if honeycombApiKey := os.Getenv("HONEYCOMB_API_KEY"); honeycombApiKey == "" {
			log.Warnln("HONEYCOMB_API_KEY env var not set")
		}
	} else {
		log.Debugln("honeycomb tracing disabled")
	}

	chOsInterrupt := make(chan os.Signal, 1)
	signal.Notify(chOsInterrupt, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())

	server, err := internal.NewServer(
		ctx,
		internal.NewServerParams{
			Config:                  cfg,
			SigningKey:              []byte(jwtSecret),
			RedisPassword:           redisPassword,
			AdminEmail:              adminEmail,
			AdminName:               adminName,
			AdminPassword:           adminPassword,
			HoneycombTracingEnabled: honeycombEnabled,
		},
	)
	if err != nil {
		log.Fatalf("new server: %s", err)
	}

	server.Serve()

	receivedSig := <-chOsInterrupt
	log.Warnf("signal [%s] received, shutting down ...", receivedSig)
	cancel()

	server.GracefulShutdown()
}
