package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/innopay/innopay-hub/db"
	"github.com/innopay/innopay-hub/db/migrations"
	"github.com/innopay/innopay-hub/ledger"
	"github.com/innopay/innopay-hub/lib/logging"
	"github.com/innopay/innopay-hub/lib/service"
	"github.com/innopay/innopay-hub/lib/tokens"
	"github.com/innopay/innopay-hub/lib/transport"
	"github.com/innopay/innopay-hub/rabbitmq"
	"github.com/innopay/innopay-hub/rates"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun/migrate"
	ddEcho "gopkg.in/DataDog/dd-trace-go.v1/contrib/labstack/echo.v4"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

const rateCacheTTL = 5 * time.Minute

func main() {
	c := &service.Config{}

	// Load configruation from environment variables
	err := godotenv.Load(".env")
	if err != nil {
		fmt.Println("Failed to load .env file")
	}
	err = envconfig.Process("", c)
	if err != nil {
		log.Fatalf("Error loading environment variables: %v", err)
	}

	// Setup logging to STDOUT or a configrued log file
	logger := logging.Logger(c.LogFilePath)

	// Open a DB connection based on the configured DATABASE_URI
	dbConn, err := db.Open(c)
	if err != nil {
		logger.Fatalf("Error initializing db connection: %v", err)
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), time.Minute)
	defer cancelStartup()
	migrator := migrate.NewMigrator(dbConn, migrations.Migrations)
	err = migrator.Init(startupCtx)
	if err != nil {
		logger.Fatalf("Error initializing db migrator: %v", err)
	}
	_, err = migrator.Migrate(startupCtx)
	if err != nil {
		logger.Fatalf("Error migrating database: %v", err)
	}

	// sentry init needs to happen before the echo middlewares are added
	if c.SentryDSN != "" {
		if err = sentry.Init(sentry.ClientOptions{
			Dsn:              c.SentryDSN,
			IgnoreErrors:     []string{"401"},
			EnableTracing:    c.SentryTracesSampleRate > 0,
			TracesSampleRate: c.SentryTracesSampleRate,
		}); err != nil {
			logger.Errorf("sentry init error: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ledgerCfg, err := ledger.LoadConfig()
	if err != nil {
		logger.Fatalf("Error loading ledger config: %v", err)
	}
	ledgerClient, err := ledger.InitLedgerClient(ledgerCfg, logger)
	if err != nil {
		logger.Fatalf("Error initializing the %s ledger client: %v", ledgerCfg.LedgerClientType, err)
	}

	ratesCfg, err := rates.LoadConfig()
	if err != nil {
		logger.Fatalf("Error loading rates config: %v", err)
	}
	rateProvider := rates.NewProviderFromConfig(ratesCfg, &rates.BunStore{DB: dbConn}, logger)

	// If no RABBITMQ_URI was provided we will not attempt to create a client
	// and debt events are not published.
	var rabbitmqClient rabbitmq.Client
	if c.RabbitMQUri != "" {
		amqpClient, err := rabbitmq.DialAMQP(c.RabbitMQUri, rabbitmq.WithAmqpLogger(logger))
		if err != nil {
			logger.Fatal(err)
		}

		defer amqpClient.Close()

		rabbitmqClient, err = rabbitmq.NewClient(amqpClient,
			rabbitmq.WithLogger(logger),
			rabbitmq.WithDebtExchange(c.RabbitMQDebtExchange),
		)
		if err != nil {
			logger.Fatal(err)
		}
	}

	svc := &service.InnopayService{
		Config:         c,
		Ledger:         ledgerClient,
		Rates:          rateProvider,
		Debts:          service.NewBunDebtStore(dbConn),
		Logger:         logger,
		RabbitMQClient: rabbitmqClient,
	}

	e := transport.InitEcho(c, logger)
	//if Datadog is configured, add datadog middleware
	if c.DatadogAgentUrl != "" {
		tracer.Start(tracer.WithAgentAddr(c.DatadogAgentUrl))
		defer tracer.Stop()
		e.Use(ddEcho.Middleware(ddEcho.WithServiceName("innopay-hub")))
	}

	//Start Prometheus server if necessary
	var echoPrometheus *echo.Echo
	if c.EnablePrometheus {
		echoPrometheus = transport.StartPrometheusEcho(logger, c, e)
	}

	logMw := transport.CreateLoggingMiddleware(logger)
	// strict rate limit for requests moving funds
	strictRateLimitMiddleware := transport.CreateRateLimitMiddleware(c.StrictRateLimit, c.BurstRateLimit)
	adminMw := tokens.AdminTokenMiddleware(c.AdminToken)

	admin := e.Group("", adminMw, logMw)
	adminWithStrictRateLimit := e.Group("", adminMw, strictRateLimitMiddleware, logMw)

	cacheMw, err := transport.CreateCacheMiddleware(rateCacheTTL)
	if err != nil {
		logger.Fatal(err)
	}
	transport.RegisterV2Endpoints(svc, e, admin, adminWithStrictRateLimit, cacheMw)

	backGroundCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Start server
	go func() {
		if err := e.Start(fmt.Sprintf(":%v", c.Port)); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()

	<-backGroundCtx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Fatal(err)
	}
	if echoPrometheus != nil {
		if err := echoPrometheus.Shutdown(ctx); err != nil {
			e.Logger.Fatal(err)
		}
	}
	logger.Info("innopay hub exiting gracefully. Goodbye.")
}
