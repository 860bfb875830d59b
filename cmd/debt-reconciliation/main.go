package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/innopay/innopay-hub/db"
	"github.com/innopay/innopay-hub/ledger"
	"github.com/innopay/innopay-hub/lib/logging"
	"github.com/innopay/innopay-hub/lib/service"
	"github.com/innopay/innopay-hub/rabbitmq"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// one reconciliation pass over all unpaid and recovering debts, meant to be run from cron
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

	logger := logging.Logger(c.LogFilePath)

	dbConn, err := db.Open(c)
	if err != nil {
		logger.Fatalf("Error initializing db connection: %v", err)
	}
	defer dbConn.Close()

	if c.SentryDSN != "" {
		if err = sentry.Init(sentry.ClientOptions{
			Dsn: c.SentryDSN,
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
		Debts:          service.NewBunDebtStore(dbConn),
		Logger:         logger,
		RabbitMQClient: rabbitmqClient,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := svc.RunReconciliationPass(ctx)
	if err != nil {
		sentry.CaptureException(err)
		logger.Errorf("Reconciliation pass failed: %v", err)
		return
	}
	logger.Infof("Reconciliation done: attempted:%d paid:%d still_pending:%d", result.Attempted, result.Paid, result.StillPending)
}
