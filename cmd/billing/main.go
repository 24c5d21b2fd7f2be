// Command billing runs the payment saga described in §4.5.
package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/mattw23n/emergency-dispatch-app/internal/billing"
	"github.com/mattw23n/emergency-dispatch-app/pkg/broker"
	"github.com/mattw23n/emergency-dispatch-app/pkg/config"
	"github.com/mattw23n/emergency-dispatch-app/pkg/database"
	"github.com/mattw23n/emergency-dispatch-app/pkg/logging"
	"github.com/mattw23n/emergency-dispatch-app/pkg/monitoring"
	"github.com/mattw23n/emergency-dispatch-app/pkg/server"
)

// buildDatabaseURL assembles a Postgres DSN from the discrete DB_{HOST,PORT,
// USER,PASSWORD,NAME} variables named by spec.md §6, rather than a single
// DATABASE_URL — matching the shape RABBITMQ_* already uses for the broker.
func buildDatabaseURL(logger logging.Logger) string {
	host := config.RequireEnv(logger, "DB_HOST")
	port := config.GetEnv("DB_PORT", "5432")
	user := config.RequireEnv(logger, "DB_USER")
	password := config.GetEnv("DB_PASSWORD", "")
	name := config.RequireEnv(logger, "DB_NAME")
	sslmode := config.GetEnv("DB_SSLMODE", "disable")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, name, sslmode)
}

func buildGateway(logger logging.Logger) billing.PaymentGateway {
	secretKey := config.GetEnv("STRIPE_SECRET_KEY", "")
	if secretKey == "" {
		logger.Warn("STRIPE_SECRET_KEY not set, using in-memory payment gateway")
		return billing.NewMemoryGateway()
	}
	return billing.NewStripeGateway(secretKey, logger)
}

func buildInsuranceClient(logger logging.Logger) billing.InsuranceClient {
	return billing.NewHTTPInsuranceClient(config.RequireEnv(logger, "INSURANCE_BASE_URL"))
}

func main() {
	logger := logging.NewLoggerWithService("billing")
	config.LoadEnv(logger)

	dbCfg := database.DefaultConfig()
	dbCfg.URL = buildDatabaseURL(logger)
	db := database.MustConnect(dbCfg, logger)
	defer db.Close()

	brokerCfg := broker.Config{
		URL:          config.GetEnv("BROKER_URL", ""),
		Host:         config.GetEnv("RABBITMQ_HOST", "localhost"),
		Port:         config.GetEnv("RABBITMQ_PORT", "5672"),
		User:         config.GetEnv("RABBITMQ_USER", "guest"),
		Password:     config.GetEnv("RABBITMQ_PASSWORD", "guest"),
		VHost:        config.GetEnv("RABBITMQ_VHOST", "/"),
		ExchangeName: config.GetEnv("AMQP_EXCHANGE_NAME", "incidents"),
		ExchangeType: config.GetEnv("AMQP_EXCHANGE_TYPE", "topic"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := broker.Connect(ctx, brokerCfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to broker")
	}
	defer conn.Close()

	store := billing.NewPostgresStore(db)
	gateway := buildGateway(logger)
	insurance := buildInsuranceClient(logger)
	saga := billing.NewSaga(store, insurance, gateway, logger)
	svc := billing.NewService(conn, saga, logger)

	if err := conn.Declare(svc.Topology()); err != nil {
		logger.WithError(err).Fatal("failed to declare broker topology")
	}

	healthChecker := monitoring.NewHealthChecker("billing", "1.0.0")
	healthChecker.AddCheck("broker", monitoring.BrokerHealthCheck(conn.IsConnected))
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	metrics := monitoring.NewMetricsCollector("billing")
	svc.SetMetrics(monitoring.NewDomainMetrics(metrics))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := svc.Run(ctx); err != nil {
			logger.WithError(err).Error("billing consumer loop exited with error")
		}
	}()

	router := server.SetupServiceRouter(logger, healthChecker, metrics)
	serverCfg := server.DefaultConfig("billing", config.GetEnv("PORT", "8084"))

	if err := server.Start(serverCfg, router, logger, func(drainCtx context.Context) {
		cancel()
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-drainCtx.Done():
		}
	}); err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Fatal("http server error")
	}
}
