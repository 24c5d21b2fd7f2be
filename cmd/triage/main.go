// Command triage runs the vitals classifier described in §4.2.
package main

import (
	"context"
	"net/http"
	"sync"

	"github.com/mattw23n/emergency-dispatch-app/internal/triage"
	"github.com/mattw23n/emergency-dispatch-app/pkg/broker"
	"github.com/mattw23n/emergency-dispatch-app/pkg/config"
	"github.com/mattw23n/emergency-dispatch-app/pkg/logging"
	"github.com/mattw23n/emergency-dispatch-app/pkg/monitoring"
	"github.com/mattw23n/emergency-dispatch-app/pkg/server"
)

func main() {
	logger := logging.NewLoggerWithService("triage")
	config.LoadEnv(logger)

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

	svc, err := triage.NewService(conn, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to build triage service")
	}
	defer svc.Close()

	if err := conn.Declare(svc.Topology()); err != nil {
		logger.WithError(err).Fatal("failed to declare broker topology")
	}

	healthChecker := monitoring.NewHealthChecker("triage", "1.0.0")
	healthChecker.AddCheck("broker", monitoring.BrokerHealthCheck(conn.IsConnected))
	metrics := monitoring.NewMetricsCollector("triage")
	svc.SetMetrics(monitoring.NewDomainMetrics(metrics))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := svc.Run(ctx); err != nil {
			logger.WithError(err).Error("triage consumer loop exited with error")
		}
	}()

	router := server.SetupServiceRouter(logger, healthChecker, metrics)
	serverCfg := server.DefaultConfig("triage", config.GetEnv("PORT", "8081"))

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
