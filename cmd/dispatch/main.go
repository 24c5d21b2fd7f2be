// Command dispatch runs the ambulance dispatch workflow described in §4.4.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"

	"github.com/mattw23n/emergency-dispatch-app/internal/dispatch"
	"github.com/mattw23n/emergency-dispatch-app/pkg/broker"
	"github.com/mattw23n/emergency-dispatch-app/pkg/config"
	"github.com/mattw23n/emergency-dispatch-app/pkg/logging"
	"github.com/mattw23n/emergency-dispatch-app/pkg/models"
	"github.com/mattw23n/emergency-dispatch-app/pkg/monitoring"
	"github.com/mattw23n/emergency-dispatch-app/pkg/server"
)

// loadHospitals reads the local hospital table from HOSPITAL_SEED_PATH. An
// unset or unreadable path yields an empty table, which makes dispatch fall
// back to the places API for every request — a valid deployment shape per
// §4.4, not an error.
func loadHospitals(logger logging.Logger) []models.Hospital {
	path := config.GetEnv("HOSPITAL_SEED_PATH", "")
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.WithError(err).Warn("could not read HOSPITAL_SEED_PATH, starting with an empty hospital table")
		return nil
	}
	var hospitals []models.Hospital
	if err := json.Unmarshal(data, &hospitals); err != nil {
		logger.WithError(err).Warn("could not parse HOSPITAL_SEED_PATH, starting with an empty hospital table")
		return nil
	}
	return hospitals
}

func buildPlacesClient() dispatch.PlacesClient {
	baseURL := config.GetEnv("PLACES_API_BASE_URL", "")
	if baseURL == "" {
		return nil
	}
	return dispatch.NewHTTPPlacesClient(baseURL, config.GetEnv("PLACES_API_KEY", ""))
}

func main() {
	logger := logging.NewLoggerWithService("dispatch")
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

	hospitals := dispatch.NewMemoryHospitalStore(loadHospitals(logger))
	places := buildPlacesClient()
	svc := dispatch.NewService(conn, hospitals, places, logger)

	if err := conn.Declare(svc.Topology()); err != nil {
		logger.WithError(err).Fatal("failed to declare broker topology")
	}

	healthChecker := monitoring.NewHealthChecker("dispatch", "1.0.0")
	healthChecker.AddCheck("broker", monitoring.BrokerHealthCheck(conn.IsConnected))
	metrics := monitoring.NewMetricsCollector("dispatch")
	svc.SetMetrics(monitoring.NewDomainMetrics(metrics))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := svc.Run(ctx); err != nil {
			logger.WithError(err).Error("dispatch consumer loop exited with error")
		}
	}()

	router := server.SetupServiceRouter(logger, healthChecker, metrics)
	serverCfg := server.DefaultConfig("dispatch", config.GetEnv("PORT", "8083"))

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
