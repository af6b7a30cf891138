package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tramites-digitales/pagos-api/internal/banking/webpay"
	"github.com/tramites-digitales/pagos-api/internal/catalog"
	"github.com/tramites-digitales/pagos-api/internal/clients"
	"github.com/tramites-digitales/pagos-api/internal/httpx"
	"github.com/tramites-digitales/pagos-api/internal/messaging"
	"github.com/tramites-digitales/pagos-api/internal/payments"
	"github.com/tramites-digitales/pagos-api/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "pagos-api", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("pagos-api", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	db, err := telemetry.OpenDB("postgres", postgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	bankEndpoint := os.Getenv("BANK_ENDPOINT")
	if bankEndpoint == "" {
		logger.Error("BANK_ENDPOINT environment variable is required")
		os.Exit(1)
	}
	bankKey := os.Getenv("BANK_AES_KEY")
	if bankKey == "" {
		logger.Error("BANK_AES_KEY environment variable is required")
		os.Exit(1)
	}

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	gateway, err := webpay.NewClient(bankEndpoint, bankKey, httpClient)
	if err != nil {
		logger.Error("failed to configure bank gateway", "error", err)
		os.Exit(1)
	}

	var producer *messaging.Producer
	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers != "" {
		brokers := strings.Split(kafkaBrokers, ",")
		producer = messaging.NewProducer(brokers, messaging.TopicOrderSettled)
		defer func() { _ = producer.Close() }()
	}

	catalogRepo := catalog.NewRepository(db)
	catalogHandler := catalog.NewHandler(catalogRepo, logger)

	citizenRepo := clients.NewRepository(db)
	citizenRegistry := clients.NewRegistry(citizenRepo, logger)
	citizenHandler := clients.NewHandler(citizenRepo, logger)

	orderRepo := payments.NewRepository(db)
	// A nil *Producer must stay a nil Publisher interface.
	var publisher payments.Publisher
	if producer != nil {
		publisher = producer
	}
	paymentService := payments.NewService(catalogRepo, citizenRegistry, orderRepo, gateway, publisher, logger)
	paymentHandler := payments.NewHandler(paymentService, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", telemetry.WithHTTPRoute(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteData(w, logger, "API del Portal de Trámites y Servicios.", nil)
	}))
	mux.HandleFunc("GET /api/v5/distritos", telemetry.WithHTTPRoute(catalogHandler.HandleDistricts))
	mux.HandleFunc("GET /api/v5/distritos/{clave}", telemetry.WithHTTPRoute(catalogHandler.HandleDistrict))
	mux.HandleFunc("GET /api/v5/autoridades", telemetry.WithHTTPRoute(catalogHandler.HandleAuthorities))
	mux.HandleFunc("GET /api/v5/autoridades/{clave}", telemetry.WithHTTPRoute(catalogHandler.HandleAuthority))
	mux.HandleFunc("GET /api/v5/pag_tramites_servicios", telemetry.WithHTTPRoute(catalogHandler.HandleServices))
	mux.HandleFunc("GET /api/v5/pag_tramites_servicios/{clave}", telemetry.WithHTTPRoute(catalogHandler.HandleService))
	mux.HandleFunc("GET /api/v5/cit_clientes/{email}", telemetry.WithHTTPRoute(citizenHandler.HandleGet))
	mux.HandleFunc("POST /api/v5/pag_pagos/carro", telemetry.WithHTTPRoute(paymentHandler.HandleOpenCart))
	mux.HandleFunc("POST /api/v5/pag_pagos/resultado", telemetry.WithHTTPRoute(paymentHandler.HandleBankResult))
	mux.HandleFunc("GET /api/v5/pag_pagos/{id}", telemetry.WithHTTPRoute(paymentHandler.HandleGet))
	mux.Handle("GET /metrics", metricsHandler)

	var handler http.Handler = mux
	if origins := os.Getenv("ORIGINS"); origins != "" {
		handler = httpx.CORS(strings.Split(origins, ","), handler)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(handler, "pagos-api",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting pagos api", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
