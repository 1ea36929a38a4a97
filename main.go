package main

import (
	"log"
	"log/slog"
	"net/http"

	"booking-service/internal/booking"
	"booking-service/internal/config"
	"booking-service/internal/db"
	"booking-service/internal/gateway"
	"booking-service/internal/httpapi"
	"booking-service/internal/logging"
	"booking-service/internal/metrics"
	"booking-service/internal/notify"
	"booking-service/internal/payment"
	"booking-service/internal/refund"
	"booking-service/internal/webhook"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoadConfig(".")

	logger := logging.GetLogger(cfg.Logs)
	slog.SetDefault(logger)

	metrics.Setup(cfg.Metrics)

	connStr := db.GetConnStr()
	db.RunMigrations(connStr, "migrations")

	dbpool, err := db.GetPool(connStr)
	if err != nil {
		log.Fatal(err)
	}
	defer dbpool.Close()

	bookingRepo := db.NewBookingRepository(dbpool)
	paymentRepo := db.NewPaymentRepository(dbpool)
	caregiverRepo := db.NewCaregiverRepository(dbpool)

	eventWriter := notify.NewWriter(cfg.Kafka)
	defer eventWriter.Close()

	dispatcher := notify.NewDispatcher(eventWriter, logger)
	machine := booking.NewService(bookingRepo, caregiverRepo, dispatcher, logger)

	gatewayClient := gateway.NewClient(cfg.Gateway,
		config.GetRequired("GATEWAY_KEY_ID"), config.GetRequired("GATEWAY_KEY_SECRET"), logger)

	payments := payment.NewService(paymentRepo, bookingRepo, machine, gatewayClient,
		config.GetRequired("GATEWAY_KEY_SECRET"), logger)
	refunds := refund.NewOrchestrator(paymentRepo, bookingRepo, machine, gatewayClient, logger)
	reconciler := webhook.NewReconciler(paymentRepo, machine,
		config.GetRequired("GATEWAY_WEBHOOK_SECRET"), logger)

	handler := httpapi.NewHandler(machine, payments, refunds, reconciler, logger)

	mux := http.NewServeMux()
	handler.Register(mux)

	logger.Info("Starting server", "port", cfg.Server.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Server.Port, mux))
}
