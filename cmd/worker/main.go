// Worker drains the telemetry topic into Loki. It needs KAFKA_BROKERS and LOKI_URL;
// TELEMETRY_KAFKA_TOPIC and KAFKA_GROUP_ID fall back to the config defaults.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"praxis-pilot/backend/internal/config"
	"praxis-pilot/backend/internal/telemetry/loki"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	brokers := cfg.TelemetryKafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("worker: KAFKA_BROKERS is required")
	}
	client, err := loki.NewClient(cfg.LokiURL)
	if err != nil {
		log.Fatalf("worker: LOKI_URL: %v", err)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    cfg.TelemetryKafkaTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("worker: %s (group %s) -> %s", cfg.TelemetryKafkaTopic, cfg.KafkaGroupID, cfg.LokiURL)
	w := newWorker(reader, client)
	if err := w.run(ctx); err != nil {
		log.Fatalf("worker: %v", err)
	}
	log.Println("worker: stopped")
}
