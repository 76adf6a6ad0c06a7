package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/joshp123/litterwatch/internal/config"
	"github.com/joshp123/litterwatch/internal/litterbox"
	"github.com/joshp123/litterwatch/internal/metrics"
	"github.com/joshp123/litterwatch/internal/publish"
)

const pushTimeout = 10 * time.Second

// report hands the run to the optional metrics and MQTT sinks. Their
// failures are logged and never change the exit code.
func report(ctx context.Context, cfg *config.Config, logger *slog.Logger, result litterbox.Result, runErr error) {
	if cfg.Metrics.Textfile != "" || cfg.Metrics.PushgatewayURL != "" {
		recorder := metrics.NewRecorder()
		recorder.Observe(result, runErr)
		if cfg.Metrics.Textfile != "" {
			if err := recorder.WriteTextfile(cfg.Metrics.Textfile); err != nil {
				logger.Warn("metrics textfile failed", "path", cfg.Metrics.Textfile, "error", err)
			}
		}
		if cfg.Metrics.PushgatewayURL != "" {
			pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
			if err := recorder.Push(pushCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, cfg.DeviceID); err != nil {
				logger.Warn("metrics push failed", "url", cfg.Metrics.PushgatewayURL, "error", err)
			}
			cancel()
		}
	}

	if cfg.MQTT.Broker == "" {
		return
	}
	publisher, err := publish.Dial(publish.Config{
		Broker:   cfg.MQTT.Broker,
		Topic:    cfg.MQTT.Topic,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
	})
	if err != nil {
		logger.Warn("mqtt connect failed", "broker", cfg.MQTT.Broker, "error", err)
		return
	}
	defer publisher.Close()
	if err := publisher.Publish(publish.NewMessage(result, runErr)); err != nil {
		logger.Warn("mqtt publish failed", "topic", cfg.MQTT.Topic, "error", err)
	}
}
