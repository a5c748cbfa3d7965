package main

import (
	"context"
	"fmt"

	"face-attendance-go/config"
	"face-attendance-go/internal/api"
	"face-attendance-go/internal/api/middleware"
	"face-attendance-go/internal/cleanup"
	"face-attendance-go/internal/logger"
	"face-attendance-go/internal/mqtt"
	"face-attendance-go/internal/sse"
	"face-attendance-go/internal/stream"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the stream workers and the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	translator, err := middleware.NewTranslator(cfg.Server.Language)
	if err != nil {
		return err
	}

	hub := sse.NewHub()
	go hub.Run(ctx)

	sink := stream.Fanout{
		stream.SSESink(hub),
		stream.MQTTSink(a.publisher),
		stream.AttendanceSink(a.repo),
	}
	recognizer := stream.NewRecognizer(cfg.Recognition, a.registry.Profiles(), a.vision.IsNeuralAvailable(),
		logger.Component("recognizer"))
	pool := stream.NewPool(nil, func(sc config.StreamConfig, source stream.FrameSource) *stream.Worker {
		return stream.NewWorker(sc.ID, source, a.vision, recognizer, sink, cfg.Recognition)
	})
	if a.mqtt != nil && cfg.MQTT.HomeAssistant {
		ids := make([]string, len(cfg.Streams))
		for i, sc := range cfg.Streams {
			ids[i] = sc.ID
		}
		mqtt.NewDiscovery(a.mqtt, cfg.MQTT.DiscoveryPrefix).RegisterStreams(ids, Version)
	}
	started := pool.Start(ctx, cfg.Streams)
	log.Infof("%d of %d stream(s) started (mode %s)", started, len(cfg.Streams), a.vision.Mode())

	cleanup.NewService(a.repo, cfg.Cleanup.RetentionDays, cfg.Cleanup.Interval).Start(ctx)

	handler := api.NewHandler(a.registry, pool, a.enroller, a.vision, a.repo, hub)
	router := api.NewRouter(handler, translator, a.vision.DebugSvc)

	err = api.Serve(ctx, fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), router)
	cancel()
	pool.Wait()
	return err
}
