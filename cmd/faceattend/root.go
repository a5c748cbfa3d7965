package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"face-attendance-go/config"
	"face-attendance-go/internal/db"
	"face-attendance-go/internal/db/repository"
	"face-attendance-go/internal/enrollment"
	"face-attendance-go/internal/gallery"
	"face-attendance-go/internal/logger"
	"face-attendance-go/internal/mqtt"
	"face-attendance-go/internal/opencv"
	"face-attendance-go/internal/recognition"
	"face-attendance-go/internal/util/timezone"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// Version is the application version.
const Version = "0.1.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:          "faceattend",
	Short:        "Face recognition attendance service",
	Version:      Version,
	SilenceUsage: true,
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initEnv)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/config/config.yaml", "Path to the YAML config file")
}

func initEnv() {
	// optional .env next to the binary
	_ = godotenv.Load()
}

// app bundles the components every command needs.
type app struct {
	cfg       *config.Config
	db        *gorm.DB
	repo      *repository.SQLiteRepository
	vision    *opencv.Service
	registry  *gallery.Registry
	mqtt      *mqtt.Client
	publisher *mqtt.Publisher
	enroller  *enrollment.Service
	logFile   io.Closer
}

// newApp loads the configuration and opens database, vision pipeline and
// gallery. The MQTT client is only connected when withMQTT is set.
func newApp(withMQTT bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logFile, err := logger.Init(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	timezone.Initialize(cfg.Server.Timezone)

	a := &app{cfg: cfg, logFile: logFile}
	log.Info("Initializing database...")
	if a.db, err = db.Open(cfg.DB); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.repo = repository.NewSQLiteRepository(a.db)

	if a.vision, err = opencv.NewService(cfg.OpenCV, cfg.Recognition); err != nil {
		a.Close()
		return nil, err
	}

	store, err := gallery.NewStore(cfg.Gallery.Dir, a.vision.IsNeuralAvailable(), cfg.Recognition.EmbeddingSize,
		logger.Component("gallery"))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.registry = gallery.NewRegistry(store, recognition.NewProfileSet(), logger.Component("registry"))
	if _, err := a.registry.Reload(); err != nil {
		a.Close()
		return nil, err
	}

	if withMQTT && cfg.MQTT.Enabled {
		a.mqtt = mqtt.NewClient(cfg.MQTT)
		if err := a.mqtt.Start(); err != nil {
			log.Warnf("Failed to initialize MQTT client: %v. Continuing without MQTT.", err)
			a.mqtt = nil
		}
	}
	a.publisher = mqtt.NewPublisher(a.mqtt)
	a.enroller = enrollment.NewService(a.registry, a.repo, a.publisher, logger.Component("enrollment"))
	return a, nil
}

// Close releases everything newApp opened.
func (a *app) Close() {
	if a.mqtt != nil {
		a.mqtt.Stop()
	}
	if a.vision != nil {
		if err := a.vision.Close(); err != nil {
			log.Warnf("Failed to close OpenCV service: %v", err)
		}
	}
	if a.db != nil {
		if err := db.Close(a.db); err != nil {
			log.Warnf("Failed to close database: %v", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}
