package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"face-attendance-go/internal/api/middleware"
	"face-attendance-go/internal/opencv"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// NewRouter builds the gin engine with recovery, logging, CORS and i18n.
// debug may be nil.
func NewRouter(h *Handler, translator *middleware.Translator, debug *opencv.DebugService) *gin.Engine {
	if log.GetLevel() < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(nil))
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept-Language"},
		MaxAge:          12 * time.Hour,
	}))
	router.Use(middleware.I18n(translator))

	h.RegisterRoutes(router.Group("/api"))
	if debug != nil {
		debug.RegisterRoutes(router)
	}
	return router
}

// Serve runs the HTTP server until ctx is cancelled and then shuts it down.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info("Server stopped.")
	return nil
}
