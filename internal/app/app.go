package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bitskyai/producer-agent/internal/config"
	"github.com/bitskyai/producer-agent/internal/constants"
	"github.com/bitskyai/producer-agent/internal/controlplane"
	"github.com/bitskyai/producer-agent/internal/platform/logger"
	"github.com/bitskyai/producer-agent/internal/platform/metrics"
	"github.com/bitskyai/producer-agent/internal/producer"
	"github.com/bitskyai/producer-agent/internal/soi"
)

// App wires together the config resolver, the control-plane and target
// system clients, the producer façade, and the operational HTTP
// surface.
type App struct {
	Log      *logger.Logger
	Cfg      Config
	Producer *producer.Producer
	Router   *gin.Engine

	httpServer *http.Server
}

// New constructs an App from the process environment. It never talks to
// the network; all of that happens once Start is called.
func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("loading configuration")
	cfg := LoadConfig(log)

	resolver := config.NewResolver(log, cfg.ConfigFile, cfg.PublicDir)

	cpClient := controlplane.New(log, controlplane.DefaultConfig())
	soiClient := soi.New(log, soi.DefaultConfig())
	metricsRegistry := metrics.New(nil)

	p := producer.New(log, constants.Default(), resolver, cpClient, soiClient, metricsRegistry)
	router := wireRouter(p)

	return &App{
		Log:      log,
		Cfg:      cfg,
		Producer: p,
		Router:   router,
	}, nil
}

// Start launches the producer's background watch/job loop. Idempotent.
func (a *App) Start() {
	if a == nil || a.Producer == nil {
		return
	}
	a.Producer.Start()
}

// Run blocks serving the operational HTTP surface on Cfg.HTTPAddr until
// ctx is cancelled, at which point it shuts the server down gracefully.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	a.httpServer = &http.Server{Addr: a.Cfg.HTTPAddr, Handler: a.Router}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(shutdownCtx)
	}
}

// Close stops the producer and flushes the logger. Safe to call more
// than once.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Producer != nil {
		a.Producer.Stop()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
