package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/tutu-network/taskd/internal/api"
	"github.com/tutu-network/taskd/internal/health"
	"github.com/tutu-network/taskd/internal/infra/metrics"
	"github.com/tutu-network/taskd/internal/infra/sqlite"
	"github.com/tutu-network/taskd/internal/registry"
)

// Daemon is the taskd runtime. It owns the task registry for the life of
// the process and wires it into the HTTP server.
type Daemon struct {
	Config   Config
	RunID    string
	Registry *registry.Registry
	Server   *api.Server
	Health   *health.Checker

	// Optional task event journal (nil when disabled)
	DB      *sqlite.DB
	Journal *sqlite.Journal

	logFile io.Closer
	cancel  context.CancelFunc
}

// New creates and initializes a Daemon from the config file.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Daemon{
		Config: cfg,
		RunID:  uuid.NewString(),
	}

	if err := d.setupLogging(); err != nil {
		return nil, err
	}

	opts := []registry.Option{}
	if cfg.Telemetry.Prometheus {
		opts = append(opts, registry.WithObserver(metrics.Observer{}))
	}

	// Task event journal
	if cfg.Journal.Enabled {
		db, err := sqlite.Open(cfg.Journal.Dir)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		d.DB = db
		d.Journal = sqlite.NewJournal(db, d.RunID, cfg.Journal.Buffer)
		opts = append(opts, registry.WithObserver(d.Journal))
	}

	d.Registry = registry.New(opts...)

	// Health checker
	if d.Journal != nil {
		d.Health = health.NewChecker(d.Registry, d.Journal)
	} else {
		d.Health = health.NewChecker(d.Registry, nil)
	}

	// API server
	srv := api.NewServer(d.Registry)
	srv.SetHealth(d.Health)
	srv.SetCORSOrigins(cfg.API.CORSOrigins)
	srv.SetRequestTimeout(parseDuration(cfg.API.RequestTimeout, 30*time.Second))
	srv.SetMaxBodyBytes(cfg.API.MaxBodyBytes)
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}
	if cfg.Logging.Level == "debug" {
		srv.EnableAccessLog()
	}
	d.Server = srv

	return d, nil
}

// setupLogging points the standard logger at the configured file.
func (d *Daemon) setupLogging() error {
	if d.Config.Logging.File == "" {
		return nil
	}
	f, err := os.OpenFile(d.Config.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(f)
	d.logFile = f
	return nil
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.Config.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", d.Config.Addr(), err)
	}
	return d.ServeListener(ctx, ln)
}

// ServeListener serves on an existing listener until ctx is cancelled or
// SIGINT/SIGTERM is received.
func (d *Daemon) ServeListener(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()

	// Background services
	go d.Health.Run(ctx)
	if d.Journal != nil {
		d.Journal.Start(context.Background()) // stopped by Close, which flushes
	}

	httpServer := &http.Server{
		Handler:           d.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case sig := <-sigCh:
			log.Printf("[daemon] received %s, shutting down", sig)
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("[daemon] run %s serving on http://%s", d.RunID, ln.Addr())
	if d.Config.Telemetry.Prometheus {
		log.Printf("[daemon] metrics: http://%s/metrics", ln.Addr())
	}
	if d.Journal != nil {
		log.Printf("[daemon] journal: %s", d.Config.Journal.Dir)
	}

	err := httpServer.Serve(ln)
	cancel()
	<-stopped // in-flight requests drained before the journal is flushed
	d.Close()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close shuts down all daemon resources. Safe to call more than once.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Journal != nil {
		if err := d.Journal.Close(); err == nil {
			log.Printf("[daemon] journal flushed")
		}
	}
	if d.DB != nil {
		_ = d.DB.Close()
		d.DB = nil
	}
	if d.logFile != nil {
		log.SetOutput(os.Stderr)
		_ = d.logFile.Close()
		d.logFile = nil
	}
}
