package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/apuctl/apuctl/internal/api"
	"github.com/apuctl/apuctl/internal/app"
	"github.com/apuctl/apuctl/internal/health"
	"github.com/apuctl/apuctl/internal/infra/monitor"
	"github.com/apuctl/apuctl/internal/infra/native"
	"github.com/apuctl/apuctl/internal/infra/sqlite"
	"github.com/apuctl/apuctl/internal/session"
)

var errInsufficientPrivilege = errors.New("insufficient privilege for SMU access")

// Daemon is the apuctl runtime. It wires together all services.
//
// The device session is not opened by New: commands that only touch the
// profile store never need the driver. Call OpenDevice first for anything
// that talks to hardware.
type Daemon struct {
	Config   Config
	Log      *slog.Logger
	DB       *sqlite.DB
	Library  native.Library
	Session  *session.Manager
	Profiles *app.ProfileService
	Monitor  *monitor.Poller
	Health   *health.Checker
	Server   *api.Server
	cancel   context.CancelFunc
}

// New creates a Daemon from ~/.apuctl/config.toml.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	return newDaemon(cfg, apuctlHome())
}

func newDaemon(cfg Config, home string) (*Daemon, error) {
	logger := NewLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)
	log := logger.With("component", "daemon")

	db, err := sqlite.Open(home)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	lib, err := native.Open(cfg.Device.Driver)
	if err != nil {
		db.Close()
		return nil, err
	}

	sess := session.New(lib,
		session.WithLogger(logger),
		session.WithCoreCount(cfg.Device.Cores),
	)

	d := &Daemon{
		Config:   cfg,
		Log:      log,
		DB:       db,
		Library:  lib,
		Session:  sess,
		Profiles: app.NewProfileService(db, sess, logger),
	}

	if cfg.Monitor.Enabled {
		mon, err := monitor.NewPoller(sess, cfg.MonitorSettings(), logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		d.Monitor = mon
	}

	// Typed nil would pass the nil check inside NewChecker.
	var probe health.SampleProbe
	if d.Monitor != nil {
		probe = d.Monitor
	}
	d.Health = health.NewChecker(db, sess, probe)
	if cfg.Device.InitTable {
		d.Health.WatchTable(sess, tableMaxAge(d.Monitor))
	}

	srv := api.NewServer(sess, d.Profiles, logger)
	srv.SetHealth(d.Health)
	if d.Monitor != nil {
		srv.SetMonitor(d.Monitor)
	}
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}
	d.Server = srv

	return d, nil
}

// OpenDevice acquires the driver session, initializes the metrics table
// when configured, and records what was detected.
func (d *Daemon) OpenDevice(ctx context.Context) error {
	if d.Library.Name() == native.DriverRyzenAdj {
		if err := checkPrivilege(); err != nil {
			d.Log.Warn("driver may fail to initialize", "err", err)
		}
	}

	if err := d.Session.Open(ctx); err != nil {
		return err
	}
	if d.Config.Device.InitTable {
		if err := d.Session.InitTable(ctx); err != nil {
			d.Log.Warn("metrics table unavailable", "err", err)
		}
	}

	d.recordDeviceInfo("driver", d.Library.Name())
	d.recordDeviceInfo("family", d.Session.Family().String())
	if v, err := d.Session.InterfaceVersion(ctx); err == nil {
		d.recordDeviceInfo("bios_if_ver", strconv.Itoa(v))
	}
	return nil
}

func (d *Daemon) recordDeviceInfo(key, value string) {
	if err := d.DB.SetDeviceInfo(key, value); err != nil {
		d.Log.Warn("record device info", "key", key, "err", err)
	}
}

// tableMaxAge is how old the metrics table may get before the health
// check refreshes it. The poller keeps it fresh when running.
func tableMaxAge(mon *monitor.Poller) time.Duration {
	if mon == nil {
		return 2 * time.Minute
	}
	return 3 * mon.Interval()
}

// Serve opens the device, starts background services and the HTTP
// server, and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if d.Session.State() == session.StateUninitialized {
		if err := d.OpenDevice(ctx); err != nil {
			return fmt.Errorf("open device: %w", err)
		}
	}

	if d.Monitor != nil {
		go d.Monitor.Run(ctx)
	}
	go d.Health.Run(ctx)

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		_ = httpServer.Shutdown(shutdownCtx)
	}()

	d.Log.Info("serving", "addr", "http://"+addr, "driver", d.Library.Name(), "family", d.Session.Family().String())
	if d.Config.Telemetry.Prometheus {
		d.Log.Info("metrics enabled", "url", "http://"+addr+"/metrics")
	}

	err := httpServer.ListenAndServe()
	d.Close()
	if err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down all daemon resources. The driver session is released
// before the database closes.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Session != nil && d.Session.State() != session.StateClosed {
		if err := d.Session.Close(); err != nil {
			d.Log.Error("release session", "err", err)
		}
	}
	if d.DB != nil {
		_ = d.DB.Close()
		d.DB = nil
	}
}
