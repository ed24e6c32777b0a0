package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/biometric/capture"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/biometric/codec"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/biometric/match"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/config"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/db"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/httpapi"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/logging"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/metrics"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/notify"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/store/memory"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/store/postgres"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/store/sqlite"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "biogate-server: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Logging, version)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("biogate-server exited")
	}
}

// stores groups the persistence backends selected by configuration.
type stores struct {
	devices     store.DeviceStore
	heartbeats  store.HeartbeatStore
	enrollments store.EnrollmentStore
	events      store.AccessEventStore
	close       func()
}

func run(cfg *config.Config, log *logrus.Entry) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	c, err := codec.New([]byte(cfg.Biometric.EncryptionKey))
	if err != nil {
		return err
	}
	matcher, err := match.NewExactMatcher(cfg.Biometric.MatchThreshold)
	if err != nil {
		return err
	}

	m := metrics.New()
	engine := match.NewEngine(c, matcher, log, match.WithSkipHook(m.CandidateSkipped))

	dev, err := openDevice(ctx, cfg.Biometric.Reader, log)
	if err != nil {
		return err
	}
	defer func() { _ = dev.Disconnect(context.Background()) }()

	var notifier notify.Notifier = notify.Nop{}
	if cfg.MQTT.Enabled {
		mq, err := notify.ConnectMQTT(cfg.MQTT)
		if err != nil {
			return err
		}
		defer mq.Close()
		notifier = mq
		log.WithField("broker", cfg.MQTT.Broker).Info("publishing access events over mqtt")
	}

	registry := service.NewDeviceRegistry(st.devices)
	verify := service.NewVerificationService(
		dev, engine, st.enrollments, service.NewResolver(st.events), registry, notifier, m, log,
		service.VerificationConfig{
			CaptureTimeout:        cfg.Biometric.CaptureTimeout,
			MaxConcurrentAttempts: int64(cfg.Biometric.MaxConcurrentAttempts),
			RejectUnknownDevices:  len(cfg.Devices.Known) > 0,
		},
	)

	pruner := service.NewHeartbeatPruner(st.heartbeats, service.PrunerConfig{
		RetentionDays: cfg.Heartbeat.RetentionDays,
		IntervalHours: cfg.Heartbeat.PruneIntervalHours,
	}, log)
	pruner.Start(ctx)
	defer pruner.Stop()

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:              log,
		Addr:                cfg.HTTP.Addr,
		ReadTimeout:         cfg.HTTP.ReadTimeout,
		WriteTimeout:        cfg.HTTP.WriteTimeout,
		IdleTimeout:         cfg.HTTP.IdleTimeout,
		HeartbeatService:    service.NewHeartbeatService(st.heartbeats, registry, m, log),
		VerificationService: verify,
		EnrollmentService:   service.NewEnrollmentService(dev, c, st.enrollments, log, cfg.Biometric.CaptureTimeout),
		Events:              st.events,
		Device:              dev,
		Metrics:             m,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithFields(logrus.Fields{
			"addr":    cfg.HTTP.Addr,
			"storage": cfg.Storage.Driver,
			"reader":  cfg.Biometric.Reader.Mode,
		}).Info("listening")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStores(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*stores, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return &stores{
			devices:     memory.NewDeviceStore(append([]string{cfg.Biometric.Reader.DeviceID}, cfg.Devices.Known...)),
			heartbeats:  memory.New(),
			enrollments: memory.NewEnrollmentStore(),
			events:      memory.NewAccessEventStore(),
			close:       func() {},
		}, nil

	case "sqlite":
		conn, err := db.Open(ctx, db.Config{Path: cfg.Storage.SQLitePath})
		if err != nil {
			return nil, err
		}
		if cfg.Env == "dev" || len(cfg.Devices.Known) > 0 {
			if err := db.SeedDev(ctx, conn, db.SeedDevOptions{
				KnownReaders:  cfg.Devices.Known,
				DefaultReader: cfg.Biometric.Reader.DeviceID,
			}); err != nil {
				_ = conn.Close()
				return nil, err
			}
		}
		writer := db.NewWorker(conn)
		log.WithField("path", cfg.Storage.SQLitePath).Info("sqlite storage ready")
		return &stores{
			devices:     sqlite.NewDeviceStore(conn, writer),
			heartbeats:  sqlite.NewHeartbeatStore(conn, writer),
			enrollments: sqlite.NewEnrollmentStore(conn, writer),
			events:      sqlite.NewAccessEventStore(conn, writer),
			close:       closeSQLite(conn, writer),
		}, nil

	case "postgres":
		pool, err := postgres.Open(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		log.Info("postgres storage ready")
		// Reader liveness is process-local with the postgres driver.
		return &stores{
			devices:     memory.NewDeviceStore(append([]string{cfg.Biometric.Reader.DeviceID}, cfg.Devices.Known...)),
			heartbeats:  memory.New(),
			enrollments: postgres.NewEnrollmentStore(pool),
			events:      postgres.NewAccessEventStore(pool),
			close:       pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func closeSQLite(conn *sql.DB, writer *db.Worker) func() {
	return func() {
		writer.Close()
		_ = conn.Close()
	}
}

func openDevice(ctx context.Context, rc config.ReaderConfig, log logrus.FieldLogger) (capture.Device, error) {
	var dev capture.Device
	switch rc.Mode {
	case "hardware":
		dev = capture.NewHardware(capture.HardwareConfig{Addr: rc.Addr})
	default:
		sim, err := capture.NewSimulated(capture.SimulatedConfig{
			DeviceID:   rc.DeviceID,
			SessionKey: []byte(rc.SessionKey),
			ReadDelay:  rc.ReadDelay,
		})
		if err != nil {
			return nil, err
		}
		dev = sim
	}

	if err := dev.Connect(ctx); err != nil {
		return nil, err
	}
	info := dev.Info()
	log.WithFields(logrus.Fields{
		"device_id": info.ID,
		"firmware":  info.Firmware,
		"source":    info.Source,
	}).Info("capture device connected")
	return dev, nil
}
