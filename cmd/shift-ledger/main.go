package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/united-manufacturing-hub/shift-ledger/cmd/shift-ledger/controllers"
	"github.com/united-manufacturing-hub/shift-ledger/cmd/shift-ledger/helpers"
	"github.com/united-manufacturing-hub/shift-ledger/internal"
	"github.com/united-manufacturing-hub/shift-ledger/internal/downtime"
	"github.com/united-manufacturing-hub/shift-ledger/internal/events"
	"github.com/united-manufacturing-hub/shift-ledger/internal/oee"
	"github.com/united-manufacturing-hub/shift-ledger/internal/postgresql"
	"github.com/united-manufacturing-hub/shift-ledger/internal/provisional"
	"github.com/united-manufacturing-hub/shift-ledger/internal/supervision"
	"go.uber.org/zap"
)

var buildtime string

func main() {
	helpers.InitLogging()
	zap.S().Infof("This is shift-ledger build date: %s", buildtime)

	cfg, err := LoadConfig()
	if err != nil {
		zap.S().Fatalf("Invalid configuration: %s", err)
	}
	InitPrometheus()

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(1000000))

	// tasks run in this order on shutdown, so the server stops accepting requests first
	var tasks []internal.ShutdownTask

	notifier := events.NewNotifier(newPublisher(cfg))

	policy := internal.DefaultCallPolicy()
	policy.Timeout = cfg.BackendTimeout
	policy.Retries = int64(cfg.BackendReadRetries)

	cache := internal.NewResultCache(cfg.ShiftListCacheTTL)
	var repo downtime.StopRepository
	var service *supervision.Service
	var pg *postgresql.Connection
	switch cfg.LedgerBackend {
	case BackendPostgres:
		pgCfg, err := postgresql.ConfigFromEnv()
		if err != nil {
			zap.S().Fatalf("Invalid postgres configuration: %s", err)
		}
		pg, err = postgresql.NewConnection(pgCfg, policy)
		if err != nil {
			zap.S().Fatalf("Failed to connect to postgres: %s", err)
		}
		health.AddReadinessCheck("database", pg.GetHealthCheck())
		health.AddLivenessCheck("database", pg.GetHealthCheck())
		repo = pg
		service = newSupervisionService(cfg, pg, notifier, cache)
	case BackendMemory:
		zap.S().Warnf("Stops are kept in memory and lost on restart, shift supervision is disabled")
		repo = downtime.NewMemoryRepository()
	}

	ledger := downtime.NewLedger(repo,
		downtime.WithNotifier(notifier),
		downtime.WithSingleOpenStopPerLine(cfg.EnforceSingleOpenStop),
		// stop rollups are part of the cached shift listings
		downtime.WithChangeHook(cache.Invalidate),
	)

	kv, closeKV := newProvisionalKV(cfg, health)
	stops := provisional.NewStops(kv)
	reconciler := provisional.NewReconciler(stops, ledger, cfg.ReconcileSchedule)
	if err = reconciler.Start(); err != nil {
		zap.S().Fatalf("Failed to start reconciler: %s", err)
	}

	router := SetupRouter(cfg.Accounts, &controllers.Controller{
		Ledger:      ledger,
		Supervision: service,
		Provisional: stops,
		Signatures:  provisional.NewSignatureBook(kv, nil),
		Reconciler:  reconciler,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServicePort),
		Handler:           router,
		ReadHeaderTimeout: internal.TenSeconds,
	}
	go func() {
		zap.S().Infof("Serving API on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.S().Fatalf("Failed to serve API: %s", err)
		}
	}()

	tasks = append(tasks,
		internal.ShutdownTask{Name: "http server", Fn: server.Shutdown},
		internal.ShutdownTask{Name: "reconciler", Fn: reconciler.Stop},
		internal.ShutdownTask{Name: "event publisher", Fn: func(context.Context) error { return notifier.Close() }},
		internal.ShutdownTask{Name: "provisional store", Fn: func(context.Context) error { return closeKV() }},
	)
	if pg != nil {
		tasks = append(tasks, internal.ShutdownTask{Name: "database", Fn: func(context.Context) error {
			pg.Close()
			return nil
		}})
	}
	gs := internal.NewGracefulShutdown(internal.ThirtySeconds, tasks...)

	health.AddReadinessCheck("shutdown", func() error {
		if gs.ShuttingDown() {
			return errors.New("shutting down")
		}
		return nil
	})
	InitHealthCheck(health)

	gs.Wait()
}

func newSupervisionService(cfg Config, pg *postgresql.Connection, notifier *events.Notifier, cache *internal.ResultCache) *supervision.Service {
	opts := []supervision.Option{supervision.WithNotifier(notifier), supervision.WithCache(cache)}

	var calculator supervision.SnapshotCalculator = pg
	if cfg.OEECalculator == BackendRPC {
		calculator = oee.NewRPCCalculator(cfg.OEERPCURL, cfg.OEERPCKey, cfg.OEERPCFunction, cfg.BackendTimeout)
	}
	switch {
	case cfg.AtomicTransitions && cfg.OEECalculator == BackendPostgres:
		zap.S().Infof("Closing and reopening shifts in single transactions")
		opts = append(opts, supervision.WithAtomicTransitions(pg))
	case cfg.AtomicTransitions:
		// the snapshot is computed outside the database, nothing to share a transaction with
		zap.S().Warnf("ATOMIC_SHIFT_TRANSITIONS needs OEE_CALCULATOR=postgres, running the steps one by one")
	}
	return supervision.NewService(pg, calculator, opts...)
}

func newPublisher(cfg Config) events.Publisher {
	switch cfg.EventSink {
	case SinkMQTT:
		p, err := events.NewMQTTPublisher(cfg.MQTTBrokerURL, cfg.MQTTClientID, cfg.MQTTUsername, cfg.MQTTPassword)
		if err != nil {
			zap.S().Fatalf("Failed to connect to MQTT broker %s: %s", cfg.MQTTBrokerURL, err)
		}
		return p
	case SinkKafka:
		p, err := events.NewKafkaPublisher(cfg.KafkaBootstrapServers)
		if err != nil {
			zap.S().Fatalf("Failed to connect to kafka %v: %s", cfg.KafkaBootstrapServers, err)
		}
		return p
	}
	return events.NoopPublisher{}
}

func newProvisionalKV(cfg Config, health healthcheck.Handler) (provisional.KV, func() error) {
	switch cfg.ProvisionalBackend {
	case BackendRedis:
		kv := provisional.NewRedisKV(cfg.RedisURI, cfg.RedisPassword, cfg.RedisDB)
		health.AddReadinessCheck("redis", func() error {
			if kv.IsAvailable() {
				return nil
			}
			return errors.New("healthcheck failed to reach redis")
		})
		return kv, kv.Close
	case BackendSQLite:
		ctx, cancel := context.WithTimeout(context.Background(), internal.TenSeconds)
		defer cancel()
		kv, err := provisional.NewSQLiteKV(ctx, cfg.ProvisionalSQLitePath)
		if err != nil {
			zap.S().Fatalf("Failed to open provisional store %s: %s", cfg.ProvisionalSQLitePath, err)
		}
		return kv, kv.Close
	}
	zap.S().Infof("Provisional records are kept in memory")
	return provisional.NewMemoryKV(), func() error { return nil }
}

func InitPrometheus() {
	metricsPath := "/metrics"
	metricsPort := ":2112"
	zap.S().Debugf("Setting up metrics %s %v", metricsPath, metricsPort)

	http.Handle(metricsPath, promhttp.Handler())
	go func() {
		/* #nosec G114 */
		err := http.ListenAndServe(metricsPort, nil)
		if err != nil {
			zap.S().Errorf("Error starting metrics: %s", err)
		}
	}()
}

func InitHealthCheck(health healthcheck.Handler) {
	zap.S().Debugf("Setting up healthcheck")
	go func() {
		/* #nosec G114 */
		err := http.ListenAndServe("0.0.0.0:8086", health)
		if err != nil {
			zap.S().Errorf("Error starting healthcheck: %s", err)
		}
	}()
}
