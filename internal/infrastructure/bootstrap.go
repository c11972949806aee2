package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"acquisim/internal/bank"
	"acquisim/internal/cards"
	"acquisim/internal/config"
	"acquisim/internal/ledger"
	"acquisim/internal/metrics"
	metricsProm "acquisim/internal/metrics/prometheus"
	"acquisim/internal/txlog"
	transportHTTP "acquisim/internal/transport/http"
	transportNATS "acquisim/internal/transport/nats"
)

// Bootstrap initialises all dependencies from config and wires up the
// application. Returns the App, a cleanup function, or an error.
func Bootstrap(ctx context.Context) (*App, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	var cleanupFns []func()

	// ── Event bus ──────────────────────────────────────────────────────────
	var bus txlog.MessageBus = txlog.NopBus{}
	if cfg.BusProvider == "nats" {
		nc, err := connectNats(ctx, cfg.NatsAddr())
		if err != nil {
			return nil, runCleanup(cleanupFns), err
		}
		cleanupFns = append(cleanupFns, nc.Close)
		bus = transportNATS.NewBus(nc)
	}

	// ── Core wiring ────────────────────────────────────────────────────────
	log := txlog.New(bus)
	led := ledger.New(log)
	registry := cards.NewRegistry()
	emission := bank.NewEmissionService(led, log)

	var collector metrics.Collector = metrics.NoOpCollector{}
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		promCollector := metricsProm.NewCollector("acquisim")
		reg := prometheus.NewRegistry()
		if err := promCollector.Register(reg); err != nil {
			return nil, runCleanup(cleanupFns), fmt.Errorf("register metrics: %w", err)
		}
		collector = promCollector
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	sim := bank.NewSimulator(led, log, registry, emission, cfg.StoreAccountID, collector)

	// The store account is where plain captures land. Seed it with an
	// opening balance if configured.
	if _, err := led.CreateAccount(cfg.StoreAccountID, nil); err != nil {
		return nil, runCleanup(cleanupFns), fmt.Errorf("create store account: %w", err)
	}
	if cfg.StoreOpening > 0 {
		if _, err := emission.Emit(cfg.StoreAccountID, cfg.StoreOpening); err != nil {
			return nil, runCleanup(cleanupFns), fmt.Errorf("seed store account: %w", err)
		}
	}
	slog.Info("bank simulator ready", "store_account", cfg.StoreAccountID, "bus", cfg.BusProvider)

	// ── Transports ─────────────────────────────────────────────────────────
	handler := transportHTTP.NewHandler(sim, led, registry, emission, log)
	creds := transportHTTP.Credentials{Username: cfg.TerminalUser, Password: cfg.TerminalPass}
	servers := []Server{
		transportHTTP.NewServer(cfg.ApiAddr(), handler, creds, metricsHandler),
	}

	return NewApp(servers), runCleanup(cleanupFns), nil
}

// runCleanup returns a single function that calls all cleanup functions
// in reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
