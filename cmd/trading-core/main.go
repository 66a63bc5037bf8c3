package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ducminhle1904/crypto-trading-core/internal/config"
	"github.com/ducminhle1904/crypto-trading-core/internal/engine"
	"github.com/ducminhle1904/crypto-trading-core/internal/exchange"
	"github.com/ducminhle1904/crypto-trading-core/internal/exchange/adapters"
	"github.com/ducminhle1904/crypto-trading-core/internal/logger"
	"github.com/ducminhle1904/crypto-trading-core/internal/monitoring"
	"github.com/ducminhle1904/crypto-trading-core/internal/notifications"
	"github.com/ducminhle1904/crypto-trading-core/internal/orders"
	"github.com/ducminhle1904/crypto-trading-core/internal/portfolio"
	"github.com/ducminhle1904/crypto-trading-core/internal/portfolio/storage"
	"github.com/ducminhle1904/crypto-trading-core/internal/risk"
	"github.com/ducminhle1904/crypto-trading-core/internal/sizing"
	"github.com/ducminhle1904/crypto-trading-core/pkg/reporting"
)

func main() {
	var (
		reportPath     = flag.String("report", "", "Write an xlsx session report to this path on shutdown")
		statusInterval = flag.Duration("status-interval", 5*time.Minute, "Console status table interval (0 disables)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLog, err := logger.NewLogger("trading-core")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLog.Close()

	store := storage.NewFileStorage(cfg.Portfolio.StateFile)
	pm := portfolio.NewManager(portfolio.Config{
		InitialCash:    cfg.Portfolio.InitialBalance,
		CommissionRate: cfg.Portfolio.CommissionRate,
		MaxPositions:   cfg.Portfolio.MaxPositions,
	}, store, appLog)
	if err := pm.Initialize(); err != nil {
		log.Fatalf("Failed to initialize portfolio: %v", err)
	}
	defer pm.Close()

	rm := risk.NewManager(risk.Config{
		MaxPortfolioRisk:  cfg.Risk.MaxPortfolioRisk,
		MaxSinglePosition: cfg.Risk.MaxSinglePosition,
		MaxDrawdown:       cfg.Risk.MaxDrawdown,
		MaxConcentration:  cfg.Risk.MaxConcentration,
		Confidence:        cfg.Risk.Confidence,
		RiskFreeRate:      cfg.Risk.RiskFreeRate,
		MetricsHistory:    cfg.Risk.MetricsHistory,
		AlertHistory:      cfg.Risk.AlertHistory,
		AlertDedupWindow:  cfg.Risk.AlertDedupWindow,
	}, appLog)

	sizer := sizing.NewSizer(sizing.Config{
		RiskPerTrade:    cfg.Sizing.RiskPerTrade,
		MaxPositionSize: cfg.Sizing.MaxPositionSize,
		MinPositionSize: cfg.Sizing.MinPositionSize,
		TargetVol:       cfg.Sizing.TargetVol,
		DefaultVol:      cfg.Sizing.DefaultVol,
	})

	ex, err := adapters.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create exchange adapter: %v", err)
	}

	om := orders.NewManager(orders.Config{
		PollInterval:   cfg.Orders.PollInterval,
		RequestTimeout: cfg.Exchange.Timeout,
		MaxRetries:     cfg.Orders.MaxRetries,
		HistorySize:    cfg.Orders.HistorySize,
	}, ex, pm, appLog)

	eng := engine.New(engine.Config{
		RiskRecomputeInterval: cfg.Risk.RecomputeInterval,
		CleanupInterval:       cfg.Orders.CleanupInterval,
	}, sizer, pm, rm, om, appLog)

	// Observability sinks subscribe before the engine starts so no event
	// is missed.
	health := monitoring.NewHealthChecker()
	recorder := monitoring.NewRecorder(health)
	om.SubscribeAll(recorder.HandleOrderEvent)
	rm.AddAlertHandler(recorder.HandleRiskAlert)

	if cfg.Notifications.TelegramToken != "" && cfg.Notifications.TelegramChatID != "" {
		notifier := notifications.NewTelegramNotifier(
			cfg.Notifications.TelegramToken, cfg.Notifications.TelegramChatID)
		relay := notifications.NewAlertRelay(notifier, appLog)
		om.SubscribeAll(relay.HandleOrderEvent)
		rm.AddAlertHandler(relay.HandleRiskAlert)
		appLog.Info("Telegram notifications enabled")
	}

	startHTTPServers(cfg, health, appLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		log.Fatalf("Failed to start trading engine: %v", err)
	}
	health.SetConnected(true)
	appLog.Info("Trading core started on %s (%s)", ex.Name(), ex.Environment())

	console := reporting.NewConsoleReporter()
	statusDone := make(chan struct{})
	if *statusInterval > 0 {
		go statusLoop(ctx, *statusInterval, eng, ex, health, console, statusDone)
	} else {
		close(statusDone)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	appLog.Info("Received signal %v, shutting down", sig)

	cancel()
	eng.Stop()
	<-statusDone

	printSessionSummary(console, pm, eng)

	if *reportPath != "" {
		if err := writeSessionReport(*reportPath, cfg, pm, rm); err != nil {
			appLog.Error("Failed to write session report: %v", err)
		} else {
			appLog.Info("Session report written to %s", *reportPath)
		}
	}
}

// startHTTPServers exposes the Prometheus and health endpoints. Failures
// are logged, not fatal; the trading loop works without them.
func startHTTPServers(cfg *config.Config, health *monitoring.HealthChecker, appLog *logger.Logger) {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", monitoring.NewMetricsHandler())
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort)
		appLog.Info("Prometheus metrics listening on %s/metrics", addr)
		if err := http.ListenAndServe(addr, metricsMux); err != nil {
			appLog.Error("Metrics server stopped: %v", err)
		}
	}()

	healthMux := http.NewServeMux()
	healthMux.Handle("/health", health)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Monitoring.HealthPort)
		appLog.Info("Health endpoint listening on %s/health", addr)
		if err := http.ListenAndServe(addr, healthMux); err != nil {
			appLog.Error("Health server stopped: %v", err)
		}
	}()
}

// statusLoop periodically renders console tables and refreshes the
// portfolio and connectivity gauges.
func statusLoop(ctx context.Context, interval time.Duration, eng *engine.Engine,
	ex exchange.Exchange, health *monitoring.HealthChecker,
	console *reporting.ConsoleReporter, done chan struct{}) {

	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			healthy := ex.HealthCheck(ctx)
			health.SetConnected(healthy)

			metrics := eng.GetPortfolioMetrics()
			monitoring.UpdatePortfolio(metrics.TotalValue, metrics.CashBalance,
				metrics.UnrealizedPnL, metrics.RealizedPnL, metrics.NumPositions)

			summary := eng.GetRiskSummary()
			monitoring.UpdateRisk(summary.Metrics.VaR1d, summary.Metrics.MaxDrawdown,
				summary.ReservedRisk, summary.CommittedRisk)

			active := eng.GetActiveOrders("")
			monitoring.UpdateActiveOrders(len(active))

			console.PrintPortfolioSummary(metrics)
			console.PrintOrders(active)
			console.PrintRiskSummary(summary)
		}
	}
}

func printSessionSummary(console *reporting.ConsoleReporter, pm *portfolio.Manager, eng *engine.Engine) {
	console.PrintPortfolioSummary(eng.GetPortfolioMetrics())
	console.PrintClosedPositions(pm.ClosedPositions(20))
	console.PrintRiskSummary(eng.GetRiskSummary())
}

func writeSessionReport(path string, cfg *config.Config, pm *portfolio.Manager, rm *risk.Manager) error {
	histories := portfolio.DefaultConfig()
	return reporting.NewExcelReporter().WriteSessionXLSX(reporting.SessionReport{
		ClosedPositions: pm.ClosedPositions(histories.ClosedHistorySize),
		Transactions:    pm.TransactionHistory(histories.TransactionHistory),
		RiskHistory:     rm.MetricsHistory(cfg.Risk.MetricsHistory),
		Metrics:         pm.GetPortfolioMetrics(),
	}, path)
}
