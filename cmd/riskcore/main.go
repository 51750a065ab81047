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

	"github.com/joho/godotenv"

	"github.com/algotrader-dev/forex-risk-core/internal/account"
	"github.com/algotrader-dev/forex-risk-core/internal/broker"
	"github.com/algotrader-dev/forex-risk-core/internal/broker/bybit"
	"github.com/algotrader-dev/forex-risk-core/internal/config"
	"github.com/algotrader-dev/forex-risk-core/internal/correlation"
	"github.com/algotrader-dev/forex-risk-core/internal/engine"
	"github.com/algotrader-dev/forex-risk-core/internal/logger"
	"github.com/algotrader-dev/forex-risk-core/internal/margin"
	"github.com/algotrader-dev/forex-risk-core/internal/monitoring"
	"github.com/algotrader-dev/forex-risk-core/internal/portfolio"
	"github.com/algotrader-dev/forex-risk-core/internal/riskstate"
	"github.com/algotrader-dev/forex-risk-core/internal/session"
	"github.com/algotrader-dev/forex-risk-core/internal/sizing"
	"github.com/algotrader-dev/forex-risk-core/internal/stops"
	"github.com/algotrader-dev/forex-risk-core/internal/trailing"
)

func main() {
	var (
		envFile     = flag.String("env", ".env", "Environment file path (default: .env)")
		interval    = flag.String("interval", "60", "Kline interval for indicator data (minutes)")
		tickEvery   = flag.Duration("tick", 15*time.Second, "Evaluation cycle interval")
		statusEvery = flag.Duration("status", 5*time.Minute, "Console status interval")
		useSim      = flag.Bool("sim", false, "Run against the in-memory simulated broker")
		simBalance  = flag.Float64("sim-balance", 10000, "Starting balance for the simulated broker")
	)
	flag.Parse()

	if err := loadEnvFile(*envFile); err != nil {
		log.Printf("Warning: Could not load .env file (%v), checking environment variables...", err)
	}

	cfg := config.Load()

	fmt.Println("🛡️  Risk Core Starting...")

	appLog, err := logger.NewLogger(cfg.AccountID)
	if err != nil {
		log.Fatalf("Failed to open session log: %v", err)
	}
	defer appLog.Close()
	fmt.Printf("📝 Session log: %s\n", appLog.GetLogPath())

	brk, err := buildBroker(cfg, *useSim, *simBalance)
	if err != nil {
		log.Fatalf("Broker setup failed: %v", err)
	}

	core, health, err := buildCore(cfg, brk, appLog, *interval)
	if err != nil {
		log.Fatalf("Failed to assemble risk core: %v", err)
	}

	startHTTPServers(cfg, health)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Prime the session before the loops start so the first status
	// print shows real numbers.
	core.OnTick(ctx)
	health.SetConnected(true)
	core.PrintRiskStatus(ctx)

	go runTickLoop(ctx, core, *tickEvery)
	go runTimerLoop(ctx, core, time.Minute)
	go runStatusLoop(ctx, core, *statusEvery)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	fmt.Println("\n🛑 Shutdown signal received...")
	cancel()

	core.PrintRiskStatus(context.Background())
	fmt.Println("✅ Risk core stopped")
}

func loadEnvFile(envFile string) error {
	if _, err := os.Stat(envFile); err == nil {
		return godotenv.Load(envFile)
	}
	return fmt.Errorf("env file %s not found", envFile)
}

func buildBroker(cfg *config.Config, useSim bool, simBalance float64) (broker.Broker, error) {
	if useSim {
		fmt.Println("🧪 Using simulated broker (paper account)")
		return broker.NewSim(simBalance, 100), nil
	}

	apiKey := cfg.Broker.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("BYBIT_API_KEY")
	}
	apiSecret := cfg.Broker.APISecret
	if apiSecret == "" {
		apiSecret = os.Getenv("BYBIT_API_SECRET")
	}
	if apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("BROKER_API_KEY and BROKER_API_SECRET are required (set in environment or .env)")
	}

	client := bybit.NewClient(bybit.Config{
		APIKey:    apiKey,
		APISecret: apiSecret,
		Category:  cfg.Broker.Category,
		Testnet:   cfg.Broker.Testnet,
		Demo:      cfg.Broker.Demo,
	})
	fmt.Printf("🔌 Connected to Bybit (%s)\n", client.GetEnvironment())
	return client, nil
}

func buildCore(cfg *config.Config, brk broker.Broker, appLog *logger.Logger, interval string) (*engine.Core, *monitoring.HealthChecker, error) {
	sess := session.NewContext(brk, cfg.Risk.AccountTTL, cfg.Risk.WinRateWindow)
	sess.SetCooldownPolicy(cfg.Risk.CooldownLosses, cfg.Risk.CooldownDuration)

	risk, err := riskstate.NewController(cfg.Risk, sess, brk, appLog)
	if err != nil {
		return nil, nil, err
	}

	validator, err := margin.NewValidator(cfg.Margin, brk, brk, appLog)
	if err != nil {
		return nil, nil, err
	}

	trail, err := trailing.NewEngine(cfg.Trailing, brk, brk, appLog, interval)
	if err != nil {
		return nil, nil, err
	}

	corr := correlation.NewEngine(cfg.Portfolio.CorrelationLookback, cfg.Portfolio.CorrelationTTL)
	optimizer, err := portfolio.NewOptimizer(cfg.Portfolio, brk, corr, appLog, interval)
	if err != nil {
		return nil, nil, err
	}

	health := monitoring.NewHealthChecker()

	core, err := engine.NewCore(cfg, engine.Deps{
		Broker:    brk,
		Session:   sess,
		Risk:      risk,
		Gate:      account.NewGate(cfg.Risk),
		Validator: validator,
		Sizer:     sizing.NewEngine(cfg.Sizing, appLog),
		Stops:     stops.NewCalculator(cfg.Stops, ""),
		Trailing:  trail,
		Portfolio: optimizer,
		Logger:    appLog,
		Health:    health,
	}, interval)
	if err != nil {
		return nil, nil, err
	}
	return core, health, nil
}

func startHTTPServers(cfg *config.Config, health *monitoring.HealthChecker) {
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort)
		mux := http.NewServeMux()
		mux.Handle("/metrics", monitoring.NewMetricsHandler())
		fmt.Printf("📊 Metrics on http://localhost%s/metrics\n", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Monitoring.HealthPort)
		mux := http.NewServeMux()
		mux.Handle("/health", health)
		fmt.Printf("❤️  Health on http://localhost%s/health\n", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("health server stopped: %v", err)
		}
	}()
}

func runTickLoop(ctx context.Context, core *engine.Core, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			core.OnTick(ctx)
		}
	}
}

func runTimerLoop(ctx context.Context, core *engine.Core, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			core.OnTimer(ctx, now)
		}
	}
}

func runStatusLoop(ctx context.Context, core *engine.Core, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			core.PrintRiskStatus(ctx)
		}
	}
}
