package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/algotrader-dev/forex-risk-core/internal/account"
	"github.com/algotrader-dev/forex-risk-core/internal/broker"
	"github.com/algotrader-dev/forex-risk-core/internal/broker/bybit"
	"github.com/algotrader-dev/forex-risk-core/internal/config"
	"github.com/algotrader-dev/forex-risk-core/internal/correlation"
	"github.com/algotrader-dev/forex-risk-core/internal/logger"
	"github.com/algotrader-dev/forex-risk-core/internal/portfolio"
	"github.com/algotrader-dev/forex-risk-core/internal/riskstate"
	"github.com/algotrader-dev/forex-risk-core/internal/session"
	"github.com/algotrader-dev/forex-risk-core/pkg/reporting"
)

// risk-report takes a one-shot reading of the account, evaluates the
// risk state and capital allocation, and writes the session report to
// console plus optional xlsx/json files.
func main() {
	var (
		envFile   = flag.String("env", ".env", "Environment file path (default: .env)")
		interval  = flag.String("interval", "60", "Kline interval for allocation stats (minutes)")
		outputDir = flag.String("output", "", "Output directory (default: reports/<account>_<date>)")
		writeXLSX = flag.Bool("xlsx", true, "Write the Excel workbook")
		writeJSON = flag.Bool("json", true, "Write the JSON report")
		useSim    = flag.Bool("sim", false, "Run against the in-memory simulated broker")
	)
	flag.Parse()

	if err := loadEnvFile(*envFile); err != nil {
		log.Printf("Warning: Could not load .env file (%v), checking environment variables...", err)
	}

	cfg := config.Load()

	appLog := logger.NewWriterLogger(cfg.AccountID, os.Stderr)
	defer appLog.Close()

	brk, err := buildBroker(cfg, *useSim)
	if err != nil {
		log.Fatalf("Broker setup failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	rep, err := buildReport(ctx, cfg, brk, appLog, *interval)
	if err != nil {
		log.Fatalf("Failed to build report: %v", err)
	}

	reporting.NewConsoleReporter().OutputReport(rep)

	dir := *outputDir
	if dir == "" {
		dir = reporting.DefaultOutputDir(cfg.AccountID, rep.GeneratedAt)
	}

	if *writeXLSX {
		path := filepath.Join(dir, "session.xlsx")
		if err := reporting.NewExcelReporter().WriteSessionXLSX(rep, path); err != nil {
			log.Fatalf("Failed to write xlsx: %v", err)
		}
		fmt.Printf("📁 Wrote %s\n", path)
	}
	if *writeJSON {
		path := filepath.Join(dir, "session.json")
		if err := reporting.WriteSessionJSON(rep, path); err != nil {
			log.Fatalf("Failed to write json: %v", err)
		}
		fmt.Printf("📁 Wrote %s\n", path)
	}
}

func loadEnvFile(envFile string) error {
	if _, err := os.Stat(envFile); err == nil {
		return godotenv.Load(envFile)
	}
	return fmt.Errorf("env file %s not found", envFile)
}

func buildBroker(cfg *config.Config, useSim bool) (broker.Broker, error) {
	if useSim {
		return broker.NewSim(10000, 100), nil
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

	return bybit.NewClient(bybit.Config{
		APIKey:    apiKey,
		APISecret: apiSecret,
		Category:  cfg.Broker.Category,
		Testnet:   cfg.Broker.Testnet,
		Demo:      cfg.Broker.Demo,
	}), nil
}

func buildReport(ctx context.Context, cfg *config.Config, brk broker.Broker, appLog *logger.Logger, interval string) (*reporting.SessionReport, error) {
	sess := session.NewContext(brk, cfg.Risk.AccountTTL, cfg.Risk.WinRateWindow)

	// A read-only report never closes positions, so no executor.
	risk, err := riskstate.NewController(cfg.Risk, sess, nil, appLog)
	if err != nil {
		return nil, err
	}

	rep := reporting.NewSessionReport(cfg.AccountID)
	rep.Risk = risk.Evaluate(ctx)
	rep.Account = sess.Snapshot()
	rep.DailyLossPercent = sess.DailyLossPercent()
	rep.Tier = account.TierForBalance(rep.Account.Balance)
	rep.Health = account.NewGate(cfg.Risk).HealthFor(rep.Account, rep.DailyLossPercent)

	positions, err := brk.OpenPositions(ctx, "")
	if err != nil {
		appLog.LogError("open_positions", err)
	} else {
		rep.Positions = positions
	}

	corr := correlation.NewEngine(cfg.Portfolio.CorrelationLookback, cfg.Portfolio.CorrelationTTL)
	optimizer, err := portfolio.NewOptimizer(cfg.Portfolio, brk, corr, appLog, interval)
	if err != nil {
		return nil, err
	}
	if _, err := optimizer.CalculateCapitalAllocation(ctx, rep.Account.Equity); err != nil {
		appLog.LogError("capital_allocation", err)
	} else {
		rep.Allocations = optimizer.Allocations()
		rep.Events = optimizer.History()
	}

	return rep, nil
}
