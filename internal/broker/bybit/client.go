package bybit

import (
	"sync"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"

	"github.com/algotrader-dev/forex-risk-core/pkg/types"
)

// Client adapts the Bybit v5 API to the core's broker capabilities:
// market data, account snapshots and the position primitives the risk
// engine is allowed to drive.
type Client struct {
	httpClient *bybit_api.Client
	category   string
	testnet    bool
	demo       bool

	// Instrument rules change rarely; cache them with a long TTL so
	// per-tick evaluation never waits on the instruments endpoint.
	instMu      sync.RWMutex
	instruments map[string]types.SymbolInfo
	instFetched map[string]time.Time
	instTTL     time.Duration
}

// Config holds the configuration for the Bybit adapter
type Config struct {
	APIKey    string
	APISecret string
	Category  string // "linear", "inverse", "spot"
	Testnet   bool
	Demo      bool
}

// NewClient creates a new Bybit broker adapter
func NewClient(config Config) *Client {
	var baseURL string
	if config.Demo {
		// Demo trading environment (paper trading)
		baseURL = "https://api-demo.bybit.com"
	} else if config.Testnet {
		baseURL = bybit_api.TESTNET
	} else {
		baseURL = bybit_api.MAINNET
	}

	category := config.Category
	if category == "" {
		category = "linear"
	}

	httpClient := bybit_api.NewBybitHttpClient(
		config.APIKey,
		config.APISecret,
		bybit_api.WithBaseURL(baseURL),
	)

	return &Client{
		httpClient:  httpClient,
		category:    category,
		testnet:     config.Testnet,
		demo:        config.Demo,
		instruments: make(map[string]types.SymbolInfo),
		instFetched: make(map[string]time.Time),
		instTTL:     time.Hour,
	}
}

// IsTestnet returns whether the client is configured for testnet
func (c *Client) IsTestnet() bool {
	return c.testnet
}

// GetEnvironment returns a string describing the current environment
func (c *Client) GetEnvironment() string {
	if c.demo {
		return "demo"
	} else if c.testnet {
		return "testnet"
	}
	return "mainnet"
}
