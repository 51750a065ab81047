package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"

	"github.com/algotrader-dev/forex-risk-core/pkg/types"
)

// Tick returns the current bid/ask for a symbol.
func (c *Client) Tick(ctx context.Context, symbol string) (types.Tick, error) {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return types.Tick{}, fmt.Errorf("failed to get ticker: %w", err)
	}

	var tickerResult struct {
		Category string `json:"category"`
		List     []struct {
			Symbol    string `json:"symbol"`
			Bid1Price string `json:"bid1Price"`
			Ask1Price string `json:"ask1Price"`
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := unwrapResult(result, &tickerResult); err != nil {
		return types.Tick{}, fmt.Errorf("failed to parse ticker response: %w", err)
	}
	if len(tickerResult.List) == 0 {
		return types.Tick{}, fmt.Errorf("no ticker data for symbol %s", symbol)
	}

	entry := tickerResult.List[0]
	bid := parseFloat(entry.Bid1Price)
	ask := parseFloat(entry.Ask1Price)
	if bid <= 0 || ask <= 0 {
		// Thin books can report empty bid/ask; fall back to last.
		last := parseFloat(entry.LastPrice)
		if last <= 0 {
			return types.Tick{}, fmt.Errorf("no usable quote for symbol %s", symbol)
		}
		bid, ask = last, last
	}

	return types.Tick{
		Symbol:    symbol,
		Bid:       bid,
		Ask:       ask,
		Timestamp: time.Now(),
	}, nil
}

// Klines returns recent bars for a symbol, oldest first.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]types.OHLCV, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 1000 {
		limit = 1000
	}

	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
		"interval": interval,
		"limit":    limit,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketKline(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get klines: %w", err)
	}

	var klineResult struct {
		Symbol   string     `json:"symbol"`
		Category string     `json:"category"`
		List     [][]string `json:"list"`
	}
	if err := unwrapResult(result, &klineResult); err != nil {
		return nil, fmt.Errorf("failed to parse kline response: %w", err)
	}

	// Bybit returns newest first; reverse into chart order.
	bars := make([]types.OHLCV, 0, len(klineResult.List))
	for i := len(klineResult.List) - 1; i >= 0; i-- {
		row := klineResult.List[i]
		if len(row) < 6 {
			continue
		}
		ts, _ := strconv.ParseInt(row[0], 10, 64)
		bars = append(bars, types.OHLCV{
			Timestamp: time.UnixMilli(ts),
			Open:      parseFloat(row[1]),
			High:      parseFloat(row[2]),
			Low:       parseFloat(row[3]),
			Close:     parseFloat(row[4]),
			Volume:    parseFloat(row[5]),
		})
	}

	return bars, nil
}

// SymbolInfo returns the trading rules for a symbol, cached for the
// instrument TTL.
func (c *Client) SymbolInfo(ctx context.Context, symbol string) (types.SymbolInfo, error) {
	c.instMu.RLock()
	if info, ok := c.instruments[symbol]; ok && time.Since(c.instFetched[symbol]) < c.instTTL {
		c.instMu.RUnlock()
		return info, nil
	}
	c.instMu.RUnlock()

	info, err := c.fetchSymbolInfo(ctx, symbol)
	if err != nil {
		return types.SymbolInfo{}, err
	}

	c.instMu.Lock()
	c.instruments[symbol] = info
	c.instFetched[symbol] = time.Now()
	c.instMu.Unlock()

	return info, nil
}

func (c *Client) fetchSymbolInfo(ctx context.Context, symbol string) (types.SymbolInfo, error) {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetInstrumentInfo(ctx)
	if err != nil {
		return types.SymbolInfo{}, fmt.Errorf("failed to fetch instrument info: %w", err)
	}

	var instResult struct {
		Category string `json:"category"`
		List     []struct {
			Symbol      string `json:"symbol"`
			PriceFilter struct {
				TickSize string `json:"tickSize"`
			} `json:"priceFilter"`
			LotSizeFilter struct {
				MinOrderQty string `json:"minOrderQty"`
				MaxOrderQty string `json:"maxOrderQty"`
				QtyStep     string `json:"qtyStep"`
			} `json:"lotSizeFilter"`
		} `json:"list"`
	}
	if err := unwrapResult(result, &instResult); err != nil {
		return types.SymbolInfo{}, fmt.Errorf("failed to parse instrument info: %w", err)
	}
	if len(instResult.List) == 0 {
		return types.SymbolInfo{}, fmt.Errorf("instrument %s not found", symbol)
	}

	entry := instResult.List[0]
	tickSize := parseFloat(entry.PriceFilter.TickSize)
	digits := 0
	if tickSize > 0 {
		digits = int(math.Round(-math.Log10(tickSize)))
		if digits < 0 {
			digits = 0
		}
	}

	return types.SymbolInfo{
		Symbol:       entry.Symbol,
		Digits:       digits,
		Point:        tickSize,
		PipSize:      tickSize * 10,
		TickValue:    tickSize, // linear contracts: one point of one unit
		ContractSize: 1,
		MinVolume:    parseFloat(entry.LotSizeFilter.MinOrderQty),
		MaxVolume:    parseFloat(entry.LotSizeFilter.MaxOrderQty),
		VolumeStep:   parseFloat(entry.LotSizeFilter.QtyStep),
		MinStopDist:  tickSize * 10,
	}, nil
}

// unwrapResult validates a Bybit ServerResponse and decodes its Result
// payload into out.
func unwrapResult(response interface{}, out interface{}) error {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return fmt.Errorf("invalid response type")
	}
	if serverResp.RetCode != 0 {
		return &APIError{Code: serverResp.RetCode, Message: serverResp.RetMsg}
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	return json.Unmarshal(resultBytes, out)
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
