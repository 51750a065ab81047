package bybit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/algotrader-dev/forex-risk-core/pkg/types"
)

// Bybit keys positions by symbol and position index rather than by
// ticket, so the adapter synthesizes tickets as "SYMBOL#idx" and maps
// them back when modifying or closing.

type positionEntry struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Size          string `json:"size"`
	AvgPrice      string `json:"avgPrice"`
	UnrealisedPnl string `json:"unrealisedPnl"`
	TakeProfit    string `json:"takeProfit"`
	StopLoss      string `json:"stopLoss"`
	PositionIdx   int    `json:"positionIdx"`
	CreatedTime   string `json:"createdTime"`
}

// OpenPositions lists open positions, optionally filtered by symbol.
func (c *Client) OpenPositions(ctx context.Context, symbol string) ([]types.Position, error) {
	params := map[string]interface{}{
		"category": c.category,
	}
	if symbol != "" {
		params["symbol"] = symbol
	} else {
		params["settleCoin"] = "USDT"
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetPositionList(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}

	var posResult struct {
		List []positionEntry `json:"list"`
	}
	if err := unwrapResult(result, &posResult); err != nil {
		return nil, fmt.Errorf("failed to parse positions response: %w", err)
	}

	out := make([]types.Position, 0, len(posResult.List))
	for _, entry := range posResult.List {
		size := parseFloat(entry.Size)
		if size <= 0 {
			continue
		}
		direction := types.Long
		if entry.Side == "Sell" {
			direction = types.Short
		}
		openedAt := time.Time{}
		if ms, err := strconv.ParseInt(entry.CreatedTime, 10, 64); err == nil {
			openedAt = time.UnixMilli(ms)
		}
		out = append(out, types.Position{
			Ticket:        fmt.Sprintf("%s#%d", entry.Symbol, entry.PositionIdx),
			Symbol:        entry.Symbol,
			Direction:     direction,
			Volume:        size,
			EntryPrice:    parseFloat(entry.AvgPrice),
			StopLoss:      parseFloat(entry.StopLoss),
			TakeProfit:    parseFloat(entry.TakeProfit),
			UnrealizedPnL: parseFloat(entry.UnrealisedPnl),
			OpenedAt:      openedAt,
		})
	}

	return out, nil
}

// ModifyStops proposes new protective levels for a position. Zero
// values leave the corresponding level unchanged.
func (c *Client) ModifyStops(ctx context.Context, ticket string, stopLoss, takeProfit float64) error {
	symbol, positionIdx, err := splitTicket(ticket)
	if err != nil {
		return err
	}

	params := map[string]interface{}{
		"category":    c.category,
		"symbol":      symbol,
		"positionIdx": positionIdx,
	}
	if stopLoss > 0 {
		params["stopLoss"] = strconv.FormatFloat(stopLoss, 'f', -1, 64)
	}
	if takeProfit > 0 {
		params["takeProfit"] = strconv.FormatFloat(takeProfit, 'f', -1, 64)
	}

	_, err = c.httpClient.NewUtaBybitServiceWithParams(params).SetPositionTradingStop(ctx)
	if err != nil {
		return fmt.Errorf("failed to set trading stop for %s: %w", ticket, err)
	}

	return nil
}

// ClosePosition closes volume units of a position with a reduce-only
// market order; volume <= 0 closes it entirely.
func (c *Client) ClosePosition(ctx context.Context, ticket string, volume float64) error {
	symbol, positionIdx, err := splitTicket(ticket)
	if err != nil {
		return err
	}

	positions, err := c.OpenPositions(ctx, symbol)
	if err != nil {
		return err
	}
	var pos *types.Position
	for i := range positions {
		if positions[i].Ticket == ticket {
			pos = &positions[i]
			break
		}
	}
	if pos == nil {
		return fmt.Errorf("position %s not found", ticket)
	}

	if volume <= 0 || volume > pos.Volume {
		volume = pos.Volume
	}

	side := "Sell"
	if pos.Direction == types.Short {
		side = "Buy"
	}

	params := map[string]interface{}{
		"category":    c.category,
		"symbol":      symbol,
		"side":        side,
		"orderType":   "Market",
		"qty":         strconv.FormatFloat(volume, 'f', -1, 64),
		"reduceOnly":  true,
		"positionIdx": positionIdx,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).PlaceOrder(ctx)
	if err != nil {
		return fmt.Errorf("failed to close position %s: %w", ticket, err)
	}

	var orderResult struct {
		OrderID string `json:"orderId"`
	}
	if err := unwrapResult(result, &orderResult); err != nil {
		return fmt.Errorf("close order rejected for %s: %w", ticket, err)
	}

	return nil
}

func splitTicket(ticket string) (string, int, error) {
	parts := strings.SplitN(ticket, "#", 2)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("malformed ticket %q", ticket)
	}
	idx, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, fmt.Errorf("malformed ticket %q: %w", ticket, err)
	}
	return parts[0], idx, nil
}
