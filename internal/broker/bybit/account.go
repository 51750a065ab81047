package bybit

import (
	"context"
	"fmt"
	"time"

	"github.com/algotrader-dev/forex-risk-core/pkg/types"
)

// Snapshot reads the unified account wallet and maps it onto the
// core's account snapshot: equity, balance and margin figures.
func (c *Client) Snapshot(ctx context.Context) (types.AccountSnapshot, error) {
	params := map[string]interface{}{
		"accountType": "UNIFIED",
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
	if err != nil {
		return types.AccountSnapshot{}, fmt.Errorf("failed to get account balance: %w", err)
	}

	var walletResult struct {
		List []struct {
			TotalEquity           string `json:"totalEquity"`
			TotalWalletBalance    string `json:"totalWalletBalance"`
			TotalInitialMargin    string `json:"totalInitialMargin"`
			TotalAvailableBalance string `json:"totalAvailableBalance"`
			TotalPerpUPL          string `json:"totalPerpUPL"`
		} `json:"list"`
	}
	if err := unwrapResult(result, &walletResult); err != nil {
		return types.AccountSnapshot{}, fmt.Errorf("failed to parse wallet response: %w", err)
	}
	if len(walletResult.List) == 0 {
		return types.AccountSnapshot{}, fmt.Errorf("no unified account in wallet response")
	}

	entry := walletResult.List[0]
	equity := parseFloat(entry.TotalEquity)
	usedMargin := parseFloat(entry.TotalInitialMargin)

	return types.AccountSnapshot{
		Equity:     equity,
		Balance:    parseFloat(entry.TotalWalletBalance),
		UsedMargin: usedMargin,
		FreeMargin: parseFloat(entry.TotalAvailableBalance),
		Leverage:   0, // per-symbol on Bybit; not an account-wide figure
		Taken:      time.Now(),
	}, nil
}
