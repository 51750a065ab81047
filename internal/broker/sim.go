package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/algotrader-dev/forex-risk-core/pkg/types"
)

// Sim is an in-memory broker used by tests and the offline report
// tool. It applies stop/close requests immediately and recomputes
// margin from the positions it holds.
type Sim struct {
	mu         sync.RWMutex
	balance    float64
	leverage   float64
	ticks      map[string]types.Tick
	klines     map[string][]types.OHLCV
	symbols    map[string]types.SymbolInfo
	positions  map[string]*types.Position
	nextTicket int

	// RejectModify and RejectClose simulate broker rejections for the
	// error-path tests.
	RejectModify bool
	RejectClose  bool
}

// NewSim creates a simulated broker with the given starting balance.
func NewSim(balance, leverage float64) *Sim {
	return &Sim{
		balance:    balance,
		leverage:   leverage,
		ticks:      make(map[string]types.Tick),
		klines:     make(map[string][]types.OHLCV),
		symbols:    make(map[string]types.SymbolInfo),
		positions:  make(map[string]*types.Position),
		nextTicket: 1,
	}
}

// SetTick installs the current quote for a symbol.
func (s *Sim) SetTick(symbol string, bid, ask float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks[symbol] = types.Tick{Symbol: symbol, Bid: bid, Ask: ask, Timestamp: time.Now()}
}

// SetKlines installs the historical series for a symbol.
func (s *Sim) SetKlines(symbol string, data []types.OHLCV) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.klines[symbol] = data
}

// SetSymbolInfo installs the trading rules for a symbol.
func (s *Sim) SetSymbolInfo(info types.SymbolInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbols[info.Symbol] = info
}

// SetBalance overwrites the account balance.
func (s *Sim) SetBalance(balance float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = balance
}

// AddPosition opens a position directly, bypassing validation, and
// returns its ticket.
func (s *Sim) AddPosition(p types.Position) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Ticket == "" {
		p.Ticket = fmt.Sprintf("%d", s.nextTicket)
		s.nextTicket++
	}
	if p.OpenedAt.IsZero() {
		p.OpenedAt = time.Now()
	}
	s.positions[p.Ticket] = &p
	return p.Ticket
}

// SetUnrealized overwrites a position's unrealized profit.
func (s *Sim) SetUnrealized(ticket string, pnl float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.positions[ticket]; ok {
		p.UnrealizedPnL = pnl
	}
}

// Tick implements MarketData.
func (s *Sim) Tick(_ context.Context, symbol string) (types.Tick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.ticks[symbol]
	if !ok {
		return types.Tick{}, fmt.Errorf("no tick for symbol %s", symbol)
	}
	return t, nil
}

// Klines implements MarketData.
func (s *Sim) Klines(_ context.Context, symbol, _ string, limit int) ([]types.OHLCV, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.klines[symbol]
	if !ok {
		return nil, fmt.Errorf("no kline data for symbol %s", symbol)
	}
	if limit > 0 && len(data) > limit {
		data = data[len(data)-limit:]
	}
	out := make([]types.OHLCV, len(data))
	copy(out, data)
	return out, nil
}

// SymbolInfo implements MarketData.
func (s *Sim) SymbolInfo(_ context.Context, symbol string) (types.SymbolInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.symbols[symbol]
	if !ok {
		return types.SymbolInfo{}, fmt.Errorf("unknown symbol %s", symbol)
	}
	return info, nil
}

// Snapshot implements AccountProvider. Equity is balance plus the sum
// of unrealized profit; used margin is derived from the per-symbol
// margin-per-lot rule.
func (s *Sim) Snapshot(_ context.Context) (types.AccountSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var unrealized, usedMargin float64
	for _, p := range s.positions {
		unrealized += p.UnrealizedPnL
		if info, ok := s.symbols[p.Symbol]; ok {
			usedMargin += info.MarginPerLot * p.Volume
		}
	}

	equity := s.balance + unrealized
	return types.AccountSnapshot{
		Equity:     equity,
		Balance:    s.balance,
		UsedMargin: usedMargin,
		FreeMargin: equity - usedMargin,
		Leverage:   s.leverage,
		Taken:      time.Now(),
	}, nil
}

// OpenPositions implements OrderExecutor.
func (s *Sim) OpenPositions(_ context.Context, symbol string) ([]types.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Position, 0, len(s.positions))
	for _, p := range s.positions {
		if symbol != "" && p.Symbol != symbol {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

// ModifyStops implements OrderExecutor.
func (s *Sim) ModifyStops(_ context.Context, ticket string, stopLoss, takeProfit float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.RejectModify {
		return fmt.Errorf("modify rejected by broker for ticket %s", ticket)
	}
	p, ok := s.positions[ticket]
	if !ok {
		return fmt.Errorf("position %s not found", ticket)
	}
	if stopLoss > 0 {
		p.StopLoss = stopLoss
	}
	if takeProfit > 0 {
		p.TakeProfit = takeProfit
	}
	return nil
}

// ClosePosition implements OrderExecutor. Partial closes realize the
// proportional share of the unrealized profit.
func (s *Sim) ClosePosition(_ context.Context, ticket string, volume float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.RejectClose {
		return fmt.Errorf("close rejected by broker for ticket %s", ticket)
	}
	p, ok := s.positions[ticket]
	if !ok {
		return fmt.Errorf("position %s not found", ticket)
	}

	if volume <= 0 || volume >= p.Volume {
		s.balance += p.UnrealizedPnL
		delete(s.positions, ticket)
		return nil
	}

	fraction := volume / p.Volume
	s.balance += p.UnrealizedPnL * fraction
	p.UnrealizedPnL *= 1 - fraction
	p.Volume -= volume
	return nil
}
