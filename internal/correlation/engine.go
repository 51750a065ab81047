package correlation

import (
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/algotrader-dev/forex-risk-core/pkg/types"
)

// Engine computes pairwise return correlation between instruments and
// exposes the diversification utilities built on top of it. Matrix
// computation over the full instrument set is the expensive part, so
// results are cached for a short TTL; staleness beyond the TTL is
// tolerated, not an error.
type Engine struct {
	lookback int
	ttl      time.Duration

	mu       sync.Mutex
	cached   Matrix
	cachedAt time.Time
}

// Matrix is a symmetric pairwise correlation matrix keyed by symbol.
type Matrix map[string]map[string]float64

// Pair is a flagged over-correlated instrument pair.
type Pair struct {
	A           string
	B           string
	Correlation float64
}

// NewEngine creates a correlation engine with the given return
// lookback window and cache TTL.
func NewEngine(lookback int, ttl time.Duration) *Engine {
	if lookback < 2 {
		lookback = 2
	}
	return &Engine{lookback: lookback, ttl: ttl}
}

// Returns converts a bar series into period-over-period close returns,
// keeping at most the engine's lookback window.
func (e *Engine) Returns(data []types.OHLCV) []float64 {
	if len(data) < 2 {
		return nil
	}
	start := len(data) - e.lookback - 1
	if start < 0 {
		start = 0
	}
	out := make([]float64, 0, len(data)-start-1)
	for i := start + 1; i < len(data); i++ {
		prev := data[i-1].Close
		if prev == 0 {
			continue
		}
		out = append(out, (data[i].Close-prev)/prev)
	}
	return out
}

// Pairwise computes the Pearson correlation of two return series.
// Series of different length are aligned on their most recent values.
func (e *Engine) Pairwise(a, b []float64) (float64, error) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0, errors.New("insufficient return samples for correlation")
	}
	a = a[len(a)-n:]
	b = b[len(b)-n:]

	var meanA, meanB float64
	for i := 0; i < n; i++ {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= float64(n)
	meanB /= float64(n)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}

	if varA == 0 || varB == 0 {
		return 0, errors.New("zero variance in return series")
	}

	return cov / math.Sqrt(varA*varB), nil
}

// BuildMatrix computes the full pairwise matrix for the given return
// series. Pairs without enough data get correlation 0.
func (e *Engine) BuildMatrix(returns map[string][]float64) Matrix {
	symbols := make([]string, 0, len(returns))
	for s := range returns {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	m := make(Matrix, len(symbols))
	for _, s := range symbols {
		m[s] = make(map[string]float64, len(symbols))
		m[s][s] = 1
	}
	for i := 0; i < len(symbols); i++ {
		for j := i + 1; j < len(symbols); j++ {
			corr, err := e.Pairwise(returns[symbols[i]], returns[symbols[j]])
			if err != nil {
				corr = 0
			}
			m[symbols[i]][symbols[j]] = corr
			m[symbols[j]][symbols[i]] = corr
		}
	}

	e.mu.Lock()
	e.cached = m
	e.cachedAt = time.Now()
	e.mu.Unlock()

	return m
}

// CachedMatrix returns the last computed matrix while it is within the
// TTL. The second return is false when the cache is empty or expired.
func (e *Engine) CachedMatrix() (Matrix, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cached == nil || time.Since(e.cachedAt) > e.ttl {
		return nil, false
	}
	return e.cached, true
}

// FlagOverCorrelated returns every pair whose absolute correlation
// exceeds the limit, strongest first.
func FlagOverCorrelated(m Matrix, limit float64) []Pair {
	var pairs []Pair
	seen := make(map[string]bool)

	symbols := make([]string, 0, len(m))
	for s := range m {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	for _, a := range symbols {
		for _, b := range symbols {
			if a >= b || seen[a+"|"+b] {
				continue
			}
			seen[a+"|"+b] = true
			corr := m[a][b]
			if math.Abs(corr) > limit {
				pairs = append(pairs, Pair{A: a, B: b, Correlation: corr})
			}
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		return math.Abs(pairs[i].Correlation) > math.Abs(pairs[j].Correlation)
	})
	return pairs
}

// DiversificationScore returns 1 minus the mean absolute pairwise
// correlation: 1 is perfectly diversified, 0 is fully correlated.
func DiversificationScore(m Matrix) float64 {
	var sum float64
	var count int
	for a, row := range m {
		for b, corr := range row {
			if a < b {
				sum += math.Abs(corr)
				count++
			}
		}
	}
	if count == 0 {
		return 1
	}
	return 1 - sum/float64(count)
}

// RecommendLeastCorrelated picks the candidate with the lowest mean
// absolute correlation against the held set. Candidates missing from
// the matrix are treated as uncorrelated and therefore preferred.
func RecommendLeastCorrelated(m Matrix, held, candidates []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	best := ""
	bestScore := math.Inf(1)
	for _, cand := range candidates {
		var sum float64
		for _, h := range held {
			if row, ok := m[cand]; ok {
				sum += math.Abs(row[h])
			}
		}
		score := 0.0
		if len(held) > 0 {
			score = sum / float64(len(held))
		}
		if score < bestScore {
			bestScore = score
			best = cand
		}
	}
	return best, best != ""
}
