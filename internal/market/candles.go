package market

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/ualgo/engine/internal/config"
	"github.com/ualgo/engine/internal/indicators"
)

const maxCachedCandles = 500

// CandleSource supplies recent OHLCV bars. Fetch failures degrade to
// cached data, never to an error.
type CandleSource interface {
	GetRecentCandles(ctx context.Context, symbol, interval string, limit int) []indicators.Candle
}

// PriceSource supplies the current price of a symbol
type PriceSource interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// Source is the raw exchange API surface behind the provider
type Source interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]indicators.Candle, error)
	Price(ctx context.Context, symbol string) (float64, error)
}

// Provider fetches candles from the exchange with a per-key cache, a
// client-side rate limit and a circuit breaker.
type Provider struct {
	source  Source
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger

	mu    sync.Mutex
	cache map[string][]indicators.Candle
	locks map[string]*sync.Mutex
}

// NewProvider creates a candle provider over the given source
func NewProvider(source Source, requestsPerSec float64, logger zerolog.Logger) *Provider {
	if requestsPerSec <= 0 {
		requestsPerSec = 5
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "exchange-rest",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	return &Provider{
		source:  source,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSec), 1),
		breaker: breaker,
		logger:  logger,
		cache:   make(map[string][]indicators.Candle),
		locks:   make(map[string]*sync.Mutex),
	}
}

// GetRecentCandles returns up to limit bars for (symbol, interval).
// A sufficient cache is served directly; on fetch failure the cached
// slice (possibly empty) is returned.
func (p *Provider) GetRecentCandles(ctx context.Context, symbol, interval string, limit int) []indicators.Candle {
	if limit <= 0 {
		limit = 100
	}
	key := symbol + "_" + interval

	if cached := p.cachedTail(key, limit); len(cached) >= limit {
		return cached
	}

	// per-key lock prevents a fetch stampede on cache miss
	lock := p.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	if cached := p.cachedTail(key, limit); len(cached) >= limit {
		return cached
	}

	candles, err := p.fetch(ctx, symbol, interval, limit)
	if err != nil {
		p.logger.Warn().
			Err(err).
			Str("symbol", symbol).
			Str("interval", interval).
			Msg("Candle fetch failed, serving cache")
		return p.cachedTail(key, limit)
	}

	p.store(key, candles)
	return candles
}

func (p *Provider) fetch(ctx context.Context, symbol, interval string, limit int) ([]indicators.Candle, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	result, err := p.breaker.Execute(func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return p.source.Klines(fetchCtx, symbol, interval, limit)
	})
	if err != nil {
		return nil, err
	}

	return result.([]indicators.Candle), nil
}

// CurrentPrice returns the latest traded price for a symbol
func (p *Provider) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limiter: %w", err)
	}

	result, err := p.breaker.Execute(func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return p.source.Price(fetchCtx, symbol)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch price for %s: %w", symbol, err)
	}

	return result.(float64), nil
}

func (p *Provider) cachedTail(key string, limit int) []indicators.Candle {
	p.mu.Lock()
	defer p.mu.Unlock()

	cached := p.cache[key]
	if len(cached) > limit {
		cached = cached[len(cached)-limit:]
	}
	out := make([]indicators.Candle, len(cached))
	copy(out, cached)
	return out
}

func (p *Provider) store(key string, candles []indicators.Candle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(candles) > maxCachedCandles {
		candles = candles[len(candles)-maxCachedCandles:]
	}
	stored := make([]indicators.Candle, len(candles))
	copy(stored, candles)
	p.cache[key] = stored
}

func (p *Provider) keyLock(key string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock, ok := p.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[key] = lock
	}
	return lock
}

// binanceSource adapts the Binance REST client to Source
type binanceSource struct {
	client *binance.Client
}

// NewBinanceSource creates the production exchange source
func NewBinanceSource(cfg config.ExchangeConfig) Source {
	client := binance.NewClient("", "")
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}
	return &binanceSource{client: client}
}

func (s *binanceSource) Klines(ctx context.Context, symbol, interval string, limit int) ([]indicators.Candle, error) {
	klines, err := s.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch klines: %w", err)
	}

	candles := make([]indicators.Candle, 0, len(klines))
	for _, k := range klines {
		candle, err := parseKline(k)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func (s *binanceSource) Price(ctx context.Context, symbol string) (float64, error) {
	prices, err := s.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch ticker price: %w", err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("no price returned for %s", symbol)
	}

	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse price %q: %w", prices[0].Price, err)
	}
	return price, nil
}

func parseKline(k *binance.Kline) (indicators.Candle, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return indicators.Candle{}, fmt.Errorf("failed to parse kline open: %w", err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return indicators.Candle{}, fmt.Errorf("failed to parse kline high: %w", err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return indicators.Candle{}, fmt.Errorf("failed to parse kline low: %w", err)
	}
	closePrice, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return indicators.Candle{}, fmt.Errorf("failed to parse kline close: %w", err)
	}
	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return indicators.Candle{}, fmt.Errorf("failed to parse kline volume: %w", err)
	}

	return indicators.Candle{
		OpenTime:  k.OpenTime,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		CloseTime: k.CloseTime,
	}, nil
}
