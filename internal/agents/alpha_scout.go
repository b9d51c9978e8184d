package agents

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ualgo/engine/internal/bus"
	"github.com/ualgo/engine/internal/db"
	"github.com/ualgo/engine/internal/feeds"
)

// Default feed lists. Primary feeds are swapped for the fallback list
// after two consecutive empty fetches.
var (
	primaryFeeds = []string{
		"https://cointelegraph.com/rss",
		"https://coindesk.com/arc/outboundfeeds/rss/",
		"https://cryptonews.com/news/feed/",
	}
	fallbackFeeds = []string{
		"https://decrypt.co/feed",
		"https://thedefiant.io/api/feed",
	}
	macroFeedURL = "https://feeds.reuters.com/reuters/businessNews"
)

const (
	maxArticlesPerScan = 25
	biasLearningRate   = 0.03
	maxBiasCorrection  = 0.3
	feedbackWindow     = 100
)

// SentimentResult is the Alpha Scout's analysis output
type SentimentResult struct {
	Agent          string       `json:"agent"`
	Symbol         string       `json:"symbol"`
	Score          float64      `json:"sentiment_score"`
	RawScore       float64      `json:"raw_score"`
	Confidence     float64      `json:"confidence"`
	Direction      db.Direction `json:"direction"`
	ArticleCount   int          `json:"article_count"`
	BiasCorrection float64      `json:"bias_correction"`
	MacroOverlay   *float64     `json:"macro_overlay"`
	Regime         string       `json:"market_regime"`
	Summary        string       `json:"summary"`
	Timestamp      time.Time    `json:"timestamp"`
}

// AlphaScout is the sentiment hunter. It aggregates market mood from
// RSS feeds, scores articles against panic/euphoria lexicons blended
// with tone polarity, and corrects for its own historical bias via a
// reinforcement feedback loop.
type AlphaScout struct {
	*BaseAgent

	fetcher   feeds.Fetcher
	primary   []string
	fallback  []string
	macroFeed string

	mu               sync.Mutex
	bias             float64
	feedbackHistory  []float64
	consecutiveEmpty int
}

// NewAlphaScout creates the sentiment agent with the default feed sets
func NewAlphaScout(repo Repository, b *bus.Bus, fetcher feeds.Fetcher) *AlphaScout {
	return &AlphaScout{
		BaseAgent: NewBaseAgent(
			"alpha_scout",
			"Sentiment Hunter - RSS aggregation, tone scoring, market regime detection",
			"1.2.0",
			repo, b,
		),
		fetcher:   fetcher,
		primary:   primaryFeeds,
		fallback:  fallbackFeeds,
		macroFeed: macroFeedURL,
	}
}

// WithFeeds overrides the feed URL sets (tests)
func (a *AlphaScout) WithFeeds(primary, fallback []string, macro string) *AlphaScout {
	a.primary = primary
	a.fallback = fallback
	a.macroFeed = macro
	return a
}

// Analyze scans the feeds and computes sentiment for a symbol. It
// never fails the cycle: empty feeds degrade to a NEUTRAL result.
func (a *AlphaScout) Analyze(ctx context.Context, symbol string, includeMacro bool) (*SentimentResult, error) {
	return runTracked(ctx, a.BaseAgent, symbol, func(ctx context.Context) (*SentimentResult, error) {
		return a.analyze(ctx, symbol, includeMacro)
	})
}

func (a *AlphaScout) analyze(ctx context.Context, symbol string, includeMacro bool) (*SentimentResult, error) {
	articles := a.fetchArticles(ctx, symbol, a.primary)

	a.mu.Lock()
	useFallback := len(articles) == 0 && a.consecutiveEmpty >= 2
	a.mu.Unlock()

	if useFallback {
		a.logger.Warn().Str("symbol", symbol).Msg("Falling back to secondary feeds")
		articles = a.fetchArticles(ctx, symbol, a.fallback)
	}

	if len(articles) == 0 {
		a.mu.Lock()
		a.consecutiveEmpty++
		failures := a.consecutiveEmpty
		a.mu.Unlock()

		return &SentimentResult{
			Agent:        a.Name(),
			Symbol:       symbol,
			Confidence:   0.2,
			Direction:    db.DirectionNeutral,
			Regime:       "UNKNOWN",
			Summary:      fmt.Sprintf("No articles found for %s (consecutive failures: %d)", symbol, failures),
			Timestamp:    a.clock(),
			ArticleCount: 0,
		}, nil
	}

	a.mu.Lock()
	a.consecutiveEmpty = 0
	bias := a.bias
	a.mu.Unlock()

	total := 0.0
	for _, article := range articles {
		total += scoreArticle(article)
	}
	rawScore := total / float64(len(articles))
	corrected := clamp(rawScore+bias, -1, 1)

	var macroOverlay *float64
	if includeMacro {
		overlay := a.computeMacroOverlay(ctx)
		macroOverlay = &overlay
		if overlay < -0.3 {
			// risk-off macro drags the symbol signal toward negative
			corrected = corrected*0.6 + overlay*0.4
		}
	}

	volumeBoost := clamp(float64(len(articles))/10, 0, 0.3)
	confidence := clamp(0.6*absFloat(corrected)+volumeBoost+0.15, 0, 0.95)

	direction := db.DirectionNeutral
	switch {
	case corrected > 0.25:
		direction = db.DirectionLong
	case corrected < -0.20:
		direction = db.DirectionShort
	}

	regime := "NEUTRAL"
	switch {
	case corrected > 0.4:
		regime = "RISK_ON"
	case corrected < -0.35:
		regime = "RISK_OFF"
	}

	result := &SentimentResult{
		Agent:          a.Name(),
		Symbol:         symbol,
		Score:          corrected,
		RawScore:       rawScore,
		Confidence:     confidence,
		Direction:      direction,
		ArticleCount:   len(articles),
		BiasCorrection: bias,
		MacroOverlay:   macroOverlay,
		Regime:         regime,
		Summary:        fmt.Sprintf("Analyzed %d articles for %s: sentiment=%+.2f, regime=%s", len(articles), symbol, corrected, regime),
		Timestamp:      a.clock(),
	}

	if _, err := a.memory.StoreDecision(ctx, symbol, map[string]any{
		"sentiment_score": result.Score,
		"confidence":      result.Confidence,
		"direction":       string(result.Direction),
		"article_count":   result.ArticleCount,
		"market_regime":   result.Regime,
	}, 0); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to store sentiment decision")
	}

	return result, nil
}

// fetchArticles pulls each feed and keeps entries mentioning the
// symbol stem or crypto at large, capped at 25 overall.
func (a *AlphaScout) fetchArticles(ctx context.Context, symbol string, urls []string) []feeds.Article {
	stem := symbolStem(symbol)

	var articles []feeds.Article
	for _, url := range urls {
		for _, article := range a.fetcher.Fetch(ctx, url) {
			title := strings.ToLower(article.Title)
			summary := strings.ToLower(article.Summary)
			if strings.Contains(title, stem) || strings.Contains(summary, stem) || strings.Contains(title, "crypto") {
				articles = append(articles, article)
			}
		}
	}

	if len(articles) > maxArticlesPerScan {
		articles = articles[:maxArticlesPerScan]
	}
	return articles
}

// computeMacroOverlay scores the macro environment in [-1, 0] by
// counting risk-off terms in the latest business headlines.
func (a *AlphaScout) computeMacroOverlay(ctx context.Context) float64 {
	articles := a.fetcher.Fetch(ctx, a.macroFeed)
	if len(articles) > 10 {
		articles = articles[:10]
	}
	if len(articles) == 0 {
		return 0
	}

	riskOffHits := 0
	for _, article := range articles {
		if containsRiskOffTerm(strings.ToLower(article.Title)) {
			riskOffHits++
		}
	}
	return -clamp(float64(riskOffHits)/5, 0, 1)
}

// ApplyFeedback updates the bias correction from a realized outcome in
// [-1, 1] (negative = SHORT was right, positive = LONG was right).
func (a *AlphaScout) ApplyFeedback(actualOutcome float64, symbol string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.bias += biasLearningRate * (actualOutcome - a.bias)
	a.bias = clamp(a.bias, -maxBiasCorrection, maxBiasCorrection)

	a.feedbackHistory = append(a.feedbackHistory, actualOutcome)
	if len(a.feedbackHistory) > feedbackWindow {
		a.feedbackHistory = a.feedbackHistory[len(a.feedbackHistory)-feedbackWindow:]
	}

	a.logger.Info().
		Str("symbol", symbol).
		Float64("outcome", actualOutcome).
		Float64("new_bias", a.bias).
		Msg("Feedback applied")
}

// BiasCorrection returns the current bias correction
func (a *AlphaScout) BiasCorrection() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bias
}

// CalibrationQuality assesses how well the bias correction tracks
// recent outcomes.
func (a *AlphaScout) CalibrationQuality() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.feedbackHistory) < 10 {
		return "insufficient_data"
	}
	recent := a.feedbackHistory
	if len(recent) > 20 {
		recent = recent[len(recent)-20:]
	}
	sum := 0.0
	for _, v := range recent {
		sum += v
	}
	avgError := absFloat(sum/float64(len(recent)) - a.bias)
	switch {
	case avgError < 0.05:
		return "well_calibrated"
	case avgError < 0.15:
		return "moderate"
	default:
		return "needs_recalibration"
	}
}

// scoreArticle blends keyword severity with tone polarity: 50%
// keywords, 30% title tone, 20% full-text tone.
func scoreArticle(article feeds.Article) float64 {
	text := strings.ToLower(article.Title + " " + article.Summary)

	kw := keywordScore(text)
	titleTone := toneScore(article.Title)
	bodyTone := toneScore(article.Title + " " + article.Summary)

	return clamp(0.50*kw+0.30*titleTone+0.20*bodyTone, -1, 1)
}

// symbolStem strips the quote-asset suffix for relevance matching
// (BTCUSDT -> btc).
func symbolStem(symbol string) string {
	stem := strings.ToLower(symbol)
	for _, suffix := range []string{"usdt", "busd", "usdc"} {
		stem = strings.ReplaceAll(stem, suffix, "")
	}
	return stem
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
