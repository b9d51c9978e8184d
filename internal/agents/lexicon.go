package agents

import "strings"

// panicWords maps negative sentiment keywords to severity in [-1, 0)
var panicWords = map[string]float64{
	"crash": -0.85, "plunge": -0.75, "hack": -0.95, "exploit": -0.90,
	"ban": -0.65, "fraud": -0.85, "liquidation": -0.60, "bearish": -0.45,
	"sell-off": -0.65, "dump": -0.60, "fear": -0.45, "collapse": -0.80,
	"scam": -0.90, "rug pull": -0.95, "bankrupt": -0.85, "shutdown": -0.70,
	"regulation": -0.35, "sec": -0.40, "fine": -0.50, "lawsuit": -0.55,
	"congestion": -0.25, "delay": -0.20, "outage": -0.55, "vulnerability": -0.65,
}

// euphoriaWords maps positive sentiment keywords to intensity in (0, 1]
var euphoriaWords = map[string]float64{
	"surge": 0.75, "rally": 0.65, "bullish": 0.55, "ath": 0.85, "all-time high": 0.90,
	"moon": 0.45, "breakout": 0.65, "adoption": 0.55, "approval": 0.75,
	"institutional": 0.60, "record": 0.45, "boom": 0.65, "soar": 0.75,
	"etf": 0.70, "partnership": 0.50, "launch": 0.45, "upgrade": 0.50,
	"halving": 0.60, "accumulation": 0.55, "whale": 0.40, "staking": 0.35,
	"integration": 0.45, "mainnet": 0.55, "listing": 0.50,
}

// riskOffMacro lists macro terms that affect all crypto markets
var riskOffMacro = []string{
	"inflation", "rate hike", "fed", "recession", "geopolitical", "war", "crisis",
	"bank run", "contagion", "systemic",
}

// toneWords is a small general-purpose polarity lexicon used for the
// NLP component of article scoring (titles weighted above bodies).
var toneWords = map[string]float64{
	"gain": 0.50, "gains": 0.50, "rise": 0.40, "rises": 0.40, "rising": 0.40,
	"growth": 0.50, "strong": 0.40, "strength": 0.40, "positive": 0.50,
	"optimism": 0.55, "optimistic": 0.55, "confidence": 0.40, "recover": 0.45,
	"recovery": 0.45, "wins": 0.50, "success": 0.55, "momentum": 0.35,
	"outperform": 0.55, "beat": 0.40, "best": 0.45, "top": 0.30, "higher": 0.35,
	"loss": -0.50, "losses": -0.50, "drop": -0.50, "drops": -0.50,
	"fall": -0.40, "falls": -0.40, "falling": -0.40, "decline": -0.45,
	"weak": -0.40, "weakness": -0.40, "negative": -0.50, "concern": -0.35,
	"concerns": -0.35, "worry": -0.40, "worries": -0.40, "risk": -0.25,
	"uncertainty": -0.40, "pressure": -0.30, "struggles": -0.45,
	"underperform": -0.55, "miss": -0.40, "worst": -0.55, "lower": -0.35,
	"warning": -0.50, "panic": -0.70, "turmoil": -0.60,
}

// keywordScore averages the severities of matched panic/euphoria
// keywords in text (which must already be lowercased). Returns 0 when
// nothing matches.
func keywordScore(text string) float64 {
	sum := 0.0
	matches := 0
	for word, weight := range panicWords {
		if strings.Contains(text, word) {
			sum += weight
			matches++
		}
	}
	for word, weight := range euphoriaWords {
		if strings.Contains(text, word) {
			sum += weight
			matches++
		}
	}
	if matches == 0 {
		return 0
	}
	return sum / float64(matches)
}

// toneScore estimates text polarity in [-1, 1] from the tone lexicon
func toneScore(text string) float64 {
	text = strings.ToLower(text)
	sum := 0.0
	matches := 0
	for _, field := range strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	}) {
		if weight, ok := toneWords[field]; ok {
			sum += weight
			matches++
		}
	}
	if matches == 0 {
		return 0
	}
	return clamp(sum/float64(matches), -1, 1)
}

// containsRiskOffTerm reports whether a lowercased headline matches
// any macro risk-off term.
func containsRiskOffTerm(title string) bool {
	for _, term := range riskOffMacro {
		if strings.Contains(title, term) {
			return true
		}
	}
	return false
}
