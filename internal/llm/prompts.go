package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const summaryLimit = 500

// truncateSummary trims summaries to the scoring budget, cutting on a rune
// boundary so a multi-byte character is never split.
func truncateSummary(summary string) string {
	if len(summary) <= summaryLimit {
		return summary
	}
	cut := summaryLimit
	for cut > 0 && !utf8.RuneStart(summary[cut]) {
		cut--
	}
	return summary[:cut]
}

// SignificancePrompts builds the system and user prompts for the news
// scoring call.
func SignificancePrompts(headline, summary string) (string, string) {
	system := `You are a financial news analyst. Rate how market-moving a news item is for US equities.

Respond with ONLY a JSON object:
{"score": <integer 0-100>, "significant": <true|false>, "reasoning": "<one or two sentences>"}

Scoring guide: 0-20 irrelevant to markets, 21-50 sector or single-stock interest,
51-75 broad market relevance, 76-100 major macro or systemic event.`

	user := fmt.Sprintf("Headline: %s\n\nSummary: %s", headline, truncateSummary(summary))
	return system, user
}

// WaveAnalysisPrompts builds the prompts for the wave selection call. The
// waveStatus string lists each wave's missed/ongoing/upcoming state.
func WaveAnalysisPrompts(headline, summary string, ageMinutes int, marketStatus, waveStatus string) (string, string) {
	system := `You are a market microstructure analyst. News propagates through markets in waves of
actors: wave 0 HFT (0-5 min), wave 1 fast institutions (5-30 min), wave 2 institutions (30-120 min),
wave 3 informed retail (2-6 h), wave 4 mass retail (6-24 h), wave 5 re-valuation (1-3 d),
wave 6 fundamental shift (3-7 d).

Pick the wave that still offers the best entry for this news.

Respond with ONLY a JSON object:
{"optimal_wave": <integer 0-6>, "reasoning": "<why>", "news_type": "<earnings|macro|regulatory|tech|other>", "market_impact": "<high|medium|low>"}`

	user := fmt.Sprintf(`Headline: %s

Summary: %s

News age: %d minutes
Market status: %s
Wave status: %s`,
		headline, truncateSummary(summary), ageMinutes, marketStatus, waveStatus)
	return system, user
}

// SignalGenerationPrompts builds the prompts for the trade generation call.
func SignalGenerationPrompts(headline, summary string, wave, waveStartMin, waveEndMin, maxSignals int, newsType string) (string, string) {
	system := fmt.Sprintf(`You generate trading signals for US equities based on news.

Rules:
1. Analyze both BULLISH and BEARISH implications.
2. Use SHORT when the news is negative for a company or sector, BUY when positive.
3. Consider direct impact, competitors, suppliers and sector effects.
4. Be selective - only high-conviction trades. At most %d tickers.
5. Confidence must be realistic (40-80 typical).

Respond with ONLY a JSON object with comma-separated fields:
{"tickers": "AAPL, MSFT", "actions": "BUY, SHORT", "expected_moves": "2.5, 3.0", "confidences": "65, 50", "reasoning": "<rationale covering each ticker>"}`,
		maxSignals)

	user := fmt.Sprintf(`Headline: %s

Summary: %s

Optimal wave: %d (entry window %d-%d minutes after publication)
News type: %s`,
		headline, truncateSummary(summary), wave, waveStartMin, waveEndMin, newsType)
	return system, user
}

// FormatWaveStatus renders wave states the way the analysis prompt expects,
// e.g. "Wave 0: missed, Wave 2: ongoing (75 min left), Wave 3: upcoming".
func FormatWaveStatus(states []WaveState) string {
	parts := make([]string, 0, len(states))
	for _, s := range states {
		part := fmt.Sprintf("Wave %d: %s", s.Wave, s.Status)
		if s.Status == "ongoing" && s.TimeLeftMinutes > 0 {
			part += fmt.Sprintf(" (%d min left)", s.TimeLeftMinutes)
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ", ")
}

// WaveState is one wave's classification for prompt formatting
type WaveState struct {
	Wave            int
	Status          string // upcoming | ongoing | missed
	TimeLeftMinutes int
}
