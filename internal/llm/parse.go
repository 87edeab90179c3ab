package llm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// extractJSON pulls a JSON object out of a response that may wrap it in
// markdown code fences or surrounding prose.
func extractJSON(content string) string {
	if idx := strings.Index(content, "```json"); idx >= 0 {
		content = content[idx+7:]
		if end := strings.Index(content, "```"); end >= 0 {
			content = content[:end]
		}
	} else if idx := strings.Index(content, "```"); idx >= 0 {
		content = content[idx+3:]
		if end := strings.Index(content, "```"); end >= 0 {
			content = content[:end]
		}
	} else if start := strings.Index(content, "{"); start >= 0 {
		if end := strings.LastIndex(content, "}"); end > start {
			content = content[start : end+1]
		}
	}
	return strings.TrimSpace(content)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ParseSignificance parses the scoring response. Scores are clamped to
// [0,100]; non-numeric scores are a parse error the caller maps to zero.
func ParseSignificance(content string) (*SignificanceResult, error) {
	var raw struct {
		Score       json.Number `json:"score"`
		Significant bool        `json:"significant"`
		Reasoning   string      `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse significance response: %w", err)
	}

	scoreF, err := raw.Score.Float64()
	if err != nil {
		return nil, fmt.Errorf("non-numeric significance score %q", raw.Score.String())
	}

	return &SignificanceResult{
		Score:       clampInt(int(scoreF), 0, 100),
		Significant: raw.Significant,
		Reasoning:   raw.Reasoning,
	}, nil
}

// ParseWaveAnalysis parses the wave selection response, clamping the wave
// index to the valid 0..6 range.
func ParseWaveAnalysis(content string) (*WaveAnalysis, error) {
	var raw struct {
		OptimalWave  json.Number `json:"optimal_wave"`
		Reasoning    string      `json:"reasoning"`
		NewsType     string      `json:"news_type"`
		MarketImpact string      `json:"market_impact"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse wave analysis response: %w", err)
	}

	waveF, err := raw.OptimalWave.Float64()
	if err != nil {
		return nil, fmt.Errorf("non-numeric optimal wave %q", raw.OptimalWave.String())
	}

	newsType := strings.ToLower(strings.TrimSpace(raw.NewsType))
	if newsType == "" {
		newsType = "other"
	}

	return &WaveAnalysis{
		OptimalWave:  clampInt(int(waveF), 0, 6),
		Reasoning:    raw.Reasoning,
		NewsType:     newsType,
		MarketImpact: strings.ToLower(strings.TrimSpace(raw.MarketImpact)),
	}, nil
}

// ParseSignals parses the generation response. Fields are comma-separated
// and zipped together up to the shortest list; only BUY and SHORT actions
// survive. Moves are stored as absolute values, confidences clamped 0..100.
func ParseSignals(content string) ([]CandidateSignal, error) {
	var raw struct {
		Tickers       string `json:"tickers"`
		Actions       string `json:"actions"`
		ExpectedMoves string `json:"expected_moves"`
		Confidences   string `json:"confidences"`
		Reasoning     string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse signal response: %w", err)
	}

	tickers := splitList(raw.Tickers)
	actions := splitList(raw.Actions)
	moves := splitList(raw.ExpectedMoves)
	confidences := splitList(raw.Confidences)

	n := len(tickers)
	for _, l := range []int{len(actions), len(moves), len(confidences)} {
		if l < n {
			n = l
		}
	}

	var signals []CandidateSignal
	for i := 0; i < n; i++ {
		action := strings.ToUpper(actions[i])
		if action != "BUY" && action != "SHORT" {
			continue
		}

		move, err := strconv.ParseFloat(strings.TrimSuffix(moves[i], "%"), 64)
		if err != nil {
			continue
		}
		conf, err := strconv.Atoi(strings.TrimSuffix(confidences[i], "%"))
		if err != nil {
			continue
		}

		if move < 0 {
			move = -move
		}

		signals = append(signals, CandidateSignal{
			Ticker:          strings.ToUpper(tickers[i]),
			Action:          action,
			ExpectedMovePct: move,
			Confidence:      clampInt(conf, 0, 100),
			Reasoning:       raw.Reasoning,
		})
	}
	return signals, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
