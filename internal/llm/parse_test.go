package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSignificance(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantScore   int
		wantSignif  bool
		wantErr     bool
	}{
		{
			name:       "plain JSON",
			content:    `{"score": 92, "significant": true, "reasoning": "Major rate decision"}`,
			wantScore:  92,
			wantSignif: true,
		},
		{
			name: "markdown fenced JSON",
			content: "Here is my analysis:\n```json\n" +
				`{"score": 15, "significant": false, "reasoning": "Celebrity gossip"}` +
				"\n```",
			wantScore:  15,
			wantSignif: false,
		},
		{
			name:       "JSON embedded in prose",
			content:    `Sure! {"score": 55, "significant": false, "reasoning": "Sector news"} Hope that helps.`,
			wantScore:  55,
			wantSignif: false,
		},
		{
			name:      "score above 100 clamped",
			content:   `{"score": 150, "significant": true, "reasoning": "x"}`,
			wantScore: 100,
			wantSignif: true,
		},
		{
			name:      "negative score clamped",
			content:   `{"score": -5, "significant": false, "reasoning": "x"}`,
			wantScore: 0,
		},
		{
			name:    "non-numeric score",
			content: `{"score": "very high", "significant": true, "reasoning": "x"}`,
			wantErr: true,
		},
		{
			name:    "not JSON at all",
			content: "I think this news is quite significant.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseSignificance(tt.content)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantScore, result.Score)
			assert.Equal(t, tt.wantSignif, result.Significant)
		})
	}
}

func TestParseWaveAnalysis(t *testing.T) {
	content := `{"optimal_wave": 2, "reasoning": "institutions still reacting", "news_type": "Earnings", "market_impact": "HIGH"}`

	result, err := ParseWaveAnalysis(content)
	require.NoError(t, err)
	assert.Equal(t, 2, result.OptimalWave)
	assert.Equal(t, "earnings", result.NewsType)
	assert.Equal(t, "high", result.MarketImpact)
}

func TestParseWaveAnalysis_ClampsWave(t *testing.T) {
	result, err := ParseWaveAnalysis(`{"optimal_wave": 10, "reasoning": "x", "news_type": "macro", "market_impact": "low"}`)
	require.NoError(t, err)
	assert.Equal(t, 6, result.OptimalWave)
}

func TestParseWaveAnalysis_EmptyNewsTypeDefaults(t *testing.T) {
	result, err := ParseWaveAnalysis(`{"optimal_wave": 1, "reasoning": "x", "news_type": "", "market_impact": "low"}`)
	require.NoError(t, err)
	assert.Equal(t, "other", result.NewsType)
}

func TestParseSignals(t *testing.T) {
	content := `{
		"tickers": "AAPL, msft, TSLA",
		"actions": "BUY, SHORT, HOLD",
		"expected_moves": "2.5, -3.0%, 1.2",
		"confidences": "65, 50, 90",
		"reasoning": "Earnings beat lifts AAPL; MSFT loses a contract."
	}`

	signals, err := ParseSignals(content)
	require.NoError(t, err)
	require.Len(t, signals, 2) // HOLD is dropped

	assert.Equal(t, "AAPL", signals[0].Ticker)
	assert.Equal(t, "BUY", signals[0].Action)
	assert.Equal(t, 2.5, signals[0].ExpectedMovePct)
	assert.Equal(t, 65, signals[0].Confidence)

	assert.Equal(t, "MSFT", signals[1].Ticker)
	assert.Equal(t, "SHORT", signals[1].Action)
	assert.Equal(t, 3.0, signals[1].ExpectedMovePct, "moves are stored as absolute values")
	assert.Equal(t, 50, signals[1].Confidence)
}

func TestParseSignals_MismatchedListsZipToShortest(t *testing.T) {
	content := `{
		"tickers": "AAPL, MSFT, NVDA",
		"actions": "BUY, SHORT",
		"expected_moves": "2.5, 3.0, 4.0",
		"confidences": "65, 50, 70",
		"reasoning": "x"
	}`

	signals, err := ParseSignals(content)
	require.NoError(t, err)
	assert.Len(t, signals, 2)
}

func TestParseSignals_ConfidenceClamped(t *testing.T) {
	content := `{"tickers": "AAPL", "actions": "BUY", "expected_moves": "2.0", "confidences": "140", "reasoning": "x"}`

	signals, err := ParseSignals(content)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, 100, signals[0].Confidence)
}

func TestParseSignals_BadNumbersSkipped(t *testing.T) {
	content := `{"tickers": "AAPL, MSFT", "actions": "BUY, SHORT", "expected_moves": "lots, 3.0", "confidences": "65, 50", "reasoning": "x"}`

	signals, err := ParseSignals(content)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, "MSFT", signals[0].Ticker)
}

func TestFormatWaveStatus(t *testing.T) {
	states := []WaveState{
		{Wave: 0, Status: "missed"},
		{Wave: 1, Status: "missed"},
		{Wave: 2, Status: "ongoing", TimeLeftMinutes: 75},
		{Wave: 3, Status: "upcoming"},
	}

	formatted := FormatWaveStatus(states)
	assert.Equal(t, "Wave 0: missed, Wave 1: missed, Wave 2: ongoing (75 min left), Wave 3: upcoming", formatted)
}
