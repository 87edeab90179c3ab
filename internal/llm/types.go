package llm

// ChatMessage represents a message in a chat completion request
type ChatMessage struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// ChatRequest is an OpenRouter chat completion request
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// ChatResponse is an OpenRouter chat completion response
type ChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ErrorResponse is the provider's error envelope
type ErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// SignificanceResult is the parsed output of the news scoring call
type SignificanceResult struct {
	Score       int    `json:"score"`
	Significant bool   `json:"significant"`
	Reasoning   string `json:"reasoning"`
}

// WaveAnalysis is the parsed output of the wave selection call
type WaveAnalysis struct {
	OptimalWave  int    `json:"optimal_wave"`
	Reasoning    string `json:"reasoning"`
	NewsType     string `json:"news_type"`     // earnings/macro/regulatory/tech/other
	MarketImpact string `json:"market_impact"` // high/medium/low
}

// CandidateSignal is one parsed trade candidate from the generation call
type CandidateSignal struct {
	Ticker          string
	Action          string // BUY or SHORT
	ExpectedMovePct float64
	Confidence      int // 0..100
	Reasoning       string
}
