// Package llmvalidator is the optional final entry gate: it takes the
// combined strategy signal and market context, asks an LLM provider for a
// yes/no decision and risk level, and degrades to a deterministic
// approval policy when the provider is unavailable. It also exposes the
// dynamic profit-target scoring rubric used after an entry is approved.
package llmvalidator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/atlas-desktop/solana-sniper/internal/strategy"
	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config tunes the validator and its degradation thresholds.
type Config struct {
	Enabled                  bool
	Endpoint                 string
	APIKey                   string
	Model                    string
	Timeout                  time.Duration
	DegradedApprovalSignal   decimal.Decimal // combined_signal floor for reduced-confidence approval
	DegradedApprovalLiquidity decimal.Decimal
	DegradedApprovalVolume   decimal.Decimal
	CautiousApprovalSignal   decimal.Decimal
	CautiousApprovalLiquidity decimal.Decimal
}

// DefaultConfig mirrors the documented degradation thresholds.
func DefaultConfig() Config {
	return Config{
		Enabled:                   false,
		Timeout:                   20 * time.Second,
		DegradedApprovalSignal:    decimal.NewFromFloat(0.65),
		DegradedApprovalLiquidity: decimal.NewFromInt(100_000),
		DegradedApprovalVolume:    decimal.NewFromInt(50_000),
		CautiousApprovalSignal:    decimal.NewFromFloat(0.55),
		CautiousApprovalLiquidity: decimal.NewFromInt(100_000),
	}
}

// Decision is the validator's entry verdict.
type Decision struct {
	Approve    bool            `json:"approve"`
	RiskLevel  string          `json:"riskLevel"`
	Confidence decimal.Decimal `json:"confidence"`
	Reasoning  string          `json:"reasoning"`
	Degraded   bool            `json:"degraded"`
}

// llmResponse is the JSON shape requested from the provider.
type llmResponse struct {
	Approve    bool    `json:"approve"`
	RiskLevel  string  `json:"risk_level"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Validator gates entries through an optional LLM call, falling back to a
// deterministic approval policy on any failure.
type Validator struct {
	logger     *zap.Logger
	cfg        Config
	httpClient *http.Client
}

// New constructs a Validator.
func New(logger *zap.Logger, cfg Config) *Validator {
	return &Validator{
		logger:     logger.Named("llmvalidator"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Validate asks the LLM for an entry decision; on any failure (disabled,
// unreachable, malformed response) it falls back to Degrade.
func (v *Validator) Validate(ctx context.Context, combined types.Signal, mm types.MarketMetrics, candle *strategy.Candle) Decision {
	if !v.cfg.Enabled {
		return v.Degrade(combined, mm, "validator disabled")
	}

	decision, err := v.callProvider(ctx, combined, mm, candle)
	if err != nil {
		v.logger.Warn("llm validator call failed, degrading", zap.Error(err))
		return v.Degrade(combined, mm, err.Error())
	}
	return decision
}

// Degrade applies the documented degradation policy when the LLM is
// unavailable: reduced-confidence approval, cautious approval, or reject.
func (v *Validator) Degrade(combined types.Signal, mm types.MarketMetrics, reason string) Decision {
	switch {
	case combined.Confidence.GreaterThanOrEqual(v.cfg.DegradedApprovalSignal) &&
		mm.LiquidityUSD.GreaterThanOrEqual(v.cfg.DegradedApprovalLiquidity) &&
		mm.Volume24hUSD.GreaterThanOrEqual(v.cfg.DegradedApprovalVolume):
		return Decision{
			Approve:    true,
			RiskLevel:  "medium",
			Confidence: combined.Confidence.Mul(decimal.NewFromFloat(0.8)),
			Reasoning:  "degraded approval: strong combined signal with adequate liquidity and volume (" + reason + ")",
			Degraded:   true,
		}
	case combined.Confidence.GreaterThanOrEqual(v.cfg.CautiousApprovalSignal) &&
		mm.LiquidityUSD.GreaterThanOrEqual(v.cfg.CautiousApprovalLiquidity):
		return Decision{
			Approve:    true,
			RiskLevel:  "high",
			Confidence: combined.Confidence.Mul(decimal.NewFromFloat(0.6)),
			Reasoning:  "degraded cautious approval: adequate signal and liquidity (" + reason + ")",
			Degraded:   true,
		}
	default:
		return Decision{
			Approve:   false,
			RiskLevel: "high",
			Reasoning: "degraded rejection: insufficient signal/liquidity/volume for a no-LLM approval (" + reason + ")",
			Degraded:  true,
		}
	}
}

func (v *Validator) callProvider(ctx context.Context, combined types.Signal, mm types.MarketMetrics, candle *strategy.Candle) (Decision, error) {
	prompt := buildEntryPrompt(combined, mm, candle)

	body, err := json.Marshal(map[string]any{
		"model": v.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPromptEntryDecision},
			{"role": "user", "content": prompt},
		},
	})
	if err != nil {
		return Decision{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Decision{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if v.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+v.cfg.APIKey)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return Decision{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Decision{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return Decision{}, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(raw))
	}

	content, err := extractContent(raw)
	if err != nil {
		return Decision{}, err
	}

	cleaned := stripMarkdownCodeBlock(content)
	if i := strings.Index(cleaned, "{"); i >= 0 {
		if j := strings.LastIndex(cleaned, "}"); j > i {
			cleaned = cleaned[i : j+1]
		}
	}
	var parsed llmResponse
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return Decision{}, fmt.Errorf("parse llm decision: %w", err)
	}

	return Decision{
		Approve:    parsed.Approve,
		RiskLevel:  parsed.RiskLevel,
		Confidence: decimal.NewFromFloat(parsed.Confidence),
		Reasoning:  parsed.Reasoning,
	}, nil
}

// chatCompletionEnvelope is the minimal OpenAI-compatible response shape.
type chatCompletionEnvelope struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func extractContent(raw []byte) (string, error) {
	var envelope chatCompletionEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", fmt.Errorf("decode provider envelope: %w", err)
	}
	if len(envelope.Choices) == 0 {
		return "", fmt.Errorf("provider returned no choices")
	}
	return envelope.Choices[0].Message.Content, nil
}

var codeBlockPattern = regexp.MustCompile(`(?s)^` + "```" + `(?:json)?\s*\n?(.*?)\n?` + "```" + `$`)

// stripMarkdownCodeBlock removes a wrapping ```json fence if present.
func stripMarkdownCodeBlock(response string) string {
	response = strings.TrimSpace(response)
	if matches := codeBlockPattern.FindStringSubmatch(response); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return response
}
