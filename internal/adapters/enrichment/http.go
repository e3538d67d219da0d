package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"copytrader/internal/domain"
	"copytrader/internal/ports"
)

// HTTPClient implements ports.EnrichmentClient against a remote analysis
// service. The collaborator is advisory: any transport or payload problem
// degrades to the default advice rather than blocking the signal.
type HTTPClient struct {
	url    string
	client *http.Client
	logger ports.Logger
}

// Config holds configuration for the HTTP enrichment adapter.
type Config struct {
	URL     string
	Timeout time.Duration
	Logger  ports.Logger
}

// NewHTTP creates an enrichment client posting to the configured URL.
func NewHTTP(cfg Config) (*HTTPClient, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for enrichment client")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("enrichment URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		url:    cfg.URL,
		client: &http.Client{Timeout: timeout},
		logger: cfg.Logger,
	}, nil
}

// Analyze posts the signal and maps the response onto an Advice. Responses
// missing fields fall back to the defaults field by field.
func (c *HTTPClient) Analyze(ctx context.Context, sig *domain.Signal) (ports.Advice, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"symbol":      sig.Symbol,
		"side":        string(sig.Side),
		"entry_type":  string(sig.EntryType),
		"entry_price": sig.EntryPrice,
		"stop_loss":   sig.StopLoss,
		"tp1":         sig.TakeProfit1,
		"tp2":         sig.TakeProfit2,
		"text":        sig.RawText,
	})
	if err != nil {
		return ports.DefaultAdvice(), fmt.Errorf("failed to encode enrichment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return ports.DefaultAdvice(), fmt.Errorf("failed to build enrichment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return ports.DefaultAdvice(), fmt.Errorf("enrichment request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ports.DefaultAdvice(), fmt.Errorf("enrichment service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ports.DefaultAdvice(), fmt.Errorf("failed to read enrichment response: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return ports.DefaultAdvice(), fmt.Errorf("enrichment response is not valid JSON")
	}

	advice := ports.DefaultAdvice()
	if v := gjson.GetBytes(body, "confidence"); v.Exists() {
		advice.Confidence = ports.Confidence(v.String())
	}
	if v := gjson.GetBytes(body, "recommendation"); v.Exists() {
		advice.Recommendation = ports.Recommendation(v.String())
	}
	if v := gjson.GetBytes(body, "size_multiplier"); v.Exists() && v.Float() > 0 {
		advice.SizeMultiplier = v.Float()
	}

	c.logger.Debug(ctx, "Enrichment advice received", map[string]interface{}{
		"symbol": sig.Symbol, "confidence": string(advice.Confidence),
		"recommendation": string(advice.Recommendation), "sizeMultiplier": advice.SizeMultiplier,
	})
	return advice, nil
}
