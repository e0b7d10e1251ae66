// Package gateway talks to the model gateway that hosts the meal extraction
// model and the nutrition estimation service.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/starford/macrolog/internal/models"
)

var (
	// ErrUnparsable flags model output that did not contain the expected JSON.
	ErrUnparsable = errors.New("gateway: unparsable model output")
	// ErrRateLimited is returned when the gateway answers 429.
	ErrRateLimited = errors.New("gateway: rate limited")
)

const defaultExtractionConfidence = 0.7

// Options configures a Client.
type Options struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client calls gateway tools over JSON-RPC.
type Client struct {
	httpClient *http.Client
	url        string
	apiKey     string
	model      string
}

// New returns a Client for the gateway at opts.URL.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		url:        opts.URL,
		apiKey:     opts.APIKey,
		model:      opts.Model,
	}
}

// Extraction is the structured output of the extraction model.
type Extraction struct {
	Items      []models.RawMention `json:"items"`
	Confidence float64             `json:"confidence"`
}

// Estimate is a nutrition estimate for one food description.
type Estimate struct {
	Macros     models.Macros
	Grams      float64
	Confidence float64
}

const extractPrompt = `You extract foods from meal descriptions.
Respond with JSON only, in this exact shape:
{"items":[{"name":"food name","quantity":number or null,"unit":"unit or null"}],"confidence":number between 0 and 1}
Keep brand names and serving descriptions ("10-piece", "large") inside the name.`

const estimatePrompt = `You are a nutrition database. Estimate nutrition for the described food and amount.
Respond with JSON only, in this exact shape:
{"kcal":number,"protein_g":number,"carbs_g":number,"fat_g":number,"fiber_g":number,"grams":number,"confidence":number between 0 and 1}
Use 0 for kcal when the food is unknown.`

// Extract asks the extraction model for the foods mentioned in text.
func (c *Client) Extract(ctx context.Context, text string) (*Extraction, error) {
	content, err := c.complete(ctx, extractPrompt, text)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Items []struct {
			Name     string   `json:"name"`
			Quantity *float64 `json:"quantity"`
			Unit     *string  `json:"unit"`
		} `json:"items"`
		Confidence *float64 `json:"confidence"`
	}
	if err := decodeEmbedded(content, &raw); err != nil {
		return nil, err
	}

	out := &Extraction{Confidence: defaultExtractionConfidence}
	if raw.Confidence != nil {
		out.Confidence = clamp01(*raw.Confidence)
	}
	for _, it := range raw.Items {
		name := strings.TrimSpace(it.Name)
		if name == "" {
			continue
		}
		m := models.RawMention{Name: name, Quantity: it.Quantity}
		if it.Unit != nil && !strings.EqualFold(*it.Unit, "null") {
			m.Unit = *it.Unit
		}
		out.Items = append(out.Items, m)
	}
	return out, nil
}

// Estimate asks the estimation service for the nutrition of description.
func (c *Client) Estimate(ctx context.Context, description string) (*Estimate, error) {
	content, err := c.complete(ctx, estimatePrompt, description)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Kcal       float64  `json:"kcal"`
		ProteinG   float64  `json:"protein_g"`
		CarbsG     float64  `json:"carbs_g"`
		FatG       float64  `json:"fat_g"`
		FiberG     float64  `json:"fiber_g"`
		Grams      float64  `json:"grams"`
		Confidence *float64 `json:"confidence"`
	}
	if err := decodeEmbedded(content, &raw); err != nil {
		return nil, err
	}

	est := &Estimate{
		Macros: models.Macros{
			Kcal:     raw.Kcal,
			ProteinG: raw.ProteinG,
			CarbsG:   raw.CarbsG,
			FatG:     raw.FatG,
			FiberG:   raw.FiberG,
		},
		Grams: raw.Grams,
	}
	if raw.Confidence != nil {
		est.Confidence = clamp01(*raw.Confidence)
	}
	return est, nil
}

func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	args := map[string]any{
		"model":         c.model,
		"system_prompt": systemPrompt,
		"messages": []map[string]any{
			{"role": "user", "content": userPrompt},
		},
		"max_tokens":  800,
		"temperature": 0.1,
	}
	text, err := c.callTool(ctx, "create_completion", args)
	if err != nil {
		return "", err
	}

	// The completion tool wraps the model text in {"content": "..."}; plain
	// text is accepted too.
	var wrapped struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(text), &wrapped); err == nil && wrapped.Content != "" {
		return wrapped.Content, nil
	}
	return text, nil
}

func (c *Client) callTool(ctx context.Context, tool string, args any) (string, error) {
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      tool,
			"arguments": args,
		},
	})
	if err != nil {
		return "", fmt.Errorf("gateway: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway: %s: %w", tool, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("gateway: %s: %w", tool, ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("gateway: %s: status %d: %s", tool, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var rpc struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
		return "", fmt.Errorf("gateway: %s: decode response: %w", tool, err)
	}
	if rpc.Error != nil {
		return "", fmt.Errorf("gateway: %s: rpc error %d: %s", tool, rpc.Error.Code, rpc.Error.Message)
	}
	if len(rpc.Result.Content) == 0 {
		return "", fmt.Errorf("gateway: %s: empty result: %w", tool, ErrUnparsable)
	}
	if rpc.Result.IsError {
		return "", fmt.Errorf("gateway: %s: tool error: %s", tool, rpc.Result.Content[0].Text)
	}
	return rpc.Result.Content[0].Text, nil
}

// decodeEmbedded decodes the outermost JSON object found in s, tolerating
// code fences and surrounding prose.
func decodeEmbedded(s string, v any) error {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return ErrUnparsable
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), v); err != nil {
		return fmt.Errorf("%w: %v", ErrUnparsable, err)
	}
	return nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
