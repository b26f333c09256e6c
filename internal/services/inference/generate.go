package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/nunotfc/amelie/internal/services"
)

// GenerateRequest describes one media analysis call.
type GenerateRequest struct {
	FileURI  string
	MimeType string
	Prompt   string
	// Verbosity selects the generation profile ("long" or "short").
	Verbosity string
}

type genConfigKey struct {
	verbosity string
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// generationConfigFor returns the encoded generation profile for a verbosity,
// cached because the same handful of profiles is reused for every call.
func (c *Client) generationConfigFor(verbosity string) ([]byte, error) {
	key := genConfigKey{verbosity: verbosity}
	if cached, ok := c.genConfigs.Get(key); ok {
		return cached, nil
	}

	cfg := generationConfig{Temperature: 0.4, MaxOutputTokens: 1024}
	if verbosity == "short" {
		cfg = generationConfig{Temperature: 0.2, MaxOutputTokens: 256}
	}
	encoded, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	c.genConfigs.Add(key, encoded)
	return encoded, nil
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Generate runs content analysis against an uploaded file and returns the
// produced description. Safety rejections classify as safety_blocked and are
// never retried upstream.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	const op = "inference generate"
	if strings.TrimSpace(req.FileURI) == "" {
		return "", services.NewError(services.KindGeneral, op, "file uri required", nil)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return "", services.NewError(services.KindGeneral, op, "prompt required", nil)
	}
	if c.cfg.APIKey == "" {
		return "", services.NewError(services.KindGeneral, op, "api key required", nil)
	}

	genConfig, err := c.generationConfigFor(req.Verbosity)
	if err != nil {
		return "", services.NewError(services.KindGeneral, op, "encode generation config", err)
	}

	payload := map[string]any{
		"contents": []map[string]any{
			{
				"parts": []map[string]any{
					{"fileData": map[string]string{"fileUri": req.FileURI, "mimeType": req.MimeType}},
					{"text": req.Prompt},
				},
			},
		},
		"generationConfig": json.RawMessage(genConfig),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", services.NewError(services.KindGeneral, op, "encode request", err)
	}

	endpoint := c.endpoint("v1beta", "models", c.cfg.Model+":generateContent") + "?key=" + c.cfg.APIKey
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", services.NewError(services.KindGeneral, op, "new request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	body, err := c.do(op, httpReq)
	if err != nil {
		return "", err
	}

	var decoded generateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", services.NewError(services.KindGeneral, op, "decode response", err)
	}

	if decoded.PromptFeedback != nil && decoded.PromptFeedback.BlockReason != "" {
		return "", services.NewError(services.KindSafetyBlocked, op,
			"prompt blocked: "+decoded.PromptFeedback.BlockReason, nil)
	}
	if len(decoded.Candidates) == 0 {
		return "", services.NewError(services.KindGeneral, op, "empty candidates", nil)
	}
	candidate := decoded.Candidates[0]
	if strings.EqualFold(candidate.FinishReason, "SAFETY") {
		return "", services.NewError(services.KindSafetyBlocked, op, "candidate blocked by safety filter", nil)
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}
	result := strings.TrimSpace(text.String())
	if result == "" {
		return "", services.NewError(services.KindGeneral, op, "empty content", nil)
	}
	return result, nil
}

// HealthCheck verifies the API key and model are usable with a minimal
// text-only generation call.
func (c *Client) HealthCheck(ctx context.Context) error {
	const op = "inference health"
	if c.cfg.APIKey == "" {
		return services.NewError(services.KindGeneral, op, "api key required", nil)
	}

	payload := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]any{{"text": "Reply with the single word: ok"}}},
		},
		"generationConfig": generationConfig{Temperature: 0, MaxOutputTokens: 8},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return services.NewError(services.KindGeneral, op, "encode request", err)
	}

	endpoint := c.endpoint("v1beta", "models", c.cfg.Model+":generateContent") + "?key=" + c.cfg.APIKey
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return services.NewError(services.KindGeneral, op, "new request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if _, err := c.do(op, req); err != nil {
		return err
	}
	return nil
}
