package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/routing"
)

// WebhookHandler posts actions as JSON to an external task/CRM endpoint. The
// receiver deduplicates on the Idempotency-Key header.
type WebhookHandler struct {
	URL     string
	Client  *http.Client
	Limiter *rate.Limiter
}

func NewWebhookHandler(url string, perSecond float64) *WebhookHandler {
	if perSecond <= 0 {
		perSecond = 5
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &WebhookHandler{
		URL:     url,
		Client:  &http.Client{Timeout: 15 * time.Second},
		Limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

type webhookPayload struct {
	IdempotencyKey string               `json:"idempotency_key"`
	Type           string               `json:"type"`
	RuleID         int64                `json:"rule_id"`
	RuleName       string               `json:"rule_name"`
	TeamID         int64                `json:"team_id"`
	Intent         string               `json:"intent"`
	Confidence     int                  `json:"confidence"`
	Params         map[string]any       `json:"params"`
	Email          routing.EmailContext `json:"email"`
}

func (h *WebhookHandler) Handle(ctx context.Context, a routing.Action) (map[string]any, error) {
	if h.Client == nil {
		h.Client = &http.Client{Timeout: 15 * time.Second}
	}
	if h.Limiter != nil {
		if err := h.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	b, err := json.Marshal(webhookPayload{
		IdempotencyKey: a.IdempotencyKey,
		Type:           a.Type,
		RuleID:         a.RuleID,
		RuleName:       a.RuleName,
		TeamID:         a.TeamID,
		Intent:         a.Intent,
		Confidence:     a.Confidence,
		Params:         a.Params,
		Email:          a.Email,
	})
	if err != nil {
		return nil, Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(b))
	if err != nil {
		return nil, Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", a.IdempotencyKey)

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("webhook http error: %s", resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, Permanent(err)
		}
		return nil, err
	}

	out := map[string]any{"status": resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return out, nil
	}
	var decoded map[string]any
	if len(body) > 0 && json.Unmarshal(body, &decoded) == nil {
		out["response"] = decoded
	}
	return out, nil
}
