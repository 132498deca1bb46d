package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
)

// HTTPAdapter calls a gateway exposing POST {BaseURL}/extract.
type HTTPAdapter struct {
	BaseURL string
	Client  *http.Client
}

type requestBody struct {
	MessageID   string    `json:"message_id"`
	TeamID      int64     `json:"team_id"`
	SenderName  string    `json:"sender_name"`
	SenderEmail string    `json:"sender_email"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	ReceivedAt  time.Time `json:"received_at"`
}

const maxResponseBytes = 1 << 20

func (h HTTPAdapter) Extract(ctx context.Context, m models.InboundMessage) (Extraction, int64, error) {
	if h.Client == nil {
		h.Client = &http.Client{Timeout: 15 * time.Second}
	}

	b, err := json.Marshal(requestBody{
		MessageID:   m.ID,
		TeamID:      m.TeamID,
		SenderName:  m.SenderName,
		SenderEmail: m.SenderEmail,
		Subject:     m.Subject,
		Body:        m.Body,
		ReceivedAt:  m.ReceivedAt,
	})
	if err != nil {
		return Extraction{}, 0, err
	}
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/extract", bytes.NewReader(b))
	if err != nil {
		return Extraction{}, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.Client.Do(req)
	if err != nil {
		return Extraction{}, time.Since(start).Milliseconds(), err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Extraction{}, time.Since(start).Milliseconds(), fmt.Errorf("ai gateway: status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Extraction{}, time.Since(start).Milliseconds(), err
	}

	e, err := DecodeExtraction(raw)
	if err != nil {
		return Extraction{}, time.Since(start).Milliseconds(), err
	}
	if e.MessageID != m.ID {
		return Extraction{}, time.Since(start).Milliseconds(), fmt.Errorf("ai gateway: extraction for %q, asked for %q", e.MessageID, m.ID)
	}
	return e, time.Since(start).Milliseconds(), nil
}
