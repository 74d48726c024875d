package mailing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/postify/drip-engine/internal/domain"
	"github.com/postify/drip-engine/internal/pkg/httpretry"
	"github.com/postify/drip-engine/internal/pkg/logger"
)

// SparkPostGateway sends through the SparkPost Transmissions API.
type SparkPostGateway struct {
	apiKey  string
	baseURL string
	from    Sender
	client  httpretry.HTTPDoer
}

// NewSparkPostGateway creates a gateway targeting baseURL (the v1 API root).
// Throttled requests are retried; anything else is reported as-is.
func NewSparkPostGateway(apiKey, baseURL string, from Sender, timeout time.Duration) *SparkPostGateway {
	if baseURL == "" {
		baseURL = "https://api.sparkpost.com/api/v1"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SparkPostGateway{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		from:    from,
		client:  httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 2),
	}
}

type transmission struct {
	Recipients []transmissionRecipient `json:"recipients"`
	Content    transmissionContent     `json:"content"`
}

type transmissionRecipient struct {
	Address struct {
		Email string `json:"email"`
	} `json:"address"`
}

type transmissionContent struct {
	From    map[string]string `json:"from"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html"`
}

// Deliver posts one transmission.
func (g *SparkPostGateway) Deliver(ctx context.Context, recipient, subject, body string) domain.DeliveryResult {
	if g.apiKey == "" {
		return liveError(fmt.Errorf("SparkPost API key not configured"))
	}

	var rcpt transmissionRecipient
	rcpt.Address.Email = recipient
	payload := transmission{
		Recipients: []transmissionRecipient{rcpt},
		Content: transmissionContent{
			From:    map[string]string{"email": g.from.Email, "name": g.from.Name},
			Subject: subject,
			HTML:    body,
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return liveError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/transmissions", bytes.NewReader(jsonData))
	if err != nil {
		return liveError(err)
	}
	req.Header.Set("Authorization", g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		logger.Warn("sparkpost send failed", "recipient", recipient, "error", err)
		return liveError(err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		err := fmt.Errorf("SparkPost error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		logger.Warn("sparkpost rejected", "recipient", recipient, "error", err)
		return liveError(err)
	}

	var result struct {
		Results struct {
			ID string `json:"id"`
		} `json:"results"`
	}
	_ = json.Unmarshal(respBody, &result)

	logger.Info("sparkpost sent", "recipient", recipient, "email_id", result.Results.ID)

	return domain.DeliveryResult{
		Status:  domain.OutcomeSuccess,
		ID:      result.Results.ID,
		Mode:    domain.ModeLive,
		Message: "Email sent",
	}
}
