// Package mailer implements the authentication core's outbound-email
// collaborator against the Resend HTTP API.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const apiURL = "https://api.resend.com/emails"

// Resend sends transactional email through the Resend API. It holds no
// SDK dependency: the API surface used here is one JSON POST, and no
// Go client for it appears anywhere in the reference corpus (see
// DESIGN.md), so this wraps net/http directly.
type Resend struct {
	apiKey      string
	fromAddress string
	client      *http.Client
}

func NewResend(apiKey, fromAddress string) *Resend {
	return &Resend{
		apiKey:      apiKey,
		fromAddress: fromAddress,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Send implements authsvc.Mailer.
func (m *Resend) Send(ctx context.Context, to, subject, body string) error {
	payload, err := json.Marshal(sendRequest{
		From:    m.fromAddress,
		To:      []string{to},
		Subject: subject,
		HTML:    body,
	})
	if err != nil {
		return fmt.Errorf("encoding email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("resend API returned status %d", resp.StatusCode)
	}
	return nil
}
