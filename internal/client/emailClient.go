package client

import (
	"context"
	"errors"
	"fmt"
	"marketplace-settlement/internal/config"

	"github.com/go-resty/resty/v2"
)

var ErrEmail = errors.New("email request failed")

type EmailMessage struct {
	To      string
	Subject string
	HTML    string
}

type EmailClient interface {
	Send(ctx context.Context, msg *EmailMessage) (string, error)
}

type emailClientImpl struct {
	http *resty.Client
	from string
}

func NewEmailClient(cfg *config.Email) EmailClient {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseApiURL).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return &emailClientImpl{
		http: httpClient,
		from: cfg.From,
	}
}

type sendEmailPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type sendEmailResult struct {
	ID string `json:"id"`
}

func (c *emailClientImpl) Send(ctx context.Context, msg *EmailMessage) (string, error) {
	if msg.To == "" {
		return "", fmt.Errorf("%w: empty recipient", ErrEmail)
	}

	var result sendEmailResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(&sendEmailPayload{
			From:    c.from,
			To:      []string{msg.To},
			Subject: msg.Subject,
			HTML:    msg.HTML,
		}).
		SetResult(&result).
		Post("/emails")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEmail, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: status=%d body=%s", ErrEmail, resp.StatusCode(), resp.String())
	}

	return result.ID, nil
}
