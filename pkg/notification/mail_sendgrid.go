package notification

import (
	"context"
	"fmt"
	"net/http"
)

type SendGridConfig struct {
	APIKey   string `env:"SENDGRID_API_KEY"`
	From     string `env:"SENDGRID_FROM"`
	FromName string `env:"SENDGRID_FROM_NAME"`
	Endpoint string `env:"SENDGRID_ENDPOINT"`
}

// MailClient 便于替换/注入的邮件发送接口
type MailClient interface {
	Send(ctx context.Context, to, toName, subject, body string) error
}

type Mail struct {
	cli MailClient
}

func NewMail(cli MailClient) *Mail { return &Mail{cli: cli} }

func (m *Mail) Send(ctx context.Context, to, toName, subject, body string) error {
	if m.cli == nil {
		return fmt.Errorf("MailClient not configured")
	}
	return m.cli.Send(ctx, to, toName, subject, body)
}

type SendGridClient struct {
	cfg  SendGridConfig
	http *http.Client
}

func NewSendGridClient(cfg SendGridConfig, hc *http.Client) *SendGridClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.sendgrid.com"
	}
	if hc == nil {
		hc = defaultHTTPClient()
	}
	return &SendGridClient{cfg: cfg, http: hc}
}

type sgAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgMail struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
}

func (c *SendGridClient) Send(ctx context.Context, to, toName, subject, body string) error {
	payload := sgMail{
		Personalizations: []sgPersonalization{{To: []sgAddress{{Email: to, Name: toName}}}},
		From:             sgAddress{Email: c.cfg.From, Name: c.cfg.FromName},
		Subject:          subject,
		Content:          []sgContent{{Type: "text/plain", Value: body}},
	}
	req, err := newJSONRequest(ctx, c.cfg.Endpoint+"/v3/mail/send", payload)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	return do(c.http, req)
}
