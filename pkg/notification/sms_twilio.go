package notification

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

type TwilioConfig struct {
	AccountSID string `env:"TWILIO_ACCOUNT_SID"`
	AuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	From       string `env:"TWILIO_FROM"`
	Endpoint   string `env:"TWILIO_ENDPOINT"`
}

// SMSClient 便于替换/注入的短信发送接口
type SMSClient interface {
	Send(ctx context.Context, phone, body string) error
}

type SMS struct {
	cli SMSClient
}

func NewSMS(cli SMSClient) *SMS { return &SMS{cli: cli} }

func (s *SMS) Send(ctx context.Context, phone, body string) error {
	if s.cli == nil {
		return fmt.Errorf("SMSClient not configured")
	}
	return s.cli.Send(ctx, phone, body)
}

type TwilioClient struct {
	cfg  TwilioConfig
	http *http.Client
}

func NewTwilioClient(cfg TwilioConfig, hc *http.Client) *TwilioClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.twilio.com"
	}
	if hc == nil {
		hc = defaultHTTPClient()
	}
	return &TwilioClient{cfg: cfg, http: hc}
}

func (c *TwilioClient) Send(ctx context.Context, phone, body string) error {
	form := url.Values{}
	form.Set("To", phone)
	form.Set("From", c.cfg.From)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.cfg.Endpoint, c.cfg.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
	return do(c.http, req)
}
