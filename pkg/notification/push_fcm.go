package notification

import (
	"context"
	"fmt"
	"net/http"
)

type FCMConfig struct {
	ProjectID   string `env:"FCM_PROJECT_ID"`
	AccessToken string `env:"FCM_ACCESS_TOKEN"`
	Endpoint    string `env:"FCM_ENDPOINT"` // 默认 https://fcm.googleapis.com
}

// PushClient 便于替换/注入的推送接口
type PushClient interface {
	Send(ctx context.Context, token string, msg Message) error
}

type Push struct {
	cli PushClient
}

func NewPush(cli PushClient) *Push { return &Push{cli: cli} }

func (p *Push) Send(ctx context.Context, token string, msg Message) error {
	if p.cli == nil {
		return fmt.Errorf("PushClient not configured")
	}
	return p.cli.Send(ctx, token, msg)
}

// FCMClient talks to the FCM HTTP v1 API.
type FCMClient struct {
	cfg  FCMConfig
	http *http.Client
}

func NewFCMClient(cfg FCMConfig, hc *http.Client) *FCMClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://fcm.googleapis.com"
	}
	if hc == nil {
		hc = defaultHTTPClient()
	}
	return &FCMClient{cfg: cfg, http: hc}
}

type fcmMessage struct {
	Message struct {
		Token        string            `json:"token"`
		Notification *fcmNotification  `json:"notification,omitempty"`
		Data         map[string]string `json:"data,omitempty"`
	} `json:"message"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (c *FCMClient) Send(ctx context.Context, token string, msg Message) error {
	var body fcmMessage
	body.Message.Token = token
	body.Message.Data = msg.Data
	if msg.Title != "" || msg.Body != "" {
		body.Message.Notification = &fcmNotification{Title: msg.Title, Body: msg.Body}
	}

	url := fmt.Sprintf("%s/v1/projects/%s/messages:send", c.cfg.Endpoint, c.cfg.ProjectID)
	req, err := newJSONRequest(ctx, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	return do(c.http, req)
}
