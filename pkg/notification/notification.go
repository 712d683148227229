package notification

import (
	"context"
	"fmt"
	"strings"
)

const (
	ChannelPush = "push"
	ChannelSMS  = "sms"
	ChannelMail = "mail"
)

// Recipient 通知接收方，哪些字段非空就走哪些通道
type Recipient struct {
	Name      string `json:"name,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	PushToken string `json:"push_token,omitempty"`
	// Language 消息语言，空则用默认语言
	Language string `json:"language,omitempty"`
}

func (r Recipient) Empty() bool {
	return r.Phone == "" && r.Email == "" && r.PushToken == ""
}

type Message struct {
	Title string
	Body  string
	// Data rides along as the push payload; silent pushes carry only Data.
	Data map[string]string
}

type ChannelResult struct {
	Channel string `json:"channel"`
	Target  string `json:"target"`
	Sent    bool   `json:"sent"`
	Error   string `json:"error,omitempty"`
}

// Result is the per-channel outcome of one delivery.
type Result struct {
	Channels []ChannelResult `json:"channels"`
}

// Delivered reports whether at least one channel accepted the message.
func (r Result) Delivered() bool {
	for _, c := range r.Channels {
		if c.Sent {
			return true
		}
	}
	return false
}

// Err folds channel failures into one error, nil when nothing failed.
func (r Result) Err() error {
	var parts []string
	for _, c := range r.Channels {
		if !c.Sent {
			parts = append(parts, fmt.Sprintf("%s(%s): %s", c.Channel, c.Target, c.Error))
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return fmt.Errorf("notification failed: %s", strings.Join(parts, "; "))
}

func (r *Result) add(channel, target string, err error) {
	cr := ChannelResult{Channel: channel, Target: target, Sent: err == nil}
	if err != nil {
		cr.Error = err.Error()
	}
	r.Channels = append(r.Channels, cr)
}

func (r *Result) Merge(other Result) {
	r.Channels = append(r.Channels, other.Channels...)
}

// Dispatcher fans a message out to every configured channel the recipient
// can be reached on. Any of the senders may be nil.
type Dispatcher struct {
	push *Push
	sms  *SMS
	mail *Mail
}

func NewDispatcher(push *Push, sms *SMS, mail *Mail) *Dispatcher {
	return &Dispatcher{push: push, sms: sms, mail: mail}
}

func (d *Dispatcher) Deliver(ctx context.Context, r Recipient, msg Message) Result {
	var res Result
	if d.push != nil && r.PushToken != "" {
		res.add(ChannelPush, r.PushToken, d.push.Send(ctx, r.PushToken, msg))
	}
	if d.sms != nil && r.Phone != "" {
		res.add(ChannelSMS, r.Phone, d.sms.Send(ctx, r.Phone, msg.Body))
	}
	if d.mail != nil && r.Email != "" {
		res.add(ChannelMail, r.Email, d.mail.Send(ctx, r.Email, r.Name, msg.Title, msg.Body))
	}
	return res
}

// PushData sends a data-only push. Used for device-side toggles such as
// silent mode where no visible notification is wanted.
func (d *Dispatcher) PushData(ctx context.Context, token string, data map[string]string) Result {
	var res Result
	if d.push == nil || token == "" {
		return res
	}
	res.add(ChannelPush, token, d.push.Send(ctx, token, Message{Data: data}))
	return res
}
