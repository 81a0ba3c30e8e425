// Package push delivers best-effort mobile notifications for recipients
// with no live connection. Failures are logged and counted, never
// retried; the message itself is already durable.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Notification is one outbound push for one device.
type Notification struct {
	UserID int64
	Token  string
	Title  string
	Body   string
	ChatID int64
	MsgID  int64
	Kind   string // chat kind, lets the client route the tap
}

type Provider interface {
	Send(ctx context.Context, n Notification) error
}

// HTTPProvider posts to an FCM-style legacy endpoint. The notification
// block drives the system tray; the data block duplicates the display
// fields so the app can render in-feed without a second fetch.
type HTTPProvider struct {
	endpoint  string
	serverKey string
	client    *http.Client
}

func NewHTTPProvider(endpoint, serverKey string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPProvider{
		endpoint:  endpoint,
		serverKey: serverKey,
		client:    &http.Client{Timeout: timeout},
	}
}

type pushPayload struct {
	To           string            `json:"to"`
	Notification pushNotification  `json:"notification"`
	Data         map[string]string `json:"data"`
}

type pushNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (p *HTTPProvider) Send(ctx context.Context, n Notification) error {
	payload := pushPayload{
		To:           n.Token,
		Notification: pushNotification{Title: n.Title, Body: n.Body},
		Data: map[string]string{
			"title":     n.Title,
			"body":      n.Body,
			"groupId":   strconv.FormatInt(n.ChatID, 10),
			"messageId": strconv.FormatInt(n.MsgID, 10),
			"type":      n.Kind,
		},
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+p.serverKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("push endpoint returned %d", resp.StatusCode)
	}
	return nil
}
