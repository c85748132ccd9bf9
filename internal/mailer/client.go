// Package mailer предоставляет клиент почтового шлюза для отправки уведомлений.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Client инкапсулирует HTTP-взаимодействие с почтовым шлюзом.
// Пустой адрес шлюза переводит клиент в режим журнала: письма только
// логируются, что соответствует тестовому окружению без SMTP.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
	logger     *zap.Logger
}

type message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Content string `json:"content"`
}

// NewClient создаёт клиент почтового шлюза по указанному адресу.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: rc,
		logger:     logger,
	}
}

// Send отправляет письмо через шлюз. Без настроенного шлюза письмо
// записывается в журнал и считается доставленным.
func (c *Client) Send(ctx context.Context, to, subject, content string) error {
	if c.baseURL == "" {
		c.logger.Info("mail gateway not configured, logging email",
			zap.String("to", to),
			zap.String("subject", subject),
		)
		return nil
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	body, err := json.Marshal(message{To: to, Subject: subject, Content: content})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, base+"/api/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}
