package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config Twilio 短信配置
type Config struct {
	AccountSID string
	AuthToken  string
	From       string
	To         string
	BaseURL    string
	Timeout    time.Duration
}

// Client Twilio REST 短信客户端
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *logrus.Logger
}

// apiError Twilio 错误响应
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewClient 创建短信客户端
func NewClient(config Config, httpClient *http.Client, logger *logrus.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.twilio.com"
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{config: config, httpClient: httpClient, logger: logger}
}

// Configured 凭据与号码是否完整；未配置时调用方直接跳过
func (c *Client) Configured() bool {
	return c.config.AccountSID != "" && c.config.AuthToken != "" && c.config.From != "" && c.config.To != ""
}

// Send 发送短信到配置的接收号码
func (c *Client) Send(ctx context.Context, text string) error {
	if !c.Configured() {
		return fmt.Errorf("twilio not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	form := url.Values{}
	form.Set("To", c.config.To)
	form.Set("From", c.config.From)
	form.Set("Body", text)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(c.config.BaseURL, "/"), url.PathEscape(c.config.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.config.AccountSID, c.config.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 300 {
		var apiErr apiError
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
			return fmt.Errorf("twilio error [%d]: %s (code: %d)", resp.StatusCode, apiErr.Message, apiErr.Code)
		}
		return fmt.Errorf("twilio error [%d]: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	c.logger.Debugf("SMS sent to %s (%d chars)", c.config.To, len(text))
	return nil
}
