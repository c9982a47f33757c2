package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Client 消息中继 / 任务 / 派发桥 HTTP 客户端
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Logger
	config     *Config
}

// NewClient 创建中继客户端；httpClient 为空时按配置超时创建
func NewClient(config *Config, httpClient *http.Client, logger *logrus.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		apiKey:     config.APIKey,
		httpClient: httpClient,
		logger:     logger,
		config:     config,
	}
}

// SendMessage 发送中继消息
func (c *Client) SendMessage(ctx context.Context, from, to, body string) error {
	if to == "" {
		return fmt.Errorf("recipient is required")
	}
	req := &MessageRequest{From: from, To: to, Body: body}
	return c.doRequestWithRetry(ctx, http.MethodPost, "/api/messages", req, nil)
}

// CreateTask 创建任务，返回任务 ID
func (c *Client) CreateTask(ctx context.Context, title, assignee, priority string) (string, error) {
	if title == "" {
		return "", fmt.Errorf("title is required")
	}
	req := &TaskRequest{Title: title, Assignee: assignee, Priority: priority, Source: "automation"}
	var task Task
	if err := c.doRequestWithRetry(ctx, http.MethodPost, "/api/tasks", req, &task); err != nil {
		return "", err
	}
	return task.ID, nil
}

// HealthCheck 检查中继是否可用
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := c.createRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	return c.doRequest(req, nil)
}

// 私有方法：创建 HTTP 请求
func (c *Client) createRequest(ctx context.Context, method, endpoint string, body interface{}) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("User-Agent", "SweepNspect-Relay-Client/1.0")
	return req, nil
}

// 私有方法：执行请求
func (c *Client) doRequest(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	c.logger.Debugf("Relay API Request: %s %s -> %d", req.Method, req.URL.String(), resp.StatusCode)

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			return &StatusError{Code: resp.StatusCode, Message: errResp.Error}
		}
		return &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// 私有方法：带重试的请求
func (c *Client) doRequestWithRetry(ctx context.Context, method, endpoint string, body interface{}, result interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
			c.logger.Warnf("Relay API retry attempt %d/%d", attempt, c.config.MaxRetries)
		}

		req, err := c.createRequest(ctx, method, endpoint, body)
		if err != nil {
			return err
		}

		if err := c.doRequest(req, result); err != nil {
			lastErr = err
			if attempt < c.config.MaxRetries && shouldRetry(err) {
				continue
			}
			break
		}
		return nil
	}

	return lastErr
}

// StatusError 非 2xx 响应
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay API error [%d]: %s", e.Code, e.Message)
}

// 4xx 不重试
func shouldRetry(err error) bool {
	if se, ok := err.(*StatusError); ok {
		return se.Code >= 500
	}
	return true
}
