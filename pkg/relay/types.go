package relay

import "time"

// Config 中继客户端配置
type Config struct {
	BaseURL    string        `json:"base_url"`
	APIKey     string        `json:"api_key"`
	Timeout    time.Duration `json:"timeout"`
	MaxRetries int           `json:"max_retries"`
	RetryDelay time.Duration `json:"retry_delay"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "http://localhost:3100",
		Timeout:    10 * time.Second,
		MaxRetries: 1,
		RetryDelay: 500 * time.Millisecond,
	}
}

// MessageRequest 发送中继消息
type MessageRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

// TaskRequest 创建任务
type TaskRequest struct {
	Title    string `json:"title"`
	Assignee string `json:"assignee"`
	Priority string `json:"priority,omitempty"`
	Source   string `json:"source,omitempty"`
}

// Task 中继侧创建的任务
type Task struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Assignee string `json:"assignee"`
	Priority string `json:"priority"`
	Status   string `json:"status"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code,omitempty"`
}
