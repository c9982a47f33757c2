package models

import "time"

// Severity 告警级别
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityNormal   Severity = "normal"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid 是否为已知级别
func (s Severity) Valid() bool {
	switch s {
	case SeverityNone, SeverityLow, SeverityNormal, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Urgent 是否需要短信/外部工单转发
func (s Severity) Urgent() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// AutoCreate 分类命中后的自动创建动作
type AutoCreate string

const (
	AutoCreateNone       AutoCreate = ""
	AutoCreateTicket     AutoCreate = "ticket"
	AutoCreateSubscriber AutoCreate = "subscriber"
)

// EmailAddress 邮件地址
type EmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// Display 优先返回名称，否则返回地址
func (a EmailAddress) Display() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Address
}

// Email 入站邮件（IMAP 轮询结果）
type Email struct {
	UID     string       `json:"uid"`
	Subject string       `json:"subject"`
	From    EmailAddress `json:"from"`
	To      string       `json:"to,omitempty"`
	Text    string       `json:"text,omitempty"`
	Date    time.Time    `json:"date,omitempty"`
}

// Category 分类表条目，启动时定义，不持久化
type Category struct {
	Key        string     `json:"key"`
	Severity   Severity   `json:"severity"`
	AutoCreate AutoCreate `json:"autoCreate,omitempty"`
	Label      string     `json:"label"`
	CSSClass   string     `json:"cssClass"`
}

// ClassificationResult 分类结果，按邮件 UID 缓存
type ClassificationResult struct {
	Category   string     `json:"category"`
	Severity   Severity   `json:"severity"`
	AutoCreate AutoCreate `json:"autoCreate,omitempty"`
	Source     string     `json:"source"`
	Label      string     `json:"label"`
	Cls        string     `json:"cls"`
}

// Customer 工单上的客户信息
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// TicketMessage 工单往来消息
type TicketMessage struct {
	From      string    `json:"from"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Ticket 工单
type Ticket struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`   // open, in-progress, resolved
	Priority    string          `json:"priority"` // low, normal, high, critical
	Source      string          `json:"source"`
	EmailUID    string          `json:"emailUid,omitempty"`
	Customer    Customer        `json:"customer"`
	Subject     string          `json:"subject"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"createdAt"`
	ResolvedAt  *time.Time      `json:"resolvedAt"`
	Messages    []TicketMessage `json:"messages"`
}

// Subscriber 订阅用户
type Subscriber struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	Plan      string   `json:"plan"`
	MRR       float64  `json:"mrr"`
	Status    string   `json:"status"` // pending, active, cancelled
	Source    string   `json:"source"`
	EmailUID  string   `json:"emailUid,omitempty"`
	StartDate string   `json:"startDate"`
	Tickets   []string `json:"tickets"`
}

// ChannelMessage 来自其他渠道（Tawk、Facebook、短信、在线聊天）的消息
type ChannelMessage struct {
	ID        string                 `json:"id"`
	Channel   string                 `json:"channel"`
	From      string                 `json:"from"`
	Name      string                 `json:"name,omitempty"`
	Text      string                 `json:"text"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}
