package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sweepnspect/internal/models"

	"github.com/sirupsen/logrus"
)

// AlertSender 告警入口
type AlertSender interface {
	Send(ctx context.Context, alertType string, severity models.Severity, message string, data map[string]interface{}) (*models.Alert, error)
}

// InboxEntry 最近处理过的邮件
type InboxEntry struct {
	Email          models.Email                `json:"email"`
	Classification models.ClassificationResult `json:"classification"`
	ProcessedAt    time.Time                   `json:"processedAt"`
	TicketID       string                      `json:"ticketId,omitempty"`
	SubscriberID   string                      `json:"subscriberId,omitempty"`
}

const inboxSize = 100

// EmailRouter 分类后执行告警、看板推送与工单/订阅自动创建
type EmailRouter struct {
	classifier  *Classifier
	alerts      AlertSender
	tickets     *TicketService
	subscribers *SubscriberService
	hub         Broadcaster
	automation  EventEvaluator
	logger      *logrus.Logger

	mutex sync.RWMutex
	inbox []InboxEntry
	now   func() time.Time
}

func NewEmailRouter(classifier *Classifier, alerts AlertSender, tickets *TicketService, subscribers *SubscriberService, hub Broadcaster, logger *logrus.Logger) *EmailRouter {
	if logger == nil {
		logger = logrus.New()
	}
	if hub == nil {
		hub = noopBroadcaster{}
	}
	return &EmailRouter{
		classifier:  classifier,
		alerts:      alerts,
		tickets:     tickets,
		subscribers: subscribers,
		hub:         hub,
		logger:      logger,
		now:         time.Now,
	}
}

// SetAutomation 接入规则引擎：email:received, ticket:created, subscriber:created
func (r *EmailRouter) SetAutomation(e EventEvaluator) {
	r.automation = e
}

// ProcessNew 处理一封新邮件。UID 是去重键，缺失时不产生任何副作用。
// 持久化错误直接返回，重复的工单/订阅静默跳过。
func (r *EmailRouter) ProcessNew(ctx context.Context, email models.Email) (models.ClassificationResult, error) {
	if email.UID == "" {
		return models.ClassificationResult{}, ErrMissingEmailUID
	}
	result := r.classifier.Classify(email)
	entry := InboxEntry{Email: email, Classification: result, ProcessedAt: r.now()}

	if result.Severity != models.SeverityNone {
		message := fmt.Sprintf("[%s] %s: %s", result.Label, email.From.Display(), email.Subject)
		data := map[string]interface{}{
			"uid":      email.UID,
			"from":     email.From.Address,
			"category": result.Category,
		}
		if _, err := r.alerts.Send(ctx, result.Source, result.Severity, message, data); err != nil {
			return result, err
		}
	}

	r.hub.Broadcast("activity", map[string]interface{}{
		"kind":     "email",
		"uid":      email.UID,
		"from":     email.From.Display(),
		"subject":  email.Subject,
		"category": result.Category,
		"label":    result.Label,
		"cls":      result.Cls,
	})

	switch result.AutoCreate {
	case models.AutoCreateTicket:
		ticket, err := r.tickets.CreateFromEmail(ctx, email, result.Category)
		if err != nil {
			return result, err
		}
		if ticket != nil {
			entry.TicketID = ticket.ID
			r.evaluate(ctx, "ticket:created", ticket)
		}
	case models.AutoCreateSubscriber:
		sub, err := r.subscribers.CreateFromEmail(ctx, email)
		if err != nil {
			return result, err
		}
		if sub != nil {
			entry.SubscriberID = sub.ID
			r.evaluate(ctx, "subscriber:created", sub)
		}
	}

	r.remember(entry)
	r.evaluate(ctx, "email:received", map[string]interface{}{
		"uid":      email.UID,
		"subject":  email.Subject,
		"from":     email.From,
		"text":     email.Text,
		"category": result.Category,
		"severity": result.Severity,
		"label":    result.Label,
	})
	return result, nil
}

func (r *EmailRouter) evaluate(ctx context.Context, event string, data interface{}) {
	if r.automation == nil {
		return
	}
	r.automation.Evaluate(ctx, event, data)
}

func (r *EmailRouter) remember(entry InboxEntry) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.inbox = append(r.inbox, entry)
	if len(r.inbox) > inboxSize {
		r.inbox = r.inbox[len(r.inbox)-inboxSize:]
	}
}

// Recent 最近处理的邮件，最新在前
func (r *EmailRouter) Recent(limit int) []InboxEntry {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	out := make([]InboxEntry, 0, len(r.inbox))
	for i := len(r.inbox) - 1; i >= 0; i-- {
		out = append(out, r.inbox[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Classify 仅分类，不产生副作用
func (r *EmailRouter) Classify(email models.Email) models.ClassificationResult {
	return r.classifier.Classify(email)
}
