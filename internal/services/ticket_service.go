package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"sweepnspect/internal/metrics"
	"sweepnspect/internal/models"
	"sweepnspect/internal/store"

	"github.com/sirupsen/logrus"
)

// EventEvaluator 自动化事件入口
type EventEvaluator interface {
	Evaluate(ctx context.Context, eventType string, data interface{}) []models.AutomationLogEntry
}

const (
	TicketStatusOpen       = "open"
	TicketStatusInProgress = "in-progress"
	TicketStatusResolved   = "resolved"
)

// TicketService 工单管理服务
type TicketService struct {
	store      store.Store
	hub        Broadcaster
	automation EventEvaluator
	logger     *logrus.Logger
	now        func() time.Time
}

// NewTicketService 创建工单服务
func NewTicketService(st store.Store, hub Broadcaster, logger *logrus.Logger) *TicketService {
	if logger == nil {
		logger = logrus.New()
	}
	if hub == nil {
		hub = noopBroadcaster{}
	}
	return &TicketService{
		store:  st,
		hub:    hub,
		logger: logger,
		now:    time.Now,
	}
}

// SetAutomation 状态变更时触发 ticket:updated
func (s *TicketService) SetAutomation(e EventEvaluator) {
	s.automation = e
}

// TicketListRequest 工单列表过滤
type TicketListRequest struct {
	Status   string `form:"status"`
	Priority string `form:"priority"`
	Limit    int    `form:"limit"`
}

// List 按创建时间倒序
func (s *TicketService) List(ctx context.Context, req TicketListRequest) ([]models.Ticket, error) {
	tickets, err := store.ReadList[models.Ticket](ctx, s.store, store.CollectionTickets)
	if err != nil {
		return nil, err
	}
	out := tickets[:0]
	for _, t := range tickets {
		if req.Status != "" && t.Status != req.Status {
			continue
		}
		if req.Priority != "" && t.Priority != req.Priority {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}

// Get 按 ID 查询
func (s *TicketService) Get(ctx context.Context, id string) (*models.Ticket, error) {
	tickets, err := store.ReadList[models.Ticket](ctx, s.store, store.CollectionTickets)
	if err != nil {
		return nil, err
	}
	for i := range tickets {
		if tickets[i].ID == id {
			return &tickets[i], nil
		}
	}
	return nil, ErrTicketNotFound
}

// ticketPriority 分类到工单优先级
func ticketPriority(category string) string {
	switch category {
	case CategoryBug:
		return "high"
	case CategoryBilling:
		return "critical"
	case CategoryTicket:
		return "normal"
	default:
		return "normal"
	}
}

// CreateFromEmail 由邮件生成工单；同一 emailUid 已存在时返回 nil, nil，缺少 UID 返回 ErrMissingEmailUID
func (s *TicketService) CreateFromEmail(ctx context.Context, email models.Email, category string) (*models.Ticket, error) {
	if email.UID == "" {
		return nil, ErrMissingEmailUID
	}
	var created *models.Ticket
	err := store.UpdateList(ctx, s.store, store.CollectionTickets, func(tickets []models.Ticket) ([]models.Ticket, error) {
		ids := make([]string, 0, len(tickets))
		for _, t := range tickets {
			if t.EmailUID == email.UID {
				return nil, errUnchanged
			}
			ids = append(ids, t.ID)
		}

		ticket := models.Ticket{
			ID:       store.NextID(ids, "TKT"),
			Status:   TicketStatusOpen,
			Priority: ticketPriority(category),
			Source:   "email",
			EmailUID: email.UID,
			Customer: models.Customer{
				Name:  email.From.Display(),
				Email: email.From.Address,
			},
			Subject:     StripBracketPrefix(email.Subject),
			Description: email.Text,
			CreatedAt:   s.now(),
			Messages:    []models.TicketMessage{},
		}
		created = &ticket
		return append(tickets, ticket), nil
	})
	if errors.Is(err, errUnchanged) {
		s.logger.Debugf("ticket for email %s already exists", email.UID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	metrics.RecordsAutoCreated.WithLabelValues("ticket").Inc()
	s.logger.Infof("Created ticket %s from email %s (%s)", created.ID, email.UID, created.Priority)
	s.hub.Broadcast("ticket:new", created)
	return created, nil
}

type ticketUpdatedEvent struct {
	models.Ticket
	PreviousStatus string `json:"previousStatus"`
}

// UpdateStatus 修改状态，resolved 时记录 resolvedAt
func (s *TicketService) UpdateStatus(ctx context.Context, id, status string) (*models.Ticket, error) {
	switch status {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved:
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	var updated models.Ticket
	var previous string
	err := store.UpdateList(ctx, s.store, store.CollectionTickets, func(tickets []models.Ticket) ([]models.Ticket, error) {
		for i := range tickets {
			if tickets[i].ID != id {
				continue
			}
			previous = tickets[i].Status
			tickets[i].Status = status
			if status == TicketStatusResolved {
				now := s.now()
				tickets[i].ResolvedAt = &now
			} else {
				tickets[i].ResolvedAt = nil
			}
			updated = tickets[i]
			return tickets, nil
		}
		return nil, ErrTicketNotFound
	})
	if err != nil {
		return nil, err
	}

	s.hub.Broadcast("ticket:updated", updated)
	if s.automation != nil && previous != status {
		s.automation.Evaluate(ctx, "ticket:updated", ticketUpdatedEvent{Ticket: updated, PreviousStatus: previous})
	}
	return &updated, nil
}

// AddMessage 追加往来消息
func (s *TicketService) AddMessage(ctx context.Context, id, from, text string) (*models.Ticket, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("message text required")
	}
	var updated models.Ticket
	err := store.UpdateList(ctx, s.store, store.CollectionTickets, func(tickets []models.Ticket) ([]models.Ticket, error) {
		for i := range tickets {
			if tickets[i].ID != id {
				continue
			}
			tickets[i].Messages = append(tickets[i].Messages, models.TicketMessage{
				From:      from,
				Text:      text,
				Timestamp: s.now(),
			})
			updated = tickets[i]
			return tickets, nil
		}
		return nil, ErrTicketNotFound
	})
	if err != nil {
		return nil, err
	}
	s.hub.Broadcast("ticket:updated", updated)
	return &updated, nil
}
