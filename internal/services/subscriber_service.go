package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sweepnspect/internal/metrics"
	"sweepnspect/internal/models"
	"sweepnspect/internal/store"

	"github.com/sirupsen/logrus"
)

// SubscriberService 订阅用户
type SubscriberService struct {
	store  store.Store
	hub    Broadcaster
	logger *logrus.Logger
	now    func() time.Time
}

func NewSubscriberService(st store.Store, hub Broadcaster, logger *logrus.Logger) *SubscriberService {
	if logger == nil {
		logger = logrus.New()
	}
	if hub == nil {
		hub = noopBroadcaster{}
	}
	return &SubscriberService{store: st, hub: hub, logger: logger, now: time.Now}
}

func (s *SubscriberService) List(ctx context.Context) ([]models.Subscriber, error) {
	return store.ReadList[models.Subscriber](ctx, s.store, store.CollectionSubscribers)
}

// CreateFromEmail 按邮箱（忽略大小写）去重；已存在返回 nil, nil
func (s *SubscriberService) CreateFromEmail(ctx context.Context, email models.Email) (*models.Subscriber, error) {
	address := strings.TrimSpace(email.From.Address)
	if address == "" {
		return nil, fmt.Errorf("create subscriber: sender address required")
	}

	var created *models.Subscriber
	err := store.UpdateList(ctx, s.store, store.CollectionSubscribers, func(subs []models.Subscriber) ([]models.Subscriber, error) {
		ids := make([]string, 0, len(subs))
		for _, sub := range subs {
			if strings.EqualFold(sub.Email, address) {
				return nil, errUnchanged
			}
			ids = append(ids, sub.ID)
		}

		name := email.From.Name
		if name == "" {
			name = strings.SplitN(address, "@", 2)[0]
		}
		sub := models.Subscriber{
			ID:        store.NextID(ids, "SUB"),
			Name:      name,
			Email:     address,
			Plan:      "",
			MRR:       0,
			Status:    "pending",
			Source:    "email",
			EmailUID:  email.UID,
			StartDate: s.now().Format("2006-01-02"),
			Tickets:   []string{},
		}
		created = &sub
		return append(subs, sub), nil
	})
	if errors.Is(err, errUnchanged) {
		s.logger.Debugf("subscriber %s already exists", address)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create subscriber: %w", err)
	}

	metrics.RecordsAutoCreated.WithLabelValues("subscriber").Inc()
	s.logger.Infof("Created subscriber %s for %s", created.ID, address)
	s.hub.Broadcast("subscriber:new", created)
	return created, nil
}
