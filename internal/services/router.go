package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"sweepnspect/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type ChannelType string

const (
	ChannelTawk     ChannelType = "tawk"
	ChannelFacebook ChannelType = "facebook"
	ChannelSMS      ChannelType = "sms"
	ChannelLiveChat ChannelType = "livechat"
)

// ChannelRouter 非邮件渠道的入站消息：推送看板并触发 <channel>:message
type ChannelRouter struct {
	hub        Broadcaster
	automation EventEvaluator
	channels   map[ChannelType]bool
	counts     map[ChannelType]int
	mutex      sync.RWMutex
	logger     *logrus.Logger
	now        func() time.Time
}

func NewChannelRouter(hub Broadcaster, automation EventEvaluator, logger *logrus.Logger) *ChannelRouter {
	if logger == nil {
		logger = logrus.New()
	}
	if hub == nil {
		hub = noopBroadcaster{}
	}
	return &ChannelRouter{
		hub:        hub,
		automation: automation,
		channels: map[ChannelType]bool{
			ChannelTawk:     true,
			ChannelFacebook: true,
			ChannelSMS:      true,
			ChannelLiveChat: true,
		},
		counts: make(map[ChannelType]int),
		logger: logger,
		now:    time.Now,
	}
}

// Route 处理一条渠道消息
func (r *ChannelRouter) Route(ctx context.Context, msg models.ChannelMessage) (*models.ChannelMessage, error) {
	channel := ChannelType(strings.ToLower(msg.Channel))
	if !r.channels[channel] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, msg.Channel)
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil, fmt.Errorf("message text required")
	}

	msg.Channel = string(channel)
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = r.now()
	}

	r.mutex.Lock()
	r.counts[channel]++
	r.mutex.Unlock()

	r.logger.Infof("Received %s message from %s", channel, msg.From)
	r.hub.Broadcast("activity", map[string]interface{}{
		"kind": msg.Channel,
		"id":   msg.ID,
		"from": msg.From,
		"name": msg.Name,
		"text": msg.Text,
	})

	if r.automation != nil {
		r.automation.Evaluate(ctx, msg.Channel+":message", msg)
	}
	return &msg, nil
}

// Stats 各渠道消息计数
func (r *ChannelRouter) Stats() map[string]int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	out := make(map[string]int, len(r.channels))
	for ch := range r.channels {
		out[string(ch)] = r.counts[ch]
	}
	return out
}
