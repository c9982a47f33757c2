package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"sweepnspect/internal/config"
	"sweepnspect/internal/metrics"
	"sweepnspect/internal/models"
	"sweepnspect/internal/store"
	"sweepnspect/pkg/utils"

	"github.com/sirupsen/logrus"
)

// SMSSender 短信通道
type SMSSender interface {
	Configured() bool
	Send(ctx context.Context, text string) error
}

// TicketBridge 外部工单系统
type TicketBridge interface {
	SendTicket(ctx context.Context, subject, body string) error
}

// AlertRouter 告警扇出：持久化、看板推送、短信批量与冷却、外部工单转发。
// 短信与工单桥都是尽力而为，失败只记录日志，不影响 Send 的返回。
type AlertRouter struct {
	store   store.Store
	hub     Broadcaster
	sms     SMSSender
	bridge  TicketBridge
	breaker *CircuitBreaker
	config  config.AlertsConfig
	logger  *logrus.Logger

	mutex     sync.Mutex
	cooldowns map[string]time.Time // 告警类型 -> 上次短信成功时间
	inflight  map[string]bool      // 正在发送中的批次所含类型
	batch     []models.Alert
	timer     *time.Timer
	stopped   bool

	forwards sync.WaitGroup
	now      func() time.Time
}

// NewAlertRouter 创建告警路由，bridge 可为 nil
func NewAlertRouter(st store.Store, hub Broadcaster, sms SMSSender, bridge TicketBridge, cfg config.AlertsConfig, logger *logrus.Logger) *AlertRouter {
	if logger == nil {
		logger = logrus.New()
	}
	if hub == nil {
		hub = noopBroadcaster{}
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 200
	}
	return &AlertRouter{
		store:     st,
		hub:       hub,
		sms:       sms,
		bridge:    bridge,
		breaker:   NewCircuitBreaker(DefaultBreakerConfig()),
		config:    cfg,
		logger:    logger,
		cooldowns: make(map[string]time.Time),
		inflight:  make(map[string]bool),
		now:       time.Now,
	}
}

// Send 创建并分发告警。只有持久化失败会返回错误。
func (r *AlertRouter) Send(ctx context.Context, alertType string, severity models.Severity, message string, data map[string]interface{}) (*models.Alert, error) {
	now := r.now()
	alert := models.Alert{
		ID:        utils.GenerateAlertID(now),
		Type:      alertType,
		Severity:  severity,
		Message:   message,
		Data:      data,
		Timestamp: now,
	}

	limit := r.config.HistoryLimit
	err := store.UpdateList(ctx, r.store, store.CollectionAlerts, func(alerts []models.Alert) ([]models.Alert, error) {
		alerts = append([]models.Alert{alert}, alerts...)
		if len(alerts) > limit {
			alerts = alerts[:limit]
		}
		return alerts, nil
	})
	if err != nil {
		return nil, fmt.Errorf("persist alert: %w", err)
	}

	metrics.AlertsSent.WithLabelValues(string(severity)).Inc()
	r.hub.Broadcast("alert", alert)

	if severity.Urgent() {
		delivery := r.deliveryConfig(ctx)
		if delivery.Desktop.Enabled {
			r.hub.Broadcast("alert:desktop", alert)
		}
		r.enqueueSMS(alert, delivery)
		r.forward(alert)
	}
	return &alert, nil
}

// GetAlerts 最新在前，limit<=0 返回全部
func (r *AlertRouter) GetAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	alerts, err := store.ReadList[models.Alert](ctx, r.store, store.CollectionAlerts)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(alerts) > limit {
		alerts = alerts[:limit]
	}
	return alerts, nil
}

// Acknowledge 标记已读；未找到返回 nil, nil
func (r *AlertRouter) Acknowledge(ctx context.Context, id string) (*models.Alert, error) {
	var found *models.Alert
	err := store.UpdateList(ctx, r.store, store.CollectionAlerts, func(alerts []models.Alert) ([]models.Alert, error) {
		for i := range alerts {
			if alerts[i].ID != id {
				continue
			}
			if alerts[i].Acknowledged {
				a := alerts[i]
				found = &a
				return nil, errUnchanged
			}
			alerts[i].Acknowledged = true
			a := alerts[i]
			found = &a
			return alerts, nil
		}
		return nil, errUnchanged
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		return nil, err
	}
	if found != nil {
		r.hub.Broadcast("alert:ack", map[string]interface{}{"id": found.ID})
	}
	return found, nil
}

// AcknowledgeAll 全部标记已读，返回本次变更条数
func (r *AlertRouter) AcknowledgeAll(ctx context.Context) (int, error) {
	changed := 0
	err := store.UpdateList(ctx, r.store, store.CollectionAlerts, func(alerts []models.Alert) ([]models.Alert, error) {
		for i := range alerts {
			if !alerts[i].Acknowledged {
				alerts[i].Acknowledged = true
				changed++
			}
		}
		if changed == 0 {
			return nil, errUnchanged
		}
		return alerts, nil
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		return 0, err
	}
	if changed > 0 {
		r.hub.Broadcast("alert:ack", map[string]interface{}{"all": true, "count": changed})
	}
	return changed, nil
}

// Config 持久化的投递配置，缺失字段使用默认值
func (r *AlertRouter) Config(ctx context.Context) (models.AlertConfig, error) {
	cfg := r.config.DeliveryDefaults()
	if _, err := store.ReadDoc(ctx, r.store, store.CollectionAlertConfig, &cfg); err != nil {
		return r.config.DeliveryDefaults(), err
	}
	return cfg, nil
}

// UpdateConfig 保存投递配置
func (r *AlertRouter) UpdateConfig(ctx context.Context, cfg models.AlertConfig) (models.AlertConfig, error) {
	if cfg.SMS.BatchWindowMs < 0 || cfg.SMS.CooldownMs < 0 {
		return cfg, fmt.Errorf("%w: durations must not be negative", ErrInvalidAlertConfig)
	}
	if err := store.WriteDoc(ctx, r.store, store.CollectionAlertConfig, cfg); err != nil {
		return cfg, err
	}
	r.logger.Infof("alert config updated: sms=%v batch=%dms cooldown=%dms desktop=%v",
		cfg.SMS.Enabled, cfg.SMS.BatchWindowMs, cfg.SMS.CooldownMs, cfg.Desktop.Enabled)
	return cfg, nil
}

func (r *AlertRouter) deliveryConfig(ctx context.Context) models.AlertConfig {
	cfg, err := r.Config(ctx)
	if err != nil {
		r.logger.Warnf("read alert config failed, using defaults: %v", err)
	}
	return cfg
}

func (r *AlertRouter) enqueueSMS(alert models.Alert, cfg models.AlertConfig) {
	if !cfg.SMS.Enabled || r.sms == nil || !r.sms.Configured() {
		return
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.stopped {
		return
	}
	if last, ok := r.cooldowns[alert.Type]; ok && r.now().Sub(last) < cfg.Cooldown() {
		metrics.SMSSuppressed.Inc()
		r.logger.Debugf("SMS for %s suppressed by cooldown", alert.Type)
		return
	}
	if r.inflight[alert.Type] {
		metrics.SMSSuppressed.Inc()
		r.logger.Debugf("SMS for %s suppressed, batch in flight", alert.Type)
		return
	}

	r.batch = append(r.batch, alert)
	if len(r.batch) == 1 && r.timer == nil {
		r.timer = time.AfterFunc(cfg.BatchWindow(), func() {
			if err := r.Flush(context.Background()); err != nil {
				r.logger.Warnf("SMS batch flush failed: %v", err)
			}
		})
	}
}

// Flush 立即发送当前批次。发送期间批次内的类型不再入队；
// 成功后推进这些类型的冷却时间，失败不推进。
func (r *AlertRouter) Flush(ctx context.Context) error {
	r.mutex.Lock()
	batch := r.batch
	r.batch = nil
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	for _, a := range batch {
		r.inflight[a.Type] = true
	}
	r.mutex.Unlock()

	if len(batch) == 0 {
		return nil
	}

	timeout := r.config.SMS.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := r.sms.Send(sendCtx, FormatSMSBody(batch))

	r.mutex.Lock()
	sentAt := r.now()
	for _, a := range batch {
		delete(r.inflight, a.Type)
		if err == nil {
			r.cooldowns[a.Type] = sentAt
		}
	}
	r.mutex.Unlock()

	if err != nil {
		metrics.SMSDeliveries.WithLabelValues("failed").Inc()
		return fmt.Errorf("send sms (%d alerts): %w", len(batch), err)
	}
	metrics.SMSDeliveries.WithLabelValues("sent").Inc()
	r.logger.Infof("SMS sent with %d alert(s)", len(batch))
	return nil
}

// FormatSMSBody 单条与多条告警的短信正文
func FormatSMSBody(batch []models.Alert) string {
	line := func(a models.Alert) string {
		return fmt.Sprintf("[%s] %s", strings.ToUpper(string(a.Severity)), a.Message)
	}
	if len(batch) == 1 {
		return "SweepNspect Alert: " + line(batch[0])
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SweepNspect Alerts (%d):", len(batch))
	for _, a := range batch {
		b.WriteString("\n")
		b.WriteString(line(a))
	}
	return b.String()
}

func (r *AlertRouter) forward(alert models.Alert) {
	if r.bridge == nil {
		return
	}
	if !r.breaker.Allow() {
		metrics.BridgeForwards.WithLabelValues("skipped").Inc()
		r.logger.Debugf("ticket bridge open, skipping alert %s", alert.ID)
		return
	}

	timeout := r.config.BridgeTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r.forwards.Add(1)
	go func() {
		defer r.forwards.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Message)
		if err := r.bridge.SendTicket(ctx, subject, bridgeBody(alert)); err != nil {
			r.breaker.OnFailure()
			metrics.BridgeForwards.WithLabelValues("failed").Inc()
			r.logger.Warnf("forward alert %s to ticket bridge failed: %v", alert.ID, err)
			return
		}
		r.breaker.OnSuccess()
		metrics.BridgeForwards.WithLabelValues("sent").Inc()
	}()
}

func bridgeBody(alert models.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Alert: %s\n", alert.ID)
	fmt.Fprintf(&b, "Type: %s\n", alert.Type)
	fmt.Fprintf(&b, "Severity: %s\n", alert.Severity)
	fmt.Fprintf(&b, "Time: %s\n\n", alert.Timestamp.UTC().Format(time.RFC3339))
	b.WriteString(alert.Message)
	if len(alert.Data) > 0 {
		if raw, err := json.MarshalIndent(alert.Data, "", "  "); err == nil {
			b.WriteString("\n\n")
			b.Write(raw)
		}
	}
	return b.String()
}

// BridgeState 工单桥熔断器当前状态
func (r *AlertRouter) BridgeState() BreakerState {
	return r.breaker.State()
}

// BridgeStats 工单桥熔断状态
func (r *AlertRouter) BridgeStats() map[string]interface{} {
	stats := r.breaker.Stats()
	stats["configured"] = r.bridge != nil
	return stats
}

// Stop 发送剩余批次并等待转发结束
func (r *AlertRouter) Stop(ctx context.Context) error {
	r.mutex.Lock()
	r.stopped = true
	r.mutex.Unlock()

	err := r.Flush(ctx)

	done := make(chan struct{})
	go func() {
		r.forwards.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}
