package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sweepnspect/internal/config"
	"sweepnspect/internal/metrics"
	"sweepnspect/internal/models"
	"sweepnspect/internal/store"
	"sweepnspect/pkg/utils"

	"github.com/sirupsen/logrus"
)

// RelayBridge 消息中继/任务/派发通道，仅自动化动作使用
type RelayBridge interface {
	SendMessage(ctx context.Context, from, to, body string) error
	CreateTask(ctx context.Context, title, assignee, priority string) (string, error)
}

// dispatchTag 派发队列识别的前缀
const dispatchTag = "DISPPATCH: "

const relayNotConfigured = "relay not configured"

// AutomationService 规则评估与动作执行。Evaluate 从不返回错误，动作失败写入执行记录。
type AutomationService struct {
	store    store.Store
	hub      Broadcaster
	relay    RelayBridge
	config   config.AutomationConfig
	relayCfg config.RelayConfig
	logger   *logrus.Logger
	now      func() time.Time
}

// NewAutomationService relay 为 nil 时动作报告 "relay not configured"
func NewAutomationService(st store.Store, hub Broadcaster, relay RelayBridge, cfg config.AutomationConfig, relayCfg config.RelayConfig, logger *logrus.Logger) *AutomationService {
	if logger == nil {
		logger = logrus.New()
	}
	if hub == nil {
		hub = noopBroadcaster{}
	}
	if cfg.LogLimit <= 0 {
		cfg.LogLimit = 200
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 10 * time.Second
	}
	return &AutomationService{
		store:    st,
		hub:      hub,
		relay:    relay,
		config:   cfg,
		relayCfg: relayCfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Evaluate 对事件执行所有启用且匹配的规则，返回本次写入的执行记录
func (s *AutomationService) Evaluate(ctx context.Context, eventType string, data interface{}) []models.AutomationLogEntry {
	rules, err := s.ListRules(ctx)
	if err != nil {
		s.logger.Warnf("automation: load rules failed: %v", err)
		return nil
	}

	var candidates []models.AutomationRule
	for _, rule := range rules {
		if rule.Enabled && rule.Event == eventType {
			candidates = append(candidates, rule)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	payload := normalizeValue(data)
	var entries []models.AutomationLogEntry
	for _, rule := range candidates {
		if !matchConditions(rule.Conditions, payload) {
			continue
		}
		s.logger.Infof("automation: rule %s matched event %s", rule.Name, eventType)
		metrics.RulesFired.WithLabelValues(eventType).Inc()

		entry := models.AutomationLogEntry{
			RuleID:    rule.ID,
			RuleName:  rule.Name,
			Event:     eventType,
			Timestamp: s.now(),
			Actions:   make([]models.ActionOutcome, 0, len(rule.Actions)),
		}
		for _, act := range rule.Actions {
			outcome := s.runAction(ctx, act, payload)
			metrics.ActionsExecuted.WithLabelValues(string(act.Type), string(outcome.Status)).Inc()
			entry.Actions = append(entry.Actions, outcome)
		}

		s.appendLog(ctx, entry)
		s.hub.Broadcast("automation:fired", map[string]interface{}{
			"rule":    rule.Name,
			"event":   eventType,
			"actions": len(entry.Actions),
		})
		entries = append(entries, entry)
	}
	return entries
}

// 条件之间为 AND，空条件恒真
func matchConditions(conds []models.RuleCondition, payload interface{}) bool {
	for _, cond := range conds {
		if !evaluateCondition(cond, payload) {
			return false
		}
	}
	return true
}

func evaluateCondition(cond models.RuleCondition, payload interface{}) bool {
	actual, present := Lookup(payload, cond.Field)
	expected := normalizeValue(cond.Value)

	switch cond.Op {
	case models.OpEq:
		return strictEqual(actual, expected, present)
	case models.OpNeq:
		return !strictEqual(actual, expected, present)
	case models.OpIn:
		list, ok := expected.([]interface{})
		if !ok {
			return false
		}
		for _, item := range list {
			if strictEqual(actual, item, present) {
				return true
			}
		}
		return false
	case models.OpContains:
		str, ok := actual.(string)
		if !ok || expected == nil {
			return false
		}
		return strings.Contains(strings.ToLower(str), strings.ToLower(stringify(expected)))
	case models.OpExists:
		return present && actual != nil
	case models.OpGt, models.OpLt:
		a, okA := toNumber(actual, present)
		b, okB := toNumber(expected, true)
		if !okA || !okB {
			return false
		}
		if cond.Op == models.OpGt {
			return a > b
		}
		return a < b
	default:
		return false
	}
}

// runAction 单个动作的失败或 panic 只记录在自身结果里
func (s *AutomationService) runAction(ctx context.Context, act models.RuleAction, payload interface{}) (outcome models.ActionOutcome) {
	outcome = models.ActionOutcome{Type: act.Type, Status: models.ActionStatusOK}
	defer func() {
		if rec := recover(); rec != nil {
			outcome.Status = models.ActionStatusError
			outcome.Result = nil
			outcome.Error = fmt.Sprintf("panic: %v", rec)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.config.ActionTimeout)
	defer cancel()

	result, err := s.executeAction(ctx, act, payload)
	if err != nil {
		s.logger.Warnf("automation: action %s failed: %v", act.Type, err)
		outcome.Status = models.ActionStatusError
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Result = result
	return outcome
}

func (s *AutomationService) executeAction(ctx context.Context, act models.RuleAction, payload interface{}) (map[string]interface{}, error) {
	switch act.Type {
	case models.ActionRelayNotify:
		body := RenderTemplate(act.Template, payload)
		to := firstNonEmpty(act.To, s.relayCfg.DefaultRecipient)
		if s.relay == nil {
			return map[string]interface{}{"sent": false, "to": to, "body": body, "reason": relayNotConfigured}, nil
		}
		if err := s.relay.SendMessage(ctx, s.relayCfg.From, to, body); err != nil {
			return nil, err
		}
		return map[string]interface{}{"sent": true, "to": to, "body": body}, nil

	case models.ActionClaudeDispatch:
		prompt := RenderTemplate(act.Template, payload)
		short := utils.Truncate(prompt, 100)
		if s.relay == nil {
			return map[string]interface{}{"dispatched": false, "prompt": short, "reason": relayNotConfigured}, nil
		}
		to := firstNonEmpty(act.To, s.relayCfg.DispatchRecipient)
		if err := s.relay.SendMessage(ctx, s.relayCfg.From, to, dispatchTag+prompt); err != nil {
			return nil, err
		}
		return map[string]interface{}{"dispatched": true, "prompt": short}, nil

	case models.ActionCreateTask:
		title := RenderTemplate(firstNonEmpty(act.Title, act.Template), payload)
		assignee := firstNonEmpty(act.Assignee, s.relayCfg.DefaultAssignee)
		priority := firstNonEmpty(act.Priority, "normal")
		if s.relay == nil {
			return map[string]interface{}{"created": false, "title": title, "assignee": assignee, "reason": relayNotConfigured}, nil
		}
		taskID, err := s.relay.CreateTask(ctx, title, assignee, priority)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"created": true, "title": title, "assignee": assignee, "taskId": taskID}, nil

	case models.ActionADBCommand:
		return map[string]interface{}{"skipped": true, "reason": "adb_command is not implemented"}, nil

	default:
		return map[string]interface{}{"skipped": true, "reason": "Unknown action type: " + string(act.Type)}, nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (s *AutomationService) appendLog(ctx context.Context, entry models.AutomationLogEntry) {
	limit := s.config.LogLimit
	err := store.UpdateList(ctx, s.store, store.CollectionAutomationLog, func(log []models.AutomationLogEntry) ([]models.AutomationLogEntry, error) {
		log = append(log, entry)
		if len(log) > limit {
			log = log[len(log)-limit:]
		}
		return log, nil
	})
	if err != nil {
		s.logger.Warnf("automation: record log failed: %v", err)
	}
}

// GetLog 最新在前
func (s *AutomationService) GetLog(ctx context.Context, limit int) ([]models.AutomationLogEntry, error) {
	log, err := store.ReadList[models.AutomationLogEntry](ctx, s.store, store.CollectionAutomationLog)
	if err != nil {
		return nil, err
	}
	out := make([]models.AutomationLogEntry, 0, len(log))
	for i := len(log) - 1; i >= 0; i-- {
		out = append(out, log[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ListRules 返回所有规则
func (s *AutomationService) ListRules(ctx context.Context) ([]models.AutomationRule, error) {
	return store.ReadList[models.AutomationRule](ctx, s.store, store.CollectionAutomationRules)
}

// GetRule 按 ID 查询
func (s *AutomationService) GetRule(ctx context.Context, id string) (*models.AutomationRule, error) {
	rules, err := s.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	for i := range rules {
		if rules[i].ID == id {
			return &rules[i], nil
		}
	}
	return nil, ErrRuleNotFound
}

// CreateRule 新建规则
func (s *AutomationService) CreateRule(ctx context.Context, rule models.AutomationRule) (*models.AutomationRule, error) {
	if err := validateRule(rule); err != nil {
		return nil, err
	}
	now := s.now()
	rule.ID = utils.GenerateID("rule")
	rule.CreatedAt = now
	rule.UpdatedAt = now

	err := store.UpdateList(ctx, s.store, store.CollectionAutomationRules, func(rules []models.AutomationRule) ([]models.AutomationRule, error) {
		return append(rules, rule), nil
	})
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// UpdateRule 整体替换，保留 ID 与创建时间
func (s *AutomationService) UpdateRule(ctx context.Context, id string, rule models.AutomationRule) (*models.AutomationRule, error) {
	if err := validateRule(rule); err != nil {
		return nil, err
	}
	var updated models.AutomationRule
	err := store.UpdateList(ctx, s.store, store.CollectionAutomationRules, func(rules []models.AutomationRule) ([]models.AutomationRule, error) {
		for i := range rules {
			if rules[i].ID != id {
				continue
			}
			rule.ID = id
			rule.CreatedAt = rules[i].CreatedAt
			rule.UpdatedAt = s.now()
			rules[i] = rule
			updated = rule
			return rules, nil
		}
		return nil, ErrRuleNotFound
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteRule 删除规则
func (s *AutomationService) DeleteRule(ctx context.Context, id string) error {
	return store.UpdateList(ctx, s.store, store.CollectionAutomationRules, func(rules []models.AutomationRule) ([]models.AutomationRule, error) {
		for i := range rules {
			if rules[i].ID == id {
				return append(rules[:i], rules[i+1:]...), nil
			}
		}
		return nil, ErrRuleNotFound
	})
}

// ImportRules 批量导入，已存在的 ID 覆盖，其余新建。任一规则非法则整体不写入。
func (s *AutomationService) ImportRules(ctx context.Context, incoming []models.AutomationRule) (int, error) {
	for i, rule := range incoming {
		if err := validateRule(rule); err != nil {
			return 0, fmt.Errorf("rule %d: %w", i, err)
		}
	}
	now := s.now()
	err := store.UpdateList(ctx, s.store, store.CollectionAutomationRules, func(rules []models.AutomationRule) ([]models.AutomationRule, error) {
		index := make(map[string]int, len(rules))
		for i, r := range rules {
			index[r.ID] = i
		}
		for _, rule := range incoming {
			rule.UpdatedAt = now
			if pos, ok := index[rule.ID]; ok && rule.ID != "" {
				rule.CreatedAt = rules[pos].CreatedAt
				rules[pos] = rule
				continue
			}
			if rule.ID == "" {
				rule.ID = utils.GenerateID("rule")
			}
			rule.CreatedAt = now
			index[rule.ID] = len(rules)
			rules = append(rules, rule)
		}
		return rules, nil
	})
	if err != nil {
		return 0, err
	}
	return len(incoming), nil
}

func validateRule(rule models.AutomationRule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return fmt.Errorf("%w: name required", ErrInvalidRule)
	}
	if strings.TrimSpace(rule.Event) == "" {
		return fmt.Errorf("%w: event required", ErrInvalidRule)
	}
	for i, cond := range rule.Conditions {
		if cond.Field == "" || cond.Op == "" {
			return fmt.Errorf("%w: condition %d needs field and op", ErrInvalidRule, i)
		}
	}
	for i, act := range rule.Actions {
		if act.Type == "" {
			return fmt.Errorf("%w: action %d needs type", ErrInvalidRule, i)
		}
	}
	return nil
}
