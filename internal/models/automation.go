package models

import "time"

// ActionType 自动化动作类型（封闭集合）
type ActionType string

const (
	ActionRelayNotify    ActionType = "relay_notify"
	ActionClaudeDispatch ActionType = "claude_dispatch"
	ActionCreateTask     ActionType = "create_task"
	ActionADBCommand     ActionType = "adb_command"
)

// ConditionOp 条件比较运算符
type ConditionOp string

const (
	OpEq       ConditionOp = "eq"
	OpNeq      ConditionOp = "neq"
	OpIn       ConditionOp = "in"
	OpContains ConditionOp = "contains"
	OpExists   ConditionOp = "exists"
	OpGt       ConditionOp = "gt"
	OpLt       ConditionOp = "lt"
)

// RuleCondition 单个条件，field 为点路径
type RuleCondition struct {
	Field string      `json:"field" yaml:"field"`
	Op    ConditionOp `json:"op" yaml:"op"`
	Value interface{} `json:"value,omitempty" yaml:"value,omitempty"`
}

// RuleAction 规则命中后执行的动作，模板字段支持 {{field.path}}
type RuleAction struct {
	Type     ActionType `json:"type" yaml:"type"`
	Template string     `json:"template,omitempty" yaml:"template,omitempty"`
	Title    string     `json:"title,omitempty" yaml:"title,omitempty"`
	To       string     `json:"to,omitempty" yaml:"to,omitempty"`
	Assignee string     `json:"assignee,omitempty" yaml:"assignee,omitempty"`
	Priority string     `json:"priority,omitempty" yaml:"priority,omitempty"`
	Command  string     `json:"command,omitempty" yaml:"command,omitempty"`
}

// AutomationRule 自动化规则定义
type AutomationRule struct {
	ID         string          `json:"id" yaml:"id,omitempty"`
	Name       string          `json:"name" yaml:"name"`
	Event      string          `json:"event" yaml:"event"` // ticket:created, email:received, tawk:message ...
	Enabled    bool            `json:"enabled" yaml:"enabled"`
	Conditions []RuleCondition `json:"conditions" yaml:"conditions"`
	Actions    []RuleAction    `json:"actions" yaml:"actions"`
	CreatedAt  time.Time       `json:"createdAt,omitempty" yaml:"-"`
	UpdatedAt  time.Time       `json:"updatedAt,omitempty" yaml:"-"`
}

// ActionStatus 动作执行结果
type ActionStatus string

const (
	ActionStatusOK    ActionStatus = "ok"
	ActionStatusError ActionStatus = "error"
)

// ActionOutcome 单个动作的执行记录
type ActionOutcome struct {
	Type   ActionType             `json:"type"`
	Status ActionStatus           `json:"status"`
	Result map[string]interface{} `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// AutomationLogEntry 执行记录用于审计，追加写，最多保留 log_limit 条
type AutomationLogEntry struct {
	RuleID    string          `json:"ruleId"`
	RuleName  string          `json:"ruleName"`
	Event     string          `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	Actions   []ActionOutcome `json:"actions"`
}
