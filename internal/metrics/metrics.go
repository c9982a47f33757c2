package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 邮件分类计数
	EmailsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweepnspect_emails_classified_total",
			Help: "Inbound emails classified, by category",
		},
		[]string{"category"},
	)

	// 自动创建的工单/订阅
	RecordsAutoCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweepnspect_records_auto_created_total",
			Help: "Tickets and subscribers created from inbound email",
		},
		[]string{"kind"}, // ticket, subscriber
	)

	// 告警计数
	AlertsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweepnspect_alerts_total",
			Help: "Alerts routed, by severity",
		},
		[]string{"severity"},
	)

	// 短信投递
	SMSDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweepnspect_sms_deliveries_total",
			Help: "SMS batch flushes, by outcome",
		},
		[]string{"status"}, // sent, failed
	)

	// 冷却期内被抑制的短信
	SMSSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sweepnspect_sms_suppressed_total",
			Help: "Alerts not queued for SMS because their type is cooling down",
		},
	)

	// 外部工单桥
	BridgeForwards = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweepnspect_bridge_forwards_total",
			Help: "High severity alerts forwarded to the ticket bridge, by outcome",
		},
		[]string{"status"}, // sent, failed, skipped
	)

	// 规则命中
	RulesFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweepnspect_automation_rules_fired_total",
			Help: "Automation rules matched, by event",
		},
		[]string{"event"},
	)

	// 动作执行
	ActionsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweepnspect_automation_actions_total",
			Help: "Automation actions executed, by type and status",
		},
		[]string{"type", "status"},
	)

	// 在线看板连接
	DashboardClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sweepnspect_dashboard_clients",
			Help: "Connected dashboard websocket clients",
		},
	)
)
