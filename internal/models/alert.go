package models

import "time"

// Alert 告警记录，最新在前，最多保留 history_limit 条
type Alert struct {
	ID           string                 `json:"id"`
	Type         string                 `json:"type"`
	Severity     Severity               `json:"severity"`
	Message      string                 `json:"message"`
	Data         map[string]interface{} `json:"data,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
	Acknowledged bool                   `json:"acknowledged"`
}

// SMSSettings 短信批量与冷却配置（毫秒与配置文件保持一致）
type SMSSettings struct {
	Enabled       bool  `json:"enabled"`
	BatchWindowMs int64 `json:"batchWindowMs"`
	CooldownMs    int64 `json:"cooldownMs"`
}

// DesktopSettings 浏览器桌面通知
type DesktopSettings struct {
	Enabled bool `json:"enabled"`
}

// AlertConfig 持久化的告警投递配置
type AlertConfig struct {
	SMS     SMSSettings     `json:"sms"`
	Desktop DesktopSettings `json:"desktop"`
}

// BatchWindow 返回批量窗口
func (c AlertConfig) BatchWindow() time.Duration {
	return time.Duration(c.SMS.BatchWindowMs) * time.Millisecond
}

// Cooldown 返回同类型短信冷却时间
func (c AlertConfig) Cooldown() time.Duration {
	return time.Duration(c.SMS.CooldownMs) * time.Millisecond
}
