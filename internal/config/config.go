package config

import (
	"fmt"
	"strings"
	"time"

	"sweepnspect/internal/models"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server" yaml:"server"`
	Store        StoreConfig        `mapstructure:"store" yaml:"store"`
	Log          LogConfig          `mapstructure:"log" yaml:"log"`
	Alerts       AlertsConfig       `mapstructure:"alerts" yaml:"alerts"`
	Automation   AutomationConfig   `mapstructure:"automation" yaml:"automation"`
	Twilio       TwilioConfig       `mapstructure:"twilio" yaml:"twilio"`
	Relay        RelayConfig        `mapstructure:"relay" yaml:"relay"`
	TicketBridge TicketBridgeConfig `mapstructure:"ticket_bridge" yaml:"ticket_bridge"`
	Monitoring   MonitoringConfig   `mapstructure:"monitoring" yaml:"monitoring"`
	Security     SecurityConfig     `mapstructure:"security" yaml:"security"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// StoreConfig 记录存储配置
type StoreConfig struct {
	Driver   string         `mapstructure:"driver" yaml:"driver"` // json, postgres
	DataDir  string         `mapstructure:"data_dir" yaml:"data_dir"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	User            string        `mapstructure:"user" yaml:"user"`
	Password        string        `mapstructure:"password" yaml:"password"`
	Name            string        `mapstructure:"name" yaml:"name"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// DSN 构建 Postgres 连接串
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port,
	)
}

type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"` // json, text
	Output     string `mapstructure:"output" yaml:"output"` // stdout, file, both
	FilePath   string `mapstructure:"file_path" yaml:"file_path"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`       // MB
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`         // days
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"` // number of backup files
	Compress   bool   `mapstructure:"compress" yaml:"compress"`       // compress backup files
}

// AlertsConfig 告警路由配置，持久化的 alert-config 会覆盖 sms/desktop 部分
type AlertsConfig struct {
	HistoryLimit  int           `mapstructure:"history_limit" yaml:"history_limit"`
	SMS           SMSConfig     `mapstructure:"sms" yaml:"sms"`
	Desktop       DesktopConfig `mapstructure:"desktop" yaml:"desktop"`
	BridgeTimeout time.Duration `mapstructure:"bridge_timeout" yaml:"bridge_timeout"`
}

type SMSConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	BatchWindow time.Duration `mapstructure:"batch_window" yaml:"batch_window"`
	Cooldown    time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type DesktopConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// AutomationConfig 自动化规则引擎配置
type AutomationConfig struct {
	LogLimit      int           `mapstructure:"log_limit" yaml:"log_limit"`
	ActionTimeout time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
}

// TwilioConfig 短信通道
type TwilioConfig struct {
	AccountSID string        `mapstructure:"account_sid" yaml:"account_sid"`
	AuthToken  string        `mapstructure:"auth_token" yaml:"auth_token"`
	From       string        `mapstructure:"from" yaml:"from"`
	To         string        `mapstructure:"to" yaml:"to"`
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// RelayConfig 消息中继/任务/派发桥
type RelayConfig struct {
	Enabled           bool          `mapstructure:"enabled" yaml:"enabled"`
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey            string        `mapstructure:"api_key" yaml:"api_key"`
	From              string        `mapstructure:"from" yaml:"from"`
	DefaultRecipient  string        `mapstructure:"default_recipient" yaml:"default_recipient"`
	DispatchRecipient string        `mapstructure:"dispatch_recipient" yaml:"dispatch_recipient"`
	DefaultAssignee   string        `mapstructure:"default_assignee" yaml:"default_assignee"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// TicketBridgeConfig 外部工单系统（邮件建单）
type TicketBridgeConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	SMTPHost string        `mapstructure:"smtp_host" yaml:"smtp_host"`
	SMTPPort int           `mapstructure:"smtp_port" yaml:"smtp_port"`
	Username string        `mapstructure:"username" yaml:"username"`
	Password string        `mapstructure:"password" yaml:"password"`
	From     string        `mapstructure:"from" yaml:"from"`
	To       string        `mapstructure:"to" yaml:"to"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type MonitoringConfig struct {
	MetricsPath string        `mapstructure:"metrics_path" yaml:"metrics_path"`
	Tracing     TracingConfig `mapstructure:"tracing" yaml:"tracing"`
}

// TracingConfig OpenTelemetry 追踪配置
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`         // OTLP gRPC 端点，例如 http://otel-collector:4317
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure"`         // 是否使用明文（本地/开发）
	SampleRatio float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"` // 采样率 0.0~1.0
	ServiceName string  `mapstructure:"service_name" yaml:"service_name"` // 缺省使用 "sweepnspect"
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors" yaml:"cors"`
}

type CORSConfig struct {
	Enabled        bool     `mapstructure:"enabled" yaml:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// SetupViper 默认配置文件与环境变量前缀
func SetupViper(v *viper.Viper, cfgFile string) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix("SWEEPNSPECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load 在默认配置之上合并 viper 中的配置
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom 从指定 viper 实例加载
func LoadFrom(v *viper.Viper) (*Config, error) {
	cfg := GetDefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// GetDefaultConfig 返回默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 3000,
		},
		Store: StoreConfig{
			Driver:  "json",
			DataDir: "./data",
			Database: DatabaseConfig{
				Host:            "localhost",
				Port:            5432,
				User:            "postgres",
				Password:        "password",
				Name:            "sweepnspect",
				MaxOpenConns:    10,
				MaxIdleConns:    2,
				ConnMaxLifetime: 3600 * time.Second,
			},
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			FilePath:   "./logs/sweepnspect.log",
			MaxSize:    50,
			MaxAge:     14,
			MaxBackups: 3,
			Compress:   true,
		},
		Alerts: AlertsConfig{
			HistoryLimit: 200,
			SMS: SMSConfig{
				Enabled:     true,
				BatchWindow: 30 * time.Second,
				Cooldown:    5 * time.Minute,
				Timeout:     15 * time.Second,
			},
			Desktop: DesktopConfig{
				Enabled: true,
			},
			BridgeTimeout: 30 * time.Second,
		},
		Automation: AutomationConfig{
			LogLimit:      200,
			ActionTimeout: 10 * time.Second,
		},
		Twilio: TwilioConfig{
			BaseURL: "https://api.twilio.com",
			Timeout: 15 * time.Second,
		},
		Relay: RelayConfig{
			Enabled:           false,
			BaseURL:           "http://localhost:3100",
			From:              "sweepnspect",
			DefaultRecipient:  "owner",
			DispatchRecipient: "claude",
			DefaultAssignee:   "owner",
			Timeout:           10 * time.Second,
			MaxRetries:        1,
		},
		TicketBridge: TicketBridgeConfig{
			Enabled:  false,
			SMTPPort: 587,
			Timeout:  60 * time.Second,
		},
		Monitoring: MonitoringConfig{
			MetricsPath: "/metrics",
			Tracing: TracingConfig{
				Enabled:     false,
				Endpoint:    "http://localhost:4317",
				Insecure:    true,
				SampleRatio: 0.1,
				ServiceName: "sweepnspect",
			},
		},
		Security: SecurityConfig{
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
			},
		},
	}
}

// DeliveryDefaults 转换为告警投递默认值（持久化配置缺失时使用）
func (a AlertsConfig) DeliveryDefaults() models.AlertConfig {
	return models.AlertConfig{
		SMS: models.SMSSettings{
			Enabled:       a.SMS.Enabled,
			BatchWindowMs: a.SMS.BatchWindow.Milliseconds(),
			CooldownMs:    a.SMS.Cooldown.Milliseconds(),
		},
		Desktop: models.DesktopSettings{Enabled: a.Desktop.Enabled},
	}
}
