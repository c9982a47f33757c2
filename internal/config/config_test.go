package config

import (
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Server.Port == 0 {
		t.Error("expected Server.Port to be non-zero")
	}
	if cfg.Store.Driver != "json" {
		t.Errorf("expected json store by default, got %q", cfg.Store.Driver)
	}
	// 验证告警默认值
	assert.Equal(t, 200, cfg.Alerts.HistoryLimit)
	assert.Equal(t, 30*time.Second, cfg.Alerts.SMS.BatchWindow)
	assert.Equal(t, 5*time.Minute, cfg.Alerts.SMS.Cooldown)
	assert.Equal(t, 200, cfg.Automation.LogLimit)
}

func TestAlertsConfig_DeliveryDefaults(t *testing.T) {
	d := GetDefaultConfig().Alerts.DeliveryDefaults()
	assert.True(t, d.SMS.Enabled)
	assert.Equal(t, int64(30000), d.SMS.BatchWindowMs)
	assert.Equal(t, int64(300000), d.SMS.CooldownMs)
	assert.True(t, d.Desktop.Enabled)
}

func TestLoadFrom_OverridesDefaults(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	yml := `
server:
  port: 8088
store:
  driver: postgres
  data_dir: /var/lib/sweepnspect
alerts:
  sms:
    enabled: false
    cooldown: 10m
relay:
  default_recipient: ops
`
	require.NoError(t, v.ReadConfig(strings.NewReader(yml)))

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "/var/lib/sweepnspect", cfg.Store.DataDir)
	assert.False(t, cfg.Alerts.SMS.Enabled)
	assert.Equal(t, 10*time.Minute, cfg.Alerts.SMS.Cooldown)
	// 未覆盖的字段保持默认
	assert.Equal(t, 30*time.Second, cfg.Alerts.SMS.BatchWindow)
	assert.Equal(t, "ops", cfg.Relay.DefaultRecipient)
	assert.Equal(t, "claude", cfg.Relay.DispatchRecipient)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := GetDefaultConfig().Store.Database
	dsn := d.DSN()
	assert.Contains(t, dsn, "dbname=sweepnspect")
	assert.Contains(t, dsn, "port=5432")
}

func TestConfigureLogger_FileOutput(t *testing.T) {
	lc := GetDefaultConfig().Log
	lc.Output = "file"
	lc.Format = "text"
	lc.Level = "debug"
	lc.FilePath = t.TempDir() + "/logs/app.log"

	logger := logrus.New()
	require.NoError(t, ConfigureLogger(logger, lc))
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	_, isText := logger.Formatter.(*logrus.TextFormatter)
	assert.True(t, isText)
}

func TestConfigureLogger_InvalidLevel(t *testing.T) {
	lc := GetDefaultConfig().Log
	lc.Level = "loud"
	logger := logrus.New()
	require.NoError(t, ConfigureLogger(logger, lc))
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}
