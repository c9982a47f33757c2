package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"sweepnspect/internal/config"
	"sweepnspect/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func alertsConfig() config.AlertsConfig {
	cfg := config.GetDefaultConfig().Alerts
	cfg.SMS.BatchWindow = time.Hour // 测试中手动 Flush
	cfg.Desktop.Enabled = false
	return cfg
}

func newTestAlertRouter(t *testing.T, sms SMSSender, bridge TicketBridge) (*AlertRouter, *fakeHub, *testClock) {
	t.Helper()
	hub := &fakeHub{}
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	r := NewAlertRouter(newTestStore(t), hub, sms, bridge, alertsConfig(), quietLogger())
	r.now = clock.Now
	t.Cleanup(func() { _ = r.Stop(context.Background()) })
	return r, hub, clock
}

func TestAlertRouter_SendPersistsAndBroadcasts(t *testing.T) {
	r, hub, _ := newTestAlertRouter(t, nil, nil)
	ctx := context.Background()

	alert, err := r.Send(ctx, "email-contact", models.SeverityLow, "hello", map[string]interface{}{"uid": "1"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(alert.ID, "alert-"))
	assert.False(t, alert.Acknowledged)

	alerts, err := r.GetAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, alert.ID, alerts[0].ID)
	assert.Len(t, hub.ofType("alert"), 1)
}

func TestAlertRouter_HistoryCap(t *testing.T) {
	r, _, clock := newTestAlertRouter(t, nil, nil)
	ctx := context.Background()

	for i := 0; i < 201; i++ {
		_, err := r.Send(ctx, "test", models.SeverityLow, fmt.Sprintf("alert %d", i), nil)
		require.NoError(t, err)
		clock.Advance(time.Millisecond)
	}

	alerts, err := r.GetAlerts(ctx, 250)
	require.NoError(t, err)
	require.Len(t, alerts, 200)
	assert.Equal(t, "alert 200", alerts[0].Message)
	assert.Equal(t, "alert 1", alerts[199].Message)
}

func TestAlertRouter_PersistFailureNotBroadcast(t *testing.T) {
	hub := &fakeHub{}
	r := NewAlertRouter(brokenStore{}, hub, nil, nil, alertsConfig(), quietLogger())

	_, err := r.Send(context.Background(), "test", models.SeverityHigh, "boom", nil)
	assert.ErrorIs(t, err, errDiskFull)
	assert.Empty(t, hub.ofType("alert"))
}

func TestAlertRouter_SMSCooldownPerType(t *testing.T) {
	sms := &fakeSMS{configured: true}
	r, _, clock := newTestAlertRouter(t, sms, nil)
	ctx := context.Background()

	_, err := r.Send(ctx, "email-bug", models.SeverityHigh, "first", nil)
	require.NoError(t, err)
	require.NoError(t, r.Flush(ctx))
	require.Len(t, sms.messages(), 1)

	clock.Advance(time.Minute)
	_, err = r.Send(ctx, "email-bug", models.SeverityHigh, "second", nil)
	require.NoError(t, err)
	require.NoError(t, r.Flush(ctx))
	assert.Len(t, sms.messages(), 1, "same type within cooldown is suppressed")

	// 不同类型不受影响
	_, err = r.Send(ctx, "email-billing", models.SeverityHigh, "other", nil)
	require.NoError(t, err)
	require.NoError(t, r.Flush(ctx))
	assert.Len(t, sms.messages(), 2)

	clock.Advance(5 * time.Minute)
	_, err = r.Send(ctx, "email-bug", models.SeverityCritical, "third", nil)
	require.NoError(t, err)
	require.NoError(t, r.Flush(ctx))
	msgs := sms.messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "SweepNspect Alert: [CRITICAL] third", msgs[2])
}

func TestAlertRouter_BatchFlushSingleSMS(t *testing.T) {
	sms := &fakeSMS{configured: true}
	r, _, _ := newTestAlertRouter(t, sms, nil)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := r.Send(ctx, fmt.Sprintf("type-%d", i), models.SeverityHigh, fmt.Sprintf("msg %d", i), nil)
		require.NoError(t, err)
	}
	require.NoError(t, r.Flush(ctx))

	msgs := sms.messages()
	require.Len(t, msgs, 1)
	lines := strings.Split(msgs[0], "\n")
	assert.Equal(t, "SweepNspect Alerts (4):", lines[0])
	assert.Len(t, lines[1:], 4)
	assert.Equal(t, "[HIGH] msg 0", lines[1])
}

func TestAlertRouter_BatchTimerFlushes(t *testing.T) {
	sms := &fakeSMS{configured: true}
	cfg := alertsConfig()
	cfg.SMS.BatchWindow = 20 * time.Millisecond
	r := NewAlertRouter(newTestStore(t), &fakeHub{}, sms, nil, cfg, quietLogger())
	defer r.Stop(context.Background())

	_, err := r.Send(context.Background(), "a", models.SeverityHigh, "one", nil)
	require.NoError(t, err)
	_, err = r.Send(context.Background(), "b", models.SeverityHigh, "two", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(sms.messages()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, sms.messages()[0], "SweepNspect Alerts (2):")
}

func TestAlertRouter_SMSFailureKeepsCooldown(t *testing.T) {
	sms := &fakeSMS{configured: true, fail: errors.New("timeout")}
	r, _, _ := newTestAlertRouter(t, sms, nil)
	ctx := context.Background()

	_, err := r.Send(ctx, "email-bug", models.SeverityHigh, "first", nil)
	require.NoError(t, err, "sms failure never fails Send")
	assert.Error(t, r.Flush(ctx))

	sms.mu.Lock()
	sms.fail = nil
	sms.mu.Unlock()

	_, err = r.Send(ctx, "email-bug", models.SeverityHigh, "retry", nil)
	require.NoError(t, err)
	require.NoError(t, r.Flush(ctx))
	assert.Equal(t, []string{"SweepNspect Alert: [HIGH] retry"}, sms.messages())
}

func TestAlertRouter_SameTypeSuppressedWhileSending(t *testing.T) {
	sms := newBlockingSMS()
	r, _, _ := newTestAlertRouter(t, sms, nil)
	ctx := context.Background()

	_, err := r.Send(ctx, "email-bug", models.SeverityHigh, "first", nil)
	require.NoError(t, err)

	flushed := make(chan error, 1)
	go func() { flushed <- r.Flush(ctx) }()
	<-sms.entered

	_, err = r.Send(ctx, "email-bug", models.SeverityHigh, "second", nil)
	require.NoError(t, err)
	_, err = r.Send(ctx, "email-billing", models.SeverityHigh, "other type", nil)
	require.NoError(t, err)

	close(sms.release)
	require.NoError(t, <-flushed)
	require.NoError(t, r.Flush(ctx))

	assert.Equal(t, []string{
		"SweepNspect Alert: [HIGH] first",
		"SweepNspect Alert: [HIGH] other type",
	}, sms.messages())
}

func TestAlertRouter_LowSeverityAndUnconfiguredSkipSMS(t *testing.T) {
	sms := &fakeSMS{configured: true}
	r, _, _ := newTestAlertRouter(t, sms, nil)
	ctx := context.Background()

	_, err := r.Send(ctx, "x", models.SeverityNormal, "normal", nil)
	require.NoError(t, err)
	require.NoError(t, r.Flush(ctx))
	assert.Empty(t, sms.messages())

	off := &fakeSMS{configured: false}
	r2, _, _ := newTestAlertRouter(t, off, nil)
	_, err = r2.Send(ctx, "x", models.SeverityCritical, "critical", nil)
	require.NoError(t, err)
	require.NoError(t, r2.Flush(ctx))
	assert.Empty(t, off.messages())
}

func TestAlertRouter_PersistedConfigDisablesSMS(t *testing.T) {
	sms := &fakeSMS{configured: true}
	r, hub, _ := newTestAlertRouter(t, sms, nil)
	ctx := context.Background()

	cfg, err := r.Config(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(300000), cfg.SMS.CooldownMs)

	cfg.SMS.Enabled = false
	cfg.Desktop.Enabled = true
	_, err = r.UpdateConfig(ctx, cfg)
	require.NoError(t, err)

	_, err = r.Send(ctx, "x", models.SeverityHigh, "quiet", nil)
	require.NoError(t, err)
	require.NoError(t, r.Flush(ctx))
	assert.Empty(t, sms.messages())
	assert.Len(t, hub.ofType("alert:desktop"), 1)

	_, err = r.UpdateConfig(ctx, models.AlertConfig{SMS: models.SMSSettings{CooldownMs: -1}})
	assert.ErrorIs(t, err, ErrInvalidAlertConfig)
}

func TestAlertRouter_ForwardsUrgentToBridge(t *testing.T) {
	bridge := &fakeBridge{}
	r, _, _ := newTestAlertRouter(t, nil, bridge)
	ctx := context.Background()

	_, err := r.Send(ctx, "x", models.SeverityLow, "low", nil)
	require.NoError(t, err)
	_, err = r.Send(ctx, "x", models.SeverityCritical, "down", nil)
	require.NoError(t, err)
	require.NoError(t, r.Stop(ctx))

	require.Equal(t, 1, bridge.count())
	assert.Equal(t, "[CRITICAL] down", bridge.subjects[0])
}

func TestAlertRouter_BridgeFailureIsBestEffort(t *testing.T) {
	bridge := &fakeBridge{fail: errors.New("smtp down")}
	r, _, _ := newTestAlertRouter(t, nil, bridge)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := r.Send(ctx, "x", models.SeverityHigh, "fail", nil)
		require.NoError(t, err)
		r.forwards.Wait()
	}
	// 连续失败 3 次后熔断
	assert.Equal(t, 3, bridge.count())
	assert.Equal(t, "open", r.BridgeStats()["state"])
	assert.Equal(t, BreakerOpen, r.BridgeState())
}

func TestAlertRouter_Acknowledge(t *testing.T) {
	r, _, _ := newTestAlertRouter(t, nil, nil)
	ctx := context.Background()

	a, err := r.Send(ctx, "x", models.SeverityLow, "one", nil)
	require.NoError(t, err)
	_, err = r.Send(ctx, "x", models.SeverityLow, "two", nil)
	require.NoError(t, err)

	acked, err := r.Acknowledge(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, acked)
	assert.True(t, acked.Acknowledged)

	again, err := r.Acknowledge(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, again.Acknowledged)

	missing, err := r.Acknowledge(ctx, "alert-missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	n, err := r.AcknowledgeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	alerts, err := r.GetAlerts(ctx, 0)
	require.NoError(t, err)
	for _, al := range alerts {
		assert.True(t, al.Acknowledged)
	}
}

func TestFormatSMSBody(t *testing.T) {
	one := []models.Alert{{Severity: models.SeverityHigh, Message: "a"}}
	assert.Equal(t, "SweepNspect Alert: [HIGH] a", FormatSMSBody(one))

	two := append(one, models.Alert{Severity: models.SeverityCritical, Message: "b"})
	assert.Equal(t, "SweepNspect Alerts (2):\n[HIGH] a\n[CRITICAL] b", FormatSMSBody(two))
}
