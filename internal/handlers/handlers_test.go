package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"sweepnspect/internal/config"
	"sweepnspect/internal/models"
	"sweepnspect/internal/services"
	"sweepnspect/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	engine     *gin.Engine
	alerts     *services.AlertRouter
	automation *services.AutomationService
	tickets    *services.TicketService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	st, err := store.NewJSONStore(t.TempDir())
	require.NoError(t, err)

	cfg := config.GetDefaultConfig()
	hub := services.NewDashboardHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	alerts := services.NewAlertRouter(st, hub, nil, nil, cfg.Alerts, logger)
	automation := services.NewAutomationService(st, hub, nil, cfg.Automation, cfg.Relay, logger)
	tickets := services.NewTicketService(st, hub, logger)
	tickets.SetAutomation(automation)
	subs := services.NewSubscriberService(st, hub, logger)
	emails := services.NewEmailRouter(services.NewClassifier(logger), alerts, tickets, subs, hub, logger)
	emails.SetAutomation(automation)
	channels := services.NewChannelRouter(hub, automation, logger)

	r := gin.New()
	health := NewHealthHandler(st, nil, alerts, hub, "test", logger)
	r.GET("/health", health.Health)
	api := r.Group("/api")
	RegisterAlertRoutes(api, NewAlertHandler(alerts, logger))
	RegisterAutomationRoutes(api, NewAutomationHandler(automation, logger))
	RegisterInboxRoutes(api, NewInboxHandler(emails, logger))
	RegisterWebhookRoutes(api, NewWebhookHandler(channels, logger))
	RegisterTicketRoutes(api, NewTicketHandler(tickets, subs, logger))
	RegisterWebSocketRoutes(api, NewWebSocketHandler(hub))

	return &testServer{engine: r, alerts: alerts, automation: automation, tickets: tickets}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	decode(t, w, &resp)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "healthy", resp.Services["store"].Status)
	assert.Equal(t, "not_configured", resp.Services["ticket_bridge"].Status)
}

type fakePinger struct{ err error }

func (p fakePinger) HealthCheck(ctx context.Context) error { return p.err }

func TestHealth_RelayCheck(t *testing.T) {
	for _, tt := range []struct {
		name       string
		err        error
		wantStatus string
		wantRelay  string
	}{
		{"reachable", nil, "healthy", "healthy"},
		{"down", errors.New("connection refused"), "degraded", "unhealthy"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(nil, nil, nil, nil, "test", nil)
			h.SetRelay(fakePinger{err: tt.err})
			r := gin.New()
			r.GET("/health", h.Health)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, http.StatusOK, w.Code)

			var resp HealthResponse
			decode(t, w, &resp)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.wantRelay, resp.Services["relay"].Status)
		})
	}
}

func TestAlertRoutes(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/alerts", SendAlertRequest{Type: "manual", Severity: "bogus", Message: "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/alerts", SendAlertRequest{Type: "manual", Severity: models.SeverityNormal, Message: "hello"})
	require.Equal(t, http.StatusCreated, w.Code)
	var alert models.Alert
	decode(t, w, &alert)

	w = s.do(t, http.MethodGet, "/api/alerts?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var alerts []models.Alert
	decode(t, w, &alerts)
	require.Len(t, alerts, 1)

	w = s.do(t, http.MethodPost, "/api/alerts/"+alert.ID+"/ack", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var acked models.Alert
	decode(t, w, &acked)
	assert.True(t, acked.Acknowledged)

	w = s.do(t, http.MethodPost, "/api/alerts/alert-nope/ack", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/alerts/ack-all", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAlertConfigRoutes(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/alerts/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cfg models.AlertConfig
	decode(t, w, &cfg)
	assert.Equal(t, int64(30000), cfg.SMS.BatchWindowMs)

	cfg.SMS.CooldownMs = 60000
	w = s.do(t, http.MethodPut, "/api/alerts/config", cfg)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/alerts/config", nil)
	decode(t, w, &cfg)
	assert.Equal(t, int64(60000), cfg.SMS.CooldownMs)

	cfg.SMS.BatchWindowMs = -5
	w = s.do(t, http.MethodPut, "/api/alerts/config", cfg)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRuleRoutes(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/rules", gin.H{"event": "ticket:created"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/rules", gin.H{
		"name":       "critical",
		"event":      "ticket:created",
		"conditions": []gin.H{{"field": "priority", "op": "eq", "value": "critical"}},
		"actions":    []gin.H{{"type": "relay_notify", "template": "Critical: {{subject}}"}},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var rule models.AutomationRule
	decode(t, w, &rule)
	assert.True(t, rule.Enabled, "enabled defaults to true")

	w = s.do(t, http.MethodGet, "/api/rules/"+rule.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/automation/evaluate", gin.H{
		"event": "ticket:created",
		"data":  gin.H{"priority": "critical", "subject": "Server down"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var entries []models.AutomationLogEntry
	decode(t, w, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "Critical: Server down", entries[0].Actions[0].Result["body"])

	w = s.do(t, http.MethodGet, "/api/automation/log", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &entries)
	assert.Len(t, entries, 1)

	w = s.do(t, http.MethodPut, "/api/rules/"+rule.ID, gin.H{"name": "renamed", "event": "ticket:created", "enabled": false})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &rule)
	assert.False(t, rule.Enabled)

	w = s.do(t, http.MethodDelete, "/api/rules/"+rule.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodDelete, "/api/rules/"+rule.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInboxAndTicketRoutes(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/inbox/classify", gin.H{"subject": "billing support", "from": gin.H{"address": "a@x.com"}})
	require.Equal(t, http.StatusOK, w.Code)
	var res models.ClassificationResult
	decode(t, w, &res)
	assert.Equal(t, "billing", res.Category)

	w = s.do(t, http.MethodPost, "/api/inbox/emails", gin.H{"uid": "9"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/inbox/emails", gin.H{
		"uid": "9", "subject": "[BUG] Crash on launch", "from": gin.H{"address": "user@x.com"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/inbox/emails", nil)
	var recent []services.InboxEntry
	decode(t, w, &recent)
	require.Len(t, recent, 1)

	w = s.do(t, http.MethodGet, "/api/tickets?priority=high", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tickets []models.Ticket
	decode(t, w, &tickets)
	require.Len(t, tickets, 1)
	assert.Equal(t, "Crash on launch", tickets[0].Subject)

	w = s.do(t, http.MethodPut, "/api/tickets/"+tickets[0].ID+"/status", gin.H{"status": "resolved"})
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodPut, "/api/tickets/"+tickets[0].ID+"/status", gin.H{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodGet, "/api/tickets/TKT-9999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/tickets/"+tickets[0].ID+"/messages", gin.H{"text": "On it"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/subscribers", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookRoutes(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/webhooks/facebook", gin.H{"from": "psid-1", "text": "hi"})
	require.Equal(t, http.StatusAccepted, w.Code)
	var msg models.ChannelMessage
	decode(t, w, &msg)
	assert.Equal(t, "facebook", msg.Channel)

	w = s.do(t, http.MethodPost, "/api/webhooks/pager", gin.H{"text": "hi"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/webhooks/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats map[string]int
	decode(t, w, &stats)
	assert.Equal(t, 1, stats["facebook"])
}

func TestWebSocketStatsEndpoint(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/ws/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	decode(t, w, &body)
	assert.Equal(t, true, body["success"])
}
