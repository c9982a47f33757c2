package cli

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"sweepnspect/internal/config"
	"sweepnspect/internal/handlers"
	"sweepnspect/internal/observability"
	"sweepnspect/internal/services"
	"sweepnspect/internal/store"
	"sweepnspect/pkg/mailbridge"
	"sweepnspect/pkg/relay"
	"sweepnspect/pkg/twilio"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// app 进程内的全部服务
type app struct {
	cfg         *config.Config
	store       store.Store
	hub         *services.DashboardHub
	sms         *twilio.Client
	relay       services.RelayBridge
	alerts      *services.AlertRouter
	automation  *services.AutomationService
	tickets     *services.TicketService
	subscribers *services.SubscriberService
	emails      *services.EmailRouter
	channels    *services.ChannelRouter
	logger      *logrus.Logger
}

// openStore 按 store.driver 打开记录存储
func openStore(cfg *config.Config) (store.Store, error) {
	switch strings.ToLower(cfg.Store.Driver) {
	case "", "json":
		return store.NewJSONStore(cfg.Store.DataDir)
	case "postgres":
		s, err := store.OpenSQL("postgres", cfg.Store.Database.DSN(), cfg.Monitoring.Tracing.Enabled)
		if err != nil {
			return nil, err
		}
		if err := s.Configure(cfg.Store.Database.MaxOpenConns, cfg.Store.Database.MaxIdleConns, cfg.Store.Database.ConnMaxLifetime); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case "sqlite":
		return store.OpenSQL("sqlite", cfg.Store.Database.Name, cfg.Monitoring.Tracing.Enabled)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// relayBridge 未启用时返回 nil 接口
func relayBridge(cfg *config.Config, httpClient *http.Client, logger *logrus.Logger) services.RelayBridge {
	if !cfg.Relay.Enabled {
		return nil
	}
	rc := relay.DefaultConfig()
	rc.BaseURL = cfg.Relay.BaseURL
	rc.APIKey = cfg.Relay.APIKey
	if cfg.Relay.Timeout > 0 {
		rc.Timeout = cfg.Relay.Timeout
		httpClient.Timeout = cfg.Relay.Timeout
	}
	rc.MaxRetries = cfg.Relay.MaxRetries
	return relay.NewClient(rc, httpClient, logger)
}

// ticketBridge 未启用或配置不全时返回 nil 接口
func ticketBridge(cfg *config.Config, logger *logrus.Logger) services.TicketBridge {
	if !cfg.TicketBridge.Enabled {
		return nil
	}
	b := mailbridge.New(mailbridge.Config{
		SMTPHost: cfg.TicketBridge.SMTPHost,
		SMTPPort: cfg.TicketBridge.SMTPPort,
		Username: cfg.TicketBridge.Username,
		Password: cfg.TicketBridge.Password,
		From:     cfg.TicketBridge.From,
		To:       cfg.TicketBridge.To,
		Timeout:  cfg.TicketBridge.Timeout,
	}, logger)
	if !b.Configured() {
		logger.Warn("ticket bridge enabled but smtp_host/from/to missing, forwarding disabled")
		return nil
	}
	return b
}

// newApp 组装服务；store 由调用方打开并负责关闭
func newApp(cfg *config.Config, st store.Store, logger *logrus.Logger) *app {
	if logger == nil {
		logger = logrus.New()
	}
	hub := services.NewDashboardHub(logger)

	sms := twilio.NewClient(twilio.Config{
		AccountSID: cfg.Twilio.AccountSID,
		AuthToken:  cfg.Twilio.AuthToken,
		From:       cfg.Twilio.From,
		To:         cfg.Twilio.To,
		BaseURL:    cfg.Twilio.BaseURL,
		Timeout:    cfg.Twilio.Timeout,
	}, observability.HTTPClient(&http.Client{Timeout: cfg.Twilio.Timeout}), logger)

	relay := relayBridge(cfg, observability.HTTPClient(nil), logger)
	alerts := services.NewAlertRouter(st, hub, sms, ticketBridge(cfg, logger), cfg.Alerts, logger)
	automation := services.NewAutomationService(st, hub, relay, cfg.Automation, cfg.Relay, logger)

	tickets := services.NewTicketService(st, hub, logger)
	tickets.SetAutomation(automation)
	subscribers := services.NewSubscriberService(st, hub, logger)

	emails := services.NewEmailRouter(services.NewClassifier(logger), alerts, tickets, subscribers, hub, logger)
	emails.SetAutomation(automation)

	return &app{
		cfg:         cfg,
		store:       st,
		hub:         hub,
		sms:         sms,
		relay:       relay,
		alerts:      alerts,
		automation:  automation,
		tickets:     tickets,
		subscribers: subscribers,
		emails:      emails,
		channels:    services.NewChannelRouter(hub, automation, logger),
		logger:      logger,
	}
}

// router 构建 gin 引擎
func (a *app) router() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(corsMiddlewareWithConfig(a.cfg))
	if a.cfg.Monitoring.Tracing.Enabled {
		router.Use(otelgin.Middleware(a.cfg.Monitoring.Tracing.ServiceName))
	}

	metricsPath := a.cfg.Monitoring.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	router.GET(metricsPath, gin.WrapH(promhttp.Handler()))

	healthHandler := handlers.NewHealthHandler(a.store, a.sms, a.alerts, a.hub, Version, a.logger)
	if p, ok := a.relay.(handlers.RelayPinger); ok {
		healthHandler.SetRelay(p)
	}
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	api := router.Group("/api")
	{
		handlers.RegisterWebSocketRoutes(api, handlers.NewWebSocketHandler(a.hub))
		handlers.RegisterAlertRoutes(api, handlers.NewAlertHandler(a.alerts, a.logger))
		handlers.RegisterAutomationRoutes(api, handlers.NewAutomationHandler(a.automation, a.logger))
		handlers.RegisterInboxRoutes(api, handlers.NewInboxHandler(a.emails, a.logger))
		handlers.RegisterTicketRoutes(api, handlers.NewTicketHandler(a.tickets, a.subscribers, a.logger))
		handlers.RegisterWebhookRoutes(api, handlers.NewWebhookHandler(a.channels, a.logger))
	}

	return router
}

// stop 刷出待发短信并等待工单桥转发完成
func (a *app) stop(ctx context.Context) error {
	return a.alerts.Stop(ctx)
}

func corsMiddlewareWithConfig(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origins := "*"
		if cfg != nil && cfg.Security.CORS.Enabled && len(cfg.Security.CORS.AllowedOrigins) > 0 {
			origins = strings.Join(cfg.Security.CORS.AllowedOrigins, ", ")
		}
		c.Header("Access-Control-Allow-Origin", origins)
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
