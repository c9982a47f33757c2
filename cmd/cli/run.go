package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sweepnspect/internal/config"
	"sweepnspect/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sweepnspect server",
	Long:  `Run the sweepnspect HTTP server, dashboard websocket and alert delivery`,
	Run:   run,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func run(cmd *cobra.Command, args []string) {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志系统
	logger, err := config.InitLogger(cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize logger: %v", err)
	}

	// 追踪
	shutdownTracing, err := observability.SetupTracing(context.Background(), cfg.Monitoring.Tracing)
	if err != nil {
		logger.Warnf("Tracing disabled: %v", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	st, err := openStore(cfg)
	if err != nil {
		logger.Fatalf("Failed to open store: %v", err)
	}
	logger.Infof("Record store ready (driver=%s)", cfg.Store.Driver)

	a := newApp(cfg, st, logger)

	hubCtx, stopHub := context.WithCancel(context.Background())
	go a.hub.Run(hubCtx)

	if !a.sms.Configured() {
		logger.Warn("Twilio credentials missing, SMS delivery disabled")
	}

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: a.router(),
	}

	// 启动服务器
	go func() {
		logger.Infof("Starting server on %s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed to start: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 优雅关闭
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	// 发出剩余短信批次，等待工单桥
	if err := a.stop(ctx); err != nil {
		logger.Errorf("Failed to drain alert delivery: %v", err)
	}

	stopHub()

	if err := shutdownTracing(ctx); err != nil {
		logger.Errorf("Failed to shutdown tracing: %v", err)
	}

	if err := st.Close(); err != nil {
		logger.Errorf("Failed to close store: %v", err)
	}

	logger.Info("Server exited")
}
