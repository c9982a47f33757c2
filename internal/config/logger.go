package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// InitLogger 按配置初始化全局 logrus 并返回它
func InitLogger(cfg *Config) (*logrus.Logger, error) {
	logger := logrus.StandardLogger()
	if err := ConfigureLogger(logger, cfg.Log); err != nil {
		return logger, err
	}
	logger.Infof("Logger initialized - Level: %s, Format: %s, Output: %s",
		cfg.Log.Level, cfg.Log.Format, cfg.Log.Output)
	return logger, nil
}

// ConfigureLogger 设置级别、格式与输出
func ConfigureLogger(logger *logrus.Logger, lc LogConfig) error {
	level, err := logrus.ParseLevel(lc.Level)
	if err != nil {
		logger.Warnf("Invalid log level '%s', using 'info'", lc.Level)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	switch strings.ToLower(lc.Format) {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	default:
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	switch strings.ToLower(lc.Output) {
	case "file":
		w, err := rotatingWriter(lc)
		if err != nil {
			return err
		}
		logger.SetOutput(w)
	case "both":
		w, err := rotatingWriter(lc)
		if err != nil {
			return err
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, w))
	default:
		logger.SetOutput(os.Stdout)
	}
	return nil
}

// 日志轮转
func rotatingWriter(lc LogConfig) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(lc.FilePath), 0755); err != nil {
		return nil, err
	}
	return &lumberjack.Logger{
		Filename:   lc.FilePath,
		MaxSize:    lc.MaxSize,
		MaxBackups: lc.MaxBackups,
		MaxAge:     lc.MaxAge,
		Compress:   lc.Compress,
		LocalTime:  true,
	}, nil
}
