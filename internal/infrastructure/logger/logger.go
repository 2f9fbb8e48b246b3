package logger

import (
	"os"
	"strings"

	"ticketrecon/internal/config"

	"github.com/sirupsen/logrus"
)

var Log = logrus.New()

// InitLogger 按配置设置全局日志，format 为 json 或 text
func InitLogger(cfg *config.LogConfig) *logrus.Logger {
	Log.SetOutput(os.Stdout)

	if strings.EqualFold(cfg.Format, "text") {
		Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		Log.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	Log.SetLevel(level)
	return Log
}

// Component 带 component 字段的日志入口
func Component(name string) *logrus.Entry {
	return Log.WithField("component", name)
}

// LogError 统一的错误日志格式
func LogError(component, funcName string, data any, err error) {
	fields := logrus.Fields{
		"component": component,
		"func":      funcName,
	}
	if data != nil {
		fields["data"] = data
	}
	Log.WithFields(fields).Error(err.Error())
}
