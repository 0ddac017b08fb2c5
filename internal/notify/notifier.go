package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Level 通知级别（对应前端 toast 的分类）。
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notifier 操作完成后的用户可见通知。
// core 只负责分类和文案，展示方式由外层决定；调用是 fire-and-forget，
// 失败不影响业务结果。
type Notifier interface {
	Success(ctx context.Context, title, message string)
	Error(ctx context.Context, title, message string)
	Info(ctx context.Context, title, message string)
}

// LogNotifier 用 logrus 输出通知（服务端默认实现）。
type LogNotifier struct {
	log *logrus.Logger
}

func NewLogNotifier(log *logrus.Logger) *LogNotifier {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Success(ctx context.Context, title, message string) {
	n.emit(LevelSuccess, title, message)
}

func (n *LogNotifier) Error(ctx context.Context, title, message string) {
	n.emit(LevelError, title, message)
}

func (n *LogNotifier) Info(ctx context.Context, title, message string) {
	n.emit(LevelInfo, title, message)
}

func (n *LogNotifier) emit(level Level, title, message string) {
	entry := n.log.WithFields(logrus.Fields{
		"notify": string(level),
		"title":  title,
	})
	switch level {
	case LevelError:
		entry.Warn(message)
	default:
		entry.Info(message)
	}
}

// Nop 丢弃所有通知（测试用）。
type Nop struct{}

func (Nop) Success(ctx context.Context, title, message string) {}
func (Nop) Error(ctx context.Context, title, message string)   {}
func (Nop) Info(ctx context.Context, title, message string)    {}
