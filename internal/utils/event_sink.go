package utils

import (
	"github.com/rs/zerolog"

	"github.com/ecomseek/ecomseek/internal/models"
)

// LogEventSink 将爬取事件写入结构化日志的接收器
// 没有外部展示层时的默认实现
type LogEventSink struct{}

// NewLogEventSink 创建日志事件接收器
func NewLogEventSink() *LogEventSink {
	return &LogEventSink{}
}

// Emit 实现models.EventSink接口
// 终态事件和停滞事件以更高级别输出,方便运维观察
func (s *LogEventSink) Emit(event models.EventType, payload map[string]any) {
	var e *zerolog.Event
	switch event {
	case models.EventCrawlFailed, models.EventStallDetected:
		e = Logger.Warn()
	case models.EventCrawlComplete, models.EventCrawlStopped, models.EventCrawlStart:
		e = Logger.Info()
	default:
		e = Logger.Debug()
	}

	e = e.Str("event", string(event))
	for key, value := range payload {
		e = e.Interface(key, value)
	}
	e.Msg("爬取事件")
}
