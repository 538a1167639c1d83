package models

// EventType 事件类型
type EventType string

const (
	EventCrawlStart     EventType = "crawl_start"     // 会话开始
	EventProgressUpdate EventType = "progress_update" // 进度更新 {pages_visited, products_found, queue_size}
	EventProductFound   EventType = "product_found"   // 发现商品 {url, count}
	EventCrawlComplete  EventType = "crawl_complete"  // 自然完成
	EventCrawlStopped   EventType = "crawl_stopped"   // 被取消停止
	EventCrawlFailed    EventType = "crawl_failed"    // 驱动致命错误失败
	EventStallDetected  EventType = "stall_detected"  // 看门狗检测到心跳停滞
)

// EventSink 事件接收器
// 由展示层实现,会话和注册表通过它上报状态
// 实现必须是并发安全的: 多个会话会同时调用Emit
type EventSink interface {
	Emit(event EventType, payload map[string]any)
}

// NopSink 丢弃所有事件的接收器
type NopSink struct{}

// Emit 实现EventSink接口
func (NopSink) Emit(EventType, map[string]any) {}
