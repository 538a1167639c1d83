package models

import (
	"encoding/json"
	"time"
)

// CrawlResult 持久化的爬取结果
// 一旦写入不可变更,同一域名的每次写入产生一条新的带时间戳记录
type CrawlResult struct {
	// ID 记录唯一ID (UUID)
	ID string `json:"id"`

	// Domain 目标域名
	Domain string `json:"domain"`

	// Products 发现的商品URL列表(按发现顺序)
	Products []string `json:"products"`

	// TotalLinks 整个会话中提取的链接总数
	TotalLinks int `json:"total_links"`

	// Stats 会话统计(终态转换时冻结)
	Stats CrawlStats `json:"stats"`

	// Timestamp 记录写入时间
	Timestamp time.Time `json:"timestamp"`
}

// ToJSON 序列化为JSON
func (r *CrawlResult) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON 从JSON反序列化
func (r *CrawlResult) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}

// LiveSnapshot 运行中会话的实时快照
// 用于进度轮询,不触发持久化
type LiveSnapshot struct {
	Domain    string        `json:"domain"`
	Status    SessionStatus `json:"status"`
	Products  []string      `json:"products"`
	QueueSize int           `json:"queue_size"`
	Stats     CrawlStats    `json:"stats"`
}
