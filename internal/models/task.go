package models

import (
	"fmt"
	"time"
)

// SessionStatus 会话状态
type SessionStatus string

const (
	SessionCreated   SessionStatus = "created"   // 已创建,尚未运行
	SessionRunning   SessionStatus = "running"   // 运行中
	SessionCompleted SessionStatus = "completed" // 正常完成
	SessionStopped   SessionStatus = "stopped"   // 被取消停止
	SessionFailed    SessionStatus = "failed"    // 驱动致命错误导致失败
)

// Terminal 判断状态是否为终态
// 状态机单向推进: created -> running -> {completed, stopped, failed}
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionStopped || s == SessionFailed
}

// Priority 任务优先级
// 数值越大优先级越高: Product > Category > Generic
type Priority int

const (
	PriorityGeneric  Priority = 0 // 普通页面
	PriorityCategory Priority = 1 // 分类/列表页
	PriorityProduct  Priority = 2 // 商品页
)

// String 优先级的可读名称
func (p Priority) String() string {
	switch p {
	case PriorityProduct:
		return "product"
	case PriorityCategory:
		return "category"
	default:
		return "generic"
	}
}

// URLClass URL分类结果
type URLClass int

const (
	ClassGeneric  URLClass = iota // 普通页面
	ClassProduct                  // 商品页
	ClassCategory                 // 分类/列表页
	ClassExcluded                 // 排除(静态资源、登录、购物车等)
)

// String 分类结果的可读名称
func (c URLClass) String() string {
	switch c {
	case ClassProduct:
		return "product"
	case ClassCategory:
		return "category"
	case ClassExcluded:
		return "excluded"
	default:
		return "generic"
	}
}

// Priority 分类结果对应的队列优先级
// Excluded不会入队,返回Generic仅为兜底
func (c URLClass) Priority() Priority {
	switch c {
	case ClassProduct:
		return PriorityProduct
	case ClassCategory:
		return PriorityCategory
	default:
		return PriorityGeneric
	}
}

// CrawlTask 爬取任务
// 链接被发现并分类后创建,出队时恰好被消费一次
type CrawlTask struct {
	// URL 规范化后的完整URL
	URL string `json:"url"`

	// Priority 队列优先级
	Priority Priority `json:"priority"`

	// Depth 距离入口URL的深度层级
	//   - 0: 入口URL
	//   - 1: 从入口页面发现的链接
	//   - 以此类推...
	Depth int `json:"depth"`
}

// CrawlStats 会话统计
// 由会话工作循环单调递增,终态转换时冻结
type CrawlStats struct {
	PagesVisited    int       `json:"pages_visited"`    // 已访问页面数
	ProductsFound   int       `json:"products_found"`   // 已发现商品URL数
	StartTime       time.Time `json:"start_time"`       // 开始时间
	EndTime         time.Time `json:"end_time"`         // 结束时间
	DurationSeconds float64   `json:"duration_seconds"` // 总耗时(秒)
	CrawlCompleted  bool      `json:"crawl_completed"`  // 是否自然完成(非取消/失败)
}

// StatusHint 从冻结的统计数据推断会话终态
// 持久化结果不保存状态字段,读取侧用它还原展示用的状态标签
func (s *CrawlStats) StatusHint() SessionStatus {
	if s.CrawlCompleted {
		return SessionCompleted
	}
	return SessionStopped
}

// SessionOptions 会话配置
type SessionOptions struct {
	MaxPages             int           `json:"max_pages"`                // 最大访问页面数 (0=不限,需开启indefinite)
	IndefiniteCrawling   bool          `json:"indefinite_crawling"`      // 无限爬取模式
	MaxNoNewProductPages int           `json:"max_no_new_product_pages"` // 连续无新商品页面数上限 (默认:20)
	NavigationTimeout    time.Duration `json:"navigation_timeout"`       // 页面导航超时 (默认:30s)
	ShortTimeout         time.Duration `json:"short_timeout"`            // 取消后的缩短超时 (默认:5s)
	CrawlBudget          time.Duration `json:"crawl_budget"`             // 墙钟时间预算 (0=不限)
	MaxQueueSize         int           `json:"max_queue_size"`           // Frontier容量上限 (默认:1000)
	ProgressEvery        int           `json:"progress_every"`           // 每N页发送一次进度事件 (默认:5)
}

// DefaultSessionOptions 默认会话配置
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		MaxPages:             100,
		IndefiniteCrawling:   false,
		MaxNoNewProductPages: 20,
		NavigationTimeout:    30 * time.Second,
		ShortTimeout:         5 * time.Second,
		CrawlBudget:          0,
		MaxQueueSize:         1000,
		ProgressEvery:        5,
	}
}

// Validate 验证会话配置
func (o *SessionOptions) Validate() error {
	if o.MaxPages < 0 {
		return fmt.Errorf("最大页面数不能为负数: %d", o.MaxPages)
	}
	if o.MaxPages == 0 && !o.IndefiniteCrawling {
		return fmt.Errorf("最大页面数为0时必须开启无限爬取模式")
	}
	if o.MaxNoNewProductPages < 1 {
		return fmt.Errorf("连续无新商品页面数上限必须大于0: %d", o.MaxNoNewProductPages)
	}
	if o.NavigationTimeout <= 0 {
		return fmt.Errorf("导航超时必须大于0: %v", o.NavigationTimeout)
	}
	if o.ShortTimeout <= 0 || o.ShortTimeout > o.NavigationTimeout {
		return fmt.Errorf("缩短超时必须大于0且不超过导航超时: %v", o.ShortTimeout)
	}
	if o.MaxQueueSize < 1 {
		return fmt.Errorf("Frontier容量必须大于0: %d", o.MaxQueueSize)
	}
	return nil
}
