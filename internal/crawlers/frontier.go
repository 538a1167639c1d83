package crawlers

import (
	"github.com/ecomseek/ecomseek/internal/models"
	"github.com/ecomseek/ecomseek/internal/utils"
)

// Frontier 优先级队列
// 职责: 管理单个会话的待爬URL,三级优先级,级内严格FIFO,
// 通过辅助索引实现O(1)去重(同时对照已访问集合)
//
// Frontier由单个会话独占,不做并发保护
type Frontier struct {
	// 按优先级分层的子队列,下标即models.Priority
	tiers [3][]models.CrawlTask

	// 队列成员辅助索引(规范化URL)
	queued map[string]bool

	// 已访问集合(规范化URL),会话生命周期内只增不减
	visited map[string]bool

	// 队列总容量上限
	capacity int
}

// NewFrontier 创建Frontier
// capacity <= 0 时使用默认容量1000
func NewFrontier(capacity int) *Frontier {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Frontier{
		queued:   make(map[string]bool),
		visited:  make(map[string]bool),
		capacity: capacity,
	}
}

// Push 添加任务
// 任务URL必须已规范化。已访问或已在队列中时为no-op。
// 超出容量时从最低优先级非空子队列的尾部裁剪,绝不裁剪Product任务;
// 当队列只剩Product任务时,新的非Product任务被拒绝。
// 返回任务是否实际入队。
func (f *Frontier) Push(task models.CrawlTask) bool {
	if task.URL == "" {
		return false
	}
	if f.visited[task.URL] || f.queued[task.URL] {
		return false
	}

	if len(f.queued) >= f.capacity {
		if !f.trimLowest(task.Priority) {
			// 无可裁剪项(队列全是Product):只允许Product继续入队
			if task.Priority != models.PriorityProduct {
				utils.Debugf("Frontier已满且无可裁剪项,丢弃任务: %s", task.URL)
				return false
			}
		}
	}

	f.tiers[task.Priority] = append(f.tiers[task.Priority], task)
	f.queued[task.URL] = true
	return true
}

// trimLowest 从最低优先级非空子队列的尾部裁剪一个任务
// Product子队列不参与裁剪。返回是否裁剪成功。
func (f *Frontier) trimLowest(incoming models.Priority) bool {
	for p := models.PriorityGeneric; p < models.PriorityProduct; p++ {
		tier := f.tiers[p]
		// 先丢弃尾部的失效条目(入队后被标记已访问),它们不占容量
		for len(tier) > 0 && !f.queued[tier[len(tier)-1].URL] {
			tier = tier[:len(tier)-1]
		}
		f.tiers[p] = tier
		if len(tier) == 0 {
			continue
		}
		// 不为更低优先级的新任务裁剪更高优先级的旧任务
		if p > incoming {
			return false
		}
		dropped := tier[len(tier)-1]
		f.tiers[p] = tier[:len(tier)-1]
		delete(f.queued, dropped.URL)
		utils.Debugf("Frontier容量已满,裁剪尾部任务: %s (优先级: %s)", dropped.URL, dropped.Priority)
		return true
	}
	return false
}

// Pop 取出下一个任务
// 从最高优先级非空子队列的头部取出(Product > Category > Generic),
// 级内按入队顺序(即发现顺序)。队列为空时返回 ok=false。
func (f *Frontier) Pop() (models.CrawlTask, bool) {
	for p := models.PriorityProduct; p >= models.PriorityGeneric; p-- {
		tier := f.tiers[p]
		for len(tier) > 0 {
			task := tier[0]
			tier = tier[1:]
			f.tiers[p] = tier
			// 跳过失效条目(入队后被标记已访问)
			if !f.queued[task.URL] {
				continue
			}
			delete(f.queued, task.URL)
			return task, true
		}
	}
	return models.CrawlTask{}, false
}

// MarkVisited 标记规范化URL为已访问
// 同时将其移出队列成员索引,保证已访问集合与队列始终不相交;
// 子队列中的残留条目由Pop/trimLowest惰性清理
func (f *Frontier) MarkVisited(normalizedURL string) {
	f.visited[normalizedURL] = true
	delete(f.queued, normalizedURL)
}

// IsVisited 检查规范化URL是否已访问
func (f *Frontier) IsVisited(normalizedURL string) bool {
	return f.visited[normalizedURL]
}

// Contains 检查规范化URL是否在队列中
func (f *Frontier) Contains(normalizedURL string) bool {
	return f.queued[normalizedURL]
}

// Len 当前队列中的任务总数
func (f *Frontier) Len() int {
	return len(f.queued)
}

// VisitedCount 已访问URL数量
func (f *Frontier) VisitedCount() int {
	return len(f.visited)
}
