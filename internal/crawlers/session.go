package crawlers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ecomseek/ecomseek/internal/config"
	"github.com/ecomseek/ecomseek/internal/models"
	"github.com/ecomseek/ecomseek/internal/utils"
)

// CrawlSession 单域名爬取会话
// 状态机: created -> running -> {completed, stopped, failed},单向推进。
// 主循环是逻辑单线程的: 绝不对自己的驱动实例并发执行两个操作。
// 跨线程共享的只有cancelRequested标志和状态/统计快照(互斥锁保护)。
type CrawlSession struct {
	id      string
	domain  string
	profile *config.SiteProfile
	opts    models.SessionOptions

	// 主循环独占的遍历状态
	frontier   *Frontier
	totalLinks int

	// 商品与失败集合(快照读取需要锁保护)
	products   []string
	productSet map[string]bool
	failed     []string
	failedSet  map[string]bool

	// 状态与统计
	stats  models.CrawlStats
	status models.SessionStatus
	result *models.CrawlResult
	mu     sync.RWMutex

	// cancelRequested 唯一的跨线程写入标志
	// 会话worker、看门狗和外部停止请求都会读写
	cancelRequested atomic.Bool

	// killed 驱动已被强杀,finalize时跳过优雅关闭
	killed atomic.Bool

	// queueLen Frontier长度的原子镜像,供实时快照读取
	queueLen atomic.Int64

	driver  PageDriver
	factory DriverFactory
	sink    models.EventSink

	// 注册表回调
	heartbeatInterval time.Duration
	heartbeatFn       func(domain string)
	finishFn          func(session *CrawlSession, result *models.CrawlResult)

	// done 终态转换时关闭
	done chan struct{}
}

// newCrawlSession 创建会话(由注册表调用)
func newCrawlSession(
	domain string,
	profile *config.SiteProfile,
	opts models.SessionOptions,
	factory DriverFactory,
	sink models.EventSink,
	heartbeatInterval time.Duration,
	heartbeatFn func(domain string),
	finishFn func(session *CrawlSession, result *models.CrawlResult),
) *CrawlSession {
	if sink == nil {
		sink = models.NopSink{}
	}
	return &CrawlSession{
		id:                models.NewID(),
		domain:            domain,
		profile:           profile,
		opts:              opts,
		frontier:          NewFrontier(opts.MaxQueueSize),
		products:          make([]string, 0),
		productSet:        make(map[string]bool),
		failed:            make([]string, 0),
		failedSet:         make(map[string]bool),
		status:            models.SessionCreated,
		factory:           factory,
		sink:              sink,
		heartbeatInterval: heartbeatInterval,
		heartbeatFn:       heartbeatFn,
		finishFn:          finishFn,
		done:              make(chan struct{}),
	}
}

// ID 会话唯一ID
func (s *CrawlSession) ID() string { return s.id }

// Domain 会话目标域名
func (s *CrawlSession) Domain() string { return s.domain }

// Status 当前状态
func (s *CrawlSession) Status() models.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Done 终态转换时关闭的channel
func (s *CrawlSession) Done() <-chan struct{} { return s.done }

// Result 终态产生的结果,未到终态时为nil
func (s *CrawlSession) Result() *models.CrawlResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// RequestStop 请求协作式取消
// 不阻塞: 会话自己的循环观察到标志后异步转换到Stopped
func (s *CrawlSession) RequestStop() {
	s.cancelRequested.Store(true)
}

// Snapshot 运行中会话的实时快照,用于进度轮询
func (s *CrawlSession) Snapshot() *models.LiveSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]string, len(s.products))
	copy(products, s.products)

	return &models.LiveSnapshot{
		Domain:    s.domain,
		Status:    s.status,
		Products:  products,
		QueueSize: int(s.queueLen.Load()),
		Stats:     s.stats,
	}
}

// Run 执行会话生命周期(在独立goroutine中调用)
func (s *CrawlSession) Run() {
	if err := s.start(); err != nil {
		utils.Errorf("会话启动失败 [%s]: %v", s.domain, err)
		s.finalize(models.SessionFailed, err)
		return
	}
	s.loop()
}

// start 获取驱动、播种Frontier、转换到Running
func (s *CrawlSession) start() error {
	// 启动前就被取消: 直接走Stopped终态,仍然持久化(空)结果
	if s.cancelRequested.Load() {
		s.finalize(models.SessionStopped, nil)
		return nil
	}

	driver, err := s.factory(s.profile)
	if err != nil {
		return err
	}
	s.driver = driver

	seeded := 0
	for _, seed := range s.profile.StartURLs {
		norm := NormalizeWithProfile(seed, s.profile)
		class := Classify(norm, s.profile)
		if s.frontier.Push(models.CrawlTask{URL: norm, Priority: class.Priority(), Depth: 0}) {
			seeded++
		}
	}
	s.queueLen.Store(int64(s.frontier.Len()))

	s.mu.Lock()
	s.status = models.SessionRunning
	s.stats.StartTime = time.Now()
	s.mu.Unlock()

	utils.Infof("🚀 开始爬取会话 [%s]: %d 个入口URL, 渲染模式: %s", s.domain, seeded, s.profile.Render)
	s.sink.Emit(models.EventCrawlStart, map[string]any{
		"domain":     s.domain,
		"session_id": s.id,
		"start_urls": s.profile.StartURLs,
	})

	go s.heartbeatLoop()
	return nil
}

// heartbeatLoop 运行期间以固定节奏上报心跳
func (s *CrawlSession) heartbeatLoop() {
	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if s.heartbeatFn != nil && s.Status() == models.SessionRunning {
				s.heartbeatFn(s.domain)
			}
		}
	}
}

// loop 主循环
// 每轮按优先级检查终止条件: 取消 -> 队列空 -> 页数上限 ->
// 无新商品连击 -> 墙钟预算,然后取出下一个任务处理
func (s *CrawlSession) loop() {
	var budgetDeadline time.Time
	if s.opts.CrawlBudget > 0 {
		budgetDeadline = time.Now().Add(s.opts.CrawlBudget)
	}
	noNewProductStreak := 0

	for {
		if s.cancelRequested.Load() {
			s.finalize(models.SessionStopped, nil)
			return
		}
		if s.frontier.Len() == 0 {
			s.finalize(models.SessionCompleted, nil)
			return
		}
		if !s.opts.IndefiniteCrawling && s.opts.MaxPages > 0 && s.pagesVisited() >= s.opts.MaxPages {
			utils.Infof("已达最大页面数 [%s]: %d", s.domain, s.opts.MaxPages)
			s.finalize(models.SessionCompleted, nil)
			return
		}
		if s.opts.IndefiniteCrawling && noNewProductStreak >= s.opts.MaxNoNewProductPages {
			utils.Infof("连续 %d 页无新商品 [%s], 结束爬取", noNewProductStreak, s.domain)
			s.finalize(models.SessionCompleted, nil)
			return
		}
		if !budgetDeadline.IsZero() && time.Now().After(budgetDeadline) {
			utils.Infof("墙钟预算已耗尽 [%s]", s.domain)
			s.finalize(models.SessionCompleted, nil)
			return
		}

		task, ok := s.frontier.Pop()
		s.queueLen.Store(int64(s.frontier.Len()))
		if !ok {
			s.finalize(models.SessionCompleted, nil)
			return
		}

		norm := NormalizeWithProfile(task.URL, s.profile)
		if s.frontier.IsVisited(norm) {
			continue
		}
		s.frontier.MarkVisited(norm)

		s.mu.Lock()
		s.stats.PagesVisited++
		pages := s.stats.PagesVisited
		s.mu.Unlock()

		productsBefore := s.productCount()

		if err := s.visitPage(task, norm); err != nil {
			// 只有驱动致命错误会逃出visitPage
			utils.Errorf("驱动致命错误 [%s]: %v", s.domain, err)
			s.finalize(models.SessionFailed, err)
			return
		}

		if s.opts.IndefiniteCrawling {
			if s.productCount() == productsBefore {
				noNewProductStreak++
			} else {
				noNewProductStreak = 0
			}
		}

		if s.opts.ProgressEvery > 0 && pages%s.opts.ProgressEvery == 0 {
			s.sink.Emit(models.EventProgressUpdate, map[string]any{
				"domain":         s.domain,
				"pages_visited":  pages,
				"products_found": s.productCount(),
				"queue_size":     s.frontier.Len(),
			})
		}
	}
}

// visitPage 处理单个页面
// 所有页面级错误在这里消化: 导航失败记入failedSet后返回nil,
// 循环继续处理下一个任务。只有驱动致命错误返回非nil。
func (s *CrawlSession) visitPage(task models.CrawlTask, norm string) error {
	utils.Debugf("访问页面 [%s]: %s (深度: %d, 优先级: %s)", s.domain, task.URL, task.Depth, task.Priority)

	ctx, cancel := s.driverContext()
	defer cancel()

	resolved, err := s.driver.Navigate(ctx, task.URL)
	if err != nil {
		if errors.Is(err, ErrDriverFatal) {
			return err
		}
		s.recordFailed(norm)
		utils.Warnf("导航失败 [%s]: %v", s.domain, err)
		return nil
	}

	// 驱动调用之后立即检查取消
	if s.cancelRequested.Load() {
		return nil
	}

	// 重定向后的最终URL也标记为已访问并参与分类
	resolvedNorm := NormalizeWithProfile(resolved, s.profile)
	if resolvedNorm != "" && resolvedNorm != norm {
		s.frontier.MarkVisited(resolvedNorm)
	}
	if Classify(resolvedNorm, s.profile) == models.ClassProduct {
		s.addProduct(resolvedNorm)
	}

	if err := s.handleDynamicContent(ctx); err != nil {
		return err
	}
	if s.cancelRequested.Load() {
		return nil
	}

	links, err := s.driver.ExtractLinks(ctx)
	if err != nil {
		if errors.Is(err, ErrDriverFatal) {
			return err
		}
		s.recordFailed(norm)
		utils.Warnf("提取链接失败 [%s]: %v", s.domain, err)
		return nil
	}

	s.ingestLinks(links, task.Depth)
	return nil
}

// handleDynamicContent 尽力而为地触发懒加载和"加载更多"
// 任何非致命错误只记日志,不影响页面处理
func (s *CrawlSession) handleDynamicContent(ctx context.Context) error {
	if s.profile.LazyLoadImages {
		hasLazy, err := s.driver.Evaluate(ctx, PredicateHasLazyImages)
		if err != nil {
			if errors.Is(err, ErrDriverFatal) {
				return err
			}
			utils.Debugf("懒加载判定失败 [%s]: %v", s.domain, err)
		} else if hasLazy {
			if err := s.driver.ScrollToBottom(ctx, s.profile.MaxScrollAttempts); err != nil {
				if errors.Is(err, ErrDriverFatal) {
					return err
				}
				utils.Debugf("滚动页面失败 [%s]: %v", s.domain, err)
			}
		}
		if s.cancelRequested.Load() {
			return nil
		}
	}

	if len(s.profile.LoadMoreSelectors) > 0 {
		for i := 0; i < s.profile.MaxLoadMoreClicks; i++ {
			clicked, err := s.driver.ClickIfPresent(ctx, s.profile.LoadMoreSelectors)
			if err != nil {
				if errors.Is(err, ErrDriverFatal) {
					return err
				}
				utils.Debugf("点击加载更多失败 [%s]: %v", s.domain, err)
				break
			}
			if !clicked {
				break
			}
			if s.cancelRequested.Load() {
				return nil
			}
		}
	}

	return nil
}

// ingestLinks 处理提取到的链接
// 规范化 -> 同域过滤 -> 排除过滤 -> 分类;
// 商品链接直接进productSet(不入队),分类/普通链接以depth+1入队
func (s *CrawlSession) ingestLinks(links []string, depth int) {
	s.mu.Lock()
	s.totalLinks += len(links)
	s.mu.Unlock()

	queued := 0
	for _, link := range links {
		norm := NormalizeWithProfile(link, s.profile)
		if !IsSameDomain(norm, s.domain, s.profile) {
			continue
		}

		class := Classify(norm, s.profile)
		switch class {
		case models.ClassExcluded:
			continue
		case models.ClassProduct:
			s.addProduct(norm)
		default:
			if s.frontier.Push(models.CrawlTask{URL: norm, Priority: class.Priority(), Depth: depth + 1}) {
				queued++
			}
		}
	}
	s.queueLen.Store(int64(s.frontier.Len()))

	if queued > 0 {
		utils.Debugf("从页面提取了 %d 个链接, 入队 %d 个 [%s]", len(links), queued, s.domain)
	}
}

// addProduct 将规范化URL加入商品集合(幂等)
// 同时标记为已访问,商品页不再重复入队
func (s *CrawlSession) addProduct(norm string) {
	s.mu.Lock()
	if s.productSet[norm] {
		s.mu.Unlock()
		return
	}
	s.productSet[norm] = true
	s.products = append(s.products, norm)
	s.stats.ProductsFound++
	count := s.stats.ProductsFound
	s.mu.Unlock()

	s.frontier.MarkVisited(norm)

	utils.Infof("🛒 发现商品 [%s]: %s (累计: %d)", s.domain, norm, count)
	s.sink.Emit(models.EventProductFound, map[string]any{
		"domain": s.domain,
		"url":    norm,
		"count":  count,
	})
}

// recordFailed 记录失败URL(幂等)
func (s *CrawlSession) recordFailed(norm string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failedSet[norm] {
		return
	}
	s.failedSet[norm] = true
	s.failed = append(s.failed, norm)
}

// driverContext 构造驱动调用的超时context
// 取消被请求后改用缩短超时,限定最坏情况下的停止延迟
func (s *CrawlSession) driverContext() (context.Context, context.CancelFunc) {
	timeout := s.opts.NavigationTimeout
	if s.cancelRequested.Load() {
		timeout = s.opts.ShortTimeout
	}
	return context.WithTimeout(context.Background(), timeout)
}

func (s *CrawlSession) pagesVisited() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats.PagesVisited
}

func (s *CrawlSession) productCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats.ProductsFound
}

// finalize 终态转换
// 冻结统计、构造结果、发出终态事件、释放驱动,最后通过注册表
// 持久化并注销。幂等: 已在终态时返回false。
// 会话worker和看门狗都可能调用,先到先得。
func (s *CrawlSession) finalize(status models.SessionStatus, cause error) bool {
	s.mu.Lock()
	if s.status.Terminal() {
		s.mu.Unlock()
		return false
	}
	s.status = status

	now := time.Now()
	s.stats.EndTime = now
	if !s.stats.StartTime.IsZero() {
		s.stats.DurationSeconds = now.Sub(s.stats.StartTime).Seconds()
	}
	s.stats.CrawlCompleted = status == models.SessionCompleted

	products := make([]string, len(s.products))
	copy(products, s.products)
	result := &models.CrawlResult{
		ID:         models.NewID(),
		Domain:     s.domain,
		Products:   products,
		TotalLinks: s.totalLinks,
		Stats:      s.stats,
		Timestamp:  now,
	}
	s.result = result
	stats := s.stats
	s.mu.Unlock()

	close(s.done)

	payload := map[string]any{
		"domain":           s.domain,
		"session_id":       s.id,
		"pages_visited":    stats.PagesVisited,
		"products_found":   stats.ProductsFound,
		"duration_seconds": stats.DurationSeconds,
	}
	switch status {
	case models.SessionCompleted:
		utils.Infof("✅ 爬取完成 [%s]: %d 页, %d 个商品, 耗时 %.2f 秒",
			s.domain, stats.PagesVisited, stats.ProductsFound, stats.DurationSeconds)
		s.sink.Emit(models.EventCrawlComplete, payload)
	case models.SessionStopped:
		utils.Infof("⏹️  爬取已停止 [%s]: %d 页, %d 个商品",
			s.domain, stats.PagesVisited, stats.ProductsFound)
		s.sink.Emit(models.EventCrawlStopped, payload)
	case models.SessionFailed:
		if cause != nil {
			payload["error"] = cause.Error()
		}
		utils.Errorf("❌ 爬取失败 [%s]: %v", s.domain, cause)
		s.sink.Emit(models.EventCrawlFailed, payload)
	}

	// 释放驱动: 已被强杀时跳过优雅关闭
	if s.driver != nil && !s.killed.Load() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.driver.Close(closeCtx); err != nil {
			utils.Warnf("关闭驱动失败 [%s]: %v, 强制回收", s.domain, err)
			s.driver.Kill()
		}
		cancel()
	}

	// 持久化先于注销,部分结果不会因并发stop-all丢失
	if s.finishFn != nil {
		s.finishFn(s, result)
	}
	return true
}

// ForceTerminate 强制终止(看门狗或stop-all超时路径)
// 立即强杀驱动资源,然后走正常的finalize流程
func (s *CrawlSession) ForceTerminate(status models.SessionStatus) {
	s.cancelRequested.Store(true)
	if s.driver != nil && s.killed.CompareAndSwap(false, true) {
		s.driver.Kill()
	}
	s.finalize(status, nil)
}
