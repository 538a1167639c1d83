package crawlers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ecomseek/ecomseek/internal/config"
	"github.com/ecomseek/ecomseek/internal/models"
	"github.com/ecomseek/ecomseek/internal/utils"
)

// ResultWriter 结果持久化接口
// 由store包实现,注册表在会话注销前通过它写入结果
type ResultWriter interface {
	Persist(ctx context.Context, result *models.CrawlResult) error
}

// RegistryOptions 注册表配置
type RegistryOptions struct {
	HeartbeatInterval   time.Duration // 会话心跳节奏 (默认:2.5s)
	WatchdogInterval    time.Duration // 看门狗扫描间隔 (默认:5s)
	StallFactor         int           // 心跳缺失超过 StallFactor×WatchdogInterval 视为停滞 (默认:3)
	GracefulStopTimeout time.Duration // 停滞会话优雅停止限期 (默认:500ms)
	StopAllTimeout      time.Duration // StopAll等待终态的限期 (默认:30s)
	MaxConcurrent       int64         // 并发会话数上限 (默认:3)
	PersistTimeout      time.Duration // 单次结果持久化限期 (默认:10s)
}

// DefaultRegistryOptions 默认注册表配置
func DefaultRegistryOptions() RegistryOptions {
	return RegistryOptions{
		HeartbeatInterval:   2500 * time.Millisecond,
		WatchdogInterval:    5 * time.Second,
		StallFactor:         3,
		GracefulStopTimeout: 500 * time.Millisecond,
		StopAllTimeout:      30 * time.Second,
		MaxConcurrent:       3,
		PersistTimeout:      10 * time.Second,
	}
}

// Validate 验证注册表配置
func (o *RegistryOptions) Validate() error {
	if o.HeartbeatInterval <= 0 {
		return fmt.Errorf("心跳间隔必须大于0: %v", o.HeartbeatInterval)
	}
	if o.WatchdogInterval <= 0 {
		return fmt.Errorf("看门狗间隔必须大于0: %v", o.WatchdogInterval)
	}
	if o.StallFactor < 1 {
		return fmt.Errorf("停滞系数必须大于0: %d", o.StallFactor)
	}
	if o.MaxConcurrent < 1 {
		return fmt.Errorf("并发会话数必须大于0: %d", o.MaxConcurrent)
	}
	return nil
}

// Registry 爬取会话注册表
// 持有所有并发运行的会话,执行基于心跳的停滞检测和协调停止。
// sessions和heartbeats两个map被会话worker、看门狗和外部停止
// 请求同时读写,全部互斥锁保护。
type Registry struct {
	mu         sync.Mutex
	sessions   map[string]*CrawlSession
	heartbeats map[string]time.Time

	factory DriverFactory
	writer  ResultWriter
	sink    models.EventSink
	opts    RegistryOptions

	// 会话并发上限信号量: worker在进入Running前获取
	sem *semaphore.Weighted

	// 会话worker计数
	wg sync.WaitGroup

	watchdogCancel context.CancelFunc
	watchdogDone   chan struct{}
	closed         bool
}

// NewRegistry 创建注册表并启动看门狗
func NewRegistry(factory DriverFactory, writer ResultWriter, sink models.EventSink, opts RegistryOptions) (*Registry, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("无效的注册表配置: %w", err)
	}
	if sink == nil {
		sink = models.NopSink{}
	}

	r := &Registry{
		sessions:   make(map[string]*CrawlSession),
		heartbeats: make(map[string]time.Time),
		factory:    factory,
		writer:     writer,
		sink:       sink,
		opts:       opts,
		sem:        semaphore.NewWeighted(opts.MaxConcurrent),
	}

	watchdogCtx, cancel := context.WithCancel(context.Background())
	r.watchdogCancel = cancel
	r.watchdogDone = make(chan struct{})
	go r.watchdog(watchdogCtx)

	return r, nil
}

// StartSession 为指定域名创建并启动会话
// 同一域名已有会话时拒绝。会话循环在独立goroutine中运行,
// 受并发信号量约束: 超过上限的会话在Created状态排队等待。
func (r *Registry) StartSession(domain string, profile *config.SiteProfile, opts models.SessionOptions) (*CrawlSession, error) {
	if err := models.ValidateDomain(domain); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("无效的会话配置: %w", err)
	}
	if profile == nil {
		profile = config.DefaultProfile(domain)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("注册表已关闭")
	}
	if _, exists := r.sessions[domain]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("该域名已有运行中的会话: %s", domain)
	}

	sess := newCrawlSession(domain, profile, opts, r.factory, r.sink,
		r.opts.HeartbeatInterval, r.heartbeat, r.finish)
	r.sessions[domain] = sess
	r.heartbeats[domain] = time.Now()
	r.mu.Unlock()

	utils.Infof("会话已注册 [%s] (ID: %s)", domain, sess.ID())

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.sem.Acquire(context.Background(), 1); err != nil {
			// semaphore只在context取消时失败,这里不会发生
			utils.Errorf("获取并发槽位失败 [%s]: %v", domain, err)
			return
		}
		defer r.sem.Release(1)
		sess.Run()
	}()

	return sess, nil
}

// heartbeat 会话心跳回调
func (r *Registry) heartbeat(domain string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[domain]; exists {
		r.heartbeats[domain] = time.Now()
	}
}

// finish 会话终态回调: 先持久化结果,再从注册表移除
// 顺序约束保证并发stop-all不会丢失部分结果
func (r *Registry) finish(sess *CrawlSession, result *models.CrawlResult) {
	if r.writer != nil && result != nil {
		ctx, cancel := context.WithTimeout(context.Background(), r.opts.PersistTimeout)
		defer cancel()
		if err := r.writer.Persist(ctx, result); err != nil {
			utils.Errorf("持久化爬取结果失败 [%s]: %v", sess.Domain(), err)
		}
	}

	r.mu.Lock()
	delete(r.sessions, sess.Domain())
	delete(r.heartbeats, sess.Domain())
	remaining := len(r.sessions)
	r.mu.Unlock()

	utils.Debugf("会话已注销 [%s], 剩余会话: %d", sess.Domain(), remaining)
}

// StopSession 请求停止指定域名的会话
// 不阻塞: 会话循环观察到标志后自行转换到Stopped并持久化
func (r *Registry) StopSession(domain string) error {
	r.mu.Lock()
	sess, exists := r.sessions[domain]
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("域名没有运行中的会话: %s", domain)
	}

	utils.Infof("请求停止会话 [%s]", domain)
	sess.RequestStop()
	return nil
}

// Session 查找指定域名的会话
func (r *Registry) Session(domain string) (*CrawlSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, exists := r.sessions[domain]
	return sess, exists
}

// Live 实现store.LiveSource: 返回活跃会话的实时快照
func (r *Registry) Live(domain string) (*models.LiveSnapshot, bool) {
	sess, exists := r.Session(domain)
	if !exists {
		return nil, false
	}
	return sess.Snapshot(), true
}

// Domains 当前注册的域名列表
func (r *Registry) Domains() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	domains := make([]string, 0, len(r.sessions))
	for domain := range r.sessions {
		domains = append(domains, domain)
	}
	return domains
}

// ActiveCount 当前注册的会话数量
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// StopAll 并发停止所有会话
// 向每个会话发出取消信号,限期等待终态,超时强制终止,
// 返回所有会话的持久化结果。零会话时为no-op。
func (r *Registry) StopAll(ctx context.Context) []*models.CrawlResult {
	r.mu.Lock()
	active := make([]*CrawlSession, 0, len(r.sessions))
	for _, sess := range r.sessions {
		active = append(active, sess)
	}
	r.mu.Unlock()

	if len(active) == 0 {
		return nil
	}

	utils.Infof("停止所有会话: %d 个", len(active))

	for _, sess := range active {
		sess.RequestStop()
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, sess := range active {
		g.Go(func() error {
			select {
			case <-sess.Done():
			case <-time.After(r.opts.StopAllTimeout):
				utils.Warnf("会话未在限期内停止 [%s], 强制终止", sess.Domain())
				sess.ForceTerminate(models.SessionStopped)
			case <-ctx.Done():
				sess.ForceTerminate(models.SessionStopped)
			}
			return nil
		})
	}
	// goroutine内不返回错误,Wait仅用于汇合
	_ = g.Wait()

	results := make([]*models.CrawlResult, 0, len(active))
	for _, sess := range active {
		if result := sess.Result(); result != nil {
			results = append(results, result)
		}
	}
	return results
}

// watchdog 后台看门狗
// 固定间隔扫描所有心跳: 缺失超过 StallFactor×间隔 的Running会话
// 视为停滞,先尝试优雅停止,限期不达再强制销毁驱动资源
func (r *Registry) watchdog(ctx context.Context) {
	defer close(r.watchdogDone)

	ticker := time.NewTicker(r.opts.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.scanStalled()
		}
	}
}

// scanStalled 单轮停滞扫描
func (r *Registry) scanStalled() {
	if snapshot, err := SampleResources(); err == nil {
		utils.Debugf("资源快照: 可用内存 %.1fMB, 内存占用 %.1f%%, CPU %.1f%%",
			float64(snapshot.AvailableMemory)/(1024*1024), snapshot.MemoryUsedPercent, snapshot.CPUPercent)
	}

	threshold := time.Duration(r.opts.StallFactor) * r.opts.WatchdogInterval
	now := time.Now()

	r.mu.Lock()
	stalled := make([]*CrawlSession, 0)
	for domain, sess := range r.sessions {
		if sess.Status() != models.SessionRunning {
			continue
		}
		if lastBeat, exists := r.heartbeats[domain]; exists && now.Sub(lastBeat) > threshold {
			stalled = append(stalled, sess)
		}
	}
	r.mu.Unlock()

	for _, sess := range stalled {
		// 停滞与外部停止效果相同,但单独记录以便观察
		utils.Warnf("⚠️  检测到会话停滞 [%s]: 心跳缺失超过 %v, 强制终止", sess.Domain(), threshold)
		r.sink.Emit(models.EventStallDetected, map[string]any{
			"domain":     sess.Domain(),
			"session_id": sess.ID(),
			"threshold":  threshold.String(),
		})

		sess.RequestStop()
		select {
		case <-sess.Done():
			// 优雅停止在限期内完成
		case <-time.After(r.opts.GracefulStopTimeout):
			sess.ForceTerminate(models.SessionStopped)
		}
	}
}

// Close 关闭注册表: 停止看门狗并停止所有会话
// 先等看门狗goroutine汇合,进行中的停滞处理(含结果持久化)
// 不会在Close返回后才发生,调用方随后关闭store是安全的
func (r *Registry) Close(ctx context.Context) []*models.CrawlResult {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.watchdogCancel()
	<-r.watchdogDone

	results := r.StopAll(ctx)
	r.wg.Wait()
	return results
}
