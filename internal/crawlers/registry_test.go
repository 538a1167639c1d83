package crawlers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ecomseek/ecomseek/internal/config"
	"github.com/ecomseek/ecomseek/internal/models"
)

// captureWriter 捕获持久化调用的ResultWriter
type captureWriter struct {
	mu      sync.Mutex
	results []*models.CrawlResult
}

func (w *captureWriter) Persist(ctx context.Context, result *models.CrawlResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.results = append(w.results, result)
	return nil
}

func (w *captureWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.results)
}

// captureSink 捕获事件的EventSink
type captureSink struct {
	mu     sync.Mutex
	events []models.EventType
}

func (s *captureSink) Emit(event models.EventType, payload map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *captureSink) has(event models.EventType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e == event {
			return true
		}
	}
	return false
}

// siteFactory 每个会话创建独立fake驱动的工厂
func siteFactory(delay time.Duration) DriverFactory {
	return func(profile *config.SiteProfile) (PageDriver, error) {
		d := newFakeDriver(map[string]fakePage{
			"https://" + profile.Domain + "/": {},
		})
		d.navDelay = delay
		return d, nil
	}
}

// chainFactory 生成链式站点的工厂,保证会话运行足够长时间
func chainFactory(delay time.Duration, pageCount int) DriverFactory {
	return func(profile *config.SiteProfile) (PageDriver, error) {
		base := "https://" + profile.Domain
		pages := map[string]fakePage{
			base + "/": {links: []string{base + "/page0"}},
		}
		for i := 0; i < pageCount; i++ {
			pages[fmt.Sprintf("%s/page%d", base, i)] = fakePage{
				links: []string{fmt.Sprintf("%s/page%d", base, i+1)},
			}
		}
		d := newFakeDriver(pages)
		d.navDelay = delay
		return d, nil
	}
}

func fastRegistryOptions() RegistryOptions {
	opts := DefaultRegistryOptions()
	opts.HeartbeatInterval = 10 * time.Millisecond
	opts.WatchdogInterval = 20 * time.Millisecond
	opts.GracefulStopTimeout = 30 * time.Millisecond
	opts.StopAllTimeout = 2 * time.Second
	return opts
}

func waitActiveCount(t *testing.T, r *Registry, want int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if r.ActiveCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("注册表会话数未在 %v 内达到 %d, 当前 %d", timeout, want, r.ActiveCount())
}

func TestRegistry_RejectsDuplicateDomain(t *testing.T) {
	writer := &captureWriter{}
	r, err := NewRegistry(siteFactory(100*time.Millisecond), writer, nil, fastRegistryOptions())
	if err != nil {
		t.Fatalf("创建注册表失败: %v", err)
	}
	defer r.Close(context.Background())

	sess, err := r.StartSession("shop.test", nil, models.DefaultSessionOptions())
	if err != nil {
		t.Fatalf("首个会话应启动成功: %v", err)
	}

	if _, err := r.StartSession("shop.test", nil, models.DefaultSessionOptions()); err == nil {
		t.Error("同域名重复会话应被拒绝")
	}

	<-sess.Done()
}

func TestRegistry_SessionLifecycle(t *testing.T) {
	writer := &captureWriter{}
	r, err := NewRegistry(siteFactory(0), writer, nil, fastRegistryOptions())
	if err != nil {
		t.Fatalf("创建注册表失败: %v", err)
	}
	defer r.Close(context.Background())

	sess, err := r.StartSession("shop.test", nil, models.DefaultSessionOptions())
	if err != nil {
		t.Fatalf("启动会话失败: %v", err)
	}

	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("会话未在限期内完成")
	}

	if sess.Status() != models.SessionCompleted {
		t.Errorf("状态 = %v, want completed", sess.Status())
	}

	// 持久化先于注销
	waitActiveCount(t, r, 0, time.Second)
	if writer.count() != 1 {
		t.Errorf("持久化次数 = %d, want 1", writer.count())
	}
}

func TestRegistry_WatchdogForceTerminatesStalled(t *testing.T) {
	writer := &captureWriter{}
	sink := &captureSink{}

	// 心跳间隔远大于看门狗阈值: 初始心跳之后不再更新,必然被判停滞
	opts := fastRegistryOptions()
	opts.HeartbeatInterval = time.Hour

	// 页面慢到心跳过期仍未返回
	r, err := NewRegistry(siteFactory(200*time.Millisecond), writer, sink, opts)
	if err != nil {
		t.Fatalf("创建注册表失败: %v", err)
	}
	defer r.Close(context.Background())

	sess, err := r.StartSession("shop.test", nil, models.DefaultSessionOptions())
	if err != nil {
		t.Fatalf("启动会话失败: %v", err)
	}

	// 没有任何外部stopSession调用,由看门狗处置
	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("看门狗未在限期内终止停滞会话")
	}

	if sess.Status() != models.SessionStopped {
		t.Errorf("状态 = %v, want stopped", sess.Status())
	}
	if !sink.has(models.EventStallDetected) {
		t.Error("应发出停滞检测事件")
	}

	// 结果仍被持久化
	waitActiveCount(t, r, 0, time.Second)
	if writer.count() != 1 {
		t.Errorf("持久化次数 = %d, want 1", writer.count())
	}
}

func TestRegistry_CloseJoinsWatchdog(t *testing.T) {
	writer := &captureWriter{}

	// 与停滞场景同构: 看门狗会介入并在自己的goroutine里持久化结果
	opts := fastRegistryOptions()
	opts.HeartbeatInterval = time.Hour

	r, err := NewRegistry(siteFactory(200*time.Millisecond), writer, nil, opts)
	if err != nil {
		t.Fatalf("创建注册表失败: %v", err)
	}

	if _, err := r.StartSession("shop.test", nil, models.DefaultSessionOptions()); err != nil {
		t.Fatalf("启动会话失败: %v", err)
	}

	// 等看门狗开始处置停滞会话
	time.Sleep(100 * time.Millisecond)

	// Close返回时看门狗已汇合: 结果持久化不会晚于Close完成
	r.Close(context.Background())
	count := writer.count()
	if count != 1 {
		t.Errorf("Close返回时持久化次数 = %d, want 1", count)
	}

	time.Sleep(3 * opts.WatchdogInterval)
	if writer.count() != count {
		t.Errorf("Close之后仍有持久化发生: %d -> %d", count, writer.count())
	}
}

func TestRegistry_StopSession(t *testing.T) {
	writer := &captureWriter{}
	r, err := NewRegistry(siteFactory(30*time.Millisecond), writer, nil, fastRegistryOptions())
	if err != nil {
		t.Fatalf("创建注册表失败: %v", err)
	}
	defer r.Close(context.Background())

	sess, err := r.StartSession("shop.test", nil, models.DefaultSessionOptions())
	if err != nil {
		t.Fatalf("启动会话失败: %v", err)
	}

	if err := r.StopSession("shop.test"); err != nil {
		t.Fatalf("停止会话失败: %v", err)
	}
	// 对不存在的域名返回错误
	if err := r.StopSession("other.test"); err == nil {
		t.Error("不存在的域名应返回错误")
	}

	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("会话未在限期内停止")
	}
	waitActiveCount(t, r, 0, time.Second)
}

func TestRegistry_StopAll(t *testing.T) {
	writer := &captureWriter{}
	r, err := NewRegistry(chainFactory(20*time.Millisecond, 100), writer, nil, fastRegistryOptions())
	if err != nil {
		t.Fatalf("创建注册表失败: %v", err)
	}
	defer r.Close(context.Background())

	domains := []string{"a.test", "b.test", "c.test"}
	for _, domain := range domains {
		if _, err := r.StartSession(domain, nil, models.DefaultSessionOptions()); err != nil {
			t.Fatalf("启动会话失败 [%s]: %v", domain, err)
		}
	}

	results := r.StopAll(context.Background())
	if len(results) != len(domains) {
		t.Errorf("StopAll结果数 = %d, want %d", len(results), len(domains))
	}
	waitActiveCount(t, r, 0, time.Second)
}

func TestRegistry_StopAllEmpty(t *testing.T) {
	r, err := NewRegistry(siteFactory(0), &captureWriter{}, nil, fastRegistryOptions())
	if err != nil {
		t.Fatalf("创建注册表失败: %v", err)
	}
	defer r.Close(context.Background())

	// 零会话时为no-op
	if results := r.StopAll(context.Background()); results != nil {
		t.Errorf("零会话的StopAll应返回nil, got %v", results)
	}
}

func TestRegistry_Live(t *testing.T) {
	writer := &captureWriter{}
	r, err := NewRegistry(chainFactory(20*time.Millisecond, 50), writer, nil, fastRegistryOptions())
	if err != nil {
		t.Fatalf("创建注册表失败: %v", err)
	}
	defer r.Close(context.Background())

	if _, ok := r.Live("shop.test"); ok {
		t.Error("没有活跃会话时Live应返回false")
	}

	sess, err := r.StartSession("shop.test", nil, models.DefaultSessionOptions())
	if err != nil {
		t.Fatalf("启动会话失败: %v", err)
	}

	snapshot, ok := r.Live("shop.test")
	if !ok {
		t.Fatal("活跃会话应有实时快照")
	}
	if snapshot.Domain != "shop.test" {
		t.Errorf("快照域名 = %s", snapshot.Domain)
	}

	<-sess.Done()
}

func TestRegistry_ConcurrencyLimit(t *testing.T) {
	writer := &captureWriter{}
	opts := fastRegistryOptions()
	opts.MaxConcurrent = 1

	r, err := NewRegistry(siteFactory(50*time.Millisecond), writer, nil, opts)
	if err != nil {
		t.Fatalf("创建注册表失败: %v", err)
	}
	defer r.Close(context.Background())

	var sessions []*CrawlSession
	for i := 0; i < 3; i++ {
		sess, err := r.StartSession(fmt.Sprintf("s%d.test", i), nil, models.DefaultSessionOptions())
		if err != nil {
			t.Fatalf("启动会话失败: %v", err)
		}
		sessions = append(sessions, sess)
	}

	// 信号量上限为1: 任意时刻至多一个会话处于Running
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		running := 0
		for _, sess := range sessions {
			if sess.Status() == models.SessionRunning {
				running++
			}
		}
		if running > 1 {
			t.Fatalf("并发Running会话数 = %d, 超出上限1", running)
		}

		done := 0
		for _, sess := range sessions {
			select {
			case <-sess.Done():
				done++
			default:
			}
		}
		if done == len(sessions) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("会话未全部完成")
}
