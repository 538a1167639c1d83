package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ecomseek/ecomseek/internal/models"
)

func testResult(domain string, products []string, completed bool, ts time.Time) *models.CrawlResult {
	return &models.CrawlResult{
		ID:         models.NewID(),
		Domain:     domain,
		Products:   products,
		TotalLinks: len(products) * 10,
		Stats: models.CrawlStats{
			PagesVisited:    42,
			ProductsFound:   len(products),
			StartTime:       ts.Add(-time.Minute),
			EndTime:         ts,
			DurationSeconds: 60,
			CrawlCompleted:  completed,
		},
		Timestamp: ts,
	}
}

func openTestStore(t *testing.T) *ResultStore {
	t.Helper()
	s, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("打开存储失败: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestResultStore_PersistAndGetFinal(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	result := testResult("shop.test", []string{
		"https://shop.test/products/a",
		"https://shop.test/products/b",
	}, true, time.Now())

	if err := s.Persist(ctx, result); err != nil {
		t.Fatalf("持久化失败: %v", err)
	}

	got, err := s.GetFinal(ctx, "shop.test")
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if got == nil {
		t.Fatal("应返回已持久化的结果")
	}
	if got.ID != result.ID {
		t.Errorf("ID = %s, want %s", got.ID, result.ID)
	}
	if len(got.Products) != 2 {
		t.Errorf("商品数 = %d, want 2", len(got.Products))
	}
	if got.Products[0] != "https://shop.test/products/a" {
		t.Errorf("商品顺序应保留: %v", got.Products)
	}
	if got.Stats.PagesVisited != 42 {
		t.Errorf("统计页面数 = %d, want 42", got.Stats.PagesVisited)
	}
	if !got.Stats.CrawlCompleted {
		t.Error("CrawlCompleted应保留")
	}
}

func TestResultStore_GetFinalAbsent(t *testing.T) {
	s := openTestStore(t)

	got, err := s.GetFinal(context.Background(), "unknown.test")
	if err != nil {
		t.Fatalf("无记录时不应报错: %v", err)
	}
	if got != nil {
		t.Errorf("无记录时应返回nil, got %v", got)
	}
}

func TestResultStore_PersistNeverOverwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := testResult("shop.test", []string{"https://shop.test/products/old"}, true, time.Now().Add(-time.Hour))
	second := testResult("shop.test", []string{
		"https://shop.test/products/new1",
		"https://shop.test/products/new2",
	}, false, time.Now())

	if err := s.Persist(ctx, first); err != nil {
		t.Fatalf("首次持久化失败: %v", err)
	}
	if err := s.Persist(ctx, second); err != nil {
		t.Fatalf("二次持久化失败: %v", err)
	}

	// 两条记录共存
	count, err := s.CountResults(ctx, "shop.test")
	if err != nil {
		t.Fatalf("统计失败: %v", err)
	}
	if count != 2 {
		t.Errorf("记录数 = %d, want 2 (追加而非覆盖)", count)
	}

	// GetFinal返回时间最近的一条
	got, err := s.GetFinal(ctx, "shop.test")
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if got.ID != second.ID {
		t.Errorf("应返回最新记录, got %s", got.ID)
	}
	if len(got.Products) != 2 {
		t.Errorf("商品数 = %d, want 2", len(got.Products))
	}
}

func TestResultStore_PersistNil(t *testing.T) {
	s := openTestStore(t)
	if err := s.Persist(context.Background(), nil); err == nil {
		t.Error("nil结果应返回错误")
	}
}

// fakeLive 固定快照的LiveSource
type fakeLive struct {
	snapshot *models.LiveSnapshot
}

func (f *fakeLive) Live(domain string) (*models.LiveSnapshot, bool) {
	if f.snapshot != nil && f.snapshot.Domain == domain {
		return f.snapshot, true
	}
	return nil, false
}

func TestResultStore_GetLive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	live := &fakeLive{snapshot: &models.LiveSnapshot{
		Domain:    "shop.test",
		Status:    models.SessionRunning,
		Products:  []string{"https://shop.test/products/live"},
		QueueSize: 7,
	}}

	// 活跃会话优先
	got, err := s.GetLive(ctx, "shop.test", live)
	if err != nil {
		t.Fatalf("读取实时快照失败: %v", err)
	}
	if got == nil || got.Status != models.SessionRunning || got.QueueSize != 7 {
		t.Errorf("应返回活跃会话快照: %+v", got)
	}

	// 无活跃会话时回退到持久化结果
	persisted := testResult("done.test", []string{"https://done.test/products/x"}, true, time.Now())
	if err := s.Persist(ctx, persisted); err != nil {
		t.Fatalf("持久化失败: %v", err)
	}
	got, err = s.GetLive(ctx, "done.test", live)
	if err != nil {
		t.Fatalf("回退读取失败: %v", err)
	}
	if got == nil || got.Status != models.SessionCompleted {
		t.Errorf("应回退到持久化结果: %+v", got)
	}

	// 两者都没有
	got, err = s.GetLive(ctx, "nothing.test", live)
	if err != nil {
		t.Fatalf("无记录读取失败: %v", err)
	}
	if got != nil {
		t.Errorf("无记录时应返回nil, got %+v", got)
	}
}

func TestResultStore_OpenRequiresExisting(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.CreateIfNotExists = false

	if _, err := Open(dir, opts); err == nil {
		t.Error("数据库不存在且不允许创建时应报错")
	}

	// 先创建再以只读写模式打开
	s, err := Open(dir, DefaultOptions())
	if err != nil {
		t.Fatalf("创建存储失败: %v", err)
	}
	_ = s.Close()

	if _, err := os.Stat(filepath.Join(dir, DBFileName)); err != nil {
		t.Fatalf("数据库文件应已创建: %v", err)
	}

	s2, err := Open(dir, opts)
	if err != nil {
		t.Fatalf("已存在的数据库应可打开: %v", err)
	}
	_ = s2.Close()
}
