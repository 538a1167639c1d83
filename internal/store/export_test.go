package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ecomseek/ecomseek/internal/models"
)

func TestExporter_Export(t *testing.T) {
	outputDir := t.TempDir()
	exporter := NewExporter(outputDir)

	result := testResult("shop.test", []string{
		"https://shop.test/products/a",
		"https://shop.test/products/b",
	}, true, time.Now())

	if err := exporter.Export(result); err != nil {
		t.Fatalf("导出失败: %v", err)
	}

	reportsDir := filepath.Join(outputDir, "shop.test", "reports")

	// 主报告可反序列化回完整结果
	data, err := os.ReadFile(filepath.Join(reportsDir, "crawl_report.json"))
	if err != nil {
		t.Fatalf("读取主报告失败: %v", err)
	}
	var decoded models.CrawlResult
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("解析主报告失败: %v", err)
	}
	if decoded.Domain != "shop.test" || len(decoded.Products) != 2 {
		t.Errorf("主报告内容不完整: %+v", decoded)
	}

	// 商品列表单独导出
	data, err = os.ReadFile(filepath.Join(reportsDir, "product_urls.json"))
	if err != nil {
		t.Fatalf("读取商品列表失败: %v", err)
	}
	var products []string
	if err := json.Unmarshal(data, &products); err != nil {
		t.Fatalf("解析商品列表失败: %v", err)
	}
	if len(products) != 2 {
		t.Errorf("商品列表数 = %d, want 2", len(products))
	}
}

func TestExporter_ExportLatest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	exporter := NewExporter(t.TempDir())

	// 没有记录时报错
	if err := exporter.ExportLatest(ctx, s, "shop.test"); err == nil {
		t.Error("无记录时应返回错误")
	}

	result := testResult("shop.test", []string{"https://shop.test/products/x"}, true, time.Now())
	if err := s.Persist(ctx, result); err != nil {
		t.Fatalf("持久化失败: %v", err)
	}

	if err := exporter.ExportLatest(ctx, s, "shop.test"); err != nil {
		t.Errorf("导出最近结果失败: %v", err)
	}
}
