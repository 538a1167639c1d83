package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ecomseek/ecomseek/internal/models"
	"github.com/ecomseek/ecomseek/internal/utils"
)

// Exporter JSON报告导出器
// 把持久化的爬取结果导出为人类可读的JSON报告,
// 目录结构: <outputDir>/<domain>/reports/
type Exporter struct {
	outputDir string
}

// NewExporter 创建导出器
func NewExporter(outputDir string) *Exporter {
	return &Exporter{outputDir: outputDir}
}

// Export 导出一次爬取结果
func (e *Exporter) Export(result *models.CrawlResult) error {
	if result == nil {
		return fmt.Errorf("爬取结果为空")
	}

	reportsDir := filepath.Join(e.outputDir, result.Domain, "reports")
	if err := os.MkdirAll(reportsDir, 0755); err != nil {
		return fmt.Errorf("创建报告目录失败: %w", err)
	}

	// 主报告: 完整结果
	if err := e.saveJSON(reportsDir, "crawl_report.json", result); err != nil {
		return err
	}

	// 商品URL列表单独导出,方便下游直接消费
	if err := e.saveJSON(reportsDir, "product_urls.json", result.Products); err != nil {
		return err
	}

	utils.Infof("✅ 报告已导出 [%s]: %d 个商品 -> %s", result.Domain, len(result.Products), reportsDir)
	return nil
}

// ExportLatest 导出域名最近一次持久化的结果
func (e *Exporter) ExportLatest(ctx context.Context, s *ResultStore, domain string) error {
	result, err := s.GetFinal(ctx, domain)
	if err != nil {
		return err
	}
	if result == nil {
		return fmt.Errorf("域名没有可导出的结果: %s", domain)
	}
	return e.Export(result)
}

// saveJSON 保存JSON文件
func (e *Exporter) saveJSON(dir, filename string, data interface{}) error {
	filePath := filepath.Join(dir, filename)

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}

	if err := os.WriteFile(filePath, jsonData, 0644); err != nil {
		return fmt.Errorf("保存报告文件失败: %w", err)
	}

	return nil
}
