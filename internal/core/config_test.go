package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	// 不存在的配置路径: 退回默认值而不报错
	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("加载默认配置失败: %v", err)
	}

	if config.Crawl.MaxPages != 100 {
		t.Errorf("默认最大页面数 = %d, want 100", config.Crawl.MaxPages)
	}
	if config.Crawl.NavigationTimeout != 30*time.Second {
		t.Errorf("默认导航超时 = %v, want 30s", config.Crawl.NavigationTimeout)
	}
	if config.Crawl.ShortTimeout != 5*time.Second {
		t.Errorf("默认缩短超时 = %v, want 5s", config.Crawl.ShortTimeout)
	}
	if config.Crawl.MaxConcurrent != 3 {
		t.Errorf("默认并发数 = %d, want 3", config.Crawl.MaxConcurrent)
	}
	if config.Watchdog.HeartbeatInterval != 2500*time.Millisecond {
		t.Errorf("默认心跳间隔 = %v, want 2.5s", config.Watchdog.HeartbeatInterval)
	}
	if config.Watchdog.ScanInterval != 5*time.Second {
		t.Errorf("默认看门狗间隔 = %v, want 5s", config.Watchdog.ScanInterval)
	}
	if config.Watchdog.StallFactor != 3 {
		t.Errorf("默认停滞系数 = %d, want 3", config.Watchdog.StallFactor)
	}
	if config.Logging.Level != "info" {
		t.Errorf("默认日志级别 = %s, want info", config.Logging.Level)
	}
	if config.Storage.DataDir != "data" {
		t.Errorf("默认数据目录 = %s, want data", config.Storage.DataDir)
	}
	if config.Profiles.File != "configs/profiles.yaml" {
		t.Errorf("默认画像文件 = %s", config.Profiles.File)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
crawl:
  max_pages: 500
  indefinite: true
  navigation_timeout: 45s
watchdog:
  scan_interval: 10s
  stall_factor: 5
storage:
  data_dir: /var/lib/ecomseek
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("加载配置文件失败: %v", err)
	}

	if config.Crawl.MaxPages != 500 {
		t.Errorf("最大页面数 = %d, want 500", config.Crawl.MaxPages)
	}
	if !config.Crawl.Indefinite {
		t.Error("无限模式应开启")
	}
	if config.Crawl.NavigationTimeout != 45*time.Second {
		t.Errorf("导航超时 = %v, want 45s", config.Crawl.NavigationTimeout)
	}
	if config.Watchdog.ScanInterval != 10*time.Second {
		t.Errorf("看门狗间隔 = %v, want 10s", config.Watchdog.ScanInterval)
	}
	if config.Watchdog.StallFactor != 5 {
		t.Errorf("停滞系数 = %d, want 5", config.Watchdog.StallFactor)
	}
	if config.Storage.DataDir != "/var/lib/ecomseek" {
		t.Errorf("数据目录 = %s", config.Storage.DataDir)
	}

	// 未覆盖的字段保持默认值
	if config.Crawl.ShortTimeout != 5*time.Second {
		t.Errorf("缩短超时应保持默认 = %v", config.Crawl.ShortTimeout)
	}
}

func TestConfig_MergeCLIFlags(t *testing.T) {
	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("加载默认配置失败: %v", err)
	}

	config.MergeCLIFlags(200, true, 50, 10*time.Minute, 5, false)

	if config.Crawl.MaxPages != 200 {
		t.Errorf("最大页面数 = %d, want 200", config.Crawl.MaxPages)
	}
	if !config.Crawl.Indefinite {
		t.Error("无限模式应开启")
	}
	if config.Crawl.MaxNoNewProductPages != 50 {
		t.Errorf("无新商品阈值 = %d, want 50", config.Crawl.MaxNoNewProductPages)
	}
	if config.Crawl.CrawlBudget != 10*time.Minute {
		t.Errorf("墙钟预算 = %v, want 10m", config.Crawl.CrawlBudget)
	}
	if config.Crawl.MaxConcurrent != 5 {
		t.Errorf("并发数 = %d, want 5", config.Crawl.MaxConcurrent)
	}
	if config.Crawl.Headless {
		t.Error("无头模式应关闭")
	}

	// 零值参数不覆盖配置
	config.MergeCLIFlags(0, false, 0, 0, 0, true)
	if config.Crawl.MaxPages != 200 {
		t.Errorf("零值不应覆盖最大页面数, got %d", config.Crawl.MaxPages)
	}
	if !config.Crawl.Indefinite {
		t.Error("false不应关闭已配置的无限模式")
	}
}
