package core

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config 应用程序配置
type Config struct {
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	Watchdog WatchdogConfig `mapstructure:"watchdog"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Profiles ProfilesConfig `mapstructure:"profiles"`
}

// CrawlConfig 爬取配置
type CrawlConfig struct {
	MaxPages             int           `mapstructure:"max_pages"`                // 每域名最大访问页面数
	Indefinite           bool          `mapstructure:"indefinite"`               // 无限爬取模式
	MaxNoNewProductPages int           `mapstructure:"max_no_new_product_pages"` // 无限模式的停滞阈值
	NavigationTimeout    time.Duration `mapstructure:"navigation_timeout"`       // 页面导航超时
	ShortTimeout         time.Duration `mapstructure:"short_timeout"`            // 取消后的缩短超时
	CrawlBudget          time.Duration `mapstructure:"crawl_budget"`             // 每域名墙钟预算 (0=不限)
	MaxQueueSize         int           `mapstructure:"max_queue_size"`           // 边界队列容量
	MaxConcurrent        int64         `mapstructure:"max_concurrent"`           // 并发会话数上限
	Headless             bool          `mapstructure:"headless"`                 // 浏览器无头模式
}

// WatchdogConfig 看门狗配置
type WatchdogConfig struct {
	HeartbeatInterval   time.Duration `mapstructure:"heartbeat_interval"`    // 会话心跳节奏
	ScanInterval        time.Duration `mapstructure:"scan_interval"`         // 看门狗扫描间隔
	StallFactor         int           `mapstructure:"stall_factor"`          // 停滞判定系数
	GracefulStopTimeout time.Duration `mapstructure:"graceful_stop_timeout"` // 优雅停止限期
	StopAllTimeout      time.Duration `mapstructure:"stop_all_timeout"`      // 全量停止限期
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	DataDir   string `mapstructure:"data_dir"`   // SQLite数据库目录
	OutputDir string `mapstructure:"output_dir"` // JSON报告输出目录
	Export    bool   `mapstructure:"export"`     // 会话结束后导出JSON报告
}

// ProfilesConfig 站点画像配置
type ProfilesConfig struct {
	File string `mapstructure:"file"` // 画像文件路径
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		// 使用指定的配置文件
		v.SetConfigFile(configPath)
	} else {
		// 搜索默认位置
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		v.AddConfigPath("./configs")
		v.AddConfigPath(".")

		// 用户主目录
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".ecomseek"))
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 配置文件不存在时退回默认值
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 爬取配置默认值
	v.SetDefault("crawl.max_pages", 100)
	v.SetDefault("crawl.indefinite", false)
	v.SetDefault("crawl.max_no_new_product_pages", 20)
	v.SetDefault("crawl.navigation_timeout", "30s")
	v.SetDefault("crawl.short_timeout", "5s")
	v.SetDefault("crawl.crawl_budget", "0s")
	v.SetDefault("crawl.max_queue_size", 1000)
	v.SetDefault("crawl.max_concurrent", 3)
	v.SetDefault("crawl.headless", true)

	// 看门狗配置默认值
	v.SetDefault("watchdog.heartbeat_interval", "2500ms")
	v.SetDefault("watchdog.scan_interval", "5s")
	v.SetDefault("watchdog.stall_factor", 3)
	v.SetDefault("watchdog.graceful_stop_timeout", "500ms")
	v.SetDefault("watchdog.stop_all_timeout", "30s")

	// 日志配置默认值
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	// 存储配置默认值
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.output_dir", "output")
	v.SetDefault("storage.export", true)

	// 站点画像默认值
	v.SetDefault("profiles.file", "configs/profiles.yaml")
}

// MergeCLIFlags 合并命令行参数到配置
// 命令行参数优先于配置文件
func (c *Config) MergeCLIFlags(
	maxPages int,
	indefinite bool,
	maxNoNewProductPages int,
	crawlBudget time.Duration,
	maxConcurrent int64,
	headless bool,
) {
	if maxPages > 0 {
		c.Crawl.MaxPages = maxPages
	}
	if indefinite {
		c.Crawl.Indefinite = true
	}
	if maxNoNewProductPages > 0 {
		c.Crawl.MaxNoNewProductPages = maxNoNewProductPages
	}
	if crawlBudget > 0 {
		c.Crawl.CrawlBudget = crawlBudget
	}
	if maxConcurrent > 0 {
		c.Crawl.MaxConcurrent = maxConcurrent
	}
	c.Crawl.Headless = headless
}
