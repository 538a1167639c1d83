package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ecomseek/ecomseek/internal/core"
	"github.com/ecomseek/ecomseek/internal/utils"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string

	// 爬取参数
	targetDomain         string
	domainFile           string
	maxPages             int
	indefinite           bool
	maxNoNewProductPages int
	crawlBudget          time.Duration
	maxConcurrent        int64
	headless             bool
	profilesFile         string
	outputDir            string
	noExport             bool
)

var rootCmd = &cobra.Command{
	Use:   "ecomseek",
	Short: "电商站点商品URL发现工具",
	Long: `EcomSeek - 电商站点商品URL发现爬取工具

对电商站点做广度受控的站内爬取,自动识别并收集商品详情页URL,支持:
  • 商品/分类URL智能分类与优先级调度
  • 浏览器渲染(go-rod)和静态HTTP(Colly)两种获取模式
  • 懒加载滚动和"加载更多"按钮处理
  • 按域名隔离的并发会话与心跳停滞检测
  • 协作式取消,部分结果总是持久化
  • SQLite结果存储 + JSON报告导出

使用示例:
  # 单域名爬取
  ecomseek -d shop.example.com

  # 批量域名爬取
  ecomseek -f domains.txt --max-pages 200

  # 无限模式(连续20页无新商品自动停止)
  ecomseek -d shop.example.com --indefinite

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 加载配置
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		// 初始化日志系统
		logConfig := utils.LogConfig{
			Level:      config.Logging.Level,
			LogDir:     config.Logging.LogDir,
			MaxSize:    config.Logging.Rotation.MaxSize,
			MaxBackups: config.Logging.Rotation.MaxBackups,
			MaxAge:     config.Logging.Rotation.MaxAge,
			Compress:   config.Logging.Rotation.Compress,
		}

		// 命令行参数覆盖配置文件
		if logLevel != "" {
			logConfig.Level = logLevel
		}

		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		if verbose {
			utils.Info("详细模式已启用")
		}

		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// 如果没有提供任何参数,显示帮助信息
		if targetDomain == "" && domainFile == "" {
			return cmd.Help()
		}

		// 验证参数
		if err := ValidateFlags(targetDomain, maxPages, indefinite, maxNoNewProductPages, maxConcurrent); err != nil {
			return err
		}

		// 加载配置并合并命令行参数
		appConfig, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		appConfig.MergeCLIFlags(maxPages, indefinite, maxNoNewProductPages, crawlBudget, maxConcurrent, headless)
		if profilesFile != "" {
			appConfig.Profiles.File = profilesFile
		}
		if outputDir != "" {
			appConfig.Storage.OutputDir = outputDir
		}
		if noExport {
			appConfig.Storage.Export = false
		}

		// 收集目标域名
		domains, err := collectDomains()
		if err != nil {
			return err
		}

		runner, err := core.NewRunner(appConfig)
		if err != nil {
			return fmt.Errorf("创建协调器失败: %w", err)
		}

		// 信号处理(Ctrl+C协调停止,二次信号强制退出)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			sig := <-sigChan
			utils.Warnf("\n收到中断信号: %v, 正在协调停止所有会话...", sig)
			cancel()
			<-sigChan
			utils.Errorf("收到二次中断信号, 强制退出")
			os.Exit(1)
		}()

		summary, err := runner.RunDomains(ctx, domains)
		runner.Close(context.Background())
		if err != nil {
			return fmt.Errorf("爬取失败: %w", err)
		}

		// 显示统计结果
		fmt.Println("\n==================================================")
		fmt.Println("📊 商品发现统计")
		fmt.Println("==================================================")
		fmt.Printf("✅ 域名总数: %d\n", summary.TotalDomains)
		fmt.Printf("✅ 成功: %d\n", summary.SuccessCount)
		fmt.Printf("❌ 失败: %d\n", summary.FailCount)
		fmt.Printf("🛒 商品URL总数: %d\n", summary.TotalProducts)
		fmt.Printf("📄 访问页面总数: %d\n", summary.TotalPages)
		fmt.Printf("⏱️  总耗时: %.2f秒\n", summary.TotalDuration)
		fmt.Println("==================================================")

		utils.Info("✨ 商品发现任务完成!")
		return nil
	},
}

// collectDomains 从命令行参数或文件收集目标域名
func collectDomains() ([]string, error) {
	if domainFile != "" {
		domains, err := utils.ReadDomainsFromFile(domainFile)
		if err != nil {
			return nil, fmt.Errorf("读取域名文件失败: %w", err)
		}
		if len(domains) == 0 {
			return nil, fmt.Errorf("域名文件为空: %s", domainFile)
		}
		return domains, nil
	}

	domain, err := NormalizeDomain(targetDomain)
	if err != nil {
		return nil, fmt.Errorf("无效的目标域名: %w", err)
	}
	return []string{domain}, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("EcomSeek %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
		fmt.Println("电商商品URL发现爬取工具")
	},
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")

	// 爬取参数
	rootCmd.Flags().StringVarP(&targetDomain, "domain", "d", "", "目标域名 (必需,除非使用 --domain-file)")
	rootCmd.Flags().StringVarP(&domainFile, "domain-file", "f", "", "包含域名列表的文件路径")
	rootCmd.Flags().IntVar(&maxPages, "max-pages", 0, "每域名最大访问页面数 (0=使用配置文件值)")
	rootCmd.Flags().BoolVar(&indefinite, "indefinite", false, "无限爬取模式(按无新商品页数停止)")
	rootCmd.Flags().IntVar(&maxNoNewProductPages, "max-no-new-product-pages", 0, "无限模式下连续无新商品页面数上限")
	rootCmd.Flags().DurationVar(&crawlBudget, "budget", 0, "每域名墙钟时间预算 (如 10m, 0=不限)")
	rootCmd.Flags().Int64Var(&maxConcurrent, "max-concurrent", 0, "并发会话数上限")
	rootCmd.Flags().BoolVar(&headless, "headless", true, "无头浏览器模式")
	rootCmd.Flags().StringVar(&profilesFile, "profiles", "", "站点画像配置文件路径")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "", "JSON报告输出目录")
	rootCmd.Flags().BoolVar(&noExport, "no-export", false, "禁用JSON报告导出")

	// 添加子命令
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
