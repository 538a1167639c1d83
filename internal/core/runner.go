package core

import (
	"context"
	"fmt"
	"time"

	"github.com/ecomseek/ecomseek/internal/config"
	"github.com/ecomseek/ecomseek/internal/crawlers"
	"github.com/ecomseek/ecomseek/internal/models"
	"github.com/ecomseek/ecomseek/internal/store"
	"github.com/ecomseek/ecomseek/internal/utils"
)

// Runner 主协调器
// 装配站点画像、会话注册表和结果存储,驱动一批域名的
// 商品发现爬取并汇总结果
type Runner struct {
	config   *Config
	profiles *config.ProfileRegistry
	registry *crawlers.Registry
	store    *store.ResultStore
	exporter *store.Exporter
}

// DomainResult 单域名爬取结果
type DomainResult struct {
	Domain      string
	Success     bool
	Error       error
	Result      *models.CrawlResult
	ProcessedAt time.Time
}

// RunSummary 批量爬取摘要
type RunSummary struct {
	TotalDomains  int
	SuccessCount  int
	FailCount     int
	TotalProducts int
	TotalPages    int
	TotalDuration float64
	Results       []DomainResult
}

// NewRunner 创建协调器
func NewRunner(cfg *Config) (*Runner, error) {
	// 加载站点画像,文件不存在时生成模板
	loader := config.NewProfileLoader(cfg.Profiles.File)
	if err := loader.EnsureConfigExists(); err != nil {
		return nil, err
	}
	profiles, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("加载站点画像失败: %w", err)
	}

	resultStore, err := store.Open(cfg.Storage.DataDir, store.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("打开结果存储失败: %w", err)
	}

	factory := crawlers.DefaultDriverFactory(cfg.Crawl.Headless, cfg.Crawl.NavigationTimeout)

	registryOpts := crawlers.RegistryOptions{
		HeartbeatInterval:   cfg.Watchdog.HeartbeatInterval,
		WatchdogInterval:    cfg.Watchdog.ScanInterval,
		StallFactor:         cfg.Watchdog.StallFactor,
		GracefulStopTimeout: cfg.Watchdog.GracefulStopTimeout,
		StopAllTimeout:      cfg.Watchdog.StopAllTimeout,
		MaxConcurrent:       cfg.Crawl.MaxConcurrent,
		PersistTimeout:      10 * time.Second,
	}
	registry, err := crawlers.NewRegistry(factory, resultStore, utils.NewLogEventSink(), registryOpts)
	if err != nil {
		_ = resultStore.Close()
		return nil, fmt.Errorf("创建会话注册表失败: %w", err)
	}

	return &Runner{
		config:   cfg,
		profiles: profiles,
		registry: registry,
		store:    resultStore,
		exporter: store.NewExporter(cfg.Storage.OutputDir),
	}, nil
}

// sessionOptions 从应用配置构造会话配置
func (r *Runner) sessionOptions() models.SessionOptions {
	opts := models.DefaultSessionOptions()
	opts.MaxPages = r.config.Crawl.MaxPages
	opts.IndefiniteCrawling = r.config.Crawl.Indefinite
	opts.MaxNoNewProductPages = r.config.Crawl.MaxNoNewProductPages
	opts.NavigationTimeout = r.config.Crawl.NavigationTimeout
	opts.ShortTimeout = r.config.Crawl.ShortTimeout
	opts.CrawlBudget = r.config.Crawl.CrawlBudget
	opts.MaxQueueSize = r.config.Crawl.MaxQueueSize
	return opts
}

// RunDomains 批量爬取域名列表
// 全部域名提交给注册表后等待终态,并发度由注册表的信号量控制。
// ctx取消时协调停止所有会话,已发现的商品仍会持久化并计入摘要。
func (r *Runner) RunDomains(ctx context.Context, domains []string) (*RunSummary, error) {
	if len(domains) == 0 {
		return nil, fmt.Errorf("域名列表为空")
	}

	startTime := time.Now()
	utils.Infof("🚀 开始商品发现爬取: %d 个域名", len(domains))

	summary := &RunSummary{
		TotalDomains: len(domains),
		Results:      make([]DomainResult, 0, len(domains)),
	}

	sessions := make(map[string]*crawlers.CrawlSession, len(domains))
	for _, domain := range domains {
		profile := r.profiles.Lookup(domain)
		sess, err := r.registry.StartSession(domain, profile, r.sessionOptions())
		if err != nil {
			utils.Errorf("❌ 启动会话失败 [%s]: %v", domain, err)
			summary.FailCount++
			summary.Results = append(summary.Results, DomainResult{
				Domain:      domain,
				Success:     false,
				Error:       err,
				ProcessedAt: time.Now(),
			})
			continue
		}
		sessions[domain] = sess
	}

	bar := utils.NewProgressBar(len(sessions), "爬取进度")
	canceled := false

	for domain, sess := range sessions {
		select {
		case <-sess.Done():
		case <-ctx.Done():
			if !canceled {
				canceled = true
				utils.Warnf("⏹️  收到取消信号,停止所有会话...")
				r.registry.StopAll(context.Background())
			}
			<-sess.Done()
		}
		_ = bar.Add(1)

		result := sess.Result()
		status := sess.Status()
		success := status != models.SessionFailed
		domainResult := DomainResult{
			Domain:      domain,
			Success:     success,
			Result:      result,
			ProcessedAt: time.Now(),
		}
		if !success {
			domainResult.Error = fmt.Errorf("会话失败: %s", domain)
		}
		summary.Results = append(summary.Results, domainResult)

		if success {
			summary.SuccessCount++
		} else {
			summary.FailCount++
		}
		if result != nil {
			summary.TotalProducts += len(result.Products)
			summary.TotalPages += result.Stats.PagesVisited

			if r.config.Storage.Export {
				if err := r.exporter.Export(result); err != nil {
					utils.Warnf("导出报告失败 [%s]: %v", domain, err)
				}
			}
		}
	}
	fmt.Println()

	summary.TotalDuration = time.Since(startTime).Seconds()
	r.printSummary(summary)
	return summary, nil
}

// printSummary 输出批量爬取摘要
func (r *Runner) printSummary(summary *RunSummary) {
	utils.Infof("✅ 爬取任务完成")
	utils.Infof("域名总数: %d, 成功: %d, 失败: %d", summary.TotalDomains, summary.SuccessCount, summary.FailCount)
	utils.Infof("商品URL总数: %d", summary.TotalProducts)
	utils.Infof("访问页面总数: %d", summary.TotalPages)
	utils.Infof("总耗时: %.2f秒", summary.TotalDuration)

	for _, result := range summary.Results {
		if result.Result != nil {
			utils.Infof("  [%s] 商品: %d, 页面: %d, 自然完成: %v",
				result.Domain, len(result.Result.Products),
				result.Result.Stats.PagesVisited, result.Result.Stats.CrawlCompleted)
		} else if result.Error != nil {
			utils.Infof("  [%s] 失败: %v", result.Domain, result.Error)
		}
	}
}

// StopDomain 请求停止指定域名的会话
func (r *Runner) StopDomain(domain string) error {
	return r.registry.StopSession(domain)
}

// Live 查询域名的实时快照
func (r *Runner) Live(ctx context.Context, domain string) (*models.LiveSnapshot, error) {
	return r.store.GetLive(ctx, domain, r.registry)
}

// Close 关闭协调器: 停止所有会话并释放存储
func (r *Runner) Close(ctx context.Context) {
	r.registry.Close(ctx)
	if err := r.store.Close(); err != nil {
		utils.Warnf("关闭结果存储失败: %v", err)
	}
}
