package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite驱动

	"github.com/ecomseek/ecomseek/internal/models"
	"github.com/ecomseek/ecomseek/internal/utils"
)

// DBFileName 数据库文件名
const DBFileName = "ecomseek.db"

// LiveSource 活跃会话快照来源
// 由注册表实现: 查询运行中会话的实时商品和统计数据
type LiveSource interface {
	Live(domain string) (*models.LiveSnapshot, bool)
}

// Options 存储配置
type Options struct {
	CreateIfNotExists bool // 文件不存在时创建
	EnableWAL         bool // 启用WAL日志模式
}

// DefaultOptions 默认存储配置
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// ResultStore 基于SQLite的爬取结果存储
// 每次会话终止追加一条记录,同一域名多次爬取共存,
// 读取时按时间戳取最新。SQLite单写者,连接池限制为1。
type ResultStore struct {
	db     *sql.DB
	dbPath string
}

// Open 打开或创建结果存储
func Open(dbDir string, opts Options) (*ResultStore, error) {
	dbPath := filepath.Join(dbDir, DBFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("数据库文件不存在: %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("检查数据库路径失败: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}

	// modernc.org/sqlite的DSN格式: mode=rwc允许创建, mode=rw要求已存在
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	// SQLite只支持单写者
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &ResultStore{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("启用WAL模式失败: %w", err)
		}
	}

	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("创建数据表失败: %w", err)
	}

	utils.Debugf("结果存储已打开: %s", dbPath)
	return s, nil
}

// createTables 创建数据表
func (s *ResultStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS crawl_results (
		id          TEXT PRIMARY KEY,
		domain      TEXT NOT NULL,
		products    TEXT NOT NULL,
		total_links INTEGER NOT NULL,
		stats       TEXT NOT NULL,
		created_at  TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_crawl_results_domain
		ON crawl_results(domain, created_at DESC);
	`
	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// Persist 持久化一次爬取结果
// 每次调用插入新记录,不覆盖同域名的历史结果
func (s *ResultStore) Persist(ctx context.Context, result *models.CrawlResult) error {
	if result == nil {
		return fmt.Errorf("爬取结果为空")
	}

	products, err := json.Marshal(result.Products)
	if err != nil {
		return fmt.Errorf("序列化商品列表失败: %w", err)
	}
	stats, err := json.Marshal(result.Stats)
	if err != nil {
		return fmt.Errorf("序列化统计数据失败: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO crawl_results (id, domain, products, total_links, stats, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		result.ID, result.Domain, string(products), result.TotalLinks, string(stats), result.Timestamp)
	if err != nil {
		return fmt.Errorf("写入爬取结果失败: %w", err)
	}

	utils.Infof("💾 结果已持久化 [%s]: %d 个商品", result.Domain, len(result.Products))
	return nil
}

// GetFinal 读取域名最近一次持久化的结果
// 没有记录时返回 (nil, nil)
func (s *ResultStore) GetFinal(ctx context.Context, domain string) (*models.CrawlResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, domain, products, total_links, stats, created_at
		 FROM crawl_results WHERE domain = ?
		 ORDER BY created_at DESC LIMIT 1`, domain)

	var (
		result   models.CrawlResult
		products string
		stats    string
	)
	err := row.Scan(&result.ID, &result.Domain, &products, &result.TotalLinks, &stats, &result.Timestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询爬取结果失败: %w", err)
	}

	if err := json.Unmarshal([]byte(products), &result.Products); err != nil {
		return nil, fmt.Errorf("解析商品列表失败: %w", err)
	}
	if err := json.Unmarshal([]byte(stats), &result.Stats); err != nil {
		return nil, fmt.Errorf("解析统计数据失败: %w", err)
	}
	return &result, nil
}

// GetLive 读取域名的实时快照
// 优先返回活跃会话的内存状态;没有活跃会话时回退到最近的持久化结果
func (s *ResultStore) GetLive(ctx context.Context, domain string, live LiveSource) (*models.LiveSnapshot, error) {
	if live != nil {
		if snapshot, ok := live.Live(domain); ok {
			return snapshot, nil
		}
	}

	result, err := s.GetFinal(ctx, domain)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	return &models.LiveSnapshot{
		Domain:   result.Domain,
		Status:   result.Stats.StatusHint(),
		Products: result.Products,
		Stats:    result.Stats,
	}, nil
}

// CountResults 统计域名的历史结果条数
func (s *ResultStore) CountResults(ctx context.Context, domain string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM crawl_results WHERE domain = ?`, domain).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("统计爬取结果失败: %w", err)
	}
	return count, nil
}

// Close 关闭存储
func (s *ResultStore) Close() error {
	return s.db.Close()
}
