package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ecomseek/ecomseek/internal/models"
)

// ValidateFlags 验证命令行标志
func ValidateFlags(
	targetDomain string,
	maxPages int,
	indefinite bool,
	maxNoNewProductPages int,
	maxConcurrent int64,
) error {
	// 验证域名
	if targetDomain != "" {
		normalized, err := NormalizeDomain(targetDomain)
		if err != nil {
			return fmt.Errorf("无效的目标域名: %w", err)
		}
		if err := models.ValidateDomain(normalized); err != nil {
			return fmt.Errorf("无效的目标域名: %w", err)
		}
	}

	// 验证页面数上限
	if maxPages < 0 {
		return fmt.Errorf("最大页面数不能为负数,当前值: %d", maxPages)
	}

	// 验证无限模式的停滞阈值
	if maxNoNewProductPages < 0 {
		return fmt.Errorf("无新商品页面数上限不能为负数,当前值: %d", maxNoNewProductPages)
	}
	if maxNoNewProductPages > 0 && !indefinite {
		return fmt.Errorf("--max-no-new-product-pages 仅在 --indefinite 模式下生效")
	}

	// 验证并发数
	if maxConcurrent < 0 || maxConcurrent > 100 {
		return fmt.Errorf("并发会话数必须在0-100之间,当前值: %d", maxConcurrent)
	}

	return nil
}

// NormalizeDomain 规范化域名输入
// 容忍用户误传完整URL: 提取host部分
func NormalizeDomain(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("域名不能为空")
	}

	// 带协议的输入按URL解析取host
	if strings.Contains(input, "://") {
		parsed, err := url.Parse(input)
		if err != nil {
			return "", err
		}
		if parsed.Host == "" {
			return "", fmt.Errorf("无法从URL中提取域名: %s", input)
		}
		input = parsed.Host
	}

	// 去除端口之外的路径残留
	if idx := strings.IndexAny(input, "/?#"); idx >= 0 {
		input = input[:idx]
	}

	return strings.ToLower(input), nil
}
