package models

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// ValidateURL 验证URL
func ValidateURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("无效的URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL必须是HTTP或HTTPS协议")
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL必须包含主机名")
	}
	return nil
}

// ValidateDomain 验证域名格式
// 域名不应包含协议、路径或端口以外的内容
func ValidateDomain(domain string) error {
	if domain == "" {
		return fmt.Errorf("域名不能为空")
	}
	if strings.Contains(domain, "://") {
		return fmt.Errorf("域名不应包含协议: %s", domain)
	}
	if strings.ContainsAny(domain, "/?#") {
		return fmt.Errorf("域名不应包含路径或查询参数: %s", domain)
	}
	return nil
}

// NewID 生成唯一ID
func NewID() string {
	return uuid.New().String()
}
