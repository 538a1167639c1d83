package crawlers

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/ecomseek/ecomseek/internal/config"
	"github.com/ecomseek/ecomseek/internal/models"
)

// 通用跟踪参数denylist
// utm_前缀单独处理,这里列出精确匹配的参数名
var trackingParams = map[string]bool{
	"ref":      true,
	"source":   true,
	"fbclid":   true,
	"gclid":    true,
	"mc_cid":   true,
	"mc_eid":   true,
	"spm":      true,
	"share_id": true,
}

// 静态资源扩展名,直接排除
var staticAssetExts = []string{
	".css", ".js", ".mjs", ".json", ".xml",
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".webp",
	".woff", ".woff2", ".ttf", ".eot",
	".pdf", ".zip", ".gz", ".mp4", ".mp3", ".avi",
}

var (
	// 通用排除路径: 登录/注册/购物车/结算等功能页,以及站内搜索页
	// 搜索结果页的facet组合是无底洞,必须排除
	genericExcludeRe = regexp.MustCompile(`(?i)/(login|logout|signin|sign-in|signup|sign-up|register|account|my-account|cart|basket|checkout|wishlist|auth|password|customer/account|search)(/|$)`)

	// 通用商品路径正则兜底列表
	genericProductRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)/products?/[^/]+`),
		regexp.MustCompile(`(?i)/item/[^/]+`),
		regexp.MustCompile(`(?i)/p/[^/]+`),
		regexp.MustCompile(`(?i)/dp/[A-Z0-9]+`),
		regexp.MustCompile(`(?i)/sku/[^/]+`),
		regexp.MustCompile(`(?i)-p-\d+`),
		regexp.MustCompile(`(?i)/goods/\d+`),
	}

	// 通用分类路径正则
	genericCategoryRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)/(category|categories|collections?|catalog|shop|c)/[^/]+`),
	}

	// 数字ID启发式: 路径中出现独立的5位以上纯数字段
	numericIDRe = regexp.MustCompile(`/\d{5,}(/|$)`)

	// 数字ID启发式的排除条件: 分类/搜索/列表类路径不适用
	numericIDGuardRe = regexp.MustCompile(`(?i)/(category|categories|collections?|search|list|catalog|page)(/|$)`)
)

// Normalize 规范化URL
// 处理步骤: 丢弃fragment、剔除跟踪参数、折叠重复路径分隔符、去除尾部斜杠。
// 幂等: Normalize(Normalize(u)) == Normalize(u)。
// 解析失败时原样返回(fail-open),由分类阶段判定为Excluded。
func Normalize(rawURL string) string {
	return NormalizeWithProfile(rawURL, nil)
}

// NormalizeWithProfile 规范化URL,追加画像专属的跟踪参数
func NormalizeWithProfile(rawURL string, profile *config.SiteProfile) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}

	parsed.Fragment = ""
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)

	// 剔除跟踪参数,其余参数保留并按key排序(Encode自带排序,保证幂等)
	if parsed.RawQuery != "" {
		query := parsed.Query()
		for key := range query {
			if isTrackingParam(key, profile) {
				query.Del(key)
			}
		}
		parsed.RawQuery = query.Encode()
	}

	// 折叠重复路径分隔符
	for strings.Contains(parsed.Path, "//") {
		parsed.Path = strings.ReplaceAll(parsed.Path, "//", "/")
	}

	// 去除尾部斜杠(根路径除外)
	if len(parsed.Path) > 1 {
		parsed.Path = strings.TrimRight(parsed.Path, "/")
	}

	return parsed.String()
}

// isTrackingParam 判断查询参数是否为跟踪参数
func isTrackingParam(key string, profile *config.SiteProfile) bool {
	lower := strings.ToLower(key)
	if strings.HasPrefix(lower, "utm_") {
		return true
	}
	if trackingParams[lower] {
		return true
	}
	if profile != nil {
		for _, p := range profile.TrackingParams {
			if lower == strings.ToLower(p) {
				return true
			}
		}
	}
	return false
}

// Classify 对URL进行分类
// 规则按顺序评估,首个命中即返回,不做二次评估:
//  1. 画像商品规则(正则 + 数字ID启发式) -> Product
//  2. 画像分类规则 -> Category
//  3. 通用排除规则(静态资源、功能页、非http协议)
//  4. 通用商品正则兜底
//  5. 数字ID启发式(非分类/搜索类路径)
//  6. 默认 Generic
//
// URL解析失败视为Excluded,绝不向调用方抛出
func Classify(rawURL string, profile *config.SiteProfile) models.URLClass {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return models.ClassExcluded
	}
	if parsed.Scheme != "" && parsed.Scheme != "http" && parsed.Scheme != "https" {
		return models.ClassExcluded
	}

	path := parsed.Path
	pathAndQuery := path
	if parsed.RawQuery != "" {
		pathAndQuery = path + "?" + parsed.RawQuery
	}

	// (1) 画像商品规则,命中即短路
	if profile != nil {
		for _, re := range profile.ProductRegexps() {
			if re.MatchString(pathAndQuery) {
				return models.ClassProduct
			}
		}
		if profile.NumericIDProduct && numericIDRe.MatchString(path) {
			return models.ClassProduct
		}

		// (2) 画像分类规则
		for _, re := range profile.CategoryRegexps() {
			if re.MatchString(pathAndQuery) {
				return models.ClassCategory
			}
		}
	}

	// (3) 通用排除规则(已命中Product的URL不会走到这里)
	lowerPath := strings.ToLower(path)
	for _, ext := range staticAssetExts {
		if strings.HasSuffix(lowerPath, ext) {
			return models.ClassExcluded
		}
	}
	if genericExcludeRe.MatchString(path) {
		return models.ClassExcluded
	}

	// (4) 通用商品正则兜底
	for _, re := range genericProductRes {
		if re.MatchString(pathAndQuery) {
			return models.ClassProduct
		}
	}

	// 通用分类正则
	for _, re := range genericCategoryRes {
		if re.MatchString(pathAndQuery) {
			return models.ClassCategory
		}
	}

	// (5) 数字ID启发式,仅在路径不像分类/搜索/列表时应用
	if numericIDRe.MatchString(path) && !numericIDGuardRe.MatchString(path) {
		return models.ClassProduct
	}

	// (6) 默认
	return models.ClassGeneric
}

// IsSameDomain 判断URL是否属于目标域名
// 主机名相等或后缀匹配(x.base同样算),画像排除列表优先生效
func IsSameDomain(rawURL string, base string, profile *config.SiteProfile) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	host := strings.ToLower(parsed.Hostname())
	base = strings.ToLower(strings.TrimSpace(base))
	if host == "" || base == "" {
		return false
	}

	if profile != nil && profile.IsExcludedHost(host) {
		return false
	}

	return host == base || strings.HasSuffix(host, "."+base)
}
