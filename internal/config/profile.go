package config

import (
	"fmt"
	"regexp"
	"strings"
)

// RenderMode 页面渲染方式
type RenderMode string

const (
	// RenderBrowser 使用真实浏览器渲染(go-rod),支持懒加载和"加载更多"
	RenderBrowser RenderMode = "browser"

	// RenderStatic 纯HTTP抓取(colly),适用于服务端渲染的站点
	RenderStatic RenderMode = "static"
)

// SiteProfile 站点画像
// 每个会话创建时按域名查找一次,之后分类器和链接提取逻辑
// 只消费画像数据,不做任何按域名的字符串匹配
type SiteProfile struct {
	// Domain 画像对应的域名
	Domain string `mapstructure:"domain" json:"domain"`

	// StartURLs 爬取入口URL列表,为空时默认 https://{domain}/
	StartURLs []string `mapstructure:"start_urls" json:"start_urls"`

	// ProductPatterns 商品页URL正则列表(匹配即短路为Product)
	ProductPatterns []string `mapstructure:"product_patterns" json:"product_patterns"`

	// CategoryPatterns 分类页URL正则列表
	CategoryPatterns []string `mapstructure:"category_patterns" json:"category_patterns"`

	// NumericIDProduct 启用站点级数字ID商品启发式
	// 路径中出现纯数字段(5位以上)即视为商品页
	NumericIDProduct bool `mapstructure:"numeric_id_product" json:"numeric_id_product"`

	// ExcludedHosts 即使是子域名也要排除的主机列表
	// 例如某站点的 luxury. 子域名走独立体系,不参与爬取
	ExcludedHosts []string `mapstructure:"excluded_hosts" json:"excluded_hosts"`

	// TrackingParams 站点专属的跟踪参数(在通用denylist之外追加)
	TrackingParams []string `mapstructure:"tracking_params" json:"tracking_params"`

	// Render 渲染模式 (browser|static, 默认:browser)
	Render RenderMode `mapstructure:"render" json:"render"`

	// LazyLoadImages 页面是否使用懒加载图片(触发条件滚动)
	LazyLoadImages bool `mapstructure:"lazy_load_images" json:"lazy_load_images"`

	// MaxScrollAttempts 滚动到底部的最大尝试次数 (默认:5)
	MaxScrollAttempts int `mapstructure:"max_scroll_attempts" json:"max_scroll_attempts"`

	// LoadMoreSelectors "加载更多"按钮的候选CSS选择器
	LoadMoreSelectors []string `mapstructure:"load_more_selectors" json:"load_more_selectors"`

	// MaxLoadMoreClicks "加载更多"最大点击次数 (默认:3)
	MaxLoadMoreClicks int `mapstructure:"max_load_more_clicks" json:"max_load_more_clicks"`

	// 编译后的正则(Compile填充)
	productRes  []*regexp.Regexp
	categoryRes []*regexp.Regexp
}

// DefaultProfile 创建通用画像
// 没有站点专属规则时使用,分类完全依赖通用规则
func DefaultProfile(domain string) *SiteProfile {
	p := &SiteProfile{
		Domain:            domain,
		StartURLs:         []string{"https://" + domain + "/"},
		Render:            RenderBrowser,
		MaxScrollAttempts: 5,
		MaxLoadMoreClicks: 3,
	}
	// 空规则集的编译不会失败
	_ = p.Compile()
	return p
}

// Compile 编译画像中的正则并填充默认值
// 必须在画像被分类器消费之前调用一次
func (p *SiteProfile) Compile() error {
	if p.Domain == "" {
		return fmt.Errorf("站点画像缺少域名")
	}
	if len(p.StartURLs) == 0 {
		p.StartURLs = []string{"https://" + p.Domain + "/"}
	}
	if p.Render == "" {
		p.Render = RenderBrowser
	}
	if p.Render != RenderBrowser && p.Render != RenderStatic {
		return fmt.Errorf("无效的渲染模式: %s (有效值: browser, static)", p.Render)
	}
	if p.MaxScrollAttempts <= 0 {
		p.MaxScrollAttempts = 5
	}
	if p.MaxLoadMoreClicks <= 0 {
		p.MaxLoadMoreClicks = 3
	}

	p.productRes = make([]*regexp.Regexp, 0, len(p.ProductPatterns))
	for _, pattern := range p.ProductPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("编译商品正则失败 [%s]: %w", pattern, err)
		}
		p.productRes = append(p.productRes, re)
	}

	p.categoryRes = make([]*regexp.Regexp, 0, len(p.CategoryPatterns))
	for _, pattern := range p.CategoryPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("编译分类正则失败 [%s]: %w", pattern, err)
		}
		p.categoryRes = append(p.categoryRes, re)
	}

	return nil
}

// ProductRegexps 编译后的商品页正则
func (p *SiteProfile) ProductRegexps() []*regexp.Regexp {
	return p.productRes
}

// CategoryRegexps 编译后的分类页正则
func (p *SiteProfile) CategoryRegexps() []*regexp.Regexp {
	return p.categoryRes
}

// IsExcludedHost 检查主机是否在画像的排除列表中
// 精确匹配或后缀匹配(x.excluded 同样排除)
func (p *SiteProfile) IsExcludedHost(host string) bool {
	host = strings.ToLower(host)
	for _, ex := range p.ExcludedHosts {
		ex = strings.ToLower(ex)
		if host == ex || strings.HasSuffix(host, "."+ex) {
			return true
		}
	}
	return false
}
