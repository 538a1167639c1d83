package crawlers

import (
	"testing"

	"github.com/ecomseek/ecomseek/internal/config"
	"github.com/ecomseek/ecomseek/internal/models"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"丢弃fragment", "https://shop.example.com/page#section", "https://shop.example.com/page"},
		{"剔除utm参数", "https://shop.example.com/page?utm_source=ad&utm_medium=cpc", "https://shop.example.com/page"},
		{"剔除fbclid", "https://shop.example.com/page?fbclid=abc123", "https://shop.example.com/page"},
		{"保留业务参数", "https://shop.example.com/page?id=42", "https://shop.example.com/page?id=42"},
		{"混合参数只剔除跟踪项", "https://shop.example.com/p?id=42&gclid=xyz", "https://shop.example.com/p?id=42"},
		{"折叠重复斜杠", "https://shop.example.com//a//b", "https://shop.example.com/a/b"},
		{"去除尾部斜杠", "https://shop.example.com/products/", "https://shop.example.com/products"},
		{"根路径斜杠保留", "https://shop.example.com/", "https://shop.example.com/"},
		{"主机名小写", "https://Shop.Example.COM/Page", "https://shop.example.com/Page"},
		{"全部步骤组合", "HTTPS://Shop.Example.com//products//x/?utm_campaign=s#top", "https://shop.example.com/products/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.url)
			if got != tt.want {
				t.Errorf("Normalize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	urls := []string{
		"https://shop.example.com//a/b/?utm_source=x&id=1#frag",
		"https://shop.example.com/products/widget-123/",
		"https://shop.example.com/?ref=home",
	}

	for _, url := range urls {
		once := Normalize(url)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("规范化不幂等: Normalize(%q) = %q, 再次规范化 = %q", url, once, twice)
		}
	}
}

func TestNormalize_Malformed(t *testing.T) {
	// 解析失败的输入原样返回,不panic
	malformed := "http://[::1:bad"
	got := Normalize(malformed)
	if got != malformed {
		t.Errorf("畸形URL应原样返回,got %q", got)
	}
}

func TestClassify_GenericRules(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want models.URLClass
	}{
		{"商品路径products", "https://shop.example.com/products/blue-widget", models.ClassProduct},
		{"商品路径item", "https://shop.example.com/item/12345", models.ClassProduct},
		{"商品路径dp", "https://shop.example.com/dp/B08N5WRWNW", models.ClassProduct},
		{"商品路径-p-数字", "https://shop.example.com/blue-widget-p-9981", models.ClassProduct},
		{"分类路径category", "https://shop.example.com/category/shoes", models.ClassCategory},
		{"分类路径collections", "https://shop.example.com/collections/summer", models.ClassCategory},
		{"登录页排除", "https://shop.example.com/login", models.ClassExcluded},
		{"购物车排除", "https://shop.example.com/cart", models.ClassExcluded},
		{"结算页排除", "https://shop.example.com/checkout/step1", models.ClassExcluded},
		{"搜索页排除", "https://shop.example.com/search?q=shoes", models.ClassExcluded},
		{"搜索结果子路径排除", "https://shop.example.com/search/results", models.ClassExcluded},
		{"search作为词缀不排除", "https://shop.example.com/research", models.ClassGeneric},
		{"静态资源排除", "https://shop.example.com/assets/main.css", models.ClassExcluded},
		{"图片排除", "https://shop.example.com/img/banner.png", models.ClassExcluded},
		{"mailto排除", "mailto:help@example.com", models.ClassExcluded},
		{"javascript伪协议排除", "javascript:void(0)", models.ClassExcluded},
		{"数字ID启发式", "https://shop.example.com/goods/1234567", models.ClassProduct},
		{"独立长数字段", "https://shop.example.com/99887766", models.ClassProduct},
		{"分类路径下的长数字不算商品", "https://shop.example.com/category/1234567", models.ClassCategory},
		{"普通页面", "https://shop.example.com/about", models.ClassGeneric},
		{"首页", "https://shop.example.com/", models.ClassGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.url, nil)
			if got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestClassify_ProfileRules(t *testing.T) {
	profile := &config.SiteProfile{
		Domain:           "shop.example.com",
		ProductPatterns:  []string{`^/artikel/[a-z0-9-]+$`},
		CategoryPatterns: []string{`^/sortiment/`},
		NumericIDProduct: true,
	}
	if err := profile.Compile(); err != nil {
		t.Fatalf("编译画像失败: %v", err)
	}

	tests := []struct {
		name string
		url  string
		want models.URLClass
	}{
		{"画像商品规则", "https://shop.example.com/artikel/blauer-stuhl", models.ClassProduct},
		{"画像分类规则", "https://shop.example.com/sortiment/moebel", models.ClassCategory},
		{"画像数字ID启发式", "https://shop.example.com/x/123456", models.ClassProduct},
		{"画像商品规则优先于通用排除", "https://shop.example.com/artikel/login", models.ClassProduct},
		{"未命中画像回退通用规则", "https://shop.example.com/products/widget", models.ClassProduct},
		{"未命中任何规则", "https://shop.example.com/impressum", models.ClassGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.url, profile)
			if got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestClassify_NoSecondPass(t *testing.T) {
	// 首个命中规则即短路: 画像判定为商品的URL不再被通用排除规则覆盖
	profile := &config.SiteProfile{
		Domain:          "shop.example.com",
		ProductPatterns: []string{`/cart-accessories/`},
	}
	if err := profile.Compile(); err != nil {
		t.Fatalf("编译画像失败: %v", err)
	}

	got := Classify("https://shop.example.com/cart-accessories/holder-x", profile)
	if got != models.ClassProduct {
		t.Errorf("期望画像规则短路返回Product, got %v", got)
	}
}

func TestIsSameDomain(t *testing.T) {
	profile := &config.SiteProfile{
		Domain:        "shop.example.com",
		ExcludedHosts: []string{"cdn.shop.example.com", ".tracker.net"},
	}
	if err := profile.Compile(); err != nil {
		t.Fatalf("编译画像失败: %v", err)
	}

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"完全一致", "https://shop.example.com/page", true},
		{"子域名", "https://m.shop.example.com/page", true},
		{"外部域名", "https://other.example.net/page", false},
		{"后缀混淆不算同域", "https://evilshop.example.com.attacker.io/x", false},
		{"排除的CDN主机", "https://cdn.shop.example.com/asset", false},
		{"空主机", "/relative/path", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsSameDomain(tt.url, "shop.example.com", profile)
			if got != tt.want {
				t.Errorf("IsSameDomain(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}
