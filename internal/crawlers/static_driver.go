package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
	"golang.org/x/net/html"

	"github.com/ecomseek/ecomseek/internal/utils"
)

// StaticDriver 静态页面驱动(使用Colly)
// 适用于服务端渲染的站点,不执行JavaScript。
// ScrollToBottom和ClickIfPresent是no-op: 静态HTML没有可触发的行为。
type StaticDriver struct {
	collector *colly.Collector
	timeout   time.Duration

	// 最近一次Navigate的结果(驱动由单个会话独占,无需加锁)
	resolvedURL string
	lastBody    []byte
	links       []string
}

// NewStaticDriver 创建静态驱动
func NewStaticDriver(timeout time.Duration) *StaticDriver {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	// 跳过证书验证,允许访问自签名、过期或主机名不匹配的HTTPS站点
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true,
			},
		},
		Timeout: timeout,
	}

	// Frontier已做全局去重,禁用Colly的内部访问检查
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	c.SetClient(httpClient)

	d := &StaticDriver{
		collector: c,
		timeout:   timeout,
	}

	// 手动声明压缩支持: 设置了Accept-Encoding后Go不再自动解压,
	// 响应体在OnResponse中按Content-Encoding手动解压(含brotli)
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Encoding", "gzip, deflate, br")
	})

	c.OnResponse(func(r *colly.Response) {
		body, err := decompressBody(r.Body, r.Headers.Get("Content-Encoding"))
		if err != nil {
			utils.Warnf("解压响应体失败 [%s]: %v", r.Request.URL, err)
			body = r.Body
		}
		d.resolvedURL = r.Request.URL.String()
		d.lastBody = body
		d.links = extractLinksFromHTML(body, r.Request.URL)
	})

	return d
}

// decompressBody 按Content-Encoding解压响应体
func decompressBody(body []byte, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
	case "gzip":
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer reader.Close()
		return io.ReadAll(reader)
	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()
		return io.ReadAll(reader)
	default:
		return body, nil
	}
}

// extractLinksFromHTML 从HTML中提取所有<a href>链接,解析为绝对URL
func extractLinksFromHTML(body []byte, base *url.URL) []string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		utils.Warnf("解析HTML失败 [%s]: %v", base, err)
		return nil
	}

	links := make([]string, 0)
	seen := make(map[string]bool)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				linkURL, err := url.Parse(strings.TrimSpace(attr.Val))
				if err != nil {
					continue
				}
				absolute := base.ResolveReference(linkURL).String()
				if !seen[absolute] {
					seen[absolute] = true
					links = append(links, absolute)
				}
				break
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return links
}

// Navigate 抓取指定URL,返回重定向后的最终URL
func (d *StaticDriver) Navigate(ctx context.Context, rawURL string) (string, error) {
	d.resolvedURL = ""
	d.lastBody = nil
	d.links = nil

	// 取消后的缩短超时通过ctx deadline传入
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", fmt.Errorf("%w [%s]: %v", ErrNavigation, rawURL, ctx.Err())
		}
		d.collector.SetRequestTimeout(remaining)
	} else {
		d.collector.SetRequestTimeout(d.timeout)
	}

	if err := d.collector.Visit(rawURL); err != nil {
		return "", fmt.Errorf("%w [%s]: %v", ErrNavigation, rawURL, err)
	}
	d.collector.Wait()

	if d.resolvedURL == "" {
		return "", fmt.Errorf("%w [%s]: 未收到响应", ErrNavigation, rawURL)
	}
	return d.resolvedURL, nil
}

// ExtractLinks 返回最近一次Navigate提取的链接
func (d *StaticDriver) ExtractLinks(ctx context.Context) ([]string, error) {
	return d.links, nil
}

// Evaluate 基于HTML文本的谓词判定(尽力而为)
func (d *StaticDriver) Evaluate(ctx context.Context, predicate string) (bool, error) {
	body := bytes.ToLower(d.lastBody)
	switch predicate {
	case PredicateHasLazyImages:
		return bytes.Contains(body, []byte(`loading="lazy"`)) ||
			bytes.Contains(body, []byte("data-src")), nil
	case PredicateLooksLikeProduct:
		return (bytes.Contains(body, []byte("add-to-cart")) ||
			bytes.Contains(body, []byte("add to cart")) ||
			bytes.Contains(body, []byte("addtocart"))) &&
			bytes.Contains(body, []byte("price")), nil
	default:
		utils.Warnf("未知的页面谓词: %s", predicate)
		return false, nil
	}
}

// ScrollToBottom 静态驱动无法滚动,no-op
func (d *StaticDriver) ScrollToBottom(ctx context.Context, maxAttempts int) error {
	return nil
}

// ClickIfPresent 静态驱动无法点击,no-op
func (d *StaticDriver) ClickIfPresent(ctx context.Context, selectors []string) (bool, error) {
	return false, nil
}

// Close 静态驱动没有需要释放的进程资源
func (d *StaticDriver) Close(ctx context.Context) error {
	return nil
}

// Kill 静态驱动没有需要强杀的进程资源
func (d *StaticDriver) Kill() {}
