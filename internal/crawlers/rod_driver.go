package crawlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/ecomseek/ecomseek/internal/utils"
)

// RodDriver 浏览器页面驱动(使用go-rod)
// 每个实例独占一个浏览器进程和一个标签页,由单个会话持有
type RodDriver struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page

	// 浏览器进程PID,用于强制销毁
	pid int
}

// NewRodDriver 启动浏览器并创建驱动
func NewRodDriver(headless bool) (*RodDriver, error) {
	l := launcher.New().Headless(headless)

	// 允许访问自签名、过期或主机名不匹配的HTTPS站点
	l = l.Set("ignore-certificate-errors")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		browser.MustClose()
		l.Kill()
		return nil, fmt.Errorf("创建标签页失败: %w", err)
	}

	utils.Debugf("浏览器已启动: %s (PID: %d)", controlURL, l.PID())

	return &RodDriver{
		launcher: l,
		browser:  browser,
		page:     page,
		pid:      l.PID(),
	}, nil
}

// recoverFatal 捕获rod内部panic并转换为驱动致命错误
// 浏览器崩溃或连接断开时rod可能panic,必须在驱动边界兜住
func recoverFatal(err *error) {
	if r := recover(); r != nil {
		utils.Errorf("浏览器操作panic: %v", r)
		*err = fmt.Errorf("%w: %v", ErrDriverFatal, r)
	}
}

// Navigate 导航到指定URL,返回重定向后的最终URL
func (d *RodDriver) Navigate(ctx context.Context, url string) (resolved string, err error) {
	defer recoverFatal(&err)

	page := d.page.Context(ctx)
	if navErr := page.Navigate(url); navErr != nil {
		return "", fmt.Errorf("%w [%s]: %v", ErrNavigation, url, navErr)
	}
	if loadErr := page.WaitLoad(); loadErr != nil {
		return "", fmt.Errorf("%w [%s]: 等待页面加载失败: %v", ErrNavigation, url, loadErr)
	}

	info, infoErr := page.Info()
	if infoErr != nil {
		return "", fmt.Errorf("%w: 获取页面信息失败: %v", ErrDriverFatal, infoErr)
	}
	return info.URL, nil
}

// ExtractLinks 执行JavaScript提取当前页面的所有超链接
func (d *RodDriver) ExtractLinks(ctx context.Context) (links []string, err error) {
	defer recoverFatal(&err)

	result, evalErr := d.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS: `() => {
			var linkElements = document.querySelectorAll('a[href]');
			var links = [];
			var seen = {};
			for (var i = 0; i < linkElements.length; i++) {
				var href = linkElements[i].href;
				if (href && (href.indexOf('http://') === 0 || href.indexOf('https://') === 0) && !seen[href]) {
					seen[href] = true;
					links.push(href);
				}
			}
			return links;
		}`,
	})
	if evalErr != nil {
		return nil, fmt.Errorf("执行JavaScript提取链接失败: %w", evalErr)
	}

	links = []string{}
	if result.Value.Arr() != nil {
		for _, item := range result.Value.Arr() {
			if item.Str() != "" {
				links = append(links, item.Str())
			}
		}
	}
	return links, nil
}

// Evaluate 对当前页面执行命名谓词判定
// 未知谓词直接返回false,不视为错误
func (d *RodDriver) Evaluate(ctx context.Context, predicate string) (ok bool, err error) {
	defer recoverFatal(&err)

	js, known := predicateJS[predicate]
	if !known {
		utils.Warnf("未知的页面谓词: %s", predicate)
		return false, nil
	}

	result, evalErr := d.page.Context(ctx).Evaluate(&rod.EvalOptions{JS: js})
	if evalErr != nil {
		return false, fmt.Errorf("执行页面谓词失败 [%s]: %w", predicate, evalErr)
	}
	return result.Value.Bool(), nil
}

// predicateJS 谓词名称到JavaScript实现的映射
var predicateJS = map[string]string{
	PredicateHasLazyImages: `() => {
		var imgs = document.querySelectorAll('img[loading="lazy"], img[data-src], img[data-lazy-src]');
		return imgs.length > 0;
	}`,
	PredicateLooksLikeProduct: `() => {
		var addToCart = document.querySelector(
			'[class*="add-to-cart"], [id*="add-to-cart"], [class*="addToCart"], button[name="add"]');
		var price = document.querySelector('[class*="price"], [itemprop="price"]');
		return addToCart !== null && price !== null;
	}`,
}

// ScrollToBottom 滚动到页面底部,触发懒加载内容
// 每次滚动后短暂等待,页面高度不再增长时提前结束
func (d *RodDriver) ScrollToBottom(ctx context.Context, maxAttempts int) (err error) {
	defer recoverFatal(&err)

	page := d.page.Context(ctx)
	lastHeight := 0.0

	for i := 0; i < maxAttempts; i++ {
		result, evalErr := page.Evaluate(&rod.EvalOptions{
			JS: `() => {
				window.scrollTo(0, document.body.scrollHeight);
				return document.body.scrollHeight;
			}`,
		})
		if evalErr != nil {
			return fmt.Errorf("滚动页面失败: %w", evalErr)
		}

		height := result.Value.Num()
		if height <= lastHeight {
			return nil
		}
		lastHeight = height

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return nil
}

// ClickIfPresent 依次尝试候选选择器,点击第一个存在的元素
func (d *RodDriver) ClickIfPresent(ctx context.Context, selectors []string) (clicked bool, err error) {
	defer recoverFatal(&err)

	page := d.page.Context(ctx)
	for _, selector := range selectors {
		result, evalErr := page.Evaluate(&rod.EvalOptions{
			JS: `(sel) => {
				var el = document.querySelector(sel);
				if (el && !el.disabled) {
					el.click();
					return true;
				}
				return false;
			}`,
			JSArgs: []interface{}{selector},
		})
		if evalErr != nil {
			return false, fmt.Errorf("点击元素失败 [%s]: %w", selector, evalErr)
		}
		if result.Value.Bool() {
			utils.Debugf("点击了元素: %s", selector)
			return true, nil
		}
	}
	return false, nil
}

// Close 优雅关闭浏览器(两阶段销毁的第一阶段)
func (d *RodDriver) Close(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("关闭浏览器panic: %v", r)
			}
		}()
		done <- d.browser.Close()
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("关闭浏览器超时: %w", ctx.Err())
	case err := <-done:
		d.launcher.Cleanup()
		if err != nil && !strings.Contains(err.Error(), "context canceled") {
			return fmt.Errorf("关闭浏览器失败: %w", err)
		}
		utils.Debugf("浏览器已关闭 (PID: %d)", d.pid)
		return nil
	}
}

// Kill 强制杀死浏览器进程树(两阶段销毁的第二阶段)
// 优雅关闭未在限期内完成时由看门狗调用
func (d *RodDriver) Kill() {
	defer func() {
		// launcher.Kill在进程已退出时可能panic,强杀路径不关心
		recover()
	}()

	proc, err := process.NewProcess(int32(d.pid))
	if err == nil {
		// 先杀子进程(渲染进程等),再杀主进程
		if children, childErr := proc.Children(); childErr == nil {
			for _, child := range children {
				_ = child.Kill()
			}
		}
		if killErr := proc.Kill(); killErr != nil {
			utils.Warnf("杀死浏览器进程失败 (PID: %d): %v", d.pid, killErr)
		} else {
			utils.Warnf("已强制杀死浏览器进程 (PID: %d)", d.pid)
		}
	}

	d.launcher.Kill()
	d.launcher.Cleanup()
}
