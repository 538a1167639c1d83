package crawlers

import (
	"context"
	"errors"
	"time"

	"github.com/ecomseek/ecomseek/internal/config"
)

// 驱动错误类型定义
var (
	// ErrDriverFatal 驱动致命错误: 底层浏览器进程不可用,会话必须终止
	ErrDriverFatal = errors.New("页面驱动致命错误")

	// ErrNavigation 导航错误: 超时或网络失败,仅影响当前页面
	ErrNavigation = errors.New("页面导航失败")
)

// 页面判定谓词名称
const (
	// PredicateHasLazyImages 页面是否包含懒加载图片
	PredicateHasLazyImages = "has_lazy_images"

	// PredicateLooksLikeProduct 页面DOM是否像商品页
	PredicateLooksLikeProduct = "looks_like_product"
)

// PageDriver 页面驱动
// 会话把全部页面操作委托给驱动。每个驱动实例由单个会话独占,
// 会话绝不并发调用同一驱动实例的两个操作。
// 所有阻塞操作必须响应context超时/取消,不允许无限阻塞。
type PageDriver interface {
	// Navigate 导航到指定URL,返回重定向后的最终URL
	// 超时/网络失败返回包裹ErrNavigation的错误;
	// 浏览器进程不可用返回包裹ErrDriverFatal的错误
	Navigate(ctx context.Context, url string) (string, error)

	// ExtractLinks 提取当前页面的所有超链接(绝对URL)
	ExtractLinks(ctx context.Context) ([]string, error)

	// Evaluate 对当前页面执行命名谓词判定
	Evaluate(ctx context.Context, predicate string) (bool, error)

	// ScrollToBottom 滚动到页面底部,最多尝试maxAttempts次
	// 用于触发懒加载内容,尽力而为
	ScrollToBottom(ctx context.Context, maxAttempts int) error

	// ClickIfPresent 依次尝试候选选择器,点击第一个存在的元素
	// 返回是否发生了点击
	ClickIfPresent(ctx context.Context, selectors []string) (bool, error)

	// Close 优雅释放驱动资源(两阶段销毁的第一阶段)
	Close(ctx context.Context) error

	// Kill 强制回收底层资源(两阶段销毁的第二阶段)
	// Close未在限期内完成时由看门狗调用,必须立即返回
	Kill()
}

// DriverFactory 驱动工厂
// 注册表为每个会话创建独立的驱动实例
type DriverFactory func(profile *config.SiteProfile) (PageDriver, error)

// DefaultDriverFactory 根据画像的渲染模式选择驱动实现
// browser -> go-rod浏览器驱动, static -> colly静态驱动
func DefaultDriverFactory(headless bool, navigationTimeout time.Duration) DriverFactory {
	return func(profile *config.SiteProfile) (PageDriver, error) {
		if profile.Render == config.RenderStatic {
			return NewStaticDriver(navigationTimeout), nil
		}
		return NewRodDriver(headless)
	}
}
