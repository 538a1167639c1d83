// Package crawlers 提供电商站点商品URL发现的爬取编排功能
//
// # 概述
//
// crawlers包实现了按域名隔离的爬取会话管理:URL分类、优先级边界队列、
// 会话状态机、心跳看门狗。每个域名对应一个独立的CrawlSession,由Registry
// 统一注册、监控和停止。
//
// # 核心组件
//
// ## Classifier (URL分类器)
//
// 纯函数式的URL规范化与分类。规范化去除追踪参数、fragment和冗余路径成分,
// 保证同一逻辑页面只有一种表示;分类按级联规则将URL判定为商品页、
// 分类页、排除页或普通页。
//
//	normalized, err := Normalize(rawURL)
//	class := Classify(normalized, profile)
//
// ## Frontier (边界队列)
//
// 三级优先级队列(商品 > 分类 > 普通),集成去重:已访问或已入队的URL
// 不会二次入队。容量满时从最低优先级尾部修剪,商品URL永不因容量被拒。
// 归属单个会话goroutine,不加锁。
//
//	frontier := NewFrontier(maxQueueSize)
//	frontier.Push(models.CrawlTask{URL: u, Priority: class.Priority()})
//	task, ok := frontier.Pop()
//	frontier.MarkVisited(task.URL)
//
// ## PageDriver (页面驱动)
//
// 页面获取的统一抽象,两种实现:
//   - RodDriver: 基于go-rod的浏览器渲染驱动,支持懒加载滚动和"加载更多"点击
//   - StaticDriver: 基于Colly的静态HTTP驱动,适合服务端渲染的站点
//
// 驱动的获取方法全部接受context,会话取消后用短超时context收尾,
// 保证停止延迟有界。Close优雅释放,Kill强制销毁(停滞处置路径)。
//
// ## CrawlSession (爬取会话)
//
// 单域名爬取的状态机: created → running → {completed, stopped, failed}。
// 会话循环从边界队列取URL、访问页面、发现商品和新链接,每轮循环开头
// 检查取消标志。心跳goroutine按固定节奏向注册表上报存活。
//
//	sess, err := registry.StartSession(domain, profile, opts)
//	<-sess.Done()
//	result := sess.Result()
//
// ## Registry (会话注册表)
//
// 管理所有并发会话。后台看门狗扫描心跳,缺失超过阈值的会话先请求
// 优雅停止,限期不达再强制终止并销毁浏览器进程。StopAll并发停止全部
// 会话并返回已持久化的结果。
//
//	registry, err := NewRegistry(factory, store, sink, DefaultRegistryOptions())
//	defer registry.Close(ctx)
//
// # 并发模型
//
//   - 每个会话一个worker goroutine + 一个心跳goroutine
//   - Frontier归属worker独占,无锁;会话统计和商品集合由RWMutex保护
//   - Registry的sessions/heartbeats map由互斥锁保护
//   - 会话并发数由semaphore.Weighted限制,超限会话在created状态排队
//   - finalize幂等:worker与看门狗竞争终态时先到者生效
//
// # 停止语义
//
// 取消是协作式的:RequestStop只置位原子标志,会话在下一个检查点
// (循环开头或驱动调用返回后)观察到标志并进入终态。已取消会话的
// 后续驱动调用使用短超时context,停止延迟不超过单次页面操作的限期。
// 无论以何种方式终止,部分结果(已发现的商品、统计)总是被持久化。
package crawlers
