package crawlers

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceSnapshot 系统资源快照
type ResourceSnapshot struct {
	AvailableMemory   uint64  // 可用内存 (字节)
	MemoryUsedPercent float64 // 内存占用百分比
	CPUPercent        float64 // CPU占用百分比
}

// SampleResources 采样当前系统资源
// 看门狗每轮扫描时记录一次,便于排查停滞会话是否源于资源耗尽
func SampleResources() (*ResourceSnapshot, error) {
	vmStat, err := mem.VirtualMemory()
	if err != nil {
		return nil, fmt.Errorf("获取内存信息失败: %w", err)
	}

	snapshot := &ResourceSnapshot{
		AvailableMemory:   vmStat.Available,
		MemoryUsedPercent: vmStat.UsedPercent,
	}

	// 零间隔读取自上次调用以来的均值,避免阻塞看门狗
	if cpuPercents, err := cpu.Percent(0, false); err == nil && len(cpuPercents) > 0 {
		snapshot.CPUPercent = cpuPercents[0]
	}

	return snapshot, nil
}
