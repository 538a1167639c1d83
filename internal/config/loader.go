package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

const (
	// DefaultProfilesFile 默认站点画像配置文件路径
	DefaultProfilesFile = "configs/profiles.yaml"

	// MaxProfilesFileSize 配置文件最大大小 (1MB)
	MaxProfilesFileSize = 1 * 1024 * 1024
)

//go:embed profiles_template.yaml
var defaultProfilesTemplate string

// ProfileRegistry 站点画像注册表
// 按域名索引画像,未命中时返回通用画像
type ProfileRegistry struct {
	mu       sync.RWMutex
	profiles map[string]*SiteProfile
}

// NewProfileRegistry 创建空的画像注册表
func NewProfileRegistry() *ProfileRegistry {
	return &ProfileRegistry{
		profiles: make(map[string]*SiteProfile),
	}
}

// Register 注册一个站点画像
// 画像会先被编译,编译失败时不注册
func (r *ProfileRegistry) Register(p *SiteProfile) error {
	if err := p.Compile(); err != nil {
		return fmt.Errorf("注册站点画像失败 [%s]: %w", p.Domain, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[strings.ToLower(p.Domain)] = p
	return nil
}

// Lookup 按域名查找画像
// 未配置的域名返回通用画像(仅通用规则生效)
func (r *ProfileRegistry) Lookup(domain string) *SiteProfile {
	r.mu.RLock()
	p, ok := r.profiles[strings.ToLower(domain)]
	r.mu.RUnlock()
	if ok {
		return p
	}
	return DefaultProfile(domain)
}

// Len 已注册画像数量
func (r *ProfileRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.profiles)
}

// ProfileLoader 画像配置文件加载器
// 负责加载、验证和解析站点画像配置文件
type ProfileLoader struct {
	configPath string
}

// NewProfileLoader 创建画像配置加载器
func NewProfileLoader(configPath string) *ProfileLoader {
	if configPath == "" {
		configPath = DefaultProfilesFile
	}
	return &ProfileLoader{
		configPath: configPath,
	}
}

// EnsureConfigExists 确保配置文件存在,如不存在则自动生成模板
func (pl *ProfileLoader) EnsureConfigExists() error {
	if _, err := os.Stat(pl.configPath); os.IsNotExist(err) {
		dir := filepath.Dir(pl.configPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("无法创建配置目录 [%s]: %w", dir, err)
		}

		if err := os.WriteFile(pl.configPath, []byte(defaultProfilesTemplate), 0644); err != nil {
			return fmt.Errorf("无法生成画像配置文件 [%s]: %w", pl.configPath, err)
		}
	}
	return nil
}

// ValidateFileSize 验证配置文件大小是否在限制内
func (pl *ProfileLoader) ValidateFileSize() error {
	info, err := os.Stat(pl.configPath)
	if err != nil {
		return fmt.Errorf("无法读取画像配置文件信息 [%s]: %w", pl.configPath, err)
	}

	if info.Size() > MaxProfilesFileSize {
		return fmt.Errorf("画像配置文件过大 [%s]: %d 字节 (最大 %d 字节)",
			pl.configPath, info.Size(), MaxProfilesFileSize)
	}

	return nil
}

// Load 加载配置文件并构建画像注册表
func (pl *ProfileLoader) Load() (*ProfileRegistry, error) {
	if err := pl.ValidateFileSize(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(pl.configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取画像配置文件失败 [%s]: %w", pl.configPath, err)
	}

	var raw struct {
		Profiles []*SiteProfile `mapstructure:"profiles"`
	}
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("解析画像配置文件失败 [%s]: %w", pl.configPath, err)
	}

	registry := NewProfileRegistry()
	for _, p := range raw.Profiles {
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}

	return registry, nil
}
