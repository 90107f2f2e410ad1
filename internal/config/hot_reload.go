package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// HotReloadConfig 热更新配置
type HotReloadConfig struct {
	Enabled      bool          // 是否启用热更新
	CooldownTime time.Duration // 冷却时间，避免频繁更新
}

// DefaultHotReloadConfig 默认热更新配置
func DefaultHotReloadConfig() HotReloadConfig {
	return HotReloadConfig{
		Enabled:      true,
		CooldownTime: 5 * time.Second,
	}
}

// ParameterValidator 参数验证器接口
type ParameterValidator interface {
	Validate(params map[string]interface{}) error
}

// ParameterApplier 参数应用器接口
type ParameterApplier interface {
	ApplyParameters(params map[string]interface{}) error
}

// HotReloader watches the config file via inotify and invokes the reload
// handler on writes, with a cooldown so editors that write multiple times
// do not trigger repeated reloads. Parameter validators gate which runtime
// settings may change without a restart.
type HotReloader struct {
	config        HotReloadConfig
	configPath    string
	watcher       *fsnotify.Watcher
	validators    map[string]ParameterValidator
	appliers      map[string]ParameterApplier
	lastReload    time.Time
	mu            sync.RWMutex
	stopChan      chan struct{}
	doneChan      chan struct{}
	reloadHandler func() error

	// Events, if set, receives watch errors and reload failures.
	Events func(event string, fields map[string]interface{})
}

// NewHotReloader 创建热更新器
func NewHotReloader(configPath string, cfg HotReloadConfig) (*HotReloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &HotReloader{
		config:     cfg,
		configPath: configPath,
		watcher:    watcher,
		validators: make(map[string]ParameterValidator),
		appliers:   make(map[string]ParameterApplier),
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}, nil
}

// RegisterValidator 注册参数验证器
func (h *HotReloader) RegisterValidator(name string, validator ParameterValidator) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.validators[name] = validator
}

// RegisterApplier 注册参数应用器
func (h *HotReloader) RegisterApplier(name string, applier ParameterApplier) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appliers[name] = applier
}

// SetReloadHandler 设置重载处理函数
func (h *HotReloader) SetReloadHandler(handler func() error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reloadHandler = handler
}

// Start 启动热更新监听
func (h *HotReloader) Start(ctx context.Context) error {
	if !h.config.Enabled {
		return nil
	}

	if err := h.watcher.Add(h.configPath); err != nil {
		return fmt.Errorf("failed to watch config file: %w", err)
	}

	go h.watch(ctx)

	return nil
}

// Stop 停止热更新
func (h *HotReloader) Stop() error {
	if !h.config.Enabled {
		if h.watcher != nil {
			return h.watcher.Close()
		}
		return nil
	}

	select {
	case <-h.stopChan:
		// 已经停止
	default:
		close(h.stopChan)
	}

	// 等待 goroutine 结束（带超时）
	select {
	case <-h.doneChan:
	case <-time.After(1 * time.Second):
		// 超时，可能 watch goroutine 没有启动
	}

	if h.watcher != nil {
		return h.watcher.Close()
	}

	return nil
}

// watch 监听文件变化
func (h *HotReloader) watch(ctx context.Context) {
	defer close(h.doneChan)

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopChan:
			return
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}

			// 只处理写入和创建事件
			if event.Op&fsnotify.Write == fsnotify.Write ||
				event.Op&fsnotify.Create == fsnotify.Create {
				h.handleConfigChange()
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.emit("config_watch_error", map[string]interface{}{"error": err.Error()})
		}
	}
}

// handleConfigChange 处理配置变化。reloadHandler 在锁外调用，
// 允许它回调 ApplyParameters。
func (h *HotReloader) handleConfigChange() {
	h.mu.Lock()
	if time.Since(h.lastReload) < h.config.CooldownTime {
		h.mu.Unlock()
		return
	}
	h.lastReload = time.Now()
	handler := h.reloadHandler
	h.mu.Unlock()

	if handler != nil {
		if err := handler(); err != nil {
			h.emit("config_reload_error", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (h *HotReloader) emit(event string, fields map[string]interface{}) {
	if h.Events != nil {
		h.Events(event, fields)
	}
}

// ValidateParameters 验证参数
func (h *HotReloader) ValidateParameters(category string, params map[string]interface{}) error {
	h.mu.RLock()
	validator, ok := h.validators[category]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no validator registered for category: %s", category)
	}

	return validator.Validate(params)
}

// ApplyParameters 应用参数
func (h *HotReloader) ApplyParameters(category string, params map[string]interface{}) error {
	// 先验证
	if err := h.ValidateParameters(category, params); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	h.mu.RLock()
	applier, ok := h.appliers[category]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no applier registered for category: %s", category)
	}

	return applier.ApplyParameters(params)
}

// GetLastReloadTime 获取最后重载时间
func (h *HotReloader) GetLastReloadTime() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastReload
}

// WindowParameterValidator 窗口参数验证器
type WindowParameterValidator struct{}

func (v *WindowParameterValidator) Validate(params map[string]interface{}) error {
	if limit, ok := params["limit"].(int); ok {
		if limit <= 0 || limit > 1000 {
			return fmt.Errorf("limit must be between 1 and 1000, got %d", limit)
		}
	}

	if refresh, ok := params["refresh_seconds"].(int); ok {
		if refresh <= 0 || refresh > 3600 {
			return fmt.Errorf("refresh_seconds must be between 1 and 3600, got %d", refresh)
		}
	}

	return nil
}

// CacheParameterValidator 缓存参数验证器
type CacheParameterValidator struct{}

func (v *CacheParameterValidator) Validate(params map[string]interface{}) error {
	if ttl, ok := params["ttl_seconds"].(int); ok {
		if ttl <= 0 || ttl > 86400 {
			return fmt.Errorf("ttl_seconds must be between 1 and 86400, got %d", ttl)
		}
	}

	return nil
}

// UpstreamParameterValidator 上游限速参数验证器
type UpstreamParameterValidator struct{}

func (v *UpstreamParameterValidator) Validate(params map[string]interface{}) error {
	if rate, ok := params["rest_rate"].(float64); ok {
		if rate <= 0 || rate > 100 {
			return fmt.Errorf("rest_rate must be between 0 and 100, got %f", rate)
		}
	}

	if burst, ok := params["rest_burst"].(int); ok {
		if burst <= 0 || burst > 1000 {
			return fmt.Errorf("rest_burst must be between 1 and 1000, got %d", burst)
		}
	}

	return nil
}
