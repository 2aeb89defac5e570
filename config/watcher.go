package config

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeFunc 在配置变更并通过校验后被调用。
type ChangeFunc func(old, new *Config)

// Watcher 监视配置文件并在变更时热加载。
// 典型用法是把回调接到限流器的 SetQPS 上，让运行中的宿主
// 无需重启即可调整出站速率。解析或校验失败的变更被忽略，
// 当前配置保持不变。
type Watcher struct {
	// path 被监视的配置文件路径
	path string
	// fsw 文件系统监视器
	fsw *fsnotify.Watcher

	// mu 保护 current 和 callbacks 的并发访问
	mu sync.RWMutex
	// current 当前生效的配置
	current *Config
	// callbacks 变更回调列表
	callbacks []ChangeFunc

	// ctx 控制监视循环的生命周期
	ctx    context.Context
	cancel context.CancelFunc
	// wg 等待监视循环退出
	wg sync.WaitGroup
}

// NewWatcher 创建配置监视器并加载初始配置。
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		path:    path,
		fsw:     fsw,
		current: cfg,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Current 返回当前生效的配置。
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	cfg := w.current
	w.mu.RUnlock()
	return cfg
}

// OnChange 注册一个配置变更回调。
func (w *Watcher) OnChange(fn ChangeFunc) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, fn)
	w.mu.Unlock()
}

// Start 开始监视配置文件。
func (w *Watcher) Start() error {
	if err := w.fsw.Add(w.path); err != nil {
		return err
	}
	w.wg.Add(1)
	go w.watchLoop()
	return nil
}

// Stop 停止监视并等待监视循环退出。可以安全地多次调用。
func (w *Watcher) Stop() error {
	w.cancel()
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

// watchLoop 消费文件系统事件，对写入事件做去抖后重新加载。
func (w *Watcher) watchLoop() {
	defer w.wg.Done()
	var debounce *time.Timer
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// 编辑器保存往往产生多个事件，合并为一次重载
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, w.reload)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("config watch error path=%s err=%v", w.path, err)
		}
	}
}

// reload 重新加载配置，成功时替换当前配置并通知回调。
func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		log.Printf("config reload rejected path=%s err=%v", w.path, err)
		return
	}
	w.mu.Lock()
	old := w.current
	w.current = cfg
	cbs := append([]ChangeFunc{}, w.callbacks...)
	w.mu.Unlock()
	for _, fn := range cbs {
		fn(old, cfg)
	}
}
