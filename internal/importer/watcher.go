package importer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DropWatcherConfig 投递目录监听配置
type DropWatcherConfig struct {
	Dir         string // 监听的投递目录，不存在时自动创建
	BufferSize  int    // 文件通道缓冲大小
	DebounceSec int    // 同一文件的去抖窗口（秒）
}

// DefaultDropWatcherConfig 返回默认配置
func DefaultDropWatcherConfig(dir string) *DropWatcherConfig {
	return &DropWatcherConfig{
		Dir:         dir,
		BufferSize:  64,
		DebounceSec: 2,
	}
}

// DropWatcher 监听投递目录中新出现的 CSV 文件。
// 只看目录本层，不递归；导入完成后文件会被改名为 *.imported，
// 扩展名过滤天然跳过这些已处理文件。
type DropWatcher struct {
	watcher     *fsnotify.Watcher
	config      *DropWatcherConfig
	fileChan    chan string
	stopChan    chan struct{}
	running     bool
	mu          sync.Mutex
	stopOnce    sync.Once
	debounceMap map[string]time.Time
	debounceDur time.Duration
}

// NewDropWatcher 创建投递目录监听器
func NewDropWatcher(config *DropWatcherConfig) *DropWatcher {
	if config == nil {
		config = DefaultDropWatcherConfig("drop")
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 64
	}
	if config.DebounceSec <= 0 {
		config.DebounceSec = 2
	}
	return &DropWatcher{
		config:      config,
		fileChan:    make(chan string, config.BufferSize),
		stopChan:    make(chan struct{}),
		debounceMap: make(map[string]time.Time),
		debounceDur: time.Duration(config.DebounceSec) * time.Second,
	}
}

// Start 启动监听
func (w *DropWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("投递目录监听已在运行")
	}

	if err := os.MkdirAll(w.config.Dir, 0755); err != nil {
		return fmt.Errorf("创建投递目录失败: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听器失败: %w", err)
	}
	if err := watcher.Add(w.config.Dir); err != nil {
		watcher.Close()
		return fmt.Errorf("监听投递目录失败: %w", err)
	}

	w.watcher = watcher
	w.running = true
	go w.watchLoop(ctx)

	slog.Info("投递目录监听已启动", "dir", w.config.Dir)
	return nil
}

// Stop 停止监听并关闭文件通道
func (w *DropWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false

	w.stopOnce.Do(func() {
		close(w.stopChan)
	})
	if w.watcher != nil {
		w.watcher.Close()
	}
	slog.Info("投递目录监听已停止")
	return nil
}

// Files 返回待导入文件路径通道
func (w *DropWatcher) Files() <-chan string {
	return w.fileChan
}

func (w *DropWatcher) watchLoop(ctx context.Context) {
	defer close(w.fileChan)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("文件监听出错", "error", err)
		}
	}
}

// handleFsEvent 过滤并投递文件事件。
// mv 进目录只产生 Create，编辑器落盘产生 Write，两者都要接。
func (w *DropWatcher) handleFsEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if strings.ToLower(filepath.Ext(event.Name)) != ".csv" {
		return
	}

	// 去抖：写入大文件会触发一串 Write，窗口内只投递首个
	now := time.Now()
	if last, ok := w.debounceMap[event.Name]; ok && now.Sub(last) < w.debounceDur {
		return
	}
	w.debounceMap[event.Name] = now

	select {
	case w.fileChan <- event.Name:
	default:
		slog.Warn("导入队列缓冲区已满，丢弃文件事件", "file", event.Name)
	}
}
