package configwatcher

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"skillset_backend/internal/config"
	"skillset_backend/pkg/logger"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Reloader 接收重新加载后的完整配置
type Reloader func(cfg *config.Config)

const debounce = time.Second

// Watch 监听配置目录下的 config.yaml，写入后防抖 1s 重新加载；ctx 取消时退出
func Watch(ctx context.Context, configDir string, reload Reloader) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}

	absDir, err := filepath.Abs(configDir)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("resolve config dir: %w", err)
	}
	// 监听目录而非文件，编辑器"写临时文件再改名"的保存方式也能收到事件
	if err := watcher.Add(absDir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}

	go loop(ctx, watcher, configDir, filepath.Join(absDir, "config.yaml"), reload)
	return nil
}

func loop(ctx context.Context, watcher *fsnotify.Watcher, configDir, target string, reload Reloader) {
	defer watcher.Close()

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				timer.Reset(debounce)
			}
		case <-timer.C:
			newCfg, err := config.LoadConfig(configDir)
			if err != nil {
				logger.Log.Error("Failed to reload config", zap.Error(err))
				continue
			}
			logger.Log.Info("Config reloaded", zap.String("dir", configDir))
			reload(newCfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Log.Error("Config watcher error", zap.Error(err))
		}
	}
}
