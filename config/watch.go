package config

import (
	"os"
	"path/filepath"

	"MiniMixLab/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
)

// Watch 监听 .env 文件变更，变更后重新加载配置并通知回调。
// 目前只有日志级别和轮询间隔这类运行时可调的项会生效，
// 数据库/Redis 等连接类配置仍需重启。
// 返回停止监听的函数。
func Watch(onReload func(*Config)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	envPath, err := filepath.Abs(".env")
	if err != nil {
		watcher.Close()
		return nil, err
	}

	// fsnotify 监听目录比监听单个文件可靠（编辑器常用 rename+create 保存）
	if err := watcher.Add(filepath.Dir(envPath)); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != envPath {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}

				logger.Info("检测到 .env 变更，重新加载配置", logger.String("file", event.Name))

				// 清掉旧值，避免 godotenv 不覆盖已有环境变量
				clearDotenvKeys(envPath)
				cfg := Load()
				logger.SetLevel(logger.LogLevel(cfg.LogLevel))
				if onReload != nil {
					onReload(cfg)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("配置文件监听出错", logger.ErrorField(err))

			case <-done:
				watcher.Close()
				return
			}
		}
	}()

	stop := func() { close(done) }
	return stop, nil
}

// clearDotenvKeys 读取 .env 中声明的键并从进程环境中清除，
// 这样 Load 才能拿到文件里的新值。
func clearDotenvKeys(envPath string) {
	envMap, err := readDotenv(envPath)
	if err != nil {
		return
	}
	for key := range envMap {
		os.Unsetenv(key)
	}
}

func readDotenv(envPath string) (map[string]string, error) {
	f, err := os.Open(envPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return godotenv.Parse(f)
}
