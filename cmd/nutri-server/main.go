package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yuqie6/NutriMirror/internal/bootstrap"
	"github.com/yuqie6/NutriMirror/internal/httpapi"
	"github.com/yuqie6/NutriMirror/internal/pkg/config"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 首次运行：把默认配置写到可执行文件旁，方便用户修改
	cfgPath, cfgErr := config.DefaultConfigPath()
	if cfgErr == nil {
		if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
			_ = config.WriteFile(cfgPath, config.Default())
		}
	}

	rt, err := bootstrap.NewRuntime(ctx, cfgPath)
	if err != nil {
		slog.Error("启动服务失败", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	slog.Info("NutriMirror 启动中...", "name", rt.Cfg.App.Name, "version", rt.Cfg.App.Version)

	server, err := httpapi.Start(ctx, rt, httpapi.Options{ListenAddr: rt.Cfg.Server.ListenAddr})
	if err != nil {
		slog.Error("启动本地 API 失败", "error", err)
		os.Exit(1)
	}
	slog.Info("NutriMirror 已启动", "base_url", server.BaseURL())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	slog.Info("收到系统退出信号，正在关闭...")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = server.Shutdown(shutdownCtx)
	shutdownCancel()
	slog.Info("NutriMirror 已退出")
}
