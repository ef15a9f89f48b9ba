package bootstrap

import (
	"context"
	"log/slog"
	"time"

	"github.com/yuqie6/NutriMirror/internal/eventbus"
	"github.com/yuqie6/NutriMirror/internal/importer"
	"github.com/yuqie6/NutriMirror/internal/repository"
)

// Runtime 包含服务端二进制需要启动的导入与后台任务
type Runtime struct {
	*Core
	Hub *eventbus.Hub

	Importer struct {
		Watcher *importer.DropWatcher
		Ingest  *importer.IngestService
	}

	// 仅调度 goroutine 访问
	lastAutoDate string
}

// NewRuntime 构建服务端运行时并启动后台任务
func NewRuntime(ctx context.Context, cfgPath string) (*Runtime, error) {
	core, err := NewCore(cfgPath)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Core: core, Hub: eventbus.NewHub()}

	if core.DB != nil && core.DB.SafeMode {
		// 安全模式：只读接口仍可用，但不启动任何写库链路（导入/调度）。
		// 具体原因由 /api/status 展示，避免“沉默失败”。
		return rt, nil
	}

	// Coach 生成事件接入总线
	core.Services.Coach.SetOnAdviceGenerated(func(date string) {
		rt.Hub.Publish(eventbus.Event{
			Type: "advice.generated",
			Data: map[string]any{"date": date},
		})
	})
	core.Services.Coach.SetOnReportGenerated(func(startDate, endDate string) {
		rt.Hub.Publish(eventbus.Event{
			Type: "report.generated",
			Data: map[string]any{"start_date": startDate, "end_date": endDate},
		})
	})

	// CSV 投递目录导入（optional）
	if core.Cfg.Import.Enabled {
		watcher := importer.NewDropWatcher(&importer.DropWatcherConfig{
			Dir:         core.Cfg.Import.Dir,
			BufferSize:  core.Cfg.Import.BufferSize,
			DebounceSec: core.Cfg.Import.DebounceSec,
		})
		ingest := importer.NewIngestService(
			core.Repos.Food,
			core.Repos.Weight,
			core.Services.WeightTrend,
			watcher,
		)
		ingest.SetOnImported(func(res *importer.ImportResult) {
			rt.Hub.Publish(eventbus.Event{
				Type: "import.completed",
				Data: map[string]any{
					"file":     res.File,
					"kind":     res.Kind,
					"imported": res.Imported,
					"skipped":  res.Skipped,
				},
			})
		})
		if err := ingest.Start(ctx); err != nil {
			rt.Close()
			return nil, err
		}
		rt.Importer.Watcher = watcher
		rt.Importer.Ingest = ingest
	}

	// 每日建议自动生成（optional，整点检查）
	if core.Cfg.Advice.AutoDaily && core.Clients.DeepSeek != nil && core.Clients.DeepSeek.IsConfigured() {
		go runPeriodic(ctx, time.Hour, func() { rt.autoAdviceTick(ctx) })
	}

	// 数据保留清理（optional）
	if core.Cfg.Storage.RetentionDays > 0 {
		go runPeriodic(ctx, 24*time.Hour, func() { rt.sweepRetention(ctx) })
	}

	return rt, nil
}

// Close 关闭运行时资源
func (rt *Runtime) Close() error {
	if rt == nil {
		return nil
	}
	if rt.Importer.Ingest != nil {
		_ = rt.Importer.Ingest.Stop()
	}
	return rt.Core.Close()
}

// autoAdviceTick 到达配置时点后为当天生成一次建议。
// 生成失败不记为已完成，下个整点重试。
func (rt *Runtime) autoAdviceTick(ctx context.Context) {
	if time.Now().Hour() < rt.Cfg.Advice.DailyHour {
		return
	}
	today := repository.Today()
	if rt.lastAutoDate == today {
		return
	}

	if _, err := rt.Services.Coach.GetDailyAdvice(ctx, today, false); err != nil {
		slog.Warn("自动生成每日建议失败", "date", today, "error", err)
		return
	}
	rt.lastAutoDate = today
}

// sweepRetention 按保留天数清理过期食物记录
func (rt *Runtime) sweepRetention(ctx context.Context) {
	retainDays := rt.Cfg.Storage.RetentionDays
	deleted, err := rt.Repos.Food.DeleteOldEntries(ctx, retainDays)
	if err != nil {
		slog.Warn("清理过期食物记录失败", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("过期食物记录已清理", "deleted", deleted, "retain_days", retainDays)
	}
}

// runPeriodic 定时执行函数
func runPeriodic(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fn()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
