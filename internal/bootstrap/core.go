package bootstrap

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/yuqie6/NutriMirror/internal/ai"
	"github.com/yuqie6/NutriMirror/internal/pkg/config"
	"github.com/yuqie6/NutriMirror/internal/repository"
	"github.com/yuqie6/NutriMirror/internal/service"
)

// Core 持有跨二进制共享的核心依赖
type Core struct {
	Cfg       *config.Config
	DB        *repository.Database
	LogCloser io.Closer

	Repos struct {
		Food     *repository.FoodRepository
		Weight   *repository.WeightRepository
		Goal     *repository.GoalRepository
		Profile  *repository.ProfileRepository
		Settings *repository.SettingsRepository
		Advice   *repository.AdviceRepository
		Report   *repository.ReportRepository
	}

	Services struct {
		Metrics     *service.MetricsService
		WeightTrend *service.WeightTrendService
		Coach       *service.CoachService
		Recall      *service.RecallService
	}

	Clients struct {
		DeepSeek    *ai.DeepSeekClient
		SiliconFlow *ai.SiliconFlowClient
	}
}

// NewCore 构建核心依赖（不启动导入与调度）
func NewCore(cfgPath string) (*Core, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logCloser, _ := config.SetupLogger(config.LoggerOptions{
		Level:     cfg.App.LogLevel,
		Path:      cfg.App.LogPath,
		Component: filepath.Base(os.Args[0]),
	})

	db, err := repository.NewDatabase(cfg.Storage.DBPath)
	if err != nil {
		if logCloser != nil {
			_ = logCloser.Close()
		}
		return nil, err
	}

	c := &Core{Cfg: cfg, DB: db, LogCloser: logCloser}

	// Repos
	c.Repos.Food = repository.NewFoodRepository(db.DB)
	c.Repos.Weight = repository.NewWeightRepository(db.DB)
	c.Repos.Goal = repository.NewGoalRepository(db.DB)
	c.Repos.Profile = repository.NewProfileRepository(db.DB)
	c.Repos.Settings = repository.NewSettingsRepository(db.DB)
	c.Repos.Advice = repository.NewAdviceRepository(db.DB)
	c.Repos.Report = repository.NewReportRepository(db.DB)

	// Clients / Advisor
	c.Clients.DeepSeek = ai.NewDeepSeekClient(&ai.DeepSeekConfig{
		APIKey:  cfg.AI.DeepSeek.APIKey,
		BaseURL: cfg.AI.DeepSeek.BaseURL,
		Model:   cfg.AI.DeepSeek.Model,
	})
	advisor := ai.NewNutritionAdvisor(c.Clients.DeepSeek)

	// Services
	c.Services.Metrics = service.NewMetricsService(
		c.Repos.Food,
		c.Repos.Weight,
		c.Repos.Goal,
		c.Repos.Profile,
		c.Repos.Settings,
	)
	c.Services.WeightTrend = service.NewWeightTrendService(c.Repos.Weight)
	c.Services.Coach = service.NewCoachService(
		c.Services.Metrics,
		advisor,
		c.Repos.Advice,
		c.Repos.Report,
	)
	c.Services.Coach.SetModelName(cfg.AI.DeepSeek.Model)

	// Optional SiliconFlow client：配置后启用历史建议召回
	if cfg.AI.SiliconFlow.APIKey != "" {
		c.Clients.SiliconFlow = ai.NewSiliconFlowClient(&ai.SiliconFlowConfig{
			APIKey:      cfg.AI.SiliconFlow.APIKey,
			BaseURL:     cfg.AI.SiliconFlow.BaseURL,
			EmbedModel:  cfg.AI.SiliconFlow.EmbeddingModel,
			RerankModel: cfg.AI.SiliconFlow.RerankerModel,
		})
		recall, err := service.NewRecallService(c.Clients.SiliconFlow, &service.RecallConfig{
			StoragePath: cfg.Storage.RecallPath,
		})
		if err != nil {
			// 召回属于增强能力，初始化失败不阻塞主链路
			slog.Warn("初始化记忆召回失败", "error", err)
		} else {
			c.Services.Recall = recall
			c.Services.Coach.SetRecaller(recall)
		}
	}

	return c, nil
}

// Close 关闭核心依赖资源
func (c *Core) Close() error {
	if c == nil {
		return nil
	}
	var dbErr error
	if c.DB != nil {
		dbErr = c.DB.Close()
	}
	if c.LogCloser != nil {
		_ = c.LogCloser.Close()
	}
	return dbErr
}

// RequireAIConfigured 检查 AI 是否已配置
func (c *Core) RequireAIConfigured() error {
	if c.Clients.DeepSeek == nil || !c.Clients.DeepSeek.IsConfigured() {
		return fmt.Errorf("DeepSeek API 未配置")
	}
	return nil
}
