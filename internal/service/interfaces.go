package service

import (
	"context"
	"time"

	"github.com/yuqie6/NutriMirror/internal/ai"
	"github.com/yuqie6/NutriMirror/internal/repository"
	"github.com/yuqie6/NutriMirror/internal/schema"
)

// 仓储/外部依赖的最小接口集合（ISP）

type FoodRepository interface {
	Create(ctx context.Context, entry *schema.FoodEntry) error
	BatchInsert(ctx context.Context, entries []schema.FoodEntry) error
	GetByDate(ctx context.Context, date string) ([]schema.FoodEntry, error)
	DeleteByID(ctx context.Context, id int64) error
	DailyTotals(ctx context.Context, startDate, endDate string) ([]repository.DailyTotal, error)
	MealTypeAggs(ctx context.Context, startDate, endDate string) ([]repository.MealTypeAgg, error)
	FrequentFoods(ctx context.Context, startDate, endDate string, limit int) ([]repository.FrequentFood, error)
	MealTypesOnDate(ctx context.Context, date string) ([]string, error)
	Count(ctx context.Context) (int64, error)
}

type WeightRepository interface {
	Upsert(ctx context.Context, entry *schema.WeightEntry) error
	GetByDate(ctx context.Context, date string) (*schema.WeightEntry, error)
	History(ctx context.Context) ([]schema.WeightEntry, error)
	HistorySince(ctx context.Context, startDate string) ([]schema.WeightEntry, error)
	LatestBefore(ctx context.Context, date string) (*schema.WeightEntry, error)
	Latest(ctx context.Context) (*schema.WeightEntry, error)
	SaveTrends(ctx context.Context, entries []schema.WeightEntry) error
	DeleteByDate(ctx context.Context, date string) error
	Count(ctx context.Context) (int64, error)
}

type GoalRepository interface {
	Create(ctx context.Context, goal *schema.Goal) error
	Active(ctx context.Context) (*schema.Goal, error)
	History(ctx context.Context, limit int) ([]schema.Goal, error)
}

type ProfileRepository interface {
	Get(ctx context.Context) (*schema.Profile, error)
	Upsert(ctx context.Context, profile *schema.Profile) error
}

type SettingsRepository interface {
	Get(ctx context.Context) (*schema.UserSettings, error)
	Upsert(ctx context.Context, settings *schema.UserSettings) error
}

type AdviceRepository interface {
	Upsert(ctx context.Context, advice *schema.DailyAdvice) error
	GetByDate(ctx context.Context, date string) (*schema.DailyAdvice, error)
	GetFresh(ctx context.Context, date string, maxAge time.Duration) (*schema.DailyAdvice, error)
	GetRecent(ctx context.Context, days int) ([]schema.DailyAdvice, error)
}

type ReportRepository interface {
	Upsert(ctx context.Context, report *schema.WeeklyReport) error
	GetByRange(ctx context.Context, startDate, endDate string, maxAge time.Duration) (*schema.WeeklyReport, error)
	ListRecent(ctx context.Context, limit int) ([]schema.WeeklyReport, error)
}

type Advisor interface {
	GenerateDailyAdvice(ctx context.Context, req *ai.DailyAdviceRequest) (*ai.DailyAdviceResult, error)
	GenerateWeeklyReport(ctx context.Context, req *ai.WeeklyReportRequest) (*ai.WeeklyReportResult, error)
	IsConfigured() bool
}

type Recaller interface {
	Query(ctx context.Context, query string, topK int) ([]MemoryResult, error)
	IndexDailyAdvice(ctx context.Context, advice *schema.DailyAdvice) error
	IndexWeeklyReport(ctx context.Context, report *schema.WeeklyReport) error
}
