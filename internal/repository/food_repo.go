package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yuqie6/NutriMirror/internal/schema"
	"gorm.io/gorm"
)

// FoodRepository 食物记录仓储
type FoodRepository struct {
	db *gorm.DB
}

// NewFoodRepository 创建食物记录仓储
func NewFoodRepository(db *gorm.DB) *FoodRepository {
	return &FoodRepository{db: db}
}

// Create 创建单条食物记录
func (r *FoodRepository) Create(ctx context.Context, entry *schema.FoodEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("写入食物记录失败: %w", err)
	}
	return nil
}

// BatchInsert 批量插入食物记录（事务包裹）
func (r *FoodRepository) BatchInsert(ctx context.Context, entries []schema.FoodEntry) error {
	if len(entries) == 0 {
		return nil
	}

	start := time.Now()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(entries, 100).Error
	})

	if err != nil {
		slog.Error("批量插入食物记录失败", "count", len(entries), "error", err)
		return fmt.Errorf("批量插入食物记录失败: %w", err)
	}

	slog.Debug("批量插入食物记录成功", "count", len(entries), "duration", time.Since(start))
	return nil
}

// GetByDate 按日期查询食物记录（按时间升序）
func (r *FoodRepository) GetByDate(ctx context.Context, date string) ([]schema.FoodEntry, error) {
	var entries []schema.FoodEntry
	err := r.db.WithContext(ctx).
		Where("date = ?", date).
		Order("timestamp ASC").
		Find(&entries).Error

	if err != nil {
		return nil, fmt.Errorf("查询食物记录失败: %w", err)
	}

	return entries, nil
}

// DeleteByID 删除单条食物记录
func (r *FoodRepository) DeleteByID(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&schema.FoodEntry{}, id)
	if result.Error != nil {
		return fmt.Errorf("删除食物记录失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("食物记录不存在: id=%d", id)
	}
	return nil
}

// DailyTotal 单日营养总量
type DailyTotal struct {
	Date        string  `json:"date"`
	Calories    float64 `json:"calories"`
	Protein     float64 `json:"protein"`
	Carbs       float64 `json:"carbs"`
	Fat         float64 `json:"fat"`
	Fiber       float64 `json:"fiber"`
	MealsLogged int     `json:"meals_logged"` // 当日出现的餐次数（去重）
}

// DailyTotals 按日聚合营养总量，[startDate, endDate] 闭区间，按日期升序。
// 热量与宏量在读取侧取整到最近整数。
func (r *FoodRepository) DailyTotals(ctx context.Context, startDate, endDate string) ([]DailyTotal, error) {
	var totals []DailyTotal
	err := r.db.WithContext(ctx).
		Model(&schema.FoodEntry{}).
		Select("date, " +
			"ROUND(SUM(calories)) as calories, " +
			"ROUND(SUM(protein)) as protein, " +
			"ROUND(SUM(carbs)) as carbs, " +
			"ROUND(SUM(fat)) as fat, " +
			"ROUND(SUM(fiber)) as fiber, " +
			"COUNT(DISTINCT meal_type) as meals_logged").
		Where("date >= ? AND date <= ?", startDate, endDate).
		Group("date").
		Order("date ASC").
		Scan(&totals).Error

	if err != nil {
		return nil, fmt.Errorf("查询每日营养总量失败: %w", err)
	}

	return totals, nil
}

// MealTypeAgg 餐次聚合
type MealTypeAgg struct {
	MealType      string  `json:"meal_type"`
	DistinctDays  int     `json:"distinct_days"`  // 出现该餐次的天数
	TotalCalories float64 `json:"total_calories"` // 区间内该餐次总热量
	AvgCalories   float64 `json:"avg_calories"`   // 出现日的平均热量
}

// MealTypeAggs 按餐次聚合，[startDate, endDate] 闭区间。
// avg_calories = 该餐次总热量 / 出现天数（读取侧取整）。
func (r *FoodRepository) MealTypeAggs(ctx context.Context, startDate, endDate string) ([]MealTypeAgg, error) {
	var aggs []MealTypeAgg
	err := r.db.WithContext(ctx).
		Model(&schema.FoodEntry{}).
		Select("meal_type, " +
			"COUNT(DISTINCT date) as distinct_days, " +
			"ROUND(SUM(calories)) as total_calories, " +
			"ROUND(SUM(calories) / COUNT(DISTINCT date)) as avg_calories").
		Where("date >= ? AND date <= ? AND meal_type != ''", startDate, endDate).
		Group("meal_type").
		Order("total_calories DESC").
		Scan(&aggs).Error

	if err != nil {
		return nil, fmt.Errorf("查询餐次统计失败: %w", err)
	}

	return aggs, nil
}

// FrequentFood 高频食物聚合
type FrequentFood struct {
	Name        string  `json:"name"`
	TimesLogged int     `json:"times_logged"`
	AvgCalories float64 `json:"avg_calories"`
}

// FrequentFoods 查询区间内记录次数 >= 2 的高频食物，按次数降序，最多 limit 条。
func (r *FoodRepository) FrequentFoods(ctx context.Context, startDate, endDate string, limit int) ([]FrequentFood, error) {
	if limit <= 0 {
		limit = 10
	}

	var foods []FrequentFood
	err := r.db.WithContext(ctx).
		Model(&schema.FoodEntry{}).
		Select("LOWER(name) as name, COUNT(*) as times_logged, ROUND(AVG(calories)) as avg_calories").
		Where("date >= ? AND date <= ? AND name != ''", startDate, endDate).
		Group("LOWER(name)").
		Having("COUNT(*) >= 2").
		Order("times_logged DESC").
		Limit(limit).
		Scan(&foods).Error

	if err != nil {
		return nil, fmt.Errorf("查询高频食物失败: %w", err)
	}

	return foods, nil
}

// MealTypesOnDate 某日出现的餐次列表（按首次记录时间排序）
func (r *FoodRepository) MealTypesOnDate(ctx context.Context, date string) ([]string, error) {
	var types []string
	err := r.db.WithContext(ctx).
		Model(&schema.FoodEntry{}).
		Select("meal_type").
		Where("date = ? AND meal_type != ''", date).
		Group("meal_type").
		Order("MIN(timestamp) ASC").
		Scan(&types).Error

	if err != nil {
		return nil, fmt.Errorf("查询当日餐次失败: %w", err)
	}

	return types, nil
}

// Count 统计食物记录总数
func (r *FoodRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&schema.FoodEntry{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("统计食物记录失败: %w", err)
	}
	return count, nil
}

// CountLoggedDays 统计有记录的天数
func (r *FoodRepository) CountLoggedDays(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&schema.FoodEntry{}).
		Distinct("date").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("统计记录天数失败: %w", err)
	}
	return count, nil
}

// DeleteOldEntries 删除旧食物记录（保留最近 N 天）
func (r *FoodRepository) DeleteOldEntries(ctx context.Context, retainDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retainDays).Format("2006-01-02")

	result := r.db.WithContext(ctx).
		Where("date < ?", cutoff).
		Delete(&schema.FoodEntry{})

	if result.Error != nil {
		return 0, fmt.Errorf("删除旧食物记录失败: %w", result.Error)
	}

	slog.Info("清理旧食物记录", "deleted", result.RowsAffected, "retain_days", retainDays)
	return result.RowsAffected, nil
}
