package repository

import (
	"context"
	"fmt"

	"github.com/yuqie6/NutriMirror/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WeightRepository 体重记录仓储
type WeightRepository struct {
	db *gorm.DB
}

// NewWeightRepository 创建体重记录仓储
func NewWeightRepository(db *gorm.DB) *WeightRepository {
	return &WeightRepository{db: db}
}

// Upsert 按日期插入或更新（每个日历日最多一条）。
// 更新原始体重时趋势值一并覆盖，由调用方随后重算。
func (r *WeightRepository) Upsert(ctx context.Context, entry *schema.WeightEntry) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"timestamp", "weight_kg", "trend_kg", "note", "updated_at"}),
	}).Create(entry).Error
	if err != nil {
		return fmt.Errorf("写入体重记录失败: %w", err)
	}
	return nil
}

// GetByDate 按日期获取
func (r *WeightRepository) GetByDate(ctx context.Context, date string) (*schema.WeightEntry, error) {
	var entry schema.WeightEntry
	err := r.db.WithContext(ctx).Where("date = ?", date).First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("查询体重记录失败: %w", err)
	}
	return &entry, nil
}

// History 全部体重记录，按日期升序（平滑计算需要有序输入）
func (r *WeightRepository) History(ctx context.Context) ([]schema.WeightEntry, error) {
	var entries []schema.WeightEntry
	err := r.db.WithContext(ctx).
		Order("date ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("查询体重历史失败: %w", err)
	}
	return entries, nil
}

// HistorySince 某日期起（含）的体重记录，按日期升序
func (r *WeightRepository) HistorySince(ctx context.Context, startDate string) ([]schema.WeightEntry, error) {
	var entries []schema.WeightEntry
	err := r.db.WithContext(ctx).
		Where("date >= ?", startDate).
		Order("date ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("查询体重历史失败: %w", err)
	}
	return entries, nil
}

// LatestBefore 某日期之前（不含）最近一条体重记录，无记录返回 (nil, nil)
func (r *WeightRepository) LatestBefore(ctx context.Context, date string) (*schema.WeightEntry, error) {
	var entry schema.WeightEntry
	err := r.db.WithContext(ctx).
		Where("date < ?", date).
		Order("date DESC").
		First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("查询前序体重失败: %w", err)
	}
	return &entry, nil
}

// Latest 最近一条体重记录，无记录返回 (nil, nil)
func (r *WeightRepository) Latest(ctx context.Context) (*schema.WeightEntry, error) {
	var entry schema.WeightEntry
	err := r.db.WithContext(ctx).Order("date DESC").First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("查询最近体重失败: %w", err)
	}
	return &entry, nil
}

// SaveTrends 批量写回趋势值（单事务，保证重算写入的原子性/单写者约束）
func (r *WeightRepository) SaveTrends(ctx context.Context, entries []schema.WeightEntry) error {
	if len(entries) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range entries {
			e := &entries[i]
			if err := tx.Model(&schema.WeightEntry{}).
				Where("date = ?", e.Date).
				Update("trend_kg", e.TrendKg).Error; err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		return fmt.Errorf("写回体重趋势失败: %w", err)
	}
	return nil
}

// DeleteByDate 删除某日体重记录
func (r *WeightRepository) DeleteByDate(ctx context.Context, date string) error {
	result := r.db.WithContext(ctx).Where("date = ?", date).Delete(&schema.WeightEntry{})
	if result.Error != nil {
		return fmt.Errorf("删除体重记录失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("体重记录不存在: date=%s", date)
	}
	return nil
}

// Count 统计体重记录总数
func (r *WeightRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&schema.WeightEntry{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("统计体重记录失败: %w", err)
	}
	return count, nil
}
