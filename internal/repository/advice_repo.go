package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/yuqie6/NutriMirror/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AdviceRepository 每日建议仓储
type AdviceRepository struct {
	db *gorm.DB
}

// NewAdviceRepository 创建仓储
func NewAdviceRepository(db *gorm.DB) *AdviceRepository {
	return &AdviceRepository{db: db}
}

// Upsert 插入或更新
func (r *AdviceRepository) Upsert(ctx context.Context, advice *schema.DailyAdvice) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}},
		UpdateAll: true,
	}).Create(advice).Error
}

// GetByDate 按日期获取
func (r *AdviceRepository) GetByDate(ctx context.Context, date string) (*schema.DailyAdvice, error) {
	var advice schema.DailyAdvice
	err := r.db.WithContext(ctx).Where("date = ?", date).First(&advice).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("查询每日建议失败: %w", err)
	}
	return &advice, nil
}

// GetFresh 按日期获取，并检查缓存时效
func (r *AdviceRepository) GetFresh(ctx context.Context, date string, maxAge time.Duration) (*schema.DailyAdvice, error) {
	advice, err := r.GetByDate(ctx, date)
	if err != nil || advice == nil {
		return advice, err
	}
	// 缓存过期返回 nil，由调用方触发重新生成
	if time.Since(advice.UpdatedAt) > maxAge {
		return nil, nil
	}
	return advice, nil
}

// GetRecent 获取最近的建议
func (r *AdviceRepository) GetRecent(ctx context.Context, days int) ([]schema.DailyAdvice, error) {
	var advices []schema.DailyAdvice
	err := r.db.WithContext(ctx).
		Order("date DESC").
		Limit(days).
		Find(&advices).Error
	if err != nil {
		return nil, fmt.Errorf("查询每日建议失败: %w", err)
	}
	return advices, nil
}

// AdvicePreview 建议预览（用于历史列表）
type AdvicePreview struct {
	Date    string
	Preview string // 标题前40字
}

// ListAdvicePreviews 获取已生成建议的预览列表
func (r *AdviceRepository) ListAdvicePreviews(ctx context.Context, limit int) ([]AdvicePreview, error) {
	var results []AdvicePreview
	err := r.db.WithContext(ctx).
		Model(&schema.DailyAdvice{}).
		Select("date, SUBSTR(headline, 1, 40) as preview").
		Order("date DESC").
		Limit(limit).
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("查询建议预览失败: %w", err)
	}
	return results, nil
}
