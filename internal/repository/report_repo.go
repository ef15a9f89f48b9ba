package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/yuqie6/NutriMirror/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReportRepository 周报仓储
type ReportRepository struct {
	db *gorm.DB
}

// NewReportRepository 创建仓储
func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Upsert 插入或更新
func (r *ReportRepository) Upsert(ctx context.Context, report *schema.WeeklyReport) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "start_date"}, {Name: "end_date"}},
		UpdateAll: true,
	}).Create(report).Error
}

// GetByRange 按日期范围获取（带缓存时效检查）
func (r *ReportRepository) GetByRange(ctx context.Context, startDate, endDate string, maxAge time.Duration) (*schema.WeeklyReport, error) {
	var report schema.WeeklyReport
	err := r.db.WithContext(ctx).
		Where("start_date = ? AND end_date = ?", startDate, endDate).
		First(&report).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("查询周报失败: %w", err)
	}

	// 检查缓存是否过期（maxAge <= 0 表示不做时效检查）
	if maxAge > 0 && time.Since(report.UpdatedAt) > maxAge {
		return nil, nil // 过期，返回 nil 触发重新生成
	}

	return &report, nil
}

// ListRecent 获取历史周报（按开始日期倒序）
func (r *ReportRepository) ListRecent(ctx context.Context, limit int) ([]schema.WeeklyReport, error) {
	var reports []schema.WeeklyReport
	err := r.db.WithContext(ctx).
		Order("start_date DESC").
		Limit(limit).
		Find(&reports).Error
	if err != nil {
		return nil, fmt.Errorf("查询历史周报失败: %w", err)
	}
	return reports, nil
}
