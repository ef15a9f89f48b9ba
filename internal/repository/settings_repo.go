package repository

import (
	"context"
	"fmt"

	"github.com/yuqie6/NutriMirror/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingsRepository 用户偏好仓储（单行表）
type SettingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository 创建用户偏好仓储
func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get 读取偏好，未写入过返回 (nil, nil)
func (r *SettingsRepository) Get(ctx context.Context) (*schema.UserSettings, error) {
	var settings schema.UserSettings
	err := r.db.WithContext(ctx).First(&settings, 1).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("查询用户偏好失败: %w", err)
	}
	return &settings, nil
}

// Upsert 写入偏好（固定 ID=1）
func (r *SettingsRepository) Upsert(ctx context.Context, settings *schema.UserSettings) error {
	settings.ID = 1
	settings.WeightUnit = schema.NormalizeWeightUnit(settings.WeightUnit)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(settings).Error
	if err != nil {
		return fmt.Errorf("写入用户偏好失败: %w", err)
	}
	return nil
}
