package repository

import (
	"context"
	"fmt"

	"github.com/yuqie6/NutriMirror/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileRepository 用户档案仓储（单行表）
type ProfileRepository struct {
	db *gorm.DB
}

// NewProfileRepository 创建用户档案仓储
func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Get 读取档案，未填写返回 (nil, nil)
func (r *ProfileRepository) Get(ctx context.Context) (*schema.Profile, error) {
	var profile schema.Profile
	err := r.db.WithContext(ctx).First(&profile, 1).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("查询用户档案失败: %w", err)
	}
	return &profile, nil
}

// Upsert 写入档案（固定 ID=1）
func (r *ProfileRepository) Upsert(ctx context.Context, profile *schema.Profile) error {
	profile.ID = 1
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(profile).Error
	if err != nil {
		return fmt.Errorf("写入用户档案失败: %w", err)
	}
	return nil
}
