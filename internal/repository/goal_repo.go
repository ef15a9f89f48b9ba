package repository

import (
	"context"
	"fmt"

	"github.com/yuqie6/NutriMirror/internal/schema"
	"gorm.io/gorm"
)

// GoalRepository 目标仓储
type GoalRepository struct {
	db *gorm.DB
}

// NewGoalRepository 创建目标仓储
func NewGoalRepository(db *gorm.DB) *GoalRepository {
	return &GoalRepository{db: db}
}

// Create 创建新目标并停用旧目标（单事务，保证同一时间只有一条激活）
func (r *GoalRepository) Create(ctx context.Context, goal *schema.Goal) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&schema.Goal{}).
			Where("active = ?", true).
			Update("active", false).Error; err != nil {
			return err
		}
		goal.Active = true
		return tx.Create(goal).Error
	})
	if err != nil {
		return fmt.Errorf("创建目标失败: %w", err)
	}
	return nil
}

// Active 当前激活目标，无激活目标返回 (nil, nil)
func (r *GoalRepository) Active(ctx context.Context) (*schema.Goal, error) {
	var goal schema.Goal
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("created_at DESC").
		First(&goal).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("查询激活目标失败: %w", err)
	}
	return &goal, nil
}

// History 目标历史，按创建时间降序
func (r *GoalRepository) History(ctx context.Context, limit int) ([]schema.Goal, error) {
	if limit <= 0 {
		limit = 20
	}
	var goals []schema.Goal
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&goals).Error
	if err != nil {
		return nil, fmt.Errorf("查询目标历史失败: %w", err)
	}
	return goals, nil
}

// Deactivate 停用当前激活目标
func (r *GoalRepository) Deactivate(ctx context.Context) error {
	err := r.db.WithContext(ctx).Model(&schema.Goal{}).
		Where("active = ?", true).
		Update("active", false).Error
	if err != nil {
		return fmt.Errorf("停用目标失败: %w", err)
	}
	return nil
}
