package schema

import "time"

// 目标类型
const (
	GoalLose     = "lose"
	GoalMaintain = "maintain"
	GoalGain     = "gain"
)

// ValidGoalType 校验目标类型
func ValidGoalType(t string) bool {
	switch t {
	case GoalLose, GoalMaintain, GoalGain:
		return true
	}
	return false
}

// Goal 营养目标 - 同一时间只有一条处于激活状态
// 数值字段 0 表示未设置，目标解析时向下回退（settings -> 硬编码默认值）
type Goal struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Type           string    `gorm:"size:20;not null" json:"type"` // lose/maintain/gain
	TargetWeightKg float64   `gorm:"default:0" json:"target_weight_kg"`
	WeeklyRateKg   float64   `gorm:"default:0" json:"weekly_rate_kg"` // 期望每周变化（kg，正数）
	TargetCalories float64   `gorm:"default:0" json:"target_calories"`
	TargetProtein  float64   `gorm:"default:0" json:"target_protein"`
	TargetCarbs    float64   `gorm:"default:0" json:"target_carbs"`
	TargetFat      float64   `gorm:"default:0" json:"target_fat"`
	StartDate      string    `gorm:"size:10" json:"start_date"`
	Active         bool      `gorm:"index;default:false" json:"active"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (Goal) TableName() string {
	return "goals"
}
