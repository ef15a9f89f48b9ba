package schema

import "time"

// 活动水平（TDEE 乘数的键）
const (
	ActivitySedentary  = "sedentary"
	ActivityLight      = "light"
	ActivityModerate   = "moderate"
	ActivityActive     = "active"
	ActivityVeryActive = "very_active"
)

// 饮食风格（宏量分配策略的键）
const (
	StyleFlexible    = "flexible"
	StyleBalanced    = "balanced"
	StyleLowCarb     = "low_carb"
	StyleHighProtein = "high_protein"
)

// Profile 用户档案 - 单行（ID=1），可为空表（未填写档案）
type Profile struct {
	ID              int64     `gorm:"primaryKey" json:"id"`
	Sex             string    `gorm:"size:10" json:"sex"` // male/female
	AgeYears        int       `gorm:"default:0" json:"age_years"`
	HeightCm        float64   `gorm:"default:0" json:"height_cm"`
	ActivityLevel   string    `gorm:"size:20" json:"activity_level"`
	EatingStyle     string    `gorm:"size:20" json:"eating_style"`
	ProteinPriority bool      `gorm:"default:false" json:"protein_priority"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (Profile) TableName() string {
	return "profiles"
}
