package schema

import "time"

// 体重单位
const (
	UnitKg  = "kg"
	UnitLbs = "lbs"
)

// UserSettings 用户偏好 - 单行（ID=1）
// 宏量目标字段是目标解析的第二回退层（激活目标 -> settings -> 硬编码默认值），0 表示未设置
type UserSettings struct {
	ID             int64     `gorm:"primaryKey" json:"id"`
	WeightUnit     string    `gorm:"size:10;default:lbs" json:"weight_unit"` // kg/lbs，展示用
	TargetCalories float64   `gorm:"default:0" json:"target_calories"`
	TargetProtein  float64   `gorm:"default:0" json:"target_protein"`
	TargetCarbs    float64   `gorm:"default:0" json:"target_carbs"`
	TargetFat      float64   `gorm:"default:0" json:"target_fat"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (UserSettings) TableName() string {
	return "user_settings"
}

// NormalizeWeightUnit 非法或空单位回退到 lbs（产品默认）
func NormalizeWeightUnit(u string) string {
	if u == UnitKg {
		return UnitKg
	}
	return UnitLbs
}

const lbsPerKg = 2.20462

// KgFromLbs 磅转千克
func KgFromLbs(lbs float64) float64 {
	return lbs / lbsPerKg
}

// LbsFromKg 千克转磅
func LbsFromKg(kg float64) float64 {
	return kg * lbsPerKg
}
