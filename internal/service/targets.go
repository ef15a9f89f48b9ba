package service

import (
	"math"

	"github.com/yuqie6/NutriMirror/internal/schema"
)

// 每日目标兜底值（无目标且资料不全时使用），经验值，待产品评审
const (
	DefaultTargetCalories = 2000.0
	DefaultTargetProtein  = 150.0
	DefaultTargetCarbs    = 200.0
	DefaultTargetFat      = 65.0
)

// 目标热量调整（kcal/日），经验值，待产品评审
const (
	loseCalorieDelta = -500.0
	gainCalorieDelta = 300.0
	calorieFloor     = 1200.0
)

// 蛋白质优先时的加量（g/kg），经验值，待产品评审
const proteinPriorityBump = 0.2

// 宏量营养素热量密度（kcal/g）
const (
	kcalPerGramProtein = 4.0
	kcalPerGramCarbs   = 4.0
	kcalPerGramFat     = 9.0
)

// clamp 将数值限制在指定范围内
func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// MacroTargets 解析后的每日营养目标
type MacroTargets struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
	Source   string  `json:"source"` // goal, settings, default
}

// ResolveTargets 按 目标 > 用户偏好 > 兜底值 的顺序逐项解析每日目标。
// 字段值为 0 视为未设置，落到下一层。永不返回零值目标。
func ResolveTargets(goal *schema.Goal, settings *schema.UserSettings) MacroTargets {
	targets := MacroTargets{
		Calories: DefaultTargetCalories,
		Protein:  DefaultTargetProtein,
		Carbs:    DefaultTargetCarbs,
		Fat:      DefaultTargetFat,
		Source:   "default",
	}

	if settings != nil {
		if settings.TargetCalories > 0 {
			targets.Calories = settings.TargetCalories
			targets.Source = "settings"
		}
		if settings.TargetProtein > 0 {
			targets.Protein = settings.TargetProtein
			targets.Source = "settings"
		}
		if settings.TargetCarbs > 0 {
			targets.Carbs = settings.TargetCarbs
			targets.Source = "settings"
		}
		if settings.TargetFat > 0 {
			targets.Fat = settings.TargetFat
			targets.Source = "settings"
		}
	}

	if goal != nil {
		if goal.TargetCalories > 0 {
			targets.Calories = goal.TargetCalories
			targets.Source = "goal"
		}
		if goal.TargetProtein > 0 {
			targets.Protein = goal.TargetProtein
			targets.Source = "goal"
		}
		if goal.TargetCarbs > 0 {
			targets.Carbs = goal.TargetCarbs
			targets.Source = "goal"
		}
		if goal.TargetFat > 0 {
			targets.Fat = goal.TargetFat
			targets.Source = "goal"
		}
	}

	return targets
}

// CalcBMR 基础代谢率（Mifflin-St Jeor）。
// 男性: 10·kg + 6.25·cm − 5·age + 5；女性: 10·kg + 6.25·cm − 5·age − 161。
func CalcBMR(sex string, ageYears int, heightCm, weightKg float64) float64 {
	base := 10*weightKg + 6.25*heightCm - 5*float64(ageYears)
	if sex == "female" {
		return base - 161
	}
	return base + 5
}

// ActivityFactor 活动系数，未知等级按 moderate 处理
func ActivityFactor(level string) float64 {
	switch level {
	case schema.ActivitySedentary:
		return 1.2
	case schema.ActivityLight:
		return 1.375
	case schema.ActivityModerate:
		return 1.55
	case schema.ActivityActive:
		return 1.725
	case schema.ActivityVeryActive:
		return 1.9
	default:
		return 1.55
	}
}

// CalcTDEE 每日总能量消耗，保留 1 位小数
func CalcTDEE(bmr float64, activityLevel string) float64 {
	return math.Round(bmr*ActivityFactor(activityLevel)*10) / 10
}

// macroStyle 宏量分配风格：蛋白质克数按体重配给，剩余热量按比例分给碳水
type macroStyle struct {
	proteinPerKg float64 // g/kg
	carbFraction float64 // 剩余热量中碳水占比
}

var macroStyles = map[string]macroStyle{
	schema.StyleFlexible:    {proteinPerKg: 1.65, carbFraction: 0.50},
	schema.StyleBalanced:    {proteinPerKg: 1.60, carbFraction: 0.55},
	schema.StyleLowCarb:     {proteinPerKg: 1.80, carbFraction: 0.30},
	schema.StyleHighProtein: {proteinPerKg: 2.00, carbFraction: 0.45},
}

// SplitMacros 把目标热量拆成三大营养素克数。
// 蛋白质按体重配给后取整；剩余热量按风格比例分给碳水，其余归脂肪，各自取整。
func SplitMacros(calories, weightKg float64, style string, proteinPriority bool) (proteinG, carbsG, fatG float64) {
	s, ok := macroStyles[style]
	if !ok {
		s = macroStyles[schema.StyleFlexible]
	}

	perKg := s.proteinPerKg
	if proteinPriority {
		perKg += proteinPriorityBump
	}

	proteinG = math.Round(weightKg * perKg)
	remaining := calories - proteinG*kcalPerGramProtein
	if remaining < 0 {
		remaining = 0
	}
	carbsKcal := remaining * s.carbFraction
	carbsG = math.Round(carbsKcal / kcalPerGramCarbs)
	fatG = math.Round((remaining - carbsKcal) / kcalPerGramFat)
	return proteinG, carbsG, fatG
}

// TargetSuggestion 根据身体档案推算的目标建议
type TargetSuggestion struct {
	BMR      float64 `json:"bmr"`
	TDEE     float64 `json:"tdee"`
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

// SuggestTargets 由档案 + 最新体重 + 目标类型推算每日目标。
// 档案缺失（身高/年龄/体重任一为 0）时返回 nil。
func SuggestTargets(profile *schema.Profile, weightKg float64, goalType string) *TargetSuggestion {
	if profile == nil || profile.HeightCm <= 0 || profile.AgeYears <= 0 || weightKg <= 0 {
		return nil
	}

	bmr := CalcBMR(profile.Sex, profile.AgeYears, profile.HeightCm, weightKg)
	tdee := CalcTDEE(bmr, profile.ActivityLevel)

	calories := tdee
	switch goalType {
	case schema.GoalLose:
		calories += loseCalorieDelta
	case schema.GoalGain:
		calories += gainCalorieDelta
	}
	if calories < calorieFloor {
		calories = calorieFloor
	}
	calories = math.Round(calories)

	protein, carbs, fat := SplitMacros(calories, weightKg, profile.EatingStyle, profile.ProteinPriority)
	return &TargetSuggestion{
		BMR:      bmr,
		TDEE:     tdee,
		Calories: calories,
		Protein:  protein,
		Carbs:    carbs,
		Fat:      fat,
	}
}
