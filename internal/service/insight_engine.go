package service

import (
	"fmt"
	"math"
	"sort"

	"github.com/yuqie6/NutriMirror/internal/repository"
	"github.com/yuqie6/NutriMirror/internal/schema"
)

// 洞察输出约束
const (
	maxInsights          = 5
	minInsightConfidence = 0.5
)

// 规则阈值（经验值，待产品评审）
const (
	goalAlignMinAdherencePct = 80.0
	maintainDriftKg          = 0.9
	proteinLowAdherencePct   = 60.0
	proteinLowMinDays        = 3
	calorieDriftMinRunDays   = 3
	calorieCVThreshold       = 0.25
	calorieCVMinDays         = 7
	mealHeavySharePct        = 50.0
	snackHeavySharePct       = 30.0
	mealSkippedRatio         = 0.5
	mealRuleMinDays          = 3
	weekendDivergencePct     = 20.0
	weekendMinDays           = 7
	fiberLowGrams            = 20.0
	fiberLowMinDays          = 3
	dropoffGapPoints         = 30.0
	dropoffMin30dRatePct     = 50.0
	excellentRatePct         = 85.0
)

// 洞察类别
const (
	CategoryGoal        = "goal"
	CategoryMacros      = "macros"
	CategoryCalories    = "calories"
	CategoryMeals       = "meals"
	CategoryConsistency = "consistency"
)

// Insight 派生洞察
type Insight struct {
	ID         string  `json:"id"`
	Category   string  `json:"category"`
	Message    string  `json:"message"`
	Confidence float64 `json:"confidence"` // 0-1，低于 0.5 不输出
	Priority   int     `json:"priority"`   // 1 为最高
}

// insightRule 单条规则，不触发返回 nil；每次评估至多产出一条
type insightRule func(snap *Snapshot, m *NutritionMetrics, goalType string) *Insight

// 规则集是封闭的固定集合，按声明顺序评估，无运行时注册
var insightRules = []insightRule{
	ruleGoalAlignment,
	ruleProteinLow,
	ruleCalorieDrift,
	ruleCalorieVariability,
	ruleMealHeavy,
	ruleSnackHeavy,
	ruleMealSkipped,
	ruleWeekendPattern,
	ruleFiberLow,
	ruleLoggingDropoff,
	ruleLoggingExcellent,
}

// DeriveInsights 评估全部规则：过滤低置信度，按优先级稳定排序，至多输出 5 条
func DeriveInsights(snap *Snapshot, m *NutritionMetrics, goalType string) []Insight {
	var out []Insight
	for _, rule := range insightRules {
		if ins := rule(snap, m, goalType); ins != nil && ins.Confidence >= minInsightConfidence {
			out = append(out, *ins)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	if len(out) > maxInsights {
		out = out[:maxInsights]
	}
	return out
}

// ruleGoalAlignment 体重走向与目标相悖（方向数据不足时不评估）
func ruleGoalAlignment(_ *Snapshot, m *NutritionMetrics, goalType string) *Insight {
	if m.Weight == nil || m.Weight.Direction == WeightInsufficientData {
		return nil
	}
	mk := func(msg string, conf float64) *Insight {
		return &Insight{
			ID: "goal_alignment", Category: CategoryGoal, Message: msg,
			Confidence: clamp(conf, minInsightConfidence, 0.95), Priority: 1,
		}
	}
	switch goalType {
	case schema.GoalLose:
		if m.Weight.Direction == WeightGaining && m.Weekly.CalorieAdherence >= goalAlignMinAdherencePct {
			return mk(fmt.Sprintf(
				"Weight trend is gaining even at %.0f%% calorie adherence; the target itself may be set too high for a loss goal.",
				m.Weekly.CalorieAdherence),
				0.8+(m.Weekly.CalorieAdherence-goalAlignMinAdherencePct)/100)
		}
	case schema.GoalGain:
		if m.Weight.Direction == WeightLosing {
			return mk("Weight trend is moving down despite a gain goal. Consider raising your calorie target.", 0.85)
		}
	case schema.GoalMaintain:
		if m.Weight.Delta30dKg != nil && math.Abs(*m.Weight.Delta30dKg) > maintainDriftKg {
			return mk(fmt.Sprintf(
				"Weight has drifted %+.1f kg over the last 30 days against a maintain goal.",
				*m.Weight.Delta30dKg),
				0.75+(math.Abs(*m.Weight.Delta30dKg)-maintainDriftKg)*0.2)
		}
	}
	return nil
}

// ruleProteinLow 本周蛋白质摄入明显低于目标
func ruleProteinLow(_ *Snapshot, m *NutritionMetrics, _ string) *Insight {
	if m.Weekly.Current.DaysLogged < proteinLowMinDays {
		return nil
	}
	// 贴合度是对称的，超量同样得低分；这条只关心摄入不足
	if m.Weekly.ProteinAdherence >= proteinLowAdherencePct || m.Weekly.Current.AvgProtein >= m.Targets.Protein {
		return nil
	}
	conf := clamp(0.5+(proteinLowAdherencePct-m.Weekly.ProteinAdherence)/proteinLowAdherencePct*0.5,
		minInsightConfidence, 0.95)
	return &Insight{
		ID: "protein_low", Category: CategoryMacros,
		Message: fmt.Sprintf("Protein is running low this week, averaging %.0fg against a %.0fg target.",
			m.Weekly.Current.AvgProtein, m.Targets.Protein),
		Confidence: conf, Priority: 2,
	}
}

// ruleCalorieDrift 连续多个日历日超出热量目标
func ruleCalorieDrift(snap *Snapshot, m *NutritionMetrics, _ string) *Insight {
	target := m.Targets.Calories
	if target <= 0 {
		return nil
	}
	run := 0
	sum := 0.0
	prevDate := ""
	for i := len(snap.DailyTotals) - 1; i >= 0; i-- {
		t := snap.DailyTotals[i]
		if t.Calories <= target {
			break
		}
		// 必须日历连续
		if run > 0 && repository.AddDays(prevDate, -1) != t.Date {
			break
		}
		run++
		sum += t.Calories
		prevDate = t.Date
	}
	if run < calorieDriftMinRunDays {
		return nil
	}
	conf := clamp(0.5+0.1*float64(run-2), minInsightConfidence, 0.9)
	return &Insight{
		ID: "calorie_drift", Category: CategoryCalories,
		Message: fmt.Sprintf("You've been over your calorie target for %d days running, averaging %.0f kcal against %.0f.",
			run, sum/float64(run), target),
		Confidence: conf, Priority: 3,
	}
}

// ruleCalorieVariability 日热量波动过大（总体标准差/均值）
func ruleCalorieVariability(snap *Snapshot, _ *NutritionMetrics, _ string) *Insight {
	n := len(snap.DailyTotals)
	if n < calorieCVMinDays {
		return nil
	}
	sum := 0.0
	for _, t := range snap.DailyTotals {
		sum += t.Calories
	}
	mean := sum / float64(n)
	if mean <= 0 {
		return nil
	}
	ss := 0.0
	for _, t := range snap.DailyTotals {
		d := t.Calories - mean
		ss += d * d
	}
	cv := math.Sqrt(ss/float64(n)) / mean
	if cv <= calorieCVThreshold {
		return nil
	}
	conf := clamp(0.5+(cv-calorieCVThreshold)*2, minInsightConfidence, 0.9)
	return &Insight{
		ID: "calorie_variability", Category: CategoryCalories,
		Message: fmt.Sprintf("Daily calories swing widely (±%.0f%% around your average). Steadier days make progress easier to read.",
			cv*100),
		Confidence: conf, Priority: 4,
	}
}

// 用餐结构类规则的共同门槛
func mealRulesGated(m *NutritionMetrics) bool {
	return m.Meals.AvgMealsPerDay >= 1 && m.Meals.DaysLogged >= mealRuleMinDays
}

// ruleMealHeavy 单一正餐占全天热量过半
func ruleMealHeavy(_ *Snapshot, m *NutritionMetrics, _ string) *Insight {
	if !mealRulesGated(m) {
		return nil
	}
	for _, s := range m.Meals.Stats {
		if s.MealType == schema.MealSnack {
			continue // 零食有独立规则
		}
		if s.CalorieShare > mealHeavySharePct {
			conf := clamp(0.5+(s.CalorieShare-mealHeavySharePct)/100*1.5, minInsightConfidence, 0.9)
			return &Insight{
				ID: "meal_heavy", Category: CategoryMeals,
				Message: fmt.Sprintf("%s carries %.0f%% of your daily calories. Spreading intake more evenly can help with energy and hunger.",
					capitalize(s.MealType), s.CalorieShare),
				Confidence: conf, Priority: 5,
			}
		}
	}
	return nil
}

// ruleSnackHeavy 零食热量占比过高
func ruleSnackHeavy(_ *Snapshot, m *NutritionMetrics, _ string) *Insight {
	if !mealRulesGated(m) {
		return nil
	}
	for _, s := range m.Meals.Stats {
		if s.MealType != schema.MealSnack || s.CalorieShare <= snackHeavySharePct {
			continue
		}
		conf := clamp(0.5+(s.CalorieShare-snackHeavySharePct)/100*1.5, minInsightConfidence, 0.9)
		return &Insight{
			ID: "snack_heavy", Category: CategoryMeals,
			Message: fmt.Sprintf("Snacks make up %.0f%% of your calories. Shifting some of that into meals usually keeps hunger steadier.",
				s.CalorieShare),
			Confidence: conf, Priority: 6,
		}
	}
	return nil
}

// ruleMealSkipped 某顿正餐在记录日中出现不足一半
func ruleMealSkipped(_ *Snapshot, m *NutritionMetrics, _ string) *Insight {
	if !mealRulesGated(m) {
		return nil
	}
	have := make(map[string]int, len(m.Meals.Stats))
	for _, s := range m.Meals.Stats {
		have[s.MealType] = s.DaysLogged
	}
	for _, mt := range schema.MainMealTypes {
		ratio := float64(have[mt]) / float64(m.Meals.DaysLogged)
		if ratio < mealSkippedRatio {
			conf := clamp(0.5+(mealSkippedRatio-ratio), minInsightConfidence, 0.85)
			return &Insight{
				ID: "meal_skipped", Category: CategoryMeals,
				Message: fmt.Sprintf("%s shows up on only %d of your last %d logged days. Skipped meals often lead to heavier snacking later.",
					capitalize(mt), have[mt], m.Meals.DaysLogged),
				Confidence: conf, Priority: 7,
			}
		}
	}
	return nil
}

// ruleWeekendPattern 周末与工作日热量分化
func ruleWeekendPattern(snap *Snapshot, _ *NutritionMetrics, _ string) *Insight {
	weekendSum, weekdaySum := 0.0, 0.0
	weekendN, weekdayN := 0, 0
	for _, t := range snap.DailyTotals {
		if repository.IsWeekend(t.Date) {
			weekendN++
			weekendSum += t.Calories
		} else {
			weekdayN++
			weekdaySum += t.Calories
		}
	}
	if weekendN+weekdayN < weekendMinDays || weekendN == 0 || weekdayN == 0 {
		return nil
	}
	weekendAvg := weekendSum / float64(weekendN)
	weekdayAvg := weekdaySum / float64(weekdayN)
	if weekdayAvg <= 0 {
		return nil
	}
	divergence := math.Abs(weekendAvg-weekdayAvg) / weekdayAvg * 100
	if divergence <= weekendDivergencePct {
		return nil
	}
	word := "higher"
	if weekendAvg < weekdayAvg {
		word = "lower"
	}
	conf := clamp(0.5+(divergence-weekendDivergencePct)/100*1.5, minInsightConfidence, 0.9)
	return &Insight{
		ID: "weekend_pattern", Category: CategoryCalories,
		Message: fmt.Sprintf("Weekend calories run %.0f%% %s than weekdays (%.0f vs %.0f kcal on average).",
			divergence, word, weekendAvg, weekdayAvg),
		Confidence: conf, Priority: 8,
	}
}

// ruleFiberLow 本周纤维摄入偏低
func ruleFiberLow(_ *Snapshot, m *NutritionMetrics, _ string) *Insight {
	if m.Weekly.Current.DaysLogged < fiberLowMinDays {
		return nil
	}
	avg := m.Weekly.Current.AvgFiber
	if avg >= fiberLowGrams {
		return nil
	}
	conf := clamp(0.5+(fiberLowGrams-avg)/fiberLowGrams*0.5, minInsightConfidence, 0.9)
	return &Insight{
		ID: "fiber_low", Category: CategoryMacros,
		Message: fmt.Sprintf("Fiber is averaging %.0fg a day this week. Aim for at least %.0fg from vegetables, fruit or whole grains.",
			avg, fiberLowGrams),
		Confidence: conf, Priority: 9,
	}
}

// ruleLoggingDropoff 近 7 天记录率比 30 天明显下滑
func ruleLoggingDropoff(_ *Snapshot, m *NutritionMetrics, _ string) *Insight {
	gap := m.Consistency.LoggingRate30d - m.Consistency.LoggingRate7d
	if m.Consistency.LoggingRate30d < dropoffMin30dRatePct || gap <= dropoffGapPoints {
		return nil
	}
	conf := clamp(0.5+(gap-dropoffGapPoints)/100, minInsightConfidence, 0.9)
	return &Insight{
		ID: "logging_dropoff", Category: CategoryConsistency,
		Message: fmt.Sprintf("Logging has dropped off: %.0f%% of days this week vs %.0f%% over the month. A few quick entries get the picture back.",
			m.Consistency.LoggingRate7d, m.Consistency.LoggingRate30d),
		Confidence: conf, Priority: 10,
	}
}

// ruleLoggingExcellent 记录习惯优秀（正向反馈）
func ruleLoggingExcellent(_ *Snapshot, m *NutritionMetrics, _ string) *Insight {
	r7, r30 := m.Consistency.LoggingRate7d, m.Consistency.LoggingRate30d
	if r7 < excellentRatePct || r30 < excellentRatePct {
		return nil
	}
	low := math.Min(r7, r30)
	conf := clamp(0.6+(low-excellentRatePct)/50, minInsightConfidence, 0.95)
	return &Insight{
		ID: "logging_excellent", Category: CategoryConsistency,
		Message: fmt.Sprintf("Excellent consistency: %.0f%% of days logged this month. That's what makes these numbers trustworthy.",
			r30),
		Confidence: conf, Priority: 11,
	}
}
