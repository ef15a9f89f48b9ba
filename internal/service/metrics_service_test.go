package service

import (
	"testing"

	"github.com/yuqie6/NutriMirror/internal/repository"
	"github.com/yuqie6/NutriMirror/internal/schema"
)

// 测试日历基准：2025-03-01 是周六，2025-03-03 是周一，2025-03-09 是周日

func dt(date string, cal, pro, carb, fat, fiber float64) repository.DailyTotal {
	return repository.DailyTotal{Date: date, Calories: cal, Protein: pro, Carbs: carb, Fat: fat, Fiber: fiber}
}

func TestComputeMetrics_TodayProgress(t *testing.T) {
	snap := &Snapshot{
		Today: "2025-03-09",
		DailyTotals: []repository.DailyTotal{
			dt("2025-03-09", 1800, 135, 180, 60, 22),
		},
		TodayMeals: []string{schema.MealBreakfast, schema.MealLunch, schema.MealDinner},
	}
	m := ComputeMetrics(snap)

	if m.Today.Calories.PercentComplete != 90 {
		t.Fatalf("calories percent=%d, want 90", m.Today.Calories.PercentComplete)
	}
	if m.Today.Calories.Remaining != 200 {
		t.Fatalf("calories remaining=%v, want 200", m.Today.Calories.Remaining)
	}
	if m.Today.Protein.PercentComplete != 90 {
		t.Fatalf("protein percent=%d, want 90", m.Today.Protein.PercentComplete)
	}
	// 60/65 -> 92.3 -> 92
	if m.Today.Fat.PercentComplete != 92 {
		t.Fatalf("fat percent=%d, want 92", m.Today.Fat.PercentComplete)
	}
	if m.Today.FiberGrams != 22 {
		t.Fatalf("fiber=%v, want 22", m.Today.FiberGrams)
	}
	if len(m.Today.MealsLogged) != 3 {
		t.Fatalf("meals=%v, want 3 entries", m.Today.MealsLogged)
	}
}

func TestComputeMetrics_TodayEmpty(t *testing.T) {
	m := ComputeMetrics(&Snapshot{Today: "2025-03-09"})
	if m.Today.Calories.Consumed != 0 || m.Today.Calories.PercentComplete != 0 {
		t.Fatalf("empty today=%+v, want zero progress", m.Today.Calories)
	}
	if m.Today.Calories.Remaining != 2000 {
		t.Fatalf("remaining=%v, want full default target", m.Today.Calories.Remaining)
	}
	if m.Availability != AvailabilityNone {
		t.Fatalf("availability=%s, want none", m.Availability)
	}
}

func TestNutrientProgress_ZeroTarget(t *testing.T) {
	p := nutrientProgress(500, 0)
	if p.PercentComplete != 0 {
		t.Fatalf("percent=%d, want 0 on zero target", p.PercentComplete)
	}
}

func TestComputeMetrics_WeeklyTrends(t *testing.T) {
	var totals []repository.DailyTotal
	// 上周（02-24 ~ 03-02）每天 2000 kcal
	for _, d := range repository.LastNDates("2025-03-02", 7) {
		totals = append(totals, dt(d, 2000, 150, 200, 65, 25))
	}
	// 本周（03-03 ~ 03-09）每天 1800 kcal
	for _, d := range repository.LastNDates("2025-03-09", 7) {
		totals = append(totals, dt(d, 1800, 150, 180, 60, 25))
	}

	m := ComputeMetrics(&Snapshot{Today: "2025-03-09", DailyTotals: totals})

	if m.Weekly.Current.DaysLogged != 7 || m.Weekly.Previous.DaysLogged != 7 {
		t.Fatalf("days logged=(%d,%d), want (7,7)", m.Weekly.Current.DaysLogged, m.Weekly.Previous.DaysLogged)
	}
	if !almostEqual(m.Weekly.Current.AvgCalories, 1800) {
		t.Fatalf("current avg=%v, want 1800", m.Weekly.Current.AvgCalories)
	}
	// 100 - |1800-2000|/2000*100 = 90
	if !almostEqual(m.Weekly.CalorieAdherence, 90) {
		t.Fatalf("calorie adherence=%v, want 90", m.Weekly.CalorieAdherence)
	}
	if !almostEqual(m.Weekly.ProteinAdherence, 100) {
		t.Fatalf("protein adherence=%v, want 100", m.Weekly.ProteinAdherence)
	}
	// 变化 -10% 超过 5% 阈值
	if m.Weekly.Direction != TrendDecreasing {
		t.Fatalf("direction=%s, want decreasing", m.Weekly.Direction)
	}
}

func TestComputeMetrics_WeeklyDirectionStable(t *testing.T) {
	var totals []repository.DailyTotal
	for _, d := range repository.LastNDates("2025-03-09", 7) {
		totals = append(totals, dt(d, 1900, 140, 190, 60, 20))
	}
	// 上周无任何记录 -> stable
	m := ComputeMetrics(&Snapshot{Today: "2025-03-09", DailyTotals: totals})
	if m.Weekly.Direction != TrendStable {
		t.Fatalf("direction=%s, want stable on empty previous week", m.Weekly.Direction)
	}
}

func TestAdherence_Clamped(t *testing.T) {
	// 偏离超过 100% 时贴合度截断为 0
	if got := adherence(4500, 2000, 7); got != 0 {
		t.Fatalf("adherence=%v, want 0", got)
	}
	if got := adherence(2000, 2000, 7); got != 100 {
		t.Fatalf("adherence=%v, want 100", got)
	}
}

func TestComputeMetrics_Consistency(t *testing.T) {
	dates := []string{
		"2025-03-01", "2025-03-02", "2025-03-03", "2025-03-04", "2025-03-05",
		// 03-06 缺
		"2025-03-07", "2025-03-08", "2025-03-09",
	}
	var totals []repository.DailyTotal
	for _, d := range dates {
		totals = append(totals, dt(d, 1800, 130, 180, 60, 20))
	}
	m := ComputeMetrics(&Snapshot{Today: "2025-03-09", DailyTotals: totals})

	if m.Consistency.CurrentStreak != 3 {
		t.Fatalf("current streak=%d, want 3", m.Consistency.CurrentStreak)
	}
	if m.Consistency.LongestStreak != 5 {
		t.Fatalf("longest streak=%d, want 5", m.Consistency.LongestStreak)
	}
	if !almostEqual(m.Consistency.LoggingRate7d, 600.0/7) {
		t.Fatalf("rate7d=%v, want %v", m.Consistency.LoggingRate7d, 600.0/7)
	}
	if !almostEqual(m.Consistency.LoggingRate30d, 800.0/30) {
		t.Fatalf("rate30d=%v, want %v", m.Consistency.LoggingRate30d, 800.0/30)
	}
	if m.Consistency.LoggedDays30d != 8 {
		t.Fatalf("logged days=%d, want 8", m.Consistency.LoggedDays30d)
	}
}

func TestComputeMetrics_StreakZeroWhenTodayUnlogged(t *testing.T) {
	totals := []repository.DailyTotal{dt("2025-03-08", 1800, 130, 180, 60, 20)}
	m := ComputeMetrics(&Snapshot{Today: "2025-03-09", DailyTotals: totals})
	if m.Consistency.CurrentStreak != 0 {
		t.Fatalf("streak=%d, want 0 when today unlogged", m.Consistency.CurrentStreak)
	}
}

func TestComputeMetrics_MealDistribution(t *testing.T) {
	var totals []repository.DailyTotal
	for _, d := range []string{"2025-03-04", "2025-03-05", "2025-03-06", "2025-03-08", "2025-03-09"} {
		totals = append(totals, dt(d, 1200, 90, 120, 40, 15))
	}
	snap := &Snapshot{
		Today:       "2025-03-09",
		DailyTotals: totals,
		MealAggs: []repository.MealTypeAgg{
			{MealType: schema.MealDinner, DistinctDays: 4, TotalCalories: 3200, AvgCalories: 800},
			{MealType: schema.MealBreakfast, DistinctDays: 5, TotalCalories: 2000, AvgCalories: 400},
			{MealType: schema.MealSnack, DistinctDays: 2, TotalCalories: 800, AvgCalories: 400},
		},
	}
	m := ComputeMetrics(snap)

	if m.Meals.LargestMealType != schema.MealDinner {
		t.Fatalf("largest=%s, want dinner", m.Meals.LargestMealType)
	}
	// (4+5+2) 个 (日,餐次) 对 / 5 个记录日
	if !almostEqual(m.Meals.AvgMealsPerDay, 2.2) {
		t.Fatalf("avg meals/day=%v, want 2.2", m.Meals.AvgMealsPerDay)
	}

	var shareSum float64
	for _, s := range m.Meals.Stats {
		shareSum += s.CalorieShare
		if s.MealType == schema.MealDinner {
			if !almostEqual(s.CalorieShare, 3200.0/6000*100) {
				t.Fatalf("dinner share=%v, want %v", s.CalorieShare, 3200.0/6000*100)
			}
			if !almostEqual(s.WeeklyFreq, 4) {
				t.Fatalf("dinner freq=%v, want 4", s.WeeklyFreq)
			}
		}
	}
	// 各餐次热量占比合计 ~100
	if !almostEqual(shareSum, 100) {
		t.Fatalf("share sum=%v, want 100", shareSum)
	}
}

func TestComputeMetrics_WeightTrend(t *testing.T) {
	snap := &Snapshot{
		Today: "2025-03-09",
		Weights: []schema.WeightEntry{
			{Date: "2025-02-01", WeightKg: 83.2, TrendKg: 83.0},
			{Date: "2025-02-20", WeightKg: 82.0, TrendKg: 82.2},
			{Date: "2025-03-01", WeightKg: 81.7, TrendKg: 81.9},
			{Date: "2025-03-08", WeightKg: 81.2, TrendKg: 81.4},
		},
	}
	m := ComputeMetrics(snap)

	if m.Weight == nil {
		t.Fatalf("weight trend is nil with 4 trend points")
	}
	if m.Weight.CurrentTrendKg != 81.4 || m.Weight.Points != 4 {
		t.Fatalf("trend=%v points=%d, want 81.4/4", m.Weight.CurrentTrendKg, m.Weight.Points)
	}
	if m.Weight.Delta7dKg == nil || !almostEqual(*m.Weight.Delta7dKg, -0.5) {
		t.Fatalf("delta7=%v, want -0.5", m.Weight.Delta7dKg)
	}
	if m.Weight.Delta30dKg == nil || !almostEqual(*m.Weight.Delta30dKg, -1.6) {
		t.Fatalf("delta30=%v, want -1.6", m.Weight.Delta30dKg)
	}
	if m.Weight.Direction != WeightLosing {
		t.Fatalf("direction=%s, want losing", m.Weight.Direction)
	}
}

func TestComputeMetrics_WeightTrendInsufficient(t *testing.T) {
	// 不足 3 个趋势点 -> 整体为 nil
	m := ComputeMetrics(&Snapshot{
		Today: "2025-03-09",
		Weights: []schema.WeightEntry{
			{Date: "2025-03-07", WeightKg: 81, TrendKg: 81},
			{Date: "2025-03-08", WeightKg: 81, TrendKg: 81},
		},
	})
	if m.Weight != nil {
		t.Fatalf("weight=%+v, want nil with 2 points", m.Weight)
	}

	// 原始记录够但未平滑（TrendKg=0）同样不算
	m = ComputeMetrics(&Snapshot{
		Today: "2025-03-09",
		Weights: []schema.WeightEntry{
			{Date: "2025-03-06", WeightKg: 81},
			{Date: "2025-03-07", WeightKg: 81},
			{Date: "2025-03-08", WeightKg: 81},
		},
	})
	if m.Weight != nil {
		t.Fatalf("weight=%+v, want nil without smoothed trends", m.Weight)
	}

	// 3 个点但跨度不足 7 天 -> 有趋势值但方向数据不足
	m = ComputeMetrics(&Snapshot{
		Today: "2025-03-09",
		Weights: []schema.WeightEntry{
			{Date: "2025-03-05", WeightKg: 81.0, TrendKg: 81.0},
			{Date: "2025-03-07", WeightKg: 81.1, TrendKg: 81.05},
			{Date: "2025-03-09", WeightKg: 81.2, TrendKg: 81.1},
		},
	})
	if m.Weight == nil {
		t.Fatalf("weight is nil, want trend info with 3 points")
	}
	if m.Weight.Delta7dKg != nil || m.Weight.Delta30dKg != nil {
		t.Fatalf("deltas=(%v,%v), want nil on short horizon", m.Weight.Delta7dKg, m.Weight.Delta30dKg)
	}
	if m.Weight.Direction != WeightInsufficientData {
		t.Fatalf("direction=%s, want insufficient_data", m.Weight.Direction)
	}
}

func TestAvailabilityTier(t *testing.T) {
	cases := []struct {
		days int
		want string
	}{
		{0, AvailabilityNone},
		{1, AvailabilityLow},
		{6, AvailabilityLow},
		{7, AvailabilityMedium},
		{20, AvailabilityMedium},
		{21, AvailabilityHigh},
		{30, AvailabilityHigh},
	}
	for _, tc := range cases {
		if got := availabilityTier(tc.days); got != tc.want {
			t.Errorf("availabilityTier(%d)=%s, want %s", tc.days, got, tc.want)
		}
	}
}
