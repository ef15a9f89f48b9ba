package service

import (
	"strings"
	"testing"

	"github.com/yuqie6/NutriMirror/internal/repository"
	"github.com/yuqie6/NutriMirror/internal/schema"
)

func findInsight(insights []Insight, id string) *Insight {
	for i := range insights {
		if insights[i].ID == id {
			return &insights[i]
		}
	}
	return nil
}

func deriveFor(snap *Snapshot, goalType string) []Insight {
	return DeriveInsights(snap, ComputeMetrics(snap), goalType)
}

func TestDeriveInsights_EmptyData(t *testing.T) {
	insights := deriveFor(&Snapshot{Today: "2025-03-09"}, "")
	if len(insights) != 0 {
		t.Fatalf("insights=%v, want none on empty data", insights)
	}
}

func TestDeriveInsights_CalorieDriftMessageSaysOver(t *testing.T) {
	snap := &Snapshot{
		Today: "2025-03-09",
		DailyTotals: []repository.DailyTotal{
			dt("2025-03-07", 2500, 150, 200, 65, 25),
			dt("2025-03-08", 2550, 150, 200, 65, 25),
			dt("2025-03-09", 2600, 150, 200, 65, 25),
		},
	}
	insights := deriveFor(snap, "")
	drift := findInsight(insights, "calorie_drift")
	if drift == nil {
		t.Fatalf("calorie_drift not fired: %v", insights)
	}
	if !strings.Contains(drift.Message, "over") {
		t.Fatalf("drift message %q should contain 'over'", drift.Message)
	}
	if !strings.Contains(drift.Message, "3 days") {
		t.Fatalf("drift message %q should cite the run length", drift.Message)
	}
}

func TestDeriveInsights_DriftNeedsConsecutiveCalendarDays(t *testing.T) {
	// 3 个超标日但中间隔了一个未记录日 -> 不触发
	snap := &Snapshot{
		Today: "2025-03-09",
		DailyTotals: []repository.DailyTotal{
			dt("2025-03-06", 2500, 150, 200, 65, 25),
			dt("2025-03-08", 2550, 150, 200, 65, 25),
			dt("2025-03-09", 2600, 150, 200, 65, 25),
		},
	}
	if drift := findInsight(deriveFor(snap, ""), "calorie_drift"); drift != nil {
		t.Fatalf("drift fired across a gap: %+v", drift)
	}
}

func TestDeriveInsights_CalorieVariability(t *testing.T) {
	// 均值 2000，总体 σ≈740 -> CV≈0.37，超过 0.25
	high := &Snapshot{Today: "2025-03-09"}
	swing := []float64{1200, 2800, 1200, 2800, 1200, 2800, 2000}
	for i, d := range repository.LastNDates("2025-03-09", 7) {
		high.DailyTotals = append(high.DailyTotals, dt(d, swing[i], 150, 200, 65, 25))
	}
	if cv := findInsight(deriveFor(high, ""), "calorie_variability"); cv == nil {
		t.Fatalf("variability not fired on ±800 swings")
	}

	// ±500 -> CV≈0.23，低于阈值
	low := &Snapshot{Today: "2025-03-09"}
	mild := []float64{1500, 2500, 1500, 2500, 1500, 2500, 2000}
	for i, d := range repository.LastNDates("2025-03-09", 7) {
		low.DailyTotals = append(low.DailyTotals, dt(d, mild[i], 150, 200, 65, 25))
	}
	if cv := findInsight(deriveFor(low, ""), "calorie_variability"); cv != nil {
		t.Fatalf("variability fired on mild swings: %+v", cv)
	}
}

func TestDeriveInsights_ProteinLowCitesGrams(t *testing.T) {
	snap := &Snapshot{Today: "2025-03-09"}
	for _, d := range []string{"2025-03-07", "2025-03-08", "2025-03-09"} {
		snap.DailyTotals = append(snap.DailyTotals, dt(d, 2000, 82, 200, 65, 25))
	}
	insights := deriveFor(snap, "")
	low := findInsight(insights, "protein_low")
	if low == nil {
		t.Fatalf("protein_low not fired: %v", insights)
	}
	if !strings.Contains(low.Message, "82g") || !strings.Contains(low.Message, "150g") {
		t.Fatalf("message %q should cite actual and target grams", low.Message)
	}

	// 只有 2 个记录日 -> 不触发
	short := &Snapshot{Today: "2025-03-09", DailyTotals: snap.DailyTotals[1:]}
	if got := findInsight(deriveFor(short, ""), "protein_low"); got != nil {
		t.Fatalf("protein_low fired on 2 days: %+v", got)
	}
}

func TestDeriveInsights_GoalAlignment(t *testing.T) {
	// 趋势向上：Δ7=+0.3（> 0.2 阈值 -> gaining），Δ30=+1.5
	weights := []schema.WeightEntry{
		{Date: "2025-02-01", WeightKg: 80.1, TrendKg: 80.0},
		{Date: "2025-02-20", WeightKg: 80.9, TrendKg: 80.8},
		{Date: "2025-03-01", WeightKg: 81.3, TrendKg: 81.2},
		{Date: "2025-03-08", WeightKg: 81.6, TrendKg: 81.5},
	}
	// 本周热量贴合目标（1900 vs 2000 -> 95%）
	var totals []repository.DailyTotal
	for _, d := range repository.LastNDates("2025-03-09", 7) {
		totals = append(totals, dt(d, 1900, 150, 200, 65, 25))
	}

	snap := &Snapshot{Today: "2025-03-09", DailyTotals: totals, Weights: weights}
	ga := findInsight(deriveFor(snap, schema.GoalLose), "goal_alignment")
	if ga == nil {
		t.Fatalf("goal_alignment not fired for lose+gaining at high adherence")
	}
	if ga.Priority != 1 {
		t.Fatalf("priority=%d, want 1", ga.Priority)
	}

	// 同样的体重走向但热量明显超标 -> 增重有明确解释，不触发
	var over []repository.DailyTotal
	for _, d := range repository.LastNDates("2025-03-09", 7) {
		over = append(over, dt(d, 2900, 150, 200, 65, 25))
	}
	snap = &Snapshot{Today: "2025-03-09", DailyTotals: over, Weights: weights}
	if ga := findInsight(deriveFor(snap, schema.GoalLose), "goal_alignment"); ga != nil {
		t.Fatalf("goal_alignment fired at low adherence: %+v", ga)
	}

	// 增重目标 + 体重下行
	losing := []schema.WeightEntry{
		{Date: "2025-02-01", WeightKg: 70.1, TrendKg: 70.2},
		{Date: "2025-03-01", WeightKg: 69.6, TrendKg: 69.7},
		{Date: "2025-03-08", WeightKg: 69.2, TrendKg: 69.3},
	}
	snap = &Snapshot{Today: "2025-03-09", Weights: losing}
	if ga := findInsight(deriveFor(snap, schema.GoalGain), "goal_alignment"); ga == nil {
		t.Fatalf("goal_alignment not fired for gain+losing")
	}

	// 维持目标 + 30 天漂移 1.5kg
	snap = &Snapshot{Today: "2025-03-09", Weights: weights}
	ga = findInsight(deriveFor(snap, schema.GoalMaintain), "goal_alignment")
	if ga == nil {
		t.Fatalf("goal_alignment not fired for maintain drift")
	}
	if !strings.Contains(ga.Message, "+1.5") {
		t.Fatalf("maintain message %q should carry signed delta", ga.Message)
	}

	// 趋势点不足 -> 不评估
	snap = &Snapshot{Today: "2025-03-09", Weights: weights[:2]}
	if ga := findInsight(deriveFor(snap, schema.GoalLose), "goal_alignment"); ga != nil {
		t.Fatalf("goal_alignment fired without weight trend: %+v", ga)
	}
}

func TestDeriveInsights_WeekendPattern(t *testing.T) {
	snap := &Snapshot{Today: "2025-03-09"}
	// 03-03(一)~03-07(五) 2000，03-08/09(周末) 2600 -> 周末高 30%
	for _, d := range []string{"2025-03-03", "2025-03-04", "2025-03-05", "2025-03-06", "2025-03-07"} {
		snap.DailyTotals = append(snap.DailyTotals, dt(d, 2000, 150, 200, 65, 25))
	}
	for _, d := range []string{"2025-03-08", "2025-03-09"} {
		snap.DailyTotals = append(snap.DailyTotals, dt(d, 2600, 150, 200, 65, 25))
	}
	wp := findInsight(deriveFor(snap, ""), "weekend_pattern")
	if wp == nil {
		t.Fatalf("weekend_pattern not fired at 30%% divergence")
	}
	if !strings.Contains(wp.Message, "higher") {
		t.Fatalf("message %q should say higher", wp.Message)
	}

	// 分化 10% -> 不触发
	mild := &Snapshot{Today: "2025-03-09"}
	for _, d := range []string{"2025-03-03", "2025-03-04", "2025-03-05", "2025-03-06", "2025-03-07"} {
		mild.DailyTotals = append(mild.DailyTotals, dt(d, 2000, 150, 200, 65, 25))
	}
	for _, d := range []string{"2025-03-08", "2025-03-09"} {
		mild.DailyTotals = append(mild.DailyTotals, dt(d, 2200, 150, 200, 65, 25))
	}
	if wp := findInsight(deriveFor(mild, ""), "weekend_pattern"); wp != nil {
		t.Fatalf("weekend_pattern fired at 10%%: %+v", wp)
	}
}

func TestDeriveInsights_MealRules(t *testing.T) {
	snap := &Snapshot{Today: "2025-03-09"}
	for _, d := range repository.LastNDates("2025-03-09", 7) {
		snap.DailyTotals = append(snap.DailyTotals, dt(d, 2000, 150, 200, 65, 25))
	}
	// 晚餐 55%、零食 31%、早餐 14%，午餐从未出现
	snap.MealAggs = []repository.MealTypeAgg{
		{MealType: schema.MealDinner, DistinctDays: 7, TotalCalories: 7700, AvgCalories: 1100},
		{MealType: schema.MealSnack, DistinctDays: 6, TotalCalories: 4340, AvgCalories: 723},
		{MealType: schema.MealBreakfast, DistinctDays: 5, TotalCalories: 1960, AvgCalories: 392},
	}
	insights := deriveFor(snap, "")

	if mh := findInsight(insights, "meal_heavy"); mh == nil || !strings.Contains(mh.Message, "Dinner") {
		t.Fatalf("meal_heavy=%+v, want fired citing Dinner", mh)
	}
	if sh := findInsight(insights, "snack_heavy"); sh == nil {
		t.Fatalf("snack_heavy not fired at 31%% share")
	}
	if ms := findInsight(insights, "meal_skipped"); ms == nil || !strings.Contains(ms.Message, "Lunch") {
		t.Fatalf("meal_skipped=%+v, want fired citing Lunch", ms)
	}
}

func TestDeriveInsights_LoggingRules(t *testing.T) {
	// 前 23 天都有记录，最近 7 天一条没有 -> dropoff
	drop := &Snapshot{Today: "2025-03-09"}
	for _, d := range repository.LastNDates("2025-03-02", 23) {
		drop.DailyTotals = append(drop.DailyTotals, dt(d, 1800, 150, 200, 65, 25))
	}
	insights := deriveFor(drop, "")
	if d := findInsight(insights, "logging_dropoff"); d == nil {
		t.Fatalf("logging_dropoff not fired: %v", insights)
	}
	if e := findInsight(insights, "logging_excellent"); e != nil {
		t.Fatalf("logging_excellent fired during dropoff: %+v", e)
	}

	// 30 天全勤 -> excellent
	full := &Snapshot{Today: "2025-03-09"}
	for _, d := range repository.LastNDates("2025-03-09", 30) {
		full.DailyTotals = append(full.DailyTotals, dt(d, 2000, 150, 200, 65, 25))
	}
	if e := findInsight(deriveFor(full, ""), "logging_excellent"); e == nil {
		t.Fatalf("logging_excellent not fired on full month")
	}
}

func TestDeriveInsights_CapAndOrdering(t *testing.T) {
	snap := &Snapshot{Today: "2025-03-09"}

	// 2 月 8 日起 27 天大幅摆动，最近 3 天连续超标；蛋白/纤维全程偏低
	for i, d := range repository.LastNDates("2025-03-06", 27) {
		cal := 2800.0
		if i%2 == 1 {
			cal = 1200
		}
		snap.DailyTotals = append(snap.DailyTotals, dt(d, cal, 50, 200, 65, 5))
	}
	for _, d := range []string{"2025-03-07", "2025-03-08", "2025-03-09"} {
		snap.DailyTotals = append(snap.DailyTotals, dt(d, 2600, 50, 200, 65, 5))
	}
	// 晚餐超重 + 零食超标 + 午餐缺席
	snap.MealAggs = []repository.MealTypeAgg{
		{MealType: schema.MealDinner, DistinctDays: 7, TotalCalories: 5500, AvgCalories: 786},
		{MealType: schema.MealSnack, DistinctDays: 6, TotalCalories: 3100, AvgCalories: 517},
		{MealType: schema.MealBreakfast, DistinctDays: 5, TotalCalories: 1400, AvgCalories: 280},
	}
	// 维持目标 + 30 天上漂 1.5kg
	snap.Weights = []schema.WeightEntry{
		{Date: "2025-02-01", WeightKg: 80.1, TrendKg: 80.0},
		{Date: "2025-02-20", WeightKg: 80.9, TrendKg: 80.8},
		{Date: "2025-03-01", WeightKg: 81.3, TrendKg: 81.2},
		{Date: "2025-03-08", WeightKg: 81.6, TrendKg: 81.5},
	}

	insights := deriveFor(snap, schema.GoalMaintain)

	if len(insights) != maxInsights {
		t.Fatalf("len=%d, want capped at %d", len(insights), maxInsights)
	}
	for i := 1; i < len(insights); i++ {
		if insights[i].Priority < insights[i-1].Priority {
			t.Fatalf("priorities out of order: %+v", insights)
		}
	}
	for _, ins := range insights {
		if ins.Confidence < minInsightConfidence || ins.Confidence > 1 {
			t.Fatalf("confidence %v out of range: %+v", ins.Confidence, ins)
		}
	}
	wantIDs := []string{"goal_alignment", "protein_low", "calorie_drift", "calorie_variability", "meal_heavy"}
	for i, id := range wantIDs {
		if insights[i].ID != id {
			t.Fatalf("insights[%d].ID=%s, want %s (got %+v)", i, insights[i].ID, id, insights)
		}
	}
}
