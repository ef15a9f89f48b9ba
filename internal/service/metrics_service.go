package service

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/yuqie6/NutriMirror/internal/repository"
	"github.com/yuqie6/NutriMirror/internal/schema"
)

// 指标计算窗口参数（经验值，待产品评审）
const (
	metricsLookbackDays = 30 // 每日汇总回看窗口
	weightLookbackDays  = 90 // 体重回看窗口
	mealWindowDays      = 7  // 用餐分布窗口
	minPointsForTrend   = 3  // 产出体重趋势所需的最少趋势点
	frequentFoodsLimit  = 10
)

// 趋势判定阈值（经验值，待产品评审）
const (
	weeklyDirectionThresholdPct = 5.0 // 周均值相对变化超过该值才算升/降
	trendDirectionThresholdKg   = 0.2 // 体重趋势周变化超过该值才算增/减
)

// 数据可用性分层
const (
	AvailabilityNone   = "none"
	AvailabilityLow    = "low"
	AvailabilityMedium = "medium"
	AvailabilityHigh   = "high"
)

// 体重趋势方向
const (
	WeightGaining          = "gaining"
	WeightLosing           = "losing"
	WeightMaintaining      = "maintaining"
	WeightInsufficientData = "insufficient_data"
)

// 周趋势方向
const (
	TrendStable     = "stable"
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
)

// Snapshot 一次加载的分析原始数据，此后所有指标计算都是纯函数
type Snapshot struct {
	Today         string                      `json:"today"`
	DailyTotals   []repository.DailyTotal     `json:"daily_totals"` // 30 天内有记录的日子，升序
	TodayMeals    []string                    `json:"today_meals"`
	MealAggs      []repository.MealTypeAgg    `json:"meal_aggs"` // 7 天窗口
	FrequentFoods []repository.FrequentFood   `json:"frequent_foods"`
	Weights       []schema.WeightEntry        `json:"weights"` // 90 天，升序
	Goal          *schema.Goal                `json:"goal"`
	Profile       *schema.Profile             `json:"profile"`
	Settings      *schema.UserSettings        `json:"settings"`
}

// MetricsService 指标聚合服务
type MetricsService struct {
	foodRepo     FoodRepository
	weightRepo   WeightRepository
	goalRepo     GoalRepository
	profileRepo  ProfileRepository
	settingsRepo SettingsRepository
}

// NewMetricsService 创建指标服务
func NewMetricsService(
	foodRepo FoodRepository,
	weightRepo WeightRepository,
	goalRepo GoalRepository,
	profileRepo ProfileRepository,
	settingsRepo SettingsRepository,
) *MetricsService {
	return &MetricsService{
		foodRepo:     foodRepo,
		weightRepo:   weightRepo,
		goalRepo:     goalRepo,
		profileRepo:  profileRepo,
		settingsRepo: settingsRepo,
	}
}

// LoadSnapshot 以 today 为基准加载分析快照，各查询相互独立
func (s *MetricsService) LoadSnapshot(ctx context.Context, today string) (*Snapshot, error) {
	snap := &Snapshot{Today: today}
	var err error

	start30 := repository.AddDays(today, -(metricsLookbackDays - 1))
	if snap.DailyTotals, err = s.foodRepo.DailyTotals(ctx, start30, today); err != nil {
		return nil, fmt.Errorf("加载每日汇总失败: %w", err)
	}
	if snap.TodayMeals, err = s.foodRepo.MealTypesOnDate(ctx, today); err != nil {
		return nil, fmt.Errorf("加载今日餐次失败: %w", err)
	}
	start7 := repository.AddDays(today, -(mealWindowDays - 1))
	if snap.MealAggs, err = s.foodRepo.MealTypeAggs(ctx, start7, today); err != nil {
		return nil, fmt.Errorf("加载餐次分布失败: %w", err)
	}
	if snap.FrequentFoods, err = s.foodRepo.FrequentFoods(ctx, start30, today, frequentFoodsLimit); err != nil {
		return nil, fmt.Errorf("加载高频食物失败: %w", err)
	}
	startWeight := repository.AddDays(today, -(weightLookbackDays - 1))
	if snap.Weights, err = s.weightRepo.HistorySince(ctx, startWeight); err != nil {
		return nil, fmt.Errorf("加载体重历史失败: %w", err)
	}
	if snap.Goal, err = s.goalRepo.Active(ctx); err != nil {
		return nil, fmt.Errorf("加载目标失败: %w", err)
	}
	if snap.Profile, err = s.profileRepo.Get(ctx); err != nil {
		return nil, fmt.Errorf("加载档案失败: %w", err)
	}
	if snap.Settings, err = s.settingsRepo.Get(ctx); err != nil {
		return nil, fmt.Errorf("加载偏好失败: %w", err)
	}
	return snap, nil
}

// GetMetrics 加载快照并计算指标
func (s *MetricsService) GetMetrics(ctx context.Context, today string) (*NutritionMetrics, error) {
	snap, err := s.LoadSnapshot(ctx, today)
	if err != nil {
		return nil, err
	}
	return ComputeMetrics(snap), nil
}

// GetInsights 加载快照并推导行为洞察
func (s *MetricsService) GetInsights(ctx context.Context, today string) ([]Insight, error) {
	snap, err := s.LoadSnapshot(ctx, today)
	if err != nil {
		return nil, err
	}
	goalType := ""
	if snap.Goal != nil {
		goalType = snap.Goal.Type
	}
	return DeriveInsights(snap, ComputeMetrics(snap), goalType), nil
}

// LoggedDates 返回区间内有饮食记录的日期（升序）
func (s *MetricsService) LoggedDates(ctx context.Context, startDate, endDate string) ([]string, error) {
	totals, err := s.foodRepo.DailyTotals(ctx, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("加载每日汇总失败: %w", err)
	}
	dates := make([]string, 0, len(totals))
	for _, t := range totals {
		dates = append(dates, t.Date)
	}
	return dates, nil
}

// ========== 指标结果类型 ==========

// NutrientProgress 单一营养素的今日进度
type NutrientProgress struct {
	Consumed        float64 `json:"consumed"`
	Target          float64 `json:"target"`
	Remaining       float64 `json:"remaining"` // 可为负（超标）
	PercentComplete int     `json:"percent_complete"`
}

// TodayProgress 今日进度
type TodayProgress struct {
	Calories    NutrientProgress `json:"calories"`
	Protein     NutrientProgress `json:"protein"`
	Carbs       NutrientProgress `json:"carbs"`
	Fat         NutrientProgress `json:"fat"`
	FiberGrams  float64          `json:"fiber_grams"` // 纤维只报克数，不算百分比
	MealsLogged []string         `json:"meals_logged"`
}

// WeekWindow 一个 7 天窗口的均值（只对有记录的日子取平均）
type WeekWindow struct {
	StartDate   string  `json:"start_date"`
	EndDate     string  `json:"end_date"`
	DaysLogged  int     `json:"days_logged"`
	AvgCalories float64 `json:"avg_calories"`
	AvgProtein  float64 `json:"avg_protein"`
	AvgCarbs    float64 `json:"avg_carbs"`
	AvgFat      float64 `json:"avg_fat"`
	AvgFiber    float64 `json:"avg_fiber"`
}

// WeeklyTrends 本周 vs 上周趋势
type WeeklyTrends struct {
	Current          WeekWindow `json:"current"`
	Previous         WeekWindow `json:"previous"`
	CalorieAdherence float64    `json:"calorie_adherence"` // 0-100
	ProteinAdherence float64    `json:"protein_adherence"` // 0-100
	Direction        string     `json:"direction"`         // stable/increasing/decreasing（按周均热量）
}

// ConsistencyMetrics 记录一致性
type ConsistencyMetrics struct {
	CurrentStreak  int     `json:"current_streak"`
	LongestStreak  int     `json:"longest_streak"` // 回看窗口内
	LoggingRate7d  float64 `json:"logging_rate_7d"`
	LoggingRate30d float64 `json:"logging_rate_30d"`
	LoggedDays30d  int     `json:"logged_days_30d"`
}

// MealTypeStat 单一餐次的分布统计
type MealTypeStat struct {
	MealType     string  `json:"meal_type"`
	DaysLogged   int     `json:"days_logged"`
	WeeklyFreq   float64 `json:"weekly_freq"` // 折算到每周的出现次数
	AvgCalories  float64 `json:"avg_calories"`
	CalorieShare float64 `json:"calorie_share"` // 占总热量百分比，各餐合计约 100
}

// MealDistribution 用餐分布（7 天窗口）
type MealDistribution struct {
	Stats           []MealTypeStat `json:"stats"`
	AvgMealsPerDay  float64        `json:"avg_meals_per_day"`
	LargestMealType string         `json:"largest_meal_type"` // 平均热量最高的餐次
	DaysLogged      int            `json:"days_logged"`
}

// WeightTrendInfo 体重趋势（趋势点不足 minPointsForTrend 时整体为 nil）
type WeightTrendInfo struct {
	CurrentTrendKg float64  `json:"current_trend_kg"`
	CurrentRawKg   float64  `json:"current_raw_kg"`
	Delta7dKg      *float64 `json:"delta_7d_kg"`  // 无足够跨度时为 nil
	Delta30dKg     *float64 `json:"delta_30d_kg"` // 同上
	Direction      string   `json:"direction"`    // gaining/losing/maintaining/insufficient_data
	Points         int      `json:"points"`
}

// NutritionMetrics 聚合指标
type NutritionMetrics struct {
	Date         string             `json:"date"`
	Today        TodayProgress      `json:"today"`
	Weekly       WeeklyTrends       `json:"weekly"`
	Consistency  ConsistencyMetrics `json:"consistency"`
	Meals        MealDistribution   `json:"meals"`
	Weight       *WeightTrendInfo   `json:"weight,omitempty"`
	Targets      MacroTargets       `json:"targets"`
	Availability string             `json:"availability"`
}

// ========== 纯计算 ==========

// ComputeMetrics 从快照计算全部指标（纯函数）
func ComputeMetrics(snap *Snapshot) *NutritionMetrics {
	targets := ResolveTargets(snap.Goal, snap.Settings)
	return &NutritionMetrics{
		Date:         snap.Today,
		Today:        computeTodayProgress(snap, targets),
		Weekly:       computeWeeklyTrends(snap, targets),
		Consistency:  computeConsistency(snap),
		Meals:        computeMealDistribution(snap),
		Weight:       computeWeightTrend(snap),
		Targets:      targets,
		Availability: availabilityTier(len(snap.DailyTotals)),
	}
}

func computeTodayProgress(snap *Snapshot, targets MacroTargets) TodayProgress {
	var cal, pro, carb, fat, fiber float64
	for i := range snap.DailyTotals {
		if snap.DailyTotals[i].Date == snap.Today {
			t := snap.DailyTotals[i]
			cal, pro, carb, fat, fiber = t.Calories, t.Protein, t.Carbs, t.Fat, t.Fiber
			break
		}
	}
	meals := snap.TodayMeals
	if meals == nil {
		meals = []string{}
	}
	return TodayProgress{
		Calories:    nutrientProgress(cal, targets.Calories),
		Protein:     nutrientProgress(pro, targets.Protein),
		Carbs:       nutrientProgress(carb, targets.Carbs),
		Fat:         nutrientProgress(fat, targets.Fat),
		FiberGrams:  fiber,
		MealsLogged: meals,
	}
}

func nutrientProgress(consumed, target float64) NutrientProgress {
	p := NutrientProgress{Consumed: consumed, Target: target, Remaining: target - consumed}
	if target > 0 {
		p.PercentComplete = int(math.Round(consumed / target * 100))
	}
	return p
}

func computeWeeklyTrends(snap *Snapshot, targets MacroTargets) WeeklyTrends {
	cur := windowStats(snap.DailyTotals, repository.AddDays(snap.Today, -6), snap.Today)
	prev := windowStats(snap.DailyTotals, repository.AddDays(snap.Today, -13), repository.AddDays(snap.Today, -7))
	return WeeklyTrends{
		Current:          cur,
		Previous:         prev,
		CalorieAdherence: adherence(cur.AvgCalories, targets.Calories, cur.DaysLogged),
		ProteinAdherence: adherence(cur.AvgProtein, targets.Protein, cur.DaysLogged),
		Direction:        weeklyDirection(cur, prev),
	}
}

func windowStats(totals []repository.DailyTotal, startDate, endDate string) WeekWindow {
	w := WeekWindow{StartDate: startDate, EndDate: endDate}
	var cal, pro, carb, fat, fiber float64
	for _, t := range totals {
		if t.Date < startDate || t.Date > endDate {
			continue
		}
		w.DaysLogged++
		cal += t.Calories
		pro += t.Protein
		carb += t.Carbs
		fat += t.Fat
		fiber += t.Fiber
	}
	if w.DaysLogged > 0 {
		n := float64(w.DaysLogged)
		w.AvgCalories = cal / n
		w.AvgProtein = pro / n
		w.AvgCarbs = carb / n
		w.AvgFat = fat / n
		w.AvgFiber = fiber / n
	}
	return w
}

// adherence 周均摄入对目标的贴合度：100 − |均值−目标|/目标·100，截断到 [0,100]
func adherence(avg, target float64, daysLogged int) float64 {
	if daysLogged == 0 || target <= 0 {
		return 0
	}
	return clamp(100-math.Abs(avg-target)/target*100, 0, 100)
}

// weeklyDirection 上周无数据视为 stable
func weeklyDirection(cur, prev WeekWindow) string {
	if cur.DaysLogged == 0 || prev.DaysLogged == 0 || prev.AvgCalories <= 0 {
		return TrendStable
	}
	changePct := (cur.AvgCalories - prev.AvgCalories) / prev.AvgCalories * 100
	if changePct > weeklyDirectionThresholdPct {
		return TrendIncreasing
	}
	if changePct < -weeklyDirectionThresholdPct {
		return TrendDecreasing
	}
	return TrendStable
}

func computeConsistency(snap *Snapshot) ConsistencyMetrics {
	logged := make(map[string]bool, len(snap.DailyTotals))
	for _, t := range snap.DailyTotals {
		logged[t.Date] = true
	}

	m := ConsistencyMetrics{LoggedDays30d: len(snap.DailyTotals)}

	// 从今天往回数，遇到第一个没记录的日子即断（今天没记录则为 0，不设宽限日）
	for d := snap.Today; logged[d]; d = repository.AddDays(d, -1) {
		m.CurrentStreak++
	}

	// 回看窗口内最长连续记录
	dates := make([]string, 0, len(logged))
	for d := range logged {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	run := 0
	for i, d := range dates {
		if i > 0 && repository.AddDays(dates[i-1], 1) == d {
			run++
		} else {
			run = 1
		}
		if run > m.LongestStreak {
			m.LongestStreak = run
		}
	}

	m.LoggingRate7d = loggingRate(logged, snap.Today, 7)
	m.LoggingRate30d = loggingRate(logged, snap.Today, 30)
	return m
}

// loggingRate 最近 days 个日历日中有记录的比例（0-100）
func loggingRate(logged map[string]bool, today string, days int) float64 {
	n := 0
	for _, d := range repository.LastNDates(today, days) {
		if logged[d] {
			n++
		}
	}
	return float64(n) / float64(days) * 100
}

func computeMealDistribution(snap *Snapshot) MealDistribution {
	windowStart := repository.AddDays(snap.Today, -(mealWindowDays - 1))
	loggedDays := 0
	for _, t := range snap.DailyTotals {
		if t.Date >= windowStart && t.Date <= snap.Today {
			loggedDays++
		}
	}

	dist := MealDistribution{DaysLogged: loggedDays}
	if len(snap.MealAggs) == 0 || loggedDays == 0 {
		return dist
	}

	var totalCal float64
	pairCount := 0 // (日期, 餐次) 去重对数
	for _, a := range snap.MealAggs {
		totalCal += a.TotalCalories
		pairCount += a.DistinctDays
	}

	largest := ""
	largestAvg := 0.0
	stats := make([]MealTypeStat, 0, len(snap.MealAggs))
	for _, a := range snap.MealAggs {
		share := 0.0
		if totalCal > 0 {
			share = a.TotalCalories / totalCal * 100
		}
		stats = append(stats, MealTypeStat{
			MealType:     a.MealType,
			DaysLogged:   a.DistinctDays,
			WeeklyFreq:   float64(a.DistinctDays) / float64(mealWindowDays) * 7,
			AvgCalories:  a.AvgCalories,
			CalorieShare: share,
		})
		if a.AvgCalories > largestAvg {
			largestAvg = a.AvgCalories
			largest = a.MealType
		}
	}

	dist.Stats = stats
	dist.AvgMealsPerDay = float64(pairCount) / float64(loggedDays)
	dist.LargestMealType = largest
	return dist
}

func computeWeightTrend(snap *Snapshot) *WeightTrendInfo {
	// 只取"今天"之前（含）且已有趋势值的观测
	points := make([]schema.WeightEntry, 0, len(snap.Weights))
	for _, w := range snap.Weights {
		if w.Date <= snap.Today && w.HasTrend() {
			points = append(points, w)
		}
	}
	if len(points) < minPointsForTrend {
		return nil
	}

	last := points[len(points)-1]
	info := &WeightTrendInfo{
		CurrentTrendKg: last.TrendKg,
		CurrentRawKg:   last.WeightKg,
		Points:         len(points),
		Direction:      WeightInsufficientData,
	}

	info.Delta7dKg = deltaOver(points, 7)
	info.Delta30dKg = deltaOver(points, 30)

	// 方向优先看 7 天差，否则把 30 天差折算到周
	switch {
	case info.Delta7dKg != nil:
		info.Direction = weightDirection(*info.Delta7dKg)
	case info.Delta30dKg != nil:
		info.Direction = weightDirection(*info.Delta30dKg / 30 * 7)
	}
	return info
}

// deltaOver 最新趋势与至少 days 天前最近一次趋势之差，跨度不足返回 nil
func deltaOver(points []schema.WeightEntry, days int) *float64 {
	last := points[len(points)-1]
	cutoff := repository.AddDays(last.Date, -days)
	for i := len(points) - 2; i >= 0; i-- {
		if points[i].Date <= cutoff {
			d := last.TrendKg - points[i].TrendKg
			return &d
		}
	}
	return nil
}

func weightDirection(weeklyDeltaKg float64) string {
	if weeklyDeltaKg > trendDirectionThresholdKg {
		return WeightGaining
	}
	if weeklyDeltaKg < -trendDirectionThresholdKg {
		return WeightLosing
	}
	return WeightMaintaining
}

// availabilityTier 按 30 天内记录天数分层，分界值待产品评审
func availabilityTier(loggedDays int) string {
	switch {
	case loggedDays == 0:
		return AvailabilityNone
	case loggedDays < 7:
		return AvailabilityLow
	case loggedDays < 21:
		return AvailabilityMedium
	default:
		return AvailabilityHigh
	}
}
