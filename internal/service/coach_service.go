package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yuqie6/NutriMirror/internal/ai"
	"github.com/yuqie6/NutriMirror/internal/repository"
	"github.com/yuqie6/NutriMirror/internal/schema"
)

// 缓存时效（经验值，待产品评审）
const (
	dailyAdviceTTL  = 5 * time.Minute // 当日建议在该窗口内直接复用
	weeklyReportTTL = time.Hour       // 进行中一周的周报复用窗口
	recallTopK      = 3               // 周报召回的历史建议条数
)

// CoachService 教练服务：装配营养上下文、调用 AI 并缓存结果
type CoachService struct {
	metrics    *MetricsService
	advisor    Advisor
	adviceRepo AdviceRepository
	reportRepo ReportRepository
	recall     Recaller
	modelName  string

	onAdviceGenerated func(date string)
	onReportGenerated func(startDate, endDate string)
}

// NewCoachService 创建教练服务
func NewCoachService(
	metrics *MetricsService,
	advisor Advisor,
	adviceRepo AdviceRepository,
	reportRepo ReportRepository,
) *CoachService {
	return &CoachService{
		metrics:    metrics,
		advisor:    advisor,
		adviceRepo: adviceRepo,
		reportRepo: reportRepo,
	}
}

// SetRecaller 注入历史建议召回（可选，未注入则周报不带记忆）
func (s *CoachService) SetRecaller(r Recaller) {
	s.recall = r
}

// SetModelName 记录生成所用的模型名，随建议落库
func (s *CoachService) SetModelName(name string) {
	s.modelName = name
}

// SetOnAdviceGenerated 设置每日建议生成后的回调
func (s *CoachService) SetOnAdviceGenerated(fn func(date string)) {
	s.onAdviceGenerated = fn
}

// SetOnReportGenerated 设置周报生成后的回调
func (s *CoachService) SetOnReportGenerated(fn func(startDate, endDate string)) {
	s.onReportGenerated = fn
}

// GetDailyAdvice 获取某日的 AI 建议。
// 当日结果在 TTL 内直接复用；历史日期数据不再变化，有缓存即返回；
// force 跳过缓存强制重新生成。生成失败且有旧缓存时降级返回缓存。
func (s *CoachService) GetDailyAdvice(ctx context.Context, date string, force bool) (*schema.DailyAdvice, error) {
	today := repository.Today()

	if !force && date == today {
		fresh, err := s.adviceRepo.GetFresh(ctx, date, dailyAdviceTTL)
		if err != nil {
			slog.Warn("查询建议缓存失败", "date", date, "error", err)
		} else if fresh != nil {
			return fresh, nil
		}
	}

	cached, err := s.adviceRepo.GetByDate(ctx, date)
	if err != nil {
		slog.Warn("查询历史建议失败", "date", date, "error", err)
	}
	if cached != nil && !force && date != today {
		return cached, nil
	}

	if !s.advisor.IsConfigured() {
		if cached != nil {
			return cached, nil
		}
		return nil, fmt.Errorf("AI 建议未配置（缺少 DeepSeek API Key）")
	}

	req, err := s.buildDailyRequest(ctx, date)
	if err != nil {
		return nil, err
	}

	result, err := s.advisor.GenerateDailyAdvice(ctx, req)
	if err != nil {
		if cached != nil {
			slog.Error("生成建议失败，降级返回缓存", "date", date, "error", err)
			return cached, nil
		}
		return nil, err
	}

	advice := &schema.DailyAdvice{
		Date:         date,
		Headline:     result.Headline,
		Observations: schema.JSONArray(result.Observations),
		Tip:          result.Tip,
		Model:        s.modelName,
		Prompt:       ai.BuildDailyPrompt(req),
	}
	if err := s.adviceRepo.Upsert(ctx, advice); err != nil {
		return nil, fmt.Errorf("保存每日建议失败: %w", err)
	}

	if s.recall != nil {
		if err := s.recall.IndexDailyAdvice(ctx, advice); err != nil {
			slog.Warn("索引建议失败", "date", date, "error", err)
		}
	}
	if s.onAdviceGenerated != nil {
		s.onAdviceGenerated(date)
	}
	slog.Info("每日建议已生成", "date", date)
	return advice, nil
}

// GetWeeklyReport 获取以 endDate 结尾的 7 天周报。
// 已结束的周永不过期；覆盖今天的周按 TTL 复用；force 强制重新生成。
func (s *CoachService) GetWeeklyReport(ctx context.Context, endDate string, force bool) (*schema.WeeklyReport, error) {
	startDate := repository.AddDays(endDate, -6)
	today := repository.Today()

	maxAge := time.Duration(0) // 0 表示不做时效检查
	if endDate >= today {
		maxAge = weeklyReportTTL
	}
	cached, err := s.reportRepo.GetByRange(ctx, startDate, endDate, maxAge)
	if err != nil {
		slog.Warn("查询周报缓存失败", "start", startDate, "end", endDate, "error", err)
	}
	if cached != nil && !force {
		return cached, nil
	}

	if !s.advisor.IsConfigured() {
		if cached != nil {
			return cached, nil
		}
		return nil, fmt.Errorf("AI 周报未配置（缺少 DeepSeek API Key）")
	}

	cc, err := s.buildCoachContext(ctx, endDate)
	if err != nil {
		return nil, err
	}
	req := &ai.WeeklyReportRequest{
		Context:   *cc,
		WeekStart: startDate,
		WeekEnd:   endDate,
		Memories:  s.recallMemories(ctx, cc),
	}

	result, err := s.advisor.GenerateWeeklyReport(ctx, req)
	if err != nil {
		if cached != nil {
			slog.Error("生成周报失败，降级返回缓存", "start", startDate, "end", endDate, "error", err)
			return cached, nil
		}
		return nil, err
	}

	report := &schema.WeeklyReport{
		StartDate:     startDate,
		EndDate:       endDate,
		Narrative:     result.Narrative,
		Wins:          schema.JSONArray(result.Wins),
		Suggestion:    result.Suggestion,
		Encouragement: result.Encouragement,
		Model:         s.modelName,
	}
	if err := s.reportRepo.Upsert(ctx, report); err != nil {
		return nil, fmt.Errorf("保存周报失败: %w", err)
	}

	if s.recall != nil {
		if err := s.recall.IndexWeeklyReport(ctx, report); err != nil {
			slog.Warn("索引周报失败", "start", startDate, "error", err)
		}
	}
	if s.onReportGenerated != nil {
		s.onReportGenerated(startDate, endDate)
	}
	slog.Info("周报已生成", "start", startDate, "end", endDate)
	return report, nil
}

// PromptPreview 返回某日建议的完整 prompt，不要求配置 API Key
func (s *CoachService) PromptPreview(ctx context.Context, date string) (string, error) {
	req, err := s.buildDailyRequest(ctx, date)
	if err != nil {
		return "", err
	}
	return ai.BuildDailyPrompt(req), nil
}

// WeeklyPromptPreview 返回以 endDate 结尾一周的周报 prompt，不要求配置 API Key
func (s *CoachService) WeeklyPromptPreview(ctx context.Context, endDate string) (string, error) {
	cc, err := s.buildCoachContext(ctx, endDate)
	if err != nil {
		return "", err
	}
	req := &ai.WeeklyReportRequest{
		Context:   *cc,
		WeekStart: repository.AddDays(endDate, -6),
		WeekEnd:   endDate,
		Memories:  s.recallMemories(ctx, cc),
	}
	return ai.BuildWeeklyPrompt(req), nil
}

// RenderedContext 返回某日渲染后的营养上下文（含洞察与高频食物段落）
func (s *CoachService) RenderedContext(ctx context.Context, date string) (string, error) {
	cc, err := s.buildCoachContext(ctx, date)
	if err != nil {
		return "", err
	}
	return ai.RenderContext(cc, ai.RenderOptions{IncludeInsights: true, IncludeFoods: true}), nil
}

// BackfillAdvice 为最近 days 天内已有记录但尚无建议的日期补齐建议，
// 返回成功生成的条数。并发生成但全局限速，避免打爆 API。
func (s *CoachService) BackfillAdvice(ctx context.Context, days int) (int, error) {
	if !s.advisor.IsConfigured() {
		return 0, fmt.Errorf("AI 建议未配置（缺少 DeepSeek API Key）")
	}

	today := repository.Today()
	dates, err := s.metrics.LoggedDates(ctx, repository.AddDays(today, -days), repository.AddDays(today, -1))
	if err != nil {
		return 0, err
	}

	pending := make([]string, 0, len(dates))
	for _, d := range dates {
		advice, err := s.adviceRepo.GetByDate(ctx, d)
		if err != nil {
			slog.Warn("查询历史建议失败", "date", d, "error", err)
			continue
		}
		if advice == nil {
			pending = append(pending, d)
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}

	slog.Info("开始补齐历史建议", "count", len(pending))

	const workerCount = 3
	const rateLimit = time.Second

	limiter := time.NewTicker(rateLimit / time.Duration(workerCount))
	defer limiter.Stop()

	tasks := make(chan string, len(pending))
	for _, d := range pending {
		tasks <- d
	}
	close(tasks)

	var generated int32
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for date := range tasks {
				select {
				case <-ctx.Done():
					return
				case <-limiter.C:
				}
				if _, err := s.GetDailyAdvice(ctx, date, false); err != nil {
					slog.Error("补齐建议失败", "date", date, "error", err)
					continue
				}
				atomic.AddInt32(&generated, 1)
			}
		}()
	}
	wg.Wait()

	slog.Info("历史建议补齐完成", "generated", atomic.LoadInt32(&generated), "total", len(pending))
	return int(atomic.LoadInt32(&generated)), nil
}

// recallMemories 召回与本周情况相关的历史建议，失败只降级不报错
func (s *CoachService) recallMemories(ctx context.Context, cc *ai.CoachContext) []string {
	if s.recall == nil {
		return nil
	}
	goal := cc.GoalType
	if goal == "" {
		goal = "general health"
	}
	query := fmt.Sprintf("weekly nutrition review, avg %.0f kcal/day, goal %s", cc.Weekly.AvgCalories, goal)
	results, err := s.recall.Query(ctx, query, recallTopK)
	if err != nil {
		slog.Debug("历史建议召回失败", "error", err)
		return nil
	}
	memories := make([]string, 0, len(results))
	for _, r := range results {
		memories = append(memories, r.Content)
	}
	return memories
}

func (s *CoachService) buildDailyRequest(ctx context.Context, date string) (*ai.DailyAdviceRequest, error) {
	cc, err := s.buildCoachContext(ctx, date)
	if err != nil {
		return nil, err
	}
	return &ai.DailyAdviceRequest{Context: *cc}, nil
}

// buildCoachContext 加载快照、计算指标、推导洞察，再映射为 prompt 上下文
func (s *CoachService) buildCoachContext(ctx context.Context, date string) (*ai.CoachContext, error) {
	snap, err := s.metrics.LoadSnapshot(ctx, date)
	if err != nil {
		return nil, err
	}
	m := ComputeMetrics(snap)
	goalType := ""
	if snap.Goal != nil {
		goalType = snap.Goal.Type
	}
	insights := DeriveInsights(snap, m, goalType)

	weightUnit := ""
	if snap.Settings != nil {
		weightUnit = snap.Settings.WeightUnit
	}

	cc := &ai.CoachContext{
		Date:         date,
		Availability: m.Availability,
		WeightUnit:   schema.NormalizeWeightUnit(weightUnit),
		GoalType:     goalType,
		Today: ai.TodayInfo{
			Nutrients: []ai.NutrientLine{
				{Name: "Calories", Unit: "kcal", Consumed: m.Today.Calories.Consumed, Target: m.Today.Calories.Target, Percent: m.Today.Calories.PercentComplete},
				{Name: "Protein", Unit: "g", Consumed: m.Today.Protein.Consumed, Target: m.Today.Protein.Target, Percent: m.Today.Protein.PercentComplete},
				{Name: "Carbs", Unit: "g", Consumed: m.Today.Carbs.Consumed, Target: m.Today.Carbs.Target, Percent: m.Today.Carbs.PercentComplete},
				{Name: "Fat", Unit: "g", Consumed: m.Today.Fat.Consumed, Target: m.Today.Fat.Target, Percent: m.Today.Fat.PercentComplete},
			},
			FiberGrams:  m.Today.FiberGrams,
			MealsLogged: m.Today.MealsLogged,
		},
		Weekly: ai.WeeklyInfo{
			DaysLogged:       m.Weekly.Current.DaysLogged,
			PrevDaysLogged:   m.Weekly.Previous.DaysLogged,
			AvgCalories:      m.Weekly.Current.AvgCalories,
			PrevAvgCalories:  m.Weekly.Previous.AvgCalories,
			AvgProtein:       m.Weekly.Current.AvgProtein,
			AvgFiber:         m.Weekly.Current.AvgFiber,
			CalorieAdherence: m.Weekly.CalorieAdherence,
			ProteinAdherence: m.Weekly.ProteinAdherence,
			Direction:        m.Weekly.Direction,
		},
		Consistency: ai.ConsistencyInfo{
			CurrentStreak: m.Consistency.CurrentStreak,
			LongestStreak: m.Consistency.LongestStreak,
			Rate7d:        m.Consistency.LoggingRate7d,
			Rate30d:       m.Consistency.LoggingRate30d,
		},
		Meals: ai.MealsInfo{
			AvgMealsPerDay: m.Meals.AvgMealsPerDay,
			LargestMeal:    m.Meals.LargestMealType,
		},
	}

	if snap.Profile != nil {
		cc.Profile = &ai.ProfileInfo{
			Sex:           snap.Profile.Sex,
			AgeYears:      snap.Profile.AgeYears,
			HeightCm:      snap.Profile.HeightCm,
			ActivityLevel: snap.Profile.ActivityLevel,
			EatingStyle:   snap.Profile.EatingStyle,
		}
	}
	for _, st := range m.Meals.Stats {
		cc.Meals.Lines = append(cc.Meals.Lines, ai.MealLine{
			MealType:     st.MealType,
			WeeklyFreq:   st.WeeklyFreq,
			AvgCalories:  st.AvgCalories,
			CalorieShare: st.CalorieShare,
		})
	}
	if m.Weight != nil {
		cc.Weight = &ai.WeightInfo{
			CurrentTrendKg: m.Weight.CurrentTrendKg,
			Delta7dKg:      m.Weight.Delta7dKg,
			Delta30dKg:     m.Weight.Delta30dKg,
			Direction:      m.Weight.Direction,
			Points:         m.Weight.Points,
		}
	}
	for _, in := range insights {
		cc.Insights = append(cc.Insights, ai.InsightLine{Category: in.Category, Message: in.Message})
	}
	for _, f := range snap.FrequentFoods {
		cc.FrequentFoods = append(cc.FrequentFoods, ai.FoodInfo{
			Name:        f.Name,
			TimesLogged: f.TimesLogged,
			AvgCalories: f.AvgCalories,
		})
	}
	return cc, nil
}
