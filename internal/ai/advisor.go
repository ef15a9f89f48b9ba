package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
)

// 模板兜底文案
const (
	noPatternsFallback = "no patterns detected yet"
	noFoodsFallback    = "no frequent foods data yet"
	noMemoriesFallback = "no prior coaching history"
)

const lbsPerKg = 2.20462

// CoachContext 渲染 prompt 所需的全部营养上下文（由服务层装配）
type CoachContext struct {
	Date         string
	Availability string // none/low/medium/high
	WeightUnit   string // kg/lbs
	GoalType     string // lose/maintain/gain，可为空

	Profile       *ProfileInfo
	Today         TodayInfo
	Weekly        WeeklyInfo
	Consistency   ConsistencyInfo
	Meals         MealsInfo
	Weight        *WeightInfo // 趋势点不足时为 nil，整段省略
	Insights      []InsightLine
	FrequentFoods []FoodInfo
}

// ProfileInfo 画像摘要
type ProfileInfo struct {
	Sex           string
	AgeYears      int
	HeightCm      float64
	ActivityLevel string
	EatingStyle   string
}

// NutrientLine 今日单项营养素进度
type NutrientLine struct {
	Name     string // Calories/Protein/Carbs/Fat
	Unit     string // kcal/g
	Consumed float64
	Target   float64
	Percent  int
}

// TodayInfo 今日进度
type TodayInfo struct {
	Nutrients   []NutrientLine
	FiberGrams  float64
	MealsLogged []string
}

// WeeklyInfo 周对比
type WeeklyInfo struct {
	DaysLogged       int
	PrevDaysLogged   int
	AvgCalories      float64
	PrevAvgCalories  float64
	AvgProtein       float64
	AvgFiber         float64
	CalorieAdherence float64
	ProteinAdherence float64
	Direction        string // stable/increasing/decreasing
}

// ConsistencyInfo 记录一致性
type ConsistencyInfo struct {
	CurrentStreak int
	LongestStreak int
	Rate7d        float64
	Rate30d       float64
}

// MealLine 餐次分布行
type MealLine struct {
	MealType     string
	WeeklyFreq   float64
	AvgCalories  float64
	CalorieShare float64
}

// MealsInfo 餐次分布
type MealsInfo struct {
	Lines          []MealLine
	AvgMealsPerDay float64
	LargestMeal    string
}

// WeightInfo 体重趋势
type WeightInfo struct {
	CurrentTrendKg float64
	Delta7dKg      *float64
	Delta30dKg     *float64
	Direction      string
	Points         int
}

// InsightLine 派生洞察
type InsightLine struct {
	Category string
	Message  string
}

// FoodInfo 高频食物
type FoodInfo struct {
	Name        string
	TimesLogged int
	AvgCalories float64
}

// DailyAdviceRequest 每日建议请求
type DailyAdviceRequest struct {
	Context CoachContext
}

// DailyAdviceResult 每日建议结果
type DailyAdviceResult struct {
	Headline     string   `json:"headline"`
	Observations []string `json:"observations"`
	Tip          string   `json:"tip"`
}

// WeeklyReportRequest 周报请求
type WeeklyReportRequest struct {
	Context   CoachContext
	WeekStart string
	WeekEnd   string
	Memories  []string // 相关历史建议（RAG 召回，可为空）
}

// WeeklyReportResult 周报结果
type WeeklyReportResult struct {
	Narrative     string   `json:"narrative"`
	Wins          []string `json:"wins"`
	Suggestion    string   `json:"suggestion"`
	Encouragement string   `json:"encouragement"`
}

// RenderOptions 控制上下文中的可选段落
type RenderOptions struct {
	IncludeInsights bool
	IncludeFoods    bool
}

// RenderContext 把营养上下文渲染为带标签的纯文本段落，段落间以空行分隔。
// 画像、今日进度、周趋势、一致性、餐次分布五段始终存在；
// 体重趋势、洞察、高频食物在数据缺失时整段省略，即使调用方要求包含。
func RenderContext(c *CoachContext, opts RenderOptions) string {
	sections := []string{
		renderProfile(c),
		renderToday(c),
		renderWeekly(c),
		renderConsistency(c),
		renderMeals(c),
	}
	if c.Weight != nil {
		sections = append(sections, renderWeight(c))
	}
	if opts.IncludeInsights && len(c.Insights) > 0 {
		sections = append(sections, "DETECTED PATTERNS:\n"+renderInsightLines(c.Insights))
	}
	if opts.IncludeFoods && len(c.FrequentFoods) > 0 {
		sections = append(sections, "FREQUENT FOODS:\n"+renderFoodLines(c.FrequentFoods))
	}
	return strings.Join(sections, "\n\n")
}

func renderProfile(c *CoachContext) string {
	var b strings.Builder
	b.WriteString("PROFILE:\n")
	switch c.GoalType {
	case "lose":
		b.WriteString("- Goal: lose weight\n")
	case "gain":
		b.WriteString("- Goal: gain weight\n")
	case "maintain":
		b.WriteString("- Goal: maintain weight\n")
	default:
		b.WriteString("- Goal: not set\n")
	}
	if c.Profile == nil {
		b.WriteString("- Details: not provided")
		return b.String()
	}
	var parts []string
	if c.Profile.Sex != "" {
		parts = append(parts, c.Profile.Sex)
	}
	if c.Profile.AgeYears > 0 {
		parts = append(parts, fmt.Sprintf("age %d", c.Profile.AgeYears))
	}
	if c.Profile.HeightCm > 0 {
		parts = append(parts, fmt.Sprintf("height %.0f cm", c.Profile.HeightCm))
	}
	if len(parts) > 0 {
		b.WriteString("- " + capitalizeFirst(strings.Join(parts, ", ")) + "\n")
	}
	if c.Profile.ActivityLevel != "" {
		b.WriteString("- Activity level: " + despace(c.Profile.ActivityLevel) + "\n")
	}
	if c.Profile.EatingStyle != "" {
		b.WriteString("- Eating style: " + despace(c.Profile.EatingStyle) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderToday(c *CoachContext) string {
	var b strings.Builder
	if c.Date != "" {
		fmt.Fprintf(&b, "TODAY'S PROGRESS (%s):\n", c.Date)
	} else {
		b.WriteString("TODAY'S PROGRESS:\n")
	}
	if len(c.Today.Nutrients) == 0 {
		b.WriteString("- Nothing logged yet today")
		return b.String()
	}
	for _, n := range c.Today.Nutrients {
		fmt.Fprintf(&b, "- %s: %.0f / %.0f %s (%d%%)\n", n.Name, n.Consumed, n.Target, n.Unit, n.Percent)
	}
	fmt.Fprintf(&b, "- Fiber: %.0f g\n", c.Today.FiberGrams)
	if len(c.Today.MealsLogged) > 0 {
		fmt.Fprintf(&b, "- Meals logged: %s", strings.Join(c.Today.MealsLogged, ", "))
	} else {
		b.WriteString("- Meals logged: none yet")
	}
	return b.String()
}

func renderWeekly(c *CoachContext) string {
	var b strings.Builder
	b.WriteString("WEEKLY TRENDS:\n")
	w := c.Weekly
	fmt.Fprintf(&b, "- Days logged: %d of 7 (prior week: %d)\n", w.DaysLogged, w.PrevDaysLogged)
	if w.DaysLogged == 0 {
		b.WriteString("- No food logged in the last 7 days")
		return b.String()
	}
	if w.PrevDaysLogged > 0 {
		fmt.Fprintf(&b, "- Avg calories: %.0f kcal/day, prior week %.0f (%s)\n",
			w.AvgCalories, w.PrevAvgCalories, w.Direction)
	} else {
		fmt.Fprintf(&b, "- Avg calories: %.0f kcal/day (no prior-week data)\n", w.AvgCalories)
	}
	fmt.Fprintf(&b, "- Avg protein: %.0f g/day, fiber %.0f g/day\n", w.AvgProtein, w.AvgFiber)
	fmt.Fprintf(&b, "- Calorie adherence: %.0f%%, protein adherence: %.0f%%", w.CalorieAdherence, w.ProteinAdherence)
	return b.String()
}

func renderConsistency(c *CoachContext) string {
	var b strings.Builder
	b.WriteString("CONSISTENCY:\n")
	fmt.Fprintf(&b, "- Current streak: %d days\n", c.Consistency.CurrentStreak)
	fmt.Fprintf(&b, "- Longest streak: %d days\n", c.Consistency.LongestStreak)
	fmt.Fprintf(&b, "- Logging rate: %.0f%% over 7 days, %.0f%% over 30 days",
		c.Consistency.Rate7d, c.Consistency.Rate30d)
	return b.String()
}

func renderMeals(c *CoachContext) string {
	var b strings.Builder
	b.WriteString("MEAL DISTRIBUTION:\n")
	if len(c.Meals.Lines) == 0 {
		b.WriteString("- No meal data in the last 7 days")
		return b.String()
	}
	for _, m := range c.Meals.Lines {
		fmt.Fprintf(&b, "- %s: %.1f days/week, avg %.0f kcal (%.0f%% of calories)\n",
			capitalizeFirst(m.MealType), m.WeeklyFreq, m.AvgCalories, m.CalorieShare)
	}
	fmt.Fprintf(&b, "- Avg meals per day: %.1f", c.Meals.AvgMealsPerDay)
	if c.Meals.LargestMeal != "" {
		fmt.Fprintf(&b, " (largest: %s)", c.Meals.LargestMeal)
	}
	return b.String()
}

func renderWeight(c *CoachContext) string {
	unit := normalizeUnit(c.WeightUnit)
	w := c.Weight
	var b strings.Builder
	b.WriteString("WEIGHT TREND:\n")
	fmt.Fprintf(&b, "- Current trend weight: %s\n", formatWeight(w.CurrentTrendKg, unit))
	if w.Delta7dKg != nil {
		fmt.Fprintf(&b, "- 7-day change: %s\n", formatDelta(*w.Delta7dKg, unit))
	}
	if w.Delta30dKg != nil {
		fmt.Fprintf(&b, "- 30-day change: %s\n", formatDelta(*w.Delta30dKg, unit))
	}
	fmt.Fprintf(&b, "- Direction: %s (%d weigh-ins on record)", despace(w.Direction), w.Points)
	return b.String()
}

func renderInsightLines(insights []InsightLine) string {
	if len(insights) == 0 {
		return noPatternsFallback
	}
	lines := make([]string, len(insights))
	for i, ins := range insights {
		lines[i] = fmt.Sprintf("- [%s] %s", ins.Category, ins.Message)
	}
	return strings.Join(lines, "\n")
}

func renderFoodLines(foods []FoodInfo) string {
	if len(foods) == 0 {
		return noFoodsFallback
	}
	lines := make([]string, len(foods))
	for i, f := range foods {
		lines[i] = fmt.Sprintf("- %s: logged %d times, avg %.0f kcal", f.Name, f.TimesLogged, f.AvgCalories)
	}
	return strings.Join(lines, "\n")
}

func renderMemoryLines(memories []string) string {
	if len(memories) == 0 {
		return noMemoriesFallback
	}
	lines := make([]string, 0, len(memories))
	for _, m := range memories {
		if strings.TrimSpace(m) == "" {
			continue
		}
		lines = append(lines, "- "+strings.TrimSpace(m))
	}
	if len(lines) == 0 {
		return noMemoriesFallback
	}
	return strings.Join(lines, "\n")
}

// availabilityLabel 数据量档位标签，指导下游措辞的笃定程度
func availabilityLabel(tier string) string {
	switch tier {
	case "low":
		return "low (under a week of logs; phrase observations tentatively)"
	case "medium":
		return "medium (one to three weeks of logs; reasonably confident observations are fine)"
	case "high":
		return "high (three weeks or more of logs; patterns are trustworthy)"
	case "none", "":
		return "none (no logged data yet; keep advice generic and invite the user to start logging)"
	}
	return tier
}

// normalizeUnit 仅识别 lbs，其余一律按 kg 处理
func normalizeUnit(unit string) string {
	if unit == "lbs" {
		return "lbs"
	}
	return "kg"
}

func convertKg(kg float64, unit string) float64 {
	v := kg
	if unit == "lbs" {
		v = kg * lbsPerKg
	}
	v = math.Round(v*10) / 10
	if v == 0 {
		return 0 // 吸收 -0.0
	}
	return v
}

func formatWeight(kg float64, unit string) string {
	return fmt.Sprintf("%.1f %s", convertKg(kg, unit), unit)
}

// formatDelta 正值带显式 +，负值与零不带
func formatDelta(kg float64, unit string) string {
	v := convertKg(kg, unit)
	if v > 0 {
		return fmt.Sprintf("+%.1f %s", v, unit)
	}
	return fmt.Sprintf("%.1f %s", v, unit)
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func despace(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}

const dailySystemPrompt = "You are a supportive, evidence-minded nutrition coach. You ground every statement " +
	"in the user's logged data, never invent numbers, and keep advice small and doable. Reply with pure JSON only, no markdown."

const weeklySystemPrompt = "You are a supportive nutrition coach writing a weekly review. You ground every claim " +
	"in the user's logged data and balance honesty with encouragement. Reply with pure JSON only, no markdown."

const dailyPromptTemplate = `Here is today's nutrition data for the user you are coaching.

DATA AVAILABILITY: {DATA_AVAILABILITY}

{CONTEXT}

DETECTED PATTERNS:
{INSIGHTS}

FREQUENT FOODS:
{FREQUENT_FOODS}

Reply with pure JSON (no markdown fences):
{
  "headline": "one short, friendly headline for today",
  "observations": ["2-3 short observations grounded in the numbers above"],
  "tip": "one concrete, doable tip for the rest of today or tomorrow"
}
Weights are shown in {WEIGHT_UNIT}. Keep each observation under 25 words. Never state a number that does not appear in the data above.`

const weeklyPromptTemplate = `Here is the past week of nutrition data ({WEEK_RANGE}) for the user you are coaching.

DATA AVAILABILITY: {DATA_AVAILABILITY}

{CONTEXT}

DETECTED PATTERNS:
{INSIGHTS}

FREQUENT FOODS:
{FREQUENT_FOODS}

RELEVANT HISTORY:
{MEMORIES}

Reply with pure JSON (no markdown fences):
{
  "narrative": "a 2-3 paragraph review covering calorie and macro trends plus logging consistency, paragraphs separated by blank lines",
  "wins": ["1-3 concrete wins worth celebrating"],
  "suggestion": "exactly one actionable suggestion for next week",
  "encouragement": "one warm, encouraging closing sentence"
}
Weights are shown in {WEIGHT_UNIT}. Ground every claim in the data above; never invent numbers.`

// BuildDailyPrompt 组装每日建议 prompt，所有占位符必须全部替换
func BuildDailyPrompt(req *DailyAdviceRequest) string {
	c := &req.Context
	repl := strings.NewReplacer(
		"{DATA_AVAILABILITY}", availabilityLabel(c.Availability),
		"{CONTEXT}", RenderContext(c, RenderOptions{}),
		"{INSIGHTS}", renderInsightLines(c.Insights),
		"{FREQUENT_FOODS}", renderFoodLines(c.FrequentFoods),
		"{WEIGHT_UNIT}", normalizeUnit(c.WeightUnit),
	)
	return repl.Replace(dailyPromptTemplate)
}

// BuildWeeklyPrompt 组装周报 prompt
func BuildWeeklyPrompt(req *WeeklyReportRequest) string {
	c := &req.Context
	repl := strings.NewReplacer(
		"{WEEK_RANGE}", req.WeekStart+" to "+req.WeekEnd,
		"{DATA_AVAILABILITY}", availabilityLabel(c.Availability),
		"{CONTEXT}", RenderContext(c, RenderOptions{}),
		"{INSIGHTS}", renderInsightLines(c.Insights),
		"{FREQUENT_FOODS}", renderFoodLines(c.FrequentFoods),
		"{MEMORIES}", renderMemoryLines(req.Memories),
		"{WEIGHT_UNIT}", normalizeUnit(c.WeightUnit),
	)
	return repl.Replace(weeklyPromptTemplate)
}

// NutritionAdvisor 营养建议生成器
type NutritionAdvisor struct {
	client *DeepSeekClient
}

// NewNutritionAdvisor 创建建议生成器
func NewNutritionAdvisor(client *DeepSeekClient) *NutritionAdvisor {
	return &NutritionAdvisor{client: client}
}

// IsConfigured 检查底层客户端是否已配置
func (a *NutritionAdvisor) IsConfigured() bool {
	return a.client.IsConfigured()
}

// GenerateDailyAdvice 生成每日建议
func (a *NutritionAdvisor) GenerateDailyAdvice(ctx context.Context, req *DailyAdviceRequest) (*DailyAdviceResult, error) {
	if !a.client.IsConfigured() {
		return nil, fmt.Errorf("DeepSeek API 未配置")
	}

	messages := []Message{
		{Role: "system", Content: dailySystemPrompt},
		{Role: "user", Content: BuildDailyPrompt(req)},
	}

	response, err := a.client.ChatJSONWithRetry(ctx, messages, 0.5, 800, 3)
	if err != nil {
		return nil, fmt.Errorf("生成每日建议失败: %w", err)
	}

	response = cleanJSONResponse(response)

	var result DailyAdviceResult
	if err := json.Unmarshal([]byte(response), &result); err != nil {
		return nil, fmt.Errorf("解析每日建议失败: %w", err)
	}
	if strings.TrimSpace(result.Headline) == "" {
		return nil, fmt.Errorf("每日建议内容为空")
	}
	if len(result.Observations) > 3 {
		result.Observations = result.Observations[:3]
	}

	slog.Debug("每日建议生成成功", "date", req.Context.Date)
	return &result, nil
}

// GenerateWeeklyReport 生成周报
func (a *NutritionAdvisor) GenerateWeeklyReport(ctx context.Context, req *WeeklyReportRequest) (*WeeklyReportResult, error) {
	if !a.client.IsConfigured() {
		return nil, fmt.Errorf("DeepSeek API 未配置")
	}

	messages := []Message{
		{Role: "system", Content: weeklySystemPrompt},
		{Role: "user", Content: BuildWeeklyPrompt(req)},
	}

	response, err := a.client.ChatJSONWithRetry(ctx, messages, 0.5, 1500, 3)
	if err != nil {
		return nil, fmt.Errorf("生成周报失败: %w", err)
	}

	response = cleanJSONResponse(response)

	var result WeeklyReportResult
	if err := json.Unmarshal([]byte(response), &result); err != nil {
		return nil, fmt.Errorf("解析周报失败: %w", err)
	}
	if strings.TrimSpace(result.Narrative) == "" {
		return nil, fmt.Errorf("周报内容为空")
	}
	if len(result.Wins) > 3 {
		result.Wins = result.Wins[:3]
	}

	slog.Debug("周报生成成功", "start", req.WeekStart, "end", req.WeekEnd)
	return &result, nil
}

// cleanJSONResponse 清理 JSON 响应（移除 markdown 代码块和额外文本）
func cleanJSONResponse(response string) string {
	response = strings.TrimSpace(response)

	// 移除 ```json ... ``` 或 ``` ... ```
	if strings.Contains(response, "```") {
		// 找 JSON 开始位置
		jsonStart := strings.Index(response, "```json")
		if jsonStart == -1 {
			jsonStart = strings.Index(response, "```")
		}
		if jsonStart != -1 {
			// 跳过 ```json\n 或 ```\n
			startIdx := strings.Index(response[jsonStart:], "\n")
			if startIdx != -1 {
				response = response[jsonStart+startIdx+1:]
			}
		}
		// 移除结尾的 ```
		if endIdx := strings.LastIndex(response, "```"); endIdx != -1 {
			response = response[:endIdx]
		}
	}

	response = strings.TrimSpace(response)

	// 尝试提取 JSON 对象（处理模型添加的前缀/后缀文字）
	if !strings.HasPrefix(response, "{") {
		if idx := strings.Index(response, "{"); idx != -1 {
			response = response[idx:]
		}
	}
	if !strings.HasSuffix(response, "}") {
		if idx := strings.LastIndex(response, "}"); idx != -1 {
			response = response[:idx+1]
		}
	}

	return strings.TrimSpace(response)
}
