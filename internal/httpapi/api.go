package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/yuqie6/NutriMirror/internal/eventbus"
	"github.com/yuqie6/NutriMirror/internal/importer"
	"github.com/yuqie6/NutriMirror/internal/pkg/buildinfo"
	"github.com/yuqie6/NutriMirror/internal/repository"
	"github.com/yuqie6/NutriMirror/internal/schema"
	"github.com/yuqie6/NutriMirror/internal/service"
)

// ========== DTOs（与客户端契约保持稳定） ==========

type FoodEntryDTO struct {
	ID       int64   `json:"id"`
	Date     string  `json:"date"`
	Time     string  `json:"time"`
	Name     string  `json:"name"`
	MealType string  `json:"meal_type"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
	Fiber    float64 `json:"fiber"`
	Source   string  `json:"source,omitempty"`
}

type LogFoodRequestDTO struct {
	Date     string  `json:"date"`      // 缺省今天
	Time     string  `json:"time"`      // HH:MM，缺省当前时刻
	Name     string  `json:"name"`
	MealType string  `json:"meal_type"` // 缺省按时刻推断
	Quantity float64 `json:"quantity"`  // 缺省 1
	Unit     string  `json:"unit"`
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
	Fiber    float64 `json:"fiber"`
}

type WeightEntryDTO struct {
	Date      string  `json:"date"`
	WeightKg  float64 `json:"weight_kg"`
	WeightLbs float64 `json:"weight_lbs"`
	TrendKg   float64 `json:"trend_kg,omitempty"`
	TrendLbs  float64 `json:"trend_lbs,omitempty"`
	Note      string  `json:"note,omitempty"`
}

type LogWeightRequestDTO struct {
	Date   string  `json:"date"` // 缺省今天
	Weight float64 `json:"weight"`
	Unit   string  `json:"unit"` // kg/lbs，缺省按用户偏好
	Note   string  `json:"note"`
}

type SetGoalRequestDTO struct {
	Type           string  `json:"type"` // lose/maintain/gain
	TargetWeightKg float64 `json:"target_weight_kg"`
	WeeklyRateKg   float64 `json:"weekly_rate_kg"`
	TargetCalories float64 `json:"target_calories"`
	TargetProtein  float64 `json:"target_protein"`
	TargetCarbs    float64 `json:"target_carbs"`
	TargetFat      float64 `json:"target_fat"`
	StartDate      string  `json:"start_date"` // 缺省今天
}

type AdviceDTO struct {
	Date         string   `json:"date"`
	Headline     string   `json:"headline"`
	Observations []string `json:"observations"`
	Tip          string   `json:"tip"`
	Model        string   `json:"model,omitempty"`
	GeneratedAt  string   `json:"generated_at"`
}

type AdviceIndexDTO struct {
	Date    string `json:"date"`
	Preview string `json:"preview"`
}

type ReportDTO struct {
	StartDate     string   `json:"start_date"`
	EndDate       string   `json:"end_date"`
	Narrative     string   `json:"narrative"`
	Wins          []string `json:"wins"`
	Suggestion    string   `json:"suggestion"`
	Encouragement string   `json:"encouragement"`
	Model         string   `json:"model,omitempty"`
	GeneratedAt   string   `json:"generated_at"`
}

type ContextDTO struct {
	Date    string `json:"date"`
	Mode    string `json:"mode"`
	Content string `json:"content"`
}

type BackfillResultDTO struct {
	Generated int `json:"generated"`
}

type ProfileRequestDTO struct {
	Sex             *string  `json:"sex"`
	AgeYears        *int     `json:"age_years"`
	HeightCm        *float64 `json:"height_cm"`
	ActivityLevel   *string  `json:"activity_level"`
	EatingStyle     *string  `json:"eating_style"`
	ProteinPriority *bool    `json:"protein_priority"`
}

type SettingsRequestDTO struct {
	WeightUnit     *string  `json:"weight_unit"`
	TargetCalories *float64 `json:"target_calories"`
	TargetProtein  *float64 `json:"target_protein"`
	TargetCarbs    *float64 `json:"target_carbs"`
	TargetFat      *float64 `json:"target_fat"`
}

type StatsDTO struct {
	SafeMode       bool                  `json:"safe_mode"`
	SchemaVersion  int                   `json:"schema_version"`
	MigrationError string                `json:"migration_error,omitempty"`
	FoodCount      int64                 `json:"food_count"`
	WeightCount    int64                 `json:"weight_count"`
	UptimeSec      int64                 `json:"uptime_sec"`
	SSESubscribers int                   `json:"sse_subscribers"`
	DroppedEvents  int64                 `json:"dropped_events"`
	Ingest         *importer.IngestStats `json:"ingest,omitempty"`
}

// ========== routes ==========

func (a *apiServer) registerJSONRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/version", a.wrapGET(a.getVersion))
	mux.HandleFunc("/api/stats", a.wrapGET(a.getStats))

	mux.HandleFunc("/api/metrics", a.wrapGET(a.getMetrics))
	mux.HandleFunc("/api/insights", a.wrapGET(a.getInsights))
	mux.HandleFunc("/api/context", a.wrapGET(a.getContext))

	mux.HandleFunc("/api/advice/daily", a.wrapGET(a.getDailyAdvice))
	mux.HandleFunc("/api/advice/generate", a.wrapPOST(a.generateDailyAdvice))
	mux.HandleFunc("/api/advice/history", a.wrapGET(a.listAdviceHistory))
	mux.HandleFunc("/api/advice/backfill", a.wrapPOST(a.backfillAdvice))

	mux.HandleFunc("/api/report/weekly", a.wrapGET(a.getWeeklyReport))
	mux.HandleFunc("/api/report/generate", a.wrapPOST(a.generateWeeklyReport))
	mux.HandleFunc("/api/report/history", a.wrapGET(a.listReportHistory))

	mux.HandleFunc("/api/foods", a.wrapGET(a.listFoods))
	mux.HandleFunc("/api/foods/log", a.wrapPOST(a.logFood))
	mux.HandleFunc("/api/foods/delete", a.wrapPOST(a.deleteFood))

	mux.HandleFunc("/api/weights", a.wrapGET(a.listWeights))
	mux.HandleFunc("/api/weights/log", a.wrapPOST(a.logWeight))
	mux.HandleFunc("/api/weights/delete", a.wrapPOST(a.deleteWeight))
	mux.HandleFunc("/api/weights/recompute", a.wrapPOST(a.recomputeWeights))

	mux.HandleFunc("/api/goals/active", a.wrapGET(a.getActiveGoal))
	mux.HandleFunc("/api/goals/set", a.wrapPOST(a.setGoal))
	mux.HandleFunc("/api/goals/history", a.wrapGET(a.listGoalHistory))
	mux.HandleFunc("/api/targets/suggest", a.wrapGET(a.suggestTargets))

	mux.HandleFunc("/api/profile", a.wrapAny(a.profile))
	mux.HandleFunc("/api/settings", a.wrapAny(a.settings))
}

func (a *apiServer) wrapGET(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		fn(w, r)
	}
}

func (a *apiServer) wrapPOST(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		fn(w, r)
	}
}

func (a *apiServer) wrapAny(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) { fn(w, r) }
}

// requireWritable 安全模式下拒绝写入并暴露诊断信息
func (a *apiServer) requireWritable(w http.ResponseWriter) bool {
	if a.rt != nil && a.rt.DB != nil && a.rt.DB.SafeMode {
		writeError(w, http.StatusServiceUnavailable,
			"数据库处于安全模式，写入已禁用: "+a.rt.DB.MigrationError)
		return false
	}
	return true
}

// ========== 概览 ==========

func (a *apiServer) getVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version": buildinfo.Version,
		"commit":  buildinfo.Commit,
	})
}

func (a *apiServer) getStats(w http.ResponseWriter, r *http.Request) {
	if a.rt == nil || a.rt.Repos.Food == nil || a.rt.Repos.Weight == nil {
		writeError(w, http.StatusBadRequest, "数据库未初始化")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stats := StatsDTO{
		SafeMode:       a.rt.DB.SafeMode,
		SchemaVersion:  a.rt.DB.SchemaVersion,
		MigrationError: a.rt.DB.MigrationError,
		UptimeSec:      int64(time.Since(a.startTime).Seconds()),
		SSESubscribers: a.hub.SubscriberCount(),
		DroppedEvents:  a.hub.Dropped(),
	}

	var err error
	if stats.FoodCount, err = a.rt.Repos.Food.Count(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if stats.WeightCount, err = a.rt.Repos.Weight.Count(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if a.rt.Importer.Ingest != nil {
		s := a.rt.Importer.Ingest.Stats()
		stats.Ingest = &s
	}
	writeJSON(w, http.StatusOK, &stats)
}

// ========== 指标与洞察 ==========

func (a *apiServer) getMetrics(w http.ResponseWriter, r *http.Request) {
	date, err := queryDate(r, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if a.rt == nil || a.rt.Core == nil || a.rt.Services.Metrics == nil {
		writeError(w, http.StatusBadRequest, "指标服务未初始化")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	metrics, err := a.rt.Services.Metrics.GetMetrics(ctx, date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (a *apiServer) getInsights(w http.ResponseWriter, r *http.Request) {
	date, err := queryDate(r, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if a.rt == nil || a.rt.Core == nil || a.rt.Services.Metrics == nil {
		writeError(w, http.StatusBadRequest, "指标服务未初始化")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	insights, err := a.rt.Services.Metrics.GetInsights(ctx, date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if insights == nil {
		insights = []service.Insight{}
	}
	writeJSON(w, http.StatusOK, insights)
}

func (a *apiServer) getContext(w http.ResponseWriter, r *http.Request) {
	date, err := queryDate(r, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode := strings.TrimSpace(r.URL.Query().Get("mode"))
	if mode == "" {
		mode = "prompt"
	}
	if a.rt == nil || a.rt.Core == nil || a.rt.Services.Coach == nil {
		writeError(w, http.StatusBadRequest, "教练服务未初始化")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var content string
	switch mode {
	case "prompt":
		content, err = a.rt.Services.Coach.PromptPreview(ctx, date)
	case "rendered":
		content, err = a.rt.Services.Coach.RenderedContext(ctx, date)
	case "weekly":
		content, err = a.rt.Services.Coach.WeeklyPromptPreview(ctx, date)
	default:
		writeError(w, http.StatusBadRequest, "mode 只支持 prompt、rendered 或 weekly")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, &ContextDTO{Date: date, Mode: mode, Content: content})
}

// ========== 每日建议 ==========

func (a *apiServer) getDailyAdvice(w http.ResponseWriter, r *http.Request) {
	date, err := queryDate(r, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.serveDailyAdvice(w, r, date, false)
}

func (a *apiServer) generateDailyAdvice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date string `json:"date"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	date := strings.TrimSpace(req.Date)
	if date == "" {
		date = repository.Today()
	}
	if !validDate(date) {
		writeError(w, http.StatusBadRequest, "date 格式无效")
		return
	}
	if !a.requireWritable(w) {
		return
	}
	a.serveDailyAdvice(w, r, date, true)
}

func (a *apiServer) serveDailyAdvice(w http.ResponseWriter, r *http.Request, date string, force bool) {
	if a.rt == nil || a.rt.Core == nil || a.rt.Services.Coach == nil {
		writeError(w, http.StatusBadRequest, "教练服务未初始化")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	advice, err := a.rt.Services.Coach.GetDailyAdvice(ctx, date, force)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, adviceToDTO(advice))
}

func (a *apiServer) listAdviceHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 30)
	if a.rt == nil || a.rt.Repos.Advice == nil {
		writeError(w, http.StatusBadRequest, "建议仓储未初始化")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	previews, err := a.rt.Repos.Advice.ListAdvicePreviews(ctx, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	result := make([]AdviceIndexDTO, 0, len(previews))
	for _, p := range previews {
		result = append(result, AdviceIndexDTO{Date: p.Date, Preview: p.Preview})
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *apiServer) backfillAdvice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Days int `json:"days"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Days <= 0 {
		req.Days = 7
	}
	if req.Days > 365 {
		req.Days = 365
	}
	if !a.requireWritable(w) {
		return
	}
	if a.rt == nil || a.rt.Core == nil || a.rt.Services.Coach == nil {
		writeError(w, http.StatusBadRequest, "教练服务未初始化")
		return
	}

	// 回填受速率限制，按天数放宽超时
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	generated, err := a.rt.Services.Coach.BackfillAdvice(ctx, req.Days)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, &BackfillResultDTO{Generated: generated})
}

// ========== 周报 ==========

func (a *apiServer) getWeeklyReport(w http.ResponseWriter, r *http.Request) {
	end := strings.TrimSpace(r.URL.Query().Get("end"))
	if end == "" {
		// 缺省最近一个已完整结束的周期
		end = repository.AddDays(repository.Today(), -1)
	}
	if !validDate(end) {
		writeError(w, http.StatusBadRequest, "end 格式无效")
		return
	}
	a.serveWeeklyReport(w, r, end, false)
}

func (a *apiServer) generateWeeklyReport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EndDate string `json:"end_date"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	end := strings.TrimSpace(req.EndDate)
	if end == "" {
		end = repository.AddDays(repository.Today(), -1)
	}
	if !validDate(end) {
		writeError(w, http.StatusBadRequest, "end_date 格式无效")
		return
	}
	if !a.requireWritable(w) {
		return
	}
	a.serveWeeklyReport(w, r, end, true)
}

func (a *apiServer) serveWeeklyReport(w http.ResponseWriter, r *http.Request, end string, force bool) {
	if a.rt == nil || a.rt.Core == nil || a.rt.Services.Coach == nil {
		writeError(w, http.StatusBadRequest, "教练服务未初始化")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 90*time.Second)
	defer cancel()

	report, err := a.rt.Services.Coach.GetWeeklyReport(ctx, end, force)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reportToDTO(report))
}

func (a *apiServer) listReportHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 12)
	if a.rt == nil || a.rt.Repos.Report == nil {
		writeError(w, http.StatusBadRequest, "周报仓储未初始化")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	reports, err := a.rt.Repos.Report.ListRecent(ctx, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	result := make([]ReportDTO, 0, len(reports))
	for i := range reports {
		result = append(result, *reportToDTO(&reports[i]))
	}
	writeJSON(w, http.StatusOK, result)
}

// ========== 食物记录 ==========

func (a *apiServer) listFoods(w http.ResponseWriter, r *http.Request) {
	date, err := queryDate(r, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if a.rt == nil || a.rt.Repos.Food == nil {
		writeError(w, http.StatusBadRequest, "食物仓储未初始化")
		return
	}
	entries, err := a.rt.Repos.Food.GetByDate(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	result := make([]FoodEntryDTO, 0, len(entries))
	for i := range entries {
		result = append(result, foodToDTO(&entries[i]))
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *apiServer) logFood(w http.ResponseWriter, r *http.Request) {
	var req LogFoodRequestDTO
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !a.requireWritable(w) {
		return
	}
	if a.rt == nil || a.rt.Repos.Food == nil {
		writeError(w, http.StatusBadRequest, "食物仓储未初始化")
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name 不能为空")
		return
	}
	if req.Calories < 0 || req.Protein < 0 || req.Carbs < 0 || req.Fat < 0 || req.Fiber < 0 {
		writeError(w, http.StatusBadRequest, "营养数值不能为负")
		return
	}

	ts, err := resolveTimestamp(req.Date, req.Time)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	mealType := strings.ToLower(strings.TrimSpace(req.MealType))
	if mealType == "" {
		mealType = importer.InferMealType(ts.Hour())
	} else if !schema.ValidMealType(mealType) {
		writeError(w, http.StatusBadRequest, "meal_type 无效（breakfast/lunch/dinner/snack）")
		return
	}

	entry := schema.NewFoodEntry(name, mealType, ts)
	if req.Quantity > 0 {
		entry.Quantity = req.Quantity
	}
	entry.Unit = strings.TrimSpace(req.Unit)
	entry.Calories = req.Calories
	entry.Protein = req.Protein
	entry.Carbs = req.Carbs
	entry.Fat = req.Fat
	entry.Fiber = req.Fiber
	entry.Metadata = schema.JSONMap{"source": "api"}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := a.rt.Repos.Food.Create(ctx, entry); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	a.hub.Publish(eventbus.Event{
		Type: "food.logged",
		Data: map[string]any{"date": entry.Date, "name": entry.Name},
	})
	writeJSON(w, http.StatusOK, foodToDTO(entry))
}

func (a *apiServer) deleteFood(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID int64 `json:"id"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ID <= 0 {
		writeError(w, http.StatusBadRequest, "id 无效")
		return
	}
	if !a.requireWritable(w) {
		return
	}
	if a.rt == nil || a.rt.Repos.Food == nil {
		writeError(w, http.StatusBadRequest, "食物仓储未初始化")
		return
	}
	if err := a.rt.Repos.Food.DeleteByID(r.Context(), req.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// ========== 体重记录 ==========

func (a *apiServer) listWeights(w http.ResponseWriter, r *http.Request) {
	if a.rt == nil || a.rt.Core == nil || a.rt.Services.WeightTrend == nil {
		writeError(w, http.StatusBadRequest, "体重服务未初始化")
		return
	}

	since := strings.TrimSpace(r.URL.Query().Get("since"))
	if since != "" && !validDate(since) {
		writeError(w, http.StatusBadRequest, "since 格式无效")
		return
	}

	var entries []schema.WeightEntry
	var err error
	if since != "" {
		entries, err = a.rt.Repos.Weight.HistorySince(r.Context(), since)
	} else {
		entries, err = a.rt.Services.WeightTrend.History(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	result := make([]WeightEntryDTO, 0, len(entries))
	for i := range entries {
		result = append(result, weightToDTO(&entries[i]))
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *apiServer) logWeight(w http.ResponseWriter, r *http.Request) {
	var req LogWeightRequestDTO
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !a.requireWritable(w) {
		return
	}
	if a.rt == nil || a.rt.Core == nil || a.rt.Services.WeightTrend == nil {
		writeError(w, http.StatusBadRequest, "体重服务未初始化")
		return
	}

	date := strings.TrimSpace(req.Date)
	if date == "" {
		date = repository.Today()
	}
	if !validDate(date) {
		writeError(w, http.StatusBadRequest, "date 格式无效")
		return
	}

	unit := strings.ToLower(strings.TrimSpace(req.Unit))
	if unit == "" {
		unit = a.preferredWeightUnit(r.Context())
	}

	kg := req.Weight
	switch unit {
	case schema.UnitKg:
	case schema.UnitLbs, "lb":
		kg = schema.KgFromLbs(req.Weight)
	default:
		writeError(w, http.StatusBadRequest, "unit 只支持 kg 或 lbs")
		return
	}
	if kg < 20 || kg > 500 {
		writeError(w, http.StatusBadRequest, "体重超出合理范围")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	entry, err := a.rt.Services.WeightTrend.LogWeight(ctx, date, kg, strings.TrimSpace(req.Note))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	a.hub.Publish(eventbus.Event{
		Type: "weight.logged",
		Data: map[string]any{"date": date},
	})
	a.hub.Publish(eventbus.Event{
		Type: "trend.recomputed",
		Data: map[string]any{"from_date": date},
	})
	writeJSON(w, http.StatusOK, weightToDTO(entry))
}

func (a *apiServer) deleteWeight(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date string `json:"date"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	date := strings.TrimSpace(req.Date)
	if !validDate(date) {
		writeError(w, http.StatusBadRequest, "date 格式无效")
		return
	}
	if !a.requireWritable(w) {
		return
	}
	if a.rt == nil || a.rt.Core == nil || a.rt.Services.WeightTrend == nil {
		writeError(w, http.StatusBadRequest, "体重服务未初始化")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := a.rt.Services.WeightTrend.DeleteWeight(ctx, date); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.hub.Publish(eventbus.Event{
		Type: "trend.recomputed",
		Data: map[string]any{"from_date": date},
	})
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (a *apiServer) recomputeWeights(w http.ResponseWriter, r *http.Request) {
	if !a.requireWritable(w) {
		return
	}
	if a.rt == nil || a.rt.Core == nil || a.rt.Services.WeightTrend == nil {
		writeError(w, http.StatusBadRequest, "体重服务未初始化")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	if err := a.rt.Services.WeightTrend.RecomputeAll(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.hub.Publish(eventbus.Event{
		Type: "trend.recomputed",
		Data: map[string]any{"from_date": ""},
	})
	writeJSON(w, http.StatusOK, map[string]any{"recomputed": true})
}

// ========== 目标 ==========

func (a *apiServer) getActiveGoal(w http.ResponseWriter, r *http.Request) {
	if a.rt == nil || a.rt.Repos.Goal == nil {
		writeError(w, http.StatusBadRequest, "目标仓储未初始化")
		return
	}
	goal, err := a.rt.Repos.Goal.Active(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if goal == nil {
		writeError(w, http.StatusNotFound, "未设置激活目标")
		return
	}
	writeJSON(w, http.StatusOK, goal)
}

func (a *apiServer) setGoal(w http.ResponseWriter, r *http.Request) {
	var req SetGoalRequestDTO
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !schema.ValidGoalType(req.Type) {
		writeError(w, http.StatusBadRequest, "type 只支持 lose/maintain/gain")
		return
	}
	if req.TargetWeightKg < 0 || req.WeeklyRateKg < 0 ||
		req.TargetCalories < 0 || req.TargetProtein < 0 ||
		req.TargetCarbs < 0 || req.TargetFat < 0 {
		writeError(w, http.StatusBadRequest, "目标数值不能为负")
		return
	}
	startDate := strings.TrimSpace(req.StartDate)
	if startDate == "" {
		startDate = repository.Today()
	}
	if !validDate(startDate) {
		writeError(w, http.StatusBadRequest, "start_date 格式无效")
		return
	}
	if !a.requireWritable(w) {
		return
	}
	if a.rt == nil || a.rt.Repos.Goal == nil {
		writeError(w, http.StatusBadRequest, "目标仓储未初始化")
		return
	}

	goal := &schema.Goal{
		Type:           req.Type,
		TargetWeightKg: req.TargetWeightKg,
		WeeklyRateKg:   req.WeeklyRateKg,
		TargetCalories: req.TargetCalories,
		TargetProtein:  req.TargetProtein,
		TargetCarbs:    req.TargetCarbs,
		TargetFat:      req.TargetFat,
		StartDate:      startDate,
		Active:         true,
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := a.rt.Repos.Goal.Create(ctx, goal); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, goal)
}

func (a *apiServer) listGoalHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 10)
	if a.rt == nil || a.rt.Repos.Goal == nil {
		writeError(w, http.StatusBadRequest, "目标仓储未初始化")
		return
	}
	goals, err := a.rt.Repos.Goal.History(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, goals)
}

func (a *apiServer) suggestTargets(w http.ResponseWriter, r *http.Request) {
	if a.rt == nil || a.rt.Repos.Profile == nil || a.rt.Repos.Weight == nil {
		writeError(w, http.StatusBadRequest, "数据库未初始化")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	profile, err := a.rt.Repos.Profile.Get(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	latest, err := a.rt.Repos.Weight.Latest(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	weightKg := 0.0
	if latest != nil {
		weightKg = latest.WeightKg
		if latest.HasTrend() {
			weightKg = latest.TrendKg
		}
	}

	goalType := strings.TrimSpace(r.URL.Query().Get("goal"))
	if goalType == "" {
		if active, err := a.rt.Repos.Goal.Active(ctx); err == nil && active != nil {
			goalType = active.Type
		} else {
			goalType = schema.GoalMaintain
		}
	}
	if !schema.ValidGoalType(goalType) {
		writeError(w, http.StatusBadRequest, "goal 只支持 lose/maintain/gain")
		return
	}

	suggestion := service.SuggestTargets(profile, weightKg, goalType)
	if suggestion == nil {
		writeError(w, http.StatusBadRequest, "档案不完整（需要性别、年龄、身高与至少一条体重记录）")
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}

// ========== 档案与偏好 ==========

func (a *apiServer) profile(w http.ResponseWriter, r *http.Request) {
	if a.rt == nil || a.rt.Repos.Profile == nil {
		writeError(w, http.StatusBadRequest, "档案仓储未初始化")
		return
	}
	switch r.Method {
	case http.MethodGet:
		profile, err := a.rt.Repos.Profile.Get(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if profile == nil {
			profile = &schema.Profile{ID: 1}
		}
		writeJSON(w, http.StatusOK, profile)
	case http.MethodPut, http.MethodPost:
		a.updateProfile(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (a *apiServer) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequestDTO
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !a.requireWritable(w) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	profile, err := a.rt.Repos.Profile.Get(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if profile == nil {
		profile = &schema.Profile{ID: 1}
	}

	if req.Sex != nil {
		sex := strings.ToLower(strings.TrimSpace(*req.Sex))
		if sex != "" && sex != "male" && sex != "female" {
			writeError(w, http.StatusBadRequest, "sex 只支持 male/female")
			return
		}
		profile.Sex = sex
	}
	if req.AgeYears != nil {
		if *req.AgeYears < 0 || *req.AgeYears > 130 {
			writeError(w, http.StatusBadRequest, "age_years 超出合理范围")
			return
		}
		profile.AgeYears = *req.AgeYears
	}
	if req.HeightCm != nil {
		if *req.HeightCm < 0 || *req.HeightCm > 280 {
			writeError(w, http.StatusBadRequest, "height_cm 超出合理范围")
			return
		}
		profile.HeightCm = *req.HeightCm
	}
	if req.ActivityLevel != nil {
		level := strings.ToLower(strings.TrimSpace(*req.ActivityLevel))
		if level != "" && !validActivityLevel(level) {
			writeError(w, http.StatusBadRequest, "activity_level 无效")
			return
		}
		profile.ActivityLevel = level
	}
	if req.EatingStyle != nil {
		style := strings.ToLower(strings.TrimSpace(*req.EatingStyle))
		if style != "" && !validEatingStyle(style) {
			writeError(w, http.StatusBadRequest, "eating_style 无效")
			return
		}
		profile.EatingStyle = style
	}
	if req.ProteinPriority != nil {
		profile.ProteinPriority = *req.ProteinPriority
	}

	if err := a.rt.Repos.Profile.Upsert(ctx, profile); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *apiServer) settings(w http.ResponseWriter, r *http.Request) {
	if a.rt == nil || a.rt.Repos.Settings == nil {
		writeError(w, http.StatusBadRequest, "偏好仓储未初始化")
		return
	}
	switch r.Method {
	case http.MethodGet:
		settings, err := a.rt.Repos.Settings.Get(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if settings == nil {
			settings = &schema.UserSettings{ID: 1, WeightUnit: schema.UnitLbs}
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut, http.MethodPost:
		a.updateSettings(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (a *apiServer) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequestDTO
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !a.requireWritable(w) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	settings, err := a.rt.Repos.Settings.Get(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if settings == nil {
		settings = &schema.UserSettings{ID: 1, WeightUnit: schema.UnitLbs}
	}

	if req.WeightUnit != nil {
		unit := strings.ToLower(strings.TrimSpace(*req.WeightUnit))
		if unit != schema.UnitKg && unit != schema.UnitLbs {
			writeError(w, http.StatusBadRequest, "weight_unit 只支持 kg 或 lbs")
			return
		}
		settings.WeightUnit = unit
	}
	for _, f := range []struct {
		v   *float64
		dst *float64
	}{
		{req.TargetCalories, &settings.TargetCalories},
		{req.TargetProtein, &settings.TargetProtein},
		{req.TargetCarbs, &settings.TargetCarbs},
		{req.TargetFat, &settings.TargetFat},
	} {
		if f.v == nil {
			continue
		}
		if *f.v < 0 {
			writeError(w, http.StatusBadRequest, "目标数值不能为负")
			return
		}
		*f.dst = *f.v
	}

	if err := a.rt.Repos.Settings.Upsert(ctx, settings); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// preferredWeightUnit 读取用户偏好单位，读取失败回退产品默认
func (a *apiServer) preferredWeightUnit(ctx context.Context) string {
	settings, err := a.rt.Repos.Settings.Get(ctx)
	if err != nil || settings == nil {
		return schema.UnitLbs
	}
	return schema.NormalizeWeightUnit(settings.WeightUnit)
}
