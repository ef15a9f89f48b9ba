package httpapi

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yuqie6/NutriMirror/internal/repository"
	"github.com/yuqie6/NutriMirror/internal/schema"
)

// queryDate 读取日期查询参数，缺省今天
func queryDate(r *http.Request, name string) (string, error) {
	date := strings.TrimSpace(r.URL.Query().Get(name))
	if date == "" {
		return repository.Today(), nil
	}
	if !validDate(date) {
		return "", fmt.Errorf("%s 格式无效（期望 YYYY-MM-DD）", name)
	}
	return date, nil
}

// queryLimit 读取 limit 查询参数，非法值回退缺省
func queryLimit(r *http.Request, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 365 {
		return def
	}
	return n
}

func validDate(date string) bool {
	_, err := repository.ParseDay(date)
	return err == nil
}

// resolveTimestamp 合成记录时刻：date 缺省今天，clock（HH:MM）缺省当前时刻
func resolveTimestamp(date, clock string) (time.Time, error) {
	now := time.Now()
	d := strings.TrimSpace(date)
	if d == "" {
		d = now.Format("2006-01-02")
	} else if !validDate(d) {
		return time.Time{}, fmt.Errorf("date 格式无效（期望 YYYY-MM-DD）")
	}

	c := strings.TrimSpace(clock)
	if c == "" {
		c = now.Format("15:04")
	}
	ts, err := time.ParseInLocation("2006-01-02 15:04", d+" "+c, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("time 格式无效（期望 HH:MM）")
	}
	return ts, nil
}

func validActivityLevel(level string) bool {
	switch level {
	case schema.ActivitySedentary, schema.ActivityLight, schema.ActivityModerate,
		schema.ActivityActive, schema.ActivityVeryActive:
		return true
	}
	return false
}

func validEatingStyle(style string) bool {
	switch style {
	case schema.StyleFlexible, schema.StyleBalanced, schema.StyleLowCarb, schema.StyleHighProtein:
		return true
	}
	return false
}

// ========== schema -> DTO ==========

func foodToDTO(e *schema.FoodEntry) FoodEntryDTO {
	dto := FoodEntryDTO{
		ID:       e.ID,
		Date:     e.Date,
		Name:     e.Name,
		MealType: e.MealType,
		Quantity: e.Quantity,
		Unit:     e.Unit,
		Calories: e.Calories,
		Protein:  e.Protein,
		Carbs:    e.Carbs,
		Fat:      e.Fat,
		Fiber:    e.Fiber,
	}
	if e.Timestamp > 0 {
		dto.Time = time.UnixMilli(e.Timestamp).Format("15:04")
	}
	if e.Metadata != nil {
		if src, ok := e.Metadata["source"].(string); ok {
			dto.Source = src
		}
	}
	return dto
}

func weightToDTO(e *schema.WeightEntry) WeightEntryDTO {
	dto := WeightEntryDTO{
		Date:      e.Date,
		WeightKg:  e.WeightKg,
		WeightLbs: round1(schema.LbsFromKg(e.WeightKg)),
		Note:      e.Note,
	}
	if e.HasTrend() {
		dto.TrendKg = e.TrendKg
		dto.TrendLbs = round1(schema.LbsFromKg(e.TrendKg))
	}
	return dto
}

func adviceToDTO(a *schema.DailyAdvice) *AdviceDTO {
	return &AdviceDTO{
		Date:         a.Date,
		Headline:     a.Headline,
		Observations: []string(a.Observations),
		Tip:          a.Tip,
		Model:        a.Model,
		GeneratedAt:  a.UpdatedAt.Format(time.RFC3339),
	}
}

func reportToDTO(rep *schema.WeeklyReport) *ReportDTO {
	return &ReportDTO{
		StartDate:     rep.StartDate,
		EndDate:       rep.EndDate,
		Narrative:     rep.Narrative,
		Wins:          []string(rep.Wins),
		Suggestion:    rep.Suggestion,
		Encouragement: rep.Encouragement,
		Model:         rep.Model,
		GeneratedAt:   rep.UpdatedAt.Format(time.RFC3339),
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
