package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/yuqie6/NutriMirror/internal/schema"
)

// 单个文件最多记录这么多条行级错误，避免坏文件撑爆内存
const maxReportErrors = 20

// ParseReport 单文件解析结果统计
type ParseReport struct {
	Rows     int      `json:"rows"`     // 数据行总数（不含表头）
	Imported int      `json:"imported"` // 成功解析的行数
	Skipped  int      `json:"skipped"`  // 因格式问题跳过的行数
	Errors   []string `json:"errors,omitempty"`
}

func (r *ParseReport) addError(line int, err error) {
	r.Skipped++
	if len(r.Errors) < maxReportErrors {
		r.Errors = append(r.Errors, fmt.Sprintf("第 %d 行: %v", line, err))
	}
}

// columnAliases 表头别名归一化（不同导出工具的叫法各异）
var columnAliases = map[string]string{
	"food":          "name",
	"food_name":     "name",
	"item":          "name",
	"kcal":          "calories",
	"energy":        "calories",
	"energy_kcal":   "calories",
	"meal":          "meal_type",
	"qty":           "quantity",
	"amount":        "quantity",
	"servings":      "quantity",
	"protein_g":     "protein",
	"carbs_g":       "carbs",
	"carbohydrates": "carbs",
	"fat_g":         "fat",
	"fiber_g":       "fiber",
	"fibre":         "fiber",
	"fibre_g":       "fiber",
	"notes":         "note",
	"comment":       "note",
	"kg":            "weight_kg",
	"lbs":           "weight_lbs",
}

// indexColumns 将表头映射为 规范列名 -> 下标，列序无关
func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
		if canon, ok := columnAliases[key]; ok {
			key = canon
		}
		if _, exists := cols[key]; !exists {
			cols[key] = i
		}
	}
	return cols
}

func field(rec []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[idx])
}

func parseNonNegative(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("数值无效: %q", s)
	}
	if v < 0 {
		return 0, fmt.Errorf("数值为负: %q", s)
	}
	return v, nil
}

// InferMealType 按时刻推断餐次（meal_type 列缺失或非法时的兜底）
func InferMealType(hour int) string {
	switch {
	case hour >= 5 && hour < 11:
		return schema.MealBreakfast
	case hour >= 11 && hour < 16:
		return schema.MealLunch
	case hour >= 16 && hour < 22:
		return schema.MealDinner
	default:
		return schema.MealSnack
	}
}

// ParseFoodCSV 解析食物 CSV。表头驱动，必需列 date/name/calories；
// meal_type 缺失时按 time 列（缺省中午）推断；坏行跳过并计数。
func ParseFoodCSV(r io.Reader, source string) ([]schema.FoodEntry, *ParseReport, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("读取 CSV 表头失败: %w", err)
	}
	cols := indexColumns(header)
	for _, required := range []string{"date", "name", "calories"} {
		if _, ok := cols[required]; !ok {
			return nil, nil, fmt.Errorf("CSV 缺少必需列: %s", required)
		}
	}

	report := &ParseReport{}
	var entries []schema.FoodEntry
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		report.Rows++
		if err != nil {
			report.addError(line, err)
			continue
		}
		entry, err := foodRowToEntry(rec, cols, source)
		if err != nil {
			report.addError(line, err)
			continue
		}
		entries = append(entries, *entry)
		report.Imported++
	}
	return entries, report, nil
}

func foodRowToEntry(rec []string, cols map[string]int, source string) (*schema.FoodEntry, error) {
	dateStr := field(rec, cols, "date")
	day, err := time.ParseInLocation("2006-01-02", dateStr, time.Local)
	if err != nil {
		return nil, fmt.Errorf("日期格式无效: %q", dateStr)
	}

	name := field(rec, cols, "name")
	if name == "" {
		return nil, fmt.Errorf("食物名称为空")
	}

	// 时刻用于时间戳与餐次推断，缺省视为中午
	hour, minute := 12, 0
	if clock := field(rec, cols, "time"); clock != "" {
		t, err := time.Parse("15:04", clock)
		if err != nil {
			t, err = time.Parse("15:04:05", clock)
		}
		if err != nil {
			return nil, fmt.Errorf("时间格式无效: %q", clock)
		}
		hour, minute = t.Hour(), t.Minute()
	}

	mealType := strings.ToLower(field(rec, cols, "meal_type"))
	if mealType == "snacks" {
		mealType = schema.MealSnack
	}
	if !schema.ValidMealType(mealType) {
		mealType = InferMealType(hour)
	}

	calories, err := parseNonNegative(field(rec, cols, "calories"))
	if err != nil {
		return nil, fmt.Errorf("热量列: %w", err)
	}
	protein, err := parseNonNegative(field(rec, cols, "protein"))
	if err != nil {
		return nil, fmt.Errorf("蛋白质列: %w", err)
	}
	carbs, err := parseNonNegative(field(rec, cols, "carbs"))
	if err != nil {
		return nil, fmt.Errorf("碳水列: %w", err)
	}
	fat, err := parseNonNegative(field(rec, cols, "fat"))
	if err != nil {
		return nil, fmt.Errorf("脂肪列: %w", err)
	}
	fiber, err := parseNonNegative(field(rec, cols, "fiber"))
	if err != nil {
		return nil, fmt.Errorf("纤维列: %w", err)
	}

	quantity := 1.0
	if q := field(rec, cols, "quantity"); q != "" {
		v, err := strconv.ParseFloat(q, 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("份量无效: %q", q)
		}
		quantity = v
	}
	unit := field(rec, cols, "unit")
	if unit == "" {
		unit = "serving"
	}

	ts := day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
	return &schema.FoodEntry{
		Date:      day.Format("2006-01-02"),
		Timestamp: ts.UnixMilli(),
		Name:      name,
		MealType:  mealType,
		Quantity:  quantity,
		Unit:      unit,
		Calories:  calories,
		Protein:   protein,
		Carbs:     carbs,
		Fat:       fat,
		Fiber:     fiber,
		Metadata:  schema.JSONMap{"source": source},
	}, nil
}

// ParseWeightCSV 解析体重 CSV。必需列 date 加体重列之一
// （weight / weight_kg / weight_lbs）；lbs 入库前换算为 kg。
func ParseWeightCSV(r io.Reader) ([]schema.WeightEntry, *ParseReport, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("读取 CSV 表头失败: %w", err)
	}
	cols := indexColumns(header)
	if _, ok := cols["date"]; !ok {
		return nil, nil, fmt.Errorf("CSV 缺少必需列: date")
	}
	if !hasWeightColumn(cols) {
		return nil, nil, fmt.Errorf("CSV 缺少体重列（weight / weight_kg / weight_lbs）")
	}

	report := &ParseReport{}
	var entries []schema.WeightEntry
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		report.Rows++
		if err != nil {
			report.addError(line, err)
			continue
		}
		entry, err := weightRowToEntry(rec, cols)
		if err != nil {
			report.addError(line, err)
			continue
		}
		entries = append(entries, *entry)
		report.Imported++
	}
	return entries, report, nil
}

func hasWeightColumn(cols map[string]int) bool {
	for _, name := range []string{"weight", "weight_kg", "weight_lbs"} {
		if _, ok := cols[name]; ok {
			return true
		}
	}
	return false
}

func weightRowToEntry(rec []string, cols map[string]int) (*schema.WeightEntry, error) {
	dateStr := field(rec, cols, "date")
	day, err := time.ParseInLocation("2006-01-02", dateStr, time.Local)
	if err != nil {
		return nil, fmt.Errorf("日期格式无效: %q", dateStr)
	}

	// 列名自带单位时优先，否则看 unit 列，最后默认 kg
	raw, unit := "", ""
	if v := field(rec, cols, "weight_kg"); v != "" {
		raw, unit = v, schema.UnitKg
	} else if v := field(rec, cols, "weight_lbs"); v != "" {
		raw, unit = v, schema.UnitLbs
	} else {
		raw = field(rec, cols, "weight")
		unit = strings.ToLower(field(rec, cols, "unit"))
		if unit == "" {
			unit = schema.UnitKg
		}
	}
	if raw == "" {
		return nil, fmt.Errorf("体重为空")
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return nil, fmt.Errorf("体重无效: %q", raw)
	}

	kg := v
	switch unit {
	case schema.UnitKg:
	case schema.UnitLbs, "lb":
		kg = schema.KgFromLbs(v)
	default:
		return nil, fmt.Errorf("未知的体重单位: %q", unit)
	}
	if kg < 20 || kg > 500 {
		return nil, fmt.Errorf("体重超出合理范围: %.1f kg", kg)
	}

	return &schema.WeightEntry{
		Date:      day.Format("2006-01-02"),
		Timestamp: day.Add(12 * time.Hour).UnixMilli(),
		WeightKg:  kg,
		Note:      field(rec, cols, "note"),
	}, nil
}
