package importer

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/yuqie6/NutriMirror/internal/schema"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestParseFoodCSVShuffledColumnsAndAliases(t *testing.T) {
	input := "kcal,Food Name,date,Meal,protein_g,qty,unit\n" +
		"520,Chicken burrito,2025-03-01,lunch,32,1,bowl\n" +
		"180,Greek yogurt,2025-03-01,snacks,15,1.5,cup\n"

	entries, report, err := ParseFoodCSV(strings.NewReader(input), "drop.csv")
	if err != nil {
		t.Fatalf("ParseFoodCSV 出错: %v", err)
	}
	if report.Imported != 2 || report.Skipped != 0 {
		t.Fatalf("imported=%d skipped=%d, want 2 0", report.Imported, report.Skipped)
	}

	e := entries[0]
	if e.Name != "Chicken burrito" {
		t.Errorf("name=%q, want Chicken burrito", e.Name)
	}
	if e.Calories != 520 || e.Protein != 32 {
		t.Errorf("calories=%v protein=%v, want 520 32", e.Calories, e.Protein)
	}
	if e.MealType != schema.MealLunch {
		t.Errorf("mealType=%q, want lunch", e.MealType)
	}
	if e.Quantity != 1 || e.Unit != "bowl" {
		t.Errorf("quantity=%v unit=%q, want 1 bowl", e.Quantity, e.Unit)
	}
	if e.Metadata["source"] != "drop.csv" {
		t.Errorf("metadata source=%v, want drop.csv", e.Metadata["source"])
	}

	// 无 time 列时时间戳落在当天中午
	wantTs := time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local).UnixMilli()
	if e.Timestamp != wantTs {
		t.Errorf("timestamp=%d, want %d", e.Timestamp, wantTs)
	}

	// "snacks" 归一化为 snack
	if entries[1].MealType != schema.MealSnack {
		t.Errorf("mealType=%q, want snack", entries[1].MealType)
	}
	if entries[1].Quantity != 1.5 {
		t.Errorf("quantity=%v, want 1.5", entries[1].Quantity)
	}
}

func TestParseFoodCSVMealTypeInferredFromTime(t *testing.T) {
	input := "date,name,calories,time\n" +
		"2025-03-02,Oatmeal,300,07:30\n" +
		"2025-03-02,Sandwich,450,12:15\n" +
		"2025-03-02,Pasta,600,19:00\n" +
		"2025-03-02,Cookies,150,23:30\n" +
		"2025-03-02,Leftovers,200,\n"

	entries, _, err := ParseFoodCSV(strings.NewReader(input), "test.csv")
	if err != nil {
		t.Fatalf("ParseFoodCSV 出错: %v", err)
	}
	want := []string{
		schema.MealBreakfast,
		schema.MealLunch,
		schema.MealDinner,
		schema.MealSnack,
		schema.MealLunch, // 缺 time 默认中午
	}
	for i, w := range want {
		if entries[i].MealType != w {
			t.Errorf("entries[%d].MealType=%q, want %q", i, entries[i].MealType, w)
		}
	}

	wantTs := time.Date(2025, 3, 2, 7, 30, 0, 0, time.Local).UnixMilli()
	if entries[0].Timestamp != wantTs {
		t.Errorf("timestamp=%d, want %d", entries[0].Timestamp, wantTs)
	}
}

func TestParseFoodCSVSkipsBadRows(t *testing.T) {
	input := "date,name,calories\n" +
		"2025-03-03,Salad,350\n" +
		"not-a-date,Burger,800\n" +
		"2025-03-03,,400\n" +
		"2025-03-03,Soup,-100\n"

	entries, report, err := ParseFoodCSV(strings.NewReader(input), "test.csv")
	if err != nil {
		t.Fatalf("ParseFoodCSV 出错: %v", err)
	}
	if report.Rows != 4 || report.Imported != 1 || report.Skipped != 3 {
		t.Fatalf("rows=%d imported=%d skipped=%d, want 4 1 3",
			report.Rows, report.Imported, report.Skipped)
	}
	if len(report.Errors) != 3 {
		t.Fatalf("len(errors)=%d, want 3", len(report.Errors))
	}
	if len(entries) != 1 || entries[0].Name != "Salad" {
		t.Fatalf("entries=%v, want 只剩 Salad", entries)
	}
}

func TestParseFoodCSVMissingRequiredColumn(t *testing.T) {
	input := "date,name\n2025-03-01,Toast\n"
	_, _, err := ParseFoodCSV(strings.NewReader(input), "test.csv")
	if err == nil {
		t.Fatal("缺少 calories 列应当报错")
	}
	if !strings.Contains(err.Error(), "calories") {
		t.Errorf("err=%v, want 提到 calories", err)
	}
}

func TestParseWeightCSVUnitAwareColumns(t *testing.T) {
	input := "date,weight_lbs,note\n2025-03-01,220.462,after run\n"
	entries, _, err := ParseWeightCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseWeightCSV 出错: %v", err)
	}
	if !almostEqual(entries[0].WeightKg, 100) {
		t.Errorf("weightKg=%v, want 100", entries[0].WeightKg)
	}
	if entries[0].Note != "after run" {
		t.Errorf("note=%q, want after run", entries[0].Note)
	}
}

func TestParseWeightCSVUnitColumn(t *testing.T) {
	input := "date,weight,unit\n" +
		"2025-03-02,154.3234,lbs\n" +
		"2025-03-03,70.5,kg\n" +
		"2025-03-04,71.2,\n"

	entries, report, err := ParseWeightCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseWeightCSV 出错: %v", err)
	}
	if report.Imported != 3 {
		t.Fatalf("imported=%d, want 3", report.Imported)
	}
	if !almostEqual(entries[0].WeightKg, 70) {
		t.Errorf("lbs 换算 weightKg=%v, want 70", entries[0].WeightKg)
	}
	if !almostEqual(entries[1].WeightKg, 70.5) {
		t.Errorf("weightKg=%v, want 70.5", entries[1].WeightKg)
	}
	// unit 留空默认 kg
	if !almostEqual(entries[2].WeightKg, 71.2) {
		t.Errorf("weightKg=%v, want 71.2", entries[2].WeightKg)
	}
}

func TestParseWeightCSVRejectsImplausibleValues(t *testing.T) {
	input := "date,weight_kg\n" +
		"2025-03-05,10\n" +
		"2025-03-06,600\n" +
		"2025-03-07,82\n"

	entries, report, err := ParseWeightCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseWeightCSV 出错: %v", err)
	}
	if report.Imported != 1 || report.Skipped != 2 {
		t.Fatalf("imported=%d skipped=%d, want 1 2", report.Imported, report.Skipped)
	}
	if entries[0].Date != "2025-03-07" {
		t.Errorf("date=%q, want 2025-03-07", entries[0].Date)
	}
}

func TestParseWeightCSVMissingWeightColumn(t *testing.T) {
	input := "date,note\n2025-03-01,hello\n"
	_, _, err := ParseWeightCSV(strings.NewReader(input))
	if err == nil {
		t.Fatal("缺少体重列应当报错")
	}
}

func TestInferMealType(t *testing.T) {
	cases := []struct {
		hour int
		want string
	}{
		{0, schema.MealSnack},
		{4, schema.MealSnack},
		{5, schema.MealBreakfast},
		{10, schema.MealBreakfast},
		{11, schema.MealLunch},
		{15, schema.MealLunch},
		{16, schema.MealDinner},
		{21, schema.MealDinner},
		{22, schema.MealSnack},
		{23, schema.MealSnack},
	}
	for _, c := range cases {
		if got := InferMealType(c.hour); got != c.want {
			t.Errorf("InferMealType(%d)=%q, want %q", c.hour, got, c.want)
		}
	}
}
