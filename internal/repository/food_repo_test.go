package repository

import (
	"context"
	"testing"
	"time"

	"github.com/yuqie6/NutriMirror/internal/schema"
	"github.com/yuqie6/NutriMirror/internal/testutil"
)

func TestFoodRepositoryBatchInsertAndDailyTotals(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewFoodRepository(db)
	ctx := context.Background()

	ts := time.Now().UnixMilli()
	entries := []schema.FoodEntry{
		{Date: "2025-03-01", Timestamp: ts, Name: "Oatmeal", MealType: schema.MealBreakfast, Calories: 400, Protein: 12, Fiber: 8},
		{Date: "2025-03-01", Timestamp: ts + 1, Name: "Chicken Bowl", MealType: schema.MealLunch, Calories: 600, Protein: 45, Fiber: 6},
		{Date: "2025-03-02", Timestamp: ts + 2, Name: "Yogurt", MealType: schema.MealBreakfast, Calories: 500, Protein: 20, Fiber: 2},
	}
	if err := repo.BatchInsert(ctx, entries); err != nil {
		t.Fatalf("BatchInsert error: %v", err)
	}

	totals, err := repo.DailyTotals(ctx, "2025-03-01", "2025-03-02")
	if err != nil || len(totals) != 2 {
		t.Fatalf("DailyTotals err=%v totals=%v", err, totals)
	}
	if totals[0].Date != "2025-03-01" || totals[0].Calories != 1000 || totals[0].MealsLogged != 2 {
		t.Fatalf("totals[0]=%+v, want date=2025-03-01 calories=1000 meals=2", totals[0])
	}
	if totals[1].Calories != 500 || totals[1].MealsLogged != 1 {
		t.Fatalf("totals[1]=%+v, want calories=500 meals=1", totals[1])
	}
}

func TestFoodRepositoryFrequentFoods(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewFoodRepository(db)
	ctx := context.Background()

	ts := time.Now().UnixMilli()
	entries := []schema.FoodEntry{
		{Date: "2025-03-01", Timestamp: ts, Name: "Oatmeal", MealType: schema.MealBreakfast, Calories: 400},
		{Date: "2025-03-02", Timestamp: ts, Name: "oatmeal", MealType: schema.MealBreakfast, Calories: 420},
		{Date: "2025-03-03", Timestamp: ts, Name: "Oatmeal", MealType: schema.MealBreakfast, Calories: 380},
		{Date: "2025-03-03", Timestamp: ts, Name: "Banana", MealType: schema.MealSnack, Calories: 100},
	}
	if err := repo.BatchInsert(ctx, entries); err != nil {
		t.Fatalf("BatchInsert error: %v", err)
	}

	foods, err := repo.FrequentFoods(ctx, "2025-03-01", "2025-03-07", 10)
	if err != nil {
		t.Fatalf("FrequentFoods error: %v", err)
	}
	// Banana 只出现一次，不应进入高频列表
	if len(foods) != 1 {
		t.Fatalf("len(foods)=%d, want 1", len(foods))
	}
	if foods[0].Name != "oatmeal" || foods[0].TimesLogged != 3 {
		t.Fatalf("foods[0]=%+v, want name=oatmeal times=3", foods[0])
	}
	if foods[0].AvgCalories != 400 {
		t.Fatalf("AvgCalories=%v, want 400", foods[0].AvgCalories)
	}
}

func TestFoodRepositoryMealTypeAggs(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewFoodRepository(db)
	ctx := context.Background()

	ts := time.Now().UnixMilli()
	entries := []schema.FoodEntry{
		{Date: "2025-03-01", Timestamp: ts, Name: "Oatmeal", MealType: schema.MealBreakfast, Calories: 400},
		{Date: "2025-03-02", Timestamp: ts, Name: "Eggs", MealType: schema.MealBreakfast, Calories: 600},
		{Date: "2025-03-02", Timestamp: ts, Name: "Salad", MealType: schema.MealLunch, Calories: 300},
	}
	if err := repo.BatchInsert(ctx, entries); err != nil {
		t.Fatalf("BatchInsert error: %v", err)
	}

	aggs, err := repo.MealTypeAggs(ctx, "2025-03-01", "2025-03-07")
	if err != nil || len(aggs) != 2 {
		t.Fatalf("MealTypeAggs err=%v aggs=%v", err, aggs)
	}
	byType := map[string]MealTypeAgg{}
	for _, a := range aggs {
		byType[a.MealType] = a
	}
	bf := byType[schema.MealBreakfast]
	if bf.DistinctDays != 2 || bf.TotalCalories != 1000 || bf.AvgCalories != 500 {
		t.Fatalf("breakfast agg=%+v, want days=2 total=1000 avg=500", bf)
	}
	if byType[schema.MealLunch].DistinctDays != 1 {
		t.Fatalf("lunch agg=%+v, want days=1", byType[schema.MealLunch])
	}
}

func TestFoodRepositoryDeleteOldEntries(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewFoodRepository(db)
	ctx := context.Background()

	old := time.Now().AddDate(0, 0, -10)
	newer := time.Now().AddDate(0, 0, -1)
	entries := []schema.FoodEntry{
		{Date: old.Format("2006-01-02"), Timestamp: old.UnixMilli(), Name: "Old", MealType: schema.MealDinner, Calories: 500},
		{Date: newer.Format("2006-01-02"), Timestamp: newer.UnixMilli(), Name: "New", MealType: schema.MealDinner, Calories: 500},
	}
	if err := repo.BatchInsert(ctx, entries); err != nil {
		t.Fatalf("BatchInsert error: %v", err)
	}

	deleted, err := repo.DeleteOldEntries(ctx, 7)
	if err != nil {
		t.Fatalf("DeleteOldEntries error: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted=%d, want 1", deleted)
	}
	count, _ := repo.Count(ctx)
	if count != 1 {
		t.Fatalf("count=%d, want 1", count)
	}
}
