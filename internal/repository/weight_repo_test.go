package repository

import (
	"context"
	"testing"
	"time"

	"github.com/yuqie6/NutriMirror/internal/schema"
	"github.com/yuqie6/NutriMirror/internal/testutil"
)

func TestWeightRepositoryUpsertSameDate(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewWeightRepository(db)
	ctx := context.Background()

	ts := time.Now().UnixMilli()
	if err := repo.Upsert(ctx, &schema.WeightEntry{Date: "2025-03-01", Timestamp: ts, WeightKg: 80.0}); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	// 同一天再次记录应覆盖而不是新增
	if err := repo.Upsert(ctx, &schema.WeightEntry{Date: "2025-03-01", Timestamp: ts + 1, WeightKg: 80.5}); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}

	count, err := repo.Count(ctx)
	if err != nil || count != 1 {
		t.Fatalf("Count err=%v count=%d, want 1", err, count)
	}
	got, err := repo.GetByDate(ctx, "2025-03-01")
	if err != nil || got == nil {
		t.Fatalf("GetByDate err=%v got=%v", err, got)
	}
	if got.WeightKg != 80.5 {
		t.Fatalf("WeightKg=%v, want 80.5", got.WeightKg)
	}
}

func TestWeightRepositorySaveTrends(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewWeightRepository(db)
	ctx := context.Background()

	ts := time.Now().UnixMilli()
	for i, d := range []string{"2025-03-01", "2025-03-02", "2025-03-03"} {
		if err := repo.Upsert(ctx, &schema.WeightEntry{Date: d, Timestamp: ts + int64(i), WeightKg: 80 + float64(i)}); err != nil {
			t.Fatalf("Upsert error: %v", err)
		}
	}

	trends := []schema.WeightEntry{
		{Date: "2025-03-01", TrendKg: 80.0},
		{Date: "2025-03-02", TrendKg: 80.1},
		{Date: "2025-03-03", TrendKg: 80.29},
	}
	if err := repo.SaveTrends(ctx, trends); err != nil {
		t.Fatalf("SaveTrends error: %v", err)
	}

	history, err := repo.History(ctx)
	if err != nil || len(history) != 3 {
		t.Fatalf("History err=%v len=%d", err, len(history))
	}
	// History 按日期升序返回
	if history[0].Date != "2025-03-01" || history[2].Date != "2025-03-03" {
		t.Fatalf("history order wrong: %v %v", history[0].Date, history[2].Date)
	}
	if history[1].TrendKg != 80.1 {
		t.Fatalf("TrendKg=%v, want 80.1", history[1].TrendKg)
	}
	// 原始体重不应被趋势回写改动
	if history[1].WeightKg != 81 {
		t.Fatalf("WeightKg=%v, want 81", history[1].WeightKg)
	}
}

func TestWeightRepositoryGetByDateMissing(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewWeightRepository(db)

	got, err := repo.GetByDate(context.Background(), "2025-01-01")
	if err != nil {
		t.Fatalf("GetByDate error: %v", err)
	}
	if got != nil {
		t.Fatalf("got=%v, want nil", got)
	}
}
