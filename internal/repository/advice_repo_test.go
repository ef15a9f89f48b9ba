package repository

import (
	"context"
	"testing"
	"time"

	"github.com/yuqie6/NutriMirror/internal/schema"
	"github.com/yuqie6/NutriMirror/internal/testutil"
)

func TestAdviceRepositoryUpsertAndGet(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewAdviceRepository(db)
	ctx := context.Background()

	advice := &schema.DailyAdvice{Date: "2025-03-01", Headline: "first", Observations: schema.JSONArray{"a", "b"}}
	if err := repo.Upsert(ctx, advice); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	// 同一天重复生成应覆盖
	if err := repo.Upsert(ctx, &schema.DailyAdvice{Date: "2025-03-01", Headline: "second"}); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}

	got, err := repo.GetByDate(ctx, "2025-03-01")
	if err != nil {
		t.Fatalf("GetByDate error: %v", err)
	}
	if got == nil || got.Headline != "second" {
		t.Fatalf("got=%+v, want headline second", got)
	}

	missing, err := repo.GetByDate(ctx, "2025-03-02")
	if err != nil || missing != nil {
		t.Fatalf("missing err=%v got=%v, want nil", err, missing)
	}
}

func TestAdviceRepositoryGetFreshExpiry(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewAdviceRepository(db)
	ctx := context.Background()

	if err := repo.Upsert(ctx, &schema.DailyAdvice{Date: "2025-03-01", Headline: "ok"}); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}

	fresh, err := repo.GetFresh(ctx, "2025-03-01", time.Hour)
	if err != nil || fresh == nil {
		t.Fatalf("GetFresh err=%v got=%v, want hit", err, fresh)
	}
	// maxAge 为 0 视为立即过期
	stale, err := repo.GetFresh(ctx, "2025-03-01", 0)
	if err != nil || stale != nil {
		t.Fatalf("stale err=%v got=%v, want nil", err, stale)
	}
}

func TestReportRepositoryUpsertRange(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewReportRepository(db)
	ctx := context.Background()

	report := &schema.WeeklyReport{StartDate: "2025-03-03", EndDate: "2025-03-09", Narrative: "v1"}
	if err := repo.Upsert(ctx, report); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	if err := repo.Upsert(ctx, &schema.WeeklyReport{StartDate: "2025-03-03", EndDate: "2025-03-09", Narrative: "v2"}); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}

	got, err := repo.GetByRange(ctx, "2025-03-03", "2025-03-09", time.Hour)
	if err != nil {
		t.Fatalf("GetByRange error: %v", err)
	}
	if got == nil || got.Narrative != "v2" {
		t.Fatalf("got=%+v, want narrative v2", got)
	}

	reports, err := repo.ListRecent(ctx, 10)
	if err != nil || len(reports) != 1 {
		t.Fatalf("ListRecent err=%v len=%d, want 1", err, len(reports))
	}
}
