package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/yuqie6/NutriMirror/internal/repository"
	"github.com/yuqie6/NutriMirror/internal/service"
	"github.com/yuqie6/NutriMirror/internal/testutil"
	"gorm.io/gorm"
)

func newIngestForTest(t *testing.T) (*IngestService, *gorm.DB) {
	t.Helper()
	db := testutil.OpenTestDB(t)
	foodRepo := repository.NewFoodRepository(db)
	weightRepo := repository.NewWeightRepository(db)
	trendSvc := service.NewWeightTrendService(weightRepo)
	return NewIngestService(foodRepo, weightRepo, trendSvc, nil), db
}

func writeTempCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写临时文件失败: %v", err)
	}
	return path
}

func TestDetectKind(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"date,name,calories", KindFood},
		{"kcal,item,date", KindFood},
		{"date,weight_kg", KindWeight},
		{"date,weight,unit", KindWeight},
		{"date,lbs", KindWeight},
	}
	for _, c := range cases {
		got, err := detectKind([]byte(c.header + "\n"))
		if err != nil {
			t.Errorf("detectKind(%q) 出错: %v", c.header, err)
			continue
		}
		if got != c.want {
			t.Errorf("detectKind(%q)=%q, want %q", c.header, got, c.want)
		}
	}

	if _, err := detectKind([]byte("date,steps\n")); err == nil {
		t.Error("未知表头应当报错")
	}
}

func TestRunFileImportsFood(t *testing.T) {
	svc, db := newIngestForTest(t)
	ctx := context.Background()

	path := writeTempCSV(t, "meals.csv",
		"date,name,calories,protein,meal_type\n"+
			"2025-03-01,Oatmeal,300,10,breakfast\n"+
			"2025-03-01,Chicken bowl,650,45,lunch\n"+
			"bad-date,Burger,800,30,dinner\n")

	result, err := svc.RunFile(ctx, path)
	if err != nil {
		t.Fatalf("RunFile 出错: %v", err)
	}
	if result.Kind != KindFood {
		t.Errorf("kind=%q, want food", result.Kind)
	}
	if result.Imported != 2 || result.Skipped != 1 {
		t.Errorf("imported=%d skipped=%d, want 2 1", result.Imported, result.Skipped)
	}

	entries, err := repository.NewFoodRepository(db).GetByDate(ctx, "2025-03-01")
	if err != nil {
		t.Fatalf("GetByDate 出错: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries)=%d, want 2", len(entries))
	}
	for _, e := range entries {
		if e.Metadata["source"] != "meals.csv" {
			t.Errorf("metadata source=%v, want meals.csv", e.Metadata["source"])
		}
	}

	// RunFile 不改名，文件应原样保留
	if _, err := os.Stat(path); err != nil {
		t.Errorf("原文件应保留: %v", err)
	}
}

func TestRunFileImportsWeightAndRecomputesTrend(t *testing.T) {
	svc, db := newIngestForTest(t)
	ctx := context.Background()

	path := writeTempCSV(t, "weights.csv",
		"date,weight_kg\n"+
			"2025-03-01,80\n"+
			"2025-03-02,81\n"+
			"2025-03-03,79.5\n")

	result, err := svc.RunFile(ctx, path)
	if err != nil {
		t.Fatalf("RunFile 出错: %v", err)
	}
	if result.Kind != KindWeight || result.Imported != 3 {
		t.Fatalf("kind=%q imported=%d, want weight 3", result.Kind, result.Imported)
	}

	history, err := repository.NewWeightRepository(db).History(ctx)
	if err != nil {
		t.Fatalf("History 出错: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("len(history)=%d, want 3", len(history))
	}

	// 导入后趋势应已平滑：80 → 80.1 → 80.04
	wantTrends := []float64{80, 80.1, 80.04}
	for i, w := range wantTrends {
		if !history[i].HasTrend() {
			t.Fatalf("history[%d] 没有趋势值", i)
		}
		if !almostEqual(history[i].TrendKg, w) {
			t.Errorf("history[%d].TrendKg=%v, want %v", i, history[i].TrendKg, w)
		}
	}
}

func TestRunFileWeightUpsertOverwritesSameDate(t *testing.T) {
	svc, db := newIngestForTest(t)
	ctx := context.Background()

	first := writeTempCSV(t, "w1.csv", "date,weight_kg\n2025-03-01,80\n")
	if _, err := svc.RunFile(ctx, first); err != nil {
		t.Fatalf("首次导入出错: %v", err)
	}
	second := writeTempCSV(t, "w2.csv", "date,weight_kg\n2025-03-01,79.2\n")
	if _, err := svc.RunFile(ctx, second); err != nil {
		t.Fatalf("二次导入出错: %v", err)
	}

	entry, err := repository.NewWeightRepository(db).GetByDate(ctx, "2025-03-01")
	if err != nil {
		t.Fatalf("GetByDate 出错: %v", err)
	}
	if entry == nil || !almostEqual(entry.WeightKg, 79.2) {
		t.Fatalf("entry=%+v, want weightKg 79.2", entry)
	}
}

func TestRunFileUnknownHeader(t *testing.T) {
	svc, _ := newIngestForTest(t)
	path := writeTempCSV(t, "steps.csv", "date,steps\n2025-03-01,9000\n")

	if _, err := svc.RunFile(context.Background(), path); err == nil {
		t.Fatal("未知表头应当报错")
	}
}

func TestRunFileMissingFile(t *testing.T) {
	svc, _ := newIngestForTest(t)
	if _, err := svc.RunFile(context.Background(), "/nonexistent/file.csv"); err == nil {
		t.Fatal("文件不存在应当报错")
	}
}
