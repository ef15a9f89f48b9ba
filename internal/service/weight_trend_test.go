package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"testing"

	"github.com/yuqie6/NutriMirror/internal/schema"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSmoothWeights_Empty(t *testing.T) {
	if got := SmoothWeights(nil, 0, false); got != nil {
		t.Fatalf("empty input should return nil, got %v", got)
	}
}

func TestSmoothWeights_SingleObservation(t *testing.T) {
	entries := []schema.WeightEntry{{Date: "2025-03-01", WeightKg: 80}}
	out := SmoothWeights(entries, 0, false)
	if len(out) != 1 || out[0].TrendKg != 80 {
		t.Fatalf("out=%+v, want trend=raw=80", out)
	}
}

func TestSmoothWeights_Sequence(t *testing.T) {
	entries := []schema.WeightEntry{
		{Date: "2025-03-01", WeightKg: 80},
		{Date: "2025-03-02", WeightKg: 81},
		{Date: "2025-03-04", WeightKg: 82}, // 3 号缺测，空缺日直接跳过
	}
	out := SmoothWeights(entries, 0, false)
	want := []float64{80, 80.1, 80.29}
	for i, w := range want {
		if !almostEqual(out[i].TrendKg, w) {
			t.Fatalf("trend[%d]=%v, want %v", i, out[i].TrendKg, w)
		}
	}
	// 入参不应被修改
	if entries[1].TrendKg != 0 {
		t.Fatalf("input mutated: %+v", entries[1])
	}
}

func TestSmoothWeights_Idempotent(t *testing.T) {
	entries := []schema.WeightEntry{
		{Date: "2025-03-01", WeightKg: 80.4},
		{Date: "2025-03-02", WeightKg: 79.9},
		{Date: "2025-03-03", WeightKg: 80.7},
		{Date: "2025-03-05", WeightKg: 80.1},
	}
	first := SmoothWeights(entries, 0, false)
	second := SmoothWeights(entries, 0, false)
	for i := range first {
		if first[i].TrendKg != second[i].TrendKg {
			t.Fatalf("trend[%d] differs: %v vs %v", i, first[i].TrendKg, second[i].TrendKg)
		}
	}

	// 以首点趋势为种子重放剩余窗口，应与全量计算逐位一致
	replay := SmoothWeights(entries[1:], first[0].TrendKg, true)
	for i := range replay {
		if replay[i].TrendKg != first[i+1].TrendKg {
			t.Fatalf("replay[%d]=%v, want %v", i, replay[i].TrendKg, first[i+1].TrendKg)
		}
	}
}

// fakeWeightRepo 内存版体重仓储
type fakeWeightRepo struct {
	entries map[string]*schema.WeightEntry
}

func newFakeWeightRepo() *fakeWeightRepo {
	return &fakeWeightRepo{entries: make(map[string]*schema.WeightEntry)}
}

func (f *fakeWeightRepo) sorted() []schema.WeightEntry {
	dates := make([]string, 0, len(f.entries))
	for d := range f.entries {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	out := make([]schema.WeightEntry, 0, len(dates))
	for _, d := range dates {
		out = append(out, *f.entries[d])
	}
	return out
}

func (f *fakeWeightRepo) Upsert(_ context.Context, entry *schema.WeightEntry) error {
	e := *entry
	f.entries[e.Date] = &e
	return nil
}

func (f *fakeWeightRepo) GetByDate(_ context.Context, date string) (*schema.WeightEntry, error) {
	e, ok := f.entries[date]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (f *fakeWeightRepo) History(_ context.Context) ([]schema.WeightEntry, error) {
	return f.sorted(), nil
}

func (f *fakeWeightRepo) HistorySince(_ context.Context, startDate string) ([]schema.WeightEntry, error) {
	var out []schema.WeightEntry
	for _, e := range f.sorted() {
		if e.Date >= startDate {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeWeightRepo) LatestBefore(_ context.Context, date string) (*schema.WeightEntry, error) {
	all := f.sorted()
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Date < date {
			cp := all[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeWeightRepo) Latest(_ context.Context) (*schema.WeightEntry, error) {
	all := f.sorted()
	if len(all) == 0 {
		return nil, nil
	}
	cp := all[len(all)-1]
	return &cp, nil
}

func (f *fakeWeightRepo) SaveTrends(_ context.Context, entries []schema.WeightEntry) error {
	for _, e := range entries {
		if cur, ok := f.entries[e.Date]; ok {
			cur.TrendKg = e.TrendKg
		}
	}
	return nil
}

func (f *fakeWeightRepo) DeleteByDate(_ context.Context, date string) error {
	if _, ok := f.entries[date]; !ok {
		return fmt.Errorf("记录不存在: %s", date)
	}
	delete(f.entries, date)
	return nil
}

func (f *fakeWeightRepo) Count(_ context.Context) (int64, error) {
	return int64(len(f.entries)), nil
}

func TestWeightTrendService_LogAndRecompute(t *testing.T) {
	repo := newFakeWeightRepo()
	svc := NewWeightTrendService(repo)
	ctx := context.Background()

	for _, c := range []struct {
		date string
		kg   float64
	}{
		{"2025-03-01", 80},
		{"2025-03-02", 81},
		{"2025-03-03", 82},
	} {
		if _, err := svc.LogWeight(ctx, c.date, c.kg, ""); err != nil {
			t.Fatalf("LogWeight(%s) error: %v", c.date, err)
		}
	}

	history, _ := svc.History(ctx)
	want := []float64{80, 80.1, 80.29}
	for i, w := range want {
		if !almostEqual(history[i].TrendKg, w) {
			t.Fatalf("trend[%d]=%v, want %v", i, history[i].TrendKg, w)
		}
	}
}

func TestWeightTrendService_EditRecomputesForwardOnly(t *testing.T) {
	repo := newFakeWeightRepo()
	svc := NewWeightTrendService(repo)
	ctx := context.Background()

	for _, c := range []struct {
		date string
		kg   float64
	}{
		{"2025-03-01", 80},
		{"2025-03-02", 81},
		{"2025-03-03", 82},
	} {
		if _, err := svc.LogWeight(ctx, c.date, c.kg, ""); err != nil {
			t.Fatalf("LogWeight error: %v", err)
		}
	}

	// 修正 3 月 2 日的记录：只有 2 日及之后的趋势被重算
	if _, err := svc.LogWeight(ctx, "2025-03-02", 90, "手误修正"); err != nil {
		t.Fatalf("LogWeight edit error: %v", err)
	}

	history, _ := svc.History(ctx)
	if history[0].TrendKg != 80 {
		t.Fatalf("trend[0]=%v, want untouched 80", history[0].TrendKg)
	}
	// 0.1*90 + 0.9*80 = 81；0.1*82 + 0.9*81 = 81.1
	if !almostEqual(history[1].TrendKg, 81) || !almostEqual(history[2].TrendKg, 81.1) {
		t.Fatalf("trends=(%v,%v), want (81, 81.1)", history[1].TrendKg, history[2].TrendKg)
	}

	// 同一数据上重放必须逐位一致
	before := make([]float64, len(history))
	for i, e := range history {
		before[i] = e.TrendKg
	}
	if err := svc.RecomputeFrom(ctx, "2025-03-02"); err != nil {
		t.Fatalf("RecomputeFrom error: %v", err)
	}
	after, _ := svc.History(ctx)
	for i := range after {
		if after[i].TrendKg != before[i] {
			t.Fatalf("trend[%d] not idempotent: %v vs %v", i, after[i].TrendKg, before[i])
		}
	}
}

func TestWeightTrendService_DeleteRecomputes(t *testing.T) {
	repo := newFakeWeightRepo()
	svc := NewWeightTrendService(repo)
	ctx := context.Background()

	for _, c := range []struct {
		date string
		kg   float64
	}{
		{"2025-03-01", 80},
		{"2025-03-02", 90},
		{"2025-03-03", 82},
	} {
		if _, err := svc.LogWeight(ctx, c.date, c.kg, ""); err != nil {
			t.Fatalf("LogWeight error: %v", err)
		}
	}

	if err := svc.DeleteWeight(ctx, "2025-03-02"); err != nil {
		t.Fatalf("DeleteWeight error: %v", err)
	}
	history, _ := svc.History(ctx)
	if len(history) != 2 {
		t.Fatalf("len=%d, want 2", len(history))
	}
	// 删除后 3 日以 1 日趋势为种子：0.1*82 + 0.9*80 = 80.2
	if !almostEqual(history[1].TrendKg, 80.2) {
		t.Fatalf("trend=%v, want 80.2", history[1].TrendKg)
	}
}
