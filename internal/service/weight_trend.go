package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yuqie6/NutriMirror/internal/schema"
)

// 趋势平滑系数（EMA α），经验值，待产品评审
const trendSmoothingFactor = 0.1

// SmoothWeights 对按日期升序的体重观测做指数平滑：
// trend[i] = α·raw[i] + (1−α)·trend[i−1]。
// 只在有观测的日期上推进，空缺日不参与计算。
// hasSeed 时首点以 seed 作为前值；否则首点趋势直接等于原始体重。
// 纯函数：不修改入参，趋势写在返回切片的 TrendKg 上。
func SmoothWeights(entries []schema.WeightEntry, seed float64, hasSeed bool) []schema.WeightEntry {
	if len(entries) == 0 {
		return nil
	}

	out := make([]schema.WeightEntry, len(entries))
	copy(out, entries)

	start := 0
	prev := seed
	if !hasSeed {
		out[0].TrendKg = out[0].WeightKg
		prev = out[0].TrendKg
		start = 1
	}
	for i := start; i < len(out); i++ {
		out[i].TrendKg = trendSmoothingFactor*out[i].WeightKg + (1-trendSmoothingFactor)*prev
		prev = out[i].TrendKg
	}
	return out
}

// WeightTrendService 体重记录与趋势重算服务
type WeightTrendService struct {
	weightRepo WeightRepository
}

// NewWeightTrendService 创建体重趋势服务
func NewWeightTrendService(weightRepo WeightRepository) *WeightTrendService {
	return &WeightTrendService{weightRepo: weightRepo}
}

// LogWeight 记录某日体重（同日覆盖），并从该日起重算趋势
func (s *WeightTrendService) LogWeight(ctx context.Context, date string, weightKg float64, note string) (*schema.WeightEntry, error) {
	if weightKg <= 0 {
		return nil, fmt.Errorf("体重必须大于 0")
	}
	entry := &schema.WeightEntry{
		Date:      date,
		Timestamp: time.Now().UnixMilli(),
		WeightKg:  weightKg,
		Note:      note,
	}
	if err := s.weightRepo.Upsert(ctx, entry); err != nil {
		return nil, err
	}
	if err := s.RecomputeFrom(ctx, date); err != nil {
		return nil, err
	}
	return s.weightRepo.GetByDate(ctx, date)
}

// DeleteWeight 删除某日体重记录，并从该日起向后重算趋势
func (s *WeightTrendService) DeleteWeight(ctx context.Context, date string) error {
	if err := s.weightRepo.DeleteByDate(ctx, date); err != nil {
		return err
	}
	return s.RecomputeFrom(ctx, date)
}

// RecomputeFrom 从某日期（含）起重算趋势并写回。
// 种子取窗口前最近一条已有趋势的记录；没有则以窗口首点原始值起算。
// 对同一份数据重复调用结果不变（编辑历史记录后可安全重放）。
func (s *WeightTrendService) RecomputeFrom(ctx context.Context, fromDate string) error {
	entries, err := s.weightRepo.HistorySince(ctx, fromDate)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	seed := 0.0
	hasSeed := false
	prior, err := s.weightRepo.LatestBefore(ctx, fromDate)
	if err != nil {
		return err
	}
	if prior != nil && prior.HasTrend() {
		seed = prior.TrendKg
		hasSeed = true
	}

	smoothed := SmoothWeights(entries, seed, hasSeed)
	if err := s.weightRepo.SaveTrends(ctx, smoothed); err != nil {
		return err
	}

	slog.Debug("体重趋势已重算",
		"from_date", fromDate,
		"points", len(smoothed),
		"seeded", hasSeed)
	return nil
}

// RecomputeAll 全量重算（导入历史数据后使用）
func (s *WeightTrendService) RecomputeAll(ctx context.Context) error {
	entries, err := s.weightRepo.History(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	smoothed := SmoothWeights(entries, 0, false)
	return s.weightRepo.SaveTrends(ctx, smoothed)
}

// History 全部体重记录（升序）
func (s *WeightTrendService) History(ctx context.Context) ([]schema.WeightEntry, error) {
	return s.weightRepo.History(ctx)
}

// Latest 最近一条体重记录
func (s *WeightTrendService) Latest(ctx context.Context) (*schema.WeightEntry, error) {
	return s.weightRepo.Latest(ctx)
}
