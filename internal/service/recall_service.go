package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"github.com/yuqie6/NutriMirror/internal/ai"
	"github.com/yuqie6/NutriMirror/internal/schema"
)

// RecallService 教练记忆服务：把历史建议/周报索引成向量，供周报生成时召回
type RecallService struct {
	db          *chromem.DB
	collection  *chromem.Collection
	sfClient    *ai.SiliconFlowClient
	storagePath string
}

// RecallConfig 配置
type RecallConfig struct {
	StoragePath string // 向量数据库存储路径
}

// NewRecallService 创建记忆服务
func NewRecallService(sfClient *ai.SiliconFlowClient, cfg *RecallConfig) (*RecallService, error) {
	if cfg == nil {
		cfg = &RecallConfig{}
	}

	if cfg.StoragePath == "" {
		cfg.StoragePath = "./data/recall"
	}

	// 确保目录存在
	if err := os.MkdirAll(cfg.StoragePath, 0755); err != nil {
		return nil, fmt.Errorf("创建记忆存储目录失败: %w", err)
	}

	db, err := chromem.NewPersistentDB(cfg.StoragePath, false)
	if err != nil {
		return nil, fmt.Errorf("创建向量数据库失败: %w", err)
	}

	collection, err := db.GetOrCreateCollection("advice-history", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("创建 collection 失败: %w", err)
	}

	return &RecallService{
		db:          db,
		collection:  collection,
		sfClient:    sfClient,
		storagePath: cfg.StoragePath,
	}, nil
}

// IndexDailyAdvice 索引每日建议（嵌入服务未配置时静默跳过）
func (s *RecallService) IndexDailyAdvice(ctx context.Context, advice *schema.DailyAdvice) error {
	if !s.sfClient.IsConfigured() {
		slog.Debug("SiliconFlow 未配置，跳过索引")
		return nil
	}

	content := fmt.Sprintf("date: %s\nheadline: %s\nobservations: %s\ntip: %s",
		advice.Date, advice.Headline, strings.Join(advice.Observations, "; "), advice.Tip)

	embeddings, err := s.sfClient.Embed(ctx, []string{content})
	if err != nil {
		return fmt.Errorf("生成嵌入失败: %w", err)
	}
	if len(embeddings) == 0 {
		return fmt.Errorf("嵌入结果为空")
	}

	doc := chromem.Document{
		ID:        fmt.Sprintf("advice_%s", advice.Date),
		Content:   content,
		Embedding: embeddings[0],
		Metadata: map[string]string{
			"type": "daily_advice",
			"date": advice.Date,
		},
	}

	if err := s.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("添加文档失败: %w", err)
	}

	slog.Debug("索引每日建议", "date", advice.Date)
	return nil
}

// IndexWeeklyReport 索引周报
func (s *RecallService) IndexWeeklyReport(ctx context.Context, report *schema.WeeklyReport) error {
	if !s.sfClient.IsConfigured() {
		return nil
	}

	// 叙述可能很长，截断后再嵌入，避免超出嵌入模型输入上限
	content := fmt.Sprintf("week: %s to %s\nnarrative: %s\nsuggestion: %s",
		report.StartDate, report.EndDate, truncateRunes(report.Narrative, 800), report.Suggestion)

	embeddings, err := s.sfClient.Embed(ctx, []string{content})
	if err != nil {
		return fmt.Errorf("生成嵌入失败: %w", err)
	}
	if len(embeddings) == 0 {
		return fmt.Errorf("嵌入结果为空")
	}

	doc := chromem.Document{
		ID:        fmt.Sprintf("report_%s_%s", report.StartDate, report.EndDate),
		Content:   content,
		Embedding: embeddings[0],
		Metadata: map[string]string{
			"type": "weekly_report",
			"date": report.EndDate,
		},
	}

	if err := s.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("添加文档失败: %w", err)
	}

	slog.Debug("索引周报", "start", report.StartDate, "end", report.EndDate)
	return nil
}

// Query 查询相关历史记忆
func (s *RecallService) Query(ctx context.Context, query string, topK int) ([]MemoryResult, error) {
	if !s.sfClient.IsConfigured() {
		return nil, fmt.Errorf("SiliconFlow 未配置")
	}

	if topK <= 0 {
		topK = 5
	}
	// chromem 要求 topK 不超过库内文档数
	if count := s.collection.Count(); count < topK {
		topK = count
	}
	if topK == 0 {
		return nil, nil
	}

	queryEmb, err := s.sfClient.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("生成查询嵌入失败: %w", err)
	}
	if len(queryEmb) == 0 {
		return nil, fmt.Errorf("查询嵌入为空")
	}

	// 向量搜索（余弦相似度）
	results, err := s.collection.QueryEmbedding(ctx, queryEmb[0], topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("向量搜索失败: %w", err)
	}

	docs := make([]string, len(results))
	for i, r := range results {
		docs[i] = r.Content
	}

	// 用 Reranker 重排；失败时退回向量相似度顺序
	reranked, err := s.sfClient.Rerank(ctx, query, docs, topK)
	if err != nil {
		slog.Warn("重排失败，使用原始结果", "error", err)
		memories := make([]MemoryResult, len(results))
		for i, r := range results {
			memories[i] = MemoryResult{
				Content:    r.Content,
				Similarity: r.Similarity,
				Type:       r.Metadata["type"],
				Date:       r.Metadata["date"],
			}
		}
		return memories, nil
	}

	memories := make([]MemoryResult, 0, len(reranked))
	for _, rr := range reranked {
		if rr.Index < len(results) {
			memories = append(memories, MemoryResult{
				Content:    results[rr.Index].Content,
				Similarity: float32(rr.RelevanceScore),
				Type:       results[rr.Index].Metadata["type"],
				Date:       results[rr.Index].Metadata["date"],
			})
		}
	}

	return memories, nil
}

// MemoryResult 记忆查询结果
type MemoryResult struct {
	Content    string
	Similarity float32
	Type       string
	Date       string
}

// Close 关闭服务
func (s *RecallService) Close() error {
	// chromem-go 持久化数据库自动落盘
	return nil
}

// GetStoragePath 获取存储路径
func (s *RecallService) GetStoragePath() string {
	absPath, _ := filepath.Abs(s.storagePath)
	return absPath
}
