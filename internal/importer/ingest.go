package importer

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/yuqie6/NutriMirror/internal/repository"
	"github.com/yuqie6/NutriMirror/internal/service"
)

// 导入文件类型
const (
	KindFood   = "food"
	KindWeight = "weight"
)

// ImportResult 单个文件的导入结果
type ImportResult struct {
	File     string   `json:"file"`
	Kind     string   `json:"kind"`
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// IngestStats 导入服务运行统计
type IngestStats struct {
	Running       bool  `json:"running"`
	FilesImported int64 `json:"files_imported"`
	FilesFailed   int64 `json:"files_failed"`
	RowsImported  int64 `json:"rows_imported"`
	RowsSkipped   int64 `json:"rows_skipped"`
	QueueLen      int   `json:"queue_len"`
}

// IngestService 消费投递目录中的 CSV 文件并写入数据库。
// 写入由单个消费者 goroutine 串行执行，避免并发写 SQLite。
type IngestService struct {
	foodRepo   *repository.FoodRepository
	weightRepo *repository.WeightRepository
	trendSvc   *service.WeightTrendService
	watcher    *DropWatcher
	onImported func(*ImportResult)

	running bool
	mu      sync.Mutex
	wg      sync.WaitGroup

	filesImported atomic.Int64
	filesFailed   atomic.Int64
	rowsImported  atomic.Int64
	rowsSkipped   atomic.Int64
}

// NewIngestService 创建导入服务。watcher 可为 nil（仅用 RunFile 的场景）。
func NewIngestService(
	foodRepo *repository.FoodRepository,
	weightRepo *repository.WeightRepository,
	trendSvc *service.WeightTrendService,
	watcher *DropWatcher,
) *IngestService {
	return &IngestService{
		foodRepo:   foodRepo,
		weightRepo: weightRepo,
		trendSvc:   trendSvc,
		watcher:    watcher,
	}
}

// SetOnImported 设置单文件导入完成后的回调
func (s *IngestService) SetOnImported(fn func(*ImportResult)) {
	s.onImported = fn
}

// Start 启动目录监听与消费循环
func (s *IngestService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("导入服务已在运行")
	}
	if s.watcher == nil {
		return fmt.Errorf("未配置投递目录监听")
	}

	if err := s.watcher.Start(ctx); err != nil {
		return fmt.Errorf("启动投递目录监听失败: %w", err)
	}
	s.running = true

	s.wg.Add(1)
	go s.processLoop()

	slog.Info("导入服务已启动")
	return nil
}

// Stop 停止监听并等待队列中剩余文件导入完成
func (s *IngestService) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if err := s.watcher.Stop(); err != nil {
		slog.Warn("停止投递目录监听失败", "error", err)
	}
	s.wg.Wait()

	slog.Info("导入服务已停止")
	return nil
}

// Stats 返回运行统计
func (s *IngestService) Stats() IngestStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	stats := IngestStats{
		Running:       running,
		FilesImported: s.filesImported.Load(),
		FilesFailed:   s.filesFailed.Load(),
		RowsImported:  s.rowsImported.Load(),
		RowsSkipped:   s.rowsSkipped.Load(),
	}
	if s.watcher != nil {
		stats.QueueLen = len(s.watcher.Files())
	}
	return stats
}

// RunFile 一次性导入单个文件，不改名。供 CLI 手动导入使用。
func (s *IngestService) RunFile(ctx context.Context, path string) (*ImportResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}
	return s.importData(ctx, path, data)
}

// processLoop 串行消费文件通道。通道在监听停止后关闭，
// range 退出前会先把缓冲中剩余的文件导入完。
func (s *IngestService) processLoop() {
	defer s.wg.Done()
	for path := range s.watcher.Files() {
		s.ingestOne(path)
	}
}

func (s *IngestService) ingestOne(path string) {
	// 写库使用独立的 background ctx，避免监听 ctx 取消打断收尾时的落库
	ctx := context.Background()

	data, err := os.ReadFile(path)
	if err != nil {
		s.filesFailed.Add(1)
		slog.Error("读取投递文件失败", "file", filepath.Base(path), "error", err)
		return
	}

	result, err := s.importData(ctx, path, data)
	if err != nil {
		// 不改名，文件继续写入时会再次触发事件重试
		s.filesFailed.Add(1)
		slog.Error("导入文件失败", "file", filepath.Base(path), "error", err)
		return
	}

	if err := os.Rename(path, path+".imported"); err != nil {
		slog.Warn("标记已导入文件失败", "file", filepath.Base(path), "error", err)
	}

	s.filesImported.Add(1)
	s.rowsImported.Add(int64(result.Imported))
	s.rowsSkipped.Add(int64(result.Skipped))
	if s.onImported != nil {
		s.onImported(result)
	}
	slog.Info("文件导入完成",
		"file", filepath.Base(path),
		"kind", result.Kind,
		"imported", result.Imported,
		"skipped", result.Skipped)
}

func (s *IngestService) importData(ctx context.Context, path string, data []byte) (*ImportResult, error) {
	kind, err := detectKind(data)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{File: filepath.Base(path), Kind: kind}
	var report *ParseReport
	switch kind {
	case KindFood:
		report, err = s.importFood(ctx, data, filepath.Base(path))
	case KindWeight:
		report, err = s.importWeight(ctx, data)
	}
	if err != nil {
		return nil, err
	}

	result.Imported = report.Imported
	result.Skipped = report.Skipped
	result.Errors = report.Errors
	return result, nil
}

// detectKind 嗅探表头判断文件类型：带体重列的是体重文件，带 name 列的是食物文件
func detectKind(data []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return "", fmt.Errorf("读取 CSV 表头失败: %w", err)
	}
	cols := indexColumns(header)
	if hasWeightColumn(cols) {
		return KindWeight, nil
	}
	if _, ok := cols["name"]; ok {
		return KindFood, nil
	}
	return "", fmt.Errorf("无法识别的 CSV 表头")
}

func (s *IngestService) importFood(ctx context.Context, data []byte, source string) (*ParseReport, error) {
	entries, report, err := ParseFoodCSV(bytes.NewReader(data), source)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		if err := s.foodRepo.BatchInsert(ctx, entries); err != nil {
			return nil, fmt.Errorf("写入食物记录失败: %w", err)
		}
	}
	return report, nil
}

func (s *IngestService) importWeight(ctx context.Context, data []byte) (*ParseReport, error) {
	entries, report, err := ParseWeightCSV(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	earliest := ""
	for i := range entries {
		if err := s.weightRepo.Upsert(ctx, &entries[i]); err != nil {
			return nil, fmt.Errorf("写入体重记录失败: %w", err)
		}
		if earliest == "" || entries[i].Date < earliest {
			earliest = entries[i].Date
		}
	}

	// 批量导入可能落在历史区间中段，趋势从最早导入日起重算
	if earliest != "" {
		if err := s.trendSvc.RecomputeFrom(ctx, earliest); err != nil {
			return nil, fmt.Errorf("重算体重趋势失败: %w", err)
		}
	}
	return report, nil
}
