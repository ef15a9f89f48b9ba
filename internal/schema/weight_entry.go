package schema

import "time"

// WeightEntry 体重记录 - 每个日历日最多一条
// 数据量级：百级/年
type WeightEntry struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Date      string    `gorm:"size:10;uniqueIndex;not null" json:"date"` // YYYY-MM-DD
	Timestamp int64     `gorm:"index" json:"timestamp"`                   // Unix 时间戳（毫秒）
	WeightKg  float64   `gorm:"not null" json:"weight_kg"`                // 原始称重（kg）
	TrendKg   float64   `gorm:"default:0" json:"trend_kg"`                // 平滑趋势值；0 表示尚未计算
	Note      string    `gorm:"size:255" json:"note"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (WeightEntry) TableName() string {
	return "weight_entries"
}

// HasTrend 趋势值是否已计算（体重不可能为 0，0 作为未计算哨兵）
func (w *WeightEntry) HasTrend() bool {
	return w.TrendKg > 0
}
