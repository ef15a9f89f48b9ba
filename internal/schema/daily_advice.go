package schema

import "time"

// DailyAdvice 每日建议 - AI 生成，按日期缓存
// 数据量级：百级/年
type DailyAdvice struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Date         string    `gorm:"size:10;uniqueIndex;not null" json:"date"` // YYYY-MM-DD
	Headline     string    `gorm:"size:255" json:"headline"`
	Observations JSONArray `gorm:"type:text" json:"observations"` // 2-3 条简短观察
	Tip          string    `gorm:"type:text" json:"tip"`          // 当天剩余时间的可执行建议
	Model        string    `gorm:"size:100" json:"model"`
	Prompt       string    `gorm:"type:text" json:"prompt"` // 生成时的完整提示词（便于回溯）
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (DailyAdvice) TableName() string {
	return "daily_advice"
}
