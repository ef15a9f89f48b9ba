package schema

import "time"

// WeeklyReport 周报 - AI 生成的周度叙述，按日期区间唯一
type WeeklyReport struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	StartDate     string    `gorm:"size:10;not null;uniqueIndex:uniq_report_range" json:"start_date"`
	EndDate       string    `gorm:"size:10;not null;uniqueIndex:uniq_report_range" json:"end_date"`
	Narrative     string    `gorm:"type:text" json:"narrative"` // 2-3 段叙述
	Wins          JSONArray `gorm:"type:text" json:"wins"`
	Suggestion    string    `gorm:"type:text" json:"suggestion"` // 下周唯一可执行建议
	Encouragement string    `gorm:"size:500" json:"encouragement"`
	Model         string    `gorm:"size:100" json:"model"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (WeeklyReport) TableName() string {
	return "weekly_reports"
}
