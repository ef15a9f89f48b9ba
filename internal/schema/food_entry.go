package schema

import "time"

// 餐次类型
const (
	MealBreakfast = "breakfast"
	MealLunch     = "lunch"
	MealDinner    = "dinner"
	MealSnack     = "snack"
)

// MainMealTypes 三个正餐（零食不算"被跳过的餐次"）
var MainMealTypes = []string{MealBreakfast, MealLunch, MealDinner}

// ValidMealType 校验餐次类型
func ValidMealType(t string) bool {
	switch t {
	case MealBreakfast, MealLunch, MealDinner, MealSnack:
		return true
	}
	return false
}

// FoodEntry 食物记录 - 用户记录的单次进食
// 数据量级：万级/年
type FoodEntry struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Date      string    `gorm:"size:10;index" json:"date"`      // YYYY-MM-DD（按天聚合的主维度）
	Timestamp int64     `gorm:"index" json:"timestamp"`         // Unix 时间戳（毫秒）
	Name      string    `gorm:"size:255;index" json:"name"`     // 食物名称
	MealType  string    `gorm:"size:20;index" json:"meal_type"` // breakfast/lunch/dinner/snack
	Quantity  float64   `gorm:"default:1" json:"quantity"`      // 份量数值
	Unit      string    `gorm:"size:30" json:"unit"`            // 份量单位（serving/g/ml 等）
	Calories  float64   `gorm:"default:0" json:"calories"`      // 千卡
	Protein   float64   `gorm:"default:0" json:"protein"`       // 克
	Carbs     float64   `gorm:"default:0" json:"carbs"`         // 克
	Fat       float64   `gorm:"default:0" json:"fat"`           // 克
	Fiber     float64   `gorm:"default:0" json:"fiber"`         // 克
	Metadata  JSONMap   `gorm:"type:text" json:"metadata"`      // 来源信息（导入文件名等）
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (FoodEntry) TableName() string {
	return "food_entries"
}

// NewFoodEntry 创建食物记录（date 取 ts 所在日）
func NewFoodEntry(name, mealType string, ts time.Time) *FoodEntry {
	return &FoodEntry{
		Date:      ts.Format("2006-01-02"),
		Timestamp: ts.UnixMilli(),
		Name:      name,
		MealType:  mealType,
		Quantity:  1,
		Metadata:  make(JSONMap),
	}
}
