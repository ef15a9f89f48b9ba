package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/yuqie6/NutriMirror/internal/bootstrap"
	"github.com/yuqie6/NutriMirror/internal/importer"
	"github.com/yuqie6/NutriMirror/internal/pkg/buildinfo"
	"github.com/yuqie6/NutriMirror/internal/repository"
	"github.com/yuqie6/NutriMirror/internal/schema"
	"github.com/yuqie6/NutriMirror/internal/service"
)

var (
	cfgFile string
	core    *bootstrap.Core
)

const divider = "═══════════════════════════════════════"

func main() {
	rootCmd := &cobra.Command{
		Use:   "nutri",
		Short: "NutriMirror - 本地优先的营养记录与 AI 教练",
		Long:  `NutriMirror 在本地记录饮食与体重，计算趋势指标、派生行为洞察，并生成 AI 教练建议。`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			core, err = bootstrap.NewCore(cfgFile)
			if err != nil {
				return fmt.Errorf("初始化失败: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if core != nil {
				_ = core.Close()
			}
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置文件路径")

	rootCmd.AddCommand(metricsCmd())
	rootCmd.AddCommand(insightsCmd())
	rootCmd.AddCommand(contextCmd())
	rootCmd.AddCommand(adviseCmd())
	rootCmd.AddCommand(foodCmd())
	rootCmd.AddCommand(weightCmd())
	rootCmd.AddCommand(goalCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(settingsCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveDate 空值取今天，否则校验 YYYY-MM-DD
func resolveDate(date string) (string, error) {
	d := strings.TrimSpace(date)
	if d == "" {
		return repository.Today(), nil
	}
	if _, err := repository.ParseDay(d); err != nil {
		return "", fmt.Errorf("日期格式无效（期望 YYYY-MM-DD）: %s", d)
	}
	return d, nil
}

// preferredUnit 读取用户偏好的体重单位，失败回退产品默认
func preferredUnit(ctx context.Context) string {
	settings, err := core.Repos.Settings.Get(ctx)
	if err != nil || settings == nil {
		return schema.UnitLbs
	}
	return schema.NormalizeWeightUnit(settings.WeightUnit)
}

func formatKg(kg float64, unit string) string {
	if unit == schema.UnitKg {
		return fmt.Sprintf("%.1f kg", kg)
	}
	return fmt.Sprintf("%.1f lbs", schema.LbsFromKg(kg))
}

// metricsCmd 指标命令
func metricsCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "查看营养指标",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := resolveDate(date)
			if err != nil {
				return err
			}
			ctx := context.Background()
			m, err := core.Services.Metrics.GetMetrics(ctx, d)
			if err != nil {
				return fmt.Errorf("计算指标失败: %w", err)
			}
			unit := preferredUnit(ctx)

			fmt.Printf("📊 %s\n", service.FormatDayLabel(d))
			fmt.Println(divider)

			fmt.Printf("\n🍽 今日进度（目标来源: %s）\n", m.Targets.Source)
			printProgress("热量", "kcal", m.Today.Calories)
			printProgress("蛋白质", "g", m.Today.Protein)
			printProgress("碳水", "g", m.Today.Carbs)
			printProgress("脂肪", "g", m.Today.Fat)
			fmt.Printf("  • 纤维: %.0f g\n", m.Today.FiberGrams)
			if len(m.Today.MealsLogged) > 0 {
				fmt.Printf("  • 已记录餐次: %s\n", strings.Join(m.Today.MealsLogged, ", "))
			}

			fmt.Printf("\n📈 周趋势（本周 %d 天 / 上周 %d 天）\n",
				m.Weekly.Current.DaysLogged, m.Weekly.Previous.DaysLogged)
			fmt.Printf("  • 日均热量: %.0f kcal（上周 %.0f），方向 %s\n",
				m.Weekly.Current.AvgCalories, m.Weekly.Previous.AvgCalories, m.Weekly.Direction)
			fmt.Printf("  • 热量贴合度: %.0f%%  蛋白质贴合度: %.0f%%\n",
				m.Weekly.CalorieAdherence, m.Weekly.ProteinAdherence)

			fmt.Printf("\n🔥 一致性\n")
			fmt.Printf("  • 当前连续记录: %d 天（最长 %d 天）\n",
				m.Consistency.CurrentStreak, m.Consistency.LongestStreak)
			fmt.Printf("  • 记录率: 7 天 %.0f%% / 30 天 %.0f%%\n",
				m.Consistency.LoggingRate7d, m.Consistency.LoggingRate30d)

			if len(m.Meals.Stats) > 0 {
				fmt.Printf("\n🥗 用餐分布（7 天，日均 %.1f 餐）\n", m.Meals.AvgMealsPerDay)
				for _, st := range m.Meals.Stats {
					fmt.Printf("  • %s: 约 %.1f 次/周, 均 %.0f kcal, 占比 %.0f%%\n",
						st.MealType, st.WeeklyFreq, st.AvgCalories, st.CalorieShare)
				}
			}

			if m.Weight != nil {
				fmt.Printf("\n⚖️ 体重趋势（%d 个趋势点）\n", m.Weight.Points)
				fmt.Printf("  • 当前趋势体重: %s（原始 %s）\n",
					formatKg(m.Weight.CurrentTrendKg, unit), formatKg(m.Weight.CurrentRawKg, unit))
				if m.Weight.Delta7dKg != nil {
					fmt.Printf("  • 7 天变化: %+.1f kg\n", *m.Weight.Delta7dKg)
				}
				if m.Weight.Delta30dKg != nil {
					fmt.Printf("  • 30 天变化: %+.1f kg\n", *m.Weight.Delta30dKg)
				}
				fmt.Printf("  • 方向: %s\n", m.Weight.Direction)
			}

			fmt.Printf("\n数据可用性: %s\n", m.Availability)
			fmt.Println(divider)
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "指定日期 (YYYY-MM-DD)，缺省今天")
	return cmd
}

func printProgress(name, unit string, p service.NutrientProgress) {
	fmt.Printf("  • %s: %.0f / %.0f %s (%d%%)\n", name, p.Consumed, p.Target, unit, p.PercentComplete)
}

// insightsCmd 洞察命令
func insightsCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "insights",
		Short: "查看行为洞察",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := resolveDate(date)
			if err != nil {
				return err
			}
			insights, err := core.Services.Metrics.GetInsights(context.Background(), d)
			if err != nil {
				return fmt.Errorf("推导洞察失败: %w", err)
			}
			if len(insights) == 0 {
				fmt.Println("📚 暂未发现明显模式，继续记录以积累数据")
				return nil
			}

			fmt.Printf("💡 %s 的行为洞察\n", d)
			fmt.Println(divider)
			for i, ins := range insights {
				fmt.Printf("\n[%d] %s（置信度 %.0f%%）\n", i+1, ins.Category, ins.Confidence*100)
				fmt.Printf("    %s\n", ins.Message)
			}
			fmt.Println("\n" + divider)
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "指定日期 (YYYY-MM-DD)，缺省今天")
	return cmd
}

// contextCmd 上下文预览命令
func contextCmd() *cobra.Command {
	var date string
	var rendered bool

	cmd := &cobra.Command{
		Use:       "context [daily|weekly]",
		Short:     "预览发送给 AI 的上下文/提示词",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"daily", "weekly"},
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := "daily"
			if len(args) > 0 {
				mode = args[0]
			}
			d, err := resolveDate(date)
			if err != nil {
				return err
			}
			ctx := context.Background()

			var content string
			switch {
			case mode == "weekly":
				content, err = core.Services.Coach.WeeklyPromptPreview(ctx, d)
			case rendered:
				content, err = core.Services.Coach.RenderedContext(ctx, d)
			default:
				content, err = core.Services.Coach.PromptPreview(ctx, d)
			}
			if err != nil {
				return fmt.Errorf("构建上下文失败: %w", err)
			}
			fmt.Println(content)
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "指定日期 (YYYY-MM-DD)，缺省今天")
	cmd.Flags().BoolVar(&rendered, "rendered", false, "仅输出渲染后的上下文段落（不含提示词外壳）")
	return cmd
}

// adviseCmd AI 建议命令
func adviseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "advise",
		Short: "生成 AI 教练建议",
	}

	var dailyDate string
	var dailyForce bool
	daily := &cobra.Command{
		Use:   "daily",
		Short: "生成/查看每日建议",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := resolveDate(dailyDate)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			advice, err := core.Services.Coach.GetDailyAdvice(ctx, d, dailyForce)
			if err != nil {
				return err
			}
			fmt.Printf("📅 %s 每日建议\n", advice.Date)
			fmt.Println(divider)
			fmt.Printf("\n%s\n", advice.Headline)
			for _, ob := range advice.Observations {
				fmt.Printf("  • %s\n", ob)
			}
			if advice.Tip != "" {
				fmt.Printf("\n💡 %s\n", advice.Tip)
			}
			fmt.Println("\n" + divider)
			return nil
		},
	}
	daily.Flags().StringVar(&dailyDate, "date", "", "指定日期 (YYYY-MM-DD)，缺省今天")
	daily.Flags().BoolVar(&dailyForce, "force", false, "跳过缓存强制重新生成")

	var weekEnd string
	var weekForce bool
	weekly := &cobra.Command{
		Use:   "weekly",
		Short: "生成/查看周报",
		RunE: func(cmd *cobra.Command, args []string) error {
			end := strings.TrimSpace(weekEnd)
			if end == "" {
				end = repository.AddDays(repository.Today(), -1)
			}
			if _, err := repository.ParseDay(end); err != nil {
				return fmt.Errorf("end 日期格式无效: %s", end)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
			defer cancel()

			report, err := core.Services.Coach.GetWeeklyReport(ctx, end, weekForce)
			if err != nil {
				return err
			}
			fmt.Printf("📅 周报 %s\n", service.FormatDateRange(report.StartDate, report.EndDate))
			fmt.Println(divider)
			fmt.Printf("\n%s\n", report.Narrative)
			if len(report.Wins) > 0 {
				fmt.Printf("\n🏆 本周亮点\n")
				for _, w := range report.Wins {
					fmt.Printf("  • %s\n", w)
				}
			}
			if report.Suggestion != "" {
				fmt.Printf("\n💡 下周建议\n  %s\n", report.Suggestion)
			}
			if report.Encouragement != "" {
				fmt.Printf("\n%s\n", report.Encouragement)
			}
			fmt.Println("\n" + divider)
			return nil
		},
	}
	weekly.Flags().StringVar(&weekEnd, "end", "", "周期结束日期 (YYYY-MM-DD)，缺省昨天")
	weekly.Flags().BoolVar(&weekForce, "force", false, "跳过缓存强制重新生成")

	var backfillDays int
	backfill := &cobra.Command{
		Use:   "backfill",
		Short: "补齐历史日期缺失的建议",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()

			fmt.Printf("🔄 正在补齐最近 %d 天的建议...\n", backfillDays)
			generated, err := core.Services.Coach.BackfillAdvice(ctx, backfillDays)
			if err != nil {
				return err
			}
			fmt.Printf("✅ 已生成 %d 条建议\n", generated)
			return nil
		},
	}
	backfill.Flags().IntVar(&backfillDays, "days", 7, "回看天数")

	cmd.AddCommand(daily, weekly, backfill)
	return cmd
}

// foodCmd 食物记录命令
func foodCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "food",
		Short: "记录与查看食物",
	}

	var (
		logDate, logTime, logMeal, logUnit string
		logQuantity                        float64
		logCalories, logProtein            float64
		logCarbs, logFat, logFiber         float64
	)
	logCmd := &cobra.Command{
		Use:   "log <名称>",
		Short: "记录一次进食",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if name == "" {
				return fmt.Errorf("名称不能为空")
			}
			if logCalories < 0 || logProtein < 0 || logCarbs < 0 || logFat < 0 || logFiber < 0 {
				return fmt.Errorf("营养数值不能为负")
			}

			d, err := resolveDate(logDate)
			if err != nil {
				return err
			}
			clock := strings.TrimSpace(logTime)
			if clock == "" {
				clock = time.Now().Format("15:04")
			}
			ts, err := time.ParseInLocation("2006-01-02 15:04", d+" "+clock, time.Local)
			if err != nil {
				return fmt.Errorf("时间格式无效（期望 HH:MM）: %s", clock)
			}

			mealType := strings.ToLower(strings.TrimSpace(logMeal))
			if mealType == "" {
				mealType = importer.InferMealType(ts.Hour())
			} else if !schema.ValidMealType(mealType) {
				return fmt.Errorf("餐次无效（breakfast/lunch/dinner/snack）: %s", mealType)
			}

			entry := schema.NewFoodEntry(name, mealType, ts)
			if logQuantity > 0 {
				entry.Quantity = logQuantity
			}
			entry.Unit = strings.TrimSpace(logUnit)
			entry.Calories = logCalories
			entry.Protein = logProtein
			entry.Carbs = logCarbs
			entry.Fat = logFat
			entry.Fiber = logFiber
			entry.Metadata = schema.JSONMap{"source": "cli"}

			if err := core.Repos.Food.Create(context.Background(), entry); err != nil {
				return fmt.Errorf("写入食物记录失败: %w", err)
			}
			fmt.Printf("✅ 已记录 %s（%s %s，%.0f kcal）\n", entry.Name, entry.Date, entry.MealType, entry.Calories)
			return nil
		},
	}
	logCmd.Flags().StringVar(&logDate, "date", "", "日期 (YYYY-MM-DD)，缺省今天")
	logCmd.Flags().StringVar(&logTime, "time", "", "时刻 (HH:MM)，缺省当前时刻")
	logCmd.Flags().StringVar(&logMeal, "meal", "", "餐次（缺省按时刻推断）")
	logCmd.Flags().Float64Var(&logQuantity, "quantity", 1, "份量数值")
	logCmd.Flags().StringVar(&logUnit, "unit", "", "份量单位")
	logCmd.Flags().Float64Var(&logCalories, "calories", 0, "热量 (kcal)")
	logCmd.Flags().Float64Var(&logProtein, "protein", 0, "蛋白质 (g)")
	logCmd.Flags().Float64Var(&logCarbs, "carbs", 0, "碳水 (g)")
	logCmd.Flags().Float64Var(&logFat, "fat", 0, "脂肪 (g)")
	logCmd.Flags().Float64Var(&logFiber, "fiber", 0, "纤维 (g)")

	var listDate string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "查看某日食物记录",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := resolveDate(listDate)
			if err != nil {
				return err
			}
			entries, err := core.Repos.Food.GetByDate(context.Background(), d)
			if err != nil {
				return fmt.Errorf("读取食物记录失败: %w", err)
			}
			if len(entries) == 0 {
				fmt.Printf("📚 %s 没有食物记录\n", d)
				return nil
			}
			fmt.Printf("🍽 %s 食物记录（%d 条）\n", d, len(entries))
			for _, e := range entries {
				clock := time.UnixMilli(e.Timestamp).Format("15:04")
				fmt.Printf("  [%d] %s %s %s: %.0f kcal（蛋白 %.0f / 碳水 %.0f / 脂肪 %.0f）\n",
					e.ID, clock, e.MealType, e.Name, e.Calories, e.Protein, e.Carbs, e.Fat)
			}
			return nil
		},
	}
	listCmd.Flags().StringVar(&listDate, "date", "", "日期 (YYYY-MM-DD)，缺省今天")

	importCmd := &cobra.Command{
		Use:   "import <文件.csv>",
		Short: "导入 CSV 文件（自动识别食物/体重）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ingest := importer.NewIngestService(
				core.Repos.Food,
				core.Repos.Weight,
				core.Services.WeightTrend,
				nil,
			)
			res, err := ingest.RunFile(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("✅ 导入完成: %s（类型 %s，成功 %d 行，跳过 %d 行）\n",
				res.File, res.Kind, res.Imported, res.Skipped)
			for _, e := range res.Errors {
				fmt.Printf("  ⚠️ %s\n", e)
			}
			return nil
		},
	}

	cmd.AddCommand(logCmd, listCmd, importCmd)
	return cmd
}

// weightCmd 体重记录命令
func weightCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weight",
		Short: "记录与查看体重",
	}

	var (
		logDate, logUnit, logNote string
		logValue                  float64
	)
	logCmd := &cobra.Command{
		Use:   "log",
		Short: "记录某日体重（同日覆盖）",
		RunE: func(cmd *cobra.Command, args []string) error {
			if logValue <= 0 {
				return fmt.Errorf("--weight 必须大于 0")
			}
			d, err := resolveDate(logDate)
			if err != nil {
				return err
			}
			ctx := context.Background()

			unit := strings.ToLower(strings.TrimSpace(logUnit))
			if unit == "" {
				unit = preferredUnit(ctx)
			}
			kg := logValue
			switch unit {
			case schema.UnitKg:
			case schema.UnitLbs, "lb":
				kg = schema.KgFromLbs(logValue)
			default:
				return fmt.Errorf("unit 只支持 kg 或 lbs: %s", unit)
			}

			entry, err := core.Services.WeightTrend.LogWeight(ctx, d, kg, strings.TrimSpace(logNote))
			if err != nil {
				return err
			}
			fmt.Printf("✅ 已记录 %s 体重 %s", entry.Date, formatKg(entry.WeightKg, unit))
			if entry.HasTrend() {
				fmt.Printf("，趋势 %s", formatKg(entry.TrendKg, unit))
			}
			fmt.Println()
			return nil
		},
	}
	logCmd.Flags().StringVar(&logDate, "date", "", "日期 (YYYY-MM-DD)，缺省今天")
	logCmd.Flags().Float64Var(&logValue, "weight", 0, "体重数值")
	logCmd.Flags().StringVar(&logUnit, "unit", "", "单位 kg/lbs（缺省按用户偏好）")
	logCmd.Flags().StringVar(&logNote, "note", "", "备注")

	var since string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "查看体重历史与趋势",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			var entries []schema.WeightEntry
			var err error
			if s := strings.TrimSpace(since); s != "" {
				if _, perr := repository.ParseDay(s); perr != nil {
					return fmt.Errorf("since 日期格式无效: %s", s)
				}
				entries, err = core.Repos.Weight.HistorySince(ctx, s)
			} else {
				entries, err = core.Services.WeightTrend.History(ctx)
			}
			if err != nil {
				return fmt.Errorf("读取体重历史失败: %w", err)
			}
			if len(entries) == 0 {
				fmt.Println("📚 还没有体重记录")
				return nil
			}
			unit := preferredUnit(ctx)
			fmt.Printf("⚖️ 体重历史（%d 条）\n", len(entries))
			for _, e := range entries {
				line := fmt.Sprintf("  %s  原始 %s", e.Date, formatKg(e.WeightKg, unit))
				if e.HasTrend() {
					line += fmt.Sprintf("  趋势 %s", formatKg(e.TrendKg, unit))
				}
				if e.Note != "" {
					line += "  # " + e.Note
				}
				fmt.Println(line)
			}
			return nil
		},
	}
	listCmd.Flags().StringVar(&since, "since", "", "起始日期 (YYYY-MM-DD)")

	recomputeCmd := &cobra.Command{
		Use:   "recompute",
		Short: "全量重算体重趋势",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := core.Services.WeightTrend.RecomputeAll(context.Background()); err != nil {
				return err
			}
			fmt.Println("✅ 体重趋势已重算")
			return nil
		},
	}

	cmd.AddCommand(logCmd, listCmd, recomputeCmd)
	return cmd
}

// goalCmd 目标命令
func goalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "goal",
		Short: "查看与设置营养目标",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "查看当前激活目标",
		RunE: func(cmd *cobra.Command, args []string) error {
			goal, err := core.Repos.Goal.Active(context.Background())
			if err != nil {
				return fmt.Errorf("读取目标失败: %w", err)
			}
			if goal == nil {
				fmt.Println("📚 未设置激活目标（将使用偏好或默认目标值）")
				return nil
			}
			fmt.Printf("🎯 当前目标: %s（自 %s）\n", goal.Type, goal.StartDate)
			if goal.TargetWeightKg > 0 {
				fmt.Printf("  • 目标体重: %.1f kg\n", goal.TargetWeightKg)
			}
			if goal.WeeklyRateKg > 0 {
				fmt.Printf("  • 每周变化: %.2f kg\n", goal.WeeklyRateKg)
			}
			if goal.TargetCalories > 0 {
				fmt.Printf("  • 热量: %.0f kcal  蛋白 %.0f g  碳水 %.0f g  脂肪 %.0f g\n",
					goal.TargetCalories, goal.TargetProtein, goal.TargetCarbs, goal.TargetFat)
			}
			return nil
		},
	}

	var (
		goalType                     string
		targetWeight, weeklyRate     float64
		tCal, tProtein, tCarbs, tFat float64
	)
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "设置新目标（自动停用旧目标）",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !schema.ValidGoalType(goalType) {
				return fmt.Errorf("--type 只支持 lose/maintain/gain")
			}
			if targetWeight < 0 || weeklyRate < 0 || tCal < 0 || tProtein < 0 || tCarbs < 0 || tFat < 0 {
				return fmt.Errorf("目标数值不能为负")
			}
			goal := &schema.Goal{
				Type:           goalType,
				TargetWeightKg: targetWeight,
				WeeklyRateKg:   weeklyRate,
				TargetCalories: tCal,
				TargetProtein:  tProtein,
				TargetCarbs:    tCarbs,
				TargetFat:      tFat,
				StartDate:      repository.Today(),
				Active:         true,
			}
			if err := core.Repos.Goal.Create(context.Background(), goal); err != nil {
				return fmt.Errorf("保存目标失败: %w", err)
			}
			fmt.Printf("✅ 目标已设置: %s\n", goal.Type)
			return nil
		},
	}
	setCmd.Flags().StringVar(&goalType, "type", "", "目标类型 lose/maintain/gain")
	setCmd.Flags().Float64Var(&targetWeight, "target-weight", 0, "目标体重 (kg)")
	setCmd.Flags().Float64Var(&weeklyRate, "weekly-rate", 0, "期望每周变化 (kg)")
	setCmd.Flags().Float64Var(&tCal, "calories", 0, "每日热量目标 (kcal)")
	setCmd.Flags().Float64Var(&tProtein, "protein", 0, "每日蛋白质目标 (g)")
	setCmd.Flags().Float64Var(&tCarbs, "carbs", 0, "每日碳水目标 (g)")
	setCmd.Flags().Float64Var(&tFat, "fat", 0, "每日脂肪目标 (g)")
	_ = setCmd.MarkFlagRequired("type")

	var suggestGoal string
	suggestCmd := &cobra.Command{
		Use:   "suggest",
		Short: "根据档案推算目标建议 (BMR/TDEE)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			profile, err := core.Repos.Profile.Get(ctx)
			if err != nil {
				return fmt.Errorf("读取档案失败: %w", err)
			}
			latest, err := core.Repos.Weight.Latest(ctx)
			if err != nil {
				return fmt.Errorf("读取体重失败: %w", err)
			}
			weightKg := 0.0
			if latest != nil {
				weightKg = latest.WeightKg
				if latest.HasTrend() {
					weightKg = latest.TrendKg
				}
			}

			gt := strings.TrimSpace(suggestGoal)
			if gt == "" {
				if active, err := core.Repos.Goal.Active(ctx); err == nil && active != nil {
					gt = active.Type
				} else {
					gt = schema.GoalMaintain
				}
			}
			if !schema.ValidGoalType(gt) {
				return fmt.Errorf("--goal 只支持 lose/maintain/gain")
			}

			s := service.SuggestTargets(profile, weightKg, gt)
			if s == nil {
				return fmt.Errorf("档案不完整（需要性别、年龄、身高与至少一条体重记录）")
			}
			fmt.Printf("🎯 目标建议（%s，体重 %.1f kg）\n", gt, weightKg)
			fmt.Printf("  • BMR: %.0f kcal  TDEE: %.1f kcal\n", s.BMR, s.TDEE)
			fmt.Printf("  • 建议热量: %.0f kcal/日\n", s.Calories)
			fmt.Printf("  • 建议宏量: 蛋白 %.0f g / 碳水 %.0f g / 脂肪 %.0f g\n", s.Protein, s.Carbs, s.Fat)
			return nil
		},
	}
	suggestCmd.Flags().StringVar(&suggestGoal, "goal", "", "目标类型（缺省取激活目标）")

	cmd.AddCommand(showCmd, setCmd, suggestCmd)
	return cmd
}

// profileCmd 档案命令：无修改参数时展示，有参数时更新
func profileCmd() *cobra.Command {
	var (
		sex, activity, style string
		age                  int
		height               float64
		proteinPriority      bool
	)

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "查看/更新用户档案",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			profile, err := core.Repos.Profile.Get(ctx)
			if err != nil {
				return fmt.Errorf("读取档案失败: %w", err)
			}
			if profile == nil {
				profile = &schema.Profile{ID: 1}
			}

			changed := false
			if cmd.Flags().Changed("sex") {
				s := strings.ToLower(strings.TrimSpace(sex))
				if s != "" && s != "male" && s != "female" {
					return fmt.Errorf("--sex 只支持 male/female")
				}
				profile.Sex = s
				changed = true
			}
			if cmd.Flags().Changed("age") {
				if age < 0 || age > 130 {
					return fmt.Errorf("--age 超出合理范围")
				}
				profile.AgeYears = age
				changed = true
			}
			if cmd.Flags().Changed("height") {
				if height < 0 || height > 280 {
					return fmt.Errorf("--height 超出合理范围")
				}
				profile.HeightCm = height
				changed = true
			}
			if cmd.Flags().Changed("activity") {
				a := strings.ToLower(strings.TrimSpace(activity))
				switch a {
				case "", schema.ActivitySedentary, schema.ActivityLight, schema.ActivityModerate,
					schema.ActivityActive, schema.ActivityVeryActive:
				default:
					return fmt.Errorf("--activity 取值无效: %s", a)
				}
				profile.ActivityLevel = a
				changed = true
			}
			if cmd.Flags().Changed("style") {
				st := strings.ToLower(strings.TrimSpace(style))
				switch st {
				case "", schema.StyleFlexible, schema.StyleBalanced, schema.StyleLowCarb, schema.StyleHighProtein:
				default:
					return fmt.Errorf("--style 取值无效: %s", st)
				}
				profile.EatingStyle = st
				changed = true
			}
			if cmd.Flags().Changed("protein-priority") {
				profile.ProteinPriority = proteinPriority
				changed = true
			}

			if changed {
				if err := core.Repos.Profile.Upsert(ctx, profile); err != nil {
					return fmt.Errorf("保存档案失败: %w", err)
				}
				fmt.Println("✅ 档案已更新")
			}

			fmt.Println("👤 用户档案")
			fmt.Printf("  • 性别: %s  年龄: %d  身高: %.0f cm\n", orDash(profile.Sex), profile.AgeYears, profile.HeightCm)
			fmt.Printf("  • 活动水平: %s  饮食风格: %s  蛋白质优先: %v\n",
				orDash(profile.ActivityLevel), orDash(profile.EatingStyle), profile.ProteinPriority)
			return nil
		},
	}

	cmd.Flags().StringVar(&sex, "sex", "", "性别 male/female")
	cmd.Flags().IntVar(&age, "age", 0, "年龄")
	cmd.Flags().Float64Var(&height, "height", 0, "身高 (cm)")
	cmd.Flags().StringVar(&activity, "activity", "", "活动水平 sedentary/light/moderate/active/very_active")
	cmd.Flags().StringVar(&style, "style", "", "饮食风格 flexible/balanced/low_carb/high_protein")
	cmd.Flags().BoolVar(&proteinPriority, "protein-priority", false, "蛋白质优先")
	return cmd
}

// settingsCmd 偏好命令：无修改参数时展示，有参数时更新
func settingsCmd() *cobra.Command {
	var (
		unit                         string
		tCal, tProtein, tCarbs, tFat float64
	)

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "查看/更新用户偏好",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			settings, err := core.Repos.Settings.Get(ctx)
			if err != nil {
				return fmt.Errorf("读取偏好失败: %w", err)
			}
			if settings == nil {
				settings = &schema.UserSettings{ID: 1, WeightUnit: schema.UnitLbs}
			}

			changed := false
			if cmd.Flags().Changed("unit") {
				u := strings.ToLower(strings.TrimSpace(unit))
				if u != schema.UnitKg && u != schema.UnitLbs {
					return fmt.Errorf("--unit 只支持 kg 或 lbs")
				}
				settings.WeightUnit = u
				changed = true
			}
			for _, f := range []struct {
				name string
				v    float64
				dst  *float64
			}{
				{"calories", tCal, &settings.TargetCalories},
				{"protein", tProtein, &settings.TargetProtein},
				{"carbs", tCarbs, &settings.TargetCarbs},
				{"fat", tFat, &settings.TargetFat},
			} {
				if !cmd.Flags().Changed(f.name) {
					continue
				}
				if f.v < 0 {
					return fmt.Errorf("--%s 不能为负", f.name)
				}
				*f.dst = f.v
				changed = true
			}

			if changed {
				if err := core.Repos.Settings.Upsert(ctx, settings); err != nil {
					return fmt.Errorf("保存偏好失败: %w", err)
				}
				fmt.Println("✅ 偏好已更新")
			}

			fmt.Println("⚙️ 用户偏好")
			fmt.Printf("  • 体重单位: %s\n", schema.NormalizeWeightUnit(settings.WeightUnit))
			fmt.Printf("  • 目标回退值: 热量 %.0f  蛋白 %.0f  碳水 %.0f  脂肪 %.0f（0 表示未设置）\n",
				settings.TargetCalories, settings.TargetProtein, settings.TargetCarbs, settings.TargetFat)
			return nil
		},
	}

	cmd.Flags().StringVar(&unit, "unit", "", "体重单位 kg/lbs")
	cmd.Flags().Float64Var(&tCal, "calories", 0, "每日热量目标 (kcal)")
	cmd.Flags().Float64Var(&tProtein, "protein", 0, "每日蛋白质目标 (g)")
	cmd.Flags().Float64Var(&tCarbs, "carbs", 0, "每日碳水目标 (g)")
	cmd.Flags().Float64Var(&tFat, "fat", 0, "每日脂肪目标 (g)")
	return cmd
}

// historyCmd 建议/周报历史
func historyCmd() *cobra.Command {
	var limit int
	var reports bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "查看历史建议或周报",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			if reports {
				list, err := core.Repos.Report.ListRecent(ctx, limit)
				if err != nil {
					return fmt.Errorf("读取周报历史失败: %w", err)
				}
				if len(list) == 0 {
					fmt.Println("📚 还没有周报")
					return nil
				}
				for _, r := range list {
					fmt.Printf("  %s  %s\n", service.FormatDateRange(r.StartDate, r.EndDate), r.Suggestion)
				}
				return nil
			}

			previews, err := core.Repos.Advice.ListAdvicePreviews(ctx, limit)
			if err != nil {
				return fmt.Errorf("读取建议历史失败: %w", err)
			}
			if len(previews) == 0 {
				fmt.Println("📚 还没有每日建议")
				return nil
			}
			for _, p := range previews {
				fmt.Printf("  %s  %s\n", p.Date, p.Preview)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 14, "返回条数")
	cmd.Flags().BoolVar(&reports, "reports", false, "查看周报而非每日建议")
	return cmd
}

// statsCmd 数据统计
func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "查看数据库统计",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			foodCount, err := core.Repos.Food.Count(ctx)
			if err != nil {
				return fmt.Errorf("统计食物记录失败: %w", err)
			}
			loggedDays, err := core.Repos.Food.CountLoggedDays(ctx)
			if err != nil {
				return fmt.Errorf("统计记录天数失败: %w", err)
			}
			weightCount, err := core.Repos.Weight.Count(ctx)
			if err != nil {
				return fmt.Errorf("统计体重记录失败: %w", err)
			}

			fmt.Println("📊 数据统计")
			fmt.Printf("  • 食物记录: %d 条（覆盖 %d 天）\n", foodCount, loggedDays)
			fmt.Printf("  • 体重记录: %d 条\n", weightCount)
			fmt.Printf("  • Schema 版本: %d\n", core.DB.SchemaVersion)
			if core.DB.SafeMode {
				fmt.Printf("  ⚠️ 数据库处于安全模式: %s\n", core.DB.MigrationError)
			}
			return nil
		},
	}
}

// versionCmd 版本信息
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "查看版本信息",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("NutriMirror %s (%s)\n", buildinfo.Version, buildinfo.Commit)
		},
	}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
