package service

import (
	"testing"

	"github.com/yuqie6/NutriMirror/internal/schema"
)

func TestCalcBMR_ReferenceMale(t *testing.T) {
	// 30岁 / 85kg / 180cm 男性：10*85 + 6.25*180 - 5*30 + 5 = 1830
	bmr := CalcBMR("male", 30, 180, 85)
	if bmr != 1830 {
		t.Fatalf("bmr=%v, want 1830", bmr)
	}
}

func TestCalcBMR_Female(t *testing.T) {
	male := CalcBMR("male", 30, 165, 60)
	female := CalcBMR("female", 30, 165, 60)
	if male-female != 166 {
		t.Fatalf("male-female=%v, want 166", male-female)
	}
}

func TestCalcTDEE_ModerateActivity(t *testing.T) {
	tdee := CalcTDEE(1830, schema.ActivityModerate)
	if tdee != 2836.5 {
		t.Fatalf("tdee=%v, want 2836.5", tdee)
	}
	// 未知活动等级按 moderate 处理
	if got := CalcTDEE(1830, "couch"); got != 2836.5 {
		t.Fatalf("unknown level tdee=%v, want 2836.5", got)
	}
}

func TestSplitMacros_FlexibleExample(t *testing.T) {
	// 80kg / 2000kcal / flexible：蛋白 132g，剩余 1472kcal 五五开 -> 碳水 184g，脂肪 82g
	protein, carbs, fat := SplitMacros(2000, 80, schema.StyleFlexible, false)
	if protein != 132 || carbs != 184 || fat != 82 {
		t.Fatalf("split=(%v,%v,%v), want (132,184,82)", protein, carbs, fat)
	}
}

func TestSplitMacros_ProteinPriority(t *testing.T) {
	base, _, _ := SplitMacros(2000, 80, schema.StyleFlexible, false)
	bumped, _, _ := SplitMacros(2000, 80, schema.StyleFlexible, true)
	// +0.2 g/kg * 80kg = +16g
	if bumped-base != 16 {
		t.Fatalf("bump=%v, want 16", bumped-base)
	}
}

func TestResolveTargets_FallbackChain(t *testing.T) {
	// 全空 -> 兜底默认值
	targets := ResolveTargets(nil, nil)
	if targets.Calories != 2000 || targets.Protein != 150 || targets.Carbs != 200 || targets.Fat != 65 {
		t.Fatalf("defaults=%+v", targets)
	}
	if targets.Source != "default" {
		t.Fatalf("source=%s, want default", targets.Source)
	}

	// settings 覆盖默认值，goal 覆盖 settings，未设置字段（0）逐层回退
	settings := &schema.UserSettings{TargetCalories: 1800, TargetProtein: 140}
	goal := &schema.Goal{TargetCalories: 1700}
	targets = ResolveTargets(goal, settings)
	if targets.Calories != 1700 {
		t.Fatalf("calories=%v, want 1700 (goal)", targets.Calories)
	}
	if targets.Protein != 140 {
		t.Fatalf("protein=%v, want 140 (settings)", targets.Protein)
	}
	if targets.Carbs != 200 {
		t.Fatalf("carbs=%v, want 200 (default)", targets.Carbs)
	}
	if targets.Source != "goal" {
		t.Fatalf("source=%s, want goal", targets.Source)
	}
}

func TestSuggestTargets_GoalAdjustment(t *testing.T) {
	profile := &schema.Profile{
		Sex: "male", AgeYears: 30, HeightCm: 180,
		ActivityLevel: schema.ActivityModerate,
		EatingStyle:   schema.StyleFlexible,
	}

	maintain := SuggestTargets(profile, 85, schema.GoalMaintain)
	if maintain == nil {
		t.Fatalf("maintain suggestion is nil")
	}
	if maintain.BMR != 1830 || maintain.TDEE != 2836.5 {
		t.Fatalf("bmr=%v tdee=%v, want 1830/2836.5", maintain.BMR, maintain.TDEE)
	}
	if maintain.Calories != 2837 {
		t.Fatalf("maintain calories=%v, want 2837", maintain.Calories)
	}

	lose := SuggestTargets(profile, 85, schema.GoalLose)
	if lose.Calories != 2337 {
		t.Fatalf("lose calories=%v, want 2337", lose.Calories)
	}
	gain := SuggestTargets(profile, 85, schema.GoalGain)
	if gain.Calories != 3137 {
		t.Fatalf("gain calories=%v, want 3137", gain.Calories)
	}
}

func TestSuggestTargets_FloorAndMissingProfile(t *testing.T) {
	// 档案不全返回 nil
	if got := SuggestTargets(nil, 85, schema.GoalLose); got != nil {
		t.Fatalf("nil profile should return nil, got %+v", got)
	}
	incomplete := &schema.Profile{Sex: "female", AgeYears: 0, HeightCm: 160}
	if got := SuggestTargets(incomplete, 55, schema.GoalLose); got != nil {
		t.Fatalf("incomplete profile should return nil, got %+v", got)
	}

	// 极小身材 + 减脂不应低于热量下限
	tiny := &schema.Profile{Sex: "female", AgeYears: 70, HeightCm: 145, ActivityLevel: schema.ActivitySedentary}
	got := SuggestTargets(tiny, 40, schema.GoalLose)
	if got == nil || got.Calories < 1200 {
		t.Fatalf("calories=%+v, want >= 1200", got)
	}
}
