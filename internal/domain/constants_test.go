package domain

import (
	"testing"
	"time"
)

func testConstants() *CycleTimeConstants {
	return &CycleTimeConstants{
		TaskTimings: []TaskTiming{
			{WireDiameter: "<=4", Equivalent: "1.0", Setup: 10, Layout: 20, Cure: 15, Unload: 5, SchedConstant: 8, SchedClass: SchedClassA},
			{WireDiameter: "<=4", Equivalent: "1.25", Setup: 10, Layout: 22, Cure: 16, Unload: 5, SchedConstant: 8, SchedClass: SchedClassA},
			{WireDiameter: "<=4", Equivalent: ">=2", Setup: 12, Layout: 28, Cure: 22, Unload: 6, SchedConstant: 5, SchedClass: SchedClassC},
			{WireDiameter: ">4,<8", Equivalent: "1.0", Setup: 10, Layout: 25, Cure: 18, Unload: 5, SchedConstant: 8, SchedClass: SchedClassB},
			{WireDiameter: ">=8", Equivalent: "1.0", Setup: 12, Layout: 30, Cure: 30, Unload: 6, SchedConstant: 6, SchedClass: SchedClassC},
		},
		Holidays: map[string]struct{}{"2026-07-03": {}},
		Shifts:   map[string]int{"standard": 440, "overtime": 500},
	}
}

func TestWireBandOf(t *testing.T) {
	cases := []struct {
		wire float64
		want string
	}{
		{1.4, WireBandThin},
		{4, WireBandThin}, // 恰好 4 属于细档
		{5, WireBandMid},
		{7.9, WireBandMid},
		{8, WireBandThick}, // 恰好 8 属于粗档
	}
	for _, tc := range cases {
		if got := WireBandOf(tc.wire); got != tc.want {
			t.Errorf("WireBandOf(%v) = %q, want %q", tc.wire, got, tc.want)
		}
	}
}

func TestMoldDepthOf(t *testing.T) {
	if MoldDepthOf(7.9) != MoldDepthStd {
		t.Error("线径 7.9 应为 STD")
	}
	// 恰好 8 即深模
	if MoldDepthOf(8) != MoldDepthDeep {
		t.Error("线径 8 应为 DEEP")
	}
}

func TestGetTaskTimingRoundsUp(t *testing.T) {
	c := testConstants()

	cases := []struct {
		name       string
		wire       float64
		equivalent float64
		wantEq     string
	}{
		{"恰好落档不上调", 2, 1.0, "1.0"},
		{"档间向上取整", 2, 1.1, "1.25"},
		{"档位边界不上调", 2, 1.25, "1.25"},
		{"超过最高档匹配>=2", 2, 3.0, ">=2"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			timing, err := c.GetTaskTiming(tc.wire, tc.equivalent)
			if err != nil {
				t.Fatalf("GetTaskTiming: %v", err)
			}
			if timing.Equivalent != tc.wantEq {
				t.Errorf("命中档位 %q, want %q", timing.Equivalent, tc.wantEq)
			}
		})
	}
}

func TestGetTaskTimingFallsBackToTopTier(t *testing.T) {
	c := testConstants()
	// <=4 档没有 1.5 行，回落到 ">=2"
	timing, err := c.GetTaskTiming(2, 1.5)
	if err != nil {
		t.Fatalf("GetTaskTiming: %v", err)
	}
	if timing.Equivalent != ">=2" {
		t.Errorf("命中档位 %q, want >=2", timing.Equivalent)
	}
}

func TestGetTaskTimingMiss(t *testing.T) {
	c := &CycleTimeConstants{}
	if _, err := c.GetTaskTiming(2, 1.0); err == nil {
		t.Error("空工时表应当返回查询错误")
	}
}

func TestIsBusinessDay(t *testing.T) {
	c := testConstants()

	cases := []struct {
		date string
		want bool
	}{
		{"2026-08-05", true},  // 周三
		{"2026-08-08", false}, // 周六
		{"2026-08-09", false}, // 周日
		{"2026-07-03", false}, // 假期
	}
	for _, tc := range cases {
		d, _ := time.Parse("2006-01-02", tc.date)
		if got := c.IsBusinessDay(d); got != tc.want {
			t.Errorf("IsBusinessDay(%s) = %v, want %v", tc.date, got, tc.want)
		}
	}
}

func TestParseConstants(t *testing.T) {
	raw := []byte(`
shifts:
  standard: 440
  overtime: 500
summer_cure_multiplier: 1.5
pour_cutoff_minutes: 40
task_timings:
  - { wire_diameter: "<=4", equivalent: 1.0, setup: 10, layout: 20, pour_per_mold: 2, cure: 15, unload: 5, sched_constant: 8, sched_class: A, pull_ahead: 0.5 }
molds:
  - name: RED_MOLD
    depth: STD
    wire_diameter: "<8"
    quantity: 12
    cells: { RED: true, BLUE: true, ORANGE: false }
fixtures:
  - { pattern: V, description: "V 样式夹具", quantity: 2 }
holidays:
  - { label: "元旦", date: "2026-01-01" }
`)

	c, err := ParseConstants(raw)
	if err != nil {
		t.Fatalf("ParseConstants: %v", err)
	}

	if len(c.TaskTimings) != 1 || c.TaskTimings[0].Equivalent != "1.0" {
		t.Errorf("task_timings 解析异常: %+v", c.TaskTimings)
	}
	mold, exists := c.Molds["RED_MOLD"]
	if !exists || mold.Quantity != 12 {
		t.Fatalf("RED_MOLD 解析异常: %+v", mold)
	}
	if !mold.CompliantCells[CellRed] || mold.CompliantCells[CellOrange] {
		t.Errorf("合规矩阵解析异常: %+v", mold.CompliantCells)
	}
	if limit, _ := c.GetFixtureLimit(PatternV); limit != 2 {
		t.Errorf("V 样式上限 = %d, want 2", limit)
	}
	if !c.IsHoliday(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("元旦应当是假期")
	}
	if c.ShiftMinutes("overtime") != 500 || c.ShiftMinutes("standard") != 440 {
		t.Error("班次分钟数解析异常")
	}
}
