package scheduler

import (
	"testing"
	"time"

	"github.com/tfshop-dev/cell-scheduler/backend/internal/domain"
)

func TestCalculateFields(t *testing.T) {
	constants := testConstants()

	job := testJob("099457-1-1", 4, 3, 6, 1.0)
	calc, err := calculateFields(job, constants, testToday)
	if err != nil {
		t.Fatalf("calculateFields: %v", err)
	}

	if calc.schedQty != 4 {
		t.Errorf("schedQty = %d, want 4", calc.schedQty)
	}
	// 4 × 1.0 ÷ 8 = 0.5
	if calc.buildLoad != 0.5 {
		t.Errorf("buildLoad = %v, want 0.5", calc.buildLoad)
	}
	if calc.moldDepth != domain.MoldDepthStd {
		t.Errorf("moldDepth = %v, want STD", calc.moldDepth)
	}
	if calc.schedClass != domain.SchedClassB {
		t.Errorf("schedClass = %v, want B", calc.schedClass)
	}
	if calc.fixtureID != "D-0.25-6" {
		t.Errorf("fixtureID = %q, want D-0.25-6", calc.fixtureID)
	}
	// ceil(0.5 + 0.5) = 1 个工作日：8/12（周三）往前推一天是 8/11
	if got := calc.buildDate.Format("2006-01-02"); got != "2026-08-11" {
		t.Errorf("buildDate = %s, want 2026-08-11", got)
	}
}

func TestCalculateFieldsIdempotent(t *testing.T) {
	constants := testConstants()
	job := testJob("099457-1-1", 4, 3, 6, 1.0)

	first, err := calculateFields(job, constants, testToday)
	if err != nil {
		t.Fatalf("calculateFields: %v", err)
	}
	second, err := calculateFields(job, constants, testToday)
	if err != nil {
		t.Fatalf("calculateFields: %v", err)
	}
	if first != second {
		t.Errorf("两次计算结果不一致: %+v vs %+v", first, second)
	}
}

func TestCalculateFieldsUsesRemainingQty(t *testing.T) {
	constants := testConstants()
	job := testJob("099457-1-1", 8, 3, 6, 1.0)
	job.OnTableToday = "RED_1"
	job.QuantityRemaining = 3

	calc, err := calculateFields(job, constants, testToday)
	if err != nil {
		t.Fatalf("calculateFields: %v", err)
	}
	if calc.schedQty != 3 {
		t.Errorf("schedQty = %d, want 3", calc.schedQty)
	}
}

func TestPriorityOf(t *testing.T) {
	cases := []struct {
		name      string
		buildDate time.Time
		expedite  bool
		want      int
	}{
		{"过期", testToday.AddDate(0, 0, -1), false, priorityPastDue},
		{"今天", testToday, false, priorityToday},
		{"今天加急", testToday, true, priorityPastDue},
		{"未来加急", testToday.AddDate(0, 0, 3), true, priorityExpedite},
		{"未来", testToday.AddDate(0, 0, 3), false, priorityFuture},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := priorityOf(tc.buildDate, testToday, tc.expedite); got != tc.want {
				t.Errorf("priorityOf = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestSubtractBusinessDays(t *testing.T) {
	constants := testConstants() // 2026-07-03 是假期

	cases := []struct {
		name string
		from string
		days int
		want string
	}{
		{"不跨周末", "2026-08-05", 2, "2026-08-03"},
		{"跨周末", "2026-08-03", 1, "2026-07-31"},
		{"跨假期和周末", "2026-07-06", 1, "2026-07-02"}, // 7/3 假期、7/4-7/5 周末全部跳过
		{"零天", "2026-08-05", 0, "2026-08-05"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			from, _ := time.Parse("2006-01-02", tc.from)
			got := subtractBusinessDays(from, tc.days, constants).Format("2006-01-02")
			if got != tc.want {
				t.Errorf("subtractBusinessDays(%s, %d) = %s, want %s", tc.from, tc.days, got, tc.want)
			}
		})
	}
}
