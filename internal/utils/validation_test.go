package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/tfshop-dev/cell-scheduler/backend/internal/domain"
)

func testConstants() *domain.CycleTimeConstants {
	c := &domain.CycleTimeConstants{
		TaskTimings: []domain.TaskTiming{
			{WireDiameter: ">4,<8", Equivalent: "1.0", Setup: 10, Layout: 25, PourPerMold: 2, Cure: 18, Unload: 5, SchedConstant: 8, SchedClass: domain.SchedClassB, PullAhead: 0.5},
		},
		Molds: map[string]domain.MoldInfo{
			"RED_MOLD":              {Name: "RED_MOLD", Depth: domain.MoldDepthStd, Quantity: 12},
			domain.MoldDouble2CC:    {Name: domain.MoldDouble2CC, Depth: domain.MoldDepthStd, Quantity: 1},
			domain.Mold3InUrethane:  {Name: domain.Mold3InUrethane, Depth: domain.MoldDepthStd, Quantity: 1},
			domain.MoldDeepDouble2CC: {Name: domain.MoldDeepDouble2CC, Depth: domain.MoldDepthDeep, Quantity: 1},
		},
		Fixtures: map[domain.Pattern]domain.FixtureLimit{
			domain.PatternD: {Pattern: domain.PatternD, MaxConcurrent: 4},
			domain.PatternV: {Pattern: domain.PatternV, MaxConcurrent: 2},
			domain.PatternS: {Pattern: domain.PatternS, MaxConcurrent: 3},
		},
		Holidays: map[string]struct{}{"2026-07-03": {}},
		Shifts:   map[string]int{"standard": 440},
	}
	return c
}

// 2026-08-05 是周三
var testDate = time.Date(2026, 8, 5, 0, 0, 0, 0, time.UTC)

func validJob() *domain.Job {
	return &domain.Job{
		ReqBy:        testDate.AddDate(0, 0, 7),
		JobID:        "099457-1-1",
		Pattern:      domain.PatternD,
		OpeningSize:  0.25,
		WireDiameter: 6,
		Molds:        3,
		MoldType:     domain.MoldTypeStandard,
		ProdQty:      4,
		Equivalent:   1.0,
		Row:          1,
	}
}

func testInputs() *domain.RunInputs {
	return &domain.RunInputs{
		ScheduleDate: testDate,
		ActiveCells:  []domain.CellColor{domain.CellRed},
		ShiftType:    domain.ShiftStandard,
	}
}

func TestValidateJob(t *testing.T) {
	constants := testConstants()

	cases := []struct {
		name    string
		mutate  func(*domain.Job)
		wantErr string
	}{
		{"合法工单", func(j *domain.Job) {}, ""},
		{"工单号格式错误", func(j *domain.Job) { j.JobID = "99457-1" }, "NNNNNN-NN-N"},
		{"DOUBLE2CC模数不足", func(j *domain.Job) {
			j.MoldType = domain.MoldTypeDouble2CC
			j.Molds = 1
		}, "至少需要 2 个模具"},
		{"上台缺剩余数量", func(j *domain.Job) { j.OnTableToday = "RED_1" }, "剩余数量"},
		{"剩余数量超过生产数量", func(j *domain.Job) {
			j.OnTableToday = "RED_1"
			j.QuantityRemaining = 9
		}, "超过生产数量"},
		{"无效工作台", func(j *domain.Job) {
			j.OnTableToday = "PINK_1"
			j.QuantityRemaining = 1
		}, "有效的工作台"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			job := validJob()
			tc.mutate(job)
			err := ValidateJob(job, constants)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("期望通过校验, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want 包含 %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidateProductionLoadDuplicateTable(t *testing.T) {
	constants := testConstants()

	jobA := validJob()
	jobA.OnTableToday = "RED_1"
	jobA.QuantityRemaining = 2
	jobB := validJob()
	jobB.JobID = "099458-1-1"
	jobB.OnTableToday = "RED_1"
	jobB.QuantityRemaining = 1
	jobB.Row = 2

	_, err := ValidateProductionLoad([]*domain.Job{jobA, jobB}, constants, testInputs())
	if err == nil || !strings.Contains(err.Error(), "已被工单") {
		t.Fatalf("重复占台应当报错, got %v", err)
	}
}

func TestValidateProductionLoadScheduleDate(t *testing.T) {
	constants := testConstants()

	weekend := testInputs()
	weekend.ScheduleDate = time.Date(2026, 8, 8, 0, 0, 0, 0, time.UTC) // 周六
	if _, err := ValidateProductionLoad(nil, constants, weekend); err == nil {
		t.Error("周末排程应当报错")
	}

	holiday := testInputs()
	holiday.ScheduleDate = time.Date(2026, 7, 3, 0, 0, 0, 0, time.UTC)
	if _, err := ValidateProductionLoad(nil, constants, holiday); err == nil {
		t.Error("假期排程应当报错")
	}

	noCells := testInputs()
	noCells.ActiveCells = nil
	if _, err := ValidateProductionLoad(nil, constants, noCells); err == nil {
		t.Error("没有启用单元应当报错")
	}
}

func TestValidateProductionLoadWarnings(t *testing.T) {
	constants := testConstants()

	// 停用单元上的工单：告警而不是报错
	job := validJob()
	job.OnTableToday = "BLUE_1"
	job.QuantityRemaining = 2

	warnings, err := ValidateProductionLoad([]*domain.Job{job}, constants, testInputs())
	if err != nil {
		t.Fatalf("停用单元上的工单不应报错: %v", err)
	}
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "停用") {
			found = true
		}
	}
	if !found {
		t.Errorf("应当产生转移告警, got %v", warnings)
	}
}

func TestValidateProductionLoadOrangeWarning(t *testing.T) {
	constants := testConstants()

	job := validJob()
	job.OnTableToday = "ORANGE_1"
	job.QuantityRemaining = 1
	job.OrangeEligible = false

	inputs := testInputs()
	inputs.ActiveCells = []domain.CellColor{domain.CellRed, domain.CellOrange}

	warnings, err := ValidateProductionLoad([]*domain.Job{job}, constants, inputs)
	if err != nil {
		t.Fatalf("ORANGE 资质问题应当只是告警: %v", err)
	}
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "ORANGE") {
			found = true
		}
	}
	if !found {
		t.Errorf("应当产生 ORANGE 资质告警, got %v", warnings)
	}
}
