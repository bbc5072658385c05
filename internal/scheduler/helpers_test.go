package scheduler

import (
	"testing"
	"time"

	"github.com/tfshop-dev/cell-scheduler/backend/internal/domain"
)

// testConstants 构造一份测试用的排程常量，数值与 constants.yaml 的中档一致
func testConstants() *domain.CycleTimeConstants {
	c := &domain.CycleTimeConstants{
		TaskTimings: []domain.TaskTiming{
			{WireDiameter: "<=4", Equivalent: "1.0", Setup: 10, Layout: 20, PourPerMold: 2, Cure: 15, Unload: 5, SchedConstant: 8, SchedClass: domain.SchedClassA, PullAhead: 0.5},
			{WireDiameter: "<=4", Equivalent: ">=2", Setup: 12, Layout: 28, PourPerMold: 2.5, Cure: 22, Unload: 6, SchedConstant: 5, SchedClass: domain.SchedClassC, PullAhead: 1.5},
			{WireDiameter: ">4,<8", Equivalent: "1.0", Setup: 10, Layout: 25, PourPerMold: 2, Cure: 18, Unload: 5, SchedConstant: 8, SchedClass: domain.SchedClassB, PullAhead: 0.5},
			{WireDiameter: ">4,<8", Equivalent: "1.5", Setup: 10, Layout: 25, PourPerMold: 2, Cure: 30, Unload: 5, SchedConstant: 6, SchedClass: domain.SchedClassC, PullAhead: 1.0},
			{WireDiameter: ">4,<8", Equivalent: ">=2", Setup: 12, Layout: 32, PourPerMold: 3, Cure: 35, Unload: 6, SchedConstant: 4, SchedClass: domain.SchedClassD, PullAhead: 2.0},
			{WireDiameter: ">=8", Equivalent: "1.0", Setup: 12, Layout: 30, PourPerMold: 3, Cure: 30, Unload: 6, SchedConstant: 6, SchedClass: domain.SchedClassC, PullAhead: 1.0},
			{WireDiameter: ">=8", Equivalent: ">=2", Setup: 16, Layout: 40, PourPerMold: 4, Cure: 45, Unload: 8, SchedConstant: 3, SchedClass: domain.SchedClassE, PullAhead: 2.5},
		},
		Molds:    make(map[string]domain.MoldInfo),
		Fixtures: make(map[domain.Pattern]domain.FixtureLimit),
		Holidays: map[string]struct{}{"2026-07-03": {}},
		Shifts:   map[string]int{"standard": 440, "overtime": 500},

		SummerCureMultiplier: 1.5,
		PourCutoffMinutes:    40,
	}

	fiveCells := map[domain.CellColor]bool{
		domain.CellRed: true, domain.CellBlue: true, domain.CellGreen: true,
		domain.CellBlack: true, domain.CellPurple: true,
	}
	for _, color := range []domain.CellColor{domain.CellRed, domain.CellBlue, domain.CellGreen, domain.CellBlack, domain.CellPurple} {
		c.Molds[domain.ColorMoldName(color)] = domain.MoldInfo{
			Name: domain.ColorMoldName(color), Depth: domain.MoldDepthStd, Quantity: 12, CompliantCells: fiveCells,
		}
	}
	c.Molds["ORANGE_MOLD"] = domain.MoldInfo{Name: "ORANGE_MOLD", Depth: domain.MoldDepthStd, Quantity: 8,
		CompliantCells: map[domain.CellColor]bool{domain.CellOrange: true}}
	c.Molds[domain.MoldCommon] = domain.MoldInfo{Name: domain.MoldCommon, Depth: domain.MoldDepthStd, Quantity: 4,
		CompliantCells: map[domain.CellColor]bool{
			domain.CellRed: true, domain.CellBlue: true, domain.CellGreen: true,
			domain.CellBlack: true, domain.CellPurple: true, domain.CellOrange: true,
		}}
	c.Molds[domain.MoldDeep] = domain.MoldInfo{Name: domain.MoldDeep, Depth: domain.MoldDepthDeep, Quantity: 10, CompliantCells: fiveCells}
	c.Molds[domain.MoldDouble2CC] = domain.MoldInfo{Name: domain.MoldDouble2CC, Depth: domain.MoldDepthStd, Quantity: 1, CompliantCells: fiveCells}
	c.Molds[domain.Mold3InUrethane] = domain.MoldInfo{Name: domain.Mold3InUrethane, Depth: domain.MoldDepthStd, Quantity: 1, CompliantCells: fiveCells}
	c.Molds[domain.MoldDeepDouble2CC] = domain.MoldInfo{Name: domain.MoldDeepDouble2CC, Depth: domain.MoldDepthDeep, Quantity: 1, CompliantCells: fiveCells}

	c.Fixtures[domain.PatternD] = domain.FixtureLimit{Pattern: domain.PatternD, MaxConcurrent: 4}
	c.Fixtures[domain.PatternV] = domain.FixtureLimit{Pattern: domain.PatternV, MaxConcurrent: 2}
	c.Fixtures[domain.PatternS] = domain.FixtureLimit{Pattern: domain.PatternS, MaxConcurrent: 3}

	return c
}

// 2026-08-05 是周三
var testToday = time.Date(2026, 8, 5, 0, 0, 0, 0, time.UTC)

func testJob(id string, qty, molds int, wire, equivalent float64) *domain.Job {
	return &domain.Job{
		ReqBy:          testToday.AddDate(0, 0, 7),
		JobID:          id,
		Description:    "测试工单",
		Pattern:        domain.PatternD,
		OpeningSize:    0.25,
		WireDiameter:   wire,
		Molds:          molds,
		MoldType:       domain.MoldTypeStandard,
		ProdQty:        qty,
		Equivalent:     equivalent,
		OrangeEligible: false,
	}
}

func testJobCalc(t *testing.T, job *domain.Job, constants *domain.CycleTimeConstants) *jobCalc {
	t.Helper()
	calc, err := calculateFields(job, constants, testToday)
	if err != nil {
		t.Fatalf("calculateFields(%s): %v", job.JobID, err)
	}
	return &jobCalc{job: job, calc: calc}
}

func testInputs(cells ...domain.CellColor) *domain.RunInputs {
	return &domain.RunInputs{
		ScheduleDate: testToday,
		ActiveCells:  cells,
		ShiftType:    domain.ShiftStandard,
	}
}
