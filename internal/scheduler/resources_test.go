package scheduler

import (
	"testing"

	"github.com/tfshop-dev/cell-scheduler/backend/internal/domain"
)

func TestMoldRequirementFor(t *testing.T) {
	cases := []struct {
		name           string
		depth          domain.MoldDepth
		moldType       domain.MoldType
		molds          int
		wantPrimary    string
		wantCount      int
		wantSpecialty  string
		wantSpecialtyN int
	}{
		{"深模标准", domain.MoldDepthDeep, domain.MoldTypeStandard, 4, domain.MoldDeep, 4, "", 0},
		{"深模DOUBLE2CC", domain.MoldDepthDeep, domain.MoldTypeDouble2CC, 4, domain.MoldDeep, 3, domain.MoldDeepDouble2CC, 1},
		{"深模3INURETHANE", domain.MoldDepthDeep, domain.MoldType3InUrethane, 4, domain.MoldDeep, 3, domain.MoldDeepDouble2CC, 1},
		{"标准色模", domain.MoldDepthStd, domain.MoldTypeStandard, 4, "RED_MOLD", 4, "", 0},
		{"色模3INURETHANE", domain.MoldDepthStd, domain.MoldType3InUrethane, 4, "RED_MOLD", 3, domain.Mold3InUrethane, 1},
		{"色模DOUBLE2CC", domain.MoldDepthStd, domain.MoldTypeDouble2CC, 4, "RED_MOLD", 2, domain.MoldDouble2CC, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			job := testJob("099457-1-1", 1, tc.molds, 6, 1.0)
			job.MoldType = tc.moldType
			req := moldRequirementFor(job, tc.depth, domain.CellRed)

			if req.primaryMold != tc.wantPrimary || req.primaryCount != tc.wantCount {
				t.Errorf("primary = %s×%d, want %s×%d", req.primaryMold, req.primaryCount, tc.wantPrimary, tc.wantCount)
			}
			if req.specialtyMold != tc.wantSpecialty || req.specialtyCount != tc.wantSpecialtyN {
				t.Errorf("specialty = %s×%d, want %s×%d", req.specialtyMold, req.specialtyCount, tc.wantSpecialty, tc.wantSpecialtyN)
			}
		})
	}
}

func TestAllocateMoldsSubstitution(t *testing.T) {
	constants := testConstants()
	// 只有 RED 启用：BLUE 等单元的色模可以被借用
	pool := newResourcePool(constants, testInputs(domain.CellRed))

	// 先吃掉 10 个 RED_MOLD，只剩 2 个
	pool.available["RED_MOLD"] = 2

	job := testJob("099457-1-1", 1, 10, 6, 1.0)
	jc := testJobCalc(t, job, constants)

	assignment, reason := pool.allocateMolds(jc, domain.CellRed)
	if assignment == nil {
		t.Fatalf("allocateMolds 失败: %s", reason)
	}

	// 2 本色 + 4 公共 + 4 借自停用单元
	if assignment["RED_MOLD"] != 2 {
		t.Errorf("RED_MOLD = %d, want 2", assignment["RED_MOLD"])
	}
	if assignment[domain.MoldCommon] != 4 {
		t.Errorf("COMMON_MOLD = %d, want 4", assignment[domain.MoldCommon])
	}
	borrowed := 0
	for name, count := range assignment {
		if name != "RED_MOLD" && name != domain.MoldCommon {
			borrowed += count
		}
	}
	if borrowed != 4 {
		t.Errorf("借用色模 = %d, want 4", borrowed)
	}
}

func TestAllocateMoldsNoBorrowWhenAllActive(t *testing.T) {
	constants := testConstants()
	// 五个单元全部启用：借用不会发生
	pool := newResourcePool(constants, testInputs(
		domain.CellRed, domain.CellBlue, domain.CellGreen, domain.CellBlack, domain.CellPurple))

	pool.available["RED_MOLD"] = 2

	job := testJob("099457-1-1", 1, 10, 6, 1.0)
	jc := testJobCalc(t, job, constants)

	// 2 本色 + 4 公共 = 6 < 10，且无处可借
	assignment, reason := pool.allocateMolds(jc, domain.CellRed)
	if assignment != nil {
		t.Fatalf("期望分配失败，却得到 %v", assignment)
	}
	if reason != domain.ReasonNoMold {
		t.Errorf("reason = %s, want %s", reason, domain.ReasonNoMold)
	}
}

func TestReserveMoldsDeficitBlocks(t *testing.T) {
	constants := testConstants()
	pool := newResourcePool(constants, testInputs(domain.CellRed))

	// 上台工单预占把库存压成负数
	deficits := pool.forceReserveMolds(map[string]int{"RED_MOLD": 14})
	if len(deficits) != 1 || deficits[0] != "RED_MOLD" {
		t.Fatalf("deficits = %v, want [RED_MOLD]", deficits)
	}

	// 欠账未清之前任何占用都失败
	if pool.reserveMolds(map[string]int{"RED_MOLD": 1}) {
		t.Error("欠账状态下的占用应当失败")
	}

	// 释放之后恢复
	pool.releaseMolds(map[string]int{"RED_MOLD": 14})
	if !pool.reserveMolds(map[string]int{"RED_MOLD": 1}) {
		t.Error("释放后的占用应当成功")
	}
}

func TestFixtureConcurrencyLimit(t *testing.T) {
	constants := testConstants()
	pool := newResourcePool(constants, testInputs(domain.CellRed, domain.CellBlue))

	fixtureID := "V-0.25-2"
	h1 := holderKey{cell: domain.CellRed, table: 1, jobID: "099457-1-1"}
	h2 := holderKey{cell: domain.CellBlue, table: 1, jobID: "099457-2-1"}
	h3 := holderKey{cell: domain.CellBlue, table: 2, jobID: "099457-3-1"}

	if !pool.tryReserveFixture(fixtureID, domain.PatternV, h1) {
		t.Fatal("第一个占用应当成功")
	}
	if !pool.tryReserveFixture(fixtureID, domain.PatternV, h2) {
		t.Fatal("第二个占用应当成功")
	}
	// V 样式并发上限为 2
	if pool.tryReserveFixture(fixtureID, domain.PatternV, h3) {
		t.Fatal("第三个占用应当失败")
	}

	pool.releaseFixture(fixtureID, h1)
	if !pool.tryReserveFixture(fixtureID, domain.PatternV, h3) {
		t.Fatal("释放后再占用应当成功")
	}
}

func TestPoolCloneIsolation(t *testing.T) {
	constants := testConstants()
	base := newResourcePool(constants, testInputs(domain.CellRed))

	snapshot := base.clone()
	if !snapshot.reserveMolds(map[string]int{"RED_MOLD": 5}) {
		t.Fatal("快照上的占用应当成功")
	}

	if base.available["RED_MOLD"] != 12 {
		t.Errorf("快照的变更泄漏到了原池: %d", base.available["RED_MOLD"])
	}
}
