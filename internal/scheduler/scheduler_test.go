package scheduler

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/tfshop-dev/cell-scheduler/backend/internal/domain"
)

func runEngine(t *testing.T, inputs *domain.RunInputs, jobs []*domain.Job) *domain.ScheduleRun {
	t.Helper()
	engine, err := New(testConstants(), inputs, jobs, Parameters{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	run, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return run
}

// 同样的输入跑两遍，产出必须完全一致
func TestEngineDeterministic(t *testing.T) {
	inputs := testInputs(domain.CellRed, domain.CellBlue, domain.CellGreen)
	jobs := []*domain.Job{
		testJob("099457-1-1", 3, 3, 6, 1.0),
		testJob("099458-1-1", 2, 2, 2, 1.0),
		testJob("099459-1-1", 4, 3, 6, 1.5),
		testJob("099460-1-1", 2, 4, 9, 1.0),
	}

	first := runEngine(t, inputs, jobs)
	second := runEngine(t, inputs, jobs)

	a, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b, err := json.Marshal(second)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(a) != string(b) {
		t.Error("两次运行的排程不一致")
	}
}

// 所有 方法×变体 的汇总必须完整返回
func TestEngineReturnsAllSummaries(t *testing.T) {
	inputs := testInputs(domain.CellRed)
	jobs := []*domain.Job{testJob("099457-1-1", 2, 3, 6, 1.0)}

	run := runEngine(t, inputs, jobs)

	if len(run.Summaries) != 12 {
		t.Fatalf("汇总数 = %d, want 12 (4 方法 × 3 变体)", len(run.Summaries))
	}
	if run.RecommendedMethod == "" || run.RecommendedVariant == "" {
		t.Error("必须给出推荐方案")
	}
}

// 变体集合可以通过参数收窄
func TestEngineVariantSelection(t *testing.T) {
	engine, err := New(testConstants(), testInputs(domain.CellRed),
		[]*domain.Job{testJob("099457-1-1", 2, 3, 6, 1.0)},
		Parameters{Variants: []string{domain.VariantJobFirst, domain.VariantTableFirst}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	run, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(run.Summaries) != 8 {
		t.Fatalf("汇总数 = %d, want 8 (4 方法 × 2 变体)", len(run.Summaries))
	}
}

// 同一个夹具受样式并发上限约束：V 样式最多同时占两张台
func TestEngineFixtureConcurrency(t *testing.T) {
	inputs := testInputs(domain.CellRed, domain.CellBlue, domain.CellGreen)

	var jobs []*domain.Job
	for i := 0; i < 5; i++ {
		job := testJob("09945"+string(rune('0'+i))+"-1-1", 1, 2, 2, 1.0)
		job.Pattern = domain.PatternV
		job.OpeningSize = 0.25
		jobs = append(jobs, job)
	}

	run := runEngine(t, inputs, jobs)

	// 推荐排程里这批工单占用的台数不能超过 V 的并发上限
	tables := make(map[string]bool)
	for _, cell := range run.Cells {
		for _, p := range append(cell.Table1.Panels, cell.Table2.Panels...) {
			tables[p.TableID] = true
		}
	}
	if len(tables) > 2 {
		t.Errorf("同一夹具同时占了 %d 张台, 超过 V 样式上限 2", len(tables))
	}
}

// 线径恰好 5 的工单不需要夹具，不受样式并发上限约束
func TestEngineThickWireNeedsNoFixture(t *testing.T) {
	inputs := testInputs(domain.CellRed, domain.CellBlue, domain.CellGreen)

	var jobs []*domain.Job
	for i := 0; i < 5; i++ {
		job := testJob("09946"+string(rune('0'+i))+"-1-1", 1, 3, 5, 1.0)
		job.Pattern = domain.PatternV
		jobs = append(jobs, job)
	}

	run := runEngine(t, inputs, jobs)

	scheduled := make(map[string]bool)
	for _, cell := range run.Cells {
		for _, p := range append(cell.Table1.Panels, cell.Table2.Panels...) {
			scheduled[p.JobID] = true
		}
	}
	if len(scheduled) != 5 {
		t.Errorf("免夹具工单应当全部排入, got %d/5", len(scheduled))
	}
}

// 模具耗尽：本色不足时公共模具补足，仍不足的工单落排并带原因码
func TestEngineMoldExhaustion(t *testing.T) {
	inputs := testInputs(domain.CellRed)

	// 每个工单 10 模：第一个吃掉 10 个 RED_MOLD，
	// 后面的只剩 2 本色 + 4 公共 = 6，不够
	jobs := []*domain.Job{
		testJob("099457-1-1", 7, 10, 6, 1.0),
		testJob("099458-1-1", 7, 10, 6, 1.0),
		testJob("099459-1-1", 7, 10, 6, 1.0),
	}

	run := runEngine(t, inputs, jobs)

	scheduled := make(map[string]bool)
	for _, cell := range run.Cells {
		for _, p := range append(cell.Table1.Panels, cell.Table2.Panels...) {
			scheduled[p.JobID] = true
		}
	}
	if len(scheduled) == 0 {
		t.Fatal("至少应当排入一个工单")
	}

	foundNoMold := false
	for _, u := range run.Unscheduled {
		if u.Reason == domain.ReasonNoMold {
			foundNoMold = true
		}
	}
	if len(scheduled) == 3 && !foundNoMold {
		t.Error("模具不足时应当有工单带 no-mold 原因落排")
	}
	if len(scheduled) < 3 && !foundNoMold {
		t.Error("落排工单应当带 no-mold 原因码")
	}
}

// 上台工单落在停用单元上：转移到启用单元继续生产
func TestEngineRehomesJobFromInactiveCell(t *testing.T) {
	inputs := testInputs(domain.CellRed, domain.CellGreen)

	job := testJob("099457-1-1", 6, 3, 6, 1.0)
	job.OnTableToday = "BLUE_1" // BLUE 停用
	job.QuantityRemaining = 2

	run := runEngine(t, inputs, []*domain.Job{job})

	scheduled := false
	for _, cell := range run.Cells {
		for _, p := range append(cell.Table1.Panels, cell.Table2.Panels...) {
			if p.JobID == job.JobID {
				scheduled = true
			}
		}
	}
	if !scheduled {
		t.Error("停用单元上的工单应当被转移到启用单元")
	}
}

// 上台工单预占超容量：接受，但带欠账告警
func TestEngineOnTableDeficitWarning(t *testing.T) {
	// 五个单元全部启用：没有可借的停用色模
	inputs := testInputs(domain.CellRed, domain.CellBlue, domain.CellGreen, domain.CellBlack, domain.CellPurple)

	// 18 模 > 12 个 RED_MOLD + 4 个公共模具，预占必然欠账
	job := testJob("099457-1-1", 20, 18, 6, 1.0)
	job.OnTableToday = "RED_1"
	job.QuantityRemaining = 2

	run := runEngine(t, inputs, []*domain.Job{job})

	// 工单照常排入
	if len(run.Cells[domain.CellRed].Table1.Panels) == 0 {
		t.Error("上台工单应当照常排入")
	}
	deficitWarned := false
	for _, w := range run.Warnings {
		if strings.Contains(w, "超出容量") {
			deficitWarned = true
		}
	}
	if !deficitWarned {
		t.Error("预占欠账应当带出告警")
	}
}

// ORANGE 资质限制：不具备资质的工单不会排到 ORANGE
func TestEngineOrangeEligibility(t *testing.T) {
	inputs := testInputs(domain.CellOrange)
	inputs.OrangeEnabled = true

	job := testJob("099457-1-1", 2, 3, 6, 1.0) // OrangeEligible = false

	engine, err := New(testConstants(), inputs, []*domain.Job{job}, Parameters{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	run, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if cell, exists := run.Cells[domain.CellOrange]; exists {
		if len(cell.Table1.Panels)+len(cell.Table2.Panels) > 0 {
			t.Error("不具备 ORANGE 资质的工单不应排到 ORANGE")
		}
	}
}
