package scheduler

import (
	"testing"

	"github.com/tfshop-dev/cell-scheduler/backend/internal/domain"
)

func TestPickRecommendation(t *testing.T) {
	summaries := []domain.VariantSummary{
		{Method: domain.MethodPriorityFirst, Variant: domain.VariantJobFirst, MissedDates: 2, TotalPanels: 20},
		{Method: domain.MethodPriorityFirst, Variant: domain.VariantTableFirst, MissedDates: 1, TotalPanels: 18},
		{Method: domain.MethodMaximumOutput, Variant: domain.VariantJobFirst, MissedDates: 1, TotalPanels: 25},
		{Method: domain.MethodMaximumOutput, Variant: domain.VariantTableFirst, MissedDates: 3, TotalPanels: 30},
	}

	perMethod, best := pickRecommendation(summaries)

	// 方法内部：落排少者赢
	if perMethod[domain.MethodPriorityFirst] != 1 {
		t.Errorf("priority-first 的最优变体下标 = %d, want 1", perMethod[domain.MethodPriorityFirst])
	}
	// 跨方法：落排同为 1，总面板 25 > 18
	if best != 2 {
		t.Errorf("总推荐下标 = %d, want 2", best)
	}
}

func TestPickRecommendationTieBreaksOnPanels(t *testing.T) {
	summaries := []domain.VariantSummary{
		{Method: domain.MethodPriorityFirst, Variant: domain.VariantJobFirst, MissedDates: 0, TotalPanels: 10},
		{Method: domain.MethodPriorityFirst, Variant: domain.VariantTableFirst, MissedDates: 0, TotalPanels: 14},
	}

	perMethod, best := pickRecommendation(summaries)
	if perMethod[domain.MethodPriorityFirst] != 1 || best != 1 {
		t.Errorf("平手时应当选面板更多的变体, got perMethod=%v best=%d", perMethod, best)
	}
}

func TestBuildSummaryCountsPanelsAndMisses(t *testing.T) {
	constants := testConstants()
	jcA := testJobCalc(t, testJob("099457-1-1", 2, 3, 6, 1.0), constants) // 类别 B
	jcB := testJobCalc(t, testJob("099458-1-1", 2, 3, 6, 1.5), constants) // 类别 C

	cr, err := simulateCell(domain.CellRed, 440, slots(jcA, 2), slots(jcB, 2), constants, false)
	if err != nil {
		t.Fatalf("simulateCell: %v", err)
	}

	vr := &variantResult{
		method:  domain.MethodPriorityFirst,
		variant: domain.VariantJobFirst,
		cells:   map[domain.CellColor]*cellResult{domain.CellRed: cr},
	}

	summary := buildSummary(vr, []*jobCalc{jcA, jcB}, 440, 1)

	if summary.TotalPanels != 4 {
		t.Errorf("TotalPanels = %d, want 4", summary.TotalPanels)
	}
	if summary.PanelsByClass[domain.SchedClassB] != 2 || summary.PanelsByClass[domain.SchedClassC] != 2 {
		t.Errorf("PanelsByClass = %v", summary.PanelsByClass)
	}
	if summary.JobsScheduled != 2 || summary.JobsUnscheduled != 0 {
		t.Errorf("JobsScheduled=%d JobsUnscheduled=%d", summary.JobsScheduled, summary.JobsUnscheduled)
	}
	// 两个工单都是未来交付（优先级 3）且都排入，落排为 0
	if summary.MissedDates != 0 {
		t.Errorf("MissedDates = %d, want 0", summary.MissedDates)
	}
	if summary.UtilizationPct <= 0 {
		t.Error("排入面板后利用率应当大于 0")
	}
}
