package scheduler

import (
	"github.com/tfshop-dev/cell-scheduler/backend/internal/domain"
)

// buildSummary 把一个 方法×变体 的仿真结果汇总成评估文档
func buildSummary(vr *variantResult, jobs []*jobCalc, shiftMinutes, activeCells int) domain.VariantSummary {
	summary := domain.VariantSummary{
		Method:        vr.method,
		Variant:       vr.variant,
		PanelsByClass: make(map[domain.SchedClass]int),
		PanelsByCell:  make(map[domain.CellColor]int),
	}

	classOf := make(map[string]domain.SchedClass, len(jobs))
	prioOf := make(map[string]int, len(jobs))
	for _, jc := range jobs {
		classOf[jc.job.JobID] = jc.calc.schedClass
		prioOf[jc.job.JobID] = jc.calc.priority
	}

	// 以仿真实际产出为准统计面板
	scheduledJobs := make(map[string]bool)
	operatorMinutes := 0
	for _, cr := range vr.cells {
		summary.PanelsByCell[cr.cell] = cr.totalPanels
		summary.TotalPanels += cr.totalPanels
		summary.ForcedOperatorIdle += cr.forcedOperatorIdle
		summary.ForcedTableIdle += cr.table1.ForcedIdle + cr.table2.ForcedIdle
		operatorMinutes += cr.operatorMinutes

		for _, p := range append(append([]domain.Panel(nil), cr.table1.Panels...), cr.table2.Panels...) {
			summary.PanelsByClass[classOf[p.JobID]]++
			scheduledJobs[p.JobID] = true

			priority := prioOf[p.JobID]
			summary.Priorities[priority].PanelsScheduled++
		}
	}

	for _, jc := range jobs {
		p := jc.calc.priority
		if scheduledJobs[jc.job.JobID] {
			summary.Priorities[p].Scheduled++
		} else {
			summary.Priorities[p].Missed++
		}
	}

	summary.JobsScheduled = len(scheduledJobs)
	summary.JobsUnscheduled = len(jobs) - len(scheduledJobs)

	// 比较器只看优先级 1、2、3 的落排
	summary.MissedDates = summary.Priorities[priorityToday].Missed +
		summary.Priorities[priorityExpedite].Missed +
		summary.Priorities[priorityFuture].Missed

	if shiftMinutes > 0 && activeCells > 0 {
		summary.UtilizationPct = float64(operatorMinutes) / float64(shiftMinutes*activeCells) * 100
	}

	return summary
}

// betterSummary 判断 a 是否优于 b：落排更少者胜，平手看总面板更多
func betterSummary(a, b domain.VariantSummary) bool {
	if a.MissedDates != b.MissedDates {
		return a.MissedDates < b.MissedDates
	}
	return a.TotalPanels > b.TotalPanels
}

// pickRecommendation 先在每个方法内部选最优变体，再用同一规则跨方法推荐。
// 返回 (每方法最优下标, 总推荐下标)；summaries 为空时推荐下标为 -1。
func pickRecommendation(summaries []domain.VariantSummary) (map[string]int, int) {
	perMethod := make(map[string]int)
	for i, s := range summaries {
		cur, exists := perMethod[s.Method]
		if !exists || betterSummary(s, summaries[cur]) {
			perMethod[s.Method] = i
		}
	}

	// 按 summaries 的固定顺序遍历，保证平手时结果确定
	best := -1
	for i := range summaries {
		if perMethod[summaries[i].Method] != i {
			continue
		}
		if best < 0 || betterSummary(summaries[i], summaries[best]) {
			best = i
		}
	}
	return perMethod, best
}
