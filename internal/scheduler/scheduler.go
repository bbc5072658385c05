package scheduler

import (
	"context"
	"fmt"

	"github.com/tfshop-dev/cell-scheduler/backend/internal/domain"
)

// 方法与变体的固定遍历顺序，保证两次运行产出完全一致
var methodOrder = []string{
	domain.MethodPriorityFirst,
	domain.MethodMinimumForcedIdle,
	domain.MethodMaximumOutput,
	domain.MethodMostRestrictedMix,
}

var variantOrder = []string{
	domain.VariantJobFirst,
	domain.VariantTableFirst,
	domain.VariantFixtureFirst,
}

// Engine: 一次排程运行。New 时完成派生字段计算，Run 执行方法×变体搜索。
type Engine struct {
	constants *domain.CycleTimeConstants
	inputs    *domain.RunInputs
	params    Parameters

	jobs []*jobCalc
}

func New(constants *domain.CycleTimeConstants, inputs *domain.RunInputs, jobs []*domain.Job, params Parameters) (*Engine, error) {
	if len(inputs.ActiveCells) == 0 {
		return nil, fmt.Errorf("没有任何启用的单元，无法排程")
	}

	e := &Engine{
		constants: constants,
		inputs:    inputs,
		params:    params,
	}

	// 派生字段只算一次；查不到工时表属于配置错误，启动即失败
	for _, job := range jobs {
		calc, err := calculateFields(job, constants, inputs.ScheduleDate)
		if err != nil {
			return nil, fmt.Errorf("%s: 工单 %s: %w", domain.FailConstantsLookupMiss, job.JobID, err)
		}
		e.jobs = append(e.jobs, &jobCalc{job: job, calc: calc})
	}

	return e, nil
}

func (e *Engine) variants() []string {
	if len(e.params.Variants) == 0 {
		return variantOrder
	}
	var selected []string
	for _, v := range variantOrder {
		for _, want := range e.params.Variants {
			if v == want {
				selected = append(selected, v)
				break
			}
		}
	}
	if len(selected) == 0 {
		return variantOrder
	}
	return selected
}

// Run 跑完所有 方法×变体 组合并给出推荐。
// 每个组合在自己的资源池快照上运行，互不影响；
// 仿真本身不会超时，ctx 只在组合之间检查。
func (e *Engine) Run(ctx context.Context) (*domain.ScheduleRun, error) {
	base := newResourcePool(e.constants, e.inputs)

	run := &domain.ScheduleRun{
		ScheduleDate: e.inputs.ScheduleDate,
		ShiftMinutes: e.inputs.ShiftMinutes(),
		Cells:        make(map[domain.CellColor]*domain.CellSchedule),
	}

	var results []*variantResult
	for _, method := range methodOrder {
		for _, variant := range e.variants() {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("排程被取消: %w", err)
			}
			vr, err := runVariant(method, variant, e.jobs, e.constants, e.inputs, base)
			if err != nil {
				return nil, err
			}
			results = append(results, vr)
			run.Summaries = append(run.Summaries, buildSummary(vr, e.jobs, run.ShiftMinutes, len(e.inputs.ActiveCells)))
		}
	}

	_, best := pickRecommendation(run.Summaries)
	if best < 0 {
		return nil, fmt.Errorf("%s: 没有任何方法给出可用排程", domain.FailNoFeasibleSchedule)
	}

	chosen := results[best]
	run.RecommendedMethod = chosen.method
	run.RecommendedVariant = chosen.variant
	run.Unscheduled = chosen.unscheduled
	run.Warnings = append(run.Warnings, chosen.warnings...)

	borrowsByCell := make(map[domain.CellColor][]domain.MoldBorrow)
	for _, b := range chosen.borrows {
		borrowsByCell[b.Cell] = append(borrowsByCell[b.Cell], b)
	}

	for color, cr := range chosen.cells {
		run.Cells[color] = &domain.CellSchedule{
			Cell:               color,
			Table1:             cr.table1,
			Table2:             cr.table2,
			ForcedOperatorIdle: cr.forcedOperatorIdle,
			MoldBorrows:        borrowsByCell[color],
		}
	}

	// 推荐方案里有优先级 0/1 工单未排入时给出明确告警（不作为异常）；
	// 只看推荐方案，不检查其它变体是否排入了这些工单
	if hasUnplacedUrgent(run.Summaries[best]) {
		run.Warnings = append(run.Warnings,
			fmt.Sprintf("%s: 推荐方案中存在优先级 0/1 工单未能排入", domain.FailNoFeasibleSchedule))
	}

	return run, nil
}

func hasUnplacedUrgent(s domain.VariantSummary) bool {
	return s.Priorities[priorityPastDue].Missed > 0 || s.Priorities[priorityToday].Missed > 0
}
