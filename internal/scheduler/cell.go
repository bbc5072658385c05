package scheduler

import (
	"fmt"
	"sort"

	"github.com/tfshop-dev/cell-scheduler/backend/internal/domain"
)

// panelSlot: 仿真队列中的一个面板位
type panelSlot struct {
	jc *jobCalc

	// ON_TABLE_TODAY 的首面板：SETUP 已完成；若按首面板初始化规则
	// 判定本台以浇注开班，则 LAYOUT 也已完成
	preloaded  bool
	skipSetup  bool
	skipLayout bool
}

// tableSim: 仿真期间单张工作台的状态
type tableSim struct {
	id    string
	queue []panelSlot

	panels []domain.Panel
	prep   *domain.PrepPanel

	// 因对面台固化待卸而被挡下的预备面板候选，主循环结束后重试
	prepCandidate *panelSlot

	lastFixture string
	freeAt      int

	// 正在固化、等待卸载的面板
	pending       *domain.Panel
	pendingUnload int
	cureEnd       int
	awaiting      bool

	forcedIdle int
	closed     bool

	// 每个工单在本台上已产出的面板序号
	jobOrdinal map[string]int

	reverted map[string]int // 回退为未排的面板数，按工单计
}

// cellResult: 单个单元的仿真输出
type cellResult struct {
	cell               domain.CellColor
	table1             domain.TableSchedule
	table2             domain.TableSchedule
	forcedOperatorIdle int
	unscheduled        []domain.UnscheduledJob
	totalPanels        int
	operatorMinutes    int
}

// cellSim 把一次单元仿真的共享量收拢在一起
type cellSim struct {
	constants  *domain.CycleTimeConstants
	horizon    int
	pourCutoff int
	cureMult   float64

	o                  int // 操作员空闲时刻
	forcedOperatorIdle int
}

// simulateCell 对一个单元做两台一人交替的逐分钟仿真。
// 队列是粗排结果；仿真把能在班内完成的面板逐个转成最终排定，
// 到截止点后剩余面板回退为未排。
func simulateCell(
	cell domain.CellColor,
	shiftMinutes int,
	queue1, queue2 []panelSlot,
	constants *domain.CycleTimeConstants,
	summerMode bool,
) (*cellResult, error) {
	sim := &cellSim{
		constants:  constants,
		horizon:    shiftMinutes,
		pourCutoff: constants.PourCutoffMinutes,
		cureMult:   1.0,
	}
	if summerMode {
		sim.cureMult = constants.SummerCureMultiplier
	}

	t1 := newTableSim(domain.TableID(cell, 1), queue1)
	t2 := newTableSim(domain.TableID(cell, 2), queue2)
	sim.applyFirstPanelRules(t1, t2)

	// 开班顺序：有预完成 LAYOUT 的台先开（操作员直接浇注），否则 1 号台先开
	first, second := t1, t2
	if len(t2.queue) > 0 && t2.queue[0].skipLayout && !(len(t1.queue) > 0 && t1.queue[0].skipLayout) {
		first, second = t2, t1
	}

	sim.startNext(first, second)
	sim.startNext(second, first)

	for iter := 0; iter < 2*(len(queue1)+len(queue2))+8; iter++ {
		// 操作员回到固化最先结束的那张台
		var t, other *tableSim
		switch {
		case t1.awaiting && (!t2.awaiting || t1.cureEnd <= t2.cureEnd):
			t, other = t1, t2
		case t2.awaiting:
			t, other = t2, t1
		}

		if t == nil {
			// 没有在途固化：尝试直接开下一个面板
			if !t1.closed && len(t1.queue) > 0 {
				sim.startNext(t1, t2)
				continue
			}
			if !t2.closed && len(t2.queue) > 0 {
				sim.startNext(t2, t1)
				continue
			}
			break
		}

		// 等固化（强制操作员空闲），然后卸载
		if t.cureEnd > sim.o {
			sim.forcedOperatorIdle += t.cureEnd - sim.o
			sim.o = t.cureEnd
		}
		unloadStart := sim.o
		t.forcedIdle += unloadStart - t.cureEnd

		panel := t.pending
		panel.Unload = domain.TaskSpan{Start: unloadStart, End: unloadStart + t.pendingUnload, Duration: t.pendingUnload}
		sim.o = panel.Unload.End
		t.freeAt = sim.o
		t.panels = append(t.panels, *panel)
		t.pending = nil
		t.awaiting = false

		sim.startNext(t, other)
	}

	// 主循环里因对面台待卸而没能降级的面板，这里补做预备面板
	sim.retryPrep(t1, t2)
	sim.retryPrep(t2, t1)

	// 剩余队列回退为未排
	t1.revertRemaining()
	t2.revertRemaining()

	result := &cellResult{
		cell:               cell,
		forcedOperatorIdle: sim.forcedOperatorIdle,
		table1:             t1.schedule(),
		table2:             t2.schedule(),
	}
	result.totalPanels = len(t1.panels) + len(t2.panels)
	result.operatorMinutes = operatorMinutes(t1) + operatorMinutes(t2)
	result.unscheduled = collectReverted(t1, t2)

	if err := verifyCellInvariants(result); err != nil {
		return nil, err
	}
	return result, nil
}

func newTableSim(id string, queue []panelSlot) *tableSim {
	return &tableSim{
		id:         id,
		queue:      append([]panelSlot(nil), queue...),
		jobOrdinal: make(map[string]int),
		reverted:   make(map[string]int),
	}
}

// applyFirstPanelRules 落实上台工单的首面板初始化：
//   - 单台预载：该台首面板 SETUP、LAYOUT 均为 0；
//   - 双台预载：两台首面板 SETUP 为 0，难度系数较低的一台 LAYOUT 预完成，
//     平手时比较固化更长者、再比较排程数量更大者。
func (s *cellSim) applyFirstPanelRules(t1, t2 *tableSim) {
	p1 := len(t1.queue) > 0 && t1.queue[0].preloaded
	p2 := len(t2.queue) > 0 && t2.queue[0].preloaded

	switch {
	case p1 && p2:
		t1.queue[0].skipSetup = true
		t2.queue[0].skipSetup = true
		if s.pourStartsFirst(t1.queue[0].jc, t2.queue[0].jc) {
			t1.queue[0].skipLayout = true
		} else {
			t2.queue[0].skipLayout = true
		}
	case p1:
		t1.queue[0].skipSetup = true
		t1.queue[0].skipLayout = true
	case p2:
		t2.queue[0].skipSetup = true
		t2.queue[0].skipLayout = true
	}
}

// pourStartsFirst 判定双台预载时 a 是否是以浇注开班的那张台
func (s *cellSim) pourStartsFirst(a, b *jobCalc) bool {
	if a.job.Equivalent != b.job.Equivalent {
		return a.job.Equivalent < b.job.Equivalent
	}
	ta, errA := s.constants.GetTaskTiming(a.job.WireDiameter, a.job.Equivalent)
	tb, errB := s.constants.GetTaskTiming(b.job.WireDiameter, b.job.Equivalent)
	if errA == nil && errB == nil && ta.Cure != tb.Cure {
		return ta.Cure > tb.Cure
	}
	return a.calc.schedQty >= b.calc.schedQty
}

// startNext 在台上开始下一个面板：SETUP → LAYOUT → POUR，固化随即自走。
// 浇注截止与收班判定都在这里做；不能开的面板会关台并回退其余队列。
func (s *cellSim) startNext(t, other *tableSim) {
	if t.closed || len(t.queue) == 0 {
		return
	}
	slot := t.queue[0]

	timing, err := s.constants.GetTaskTiming(slot.jc.job.WireDiameter, slot.jc.job.Equivalent)
	if err != nil {
		// 派生字段阶段已经查过表，到这里查不到属于常量被改坏
		t.close()
		return
	}

	setup := timing.Setup
	if slot.skipSetup || t.lastFixture == slot.jc.calc.fixtureID {
		setup = 0
	}
	layout := timing.Layout
	if slot.skipLayout {
		layout = 0
	}
	pour := int(timing.PourPerMold * float64(slot.jc.job.Molds))
	cure := int(float64(timing.Cure) * s.cureMult)
	unload := timing.Unload

	opStart := s.o
	if t.freeAt > opStart {
		opStart = t.freeAt
	}
	if opStart >= s.horizon {
		t.close()
		return
	}

	layoutEnd := opStart + setup + layout

	// 浇注截止：排版结束后操作员剩余不足 40 分钟则不浇注，
	// 面板降级为预备面板（SETUP+LAYOUT 照做），本台不再排面板
	if layoutEnd > s.horizon-s.pourCutoff {
		if !slot.skipLayout && t.prep == nil && layoutEnd <= s.horizon {
			t.queue = t.queue[1:]
			if other.awaiting {
				// 对面台固化待卸，先不做预备面板，等收尾再试
				t.prepCandidate = &slot
			} else {
				s.makePrep(t, slot, opStart, setup, layout)
			}
		}
		t.close()
		return
	}

	pourEnd := layoutEnd + pour
	cureEnd := pourEnd + cure
	if cureEnd+unload > s.horizon {
		// 预计卸载越过收班时刻，整个面板被拒
		t.close()
		return
	}

	t.jobOrdinal[slot.jc.job.JobID]++
	panel := &domain.Panel{
		TableID: t.id,
		Index:   t.jobOrdinal[slot.jc.job.JobID],
		JobID:   slot.jc.job.JobID,
		Setup:   domain.TaskSpan{Start: opStart, End: opStart + setup, Duration: setup},
		Layout:  domain.TaskSpan{Start: opStart + setup, End: layoutEnd, Duration: layout},
		Pour:    domain.TaskSpan{Start: layoutEnd, End: pourEnd, Duration: pour},
		Cure:    domain.TaskSpan{Start: pourEnd, End: cureEnd, Duration: cure},
	}

	s.o = pourEnd
	t.queue = t.queue[1:]
	t.pending = panel
	t.pendingUnload = unload
	t.cureEnd = cureEnd
	t.awaiting = true
	t.lastFixture = slot.jc.calc.fixtureID
}

func (s *cellSim) makePrep(t *tableSim, slot panelSlot, opStart, setup, layout int) {
	t.prep = &domain.PrepPanel{
		TableID: t.id,
		JobID:   slot.jc.job.JobID,
		Setup:   domain.TaskSpan{Start: opStart, End: opStart + setup, Duration: setup},
		Layout:  domain.TaskSpan{Start: opStart + setup, End: opStart + setup + layout, Duration: layout},
	}
	s.o = opStart + setup + layout
	t.freeAt = s.o
	t.lastFixture = slot.jc.calc.fixtureID
}

// retryPrep 在主循环收尾后补做被挡下的预备面板（此时不会再有待卸的固化）
func (s *cellSim) retryPrep(t, other *tableSim) {
	if t.prepCandidate == nil {
		return
	}
	slot := *t.prepCandidate
	t.prepCandidate = nil

	if t.prep != nil || other.awaiting {
		t.reverted[slot.jc.job.JobID]++
		return
	}

	timing, err := s.constants.GetTaskTiming(slot.jc.job.WireDiameter, slot.jc.job.Equivalent)
	if err != nil {
		t.reverted[slot.jc.job.JobID]++
		return
	}
	setup := timing.Setup
	if slot.skipSetup || t.lastFixture == slot.jc.calc.fixtureID {
		setup = 0
	}
	opStart := s.o
	if t.freeAt > opStart {
		opStart = t.freeAt
	}
	if opStart+setup+timing.Layout > s.horizon {
		t.reverted[slot.jc.job.JobID]++
		return
	}
	s.makePrep(t, slot, opStart, setup, timing.Layout)
}

func (t *tableSim) close() {
	if t.closed {
		return
	}
	t.closed = true
	t.revertRemaining()
}

// revertRemaining 把还留在队列里的粗排面板回退为未排
func (t *tableSim) revertRemaining() {
	for _, slot := range t.queue {
		t.reverted[slot.jc.job.JobID]++
	}
	t.queue = nil
}

func (t *tableSim) schedule() domain.TableSchedule {
	return domain.TableSchedule{
		TableID:    t.id,
		Panels:     t.panels,
		Prep:       t.prep,
		ForcedIdle: t.forcedIdle,
	}
}

func operatorMinutes(t *tableSim) int {
	total := 0
	for _, p := range t.panels {
		total += p.Setup.Duration + p.Layout.Duration + p.Pour.Duration + p.Unload.Duration
	}
	if t.prep != nil {
		total += t.prep.Setup.Duration + t.prep.Layout.Duration
	}
	return total
}

func collectReverted(t1, t2 *tableSim) []domain.UnscheduledJob {
	merged := make(map[string]int)
	for jobID, n := range t1.reverted {
		merged[jobID] += n
	}
	for jobID, n := range t2.reverted {
		merged[jobID] += n
	}

	jobIDs := make([]string, 0, len(merged))
	for jobID, n := range merged {
		if n > 0 {
			jobIDs = append(jobIDs, jobID)
		}
	}
	sort.Strings(jobIDs)

	var result []domain.UnscheduledJob
	for _, jobID := range jobIDs {
		result = append(result, domain.UnscheduledJob{JobID: jobID, Reason: domain.ReasonNoCapacity})
	}
	return result
}

// verifyCellInvariants 校验仿真输出没有破坏硬性不变量：
// 工序顺序递增、操作员同一时刻只做一件带人工序。
// 违反即程序缺陷，必须中止而不是降级为告警。
func verifyCellInvariants(result *cellResult) error {
	type span struct{ start, end int }
	var operatorSpans []span

	check := func(ts domain.TableSchedule) error {
		for _, p := range ts.Panels {
			if p.Setup.End > p.Layout.Start || p.Layout.End > p.Pour.Start ||
				p.Pour.End > p.Cure.Start || p.Cure.End > p.Unload.Start {
				return fmt.Errorf("面板 %s #%d 的工序顺序被破坏", p.JobID, p.Index)
			}
			for _, t := range []domain.TaskSpan{p.Setup, p.Layout, p.Pour, p.Unload} {
				if t.Duration > 0 {
					operatorSpans = append(operatorSpans, span{t.Start, t.End})
				}
			}
		}
		if ts.Prep != nil {
			for _, t := range []domain.TaskSpan{ts.Prep.Setup, ts.Prep.Layout} {
				if t.Duration > 0 {
					operatorSpans = append(operatorSpans, span{t.Start, t.End})
				}
			}
		}
		return nil
	}

	if err := check(result.table1); err != nil {
		return err
	}
	if err := check(result.table2); err != nil {
		return err
	}

	sort.Slice(operatorSpans, func(i, j int) bool { return operatorSpans[i].start < operatorSpans[j].start })
	for i := 1; i < len(operatorSpans); i++ {
		if operatorSpans[i].start < operatorSpans[i-1].end {
			return fmt.Errorf("单元 %s 的操作员在 %d 分钟处被重复占用", result.cell, operatorSpans[i].start)
		}
	}
	return nil
}
