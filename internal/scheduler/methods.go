package scheduler

import (
	"fmt"
	"sort"

	"github.com/tfshop-dev/cell-scheduler/backend/internal/domain"
)

// candidate: 选台过程中的一个落点
type candidate struct {
	cell       domain.CellColor
	tableNum   int
	allocation map[string]int
	roughTime  int
	panels     int
	needsSetup bool
}

type methodFunc func(*schedState, []domain.CellColor) []*jobCalc

// runVariant 跑一个 方法×变体 组合：初始化独立状态、执行粗排、交给仿真
func runVariant(
	method, variant string,
	jobs []*jobCalc,
	constants *domain.CycleTimeConstants,
	inputs *domain.RunInputs,
	base *resourcePool,
) (*variantResult, error) {
	state := initState(jobs, constants, inputs, base)
	order := weekdayCellOrder(inputs.ScheduleDate, inputs)

	fn, err := lookupMethod(method, variant)
	if err != nil {
		return nil, err
	}

	leftover := fn(state, order)
	return state.finishVariant(method, variant, leftover)
}

func lookupMethod(method, variant string) (methodFunc, error) {
	type key struct{ m, v string }
	table := map[key]methodFunc{
		{domain.MethodPriorityFirst, domain.VariantJobFirst}:         method1JobFirst,
		{domain.MethodPriorityFirst, domain.VariantTableFirst}:       method1TableFirst,
		{domain.MethodPriorityFirst, domain.VariantFixtureFirst}:     method1FixtureFirst,
		{domain.MethodMinimumForcedIdle, domain.VariantJobFirst}:     method2JobFirst,
		{domain.MethodMinimumForcedIdle, domain.VariantTableFirst}:   method2TableFirst,
		{domain.MethodMinimumForcedIdle, domain.VariantFixtureFirst}: method2FixtureFirst,
		{domain.MethodMaximumOutput, domain.VariantJobFirst}:         method3JobFirst,
		{domain.MethodMaximumOutput, domain.VariantTableFirst}:       method3TableFirst,
		{domain.MethodMaximumOutput, domain.VariantFixtureFirst}:     method3FixtureFirst,
		{domain.MethodMostRestrictedMix, domain.VariantJobFirst}:     method4JobFirst,
		{domain.MethodMostRestrictedMix, domain.VariantTableFirst}:   method4TableFirst,
		{domain.MethodMostRestrictedMix, domain.VariantFixtureFirst}: method4FixtureFirst,
	}
	fn, exists := table[key{method, variant}]
	if !exists {
		return nil, fmt.Errorf("未知的方法或变体: %s / %s", method, variant)
	}
	return fn, nil
}

// sortByPriorityBuildDate: 方法通用的基准排序
func sortByPriorityBuildDate(jobs []*jobCalc) {
	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].calc.priority != jobs[j].calc.priority {
			return jobs[i].calc.priority < jobs[j].calc.priority
		}
		return jobs[i].calc.buildDate.Before(jobs[j].calc.buildDate)
	})
}

/**********************************************
 * 方法一：优先级优先
 * 硬规则：优先级 0 全部排完才排 1，依此类推
 * 软规则：C 不对 C，D/E 不对 D/E（打分加权，不硬性排除）；
 *        A 的对面台是什么类别不计入打分
 * 夹具优先变体按夹具组顺序排，优先级只在组内生效，也不看配对
 **********************************************/

func method1JobFirst(s *schedState, order []domain.CellColor) []*jobCalc {
	sortByPriorityBuildDate(s.unscheduled)

	remaining := make(map[string]int)
	lookup := make(map[string]*jobCalc)
	groups := make(map[int][]string)
	var priorities []int
	for _, jc := range s.unscheduled {
		remaining[jc.job.JobID] = jc.calc.schedQty
		lookup[jc.job.JobID] = jc
		if _, exists := groups[jc.calc.priority]; !exists {
			priorities = append(priorities, jc.calc.priority)
		}
		groups[jc.calc.priority] = append(groups[jc.calc.priority], jc.job.JobID)
	}
	sort.Ints(priorities)

	// 逐个优先级处理：本级没有进展才进入下一级
	for _, priority := range priorities {
		progress := true
		for progress {
			progress = false
			for _, jobID := range groups[priority] {
				if remaining[jobID] <= 0 {
					continue
				}
				jc := lookup[jobID]

				best := s.findBestSplittable(jc, order, remaining[jobID], func(cs *cellState, c candidate) int {
					score := 0
					if !cs.pairingConflict(jc.calc.schedClass, c.tableNum) {
						score += 1000
					}
					score += c.panels * 100
					score += s.shiftMinutes - cs.table(c.tableNum).whenAvailable
					return score
				})
				if best == nil {
					continue
				}
				if s.place(jc, best.cell, best.tableNum, best.panels, best.allocation, best.roughTime) {
					remaining[jobID] -= best.panels
					progress = true
				}
			}
		}
	}

	return leftoverJobs(remaining, lookup)
}

func method1TableFirst(s *schedState, order []domain.CellColor) []*jobCalc {
	sortByPriorityBuildDate(s.unscheduled)

	changed := true
	for changed {
		changed = false
		for _, color := range order {
			cs := s.cells[color]
			for _, tableNum := range []int{1, 2} {
				idx, c := s.findBestJobForTable(cs, tableNum, func(jc *jobCalc, conflict bool) int {
					score := (10 - jc.calc.priority) * 1000
					if !conflict {
						score += 500
					}
					return score
				})
				if idx < 0 {
					continue
				}
				jc := s.unscheduled[idx]
				if s.place(jc, color, tableNum, jc.calc.schedQty, c.allocation, c.roughTime) {
					s.unscheduled = append(s.unscheduled[:idx], s.unscheduled[idx+1:]...)
					changed = true
				}
			}
		}
	}

	return s.unscheduled
}

func method1FixtureFirst(s *schedState, order []domain.CellColor) []*jobCalc {
	return s.fixtureFirst(order, func(group []*jobCalc) {
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].calc.priority != group[j].calc.priority {
				return group[i].calc.priority < group[j].calc.priority
			}
			return group[i].job.ReqBy.Before(group[j].job.ReqBy)
		})
	}, nil)
}

/**********************************************
 * 方法二：最小强制空闲
 * 硬规则：C-C 与 D/E-D/E 配对禁忌在单工单优先、台优先变体中不可违反；
 *        夹具优先变体按夹具组排，组内按优先级、BUILD_DATE，不检查配对禁忌
 * 软规则：先排优先级 0/1；优先级 2 以上按 BUILD_LOAD 降序
 * 偏好：在放得下的前提下保留最多的剩余产能
 **********************************************/

func method2JobFirst(s *schedState, order []domain.CellColor) []*jobCalc {
	var urgent, rest []*jobCalc
	for _, jc := range s.unscheduled {
		if jc.calc.priority <= priorityToday {
			urgent = append(urgent, jc)
		} else {
			rest = append(rest, jc)
		}
	}
	sortByPriorityBuildDate(urgent)
	sort.SliceStable(rest, func(i, j int) bool {
		return rest[i].calc.buildLoad > rest[j].calc.buildLoad
	})

	var leftover []*jobCalc
	for _, jc := range append(urgent, rest...) {
		best := s.findBestWhole(jc, order, true, func(cs *cellState, c candidate) int {
			// 保留最多剩余产能
			return cs.table(c.tableNum).remainingCapacity - c.roughTime
		})
		if best == nil || !s.place(jc, best.cell, best.tableNum, jc.calc.schedQty, best.allocation, best.roughTime) {
			leftover = append(leftover, jc)
		}
	}
	return leftover
}

func method2TableFirst(s *schedState, order []domain.CellColor) []*jobCalc {
	changed := true
	for changed {
		changed = false

		// 台按最早可用排序
		type tableRef struct {
			cs  *cellState
			num int
		}
		var tables []tableRef
		for _, color := range order {
			tables = append(tables, tableRef{s.cells[color], 1}, tableRef{s.cells[color], 2})
		}
		sort.SliceStable(tables, func(i, j int) bool {
			return tables[i].cs.table(tables[i].num).whenAvailable < tables[j].cs.table(tables[j].num).whenAvailable
		})

		for _, ref := range tables {
			idx, c := s.findBestJobForTable(ref.cs, ref.num, func(jc *jobCalc, conflict bool) int {
				if conflict {
					return -1 // 硬规则：冲突直接出局
				}
				score := (10 - jc.calc.priority) * 1000
				score += ref.cs.table(ref.num).remainingCapacity - s.estimateRoughTime(jc, jc.calc.schedQty, true)
				return score
			})
			if idx < 0 {
				continue
			}
			jc := s.unscheduled[idx]
			if s.place(jc, ref.cs.color, ref.num, jc.calc.schedQty, c.allocation, c.roughTime) {
				s.unscheduled = append(s.unscheduled[:idx], s.unscheduled[idx+1:]...)
				changed = true
				break // 台序需要重排
			}
		}
	}
	return s.unscheduled
}

func method2FixtureFirst(s *schedState, order []domain.CellColor) []*jobCalc {
	return s.fixtureFirst(order, func(group []*jobCalc) {
		sortByPriorityBuildDate(group)
	}, nil)
}

/**********************************************
 * 方法三：最大产出
 * 硬规则：A 类结余 >=16 专用两个单元，>0 专用一个，
 *        专用单元取两台剩余产能之和最高者
 * 软规则：其余台上 B 对非 B，避免 B-B；按优先级排
 * 偏好：E 类集中在一张台
 * 专用单元只在单工单优先、台优先变体中执行，E 类集中只在单工单优先变体中执行；
 * 夹具优先变体按夹具组排，组内按排程数量降序，不套用以上规则
 **********************************************/

func method3Surplus(s *schedState) (aJobs, others []*jobCalc, surplus int) {
	for _, jc := range s.unscheduled {
		if jc.calc.schedClass == domain.SchedClassA {
			aJobs = append(aJobs, jc)
			surplus += jc.calc.schedQty
		} else {
			others = append(others, jc)
			surplus -= jc.calc.schedQty
		}
	}
	return aJobs, others, surplus
}

func method3DedicatedCells(s *schedState, order []domain.CellColor, surplus int) map[domain.CellColor]bool {
	count := 0
	switch {
	case surplus >= 16:
		count = 2
	case surplus > 0:
		count = 1
	}
	dedicated := make(map[domain.CellColor]bool)
	if count == 0 {
		return dedicated
	}

	sorted := append([]domain.CellColor(nil), order...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return s.cells[sorted[i]].totalRemaining() > s.cells[sorted[j]].totalRemaining()
	})
	for i := 0; i < count && i < len(sorted); i++ {
		dedicated[sorted[i]] = true
	}
	return dedicated
}

func method3JobFirst(s *schedState, order []domain.CellColor) []*jobCalc {
	aJobs, others, surplus := method3Surplus(s)
	dedicated := method3DedicatedCells(s, order, surplus)

	var leftover []*jobCalc

	sortByPriorityBuildDate(aJobs)
	for _, jc := range aJobs {
		best := s.findBestWhole(jc, order, false, func(cs *cellState, c candidate) int {
			score := 0
			if len(dedicated) > 0 && !dedicated[c.cell] {
				return -1 // A 类只进专用单元
			}
			if !isBBPair(jc, cs, c.tableNum) {
				score += 200
			}
			score += s.shiftMinutes - cs.table(c.tableNum).whenAvailable
			return score
		})
		if best == nil || !s.place(jc, best.cell, best.tableNum, jc.calc.schedQty, best.allocation, best.roughTime) {
			leftover = append(leftover, jc)
		}
	}

	// E 类先排并尽量集中到同一张台
	var eJobs, otherJobs []*jobCalc
	for _, jc := range others {
		if jc.calc.schedClass == domain.SchedClassE {
			eJobs = append(eJobs, jc)
		} else {
			otherJobs = append(otherJobs, jc)
		}
	}
	sortByPriorityBuildDate(eJobs)
	sortByPriorityBuildDate(otherJobs)

	var eTable *candidate
	for _, jc := range eJobs {
		best := s.findBestWhole(jc, order, false, func(cs *cellState, c candidate) int {
			if dedicated[c.cell] {
				return -1 // 专用单元不收非 A 类
			}
			score := 0
			if eTable != nil && eTable.cell == c.cell && eTable.tableNum == c.tableNum {
				score += 500
			}
			if !isBBPair(jc, cs, c.tableNum) {
				score += 200
			}
			score += s.shiftMinutes - cs.table(c.tableNum).whenAvailable
			return score
		})
		if best == nil || !s.place(jc, best.cell, best.tableNum, jc.calc.schedQty, best.allocation, best.roughTime) {
			leftover = append(leftover, jc)
			continue
		}
		eTable = best
	}

	for _, jc := range otherJobs {
		best := s.findBestWhole(jc, order, false, func(cs *cellState, c candidate) int {
			if dedicated[c.cell] {
				return -1
			}
			score := 0
			if !isBBPair(jc, cs, c.tableNum) {
				score += 200
			}
			score += s.shiftMinutes - cs.table(c.tableNum).whenAvailable
			return score
		})
		if best == nil || !s.place(jc, best.cell, best.tableNum, jc.calc.schedQty, best.allocation, best.roughTime) {
			leftover = append(leftover, jc)
		}
	}

	return leftover
}

func isBBPair(jc *jobCalc, cs *cellState, tableNum int) bool {
	return jc.calc.schedClass == domain.SchedClassB &&
		cs.opposite(tableNum).currentClass == domain.SchedClassB
}

func method3TableFirst(s *schedState, order []domain.CellColor) []*jobCalc {
	_, _, surplus := method3Surplus(s)
	dedicated := method3DedicatedCells(s, order, surplus)

	changed := true
	for changed {
		changed = false
		for _, color := range order {
			cs := s.cells[color]
			isACell := dedicated[color]
			for _, tableNum := range []int{1, 2} {
				idx, c := s.findBestJobForTable(cs, tableNum, func(jc *jobCalc, conflict bool) int {
					if isACell && jc.calc.schedClass != domain.SchedClassA {
						return -1
					}
					score := (10 - jc.calc.priority) * 100
					if !isBBPair(jc, cs, tableNum) {
						score += 50
					}
					return score
				})
				if idx < 0 {
					continue
				}
				jc := s.unscheduled[idx]
				if s.place(jc, color, tableNum, jc.calc.schedQty, c.allocation, c.roughTime) {
					s.unscheduled = append(s.unscheduled[:idx], s.unscheduled[idx+1:]...)
					changed = true
				}
			}
		}
	}
	return s.unscheduled
}

func method3FixtureFirst(s *schedState, order []domain.CellColor) []*jobCalc {
	return s.fixtureFirst(order, func(group []*jobCalc) {
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].calc.schedQty != group[j].calc.schedQty {
				return group[i].calc.schedQty > group[j].calc.schedQty
			}
			return group[i].calc.priority < group[j].calc.priority
		})
	}, nil)
}

/**********************************************
 * 方法四：最受限组合
 * D/E 落位按对面台类别打分：C 最高，其次 B（台优先变体里 B 与 C 同分），
 *        单工单优先变体里空台再次；对面台是其它类别时仍可落位，只是得分最低
 * 软规则：先低优先级数值，再高 BUILD_LOAD
 **********************************************/

func method4JobFirst(s *schedState, order []domain.CellColor) []*jobCalc {
	remaining := make(map[string]int)
	lookup := make(map[string]*jobCalc)
	var deJobs, cJobs, bJobs, aJobs []*jobCalc

	for _, jc := range s.unscheduled {
		remaining[jc.job.JobID] = jc.calc.schedQty
		lookup[jc.job.JobID] = jc
		switch jc.calc.schedClass {
		case domain.SchedClassD, domain.SchedClassE:
			deJobs = append(deJobs, jc)
		case domain.SchedClassC:
			cJobs = append(cJobs, jc)
		case domain.SchedClassB:
			bJobs = append(bJobs, jc)
		default:
			aJobs = append(aJobs, jc)
		}
	}

	byPriorityThenLoad := func(jobs []*jobCalc) {
		sort.SliceStable(jobs, func(i, j int) bool {
			if jobs[i].calc.priority != jobs[j].calc.priority {
				return jobs[i].calc.priority < jobs[j].calc.priority
			}
			return jobs[i].calc.buildLoad > jobs[j].calc.buildLoad
		})
	}
	for _, list := range [][]*jobCalc{deJobs, cJobs, bJobs, aJobs} {
		byPriorityThenLoad(list)
	}

	scheduleList := func(jobs []*jobCalc, prefer, fallback map[domain.SchedClass]bool) {
		progress := true
		for progress {
			progress = false
			for _, jc := range jobs {
				if remaining[jc.job.JobID] <= 0 {
					continue
				}
				best := s.findBestSplittable(jc, order, remaining[jc.job.JobID], func(cs *cellState, c candidate) int {
					opp := cs.opposite(c.tableNum).currentClass
					score := 0
					switch {
					case prefer != nil && prefer[opp]:
						score = 1000
					case fallback != nil && fallback[opp]:
						score = 500
					case opp == "":
						score = 250
					}
					score += c.panels * 10
					score += (s.shiftMinutes - cs.table(c.tableNum).whenAvailable) / 10
					return score
				})
				if best == nil {
					continue
				}
				if s.place(jc, best.cell, best.tableNum, best.panels, best.allocation, best.roughTime) {
					remaining[jc.job.JobID] -= best.panels
					progress = true
				}
			}
		}
	}

	classSet := func(classes ...domain.SchedClass) map[domain.SchedClass]bool {
		m := make(map[domain.SchedClass]bool)
		for _, c := range classes {
			m[c] = true
		}
		return m
	}

	scheduleList(deJobs, classSet(domain.SchedClassC), classSet(domain.SchedClassB))
	scheduleList(cJobs, classSet(domain.SchedClassD, domain.SchedClassE), classSet(domain.SchedClassB))
	scheduleList(bJobs, nil, nil)
	scheduleList(aJobs, nil, nil)

	return leftoverJobs(remaining, lookup)
}

func method4TableFirst(s *schedState, order []domain.CellColor) []*jobCalc {
	changed := true
	for changed {
		changed = false
		for _, color := range order {
			cs := s.cells[color]
			for _, tableNum := range []int{1, 2} {
				opp := cs.opposite(tableNum).currentClass

				var preferred map[domain.SchedClass]bool
				switch {
				case opp == domain.SchedClassC:
					preferred = map[domain.SchedClass]bool{domain.SchedClassD: true, domain.SchedClassE: true}
				case opp == domain.SchedClassD || opp == domain.SchedClassE:
					preferred = map[domain.SchedClass]bool{domain.SchedClassC: true, domain.SchedClassB: true}
				}

				idx, c := s.findBestJobForTable(cs, tableNum, func(jc *jobCalc, conflict bool) int {
					score := 0
					if preferred != nil && preferred[jc.calc.schedClass] {
						score += 1000
					}
					score += (10 - jc.calc.priority) * 100
					score += int(jc.calc.buildLoad * 10)
					return score
				})
				if idx < 0 {
					continue
				}
				jc := s.unscheduled[idx]
				if s.place(jc, color, tableNum, jc.calc.schedQty, c.allocation, c.roughTime) {
					s.unscheduled = append(s.unscheduled[:idx], s.unscheduled[idx+1:]...)
					changed = true
				}
			}
		}
	}
	return s.unscheduled
}

func method4FixtureFirst(s *schedState, order []domain.CellColor) []*jobCalc {
	// 类别从最受限到最宽松的顺序决定夹具组的处理次序
	classRank := map[domain.SchedClass]int{
		domain.SchedClassD: 0, domain.SchedClassE: 0,
		domain.SchedClassC: 1, domain.SchedClassB: 2, domain.SchedClassA: 3,
	}
	prefer := func(jc *jobCalc) map[domain.SchedClass]bool {
		switch jc.calc.schedClass {
		case domain.SchedClassD, domain.SchedClassE:
			return map[domain.SchedClass]bool{domain.SchedClassC: true}
		case domain.SchedClassC:
			return map[domain.SchedClass]bool{domain.SchedClassD: true, domain.SchedClassE: true}
		default:
			return nil
		}
	}
	return s.fixtureFirst(order, func(group []*jobCalc) {
		sort.SliceStable(group, func(i, j int) bool {
			if classRank[group[i].calc.schedClass] != classRank[group[j].calc.schedClass] {
				return classRank[group[i].calc.schedClass] < classRank[group[j].calc.schedClass]
			}
			return group[i].calc.buildLoad > group[j].calc.buildLoad
		})
	}, prefer)
}

/**********************************************
 * 选台辅助
 **********************************************/

// findBestWhole 为整个工单找一张台；hardPairing 为真时配对冲突直接出局。
// scoreFn 返回负数表示该落点不可用。
func (s *schedState) findBestWhole(jc *jobCalc, order []domain.CellColor, hardPairing bool, scoreFn func(*cellState, candidate) int) *candidate {
	compliant := s.compliantCells(jc)
	if len(compliant) == 0 {
		s.reasons[jc.job.JobID] = domain.ReasonNoMold
		return nil
	}

	var best *candidate
	bestScore := -1

	for _, color := range order {
		if !compliant[color] {
			continue
		}
		cs := s.cells[color]
		for _, tableNum := range []int{1, 2} {
			table := cs.table(tableNum)

			roughTime := s.estimateRoughTime(jc, jc.calc.schedQty, table.lastFixture != jc.calc.fixtureID)
			if !table.canFit(roughTime) {
				if _, seen := s.reasons[jc.job.JobID]; !seen {
					s.reasons[jc.job.JobID] = domain.ReasonNoCapacity
				}
				continue
			}

			conflict := cs.pairingConflict(jc.calc.schedClass, tableNum)
			if hardPairing && conflict {
				s.reasons[jc.job.JobID] = domain.ReasonClassPairingBlocked
				continue
			}

			allocation, reason := s.pool.allocateMolds(jc, color)
			if allocation == nil {
				s.reasons[jc.job.JobID] = reason
				continue
			}
			if needsFixture(jc) && s.pool.fixtureHolderCount(jc.calc.fixtureID) >= s.fixtureLimitOf(jc.job.Pattern) {
				s.reasons[jc.job.JobID] = domain.ReasonNoFixture
				continue
			}

			c := candidate{cell: color, tableNum: tableNum, allocation: allocation, roughTime: roughTime, panels: jc.calc.schedQty}
			score := scoreFn(cs, c)
			if score < 0 {
				continue
			}
			if score > bestScore {
				bestScore = score
				cc := c
				best = &cc
			}
		}
	}
	return best
}

// findBestSplittable 允许把工单拆到多张台：返回当前最优落点和该落点能吃下的面板数
func (s *schedState) findBestSplittable(jc *jobCalc, order []domain.CellColor, panelsNeeded int, scoreFn func(*cellState, candidate) int) *candidate {
	compliant := s.compliantCells(jc)
	if len(compliant) == 0 {
		s.reasons[jc.job.JobID] = domain.ReasonNoMold
		return nil
	}

	var best *candidate
	bestScore := -1

	for _, color := range order {
		if !compliant[color] {
			continue
		}
		cs := s.cells[color]
		for _, tableNum := range []int{1, 2} {
			table := cs.table(tableNum)

			available := s.shiftMinutes - table.whenAvailable
			needsSetup := table.lastFixture != jc.calc.fixtureID
			maxPanels := s.maxPanelsThatFit(jc, available, needsSetup)
			if maxPanels <= 0 {
				if _, seen := s.reasons[jc.job.JobID]; !seen {
					s.reasons[jc.job.JobID] = domain.ReasonNoCapacity
				}
				continue
			}

			allocation, reason := s.pool.allocateMolds(jc, color)
			if allocation == nil {
				s.reasons[jc.job.JobID] = reason
				continue
			}
			if needsFixture(jc) && s.pool.fixtureHolderCount(jc.calc.fixtureID) >= s.fixtureLimitOf(jc.job.Pattern) {
				s.reasons[jc.job.JobID] = domain.ReasonNoFixture
				continue
			}

			panels := min(maxPanels, panelsNeeded)
			c := candidate{
				cell:       color,
				tableNum:   tableNum,
				allocation: allocation,
				roughTime:  s.estimateRoughTime(jc, panels, needsSetup),
				panels:     panels,
				needsSetup: needsSetup,
			}
			score := scoreFn(cs, c)
			if score < 0 {
				continue
			}
			if score > bestScore {
				bestScore = score
				cc := c
				best = &cc
			}
		}
	}
	return best
}

// findBestJobForTable 台优先变体：为指定台在待排队列里挑最合适的工单。
// scoreFn 返回负数表示跳过该工单。
func (s *schedState) findBestJobForTable(cs *cellState, tableNum int, scoreFn func(jc *jobCalc, conflict bool) int) (int, candidate) {
	table := cs.table(tableNum)
	bestIdx := -1
	var bestCandidate candidate
	bestScore := -1

	for idx, jc := range s.unscheduled {
		if !s.compliantCells(jc)[cs.color] {
			continue
		}

		roughTime := s.estimateRoughTime(jc, jc.calc.schedQty, true)
		if !table.canFit(roughTime) {
			if _, seen := s.reasons[jc.job.JobID]; !seen {
				s.reasons[jc.job.JobID] = domain.ReasonNoCapacity
			}
			continue
		}

		allocation, reason := s.pool.allocateMolds(jc, cs.color)
		if allocation == nil {
			s.reasons[jc.job.JobID] = reason
			continue
		}
		if needsFixture(jc) && s.pool.fixtureHolderCount(jc.calc.fixtureID) >= s.fixtureLimitOf(jc.job.Pattern) {
			s.reasons[jc.job.JobID] = domain.ReasonNoFixture
			continue
		}

		conflict := cs.pairingConflict(jc.calc.schedClass, tableNum)
		score := scoreFn(jc, conflict)
		if score < 0 {
			continue
		}
		if score > bestScore {
			bestScore = score
			bestIdx = idx
			bestCandidate = candidate{cell: cs.color, tableNum: tableNum, allocation: allocation, roughTime: roughTime, panels: jc.calc.schedQty}
		}
	}
	return bestIdx, bestCandidate
}

// fixtureFirst: 夹具优先变体的共用骨架。按 fixtureID 分组，
// 组内连排吃零 SETUP，组间按「含优先级 0、总面板多」排序。
func (s *schedState) fixtureFirst(order []domain.CellColor, sortGroup func([]*jobCalc), prefer func(*jobCalc) map[domain.SchedClass]bool) []*jobCalc {
	groups := make(map[string][]*jobCalc)
	var fixtures []string
	for _, jc := range s.unscheduled {
		f := jc.calc.fixtureID
		if _, exists := groups[f]; !exists {
			fixtures = append(fixtures, f)
		}
		groups[f] = append(groups[f], jc)
	}

	for _, f := range fixtures {
		sortGroup(groups[f])
	}

	groupKey := func(f string) (int, int) {
		hasP0 := 1
		total := 0
		for _, jc := range groups[f] {
			if jc.calc.priority == priorityPastDue {
				hasP0 = 0
			}
			total += jc.calc.schedQty
		}
		return hasP0, -total
	}
	sort.SliceStable(fixtures, func(i, j int) bool {
		pi, ti := groupKey(fixtures[i])
		pj, tj := groupKey(fixtures[j])
		if pi != pj {
			return pi < pj
		}
		return ti < tj
	})

	remaining := make(map[string]int)
	lookup := make(map[string]*jobCalc)
	for _, f := range fixtures {
		for _, jc := range groups[f] {
			remaining[jc.job.JobID] = jc.calc.schedQty
			lookup[jc.job.JobID] = jc
		}
	}

	for _, f := range fixtures {
		for _, jc := range groups[f] {
			for remaining[jc.job.JobID] > 0 {
				var preferOpp map[domain.SchedClass]bool
				if prefer != nil {
					preferOpp = prefer(jc)
				}
				best := s.findBestSplittable(jc, order, remaining[jc.job.JobID], func(cs *cellState, c candidate) int {
					table := cs.table(c.tableNum)
					score := 100
					if table.lastFixture == f {
						score = 1000 // 同夹具连排，省掉 SETUP
					} else if table.lastFixture == "" {
						score = 500
					}
					if preferOpp != nil {
						opp := cs.opposite(c.tableNum).currentClass
						if preferOpp[opp] {
							score += 500
						} else if opp == domain.SchedClassB {
							score += 250
						}
					}
					score += (s.shiftMinutes - table.whenAvailable) + c.panels*10
					return score
				})
				if best == nil {
					break
				}
				if !s.place(jc, best.cell, best.tableNum, best.panels, best.allocation, best.roughTime) {
					break
				}
				remaining[jc.job.JobID] -= best.panels
			}
		}
	}

	return leftoverJobs(remaining, lookup)
}

func (s *schedState) fixtureLimitOf(pattern domain.Pattern) int {
	limit, err := s.constants.GetFixtureLimit(pattern)
	if err != nil {
		return 0
	}
	return limit
}

func leftoverJobs(remaining map[string]int, lookup map[string]*jobCalc) []*jobCalc {
	var jobIDs []string
	for jobID, n := range remaining {
		if n > 0 {
			jobIDs = append(jobIDs, jobID)
		}
	}
	sort.Strings(jobIDs)

	var leftover []*jobCalc
	for _, jobID := range jobIDs {
		leftover = append(leftover, lookup[jobID])
	}
	return leftover
}
