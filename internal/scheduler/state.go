package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/tfshop-dev/cell-scheduler/backend/internal/domain"
)

// assignment: 粗排阶段排到某张台上的一段工单
type assignment struct {
	jc        *jobCalc
	panels    int
	preloaded bool // ON_TABLE_TODAY 钉在本台
}

// tableState: 粗排阶段单张台的台账
type tableState struct {
	cell domain.CellColor
	num  int

	whenAvailable     int
	remainingCapacity int

	assigned     []assignment
	currentClass domain.SchedClass
	panels       int
	lastFixture  string

	// 当前占着的资源，换工单时释放
	moldAllocation map[string]int
	fixtureHeld    string
	holder         holderKey
}

func (t *tableState) canFit(roughTime int) bool {
	return roughTime <= t.remainingCapacity
}

func (t *tableState) assign(jc *jobCalc, panels, roughTime int, preloaded bool) {
	t.assigned = append(t.assigned, assignment{jc: jc, panels: panels, preloaded: preloaded})
	t.whenAvailable += roughTime
	t.remainingCapacity -= roughTime
	t.currentClass = jc.calc.schedClass
	t.panels += panels
	t.lastFixture = jc.calc.fixtureID
}

// cellState: 粗排阶段一个单元的两张台
type cellState struct {
	color  domain.CellColor
	active bool
	table1 *tableState
	table2 *tableState
}

func (c *cellState) table(num int) *tableState {
	if num == 1 {
		return c.table1
	}
	return c.table2
}

func (c *cellState) opposite(num int) *tableState {
	if num == 1 {
		return c.table2
	}
	return c.table1
}

func (c *cellState) totalRemaining() int {
	return c.table1.remainingCapacity + c.table2.remainingCapacity
}

// pairingConflict 检查配对禁忌：对面台是 C 则本台不能再排 C；
// 对面台是 D 或 E 则本台不能再排 D/E
func (c *cellState) pairingConflict(class domain.SchedClass, tableNum int) bool {
	opp := c.opposite(tableNum).currentClass
	if opp == "" {
		return false
	}
	if class == domain.SchedClassC && opp == domain.SchedClassC {
		return true
	}
	de := func(sc domain.SchedClass) bool { return sc == domain.SchedClassD || sc == domain.SchedClassE }
	return de(class) && de(opp)
}

// placed: 已落台账的一段排入
type placed struct {
	jc     *jobCalc
	cell   domain.CellColor
	num    int
	panels int
}

// schedState: 单个 方法×变体 的完整粗排状态，独占一份资源池快照
type schedState struct {
	constants *domain.CycleTimeConstants
	inputs    *domain.RunInputs

	shiftMinutes int
	cells        map[domain.CellColor]*cellState
	pool         *resourcePool

	unscheduled []*jobCalc
	scheduled   []placed

	// 工单最后一次尝试失败的原因码
	reasons map[string]string

	warnings []string
}

// initState 初始化粗排状态：建台账、克隆资源池、预占上台工单。
// 停用单元上的上台工单进入转移集合，必须最先寻求安置。
func initState(jobs []*jobCalc, constants *domain.CycleTimeConstants, inputs *domain.RunInputs, base *resourcePool) *schedState {
	state := &schedState{
		constants:    constants,
		inputs:       inputs,
		shiftMinutes: inputs.ShiftMinutes(),
		cells:        make(map[domain.CellColor]*cellState),
		pool:         base.clone(),
		reasons:      make(map[string]string),
	}

	for _, color := range domain.CellColors {
		state.cells[color] = &cellState{
			color:  color,
			active: inputs.IsCellActive(color),
			table1: &tableState{cell: color, num: 1, remainingCapacity: state.shiftMinutes},
			table2: &tableState{cell: color, num: 2, remainingCapacity: state.shiftMinutes},
		}
	}

	var rehome []*jobCalc
	for _, jc := range jobs {
		if jc.job.OnTableToday == "" {
			state.unscheduled = append(state.unscheduled, jc)
			continue
		}

		cellColor, tableNum, ok := domain.SplitTableID(jc.job.OnTableToday)
		if !ok {
			state.unscheduled = append(state.unscheduled, jc)
			continue
		}
		cs := state.cells[cellColor]
		if !cs.active {
			// 上台工单落在停用单元上：进入转移集合
			jc.rehome = true
			rehome = append(rehome, jc)
			continue
		}

		state.preReserveOnTable(jc, cs, tableNum)
	}

	// 转移工单排在待排队列最前，作为第一批安置机会
	state.unscheduled = append(rehome, state.unscheduled...)

	return state
}

// preReserveOnTable 为上台工单预占资源并钉到指定台。
// 超过容量时照常接受（操作员已物理占用），欠账随告警带出。
func (s *schedState) preReserveOnTable(jc *jobCalc, cs *cellState, tableNum int) {
	table := cs.table(tableNum)
	holder := holderKey{cell: cs.color, table: tableNum, jobID: jc.job.JobID}

	allocation, _ := s.pool.allocateMolds(jc, cs.color)
	if allocation == nil {
		// 库存不够也要预占：按需求表强行扣账
		req := moldRequirementFor(jc.job, jc.calc.moldDepth, cs.color)
		allocation = map[string]int{}
		if req.primaryCount > 0 {
			allocation[req.primaryMold] = req.primaryCount
		}
		if req.specialtyMold != "" {
			allocation[req.specialtyMold] += req.specialtyCount
		}
	}
	if deficits := s.pool.forceReserveMolds(allocation); len(deficits) > 0 {
		for _, name := range deficits {
			s.warnings = append(s.warnings,
				fmt.Sprintf("上台工单 %s 预占模具 %s 超出容量，欠账将阻塞后续占用", jc.job.JobID, name))
		}
	}
	s.pool.recordBorrows(jc, cs.color, allocation)

	if needsFixture(jc) {
		if within := s.pool.forceReserveFixture(jc.calc.fixtureID, jc.job.Pattern, holder); !within {
			s.warnings = append(s.warnings,
				fmt.Sprintf("上台工单 %s 预占夹具 %s 超出样式并发上限", jc.job.JobID, jc.calc.fixtureID))
		}
		table.fixtureHeld = jc.calc.fixtureID
	}

	roughTime := s.estimateRoughTime(jc, jc.calc.schedQty, false)
	table.moldAllocation = allocation
	table.holder = holder
	table.assign(jc, jc.calc.schedQty, roughTime, true)
	s.scheduled = append(s.scheduled, placed{jc: jc, cell: cs.color, num: tableNum, panels: jc.calc.schedQty})

	// ORANGE 台上放了不具备 ORANGE 资质的工单：接受但告警
	if cs.color == domain.CellOrange && !jc.job.OrangeEligible {
		s.warnings = append(s.warnings,
			fmt.Sprintf("工单 %s 不具备 ORANGE 资质却已在 %s 上", jc.job.JobID, jc.job.OnTableToday))
	}
}

// weekdayCellOrder 返回当天的单元遍历顺序。周一从 BLUE 起，
// 之后每天左旋一位，ORANGE 永远最后；周末沿用周五的顺序。
func weekdayCellOrder(date time.Time, inputs *domain.RunInputs) []domain.CellColor {
	base := []domain.CellColor{domain.CellBlue, domain.CellGreen, domain.CellRed, domain.CellBlack, domain.CellPurple}

	shift := int(date.Weekday()) - 1 // 周一为 0
	if shift < 0 || shift > 4 {
		shift = 4
	}

	order := make([]domain.CellColor, 0, 6)
	for i := 0; i < len(base); i++ {
		order = append(order, base[(i+shift)%len(base)])
	}
	order = append(order, domain.CellOrange)

	active := order[:0]
	for _, c := range order {
		if inputs.IsCellActive(c) {
			active = append(active, c)
		}
	}
	return active
}

// estimateRoughTime 估算一段工单占用单张台的粗排时间。
// 交替作业时固化和对面台的人工并行，单面板有效周期取两者较大值再加卸载。
func (s *schedState) estimateRoughTime(jc *jobCalc, panels int, needsSetup bool) int {
	timing, err := s.constants.GetTaskTiming(jc.job.WireDiameter, jc.job.Equivalent)
	if err != nil {
		return s.shiftMinutes + 1 // 查不到表的工单永远塞不下
	}

	setup := 0
	if needsSetup {
		setup = timing.Setup
	}
	pour := int(timing.PourPerMold * float64(jc.job.Molds))
	cure := int(float64(timing.Cure) * s.cureMultiplier())

	firstWork := setup + timing.Layout + pour
	laterWork := timing.Layout + pour

	firstCycle := max(firstWork, cure) + timing.Unload
	laterCycle := max(laterWork, cure) + timing.Unload

	if panels <= 1 {
		return firstCycle
	}
	// 换面板的衔接损耗
	const transition = 5
	return firstCycle + (panels-1)*(laterCycle+transition)
}

// maxPanelsThatFit 估算一段可用时间里最多能排几个面板
func (s *schedState) maxPanelsThatFit(jc *jobCalc, available int, needsSetup bool) int {
	if available <= 0 {
		return 0
	}
	timing, err := s.constants.GetTaskTiming(jc.job.WireDiameter, jc.job.Equivalent)
	if err != nil {
		return 0
	}

	setup := 0
	if needsSetup {
		setup = timing.Setup
	}
	pour := int(timing.PourPerMold * float64(jc.job.Molds))
	cure := int(float64(timing.Cure) * s.cureMultiplier())

	firstCycle := max(setup+timing.Layout+pour, cure) + timing.Unload
	laterCycle := max(timing.Layout+pour, cure) + timing.Unload
	const transition = 5

	if firstCycle > available {
		return 0
	}
	return 1 + (available-firstCycle)/(laterCycle+transition)
}

func (s *schedState) cureMultiplier() float64 {
	if s.inputs.SummerMode {
		return s.constants.SummerCureMultiplier
	}
	return 1.0
}

// compliantCells 列出工单可以落的启用单元：模深合规，
// ORANGE 另查资质与模具类型放行开关
func (s *schedState) compliantCells(jc *jobCalc) map[domain.CellColor]bool {
	result := make(map[domain.CellColor]bool)
	for _, color := range s.inputs.ActiveCells {
		if color == domain.CellOrange {
			if !jc.job.OrangeEligible {
				continue
			}
			if !s.inputs.AllowedOnOrange(jc.job.MoldType, jc.calc.moldDepth) {
				continue
			}
		}
		if !s.pool.cellCompliant(color, jc.calc.moldDepth) {
			continue
		}
		result[color] = true
	}
	return result
}

// place 把一段工单落到台上，资源占用按「夹具、再逐项模具」的顺序
// 全有或全无：任何一步失败都把之前的占用退回去。
func (s *schedState) place(jc *jobCalc, cell domain.CellColor, tableNum, panels int, allocation map[string]int, roughTime int) bool {
	table := s.cells[cell].table(tableNum)
	holder := holderKey{cell: cell, table: tableNum, jobID: jc.job.JobID}

	// 本台上一个工单已经结束，释放它占着的资源
	prevFixture, prevHolder := table.fixtureHeld, table.holder
	prevMolds := table.moldAllocation
	if prevFixture != "" {
		s.pool.releaseFixture(prevFixture, prevHolder)
	}
	if prevMolds != nil {
		s.pool.releaseMolds(prevMolds)
	}

	if needsFixture(jc) {
		if !s.pool.tryReserveFixture(jc.calc.fixtureID, jc.job.Pattern, holder) {
			// 回滚上一工单的占用
			s.restorePrev(table, prevFixture, prevHolder, prevMolds)
			s.reasons[jc.job.JobID] = domain.ReasonNoFixture
			return false
		}
	}
	if !s.pool.reserveMolds(allocation) {
		if needsFixture(jc) {
			s.pool.releaseFixture(jc.calc.fixtureID, holder)
		}
		s.restorePrev(table, prevFixture, prevHolder, prevMolds)
		s.reasons[jc.job.JobID] = domain.ReasonNoMold
		return false
	}

	s.pool.recordBorrows(jc, cell, allocation)
	table.moldAllocation = allocation
	if needsFixture(jc) {
		table.fixtureHeld = jc.calc.fixtureID
	} else {
		table.fixtureHeld = ""
	}
	table.holder = holder
	table.assign(jc, panels, roughTime, false)
	s.scheduled = append(s.scheduled, placed{jc: jc, cell: cell, num: tableNum, panels: panels})
	delete(s.reasons, jc.job.JobID)
	return true
}

func (s *schedState) restorePrev(table *tableState, fixture string, holder holderKey, molds map[string]int) {
	if fixture != "" {
		s.pool.forceReserveFixture(fixture, "", holder)
	}
	if molds != nil {
		s.pool.forceReserveMolds(molds)
	}
	table.fixtureHeld = fixture
	table.holder = holder
	table.moldAllocation = molds
}

// variantResult: 一个 方法×变体 组合跑完仿真后的结果
type variantResult struct {
	method  string
	variant string

	cells       map[domain.CellColor]*cellResult
	unscheduled []domain.UnscheduledJob
	borrows     []domain.MoldBorrow
	warnings    []string
}

// finishVariant 把粗排状态交给单元仿真，得到最终排定。
// 常规工单在两台之间按面板数均衡；上台工单钉在原台。
func (s *schedState) finishVariant(method, variant string, leftover []*jobCalc) (*variantResult, error) {
	result := &variantResult{
		method:   method,
		variant:  variant,
		cells:    make(map[domain.CellColor]*cellResult),
		borrows:  s.pool.borrows,
		warnings: s.warnings,
	}

	// 按单元归并排入段
	cellPlaced := make(map[domain.CellColor][]placed)
	for _, p := range s.scheduled {
		cellPlaced[p.cell] = append(cellPlaced[p.cell], p)
	}

	for _, color := range s.inputs.ActiveCells {
		queue1, queue2 := buildQueues(cellPlaced[color], color)
		cr, err := simulateCell(color, s.shiftMinutes, queue1, queue2, s.constants, s.inputs.SummerMode)
		if err != nil {
			return nil, err
		}
		result.cells[color] = cr
		result.unscheduled = append(result.unscheduled, cr.unscheduled...)
	}

	for _, jc := range leftover {
		reason := s.reasons[jc.job.JobID]
		if reason == "" {
			reason = domain.ReasonNoCapacity
		}
		if jc.rehome {
			reason = domain.FailInfeasibleOnTableJob
		}
		result.unscheduled = append(result.unscheduled, domain.UnscheduledJob{JobID: jc.job.JobID, Reason: reason})
	}

	return result, nil
}

// buildQueues 把单元内的排入段展开成两台的面板队列。
// 上台工单钉在原台，其余按「面板较少的台」均衡，
// 同台内按排程类别、优先级、交付日分组以便连排省 SETUP。
func buildQueues(items []placed, cell domain.CellColor) ([]panelSlot, []panelSlot) {
	var pinned1, pinned2, regular []placed
	for _, p := range items {
		if p.jc.job.OnTableToday != "" && !p.jc.rehome {
			if c, num, ok := domain.SplitTableID(p.jc.job.OnTableToday); ok && c == cell {
				if num == 1 {
					pinned1 = append(pinned1, p)
				} else {
					pinned2 = append(pinned2, p)
				}
				continue
			}
		}
		regular = append(regular, p)
	}

	sort.SliceStable(regular, func(i, j int) bool {
		a, b := regular[i].jc, regular[j].jc
		if a.calc.schedClass != b.calc.schedClass {
			return a.calc.schedClass < b.calc.schedClass
		}
		if a.calc.priority != b.calc.priority {
			return a.calc.priority < b.calc.priority
		}
		return a.calc.buildDate.Before(b.calc.buildDate)
	})

	expand := func(items []placed, preloaded bool) []panelSlot {
		var slots []panelSlot
		for _, p := range items {
			for i := 0; i < p.panels; i++ {
				slots = append(slots, panelSlot{jc: p.jc, preloaded: preloaded && i == 0})
			}
		}
		return slots
	}

	queue1 := expand(pinned1, true)
	queue2 := expand(pinned2, true)
	count1, count2 := len(queue1), len(queue2)

	for _, p := range regular {
		if count1 <= count2 {
			queue1 = append(queue1, expand([]placed{p}, false)...)
			count1 += p.panels
		} else {
			queue2 = append(queue2, expand([]placed{p}, false)...)
			count2 += p.panels
		}
	}

	return queue1, queue2
}
