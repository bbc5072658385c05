package scheduler

import (
	"github.com/tfshop-dev/cell-scheduler/backend/internal/domain"
)

// holderKey 标识一次夹具占用：哪个单元的哪张台为哪个工单占用
type holderKey struct {
	cell  domain.CellColor
	table int
	jobID string
}

// moldRequirement: 一个工单在目标单元上的模具分解结果
type moldRequirement struct {
	primaryMold    string
	primaryCount   int
	specialtyMold  string
	specialtyCount int
}

// resourcePool 持有一次运行期间全局可变的模具与夹具台账。
// 每个 方法×变体 在自己的快照上运作，互不干扰。
type resourcePool struct {
	constants *domain.CycleTimeConstants

	inventory map[string]int
	available map[string]int // 上台工单预占可能把它压成负数，负数即欠账

	fixtureLimits  map[domain.Pattern]int
	fixtureHolders map[string][]holderKey // fixtureID -> 占用者

	activeCells map[domain.CellColor]bool

	borrows []domain.MoldBorrow
}

func newResourcePool(constants *domain.CycleTimeConstants, inputs *domain.RunInputs) *resourcePool {
	p := &resourcePool{
		constants:      constants,
		inventory:      make(map[string]int),
		available:      make(map[string]int),
		fixtureLimits:  make(map[domain.Pattern]int),
		fixtureHolders: make(map[string][]holderKey),
		activeCells:    make(map[domain.CellColor]bool),
	}

	for name, info := range constants.Molds {
		p.inventory[name] = info.Quantity
		p.available[name] = info.Quantity
	}
	for pattern, limit := range constants.Fixtures {
		p.fixtureLimits[pattern] = limit.MaxConcurrent
	}
	for _, cell := range inputs.ActiveCells {
		p.activeCells[cell] = true
	}

	return p
}

// clone 生成一个独立快照，供单个变体独占使用
func (p *resourcePool) clone() *resourcePool {
	c := &resourcePool{
		constants:      p.constants,
		inventory:      p.inventory, // 总量不变，可共享
		available:      make(map[string]int, len(p.available)),
		fixtureLimits:  p.fixtureLimits,
		fixtureHolders: make(map[string][]holderKey, len(p.fixtureHolders)),
		activeCells:    p.activeCells,
		borrows:        append([]domain.MoldBorrow(nil), p.borrows...),
	}
	for name, n := range p.available {
		c.available[name] = n
	}
	for id, holders := range p.fixtureHolders {
		c.fixtureHolders[id] = append([]holderKey(nil), holders...)
	}
	return c
}

// tryReserveFixture 尝试占用夹具。同一个 fixtureID 的并发占用数
// 不得超过其样式的并发上限；超限时返回 false。
func (p *resourcePool) tryReserveFixture(fixtureID string, pattern domain.Pattern, holder holderKey) bool {
	limit, exists := p.fixtureLimits[pattern]
	if !exists {
		return false
	}
	if len(p.fixtureHolders[fixtureID]) >= limit {
		return false
	}
	p.fixtureHolders[fixtureID] = append(p.fixtureHolders[fixtureID], holder)
	return true
}

// forceReserveFixture 为上台工单预占夹具，允许超限（操作员已经物理占用），
// 超限时返回 false 由调用方记录欠账告警。
func (p *resourcePool) forceReserveFixture(fixtureID string, pattern domain.Pattern, holder holderKey) bool {
	limit := p.fixtureLimits[pattern]
	within := len(p.fixtureHolders[fixtureID]) < limit
	p.fixtureHolders[fixtureID] = append(p.fixtureHolders[fixtureID], holder)
	return within
}

func (p *resourcePool) releaseFixture(fixtureID string, holder holderKey) {
	holders := p.fixtureHolders[fixtureID]
	for i, h := range holders {
		if h == holder {
			p.fixtureHolders[fixtureID] = append(holders[:i], holders[i+1:]...)
			return
		}
	}
}

func (p *resourcePool) fixtureHolderCount(fixtureID string) int {
	return len(p.fixtureHolders[fixtureID])
}

// needsFixture: 只有细线径（<=4）的工单需要夹具，线径恰好超过 4 即免夹具
func needsFixture(jc *jobCalc) bool {
	return jc.job.WireDiameter <= 4
}

// moldRequirementFor 按 (模深, 模具类型, 目标单元, 模数) 分解模具需求
func moldRequirementFor(job *domain.Job, depth domain.MoldDepth, cell domain.CellColor) moldRequirement {
	req := moldRequirement{}

	if depth == domain.MoldDepthDeep {
		req.primaryMold = domain.MoldDeep
		if job.MoldType == domain.MoldTypeStandard {
			req.primaryCount = job.Molds
		} else {
			// DOUBLE2CC 或 3INURETHANE 都占用一个深双模
			req.primaryCount = job.Molds - 1
			req.specialtyMold = domain.MoldDeepDouble2CC
			req.specialtyCount = 1
		}
		return req
	}

	req.primaryMold = domain.ColorMoldName(cell)
	switch job.MoldType {
	case domain.MoldTypeStandard:
		req.primaryCount = job.Molds
	case domain.MoldType3InUrethane:
		req.primaryCount = job.Molds - 1
		req.specialtyMold = domain.Mold3InUrethane
		req.specialtyCount = 1
	default: // DOUBLE2CC
		req.primaryCount = job.Molds - 2
		req.specialtyMold = domain.MoldDouble2CC
		req.specialtyCount = 1
	}
	return req
}

// cellCompliant 判断单元能否使用某个模深（按模具合规矩阵）
func (p *resourcePool) cellCompliant(cell domain.CellColor, depth domain.MoldDepth) bool {
	var name string
	if depth == domain.MoldDepthDeep {
		name = domain.MoldDeep
	} else {
		name = domain.ColorMoldName(cell)
	}
	info, exists := p.constants.Molds[name]
	if !exists {
		return false
	}
	return info.CompliantCells[cell]
}

// allocateMolds 为工单在目标单元上规划一组模具。
// 替代顺序：本色模具 → 公共模具 → 停用单元的合规色模。
// 只做规划不落账，返回 (分配方案, 失败原因码)。
func (p *resourcePool) allocateMolds(jc *jobCalc, cell domain.CellColor) (map[string]int, string) {
	if !p.cellCompliant(cell, jc.calc.moldDepth) {
		return nil, domain.ReasonNoMold
	}

	req := moldRequirementFor(jc.job, jc.calc.moldDepth, cell)
	assignment := make(map[string]int)

	need := req.primaryCount

	if jc.calc.moldDepth == domain.MoldDepthDeep {
		// 深模是全厂共享池，不走颜色替代
		take := min(need, p.available[req.primaryMold])
		if take > 0 {
			assignment[req.primaryMold] = take
			need -= take
		}
	} else {
		// 第一优先：本单元颜色模具（仅限启用单元）
		if p.activeCells[cell] {
			take := min(need, p.available[req.primaryMold])
			if take > 0 {
				assignment[req.primaryMold] = take
				need -= take
			}
		}

		// 第二优先：公共模具
		if need > 0 {
			take := min(need, p.available[domain.MoldCommon])
			if take > 0 {
				assignment[domain.MoldCommon] += take
				need -= take
			}
		}

		// 第三优先：停用单元的颜色模具，要求合规矩阵允许目标颜色。
		// 停用单元上的上台工单不做预占（它们进入转移集合），借用时不扣除它们的模具。
		if need > 0 {
			for _, other := range domain.CellColors {
				if other == cell || other == domain.CellOrange || p.activeCells[other] {
					continue
				}
				otherMold := domain.ColorMoldName(other)
				info, exists := p.constants.Molds[otherMold]
				if !exists || !info.CompliantCells[cell] {
					continue
				}
				take := min(need, p.available[otherMold])
				if take > 0 {
					assignment[otherMold] += take
					need -= take
				}
				if need == 0 {
					break
				}
			}
		}
	}

	if need > 0 {
		return nil, domain.ReasonNoMold
	}

	if req.specialtyMold != "" {
		if p.available[req.specialtyMold] < req.specialtyCount {
			return nil, domain.ReasonNoMold
		}
		assignment[req.specialtyMold] = assignment[req.specialtyMold] + req.specialtyCount
	}

	return assignment, ""
}

// reserveMolds 按规划落账。欠账（负库存）会让任何占用立即失败，
// 直到有释放为止；失败时整体回退，不留半个占用。
func (p *resourcePool) reserveMolds(assignment map[string]int) bool {
	for name, count := range assignment {
		if p.available[name] < count {
			return false
		}
	}
	for name, count := range assignment {
		p.available[name] -= count
	}
	return true
}

// forceReserveMolds 为上台工单预占模具，允许把库存压成负数。
// 返回被压成负数的模具名列表，调用方据此记录欠账告警。
func (p *resourcePool) forceReserveMolds(assignment map[string]int) []string {
	var deficits []string
	for name, count := range assignment {
		p.available[name] -= count
		if p.available[name] < 0 {
			deficits = append(deficits, name)
		}
	}
	return deficits
}

func (p *resourcePool) releaseMolds(assignment map[string]int) {
	for name, count := range assignment {
		p.available[name] += count
		if p.available[name] > p.inventory[name] {
			p.available[name] = p.inventory[name]
		}
	}
}

// recordBorrows 把非本色模具的占用记入借用日志
func (p *resourcePool) recordBorrows(jc *jobCalc, cell domain.CellColor, assignment map[string]int) {
	home := domain.ColorMoldName(cell)
	for name, count := range assignment {
		if name == home {
			continue
		}
		if name == domain.MoldCommon || isColorMold(name) {
			p.borrows = append(p.borrows, domain.MoldBorrow{
				JobID:    jc.job.JobID,
				Cell:     cell,
				MoldName: name,
				Count:    count,
			})
		}
	}
}

func isColorMold(name string) bool {
	for _, cell := range domain.CellColors {
		if name == domain.ColorMoldName(cell) {
			return true
		}
	}
	return false
}
