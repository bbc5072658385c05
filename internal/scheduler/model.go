package scheduler

import (
	"time"

	"github.com/tfshop-dev/cell-scheduler/backend/internal/domain"
)

// 优先级：数值越小越紧急
const (
	priorityPastDue  = 0 // 交付日已过，或今天到期且加急
	priorityToday    = 1 // 今天到期
	priorityExpedite = 2 // 未来到期但加急
	priorityFuture   = 3 // 未来到期
)

// calcFields: 每次运行开始时为每个工单算出的派生字段
type calcFields struct {
	jobID         string
	schedQty      int
	buildLoad     float64
	buildDate     time.Time
	priority      int
	fixtureID     string
	moldDepth     domain.MoldDepth
	schedClass    domain.SchedClass
	pullAhead     float64
	schedConstant int
}

// jobCalc 把工单和它的派生字段捆在一起在引擎内部传递
type jobCalc struct {
	job  *domain.Job
	calc calcFields

	// ON_TABLE_TODAY 落在停用单元上时置位，必须优先转移到可用单元
	rehome bool
}

// Parameters: 一次排程运行的引擎参数
type Parameters struct {
	Variants       []string      // 变体集合，空则全部
	VariantTimeout time.Duration // 每个变体的运行时间预算；Run 不读取此字段，变体总是完整跑完
}
