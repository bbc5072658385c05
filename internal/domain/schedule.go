package domain

import "time"

// 运行级失败码
const (
	FailInvalidInputField     = "invalid-input-field"
	FailConstantsLookupMiss   = "constants-lookup-miss"
	FailNoFeasibleSchedule    = "no-feasible-schedule"
	FailResourceExhausted     = "resource-exhausted"
	FailInfeasibleOnTableJob  = "infeasible-on-table-today"
)

// 工单级未排原因码
const (
	ReasonNoFixture           = "no-fixture"
	ReasonNoMold              = "no-mold"
	ReasonNoCapacity          = "no-capacity"
	ReasonClassPairingBlocked = "class-pairing-blocked"
)

// 四种方法和三种变体的标识
const (
	MethodPriorityFirst     = "priority-first"
	MethodMinimumForcedIdle = "minimum-forced-idle"
	MethodMaximumOutput     = "maximum-output"
	MethodMostRestrictedMix = "most-restricted-mix"

	VariantJobFirst     = "job-first"
	VariantTableFirst   = "table-first"
	VariantFixtureFirst = "fixture-first"
)

// TaskSpan: 面板上一个工序的绝对时间，分钟，从班次开始计
type TaskSpan struct {
	Start    int `json:"start"`
	End      int `json:"end"`
	Duration int `json:"duration"`
}

// Panel: 工作台上一个已最终排定的面板
type Panel struct {
	TableID string `json:"tableID"`
	Index   int    `json:"index"` // 该面板在本台该工单面板中的序号，从 1 开始；工单拆到多张台时各台分别计数
	JobID   string `json:"jobID"`

	Setup  TaskSpan `json:"setup"`
	Layout TaskSpan `json:"layout"`
	Pour   TaskSpan `json:"pour"`
	Cure   TaskSpan `json:"cure"`
	Unload TaskSpan `json:"unload"`
}

// PrepPanel: 收班前只完成了 SETUP+LAYOUT 的预备面板，留给第二天浇注
type PrepPanel struct {
	TableID string   `json:"tableID"`
	JobID   string   `json:"jobID"`
	Setup   TaskSpan `json:"setup"`
	Layout  TaskSpan `json:"layout"`
}

// MoldBorrow: 模具借用日志中的一条记录
type MoldBorrow struct {
	JobID    string    `json:"jobID"`
	Cell     CellColor `json:"cell"`
	MoldName string    `json:"moldName"`
	Count    int       `json:"count"`
}

type UnscheduledJob struct {
	JobID  string `json:"jobID"`
	Reason string `json:"reason"`
}

type TableSchedule struct {
	TableID    string     `json:"tableID"`
	Panels     []Panel    `json:"panels"`
	Prep       *PrepPanel `json:"prep,omitempty"`
	ForcedIdle int        `json:"forcedIdle"` // 固化完成后等待操作员的分钟数
}

type CellSchedule struct {
	Cell               CellColor    `json:"cell"`
	Table1             TableSchedule `json:"table1"`
	Table2             TableSchedule `json:"table2"`
	ForcedOperatorIdle int          `json:"forcedOperatorIdle"`
	MoldBorrows        []MoldBorrow `json:"moldBorrows,omitempty"`
}

// PrioritySummary: 某个优先级的排入/落排统计
type PrioritySummary struct {
	Scheduled       int `json:"scheduled"`
	Missed          int `json:"missed"`
	PanelsScheduled int `json:"panelsScheduled"`
}

// VariantSummary: 一个 方法×变体 组合的评估汇总
type VariantSummary struct {
	Method  string `json:"method"`
	Variant string `json:"variant"`

	PanelsByClass map[SchedClass]int `json:"panelsByClass"`
	PanelsByCell  map[CellColor]int  `json:"panelsByCell"`
	Priorities    [4]PrioritySummary `json:"priorities"`

	TotalPanels        int     `json:"totalPanels"`
	JobsScheduled      int     `json:"jobsScheduled"`
	JobsUnscheduled    int     `json:"jobsUnscheduled"`
	ForcedTableIdle    int     `json:"forcedTableIdle"`
	ForcedOperatorIdle int     `json:"forcedOperatorIdle"`
	UtilizationPct     float64 `json:"utilizationPct"`

	// 优先级 1、2、3 的落排数，比较器以此选优
	MissedDates int `json:"missedDates"`
}

// ScheduleRun: 一次完整排程运行的输出文档
type ScheduleRun struct {
	ScheduleDate time.Time `json:"scheduleDate"`
	ShiftMinutes int       `json:"shiftMinutes"`

	// 推荐的方法×变体及其逐单元排程
	RecommendedMethod  string                       `json:"recommendedMethod"`
	RecommendedVariant string                       `json:"recommendedVariant"`
	Cells              map[CellColor]*CellSchedule  `json:"cells"`
	Unscheduled        []UnscheduledJob             `json:"unscheduled"`

	// 所有 方法×变体 的汇总，总是完整返回
	Summaries []VariantSummary `json:"summaries"`

	Warnings []string `json:"warnings,omitempty"`
}
